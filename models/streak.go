package models

import "time"

// StreakState tracks consecutive daily check-ins per user. Dates are UTC
// calendar days stored as "2006-01-02" strings so comparisons are exact and
// timezone-free.
type StreakState struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	UserID          uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	CurrentStreak   int       `gorm:"default:0;not null" json:"current_streak"`
	LongestStreak   int       `gorm:"default:0;not null" json:"longest_streak"`
	LastCheckInDate string    `gorm:"size:10" json:"last_checkin_date"`
	FreeSkips       int       `gorm:"default:0;not null" json:"free_skips"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// CheckIn is the append-only daily check-in record. The unique
// (user_id, checkin_date) index is the concurrency guard: of two concurrent
// same-day check-ins exactly one insert succeeds.
type CheckIn struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	UserID         uint   `gorm:"not null;uniqueIndex:idx_checkin_user_date" json:"user_id"`
	CheckinDate    string `gorm:"size:10;not null;uniqueIndex:idx_checkin_user_date" json:"checkin_date"`
	XPAwarded      int    `json:"xp_awarded"`
	RepAwarded     int    `json:"rep_awarded"`
	StreakAchieved int    `json:"streak_achieved"`
	UsedFreeSkip   bool   `json:"used_free_skip"`
	CreatedAt      time.Time `json:"created_at"`
}
