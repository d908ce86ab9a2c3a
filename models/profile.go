package models

import (
	"time"

	"gorm.io/gorm"
)

// Profile is the per-user ledger row. Experience is the source of truth for
// level; a level column is deliberately absent so it can never drift.
type Profile struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	TelegramID int64  `gorm:"uniqueIndex;not null" json:"telegram_id"`
	Username   string `gorm:"size:64" json:"username"`
	FirstName  string `gorm:"size:64" json:"first_name"`
	AvatarURL  string `gorm:"size:512" json:"avatar_url"`
	Bio        string `gorm:"size:255" json:"bio"`

	Experience    int64 `gorm:"default:0;not null" json:"experience"`
	TotalXPEarned int64 `gorm:"default:0;not null" json:"total_xp_earned"`
	SpendableXP   int64 `gorm:"default:0;not null" json:"spendable_xp"`
	Reputation    int   `gorm:"default:0;not null" json:"reputation"`
	Karma         int   `gorm:"default:50;not null" json:"karma"`

	Premium          bool       `gorm:"default:false" json:"premium"`
	ProfileCompleted bool       `gorm:"default:false" json:"profile_completed"`
	XPBoostUntil     *time.Time `json:"xp_boost_until,omitempty"`

	// Dead-man-switch inputs. The deadline itself is derived on read:
	// last_activity_at + deadman_window_sec.
	LastActivityAt      time.Time `gorm:"not null" json:"last_activity_at"`
	DeadManWindowSec    int       `gorm:"default:0" json:"deadman_window_sec"`
	ReminderIntervalSec int       `gorm:"default:0" json:"reminder_interval_sec"`
	NotifyEnabled       bool      `gorm:"default:true" json:"notify_enabled"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate hook ensures timestamps are set even when not provided.
func (p *Profile) BeforeCreate(tx *gorm.DB) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.LastActivityAt.IsZero() {
		p.LastActivityAt = now
	}
	p.UpdatedAt = now
	return nil
}

// XPBoostActive reports whether the xp_boost_2x perk applies at the given time.
func (p *Profile) XPBoostActive(now time.Time) bool {
	return p.XPBoostUntil != nil && now.Before(*p.XPBoostUntil)
}

// Deadline returns the dead-man-switch deadline using the per-user window,
// falling back to defaultWindowSec when the user never customized it.
func (p *Profile) Deadline(defaultWindowSec int) time.Time {
	window := p.DeadManWindowSec
	if window <= 0 {
		window = defaultWindowSec
	}
	return p.LastActivityAt.Add(time.Duration(window) * time.Second)
}

// Alive reports whether the user has not yet crossed the deadline. There is no
// stored "dead" flag; aliveness is always computed from the timestamps.
func (p *Profile) Alive(now time.Time, defaultWindowSec int) bool {
	return now.Before(p.Deadline(defaultWindowSec))
}
