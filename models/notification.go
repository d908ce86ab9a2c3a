package models

import "time"

// Notification types emitted by the scheduler.
const (
	NotificationStreakRisk      = "streak_risk"
	NotificationCheckinReminder = "checkin_reminder"
)

// NotificationEvent is an append-only log entry. Rows are written once by the
// scheduler or an action handler and mutated only to flip IsRead. The log
// doubles as the scheduler's dedup store: a trigger that finds a recent event
// of its type does not fire again.
type NotificationEvent struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	UserID    uint      `gorm:"index:idx_notif_user_type,priority:1;not null" json:"user_id"`
	Type      string    `gorm:"size:32;index:idx_notif_user_type,priority:2;not null" json:"type"`
	Payload   string    `gorm:"size:512" json:"payload"`
	IsRead    bool      `gorm:"default:false" json:"is_read"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}
