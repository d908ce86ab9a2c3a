package models

import "time"

// Daily quest kinds. The set regenerated each UTC midnight is fixed.
const (
	QuestCheckIn     = "check_in"
	QuestWriteLetter = "write_letter"
	QuestVisitApp    = "visit_app"
)

// DailyQuest is one quest slot for one user and one UTC day. The unique
// (user_id, quest_date, kind) index makes the midnight reset idempotent: a
// scheduler restart that re-runs the reset inserts nothing new.
type DailyQuest struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_quest_user_date_kind,priority:1" json:"user_id"`
	QuestDate string    `gorm:"size:10;not null;uniqueIndex:idx_quest_user_date_kind,priority:2" json:"quest_date"`
	Kind      string    `gorm:"size:32;not null;uniqueIndex:idx_quest_user_date_kind,priority:3" json:"kind"`
	Target    int       `gorm:"default:1" json:"target"`
	Progress  int       `gorm:"default:0" json:"progress"`
	Claimed   bool      `gorm:"default:false" json:"claimed"`
	RewardXP  int       `json:"reward_xp"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Completed reports whether the quest reached its target.
func (q *DailyQuest) Completed() bool {
	return q.Progress >= q.Target
}
