package models

import (
	"time"

	"gorm.io/gorm"
)

// Letter is a user-authored note. Content is sanitized HTML. Creating one is
// quota-guarded on the free tier and grants create_letter XP.
type Letter struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	UserID    uint           `gorm:"index;not null" json:"user_id"`
	Title     string         `gorm:"size:128" json:"title"`
	Content   string         `gorm:"type:text" json:"content"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
