package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/imaliveapp/imalive/checkin"
	"github.com/imaliveapp/imalive/models"
)

var (
	lastBump   = map[uint]time.Time{}
	lastBumpMu sync.Mutex
)

const activityThrottle = time.Minute

// ActivityRecorder bumps last_activity_at for authenticated requests. This is
// the dead-man-switch input: any API touch is a life sign and pushes the
// deadline out, so a user who crossed the deadline and then opens any screen
// is alive again before they check in. Only the streak demands an actual
// check-in; a check-in made while still past the deadline resets it. Writes
// are throttled to once per minute per user and happen after the response,
// off the request's critical path semantics.
func ActivityRecorder(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if status < 200 || status >= 400 {
			return
		}
		v, ok := c.Get(ContextUserIDKey)
		if !ok {
			return
		}
		userID, ok := v.(uint)
		if !ok {
			return
		}

		now := time.Now().UTC()
		lastBumpMu.Lock()
		if prev, seen := lastBump[userID]; seen && now.Sub(prev) < activityThrottle {
			lastBumpMu.Unlock()
			return
		}
		lastBump[userID] = now
		lastBumpMu.Unlock()

		_ = db.Model(&models.Profile{}).Where("id = ?", userID).
			Update("last_activity_at", now).Error

		// First touch of the day advances the visit_app quest.
		_ = db.Model(&models.DailyQuest{}).
			Where("user_id = ? AND quest_date = ? AND kind = ? AND progress < target",
				userID, checkin.DateUTC(now), models.QuestVisitApp).
			Update("progress", gorm.Expr("progress + 1")).Error
	}
}
