package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/imaliveapp/imalive/checkin"
	"github.com/imaliveapp/imalive/ledger"
	"github.com/imaliveapp/imalive/models"
	"github.com/imaliveapp/imalive/utils"
)

// StatsController serves aggregate statistics and the XP leaderboard.
type StatsController struct {
	db    *gorm.DB
	cache *utils.Cache
}

// NewStatsController creates a new StatsController instance.
func NewStatsController(db *gorm.DB, cache *utils.Cache) *StatsController {
	return &StatsController{db: db, cache: cache}
}

// LeaderboardEntry is one leaderboard row; level is computed, never stored.
type LeaderboardEntry struct {
	Rank       int    `json:"rank"`
	UserID     uint   `json:"user_id"`
	Username   string `json:"username"`
	AvatarURL  string `json:"avatar_url"`
	Experience int64  `json:"experience"`
	Level      int    `json:"level"`
	Reputation int    `json:"reputation"`
}

// GetLeaderboard returns the top users by experience, cached briefly. The
// whole prefix is invalidated on any XP mutation, which trades hit rate for
// never serving a stale board right after a grant.
func (s *StatsController) GetLeaderboard(ctx *gin.Context) {
	var entries []LeaderboardEntry
	err := s.cache.GetOrSetJSON(ctx.Request.Context(), utils.LeaderboardCachePrefix+":top", time.Minute, &entries,
		func(c context.Context) (interface{}, error) {
			var profiles []models.Profile
			if err := s.db.WithContext(c).
				Order("experience DESC").
				Limit(50).
				Find(&profiles).Error; err != nil {
				return nil, err
			}
			out := make([]LeaderboardEntry, 0, len(profiles))
			for i, p := range profiles {
				out = append(out, LeaderboardEntry{
					Rank:       i + 1,
					UserID:     p.ID,
					Username:   p.Username,
					AvatarURL:  p.AvatarURL,
					Experience: p.Experience,
					Level:      ledger.LevelOf(p.Experience),
					Reputation: p.Reputation,
				})
			}
			return out, nil
		})
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50080, "failed to load leaderboard")
		return
	}

	utils.Success(ctx, gin.H{"leaderboard": entries})
}

// GetStats returns aggregate counters. Each falls back to 0 instead of failing
// the whole endpoint.
func (s *StatsController) GetStats(ctx *gin.Context) {
	var userCount int64
	var checkinsToday int64
	var letterCount int64

	if err := s.db.Model(&models.Profile{}).Count(&userCount).Error; err != nil {
		userCount = 0
	}

	today := checkin.DateUTC(time.Now())
	if err := s.db.Model(&models.CheckIn{}).Where("checkin_date = ?", today).Count(&checkinsToday).Error; err != nil {
		checkinsToday = 0
	}

	if err := s.db.Model(&models.Letter{}).Count(&letterCount).Error; err != nil {
		letterCount = 0
	}

	utils.Success(ctx, gin.H{
		"user_count":     userCount,
		"checkins_today": checkinsToday,
		"letter_count":   letterCount,
	})
}
