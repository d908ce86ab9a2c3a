package controllers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/imaliveapp/imalive/config"
	"github.com/imaliveapp/imalive/ledger"
	"github.com/imaliveapp/imalive/models"
	"github.com/imaliveapp/imalive/utils"
)

// ProfileController serves the cache-backed profile read and profile updates.
type ProfileController struct {
	db     *gorm.DB
	cache  *utils.Cache
	ledger *ledger.Ledger
}

// NewProfileController creates a new controller instance.
func NewProfileController(db *gorm.DB, cache *utils.Cache, lg *ledger.Ledger) *ProfileController {
	return &ProfileController{db: db, cache: cache, ledger: lg}
}

// ProfileView is the client-facing profile. Level is derived from experience
// on every read; it is never stored.
type ProfileView struct {
	ID            uint      `json:"id"`
	TelegramID    int64     `json:"telegram_id"`
	Username      string    `json:"username"`
	FirstName     string    `json:"first_name"`
	AvatarURL     string    `json:"avatar_url"`
	Bio           string    `json:"bio"`
	Experience    int64     `json:"experience"`
	TotalXPEarned int64     `json:"total_xp_earned"`
	SpendableXP   int64     `json:"spendable_xp"`
	Reputation    int       `json:"reputation"`
	Karma         int       `json:"karma"`
	Level         int       `json:"level"`
	Premium       bool      `json:"premium"`
	Alive         bool      `json:"alive"`
	Deadline      time.Time `json:"deadline"`
}

func profileView(p *models.Profile, now time.Time) ProfileView {
	cfg := config.Get()
	return ProfileView{
		ID:            p.ID,
		TelegramID:    p.TelegramID,
		Username:      p.Username,
		FirstName:     p.FirstName,
		AvatarURL:     p.AvatarURL,
		Bio:           p.Bio,
		Experience:    p.Experience,
		TotalXPEarned: p.TotalXPEarned,
		SpendableXP:   p.SpendableXP,
		Reputation:    p.Reputation,
		Karma:         p.Karma,
		Level:         ledger.LevelOf(p.Experience),
		Premium:       p.Premium,
		Alive:         p.Alive(now, cfg.DeadManWindowSec),
		Deadline:      p.Deadline(cfg.DeadManWindowSec),
	}
}

// GetProfile returns the authenticated user's profile, read through the cache.
// Aliveness is computed per request even on a cache hit, since the deadline
// moves with the clock, not with writes.
func (p *ProfileController) GetProfile(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var stored models.Profile
	err := p.cache.GetOrSetJSON(ctx.Request.Context(), utils.ProfileCacheKey(userID), 5*time.Minute, &stored,
		func(c context.Context) (interface{}, error) {
			var row models.Profile
			if err := p.db.WithContext(c).First(&row, userID).Error; err != nil {
				return nil, err
			}
			return row, nil
		})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40401, "profile not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50010, "failed to load profile")
		return
	}

	utils.Success(ctx, profileView(&stored, time.Now().UTC()))
}

type updateProfileRequest struct {
	Bio                 *string `json:"bio"`
	ReminderIntervalSec *int    `json:"reminder_interval_sec"`
	DeadManWindowSec    *int    `json:"deadman_window_sec"`
	NotifyEnabled       *bool   `json:"notify_enabled"`
}

// UpdateProfile applies user-editable fields. Completing the profile for the
// first time grants the one-off update_profile reward.
func (p *ProfileController) UpdateProfile(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var req updateProfileRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40010, "invalid request payload")
		return
	}

	cfg := config.Get()
	var firstCompletion bool
	err := p.db.WithContext(ctx.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var profile models.Profile
		if err := tx.First(&profile, userID).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{}
		if req.Bio != nil {
			updates["bio"] = utils.Sanitize(*req.Bio)
		}
		if req.ReminderIntervalSec != nil && *req.ReminderIntervalSec >= 0 {
			updates["reminder_interval_sec"] = *req.ReminderIntervalSec
		}
		if req.DeadManWindowSec != nil && *req.DeadManWindowSec >= 0 {
			updates["deadman_window_sec"] = *req.DeadManWindowSec
		}
		if req.NotifyEnabled != nil {
			updates["notify_enabled"] = *req.NotifyEnabled
		}

		if !profile.ProfileCompleted && req.Bio != nil && *req.Bio != "" {
			firstCompletion = true
			updates["profile_completed"] = true
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&models.Profile{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
			return err
		}
		if firstCompletion {
			multiplier := 1.0
			if profile.XPBoostActive(nowUTC()) {
				multiplier = 2.0
			}
			if _, err := ledger.ApplyGrant(tx, userID, cfg.ProfileRewardXP, ledger.SourceUpdateProfile, multiplier); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40401, "profile not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50011, "failed to update profile")
		return
	}

	p.cache.Delete(utils.ProfileCacheKey(userID))

	var profile models.Profile
	if err := p.db.First(&profile, userID).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50010, "failed to load profile")
		return
	}
	utils.Success(ctx, gin.H{
		"profile":            profileView(&profile, time.Now().UTC()),
		"completion_rewarded": firstCompletion,
	})
}
