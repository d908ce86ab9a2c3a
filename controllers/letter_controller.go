package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/imaliveapp/imalive/checkin"
	"github.com/imaliveapp/imalive/config"
	"github.com/imaliveapp/imalive/ledger"
	"github.com/imaliveapp/imalive/models"
	"github.com/imaliveapp/imalive/quota"
	"github.com/imaliveapp/imalive/utils"
)

// LetterController handles user-authored letters, a quota-guarded XP action.
type LetterController struct {
	db    *gorm.DB
	cache *utils.Cache
	guard *quota.Guard
}

// NewLetterController creates a new controller instance.
func NewLetterController(db *gorm.DB, cache *utils.Cache, guard *quota.Guard) *LetterController {
	return &LetterController{db: db, cache: cache, guard: guard}
}

type createLetterRequest struct {
	Title   string `json:"title" binding:"required,max=128"`
	Content string `json:"content" binding:"required"`
}

// CreateLetter consumes one unit of the free-tier letter quota, sanitizes the
// body and grants create_letter XP in the same transaction as the insert.
func (l *LetterController) CreateLetter(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var req createLetterRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}

	var profile models.Profile
	if err := l.db.First(&profile, userID).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40401, "profile not found")
		return
	}

	cfg := config.Get()
	decision := l.guard.EvaluateQuota(ctx.Request.Context(), userID, quota.ResourceLetters, cfg.FreeLettersPerDay, profile.Premium)
	if !decision.Allowed {
		utils.ErrorWithData(ctx, http.StatusTooManyRequests, 42910, "daily letter quota reached", decision)
		return
	}

	// The xp_boost_2x perk covers every XP reward, not just check-ins.
	multiplier := 1.0
	if profile.XPBoostActive(nowUTC()) {
		multiplier = 2.0
	}

	letter := models.Letter{
		UserID:  userID,
		Title:   req.Title,
		Content: utils.Sanitize(req.Content),
	}
	var balances ledger.Balances
	err := l.db.WithContext(ctx.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&letter).Error; err != nil {
			return err
		}
		if _, err := ledger.ApplyGrant(tx, userID, cfg.LetterRewardXP, ledger.SourceCreateLetter, multiplier); err != nil {
			return err
		}
		today := checkin.DateUTC(nowUTC())
		if err := tx.Model(&models.DailyQuest{}).
			Where("user_id = ? AND quest_date = ? AND kind = ? AND progress < target",
				userID, today, models.QuestWriteLetter).
			Update("progress", gorm.Expr("progress + 1")).Error; err != nil {
			return err
		}
		var p models.Profile
		if err := tx.First(&p, userID).Error; err != nil {
			return err
		}
		balances = ledger.BalancesFromProfile(&p)
		return nil
	})
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50040, "failed to create letter")
		return
	}

	l.cache.Delete(
		utils.ProfileCacheKey(userID),
		utils.QuestsCacheKey(userID, checkin.DateUTC(nowUTC())),
	)

	utils.Success(ctx, gin.H{"letter": letter, "balances": balances, "quota": decision})
}

// ListLetters returns the authenticated user's letters, newest first.
func (l *LetterController) ListLetters(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	const pageSize = 20

	var letters []models.Letter
	err := l.db.WithContext(ctx.Request.Context()).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(pageSize).Offset((page - 1) * pageSize).
		Find(&letters).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		utils.Error(ctx, http.StatusInternalServerError, 50041, "failed to list letters")
		return
	}

	utils.Success(ctx, gin.H{"letters": letters, "page": page})
}
