package controllers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/imaliveapp/imalive/config"
	"github.com/imaliveapp/imalive/models"
	"github.com/imaliveapp/imalive/scheduler"
	"github.com/imaliveapp/imalive/utils"
)

// AuthController exchanges Telegram Mini-App init data for a session token.
type AuthController struct {
	db *gorm.DB
}

// NewAuthController creates a new controller instance.
func NewAuthController(db *gorm.DB) *AuthController {
	return &AuthController{db: db}
}

type telegramAuthRequest struct {
	InitData string `json:"init_data" binding:"required"`
}

// TelegramAuth verifies Mini-App initData against the bot token and issues a
// JWT. First-time users get a profile row and today's quest slots.
func (a *AuthController) TelegramAuth(ctx *gin.Context) {
	var req telegramAuthRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}

	cfg := config.Get()
	tgUser, err := utils.VerifyInitData(req.InitData, cfg.TelegramBotToken, time.Now())
	if err != nil {
		if errors.Is(err, utils.ErrInitDataExpired) {
			utils.Error(ctx, http.StatusUnauthorized, 40107, "telegram init data expired")
			return
		}
		utils.Error(ctx, http.StatusUnauthorized, 40106, "invalid telegram init data")
		return
	}

	var profile models.Profile
	err = a.db.Where("telegram_id = ?", tgUser.ID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		profile = models.Profile{
			TelegramID: tgUser.ID,
			Username:   tgUser.Username,
			FirstName:  tgUser.FirstName,
			AvatarURL:  tgUser.PhotoURL,
			Premium:    tgUser.IsPremium,
		}
		if err := a.db.Create(&profile).Error; err != nil {
			utils.Error(ctx, http.StatusInternalServerError, 50001, "failed to create profile")
			return
		}
		if err := scheduler.SeedUserQuests(ctx.Request.Context(), a.db, profile.ID, time.Now(), cfg.QuestRewardXP); err != nil {
			utils.Sugar.Warnf("seed quests for new user %d failed: %v", profile.ID, err)
		}
	} else if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50002, "failed to load profile")
		return
	}

	token, err := utils.GenerateToken(profile.ID, profile.TelegramID, profile.Username, 72*time.Hour)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50003, "failed to generate token")
		return
	}

	utils.Success(ctx, gin.H{"token": token, "profile": profileView(&profile, time.Now())})
}

// Logout revokes the presented token until its natural expiration.
func (a *AuthController) Logout(ctx *gin.Context) {
	authHeader := ctx.GetHeader("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 {
		utils.Error(ctx, http.StatusBadRequest, 40002, "missing bearer token")
		return
	}
	tokenStr := strings.TrimSpace(parts[1])
	claims, err := utils.ParseToken(tokenStr)
	if err != nil {
		utils.Error(ctx, http.StatusUnauthorized, 40105, "invalid token")
		return
	}
	utils.BlacklistToken(tokenStr, claims.ExpiresAt.Time)
	utils.Success(ctx, gin.H{"message": "logged out"})
}
