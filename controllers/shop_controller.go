package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/imaliveapp/imalive/ledger"
	"github.com/imaliveapp/imalive/models"
	"github.com/imaliveapp/imalive/utils"
)

// ShopItem is one fixed catalog entry. The registry is closed: there is no
// mechanism for adding item effects at runtime.
type ShopItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Cost        int    `json:"cost"`
}

const (
	itemStreakFreeze = "streak_freeze"
	itemXPBoost      = "xp_boost_2x"

	freeSkipCap     = 3
	xpBoostDuration = 24 * time.Hour
)

var shopItems = []ShopItem{
	{ID: itemStreakFreeze, Name: "Streak Freeze", Description: "Bridges one missed day without breaking your streak.", Cost: 150},
	{ID: itemXPBoost, Name: "XP Boost 2x", Description: "Doubles all XP rewards for 24 hours.", Cost: 200},
}

// ShopController spends XP on the fixed perk catalog.
type ShopController struct {
	db    *gorm.DB
	cache *utils.Cache
}

// NewShopController creates a new controller instance.
func NewShopController(db *gorm.DB, cache *utils.Cache) *ShopController {
	return &ShopController{db: db, cache: cache}
}

// ListItems returns the catalog.
func (s *ShopController) ListItems(ctx *gin.Context) {
	utils.Success(ctx, gin.H{"items": shopItems})
}

type purchaseRequest struct {
	Item string `json:"item" binding:"required"`
}

// Purchase spends XP and applies the item effect in one transaction. An
// uncovered balance is a recoverable rejection with the current balance
// untouched, never a partial spend.
func (s *ShopController) Purchase(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var req purchaseRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40023, "invalid request payload")
		return
	}

	var item *ShopItem
	for i := range shopItems {
		if shopItems[i].ID == req.Item {
			item = &shopItems[i]
			break
		}
	}
	if item == nil {
		utils.Error(ctx, http.StatusBadRequest, 40024, "unknown shop item")
		return
	}

	now := time.Now().UTC()
	var balances ledger.Balances
	err := s.db.WithContext(ctx.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := ledger.ApplySpend(tx, userID, item.Cost); err != nil {
			return err
		}
		switch item.ID {
		case itemStreakFreeze:
			var state models.StreakState
			err := tx.Where("user_id = ?", userID).First(&state).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				state = models.StreakState{UserID: userID}
			} else if err != nil {
				return err
			}
			if state.FreeSkips >= freeSkipCap {
				return errSkipCapReached
			}
			state.FreeSkips++
			if err := tx.Save(&state).Error; err != nil {
				return err
			}
		case itemXPBoost:
			var profile models.Profile
			if err := tx.First(&profile, userID).Error; err != nil {
				return err
			}
			until := now.Add(xpBoostDuration)
			if profile.XPBoostActive(now) {
				until = profile.XPBoostUntil.Add(xpBoostDuration)
			}
			if err := tx.Model(&models.Profile{}).Where("id = ?", userID).
				Update("xp_boost_until", until).Error; err != nil {
				return err
			}
		}
		var p models.Profile
		if err := tx.First(&p, userID).Error; err != nil {
			return err
		}
		balances = ledger.BalancesFromProfile(&p)
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInsufficientXP):
			utils.Error(ctx, http.StatusConflict, 40910, "insufficient spendable xp")
		case errors.Is(err, ledger.ErrProfileNotFound):
			utils.Error(ctx, http.StatusNotFound, 40401, "profile not found")
		case errors.Is(err, errSkipCapReached):
			utils.Error(ctx, http.StatusConflict, 40911, "streak freeze limit reached")
		default:
			utils.Error(ctx, http.StatusInternalServerError, 50060, "purchase failed")
		}
		return
	}

	s.cache.Delete(
		utils.ProfileCacheKey(userID),
		utils.StreakCacheKey(userID),
	)

	utils.Success(ctx, gin.H{"item": item.ID, "balances": balances})
}

var errSkipCapReached = errors.New("free skip cap reached")
