package controllers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/imaliveapp/imalive/checkin"
	"github.com/imaliveapp/imalive/ledger"
	"github.com/imaliveapp/imalive/models"
	"github.com/imaliveapp/imalive/utils"
)

// QuestController serves the daily quest board and claims.
type QuestController struct {
	db    *gorm.DB
	cache *utils.Cache
}

// NewQuestController creates a new controller instance.
func NewQuestController(db *gorm.DB, cache *utils.Cache) *QuestController {
	return &QuestController{db: db, cache: cache}
}

// TodayQuests returns the user's quest slots for the current UTC day,
// read through the cache.
func (q *QuestController) TodayQuests(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	today := checkin.DateUTC(nowUTC())
	var quests []models.DailyQuest
	err := q.cache.GetOrSetJSON(ctx.Request.Context(), utils.QuestsCacheKey(userID, today), 2*time.Minute, &quests,
		func(c context.Context) (interface{}, error) {
			var rows []models.DailyQuest
			if err := q.db.WithContext(c).
				Where("user_id = ? AND quest_date = ?", userID, today).
				Order("kind").Find(&rows).Error; err != nil {
				return nil, err
			}
			return rows, nil
		})
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50050, "failed to load quests")
		return
	}

	utils.Success(ctx, gin.H{"date": today, "quests": quests})
}

// ClaimQuest grants the quest reward once. Claiming an already-claimed quest
// is an idempotent no-op; claiming an incomplete quest is a user error.
func (q *QuestController) ClaimQuest(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	questID, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40021, "invalid quest id")
		return
	}

	var alreadyClaimed bool
	var rewarded int64
	var balances ledger.Balances
	var quest models.DailyQuest
	err = q.db.WithContext(ctx.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND user_id = ?", questID, userID).First(&quest).Error; err != nil {
			return err
		}
		if quest.Claimed {
			alreadyClaimed = true
			return nil
		}
		if !quest.Completed() {
			return errQuestIncomplete
		}
		// Conditional update so two concurrent claims grant exactly once.
		res := tx.Model(&models.DailyQuest{}).
			Where("id = ? AND claimed = ? AND progress >= target", quest.ID, false).
			Update("claimed", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			alreadyClaimed = true
			return nil
		}
		var p models.Profile
		if err := tx.First(&p, userID).Error; err != nil {
			return err
		}
		multiplier := 1.0
		if p.XPBoostActive(nowUTC()) {
			multiplier = 2.0
		}
		var err error
		if rewarded, err = ledger.ApplyGrant(tx, userID, quest.RewardXP, ledger.SourceDailyQuest, multiplier); err != nil {
			return err
		}
		if err = tx.First(&p, userID).Error; err != nil {
			return err
		}
		balances = ledger.BalancesFromProfile(&p)
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40402, "quest not found")
			return
		}
		if errors.Is(err, errQuestIncomplete) {
			utils.Error(ctx, http.StatusBadRequest, 40022, "quest not completed yet")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50051, "failed to claim quest")
		return
	}

	if !alreadyClaimed {
		q.cache.Delete(
			utils.ProfileCacheKey(userID),
			utils.QuestsCacheKey(userID, quest.QuestDate),
		)
	}

	utils.Success(ctx, gin.H{
		"already_claimed": alreadyClaimed,
		"reward_xp":       rewarded,
		"balances":        balances,
	})
}

var errQuestIncomplete = errors.New("quest not completed")
