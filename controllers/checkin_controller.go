package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imaliveapp/imalive/checkin"
	"github.com/imaliveapp/imalive/ledger"
	"github.com/imaliveapp/imalive/utils"
)

// CheckInController exposes the daily check-in ("I'm alive") endpoints.
type CheckInController struct {
	engine *checkin.Engine
}

// NewCheckInController creates a new controller instance.
func NewCheckInController(engine *checkin.Engine) *CheckInController {
	return &CheckInController{engine: engine}
}

// CheckIn records today's check-in. A repeat call on the same UTC day is not a
// failure: it returns 200 with already_checked_in=true and unchanged balances.
func (c *CheckInController) CheckIn(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	result, err := c.engine.CheckIn(ctx.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, ledger.ErrProfileNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40401, "profile not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50020, "check-in failed, please retry")
		return
	}

	utils.Success(ctx, result)
}

// Status returns the streak and dead-man-switch view.
func (c *CheckInController) Status(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	status, err := c.engine.Status(ctx.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, ledger.ErrProfileNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40401, "profile not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50021, "failed to load status")
		return
	}

	utils.Success(ctx, status)
}
