package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/imaliveapp/imalive/models"
	"github.com/imaliveapp/imalive/utils"
)

// NotificationController reads the append-only notification log. Rows are only
// ever mutated to flip is_read.
type NotificationController struct {
	db *gorm.DB
}

// NewNotificationController creates a new controller instance.
func NewNotificationController(db *gorm.DB) *NotificationController {
	return &NotificationController{db: db}
}

// List returns the user's notifications, newest first.
func (n *NotificationController) List(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	const pageSize = 50

	var events []models.NotificationEvent
	if err := n.db.WithContext(ctx.Request.Context()).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(pageSize).Offset((page - 1) * pageSize).
		Find(&events).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50070, "failed to list notifications")
		return
	}

	var unread int64
	_ = n.db.Model(&models.NotificationEvent{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&unread).Error

	utils.Success(ctx, gin.H{"notifications": events, "unread": unread, "page": page})
}

// MarkRead flips is_read on one of the user's notifications. Repeat calls are
// harmless.
func (n *NotificationController) MarkRead(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	id := ctx.Param("id")
	res := n.db.WithContext(ctx.Request.Context()).
		Model(&models.NotificationEvent{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("is_read", true)
	if res.Error != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50071, "failed to mark notification")
		return
	}
	if res.RowsAffected == 0 {
		// Already read, or not this user's notification. Only the latter is 404.
		var count int64
		n.db.Model(&models.NotificationEvent{}).
			Where("id = ? AND user_id = ?", id, userID).Count(&count)
		if count == 0 {
			utils.Error(ctx, http.StatusNotFound, 40403, "notification not found")
			return
		}
	}

	utils.Success(ctx, gin.H{"id": id, "is_read": true})
}
