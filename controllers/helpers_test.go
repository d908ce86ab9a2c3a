package controllers

import (
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/imaliveapp/imalive/middleware"
	"github.com/imaliveapp/imalive/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.Profile{}, &models.StreakState{}, &models.CheckIn{}, &models.DailyQuest{}, &models.NotificationEvent{}, &models.Letter{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// authAs stands in for the JWT middleware in handler tests.
func authAs(userID uint) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextUserIDKey, userID)
	}
}
