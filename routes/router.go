package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/imaliveapp/imalive/checkin"
	"github.com/imaliveapp/imalive/config"
	"github.com/imaliveapp/imalive/controllers"
	"github.com/imaliveapp/imalive/ledger"
	"github.com/imaliveapp/imalive/middleware"
	"github.com/imaliveapp/imalive/quota"
	"github.com/imaliveapp/imalive/utils"
)

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(db *gorm.DB, cache *utils.Cache, engine *checkin.Engine, lg *ledger.Ledger, guard *quota.Guard) *gin.Engine {
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Access logs go to their own rolling file so request noise stays out of
	// the application log.
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(utils.Ginzap(gl))
		r.Use(utils.RecoveryWithZap(gl))
	} else {
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	authController := controllers.NewAuthController(db)
	checkinController := controllers.NewCheckInController(engine)
	profileController := controllers.NewProfileController(db, cache, lg)
	letterController := controllers.NewLetterController(db, cache, guard)
	questController := controllers.NewQuestController(db, cache)
	shopController := controllers.NewShopController(db, cache)
	notificationController := controllers.NewNotificationController(db)
	statsController := controllers.NewStatsController(db, cache)

	api := r.Group("/api/v1")

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimitMiddleware())
	authGroup.POST("/telegram", authController.TelegramAuth)
	authGroup.POST("/logout", middleware.AuthRequired(), authController.Logout)
	authGroup.GET("/me", middleware.AuthRequired(), profileController.GetProfile)

	// Public reads
	api.GET("/stats", statsController.GetStats)
	api.GET("/leaderboard", statsController.GetLeaderboard)

	protected := api.Group("")
	protected.Use(
		middleware.AuthRequired(),
		middleware.RateLimitMiddleware(),
		middleware.ActivityRecorder(db),
	)

	protected.GET("/profile", profileController.GetProfile)
	protected.PATCH("/profile", profileController.UpdateProfile)

	protected.POST("/checkin",
		middleware.RouteClassLimit(guard, "checkin", 10, time.Minute),
		checkinController.CheckIn)
	protected.GET("/checkin/status", checkinController.Status)

	protected.POST("/letters",
		middleware.RouteClassLimit(guard, "letters", 10, time.Minute),
		letterController.CreateLetter)
	protected.GET("/letters", letterController.ListLetters)

	protected.GET("/quests/today", questController.TodayQuests)
	protected.POST("/quests/:id/claim", questController.ClaimQuest)

	protected.GET("/shop/items", shopController.ListItems)
	protected.POST("/shop/purchase",
		middleware.RouteClassLimit(guard, "purchase", 20, time.Minute),
		shopController.Purchase)

	protected.GET("/notifications", notificationController.List)
	protected.POST("/notifications/:id/read", notificationController.MarkRead)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "route not found")
	})

	return r
}
