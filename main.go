package main

import (
	"context"
	"time"

	"github.com/imaliveapp/imalive/checkin"
	"github.com/imaliveapp/imalive/config"
	"github.com/imaliveapp/imalive/ledger"
	"github.com/imaliveapp/imalive/models"
	"github.com/imaliveapp/imalive/notify"
	"github.com/imaliveapp/imalive/quota"
	"github.com/imaliveapp/imalive/routes"
	"github.com/imaliveapp/imalive/scheduler"
	"github.com/imaliveapp/imalive/utils"
)

func main() {
	cfg := config.Load()

	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}

	db := config.InitDatabase(
		&models.Profile{},
		&models.StreakState{},
		&models.CheckIn{},
		&models.DailyQuest{},
		&models.NotificationEvent{},
		&models.Letter{},
	)

	cache := utils.NewCache(utils.GetRedis())
	guard := quota.NewGuard(utils.GetRedis())
	lg := ledger.New(db, cache)
	engine := checkin.NewEngine(db, cache, checkin.Config{
		BaseXP:           cfg.CheckinBaseXP,
		ComebackXP:       cfg.CheckinComebackXP,
		DeadManWindowSec: cfg.DeadManWindowSec,
	})

	var sender notify.Sender = notify.NopSender{}
	if cfg.TelegramBotToken != "" {
		tg, err := notify.NewTelegramSender(cfg.TelegramBotToken)
		if err != nil {
			utils.Sugar.Warnf("telegram sender unavailable, notifications disabled: %v", err)
		} else {
			sender = tg
		}
	}

	sched := scheduler.New(scheduler.Config{
		DB:                      db,
		Sender:                  sender,
		Logger:                  utils.Sugar,
		Interval:                time.Duration(cfg.SchedulerIntervalSec) * time.Second,
		StreakRiskCooldown:      time.Duration(cfg.StreakRiskCooldownH) * time.Hour,
		DefaultReminderInterval: time.Duration(cfg.ReminderIntervalSec) * time.Second,
		QuestRewardXP:           cfg.QuestRewardXP,
	})
	sched.Start(context.Background())
	defer sched.Stop()

	r := routes.SetupRouter(db, cache, engine, lg, guard)

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
