// Package scheduler runs the periodic trigger scan: streak-risk warnings,
// check-in reminders and the UTC-midnight daily quest reset. It reads ledger
// state, never mutates it; the only rows it writes are notification events and
// quest slots, both deduplicated by durable storage.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/imaliveapp/imalive/checkin"
	"github.com/imaliveapp/imalive/models"
	"github.com/imaliveapp/imalive/notify"
)

// Config holds the scheduler dependencies and cadence knobs.
type Config struct {
	DB     *gorm.DB
	Sender notify.Sender
	Logger *zap.SugaredLogger

	Interval                time.Duration // scan tick; defaults to 5 minutes
	StreakRiskCooldown      time.Duration // defaults to 12 hours
	DefaultReminderInterval time.Duration // defaults to 24 hours
	QuestRewardXP           int

	Clock func() time.Time
}

// Scheduler is the single long-lived background loop.
type Scheduler struct {
	db       *gorm.DB
	sender   notify.Sender
	logger   *zap.SugaredLogger
	interval time.Duration
	riskCool time.Duration
	remindIv time.Duration
	questXP  int
	clock    func() time.Time

	cron   *cron.Cron
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Scheduler from the config, filling defaults.
func New(cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.StreakRiskCooldown <= 0 {
		cfg.StreakRiskCooldown = 12 * time.Hour
	}
	if cfg.DefaultReminderInterval <= 0 {
		cfg.DefaultReminderInterval = 24 * time.Hour
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Sender == nil {
		cfg.Sender = notify.NopSender{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	return &Scheduler{
		db:       cfg.DB,
		sender:   cfg.Sender,
		logger:   cfg.Logger,
		interval: cfg.Interval,
		riskCool: cfg.StreakRiskCooldown,
		remindIv: cfg.DefaultReminderInterval,
		questXP:  cfg.QuestRewardXP,
		clock:    cfg.Clock,
	}
}

// Start launches the scan loop and the midnight quest reset. The reset also
// runs once at startup so a restart mid-day backfills idempotently.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.cron = cron.New(cron.WithLocation(time.UTC))
	_, err := s.cron.AddFunc("0 0 * * *", func() {
		if err := s.ResetDailyQuests(ctx, s.clock()); err != nil {
			s.logger.Errorf("daily quest reset failed: %v", err)
		}
	})
	if err != nil {
		s.logger.Errorf("cron registration failed: %v", err)
	}
	s.cron.Start()

	if err := s.ResetDailyQuests(ctx, s.clock()); err != nil {
		s.logger.Errorf("startup quest reset failed: %v", err)
	}

	s.wg.Add(1)
	go s.loop(ctx)
	s.logger.Infof("scheduler started, interval=%s", s.interval)
}

// Stop cancels the loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Scan(ctx)
		}
	}
}

// Scan walks all profiles and evaluates the time-based trigger predicates.
// Exported so tests can drive it without real sleeps.
func (s *Scheduler) Scan(ctx context.Context) {
	now := s.clock().UTC()

	var profiles []models.Profile
	if err := s.db.WithContext(ctx).Where("notify_enabled = ?", true).Find(&profiles).Error; err != nil {
		s.logger.Errorf("scheduler scan: load profiles: %v", err)
		return
	}
	if len(profiles) == 0 {
		return
	}

	streaks := map[uint]models.StreakState{}
	var states []models.StreakState
	if err := s.db.WithContext(ctx).Find(&states).Error; err != nil {
		s.logger.Errorf("scheduler scan: load streaks: %v", err)
		return
	}
	for _, st := range states {
		streaks[st.UserID] = st
	}

	for i := range profiles {
		p := &profiles[i]
		st := streaks[p.ID]
		s.evaluateStreakRisk(ctx, p, st, now)
		s.evaluateReminder(ctx, p, st, now)
	}
}

// evaluateStreakRisk fires when a streak of 3+ is one missed day away from
// breaking and no warning went out in the cooldown window.
func (s *Scheduler) evaluateStreakRisk(ctx context.Context, p *models.Profile, st models.StreakState, now time.Time) {
	if st.CurrentStreak < 3 {
		return
	}
	yesterday := checkin.DateUTC(now.Add(-24 * time.Hour))
	if st.LastCheckInDate != yesterday {
		return
	}
	if s.hasEventSince(ctx, p.ID, models.NotificationStreakRisk, now.Add(-s.riskCool)) {
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{"streak": st.CurrentStreak})
	s.fire(ctx, p, models.NotificationStreakRisk, string(payload), now,
		"Your streak is at risk! Check in today to keep it alive.")
}

// evaluateReminder fires when the user has been inactive past their reminder
// interval and no reminder went out since their last check-in.
func (s *Scheduler) evaluateReminder(ctx context.Context, p *models.Profile, st models.StreakState, now time.Time) {
	interval := s.remindIv
	if p.ReminderIntervalSec > 0 {
		interval = time.Duration(p.ReminderIntervalSec) * time.Second
	}
	if now.Before(p.LastActivityAt.Add(interval)) {
		return
	}

	var sinceLastCheckIn time.Time
	if st.LastCheckInDate != "" {
		if t, err := time.Parse(checkin.DateLayout, st.LastCheckInDate); err == nil {
			sinceLastCheckIn = t
		}
	}
	if s.hasEventSince(ctx, p.ID, models.NotificationCheckinReminder, sinceLastCheckIn) {
		return
	}
	s.fire(ctx, p, models.NotificationCheckinReminder, "", now,
		"Still alive? Open the app and check in.")
}

// fire writes the durable event first (it dedups future scans), then hands off
// to the transport. A transport failure is logged and not retried within this
// scan; the cooldown bounds redelivery. At-most-once per window, best effort.
func (s *Scheduler) fire(ctx context.Context, p *models.Profile, kind, payload string, now time.Time, text string) {
	event := models.NotificationEvent{
		ID:        uuid.NewString(),
		UserID:    p.ID,
		Type:      kind,
		Payload:   payload,
		CreatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&event).Error; err != nil {
		s.logger.Errorf("scheduler: record %s event for user %d: %v", kind, p.ID, err)
		return
	}
	if err := s.sender.Send(ctx, p.TelegramID, text); err != nil {
		s.logger.Warnf("scheduler: send %s to user %d failed: %v", kind, p.ID, err)
	}
}

func (s *Scheduler) hasEventSince(ctx context.Context, userID uint, kind string, since time.Time) bool {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.NotificationEvent{}).
		Where("user_id = ? AND type = ? AND created_at > ?", userID, kind, since).
		Count(&count).Error
	if err != nil {
		// On a storage hiccup, err on the quiet side rather than double-send.
		return true
	}
	return count > 0
}

// questTemplates is the fixed daily quest set.
var questTemplates = []struct {
	Kind   string
	Target int
}{
	{Kind: models.QuestCheckIn, Target: 1},
	{Kind: models.QuestWriteLetter, Target: 1},
	{Kind: models.QuestVisitApp, Target: 1},
}

// SeedUserQuests creates today's quest slots for a single user, used when a
// profile is created mid-day so the user does not wait for the next reset.
func SeedUserQuests(ctx context.Context, db *gorm.DB, userID uint, now time.Time, rewardXP int) error {
	day := checkin.DateUTC(now)
	quests := make([]models.DailyQuest, 0, len(questTemplates))
	for _, tpl := range questTemplates {
		quests = append(quests, models.DailyQuest{
			UserID:    userID,
			QuestDate: day,
			Kind:      tpl.Kind,
			Target:    tpl.Target,
			RewardXP:  rewardXP,
		})
	}
	err := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&quests).Error
	if err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
		return err
	}
	return nil
}

// ResetDailyQuests (re)generates the day's quest slots for every user. The
// unique (user_id, quest_date, kind) index plus DO NOTHING on conflict makes
// this safe to re-run after a restart mid-day.
func (s *Scheduler) ResetDailyQuests(ctx context.Context, now time.Time) error {
	day := checkin.DateUTC(now)

	var userIDs []uint
	if err := s.db.WithContext(ctx).Model(&models.Profile{}).Pluck("id", &userIDs).Error; err != nil {
		return err
	}
	if len(userIDs) == 0 {
		return nil
	}

	quests := make([]models.DailyQuest, 0, len(userIDs)*len(questTemplates))
	for _, id := range userIDs {
		for _, tpl := range questTemplates {
			quests = append(quests, models.DailyQuest{
				UserID:    id,
				QuestDate: day,
				Kind:      tpl.Kind,
				Target:    tpl.Target,
				RewardXP:  s.questXP,
			})
		}
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(quests, 500).Error
	if err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
		return err
	}
	s.logger.Infof("daily quests reset for %d users, date=%s", len(userIDs), day)
	return nil
}
