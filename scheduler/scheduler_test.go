package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/imaliveapp/imalive/checkin"
	"github.com/imaliveapp/imalive/models"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []int64
}

func (r *recordingSender) Send(ctx context.Context, chatID int64, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, chatID)
	return nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

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
	if err := db.AutoMigrate(&models.Profile{}, &models.StreakState{}, &models.NotificationEvent{}, &models.DailyQuest{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestScheduler(db *gorm.DB, sender *recordingSender, now *time.Time) *Scheduler {
	return New(Config{
		DB:                      db,
		Sender:                  sender,
		Interval:                time.Hour,
		StreakRiskCooldown:      12 * time.Hour,
		DefaultReminderInterval: 24 * time.Hour,
		QuestRewardXP:           20,
		Clock:                   func() time.Time { return *now },
	})
}

func seedUser(t *testing.T, db *gorm.DB, telegramID int64, lastActivity time.Time) *models.Profile {
	t.Helper()
	p := &models.Profile{TelegramID: telegramID, NotifyEnabled: true, LastActivityAt: lastActivity}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("create profile: %v", err)
	}
	return p
}

func eventCount(t *testing.T, db *gorm.DB, userID uint, kind string) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&models.NotificationEvent{}).Where("user_id = ? AND type = ?", userID, kind).Count(&n).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	return n
}

func TestStreakRiskFiresOncePerCooldown(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	sender := &recordingSender{}
	s := newTestScheduler(db, sender, &now)
	ctx := context.Background()

	p := seedUser(t, db, 100, now)
	yesterday := checkin.DateUTC(now.Add(-24 * time.Hour))
	if err := db.Create(&models.StreakState{UserID: p.ID, CurrentStreak: 5, LastCheckInDate: yesterday}).Error; err != nil {
		t.Fatalf("seed streak: %v", err)
	}

	s.Scan(ctx)
	if n := eventCount(t, db, p.ID, models.NotificationStreakRisk); n != 1 {
		t.Fatalf("expected 1 streak risk event, got %d", n)
	}
	if sender.count() != 1 {
		t.Fatalf("expected 1 send, got %d", sender.count())
	}

	// Re-scans within the cooldown are silent.
	now = now.Add(3 * time.Hour)
	s.Scan(ctx)
	now = now.Add(3 * time.Hour)
	s.Scan(ctx)
	if n := eventCount(t, db, p.ID, models.NotificationStreakRisk); n != 1 {
		t.Fatalf("cooldown violated: %d events", n)
	}

	// Past the cooldown, same calendar day, the warning may repeat.
	now = now.Add(7 * time.Hour)
	s.Scan(ctx)
	if n := eventCount(t, db, p.ID, models.NotificationStreakRisk); n != 2 {
		t.Fatalf("expected repeat after cooldown, got %d events", n)
	}
}

func TestStreakRiskSkipsShortAndSafeStreaks(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	sender := &recordingSender{}
	s := newTestScheduler(db, sender, &now)
	ctx := context.Background()

	yesterday := checkin.DateUTC(now.Add(-24 * time.Hour))
	today := checkin.DateUTC(now)

	short := seedUser(t, db, 101, now)
	db.Create(&models.StreakState{UserID: short.ID, CurrentStreak: 2, LastCheckInDate: yesterday})

	safe := seedUser(t, db, 102, now)
	db.Create(&models.StreakState{UserID: safe.ID, CurrentStreak: 10, LastCheckInDate: today})

	s.Scan(ctx)
	if n := eventCount(t, db, short.ID, models.NotificationStreakRisk); n != 0 {
		t.Fatalf("streak below 3 must not warn, got %d events", n)
	}
	if n := eventCount(t, db, safe.ID, models.NotificationStreakRisk); n != 0 {
		t.Fatalf("already checked in today must not warn, got %d events", n)
	}
}

func TestReminderFiresOncePerCheckInGap(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	sender := &recordingSender{}
	s := newTestScheduler(db, sender, &now)
	ctx := context.Background()

	// Inactive for 30h with the default 24h reminder interval.
	p := seedUser(t, db, 103, now.Add(-30*time.Hour))
	lastCheckIn := checkin.DateUTC(now.Add(-48 * time.Hour))
	if err := db.Create(&models.StreakState{UserID: p.ID, CurrentStreak: 1, LastCheckInDate: lastCheckIn}).Error; err != nil {
		t.Fatalf("seed streak: %v", err)
	}

	s.Scan(ctx)
	if n := eventCount(t, db, p.ID, models.NotificationCheckinReminder); n != 1 {
		t.Fatalf("expected 1 reminder, got %d", n)
	}

	// No repeat until the user checks in again, no matter how many scans run.
	now = now.Add(6 * time.Hour)
	s.Scan(ctx)
	now = now.Add(6 * time.Hour)
	s.Scan(ctx)
	if n := eventCount(t, db, p.ID, models.NotificationCheckinReminder); n != 1 {
		t.Fatalf("reminder repeated without a new check-in: %d events", n)
	}
}

func TestReminderRespectsPerUserInterval(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	sender := &recordingSender{}
	s := newTestScheduler(db, sender, &now)
	ctx := context.Background()

	// 6h custom interval, inactive for 8h: fires despite the 24h default.
	p := seedUser(t, db, 104, now.Add(-8*time.Hour))
	if err := db.Model(&models.Profile{}).Where("id = ?", p.ID).Update("reminder_interval_sec", 6*60*60).Error; err != nil {
		t.Fatalf("set interval: %v", err)
	}

	s.Scan(ctx)
	if n := eventCount(t, db, p.ID, models.NotificationCheckinReminder); n != 1 {
		t.Fatalf("custom interval ignored, got %d events", n)
	}
}

func TestScanSkipsMutedProfiles(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	sender := &recordingSender{}
	s := newTestScheduler(db, sender, &now)
	ctx := context.Background()

	p := &models.Profile{TelegramID: 105, NotifyEnabled: false, LastActivityAt: now.Add(-72 * time.Hour)}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("create profile: %v", err)
	}
	// Create skips the zero value because of the column's default:true tag,
	// so force the column to actually hold false.
	if err := db.Model(p).Update("notify_enabled", false).Error; err != nil {
		t.Fatalf("mute profile: %v", err)
	}

	s.Scan(ctx)
	if sender.count() != 0 {
		t.Fatalf("muted profile received %d sends", sender.count())
	}
}

func TestResetDailyQuestsIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2026, 3, 10, 0, 0, 5, 0, time.UTC)
	sender := &recordingSender{}
	s := newTestScheduler(db, sender, &now)
	ctx := context.Background()

	seedUser(t, db, 106, now)
	seedUser(t, db, 107, now)

	if err := s.ResetDailyQuests(ctx, now); err != nil {
		t.Fatalf("first reset: %v", err)
	}
	if err := s.ResetDailyQuests(ctx, now); err != nil {
		t.Fatalf("second reset: %v", err)
	}

	var n int64
	db.Model(&models.DailyQuest{}).Where("quest_date = ?", checkin.DateUTC(now)).Count(&n)
	if n != 2*int64(len(questTemplates)) {
		t.Fatalf("expected %d quest rows, got %d", 2*len(questTemplates), n)
	}
}

func TestSeedUserQuestsMidDay(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	ctx := context.Background()

	p := seedUser(t, db, 108, now)
	if err := SeedUserQuests(ctx, db, p.ID, now, 20); err != nil {
		t.Fatalf("seed: %v", err)
	}
	// A later daily reset must not duplicate the mid-day seed.
	if err := SeedUserQuests(ctx, db, p.ID, now, 20); err != nil {
		t.Fatalf("re-seed: %v", err)
	}

	var n int64
	db.Model(&models.DailyQuest{}).Where("user_id = ?", p.ID).Count(&n)
	if n != int64(len(questTemplates)) {
		t.Fatalf("expected %d quest rows, got %d", len(questTemplates), n)
	}
}
