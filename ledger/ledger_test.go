package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

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
	// One connection so the in-memory database is shared across the test.
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.Profile{}, &models.StreakState{}, &models.CheckIn{}, &models.DailyQuest{}, &models.NotificationEvent{}, &models.Letter{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func createProfile(t *testing.T, db *gorm.DB, telegramID int64) *models.Profile {
	t.Helper()
	p := &models.Profile{TelegramID: telegramID, Username: "tester"}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("create profile: %v", err)
	}
	return p
}

func TestGrantXPMovesAllThreeFields(t *testing.T) {
	db := openTestDB(t)
	p := createProfile(t, db, 1001)
	lg := New(db, nil)

	balances, err := lg.GrantXP(context.Background(), p.ID, 100, SourceCreateLetter, 1)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if balances.Experience != 100 || balances.TotalXPEarned != 100 || balances.SpendableXP != 100 {
		t.Fatalf("unexpected balances after grant: %+v", balances)
	}
	if balances.Level != LevelOf(100) {
		t.Fatalf("level not derived from experience: %+v", balances)
	}
}

func TestGrantXPMultiplierRounds(t *testing.T) {
	db := openTestDB(t)
	p := createProfile(t, db, 1002)
	lg := New(db, nil)

	balances, err := lg.GrantXP(context.Background(), p.ID, 15, SourceCheckIn, 2)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if balances.Experience != 30 {
		t.Fatalf("expected 30 experience, got %d", balances.Experience)
	}
}

func TestGrantXPRejectsInvalidInput(t *testing.T) {
	db := openTestDB(t)
	p := createProfile(t, db, 1003)
	lg := New(db, nil)
	ctx := context.Background()

	if _, err := lg.GrantXP(ctx, p.ID, 0, SourceCheckIn, 1); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero grant, got %v", err)
	}
	if _, err := lg.GrantXP(ctx, p.ID, -10, SourceCheckIn, 1); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for negative grant, got %v", err)
	}
	if _, err := lg.GrantXP(ctx, p.ID, 10, Source("mystery"), 1); !errors.Is(err, ErrUnknownSource) {
		t.Fatalf("expected ErrUnknownSource, got %v", err)
	}

	// Nothing may have been applied.
	balances, err := lg.BalancesOf(ctx, p.ID)
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	if balances.TotalXPEarned != 0 {
		t.Fatalf("rejected grants must not mutate balances: %+v", balances)
	}
}

func TestTotalXPEarnedIndependentOfSpending(t *testing.T) {
	db := openTestDB(t)
	p := createProfile(t, db, 1004)
	lg := New(db, nil)
	ctx := context.Background()

	grants := []int{100, 50, 25}
	var sum int64
	for _, amount := range grants {
		if _, err := lg.GrantXP(ctx, p.ID, amount, SourceEventClaim, 1); err != nil {
			t.Fatalf("grant %d: %v", amount, err)
		}
		sum += int64(amount)
		if _, err := lg.SpendXP(ctx, p.ID, 10); err != nil {
			t.Fatalf("spend: %v", err)
		}
	}

	balances, err := lg.BalancesOf(ctx, p.ID)
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	if balances.TotalXPEarned != sum {
		t.Fatalf("total_xp_earned = %d, want sum of grants %d", balances.TotalXPEarned, sum)
	}
	if balances.SpendableXP != sum-int64(len(grants))*10 {
		t.Fatalf("spendable_xp = %d, want %d", balances.SpendableXP, sum-int64(len(grants))*10)
	}
	if balances.Experience != sum {
		t.Fatalf("experience = %d, want %d (spending must not touch it)", balances.Experience, sum)
	}
}

func TestSpendXPInsufficientLeavesBalancesUntouched(t *testing.T) {
	db := openTestDB(t)
	p := createProfile(t, db, 1005)
	lg := New(db, nil)
	ctx := context.Background()

	if _, err := lg.GrantXP(ctx, p.ID, 100, SourceCreateLetter, 1); err != nil {
		t.Fatalf("grant: %v", err)
	}

	before, _ := lg.BalancesOf(ctx, p.ID)
	if _, err := lg.SpendXP(ctx, p.ID, 150); !errors.Is(err, ErrInsufficientXP) {
		t.Fatalf("expected ErrInsufficientXP, got %v", err)
	}
	after, _ := lg.BalancesOf(ctx, p.ID)
	if before != after {
		t.Fatalf("rejected spend mutated balances: before=%+v after=%+v", before, after)
	}
	if after.SpendableXP != 100 {
		t.Fatalf("spendable_xp = %d, want 100", after.SpendableXP)
	}
}

func TestGrantReputationAllowsPenalties(t *testing.T) {
	db := openTestDB(t)
	p := createProfile(t, db, 1006)
	lg := New(db, nil)
	ctx := context.Background()

	if _, err := lg.GrantReputation(ctx, p.ID, 15); err != nil {
		t.Fatalf("grant rep: %v", err)
	}
	balances, err := lg.GrantReputation(ctx, p.ID, -40)
	if err != nil {
		t.Fatalf("penalty: %v", err)
	}
	if balances.Reputation != -25 {
		t.Fatalf("reputation = %d, want -25", balances.Reputation)
	}
}

func TestOperationsOnMissingProfile(t *testing.T) {
	db := openTestDB(t)
	lg := New(db, nil)
	ctx := context.Background()

	if _, err := lg.GrantXP(ctx, 999, 10, SourceCheckIn, 1); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound for grant, got %v", err)
	}
	if _, err := lg.SpendXP(ctx, 999, 10); !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound for spend, got %v", err)
	}
}
