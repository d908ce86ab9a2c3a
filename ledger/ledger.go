package ledger

import (
	"context"
	"errors"
	"math"

	"gorm.io/gorm"

	"github.com/imaliveapp/imalive/models"
	"github.com/imaliveapp/imalive/utils"
)

var (
	// ErrInvalidAmount rejects non-positive grants and spends at the boundary.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrUnknownSource rejects reward sources outside the registry.
	ErrUnknownSource = errors.New("unknown reward source")
	// ErrInsufficientXP is the recoverable "not enough spendable XP" condition.
	ErrInsufficientXP = errors.New("insufficient spendable xp")
	// ErrProfileNotFound indicates the user has no ledger row.
	ErrProfileNotFound = errors.New("profile not found")
)

// Balances is the post-mutation snapshot returned to callers. Level is always
// computed from experience, never read from storage.
type Balances struct {
	Experience    int64 `json:"experience"`
	TotalXPEarned int64 `json:"total_xp_earned"`
	SpendableXP   int64 `json:"spendable_xp"`
	Reputation    int   `json:"reputation"`
	Level         int   `json:"level"`
}

// LevelOf derives level from experience: floor(sqrt(exp/100)) + 1. This is the
// only path to a level value in the codebase.
func LevelOf(experience int64) int {
	if experience < 0 {
		return 1
	}
	return int(math.Sqrt(float64(experience)/100.0)) + 1
}

// Ledger owns all XP and reputation mutations against the profile row.
type Ledger struct {
	db    *gorm.DB
	cache *utils.Cache
}

// New creates a Ledger over the given storage and cache handles.
func New(db *gorm.DB, cache *utils.Cache) *Ledger {
	return &Ledger{db: db, cache: cache}
}

// GrantPoints returns round(amount*multiplier) as applied to all three XP
// columns. Exposed so callers can compute an award before committing it.
func GrantPoints(amount int, multiplier float64) int64 {
	if multiplier == 0 {
		multiplier = 1
	}
	return int64(math.Round(float64(amount) * multiplier))
}

// ApplyGrant performs the XP grant inside an existing transaction. All three
// fields move together in one UPDATE; there is no code path that touches one
// of them without the others. Returns the number of points applied.
func ApplyGrant(tx *gorm.DB, userID uint, amount int, source Source, multiplier float64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if !source.Valid() {
		return 0, ErrUnknownSource
	}
	points := GrantPoints(amount, multiplier)
	res := tx.Model(&models.Profile{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"experience":      gorm.Expr("experience + ?", points),
		"total_xp_earned": gorm.Expr("total_xp_earned + ?", points),
		"spendable_xp":    gorm.Expr("spendable_xp + ?", points),
	})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, ErrProfileNotFound
	}
	return points, nil
}

// GrantXP applies an XP grant as a single atomic transaction and invalidates
// the user's cached profile before returning.
func (l *Ledger) GrantXP(ctx context.Context, userID uint, amount int, source Source, multiplier float64) (Balances, error) {
	var balances Balances
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := ApplyGrant(tx, userID, amount, source, multiplier); err != nil {
			return err
		}
		b, err := balancesTx(tx, userID)
		if err != nil {
			return err
		}
		balances = b
		return nil
	})
	if err != nil {
		return Balances{}, err
	}
	l.invalidate(userID)
	return balances, nil
}

// SpendXP decrements spendable XP iff the balance covers the amount. The guard
// lives in the UPDATE's WHERE clause, so concurrent spenders cannot both pass
// a stale read. Experience and total_xp_earned are untouched.
func (l *Ledger) SpendXP(ctx context.Context, userID uint, amount int) (Balances, error) {
	if amount <= 0 {
		return Balances{}, ErrInvalidAmount
	}
	var balances Balances
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ApplySpend(tx, userID, amount); err != nil {
			return err
		}
		b, err := balancesTx(tx, userID)
		if err != nil {
			return err
		}
		balances = b
		return nil
	})
	if err != nil {
		return Balances{}, err
	}
	l.invalidate(userID)
	return balances, nil
}

// ApplySpend performs the conditional spend inside an existing transaction,
// for callers that must couple the spend with its effect (shop purchases).
func ApplySpend(tx *gorm.DB, userID uint, amount int) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	res := tx.Model(&models.Profile{}).
		Where("id = ? AND spendable_xp >= ?", userID, amount).
		Update("spendable_xp", gorm.Expr("spendable_xp - ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := tx.Model(&models.Profile{}).Where("id = ?", userID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrProfileNotFound
		}
		return ErrInsufficientXP
	}
	return nil
}

// GrantReputation applies a signed reputation delta. Penalties pass a negative
// delta; there is no floor or ceiling.
func (l *Ledger) GrantReputation(ctx context.Context, userID uint, delta int) (Balances, error) {
	if delta == 0 {
		return l.BalancesOf(ctx, userID)
	}
	var balances Balances
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ApplyReputation(tx, userID, delta); err != nil {
			return err
		}
		b, err := balancesTx(tx, userID)
		if err != nil {
			return err
		}
		balances = b
		return nil
	})
	if err != nil {
		return Balances{}, err
	}
	l.invalidate(userID)
	return balances, nil
}

// ApplyReputation performs the reputation delta inside an existing transaction.
func ApplyReputation(tx *gorm.DB, userID uint, delta int) error {
	res := tx.Model(&models.Profile{}).Where("id = ?", userID).
		Update("reputation", gorm.Expr("reputation + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// BalancesOf reads the current balances from the system of record.
func (l *Ledger) BalancesOf(ctx context.Context, userID uint) (Balances, error) {
	return balancesTx(l.db.WithContext(ctx), userID)
}

func balancesTx(tx *gorm.DB, userID uint) (Balances, error) {
	var p models.Profile
	if err := tx.First(&p, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Balances{}, ErrProfileNotFound
		}
		return Balances{}, err
	}
	return BalancesFromProfile(&p), nil
}

// BalancesFromProfile builds a Balances snapshot with the derived level.
func BalancesFromProfile(p *models.Profile) Balances {
	return Balances{
		Experience:    p.Experience,
		TotalXPEarned: p.TotalXPEarned,
		SpendableXP:   p.SpendableXP,
		Reputation:    p.Reputation,
		Level:         LevelOf(p.Experience),
	}
}

func (l *Ledger) invalidate(userID uint) {
	if l.cache == nil {
		return
	}
	l.cache.Delete(utils.ProfileCacheKey(userID), utils.StreakCacheKey(userID))
	l.cache.DeleteByPattern(utils.LeaderboardCachePrefix)
}
