package checkin

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/imaliveapp/imalive/ledger"
	"github.com/imaliveapp/imalive/models"
	"github.com/imaliveapp/imalive/utils"
)

// errAlreadyCheckedIn aborts the transaction with zero side effects when the
// same-day guard fires. It never escapes CheckIn; callers see the flag on the
// Result instead of an error, since "already checked in" is success-shaped.
var errAlreadyCheckedIn = errors.New("already checked in today")

// Config carries the reward knobs and default dead-man-switch window.
type Config struct {
	BaseXP           int
	ComebackXP       int
	DeadManWindowSec int
}

// Result reports the effect of a check-in attempt.
type Result struct {
	AlreadyCheckedIn bool           `json:"already_checked_in"`
	Streak           int            `json:"streak"`
	LongestStreak    int            `json:"longest_streak"`
	XPGranted        int64          `json:"xp_granted"`
	RepGranted       int            `json:"rep_granted"`
	UsedFreeSkip     bool           `json:"used_free_skip"`
	Comeback         bool           `json:"comeback"`
	Balances         ledger.Balances `json:"balances"`
}

// Status is the read-side view of the dead-man switch and streak.
type Status struct {
	CurrentStreak   int       `json:"current_streak"`
	LongestStreak   int       `json:"longest_streak"`
	LastCheckInDate string    `json:"last_checkin_date"`
	FreeSkips       int       `json:"free_skips"`
	CheckedInToday  bool      `json:"checked_in_today"`
	Alive           bool      `json:"alive"`
	Deadline        time.Time `json:"deadline"`
}

// Engine owns the per-user daily check-in state machine. All writes for one
// check-in happen inside a single storage transaction; a partial application
// (streak moved but XP not granted, or vice versa) is never observable.
type Engine struct {
	db    *gorm.DB
	cache *utils.Cache
	cfg   Config
	now   func() time.Time
}

// NewEngine creates an Engine. The clock is injectable for tests.
func NewEngine(db *gorm.DB, cache *utils.Cache, cfg Config) *Engine {
	return &Engine{db: db, cache: cache, cfg: cfg, now: time.Now}
}

// WithClock overrides the engine clock. Tests only.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// CheckIn records today's check-in for the user: streak transition, XP grant
// (base + milestone + comeback, doubled under an active xp_boost_2x perk),
// milestone reputation and the dead-man-switch activity bump, all in one
// transaction. A second same-day call returns AlreadyCheckedIn with zero side
// effects; the unique (user_id, checkin_date) index arbitrates the race where
// two concurrent requests both observe "not yet checked in".
func (e *Engine) CheckIn(ctx context.Context, userID uint) (Result, error) {
	now := e.now().UTC()
	today := DateUTC(now)
	var result Result

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var profile models.Profile
		if err := tx.First(&profile, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ledger.ErrProfileNotFound
			}
			return err
		}

		var state models.StreakState
		err := tx.Where("user_id = ?", userID).First(&state).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		// A StreakState row can predate the first check-in (buying a streak
		// freeze creates one), so "first check-in" means an empty last date,
		// not a missing row.
		firstCheckIn := state.LastCheckInDate == ""

		// Revival after the deadline always resets the streak.
		dead := !firstCheckIn && !profile.Alive(now, e.cfg.DeadManWindowSec)

		outcome := Decide(state.LastCheckInDate, today, state.FreeSkips, dead)
		if outcome == OutcomeSameDay {
			return errAlreadyCheckedIn
		}

		streak := NextStreak(state.CurrentStreak, outcome)
		usedSkip := outcome == OutcomeSkipUsed
		comeback := outcome == OutcomeReset && !firstCheckIn

		award := e.cfg.BaseXP
		milestoneXP, milestoneRep := MilestoneBonus(streak)
		award += milestoneXP
		if comeback {
			award += e.cfg.ComebackXP
		}
		multiplier := 1.0
		if profile.XPBoostActive(now) {
			multiplier = 2.0
		}
		points := ledger.GrantPoints(award, multiplier)

		// The insert is the concurrency guard: a losing concurrent writer gets
		// a duplicate-key error here and the whole transaction rolls back.
		record := models.CheckIn{
			UserID:         userID,
			CheckinDate:    today,
			XPAwarded:      int(points),
			RepAwarded:     milestoneRep,
			StreakAchieved: streak,
			UsedFreeSkip:   usedSkip,
		}
		if err := tx.Create(&record).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errAlreadyCheckedIn
			}
			return err
		}

		state.UserID = userID
		state.CurrentStreak = streak
		if streak > state.LongestStreak {
			state.LongestStreak = streak
		}
		state.LastCheckInDate = today
		if usedSkip {
			state.FreeSkips--
		}
		if err := tx.Save(&state).Error; err != nil {
			return err
		}

		if _, err := ledger.ApplyGrant(tx, userID, award, ledger.SourceCheckIn, multiplier); err != nil {
			return err
		}
		if milestoneRep > 0 {
			if err := ledger.ApplyReputation(tx, userID, milestoneRep); err != nil {
				return err
			}
		}

		// Restart the dead-man-switch deadline.
		if err := tx.Model(&models.Profile{}).Where("id = ?", userID).
			Update("last_activity_at", now).Error; err != nil {
			return err
		}

		// Daily quest progress for today's check_in slot, if present.
		if err := tx.Model(&models.DailyQuest{}).
			Where("user_id = ? AND quest_date = ? AND kind = ? AND progress < target",
				userID, today, models.QuestCheckIn).
			Update("progress", gorm.Expr("progress + 1")).Error; err != nil {
			return err
		}

		balances, err := reloadBalances(tx, userID)
		if err != nil {
			return err
		}
		result = Result{
			Streak:        streak,
			LongestStreak: state.LongestStreak,
			XPGranted:     points,
			RepGranted:    milestoneRep,
			UsedFreeSkip:  usedSkip,
			Comeback:      comeback,
			Balances:      balances,
		}
		return nil
	})

	if err != nil {
		if errors.Is(err, errAlreadyCheckedIn) {
			status, serr := e.Status(ctx, userID)
			if serr != nil {
				return Result{}, serr
			}
			return Result{
				AlreadyCheckedIn: true,
				Streak:           status.CurrentStreak,
				LongestStreak:    status.LongestStreak,
			}, nil
		}
		return Result{}, err
	}

	e.invalidate(userID, today)
	return result, nil
}

// Status computes the streak and dead-man-switch view at read time. There is
// no stored "dead" flag; aliveness is now < deadline.
func (e *Engine) Status(ctx context.Context, userID uint) (Status, error) {
	now := e.now().UTC()

	var profile models.Profile
	if err := e.db.WithContext(ctx).First(&profile, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Status{}, ledger.ErrProfileNotFound
		}
		return Status{}, err
	}

	var state models.StreakState
	err := e.db.WithContext(ctx).Where("user_id = ?", userID).First(&state).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return Status{}, err
	}

	return Status{
		CurrentStreak:   state.CurrentStreak,
		LongestStreak:   state.LongestStreak,
		LastCheckInDate: state.LastCheckInDate,
		FreeSkips:       state.FreeSkips,
		CheckedInToday:  state.LastCheckInDate == DateUTC(now),
		Alive:           profile.Alive(now, e.cfg.DeadManWindowSec),
		Deadline:        profile.Deadline(e.cfg.DeadManWindowSec),
	}, nil
}

// AddFreeSkip credits a streak freeze, capped so skips cannot be stockpiled.
func (e *Engine) AddFreeSkip(ctx context.Context, userID uint, cap int) error {
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var state models.StreakState
		err := tx.Where("user_id = ?", userID).First(&state).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			state = models.StreakState{UserID: userID}
		} else if err != nil {
			return err
		}
		if state.FreeSkips >= cap {
			return nil
		}
		state.FreeSkips++
		return tx.Save(&state).Error
	})
	if err != nil {
		return err
	}
	e.invalidate(userID, DateUTC(e.now()))
	return nil
}

func (e *Engine) invalidate(userID uint, today string) {
	if e.cache == nil {
		return
	}
	e.cache.Delete(
		utils.ProfileCacheKey(userID),
		utils.StreakCacheKey(userID),
		utils.QuestsCacheKey(userID, today),
	)
	e.cache.DeleteByPattern(utils.LeaderboardCachePrefix)
}

func reloadBalances(tx *gorm.DB, userID uint) (ledger.Balances, error) {
	var p models.Profile
	if err := tx.First(&p, userID).Error; err != nil {
		return ledger.Balances{}, err
	}
	return ledger.BalancesFromProfile(&p), nil
}
