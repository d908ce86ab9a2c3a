package checkin

import "time"

// DateLayout is the UTC calendar-date format used for streak bookkeeping.
const DateLayout = "2006-01-02"

// Outcome classifies a check-in attempt relative to the previous one.
type Outcome int

const (
	// OutcomeSameDay: already checked in on this calendar date; no-op.
	OutcomeSameDay Outcome = iota
	// OutcomeIncrement: exactly one day after the last check-in.
	OutcomeIncrement
	// OutcomeSkipUsed: gap of more than one day bridged by a free skip.
	OutcomeSkipUsed
	// OutcomeReset: continuity broken; streak restarts at 1.
	OutcomeReset
)

// DateUTC reduces a timestamp to its UTC calendar date.
func DateUTC(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// Decide applies the streak transition rule for a check-in on date today given
// the previous check-in date. An empty lastDate means first check-in ever.
// forceReset implements the dead-man-switch revival policy: any check-in after
// the deadline restarts the streak regardless of calendar continuity.
func Decide(lastDate, today string, freeSkips int, forceReset bool) Outcome {
	if lastDate == today {
		return OutcomeSameDay
	}
	if lastDate == "" || forceReset {
		return OutcomeReset
	}
	gap := daysBetween(lastDate, today)
	switch {
	case gap == 1:
		return OutcomeIncrement
	case gap > 1 && freeSkips > 0:
		return OutcomeSkipUsed
	default:
		return OutcomeReset
	}
}

// NextStreak returns the streak value after applying an outcome.
func NextStreak(current int, outcome Outcome) int {
	switch outcome {
	case OutcomeIncrement, OutcomeSkipUsed:
		return current + 1
	case OutcomeSameDay:
		return current
	default:
		return 1
	}
}

// milestone bonuses at fixed streak lengths.
type milestone struct {
	XP  int
	Rep int
}

var milestones = map[int]milestone{
	3:   {XP: 15, Rep: 5},
	7:   {XP: 30, Rep: 15},
	14:  {XP: 60, Rep: 40},
	30:  {XP: 150, Rep: 100},
	100: {XP: 500, Rep: 500},
}

// MilestoneBonus returns the fixed XP/reputation bonus for reaching the given
// streak, or zeros when the streak is not a milestone.
func MilestoneBonus(streak int) (xp int, rep int) {
	m, ok := milestones[streak]
	if !ok {
		return 0, 0
	}
	return m.XP, m.Rep
}

func daysBetween(a, b string) int {
	ta, errA := time.Parse(DateLayout, a)
	tb, errB := time.Parse(DateLayout, b)
	if errA != nil || errB != nil {
		// Malformed stored date: treat as broken continuity.
		return 1 << 20
	}
	return int(tb.Sub(ta) / (24 * time.Hour))
}
