package ledger

import "testing"

func TestLevelOf(t *testing.T) {
	cases := []struct {
		experience int64
		want       int
	}{
		{0, 1},
		{99, 1},
		{100, 2},
		{399, 2},
		{400, 3},
		{899, 3},
		{900, 4},
		{10000, 11},
		{-5, 1},
	}
	for _, tc := range cases {
		if got := LevelOf(tc.experience); got != tc.want {
			t.Errorf("LevelOf(%d) = %d, want %d", tc.experience, got, tc.want)
		}
	}
}

func TestLevelOfMonotonic(t *testing.T) {
	prev := LevelOf(0)
	for exp := int64(1); exp <= 50000; exp += 7 {
		lvl := LevelOf(exp)
		if lvl < prev {
			t.Fatalf("level decreased: LevelOf(%d)=%d < previous %d", exp, lvl, prev)
		}
		prev = lvl
	}
}

func TestGrantPoints(t *testing.T) {
	if got := GrantPoints(10, 2); got != 20 {
		t.Errorf("GrantPoints(10, 2) = %d, want 20", got)
	}
	if got := GrantPoints(15, 1.5); got != 23 {
		t.Errorf("GrantPoints(15, 1.5) = %d, want 23", got)
	}
	// Zero multiplier means "no multiplier", not "wipe the grant".
	if got := GrantPoints(10, 0); got != 10 {
		t.Errorf("GrantPoints(10, 0) = %d, want 10", got)
	}
}

func TestSourceValid(t *testing.T) {
	for _, s := range []Source{SourceCheckIn, SourceCreateLetter, SourceDailyQuest, SourceGiftEffect} {
		if !s.Valid() {
			t.Errorf("expected %q to be a valid source", s)
		}
	}
	for _, s := range []Source{"", "hack", "CHECK_IN", "checkin"} {
		if s.Valid() {
			t.Errorf("expected %q to be rejected", s)
		}
	}
}
