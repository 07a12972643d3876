package availability

import (
	"testing"
	"time"
)

func TestAvailableSlots_Basic(t *testing.T) {
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)
	windowStart := day.Add(9 * time.Hour)
	windowEnd := day.Add(10 * time.Hour)

	busy := []Interval{
		{Start: day.Add(9*time.Hour + 15*time.Minute), End: day.Add(9*time.Hour + 45*time.Minute)},
	}

	slots := AvailableSlots(windowStart, windowEnd, 15*time.Minute, 15*time.Minute, busy, day)
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
	if !slots[0].Equal(day.Add(9 * time.Hour)) {
		t.Fatalf("expected first slot 09:00, got %s", slots[0].Format(time.RFC3339))
	}
	if !slots[1].Equal(day.Add(9*time.Hour + 45*time.Minute)) {
		t.Fatalf("expected second slot 09:45, got %s", slots[1].Format(time.RFC3339))
	}
}

func TestAvailableSlots_SkipsPast(t *testing.T) {
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)
	now := day.Add(9*time.Hour + 31*time.Minute)

	slots := AvailableSlots(day.Add(9*time.Hour), day.Add(10*time.Hour), 15*time.Minute, 15*time.Minute, nil, now)
	if len(slots) != 1 || !slots[0].Equal(day.Add(9*time.Hour+45*time.Minute)) {
		t.Fatalf("expected only 09:45, got %v", slots)
	}
}

func TestOverlaps(t *testing.T) {
	at := func(h, m int) time.Time { return time.Date(2026, 3, 2, h, m, 0, 0, time.UTC) }
	existing := Interval{Start: at(10, 0), End: at(11, 0)}

	cases := []struct {
		name string
		cand Interval
		want bool
	}{
		{"inside", Interval{at(10, 15), at(10, 45)}, true},
		{"covers", Interval{at(9, 0), at(12, 0)}, true},
		{"overlaps start", Interval{at(9, 30), at(10, 30)}, true},
		{"overlaps end", Interval{at(10, 30), at(11, 30)}, true},
		{"ends at start", Interval{at(9, 0), at(10, 0)}, false},
		{"starts at end", Interval{at(11, 0), at(12, 0)}, false},
		{"disjoint", Interval{at(13, 0), at(14, 0)}, false},
	}
	for _, tc := range cases {
		if got := Overlaps(existing, tc.cand); got != tc.want {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestDayWindowHonoursTimezoneAndClosedDays(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	weekdaysOnly := func(d time.Weekday) bool { return d != time.Saturday && d != time.Sunday }

	win, ok := DayWindow(time.Date(2026, 7, 6, 0, 0, 0, 0, time.UTC), loc, 9*60, 17*60, weekdaysOnly)
	if !ok {
		t.Fatal("monday should be open")
	}
	if got := win.Start.UTC().Hour(); got != 13 {
		t.Fatalf("09:00 EDT should be 13:00 UTC, got %d", got)
	}

	if _, ok := DayWindow(time.Date(2026, 7, 5, 0, 0, 0, 0, time.UTC), loc, 9*60, 17*60, weekdaysOnly); ok {
		t.Fatal("sunday should be closed")
	}
}
