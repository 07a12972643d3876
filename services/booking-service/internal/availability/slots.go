package availability

import "time"

type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps is the booking conflict rule: existing.start < new.end && existing.end > new.start.
// Touching intervals (one ends exactly when the other starts) do not conflict.
func Overlaps(existing, candidate Interval) bool {
	return existing.Start.Before(candidate.End) && existing.End.After(candidate.Start)
}

func OverlapsAny(candidate Interval, busy []Interval) bool {
	for _, b := range busy {
		if Overlaps(b, candidate) {
			return true
		}
	}
	return false
}

// Contains reports whether inner lies fully inside outer.
func Contains(outer, inner Interval) bool {
	return !inner.Start.Before(outer.Start) && !inner.End.After(outer.End)
}

// AvailableSlots returns slot start times within [windowStart, windowEnd) where a booking of
// length duration would not overlap any of the busy intervals.
//
// All times are expected to be in the same location (timezone).
func AvailableSlots(windowStart, windowEnd time.Time, duration, step time.Duration, busy []Interval, now time.Time) []time.Time {
	if duration <= 0 || step <= 0 {
		return nil
	}
	if !windowEnd.After(windowStart) || windowStart.Add(duration).After(windowEnd) {
		return nil
	}

	var slots []time.Time
	for t := windowStart; !t.Add(duration).After(windowEnd); t = t.Add(step) {
		if t.Before(now) {
			continue
		}
		if !OverlapsAny(Interval{Start: t, End: t.Add(duration)}, busy) {
			slots = append(slots, t)
		}
	}
	return slots
}

// DayWindow returns the opening hours of the given local calendar day as an
// absolute interval. ok is false on closed days.
func DayWindow(day time.Time, loc *time.Location, openMinute, closeMinute int, open func(time.Weekday) bool) (Interval, bool) {
	if closeMinute <= openMinute {
		return Interval{}, false
	}
	y, m, d := day.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, loc)
	if open != nil && !open(midnight.Weekday()) {
		return Interval{}, false
	}
	return Interval{
		Start: midnight.Add(time.Duration(openMinute) * time.Minute),
		End:   midnight.Add(time.Duration(closeMinute) * time.Minute),
	}, true
}
