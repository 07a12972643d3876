// Package assignment picks a staff member for a booking that did not name
// one.
package assignment

import (
	"errors"

	"github.com/md-rashed-zaman/bizdash/services/booking-service/internal/availability"
)

var ErrNoStaffAvailable = errors.New("no staff member is available at the requested time")

// Candidate is a staff member and the intervals they are already booked for.
type Candidate struct {
	ID   string
	Busy []availability.Interval
}

// RoundRobin starts at cursor (mod len(staff)) and walks the list linearly,
// wrapping once. The first candidate without a conflict wins. next is the
// cursor to persist: one past the chosen index.
func RoundRobin(staff []Candidate, cursor int, want availability.Interval) (id string, next int, err error) {
	n := len(staff)
	if n == 0 {
		return "", cursor, ErrNoStaffAvailable
	}
	start := ((cursor % n) + n) % n
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if !availability.OverlapsAny(want, staff[idx].Busy) {
			return staff[idx].ID, (idx + 1) % n, nil
		}
	}
	return "", cursor, ErrNoStaffAvailable
}

// FirstFree is used when round robin is switched off: the first candidate in
// list order without a conflict.
func FirstFree(staff []Candidate, want availability.Interval) (string, error) {
	id, _, err := RoundRobin(staff, 0, want)
	return id, err
}
