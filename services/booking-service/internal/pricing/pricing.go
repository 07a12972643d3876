// Package pricing holds the money arithmetic shared by bookings and orders.
// All amounts are integer cents.
package pricing

import "github.com/md-rashed-zaman/bizdash/services/booking-service/internal/model"

// PercentOf returns amount*percent/100 rounded half up.
func PercentOf(amount, percent int64) int64 {
	if amount <= 0 || percent <= 0 {
		return 0
	}
	return (amount*percent + 50) / 100
}

// BasisPoints returns amount*bps/10000 rounded half up.
func BasisPoints(amount, bps int64) int64 {
	if amount <= 0 || bps <= 0 {
		return 0
	}
	return (amount*bps + 5000) / 10000
}

// Clamp bounds v to [0, max].
func Clamp(v, max int64) int64 {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

// Deposit is the amount due up front for a booking of the given total.
// A fixed deposit never exceeds the total.
func Deposit(policyType string, value, total int64) int64 {
	if total <= 0 {
		return 0
	}
	switch policyType {
	case model.DepositPercent:
		if value >= 100 {
			return total
		}
		return PercentOf(total, value)
	case model.DepositFixed:
		return Clamp(value, total)
	default:
		return 0
	}
}
