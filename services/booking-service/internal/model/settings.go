package model

import "time"

const (
	DepositNone    = "none"
	DepositPercent = "percent"
	DepositFixed   = "fixed"
)

// BookingSettings is the per-tenant booking configuration.
type BookingSettings struct {
	Timezone        string `json:"timezone"`
	OpenMinute      int    `json:"open_minute"`
	CloseMinute     int    `json:"close_minute"`
	OpenWeekdays    []int  `json:"open_weekdays"`
	SlotStepMinutes int    `json:"slot_step_minutes"`
	RoundRobin      bool   `json:"round_robin"`
	RoundRobinIndex int    `json:"round_robin_index"`
	DepositType     string `json:"deposit_type"`
	DepositValue    int64  `json:"deposit_value"`
	ReminderHours   []int  `json:"reminder_hours"`
	TaxRateBps      int64  `json:"tax_rate_bps"`
	Currency        string `json:"currency"`
	MinNoticeMins   int    `json:"min_notice_minutes"`
}

func DefaultSettings() BookingSettings {
	return BookingSettings{
		Timezone:        "UTC",
		OpenMinute:      9 * 60,
		CloseMinute:     17 * 60,
		OpenWeekdays:    []int{1, 2, 3, 4, 5},
		SlotStepMinutes: 15,
		DepositType:     DepositNone,
		ReminderHours:   []int{24, 1},
		Currency:        "usd",
	}
}

func (s BookingSettings) Location() *time.Location {
	if loc, err := time.LoadLocation(s.Timezone); err == nil {
		return loc
	}
	return time.UTC
}

func (s BookingSettings) IsOpen(weekday time.Weekday) bool {
	for _, d := range s.OpenWeekdays {
		if d == int(weekday) {
			return true
		}
	}
	return false
}
