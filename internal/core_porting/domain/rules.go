package domain

import "time"

type Holiday struct {
	Date  time.Time `json:"date" mapstructure:"date"`
	Label string    `json:"label" mapstructure:"label"`
}

type FeeItem struct {
	Label       string `json:"label" mapstructure:"label"`
	AmountPaise int64  `json:"amount_paise" mapstructure:"amount_paise"`
}

// PortingRules is the per-circle configuration, keyed by canonical circle key.
type PortingRules struct {
	CircleKey           string         `json:"circle_key"`
	DisplayName         string         `json:"display_name"`
	WorkingDaysRequired int            `json:"working_days_required"`
	Holidays            []Holiday      `json:"holidays"`
	WeeklyOffDays       []time.Weekday `json:"weekly_off_days"`
	MinimumUsageDays    int            `json:"minimum_usage_days"`
	Fees                []FeeItem      `json:"fees"`
	Active              bool           `json:"active"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// DefaultWeeklyOffDays applies when a rule set does not list its own.
var DefaultWeeklyOffDays = []time.Weekday{time.Saturday, time.Sunday}

// OffDays returns the configured weekly off days or the default set.
func (r *PortingRules) OffDays() []time.Weekday {
	if len(r.WeeklyOffDays) == 0 {
		return DefaultWeeklyOffDays
	}
	return r.WeeklyOffDays
}
