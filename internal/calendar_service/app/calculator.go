package app

import (
	"time"

	"github.com/numberport/golang_services/internal/core_porting/domain"
)

// PortingDateOffsetDays is the UPC validity window between the SMS date and the porting date.
const PortingDateOffsetDays = 4

// HolidaySet holds civil dates; any time-of-day or zone component is dropped.
type HolidaySet map[time.Time]string

func NewHolidaySet(holidays []domain.Holiday) HolidaySet {
	set := make(HolidaySet, len(holidays))
	for _, h := range holidays {
		set[CivilDate(h.Date)] = h.Label
	}
	return set
}

func (s HolidaySet) Contains(t time.Time) bool {
	_, ok := s[CivilDate(t)]
	return ok
}

// CivilDate truncates t to its calendar date, expressed as UTC midnight.
func CivilDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ComputeLeadDate walks back from endDate, one calendar day at a time starting
// with the day before it, until requiredWorkingDays working days have been
// counted. A working day is neither a weekly off day nor a holiday.
//
// The walk covers at most 2*requiredWorkingDays+5 days. When that bound runs
// out first, the last date reached is returned with reached set to false.
func ComputeLeadDate(endDate time.Time, requiredWorkingDays int, holidays HolidaySet, weeklyOff []time.Weekday) (lead time.Time, reached bool, err error) {
	if endDate.IsZero() {
		return time.Time{}, false, domain.NewValidationError("end_date", "must be set")
	}
	if requiredWorkingDays <= 0 {
		return time.Time{}, false, domain.NewValidationError("required_working_days", "must be positive")
	}

	off := make(map[time.Weekday]bool, len(weeklyOff))
	for _, d := range weeklyOff {
		off[d] = true
	}

	bound := 2*requiredWorkingDays + 5
	cur := CivilDate(endDate)
	counted := 0
	for i := 0; i < bound; i++ {
		cur = cur.AddDate(0, 0, -1)
		if off[cur.Weekday()] || holidays.Contains(cur) {
			continue
		}
		counted++
		if counted == requiredWorkingDays {
			return cur, true, nil
		}
	}
	return cur, false, nil
}

// ComputePortingDate returns smsDate plus the fixed UPC validity window.
func ComputePortingDate(smsDate time.Time) time.Time {
	return CivilDate(smsDate).AddDate(0, 0, PortingDateOffsetDays)
}
