package risk

import (
	"fmt"
	"time"
)

// HourRange is a half-open [Start, End) range of hours. Overnight ranges are
// not supported and must be split in two.
type HourRange struct {
	Start int
	End   int
}

func (h HourRange) Contains(hour int) bool { return hour >= h.Start && hour < h.End }

func (h HourRange) String() string { return fmt.Sprintf("[%02d,%02d)", h.Start, h.End) }

// TimeWindow restricts trading to some hours and weekdays. Days are indexed
// Monday = 0 through Sunday = 6. An empty Hours or Days leaves that dimension
// unrestricted.
type TimeWindow struct {
	Hours    []HourRange
	Days     []int
	Location *time.Location
}

func (w TimeWindow) Validate() error {
	if len(w.Hours) == 0 && len(w.Days) == 0 {
		return configErr(CheckTimeWindow, "allowed_hours", "allowed_hours and allowed_days are both empty")
	}
	for _, h := range w.Hours {
		if h.Start < 0 || h.End > 24 {
			return configErr(CheckTimeWindow, "allowed_hours", "range %s out of 0..24", h)
		}
		if h.Start >= h.End {
			return configErr(CheckTimeWindow, "allowed_hours", "range %s must have start < end; split overnight ranges", h)
		}
	}
	for _, d := range w.Days {
		if d < 0 || d > 6 {
			return configErr(CheckTimeWindow, "allowed_days", "weekday %d out of 0..6", d)
		}
	}
	return nil
}

// WeekdayIndex maps a time.Weekday to the Monday = 0 convention.
func WeekdayIndex(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// Allowed reports whether t falls inside the window.
func (w TimeWindow) Allowed(t time.Time) bool {
	if w.Location != nil {
		t = t.In(w.Location)
	}
	if len(w.Days) > 0 {
		day := WeekdayIndex(t.Weekday())
		ok := false
		for _, d := range w.Days {
			if d == day {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(w.Hours) == 0 {
		return true
	}
	for _, h := range w.Hours {
		if h.Contains(t.Hour()) {
			return true
		}
	}
	return false
}

// Check evaluates the window at t.
func (w TimeWindow) Check(t time.Time) (CheckResult, error) {
	if err := w.Validate(); err != nil {
		return CheckResult{}, err
	}
	if w.Location != nil {
		t = t.In(w.Location)
	}
	if w.Allowed(t) {
		return pass(CheckTimeWindow, float64(t.Hour()), 0), nil
	}
	return fail(CheckTimeWindow, float64(t.Hour()), 0,
		"outside trading window at %s %02d:%02d", t.Weekday(), t.Hour(), t.Minute()), nil
}
