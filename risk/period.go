package risk

import (
	"fmt"
	"time"
)

// Period is the kind of calendar window a loss limit is tracked over.
type Period string

const (
	Daily   Period = "daily"
	Weekly  Period = "weekly"
	Monthly Period = "monthly"
)

var periods = []Period{Daily, Weekly, Monthly}

// Start returns the start of the window of kind p that contains t, in loc.
// Weeks start on Monday (ISO 8601).
func (p Period) Start(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	switch p {
	case Weekly:
		day := time.Date(y, m, d, 0, 0, 0, 0, loc)
		back := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -back)
	case Monthly:
		return time.Date(y, m, 1, 0, 0, 0, 0, loc)
	default:
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	}
}

func (p Period) check() Check {
	switch p {
	case Weekly:
		return CheckWeeklyLoss
	case Monthly:
		return CheckMonthlyLoss
	default:
		return CheckDailyLoss
	}
}

// Window is the loss accounting for one period kind.
type Window struct {
	Start time.Time `json:"start"`
	// LossAccum is the sum of equity drops since Start. Gains never offset it.
	LossAccum float64 `json:"loss_accum"`
	// ReferenceBalance is the balance seen at rollover, or the initial balance
	// before the first rollover.
	ReferenceBalance float64 `json:"reference_balance"`
	Rollovers        int     `json:"rollovers"`
}

// PeriodLoss fails when the loss accumulated in the current window of kind p
// reaches maxPct of the window's reference balance.
func (s *State) PeriodLoss(p Period, maxPct float64) (CheckResult, error) {
	c := p.check()
	if maxPct <= 0 {
		return CheckResult{}, configErr(c, "max_loss_percentage", "must be positive, got %v", maxPct)
	}
	if !s.Initialized {
		return notEvaluated(c, ErrNoSnapshot), nil
	}
	w, ok := s.Windows[p]
	if !ok {
		return notEvaluated(c, fmt.Errorf("no %s window", p)), nil
	}
	ref := w.ReferenceBalance
	if ref <= 0 {
		ref = s.InitialBalance
	}
	if ref <= 0 {
		return notEvaluated(c, fmt.Errorf("%s reference balance is not positive", p)), nil
	}

	lossPct := w.LossAccum * 100 / ref
	if lossPct >= maxPct {
		return fail(c, lossPct, maxPct,
			"%s loss %.2f%% (%.2f since %s) reached limit %.2f%%",
			p, lossPct, w.LossAccum, w.Start.Format("2006-01-02"), maxPct), nil
	}
	return pass(c, lossPct, maxPct), nil
}
