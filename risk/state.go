package risk

import (
	"fmt"
	"math"
	"time"

	"github.com/rustyeddy/riskguard/broker"
)

// State is the mutable risk memory of one trading context: balance
// references, loss windows and the losing streak. It is owned by a single
// Protector and is not safe for concurrent mutation on its own.
type State struct {
	Initialized    bool    `json:"initialized"`
	InitialBalance float64 `json:"initial_balance"`
	// PeakBalance is the high-water mark of balance and every equity sample.
	PeakBalance float64 `json:"peak_balance"`

	LastEquity  float64   `json:"last_equity"`
	LastBalance float64   `json:"last_balance"`
	LastTime    time.Time `json:"last_time"`

	Windows           map[Period]Window `json:"windows"`
	ConsecutiveLosses int               `json:"consecutive_losses"`
}

// NewState returns an empty state. initialBalance <= 0 means the balance of
// the first observed snapshot becomes the reference.
func NewState(initialBalance float64) *State {
	return &State{
		InitialBalance: math.Max(initialBalance, 0),
		PeakBalance:    math.Max(initialBalance, 0),
		Windows:        make(map[Period]Window, len(periods)),
	}
}

// Clone returns a deep copy.
func (s *State) Clone() State {
	c := *s
	c.Windows = make(map[Period]Window, len(s.Windows))
	for k, v := range s.Windows {
		c.Windows[k] = v
	}
	return c
}

// Observe folds one account snapshot into the state. The peak is raised
// before any check runs, so a new high-water mark never triggers a stop.
// Each window rolls over before the equity delta is accumulated.
func (s *State) Observe(snap broker.AccountSnapshot, loc *time.Location) {
	if s.Windows == nil {
		s.Windows = make(map[Period]Window, len(periods))
	}

	if !s.Initialized {
		if s.InitialBalance <= 0 {
			s.InitialBalance = snap.Balance
		}
		s.PeakBalance = math.Max(s.PeakBalance, math.Max(s.InitialBalance, snap.Equity))
		for _, p := range periods {
			s.Windows[p] = Window{
				Start:            p.Start(snap.Time, loc),
				ReferenceBalance: s.InitialBalance,
			}
		}
		s.remember(snap)
		s.Initialized = true
		return
	}

	s.PeakBalance = math.Max(s.PeakBalance, snap.Equity)

	delta := snap.Equity - s.LastEquity
	for _, p := range periods {
		w := s.Windows[p]
		start := p.Start(snap.Time, loc)
		if start.After(w.Start) {
			w = Window{Start: start, ReferenceBalance: snap.Balance, Rollovers: w.Rollovers + 1}
		}
		if delta < 0 {
			w.LossAccum -= delta
		}
		s.Windows[p] = w
	}
	s.remember(snap)
}

func (s *State) remember(snap broker.AccountSnapshot) {
	s.LastEquity = snap.Equity
	s.LastBalance = snap.Balance
	s.LastTime = snap.Time
}

// Breakdown fails when equity has fallen pct percent or more below the
// initial balance.
func (s *State) Breakdown(pct float64) (CheckResult, error) {
	if pct <= 0 {
		return CheckResult{}, configErr(CheckBreakdown, "percentage", "must be positive, got %v", pct)
	}
	if !s.Initialized {
		return notEvaluated(CheckBreakdown, ErrNoSnapshot), nil
	}
	if s.InitialBalance <= 0 {
		return notEvaluated(CheckBreakdown, fmt.Errorf("initial balance is not positive")), nil
	}

	loss := (s.InitialBalance - s.LastEquity) * 100 / s.InitialBalance
	if loss >= pct {
		return fail(CheckBreakdown, loss, pct,
			"equity %.2f is %.2f%% below initial balance %.2f (limit %.2f%%)",
			s.LastEquity, loss, s.InitialBalance, pct), nil
	}
	return pass(CheckBreakdown, loss, pct), nil
}

// MaxDrawdown fails when equity has fallen pct percent or more below the
// peak balance.
func (s *State) MaxDrawdown(pct float64) (CheckResult, error) {
	if pct <= 0 {
		return CheckResult{}, configErr(CheckMaxDrawdown, "percentage", "must be positive, got %v", pct)
	}
	if !s.Initialized {
		return notEvaluated(CheckMaxDrawdown, ErrNoSnapshot), nil
	}
	if s.PeakBalance <= 0 {
		return notEvaluated(CheckMaxDrawdown, fmt.Errorf("peak balance is not positive")), nil
	}

	dd := (s.PeakBalance - s.LastEquity) * 100 / s.PeakBalance
	if dd >= pct {
		return fail(CheckMaxDrawdown, dd, pct,
			"drawdown %.2f%% from peak %.2f reached limit %.2f%%", dd, s.PeakBalance, pct), nil
	}
	return pass(CheckMaxDrawdown, dd, pct), nil
}
