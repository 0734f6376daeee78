// journal/journal.go
package journal

import (
	"sort"
	"strings"
	"time"

	"github.com/rustyeddy/riskguard/broker"
	"github.com/rustyeddy/riskguard/id"
	"github.com/rustyeddy/riskguard/risk"
	"github.com/rustyeddy/riskguard/stops"
)

// EvaluationRecord is one Protector verdict.
type EvaluationRecord struct {
	ID           string
	Time         time.Time
	Symbol       string
	Allowed      bool
	VolumeFactor float64
	Denied       string // comma separated check names
	Reasons      string // "; " separated
	Checks       string // check=status pairs
}

// StopRecord is one stop move and whether the platform accepted it.
type StopRecord struct {
	ID        string
	Time      time.Time
	Ticket    string
	Symbol    string
	Direction string
	Strategy  string
	Previous  float64
	NewSL     float64
	Applied   bool
	Error     string
}

// TradeRecord is a closed trade fed to the losing streak counter.
type TradeRecord struct {
	TradeID    string
	Instrument string
	Units      float64
	EntryPrice float64
	ExitPrice  float64
	OpenTime   time.Time
	CloseTime  time.Time
	RealizedPL float64
	Reason     string
}

// EquitySnapshot is an account sample with the protector's view of it.
type EquitySnapshot struct {
	Time        time.Time
	Balance     float64
	Equity      float64
	Peak        float64
	DrawdownPct float64
}

type Journal interface {
	RecordEvaluation(EvaluationRecord) error
	RecordStopUpdate(StopRecord) error
	RecordTrade(TradeRecord) error
	RecordEquity(EquitySnapshot) error
	Close() error
}

// FromResult flattens a verdict into a journal row.
func FromResult(res risk.Result) EvaluationRecord {
	var denied []string
	for _, c := range res.Denied() {
		denied = append(denied, string(c))
	}
	var checks []string
	for _, cr := range res.Ordered() {
		checks = append(checks, string(cr.Check)+"="+string(cr.Status))
	}
	return EvaluationRecord{
		ID:           id.NewAt(res.Time),
		Time:         res.Time.UTC(),
		Symbol:       res.Symbol,
		Allowed:      res.TradingAllowed,
		VolumeFactor: res.VolumeFactor,
		Denied:       strings.Join(denied, ","),
		Reasons:      strings.Join(res.Reasons, "; "),
		Checks:       strings.Join(checks, " "),
	}
}

// FromDecision records a stop decision. applyErr is the order mutator's
// answer; nil means the move was applied.
func FromDecision(d stops.Decision, strategy string, at time.Time, applyErr error) StopRecord {
	r := StopRecord{
		ID:        id.NewAt(at),
		Time:      at.UTC(),
		Ticket:    d.Ticket,
		Symbol:    d.Symbol,
		Direction: d.Direction.String(),
		Strategy:  strategy,
		Previous:  d.Previous,
		NewSL:     d.NewSL,
		Applied:   applyErr == nil,
	}
	if applyErr != nil {
		r.Error = applyErr.Error()
	}
	return r
}

// FromClosedTrade records a closed trade outcome.
func FromClosedTrade(t broker.ClosedTrade) TradeRecord {
	tid := t.Ticket
	if tid == "" {
		tid = id.NewAt(t.CloseTime)
	}
	return TradeRecord{
		TradeID:    tid,
		Instrument: t.Symbol,
		CloseTime:  t.CloseTime.UTC(),
		RealizedPL: t.RealizedPL,
		Reason:     outcome(t),
	}
}

func outcome(t broker.ClosedTrade) string {
	if t.IsLoss() {
		return "loss"
	}
	return "win"
}

// FromState derives an equity row from a protector state.
func FromState(s risk.State) EquitySnapshot {
	e := EquitySnapshot{
		Time:    s.LastTime.UTC(),
		Balance: s.LastBalance,
		Equity:  s.LastEquity,
		Peak:    s.PeakBalance,
	}
	if s.PeakBalance > 0 {
		e.DrawdownPct = (s.PeakBalance - s.LastEquity) * 100 / s.PeakBalance
	}
	return e
}

// Multi fans records out to several journals. The first error wins but
// every journal is still written.
type Multi []Journal

func (m Multi) each(fn func(Journal) error) error {
	var first error
	for _, j := range m {
		if err := fn(j); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m Multi) RecordEvaluation(r EvaluationRecord) error {
	return m.each(func(j Journal) error { return j.RecordEvaluation(r) })
}

func (m Multi) RecordStopUpdate(r StopRecord) error {
	return m.each(func(j Journal) error { return j.RecordStopUpdate(r) })
}

func (m Multi) RecordTrade(r TradeRecord) error {
	return m.each(func(j Journal) error { return j.RecordTrade(r) })
}

func (m Multi) RecordEquity(r EquitySnapshot) error {
	return m.each(func(j Journal) error { return j.RecordEquity(r) })
}

func (m Multi) Close() error {
	return m.each(func(j Journal) error { return j.Close() })
}

// Nop discards every record.
type Nop struct{}

func (Nop) RecordEvaluation(EvaluationRecord) error { return nil }
func (Nop) RecordStopUpdate(StopRecord) error       { return nil }
func (Nop) RecordTrade(TradeRecord) error           { return nil }
func (Nop) RecordEquity(EquitySnapshot) error       { return nil }
func (Nop) Close() error                            { return nil }

func sortedChecks(m map[risk.Check]int) []risk.Check {
	out := make([]risk.Check, 0, len(m))
	for c := range m {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
