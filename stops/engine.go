package stops

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rustyeddy/riskguard/broker"
	"github.com/rustyeddy/riskguard/market"
)

// Decision is a stop move to hand to the order mutator.
type Decision struct {
	Ticket    string
	Symbol    string
	Direction broker.Direction
	Previous  float64
	NewSL     float64
	Reason    string
}

// Request converts the decision into a platform request. The take profit
// is carried over untouched.
func (d Decision) Request(takeProfit float64) broker.StopUpdateRequest {
	return broker.StopUpdateRequest{Ticket: d.Ticket, StopLoss: d.NewSL, TakeProfit: takeProfit}
}

// Unchanged records a candidate the ratchet refused.
type Unchanged struct {
	Ticket    string
	Current   float64
	Candidate float64
}

// Failure is a position the strategy could not price this cycle.
type Failure struct {
	Ticket string
	Symbol string
	Err    error
}

// Report is the outcome of one pass over the open positions.
type Report struct {
	Strategy  string
	Decisions []Decision
	Unchanged []Unchanged
	Failures  []Failure
}

// Engine evaluates a stop strategy across positions. It never modifies the
// positions it is given.
type Engine struct {
	Instruments market.InstrumentSource
	Candles     market.CandleSource
	Logger      *zap.Logger
}

func NewEngine(instruments market.InstrumentSource, candles market.CandleSource, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{Instruments: instruments, Candles: candles, Logger: logger.Named("stops")}
}

// Evaluate proposes a new stop for every position whose candidate survives
// the ratchet. A failure on one position never aborts the batch.
func (e *Engine) Evaluate(ctx context.Context, positions []broker.Position, s Strategy) Report {
	log := e.Logger
	if log == nil {
		log = zap.NewNop()
	}
	rep := Report{Strategy: s.Name()}

	for _, pos := range positions {
		if err := ctx.Err(); err != nil {
			rep.Failures = append(rep.Failures, Failure{Ticket: pos.Ticket, Symbol: pos.Symbol, Err: err})
			continue
		}

		d, u, err := e.evaluate(ctx, pos, s)
		switch {
		case err != nil:
			log.Warn("stop not computed", zap.String("ticket", pos.Ticket),
				zap.String("symbol", pos.Symbol), zap.Error(err))
			rep.Failures = append(rep.Failures, Failure{Ticket: pos.Ticket, Symbol: pos.Symbol, Err: err})
		case d != nil:
			log.Info("stop moved", zap.String("ticket", d.Ticket), zap.String("symbol", d.Symbol),
				zap.Float64("from", d.Previous), zap.Float64("to", d.NewSL))
			rep.Decisions = append(rep.Decisions, *d)
		default:
			log.Debug("stop unchanged", zap.String("ticket", u.Ticket),
				zap.Float64("sl", u.Current), zap.Float64("candidate", u.Candidate))
			rep.Unchanged = append(rep.Unchanged, *u)
		}
	}
	return rep
}

func (e *Engine) evaluate(ctx context.Context, pos broker.Position, s Strategy) (*Decision, *Unchanged, error) {
	if e.Instruments == nil {
		return nil, nil, fmt.Errorf("no instrument source")
	}
	meta, ok := e.Instruments.Instrument(pos.Symbol)
	if !ok {
		return nil, nil, fmt.Errorf("unknown instrument %s", pos.Symbol)
	}
	raw, err := s.Candidate(ctx, pos, meta, e.Candles)
	if err != nil {
		return nil, nil, err
	}
	candidate := round(raw, meta.Precision())
	if candidate <= 0 {
		return nil, nil, fmt.Errorf("%s: candidate stop %v is not a price", pos.Ticket, candidate)
	}

	sl, moved := Ratchet(pos.Direction, pos.StopLoss, candidate)
	if !moved || sl == pos.StopLoss {
		return nil, &Unchanged{Ticket: pos.Ticket, Current: pos.StopLoss, Candidate: candidate}, nil
	}
	return &Decision{
		Ticket:    pos.Ticket,
		Symbol:    pos.Symbol,
		Direction: pos.Direction,
		Previous:  pos.StopLoss,
		NewSL:     sl,
		Reason:    fmt.Sprintf("%s %s stop %s", s.Name(), pos.Direction, describe(pos.StopLoss, sl)),
	}, nil, nil
}

func describe(prev, next float64) string {
	if prev <= 0 {
		return fmt.Sprintf("set at %v", next)
	}
	return fmt.Sprintf("moved %v -> %v", prev, next)
}
