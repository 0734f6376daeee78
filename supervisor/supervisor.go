// Package supervisor runs the poll cycle: feed closed trades, evaluate the
// protections, ratchet stops, hand moves to the platform, then journal and
// persist what happened.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/riskguard/broker"
	"github.com/rustyeddy/riskguard/journal"
	"github.com/rustyeddy/riskguard/metrics"
	"github.com/rustyeddy/riskguard/risk"
	"github.com/rustyeddy/riskguard/stops"
	"github.com/rustyeddy/riskguard/store"
)

type Options struct {
	Symbol    string
	Protector *risk.Protector

	// Stops and Strategy are both needed for stop management; either nil
	// disables it.
	Stops     *stops.Engine
	Strategy  stops.Strategy
	Positions broker.PositionProvider
	Mutator   broker.OrderMutator

	// Trades feeds the losing streak. Optional.
	Trades broker.ClosedTradeSource

	Journal  journal.Journal
	Store    store.Store
	StateKey string
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
	Clock    func() time.Time
}

type Supervisor struct {
	opts Options
	log  *zap.Logger
}

// CycleReport is what one RunCycle did.
type CycleReport struct {
	Result    risk.Result
	Evaluated bool
	Closed    []broker.ClosedTrade
	Stops     stops.Report
	// ApplyErrors holds the mutator error per rejected decision ticket.
	ApplyErrors map[string]error
}

// Applied counts the stop moves the platform accepted.
func (r CycleReport) Applied() int {
	return len(r.Stops.Decisions) - len(r.ApplyErrors)
}

func New(o Options) (*Supervisor, error) {
	if o.Protector == nil {
		return nil, fmt.Errorf("supervisor: protector is required")
	}
	if o.Stops != nil && o.Strategy != nil {
		if o.Positions == nil {
			return nil, fmt.Errorf("supervisor: stop management needs a position provider")
		}
		if o.Mutator == nil {
			return nil, fmt.Errorf("supervisor: stop management needs an order mutator")
		}
	}
	if o.Journal == nil {
		o.Journal = journal.Nop{}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.StateKey == "" {
		o.StateKey = o.Symbol
	}
	return &Supervisor{opts: o, log: o.Logger.Named("supervisor")}, nil
}

// Restore loads the persisted protector state, if any. It reports whether a
// state was found.
func (s *Supervisor) Restore() (bool, error) {
	if s.opts.Store == nil {
		return false, nil
	}
	st, ok, err := s.opts.Store.Load(s.opts.StateKey)
	if err != nil || !ok {
		return false, err
	}
	s.opts.Protector.Restore(st)
	s.log.Info("protector state restored",
		zap.String("key", s.opts.StateKey),
		zap.Float64("peak", st.PeakBalance),
		zap.Int("streak", st.ConsecutiveLosses))
	return true, nil
}

func (s *Supervisor) stopsEnabled() bool {
	return s.opts.Stops != nil && s.opts.Strategy != nil
}

// RunCycle performs one poll. Failures of one stage are logged, counted and
// joined into the returned error; later stages still run.
func (s *Supervisor) RunCycle(ctx context.Context) (CycleReport, error) {
	var (
		rep  CycleReport
		errs []error
	)
	fail := func(stage string, err error) {
		s.log.Warn("cycle stage failed", zap.String("stage", stage), zap.Error(err))
		if s.opts.Metrics != nil {
			s.opts.Metrics.ObserveError(stage)
		}
		errs = append(errs, fmt.Errorf("%s: %w", stage, err))
	}

	if s.opts.Trades != nil {
		closed, err := s.opts.Trades.ClosedTrades(ctx)
		if err != nil {
			fail("trades", err)
		}
		for _, t := range closed {
			s.opts.Protector.RecordOutcome(t)
			if err := s.opts.Journal.RecordTrade(journal.FromClosedTrade(t)); err != nil {
				fail("journal", err)
			}
		}
		rep.Closed = closed
	}

	res, err := s.opts.Protector.Evaluate(ctx, s.opts.Symbol)
	switch {
	case err != nil && res.Checks == nil:
		fail("account", err)
	default:
		if err != nil {
			fail("checks", err)
		}
		rep.Result, rep.Evaluated = res, true
		if err := s.opts.Journal.RecordEvaluation(journal.FromResult(res)); err != nil {
			fail("journal", err)
		}
		state := s.opts.Protector.Snapshot()
		if err := s.opts.Journal.RecordEquity(journal.FromState(state)); err != nil {
			fail("journal", err)
		}
		if s.opts.Metrics != nil {
			s.opts.Metrics.ObserveResult(res)
			s.opts.Metrics.ObserveState(state)
		}
	}

	if s.stopsEnabled() {
		if err := s.manageStops(ctx, &rep); err != nil {
			fail("positions", err)
		}
		for _, f := range rep.Stops.Failures {
			if ctx.Err() == nil {
				fail("stops", fmt.Errorf("%s: %w", f.Ticket, f.Err))
			}
		}
	}

	if s.opts.Store != nil && rep.Evaluated {
		if err := s.opts.Store.Save(s.opts.StateKey, s.opts.Protector.Snapshot()); err != nil {
			fail("store", err)
		}
	}

	s.log.Debug("cycle done",
		zap.Bool("evaluated", rep.Evaluated),
		zap.Bool("allowed", rep.Result.TradingAllowed),
		zap.Float64("volume_factor", rep.Result.VolumeFactor),
		zap.Int("closed", len(rep.Closed)),
		zap.Int("stop_moves", len(rep.Stops.Decisions)),
	)
	return rep, errors.Join(errs...)
}

func (s *Supervisor) manageStops(ctx context.Context, rep *CycleReport) error {
	positions, err := s.opts.Positions.Positions(ctx)
	if err != nil {
		return err
	}

	rep.Stops = s.opts.Stops.Evaluate(ctx, positions, s.opts.Strategy)
	now := s.opts.Clock()
	for _, d := range rep.Stops.Decisions {
		// A zero take profit leaves the current one in place.
		applyErr := s.opts.Mutator.ModifyStops(ctx, d.Request(0))
		if applyErr != nil {
			if rep.ApplyErrors == nil {
				rep.ApplyErrors = make(map[string]error)
			}
			rep.ApplyErrors[d.Ticket] = applyErr
			s.log.Warn("stop update rejected", zap.String("ticket", d.Ticket),
				zap.Float64("sl", d.NewSL), zap.Error(applyErr))
		}
		if err := s.opts.Journal.RecordStopUpdate(journal.FromDecision(d, rep.Stops.Strategy, now, applyErr)); err != nil {
			s.log.Warn("journal stop update", zap.Error(err))
		}
	}
	if s.opts.Metrics != nil {
		s.opts.Metrics.ObserveStops(rep.Stops, rep.ApplyErrors)
	}
	return nil
}

// Run polls every interval until ctx is done. Cycle errors are logged and
// never stop the loop.
func (s *Supervisor) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("supervisor: interval must be positive")
	}
	s.log.Info("supervisor started", zap.String("symbol", s.opts.Symbol), zap.Duration("interval", interval))

	if _, err := s.RunCycle(ctx); err != nil {
		s.log.Warn("cycle finished with errors", zap.Error(err))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("supervisor stopped")
			return nil
		case <-ticker.C:
			if _, err := s.RunCycle(ctx); err != nil {
				s.log.Warn("cycle finished with errors", zap.Error(err))
			}
		}
	}
}
