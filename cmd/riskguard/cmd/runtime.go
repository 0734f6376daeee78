package cmd

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/riskguard/broker"
	"github.com/rustyeddy/riskguard/config"
	"github.com/rustyeddy/riskguard/journal"
	"github.com/rustyeddy/riskguard/market"
	"github.com/rustyeddy/riskguard/metrics"
	"github.com/rustyeddy/riskguard/oanda"
	"github.com/rustyeddy/riskguard/risk"
	"github.com/rustyeddy/riskguard/sim"
	"github.com/rustyeddy/riskguard/stops"
	"github.com/rustyeddy/riskguard/store"
	"github.com/rustyeddy/riskguard/supervisor"
)

// platform is everything riskguard needs from a trading account.
type platform interface {
	broker.AccountProvider
	broker.PositionProvider
	broker.OrderMutator
	broker.ClosedTradeSource
	market.CandleSource
}

// runtime wires the configured platform to the protector, the stop engine
// and the supervisor.
type runtime struct {
	cfg      *config.Config
	log      *zap.Logger
	platform platform
	clock    func() time.Time
	// sim and steps are set for the simulated platform only.
	sim       *sim.Engine
	steps     []sim.Step
	catalog   market.Catalog
	protector *risk.Protector
	stops     *stops.Engine
	strategy  stops.Strategy
	journal   journal.Journal
	store     store.Store
	metrics   *metrics.Metrics
	sup       *supervisor.Supervisor
}

type runtimeOptions struct {
	journal bool
	metrics bool
	persist bool
}

func newRuntime(cfg *config.Config, log *zap.Logger, o runtimeOptions) (*runtime, error) {
	cat, err := cfg.Catalog()
	if err != nil {
		return nil, err
	}
	rt := &runtime{
		cfg:     cfg,
		log:     log,
		catalog: cat,
		journal: journal.Nop{},
	}
	if err := rt.connect(); err != nil {
		return nil, err
	}

	rc, err := cfg.RiskConfig()
	if err != nil {
		return nil, err
	}
	if rt.protector, err = risk.NewProtector(rc, risk.Deps{
		Accounts:  rt.platform,
		Positions: rt.platform,
		Candles:   rt.platform,
		Logger:    log,
		Clock:     rt.clock,
	}); err != nil {
		return nil, err
	}
	if rt.strategy, err = cfg.StopStrategy(); err != nil {
		return nil, err
	}
	rt.stops = stops.NewEngine(cat, rt.platform, log)

	if o.journal {
		if rt.journal, err = journal.Open(journalOptions(cfg)); err != nil {
			return nil, fmt.Errorf("journal: %w", err)
		}
	}
	if o.persist && cfg.State.Path != "" {
		b, err := store.Open(cfg.State.Path)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.store = b
	}
	if o.metrics {
		rt.metrics = metrics.New()
	}

	rt.sup, err = supervisor.New(supervisor.Options{
		Symbol:    cfg.Symbol,
		Protector: rt.protector,
		Stops:     rt.stops,
		Strategy:  rt.strategy,
		Positions: rt.platform,
		Mutator:   rt.platform,
		Trades:    rt.platform,
		Journal:   rt.journal,
		Store:     rt.store,
		StateKey:  stateKey(cfg),
		Metrics:   rt.metrics,
		Logger:    log,
		Clock:     rt.clock,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}
	if _, err := rt.sup.Restore(); err != nil {
		rt.Close()
		return nil, fmt.Errorf("restore state: %w", err)
	}
	return rt, nil
}

// connect builds the simulated engine or the OANDA client.
func (rt *runtime) connect() error {
	cfg := rt.cfg
	if cfg.Simulated() {
		engine, steps, err := sim.FromConfig(cfg, rt.log.Named("sim"))
		if err != nil {
			return fmt.Errorf("simulation: %w", err)
		}
		rt.platform, rt.clock = engine, engine.Now
		rt.sim, rt.steps = engine, steps
		return nil
	}

	base := cfg.Platform.URL
	if base == "" {
		var err error
		if base, err = oanda.BaseURL(cfg.Platform.Environment); err != nil {
			return err
		}
	}
	client, err := oanda.NewClient(oanda.Options{
		BaseURL:     base,
		Token:       cfg.Platform.Token,
		AccountID:   cfg.Platform.AccountID,
		Instruments: rt.catalog,
		Logger:      rt.log,
	})
	if err != nil {
		return err
	}
	rt.platform, rt.clock = client, time.Now
	return nil
}

func (rt *runtime) Close() error {
	var errs []error
	if rt.journal != nil {
		errs = append(errs, rt.journal.Close())
	}
	if rt.store != nil {
		errs = append(errs, rt.store.Close())
	}
	return errors.Join(errs...)
}

func journalOptions(cfg *config.Config) journal.Options {
	return journal.Options{
		Type: cfg.Journal.Type,
		CSV: journal.CSVPaths{
			Evaluations: cfg.Journal.EvaluationsFile,
			Stops:       cfg.Journal.StopsFile,
			Trades:      cfg.Journal.TradesFile,
			Equity:      cfg.Journal.EquityFile,
		},
		DBPath: cfg.Journal.DBPath,
	}
}

// stateKey names the persisted state of one account and symbol.
func stateKey(cfg *config.Config) string {
	if cfg.Account.ID == "" {
		return cfg.Symbol
	}
	return cfg.Account.ID + "/" + cfg.Symbol
}
