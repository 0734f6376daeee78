package risk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/riskguard/broker"
	"github.com/rustyeddy/riskguard/market"
)

// Config selects and parameterizes the protections of one trading context.
// A nil field leaves that protection unconfigured.
type Config struct {
	Symbol         string
	Timeframe      market.Timeframe
	InitialBalance float64
	// Location is the account time zone used for loss window boundaries.
	Location *time.Location

	BreakdownPct   *float64
	MaxDrawdownPct *float64
	DailyLossPct   *float64
	WeeklyLossPct  *float64
	MonthlyLossPct *float64

	ConsecutiveLosses *StreakConfig
	Volatility        *VolatilityConfig
	Correlation       *CorrelationConfig
	TimeWindow        *TimeWindow

	// Required lists checks that deny when they cannot be evaluated.
	Required []Check
}

// Pct is a convenience for filling the percentage fields of Config.
func Pct(v float64) *float64 { return &v }

// Deps are the collaborators a Protector reads from. Positions is only
// needed by the correlation guard and Candles by the volatility and
// correlation checks.
type Deps struct {
	Accounts  broker.AccountProvider
	Positions broker.PositionProvider
	Candles   market.CandleSource
	Logger    *zap.Logger
	Clock     func() time.Time
}

// Protector evaluates the configured protections against one State. It is
// safe for concurrent use; the state has a single writer behind mu.
type Protector struct {
	cfg      Config
	deps     Deps
	required map[Check]bool
	log      *zap.Logger

	mu    sync.Mutex
	state *State
}

// NewProtector validates cfg and returns a Protector with fresh state. No
// evaluation happens on a configuration error.
func NewProtector(cfg Config, deps Deps) (*Protector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Accounts == nil {
		return nil, errors.New("risk: account provider is required")
	}
	if (cfg.Volatility != nil || cfg.Correlation != nil) && deps.Candles == nil {
		return nil, errors.New("risk: candle source is required for volatility and correlation checks")
	}
	if cfg.Correlation != nil && deps.Positions == nil {
		return nil, errors.New("risk: position provider is required for the correlation check")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	required := make(map[Check]bool, len(cfg.Required))
	for _, c := range cfg.Required {
		required[c] = true
	}

	return &Protector{
		cfg:      cfg,
		deps:     deps,
		required: required,
		log:      deps.Logger.Named("protector"),
		state:    NewState(cfg.InitialBalance),
	}, nil
}

// Validate reports the first invalid parameter as a *ConfigError.
func (c Config) Validate() error {
	if c.InitialBalance < 0 {
		return configErr("", "initial_balance", "must not be negative, got %v", c.InitialBalance)
	}
	pcts := []struct {
		check Check
		field string
		v     *float64
	}{
		{CheckBreakdown, "percentage", c.BreakdownPct},
		{CheckMaxDrawdown, "percentage", c.MaxDrawdownPct},
		{CheckDailyLoss, "max_loss_percentage", c.DailyLossPct},
		{CheckWeeklyLoss, "max_loss_percentage", c.WeeklyLossPct},
		{CheckMonthlyLoss, "max_loss_percentage", c.MonthlyLossPct},
	}
	for _, p := range pcts {
		if p.v != nil && *p.v <= 0 {
			return configErr(p.check, p.field, "must be positive, got %v", *p.v)
		}
	}
	if c.ConsecutiveLosses != nil {
		if err := c.ConsecutiveLosses.Validate(); err != nil {
			return err
		}
	}
	if c.Volatility != nil {
		if err := c.Volatility.Validate(); err != nil {
			return err
		}
		if c.Volatility.Timeframe == "" && c.Timeframe == "" {
			return configErr(CheckVolatility, "timeframe", "no timeframe configured")
		}
	}
	if c.Correlation != nil {
		if err := c.Correlation.Validate(); err != nil {
			return err
		}
		if c.Correlation.Timeframe == "" && c.Timeframe == "" {
			return configErr(CheckCorrelation, "timeframe", "no timeframe configured")
		}
	}
	if c.TimeWindow != nil {
		if err := c.TimeWindow.Validate(); err != nil {
			return err
		}
	}
	enabled := c.Enabled()
	for _, r := range c.Required {
		if _, err := ParseCheck(string(r)); err != nil {
			return err
		}
		if !enabled[r] {
			return configErr(r, "required", "check is required but not configured")
		}
	}
	return nil
}

// Enabled returns the set of configured checks.
func (c Config) Enabled() map[Check]bool {
	return map[Check]bool{
		CheckBreakdown:         c.BreakdownPct != nil,
		CheckMaxDrawdown:       c.MaxDrawdownPct != nil,
		CheckDailyLoss:         c.DailyLossPct != nil,
		CheckWeeklyLoss:        c.WeeklyLossPct != nil,
		CheckMonthlyLoss:       c.MonthlyLossPct != nil,
		CheckConsecutiveLosses: c.ConsecutiveLosses != nil,
		CheckVolatility:        c.Volatility != nil,
		CheckCorrelation:       c.Correlation != nil,
		CheckTimeWindow:        c.TimeWindow != nil,
	}
}

// Observe folds a snapshot into the state without running any check.
func (p *Protector) Observe(snap broker.AccountSnapshot) {
	if snap.Time.IsZero() {
		snap.Time = p.deps.Clock()
	}
	p.mu.Lock()
	p.state.Observe(snap, p.cfg.Location)
	p.mu.Unlock()
}

// RecordOutcome feeds a closed trade to the losing streak counter.
func (p *Protector) RecordOutcome(t broker.ClosedTrade) {
	p.mu.Lock()
	p.state.RecordOutcome(t)
	streak := p.state.ConsecutiveLosses
	p.mu.Unlock()
	p.log.Debug("trade outcome", zap.String("ticket", t.Ticket),
		zap.Bool("loss", t.IsLoss()), zap.Int("streak", streak))
}

// Snapshot returns a copy of the current state.
func (p *Protector) Snapshot() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Clone()
}

// Restore replaces the state, for example with one loaded from disk.
func (p *Protector) Restore(s State) {
	c := s.Clone()
	p.mu.Lock()
	p.state = &c
	p.mu.Unlock()
}

// Evaluate polls the account, updates the state and runs every configured
// protection for a trade in symbol. An empty symbol means the configured
// one. An account failure is returned unchanged and leaves the state
// untouched. Candle or position failures mark the affected check as
// errored; they are joined into the returned error next to a valid Result.
func (p *Protector) Evaluate(ctx context.Context, symbol string) (Result, error) {
	if symbol == "" {
		symbol = p.cfg.Symbol
	}

	snap, err := p.deps.Accounts.Account(ctx)
	if err != nil {
		return Result{}, err
	}
	now := p.deps.Clock()
	if snap.Time.IsZero() {
		snap.Time = now
	}

	// Collaborator reads happen before the lock is taken.
	var (
		results []CheckResult
		errs    []error
	)
	if p.cfg.Volatility != nil {
		r, err := p.volatility(ctx, symbol)
		if err != nil {
			errs = append(errs, err)
		}
		results = append(results, r)
	}
	if p.cfg.Correlation != nil {
		r, err := p.correlation(ctx, symbol)
		if err != nil {
			errs = append(errs, err)
		}
		results = append(results, r)
	}
	if p.cfg.TimeWindow != nil {
		r, err := p.cfg.TimeWindow.Check(now)
		if err != nil {
			r = errored(CheckTimeWindow, err)
		}
		results = append(results, r)
	}

	p.mu.Lock()
	p.state.Observe(snap, p.cfg.Location)
	results = append(results, p.stateChecks()...)
	p.mu.Unlock()

	res := Result{
		Time:   now,
		Symbol: symbol,
		Checks: make(map[Check]CheckResult, len(results)),
	}
	for _, r := range results {
		res.Checks[r.Check] = r
	}
	res.TradingAllowed, res.VolumeFactor, res.Reasons = Combine(res.Ordered(), p.required)
	p.logResult(res)

	return res, errors.Join(errs...)
}

// stateChecks runs the account based checks. Callers hold mu.
func (p *Protector) stateChecks() []CheckResult {
	var out []CheckResult
	add := func(c Check, r CheckResult, err error) {
		if err != nil {
			r = errored(c, err)
		}
		out = append(out, r)
	}
	if v := p.cfg.BreakdownPct; v != nil {
		r, err := p.state.Breakdown(*v)
		add(CheckBreakdown, r, err)
	}
	if v := p.cfg.MaxDrawdownPct; v != nil {
		r, err := p.state.MaxDrawdown(*v)
		add(CheckMaxDrawdown, r, err)
	}
	for _, pl := range []struct {
		period Period
		pct    *float64
	}{
		{Daily, p.cfg.DailyLossPct},
		{Weekly, p.cfg.WeeklyLossPct},
		{Monthly, p.cfg.MonthlyLossPct},
	} {
		if pl.pct == nil {
			continue
		}
		r, err := p.state.PeriodLoss(pl.period, *pl.pct)
		add(pl.period.check(), r, err)
	}
	if c := p.cfg.ConsecutiveLosses; c != nil {
		r, err := p.state.ConsecutiveLossesCheck(*c)
		add(CheckConsecutiveLosses, r, err)
	}
	return out
}

func (p *Protector) timeframe(tf market.Timeframe) market.Timeframe {
	if tf != "" {
		return tf
	}
	return p.cfg.Timeframe
}

func (p *Protector) volatility(ctx context.Context, symbol string) (CheckResult, error) {
	c := *p.cfg.Volatility
	if c.Symbol != "" {
		symbol = c.Symbol
	}
	c.Timeframe = p.timeframe(c.Timeframe)

	series, err := p.deps.Candles.Candles(ctx, symbol, c.Timeframe, c.HistoryNeeded())
	if err != nil {
		err = fmt.Errorf("volatility candles for %s: %w", symbol, err)
		return errored(CheckVolatility, err), err
	}
	r, err := VolatilityFactor(series, c)
	if err != nil && !IsDataUnavailable(err) {
		return errored(CheckVolatility, err), nil
	}
	return r, nil
}

func (p *Protector) correlation(ctx context.Context, symbol string) (CheckResult, error) {
	c := *p.cfg.Correlation
	c.Timeframe = p.timeframe(c.Timeframe)

	positions, err := p.deps.Positions.Positions(ctx)
	if err != nil {
		err = fmt.Errorf("positions for correlation: %w", err)
		return errored(CheckCorrelation, err), err
	}
	exposure := map[string]bool{}
	if symbol != "" {
		exposure[symbol] = true
	}
	for _, pos := range positions {
		exposure[pos.Symbol] = true
	}

	// A symbol whose history cannot be read only drops the pairs it is in.
	var fetchErrs []error
	series := make(map[string]market.CandleSeries, len(c.Symbols))
	for _, s := range c.Symbols {
		cs, err := p.deps.Candles.Candles(ctx, s, c.Timeframe, c.Lookback)
		if err != nil {
			fetchErrs = append(fetchErrs, fmt.Errorf("correlation candles for %s: %w", s, err))
			continue
		}
		series[s] = cs
	}
	fetchErr := errors.Join(fetchErrs...)
	if fetchErr != nil && len(series) < 2 {
		return errored(CheckCorrelation, fetchErr), fetchErr
	}

	r, pairs, err := CorrelationGuard(series, exposure, c)
	if err != nil {
		return errored(CheckCorrelation, err), nil
	}
	if fetchErr != nil {
		p.log.Warn("correlation history missing", zap.Error(fetchErr))
	}
	for _, pc := range pairs {
		p.log.Debug("pair correlation",
			zap.String("a", pc.A), zap.String("b", pc.B),
			zap.Float64("corr", pc.Correlation), zap.Int("overlap", pc.Overlap),
			zap.Bool("computable", pc.Computable), zap.Bool("exposed", pc.Exposed))
	}
	p.log.Debug("exposure", zap.Strings("symbols", sortedKeys(exposure)))
	return r, fetchErr
}

func (p *Protector) logResult(res Result) {
	for _, cr := range res.Ordered() {
		if (cr.Status == StatusNotEvaluated || cr.Status == StatusError) && !p.required[cr.Check] {
			p.log.Warn("check not evaluated, passing through",
				zap.String("check", string(cr.Check)), zap.String("status", string(cr.Status)),
				zap.String("reason", cr.Reason))
		}
	}
	fields := []zap.Field{
		zap.String("symbol", res.Symbol),
		zap.Bool("allowed", res.TradingAllowed),
		zap.Float64("volume_factor", res.VolumeFactor),
		zap.Strings("reasons", res.Reasons),
	}
	switch {
	case !res.TradingAllowed:
		p.log.Warn("trading denied", fields...)
	case res.VolumeFactor < 1:
		p.log.Info("volume reduced", fields...)
	default:
		p.log.Debug("trading allowed", fields...)
	}
}
