package risk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rustyeddy/riskguard/broker"
	"github.com/rustyeddy/riskguard/market"
)

type fakeAccounts struct {
	mu    sync.Mutex
	snaps []broker.AccountSnapshot
	err   error
}

func (f *fakeAccounts) Account(context.Context) (broker.AccountSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return broker.AccountSnapshot{}, f.err
	}
	s := f.snaps[0]
	if len(f.snaps) > 1 {
		f.snaps = f.snaps[1:]
	}
	return s, nil
}

type fakePositions struct {
	positions []broker.Position
	err       error
}

func (f *fakePositions) Positions(context.Context) ([]broker.Position, error) {
	return f.positions, f.err
}

type fakeCandles struct {
	series map[string]market.CandleSeries
	err    error
}

func (f *fakeCandles) Candles(_ context.Context, symbol string, _ market.Timeframe, count int) (market.CandleSeries, error) {
	if f.err != nil {
		return market.CandleSeries{}, f.err
	}
	if _, ok := f.series[symbol]; !ok && f.series != nil {
		return market.CandleSeries{}, fmt.Errorf("no history for %s", symbol)
	}
	return f.series[symbol].Last(count), nil
}

func fixedClock(ts string) func() time.Time {
	t := at(ts)
	return func() time.Time { return t }
}

func newProtector(t *testing.T, cfg Config, deps Deps) *Protector {
	t.Helper()
	if deps.Logger == nil {
		deps.Logger = zaptest.NewLogger(t)
	}
	if deps.Clock == nil {
		deps.Clock = fixedClock("2024-06-12 10:00")
	}
	p, err := NewProtector(cfg, deps)
	require.NoError(t, err)
	return p
}

func TestProtector_Breakdown(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pct     float64
		allowed bool
	}{
		{10, false},
		{11, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run("", func(t *testing.T) {
			t.Parallel()
			accounts := &fakeAccounts{snaps: []broker.AccountSnapshot{{Balance: 10000, Equity: 9000}}}
			p := newProtector(t, Config{InitialBalance: 10000, BreakdownPct: Pct(tt.pct)}, Deps{Accounts: accounts})

			res, err := p.Evaluate(context.Background(), "EUR_USD")
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, res.TradingAllowed)
			assert.Equal(t, 1.0, res.VolumeFactor)
			if !tt.allowed {
				assert.Equal(t, []Check{CheckBreakdown}, res.Denied())
				assert.Len(t, res.Reasons, 1)
			}
		})
	}
}

func TestProtector_MaxDrawdown(t *testing.T) {
	t.Parallel()

	accounts := &fakeAccounts{snaps: []broker.AccountSnapshot{
		{Time: at("2024-06-12 09:00"), Balance: 10000, Equity: 12000},
		{Time: at("2024-06-12 10:00"), Balance: 10000, Equity: 10000},
	}}
	cfg := Config{InitialBalance: 10000, MaxDrawdownPct: Pct(15)}
	p := newProtector(t, cfg, Deps{Accounts: accounts})
	ctx := context.Background()

	res, err := p.Evaluate(ctx, "")
	require.NoError(t, err)
	assert.True(t, res.TradingAllowed)

	res, err = p.Evaluate(ctx, "")
	require.NoError(t, err)
	assert.False(t, res.TradingAllowed)
	assert.InDelta(t, 16.67, res.Checks[CheckMaxDrawdown].Value, 0.01)
	assert.Equal(t, 12000.0, p.Snapshot().PeakBalance)
}

func TestProtector_ConsecutiveLosses(t *testing.T) {
	t.Parallel()

	accounts := &fakeAccounts{snaps: []broker.AccountSnapshot{{Balance: 10000, Equity: 10000}}}
	cfg := Config{ConsecutiveLosses: &StreakConfig{MaxConsecutiveLosses: 3, VolumeReductionFactor: 0.5}}
	p := newProtector(t, cfg, Deps{Accounts: accounts})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		p.RecordOutcome(broker.ClosedTrade{Ticket: "t", RealizedPL: -5})
	}
	res, err := p.Evaluate(ctx, "EUR_USD")
	require.NoError(t, err)
	assert.True(t, res.TradingAllowed)
	assert.Equal(t, 0.5, res.VolumeFactor)
	assert.Len(t, res.Reasons, 1)

	p.RecordOutcome(broker.ClosedTrade{Ticket: "t", RealizedPL: 5})
	res, err = p.Evaluate(ctx, "EUR_USD")
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.VolumeFactor)
	assert.Empty(t, res.Reasons)
}

func TestProtector_TimeWindow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		now     string
		allowed bool
	}{
		{"2024-06-15 10:00", false},
		{"2024-06-12 10:00", true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.now, func(t *testing.T) {
			t.Parallel()
			accounts := &fakeAccounts{snaps: []broker.AccountSnapshot{{Balance: 10000, Equity: 10000}}}
			cfg := Config{TimeWindow: &TimeWindow{Hours: []HourRange{{8, 20}}, Days: []int{0, 1, 2, 3, 4}}}
			p := newProtector(t, cfg, Deps{Accounts: accounts, Clock: fixedClock(tt.now)})

			res, err := p.Evaluate(context.Background(), "EUR_USD")
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, res.TradingAllowed)
		})
	}
}

func TestProtector_AggregationLaw(t *testing.T) {
	t.Parallel()

	start := at("2024-06-01 00:00")
	candles := &fakeCandles{series: map[string]market.CandleSeries{
		"EUR_USD": series("EUR_USD", start, zigzag(20, 1)...),
	}}

	tests := []struct {
		name       string
		equity     float64
		now        string
		allowed    bool
		factor     float64
		denyChecks []Check
	}{
		{"all pass, volatility and streak reduce", 10000, "2024-06-12 10:00", true, 0.25, nil},
		{"breakdown denies", 8000, "2024-06-12 10:00", false, 0.25, []Check{CheckBreakdown}},
		{"breakdown and window deny", 8000, "2024-06-15 10:00", false, 0.25, []Check{CheckBreakdown, CheckTimeWindow}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Config{
				Symbol:            "EUR_USD",
				Timeframe:         market.H1,
				InitialBalance:    10000,
				BreakdownPct:      Pct(10),
				MaxDrawdownPct:    Pct(30),
				DailyLossPct:      Pct(50),
				ConsecutiveLosses: &StreakConfig{MaxConsecutiveLosses: 1, VolumeReductionFactor: 0.5},
				Volatility:        &VolatilityConfig{Lookback: 10, MaxMultiplier: 4, Baseline: 0.0001},
				TimeWindow:        &TimeWindow{Days: []int{0, 1, 2, 3, 4}},
			}
			accounts := &fakeAccounts{snaps: []broker.AccountSnapshot{{Balance: 10000, Equity: tt.equity}}}
			p := newProtector(t, cfg, Deps{Accounts: accounts, Candles: candles, Clock: fixedClock(tt.now)})
			p.RecordOutcome(broker.ClosedTrade{RealizedPL: -1})

			res, err := p.Evaluate(context.Background(), "")
			require.NoError(t, err)
			assert.Equal(t, "EUR_USD", res.Symbol)
			assert.Equal(t, tt.allowed, res.TradingAllowed)
			assert.Equal(t, tt.denyChecks, res.Denied())

			// Allowed is the AND and factor the MIN over the individual checks.
			and, min := true, 1.0
			for _, cr := range res.Checks {
				and = and && cr.Allowed()
				if cr.Factor < min {
					min = cr.Factor
				}
			}
			assert.Equal(t, and, res.TradingAllowed)
			assert.Equal(t, min, res.VolumeFactor)
			assert.InDelta(t, tt.factor, res.VolumeFactor, 1e-12)
			assert.Len(t, res.Checks, 6)
		})
	}
}

func TestProtector_RequiredChecks(t *testing.T) {
	t.Parallel()

	short := &fakeCandles{series: map[string]market.CandleSeries{
		"EUR_USD": series("EUR_USD", at("2024-06-12 00:00"), 1.1, 1.2, 1.15),
	}}

	tests := []struct {
		name     string
		required []Check
		allowed  bool
	}{
		{"optional check passes through", nil, true},
		{"required check denies", []Check{CheckVolatility}, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Config{
				Timeframe:  market.H1,
				Volatility: &VolatilityConfig{Lookback: 10, MaxMultiplier: 2},
				Required:   tt.required,
			}
			accounts := &fakeAccounts{snaps: []broker.AccountSnapshot{{Balance: 10000, Equity: 10000}}}
			p := newProtector(t, cfg, Deps{Accounts: accounts, Candles: short})

			res, err := p.Evaluate(context.Background(), "EUR_USD")
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, res.TradingAllowed)
			cr := res.Checks[CheckVolatility]
			assert.Equal(t, StatusNotEvaluated, cr.Status)
			assert.True(t, IsDataUnavailable(cr.Err))
			assert.Equal(t, 1.0, res.VolumeFactor)
		})
	}
}

func TestProtector_AccountErrorLeavesStateUntouched(t *testing.T) {
	t.Parallel()

	boom := errors.New("terminal disconnected")
	accounts := &fakeAccounts{err: boom}
	p := newProtector(t, Config{BreakdownPct: Pct(10)}, Deps{Accounts: accounts})

	res, err := p.Evaluate(context.Background(), "EUR_USD")
	assert.Same(t, boom, err)
	assert.Empty(t, res.Checks)
	assert.False(t, p.Snapshot().Initialized)
}

func TestProtector_CandleErrorIsJoined(t *testing.T) {
	t.Parallel()

	boom := errors.New("history server down")
	cfg := Config{
		Timeframe:    market.H1,
		BreakdownPct: Pct(10),
		Correlation:  &CorrelationConfig{Symbols: []string{"EUR_USD", "GBP_USD"}, MaxCorrelation: 0.8, Lookback: 10},
	}
	deps := Deps{
		Accounts:  &fakeAccounts{snaps: []broker.AccountSnapshot{{Balance: 10000, Equity: 10000}}},
		Positions: &fakePositions{},
		Candles:   &fakeCandles{err: boom},
	}
	p := newProtector(t, cfg, deps)

	res, err := p.Evaluate(context.Background(), "EUR_USD")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, res.TradingAllowed)
	assert.Equal(t, StatusError, res.Checks[CheckCorrelation].Status)
	assert.Equal(t, StatusPass, res.Checks[CheckBreakdown].Status)
	assert.True(t, p.Snapshot().Initialized)
}

func TestProtector_CorrelationUsesPositions(t *testing.T) {
	t.Parallel()

	start := at("2024-06-12 00:00")
	closes := []float64{1.10, 1.11, 1.105, 1.12, 1.115, 1.13}
	twin := make([]float64, len(closes))
	for i, v := range closes {
		twin[i] = v * 1.15
	}
	candles := &fakeCandles{series: map[string]market.CandleSeries{
		"EUR_USD": series("EUR_USD", start, closes...),
		"GBP_USD": series("GBP_USD", start, twin...),
	}}
	cfg := Config{
		Timeframe:   market.H1,
		Correlation: &CorrelationConfig{Symbols: []string{"EUR_USD", "GBP_USD"}, MaxCorrelation: 0.8, Lookback: 6},
	}

	tests := []struct {
		name      string
		positions []broker.Position
		symbol    string
		allowed   bool
	}{
		{"adding to correlated exposure", []broker.Position{{Symbol: "GBP_USD"}}, "EUR_USD", false},
		{"first position", nil, "EUR_USD", true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			deps := Deps{
				Accounts:  &fakeAccounts{snaps: []broker.AccountSnapshot{{Balance: 10000, Equity: 10000}}},
				Positions: &fakePositions{positions: tt.positions},
				Candles:   candles,
			}
			p := newProtector(t, cfg, deps)
			res, err := p.Evaluate(context.Background(), tt.symbol)
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, res.TradingAllowed)
		})
	}
}

func TestProtector_CorrelationMissingSymbolOnlyDropsItsPairs(t *testing.T) {
	t.Parallel()

	start := at("2024-06-12 00:00")
	closes := []float64{1.10, 1.11, 1.105, 1.12, 1.115, 1.13}
	twin := make([]float64, len(closes))
	for i, v := range closes {
		twin[i] = v * 1.15
	}
	candles := &fakeCandles{series: map[string]market.CandleSeries{
		"EUR_USD": series("EUR_USD", start, closes...),
		"GBP_USD": series("GBP_USD", start, twin...),
	}}
	cfg := Config{
		Timeframe: market.H1,
		Correlation: &CorrelationConfig{
			Symbols:        []string{"EUR_USD", "GBP_USD", "USD_JPY"},
			MaxCorrelation: 0.8,
			Lookback:       6,
		},
	}
	deps := Deps{
		Accounts:  &fakeAccounts{snaps: []broker.AccountSnapshot{{Balance: 10000, Equity: 10000}}},
		Positions: &fakePositions{positions: []broker.Position{{Symbol: "GBP_USD"}}},
		Candles:   candles,
	}
	p := newProtector(t, cfg, deps)

	res, err := p.Evaluate(context.Background(), "EUR_USD")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "USD_JPY")
	assert.False(t, res.TradingAllowed)
	assert.Equal(t, StatusFail, res.Checks[CheckCorrelation].Status)
}

func TestNewProtector_ConfigErrors(t *testing.T) {
	t.Parallel()

	accounts := &fakeAccounts{snaps: []broker.AccountSnapshot{{Balance: 1, Equity: 1}}}
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero breakdown", Config{BreakdownPct: Pct(0)}},
		{"negative drawdown", Config{MaxDrawdownPct: Pct(-1)}},
		{"negative weekly", Config{WeeklyLossPct: Pct(-3)}},
		{"bad streak", Config{ConsecutiveLosses: &StreakConfig{}}},
		{"volatility without timeframe", Config{Volatility: &VolatilityConfig{Lookback: 10, MaxMultiplier: 2}}},
		{"overnight range", Config{TimeWindow: &TimeWindow{Hours: []HourRange{{22, 2}}}}},
		{"required but absent", Config{BreakdownPct: Pct(5), Required: []Check{CheckVolatility}}},
		{"unknown required", Config{Required: []Check{"lunar_phase"}}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewProtector(tt.cfg, Deps{Accounts: accounts, Candles: &fakeCandles{}})
			require.Error(t, err)
			assert.True(t, IsConfigError(err), err.Error())
		})
	}

	_, err := NewProtector(Config{}, Deps{})
	assert.Error(t, err)
}

func TestProtector_SnapshotRestore(t *testing.T) {
	t.Parallel()

	accounts := &fakeAccounts{snaps: []broker.AccountSnapshot{
		{Time: at("2024-06-12 09:00"), Balance: 10000, Equity: 10000},
		{Time: at("2024-06-12 10:00"), Balance: 10000, Equity: 9700},
	}}
	cfg := Config{InitialBalance: 10000, DailyLossPct: Pct(5)}
	p := newProtector(t, cfg, Deps{Accounts: accounts})
	ctx := context.Background()
	_, err := p.Evaluate(ctx, "")
	require.NoError(t, err)
	_, err = p.Evaluate(ctx, "")
	require.NoError(t, err)

	saved := p.Snapshot()
	assert.Equal(t, 300.0, saved.Windows[Daily].LossAccum)

	again := newProtector(t, cfg, Deps{Accounts: &fakeAccounts{snaps: []broker.AccountSnapshot{
		{Time: at("2024-06-12 11:00"), Balance: 10000, Equity: 9500},
	}}})
	again.Restore(saved)
	res, err := again.Evaluate(ctx, "")
	require.NoError(t, err)
	assert.False(t, res.TradingAllowed)
	assert.Equal(t, 500.0, again.Snapshot().Windows[Daily].LossAccum)
}
