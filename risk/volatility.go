package risk

import (
	"fmt"
	"math"

	"github.com/rustyeddy/riskguard/indicators"
	"github.com/rustyeddy/riskguard/market"
)

// VolatilityConfig configures volatility based sizing. Symbol empty means the
// symbol being evaluated.
type VolatilityConfig struct {
	Symbol        string
	Timeframe     market.Timeframe
	Lookback      int
	MaxMultiplier float64
	// ReferencePeriods is the longer history the current volatility is
	// normalized against. Zero means four times Lookback.
	ReferencePeriods int
	// Baseline, when positive, is a fixed reference stdev of returns and
	// ReferencePeriods is ignored.
	Baseline float64
}

func (c VolatilityConfig) Validate() error {
	if c.Lookback < 2 {
		return configErr(CheckVolatility, "lookback", "must be at least 2, got %d", c.Lookback)
	}
	if c.MaxMultiplier < 1 {
		return configErr(CheckVolatility, "max_multiplier", "must be >= 1, got %v", c.MaxMultiplier)
	}
	if c.ReferencePeriods != 0 && c.ReferencePeriods < c.Lookback {
		return configErr(CheckVolatility, "reference_periods", "must be >= lookback (%d), got %d", c.Lookback, c.ReferencePeriods)
	}
	if c.Baseline < 0 {
		return configErr(CheckVolatility, "baseline", "must not be negative, got %v", c.Baseline)
	}
	if c.Timeframe != "" {
		if _, err := c.Timeframe.Seconds(); err != nil {
			return configErr(CheckVolatility, "timeframe", "%v", err)
		}
	}
	return nil
}

// HistoryNeeded is the number of candles to request from the data provider.
func (c VolatilityConfig) HistoryNeeded() int {
	if c.Baseline > 0 {
		return c.Lookback
	}
	if c.ReferencePeriods > 0 {
		return c.ReferencePeriods
	}
	return 4 * c.Lookback
}

// VolatilityFactor sizes down when recent return dispersion exceeds the
// reference: factor = clamp(1/r, 1/MaxMultiplier, 1).
func VolatilityFactor(s market.CandleSeries, c VolatilityConfig) (CheckResult, error) {
	if err := c.Validate(); err != nil {
		return CheckResult{}, err
	}
	// Without a fixed baseline the reference window must be complete too,
	// otherwise the ratio degenerates to about 1.
	if need := c.HistoryNeeded(); s.Len() < need {
		err := &DataUnavailableError{Check: CheckVolatility, Symbol: s.Symbol, Need: need, Have: s.Len()}
		return notEvaluated(CheckVolatility, err), err
	}

	current := indicators.StdDev(indicators.Returns(s.Last(c.Lookback).Closes()))
	reference := c.Baseline
	if reference <= 0 {
		reference = indicators.StdDev(indicators.Returns(s.Last(c.HistoryNeeded()).Closes()))
	}

	floor := 1 / c.MaxMultiplier
	var ratio, factor float64
	switch {
	case reference <= 0 && current <= 0:
		ratio, factor = 1, 1
	case reference <= 0:
		ratio, factor = math.Inf(1), floor
	default:
		ratio = current / reference
		factor = 1.0
		if ratio > 0 {
			factor = math.Max(floor, math.Min(1, 1/ratio))
		}
	}

	r := pass(CheckVolatility, ratio, c.MaxMultiplier)
	r.Factor = factor
	if factor < 1 {
		r.Reason = fmt.Sprintf("%s volatility %.2fx reference, volume factor %.2f", s.Symbol, ratio, factor)
	}
	return r, nil
}
