package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/riskguard/broker"
	"github.com/rustyeddy/riskguard/market"
	"github.com/rustyeddy/riskguard/risk"
	"github.com/rustyeddy/riskguard/stops"
)

// RiskConfig builds and validates the protector configuration.
func (c *Config) RiskConfig() (risk.Config, error) {
	loc, err := c.Location()
	if err != nil {
		return risk.Config{}, fmt.Errorf("account.timezone: %w", err)
	}
	tf, err := market.ParseTimeframe(c.Timeframe)
	if err != nil {
		return risk.Config{}, fmt.Errorf("timeframe: %w", err)
	}
	p := c.Protections

	rc := risk.Config{
		Symbol:         c.Symbol,
		Timeframe:      tf,
		InitialBalance: c.Account.InitialBalance,
		Location:       loc,
		BreakdownPct:   pct(p.BreakdownPct),
		MaxDrawdownPct: pct(p.MaxDrawdownPct),
		DailyLossPct:   pct(p.DailyLossPct),
		WeeklyLossPct:  pct(p.WeeklyLossPct),
		MonthlyLossPct: pct(p.MonthlyLossPct),
	}

	if cl := p.ConsecutiveLosses; cl != nil {
		rc.ConsecutiveLosses = &risk.StreakConfig{
			MaxConsecutiveLosses:  cl.Max,
			VolumeReductionFactor: cl.ReductionFactor,
		}
	}
	if v := p.Volatility; v != nil {
		rc.Volatility = &risk.VolatilityConfig{
			Symbol:           v.Symbol,
			Timeframe:        market.Timeframe(v.Timeframe),
			Lookback:         v.Lookback,
			MaxMultiplier:    v.MaxMultiplier,
			ReferencePeriods: v.ReferencePeriods,
			Baseline:         v.Baseline,
		}
	}
	if cr := p.Correlation; cr != nil {
		rc.Correlation = &risk.CorrelationConfig{
			Symbols:        cr.Symbols,
			Timeframe:      market.Timeframe(cr.Timeframe),
			MaxCorrelation: cr.Max,
			Lookback:       cr.Lookback,
		}
	}
	if tw := p.TimeWindow; tw != nil {
		wloc := loc
		if tw.Timezone != "" {
			if wloc, err = time.LoadLocation(tw.Timezone); err != nil {
				return risk.Config{}, fmt.Errorf("protections.time_window.timezone: %w", err)
			}
		}
		w := &risk.TimeWindow{Days: tw.AllowedDays, Location: wloc}
		for _, h := range tw.AllowedHours {
			w.Hours = append(w.Hours, risk.HourRange{Start: h.Start, End: h.End})
		}
		rc.TimeWindow = w
	}
	for _, name := range p.Required {
		chk, err := risk.ParseCheck(name)
		if err != nil {
			return risk.Config{}, err
		}
		rc.Required = append(rc.Required, chk)
	}

	if err := rc.Validate(); err != nil {
		return risk.Config{}, err
	}
	return rc, nil
}

// pct maps the zero value to "not configured". Negative values are kept so
// validation rejects them.
func pct(v float64) *float64 {
	if v == 0 {
		return nil
	}
	return risk.Pct(v)
}

// StopStrategy builds the configured stop strategy, nil when stops are
// disabled.
func (c *Config) StopStrategy() (stops.Strategy, error) {
	s := c.Stops
	switch strings.ToLower(s.Strategy) {
	case "", "none":
		return nil, nil
	case "follower":
		// Zero pips is rejected by NewFollower rather than defaulted.
		return stops.NewFollower(s.Pips)
	case "sma":
		tf := s.Timeframe
		if tf == "" {
			tf = c.Timeframe
		}
		return stops.NewSMA(s.SMAMarginPips, s.SMAPeriod, market.Timeframe(tf))
	default:
		return nil, fmt.Errorf("stops.strategy must be 'follower', 'sma' or 'none', got %q", s.Strategy)
	}
}

func parseDirection(s string) (broker.Direction, error) {
	return broker.ParseDirection(strings.ToLower(s))
}
