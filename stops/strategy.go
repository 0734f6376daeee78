package stops

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/riskguard/broker"
	"github.com/rustyeddy/riskguard/indicators"
	"github.com/rustyeddy/riskguard/market"
	"github.com/rustyeddy/riskguard/risk"
)

const (
	DefaultFollowerPips = 50
	DefaultSMAPeriod    = 20
	DefaultTimeframe    = market.H1

	CheckFollowerStop risk.Check = "follower_stop"
	CheckSMAStop      risk.Check = "sma_stop"
)

// ErrNoPrice is returned when a follower has nothing to anchor on.
var ErrNoPrice = errors.New("no current price for position")

// Strategy proposes a stop level for one position. The level is not yet
// rounded or ratcheted.
type Strategy interface {
	Name() string
	Candidate(ctx context.Context, pos broker.Position, meta market.InstrumentMeta, candles market.CandleSource) (decimal.Decimal, error)
}

// Follower trails the current price at a fixed distance in pips.
type Follower struct {
	Pips float64
}

func NewFollower(pips float64) (*Follower, error) {
	if pips <= 0 {
		return nil, &risk.ConfigError{Check: CheckFollowerStop, Field: "pips", Reason: fmt.Sprintf("must be positive, got %v", pips)}
	}
	return &Follower{Pips: pips}, nil
}

func (f *Follower) Name() string { return fmt.Sprintf("follower(%g)", f.Pips) }

// Candidate anchors on the current price. The open price is used only when
// the platform has no quote and the position has no stop yet.
func (f *Follower) Candidate(_ context.Context, pos broker.Position, meta market.InstrumentMeta, _ market.CandleSource) (decimal.Decimal, error) {
	anchor := pos.CurrentPrice
	if anchor <= 0 {
		if pos.HasStopLoss() || pos.OpenPrice <= 0 {
			return decimal.Zero, fmt.Errorf("%s %s: %w", pos.Ticket, pos.Symbol, ErrNoPrice)
		}
		anchor = pos.OpenPrice
	}
	return offset(pos.Direction, anchor, f.Pips, meta.Point()), nil
}

// SMA places the stop a margin beyond the simple moving average of closes.
type SMA struct {
	MarginPips float64
	Period     int
	Timeframe  market.Timeframe
}

func NewSMA(marginPips float64, period int, tf market.Timeframe) (*SMA, error) {
	if marginPips < 0 {
		return nil, &risk.ConfigError{Check: CheckSMAStop, Field: "margin_pips", Reason: fmt.Sprintf("must not be negative, got %v", marginPips)}
	}
	if period <= 0 {
		return nil, &risk.ConfigError{Check: CheckSMAStop, Field: "period", Reason: fmt.Sprintf("must be positive, got %d", period)}
	}
	if tf == "" {
		tf = DefaultTimeframe
	}
	if _, err := tf.Seconds(); err != nil {
		return nil, &risk.ConfigError{Check: CheckSMAStop, Field: "timeframe", Reason: err.Error()}
	}
	return &SMA{MarginPips: marginPips, Period: period, Timeframe: tf}, nil
}

func (s *SMA) Name() string { return fmt.Sprintf("sma(%d,%g)", s.Period, s.MarginPips) }

func (s *SMA) Candidate(ctx context.Context, pos broker.Position, meta market.InstrumentMeta, candles market.CandleSource) (decimal.Decimal, error) {
	if candles == nil {
		return decimal.Zero, errors.New("sma stop needs a candle source")
	}
	series, err := candles.Candles(ctx, pos.Symbol, s.Timeframe, s.Period)
	if err != nil {
		return decimal.Zero, fmt.Errorf("candles for %s: %w", pos.Symbol, err)
	}
	if series.Len() < s.Period {
		return decimal.Zero, &risk.DataUnavailableError{Check: CheckSMAStop, Symbol: pos.Symbol, Need: s.Period, Have: series.Len()}
	}
	avg, err := indicators.SMAOf(series, s.Period)
	if err != nil {
		return decimal.Zero, err
	}
	return offset(pos.Direction, avg, s.MarginPips, meta.Point()), nil
}
