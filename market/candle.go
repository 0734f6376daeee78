package market

import (
	"fmt"
	"time"
)

// Candle represents OHLC (Open, High, Low, Close) candlestick data.
// Time is the candle open time.
type Candle struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// CandleSeries is an ordered (oldest first) run of candles for one
// symbol and timeframe.
type CandleSeries struct {
	Symbol    string
	Timeframe Timeframe
	Candles   []Candle
}

func (s CandleSeries) Len() int { return len(s.Candles) }

// Closes returns the close prices in series order.
func (s CandleSeries) Closes() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.Close
	}
	return out
}

// Last returns a series holding at most the n most recent candles.
func (s CandleSeries) Last(n int) CandleSeries {
	if n >= len(s.Candles) || n < 0 {
		return s
	}
	return CandleSeries{
		Symbol:    s.Symbol,
		Timeframe: s.Timeframe,
		Candles:   s.Candles[len(s.Candles)-n:],
	}
}

// Validate checks that candles are strictly increasing in time.
func (s CandleSeries) Validate() error {
	for i := 1; i < len(s.Candles); i++ {
		if !s.Candles[i].Time.After(s.Candles[i-1].Time) {
			return fmt.Errorf("%s %s: candle %d at %s not after %s",
				s.Symbol, s.Timeframe, i, s.Candles[i].Time, s.Candles[i-1].Time)
		}
	}
	return nil
}
