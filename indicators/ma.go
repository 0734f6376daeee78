// Package indicators provides the numeric helpers the risk and stop engines
// run over candle closes.
package indicators

import (
	"fmt"

	"github.com/rustyeddy/riskguard/market"
)

// SMA calculates the simple moving average of the last period closes.
func SMA(closes []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("period must be positive, got %d", period)
	}
	if len(closes) < period {
		return 0, fmt.Errorf("not enough candles: need %d, got %d", period, len(closes))
	}

	sum := 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		sum += closes[i]
	}
	return sum / float64(period), nil
}

// SMAOf is SMA over a candle series.
func SMAOf(s market.CandleSeries, period int) (float64, error) {
	return SMA(s.Closes(), period)
}
