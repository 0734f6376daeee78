package market

import "context"

// CandleSource supplies closed candles. Implementations return at most count
// candles, most recent last; fewer are returned when history is short.
type CandleSource interface {
	Candles(ctx context.Context, symbol string, tf Timeframe, count int) (CandleSeries, error)
}
