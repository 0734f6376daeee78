package sim

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rustyeddy/riskguard/market"
)

// seedVolatility is the per bar stdev of generated close-to-close returns.
const seedVolatility = 0.001

// history keeps one bar series per symbol in the base timeframe. Replay
// prices are treated as bar closes; the bar holding the simulated now is
// returned as the last candle.
type history struct {
	tf   market.Timeframe
	bars map[string][]market.Candle
}

func newHistory(tf market.Timeframe) *history {
	return &history{tf: tf, bars: make(map[string][]market.Candle)}
}

func (h *history) record(symbol string, at time.Time, price float64) error {
	start, err := h.tf.Truncate(at)
	if err != nil {
		return err
	}
	bars := h.bars[symbol]
	if n := len(bars); n > 0 {
		last := &bars[n-1]
		switch {
		case start.Before(last.Time):
			return fmt.Errorf("%s: price at %s is older than bar %s", symbol, at.Format(time.RFC3339), last.Time.Format(time.RFC3339))
		case start.Equal(last.Time):
			last.High = math.Max(last.High, price)
			last.Low = math.Min(last.Low, price)
			last.Close = price
			last.Volume++
			return nil
		}
	}
	h.bars[symbol] = append(bars, market.Candle{
		Time: start, Open: price, High: price, Low: price, Close: price, Volume: 1,
	})
	return nil
}

// seed generates n bars of deterministic random walk ending just before the
// bar containing end, so that the last generated close equals last.
func (h *history) seed(symbol string, last float64, n int, seed int64, end time.Time) error {
	if n <= 0 {
		return nil
	}
	if len(h.bars[symbol]) > 0 {
		return fmt.Errorf("%s: history already recorded", symbol)
	}
	if last <= 0 {
		return fmt.Errorf("%s: seed price must be positive", symbol)
	}
	d, err := h.tf.Duration()
	if err != nil {
		return err
	}
	endBar, err := h.tf.Truncate(end)
	if err != nil {
		return err
	}

	sh := fnv.New64a()
	_, _ = sh.Write([]byte(symbol))
	rng := rand.New(rand.NewPCG(uint64(seed), sh.Sum64()))

	closes := make([]float64, n)
	closes[n-1] = last
	for i := n - 1; i > 0; i-- {
		closes[i-1] = closes[i] / (1 + rng.NormFloat64()*seedVolatility)
	}

	bars := make([]market.Candle, n)
	for i, c := range closes {
		open := c
		if i > 0 {
			open = closes[i-1]
		}
		wick := math.Abs(rng.NormFloat64()) * seedVolatility / 3
		bars[i] = market.Candle{
			Time:   endBar.Add(-time.Duration(n-i) * d),
			Open:   open,
			High:   math.Max(open, c) * (1 + wick),
			Low:    math.Min(open, c) * (1 - wick),
			Close:  c,
			Volume: float64(1 + rng.IntN(100)),
		}
	}
	h.bars[symbol] = bars
	return nil
}

func (h *history) candles(symbol string, tf market.Timeframe, count int) (market.CandleSeries, error) {
	base, ok := h.bars[symbol]
	if !ok {
		return market.CandleSeries{}, fmt.Errorf("no history for %s", symbol)
	}
	if tf == "" {
		tf = h.tf
	}

	var out []market.Candle
	if tf == h.tf {
		out = append(out, base...)
	} else {
		agg, err := h.aggregate(base, tf)
		if err != nil {
			return market.CandleSeries{}, err
		}
		out = agg
	}

	s := market.CandleSeries{Symbol: symbol, Timeframe: tf, Candles: out}
	if count > 0 {
		s = s.Last(count)
	}
	return s, nil
}

func (h *history) aggregate(base []market.Candle, tf market.Timeframe) ([]market.Candle, error) {
	d, err := tf.Duration()
	if err != nil {
		return nil, err
	}
	bd, _ := h.tf.Duration()
	if d < bd || d%bd != 0 {
		return nil, fmt.Errorf("cannot build %s candles from %s history", tf, h.tf)
	}

	var out []market.Candle
	for _, b := range base {
		start, err := tf.Truncate(b.Time)
		if err != nil {
			return nil, err
		}
		if n := len(out); n > 0 && out[n-1].Time.Equal(start) {
			cur := &out[n-1]
			cur.High = math.Max(cur.High, b.High)
			cur.Low = math.Min(cur.Low, b.Low)
			cur.Close = b.Close
			cur.Volume += b.Volume
			continue
		}
		b.Time = start
		out = append(out, b)
	}
	return out, nil
}
