package indicators

import (
	"errors"
	"math"
	"time"

	"github.com/rustyeddy/riskguard/market"
)

// ErrUndefined is returned when a statistic has no meaningful value for the
// input, for example the correlation of a constant series.
var ErrUndefined = errors.New("statistic undefined for input")

// Returns computes simple close-to-close returns. Pairs with a zero previous
// close are skipped.
func Returns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		out = append(out, (closes[i]-closes[i-1])/closes[i-1])
	}
	return out
}

func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// StdDev is the population standard deviation.
func StdDev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := Mean(xs)
	var v float64
	for _, x := range xs {
		d := x - m
		v += d * d
	}
	return math.Sqrt(v / float64(len(xs)))
}

// Pearson returns the correlation coefficient of two equal length samples.
func Pearson(xs, ys []float64) (float64, error) {
	if len(xs) != len(ys) {
		return 0, errors.New("pearson: samples differ in length")
	}
	if len(xs) < 2 {
		return 0, ErrUndefined
	}
	mx, my := Mean(xs), Mean(ys)
	var sxy, sxx, syy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return 0, ErrUndefined
	}
	r := sxy / math.Sqrt(sxx*syy)
	// Clamp rounding noise so |r| never exceeds 1.
	return math.Max(-1, math.Min(1, r)), nil
}

// AlignCloses returns the closes of a and b restricted to candles whose open
// times appear in both series, in time order.
func AlignCloses(a, b market.CandleSeries) ([]float64, []float64) {
	idx := make(map[time.Time]float64, len(b.Candles))
	for _, c := range b.Candles {
		idx[c.Time.UTC()] = c.Close
	}
	var xa, xb []float64
	for _, c := range a.Candles {
		if v, ok := idx[c.Time.UTC()]; ok {
			xa = append(xa, c.Close)
			xb = append(xb, v)
		}
	}
	return xa, xb
}
