package risk

import (
	"fmt"
	"math"

	"github.com/rustyeddy/riskguard/indicators"
	"github.com/rustyeddy/riskguard/market"
)

type CorrelationConfig struct {
	Symbols        []string
	Timeframe      market.Timeframe
	MaxCorrelation float64
	Lookback       int
}

func (c CorrelationConfig) Validate() error {
	if len(c.Symbols) < 2 {
		return configErr(CheckCorrelation, "symbols", "need at least 2 symbols, got %d", len(c.Symbols))
	}
	seen := make(map[string]bool, len(c.Symbols))
	for _, s := range c.Symbols {
		if s == "" {
			return configErr(CheckCorrelation, "symbols", "empty symbol")
		}
		if seen[s] {
			return configErr(CheckCorrelation, "symbols", "duplicate symbol %s", s)
		}
		seen[s] = true
	}
	if c.MaxCorrelation <= 0 || c.MaxCorrelation > 1 {
		return configErr(CheckCorrelation, "max_correlation", "must be in (0, 1], got %v", c.MaxCorrelation)
	}
	if c.Lookback < 2 {
		return configErr(CheckCorrelation, "lookback", "must be at least 2, got %d", c.Lookback)
	}
	if c.Timeframe != "" {
		if _, err := c.Timeframe.Seconds(); err != nil {
			return configErr(CheckCorrelation, "timeframe", "%v", err)
		}
	}
	return nil
}

// PairCorrelation is the diagnostic for one symbol pair.
type PairCorrelation struct {
	A, B        string
	Correlation float64
	Overlap     int
	Computable  bool
	Exposed     bool
	Vetoed      bool
}

// CorrelationGuard vetoes when some pair correlates beyond MaxCorrelation in
// absolute value and both of its symbols are in exposure (held or about to
// be traded). Pairs without at least two overlapping candles, or with an
// undefined correlation, are skipped.
func CorrelationGuard(series map[string]market.CandleSeries, exposure map[string]bool, c CorrelationConfig) (CheckResult, []PairCorrelation, error) {
	if err := c.Validate(); err != nil {
		return CheckResult{}, nil, err
	}

	var (
		pairs   []PairCorrelation
		worst   = 0.0
		vetoed  *PairCorrelation
		skipped int
	)
	for i := 0; i < len(c.Symbols); i++ {
		for j := i + 1; j < len(c.Symbols); j++ {
			pc := correlatePair(series, c.Symbols[i], c.Symbols[j], c.Lookback)
			pc.Exposed = exposure[pc.A] && exposure[pc.B]
			if !pc.Computable {
				skipped++
			} else {
				abs := math.Abs(pc.Correlation)
				worst = math.Max(worst, abs)
				if abs > c.MaxCorrelation && pc.Exposed {
					pc.Vetoed = true
				}
			}
			pairs = append(pairs, pc)
			if pc.Vetoed && vetoed == nil {
				vetoed = &pairs[len(pairs)-1]
			}
		}
	}

	if vetoed != nil {
		return fail(CheckCorrelation, math.Abs(vetoed.Correlation), c.MaxCorrelation,
			"%s/%s correlation %.2f exceeds %.2f with exposure in both",
			vetoed.A, vetoed.B, vetoed.Correlation, c.MaxCorrelation), pairs, nil
	}
	r := pass(CheckCorrelation, worst, c.MaxCorrelation)
	if skipped > 0 {
		r.Reason = fmt.Sprintf("%d of %d pairs not computable", skipped, len(pairs))
	}
	return r, pairs, nil
}

func correlatePair(series map[string]market.CandleSeries, a, b string, lookback int) PairCorrelation {
	pc := PairCorrelation{A: a, B: b}
	sa, okA := series[a]
	sb, okB := series[b]
	if !okA || !okB {
		return pc
	}
	xa, xb := indicators.AlignCloses(sa.Last(lookback), sb.Last(lookback))
	pc.Overlap = len(xa)
	if pc.Overlap < 2 {
		return pc
	}
	r, err := indicators.Pearson(indicators.Returns(xa), indicators.Returns(xb))
	if err != nil {
		return pc
	}
	pc.Correlation = r
	pc.Computable = true
	return pc
}
