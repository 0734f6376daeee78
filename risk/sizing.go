package risk

import (
	"math"

	"github.com/rustyeddy/riskguard/market"
)

type SizeInputs struct {
	Equity      float64
	RiskPct     float64 // 0.005
	EntryPrice  float64
	StopPrice   float64
	PipLocation int
	// QuoteToAccount converts one unit of quote currency into the account
	// currency: 1 for EUR_USD on a USD account, 1/mid(USD_JPY) for USD_JPY.
	QuoteToAccount float64
	// VolumeFactor is the Protector's multiplier. Zero means 1.
	VolumeFactor float64
}

type Size struct {
	Units      float64
	StopPips   float64
	RiskAmount float64
}

// Calculate sizes a position so that hitting the stop loses RiskPct of
// equity, scaled by the volume factor.
func Calculate(in SizeInputs) Size {
	pip := market.PipSize(in.PipLocation)
	stopPips := math.Abs(in.EntryPrice-in.StopPrice) / pip

	factor := in.VolumeFactor
	if factor <= 0 || factor > 1 {
		factor = 1
	}
	riskAmt := in.Equity * in.RiskPct * factor
	pipValuePerUnit := pip * in.QuoteToAccount
	if stopPips == 0 || pipValuePerUnit == 0 {
		return Size{StopPips: stopPips, RiskAmount: riskAmt}
	}

	units := riskAmt / (stopPips * pipValuePerUnit)

	return Size{
		Units:      math.Floor(units),
		StopPips:   stopPips,
		RiskAmount: riskAmt,
	}
}

// AdjustVolume applies factor to a base lot size, rounding down to step.
// Results below min are raised to min so a reduced posture still trades,
// which means the result can exceed base*factor.
func AdjustVolume(base, factor, step, min float64) float64 {
	if factor <= 0 || factor > 1 {
		factor = 1
	}
	v := base * factor
	if step > 0 {
		// Small epsilon keeps 0.3/0.1 style quotients from flooring to 2.
		v = math.Floor(v/step+1e-9) * step
	}
	if v < min {
		v = min
	}
	return v
}
