package stops

import (
	"github.com/shopspring/decimal"

	"github.com/rustyeddy/riskguard/broker"
)

// Ratchet decides whether candidate may replace current. An unset stop
// (current <= 0) accepts any positive candidate. Otherwise a Long stop only
// moves strictly up and a Short stop only strictly down; on rejection current
// is returned unchanged.
func Ratchet(dir broker.Direction, current, candidate float64) (float64, bool) {
	if candidate <= 0 {
		return current, false
	}
	if current <= 0 {
		return candidate, true
	}
	switch dir {
	case broker.Long:
		if candidate > current {
			return candidate, true
		}
	case broker.Short:
		if candidate < current {
			return candidate, true
		}
	}
	return current, false
}

// offset returns anchor moved dist points against the position: below for a
// Long, above for a Short.
func offset(dir broker.Direction, anchor, dist, point float64) decimal.Decimal {
	d := decimal.NewFromFloat(dist).Mul(decimal.NewFromFloat(point))
	a := decimal.NewFromFloat(anchor)
	if dir == broker.Short {
		return a.Add(d)
	}
	return a.Sub(d)
}

func round(v decimal.Decimal, precision int32) float64 {
	return v.Round(precision).InexactFloat64()
}
