package sim

import (
	"math"

	"github.com/rustyeddy/riskguard/market"
)

// Per-trade accounting in the account currency. rate converts one unit of
// the instrument's quote currency (see market.QuoteToAccountRate).

// UnrealizedPL is what closing t at mark would realise. Signed units make
// shorts gain when mark falls below entry.
func UnrealizedPL(t Trade, mark, rate float64) float64 {
	return (mark - t.EntryPrice) * t.Units * rate
}

// TradeMargin is the margin a position of units held at price ties up.
func TradeMargin(units, price float64, meta market.InstrumentMeta, rate float64) float64 {
	return notional(units, price, rate) * meta.MarginRate
}

func notional(units, price, rate float64) float64 {
	return math.Abs(units) * price * rate
}
