// market/instruments.go
package market

import (
	"fmt"
	"math"
	"strings"
)

type InstrumentMeta struct {
	Name             string  `json:"name" yaml:"name"`
	BaseCurrency     string  `json:"base_currency" yaml:"base_currency"`
	QuoteCurrency    string  `json:"quote_currency" yaml:"quote_currency"`
	PipLocation      int     `json:"pip_location" yaml:"pip_location"`
	DisplayPrecision int     `json:"display_precision" yaml:"display_precision"`
	MarginRate       float64 `json:"margin_rate" yaml:"margin_rate"`
}

// Point is the price increment used to convert pip distances to prices.
func (m InstrumentMeta) Point() float64 {
	return PipSize(m.PipLocation)
}

// Precision is the number of decimals a stop level is rounded to.
func (m InstrumentMeta) Precision() int32 {
	if m.DisplayPrecision > 0 {
		return int32(m.DisplayPrecision)
	}
	return int32(-m.PipLocation + 1)
}

// PipSize returns the pip size for a given pip location.
func PipSize(loc int) float64 {
	return math.Pow(10, float64(loc))
}

// InstrumentSource resolves static instrument metadata.
type InstrumentSource interface {
	Instrument(symbol string) (InstrumentMeta, bool)
}

// Catalog is a symbol keyed InstrumentSource.
type Catalog map[string]InstrumentMeta

func (c Catalog) Instrument(symbol string) (InstrumentMeta, bool) {
	m, ok := c[symbol]
	if !ok {
		// Accept MetaTrader spelling (EURUSD) for OANDA style keys (EUR_USD).
		m, ok = c[normalize(symbol)]
	}
	return m, ok
}

// Add registers or replaces an instrument.
func (c Catalog) Add(m InstrumentMeta) error {
	if m.Name == "" {
		return fmt.Errorf("instrument name is required")
	}
	if m.PipLocation > 0 || m.PipLocation < -10 {
		return fmt.Errorf("instrument %s: pip_location %d out of range", m.Name, m.PipLocation)
	}
	c[m.Name] = m
	return nil
}

func normalize(symbol string) string {
	s := strings.ToUpper(strings.ReplaceAll(symbol, "/", "_"))
	if len(s) == 6 && !strings.Contains(s, "_") {
		return s[:3] + "_" + s[3:]
	}
	return s
}

// DefaultCatalog returns the majors most robots trade.
func DefaultCatalog() Catalog {
	return Catalog{
		"EUR_USD": {Name: "EUR_USD", BaseCurrency: "EUR", QuoteCurrency: "USD", PipLocation: -4, DisplayPrecision: 5, MarginRate: 0.02},
		"GBP_USD": {Name: "GBP_USD", BaseCurrency: "GBP", QuoteCurrency: "USD", PipLocation: -4, DisplayPrecision: 5, MarginRate: 0.02},
		"AUD_USD": {Name: "AUD_USD", BaseCurrency: "AUD", QuoteCurrency: "USD", PipLocation: -4, DisplayPrecision: 5, MarginRate: 0.02},
		"USD_CHF": {Name: "USD_CHF", BaseCurrency: "USD", QuoteCurrency: "CHF", PipLocation: -4, DisplayPrecision: 5, MarginRate: 0.02},
		"USD_JPY": {Name: "USD_JPY", BaseCurrency: "USD", QuoteCurrency: "JPY", PipLocation: -2, DisplayPrecision: 3, MarginRate: 0.02},
		"EUR_JPY": {Name: "EUR_JPY", BaseCurrency: "EUR", QuoteCurrency: "JPY", PipLocation: -2, DisplayPrecision: 3, MarginRate: 0.02},
	}
}
