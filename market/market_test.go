package market

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func series(closes ...float64) CandleSeries {
	t0 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	s := CandleSeries{Symbol: "EUR_USD", Timeframe: H1}
	for i, c := range closes {
		s.Candles = append(s.Candles, Candle{Time: t0.Add(time.Duration(i) * time.Hour), Open: c, High: c, Low: c, Close: c})
	}
	return s
}

func TestCandleSeriesLast(t *testing.T) {
	t.Parallel()

	s := series(1, 2, 3, 4, 5)
	assert.Equal(t, []float64{4, 5}, s.Last(2).Closes())
	assert.Equal(t, 5, s.Last(10).Len())
	assert.Equal(t, "EUR_USD", s.Last(1).Symbol)
	assert.NoError(t, s.Validate())
}

func TestCandleSeriesValidateOrder(t *testing.T) {
	t.Parallel()

	s := series(1, 2)
	s.Candles[1].Time = s.Candles[0].Time
	assert.Error(t, s.Validate())
}

func TestTimeframe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Timeframe
		sec  int32
	}{
		{"M1", M1, 60},
		{"H1", H1, 3600},
		{"14400", H4, 14400},
		{"MN1", MN1, 2592000},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			tf, err := ParseTimeframe(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, tf)
			sec, err := tf.Seconds()
			require.NoError(t, err)
			assert.Equal(t, tt.sec, sec)
		})
	}

	_, err := ParseTimeframe("H7")
	assert.Error(t, err)
	_, err = FromSeconds(-1)
	assert.Error(t, err)
}

func TestTimeframeTruncate(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 5, 17, 13, 47, 12, 0, time.UTC)
	got, err := H1.Truncate(ts)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 17, 13, 0, 0, 0, time.UTC), got)

	got, err = MN1.Truncate(ts)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), got)
}

func TestCatalogLookup(t *testing.T) {
	t.Parallel()

	c := DefaultCatalog()

	m, ok := c.Instrument("EUR_USD")
	require.True(t, ok)
	assert.InDelta(t, 0.0001, m.Point(), 1e-12)
	assert.Equal(t, int32(5), m.Precision())

	m, ok = c.Instrument("usdjpy")
	require.True(t, ok)
	assert.InDelta(t, 0.01, m.Point(), 1e-12)

	_, ok = c.Instrument("XAU_USD")
	assert.False(t, ok)

	require.NoError(t, c.Add(InstrumentMeta{Name: "XAU_USD", PipLocation: -2}))
	m, ok = c.Instrument("XAU_USD")
	require.True(t, ok)
	assert.Equal(t, int32(3), m.Precision())

	assert.Error(t, c.Add(InstrumentMeta{}))
	assert.Error(t, c.Add(InstrumentMeta{Name: "BAD", PipLocation: 2}))
}

func TestPipSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		loc  int
		want float64
	}{
		{"zero", 0, 1},
		{"negative2", -2, 0.01},
		{"negative4", -4, 0.0001},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, PipSize(tt.loc), 1e-12)
		})
	}
}

func TestQuoteToAccountRate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := DefaultCatalog()
	ticks := NewTickStore()
	ticks.Set(Tick{Instrument: "USD_JPY", Bid: 149.99, Ask: 150.01})

	rate, err := QuoteToAccountRate(ctx, c["EUR_USD"], "USD", ticks)
	require.NoError(t, err)
	assert.Equal(t, 1.0, rate)

	rate, err = QuoteToAccountRate(ctx, c["USD_JPY"], "USD", ticks)
	require.NoError(t, err)
	assert.InDelta(t, 1.0/150.0, rate, 1e-12)

	rate, err = QuoteToAccountRate(ctx, c["EUR_JPY"], "USD", ticks)
	require.NoError(t, err, "JPY converts through USD_JPY")
	assert.InDelta(t, 1.0/150.0, rate, 1e-12)

	ticks.Set(Tick{Instrument: "GBP_USD", Bid: 1.2499, Ask: 1.2501})
	rate, err = QuoteToAccountRate(ctx, c["EUR_USD"], "GBP", ticks)
	require.NoError(t, err)
	assert.InDelta(t, 1.0/1.25, rate, 1e-12)

	rate, err = QuoteToAccountRate(ctx, InstrumentMeta{Name: "EUR_GBP", BaseCurrency: "EUR", QuoteCurrency: "GBP"}, "USD", ticks)
	require.NoError(t, err)
	assert.InDelta(t, 1.25, rate, 1e-12)

	_, err = QuoteToAccountRate(ctx, c["USD_CHF"], "USD", ticks)
	assert.Error(t, err, "missing tick")
}
