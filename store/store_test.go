package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/riskguard/risk"
)

func sampleState() risk.State {
	start := time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC)
	return risk.State{
		Initialized:    true,
		InitialBalance: 10000,
		PeakBalance:    10500,
		LastEquity:     10200,
		LastBalance:    10100,
		LastTime:       start.Add(9 * time.Hour),
		Windows: map[risk.Period]risk.Window{
			risk.Daily:   {Start: start, LossAccum: 120, ReferenceBalance: 10300, Rollovers: 3},
			risk.Weekly:  {Start: start.AddDate(0, 0, -2), LossAccum: 250, ReferenceBalance: 10000},
			risk.Monthly: {Start: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), LossAccum: 250, ReferenceBalance: 10000},
		},
		ConsecutiveLosses: 2,
	}
}

func assertSameState(t *testing.T, want, got risk.State) {
	t.Helper()
	assert.Equal(t, want.PeakBalance, got.PeakBalance)
	assert.Equal(t, want.ConsecutiveLosses, got.ConsecutiveLosses)
	assert.True(t, want.LastTime.Equal(got.LastTime))
	require.Len(t, got.Windows, len(want.Windows))
	for p, w := range want.Windows {
		assert.True(t, w.Start.Equal(got.Windows[p].Start), p)
		assert.Equal(t, w.LossAccum, got.Windows[p].LossAccum, p)
		assert.Equal(t, w.ReferenceBalance, got.Windows[p].ReferenceBalance, p)
		assert.Equal(t, w.Rollovers, got.Windows[p].Rollovers, p)
	}
}

func TestBoltRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "state.db")
	b, err := Open(path)
	require.NoError(t, err)

	_, ok, err := b.Load("EUR_USD")
	require.NoError(t, err)
	assert.False(t, ok)

	want := sampleState()
	require.NoError(t, b.Save("EUR_USD", want))
	require.NoError(t, b.Close())

	// A new process sees the same state.
	b, err = Open(path)
	require.NoError(t, err)
	defer b.Close()

	got, ok, err := b.Load("EUR_USD")
	require.NoError(t, err)
	require.True(t, ok)
	assertSameState(t, want, got)

	keys, err := b.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"EUR_USD"}, keys)

	require.NoError(t, b.Delete("EUR_USD"))
	_, ok, err = b.Load("EUR_USD")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBoltSaveEmptyKey(t *testing.T) {
	t.Parallel()

	b, err := Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer b.Close()

	assert.Error(t, b.Save("", sampleState()))
}

func TestMemoryIsolation(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	s := sampleState()
	require.NoError(t, m.Save("ctx", s))

	s.Windows[risk.Daily] = risk.Window{LossAccum: 999}

	got, ok, err := m.Load("ctx")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 120.0, got.Windows[risk.Daily].LossAccum)

	_, ok, _ = m.Load("other")
	assert.False(t, ok)
	assert.NoError(t, m.Close())
}

func TestNilBoltClose(t *testing.T) {
	t.Parallel()

	var b *Bolt
	assert.NoError(t, b.Close())
}
