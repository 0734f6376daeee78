package journal

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/riskguard/broker"
	"github.com/rustyeddy/riskguard/risk"
	"github.com/rustyeddy/riskguard/stops"
)

func evalResult(at time.Time, allowed bool, denied ...risk.Check) risk.Result {
	res := risk.Result{
		Time:           at,
		Symbol:         "EUR_USD",
		TradingAllowed: allowed,
		VolumeFactor:   1,
		Checks:         map[risk.Check]risk.CheckResult{},
	}
	res.Checks[risk.CheckVolatility] = risk.CheckResult{Check: risk.CheckVolatility, Status: risk.StatusPass, Factor: 1}
	for _, c := range denied {
		res.Checks[c] = risk.CheckResult{Check: c, Status: risk.StatusFail, Factor: 1, Reason: string(c) + " hit"}
		res.Reasons = append(res.Reasons, string(c)+" hit")
	}
	return res
}

func TestFromResult(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 6, 12, 10, 0, 0, 0, time.UTC)
	rec := FromResult(evalResult(at, false, risk.CheckDailyLoss, risk.CheckBreakdown))

	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.Allowed)
	assert.Equal(t, "breakdown,daily_loss", rec.Denied)
	assert.Equal(t, "breakdown=fail daily_loss=fail volatility=pass", rec.Checks)
	assert.Equal(t, "daily_loss hit; breakdown hit", rec.Reasons)
}

func TestEvaluationQueries(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()

	base := time.Date(2024, 4, 10, 9, 0, 0, 0, time.UTC)
	results := []risk.Result{
		evalResult(base, true),
		evalResult(base.Add(time.Hour), false, risk.CheckDailyLoss),
		evalResult(base.Add(2*time.Hour), false, risk.CheckDailyLoss, risk.CheckTimeWindow),
		evalResult(base.Add(48*time.Hour), false, risk.CheckBreakdown),
	}
	var ids []string
	for _, r := range results {
		rec := FromResult(r)
		ids = append(ids, rec.ID)
		require.NoError(t, j.RecordEvaluation(rec))
	}

	got, err := j.GetEvaluation(ids[1])
	require.NoError(t, err)
	assert.False(t, got.Allowed)
	assert.Equal(t, "daily_loss", got.Denied)
	assert.True(t, got.Time.Equal(base.Add(time.Hour)))

	_, err = j.GetEvaluation("nope")
	assert.ErrorContains(t, err, "not found")

	day, err := j.ListEvaluationsBetween(base, base.Add(24*time.Hour), false)
	require.NoError(t, err)
	assert.Len(t, day, 3)
	assert.Equal(t, ids[0], day[0].ID)

	denied, err := j.ListEvaluationsBetween(base, base.Add(24*time.Hour), true)
	require.NoError(t, err)
	assert.Len(t, denied, 2)

	summary, err := j.DenialSummary(base, base.Add(72*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []DenialCount{
		{Check: risk.CheckBreakdown, Count: 1},
		{Check: risk.CheckDailyLoss, Count: 2},
		{Check: risk.CheckTimeWindow, Count: 1},
	}, summary)
}

func TestStopUpdateQueries(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()

	at := time.Date(2024, 4, 10, 9, 0, 0, 0, time.UTC)
	d1 := stops.Decision{Ticket: "A", Symbol: "EUR_USD", Direction: broker.Long, NewSL: 1.2050}
	d2 := stops.Decision{Ticket: "A", Symbol: "EUR_USD", Direction: broker.Long, Previous: 1.2050, NewSL: 1.2070}
	d3 := stops.Decision{Ticket: "B", Symbol: "USD_JPY", Direction: broker.Short, NewSL: 151.2}

	require.NoError(t, j.RecordStopUpdate(FromDecision(d1, "follower(50)", at, nil)))
	require.NoError(t, j.RecordStopUpdate(FromDecision(d2, "follower(50)", at.Add(time.Hour), errors.New("market closed"))))
	require.NoError(t, j.RecordStopUpdate(FromDecision(d3, "follower(50)", at.Add(time.Hour), nil)))

	hist, err := j.ListStopUpdates("A")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.True(t, hist[0].Applied)
	assert.Equal(t, 1.2050, hist[0].NewSL)
	assert.False(t, hist[1].Applied)
	assert.Equal(t, "market closed", hist[1].Error)
	assert.Equal(t, "long", hist[1].Direction)

	all, err := j.ListStopUpdates("")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestGetTrade(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()

	closeT := time.Date(2024, 4, 10, 15, 30, 0, 0, time.UTC)
	rec := FromClosedTrade(broker.ClosedTrade{Ticket: "T123", Symbol: "EUR_USD", CloseTime: closeT, RealizedPL: -37.5})
	require.NoError(t, j.RecordTrade(rec))

	got, err := j.GetTrade("T123")
	require.NoError(t, err)
	assert.Equal(t, "EUR_USD", got.Instrument)
	assert.Equal(t, "loss", got.Reason)
	assert.True(t, got.CloseTime.Equal(closeT))
	assert.InDelta(t, -37.5, got.RealizedPL, 1e-9)

	_, err = j.GetTrade("nonexistent")
	assert.ErrorContains(t, err, "not found")
}

func TestListTradesClosedBetween(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()

	base := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)
	for i, pl := range []float64{10, -5, 7} {
		require.NoError(t, j.RecordTrade(TradeRecord{
			TradeID:    string(rune('a' + i)),
			Instrument: "EUR_USD",
			CloseTime:  base.Add(time.Duration(i) * 12 * time.Hour),
			RealizedPL: pl,
		}))
	}

	got, err := j.ListTradesClosedBetween(base, base.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].TradeID)
	assert.Equal(t, "b", got[1].TradeID)
}

func TestFromState(t *testing.T) {
	t.Parallel()

	s := risk.State{PeakBalance: 12000, LastEquity: 10200, LastBalance: 10000}
	e := FromState(s)
	assert.InDelta(t, 15.0, e.DrawdownPct, 1e-9)
	assert.Equal(t, 10000.0, e.Balance)
}
