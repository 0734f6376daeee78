package journal

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPaths(dir string) CSVPaths {
	return CSVPaths{
		Evaluations: filepath.Join(dir, "evaluations.csv"),
		Stops:       filepath.Join(dir, "stops.csv"),
		Trades:      filepath.Join(dir, "trades.csv"),
		Equity:      filepath.Join(dir, "equity.csv"),
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	fh, err := os.Open(path)
	require.NoError(t, err)
	defer fh.Close()
	rows, err := csv.NewReader(fh).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVJournalHeaders(t *testing.T) {
	t.Parallel()

	p := testPaths(t.TempDir())
	j, err := NewCSV(p)
	require.NoError(t, err)
	require.NoError(t, j.Close())

	assert.Equal(t, [][]string{evaluationHeader}, readCSV(t, p.Evaluations))
	assert.Equal(t, [][]string{stopHeader}, readCSV(t, p.Stops))
	assert.Equal(t, [][]string{tradeHeader}, readCSV(t, p.Trades))
	assert.Equal(t, [][]string{equityHeader}, readCSV(t, p.Equity))
}

func TestCSVJournalRecords(t *testing.T) {
	t.Parallel()

	p := testPaths(t.TempDir())
	j, err := NewCSV(p)
	require.NoError(t, err)

	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, j.RecordEvaluation(EvaluationRecord{
		ID: "E1", Time: at, Symbol: "EUR_USD", Allowed: false, VolumeFactor: 0.5,
		Denied: "daily_loss", Reasons: "daily loss 3.10%, limit 3%", Checks: "daily_loss=fail",
	}))
	require.NoError(t, j.RecordStopUpdate(StopRecord{
		ID: "S1", Time: at, Ticket: "7", Symbol: "EUR_USD", Direction: "long",
		Strategy: "follower(50)", Previous: 1.2, NewSL: 1.205, Applied: true,
	}))
	require.NoError(t, j.RecordTrade(TradeRecord{TradeID: "T1", Instrument: "EUR_USD", CloseTime: at, RealizedPL: -12.5, Reason: "loss"}))
	require.NoError(t, j.RecordEquity(EquitySnapshot{Time: at, Balance: 1000, Equity: 990, Peak: 1000, DrawdownPct: 1}))

	// Rows are flushed per record, before Close.
	evals := readCSV(t, p.Evaluations)
	require.Len(t, evals, 2)
	assert.Equal(t, []string{"E1", "2024-01-02T03:04:05Z", "EUR_USD", "false", "0.500000", "daily_loss", "daily loss 3.10%, limit 3%", "daily_loss=fail"}, evals[1])

	require.NoError(t, j.Close())

	st := readCSV(t, p.Stops)
	require.Len(t, st, 2)
	assert.Equal(t, "1.205000", st[1][7])
	assert.Equal(t, "true", st[1][8])

	tr := readCSV(t, p.Trades)
	require.Len(t, tr, 2)
	assert.Equal(t, "-12.500000", tr[1][7])

	eq := readCSV(t, p.Equity)
	require.Len(t, eq, 2)
	assert.Equal(t, "990.000000", eq[1][2])
}

func TestNewCSVBadPath(t *testing.T) {
	t.Parallel()

	p := testPaths(t.TempDir())
	p.Trades = filepath.Join(p.Trades, "nope", "trades.csv")
	_, err := NewCSV(p)
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	t.Parallel()

	j, err := Open(Options{})
	require.NoError(t, err)
	assert.IsType(t, Nop{}, j)

	j, err = Open(Options{Type: "sqlite", DBPath: filepath.Join(t.TempDir(), "j.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, j)
	assert.NoError(t, j.Close())

	j, err = Open(Options{Type: "csv", CSV: testPaths(t.TempDir())})
	require.NoError(t, err)
	assert.NoError(t, Multi{j, Nop{}}.RecordEquity(EquitySnapshot{}))
	assert.NoError(t, j.Close())

	_, err = Open(Options{Type: "kafka"})
	assert.Error(t, err)
}
