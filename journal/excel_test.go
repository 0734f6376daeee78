package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/rustyeddy/riskguard/risk"
)

func TestExportXLSX(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	defer j.Close()

	base := time.Date(2024, 4, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, j.RecordEvaluation(FromResult(evalResult(base, true))))
	require.NoError(t, j.RecordEvaluation(FromResult(evalResult(base.Add(time.Hour), false, risk.CheckMaxDrawdown))))
	require.NoError(t, j.RecordStopUpdate(StopRecord{ID: "S1", Time: base, Ticket: "1", Symbol: "EUR_USD", Direction: "long", NewSL: 1.1, Applied: true}))
	require.NoError(t, j.RecordTrade(TradeRecord{TradeID: "T1", Instrument: "EUR_USD", CloseTime: base, RealizedPL: 4}))
	require.NoError(t, j.RecordEquity(EquitySnapshot{Time: base, Balance: 100, Equity: 100, Peak: 100}))

	path := filepath.Join(t.TempDir(), "out", "journal.xlsx")
	require.NoError(t, j.ExportXLSX(path, base, base.Add(24*time.Hour)))

	fx, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer fx.Close()

	assert.Equal(t, []string{evaluationsSheet, stopsSheet, tradesSheet, equitySheet}, fx.GetSheetList())

	rows, err := fx.GetRows(evaluationsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, evaluationHeader, rows[0])
	assert.Equal(t, "max_drawdown", rows[2][5])

	for sheet, want := range map[string]int{stopsSheet: 2, tradesSheet: 2, equitySheet: 2} {
		rows, err := fx.GetRows(sheet)
		require.NoError(t, err)
		assert.Len(t, rows, want, sheet)
	}
}
