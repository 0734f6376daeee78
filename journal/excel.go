package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	evaluationsSheet = "Evaluations"
	stopsSheet       = "Stops"
	tradesSheet      = "Trades"
	equitySheet      = "Equity"
)

// ExportXLSX writes every record in [start, end) to an Excel workbook with
// one sheet per record kind.
func (j *SQLite) ExportXLSX(path string, start, end time.Time) error {
	evals, err := j.ListEvaluationsBetween(start, end, false)
	if err != nil {
		return fmt.Errorf("load evaluations: %w", err)
	}
	allStops, err := j.ListStopUpdates("")
	if err != nil {
		return fmt.Errorf("load stop updates: %w", err)
	}
	trades, err := j.ListTradesClosedBetween(start, end)
	if err != nil {
		return fmt.Errorf("load trades: %w", err)
	}
	equity, err := j.ListEquityBetween(start, end)
	if err != nil {
		return fmt.Errorf("load equity: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	fx := excelize.NewFile()
	defer fx.Close()

	if err := fx.SetSheetName(fx.GetSheetName(0), evaluationsSheet); err != nil {
		return err
	}
	for _, s := range []string{stopsSheet, tradesSheet, equitySheet} {
		if _, err := fx.NewSheet(s); err != nil {
			return err
		}
	}

	header, err := fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"2F4F4F"}, Pattern: 1},
	})
	if err != nil {
		return err
	}
	denied, err := fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Color: "C00000"},
	})
	if err != nil {
		return err
	}

	var rows [][]any
	var deniedRows []int
	for i, e := range evals {
		rows = append(rows, []any{e.ID, e.Time, e.Symbol, e.Allowed, e.VolumeFactor, e.Denied, e.Reasons, e.Checks})
		if !e.Allowed {
			deniedRows = append(deniedRows, i+2)
		}
	}
	if err := writeSheet(fx, evaluationsSheet, header, evaluationHeader, rows); err != nil {
		return err
	}
	for _, r := range deniedRows {
		a, _ := excelize.CoordinatesToCellName(1, r)
		b, _ := excelize.CoordinatesToCellName(len(evaluationHeader), r)
		if err := fx.SetCellStyle(evaluationsSheet, a, b, denied); err != nil {
			return err
		}
	}

	rows = rows[:0]
	for _, s := range allStops {
		if s.Time.Before(start) || !s.Time.Before(end) {
			continue
		}
		rows = append(rows, []any{s.ID, s.Time, s.Ticket, s.Symbol, s.Direction, s.Strategy, s.Previous, s.NewSL, s.Applied, s.Error})
	}
	if err := writeSheet(fx, stopsSheet, header, stopHeader, rows); err != nil {
		return err
	}

	rows = rows[:0]
	for _, t := range trades {
		rows = append(rows, []any{t.TradeID, t.Instrument, t.Units, t.EntryPrice, t.ExitPrice, t.OpenTime, t.CloseTime, t.RealizedPL, t.Reason})
	}
	if err := writeSheet(fx, tradesSheet, header, tradeHeader, rows); err != nil {
		return err
	}

	rows = rows[:0]
	for _, e := range equity {
		rows = append(rows, []any{e.Time, e.Balance, e.Equity, e.Peak, e.DrawdownPct})
	}
	if err := writeSheet(fx, equitySheet, header, equityHeader, rows); err != nil {
		return err
	}

	fx.SetActiveSheet(0)
	return fx.SaveAs(path)
}

func writeSheet(fx *excelize.File, sheet string, style int, header []string, rows [][]any) error {
	for i, h := range header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := fx.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
		if err := fx.SetCellStyle(sheet, cell, cell, style); err != nil {
			return err
		}
	}
	last, _ := excelize.ColumnNumberToName(len(header))
	if err := fx.SetColWidth(sheet, "A", last, 16); err != nil {
		return err
	}
	for r, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, r+2)
		if err := fx.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}
