// pkg/journal/csv.go
package journal

import (
	"encoding/csv"
	"errors"
	"os"
	"strconv"
	"time"
)

// CSVPaths names the file of each record kind.
type CSVPaths struct {
	Evaluations string
	Stops       string
	Trades      string
	Equity      string
}

type CSVJournal struct {
	evals, stops, trades, equity *csv.Writer
	files                        []*os.File
}

var (
	evaluationHeader = []string{"id", "time", "symbol", "allowed", "volume_factor", "denied", "reasons", "checks"}
	stopHeader       = []string{"id", "time", "ticket", "symbol", "direction", "strategy", "previous_sl", "new_sl", "applied", "error"}
	tradeHeader      = []string{"trade_id", "instrument", "units", "entry_price", "exit_price", "open_time", "close_time", "realized_pl", "reason"}
	equityHeader     = []string{"time", "balance", "equity", "peak", "drawdown_pct"}
)

// NewCSV creates (truncates) the four files and writes their headers.
func NewCSV(p CSVPaths) (*CSVJournal, error) {
	j := &CSVJournal{}
	open := func(path string, header []string) (*csv.Writer, error) {
		fh, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		j.files = append(j.files, fh)
		w := csv.NewWriter(fh)
		if err := w.Write(header); err != nil {
			return nil, err
		}
		w.Flush()
		return w, w.Error()
	}

	var err error
	if j.evals, err = open(p.Evaluations, evaluationHeader); err != nil {
		j.closeFiles()
		return nil, err
	}
	if j.stops, err = open(p.Stops, stopHeader); err != nil {
		j.closeFiles()
		return nil, err
	}
	if j.trades, err = open(p.Trades, tradeHeader); err != nil {
		j.closeFiles()
		return nil, err
	}
	if j.equity, err = open(p.Equity, equityHeader); err != nil {
		j.closeFiles()
		return nil, err
	}
	return j, nil
}

func write(w *csv.Writer, rec []string) error {
	if err := w.Write(rec); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func (j *CSVJournal) RecordEvaluation(e EvaluationRecord) error {
	return write(j.evals, []string{
		e.ID,
		e.Time.Format(time.RFC3339),
		e.Symbol,
		strconv.FormatBool(e.Allowed),
		f(e.VolumeFactor),
		e.Denied,
		e.Reasons,
		e.Checks,
	})
}

func (j *CSVJournal) RecordStopUpdate(s StopRecord) error {
	return write(j.stops, []string{
		s.ID,
		s.Time.Format(time.RFC3339),
		s.Ticket,
		s.Symbol,
		s.Direction,
		s.Strategy,
		f(s.Previous),
		f(s.NewSL),
		strconv.FormatBool(s.Applied),
		s.Error,
	})
}

func (j *CSVJournal) RecordTrade(t TradeRecord) error {
	return write(j.trades, []string{
		t.TradeID,
		t.Instrument,
		f(t.Units),
		f(t.EntryPrice),
		f(t.ExitPrice),
		t.OpenTime.Format(time.RFC3339),
		t.CloseTime.Format(time.RFC3339),
		f(t.RealizedPL),
		t.Reason,
	})
}

func (j *CSVJournal) RecordEquity(e EquitySnapshot) error {
	return write(j.equity, []string{
		e.Time.Format(time.RFC3339),
		f(e.Balance),
		f(e.Equity),
		f(e.Peak),
		f(e.DrawdownPct),
	})
}

func (j *CSVJournal) Close() error {
	var errs []error
	for _, w := range []*csv.Writer{j.evals, j.stops, j.trades, j.equity} {
		w.Flush()
		errs = append(errs, w.Error())
	}
	errs = append(errs, j.closeFiles())
	return errors.Join(errs...)
}

func (j *CSVJournal) closeFiles() error {
	var errs []error
	for _, fh := range j.files {
		errs = append(errs, fh.Close())
	}
	j.files = nil
	return errors.Join(errs...)
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
