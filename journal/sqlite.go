package journal

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordEvaluation(e EvaluationRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO evaluations
		(id, time, symbol, allowed, volume_factor, denied, reasons, checks)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Time, e.Symbol, e.Allowed, e.VolumeFactor, e.Denied, e.Reasons, e.Checks,
	)
	return err
}

func (j *SQLite) RecordStopUpdate(s StopRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO stop_updates
		(id, time, ticket, symbol, direction, strategy, previous_sl, new_sl, applied, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Time, s.Ticket, s.Symbol, s.Direction, s.Strategy,
		s.Previous, s.NewSL, s.Applied, s.Error,
	)
	return err
}

// RecordTrade upserts so that a trade replayed after a restart does not fail.
func (j *SQLite) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT OR REPLACE INTO trades
		(trade_id, instrument, units, entry_price, exit_price, open_time, close_time, realized_pl, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TradeID, t.Instrument, t.Units, t.EntryPrice,
		t.ExitPrice, t.OpenTime, t.CloseTime, t.RealizedPL, t.Reason,
	)
	return err
}

func (j *SQLite) RecordEquity(e EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO equity
		(time, balance, equity, peak, drawdown_pct)
		VALUES (?, ?, ?, ?, ?)`,
		e.Time, e.Balance, e.Equity, e.Peak, e.DrawdownPct,
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
