package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/riskguard/risk"
)

const evaluationCols = `id, time, symbol, allowed, volume_factor, denied, reasons, checks`

func scanEvaluation(s interface{ Scan(...any) error }) (EvaluationRecord, error) {
	var rec EvaluationRecord
	err := s.Scan(
		&rec.ID,
		&rec.Time,
		&rec.Symbol,
		&rec.Allowed,
		&rec.VolumeFactor,
		&rec.Denied,
		&rec.Reasons,
		&rec.Checks,
	)
	return rec, err
}

// GetEvaluation returns a single evaluation by ID.
func (j *SQLite) GetEvaluation(evalID string) (EvaluationRecord, error) {
	row := j.db.QueryRow(`SELECT `+evaluationCols+` FROM evaluations WHERE id = ?`, evalID)
	rec, err := scanEvaluation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return EvaluationRecord{}, fmt.Errorf("evaluation %q not found", evalID)
		}
		return EvaluationRecord{}, err
	}
	return rec, nil
}

// ListEvaluationsBetween returns evaluations whose time is within [start, end).
// deniedOnly restricts the result to verdicts that blocked trading.
func (j *SQLite) ListEvaluationsBetween(start, end time.Time, deniedOnly bool) ([]EvaluationRecord, error) {
	q := `SELECT ` + evaluationCols + ` FROM evaluations WHERE time >= ? AND time < ?`
	if deniedOnly {
		q += ` AND allowed = 0`
	}
	rows, err := j.db.Query(q+` ORDER BY time ASC, id ASC`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EvaluationRecord
	for rows.Next() {
		rec, err := scanEvaluation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// DenialCount is how often a check blocked trading.
type DenialCount struct {
	Check risk.Check
	Count int
}

// DenialSummary counts the checks that drove deny decisions in [start, end).
func (j *SQLite) DenialSummary(start, end time.Time) ([]DenialCount, error) {
	evals, err := j.ListEvaluationsBetween(start, end, true)
	if err != nil {
		return nil, err
	}
	counts := map[risk.Check]int{}
	for _, e := range evals {
		for _, c := range strings.Split(e.Denied, ",") {
			if c != "" {
				counts[risk.Check(c)]++
			}
		}
	}
	var out []DenialCount
	for _, c := range sortedChecks(counts) {
		out = append(out, DenialCount{Check: c, Count: counts[c]})
	}
	return out, nil
}

// ListStopUpdates returns the stop history of a ticket, or of every ticket
// when ticket is empty, oldest first.
func (j *SQLite) ListStopUpdates(ticket string) ([]StopRecord, error) {
	q := `SELECT id, time, ticket, symbol, direction, strategy, previous_sl, new_sl, applied, error
		FROM stop_updates`
	var args []any
	if ticket != "" {
		q += ` WHERE ticket = ?`
		args = append(args, ticket)
	}
	rows, err := j.db.Query(q+` ORDER BY time ASC, id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StopRecord
	for rows.Next() {
		var rec StopRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.Time,
			&rec.Ticket,
			&rec.Symbol,
			&rec.Direction,
			&rec.Strategy,
			&rec.Previous,
			&rec.NewSL,
			&rec.Applied,
			&rec.Error,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetTrade returns a single trade record by ID.
func (j *SQLite) GetTrade(tradeID string) (TradeRecord, error) {
	var rec TradeRecord

	row := j.db.QueryRow(`
		SELECT trade_id, instrument, units, entry_price, exit_price, open_time, close_time, realized_pl, reason
		FROM trades
		WHERE trade_id = ?`, tradeID)

	err := row.Scan(
		&rec.TradeID,
		&rec.Instrument,
		&rec.Units,
		&rec.EntryPrice,
		&rec.ExitPrice,
		&rec.OpenTime,
		&rec.CloseTime,
		&rec.RealizedPL,
		&rec.Reason,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TradeRecord{}, fmt.Errorf("trade %q not found", tradeID)
		}
		return TradeRecord{}, err
	}
	return rec, nil
}

// ListTradesClosedBetween returns trades whose close_time is within [start, end).
func (j *SQLite) ListTradesClosedBetween(start, end time.Time) ([]TradeRecord, error) {
	rows, err := j.db.Query(`
		SELECT trade_id, instrument, units, entry_price, exit_price, open_time, close_time, realized_pl, reason
		FROM trades
		WHERE close_time >= ? AND close_time < ?
		ORDER BY close_time ASC`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var rec TradeRecord
		if err := rows.Scan(
			&rec.TradeID,
			&rec.Instrument,
			&rec.Units,
			&rec.EntryPrice,
			&rec.ExitPrice,
			&rec.OpenTime,
			&rec.CloseTime,
			&rec.RealizedPL,
			&rec.Reason,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListEquityBetween returns equity rows whose time is within [start, end).
func (j *SQLite) ListEquityBetween(start, end time.Time) ([]EquitySnapshot, error) {
	rows, err := j.db.Query(`
		SELECT time, balance, equity, peak, drawdown_pct
		FROM equity
		WHERE time >= ? AND time < ?
		ORDER BY time ASC;`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		var rec EquitySnapshot
		if err := rows.Scan(
			&rec.Time,
			&rec.Balance,
			&rec.Equity,
			&rec.Peak,
			&rec.DrawdownPct,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
