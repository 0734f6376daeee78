package cmd

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/riskguard/journal"
)

type journalFlags struct {
	db       string
	timezone string
}

func (f *journalFlags) open() (*journal.SQLite, error) {
	j, err := journal.NewSQLite(f.db)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return j, nil
}

func (f *journalFlags) location() (*time.Location, error) {
	if f.timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(f.timezone)
}

// bounds returns the day range for day, today when empty.
func (f *journalFlags) bounds(day string) (time.Time, time.Time, error) {
	loc, err := f.location()
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if day == "" {
		day = time.Now().In(loc).Format("2006-01-02")
	}
	return dayBounds(loc, day)
}

func newJournalCmd() *cobra.Command {
	jf := &journalFlags{}
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Query the decision journal",
		Long: `Query and export the SQLite decision journal.

Subcommands:
  evaluations - Protection verdicts of a day
  denials     - Which checks blocked trading on a day
  stops       - Stop loss history, optionally for one ticket
  trade       - Details of a closed trade
  trades      - Trades closed on a day
  export      - Write an Excel workbook of a date range

Examples:
  riskguard journal evaluations --day 2024-06-12 --denied
  riskguard journal stops 01J0ABCD
  riskguard journal export --from 2024-06-01 --to 2024-07-01 -o june.xlsx`,
	}
	cmd.PersistentFlags().StringVarP(&jf.db, "db", "d", "./riskguard.sqlite", "path to SQLite journal DB")
	cmd.PersistentFlags().StringVar(&jf.timezone, "tz", "", "time zone for day boundaries (default local)")

	cmd.AddCommand(
		newJournalEvaluationsCmd(jf),
		newJournalDenialsCmd(jf),
		newJournalStopsCmd(jf),
		newJournalTradeCmd(jf),
		newJournalTradesCmd(jf),
		newJournalExportCmd(jf),
	)
	return cmd
}

func newJournalEvaluationsCmd(jf *journalFlags) *cobra.Command {
	var (
		day    string
		denied bool
	)
	cmd := &cobra.Command{
		Use:   "evaluations",
		Short: "List protection verdicts of a day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := jf.bounds(day)
			if err != nil {
				return fmt.Errorf("date: %w", err)
			}
			j, err := jf.open()
			if err != nil {
				return err
			}
			defer j.Close()

			recs, err := j.ListEvaluationsBetween(start, end, denied)
			if err != nil {
				return fmt.Errorf("query evaluations: %w", err)
			}
			renderEvaluations(cmd.OutOrStdout(), recs)
			return nil
		},
	}
	cmd.Flags().StringVar(&day, "day", "", "day as YYYY-MM-DD (default today)")
	cmd.Flags().BoolVar(&denied, "denied", false, "only deny verdicts")
	return cmd
}

func newJournalDenialsCmd(jf *journalFlags) *cobra.Command {
	var day string
	cmd := &cobra.Command{
		Use:   "denials",
		Short: "Count the checks that blocked trading on a day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := jf.bounds(day)
			if err != nil {
				return fmt.Errorf("date: %w", err)
			}
			j, err := jf.open()
			if err != nil {
				return err
			}
			defer j.Close()

			counts, err := j.DenialSummary(start, end)
			if err != nil {
				return fmt.Errorf("query denials: %w", err)
			}
			t := newTable(cmd.OutOrStdout(), "DENIALS "+start.Format("2006-01-02"))
			t.AppendHeader(table.Row{"Check", "Count"})
			for _, c := range counts {
				t.AppendRow(table.Row{c.Check, c.Count})
			}
			t.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&day, "day", "", "day as YYYY-MM-DD (default today)")
	return cmd
}

func newJournalStopsCmd(jf *journalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stops [ticket]",
		Short: "Show the stop loss history",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := jf.open()
			if err != nil {
				return err
			}
			defer j.Close()

			var ticket string
			if len(args) == 1 {
				ticket = args[0]
			}
			recs, err := j.ListStopUpdates(ticket)
			if err != nil {
				return fmt.Errorf("query stops: %w", err)
			}
			renderStopRecords(cmd.OutOrStdout(), recs)
			return nil
		},
	}
}

func newJournalTradeCmd(jf *journalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "trade <trade-id>",
		Short: "Get details of a closed trade",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := jf.open()
			if err != nil {
				return err
			}
			defer j.Close()

			rec, err := j.GetTrade(args[0])
			if err != nil {
				return fmt.Errorf("get trade: %w", err)
			}
			t := newTable(cmd.OutOrStdout(), "TRADE "+rec.TradeID)
			t.AppendRows([]table.Row{
				{"instrument", rec.Instrument},
				{"units", fmt.Sprintf("%.0f", rec.Units)},
				{"entry", price(rec.EntryPrice)},
				{"exit", price(rec.ExitPrice)},
				{"opened", rec.OpenTime.Format(time.RFC3339)},
				{"closed", rec.CloseTime.Format(time.RFC3339)},
				{"realized P/L", fmt.Sprintf("%.2f", rec.RealizedPL)},
				{"outcome", rec.Reason},
			})
			t.Render()
			return nil
		},
	}
}

func newJournalTradesCmd(jf *journalFlags) *cobra.Command {
	var day string
	cmd := &cobra.Command{
		Use:   "trades",
		Short: "List trades closed on a day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := jf.bounds(day)
			if err != nil {
				return fmt.Errorf("date: %w", err)
			}
			j, err := jf.open()
			if err != nil {
				return err
			}
			defer j.Close()

			recs, err := j.ListTradesClosedBetween(start, end)
			if err != nil {
				return fmt.Errorf("query trades: %w", err)
			}
			renderTrades(cmd.OutOrStdout(), recs)
			return nil
		},
	}
	cmd.Flags().StringVar(&day, "day", "", "day as YYYY-MM-DD (default today)")
	return cmd
}

func newJournalExportCmd(jf *journalFlags) *cobra.Command {
	var out, from, to string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export evaluations, stops, trades and equity to Excel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := jf.location()
			if err != nil {
				return err
			}
			start, _, err := dayBounds(loc, from)
			if err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			// --to is inclusive
			_, end, err := dayBounds(loc, to)
			if err != nil {
				return fmt.Errorf("--to: %w", err)
			}
			if !end.After(start) {
				return fmt.Errorf("--to must not be before --from")
			}

			j, err := jf.open()
			if err != nil {
				return err
			}
			defer j.Close()

			if err := j.ExportXLSX(out, start, end); err != nil {
				return fmt.Errorf("export: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Exported %s .. %s to %s\n", from, to, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "riskguard.xlsx", "workbook path")
	cmd.Flags().StringVar(&from, "from", "", "first day as YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&to, "to", "", "last day as YYYY-MM-DD (required)")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")
	return cmd
}

func dayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1)
	return start, end, nil
}
