package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/rustyeddy/riskguard/journal"
	"github.com/rustyeddy/riskguard/risk"
	"github.com/rustyeddy/riskguard/stops"
)

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(title)
	t.SetStyle(table.StyleRounded)
	return t
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func price(v float64) string {
	if v == 0 {
		return "-"
	}
	return fmt.Sprintf("%.5f", v)
}

func renderResult(w io.Writer, res risk.Result) {
	t := newTable(w, fmt.Sprintf("PROTECTIONS %s %s", res.Symbol, res.Time.Format("2006-01-02 15:04 MST")))
	t.AppendHeader(table.Row{"Check", "Status", "Factor", "Value", "Limit", "Reason"})
	for _, cr := range res.Ordered() {
		t.AppendRow(table.Row{
			cr.Check,
			cr.Status,
			fmt.Sprintf("%.2f", cr.Factor),
			fmt.Sprintf("%.4f", cr.Value),
			fmt.Sprintf("%.4f", cr.Limit),
			cr.Reason,
		})
	}
	t.AppendFooter(table.Row{"verdict", yesNo(res.TradingAllowed), fmt.Sprintf("%.2f", res.VolumeFactor), "", "", strings.Join(res.Reasons, "; ")})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, WidthMax: 60},
	})
	t.Render()
}

func renderStops(w io.Writer, rep stops.Report, applyErrs map[string]error) {
	t := newTable(w, "STOPS "+rep.Strategy)
	t.AppendHeader(table.Row{"Ticket", "Symbol", "Outcome", "Current", "Candidate", "Detail"})
	for _, d := range rep.Decisions {
		outcome, detail := "moved", d.Reason
		if err, ok := applyErrs[d.Ticket]; ok && err != nil {
			outcome, detail = "rejected", err.Error()
		}
		t.AppendRow(table.Row{d.Ticket, d.Symbol, outcome, price(d.Previous), price(d.NewSL), detail})
	}
	for _, u := range rep.Unchanged {
		t.AppendRow(table.Row{u.Ticket, "", "unchanged", price(u.Current), price(u.Candidate), "ratchet refused"})
	}
	for _, f := range rep.Failures {
		t.AppendRow(table.Row{f.Ticket, f.Symbol, "failed", "", "", f.Err.Error()})
	}
	t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d moved", len(rep.Decisions)), "", "", ""})
	t.Render()
}

func renderEvaluations(w io.Writer, recs []journal.EvaluationRecord) {
	t := newTable(w, "EVALUATIONS")
	t.AppendHeader(table.Row{"Time", "Symbol", "Allowed", "Factor", "Denied", "Reasons"})
	for _, r := range recs {
		t.AppendRow(table.Row{r.Time.Format("2006-01-02 15:04"), r.Symbol, yesNo(r.Allowed), fmt.Sprintf("%.2f", r.VolumeFactor), r.Denied, r.Reasons})
	}
	t.AppendFooter(table.Row{"", "", "", "", "total", len(recs)})
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 6, WidthMax: 60}})
	t.Render()
}

func renderStopRecords(w io.Writer, recs []journal.StopRecord) {
	t := newTable(w, "STOP UPDATES")
	t.AppendHeader(table.Row{"Time", "Ticket", "Symbol", "Dir", "Previous", "New", "Applied", "Error"})
	for _, r := range recs {
		t.AppendRow(table.Row{r.Time.Format("2006-01-02 15:04"), r.Ticket, r.Symbol, r.Direction, price(r.Previous), price(r.NewSL), yesNo(r.Applied), r.Error})
	}
	t.Render()
}

func renderTrades(w io.Writer, recs []journal.TradeRecord) {
	t := newTable(w, "TRADES")
	t.AppendHeader(table.Row{"Closed", "Trade", "Instrument", "P/L", "Outcome"})
	var total float64
	for _, r := range recs {
		total += r.RealizedPL
		t.AppendRow(table.Row{r.CloseTime.Format("2006-01-02 15:04"), r.TradeID, r.Instrument, fmt.Sprintf("%.2f", r.RealizedPL), r.Reason})
	}
	t.AppendFooter(table.Row{"", "", "total", fmt.Sprintf("%.2f", total), ""})
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 4, Align: text.AlignRight}})
	t.Render()
}
