package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/riskguard/config"
)

func newConfigCmd(rc *RootConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Generate or validate configuration files",
		Long: `Manage riskguard configuration files.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate an existing configuration file

Examples:
  riskguard config init -o riskguard.yaml
  riskguard config validate -f riskguard.yaml`,
	}
	cmd.AddCommand(newConfigInitCmd(), newConfigValidateCmd(rc))
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Generate a default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if err := cfg.SaveToFile(output); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Created default configuration: %s\n", output)
			fmt.Fprintln(out, "\nEdit the file and run with:")
			fmt.Fprintf(out, "  riskguard run -c %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "riskguard.yaml", "output config file path")
	return cmd
}

func newConfigValidateCmd(rc *RootConfig) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		Long: `Check that a configuration file loads and that every protection and stop
setting is within range. Environment overrides are applied first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path != "" {
				rc.ConfigPath = path
			}
			cfg, err := rc.load()
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Configuration valid: %s\n", describePath(rc.ConfigPath))
			renderConfig(cmd, cfg)
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "file", "f", "", "path to config file (defaults to --config)")
	return cmd
}

func describePath(p string) string {
	if p == "" {
		return "(defaults)"
	}
	return p
}

func renderConfig(cmd *cobra.Command, cfg *config.Config) {
	t := newTable(cmd.OutOrStdout(), "CONFIGURATION")
	t.AppendHeader(table.Row{"Setting", "Value"})
	t.AppendRow(table.Row{"account", fmt.Sprintf("%s (%.2f %s)", cfg.Account.ID, cfg.Account.InitialBalance, cfg.Account.Currency)})
	t.AppendRow(table.Row{"symbol", cfg.Symbol + " " + cfg.Timeframe})
	t.AppendSeparator()

	p := cfg.Protections
	pctRow := func(name string, v float64) {
		if v > 0 {
			t.AppendRow(table.Row{name, fmt.Sprintf("%.2f%%", v)})
		}
	}
	pctRow("breakdown", p.BreakdownPct)
	pctRow("max_drawdown", p.MaxDrawdownPct)
	pctRow("daily_loss", p.DailyLossPct)
	pctRow("weekly_loss", p.WeeklyLossPct)
	pctRow("monthly_loss", p.MonthlyLossPct)
	if s := p.ConsecutiveLosses; s != nil {
		t.AppendRow(table.Row{"consecutive_losses", fmt.Sprintf("max %d, factor %.2f", s.Max, s.ReductionFactor)})
	}
	if v := p.Volatility; v != nil {
		t.AppendRow(table.Row{"volatility", fmt.Sprintf("lookback %d, max %.2fx", v.Lookback, v.MaxMultiplier)})
	}
	if c := p.Correlation; c != nil {
		t.AppendRow(table.Row{"correlation", fmt.Sprintf("%v max %.2f over %d", c.Symbols, c.Max, c.Lookback)})
	}
	if w := p.TimeWindow; w != nil {
		t.AppendRow(table.Row{"time_window", fmt.Sprintf("hours %v days %v", w.AllowedHours, w.AllowedDays)})
	}
	t.AppendSeparator()

	strategy := cfg.Stops.Strategy
	if strategy == "" {
		strategy = "none"
	}
	t.AppendRow(table.Row{"stops", strategy})
	t.AppendRow(table.Row{"journal", cfg.Journal.Type})
	if cfg.State.Path != "" {
		t.AppendRow(table.Row{"state", cfg.State.Path})
	}
	t.Render()
}
