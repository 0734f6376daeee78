package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rustyeddy/riskguard/config"
	"github.com/rustyeddy/riskguard/logging"
)

// RootConfig holds the persistent flags.
type RootConfig struct {
	ConfigPath string
	EnvFile    string
	LogLevel   string
	LogFormat  string
}

func NewRootCmd() *cobra.Command {
	rc := &RootConfig{}

	cmd := &cobra.Command{
		Use:   "riskguard",
		Short: "Account protections and dynamic stops for FX trading robots",
		Long: `riskguard decides whether a trading robot may open new positions and how
much of its normal volume it should use, and keeps the stop loss of open
positions trailing the market.

It provides tools for:
  - Evaluating drawdown, period loss, losing streak, volatility,
    correlation and trading hour protections
  - Ratcheting stops with the follower or SMA strategy
  - Replaying a simulated account through the poll cycle
  - Querying and exporting the decision journal`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&rc.ConfigPath, "config", "c", "", "path to config file (YAML or JSON); defaults are used when empty")
	cmd.PersistentFlags().StringVar(&rc.EnvFile, "env-file", ".env", "dotenv file with RISKGUARD_* overrides")
	cmd.PersistentFlags().StringVar(&rc.LogLevel, "log-level", "", "log level: debug|info|warn|error (overrides config)")
	cmd.PersistentFlags().StringVar(&rc.LogFormat, "log-format", "", "log format: console|json (overrides config)")

	cmd.AddCommand(
		newConfigCmd(rc),
		newCheckCmd(rc),
		newStopsCmd(rc),
		newRunCmd(rc),
		newJournalCmd(),
		newVersionCmd(),
	)
	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// load reads the config file (or defaults), applies environment and flag
// overrides and validates the result.
func (rc *RootConfig) load() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if rc.ConfigPath == "" {
		cfg = config.Default()
	} else if cfg, err = config.LoadFromFile(rc.ConfigPath); err != nil {
		return nil, err
	}

	o, err := config.LoadEnv(rc.EnvFile)
	if err != nil {
		return nil, err
	}
	cfg.Apply(o)
	if rc.LogLevel != "" {
		cfg.Log.Level = rc.LogLevel
	}
	if rc.LogFormat != "" {
		cfg.Log.Format = rc.LogFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (rc *RootConfig) logger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.Log.Level, cfg.Log.Format)
}
