package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment override, e.g. RISKGUARD_LOG_LEVEL.
const EnvPrefix = "RISKGUARD"

// Overrides are runtime knobs taken from the environment. Empty fields leave
// the file configuration alone.
type Overrides struct {
	Symbol      string  `envconfig:"SYMBOL"`
	LogLevel    string  `envconfig:"LOG_LEVEL"`
	LogFormat   string  `envconfig:"LOG_FORMAT"`
	StatePath   string  `envconfig:"STATE_PATH"`
	JournalType string  `envconfig:"JOURNAL_TYPE"`
	JournalDB   string  `envconfig:"JOURNAL_DB"`
	MetricsAddr string  `envconfig:"METRICS_ADDR"`
	Balance     float64 `envconfig:"INITIAL_BALANCE"`

	Platform     string `envconfig:"PLATFORM"`
	OandaToken   string `envconfig:"OANDA_TOKEN"`
	OandaAccount string `envconfig:"OANDA_ACCOUNT"`
}

// LoadEnv reads envFile into the process environment when it exists and
// then processes the RISKGUARD_* variables.
func LoadEnv(envFile string) (Overrides, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Overrides{}, fmt.Errorf("load %s: %w", envFile, err)
	}

	var o Overrides
	if err := envconfig.Process(EnvPrefix, &o); err != nil {
		return Overrides{}, fmt.Errorf("environment: %w", err)
	}
	return o, nil
}

// Apply copies the non-empty overrides into c.
func (c *Config) Apply(o Overrides) {
	if o.Symbol != "" {
		c.Symbol = o.Symbol
	}
	if o.LogLevel != "" {
		c.Log.Level = o.LogLevel
	}
	if o.LogFormat != "" {
		c.Log.Format = o.LogFormat
	}
	if o.StatePath != "" {
		c.State.Path = o.StatePath
	}
	if o.JournalType != "" {
		c.Journal.Type = o.JournalType
	}
	if o.JournalDB != "" {
		c.Journal.DBPath = o.JournalDB
	}
	if o.MetricsAddr != "" {
		c.Metrics.Addr = o.MetricsAddr
	}
	if o.Balance > 0 {
		c.Account.InitialBalance = o.Balance
	}
	if o.Platform != "" {
		c.Platform.Type = o.Platform
	}
	if o.OandaToken != "" {
		c.Platform.Token = o.OandaToken
	}
	if o.OandaAccount != "" {
		c.Platform.AccountID = o.OandaAccount
	}
}
