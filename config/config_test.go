package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/riskguard/market"
	"github.com/rustyeddy/riskguard/risk"
	"github.com/rustyeddy/riskguard/stops"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.NotNil(t, cfg)
	assert.Equal(t, "USD", cfg.Account.Currency)
	assert.Equal(t, 10000.0, cfg.Account.InitialBalance)
	assert.Equal(t, "EUR_USD", cfg.Symbol)
	assert.Empty(t, cfg.State.Path, "state is memory only by default")
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		errMsg    string
		configErr bool
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "missing currency", mutate: func(c *Config) { c.Account.Currency = "" }, errMsg: "account.currency is required"},
		{name: "negative balance", mutate: func(c *Config) { c.Account.InitialBalance = -1 }, errMsg: "account.initial_balance must not be negative"},
		{name: "bad timezone", mutate: func(c *Config) { c.Account.Timezone = "Mars/Olympus" }, errMsg: "account.timezone"},
		{name: "unknown instrument", mutate: func(c *Config) { c.Symbol = "INVALID" }, errMsg: "unknown instrument"},
		{name: "bad timeframe", mutate: func(c *Config) { c.Timeframe = "H7" }, errMsg: "timeframe"},
		{name: "negative breakdown", mutate: func(c *Config) { c.Protections.BreakdownPct = -1 }, configErr: true},
		{name: "zero reduction factor", mutate: func(c *Config) { c.Protections.ConsecutiveLosses.ReductionFactor = 0 }, configErr: true},
		{name: "single correlation symbol", mutate: func(c *Config) { c.Protections.Correlation.Symbols = []string{"EUR_USD"} }, configErr: true},
		{name: "overnight hours", mutate: func(c *Config) {
			c.Protections.TimeWindow.AllowedHours = []HourRange{{Start: 22, End: 6}}
		}, configErr: true},
		{name: "weekday out of range", mutate: func(c *Config) { c.Protections.TimeWindow.AllowedDays = []int{7} }, configErr: true},
		{name: "unknown required", mutate: func(c *Config) { c.Protections.Required = []string{"moon"} }, configErr: true},
		{name: "required but unconfigured", mutate: func(c *Config) {
			c.Protections.Volatility = nil
			c.Protections.Required = []string{"volatility"}
		}, configErr: true},
		{name: "bad stop strategy", mutate: func(c *Config) { c.Stops.Strategy = "parabolic" }, errMsg: "stops.strategy"},
		{name: "negative follower pips", mutate: func(c *Config) { c.Stops.Pips = -5 }, configErr: true},
		{name: "csv journal files", mutate: func(c *Config) { c.Journal.StopsFile = "" }, errMsg: "journal evaluations_file"},
		{name: "sqlite path", mutate: func(c *Config) { c.Journal = JournalConfig{Type: "sqlite"} }, errMsg: "journal db_path required"},
		{name: "journal type", mutate: func(c *Config) { c.Journal.Type = "parquet" }, errMsg: "journal.type"},
		{name: "sim price", mutate: func(c *Config) { c.Simulation.InitialPrices["EUR_USD"] = 0 }, errMsg: "must be positive"},
		{name: "sim position symbol", mutate: func(c *Config) { c.Simulation.Positions[0].Symbol = "USD_JPY" }, errMsg: "no initial price for USD_JPY"},
		{name: "sim direction", mutate: func(c *Config) { c.Simulation.Positions[0].Direction = "sideways" }, errMsg: "unknown direction"},
		{name: "sim delay", mutate: func(c *Config) { c.Simulation.PriceSteps[0].Delay = "soon" }, errMsg: "delay"},
		{name: "platform type", mutate: func(c *Config) { c.Platform.Type = "mt5" }, errMsg: "platform.type"},
		{name: "poll interval", mutate: func(c *Config) { c.Platform.PollInterval = "-1m" }, errMsg: "platform.poll_interval"},
		{name: "oanda account", mutate: func(c *Config) {
			c.Platform = PlatformConfig{Type: "oanda", Token: "t"}
		}, errMsg: "platform.account_id"},
		{name: "oanda token", mutate: func(c *Config) {
			c.Platform = PlatformConfig{Type: "oanda", AccountID: "101-001-1"}
		}, errMsg: "RISKGUARD_OANDA_TOKEN"},
		{name: "oanda skips simulation", mutate: func(c *Config) {
			c.Platform = PlatformConfig{Type: "oanda", AccountID: "101-001-1", Token: "t", Environment: "live"}
			c.Simulation.PriceSteps[0].Delay = "soon"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			switch {
			case tt.configErr:
				require.Error(t, err)
				assert.True(t, risk.IsConfigError(err), err.Error())
			case tt.errMsg != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name string
		ext  string
	}{
		{"json format", ".json"},
		{"yaml format", ".yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			path := filepath.Join(tmpDir, "test"+tt.ext)

			err := cfg.SaveToFile(path)
			require.NoError(t, err)

			_, err = os.Stat(path)
			require.NoError(t, err)

			loaded, err := LoadFromFile(path)
			require.NoError(t, err)

			assert.Equal(t, cfg.Account, loaded.Account)
			assert.Equal(t, cfg.Protections, loaded.Protections)
			assert.Equal(t, cfg.Stops, loaded.Stops)
			assert.Equal(t, cfg.Simulation.Positions, loaded.Simulation.Positions)
		})
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "riskguard.yaml")
	doc := `
account:
  currency: EUR
  timezone: Europe/Madrid
symbol: GBP_USD
timeframe: M15
protections:
  daily_loss_pct: 2.5
  time_window:
    allowed_hours:
      - {start: 8, end: 12}
      - {start: 14, end: 18}
    allowed_days: [0, 1, 2, 3, 4]
  required: [daily_loss]
stops:
  strategy: sma
  sma_period: 30
  sma_margin_pips: 10
journal:
  type: none
instruments:
  - {name: XAU_USD, base_currency: XAU, quote_currency: USD, pip_location: -2, display_precision: 2}
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	rc, err := cfg.RiskConfig()
	require.NoError(t, err)
	assert.Equal(t, market.M15, rc.Timeframe)
	assert.Equal(t, "Europe/Madrid", rc.Location.String())
	require.NotNil(t, rc.DailyLossPct)
	assert.Equal(t, 2.5, *rc.DailyLossPct)
	assert.Nil(t, rc.BreakdownPct)
	assert.Nil(t, rc.Volatility)
	require.NotNil(t, rc.TimeWindow)
	assert.Len(t, rc.TimeWindow.Hours, 2)
	assert.Equal(t, rc.Location, rc.TimeWindow.Location)
	assert.Equal(t, []risk.Check{risk.CheckDailyLoss}, rc.Required)

	s, err := cfg.StopStrategy()
	require.NoError(t, err)
	sma, ok := s.(*stops.SMA)
	require.True(t, ok)
	assert.Equal(t, 30, sma.Period)
	assert.Equal(t, market.M15, sma.Timeframe)

	cat, err := cfg.Catalog()
	require.NoError(t, err)
	meta, ok := cat.Instrument("XAU_USD")
	require.True(t, ok)
	assert.Equal(t, int32(2), meta.Precision())
}

func TestLoadInvalidFile(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path.yaml")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("account: [unterminated"), 0644))
	_, err = LoadFromFile(path)
	assert.Error(t, err)
}

func TestStopStrategy(t *testing.T) {
	cfg := Default()

	s, err := cfg.StopStrategy()
	require.NoError(t, err)
	assert.IsType(t, &stops.Follower{}, s)
	assert.Equal(t, float64(stops.DefaultFollowerPips), s.(*stops.Follower).Pips)

	cfg.Stops = StopsConfig{Strategy: "sma", SMAPeriod: 30}
	s, err = cfg.StopStrategy()
	require.NoError(t, err)
	assert.Equal(t, 30, s.(*stops.SMA).Period)

	for _, missing := range []StopsConfig{{Strategy: "follower"}, {Strategy: "sma", SMAMarginPips: 5}} {
		cfg.Stops = missing
		_, err = cfg.StopStrategy()
		assert.True(t, risk.IsConfigError(err), "%+v: %v", missing, err)
		assert.Error(t, cfg.Validate())
	}

	cfg.Stops = StopsConfig{Strategy: "none"}
	s, err = cfg.StopStrategy()
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestPriceStepParseDuration(t *testing.T) {
	tests := []struct {
		delay    string
		expected time.Duration
		wantErr  bool
	}{
		{"1h", time.Hour, false},
		{"30m", 30 * time.Minute, false},
		{"1s", time.Second, false},
		{"", 0, false},
		{"invalid", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.delay, func(t *testing.T) {
			ps := PriceStep{Delay: tt.delay}
			d, err := ps.ParseDuration()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.expected, d)
			}
		})
	}
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("RISKGUARD_LOG_LEVEL=debug\nRISKGUARD_STATE_PATH=/tmp/rg.db\n"), 0644))
	t.Setenv("RISKGUARD_METRICS_ADDR", ":9108")
	t.Setenv("RISKGUARD_INITIAL_BALANCE", "2500")
	t.Setenv("RISKGUARD_PLATFORM", "oanda")
	t.Setenv("RISKGUARD_OANDA_TOKEN", "secret")
	t.Setenv("RISKGUARD_OANDA_ACCOUNT", "101-001-1")
	t.Cleanup(func() {
		os.Unsetenv("RISKGUARD_LOG_LEVEL")
		os.Unsetenv("RISKGUARD_STATE_PATH")
	})

	o, err := LoadEnv(envFile)
	require.NoError(t, err)
	assert.Equal(t, "debug", o.LogLevel)
	assert.Equal(t, "/tmp/rg.db", o.StatePath)
	assert.Equal(t, ":9108", o.MetricsAddr)

	cfg := Default()
	cfg.Apply(o)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "/tmp/rg.db", cfg.State.Path)
	assert.Equal(t, ":9108", cfg.Metrics.Addr)
	assert.Equal(t, 2500.0, cfg.Account.InitialBalance)
	assert.Equal(t, PlatformConfig{Type: "oanda", Environment: "practice", AccountID: "101-001-1", Token: "secret", PollInterval: "1m"}, cfg.Platform)
	assert.False(t, cfg.Simulated())

	_, err = LoadEnv(filepath.Join(dir, "missing.env"))
	assert.NoError(t, err)

	t.Setenv("RISKGUARD_INITIAL_BALANCE", "lots")
	_, err = LoadEnv(filepath.Join(dir, "missing.env"))
	assert.Error(t, err)
}
