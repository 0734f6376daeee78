package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // zone names resolve on hosts without a zoneinfo database

	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/riskguard/market"
	"github.com/rustyeddy/riskguard/stops"
)

// Config is the complete riskguard configuration.
type Config struct {
	Account     AccountConfig           `json:"account" yaml:"account"`
	Symbol      string                  `json:"symbol" yaml:"symbol"`
	Timeframe   string                  `json:"timeframe" yaml:"timeframe"`
	Protections ProtectionsConfig       `json:"protections" yaml:"protections"`
	Stops       StopsConfig             `json:"stops" yaml:"stops"`
	Instruments []market.InstrumentMeta `json:"instruments,omitempty" yaml:"instruments,omitempty"`
	Journal     JournalConfig           `json:"journal" yaml:"journal"`
	State       StateConfig             `json:"state" yaml:"state"`
	Metrics     MetricsConfig           `json:"metrics" yaml:"metrics"`
	Log         LogConfig               `json:"log" yaml:"log"`
	Platform    PlatformConfig          `json:"platform" yaml:"platform"`
	Simulation  SimulationConfig        `json:"simulation" yaml:"simulation"`
}

// AccountConfig contains account parameters. A zero InitialBalance means the
// balance of the first snapshot is used.
type AccountConfig struct {
	ID             string  `json:"id" yaml:"id"`
	Currency       string  `json:"currency" yaml:"currency"`
	InitialBalance float64 `json:"initial_balance" yaml:"initial_balance"`
	Timezone       string  `json:"timezone,omitempty" yaml:"timezone,omitempty"`
}

// ProtectionsConfig enables protections. Zero percentages and nil sections
// are left unconfigured.
type ProtectionsConfig struct {
	BreakdownPct      float64                  `json:"breakdown_pct,omitempty" yaml:"breakdown_pct,omitempty"`
	MaxDrawdownPct    float64                  `json:"max_drawdown_pct,omitempty" yaml:"max_drawdown_pct,omitempty"`
	DailyLossPct      float64                  `json:"daily_loss_pct,omitempty" yaml:"daily_loss_pct,omitempty"`
	WeeklyLossPct     float64                  `json:"weekly_loss_pct,omitempty" yaml:"weekly_loss_pct,omitempty"`
	MonthlyLossPct    float64                  `json:"monthly_loss_pct,omitempty" yaml:"monthly_loss_pct,omitempty"`
	ConsecutiveLosses *ConsecutiveLossesConfig `json:"consecutive_losses,omitempty" yaml:"consecutive_losses,omitempty"`
	Volatility        *VolatilityConfig        `json:"volatility,omitempty" yaml:"volatility,omitempty"`
	Correlation       *CorrelationConfig       `json:"correlation,omitempty" yaml:"correlation,omitempty"`
	TimeWindow        *TimeWindowConfig        `json:"time_window,omitempty" yaml:"time_window,omitempty"`
	// Required checks deny trading when they cannot be evaluated.
	Required []string `json:"required,omitempty" yaml:"required,omitempty"`
}

type ConsecutiveLossesConfig struct {
	Max             int     `json:"max" yaml:"max"`
	ReductionFactor float64 `json:"reduction_factor" yaml:"reduction_factor"`
}

type VolatilityConfig struct {
	Symbol           string  `json:"symbol,omitempty" yaml:"symbol,omitempty"`
	Timeframe        string  `json:"timeframe,omitempty" yaml:"timeframe,omitempty"`
	Lookback         int     `json:"lookback" yaml:"lookback"`
	MaxMultiplier    float64 `json:"max_multiplier" yaml:"max_multiplier"`
	ReferencePeriods int     `json:"reference_periods,omitempty" yaml:"reference_periods,omitempty"`
	Baseline         float64 `json:"baseline,omitempty" yaml:"baseline,omitempty"`
}

type CorrelationConfig struct {
	Symbols   []string `json:"symbols" yaml:"symbols"`
	Timeframe string   `json:"timeframe,omitempty" yaml:"timeframe,omitempty"`
	Max       float64  `json:"max" yaml:"max"`
	Lookback  int      `json:"lookback" yaml:"lookback"`
}

type HourRange struct {
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`
}

// TimeWindowConfig restricts trading hours. Days are 0 = Monday .. 6 = Sunday.
type TimeWindowConfig struct {
	AllowedHours []HourRange `json:"allowed_hours,omitempty" yaml:"allowed_hours,omitempty"`
	AllowedDays  []int       `json:"allowed_days,omitempty" yaml:"allowed_days,omitempty"`
	Timezone     string      `json:"timezone,omitempty" yaml:"timezone,omitempty"`
}

// StopsConfig selects the dynamic stop strategy.
type StopsConfig struct {
	Strategy      string  `json:"strategy" yaml:"strategy"` // "follower", "sma" or "" for none
	Pips          float64 `json:"pips,omitempty" yaml:"pips,omitempty"`
	SMAPeriod     int     `json:"sma_period,omitempty" yaml:"sma_period,omitempty"`
	SMAMarginPips float64 `json:"sma_margin_pips,omitempty" yaml:"sma_margin_pips,omitempty"`
	Timeframe     string  `json:"timeframe,omitempty" yaml:"timeframe,omitempty"`
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type            string `json:"type" yaml:"type"` // "csv", "sqlite" or "none"
	EvaluationsFile string `json:"evaluations_file,omitempty" yaml:"evaluations_file,omitempty"`
	StopsFile       string `json:"stops_file,omitempty" yaml:"stops_file,omitempty"`
	TradesFile      string `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
	EquityFile      string `json:"equity_file,omitempty" yaml:"equity_file,omitempty"`
	DBPath          string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// StateConfig controls persistence of the protection state. An empty Path
// keeps state in memory only, so every run starts a fresh risk budget.
type StateConfig struct {
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

type MetricsConfig struct {
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// PlatformConfig selects where account data comes from and where stop moves
// go: the built in simulation or an OANDA v20 account.
type PlatformConfig struct {
	Type        string `json:"type" yaml:"type"` // "sim" or "oanda"
	Environment string `json:"environment,omitempty" yaml:"environment,omitempty"`
	// URL overrides the endpoint of Environment.
	URL       string `json:"url,omitempty" yaml:"url,omitempty"`
	AccountID string `json:"account_id,omitempty" yaml:"account_id,omitempty"`
	// Token is normally supplied through RISKGUARD_OANDA_TOKEN.
	Token        string `json:"token,omitempty" yaml:"token,omitempty"`
	PollInterval string `json:"poll_interval,omitempty" yaml:"poll_interval,omitempty"`
}

// Interval parses PollInterval, one minute when unset.
func (p PlatformConfig) Interval() (time.Duration, error) {
	if p.PollInterval == "" {
		return time.Minute, nil
	}
	d, err := time.ParseDuration(p.PollInterval)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", p.PollInterval)
	}
	return d, nil
}

func (p PlatformConfig) validate() error {
	if _, err := p.Interval(); err != nil {
		return fmt.Errorf("platform.poll_interval: %w", err)
	}
	switch p.Type {
	case "", "sim":
		return nil
	case "oanda":
		switch p.Environment {
		case "", "practice", "demo", "live":
		default:
			return fmt.Errorf("platform.environment must be 'practice' or 'live'")
		}
		if p.AccountID == "" {
			return fmt.Errorf("platform.account_id required for OANDA")
		}
		if p.Token == "" {
			return fmt.Errorf("OANDA token required (set %s_OANDA_TOKEN)", EnvPrefix)
		}
		return nil
	default:
		return fmt.Errorf("platform.type must be 'sim' or 'oanda'")
	}
}

// Simulated reports whether the built in simulation is the platform.
func (c *Config) Simulated() bool {
	return c.Platform.Type == "" || c.Platform.Type == "sim"
}

// SimulationConfig describes the simulated account and the price path it
// replays.
type SimulationConfig struct {
	Start         string             `json:"start,omitempty" yaml:"start,omitempty"` // RFC3339
	Balance       float64            `json:"balance" yaml:"balance"`
	Leverage      float64            `json:"leverage,omitempty" yaml:"leverage,omitempty"`
	InitialPrices map[string]float64 `json:"initial_prices" yaml:"initial_prices"`
	Spread        float64            `json:"spread_pips,omitempty" yaml:"spread_pips,omitempty"`
	HistoryBars   int                `json:"history_bars,omitempty" yaml:"history_bars,omitempty"`
	Seed          int64              `json:"seed,omitempty" yaml:"seed,omitempty"`
	Positions     []SimPosition      `json:"positions,omitempty" yaml:"positions,omitempty"`
	PriceSteps    []PriceStep        `json:"price_steps,omitempty" yaml:"price_steps,omitempty"`
}

type SimPosition struct {
	Ticket     string  `json:"ticket,omitempty" yaml:"ticket,omitempty"`
	Symbol     string  `json:"symbol" yaml:"symbol"`
	Direction  string  `json:"direction" yaml:"direction"`
	Units      float64 `json:"units" yaml:"units"`
	OpenPrice  float64 `json:"open_price,omitempty" yaml:"open_price,omitempty"`
	StopLoss   float64 `json:"stop_loss,omitempty" yaml:"stop_loss,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty" yaml:"take_profit,omitempty"`
}

// PriceStep represents a price update in the simulation
type PriceStep struct {
	Prices map[string]float64 `json:"prices" yaml:"prices"`
	Close  []string           `json:"close,omitempty" yaml:"close,omitempty"` // tickets closed at this step
	Delay  string             `json:"delay,omitempty" yaml:"delay,omitempty"` // e.g., "1h", "30m", "1s"
}

// ParseDuration converts the delay string to time.Duration
func (ps PriceStep) ParseDuration() (time.Duration, error) {
	if ps.Delay == "" {
		return 0, nil
	}
	return time.ParseDuration(ps.Delay)
}

// StartTime parses Start, defaulting to now truncated to the hour.
func (s SimulationConfig) StartTime() (time.Time, error) {
	if s.Start == "" {
		return time.Now().UTC().Truncate(time.Hour), nil
	}
	return time.Parse(time.RFC3339, s.Start)
}

// LoadFromFile loads configuration from a file (JSON or YAML based on extension)
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}

	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid. Protection and stop
// parameters are checked by building them, so their errors are
// *risk.ConfigError values.
func (c *Config) Validate() error {
	if c.Account.Currency == "" {
		return fmt.Errorf("account.currency is required")
	}
	if c.Account.InitialBalance < 0 {
		return fmt.Errorf("account.initial_balance must not be negative")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("account.timezone: %w", err)
	}
	if c.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	cat, err := c.Catalog()
	if err != nil {
		return err
	}
	if _, ok := cat.Instrument(c.Symbol); !ok {
		return fmt.Errorf("unknown instrument: %s", c.Symbol)
	}
	if _, err := market.ParseTimeframe(c.Timeframe); err != nil {
		return fmt.Errorf("timeframe: %w", err)
	}

	if _, err := c.RiskConfig(); err != nil {
		return err
	}
	if _, err := c.StopStrategy(); err != nil {
		return err
	}

	switch c.Journal.Type {
	case "", "none":
	case "csv":
		if c.Journal.EvaluationsFile == "" || c.Journal.StopsFile == "" || c.Journal.TradesFile == "" || c.Journal.EquityFile == "" {
			return fmt.Errorf("journal evaluations_file, stops_file, trades_file and equity_file required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	default:
		return fmt.Errorf("journal.type must be 'csv', 'sqlite' or 'none'")
	}

	if err := c.Platform.validate(); err != nil {
		return err
	}
	if !c.Simulated() {
		return nil
	}
	return c.Simulation.validate(cat)
}

func (s SimulationConfig) validate(cat market.Catalog) error {
	if s.Balance < 0 {
		return fmt.Errorf("simulation.balance must not be negative")
	}
	if _, err := s.StartTime(); err != nil {
		return fmt.Errorf("simulation.start: %w", err)
	}
	for sym, p := range s.InitialPrices {
		if _, ok := cat.Instrument(sym); !ok {
			return fmt.Errorf("simulation: unknown instrument: %s", sym)
		}
		if p <= 0 {
			return fmt.Errorf("simulation initial price for %s must be positive", sym)
		}
	}
	for i, p := range s.Positions {
		if _, ok := s.InitialPrices[p.Symbol]; !ok {
			return fmt.Errorf("simulation.positions[%d]: no initial price for %s", i, p.Symbol)
		}
		if p.Units <= 0 {
			return fmt.Errorf("simulation.positions[%d]: units must be positive", i)
		}
		if _, err := parseDirection(p.Direction); err != nil {
			return fmt.Errorf("simulation.positions[%d]: %w", i, err)
		}
	}
	for i, st := range s.PriceSteps {
		if _, err := st.ParseDuration(); err != nil {
			return fmt.Errorf("simulation.price_steps[%d].delay: %w", i, err)
		}
		for sym, p := range st.Prices {
			if _, ok := s.InitialPrices[sym]; !ok {
				return fmt.Errorf("simulation.price_steps[%d]: no initial price for %s", i, sym)
			}
			if p <= 0 {
				return fmt.Errorf("simulation.price_steps[%d]: price for %s must be positive", i, sym)
			}
		}
	}
	return nil
}

// Location returns the account time zone, UTC when unset.
func (c *Config) Location() (*time.Location, error) {
	if c.Account.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Account.Timezone)
}

// Catalog returns the default instruments plus the configured extras.
func (c *Config) Catalog() (market.Catalog, error) {
	cat := market.DefaultCatalog()
	for i, m := range c.Instruments {
		if err := cat.Add(m); err != nil {
			return nil, fmt.Errorf("instruments[%d]: %w", i, err)
		}
	}
	return cat, nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			ID:             "SIM-001",
			Currency:       "USD",
			InitialBalance: 10000,
			Timezone:       "UTC",
		},
		Symbol:    "EUR_USD",
		Timeframe: "H1",
		Protections: ProtectionsConfig{
			BreakdownPct:   20,
			MaxDrawdownPct: 15,
			DailyLossPct:   3,
			WeeklyLossPct:  6,
			MonthlyLossPct: 10,
			ConsecutiveLosses: &ConsecutiveLossesConfig{
				Max:             3,
				ReductionFactor: 0.5,
			},
			Volatility: &VolatilityConfig{
				Lookback:      20,
				MaxMultiplier: 3,
			},
			Correlation: &CorrelationConfig{
				Symbols:  []string{"EUR_USD", "GBP_USD"},
				Max:      0.8,
				Lookback: 50,
			},
			TimeWindow: &TimeWindowConfig{
				AllowedHours: []HourRange{{Start: 7, End: 21}},
				AllowedDays:  []int{0, 1, 2, 3, 4},
			},
		},
		Stops: StopsConfig{
			Strategy:  "follower",
			Pips:      stops.DefaultFollowerPips,
			SMAPeriod: stops.DefaultSMAPeriod,
		},
		Journal: JournalConfig{
			Type:            "csv",
			EvaluationsFile: "./evaluations.csv",
			StopsFile:       "./stops.csv",
			TradesFile:      "./trades.csv",
			EquityFile:      "./equity.csv",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Platform: PlatformConfig{
			Type:         "sim",
			Environment:  "practice",
			PollInterval: "1m",
		},
		Simulation: SimulationConfig{
			Start:   "2024-06-12T08:00:00Z",
			Balance: 10000,
			InitialPrices: map[string]float64{
				"EUR_USD": 1.0850,
				"GBP_USD": 1.2700,
			},
			Spread:      0.2,
			HistoryBars: 100,
			Seed:        1,
			Positions: []SimPosition{
				{Symbol: "EUR_USD", Direction: "long", Units: 10000, OpenPrice: 1.0850},
			},
			PriceSteps: []PriceStep{
				{Prices: map[string]float64{"EUR_USD": 1.0870, "GBP_USD": 1.2720}, Delay: "1h"},
				{Prices: map[string]float64{"EUR_USD": 1.0910, "GBP_USD": 1.2750}, Delay: "1h"},
				{Prices: map[string]float64{"EUR_USD": 1.0890, "GBP_USD": 1.2740}, Delay: "1h"},
				{Prices: map[string]float64{"EUR_USD": 1.0940, "GBP_USD": 1.2790}, Delay: "1h"},
			},
		},
	}
}
