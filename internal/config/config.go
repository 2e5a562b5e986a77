// Package config provides configuration management for the analytics engine.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/eddiefleurent/chainlens/internal/util"
	yaml "gopkg.in/yaml.v3"
)

// Documented RiskConfig bounds. Caller-supplied values outside these ranges
// are clamped with a warning, never rejected.
const (
	MinRiskPct           = 0.005
	MaxRiskPct           = 0.10
	MinRewardRatioFloor  = 1.0
	MinRewardRatioCeil   = 10.0
	MinProbProfitFloor   = 0.30
	MinProbProfitCeil    = 0.95
	MaxConcentrationMin  = 0.05
	MaxConcentrationMax  = 0.50
	defaultSpreadCapture = 0.5
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Provider    ProviderConfig    `yaml:"provider"`
	Risk        RiskConfig        `yaml:"risk"`
	Costs       CostConfig        `yaml:"costs"`
	Breakers    BreakerConfig     `yaml:"breakers"`
	Simulation  SimulationConfig  `yaml:"simulation"`
	Monitor     MonitorConfig     `yaml:"monitor"`
	Storage     StorageConfig     `yaml:"storage"`
	Server      ServerConfig      `yaml:"server"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	Mode     string `yaml:"mode"`      // live | replay
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// ProviderConfig defines market data provider settings.
type ProviderConfig struct {
	Kind        string `yaml:"kind"` // http | mock
	APIKey      string `yaml:"api_key"`
	APIEndpoint string `yaml:"api_endpoint"`
	// CacheTTL bounds how long a fetched chain snapshot may be served
	// before a re-fetch.
	CacheTTL string `yaml:"cache_ttl"`
}

// RiskConfig defines account-level risk thresholds consumed by the
// sizing engine. All fields are clamped into their documented bounds by
// Normalize before use.
type RiskConfig struct {
	AccountValue     float64 `yaml:"account_value"`
	MaxRiskPct       float64 `yaml:"max_risk_pct"`      // [0.005, 0.10]
	MinRewardRatio   float64 `yaml:"min_reward_ratio"`  // [1.0, 10.0]
	MinProbProfit    float64 `yaml:"min_prob_profit"`   // [0.30, 0.95]
	MaxConcentration float64 `yaml:"max_concentration"` // [0.05, 0.50]
}

// CostConfig defines the transaction-cost model.
type CostConfig struct {
	CommissionPerContract float64 `yaml:"commission_per_contract"`
	RegFeePerContract     float64 `yaml:"reg_fee_per_contract"`
	// SpreadCaptureRate is the fraction of the bid/ask spread assumed
	// paid on execution.
	SpreadCaptureRate float64 `yaml:"spread_capture_rate"`
	// SlippageThreshold is the contract count above which market-impact
	// slippage applies.
	SlippageThreshold   int     `yaml:"slippage_threshold"`
	SlippagePerContract float64 `yaml:"slippage_per_contract"`
}

// BreakerConfig defines the trading circuit-breaker thresholds.
type BreakerConfig struct {
	MaxDailyLoss        float64 `yaml:"max_daily_loss"`         // absolute dollars
	MaxDailyLossPct     float64 `yaml:"max_daily_loss_pct"`     // fraction of account
	MaxPortfolioRiskPct float64 `yaml:"max_portfolio_risk_pct"` // fraction of account
	VolIndexSpike       float64 `yaml:"vol_index_spike"`        // e.g. 35 on VIX
	MaxPositionLossPct  float64 `yaml:"max_position_loss_pct"`  // single-position flag
}

// SimulationConfig defines P&L projection parameters.
type SimulationConfig struct {
	Paths        int     `yaml:"paths"`
	GridPoints   int     `yaml:"grid_points"`
	GridRangePct float64 `yaml:"grid_range_pct"`
	HorizonDays  int     `yaml:"horizon_days"`
	RiskFreeRate float64 `yaml:"risk_free_rate"`
}

// MonitorConfig defines the live price monitoring loop.
type MonitorConfig struct {
	Interval        string `yaml:"interval"`
	HistoryCapacity int    `yaml:"history_capacity"`
}

// StorageConfig defines durable store paths.
type StorageConfig struct {
	PositionsPath string `yaml:"positions_path"`
	BreakersPath  string `yaml:"breakers_path"`
}

// ServerConfig defines the HTTP operation surface.
type ServerConfig struct {
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Validate checks structural configuration. Risk thresholds are not
// validated here: they are clamped by Normalize so out-of-range values
// degrade gracefully instead of failing startup.
func (c *Config) Validate() error {
	if c.Environment.Mode != "live" && c.Environment.Mode != "replay" {
		return fmt.Errorf("environment.mode must be 'live' or 'replay'")
	}

	switch c.Provider.Kind {
	case "", "mock":
		// mock provider needs no credentials
	case "http":
		if c.Provider.APIKey == "" {
			return fmt.Errorf("provider.api_key is required for the http provider")
		}
		if c.Provider.APIEndpoint == "" {
			return fmt.Errorf("provider.api_endpoint is required for the http provider")
		}
	default:
		return fmt.Errorf("provider.kind must be 'http' or 'mock'")
	}
	if c.Provider.CacheTTL != "" {
		if _, err := time.ParseDuration(c.Provider.CacheTTL); err != nil {
			return fmt.Errorf("provider.cache_ttl invalid: %w", err)
		}
	}

	if c.Risk.AccountValue <= 0 {
		return fmt.Errorf("risk.account_value must be > 0")
	}

	if c.Costs.CommissionPerContract < 0 || c.Costs.RegFeePerContract < 0 || c.Costs.SlippagePerContract < 0 {
		return fmt.Errorf("costs must be non-negative")
	}
	if c.Costs.SpreadCaptureRate < 0 || c.Costs.SpreadCaptureRate > 1 {
		return fmt.Errorf("costs.spread_capture_rate must be in [0,1]")
	}

	if c.Breakers.MaxDailyLoss < 0 || c.Breakers.MaxDailyLossPct < 0 ||
		c.Breakers.MaxPortfolioRiskPct < 0 || c.Breakers.MaxPositionLossPct < 0 {
		return fmt.Errorf("breaker thresholds must be non-negative")
	}

	if c.Simulation.Paths < 0 || c.Simulation.GridPoints < 0 {
		return fmt.Errorf("simulation.paths and simulation.grid_points must be non-negative")
	}
	if c.Simulation.GridRangePct < 0 || c.Simulation.GridRangePct > 1 {
		return fmt.Errorf("simulation.grid_range_pct must be in [0,1]")
	}

	if c.Monitor.Interval != "" {
		if _, err := time.ParseDuration(c.Monitor.Interval); err != nil {
			return fmt.Errorf("monitor.interval invalid: %w", err)
		}
	}
	if c.Monitor.HistoryCapacity < 0 {
		return fmt.Errorf("monitor.history_capacity must be non-negative")
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid port")
	}

	c.normalize()
	return nil
}

// normalize applies defaults for optional settings.
func (c *Config) normalize() {
	if c.Provider.Kind == "" {
		c.Provider.Kind = "mock"
	}
	if c.Provider.CacheTTL == "" {
		c.Provider.CacheTTL = "1m"
	}
	if c.Costs.SpreadCaptureRate == 0 {
		c.Costs.SpreadCaptureRate = defaultSpreadCapture
	}
	if c.Simulation.Paths == 0 {
		c.Simulation.Paths = 10000
	}
	if c.Simulation.GridPoints == 0 {
		c.Simulation.GridPoints = 21
	}
	if c.Simulation.GridRangePct == 0 {
		c.Simulation.GridRangePct = 0.10
	}
	if c.Simulation.HorizonDays == 0 {
		c.Simulation.HorizonDays = 30
	}
	if c.Monitor.Interval == "" {
		c.Monitor.Interval = "1m"
	}
	if c.Monitor.HistoryCapacity == 0 {
		c.Monitor.HistoryCapacity = 256
	}
	if c.Storage.PositionsPath == "" {
		c.Storage.PositionsPath = "positions.json"
	}
	if c.Storage.BreakersPath == "" {
		c.Storage.BreakersPath = "breakers.json"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 9000
	}
}

// Normalize clamps every risk threshold into its documented bounds and
// returns a warning string per adjusted field. Out-of-range input always
// yields exactly the boundary value.
func (r *RiskConfig) Normalize() []string {
	var warnings []string
	clamp := func(name string, v *float64, lo, hi float64) {
		if *v < lo || *v > hi {
			clamped := util.Clamp(*v, lo, hi)
			warnings = append(warnings,
				fmt.Sprintf("risk.%s %.4f outside [%.4g, %.4g], clamped to %.4g", name, *v, lo, hi, clamped))
			*v = clamped
		}
	}
	clamp("max_risk_pct", &r.MaxRiskPct, MinRiskPct, MaxRiskPct)
	clamp("min_reward_ratio", &r.MinRewardRatio, MinRewardRatioFloor, MinRewardRatioCeil)
	clamp("min_prob_profit", &r.MinProbProfit, MinProbProfitFloor, MinProbProfitCeil)
	clamp("max_concentration", &r.MaxConcentration, MaxConcentrationMin, MaxConcentrationMax)
	return warnings
}

// CacheTTL returns the parsed provider cache TTL.
func (c *Config) CacheTTL() time.Duration {
	d, err := time.ParseDuration(c.Provider.CacheTTL)
	if err != nil {
		return time.Minute
	}
	return d
}

// MonitorInterval returns the parsed monitoring interval.
func (c *Config) MonitorInterval() time.Duration {
	d, err := time.ParseDuration(c.Monitor.Interval)
	if err != nil {
		return time.Minute
	}
	return d
}
