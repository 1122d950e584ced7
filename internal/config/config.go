// Package config provides configuration management for the trading daemon.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

const (
	// Maintenance interval bounds used when schedule.maintenance_min/max
	// are unset. Randomized between the two each pass.
	defaultMaintenanceMin = time.Hour
	defaultMaintenanceMax = 2 * time.Hour

	defaultQueueName = "trading-queue"
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Broker      BrokerConfig      `yaml:"broker"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
	Strategy    StrategyConfig    `yaml:"strategy"`
	Queue       QueueConfig       `yaml:"queue"`
	Storage     StorageConfig     `yaml:"storage"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	Mode     string `yaml:"mode"`      // paper | live
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// BrokerConfig defines broker API settings.
type BrokerConfig struct {
	Provider    string  `yaml:"provider"` // tradier | paper
	APIKey      string  `yaml:"api_key"`
	APIEndpoint string  `yaml:"api_endpoint"`
	AccountID   string  `yaml:"account_id"`
	Sandbox     bool    `yaml:"sandbox"`
	Balance     float64 `yaml:"balance"` // paper starting balance
}

// StrategyConfig selects the strategy variant the daemon runs.
type StrategyConfig struct {
	Name string `yaml:"name"`
	// AllocationPct is the default percent of balance per trade when a
	// queued trade does not carry its own.
	AllocationPct float64 `yaml:"allocation_pct"`
}

// QueueConfig names the trade queue the daemon consumes.
type QueueConfig struct {
	Name string `yaml:"name"`
}

// ScheduleConfig defines trading schedule and market hours.
type ScheduleConfig struct {
	PollInterval   string `yaml:"poll_interval"`
	Timezone       string `yaml:"timezone"`      // e.g., "America/New_York"
	TradingStart   string `yaml:"trading_start"` // "HH:MM"
	TradingEnd     string `yaml:"trading_end"`   // "HH:MM"
	MaintenanceMin string `yaml:"maintenance_min"`
	MaintenanceMax string `yaml:"maintenance_max"`
}

// StorageConfig defines storage settings for position and queue data.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// DashboardConfig defines the read-only HTTP dashboard.
type DashboardConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
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

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	if c.Environment.Mode != "paper" && c.Environment.Mode != "live" {
		return fmt.Errorf("environment.mode must be 'paper' or 'live'")
	}

	switch c.Broker.Provider {
	case "paper":
	case "tradier":
		if c.Broker.APIKey == "" {
			return fmt.Errorf("broker.api_key is required for tradier")
		}
		if c.Broker.AccountID == "" {
			return fmt.Errorf("broker.account_id is required for tradier")
		}
	default:
		return fmt.Errorf("broker.provider must be 'tradier' or 'paper'")
	}
	if c.Environment.Mode == "live" && c.Broker.Provider == "paper" {
		return fmt.Errorf("environment.mode 'live' cannot use the paper broker")
	}

	if c.Strategy.Name == "" {
		return fmt.Errorf("strategy.name is required")
	}
	if c.Strategy.AllocationPct < 0 || c.Strategy.AllocationPct >= 20 {
		return fmt.Errorf("strategy.allocation_pct must be in [0, 20)")
	}

	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}

	if c.Schedule.PollInterval != "" {
		if _, err := time.ParseDuration(c.Schedule.PollInterval); err != nil {
			return fmt.Errorf("schedule.poll_interval invalid: %w", err)
		}
	}
	minM, maxM := c.MaintenanceInterval()
	if minM <= 0 || maxM < minM {
		return fmt.Errorf("schedule.maintenance_min/max must be positive with min <= max")
	}

	loc := c.location()
	s, err1 := time.ParseInLocation("15:04", c.tradingStart(), loc)
	e, err2 := time.ParseInLocation("15:04", c.tradingEnd(), loc)
	if err1 != nil || err2 != nil || (s.Hour() > e.Hour() || (s.Hour() == e.Hour() && s.Minute() >= e.Minute())) {
		return fmt.Errorf("schedule trading window invalid (start/end parse/order)")
	}

	if c.Dashboard.Enabled && c.Dashboard.Addr == "" {
		return fmt.Errorf("dashboard.addr is required when dashboard.enabled")
	}

	return nil
}

// IsPaperTrading returns true if the daemon is configured for paper trading.
func (c *Config) IsPaperTrading() bool {
	return c.Environment.Mode == "paper"
}

// QueueName returns the configured queue name or the default.
func (c *Config) QueueName() string {
	if c.Queue.Name == "" {
		return defaultQueueName
	}
	return c.Queue.Name
}

// PollInterval returns the configured queue poll interval duration.
func (c *Config) PollInterval() time.Duration {
	d, err := time.ParseDuration(c.Schedule.PollInterval)
	if err != nil || d <= 0 {
		return time.Second
	}
	return d
}

// MaintenanceInterval returns the bounds the daemon randomizes the
// maintenance pause within.
func (c *Config) MaintenanceInterval() (time.Duration, time.Duration) {
	minM, maxM := defaultMaintenanceMin, defaultMaintenanceMax
	if d, err := time.ParseDuration(c.Schedule.MaintenanceMin); err == nil && d > 0 {
		minM = d
	}
	if d, err := time.ParseDuration(c.Schedule.MaintenanceMax); err == nil && d > 0 {
		maxM = d
	}
	return minM, maxM
}

func (c *Config) tradingStart() string {
	if c.Schedule.TradingStart == "" {
		return "09:30"
	}
	return c.Schedule.TradingStart
}

func (c *Config) tradingEnd() string {
	if c.Schedule.TradingEnd == "" {
		return "16:00"
	}
	return c.Schedule.TradingEnd
}

func (c *Config) location() *time.Location {
	tz := c.Schedule.Timezone
	if tz == "" {
		tz = "America/New_York"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		// Fallback for minimal containers
		loc = time.FixedZone("ET", -5*60*60)
	}
	return loc
}

// IsWithinTradingHours checks if the given time falls within configured
// trading hours on a weekday.
func (c *Config) IsWithinTradingHours(now time.Time) bool {
	loc := c.location()
	today := now.In(loc)

	if today.Weekday() == time.Saturday || today.Weekday() == time.Sunday {
		return false
	}

	startClock, err1 := time.ParseInLocation("15:04", c.tradingStart(), loc)
	endClock, err2 := time.ParseInLocation("15:04", c.tradingEnd(), loc)
	if err1 != nil || err2 != nil {
		// Safe defaults if misconfigured
		startClock = time.Date(0, 1, 1, 9, 30, 0, 0, loc)
		endClock = time.Date(0, 1, 1, 16, 0, 0, 0, loc)
	}
	start := time.Date(today.Year(), today.Month(), today.Day(),
		startClock.Hour(), startClock.Minute(), 0, 0, loc)
	end := time.Date(today.Year(), today.Month(), today.Day(),
		endClock.Hour(), endClock.Minute(), 0, 0, loc)

	// Inclusive start, exclusive end
	return !today.Before(start) && today.Before(end)
}
