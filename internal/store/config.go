package store

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Mode        string   `yaml:"mode"`
	Account     string   `yaml:"account"`
	Exchange    string   `yaml:"exchange"`
	PollSeconds int      `yaml:"poll_seconds"`
	Universe    []string `yaml:"universe"`

	Session struct {
		RenewMarginMinutes int    `yaml:"renew_margin_minutes"`
		ExpiryTime         string `yaml:"expiry_time"` // HH:MM IST, Kite tokens die early next morning
	} `yaml:"session"`

	Indicator struct {
		Period   int    `yaml:"period"`
		Interval string `yaml:"interval"`
		Lookback int    `yaml:"lookback"`
		Cache    struct {
			RedisAddr  string `yaml:"redis_addr"`
			TTLMinutes int    `yaml:"ttl_minutes"`
		} `yaml:"cache"`
	} `yaml:"indicator"`

	Entry struct {
		Threshold      float64 `yaml:"threshold"`
		AllocationPct  float64 `yaml:"allocation_pct"`
		MaxExposurePct float64 `yaml:"max_exposure_pct"`
		TargetPct      float64 `yaml:"target_pct"`
	} `yaml:"entry"`

	Exit struct {
		Threshold float64 `yaml:"threshold"`
		// RealtimeOverride lets a current-period value override a
		// previous-period "do not exit". Off by default: the previous
		// period is authoritative.
		RealtimeOverride bool `yaml:"realtime_override"`
	} `yaml:"exit"`

	Reentry struct {
		Enabled  bool    `yaml:"enabled"`
		MaxCount int     `yaml:"max_count"`
		DropPct  float64 `yaml:"drop_pct"`
	} `yaml:"reentry"`

	Retry struct {
		BaseDelayMs int     `yaml:"base_delay_ms"`
		Multiplier  float64 `yaml:"multiplier"`
		MaxDelayMs  int     `yaml:"max_delay_ms"`
		MaxAttempts int     `yaml:"max_attempts"`
	} `yaml:"retry"`

	Breaker struct {
		FailureThreshold int `yaml:"failure_threshold"`
		WindowSeconds    int `yaml:"window_seconds"`
		RecoverySeconds  int `yaml:"recovery_seconds"`
	} `yaml:"breaker"`

	Scheduler struct {
		Workers     int    `yaml:"workers"`
		TickSeconds int    `yaml:"tick_seconds"`
		MarketOpen  string `yaml:"market_open"`
		MarketClose string `yaml:"market_close"`
		EODSummary  string `yaml:"eod_summary"`
		EODReset    string `yaml:"eod_reset"`
	} `yaml:"scheduler"`

	Storage struct {
		Driver string `yaml:"driver"` // memory or postgres
		DSN    string `yaml:"dsn"`
	} `yaml:"storage"`

	Telegram struct {
		Enabled bool     `yaml:"enabled"`
		Events  []string `yaml:"events"`
	} `yaml:"telegram"`

	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
	} `yaml:"metrics"`

	Calendar struct {
		Enabled bool   `yaml:"enabled"`
		URL     string `yaml:"url"`
	} `yaml:"calendar"`
}

func (c *Config) Validate() error {
	if c.Mode != "DRY_RUN" && c.Mode != "LIVE" {
		return fmt.Errorf("invalid mode '%s': must be 'DRY_RUN' or 'LIVE'", c.Mode)
	}
	if c.Account == "" {
		return errors.New("account cannot be empty")
	}
	if len(c.Universe) == 0 {
		return errors.New("universe cannot be empty")
	}
	if c.Entry.Threshold <= 0 || c.Entry.Threshold >= 100 {
		return fmt.Errorf("entry.threshold must be between 0-100, got %.2f", c.Entry.Threshold)
	}
	if c.Exit.Threshold <= 0 || c.Exit.Threshold >= 100 {
		return fmt.Errorf("exit.threshold must be between 0-100, got %.2f", c.Exit.Threshold)
	}
	if c.Entry.AllocationPct <= 0 || c.Entry.AllocationPct > 100 {
		return fmt.Errorf("entry.allocation_pct must be between 0-100, got %.2f", c.Entry.AllocationPct)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.Multiplier < 1 {
		return fmt.Errorf("retry.multiplier must be >= 1, got %.2f", c.Retry.Multiplier)
	}
	if c.Storage.Driver != "memory" && c.Storage.Driver != "postgres" {
		return fmt.Errorf("storage.driver must be 'memory' or 'postgres', got '%s'", c.Storage.Driver)
	}
	if c.Storage.Driver == "postgres" && c.Storage.DSN == "" {
		return errors.New("storage.dsn required when storage.driver is 'postgres'")
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	applyDefaults(&c)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &c, nil
}

func applyDefaults(c *Config) {
	if c.Exchange == "" {
		c.Exchange = "NSE"
	}
	if c.PollSeconds == 0 {
		c.PollSeconds = 60
	}
	if c.Session.RenewMarginMinutes == 0 {
		c.Session.RenewMarginMinutes = 10
	}
	if c.Session.ExpiryTime == "" {
		c.Session.ExpiryTime = "07:30"
	}
	if c.Indicator.Period == 0 {
		c.Indicator.Period = 14
	}
	if c.Indicator.Interval == "" {
		c.Indicator.Interval = "day"
	}
	if c.Indicator.Lookback == 0 {
		c.Indicator.Lookback = 200
	}
	if c.Indicator.Cache.TTLMinutes == 0 {
		c.Indicator.Cache.TTLMinutes = 24 * 60
	}
	if c.Entry.Threshold == 0 {
		c.Entry.Threshold = 30
	}
	if c.Entry.AllocationPct == 0 {
		c.Entry.AllocationPct = 10
	}
	if c.Entry.MaxExposurePct == 0 {
		c.Entry.MaxExposurePct = 80
	}
	if c.Entry.TargetPct == 0 {
		c.Entry.TargetPct = 5
	}
	if c.Exit.Threshold == 0 {
		c.Exit.Threshold = 50
	}
	if c.Reentry.MaxCount == 0 {
		c.Reentry.MaxCount = 3
	}
	if c.Reentry.DropPct == 0 {
		c.Reentry.DropPct = 2
	}
	if c.Retry.BaseDelayMs == 0 {
		c.Retry.BaseDelayMs = 1000
	}
	if c.Retry.Multiplier == 0 {
		c.Retry.Multiplier = 2.0
	}
	if c.Retry.MaxDelayMs == 0 {
		c.Retry.MaxDelayMs = 30000
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Breaker.FailureThreshold == 0 {
		c.Breaker.FailureThreshold = 5
	}
	if c.Breaker.WindowSeconds == 0 {
		c.Breaker.WindowSeconds = 60
	}
	if c.Breaker.RecoverySeconds == 0 {
		c.Breaker.RecoverySeconds = 30
	}
	if c.Scheduler.Workers == 0 {
		c.Scheduler.Workers = 4
	}
	if c.Scheduler.TickSeconds == 0 {
		c.Scheduler.TickSeconds = 60
	}
	if c.Scheduler.MarketOpen == "" {
		c.Scheduler.MarketOpen = "09:15"
	}
	if c.Scheduler.MarketClose == "" {
		c.Scheduler.MarketClose = "15:30"
	}
	if c.Scheduler.EODSummary == "" {
		c.Scheduler.EODSummary = "15:35"
	}
	if c.Scheduler.EODReset == "" {
		c.Scheduler.EODReset = "23:45"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
	if c.Calendar.URL == "" {
		c.Calendar.URL = "https://www.nseindia.com/resources/exchange-communication-holidays"
	}
}
