package store

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const DateLayout = "2006-01-02"

type Config struct {
	Ticker         string  `yaml:"ticker"`
	StartDate      string  `yaml:"start_date"`
	EndDate        string  `yaml:"end_date"`
	InitialCapital float64 `yaml:"initial_capital"`
	ContextSize    int     `yaml:"context_size"`
	AssessRisk     bool    `yaml:"assess_risk"`
	DataSource     string  `yaml:"data_source"`
	Calendar       struct {
		Source   string   `yaml:"source"`
		Closures []string `yaml:"closures"`
	} `yaml:"calendar"`
	Data struct {
		ParquetDir   string `yaml:"parquet_dir"`
		AlpacaFeed   string `yaml:"alpaca_feed"`
		KiteExchange string `yaml:"kite_exchange"`
	} `yaml:"data"`
	Limiter struct {
		MaxCalls          int `yaml:"max_calls"`
		WindowSeconds     int `yaml:"window_seconds"`
		MinSpacingSeconds int `yaml:"min_spacing_seconds"`
	} `yaml:"limiter"`
	Retry struct {
		MaxAttempts       int     `yaml:"max_attempts"`
		BaseDelaySeconds  float64 `yaml:"base_delay_seconds"`
		MaxDelaySeconds   float64 `yaml:"max_delay_seconds"`
		QuotaPauseSeconds int     `yaml:"quota_pause_seconds"`
		MaxQuotaPauses    int     `yaml:"max_quota_pauses"`
	} `yaml:"retry"`
	Oracle struct {
		Provider       string  `yaml:"provider"`
		Model          string  `yaml:"model"`
		Endpoint       string  `yaml:"endpoint"`
		MaxTokens      int     `yaml:"max_tokens"`
		Temperature    float32 `yaml:"temperature"`
		System         string  `yaml:"system"`
		Schema         string  `yaml:"schema"`
		TimeoutSeconds int     `yaml:"timeout_seconds"`
	} `yaml:"oracle"`
	Output struct {
		Quiet      bool   `yaml:"quiet"`
		CSVDir     string `yaml:"csv_dir"`
		TradeLog   string `yaml:"trade_log_dir"`
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"output"`
}

// Start parses start_date.
func (c *Config) Start() (time.Time, error) {
	return parseDate("start_date", c.StartDate)
}

// End parses end_date.
func (c *Config) End() (time.Time, error) {
	return parseDate("end_date", c.EndDate)
}

func parseDate(field, s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be YYYY-MM-DD, got '%s'", field, s)
	}
	return t, nil
}

// ClosureDates parses calendar.closures.
func (c *Config) ClosureDates() ([]time.Time, error) {
	dates := make([]time.Time, 0, len(c.Calendar.Closures))
	for _, s := range c.Calendar.Closures {
		d, err := parseDate("calendar.closures", s)
		if err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	return dates, nil
}

// Window returns the limiter window as a duration.
func (c *Config) Window() time.Duration {
	return time.Duration(c.Limiter.WindowSeconds) * time.Second
}

func (c *Config) MinSpacing() time.Duration {
	return time.Duration(c.Limiter.MinSpacingSeconds) * time.Second
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Ticker) == "" {
		return errors.New("ticker cannot be empty")
	}
	start, err := c.Start()
	if err != nil {
		return err
	}
	end, err := c.End()
	if err != nil {
		return err
	}
	if !start.Before(end) {
		return fmt.Errorf("start_date %s must be before end_date %s", c.StartDate, c.EndDate)
	}
	if c.InitialCapital <= 0 {
		return fmt.Errorf("initial_capital must be positive, got %.2f", c.InitialCapital)
	}
	if c.ContextSize <= 0 {
		return fmt.Errorf("context_size must be positive, got %d", c.ContextSize)
	}
	switch c.DataSource {
	case "YAHOO", "ALPACA", "KITE", "PARQUET":
	default:
		return fmt.Errorf("invalid data_source '%s': must be 'YAHOO', 'ALPACA', 'KITE' or 'PARQUET'", c.DataSource)
	}
	if c.DataSource == "PARQUET" && c.Data.ParquetDir == "" {
		return errors.New("data.parquet_dir is required when data_source is 'PARQUET'")
	}
	if c.Calendar.Source != "NYSE" && c.Calendar.Source != "ALPACA" {
		return fmt.Errorf("calendar.source must be 'NYSE' or 'ALPACA', got '%s'", c.Calendar.Source)
	}
	if _, err := c.ClosureDates(); err != nil {
		return err
	}
	switch c.Oracle.Provider {
	case "OPENAI", "CLAUDE", "NOOP":
	default:
		return fmt.Errorf("oracle.provider must be 'OPENAI', 'CLAUDE' or 'NOOP', got '%s'", c.Oracle.Provider)
	}
	if c.Limiter.MaxCalls < 0 || c.Limiter.WindowSeconds <= 0 || c.Limiter.MinSpacingSeconds < 0 {
		return errors.New("limiter values must be non-negative and window_seconds positive")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be positive, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.MaxQuotaPauses < 0 {
		return fmt.Errorf("retry.max_quota_pauses cannot be negative, got %d", c.Retry.MaxQuotaPauses)
	}
	return nil
}

// Decode parses YAML and applies defaults without validating, so callers
// can layer overrides on top before calling Validate.
func Decode(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.applyDefaults()
	return &c, nil
}

// Parse decodes YAML, applies defaults and validates.
func Parse(b []byte) (*Config, error) {
	c, err := Decode(b)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return c, nil
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Default returns a config with every default applied and no ticker or
// dates. Used when the CLI runs without a config file.
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

func (c *Config) applyDefaults() {
	c.Ticker = strings.ToUpper(strings.TrimSpace(c.Ticker))
	if c.InitialCapital == 0 {
		c.InitialCapital = 100000
	}
	if c.ContextSize == 0 {
		c.ContextSize = 5
	}
	if c.DataSource == "" {
		c.DataSource = "YAHOO"
	}
	c.DataSource = strings.ToUpper(c.DataSource)
	if c.Calendar.Source == "" {
		c.Calendar.Source = "NYSE"
	}
	c.Calendar.Source = strings.ToUpper(c.Calendar.Source)
	if c.Data.AlpacaFeed == "" {
		c.Data.AlpacaFeed = "iex"
	}
	if c.Data.KiteExchange == "" {
		c.Data.KiteExchange = "NSE"
	}

	if c.Limiter.MaxCalls == 0 {
		c.Limiter.MaxCalls = 8
	}
	if c.Limiter.WindowSeconds == 0 {
		c.Limiter.WindowSeconds = 60
	}
	if c.Limiter.MinSpacingSeconds == 0 {
		c.Limiter.MinSpacingSeconds = 6
	}

	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.BaseDelaySeconds == 0 {
		c.Retry.BaseDelaySeconds = 1
	}
	if c.Retry.MaxDelaySeconds == 0 {
		c.Retry.MaxDelaySeconds = 30
	}
	if c.Retry.QuotaPauseSeconds == 0 {
		c.Retry.QuotaPauseSeconds = 60
	}
	if c.Retry.MaxQuotaPauses == 0 {
		c.Retry.MaxQuotaPauses = 10
	}

	if c.Oracle.Provider == "" {
		c.Oracle.Provider = "NOOP"
	}
	c.Oracle.Provider = strings.ToUpper(c.Oracle.Provider)
	if c.Oracle.MaxTokens == 0 {
		c.Oracle.MaxTokens = 1024
	}
	if c.Oracle.TimeoutSeconds == 0 {
		c.Oracle.TimeoutSeconds = 60
	}
}
