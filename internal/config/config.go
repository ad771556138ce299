// Package config loads the engine's YAML configuration file and overlays
// environment variables, the same two-layer pattern the teacher used for
// Alpaca credentials (market/historical.go: SetAlpacaCredentials falls back
// to os.Getenv when the explicit argument is empty).
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"ApexCore/internal/logger"
)

// Config is the YAML-sourced configuration for one trading core instance.
// Everything else (scoring weights, blacklists, ratings, adaptive params)
// lives in the database and is hot-reloadable — see spec.md §6.
type Config struct {
	AccountID string `yaml:"account_id"`

	// Universe of symbols the engine is allowed to consider for entries.
	// All must carry the USDT suffix, e.g. BTCUSDT (spec.md §4.7 Non-goal
	// boundary).
	Symbols []string `yaml:"symbols"`

	// Big4 benchmark symbols used for market-wide regime detection.
	Big4Symbols []string `yaml:"big4_symbols"`

	Exchange ExchangeConfig `yaml:"exchange"`
	Database DatabaseConfig `yaml:"database"`

	Scanner   ScannerConfig   `yaml:"scanner"`
	Optimizer OptimizerConfig `yaml:"optimizer"`

	// BatchEntryEnabled toggles time-sliced entry (spec.md §4.7b).
	BatchEntryEnabled bool `yaml:"batch_entry_enabled"`
	// SmartExitEnabled toggles the partial-close ladder and trailing stop
	// (spec.md §4.8 steps 3-4).
	SmartExitEnabled bool `yaml:"smart_exit_enabled"`
	// AntiFOMOEnabled gates the anti-FOMO filter, relaxed by default per
	// spec.md §9 Open Question 1 (preserved but feature-flagged).
	AntiFOMOEnabled bool `yaml:"anti_fomo_enabled"`
	// RangeModeEntriesEnabled gates whether range-mode strategies may
	// produce candidates; off by default per spec.md §4.5 / §9 OQ2.
	RangeModeEntriesEnabled bool `yaml:"range_mode_entries_enabled"`
}

type ExchangeConfig struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	Testnet   bool   `yaml:"testnet"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// DSN builds the go-sql-driver/mysql data source name.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&loc=UTC",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type ScannerConfig struct {
	Interval             time.Duration `yaml:"interval"`
	MonitorInterval      time.Duration `yaml:"monitor_interval"`
	Big4RefreshInterval  time.Duration `yaml:"big4_refresh_interval"`
	SupervisorInterval   time.Duration `yaml:"supervisor_interval"`
}

type OptimizerConfig struct {
	// Schedule is an "HH:MM" UTC time-of-day, per spec.md §4.10.
	Schedule string `yaml:"schedule"`
	AutoApply bool  `yaml:"auto_apply"`
}

// Load reads the YAML file at path, then overlays environment variables
// (loaded from a .env file if present, exactly as the teacher's main does
// implicitly via godotenv) for secrets that should not live in the repo.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // optional .env overlay; absence is not an error

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	if len(cfg.Big4Symbols) != 4 {
		logger.Warnf("⚠️  big4_symbols should list exactly 4 benchmark symbols, got %d", len(cfg.Big4Symbols))
	}

	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DB_HOST"); v != "" {
		c.Database.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		fmt.Sscanf(v, "%d", &c.Database.Port)
	}
	if v := os.Getenv("DB_USER"); v != "" {
		c.Database.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		c.Database.Name = v
	}
	if v := os.Getenv("EXCHANGE_API_KEY"); v != "" {
		c.Exchange.APIKey = v
	}
	if v := os.Getenv("EXCHANGE_API_SECRET"); v != "" {
		c.Exchange.APISecret = v
	}
}

func (c *Config) applyDefaults() {
	if c.Scanner.Interval == 0 {
		c.Scanner.Interval = 300 * time.Second
	}
	if c.Scanner.MonitorInterval == 0 {
		c.Scanner.MonitorInterval = 5 * time.Second
	}
	if c.Scanner.Big4RefreshInterval == 0 {
		c.Scanner.Big4RefreshInterval = 15 * time.Minute
	}
	if c.Scanner.SupervisorInterval == 0 {
		c.Scanner.SupervisorInterval = 60 * time.Second
	}
	if c.Optimizer.Schedule == "" {
		c.Optimizer.Schedule = "02:00"
	}
	if c.AccountID == "" {
		c.AccountID = "default"
	}
}
