// Package config loads and validates the bot configuration. Invalid
// configuration fails fast before any run starts.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"SolarAlpha/internal/model"
	"SolarAlpha/internal/redistribute"
)

// RecipientConfig is one redistribution destination as configured.
type RecipientConfig struct {
	ID         string  `yaml:"id" validate:"required"`
	Percentage float64 `yaml:"percentage" validate:"gt=0,lte=100"`
	Tag        string  `yaml:"tag" validate:"required,oneof=crisis keep network"`
}

// Config holds all application configuration.
type Config struct {
	Bot struct {
		Name              string `yaml:"name" default:"solar-alpha-001"`
		Mode              string `yaml:"mode" default:"paper" validate:"oneof=paper real"`
		ScanIntervalHours int    `yaml:"scan_interval_hours" default:"6" validate:"gt=0"`
		RiskTolerance     string `yaml:"risk_tolerance" default:"medium" validate:"oneof=low medium high"`
		MaxTradesPerRun   int    `yaml:"max_trades_per_run" default:"3" validate:"gt=0"`
	} `yaml:"bot"`
	Trading struct {
		PaperStartingBalance float64  `yaml:"paper_starting_balance" default:"1000" validate:"gt=0"`
		AllowedMarkets       []string `yaml:"allowed_markets" validate:"min=1"`
		MaxPositionSize      float64  `yaml:"max_position_size" default:"100" validate:"gt=0"`
		MaxTotalExposure     float64  `yaml:"max_total_exposure" default:"300" validate:"gt=0"`
		StopLossPercent      float64  `yaml:"stop_loss_percent" default:"10" validate:"gt=0,lt=100"`
		TakeProfitPercent    float64  `yaml:"take_profit_percent" default:"25" validate:"gt=0"`
	} `yaml:"trading"`
	Redistribution struct {
		Recipients []RecipientConfig `yaml:"recipients" validate:"min=1,dive"`
	} `yaml:"redistribution"`
	AI struct {
		Endpoint       string  `yaml:"endpoint" default:"http://127.0.0.1:8080/completion" validate:"url"`
		Model          string  `yaml:"model" default:"llama-3.2-7b-q4_k_m"`
		Temperature    float64 `yaml:"temperature" default:"0.7" validate:"gte=0,lte=2"`
		MaxTokens      int     `yaml:"max_tokens" default:"512" validate:"gt=0"`
		TimeoutSeconds int     `yaml:"timeout_seconds" default:"120" validate:"gt=0"`
	} `yaml:"ai"`
	DataSources struct {
		Symbols []string `yaml:"symbols" validate:"min=1"`
	} `yaml:"data_sources"`
	Ledger struct {
		DBPath    string `yaml:"db_path" default:"data/ledger.db"`
		PublicDir string `yaml:"public_dir" default:"public"`
	} `yaml:"ledger"`
	Logging struct {
		Level    string `yaml:"level" default:"info"`
		Format   string `yaml:"format" default:"console" validate:"oneof=console json"`
		FilePath string `yaml:"file_path"`
	} `yaml:"logging"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Listen  string `yaml:"listen" default:":9100"`
	} `yaml:"metrics"`
	Execution struct {
		TimeoutSeconds int `yaml:"timeout_seconds" default:"30" validate:"gt=0"`
		MaxRetries     int `yaml:"max_retries" default:"2" validate:"gte=0"`
	} `yaml:"execution"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, applies defaults and environment
// variable overrides, then validates.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if len(cfg.DataSources.Symbols) == 0 {
		cfg.DataSources.Symbols = []string{"BTC-USD", "ETH-USD", "SOL-USD"}
	}
	if len(cfg.Trading.AllowedMarkets) == 0 {
		cfg.Trading.AllowedMarkets = []string{"crypto"}
	}

	// Environment variable overrides
	if v := os.Getenv("BOT_MODE"); v != "" {
		cfg.Bot.Mode = v
	}
	if v := os.Getenv("LEDGER_DB_PATH"); v != "" {
		cfg.Ledger.DBPath = v
	}
	if v := os.Getenv("AI_ENDPOINT"); v != "" {
		cfg.AI.Endpoint = v
	}
	if v := os.Getenv("SCAN_INTERVAL_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Bot.ScanIntervalHours = n
		}
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field rules and the redistribution policy invariant.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	// The policy invariant spans fields, so the allocation engine's own
	// validator checks it: percentages sum to exactly 100, at least one
	// crisis-tagged recipient, crisis share >= 50. Never clamped.
	if err := redistribute.ValidatePolicy(c.Recipients()); err != nil {
		return fmt.Errorf("redistribution config: %w", err)
	}
	return nil
}

// Recipients converts the configured recipients to domain form.
func (c *Config) Recipients() []model.Recipient {
	out := make([]model.Recipient, len(c.Redistribution.Recipients))
	for i, r := range c.Redistribution.Recipients {
		out[i] = model.Recipient{
			ID:         r.ID,
			Percentage: decimal.NewFromFloat(r.Percentage),
			Tag:        r.Tag,
		}
	}
	return out
}

// MinConfidence maps the risk tolerance to the advisor's confidence floor.
func (c *Config) MinConfidence() int {
	switch c.Bot.RiskTolerance {
	case "low":
		return 8
	case "high":
		return 4
	default:
		return 6
	}
}

// MaxPositionSize returns the position cap as a decimal.
func (c *Config) MaxPositionSize() decimal.Decimal {
	return decimal.NewFromFloat(c.Trading.MaxPositionSize)
}

// MaxTotalExposure returns the aggregate exposure cap as a decimal.
func (c *Config) MaxTotalExposure() decimal.Decimal {
	return decimal.NewFromFloat(c.Trading.MaxTotalExposure)
}

// StartingBalance returns the paper account's opening cash as a decimal.
func (c *Config) StartingBalance() decimal.Decimal {
	return decimal.NewFromFloat(c.Trading.PaperStartingBalance)
}

// StopLoss and TakeProfit return the exit thresholds as decimals.
func (c *Config) StopLoss() decimal.Decimal {
	return decimal.NewFromFloat(c.Trading.StopLossPercent)
}

func (c *Config) TakeProfit() decimal.Decimal {
	return decimal.NewFromFloat(c.Trading.TakeProfitPercent)
}
