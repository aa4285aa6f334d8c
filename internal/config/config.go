package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Secrets struct {
	GCPProject        string `yaml:"gcp_project"`
	PolygonAPIKeyName string `yaml:"polygon_api_key_name"`
	BrokerTokenName   string `yaml:"broker_token_name"`
}

type Marketdata struct {
	BaseURL         string  `yaml:"base_url"`
	LookbackDays    int     `yaml:"lookback_days"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	TimeoutSeconds  int     `yaml:"timeout_seconds"`
}

type Broker struct {
	BaseURL         string  `yaml:"base_url"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	TimeoutSeconds  int     `yaml:"timeout_seconds"`
}

type Database struct {
	DSN string `yaml:"dsn"` // falls back to DATABASE_URL
}

type Execution struct {
	PollIntervalMs        int    `yaml:"poll_interval_ms"`
	ConfirmTimeoutSecs    int    `yaml:"confirm_timeout_seconds"`
	StaleOrderWindowHours int    `yaml:"stale_order_window_hours"`
	OutboxPath            string `yaml:"outbox_path"`
}

type Quotes struct {
	// Strict rejects quotes not flagged realtime instead of warning.
	Strict bool `yaml:"strict"`
}

type Root struct {
	LogLevel   string     `yaml:"log_level"`
	Workers    int        `yaml:"workers"`
	Secrets    Secrets    `yaml:"secrets"`
	Marketdata Marketdata `yaml:"marketdata"`
	Broker     Broker     `yaml:"broker"`
	Database   Database   `yaml:"database"`
	Execution  Execution  `yaml:"execution"`
	Quotes     Quotes     `yaml:"quotes"`
}

func Load(path string) (Root, error) {
	var c Root
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, err
	}

	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Workers == 0 {
		c.Workers = 4
	}

	if c.Secrets.PolygonAPIKeyName == "" {
		c.Secrets.PolygonAPIKeyName = "algotrading-polygon-apikey"
	}
	if c.Secrets.BrokerTokenName == "" {
		c.Secrets.BrokerTokenName = "algotrading-schwab-token"
	}

	if c.Marketdata.LookbackDays == 0 {
		c.Marketdata.LookbackDays = 120
	}
	if c.Marketdata.RateLimitPerSec == 0 {
		c.Marketdata.RateLimitPerSec = 5
	}

	if c.Database.DSN == "" {
		c.Database.DSN = os.Getenv("DATABASE_URL")
	}

	if c.Execution.PollIntervalMs == 0 {
		c.Execution.PollIntervalMs = 1000
	}
	if c.Execution.ConfirmTimeoutSecs == 0 {
		c.Execution.ConfirmTimeoutSecs = 300
	}
	if c.Execution.StaleOrderWindowHours == 0 {
		c.Execution.StaleOrderWindowHours = 48
	}
	if c.Execution.OutboxPath == "" {
		c.Execution.OutboxPath = "data/orders.jsonl"
	}

	return c, nil
}
