// Package config loads application configuration from a YAML file with
// environment-variable overrides for secrets.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Server          ServerConfig          `yaml:"server"`
	Database        DatabaseConfig        `yaml:"database"`
	Redis           RedisConfig           `yaml:"redis"`
	Engine          EngineConfig          `yaml:"engine"`
	MetricSource    MetricSourceConfig    `yaml:"metric_source"`
	CampaignControl CampaignControlConfig `yaml:"campaign_control"`
	Notifications   NotificationsConfig   `yaml:"notifications"`
	Logging         LoggingConfig         `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_minutes"`
}

// RedisConfig holds the optional Redis settings. When disabled, per-rule
// locking falls back to Postgres advisory locks and the rule cache is off.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// EngineConfig holds rule engine settings.
type EngineConfig struct {
	Enabled             bool    `yaml:"enabled"`
	TickIntervalSeconds int     `yaml:"tick_interval_seconds"`
	Workers             int     `yaml:"workers"`
	ExternalTimeoutSecs int     `yaml:"external_timeout_seconds"`
	BudgetFloor         float64 `yaml:"budget_floor"`
	Timezone            string  `yaml:"timezone"`
}

// TickInterval returns the engine tick interval as a duration.
func (e EngineConfig) TickInterval() time.Duration {
	return time.Duration(e.TickIntervalSeconds) * time.Second
}

// ExternalTimeout returns the bound applied to every external call.
func (e EngineConfig) ExternalTimeout() time.Duration {
	return time.Duration(e.ExternalTimeoutSecs) * time.Second
}

// MetricSourceConfig holds the campaign metrics query service settings.
type MetricSourceConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// CampaignControlConfig holds the campaign control service settings.
type CampaignControlConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// NotificationsConfig holds per-channel delivery settings.
type NotificationsConfig struct {
	Email EmailChannelConfig `yaml:"email"`
	SMS   SMSChannelConfig   `yaml:"sms"`
	Chat  ChatChannelConfig  `yaml:"chat"`
	Retry RetryConfig        `yaml:"retry"`
}

// EmailChannelConfig holds AWS SES settings for the email channel.
type EmailChannelConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	From      string `yaml:"from"`
	Subject   string `yaml:"subject"`
}

// SMSChannelConfig holds the HTTP SMS gateway settings.
type SMSChannelConfig struct {
	Enabled    bool   `yaml:"enabled"`
	GatewayURL string `yaml:"gateway_url"`
	APIKey     string `yaml:"api_key"`
	SenderID   string `yaml:"sender_id"`
}

// ChatChannelConfig holds the chat webhook settings.
type ChatChannelConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// RetryConfig bounds notification delivery retries.
type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
	BaseDelayMS int `yaml:"base_delay_ms"`
}

// BaseDelay returns the first backoff delay.
func (r RetryConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMS) * time.Millisecond
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level            string `yaml:"level"`
	RedactRecipients *bool  `yaml:"redact_recipients"`
}

// Load reads configuration from a YAML file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 5
	}
	if c.Engine.TickIntervalSeconds == 0 {
		c.Engine.TickIntervalSeconds = 60
	}
	if c.Engine.Workers == 0 {
		c.Engine.Workers = 8
	}
	if c.Engine.ExternalTimeoutSecs == 0 {
		c.Engine.ExternalTimeoutSecs = 10
	}
	if c.Engine.Timezone == "" {
		c.Engine.Timezone = "UTC"
	}
	if c.MetricSource.TimeoutSeconds == 0 {
		c.MetricSource.TimeoutSeconds = 10
	}
	if c.CampaignControl.TimeoutSeconds == 0 {
		c.CampaignControl.TimeoutSeconds = 10
	}
	if c.Notifications.Email.Region == "" {
		c.Notifications.Email.Region = "us-west-2"
	}
	if c.Notifications.Email.Subject == "" {
		c.Notifications.Email.Subject = "Campaign automation alert"
	}
	if c.Notifications.Retry.MaxAttempts == 0 {
		c.Notifications.Retry.MaxAttempts = 3
	}
	if c.Notifications.Retry.BaseDelayMS == 0 {
		c.Notifications.Retry.BaseDelayMS = 500
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// LoadFromEnv loads config from the given YAML path, then overlays
// environment variables (and .env if present) for secrets and deploy-time
// overrides.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (ignore errors; env vars may be set directly)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Enabled = true
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("METRIC_SOURCE_URL"); v != "" {
		cfg.MetricSource.BaseURL = v
	}
	if v := os.Getenv("METRIC_SOURCE_API_KEY"); v != "" {
		cfg.MetricSource.APIKey = v
	}
	if v := os.Getenv("CAMPAIGN_CONTROL_URL"); v != "" {
		cfg.CampaignControl.BaseURL = v
	}
	if v := os.Getenv("CAMPAIGN_CONTROL_API_KEY"); v != "" {
		cfg.CampaignControl.APIKey = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.Notifications.Email.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.Notifications.Email.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.Notifications.Email.Region = v
	}
	if v := os.Getenv("SMS_GATEWAY_URL"); v != "" {
		cfg.Notifications.SMS.GatewayURL = v
	}
	if v := os.Getenv("SMS_GATEWAY_API_KEY"); v != "" {
		cfg.Notifications.SMS.APIKey = v
	}
	if v := os.Getenv("CHAT_WEBHOOK_URL"); v != "" {
		cfg.Notifications.Chat.WebhookURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return cfg, nil
}
