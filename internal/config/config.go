package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration (file + env overrides).
type Config struct {
	Server struct {
		Addr      string `mapstructure:"addr"`
		LogLevel  string `mapstructure:"log_level"`
		LogFormat string `mapstructure:"log_format"` // "json" | "console"
	} `mapstructure:"server"`

	Storage struct {
		Driver string `mapstructure:"driver"` // "file" | "postgres"
		Dir    string `mapstructure:"dir"`
	} `mapstructure:"storage"`

	Postgres struct {
		Host         string `mapstructure:"host"`
		Port         int    `mapstructure:"port"`
		User         string `mapstructure:"user"`
		Password     string `mapstructure:"password"`
		DBName       string `mapstructure:"db_name"`
		SSLMode      string `mapstructure:"ssl_mode"`
		MaxOpenConns int    `mapstructure:"max_open_conns"`
		MaxIdleConns int    `mapstructure:"max_idle_conns"`
	} `mapstructure:"postgres"`

	Listener struct {
		Channel          string `mapstructure:"channel"`
		ReconnectSeconds int    `mapstructure:"reconnect_seconds"`
	} `mapstructure:"listener"`

	Fetch struct {
		Endpoint            string `mapstructure:"endpoint"`
		ProjectToken        string `mapstructure:"project_token"`
		Authorization       string `mapstructure:"authorization"`
		TimeoutSeconds      int    `mapstructure:"timeout_seconds"`
		AssetTimeoutSeconds int    `mapstructure:"asset_timeout_seconds"`
	} `mapstructure:"fetch"`

	// Delivery thresholds are policy, not protocol; they stay overridable
	// rather than living as literals in the engine.
	Delivery struct {
		CacheMaxAgeMinutes  int `mapstructure:"cache_max_age_minutes"`
		PendingTTLSeconds   int `mapstructure:"pending_ttl_seconds"`
		LedgerRetentionDays int `mapstructure:"ledger_retention_days"`
	} `mapstructure:"delivery"`
}

func Load() Config {
	v := viper.New()
	v.SetConfigName("application")
	v.SetConfigType("yaml")
	v.AddConfigPath("configs")
	_ = v.ReadInConfig() // optional; env can fully configure

	v.SetEnvPrefix("APP")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Errorf("unable to decode config: %w", err))
	}
	validate(&cfg)
	return cfg
}

func validate(c *Config) {
	if c.Server.Addr == "" { c.Server.Addr = ":8080" }
	if c.Server.LogFormat == "" { c.Server.LogFormat = "json" }
	if c.Storage.Driver == "" { c.Storage.Driver = "file" }
	if c.Storage.Dir == "" { c.Storage.Dir = "data" }
	if c.Postgres.Port == 0 { c.Postgres.Port = 5432 }
	if c.Postgres.SSLMode == "" { c.Postgres.SSLMode = "disable" }
	if c.Postgres.MaxOpenConns == 0 { c.Postgres.MaxOpenConns = 10 }
	if c.Postgres.MaxIdleConns == 0 { c.Postgres.MaxIdleConns = 10 }
	if c.Listener.ReconnectSeconds <= 0 { c.Listener.ReconnectSeconds = 5 }
	if c.Fetch.TimeoutSeconds <= 0 { c.Fetch.TimeoutSeconds = 10 }
	if c.Fetch.AssetTimeoutSeconds <= 0 { c.Fetch.AssetTimeoutSeconds = 10 }
	if c.Delivery.CacheMaxAgeMinutes <= 0 { c.Delivery.CacheMaxAgeMinutes = 30 }
	if c.Delivery.PendingTTLSeconds <= 0 { c.Delivery.PendingTTLSeconds = 3 }
	if c.Delivery.LedgerRetentionDays <= 0 { c.Delivery.LedgerRetentionDays = 30 }
}

func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Postgres.User,
		c.Postgres.Password,
		c.Postgres.Host,
		c.Postgres.Port,
		c.Postgres.DBName,
		c.Postgres.SSLMode,
	)
}

func (c Config) Backoff() time.Duration {
	return time.Duration(c.Listener.ReconnectSeconds) * time.Second
}

func (c Config) CacheMaxAge() time.Duration {
	return time.Duration(c.Delivery.CacheMaxAgeMinutes) * time.Minute
}

func (c Config) PendingTTL() time.Duration {
	return time.Duration(c.Delivery.PendingTTLSeconds) * time.Second
}

func (c Config) LedgerRetention() time.Duration {
	return time.Duration(c.Delivery.LedgerRetentionDays) * 24 * time.Hour
}
