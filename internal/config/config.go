// Package config defines the bot's configuration and provides loading,
// validation, and runtime reload.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by KALSHIBOT_* environment
// variables.
type Config struct {
	Kalshi     KalshiConfig     `toml:"kalshi"`
	Spot       SpotConfig       `toml:"spot"`
	Strategy   StrategyConfig   `toml:"strategy"`
	Risk       RiskConfig       `toml:"risk"`
	Settlement SettlementConfig `toml:"settlement"`
	Audit      AuditConfig      `toml:"audit"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Mode       string           `toml:"mode"` // "paper" or "live"
	LogLevel   string           `toml:"log_level"`
}

// KalshiConfig holds Kalshi exchange API parameters.
type KalshiConfig struct {
	ApiKey            string `toml:"api_key"`
	RsaPrivateKeyPath string `toml:"rsa_private_key_path"`
	EncryptedKeyPath  string `toml:"encrypted_key_path"`
	KeyPassword       string `toml:"key_password"`
	BaseURL           string `toml:"base_url"`
	SeriesTicker      string `toml:"series_ticker"`
}

// SpotConfig holds the spot market-data endpoints.
type SpotConfig struct {
	WsURL       string `toml:"ws_url"`
	RestURL     string `toml:"rest_url"`
	ProductID   string `toml:"product_id"`
	SeedCandles int    `toml:"seed_candles"`
}

// StrategyConfig holds the trading strategy tunables. These take effect
// without a restart; the loops re-read them each iteration.
type StrategyConfig struct {
	Sensitivity        float64  `toml:"sensitivity"`
	AtrPeriod          int      `toml:"atr_period"`
	MaxStalkMin        float64  `toml:"max_stalk_min"`
	MinMinutesLeft     float64  `toml:"min_minutes_left"`
	VetoPriceCents     int64    `toml:"veto_price_cents"`
	MaxEntryPriceCents int64    `toml:"max_entry_price_cents"`
	MaxFillsPerSession int      `toml:"max_fills_per_session"`
	BookStaleAfter     duration `toml:"book_stale_after"`
}

// RiskConfig holds bankroll and sizing parameters.
type RiskConfig struct {
	PaperStartBalance float64 `toml:"paper_start_balance"`
	MaxDailyLoss      float64 `toml:"max_daily_loss"`
	FlatFraction      float64 `toml:"flat_fraction"`
	MaxContracts      int64   `toml:"max_contracts"`
}

// SettlementConfig holds the reconciliation schedule.
type SettlementConfig struct {
	InitialDelay  duration `toml:"initial_delay"`
	RetryInterval duration `toml:"retry_interval"`
	MaxRetries    int      `toml:"max_retries"`
}

// AuditConfig holds the activity-trail destinations.
type AuditConfig struct {
	CSVPath       string `toml:"csv_path"`
	StateFile     string `toml:"state_file"`
	ArchivePrefix string `toml:"archive_prefix"`
}

// PostgresConfig holds PostgreSQL connection parameters for the optional
// durable activity store and PnL ledger.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters for the optional live
// activity stream.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	Stream     string `toml:"stream"`
}

// S3Config holds S3-compatible object storage parameters for the optional
// daily archive.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "90s", "15m").
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns the built-in configuration, tuned for paper trading the
// BTC 15-minute series.
func Defaults() Config {
	return Config{
		Kalshi: KalshiConfig{
			BaseURL:      "https://api.elections.kalshi.com/trade-api/v2",
			SeriesTicker: "KXBTC15M",
		},
		Spot: SpotConfig{
			WsURL:       "wss://ws-feed.exchange.coinbase.com",
			RestURL:     "https://api.exchange.coinbase.com",
			ProductID:   "BTC-USD",
			SeedCandles: 300,
		},
		Strategy: StrategyConfig{
			Sensitivity:        1.0,
			AtrPeriod:          10,
			MaxStalkMin:        10.0,
			MinMinutesLeft:     1.0,
			VetoPriceCents:     30,
			MaxEntryPriceCents: 75,
			MaxFillsPerSession: 1,
			BookStaleAfter:     duration{10 * time.Second},
		},
		Risk: RiskConfig{
			PaperStartBalance: 1000.0,
			MaxDailyLoss:      1_000_000.0,
			FlatFraction:      0.02,
			MaxContracts:      250,
		},
		Settlement: SettlementConfig{
			InitialDelay:  duration{90 * time.Second},
			RetryInterval: duration{15 * time.Second},
			MaxRetries:    4,
		},
		Audit: AuditConfig{
			CSVPath:       "activity_log.csv",
			StateFile:     "state/acted_birth_ts.json",
			ArchivePrefix: "archives",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			Stream:     "kalshibot:activity",
		},
		S3: S3Config{
			Region:         "us-east-1",
			Bucket:         "kalshibot-data",
			ForcePathStyle: true,
		},
		Mode:     "paper",
		LogLevel: "info",
	}
}

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true,
}

// Validate checks the configuration and returns all problems at once.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if mode != "paper" && mode != "live" {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: paper, live)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Exchange credentials are mandatory: even paper mode reads real books.
	if c.Kalshi.ApiKey == "" {
		errs = append(errs, "kalshi: api_key must not be empty")
	}
	if c.Kalshi.RsaPrivateKeyPath == "" && c.Kalshi.EncryptedKeyPath == "" {
		errs = append(errs, "kalshi: either rsa_private_key_path or encrypted_key_path must be set")
	}
	if c.Kalshi.EncryptedKeyPath != "" && c.Kalshi.KeyPassword == "" {
		errs = append(errs, "kalshi: key_password is required when encrypted_key_path is set")
	}
	if c.Kalshi.SeriesTicker == "" {
		errs = append(errs, "kalshi: series_ticker must not be empty")
	}

	if c.Spot.WsURL == "" {
		errs = append(errs, "spot: ws_url must not be empty")
	}
	if c.Spot.ProductID == "" {
		errs = append(errs, "spot: product_id must not be empty")
	}

	if c.Strategy.Sensitivity <= 0 {
		errs = append(errs, "strategy: sensitivity must be positive")
	}
	if c.Strategy.AtrPeriod < 1 {
		errs = append(errs, "strategy: atr_period must be at least 1")
	}
	if c.Strategy.VetoPriceCents < 1 || c.Strategy.MaxEntryPriceCents > 99 ||
		c.Strategy.VetoPriceCents > c.Strategy.MaxEntryPriceCents {
		errs = append(errs, fmt.Sprintf("strategy: price band [%d, %d] must sit inside [1, 99]",
			c.Strategy.VetoPriceCents, c.Strategy.MaxEntryPriceCents))
	}
	if c.Strategy.MaxFillsPerSession < 1 {
		errs = append(errs, "strategy: max_fills_per_session must be at least 1")
	}

	if c.Risk.FlatFraction <= 0 || c.Risk.FlatFraction > 1 {
		errs = append(errs, "risk: flat_fraction must be in (0, 1]")
	}
	if c.Risk.MaxContracts < 1 {
		errs = append(errs, "risk: max_contracts must be at least 1")
	}
	if mode == "paper" && c.Risk.PaperStartBalance <= 0 {
		errs = append(errs, "risk: paper_start_balance must be positive in paper mode")
	}

	if c.Settlement.MaxRetries < 1 {
		errs = append(errs, "settlement: max_retries must be at least 1")
	}

	if c.Audit.CSVPath == "" {
		errs = append(errs, "audit: csv_path must not be empty")
	}
	if c.Audit.StateFile == "" {
		errs = append(errs, "audit: state_file must not be empty")
	}

	if c.Redis.Enabled && c.Redis.Stream == "" {
		errs = append(errs, "redis: stream must not be empty when enabled")
	}
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if !c.Postgres.Enabled {
			errs = append(errs, "s3: archiving requires postgres to be enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Paper reports whether the bot trades with simulated money.
func (c *Config) Paper() bool {
	return strings.ToLower(c.Mode) != "live"
}
