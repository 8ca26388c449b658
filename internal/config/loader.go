package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies KALSHIBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known KALSHIBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Kalshi ──
	setStr(&cfg.Kalshi.ApiKey, "KALSHIBOT_KALSHI_API_KEY")
	setStr(&cfg.Kalshi.RsaPrivateKeyPath, "KALSHIBOT_KALSHI_RSA_PRIVATE_KEY_PATH")
	setStr(&cfg.Kalshi.EncryptedKeyPath, "KALSHIBOT_KALSHI_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Kalshi.KeyPassword, "KALSHIBOT_KALSHI_KEY_PASSWORD")
	setStr(&cfg.Kalshi.BaseURL, "KALSHIBOT_KALSHI_BASE_URL")
	setStr(&cfg.Kalshi.SeriesTicker, "KALSHIBOT_KALSHI_SERIES_TICKER")

	// ── Spot ──
	setStr(&cfg.Spot.WsURL, "KALSHIBOT_SPOT_WS_URL")
	setStr(&cfg.Spot.RestURL, "KALSHIBOT_SPOT_REST_URL")
	setStr(&cfg.Spot.ProductID, "KALSHIBOT_SPOT_PRODUCT_ID")
	setInt(&cfg.Spot.SeedCandles, "KALSHIBOT_SPOT_SEED_CANDLES")

	// ── Strategy ──
	setFloat64(&cfg.Strategy.Sensitivity, "KALSHIBOT_STRATEGY_SENSITIVITY")
	setInt(&cfg.Strategy.AtrPeriod, "KALSHIBOT_STRATEGY_ATR_PERIOD")
	setFloat64(&cfg.Strategy.MaxStalkMin, "KALSHIBOT_STRATEGY_MAX_STALK_MIN")
	setFloat64(&cfg.Strategy.MinMinutesLeft, "KALSHIBOT_STRATEGY_MIN_MINUTES_LEFT")
	setInt64(&cfg.Strategy.VetoPriceCents, "KALSHIBOT_STRATEGY_VETO_PRICE_CENTS")
	setInt64(&cfg.Strategy.MaxEntryPriceCents, "KALSHIBOT_STRATEGY_MAX_ENTRY_PRICE_CENTS")
	setInt(&cfg.Strategy.MaxFillsPerSession, "KALSHIBOT_STRATEGY_MAX_FILLS_PER_SESSION")
	setDuration(&cfg.Strategy.BookStaleAfter, "KALSHIBOT_STRATEGY_BOOK_STALE_AFTER")

	// ── Risk ──
	setFloat64(&cfg.Risk.PaperStartBalance, "KALSHIBOT_RISK_PAPER_START_BALANCE")
	setFloat64(&cfg.Risk.MaxDailyLoss, "KALSHIBOT_RISK_MAX_DAILY_LOSS")
	setFloat64(&cfg.Risk.FlatFraction, "KALSHIBOT_RISK_FLAT_FRACTION")
	setInt64(&cfg.Risk.MaxContracts, "KALSHIBOT_RISK_MAX_CONTRACTS")

	// ── Settlement ──
	setDuration(&cfg.Settlement.InitialDelay, "KALSHIBOT_SETTLEMENT_INITIAL_DELAY")
	setDuration(&cfg.Settlement.RetryInterval, "KALSHIBOT_SETTLEMENT_RETRY_INTERVAL")
	setInt(&cfg.Settlement.MaxRetries, "KALSHIBOT_SETTLEMENT_MAX_RETRIES")

	// ── Audit ──
	setStr(&cfg.Audit.CSVPath, "KALSHIBOT_AUDIT_CSV_PATH")
	setStr(&cfg.Audit.StateFile, "KALSHIBOT_AUDIT_STATE_FILE")
	setStr(&cfg.Audit.ArchivePrefix, "KALSHIBOT_AUDIT_ARCHIVE_PREFIX")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "KALSHIBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "KALSHIBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "KALSHIBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "KALSHIBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "KALSHIBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "KALSHIBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "KALSHIBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "KALSHIBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "KALSHIBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "KALSHIBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "KALSHIBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "KALSHIBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "KALSHIBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "KALSHIBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "KALSHIBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "KALSHIBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "KALSHIBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "KALSHIBOT_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.Stream, "KALSHIBOT_REDIS_STREAM")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "KALSHIBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "KALSHIBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "KALSHIBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "KALSHIBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "KALSHIBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "KALSHIBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "KALSHIBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "KALSHIBOT_S3_FORCE_PATH_STYLE")

	// ── Top-level ──
	setStr(&cfg.Mode, "KALSHIBOT_MODE")
	setStr(&cfg.LogLevel, "KALSHIBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
