package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rruehl/Kalshi-Bot-V5/internal/audit"
	s3blob "github.com/rruehl/Kalshi-Bot-V5/internal/blob/s3"
	"github.com/rruehl/Kalshi-Bot-V5/internal/cache/redis"
	"github.com/rruehl/Kalshi-Bot-V5/internal/config"
	"github.com/rruehl/Kalshi-Bot-V5/internal/crypto"
	"github.com/rruehl/Kalshi-Bot-V5/internal/domain"
	"github.com/rruehl/Kalshi-Bot-V5/internal/platform/kalshi"
	"github.com/rruehl/Kalshi-Bot-V5/internal/risk"
	"github.com/rruehl/Kalshi-Bot-V5/internal/state"
	"github.com/rruehl/Kalshi-Bot-V5/internal/store/postgres"
)

// Dependencies bundles the long-lived resources the bot needs. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Kalshi *kalshi.Client

	// Audit trail
	Recorder *audit.Recorder
	Archiver *audit.Archiver // nil unless both postgres and s3 are enabled

	// Risk and crash-safe state
	Risk         *risk.Engine
	Dedup        *state.DedupStore
	ActedBirthTS *float64 // dedup record loaded at startup, nil for a fresh start
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Kalshi exchange client ---
	kc, err := kalshi.NewClient(cfg.Kalshi.BaseURL, cfg.Kalshi.ApiKey)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: kalshi client: %w", err)
	}
	keyPEM, err := crypto.LoadKey(crypto.KeyConfig{
		KeyPath:          cfg.Kalshi.RsaPrivateKeyPath,
		EncryptedKeyPath: cfg.Kalshi.EncryptedKeyPath,
		KeyPassword:      cfg.Kalshi.KeyPassword,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wire: signing key: %w", err)
	}
	if err := kc.SetRSAPrivateKey(keyPEM); err != nil {
		return nil, nil, fmt.Errorf("wire: signing key: %w", err)
	}
	deps.Kalshi = kc

	// --- Audit sinks: CSV always, postgres and redis when enabled ---
	csvLog, err := audit.NewCSVLog(cfg.Audit.CSVPath)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: csv log: %w", err)
	}
	closers = append(closers, func() { _ = csvLog.Close() })
	sinks := []domain.ActivityLog{csvLog}

	var ledgerStore domain.LedgerStore
	var activityStore domain.ActivityStore

	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		store := postgres.NewActivityStore(pool)
		activityStore = store
		ledgerStore = postgres.NewLedgerStore(pool)
		sinks = append(sinks, store)
	}

	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		sinks = append(sinks, redis.NewActivityBus(redisClient, cfg.Redis.Stream))
	}

	// --- Risk engine ---
	// Live mode starts at zero and syncs from the exchange balance before the
	// first tick.
	startBankroll := 0.0
	if cfg.Paper() {
		startBankroll = cfg.Risk.PaperStartBalance
	}
	riskEng := risk.NewEngine(startBankroll, ledgerStore, logger)
	if err := riskEng.Replay(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %w", err)
	}
	deps.Risk = riskEng

	deps.Recorder = audit.NewRecorder(audit.NewMulti(sinks...), riskEng, cfg.Mode, logger)

	// --- S3 daily archive (needs the queryable store) ---
	if cfg.S3.Enabled && activityStore != nil {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = audit.NewArchiver(
			activityStore, s3blob.NewWriter(s3Client), cfg.Audit.ArchivePrefix, logger,
		)
	}

	// --- Crash-safe dedup record ---
	if err := os.MkdirAll(filepath.Dir(cfg.Audit.StateFile), 0o755); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: state dir: %w", err)
	}
	dedup := state.NewDedupStore(cfg.Audit.StateFile)
	acted, err := dedup.Load()
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: dedup state: %w", err)
	}
	deps.Dedup = dedup
	deps.ActedBirthTS = acted

	return deps, cleanup, nil
}
