package config

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Provider hands out the current configuration and refreshes it from disk in
// the background. Strategy tunables are read through Get on every loop
// iteration, so an edited TOML file takes effect without a restart. Fields
// that describe process wiring (mode, endpoints, store credentials) are only
// read once at startup; changing those still requires a restart.
type Provider struct {
	cur  atomic.Pointer[Config]
	path string
	log  *slog.Logger
}

func NewProvider(initial *Config, path string, log *slog.Logger) *Provider {
	p := &Provider{
		path: path,
		log:  log.With("component", "config"),
	}
	p.cur.Store(initial)
	return p
}

// Get returns the current configuration snapshot. The returned value must be
// treated as read-only.
func (p *Provider) Get() *Config {
	return p.cur.Load()
}

// Watch re-reads the configuration file every interval until the context is
// cancelled. A file that fails to load or validate is logged and skipped; the
// previous configuration stays active.
func (p *Provider) Watch(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		cfg, err := Load(p.path)
		if err != nil {
			p.log.Warn("config reload failed", "path", p.path, "error", err)
			continue
		}
		if err := cfg.Validate(); err != nil {
			p.log.Warn("config reload rejected", "path", p.path, "error", err)
			continue
		}

		prev := p.cur.Load()
		if prev != nil && *prev == *cfg {
			continue
		}
		p.cur.Store(cfg)
		p.log.Info("config reloaded", "path", p.path)
	}
}
