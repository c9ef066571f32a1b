package oauth

import (
	"context"
	"log/slog"
	"time"

	"github.com/giantswarm/oauth-engine/security"
	"github.com/giantswarm/oauth-engine/server"
	"github.com/giantswarm/oauth-engine/storage"
	"github.com/giantswarm/oauth-engine/tokens"
)

// Server is the protocol engine driven by Handler.
type Server = server.Server

// NewServer builds the protocol engine from cfg, wiring the auditor, the
// per-IP rate limiter and instrumentation.
func NewServer(store storage.Store, issuer *tokens.Issuer, cfg *Config) (*Server, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	serverConfig := cfg.Server
	srv, err := server.New(store, issuer, &serverConfig, logger)
	if err != nil {
		return nil, err
	}

	auditor := security.NewAuditor(logger, cfg.EnableAuditLogging)
	if cfg.Instrumentation != nil {
		srv.SetInstrumentation(cfg.Instrumentation)
		metrics := cfg.Instrumentation.Metrics()
		auditor.OnEvent(func(eventType string) {
			metrics.RecordAuditEvent(context.Background(), eventType)
		})
	}
	srv.SetAuditor(auditor)

	if cfg.RateLimit.Rate > 0 {
		burst := cfg.RateLimit.Burst
		if burst <= 0 {
			burst = cfg.RateLimit.Rate
		}
		maxEntries := cfg.RateLimit.MaxEntries
		if maxEntries == 0 {
			maxEntries = -1
		}
		srv.SetRateLimiter(security.NewRateLimiterWithConfig(cfg.RateLimit.Rate, burst, maxEntries, logger))
	}

	return srv, nil
}

// RunSweeper asks sweeper to delete expired records every interval until ctx
// is done. Expiry is enforced at lookup time regardless; sweeping only bounds
// storage growth.
func RunSweeper(ctx context.Context, sweeper storage.Sweeper, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sweeper.DeleteExpired(ctx)
			if err != nil {
				logger.Warn("Failed to delete expired records", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("Deleted expired records", "count", n)
			}
		}
	}
}
