package oauth

import (
	"log/slog"
	"time"

	"github.com/giantswarm/oauth-engine/instrumentation"
	"github.com/giantswarm/oauth-engine/server"
)

// Config holds the OAuth handler configuration
type Config struct {
	// Server configures the protocol engine (issuer, lifetimes, PKCE and
	// proxy settings).
	Server server.Config

	// Rate limiting configuration
	RateLimit RateLimitConfig

	// EnableAuditLogging enables security audit logging.
	// Logs auth events, token operations, and violations (sensitive data hashed).
	EnableAuditLogging bool

	// Instrumentation enables metrics and tracing when set.
	Instrumentation *instrumentation.Instrumentation

	// Logger for structured logging (optional, uses default if not provided)
	Logger *slog.Logger
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	// Rate is requests per second allowed per IP on the token, login and
	// device endpoints. Zero disables limiting.
	Rate int

	// Burst is the maximum burst size allowed per IP.
	Burst int

	// MaxEntries bounds the number of tracked IPs. Zero uses the limiter default.
	MaxEntries int
}

// DefaultSweepInterval is how often RunSweeper asks a store to drop expired
// records.
const DefaultSweepInterval = time.Minute
