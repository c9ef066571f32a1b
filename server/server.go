package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/oauth2"

	"github.com/giantswarm/oauth-engine/instrumentation"
	"github.com/giantswarm/oauth-engine/security"
	"github.com/giantswarm/oauth-engine/storage"
	"github.com/giantswarm/oauth-engine/tokens"
)

// Lifetimes applied when a client record leaves its TTLs unset.
const (
	fallbackAccessTokenTTL  = 300
	fallbackRefreshTokenTTL = 7200
)

// PasswordVerifier checks a login password against a user record. Unknown
// usernames are checked against a placeholder record without an ID, whose
// result is ignored.
type PasswordVerifier interface {
	VerifyPassword(user *storage.User, password string) bool
}

// PasswordVerifierFunc adapts a function to PasswordVerifier.
type PasswordVerifierFunc func(user *storage.User, password string) bool

// VerifyPassword calls f.
func (f PasswordVerifierFunc) VerifyPassword(user *storage.User, password string) bool {
	return f(user, password)
}

// BcryptPasswordVerifier compares against User.PasswordHash.
var BcryptPasswordVerifier = PasswordVerifierFunc(func(user *storage.User, password string) bool {
	return security.VerifySecret(user.PasswordHash, password)
})

// Server is the protocol engine. It is safe for concurrent use once
// configured; setters must be called before serving requests.
type Server struct {
	store     storage.Store
	issuer    *tokens.Issuer
	verifier  *tokens.Verifier
	passwords PasswordVerifier
	now       func() time.Time
	tracer    trace.Tracer

	Auditor         *security.Auditor
	RateLimiter     *security.RateLimiter // IP-based rate limiter
	Instrumentation *instrumentation.Instrumentation
	Logger          *slog.Logger
	Config          *Config
}

// New creates a new OAuth server
func New(store storage.Store, issuer *tokens.Issuer, config *Config, logger *slog.Logger) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if issuer == nil {
		return nil, fmt.Errorf("token issuer is required")
	}
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	config = applySecureDefaults(config, logger)
	if err := validateIssuer(config.Issuer); err != nil {
		return nil, err
	}

	return &Server{
		store:     store,
		issuer:    issuer,
		verifier:  issuer.Verifier(),
		passwords: BcryptPasswordVerifier,
		now:       time.Now,
		tracer:    tracenoop.NewTracerProvider().Tracer(""),
		Logger:    logger,
		Config:    config,
	}, nil
}

// SetAuditor sets the security auditor
func (s *Server) SetAuditor(aud *security.Auditor) {
	s.Auditor = aud
}

// SetRateLimiter sets the IP-based rate limiter
func (s *Server) SetRateLimiter(rl *security.RateLimiter) {
	s.RateLimiter = rl
}

// SetInstrumentation enables metrics and tracing of protocol operations.
func (s *Server) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.Instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("server")
	}
}

// SetPasswordVerifier replaces the bcrypt password check. nil restores it.
func (s *Server) SetPasswordVerifier(v PasswordVerifier) {
	if v == nil {
		v = BcryptPasswordVerifier
	}
	s.passwords = v
}

// SetClock replaces the time source of the server and its token issuer.
func (s *Server) SetClock(now func() time.Time) {
	if now == nil {
		return
	}
	s.now = now
	s.issuer.SetClock(now)
	s.verifier = s.issuer.Verifier()
}

// Now returns the server's current time.
func (s *Server) Now() time.Time {
	return s.now()
}

// Issuer returns the token issuer.
func (s *Server) Issuer() *tokens.Issuer {
	return s.issuer
}

// Store returns the backing store.
func (s *Server) Store() storage.Store {
	return s.store
}

// GetClient resolves a client, mapping unknown IDs to invalid_client.
func (s *Server) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	if clientID == "" {
		return nil, ErrInvalidRequest("client_id is required")
	}
	client, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			return nil, ErrInvalidClient("unknown client")
		}
		return nil, s.internalError("get client", err)
	}
	return client, nil
}

// ResolveUser returns an active user. Missing and inactive users both
// yield storage.ErrUserNotFound.
func (s *Server) ResolveUser(ctx context.Context, userID string) (*storage.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.Active {
		return nil, fmt.Errorf("%w: user %s is inactive", storage.ErrUserNotFound, userID)
	}
	return user, nil
}

// internalError logs err and returns the opaque server_error sent to clients.
func (s *Server) internalError(op string, err error) *Error {
	s.Logger.Error("Storage operation failed", "operation", op, "error", err)
	return ErrServerError("internal error")
}

func (s *Server) metrics() *instrumentation.Metrics {
	if s.Instrumentation == nil {
		return nil
	}
	return s.Instrumentation.Metrics()
}

// startSpan opens a span on the server tracer.
func (s *Server) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name)
}

// finishSpan records the outcome of a protocol operation on span.
func finishSpan(span trace.Span, err error) {
	if err != nil {
		var oe *Error
		if errors.As(err, &oe) {
			instrumentation.SetSpanError(span, oe.Code)
		} else {
			instrumentation.RecordError(span, err)
		}
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	span.End()
}

func ttlSeconds(v, fallback int64) time.Duration {
	if v <= 0 {
		v = fallback
	}
	return time.Duration(v) * time.Second
}

// generateRandomToken generates a cryptographically secure random token.
// This is an alias for oauth2.GenerateVerifier() which produces a URL-safe,
// base64-encoded random string suitable for codes and device codes.
func generateRandomToken() string {
	return oauth2.GenerateVerifier()
}
