package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	oauth "github.com/giantswarm/oauth-engine"
	"github.com/giantswarm/oauth-engine/instrumentation"
	"github.com/giantswarm/oauth-engine/internal/seed"
	"github.com/giantswarm/oauth-engine/security"
	"github.com/giantswarm/oauth-engine/server"
	"github.com/giantswarm/oauth-engine/session"
	"github.com/giantswarm/oauth-engine/storage"
	"github.com/giantswarm/oauth-engine/storage/memory"
	"github.com/giantswarm/oauth-engine/storage/sqlstore"
	"github.com/giantswarm/oauth-engine/storage/valkey"
	"github.com/giantswarm/oauth-engine/tokens"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// app is a fully wired server that has not started listening yet.
type app struct {
	cfg     *settings
	logger  *slog.Logger
	store   storage.Store
	handler *oauth.Handler
	inst    *instrumentation.Instrumentation
	http    http.Handler

	closers []func()
}

type instrumentedStore interface {
	SetInstrumentation(inst *instrumentation.Instrumentation)
}

func newApp(ctx context.Context, cfg *settings, logger *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	a.inst, err = instrumentation.New(instrumentation.Config{
		ServiceName:     "authserver",
		ServiceVersion:  version,
		Enabled:         telemetryEnabled(cfg),
		MetricsExporter: metricsExporter(cfg),
		OTLPEndpoint:    cfg.OTLPEndpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize instrumentation: %w", err)
	}

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}
	if s, ok := a.store.(instrumentedStore); ok && telemetryEnabled(cfg) {
		s.SetInstrumentation(a.inst)
	}

	if cfg.SeedFile != "" {
		res, err := seed.LoadAndApply(ctx, a.store, cfg.SeedFile)
		if err != nil {
			return nil, fmt.Errorf("failed to apply seed file: %w", err)
		}
		logger.Info("Applied seed file", "path", cfg.SeedFile, "clients", res.Clients, "users", res.Users)
	}

	issuer, err := tokens.NewIssuer(tokens.KeyConfig{
		PrivateKeyPath: cfg.PrivateKeyPath,
		PublicKeyPath:  cfg.PublicKeyPath,
		KeyID:          cfg.KeyID,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load signing key: %w", err)
	}

	sessions, err := session.NewCookieStore(session.CookieConfig{
		Key:    cfg.SessionKey,
		Secure: strings.HasPrefix(cfg.Issuer, server.SchemeHTTPS+"://"),
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session store: %w", err)
	}
	if cfg.SessionKey == nil {
		logger.Warn("No --session-key given, sessions will not survive a restart")
	}

	var inst *instrumentation.Instrumentation
	if telemetryEnabled(cfg) {
		inst = a.inst
	}
	a.handler, err = oauth.New(a.store, issuer, sessions, &oauth.Config{
		Server: server.Config{
			Issuer:            cfg.Issuer,
			SessionTimeout:    int64(cfg.SessionTimeout / time.Second),
			RememberMeTimeout: int64(cfg.RememberMeTimeout / time.Second),
			TrustProxy:        cfg.TrustProxy,
			LogoutRedirectURL: cfg.LogoutRedirectURL,
		},
		RateLimit:          oauth.RateLimitConfig{Rate: cfg.RateLimit, Burst: cfg.RateBurst},
		EnableAuditLogging: cfg.AuditLog,
		Instrumentation:    inst,
		Logger:             logger,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.handler.Close)

	if cfg.TemplateDir != "" {
		renderer, err := oauth.ParseTemplateFS(os.DirFS(cfg.TemplateDir), "*.html")
		if err != nil {
			return nil, err
		}
		a.handler.SetRenderer(renderer)
	}

	a.http = a.handler.Router()
	if inst != nil {
		a.http = otelhttp.NewHandler(a.http, "authserver",
			otelhttp.WithTracerProvider(inst.TracerProvider()),
			otelhttp.WithMeterProvider(inst.MeterProvider()),
		)
	}
	return a, nil
}

func telemetryEnabled(cfg *settings) bool {
	return cfg.MetricsListen != "" || cfg.OTLPEndpoint != ""
}

func metricsExporter(cfg *settings) string {
	if cfg.MetricsListen != "" {
		return instrumentation.ExporterPrometheus
	}
	return instrumentation.ExporterNone
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.Store {
	case storeMemory:
		st := memory.New()
		st.SetLogger(a.logger)
		a.store = st
		a.closers = append(a.closers, st.Stop)
	case storeSQLite, storeMySQL:
		driver := sqlstore.DriverSQLite
		if a.cfg.Store == storeMySQL {
			driver = sqlstore.DriverMySQL
		}
		st, err := sqlstore.New(ctx, sqlstore.Config{Driver: driver, DSN: a.cfg.DSN, Logger: a.logger})
		if err != nil {
			return fmt.Errorf("failed to open %s store: %w", a.cfg.Store, err)
		}
		a.store = st
		a.closers = append(a.closers, func() {
			if err := st.Close(); err != nil {
				a.logger.Warn("Failed to close store", "error", err)
			}
		})
	case storeValkey:
		st, err := valkey.New(valkey.Config{Address: a.cfg.ValkeyAddr, Password: a.cfg.ValkeyPassword, Logger: a.logger})
		if err != nil {
			return fmt.Errorf("failed to connect to valkey: %w", err)
		}
		if a.cfg.ValkeyKey != nil {
			enc, err := security.NewEncryptor(a.cfg.ValkeyKey)
			if err != nil {
				st.Close()
				return fmt.Errorf("failed to create valkey encryptor: %w", err)
			}
			st.SetEncryptor(enc)
		}
		a.store = st
		a.closers = append(a.closers, st.Close)
	default:
		return fmt.Errorf("unknown store %q", a.cfg.Store)
	}
	return nil
}

func (a *app) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	if a.inst != nil {
		if err := a.inst.Shutdown(ctx); err != nil {
			a.logger.Warn("Failed to shut down instrumentation", "error", err)
		}
	}
}

// serve runs the HTTP listeners and background work until ctx is done.
func (a *app) serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if sweeper, ok := a.store.(storage.Sweeper); ok && a.cfg.Store != storeMemory {
		go oauth.RunSweeper(ctx, sweeper, a.cfg.SweepInterval, a.logger)
	}
	if a.cfg.WatchSeed {
		if err := seed.WatchAndApply(ctx, a.store, a.cfg.SeedFile, a.logger); err != nil {
			return fmt.Errorf("failed to watch seed file: %w", err)
		}
	}

	servers := []*http.Server{newHTTPServer(a.cfg.Listen, a.http)}
	if a.cfg.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.inst.MetricsHandler())
		servers = append(servers, newHTTPServer(a.cfg.MetricsListen, mux))
	}

	listeners := make([]net.Listener, 0, len(servers))
	for _, srv := range servers {
		ln, err := net.Listen("tcp", srv.Addr)
		if err != nil {
			for _, l := range listeners {
				_ = l.Close()
			}
			return fmt.Errorf("listen on %s: %w", srv.Addr, err)
		}
		listeners = append(listeners, ln)
	}

	errc := make(chan error, len(servers))
	for i, srv := range servers {
		ln := listeners[i]
		a.logger.Info("Listening", "addr", ln.Addr().String())
		go func(srv *http.Server, ln net.Listener) {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- err
			}
		}(srv, ln)
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errc:
	}

	a.logger.Info("Shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancelShutdown()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("Failed to shut down listener", "addr", srv.Addr, "error", err)
		}
	}
	return serveErr
}

func newHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func run(ctx context.Context, cfg *settings, logger *slog.Logger) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	logger.Info("Starting authorization server",
		"version", version,
		"store", cfg.Store,
		"issuer", cfg.Issuer,
		"metrics", cfg.MetricsListen != "",
	)
	return a.serve(ctx)
}
