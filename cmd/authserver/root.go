package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/giantswarm/oauth-engine/security"
)

const envPrefix = "AUTHSERVER"

// Store backends selectable with --store.
const (
	storeMemory = "memory"
	storeSQLite = "sqlite"
	storeMySQL  = "mysql"
	storeValkey = "valkey"
)

type settings struct {
	Listen          string
	ShutdownTimeout time.Duration

	Issuer            string
	TrustProxy        bool
	LogoutRedirectURL string
	SessionTimeout    time.Duration
	RememberMeTimeout time.Duration
	SessionKey        []byte

	Store          string
	DSN            string
	ValkeyAddr     string
	ValkeyPassword string
	ValkeyKey      []byte
	SweepInterval  time.Duration

	SeedFile  string
	WatchSeed bool

	PrivateKeyPath string
	PublicKeyPath  string
	KeyID          string

	TemplateDir string

	RateLimit int
	RateBurst int
	AuditLog  bool

	MetricsListen string
	OTLPEndpoint  string

	LogLevel  string
	LogFormat string
}

// runFunc starts the server; tests substitute it to inspect settings.
type runFunc func(ctx context.Context, cfg *settings, logger *slog.Logger) error

func newRootCommand() *cobra.Command {
	return newRootCommandWith(viper.New(), run)
}

func newRootCommandWith(v *viper.Viper, runServer runFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "authserver",
		Short:         "OAuth 2.0 and OpenID Connect authorization server",
		SilenceErrors: true,
		SilenceUsage:  true,
		Example: `
  # In-memory store with clients and users from a seed file
  authserver --seed-file seed.yaml --watch-seed

  # SQLite store behind a TLS-terminating proxy
  AUTHSERVER_ISSUER=https://auth.example.com authserver --store sqlite --dsn /var/lib/authserver/oauth.db --trust-proxy

  # Valkey store with Prometheus metrics on :9090
  authserver --store valkey --valkey-addr valkey:6379 --metrics-listen :9090
`,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfigFile(v)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := settingsFromViper(v)
			if err != nil {
				return err
			}
			logger, err := newLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg, logger)
		},
	}

	flags := cmd.Flags()
	flags.String("config", "", "YAML config file with the same keys as the flags")
	flags.String("listen", ":8080", "address the authorization server listens on")
	flags.Duration("shutdown-timeout", 10*time.Second, "grace period for in-flight requests on shutdown")
	flags.String("issuer", "", "issuer URL; derived from each request when empty")
	flags.Bool("trust-proxy", false, "honour X-Forwarded-* headers from a reverse proxy")
	flags.String("logout-redirect-url", "", "where the browser goes after logout")
	flags.Duration("session-timeout", 0, "login session lifetime (default 3200s)")
	flags.Duration("remember-me-timeout", 0, "login session lifetime with remember me (default 1 year)")
	flags.String("session-key", "", "base64 32-byte key sealing session cookies; random when empty")
	flags.String("store", storeMemory, "storage backend: memory, sqlite, mysql or valkey")
	flags.String("dsn", "", "data source name for the sqlite or mysql store")
	flags.String("valkey-addr", "", "valkey address for the valkey store")
	flags.String("valkey-password", "", "valkey password")
	flags.String("valkey-encryption-key", "", "base64 32-byte key encrypting valkey records at rest")
	flags.Duration("sweep-interval", time.Minute, "how often the sql store deletes expired records")
	flags.String("seed-file", "", "YAML file of clients and users applied at startup")
	flags.Bool("watch-seed", false, "reapply the seed file whenever it changes")
	flags.String("jwk-private-key", "", "PEM PKCS#8 RSA private key signing tokens; generated when empty")
	flags.String("jwk-public-key", "", "PEM PKIX public key; derived from the private key when empty")
	flags.String("jwk-kid", "", "key ID published in the JWKS; random when empty")
	flags.String("template-dir", "", "directory of *.html templates overriding the built-in pages")
	flags.Int("rate-limit", 10, "requests per second per client IP on token, login and device endpoints; 0 disables")
	flags.Int("rate-burst", 20, "rate limit burst")
	flags.Bool("audit-log", true, "log security audit events")
	flags.String("metrics-listen", "", "address serving Prometheus metrics; disabled when empty")
	flags.String("otlp-endpoint", "", "OTLP/HTTP endpoint receiving traces, e.g. http://collector:4318")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.String("log-format", "text", "log format: text or json")

	bindFlags(v, flags)
	cmd.AddCommand(newHashCommand())
	return cmd
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	flags.VisitAll(func(flag *pflag.Flag) {
		if err := v.BindPFlag(flag.Name, flag); err != nil {
			panic(err)
		}
	})
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

func loadConfigFile(v *viper.Viper) error {
	path := strings.TrimSpace(v.GetString("config"))
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("config file %q: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config file %q is a directory", path)
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file %q: %w", path, err)
	}
	return nil
}

func settingsFromViper(v *viper.Viper) (*settings, error) {
	cfg := &settings{
		Listen:            v.GetString("listen"),
		ShutdownTimeout:   v.GetDuration("shutdown-timeout"),
		Issuer:            strings.TrimSuffix(v.GetString("issuer"), "/"),
		TrustProxy:        v.GetBool("trust-proxy"),
		LogoutRedirectURL: v.GetString("logout-redirect-url"),
		SessionTimeout:    v.GetDuration("session-timeout"),
		RememberMeTimeout: v.GetDuration("remember-me-timeout"),
		Store:             strings.ToLower(strings.TrimSpace(v.GetString("store"))),
		DSN:               v.GetString("dsn"),
		ValkeyAddr:        v.GetString("valkey-addr"),
		ValkeyPassword:    v.GetString("valkey-password"),
		SweepInterval:     v.GetDuration("sweep-interval"),
		SeedFile:          v.GetString("seed-file"),
		WatchSeed:         v.GetBool("watch-seed"),
		PrivateKeyPath:    v.GetString("jwk-private-key"),
		PublicKeyPath:     v.GetString("jwk-public-key"),
		KeyID:             v.GetString("jwk-kid"),
		TemplateDir:       v.GetString("template-dir"),
		RateLimit:         v.GetInt("rate-limit"),
		RateBurst:         v.GetInt("rate-burst"),
		AuditLog:          v.GetBool("audit-log"),
		MetricsListen:     v.GetString("metrics-listen"),
		OTLPEndpoint:      v.GetString("otlp-endpoint"),
		LogLevel:          v.GetString("log-level"),
		LogFormat:         v.GetString("log-format"),
	}

	if key := v.GetString("session-key"); key != "" {
		raw, err := security.KeyFromBase64(key)
		if err != nil {
			return nil, fmt.Errorf("--session-key: %w", err)
		}
		cfg.SessionKey = raw
	}

	if key := v.GetString("valkey-encryption-key"); key != "" {
		raw, err := security.KeyFromBase64(key)
		if err != nil {
			return nil, fmt.Errorf("--valkey-encryption-key: %w", err)
		}
		cfg.ValkeyKey = raw
	}

	switch cfg.Store {
	case storeMemory:
	case storeSQLite, storeMySQL:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("--dsn is required for the %s store", cfg.Store)
		}
	case storeValkey:
		if cfg.ValkeyAddr == "" {
			return nil, fmt.Errorf("--valkey-addr is required for the valkey store")
		}
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
	if cfg.WatchSeed && cfg.SeedFile == "" {
		return nil, fmt.Errorf("--watch-seed requires --seed-file")
	}
	return cfg, nil
}
