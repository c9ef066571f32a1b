package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/giantswarm/oauth-engine/instrumentation"
	"github.com/giantswarm/oauth-engine/storage"
)

// Supported drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

const defaultPingTimeout = 5 * time.Second

// Config configures the SQL store.
type Config struct {
	// Driver is DriverSQLite or DriverMySQL.
	Driver string

	// DSN is passed to sql.Open unchanged. For SQLite this is a file path
	// (or "file::memory:?cache=shared"); for MySQL see MySQLDSN.
	DSN string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// PingTimeout bounds the connectivity check in New (default: 5s).
	PingTimeout time.Duration

	Logger *slog.Logger
}

// MySQLConfig describes a MySQL endpoint for MySQLDSN.
type MySQLConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// MySQLDSN builds a go-sql-driver DSN with utf8mb4 and native passwords.
func MySQLDSN(cfg MySQLConfig) string {
	mysqlCfg := mysql.NewConfig()
	mysqlCfg.User = cfg.User
	mysqlCfg.Passwd = cfg.Password
	mysqlCfg.Net = "tcp"
	mysqlCfg.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	mysqlCfg.DBName = cfg.Database
	mysqlCfg.AllowNativePasswords = true
	mysqlCfg.Params = map[string]string{
		"charset": "utf8mb4",
	}
	return mysqlCfg.FormatDSN()
}

// Store implements storage.Store on a SQL database.
type Store struct {
	db     *sql.DB
	driver string
	logger *slog.Logger
	now    func() time.Time

	mu   sync.RWMutex
	inst *instrumentation.Instrumentation
}

var (
	_ storage.Store   = (*Store)(nil)
	_ storage.Sweeper = (*Store)(nil)
)

// New opens the database, verifies connectivity and creates missing tables.
func New(ctx context.Context, cfg Config) (*Store, error) {
	switch cfg.Driver {
	case DriverSQLite, DriverMySQL:
	default:
		return nil, fmt.Errorf("unsupported SQL driver %q", cfg.Driver)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("DSN is required")
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = defaultPingTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s connection: %w", cfg.Driver, err)
	}

	if cfg.Driver == DriverSQLite {
		// SQLite serializes writers; a single connection turns
		// SQLITE_BUSY into queueing inside database/sql.
		db.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}

	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("SQL store ready", "driver", cfg.Driver)
	return &Store{
		db:     db,
		driver: cfg.Driver,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle, mainly for tests and migrations.
func (s *Store) DB() *sql.DB {
	return s.db
}

// SetInstrumentation enables tracing and operation metrics.
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inst = inst
}

func (s *Store) op(ctx context.Context, operation string) (context.Context, func(error)) {
	s.mu.RLock()
	inst := s.inst
	s.mu.RUnlock()
	return inst.StartStorageOperation(ctx, s.driver, operation)
}

// nowUnix is the reference point for every expiry predicate. A record is
// live while expires_at > nowUnix.
func (s *Store) nowUnix() int64 {
	return s.now().Unix()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func joinList(v []string) string {
	return strings.Join(v, " ")
}

func splitList(v string) []string {
	f := strings.Fields(v)
	if len(f) == 0 {
		return nil
	}
	return f
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(v, 0)
}

// withTx runs fn in a transaction, rolling back when fn fails.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// exists reports whether query (a SELECT 1 ...) returns a row.
func exists(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, query string, args ...any) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DeleteExpired removes expired codes and tokens, and device codes expired for
// longer than storage.ExpiredDeviceCodeRetention.
func (s *Store) DeleteExpired(ctx context.Context) (_ int, err error) {
	ctx, done := s.op(ctx, "delete_expired")
	defer func() { done(err) }()

	now := s.nowUnix()
	cutoffs := []struct {
		table  string
		before int64
	}{
		{"authorization_codes", now},
		{"access_tokens", now},
		{"refresh_tokens", now},
		{"device_codes", now - int64(storage.ExpiredDeviceCodeRetention/time.Second)},
	}
	total := 0
	for _, c := range cutoffs {
		table := c.table
		res, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE expires_at <= ?", c.before)
		if err != nil {
			return total, fmt.Errorf("delete expired %s: %w", table, err)
		}
		n, err := rowsAffected(res)
		if err != nil {
			return total, err
		}
		total += int(n)
	}
	return total, nil
}
