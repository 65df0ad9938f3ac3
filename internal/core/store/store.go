package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"github.com/policyworks/quotaledger/internal/config"
)

const (
	driverLibsql   = "libsql"
	driverSQLite3  = "sqlite3"
	driverPostgres = "postgres"
	driverMySQL    = "mysql"
	driverRedis    = "redis"
	driverMemory   = "memory"
)

// busyTimeoutMillis bounds how long a local connection waits on a writer
// holding the database lock.
const busyTimeoutMillis = 10000

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ErrDriverUnavailable is returned when the requested SQL driver was not
// compiled into this binary.
var ErrDriverUnavailable = errors.New("store driver not available in this build")

// ErrUnusable marks a local database file that was opened but failed to
// ping, configure, migrate or self-test. Configuration errors never carry it.
var ErrUnusable = errors.New("store database is unusable")

// Store is a durable key/value table behind database/sql.
type Store struct {
	DB      *sql.DB
	driver  string
	dialect dialect
	table   string
	path    string
}

// Open initializes a store connection using the provided configuration,
// creates the table and runs the self-test. A store that fails any step is
// closed before the error is returned.
func Open(ctx context.Context, cfg config.StoreConfig) (*Store, error) {
	driver := strings.TrimSpace(cfg.Driver)
	if driver == "" {
		driver = localDriver
	}

	if ctx == nil {
		ctx = context.Background()
	}

	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}

	var (
		db   *sql.DB
		d    dialect
		path string
	)

	switch driver {
	case driverLibsql, driverSQLite3:
		if driver != localDriver {
			return nil, fmt.Errorf("%w: %s (this build provides %s)", ErrDriverUnavailable, driver, localDriver)
		}
		dsn, local, err := buildLocalDSN(driver, cfg)
		if err != nil {
			return nil, err
		}
		db, err = sql.Open(driver, dsn)
		if err != nil {
			return nil, fmt.Errorf("open %s store: %w", driver, err)
		}
		d = dialectSQLite
		path = local
	case driverPostgres:
		dsn := strings.TrimSpace(cfg.URL)
		if dsn == "" {
			return nil, errors.New("postgres store requires a url")
		}
		db, err = sql.Open(driverPostgres, dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		d = dialectPostgres
	case driverMySQL:
		dsn, err := buildMySQLDSN(cfg)
		if err != nil {
			return nil, err
		}
		db, err = sql.Open(driverMySQL, dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql store: %w", err)
		}
		d = dialectMySQL
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", driver)
	}

	store := &Store{DB: db, driver: driver, dialect: d, table: table, path: path}

	if err := store.prepare(ctx); err != nil {
		_ = db.Close()
		if d == dialectSQLite {
			return nil, fmt.Errorf("%w: %w", ErrUnusable, err)
		}
		return nil, err
	}

	return store, nil
}

func (s *Store) prepare(ctx context.Context) error {
	if s.dialect == dialectSQLite {
		// Local files allow one writer; a single connection serializes access
		// and keeps a ":memory:" database alive for the handle's lifetime.
		s.DB.SetMaxOpenConns(1)
		s.DB.SetMaxIdleConns(1)
		s.DB.SetConnMaxLifetime(0)
	} else {
		s.DB.SetConnMaxLifetime(time.Hour)
	}

	if err := s.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping %s store: %w", s.driver, err)
	}

	if s.dialect == dialectSQLite && s.path != "" {
		if err := s.configureLocal(ctx); err != nil {
			return err
		}
	}

	if err := s.Migrate(ctx); err != nil {
		return err
	}

	return s.SelfTest(ctx)
}

func (s *Store) configureLocal(ctx context.Context) error {
	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeoutMillis),
	} {
		if err := execPragma(ctx, s.DB, stmt); err != nil {
			return fmt.Errorf("configure %s store: %w", s.driver, err)
		}
	}
	return nil
}

// execPragma runs a PRAGMA and drains whatever row it returns. Some drivers
// reject Exec for statements that produce rows.
func execPragma(ctx context.Context, db *sql.DB, stmt string) error {
	rows, err := db.QueryContext(ctx, stmt)
	if err != nil {
		return err
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup on SQL rows
	for rows.Next() {
	}
	return rows.Err()
}

// Close releases database resources.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// Driver returns the configured store driver.
func (s *Store) Driver() string {
	if s == nil {
		return ""
	}
	return s.driver
}

// Table returns the table holding the values.
func (s *Store) Table() string {
	if s == nil {
		return ""
	}
	return s.table
}

// Path returns the local database file, or "" for in-memory and remote stores.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

func tableName(raw string) (string, error) {
	table := strings.TrimSpace(raw)
	if table == "" {
		return config.DefaultTable, nil
	}
	if !tableNamePattern.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// LocalPath reports the file a local store configuration points at, or "" when
// the configuration names a remote or in-memory database.
func LocalPath(cfg config.StoreConfig) string {
	driver := strings.TrimSpace(cfg.Driver)
	if driver != "" && driver != driverLibsql && driver != driverSQLite3 {
		return ""
	}
	if strings.TrimSpace(cfg.URL) != "" {
		return ""
	}
	path := strings.TrimSpace(cfg.Path)
	if path == "" || path == ":memory:" || strings.HasPrefix(path, "libsql:") {
		return ""
	}
	if strings.HasPrefix(path, "file:") {
		local, err := extractFilePath(path)
		if err != nil || local == ":memory:" {
			return ""
		}
		return local
	}
	return filepath.Clean(path)
}

// buildLocalDSN returns the DSN for a libsql or sqlite3 database and the local
// file it refers to.
func buildLocalDSN(driver string, cfg config.StoreConfig) (string, string, error) {
	if dsn := strings.TrimSpace(cfg.URL); dsn != "" {
		if driver == driverLibsql {
			withToken, err := addAuthToken(dsn, cfg.AuthToken)
			return withToken, "", err
		}
		return dsn, "", nil
	}

	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return "", "", errors.New("store path or url is required")
	}

	if path == ":memory:" {
		return path, "", nil
	}

	if strings.HasPrefix(path, "file:") {
		localPath, err := extractFilePath(path)
		if err != nil {
			return "", "", err
		}
		if err := ensureStoreDir(localPath); err != nil {
			return "", "", err
		}
		return path, localPath, nil
	}

	if strings.HasPrefix(path, "libsql:") {
		return path, "", nil
	}

	if err := ensureStoreDir(path); err != nil {
		return "", "", err
	}
	clean := filepath.Clean(path)
	return "file:" + clean, clean, nil
}

func buildMySQLDSN(cfg config.StoreConfig) (string, error) {
	raw := strings.TrimSpace(cfg.URL)
	if raw == "" {
		return "", errors.New("mysql store requires a url")
	}
	raw = strings.TrimPrefix(raw, "mysql://")

	parsed, err := mysql.ParseDSN(raw)
	if err != nil {
		return "", fmt.Errorf("invalid mysql dsn: %w", err)
	}
	if parsed.Params == nil {
		parsed.Params = map[string]string{}
	}
	// Applied on every pooled connection, not just the first.
	parsed.Params["sql_mode"] = "'STRICT_TRANS_TABLES'"
	// Report matched rows so a compare-and-swap that writes an identical
	// value still counts as applied.
	parsed.ClientFoundRows = true

	return parsed.FormatDSN(), nil
}

func addAuthToken(dsn string, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return dsn, nil
	}

	parsed, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid store url: %w", err)
	}

	query := parsed.Query()
	if query.Get("authToken") == "" {
		query.Set("authToken", token)
		parsed.RawQuery = query.Encode()
	}

	return parsed.String(), nil
}

func extractFilePath(dsn string) (string, error) {
	parsed, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid store path: %w", err)
	}

	if parsed.Path != "" {
		return strings.TrimPrefix(parsed.Path, "//"), nil
	}

	return strings.TrimPrefix(parsed.Opaque, "//"), nil
}

func ensureStoreDir(path string) error {
	if strings.TrimSpace(path) == "" || path == ":memory:" {
		return nil
	}

	dir := filepath.Dir(filepath.Clean(path))
	if dir == "." || dir == string(filepath.Separator) {
		return nil
	}

	// #nosec G301 -- data directories use 0755 for multi-user access compatibility
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	return nil
}
