// Package db opens database handles for the supported drivers and pairs each
// with the SQL dialect the query engine renders for it.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	_ "github.com/lib/pq"              // postgres driver
	_ "github.com/mattn/go-sqlite3"    // sqlite3 driver
	_ "modernc.org/sqlite"             // pure Go sqlite driver

	"github.com/conduit-lang/assoc/internal/orm/clause"
)

var (
	// ErrNoURL is returned when no connection URL is configured
	ErrNoURL = errors.New("no database URL configured")

	// ErrUnsupportedDriver is returned for a URL scheme or driver name that
	// no registered driver handles
	ErrUnsupportedDriver = errors.New("unsupported database driver")
)

// Options tunes the connection pool
type Options struct {
	// Driver overrides the driver picked from the URL scheme: pgx, postgres,
	// sqlite3 (cgo) or sqlite (pure Go).
	Driver          string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Handle is an open pool and the dialect statements must be rendered in
type Handle struct {
	DB      *sql.DB
	Driver  string
	Dialect clause.Dialect
}

// Close closes the pool
func (h *Handle) Close() error {
	return h.DB.Close()
}

// Resolve returns the driver name and data source name for url.
// postgres:// and postgresql:// URLs use pgx unless the driver is
// overridden; sqlite3://, sqlite://, file: and :memory: use sqlite3.
func Resolve(url, driver string) (string, string, error) {
	if url == "" {
		return "", "", ErrNoURL
	}

	dsn := url
	detected := ""
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		detected = "pgx"
	case strings.HasPrefix(url, "sqlite3://"):
		detected, dsn = "sqlite3", strings.TrimPrefix(url, "sqlite3://")
	case strings.HasPrefix(url, "sqlite://"):
		detected, dsn = "sqlite3", strings.TrimPrefix(url, "sqlite://")
	case strings.HasPrefix(url, "file:"), url == ":memory:":
		detected = "sqlite3"
	}

	switch driver {
	case "":
		if detected == "" {
			return "", "", fmt.Errorf("%w: cannot infer a driver from %q", ErrUnsupportedDriver, redact(url))
		}
		return detected, dsn, nil
	case "pgx", "postgres", "sqlite3", "sqlite":
		return driver, dsn, nil
	}
	return "", "", fmt.Errorf("%w: %s", ErrUnsupportedDriver, driver)
}

// Open opens and pings a pool for url
func Open(ctx context.Context, url string, opts Options) (*Handle, error) {
	driver, dsn, err := Resolve(url, opts.Driver)
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	maxOpen := opts.MaxOpenConns
	if clause.DialectFor(driver) == (clause.SQLite{}) && isMemory(dsn) {
		// every connection to :memory: is a separate database
		maxOpen = 1
	}
	if maxOpen > 0 {
		conn.SetMaxOpenConns(maxOpen)
	}
	if opts.MaxIdleConns > 0 {
		conn.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		conn.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", redact(url), err)
	}

	return &Handle{DB: conn, Driver: driver, Dialect: clause.DialectFor(driver)}, nil
}

func isMemory(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
}

// redact drops the password from a URL for messages
func redact(url string) string {
	at := strings.LastIndex(url, "@")
	scheme := strings.Index(url, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return url
	}
	userinfo := url[scheme+3 : at]
	if i := strings.Index(userinfo, ":"); i >= 0 {
		userinfo = userinfo[:i] + ":***"
	}
	return url[:scheme+3] + userinfo + url[at:]
}
