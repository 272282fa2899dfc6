// Package db opens the daemon's sqlite database with sane pragmas and pool
// settings.
package db

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/forgeapp/forge/internal/utils"
)

const driverName = "sqlite3"

const defaultPragma = `
PRAGMA journal_mode=WAL;
PRAGMA busy_timeout=5000;
PRAGMA foreign_keys=ON;
PRAGMA temp_store=MEMORY;
PRAGMA cache_size=8000;
`

type config struct {
	path            string
	pragmas         string
	maxOpenConns    int
	maxIdleConns    int
	connMaxLifetime time.Duration
}

// Option configures the database connection.
type Option func(*config)

// WithPath sets the database file. Use ":memory:" for an in-memory database.
func WithPath(path string) Option {
	return func(c *config) { c.path = path }
}

// WithPragmas replaces the default pragmas.
func WithPragmas(pragmas string) Option {
	return func(c *config) { c.pragmas = pragmas }
}

func WithMaxOpenConns(n int) Option {
	return func(c *config) { c.maxOpenConns = n }
}

func WithMaxIdleConns(n int) Option {
	return func(c *config) { c.maxIdleConns = n }
}

func WithConnMaxLifetime(d time.Duration) Option {
	return func(c *config) { c.connMaxLifetime = d }
}

// New opens a sqlite database with the provided options, creating parent
// directories for file-backed paths.
func New(opts ...Option) (*sqlx.DB, error) {
	cfg := &config{
		path:         ":memory:",
		pragmas:      defaultPragma,
		maxIdleConns: 2,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	dsn := ":memory:"
	if cfg.path != ":memory:" {
		if err := utils.EnsureParent(cfg.path); err != nil {
			return nil, fmt.Errorf("ensure parent directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_txlock=immediate&mode=rwc", cfg.path)
	} else {
		// every pooled connection would otherwise see its own empty
		// in-memory database
		cfg.maxOpenConns = 1
		cfg.maxIdleConns = 1
	}

	slog.Debug("db open", "driver", driverName, "path", cfg.path)
	conn, err := sqlx.Connect(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if cfg.maxOpenConns > 0 {
		conn.SetMaxOpenConns(cfg.maxOpenConns)
	}
	if cfg.maxIdleConns > 0 {
		conn.SetMaxIdleConns(cfg.maxIdleConns)
	}
	if cfg.connMaxLifetime > 0 {
		conn.SetConnMaxLifetime(cfg.connMaxLifetime)
	}

	if _, err := conn.Exec(cfg.pragmas); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	return conn, nil
}
