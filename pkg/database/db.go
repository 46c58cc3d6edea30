package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const defaultBusyTimeout = 5 * time.Second

// Config locates the SQLite file shared by the record store, the manual
// map and the snapshot store.
type Config struct {
	Path string

	// ReadOnly opens an existing file without taking write locks. Export
	// tools use it so they can run next to a live server.
	ReadOnly bool

	// BusyTimeout bounds how long a statement waits on a locked database.
	BusyTimeout time.Duration

	// MaxOpenConns caps the pool; zero leaves database/sql's default.
	MaxOpenConns int
}

func DefaultConfig() Config {
	cfg := Config{BusyTimeout: defaultBusyTimeout}
	if v := os.Getenv("BIBXML_DB_BUSY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			cfg.BusyTimeout = d
		}
	}
	if v := os.Getenv("BIBXML_DB_MAX_OPEN_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxOpenConns = n
		}
	}

	if p := os.Getenv("BIBXML_DB_PATH"); p != "" {
		cfg.Path = p
		return cfg
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	cfg.Path = filepath.Join(home, ".bibxml", "data.db")
	return cfg
}

// DSN renders cfg as a go-sqlite3 connection string. Read-only handles
// use the URI form so SQLite itself refuses writes.
func (c Config) DSN() string {
	q := url.Values{}
	timeout := c.BusyTimeout
	if timeout == 0 {
		timeout = defaultBusyTimeout
	}
	q.Set("_busy_timeout", strconv.FormatInt(timeout.Milliseconds(), 10))

	if c.ReadOnly {
		q.Set("mode", "ro")
		return "file:" + c.Path + "?" + q.Encode()
	}
	q.Set("_journal_mode", "WAL")
	return c.Path + "?" + q.Encode()
}

func Open(cfg Config) (*sql.DB, error) {
	if cfg.ReadOnly {
		if _, err := os.Stat(cfg.Path); err != nil {
			return nil, fmt.Errorf("open read-only: %w", err)
		}
	} else if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure data dir: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	// every store queries bodies with json_each/json_extract
	var ok int
	if err := db.QueryRowContext(ctx, `SELECT json_valid('{}')`).Scan(&ok); err != nil || ok != 1 {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite lacks JSON1 support: %v", err)
	}

	return db, nil
}

func MustOpen(cfg Config) *sql.DB {
	db, err := Open(cfg)
	if err != nil {
		slog.Error("failed to open db", "path", cfg.Path, "read_only", cfg.ReadOnly, "error", err)
		os.Exit(1)
	}
	return db
}
