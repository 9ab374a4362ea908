package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"stablepay.backend/internal/config"
)

const (
	maxOpenConns    = 25
	maxIdleConns    = 5
	connMaxLifetime = 30 * time.Minute
	pingTimeout     = 5 * time.Second
)

var (
	sqlOpen = sql.Open
	dbPing  = func(db *sql.DB) error {
		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		defer cancel()
		return db.PingContext(ctx)
	}
)

// Open creates a lib/pq connection pool without checking that the server is up.
func Open(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sqlOpen("postgres", cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	return db, nil
}

// Ping reports whether the database answers within pingTimeout
func Ping(db *sql.DB) error {
	if err := dbPing(db); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// NewConnection opens a pool and fails unless the database answers.
func NewConnection(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := Ping(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
