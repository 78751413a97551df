// Package postgres opens the connection pool shared by the node repository,
// the transaction status store and the API key store.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/resilience"
)

const pingTimeout = 5 * time.Second

type Client struct {
	DB     *sql.DB
	logger *slog.Logger
}

// New opens a pool and waits for the server to answer. Connection refusals
// are retried so that services can start alongside the database.
func New(cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	c := &Client{
		DB:     db,
		logger: slog.Default().With("component", "postgres", "database", cfg.Database),
	}
	retry := resilience.RetryConfig{MaxAttempts: 5, InitialDelay: 250 * time.Millisecond, MaxDelay: 4 * time.Second}
	if err := resilience.Retry(context.Background(), "postgres ping", retry, func() error {
		return c.Ping(context.Background())
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to postgres at %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	c.logger.Info("postgres connected", "host", cfg.Host, "port", cfg.Port)
	return c, nil
}

// Ping checks the server answers within pingTimeout.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return c.DB.PingContext(ctx)
}

func (c *Client) Close() error {
	return c.DB.Close()
}

// Migrate applies an idempotent schema script.
func (c *Client) Migrate(ctx context.Context, name, schema string) error {
	if _, err := c.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrating %s schema: %w", name, err)
	}
	c.logger.Debug("schema ready", "schema", name)
	return nil
}

// InTx runs fn in a transaction, committing when it returns nil. A panic in
// fn rolls back and is re-raised.
func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
