package consumer

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/repository"
	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/postgres"
)

// Status is the recorded outcome of an index transaction.
type Status struct {
	Store     repository.StoreRef
	TxID      string
	State     string
	Remaining int
	Error     string
	UpdatedAt time.Time
}

// StatusRecorder persists transaction outcomes.
type StatusRecorder interface {
	Record(ctx context.Context, s Status) error
}

// StatusSchema creates the transaction status table.
const StatusSchema = `
CREATE TABLE IF NOT EXISTS index_transactions (
	store      TEXT NOT NULL,
	tx_id      TEXT NOT NULL,
	state      TEXT NOT NULL,
	remaining  INTEGER NOT NULL DEFAULT 0,
	error      TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (store, tx_id)
);`

// PostgresStatus records transaction outcomes in postgres.
type PostgresStatus struct {
	client *postgres.Client
}

// NewPostgresStatus wraps a connected client.
func NewPostgresStatus(client *postgres.Client) *PostgresStatus {
	return &PostgresStatus{client: client}
}

// Migrate creates the status table if needed.
func (p *PostgresStatus) Migrate(ctx context.Context) error {
	return p.client.Migrate(ctx, "status", StatusSchema)
}

func (p *PostgresStatus) Record(ctx context.Context, s Status) error {
	_, err := p.client.DB.ExecContext(ctx, `
		INSERT INTO index_transactions (store, tx_id, state, remaining, error, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (store, tx_id) DO UPDATE
		SET state = EXCLUDED.state, remaining = EXCLUDED.remaining,
		    error = EXCLUDED.error, updated_at = NOW()`,
		string(s.Store), s.TxID, s.State, s.Remaining, s.Error,
	)
	if err != nil {
		return fmt.Errorf("recording status of tx %s: %w", s.TxID, err)
	}
	return nil
}

// Get returns the recorded status of a transaction.
func (p *PostgresStatus) Get(ctx context.Context, store repository.StoreRef, txID string) (Status, bool, error) {
	s := Status{Store: store, TxID: txID}
	err := p.client.DB.QueryRowContext(ctx, `
		SELECT state, remaining, error, updated_at FROM index_transactions
		WHERE store = $1 AND tx_id = $2`, string(store), txID,
	).Scan(&s.State, &s.Remaining, &s.Error, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, false, nil
	}
	if err != nil {
		return s, false, fmt.Errorf("reading status of tx %s: %w", txID, err)
	}
	return s, true, nil
}
