package apikey

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/postgres"
)

// Schema creates the api_keys table.
const Schema = `
CREATE TABLE IF NOT EXISTS api_keys (
	id          TEXT PRIMARY KEY,
	key_hash    TEXT NOT NULL UNIQUE,
	name        TEXT NOT NULL,
	principal   TEXT NOT NULL,
	authorities TEXT[] NOT NULL DEFAULT '{}',
	rate_limit  INTEGER NOT NULL DEFAULT 0,
	is_active   BOOLEAN NOT NULL DEFAULT TRUE,
	created_at  TIMESTAMPTZ NOT NULL,
	expires_at  TIMESTAMPTZ
);`

const keyColumns = `id, name, principal, authorities, rate_limit, is_active, created_at, expires_at`

// PostgresStore keeps keys in the api_keys table.
type PostgresStore struct {
	client *postgres.Client
}

// NewPostgresStore wraps a connected client.
func NewPostgresStore(client *postgres.Client) *PostgresStore {
	return &PostgresStore{client: client}
}

// Migrate creates the table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return s.client.Migrate(ctx, "api key", Schema)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanKey(row scanner) (KeyInfo, error) {
	var (
		k       KeyInfo
		expires sql.NullTime
	)
	err := row.Scan(&k.ID, &k.Name, &k.Principal, pq.Array(&k.Authorities), &k.RateLimit, &k.Active, &k.CreatedAt, &expires)
	if err != nil {
		return KeyInfo{}, err
	}
	if expires.Valid {
		k.ExpiresAt = &expires.Time
	}
	return k, nil
}

func (s *PostgresStore) Lookup(ctx context.Context, hash string) (KeyInfo, bool, error) {
	k, err := scanKey(s.client.DB.QueryRowContext(ctx,
		`SELECT `+keyColumns+` FROM api_keys WHERE key_hash = $1`, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return KeyInfo{}, false, nil
	}
	if err != nil {
		return KeyInfo{}, false, fmt.Errorf("querying api key: %w", err)
	}
	return k, true, nil
}

func (s *PostgresStore) Insert(ctx context.Context, hash string, k KeyInfo) error {
	var expires sql.NullTime
	if k.ExpiresAt != nil {
		expires = sql.NullTime{Time: *k.ExpiresAt, Valid: true}
	}
	_, err := s.client.DB.ExecContext(ctx,
		`INSERT INTO api_keys (id, key_hash, name, principal, authorities, rate_limit, is_active, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		k.ID, hash, k.Name, k.Principal, pq.Array(k.Authorities), k.RateLimit, k.Active, k.CreatedAt, expires)
	return err
}

func (s *PostgresStore) Deactivate(ctx context.Context, hash string) (bool, error) {
	res, err := s.client.DB.ExecContext(ctx,
		`UPDATE api_keys SET is_active = FALSE WHERE key_hash = $1 AND is_active`, hash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *PostgresStore) List(ctx context.Context) ([]KeyInfo, error) {
	rows, err := s.client.DB.QueryContext(ctx,
		`SELECT `+keyColumns+` FROM api_keys WHERE is_active ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	defer rows.Close()
	var keys []KeyInfo
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning api key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// MemoryStore keeps keys in process, for tests and single-node setups
// without postgres.
type MemoryStore struct {
	mu   sync.RWMutex
	keys map[string]KeyInfo
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string]KeyInfo)}
}

func (m *MemoryStore) Lookup(_ context.Context, hash string) (KeyInfo, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k, ok := m.keys[hash]
	return k, ok, nil
}

func (m *MemoryStore) Insert(_ context.Context, hash string, k KeyInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.keys[hash]; dup {
		return fmt.Errorf("duplicate api key hash")
	}
	m.keys[hash] = k
	return nil
}

func (m *MemoryStore) Deactivate(_ context.Context, hash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[hash]
	if !ok || !k.Active {
		return false, nil
	}
	k.Active = false
	m.keys[hash] = k
	return true, nil
}

func (m *MemoryStore) List(context.Context) ([]KeyInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []KeyInfo
	for _, k := range m.keys {
		if k.Active {
			keys = append(keys, k)
		}
	}
	slices.SortFunc(keys, func(a, b KeyInfo) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return keys, nil
}
