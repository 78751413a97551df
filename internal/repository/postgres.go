package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/dictionary"
	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/postgres"
)

// Schema creates the tables read by Postgres.
const Schema = `
CREATE TABLE IF NOT EXISTS repo_nodes (
	ref          TEXT PRIMARY KEY,
	store        TEXT NOT NULL,
	type         TEXT NOT NULL,
	aspects      TEXT[] NOT NULL DEFAULT '{}',
	properties   JSONB NOT NULL DEFAULT '{}',
	parents      JSONB NOT NULL DEFAULT '[]',
	is_root      BOOLEAN NOT NULL DEFAULT FALSE,
	is_container BOOLEAN NOT NULL DEFAULT FALSE,
	tx_id        BIGINT NOT NULL DEFAULT 0,
	version      BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS repo_nodes_store ON repo_nodes (store);
CREATE TABLE IF NOT EXISTS repo_changes (
	store   TEXT NOT NULL,
	version BIGINT NOT NULL,
	ref     TEXT NOT NULL,
	kind    SMALLINT NOT NULL,
	PRIMARY KEY (store, version)
);`

// Postgres reads nodes and change logs from postgres.
type Postgres struct {
	client *postgres.Client
}

// NewPostgres wraps a connected client.
func NewPostgres(client *postgres.Client) *Postgres {
	return &Postgres{client: client}
}

// Migrate creates the repository tables if they do not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	return p.client.Migrate(ctx, "repository", Schema)
}

func (p *Postgres) Node(ctx context.Context, ref NodeRef) (Node, bool, error) {
	var (
		n       Node
		typ     string
		aspects []string
		props   []byte
		parents []byte
		ref2    string
	)
	err := p.client.DB.QueryRowContext(ctx,
		`SELECT ref, type, aspects, properties, parents, is_root, is_container, tx_id, version
		 FROM repo_nodes WHERE ref = $1`, string(ref),
	).Scan(&ref2, &typ, pq.Array(&aspects), &props, &parents, &n.IsRoot, &n.Container, &n.TxID, &n.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return Node{}, false, nil
	}
	if err != nil {
		return Node{}, false, fmt.Errorf("querying node %s: %w", ref, err)
	}
	n.Ref = NodeRef(ref2)
	if n.Type, err = dictionary.ParseQName(typ); err != nil {
		return Node{}, false, fmt.Errorf("node %s type: %w", ref, err)
	}
	for _, a := range aspects {
		q, err := dictionary.ParseQName(a)
		if err != nil {
			return Node{}, false, fmt.Errorf("node %s aspect: %w", ref, err)
		}
		n.Aspects = append(n.Aspects, q)
	}
	if err := json.Unmarshal(props, &n.Properties); err != nil {
		return Node{}, false, fmt.Errorf("node %s properties: %w", ref, err)
	}
	if err := json.Unmarshal(parents, &n.Parents); err != nil {
		return Node{}, false, fmt.Errorf("node %s parents: %w", ref, err)
	}
	return n, true, nil
}

func (p *Postgres) StoreNodes(ctx context.Context, store StoreRef) ([]NodeRef, error) {
	rows, err := p.client.DB.QueryContext(ctx,
		`SELECT ref FROM repo_nodes WHERE store = $1 ORDER BY ref`, string(store))
	if err != nil {
		return nil, fmt.Errorf("listing nodes of %s: %w", store, err)
	}
	defer rows.Close()
	var out []NodeRef
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, fmt.Errorf("scanning node ref: %w", err)
		}
		out = append(out, NodeRef(ref))
	}
	return out, rows.Err()
}

func (p *Postgres) Changes(ctx context.Context, store StoreRef, from, to int64) ([]Change, error) {
	rows, err := p.client.DB.QueryContext(ctx,
		`SELECT ref, kind, version FROM repo_changes
		 WHERE store = $1 AND version > $2 AND version <= $3 ORDER BY version`,
		string(store), from, to)
	if err != nil {
		return nil, fmt.Errorf("listing changes of %s: %w", store, err)
	}
	defer rows.Close()
	var out []Change
	for rows.Next() {
		var (
			c   Change
			ref string
		)
		if err := rows.Scan(&ref, &c.Kind, &c.Version); err != nil {
			return nil, fmt.Errorf("scanning change: %w", err)
		}
		c.Ref = NodeRef(ref)
		out = append(out, c)
	}
	return out, rows.Err()
}

// Save upserts a node and records the change in one transaction.
func (p *Postgres) Save(ctx context.Context, n Node) (int64, error) {
	props, err := json.Marshal(n.Properties)
	if err != nil {
		return 0, fmt.Errorf("encoding properties: %w", err)
	}
	parents, err := json.Marshal(n.Parents)
	if err != nil {
		return 0, fmt.Errorf("encoding parents: %w", err)
	}
	aspects := make([]string, len(n.Aspects))
	for i, a := range n.Aspects {
		aspects[i] = a.String()
	}
	var version int64
	err = p.client.InTx(ctx, func(tx *sql.Tx) error {
		var err error
		version, err = nextVersion(ctx, tx, n.Ref.Store())
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO repo_nodes (ref, store, type, aspects, properties, parents, is_root, is_container, tx_id, version)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 ON CONFLICT (ref) DO UPDATE SET type = $3, aspects = $4, properties = $5, parents = $6,
			   is_root = $7, is_container = $8, tx_id = $9, version = $10`,
			string(n.Ref), string(n.Ref.Store()), n.Type.String(), pq.Array(aspects),
			props, parents, n.IsRoot, n.Container, n.TxID, version)
		if err != nil {
			return fmt.Errorf("upserting node %s: %w", n.Ref, err)
		}
		kind := ChangeUpdated
		if affected, _ := res.RowsAffected(); affected == 1 && n.Version == 0 {
			kind = ChangeCreated
		}
		return recordChange(ctx, tx, n.Ref, kind, version)
	})
	return version, err
}

// Remove deletes a node and records the change.
func (p *Postgres) Remove(ctx context.Context, ref NodeRef) (int64, error) {
	var version int64
	err := p.client.InTx(ctx, func(tx *sql.Tx) error {
		var err error
		version, err = nextVersion(ctx, tx, ref.Store())
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM repo_nodes WHERE ref = $1`, string(ref)); err != nil {
			return fmt.Errorf("deleting node %s: %w", ref, err)
		}
		return recordChange(ctx, tx, ref, ChangeDeleted, version)
	})
	return version, err
}

func nextVersion(ctx context.Context, tx *sql.Tx, store StoreRef) (int64, error) {
	var v int64
	err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM repo_changes WHERE store = $1`, string(store),
	).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("reading version of %s: %w", store, err)
	}
	return v, nil
}

func recordChange(ctx context.Context, tx *sql.Tx, ref NodeRef, kind ChangeKind, version int64) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO repo_changes (store, version, ref, kind) VALUES ($1, $2, $3, $4)`,
		string(ref.Store()), version, string(ref), int(kind))
	if err != nil {
		return fmt.Errorf("recording change of %s: %w", ref, err)
	}
	return nil
}
