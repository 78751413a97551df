// Package consumer reads repository node events from Kafka and replays them
// against the transactional indexer: every event names a store and a
// transaction, and transaction boundary events prepare, commit or roll back
// the indexer that earlier events built up.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/txn"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/repository"
	apperrors "github.com/Adithya-Monish-Kumar-K/repository-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/resilience"
)

// Op is the indexer operation an event asks for.
type Op string

const (
	OpCreateNode              Op = "create_node"
	OpUpdateNode              Op = "update_node"
	OpDeleteNode              Op = "delete_node"
	OpCreateChildRelationship Op = "create_child_relationship"
	OpUpdateChildRelationship Op = "update_child_relationship"
	OpDeleteChildRelationship Op = "delete_child_relationship"
	OpIndex                   Op = "index"
	OpCreateIndex             Op = "create_index"
	OpDeleteIndex             Op = "delete_index"
	OpPrepare                 Op = "prepare"
	OpCommit                  Op = "commit"
	OpRollback                Op = "rollback"
)

// NodeEvent is one message of the node event topic.
type NodeEvent struct {
	TxID   string                `json:"txId"`
	Store  repository.StoreRef   `json:"store"`
	Op     Op                    `json:"op"`
	Mode   string                `json:"mode,omitempty"`
	Node   repository.NodeRef    `json:"node,omitempty"`
	Assoc  repository.ChildAssoc `json:"assoc"`
	Before repository.ChildAssoc `json:"before"`
	From   int64                 `json:"from,omitempty"`
	To     int64                 `json:"to,omitempty"`
}

type opFunc func(ctx context.Context, ix *txn.Indexer, ev NodeEvent, mode txn.Mode) error

var operations = map[Op]opFunc{
	OpCreateNode: func(ctx context.Context, ix *txn.Indexer, ev NodeEvent, mode txn.Mode) error {
		return ix.CreateNode(ctx, ev.Assoc, mode)
	},
	OpUpdateNode: func(ctx context.Context, ix *txn.Indexer, ev NodeEvent, mode txn.Mode) error {
		return ix.UpdateNode(ctx, ev.Node, mode)
	},
	OpDeleteNode: func(ctx context.Context, ix *txn.Indexer, ev NodeEvent, mode txn.Mode) error {
		return ix.DeleteNode(ctx, ev.Assoc, mode)
	},
	OpCreateChildRelationship: func(ctx context.Context, ix *txn.Indexer, ev NodeEvent, mode txn.Mode) error {
		return ix.CreateChildRelationship(ctx, ev.Assoc, mode)
	},
	OpUpdateChildRelationship: func(ctx context.Context, ix *txn.Indexer, ev NodeEvent, mode txn.Mode) error {
		return ix.UpdateChildRelationship(ctx, ev.Before, ev.Assoc, mode)
	},
	OpDeleteChildRelationship: func(ctx context.Context, ix *txn.Indexer, ev NodeEvent, mode txn.Mode) error {
		return ix.DeleteChildRelationship(ctx, ev.Assoc, mode)
	},
	OpIndex: func(ctx context.Context, ix *txn.Indexer, ev NodeEvent, mode txn.Mode) error {
		return ix.Index(ctx, ev.From, ev.To, mode)
	},
	OpCreateIndex: func(ctx context.Context, ix *txn.Indexer, _ NodeEvent, mode txn.Mode) error {
		return ix.CreateIndex(ctx, mode)
	},
	OpDeleteIndex: func(ctx context.Context, ix *txn.Indexer, _ NodeEvent, mode txn.Mode) error {
		return ix.DeleteIndex(ctx, mode)
	},
	OpPrepare: func(_ context.Context, ix *txn.Indexer, _ NodeEvent, _ txn.Mode) error {
		return ix.Prepare()
	},
	OpCommit: func(_ context.Context, ix *txn.Indexer, _ NodeEvent, _ txn.Mode) error {
		return ix.Commit()
	},
	OpRollback: func(_ context.Context, ix *txn.Indexer, _ NodeEvent, _ txn.Mode) error {
		return ix.Rollback()
	},
}

// Processor applies node events to the indexers of a txn.Manager.
type Processor struct {
	mgr         *txn.Manager
	status      StatusRecorder
	defaultMode txn.Mode
	logger      *slog.Logger
}

// NewProcessor creates a Processor. status may be nil.
func NewProcessor(mgr *txn.Manager, status StatusRecorder, defaultMode txn.Mode) *Processor {
	return &Processor{
		mgr:         mgr,
		status:      status,
		defaultMode: defaultMode,
		logger:      slog.Default().With("component", "index-consumer"),
	}
}

// Apply runs one event.
func (p *Processor) Apply(ctx context.Context, ev NodeEvent) error {
	fn, ok := operations[ev.Op]
	if !ok {
		return fmt.Errorf("%w: unknown operation %q", apperrors.ErrInvalidInput, ev.Op)
	}
	if ev.Store == "" || ev.TxID == "" {
		return fmt.Errorf("%w: event needs store and txId", apperrors.ErrInvalidInput)
	}
	mode := p.defaultMode
	if ev.Mode != "" {
		var err error
		if mode, err = txn.ParseMode(ev.Mode); err != nil {
			return err
		}
	}

	var ix *txn.Indexer
	switch ev.Op {
	case OpPrepare, OpCommit, OpRollback:
		var open bool
		if ix, open = p.mgr.Lookup(ev.Store, ev.TxID); !open {
			// a transaction that did no index work
			p.logger.Debug("no indexer for transaction boundary", "store", ev.Store, "tx", ev.TxID, "op", ev.Op)
			return nil
		}
	default:
		var err error
		if ix, err = p.mgr.Indexer(ev.Store, ev.TxID); err != nil {
			return err
		}
	}

	err := fn(ctx, ix, ev, mode)
	p.record(ctx, ev, ix, err)
	if err != nil {
		return fmt.Errorf("%s in tx %s on %s: %w", ev.Op, ev.TxID, ev.Store, err)
	}
	return nil
}

func (p *Processor) record(ctx context.Context, ev NodeEvent, ix *txn.Indexer, err error) {
	if p.status == nil {
		return
	}
	switch ev.Op {
	case OpPrepare, OpCommit, OpRollback:
	default:
		if err == nil {
			return
		}
	}
	st := Status{Store: ev.Store, TxID: ev.TxID, State: ix.State().String(), Remaining: ix.Remaining()}
	if err != nil {
		st.Error = err.Error()
	}
	if recErr := p.status.Record(ctx, st); recErr != nil {
		p.logger.Error("failed to record transaction status", "tx", ev.TxID, "error", recErr)
	}
}

// HandleMessage returns a Kafka MessageHandler applying node events.
// Undecodable and invalid events are logged and skipped. Failures that a
// replay can not fix are marked permanent; the rest are retried.
func HandleMessage(p *Processor) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		ev, err := kafka.DecodeJSON[NodeEvent](value)
		if err != nil {
			p.logger.Error("failed to decode node event", "error", err, "key", string(key))
			return nil
		}
		p.logger.Debug("processing node event", "store", ev.Store, "tx", ev.TxID, "op", ev.Op)
		err = p.Apply(ctx, ev)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, apperrors.ErrInvalidInput):
			p.logger.Warn("skipping invalid node event", "error", err, "key", string(key))
			return nil
		case errors.Is(err, apperrors.ErrTransactionState),
			errors.Is(err, apperrors.ErrRollbackOnly),
			errors.Is(err, apperrors.ErrReadOnly),
			errors.Is(err, apperrors.ErrNotFound),
			errors.Is(err, apperrors.ErrUnresolved):
			// replaying the event can not succeed
			return resilience.Permanent(err)
		}
		return err
	}
}
