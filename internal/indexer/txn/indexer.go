// Package txn implements the transactional indexer: one delta per store and
// transaction, moved through prepare and commit (or rollback) in step with
// an external transaction coordinator, plus the background full-text queue
// fed by asynchronous index requests.
package txn

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/delta"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/repository"
	apperrors "github.com/Adithya-Monish-Kumar-K/repository-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/metrics"
)

// State is the lifecycle position of an Indexer.
type State int

const (
	StateCreated State = iota
	StateActive
	StatePreparing
	StatePrepared
	StateCommitting
	StateCommitted
	StateMarkedRollback
	StateRolledBack
)

var stateNames = [...]string{"CREATED", "ACTIVE", "PREPARING", "PREPARED", "COMMITTING", "COMMITTED", "MARKED_ROLLBACK", "ROLLED_BACK"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Mode selects how an index request is carried out.
type Mode int

const (
	// Synchronous indexes everything, content text included, in the
	// calling transaction.
	Synchronous Mode = iota
	// Asynchronous indexes what is cheap now and queues the rest for the
	// background full-text pass.
	Asynchronous
	// Unindexed records nothing. Deletes still apply.
	Unindexed
)

func (m Mode) String() string {
	switch m {
	case Synchronous:
		return "SYNCHRONOUS"
	case Asynchronous:
		return "ASYNCHRONOUS"
	case Unindexed:
		return "UNINDEXED"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses SYNCHRONOUS, ASYNCHRONOUS or UNINDEXED.
func ParseMode(s string) (Mode, error) {
	switch strings.ToUpper(s) {
	case "SYNCHRONOUS", "SYNC":
		return Synchronous, nil
	case "ASYNCHRONOUS", "ASYNC":
		return Asynchronous, nil
	case "UNINDEXED":
		return Unindexed, nil
	}
	return 0, fmt.Errorf("%w: unknown index mode %q", apperrors.ErrInvalidInput, s)
}

// Callback is told when an indexer finishes: remaining is the background
// work still queued for the store, zero after a rollback.
type Callback func(store repository.StoreRef, remaining int, err error)

// FTSRequester is told that a store may have background work.
type FTSRequester interface {
	RequiresIndex(store repository.StoreRef)
}

// Services are the collaborators of an Indexer.
type Services struct {
	Nodes   repository.NodeService
	Changes repository.ChangeSource
	Builder *document.Builder
	FTS     FTSRequester
	Metrics *metrics.Metrics
}

type workKind int

const (
	workNone workKind = iota
	workTransactional
	workFTS
)

// Indexer is the index side of one transaction on one store. It is safe for
// concurrent use but is meant to be driven by a single transaction.
type Indexer struct {
	store  repository.StoreRef
	txID   string
	engine *indexer.Engine
	svc    Services

	mu        sync.Mutex
	delta     *delta.Delta
	state     State
	work      workKind
	modified  bool
	remaining int
	callback  Callback
	onDone    func()
	logger    *slog.Logger
}

// New starts an indexer for (store, txID). pendingRoot receives spilled
// delta segments; spillDocs bounds buffered documents.
func New(store repository.StoreRef, txID string, engine *indexer.Engine, svc Services, pendingRoot string, spillDocs int) (*Indexer, error) {
	d, err := delta.New(string(store), pendingRoot, spillDocs)
	if err != nil {
		return nil, err
	}
	return &Indexer{
		store:  store,
		txID:   txID,
		engine: engine,
		svc:    svc,
		delta:  d,
		state:  StateCreated,
		logger: slog.Default().With("component", "txn-indexer", "store", store, "tx", txID, "delta", d.ID),
	}, nil
}

// Store returns the indexed store.
func (ix *Indexer) Store() repository.StoreRef { return ix.store }

// TxID returns the owning transaction id.
func (ix *Indexer) TxID() string { return ix.txID }

// State returns the current lifecycle state.
func (ix *Indexer) State() State {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.state
}

// Modified reports whether any work was accepted.
func (ix *Indexer) Modified() bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.modified
}

// Remaining is the background work left after the last full-text pass.
func (ix *Indexer) Remaining() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.remaining
}

// RegisterCallBack sets the completion callback.
func (ix *Indexer) RegisterCallBack(cb Callback) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.callback = cb
}

// checkWorkLocked moves a fresh indexer to ACTIVE and rejects work in any
// other state. Transactional and full-text work cannot share an indexer.
func (ix *Indexer) checkWorkLocked(kind workKind) error {
	if ix.work == workNone {
		ix.work = kind
	} else if ix.work != kind {
		return fmt.Errorf("%w: can not mix full-text and transactional updates", apperrors.ErrTransactionState)
	}
	switch ix.state {
	case StateCreated:
		ix.state = StateActive
	case StateActive:
	case StateMarkedRollback:
		return fmt.Errorf("indexer for %s unable to accept work: %w", ix.store, apperrors.ErrRollbackOnly)
	default:
		return fmt.Errorf("%w: indexer for %s is %s and unable to accept work", apperrors.ErrTransactionState, ix.store, ix.state)
	}
	ix.modified = true
	return nil
}

// failLocked marks the transaction rollback-only and wraps err.
func (ix *Indexer) failLocked(op string, err error) error {
	if ix.state != StateCommitted && ix.state != StateCommitting && ix.state != StateRolledBack {
		ix.state = StateMarkedRollback
	}
	ix.logger.Error("index operation failed, transaction marked rollback only", "op", op, "error", err)
	return fmt.Errorf("%s failed: %w", op, err)
}

// run executes one Indexer API operation under the indexer lock.
func (ix *Indexer) run(ctx context.Context, op string, mode Mode, kind workKind, fn func(ctx context.Context) error) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if err := ix.checkWorkLocked(kind); err != nil {
		return err
	}
	ix.svc.Metrics.IndexOperation(op, mode.String())
	if err := fn(ctx); err != nil {
		return ix.failLocked(op, err)
	}
	return nil
}

// CreateNode indexes the child of a new association. A new store root
// replaces every root already indexed.
func (ix *Indexer) CreateNode(ctx context.Context, assoc repository.ChildAssoc, mode Mode) error {
	ix.logger.Debug("create node", "node", assoc.Child, "mode", mode)
	return ix.run(ctx, "create_node", mode, workTransactional, func(ctx context.Context) error {
		if mode == Unindexed {
			return nil
		}
		node, found, err := ix.svc.Nodes.Node(ctx, assoc.Child)
		if err != nil {
			return err
		}
		if !found {
			return ix.deleteCascadeLocked(string(assoc.Child))
		}
		if node.IsRoot && assoc.Parent == "" {
			ix.logger.Warn("detected root node addition, deleting existing roots from the index")
			if err := ix.deleteRootsLocked(); err != nil {
				return err
			}
		}
		return ix.indexNodeLocked(ctx, node, mode)
	})
}

// UpdateNode reindexes one node.
func (ix *Indexer) UpdateNode(ctx context.Context, ref repository.NodeRef, mode Mode) error {
	ix.logger.Debug("update node", "node", ref, "mode", mode)
	return ix.run(ctx, "update_node", mode, workTransactional, func(ctx context.Context) error {
		if mode == Unindexed {
			return nil
		}
		return ix.reindexLocked(ctx, ref, false, mode)
	})
}

// DeleteNode removes the child and everything below it.
func (ix *Indexer) DeleteNode(ctx context.Context, assoc repository.ChildAssoc, mode Mode) error {
	ix.logger.Debug("delete node", "node", assoc.Child, "mode", mode)
	return ix.run(ctx, "delete_node", mode, workTransactional, func(ctx context.Context) error {
		return ix.deleteCascadeLocked(string(assoc.Child))
	})
}

// CreateChildRelationship reindexes the child and its descendants, whose
// paths changed.
func (ix *Indexer) CreateChildRelationship(ctx context.Context, assoc repository.ChildAssoc, mode Mode) error {
	return ix.run(ctx, "create_child_relationship", mode, workTransactional, func(ctx context.Context) error {
		if mode == Unindexed {
			return nil
		}
		return ix.reindexLocked(ctx, assoc.Child, true, mode)
	})
}

// UpdateChildRelationship reindexes the children on both sides.
func (ix *Indexer) UpdateChildRelationship(ctx context.Context, before, after repository.ChildAssoc, mode Mode) error {
	return ix.run(ctx, "update_child_relationship", mode, workTransactional, func(ctx context.Context) error {
		if mode == Unindexed {
			return nil
		}
		if err := ix.reindexLocked(ctx, before.Child, true, mode); err != nil {
			return err
		}
		if after.Child != before.Child {
			return ix.reindexLocked(ctx, after.Child, true, mode)
		}
		return nil
	})
}

// DeleteChildRelationship reindexes the child and its descendants.
func (ix *Indexer) DeleteChildRelationship(ctx context.Context, assoc repository.ChildAssoc, mode Mode) error {
	return ix.run(ctx, "delete_child_relationship", mode, workTransactional, func(ctx context.Context) error {
		if mode == Unindexed {
			return nil
		}
		return ix.reindexLocked(ctx, assoc.Child, true, mode)
	})
}

// Index brings the store from version src to dst. Synchronous indexing
// applies the change log and records a snapshot marker; asynchronous
// indexing queues a STORE marker.
func (ix *Indexer) Index(ctx context.Context, src, dst int64, mode Mode) error {
	return ix.run(ctx, "index", mode, workTransactional, func(ctx context.Context) error {
		switch mode {
		case Synchronous:
			return ix.synchronousIndexLocked(ctx, src, dst)
		case Asynchronous:
			ix.logger.Debug("async index", "from", src, "to", dst)
			return ix.delta.Add(markerDocument(Marker{Action: ActionStore, Store: ix.store, From: src, To: dst}))
		}
		return nil
	})
}

// CreateIndex indexes every node of the store.
func (ix *Indexer) CreateIndex(ctx context.Context, mode Mode) error {
	return ix.run(ctx, "create_index", mode, workTransactional, func(ctx context.Context) error {
		switch mode {
		case Synchronous:
			return ix.synchronousCreateLocked(ctx)
		case Asynchronous:
			ix.logger.Debug("async create")
			return ix.delta.Add(markerDocument(Marker{Action: ActionCreate, Store: ix.store}))
		}
		return nil
	})
}

// DeleteIndex removes every document of the store.
func (ix *Indexer) DeleteIndex(ctx context.Context, mode Mode) error {
	return ix.run(ctx, "delete_index", mode, workTransactional, func(ctx context.Context) error {
		switch mode {
		case Synchronous:
			ix.logger.Debug("sync delete")
			return ix.deleteAllLocked("")
		case Asynchronous:
			ix.logger.Debug("async delete")
			return ix.delta.Add(markerDocument(Marker{Action: ActionDelete, Store: ix.store}))
		}
		return nil
	})
}

func (ix *Indexer) synchronousIndexLocked(ctx context.Context, src, dst int64) error {
	ix.logger.Debug("sync index", "from", src, "to", dst)
	changes, err := ix.svc.Changes.Changes(ctx, ix.store, src, dst)
	if err != nil {
		return fmt.Errorf("reading changes %d..%d: %w", src, dst, err)
	}
	for _, c := range changes {
		switch c.Kind {
		case repository.ChangeDeleted:
			err = ix.deleteCascadeLocked(string(c.Ref))
		default:
			err = ix.reindexLocked(ctx, c.Ref, c.Kind == repository.ChangeUpdated, Synchronous)
		}
		if err != nil {
			return err
		}
	}
	return ix.delta.Add(snapshotDocument(ix.store, src, dst))
}

func (ix *Indexer) synchronousCreateLocked(ctx context.Context) error {
	ix.logger.Debug("sync create")
	refs, err := ix.svc.Nodes.StoreNodes(ctx, ix.store)
	if err != nil {
		return fmt.Errorf("listing store nodes: %w", err)
	}
	for _, ref := range refs {
		node, found, err := ix.svc.Nodes.Node(ctx, ref)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		if err := ix.indexNodeLocked(ctx, node, Synchronous); err != nil {
			return err
		}
	}
	return nil
}

func (ix *Indexer) indexNodeLocked(ctx context.Context, node repository.Node, mode Mode) error {
	doc, err := ix.svc.Builder.Build(ctx, node, mode == Synchronous)
	if err != nil {
		return err
	}
	if err := doc.Validate(); err != nil {
		return err
	}
	return ix.delta.Add(doc)
}

// reindexLocked replaces the documents of ref, and of every indexed
// descendant when cascade is set. Nodes no longer in the repository are
// deleted.
func (ix *Indexer) reindexLocked(ctx context.Context, ref repository.NodeRef, cascade bool, mode Mode) error {
	targets := []string{string(ref)}
	if cascade {
		below, err := ix.descendantsLocked(string(ref))
		if err != nil {
			return err
		}
		targets = append(targets, below...)
	}
	for _, id := range targets {
		node, found, err := ix.svc.Nodes.Node(ctx, repository.NodeRef(id))
		if err != nil {
			return err
		}
		if !found {
			if err := ix.delta.Delete(id); err != nil {
				return err
			}
			continue
		}
		if err := ix.indexNodeLocked(ctx, node, mode); err != nil {
			return err
		}
	}
	return nil
}

func (ix *Indexer) deleteCascadeLocked(id string) error {
	below, err := ix.descendantsLocked(id)
	if err != nil {
		return err
	}
	for _, target := range append([]string{id}, below...) {
		if err := ix.delta.Delete(target); err != nil {
			return err
		}
	}
	return nil
}

// withViewLocked runs fn over the main index as this transaction sees it.
func (ix *Indexer) withViewLocked(fn func(leaves []index.Reader) error) error {
	g := ix.engine.Acquire()
	defer g.Release()
	leaves, err := ix.delta.View(g)
	if err != nil {
		return err
	}
	return fn(leaves)
}

// descendantsLocked walks PARENT links down from id with an explicit work
// stack. The visited set stops cycles introduced by secondary associations.
func (ix *Indexer) descendantsLocked(id string) ([]string, error) {
	var out []string
	err := ix.withViewLocked(func(leaves []index.Reader) error {
		visited := map[string]bool{id: true}
		stack := []string{id}
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			children, err := idsWhere(leaves, document.FieldParent, cur)
			if err != nil {
				return err
			}
			for _, child := range children {
				if visited[child] {
					continue
				}
				visited[child] = true
				out = append(out, child)
				stack = append(stack, child)
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.IndexIO("finding descendants", err)
	}
	return out, nil
}

func (ix *Indexer) deleteRootsLocked() error {
	var roots []string
	err := ix.withViewLocked(func(leaves []index.Reader) error {
		var err error
		roots, err = idsWhere(leaves, document.FieldIsRoot, document.True)
		return err
	})
	if err != nil {
		return apperrors.IndexIO("finding roots", err)
	}
	for _, r := range roots {
		if err := ix.deleteCascadeLocked(r); err != nil {
			return err
		}
	}
	return nil
}

// deleteAllLocked deletes every live document except identities starting
// with keepPrefix.
func (ix *Indexer) deleteAllLocked(keepPrefix string) error {
	var ids []string
	err := ix.withViewLocked(func(leaves []index.Reader) error {
		for _, leaf := range leaves {
			it := leaf.Live().Iterator()
			for it.HasNext() {
				stored, err := leaf.Document(it.Next())
				if err != nil {
					return err
				}
				id := stored.ID()
				if keepPrefix != "" && strings.HasPrefix(id, keepPrefix) {
					continue
				}
				ids = append(ids, id)
			}
		}
		return nil
	})
	if err != nil {
		return apperrors.IndexIO("listing documents", err)
	}
	for _, id := range ids {
		if err := ix.delta.Delete(id); err != nil {
			return err
		}
	}
	return nil
}

// idsWhere returns the sorted identities of live documents with field:term.
func idsWhere(leaves []index.Reader, field, term string) ([]string, error) {
	seen := make(map[string]bool)
	for _, leaf := range leaves {
		postings, err := leaf.Postings(field, term)
		if err != nil {
			return nil, err
		}
		live := leaf.Live()
		for _, p := range postings {
			if !live.Contains(p.Doc) {
				continue
			}
			stored, err := leaf.Document(p.Doc)
			if err != nil {
				return nil, err
			}
			seen[stored.ID()] = true
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// Prepare flushes the delta to durable pending segments.
func (ix *Indexer) Prepare() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.prepareLocked()
}

func (ix *Indexer) prepareLocked() error {
	switch ix.state {
	case StateCreated, StateActive:
	case StateMarkedRollback:
		return fmt.Errorf("unable to prepare: %w", apperrors.ErrRollbackOnly)
	default:
		return fmt.Errorf("%w: unable to prepare: indexer is %s", apperrors.ErrTransactionState, ix.state)
	}
	ix.state = StatePreparing
	if ix.modified {
		if err := ix.delta.Prepare(); err != nil {
			ix.state = StateMarkedRollback
			return fmt.Errorf("index failed to prepare: %w", err)
		}
	}
	ix.state = StatePrepared
	return nil
}

// Commit merges the prepared delta into the main index. An ACTIVE indexer
// is prepared first. A failed commit rolls back.
func (ix *Indexer) Commit() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	switch ix.state {
	case StateCreated, StateActive:
		if err := ix.prepareLocked(); err != nil {
			return err
		}
	case StatePrepared:
	case StateMarkedRollback:
		return fmt.Errorf("unable to commit: %w", apperrors.ErrRollbackOnly)
	default:
		return fmt.Errorf("%w: unable to commit: indexer is %s", apperrors.ErrTransactionState, ix.state)
	}

	ix.state = StateCommitting
	start := time.Now()
	if ix.modified {
		if _, err := ix.engine.Commit(ix.delta.Changes()); err != nil {
			ix.rollbackLocked()
			ix.svc.Metrics.Transaction("failed")
			return fmt.Errorf("commit failed: %w", err)
		}
		ix.delta.Release()
		if ix.work == workTransactional && ix.svc.FTS != nil {
			ix.svc.FTS.RequiresIndex(ix.store)
		}
		g := ix.engine.Acquire()
		ix.svc.Metrics.ObserveCommit(string(ix.store), time.Since(start), g.SegmentCount())
		g.Release()
	} else if err := ix.delta.Discard(); err != nil {
		ix.logger.Warn("removing unused delta", "error", err)
	}
	ix.state = StateCommitted
	ix.svc.Metrics.Transaction("committed")
	ix.logger.Debug("indexer committed", "modified", ix.modified, "remaining", ix.remaining)
	ix.finishLocked(ix.remaining, nil)
	return nil
}

// Rollback discards the delta.
func (ix *Indexer) Rollback() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	switch ix.state {
	case StateCommitted, StateRolledBack:
		return fmt.Errorf("%w: unable to roll back: indexer is %s", apperrors.ErrTransactionState, ix.state)
	}
	ix.rollbackLocked()
	ix.svc.Metrics.Transaction("rolled_back")
	return nil
}

func (ix *Indexer) rollbackLocked() {
	if err := ix.delta.Discard(); err != nil {
		ix.logger.Warn("discarding delta", "error", err)
	}
	ix.state = StateRolledBack
	ix.logger.Debug("indexer rolled back")
	ix.finishLocked(0, nil)
}

func (ix *Indexer) finishLocked(remaining int, err error) {
	if ix.callback != nil {
		ix.callback(ix.store, remaining, err)
	}
	if ix.onDone != nil {
		ix.onDone()
		ix.onDone = nil
	}
}

// SetRollbackOnly marks the indexer so that it only accepts a rollback.
func (ix *Indexer) SetRollbackOnly() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	switch ix.state {
	case StateCommitting, StateCommitted:
		return fmt.Errorf("%w: unable to mark for rollback: indexer is %s", apperrors.ErrTransactionState, ix.state)
	case StateRolledBack:
		return nil
	}
	ix.state = StateMarkedRollback
	return nil
}

// Search runs fn over the main index plus this transaction's uncommitted
// changes. The readers are valid only during fn.
func (ix *Indexer) Search(fn func(leaves []index.Reader) error) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	switch ix.state {
	case StateCommitted, StateRolledBack:
		g := ix.engine.Acquire()
		defer g.Release()
		return fn(g.Leaves())
	}
	return ix.withViewLocked(fn)
}

// snapshotsLocked answers a snapshot query against one consistent view.
// Lookup failures are reported as -1.
func (ix *Indexer) snapshotsLocked(query func(leaves []index.Reader) (int64, error)) int64 {
	var v int64
	err := ix.withViewLocked(func(leaves []index.Reader) error {
		var err error
		v, err = query(leaves)
		return err
	})
	if err != nil {
		ix.logger.Warn("snapshot lookup failed, version unknown", "error", err)
		return -1
	}
	return v
}

// LastIndexedSnapshot reports the newest version known to the index,
// including queued background work and this transaction's changes.
func (ix *Indexer) LastIndexedSnapshot() int64 {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.snapshotsLocked(func(leaves []index.Reader) (int64, error) {
		return lastIndexedSnapshot(leaves, ix.store)
	})
}

// IsSnapshotIndexed reports whether version id is indexed or queued.
func (ix *Indexer) IsSnapshotIndexed(id int64) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.snapshotsLocked(func(leaves []index.Reader) (int64, error) {
		return boolVersion(isSnapshotIndexed(leaves, ix.store, id))
	}) == 1
}

// IsSnapshotSearchable reports whether version id is synchronously indexed.
func (ix *Indexer) IsSnapshotSearchable(id int64) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.snapshotsLocked(func(leaves []index.Reader) (int64, error) {
		return boolVersion(isSnapshotSearchable(leaves, ix.store, id))
	}) == 1
}

func boolVersion(ok bool, err error) (int64, error) {
	if ok {
		return 1, err
	}
	return 0, err
}

func lastIndexedSnapshot(leaves []index.Reader, store repository.StoreRef) (int64, error) {
	last, err := lastAsynchronousSnapshot(leaves, store)
	if err != nil {
		return -1, err
	}
	if last > 0 {
		return last, nil
	}
	last, err = lastSynchronousSnapshot(leaves, store)
	if err != nil {
		return -1, err
	}
	if last > 0 {
		return last, nil
	}
	created, err := indexCreated(leaves)
	if err != nil {
		return -1, err
	}
	if created {
		return 0, nil
	}
	return -1, nil
}

func isSnapshotIndexed(leaves []index.Reader, store repository.StoreRef, id int64) (bool, error) {
	if id == 0 {
		return indexCreated(leaves)
	}
	async, err := lastAsynchronousSnapshot(leaves, store)
	if err != nil {
		return false, err
	}
	if id <= async {
		return true, nil
	}
	last, err := lastSynchronousSnapshot(leaves, store)
	if err != nil {
		return false, err
	}
	return id <= last, nil
}

func isSnapshotSearchable(leaves []index.Reader, store repository.StoreRef, id int64) (bool, error) {
	if id == 0 {
		return indexCreated(leaves)
	}
	last, err := lastSynchronousSnapshot(leaves, store)
	if err != nil {
		return false, err
	}
	return id <= last, nil
}
