package consumer

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/dictionary"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/txn"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/locale"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/repository"
	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/repository-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/resilience"
)

const st = repository.StoreRef("workspace://SpacesStore")

type memStatus struct {
	mu   sync.Mutex
	seen []Status
}

func (m *memStatus) Record(_ context.Context, s Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = append(m.seen, s)
	return nil
}

func setup(t *testing.T) (*Processor, *txn.Manager, *repository.Memory, *memStatus) {
	t.Helper()
	dict := dictionary.New()
	reg, err := tokenizer.NewRegistry(tokenizer.Options{DefaultLocale: locale.MustParse("en")})
	require.NoError(t, err)
	repo := repository.NewMemory()
	router, err := store.NewRouter(config.IndexerConfig{DataDir: t.TempDir(), MaxSegmentsBeforeMerge: 8, DrainBatchSize: 1})
	require.NoError(t, err)
	t.Cleanup(func() { router.Close() })

	mgr := txn.NewManager(router, txn.Services{
		Nodes:   repo,
		Changes: repo,
		Builder: document.NewBuilder(dict, reg, repo, nil),
	})
	status := &memStatus{}
	return NewProcessor(mgr, status, txn.Synchronous), mgr, repo, status
}

func send(t *testing.T, p *Processor, ev NodeEvent) error {
	t.Helper()
	value, err := json.Marshal(ev)
	require.NoError(t, err)
	return HandleMessage(p)(context.Background(), []byte(ev.TxID), value)
}

func TestEventsDriveTransaction(t *testing.T) {
	p, mgr, repo, status := setup(t)
	root := repository.NewNodeRef(st, "root")
	v := repo.Put(repository.Node{Ref: root, IsRoot: true})

	require.NoError(t, send(t, p, NodeEvent{TxID: "t1", Store: st, Op: OpCreateNode, Assoc: repository.ChildAssoc{Child: root}}))
	require.NoError(t, send(t, p, NodeEvent{TxID: "t1", Store: st, Op: OpIndex, From: 0, To: v, Mode: "SYNCHRONOUS"}))
	_, open := mgr.Lookup(st, "t1")
	assert.True(t, open)
	assert.Equal(t, int64(-1), mgr.LastIndexedSnapshot(st))

	require.NoError(t, send(t, p, NodeEvent{TxID: "t1", Store: st, Op: OpPrepare}))
	require.NoError(t, send(t, p, NodeEvent{TxID: "t1", Store: st, Op: OpCommit}))
	_, open = mgr.Lookup(st, "t1")
	assert.False(t, open)
	assert.Equal(t, v, mgr.LastIndexedSnapshot(st))
	assert.True(t, mgr.IsSnapshotSearchable(st, v))

	require.Len(t, status.seen, 2)
	assert.Equal(t, "PREPARED", status.seen[0].State)
	assert.Equal(t, "COMMITTED", status.seen[1].State)
}

func TestBoundaryWithoutWorkIsIgnored(t *testing.T) {
	p, _, _, status := setup(t)
	require.NoError(t, send(t, p, NodeEvent{TxID: "t9", Store: st, Op: OpCommit}))
	assert.Empty(t, status.seen)
}

func TestInvalidEventsAreSkipped(t *testing.T) {
	p, _, _, _ := setup(t)
	handler := HandleMessage(p)
	require.NoError(t, handler(context.Background(), nil, []byte("{not json")))
	require.NoError(t, send(t, p, NodeEvent{TxID: "t1", Store: st, Op: "reticulate"}))
	require.NoError(t, send(t, p, NodeEvent{TxID: "t1", Store: st, Op: OpCreateIndex, Mode: "eventually"}))

	err := p.Apply(context.Background(), NodeEvent{Store: st, Op: OpCreateIndex})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestFailedOperationIsRecorded(t *testing.T) {
	p, mgr, _, status := setup(t)
	require.NoError(t, send(t, p, NodeEvent{TxID: "t1", Store: st, Op: OpCreateIndex}))
	ix, ok := mgr.Lookup(st, "t1")
	require.True(t, ok)
	require.NoError(t, ix.SetRollbackOnly())

	err := send(t, p, NodeEvent{TxID: "t1", Store: st, Op: OpCommit})
	assert.ErrorIs(t, err, apperrors.ErrRollbackOnly)
	calls := 0
	_ = resilience.Retry(context.Background(), "commit", resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond}, func() error {
		calls++
		return err
	})
	assert.Equal(t, 1, calls, "rollback-only failures are not retried")
	require.Len(t, status.seen, 1)
	assert.Equal(t, "MARKED_ROLLBACK", status.seen[0].State)
	assert.NotEmpty(t, status.seen[0].Error)

	require.NoError(t, send(t, p, NodeEvent{TxID: "t1", Store: st, Op: OpRollback}))
	assert.Equal(t, "ROLLED_BACK", status.seen[1].State)
}
