package txn

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/dictionary"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/locale"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/repository"
	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/repository-search/pkg/errors"
)

const testModel = `
namespaces:
  cm: http://www.repository.org/model/content/1.0
types:
  - name: cm:content
    properties:
      - name: cm:name
        type: d:text
        stored: true
      - name: cm:content
        type: d:content
`

const st = repository.StoreRef("workspace://SpacesStore")

func cm(local string) dictionary.QName {
	return dictionary.NewQName(dictionary.ContentURI, local)
}

type harness struct {
	repo    *repository.Memory
	content *repository.MemoryContent
	router  *store.Router
	mgr     *Manager
	calls   []int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dict, err := dictionary.Load([]byte(testModel))
	require.NoError(t, err)
	reg, err := tokenizer.NewRegistry(tokenizer.Options{DefaultLocale: locale.MustParse("en")})
	require.NoError(t, err)

	h := &harness{repo: repository.NewMemory(), content: repository.NewMemoryContent()}
	h.router, err = store.NewRouter(config.IndexerConfig{
		DataDir:                t.TempDir(),
		MaxSegmentsBeforeMerge: 8,
		DrainBatchSize:         10,
	})
	require.NoError(t, err)
	t.Cleanup(func() { h.router.Close() })

	h.mgr = NewManager(h.router, Services{
		Nodes:   h.repo,
		Changes: h.repo,
		Builder: document.NewBuilder(dict, reg, h.repo, h.content),
	})
	h.mgr.OnIndexed(func(_ repository.StoreRef, remaining int, _ error) {
		h.calls = append(h.calls, remaining)
	})
	return h
}

// tree puts root -> folder -> doc and returns their refs.
func (h *harness) tree() (root, folder, doc repository.NodeRef) {
	root = repository.NewNodeRef(st, "root")
	folder = repository.NewNodeRef(st, "folder")
	doc = repository.NewNodeRef(st, "doc")
	h.content.Put("store://c1", "Quarterly report")
	h.repo.Put(repository.Node{Ref: root, IsRoot: true, Type: cm("folder")})
	h.repo.Put(repository.Node{
		Ref:     folder,
		Type:    cm("folder"),
		Parents: []repository.ChildAssoc{{Parent: root, QName: cm("folder"), Primary: true}},
	})
	h.repo.Put(repository.Node{
		Ref:     doc,
		Type:    cm("content"),
		Parents: []repository.ChildAssoc{{Parent: folder, QName: cm("doc"), Primary: true}},
		Properties: map[dictionary.QName]repository.PropertyValue{
			cm("name"):    repository.Text("report.txt"),
			cm("content"): {Content: &repository.ContentData{URL: "store://c1", Mimetype: "text/plain"}},
		},
	})
	return root, folder, doc
}

func (h *harness) assoc(t *testing.T, ref repository.NodeRef) repository.ChildAssoc {
	t.Helper()
	n, found, err := h.repo.Node(context.Background(), ref)
	require.NoError(t, err)
	require.True(t, found)
	if p, ok := n.PrimaryParent(); ok {
		return p
	}
	return repository.ChildAssoc{Child: ref}
}

func nodeIDs(t *testing.T, leaves []index.Reader) []string {
	t.Helper()
	var ids []string
	for _, leaf := range leaves {
		it := leaf.Live().Iterator()
		for it.HasNext() {
			stored, err := leaf.Document(it.Next())
			require.NoError(t, err)
			id := stored.ID()
			if strings.HasPrefix(id, SnapshotPrefix) || strings.HasPrefix(id, BackgroundPrefix) {
				continue
			}
			ids = append(ids, id)
		}
	}
	return ids
}

func (h *harness) committed(t *testing.T, fn func(leaves []index.Reader)) {
	t.Helper()
	engine, err := h.router.Route(st)
	require.NoError(t, err)
	g := engine.Acquire()
	defer g.Release()
	fn(g.Leaves())
}

func (h *harness) committedIDs(t *testing.T) []string {
	var ids []string
	h.committed(t, func(leaves []index.Reader) { ids = nodeIDs(t, leaves) })
	return ids
}

func (h *harness) markers(t *testing.T) []Marker {
	var out []Marker
	h.committed(t, func(leaves []index.Reader) {
		var err error
		out, err = pendingMarkers(leaves)
		require.NoError(t, err)
	})
	return out
}

func TestAsyncCreateIndexIsDrainedByOnePass(t *testing.T) {
	h := newHarness(t)
	root, folder, doc := h.tree()
	ctx := context.Background()

	ix, err := h.mgr.Indexer(st, "tx1")
	require.NoError(t, err)
	require.NoError(t, ix.CreateIndex(ctx, Asynchronous))
	require.NoError(t, ix.Commit())

	assert.Empty(t, h.committedIDs(t))
	markers := h.markers(t)
	require.Len(t, markers, 1)
	assert.Equal(t, ActionCreate, markers[0].Action)
	assert.Equal(t, st, markers[0].Store)

	res, err := h.mgr.Drain(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 0, res.Remaining)
	assert.Empty(t, h.markers(t))
	assert.ElementsMatch(t, []string{string(root), string(folder), string(doc)}, h.committedIDs(t))

	// nothing left: the next pass is a no-op
	res, err = h.mgr.Drain(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed)
	assert.Equal(t, []int{0, 0}, h.calls)
}

func TestMarkersDrainInOrder(t *testing.T) {
	h := newHarness(t)
	h.tree()
	ctx := context.Background()

	ix, err := h.mgr.Indexer(st, "tx1")
	require.NoError(t, err)
	require.NoError(t, ix.CreateIndex(ctx, Asynchronous))
	require.NoError(t, ix.Index(ctx, 0, 3, Asynchronous))
	require.NoError(t, ix.DeleteIndex(ctx, Asynchronous))
	require.NoError(t, ix.Commit())

	var actions []Action
	for _, m := range h.markers(t) {
		actions = append(actions, m.Action)
	}
	assert.Equal(t, []Action{ActionCreate, ActionStore, ActionDelete}, actions)

	res, err := h.mgr.Drain(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 2, res.Remaining)

	total, err := h.mgr.DrainAll(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, 2, total.Processed)
	assert.Empty(t, h.markers(t))
	// the delete ran last
	assert.Empty(t, h.committedIDs(t))
}

func TestRollbackIsInvisible(t *testing.T) {
	h := newHarness(t)
	root, _, _ := h.tree()
	ctx := context.Background()

	ix, err := h.mgr.Indexer(st, "tx1")
	require.NoError(t, err)
	require.NoError(t, ix.CreateNode(ctx, repository.ChildAssoc{Child: root}, Synchronous))

	var inTx []string
	require.NoError(t, ix.Search(func(leaves []index.Reader) error {
		inTx = nodeIDs(t, leaves)
		return nil
	}))
	assert.Equal(t, []string{string(root)}, inTx)
	assert.Empty(t, h.committedIDs(t))

	require.NoError(t, ix.Rollback())
	assert.Equal(t, StateRolledBack, ix.State())
	assert.Empty(t, h.committedIDs(t))
	assert.Equal(t, []int{0}, h.calls)
	_, open := h.mgr.Lookup(st, "tx1")
	assert.False(t, open)

	ix2, err := h.mgr.Indexer(st, "tx2")
	require.NoError(t, err)
	require.NoError(t, ix2.CreateNode(ctx, repository.ChildAssoc{Child: root}, Synchronous))
	require.NoError(t, ix2.Prepare())
	require.NoError(t, ix2.Commit())
	assert.Equal(t, []string{string(root)}, h.committedIDs(t))
}

func TestStateTransitions(t *testing.T) {
	h := newHarness(t)
	root, _, _ := h.tree()
	ctx := context.Background()
	assoc := repository.ChildAssoc{Child: root}

	ix, err := h.mgr.Indexer(st, "tx1")
	require.NoError(t, err)
	assert.Equal(t, StateCreated, ix.State())
	same, err := h.mgr.Indexer(st, "tx1")
	require.NoError(t, err)
	assert.Same(t, ix, same)

	require.NoError(t, ix.UpdateNode(ctx, root, Synchronous))
	assert.Equal(t, StateActive, ix.State())
	_, err = ix.UpdateFullTextSearch(ctx, 1)
	assert.ErrorIs(t, err, apperrors.ErrTransactionState)

	require.NoError(t, ix.Prepare())
	assert.Equal(t, StatePrepared, ix.State())
	assert.ErrorIs(t, ix.Prepare(), apperrors.ErrTransactionState)
	assert.ErrorIs(t, ix.CreateNode(ctx, assoc, Synchronous), apperrors.ErrTransactionState)
	require.NoError(t, ix.Commit())
	assert.ErrorIs(t, ix.Rollback(), apperrors.ErrTransactionState)

	ix2, err := h.mgr.Indexer(st, "tx2")
	require.NoError(t, err)
	require.NoError(t, ix2.SetRollbackOnly())
	assert.ErrorIs(t, ix2.CreateNode(ctx, assoc, Synchronous), apperrors.ErrRollbackOnly)
	assert.ErrorIs(t, ix2.Commit(), apperrors.ErrRollbackOnly)
	require.NoError(t, ix2.Rollback())
	assert.Equal(t, 0, h.mgr.Active())
}

func TestUnindexedModeRecordsNothing(t *testing.T) {
	h := newHarness(t)
	root, _, _ := h.tree()
	ctx := context.Background()

	ix, err := h.mgr.Indexer(st, "tx1")
	require.NoError(t, err)
	require.NoError(t, ix.CreateNode(ctx, repository.ChildAssoc{Child: root}, Unindexed))
	require.NoError(t, ix.CreateIndex(ctx, Unindexed))
	require.NoError(t, ix.Commit())
	assert.Empty(t, h.committedIDs(t))
	assert.Empty(t, h.markers(t))
}

func TestDeleteNodeCascades(t *testing.T) {
	h := newHarness(t)
	root, folder, _ := h.tree()
	ctx := context.Background()

	ix, err := h.mgr.Indexer(st, "tx1")
	require.NoError(t, err)
	require.NoError(t, ix.CreateIndex(ctx, Synchronous))
	require.NoError(t, ix.Commit())
	assert.Len(t, h.committedIDs(t), 3)

	ix2, err := h.mgr.Indexer(st, "tx2")
	require.NoError(t, err)
	require.NoError(t, ix2.DeleteNode(ctx, h.assoc(t, folder), Synchronous))
	require.NoError(t, ix2.Commit())
	assert.Equal(t, []string{string(root)}, h.committedIDs(t))
}

func TestNewRootReplacesOldRoots(t *testing.T) {
	h := newHarness(t)
	h.tree()
	ctx := context.Background()

	ix, err := h.mgr.Indexer(st, "tx1")
	require.NoError(t, err)
	require.NoError(t, ix.CreateIndex(ctx, Synchronous))
	require.NoError(t, ix.Commit())

	other := repository.NewNodeRef(st, "root2")
	h.repo.Put(repository.Node{Ref: other, IsRoot: true, Type: cm("folder")})
	ix2, err := h.mgr.Indexer(st, "tx2")
	require.NoError(t, err)
	require.NoError(t, ix2.CreateNode(ctx, repository.ChildAssoc{Child: other}, Synchronous))
	require.NoError(t, ix2.Commit())
	assert.Equal(t, []string{string(other)}, h.committedIDs(t))
}

func TestAsyncNodeContentIsIndexedByDrain(t *testing.T) {
	h := newHarness(t)
	root, folder, doc := h.tree()
	ctx := context.Background()

	ix, err := h.mgr.Indexer(st, "tx1")
	require.NoError(t, err)
	for _, ref := range []repository.NodeRef{root, folder, doc} {
		require.NoError(t, ix.CreateNode(ctx, h.assoc(t, ref), Asynchronous))
	}
	require.NoError(t, ix.Commit())

	dirty := func() []string {
		var ids []string
		h.committed(t, func(leaves []index.Reader) {
			var err error
			ids, err = idsWhere(leaves, document.FieldFTSStatus, document.FTSStatusDirty)
			require.NoError(t, err)
		})
		return ids
	}
	assert.Equal(t, []string{string(doc)}, dirty())

	res, err := h.mgr.DrainAll(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 0, res.Remaining)
	assert.Empty(t, dirty())
	assert.Len(t, h.committedIDs(t), 3)
}

func TestSnapshotQueries(t *testing.T) {
	h := newHarness(t)
	h.tree()
	ctx := context.Background()

	assert.Equal(t, int64(-1), h.mgr.LastIndexedSnapshot(st))
	assert.False(t, h.mgr.IsSnapshotIndexed(st, 0))

	v := h.repo.Version(st)
	ix, err := h.mgr.Indexer(st, "tx1")
	require.NoError(t, err)
	require.NoError(t, ix.Index(ctx, 0, v, Synchronous))
	// visible to the transaction before commit
	assert.Equal(t, v, ix.LastIndexedSnapshot())
	assert.True(t, ix.IsSnapshotSearchable(v))
	require.NoError(t, ix.Commit())

	assert.Equal(t, v, h.mgr.LastIndexedSnapshot(st))
	assert.True(t, h.mgr.IsSnapshotIndexed(st, 0))
	assert.True(t, h.mgr.IsSnapshotSearchable(st, v))
	assert.False(t, h.mgr.IsSnapshotSearchable(st, v+1))
	assert.Len(t, h.committedIDs(t), 3)

	ix2, err := h.mgr.Indexer(st, "tx2")
	require.NoError(t, err)
	require.NoError(t, ix2.Index(ctx, v, v+5, Asynchronous))
	require.NoError(t, ix2.Commit())

	assert.Equal(t, v+5, h.mgr.LastIndexedSnapshot(st))
	assert.True(t, h.mgr.IsSnapshotIndexed(st, v+3))
	assert.False(t, h.mgr.IsSnapshotSearchable(st, v+3))

	_, err = h.mgr.Drain(ctx, st)
	require.NoError(t, err)
	assert.True(t, h.mgr.IsSnapshotSearchable(st, v+5))
	assert.Equal(t, v+5, h.mgr.LastIndexedSnapshot(st))
}

func TestIndexAppliesChangeLog(t *testing.T) {
	h := newHarness(t)
	_, folder, doc := h.tree()
	ctx := context.Background()

	v1 := h.repo.Version(st)
	ix, err := h.mgr.Indexer(st, "tx1")
	require.NoError(t, err)
	require.NoError(t, ix.Index(ctx, 0, v1, Synchronous))
	require.NoError(t, ix.Commit())

	h.repo.Delete(doc)
	h.repo.Delete(folder)
	v2 := h.repo.Version(st)
	ix2, err := h.mgr.Indexer(st, "tx2")
	require.NoError(t, err)
	require.NoError(t, ix2.Index(ctx, v1, v2, Synchronous))
	require.NoError(t, ix2.Commit())

	assert.Equal(t, []string{string(repository.NewNodeRef(st, "root"))}, h.committedIDs(t))
	assert.Equal(t, v2, h.mgr.LastIndexedSnapshot(st))
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"SYNCHRONOUS": Synchronous, "async": Asynchronous, "Unindexed": Unindexed} {
		got, err := ParseMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseMode("lazy")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
