// Package delta implements the per-transaction index overlay: documents
// added and identities deleted by one transaction, buffered in memory and
// spilled to pending segments until commit or rollback.
package delta

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/segment"
	apperrors "github.com/Adithya-Monish-Kumar-K/repository-search/pkg/errors"
)

type spilled struct {
	path    string
	reader  *segment.Reader
	deleted *roaring.Bitmap
}

// Delta is the overlay of one transaction on one store.
type Delta struct {
	ID    string
	Store string

	mu        sync.RWMutex
	dir       string
	spillDocs int
	mem       *index.MemoryIndex
	spills    []*spilled
	deletions map[string]struct{}
	prepared  bool
	logger    *slog.Logger
}

// New creates an empty delta under pendingRoot/<id>. spillDocs bounds the
// documents buffered in memory; zero disables spilling.
func New(store, pendingRoot string, spillDocs int) (*Delta, error) {
	id := uuid.NewString()
	dir := filepath.Join(pendingRoot, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, apperrors.IndexIO("creating delta directory", err)
	}
	return &Delta{
		ID:        id,
		Store:     store,
		dir:       dir,
		spillDocs: spillDocs,
		mem:       index.NewMemoryIndex(),
		deletions: make(map[string]struct{}),
		logger:    slog.Default().With("component", "delta", "store", store, "delta", id),
	}, nil
}

// Add indexes doc in the delta, replacing any earlier version of the same
// identity in the delta or the main index.
func (d *Delta) Add(doc *document.Document) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.prepared {
		return fmt.Errorf("%w: delta %s already prepared", apperrors.ErrTransactionState, d.ID)
	}
	id := doc.ID()
	if err := d.maskSpilledLocked(id); err != nil {
		return err
	}
	if _, err := d.mem.Add(doc); err != nil {
		return fmt.Errorf("adding %s to delta: %w", id, err)
	}
	d.deletions[id] = struct{}{}
	if d.spillDocs > 0 && d.mem.DocCount() >= d.spillDocs {
		return d.spillLocked()
	}
	return nil
}

// Delete removes id from the delta and from the main index on commit.
func (d *Delta) Delete(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.prepared {
		return fmt.Errorf("%w: delta %s already prepared", apperrors.ErrTransactionState, d.ID)
	}
	if err := d.maskSpilledLocked(id); err != nil {
		return err
	}
	d.mem.Delete(id)
	d.deletions[id] = struct{}{}
	return nil
}

func (d *Delta) maskSpilledLocked(id string) error {
	for _, s := range d.spills {
		postings, err := s.reader.Postings(document.FieldID, id)
		if err != nil {
			return apperrors.IndexIO("reading spilled segment", err)
		}
		for _, p := range postings {
			s.deleted.Add(p.Doc)
		}
	}
	return nil
}

// spillLocked writes the memory index to a pending segment.
func (d *Delta) spillLocked() error {
	if d.mem.DocCount() == 0 {
		d.mem = index.NewMemoryIndex()
		return nil
	}
	info, err := segment.NewWriter(d.dir).Write(d.mem)
	if err != nil {
		return apperrors.IndexIO("spilling delta", err)
	}
	path := filepath.Join(d.dir, info.Name)
	r, err := segment.OpenReader(path)
	if err != nil {
		return apperrors.IndexIO("opening spilled segment", err)
	}
	d.spills = append(d.spills, &spilled{path: path, reader: r, deleted: roaring.New()})
	d.mem = index.NewMemoryIndex()
	d.logger.Debug("delta spilled", "segment", info.Name, "docs", info.DocCount)
	return nil
}

// Prepare flushes everything buffered into durable pending segments. Spilled
// segments holding superseded documents are merged away.
func (d *Delta) Prepare() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.prepared {
		return nil
	}
	dirty := false
	for _, s := range d.spills {
		if !s.deleted.IsEmpty() {
			dirty = true
			break
		}
	}
	if !dirty {
		if err := d.spillLocked(); err != nil {
			return err
		}
		d.prepared = true
		return nil
	}

	leaves := make([]index.Reader, 0, len(d.spills)+1)
	for _, s := range d.spills {
		leaves = append(leaves, index.Mask(s.reader, s.deleted))
	}
	leaves = append(leaves, d.mem)
	live := uint64(0)
	for _, l := range leaves {
		live += l.Live().GetCardinality()
	}
	old := d.spills
	d.spills = nil
	if live > 0 {
		info, err := segment.NewWriter(d.dir).Write(leaves...)
		if err != nil {
			d.spills = old
			return apperrors.IndexIO("merging delta", err)
		}
		path := filepath.Join(d.dir, info.Name)
		r, err := segment.OpenReader(path)
		if err != nil {
			d.spills = old
			return apperrors.IndexIO("opening merged delta", err)
		}
		d.spills = []*spilled{{path: path, reader: r, deleted: roaring.New()}}
	}
	for _, s := range old {
		s.reader.Close()
		os.Remove(s.path)
	}
	d.mem = index.NewMemoryIndex()
	d.prepared = true
	return nil
}

// Changes returns what commit must apply to the main index. Valid after
// Prepare.
func (d *Delta) Changes() indexer.Changes {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ch := indexer.Changes{}
	for _, s := range d.spills {
		ch.Segments = append(ch.Segments, s.path)
	}
	for id := range d.deletions {
		ch.Deletions = append(ch.Deletions, id)
	}
	sort.Strings(ch.Deletions)
	return ch
}

// DocCount returns the live documents in the delta.
func (d *Delta) DocCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := d.mem.DocCount()
	for _, s := range d.spills {
		n += int(s.reader.MaxDoc()) - int(s.deleted.GetCardinality())
	}
	return n
}

// Deleted reports whether id was added or deleted by this delta, hiding the
// main index copy.
func (d *Delta) Deleted(id string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.deletions[id]
	return ok
}

// View returns the main generation with this delta's deletions masked plus
// the delta's own leaves. The generation stays owned by the caller.
func (d *Delta) View(g *indexer.Generation) ([]index.Reader, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []index.Reader
	for _, leaf := range g.Leaves() {
		masked := roaring.New()
		for id := range d.deletions {
			postings, err := leaf.Postings(document.FieldID, id)
			if err != nil {
				return nil, apperrors.IndexIO("masking main index", err)
			}
			for _, p := range postings {
				masked.Add(p.Doc)
			}
		}
		out = append(out, index.Mask(leaf, masked))
	}
	for _, s := range d.spills {
		out = append(out, index.Mask(s.reader, s.deleted.Clone()))
	}
	out = append(out, index.Mask(d.mem, nil))
	return out, nil
}

// Release closes the delta's readers after a commit adopted its segments.
func (d *Delta) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.spills {
		s.reader.Close()
	}
	d.spills = nil
	os.RemoveAll(d.dir)
}

// Discard drops everything buffered or spilled.
func (d *Delta) Discard() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.spills {
		s.reader.Close()
	}
	d.spills = nil
	d.mem = index.NewMemoryIndex()
	d.deletions = make(map[string]struct{})
	if err := os.RemoveAll(d.dir); err != nil {
		return apperrors.IndexIO("removing delta directory", err)
	}
	return nil
}
