// Package indexer owns the durable main index of one store: immutable
// segments published through an atomically swapped, ref-counted generation.
package indexer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/dchest/safefile"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/repository-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/repository-search/pkg/errors"
)

// ManifestFile names the generation manifest inside an engine directory.
const ManifestFile = "manifest.json"

type manifestSegment struct {
	Name    string `json:"name"`
	Deleted string `json:"deleted,omitempty"`
}

type manifest struct {
	Generation uint64            `json:"generation"`
	Segments   []manifestSegment `json:"segments"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// segmentHandle shares one open segment between generations. The reader is
// closed when the last generation using it is released; an obsolete
// segment's file is removed at that point.
type segmentHandle struct {
	name     string
	path     string
	reader   *segment.Reader
	refs     atomic.Int32
	obsolete atomic.Bool
	logger   *slog.Logger
}

func (h *segmentHandle) retain() { h.refs.Add(1) }

func (h *segmentHandle) release() {
	if h.refs.Add(-1) != 0 {
		return
	}
	if err := h.reader.Close(); err != nil {
		h.logger.Error("closing segment reader", "segment", h.name, "error", err)
	}
	if h.obsolete.Load() {
		if err := os.Remove(h.path); err != nil && !os.IsNotExist(err) {
			h.logger.Error("removing obsolete segment", "segment", h.name, "error", err)
		}
	}
}

type genSegment struct {
	handle  *segmentHandle
	deleted *roaring.Bitmap
}

// Generation is an immutable, point-in-time view of the main index. It
// stays valid until Release is called by every holder.
type Generation struct {
	ID       uint64
	segments []genSegment
	leaves   []index.Reader
	refs     atomic.Int64
}

func newGeneration(id uint64, segs []genSegment) *Generation {
	g := &Generation{ID: id, segments: segs}
	for _, s := range segs {
		s.handle.retain()
		g.leaves = append(g.leaves, index.Mask(s.handle.reader, s.deleted))
	}
	g.refs.Store(1)
	return g
}

func (g *Generation) tryRetain() bool {
	for {
		n := g.refs.Load()
		if n <= 0 {
			return false
		}
		if g.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Release drops one reference.
func (g *Generation) Release() {
	if g.refs.Add(-1) != 0 {
		return
	}
	for _, s := range g.segments {
		s.handle.release()
	}
}

// Leaves returns one reader per segment with deletions applied.
func (g *Generation) Leaves() []index.Reader { return g.leaves }

// SegmentCount returns the number of segments.
func (g *Generation) SegmentCount() int { return len(g.segments) }

// DocCount returns the number of live documents.
func (g *Generation) DocCount() uint64 {
	var n uint64
	for _, l := range g.leaves {
		n += l.Live().GetCardinality()
	}
	return n
}

// Changes are the contribution of a committed transaction: segments already
// written to a pending directory and identities deleted from the main index.
type Changes struct {
	Segments  []string
	Deletions []string
}

// Engine maintains the main index of one store.
type Engine struct {
	dir     string
	cfg     config.IndexerConfig
	writer  *segment.Writer
	current atomic.Pointer[Generation]
	writeMu sync.Mutex
	handles map[string]*segmentHandle
	logger  *slog.Logger
}

// NewEngine opens or creates the engine in dir, loading the manifest.
func NewEngine(cfg config.IndexerConfig, dir string) (*Engine, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating index data directory: %w", err)
	}
	e := &Engine{
		dir:     dir,
		cfg:     cfg,
		writer:  segment.NewWriter(dir),
		handles: make(map[string]*segmentHandle),
		logger:  slog.Default().With("component", "indexer", "dir", dir),
	}
	m, err := e.readManifest()
	if err != nil {
		return nil, err
	}
	g, err := e.generationFrom(m)
	if err != nil {
		return nil, fmt.Errorf("loading existing segments: %w", err)
	}
	e.current.Store(g)
	if !cfg.ReadOnly {
		e.removeStrays(m)
	}
	e.logger.Info("segment recovery complete",
		"generation", g.ID,
		"segments_loaded", g.SegmentCount(),
		"docs", g.DocCount(),
	)
	return e, nil
}

// Dir returns the engine directory.
func (e *Engine) Dir() string { return e.dir }

// Acquire returns the current generation, retained. Callers must Release
// it. A closed engine yields an empty generation.
func (e *Engine) Acquire() *Generation {
	for {
		g := e.current.Load()
		if g.tryRetain() {
			return g
		}
		if e.current.Load() == g {
			return newGeneration(g.ID, nil)
		}
	}
}

// Generation returns the current generation id.
func (e *Engine) Generation() uint64 {
	return e.current.Load().ID
}

func (e *Engine) readManifest() (manifest, error) {
	data, err := os.ReadFile(filepath.Join(e.dir, ManifestFile))
	if errors.Is(err, os.ErrNotExist) {
		return manifest{}, nil
	}
	if err != nil {
		return manifest{}, apperrors.IndexIO("reading manifest", err)
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return manifest{}, apperrors.IndexIO("parsing manifest", err)
	}
	return m, nil
}

func (e *Engine) writeManifest(m manifest) error {
	m.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	f, err := safefile.Create(filepath.Join(e.dir, ManifestFile), 0644)
	if err != nil {
		return apperrors.IndexIO("creating manifest", err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return apperrors.IndexIO("writing manifest", err)
	}
	if err := f.Commit(); err != nil {
		return apperrors.IndexIO("committing manifest", err)
	}
	return nil
}

func (e *Engine) handle(name string) (*segmentHandle, error) {
	if h, ok := e.handles[name]; ok {
		return h, nil
	}
	path := filepath.Join(e.dir, name)
	r, err := segment.OpenReader(path)
	if err != nil {
		return nil, apperrors.IndexIO("opening segment", err)
	}
	h := &segmentHandle{name: name, path: path, reader: r, logger: e.logger}
	e.handles[name] = h
	return h, nil
}

func (e *Engine) generationFrom(m manifest) (*Generation, error) {
	segs := make([]genSegment, 0, len(m.Segments))
	for _, ms := range m.Segments {
		h, err := e.handle(ms.Name)
		if err != nil {
			return nil, err
		}
		deleted := roaring.New()
		if ms.Deleted != "" {
			raw, err := base64.StdEncoding.DecodeString(ms.Deleted)
			if err != nil {
				return nil, apperrors.IndexIO("decoding deletions", err)
			}
			if err := deleted.UnmarshalBinary(raw); err != nil {
				return nil, apperrors.IndexIO("decoding deletions", err)
			}
		}
		segs = append(segs, genSegment{handle: h, deleted: deleted})
	}
	return newGeneration(m.Generation, segs), nil
}

func (e *Engine) manifestOf(id uint64, segs []genSegment) (manifest, error) {
	m := manifest{Generation: id}
	for _, s := range segs {
		ms := manifestSegment{Name: s.handle.name}
		if !s.deleted.IsEmpty() {
			raw, err := s.deleted.ToBytes()
			if err != nil {
				return manifest{}, fmt.Errorf("encoding deletions: %w", err)
			}
			ms.Deleted = base64.StdEncoding.EncodeToString(raw)
		}
		m.Segments = append(m.Segments, ms)
	}
	return m, nil
}

// publish writes the manifest for segs and swaps the current generation.
// Handles present in the old generation but not in segs become obsolete.
// Callers hold writeMu.
func (e *Engine) publish(segs []genSegment) (*Generation, error) {
	old := e.current.Load()
	m, err := e.manifestOf(old.ID+1, segs)
	if err != nil {
		return nil, err
	}
	if err := e.writeManifest(m); err != nil {
		return nil, err
	}
	g := newGeneration(old.ID+1, segs)
	keep := make(map[string]bool, len(segs))
	for _, s := range segs {
		keep[s.handle.name] = true
	}
	for name, h := range e.handles {
		if !keep[name] {
			h.obsolete.Store(true)
			delete(e.handles, name)
		}
	}
	e.current.Store(g)
	old.Release()
	return g, nil
}

// Commit adopts the pending segments of a transaction and applies its
// deletions to the existing segments, publishing a new generation.
func (e *Engine) Commit(ch Changes) (uint64, error) {
	if e.cfg.ReadOnly {
		return 0, e.readOnly("commit")
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	start := time.Now()

	old := e.current.Load()
	segs := make([]genSegment, 0, len(old.segments)+len(ch.Segments))
	for _, s := range old.segments {
		deleted := s.deleted
		for _, id := range ch.Deletions {
			postings, err := s.handle.reader.Postings(document.FieldID, id)
			if err != nil {
				return 0, apperrors.IndexIO("resolving deletion", err)
			}
			for _, p := range postings {
				if deleted.Contains(p.Doc) {
					continue
				}
				if deleted == s.deleted {
					deleted = s.deleted.Clone()
				}
				deleted.Add(p.Doc)
			}
		}
		segs = append(segs, genSegment{handle: s.handle, deleted: deleted})
	}

	var adopted []string
	cleanup := func() {
		for _, name := range adopted {
			if h, ok := e.handles[name]; ok {
				h.reader.Close()
				delete(e.handles, name)
			}
			os.Remove(filepath.Join(e.dir, name))
		}
	}
	for _, src := range ch.Segments {
		name := filepath.Base(src)
		if err := os.Rename(src, filepath.Join(e.dir, name)); err != nil {
			cleanup()
			return 0, apperrors.IndexIO("adopting segment", err)
		}
		adopted = append(adopted, name)
		h, err := e.handle(name)
		if err != nil {
			cleanup()
			return 0, err
		}
		segs = append(segs, genSegment{handle: h, deleted: roaring.New()})
	}

	g, err := e.publish(segs)
	if err != nil {
		cleanup()
		return 0, err
	}
	e.logger.Info("delta committed",
		"generation", g.ID,
		"segments_added", len(ch.Segments),
		"deletions", len(ch.Deletions),
		"active_segments", g.SegmentCount(),
		"elapsed", time.Since(start),
	)
	return g.ID, nil
}

// Compact merges every segment into one when there are more than the
// configured maximum, or unconditionally when force is set.
func (e *Engine) Compact(force bool) (bool, error) {
	if e.cfg.ReadOnly {
		return false, e.readOnly("compact")
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	old := e.current.Load()
	if len(old.segments) == 0 || (!force && len(old.segments) <= e.cfg.MaxSegmentsBeforeMerge) {
		return false, nil
	}
	if old.DocCount() == 0 {
		_, err := e.publish(nil)
		return err == nil, err
	}
	info, err := e.writer.Write(old.leaves...)
	if err != nil {
		return false, apperrors.IndexIO("writing merged segment", err)
	}
	h, err := e.handle(info.Name)
	if err != nil {
		os.Remove(filepath.Join(e.dir, info.Name))
		return false, err
	}
	g, err := e.publish([]genSegment{{handle: h, deleted: roaring.New()}})
	if err != nil {
		h.reader.Close()
		delete(e.handles, info.Name)
		os.Remove(filepath.Join(e.dir, info.Name))
		return false, err
	}
	e.logger.Info("segments compacted",
		"generation", g.ID,
		"merged", len(old.segments),
		"docs", info.DocCount,
		"terms", info.TermCount,
	)
	return true, nil
}

// Reset drops every segment, leaving an empty index.
func (e *Engine) Reset() error {
	if e.cfg.ReadOnly {
		return e.readOnly("reset")
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	_, err := e.publish(nil)
	return err
}

// Refresh adopts a newer manifest written by another process.
func (e *Engine) Refresh() (bool, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	m, err := e.readManifest()
	if err != nil {
		return false, err
	}
	old := e.current.Load()
	if m.Generation <= old.ID {
		return false, nil
	}
	g, err := e.generationFrom(m)
	if err != nil {
		return false, err
	}
	keep := make(map[string]bool)
	for _, s := range g.segments {
		keep[s.handle.name] = true
	}
	for name := range e.handles {
		if !keep[name] {
			delete(e.handles, name)
		}
	}
	e.current.Store(g)
	old.Release()
	e.logger.Info("index refreshed", "generation", g.ID, "segments", g.SegmentCount())
	return true, nil
}

// removeStrays deletes segment files the manifest does not reference,
// left behind by a crash between writing a segment and publishing it.
func (e *Engine) removeStrays(m manifest) {
	live := make(map[string]bool)
	for _, s := range m.Segments {
		live[s.Name] = true
	}
	entries, err := os.ReadDir(e.dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, segment.Extension) || live[name] {
			continue
		}
		if err := os.Remove(filepath.Join(e.dir, name)); err == nil {
			e.logger.Warn("removed unreferenced segment", "segment", name)
		}
	}
}

// StartCompactionLoop compacts on every MergeInterval tick until ctx ends.
func (e *Engine) StartCompactionLoop(ctx context.Context) {
	if e.cfg.MergeInterval <= 0 {
		return
	}
	ticker := time.NewTicker(e.cfg.MergeInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.logger.Info("compaction loop stopping")
				return
			case <-ticker.C:
				if _, err := e.Compact(false); err != nil {
					e.logger.Error("periodic compaction failed", "error", err)
				}
			}
		}
	}()
}

func (e *Engine) readOnly(op string) error {
	return fmt.Errorf("%w: can not %s %s", apperrors.ErrReadOnly, op, e.dir)
}

// Close releases the engine's generation. Segments still held by readers
// close when those readers release them.
func (e *Engine) Close() error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	e.current.Load().Release()
	e.handles = make(map[string]*segmentHandle)
	return nil
}
