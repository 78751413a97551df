package query

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/repository-search/pkg/errors"
)

// TermSource enumerates the indexed terms of a field in ascending order,
// starting at from. Builders use it to expand wildcard phrase positions.
type TermSource interface {
	Terms(field, from string) (index.TermIterator, error)
}

// Options bound query evaluation.
type Options struct {
	// MaxExpansions caps the terms a wildcard, prefix or fuzzy node may
	// match in one leaf. Zero means unlimited.
	MaxExpansions int
	// Concurrency caps the leaves evaluated in parallel.
	Concurrency int
}

// Hits are the documents a node matched in one leaf.
type Hits struct {
	Docs   *roaring.Bitmap
	scores map[uint32]float64
	base   float64
}

func constantHits(docs *roaring.Bitmap, score float64) *Hits {
	return &Hits{Docs: docs, base: score}
}

func scoredHits(docs *roaring.Bitmap, scores map[uint32]float64) *Hits {
	return &Hits{Docs: docs, scores: scores}
}

func emptyHits() *Hits {
	return constantHits(roaring.New(), 0)
}

// Score of doc; zero when doc did not match.
func (h *Hits) Score(doc uint32) float64 {
	if !h.Docs.Contains(doc) {
		return 0
	}
	if s, ok := h.scores[doc]; ok {
		return s
	}
	return h.base
}

type fieldTerm struct {
	field string
	term  string
}

// Searcher evaluates nodes over a fixed set of leaves. Collection
// statistics span every leaf so scores are comparable across them.
type Searcher struct {
	leaves []index.Reader
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	docFreqs map[fieldTerm]int64
	stats    map[string]ranker.FieldStats
	liveDocs int64
}

// NewSearcher prepares a searcher over leaves, which stay owned by the
// caller.
func NewSearcher(leaves []index.Reader, opts Options) *Searcher {
	var live int64
	for _, l := range leaves {
		live += int64(l.Live().GetCardinality())
	}
	return &Searcher{
		leaves:   leaves,
		opts:     opts,
		logger:   slog.Default().With("component", "query-searcher"),
		docFreqs: make(map[fieldTerm]int64),
		stats:    make(map[string]ranker.FieldStats),
		liveDocs: live,
	}
}

// Leaves returns the searched leaves.
func (s *Searcher) Leaves() []index.Reader { return s.leaves }

// Search evaluates n on every leaf. The result holds one entry per leaf,
// restricted to live documents.
func (s *Searcher) Search(ctx context.Context, n Node) ([]*Hits, error) {
	out := make([]*Hits, len(s.leaves))
	g, gctx := errgroup.WithContext(ctx)
	if s.opts.Concurrency > 0 {
		g.SetLimit(s.opts.Concurrency)
	}
	for i, leaf := range s.leaves {
		g.Go(func() error {
			h, err := n.eval(gctx, s, leaf)
			if err != nil {
				return err
			}
			h.Docs = index.LiveDocs(leaf, h.Docs)
			out[i] = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Collect turns per-leaf hits into scored documents carrying identities,
// in leaf then document order.
func (s *Searcher) Collect(hits []*Hits) ([]ranker.ScoredDoc, error) {
	var out []ranker.ScoredDoc
	for i, h := range hits {
		if h == nil {
			continue
		}
		it := h.Docs.Iterator()
		for it.HasNext() {
			doc := it.Next()
			stored, err := s.leaves[i].Document(doc)
			if err != nil {
				return nil, apperrors.IndexIO("loading matched document", err)
			}
			out = append(out, ranker.ScoredDoc{ID: stored.ID(), Leaf: i, Doc: doc, Score: h.Score(doc)})
		}
	}
	return out, nil
}

// Terms merges the term streams of every leaf.
func (s *Searcher) Terms(field, from string) (index.TermIterator, error) {
	its := make([]index.TermIterator, 0, len(s.leaves))
	for _, leaf := range s.leaves {
		it, err := leaf.Terms(field, from)
		if err != nil {
			for _, open := range its {
				open.Close()
			}
			return nil, apperrors.IndexIO("enumerating terms", err)
		}
		its = append(its, it)
	}
	return merger.MergeTerms(its), nil
}

func (s *Searcher) docFreq(field, term string) (int64, error) {
	key := fieldTerm{field, term}
	s.mu.Lock()
	if df, ok := s.docFreqs[key]; ok {
		s.mu.Unlock()
		return df, nil
	}
	s.mu.Unlock()
	var df int64
	for _, leaf := range s.leaves {
		n, err := leaf.DocFreq(field, term)
		if err != nil {
			return 0, apperrors.IndexIO("reading document frequency", err)
		}
		df += int64(n)
	}
	s.mu.Lock()
	s.docFreqs[key] = df
	s.mu.Unlock()
	return df, nil
}

func (s *Searcher) fieldStats(field string) ranker.FieldStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.stats[field]; ok {
		return st
	}
	var sum uint64
	var docs uint64
	for _, leaf := range s.leaves {
		sum += leaf.SumFieldLength(field)
		docs += uint64(leaf.MaxDoc())
	}
	st := ranker.FieldStats{TotalDocs: s.liveDocs}
	if docs > 0 {
		st.AvgDocLength = float64(sum) / float64(docs)
	}
	s.stats[field] = st
	return st
}

func (s *Searcher) checkExpansions(field string, n int) error {
	if s.opts.MaxExpansions > 0 && n > s.opts.MaxExpansions {
		return fmt.Errorf("%w: field %s matches more than %d terms", apperrors.ErrInvalidInput, field, s.opts.MaxExpansions)
	}
	return nil
}
