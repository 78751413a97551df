// Package merger combines per-leaf results: top-k scored documents and
// ordered term streams.
package merger

import (
	"container/heap"
	"errors"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/searcher/ranker"
)

// Merge keeps the limit best documents across leaf results, best first.
// A limit <= 0 keeps everything.
func Merge(leafResults [][]ranker.ScoredDoc, limit int) []ranker.ScoredDoc {
	if limit <= 0 {
		var all []ranker.ScoredDoc
		for _, results := range leafResults {
			all = append(all, results...)
		}
		ranker.Sort(all)
		return all
	}
	h := &scoredDocHeap{}
	heap.Init(h)
	for _, results := range leafResults {
		for _, doc := range results {
			heap.Push(h, doc)
			if h.Len() > limit {
				heap.Pop(h)
			}
		}
	}
	result := make([]ranker.ScoredDoc, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(h).(ranker.ScoredDoc)
	}
	return result
}

type scoredDocHeap []ranker.ScoredDoc

func (h scoredDocHeap) Len() int { return len(h) }

func (h scoredDocHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score < h[j].Score
	}
	return h[i].ID > h[j].ID
}

func (h scoredDocHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *scoredDocHeap) Push(x interface{}) {
	*h = append(*h, x.(ranker.ScoredDoc))
}

func (h *scoredDocHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Terms merges ascending term iterators into one ascending stream without
// duplicates. Closing it closes every input.
type Terms struct {
	inputs  []index.TermIterator
	h       termHeap
	cur     string
	err     error
	primed  bool
	started bool
}

// MergeTerms takes ownership of its.
func MergeTerms(its []index.TermIterator) *Terms {
	return &Terms{inputs: its}
}

func (t *Terms) prime() {
	t.primed = true
	for _, it := range t.inputs {
		if it.Next() {
			t.h = append(t.h, it)
		} else if err := it.Err(); err != nil && t.err == nil {
			t.err = err
		}
	}
	heap.Init(&t.h)
}

func (t *Terms) Next() bool {
	if !t.primed {
		t.prime()
	}
	for t.err == nil && t.h.Len() > 0 {
		top := heap.Pop(&t.h).(index.TermIterator)
		term := top.Term()
		if top.Next() {
			heap.Push(&t.h, top)
		} else if err := top.Err(); err != nil {
			t.err = err
			return false
		}
		if !t.started || term != t.cur {
			t.started = true
			t.cur = term
			return true
		}
	}
	return false
}

func (t *Terms) Term() string { return t.cur }

func (t *Terms) Err() error { return t.err }

func (t *Terms) Close() error {
	var errs []error
	for _, it := range t.inputs {
		if err := it.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	t.inputs = nil
	t.h = nil
	return errors.Join(errs...)
}

type termHeap []index.TermIterator

func (h termHeap) Len() int { return len(h) }

func (h termHeap) Less(i, j int) bool { return h[i].Term() < h[j].Term() }

func (h termHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *termHeap) Push(x interface{}) {
	*h = append(*h, x.(index.TermIterator))
}

func (h *termHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
