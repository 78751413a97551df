package index

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/tokenizer"
)

// positionGap separates the values of a multi-valued field so phrases do not
// match across them.
const positionGap = 100

// MemoryIndex is a thread-safe, append-only in-memory inverted index.
// Deleting by identity masks documents; they are dropped when the index is
// written to a segment.
type MemoryIndex struct {
	mu       sync.RWMutex
	postings map[string]map[string][]Posting
	lengths  map[string][]uint32
	sums     map[string]uint64
	stored   []document.StoredFields
	ids      map[string][]uint32
	deleted  *roaring.Bitmap
	size     int64
}

// NewMemoryIndex returns an empty index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		postings: make(map[string]map[string][]Posting),
		lengths:  make(map[string][]uint32),
		sums:     make(map[string]uint64),
		ids:      make(map[string][]uint32),
		deleted:  roaring.New(),
	}
}

// Add analyses and indexes doc, returning its document number. Earlier live
// documents with the same identity are masked.
func (m *MemoryIndex) Add(doc *document.Document) (uint32, error) {
	if err := doc.Validate(); err != nil {
		return 0, err
	}
	type fieldState struct {
		pos    int32
		length uint32
		seen   bool
	}
	terms := make(map[string]map[string][]int32)
	state := make(map[string]*fieldState)
	var size int64

	for _, f := range doc.Fields {
		if !f.Indexed {
			continue
		}
		st := state[f.Name]
		if st == nil {
			st = &fieldState{pos: -1}
			state[f.Name] = st
		} else if st.seen {
			st.pos += positionGap
		}
		st.seen = true
		byTerm := terms[f.Name]
		if byTerm == nil {
			byTerm = make(map[string][]int32)
			terms[f.Name] = byTerm
		}
		if !f.Tokenised || f.Analyzer == nil {
			st.pos++
			st.length++
			byTerm[f.Value] = append(byTerm[f.Value], st.pos)
			size += int64(len(f.Value))
			continue
		}
		stream := f.Analyzer.Analyze(f.Value)
		for {
			tok, ok := stream.Next()
			if !ok {
				break
			}
			st.pos += int32(tok.PositionIncrement)
			if tok.Type == tokenizer.TypeNoTokens {
				nt := terms[document.FieldNoTokens]
				if nt == nil {
					nt = make(map[string][]int32)
					terms[document.FieldNoTokens] = nt
				}
				nt[tokenizer.NoTokensText] = append(nt[tokenizer.NoTokensText], 0)
				continue
			}
			if st.pos < 0 {
				st.pos = 0
			}
			st.length++
			byTerm[tok.Text] = append(byTerm[tok.Text], st.pos)
			size += int64(len(tok.Text))
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	docNum := uint32(len(m.stored))
	id := doc.ID()
	for _, prev := range m.ids[id] {
		m.deleted.Add(prev)
	}
	m.ids[id] = append(m.ids[id], docNum)
	m.stored = append(m.stored, doc.Stored())

	for field, byTerm := range terms {
		fp := m.postings[field]
		if fp == nil {
			fp = make(map[string][]Posting)
			m.postings[field] = fp
		}
		for term, positions := range byTerm {
			fp[term] = append(fp[term], Posting{Doc: docNum, Positions: positions})
		}
	}
	for field, st := range state {
		lens := m.lengths[field]
		for uint32(len(lens)) < docNum {
			lens = append(lens, 0)
		}
		m.lengths[field] = append(lens, st.length)
		m.sums[field] += uint64(st.length)
	}
	m.size += size
	return docNum, nil
}

// Delete masks every document with identity id and reports how many were
// live.
func (m *MemoryIndex) Delete(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, doc := range m.ids[id] {
		if m.deleted.CheckedAdd(doc) {
			n++
		}
	}
	return n
}

// DeleteWhere masks documents whose stored field has value and returns
// their identities.
func (m *MemoryIndex) DeleteWhere(field, value string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for doc, stored := range m.stored {
		if m.deleted.Contains(uint32(doc)) {
			continue
		}
		for _, v := range stored[field] {
			if v == value {
				m.deleted.Add(uint32(doc))
				ids = append(ids, stored.ID())
				break
			}
		}
	}
	return ids
}

// Size approximates the indexed bytes.
func (m *MemoryIndex) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

// DocCount returns the number of live documents.
func (m *MemoryIndex) DocCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.stored) - int(m.deleted.GetCardinality())
}

func (m *MemoryIndex) MaxDoc() uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint32(len(m.stored))
}

func (m *MemoryIndex) Live() *roaring.Bitmap {
	m.mu.RLock()
	defer m.mu.RUnlock()
	live := roaring.New()
	live.AddRange(0, uint64(len(m.stored)))
	live.AndNot(m.deleted)
	return live
}

func (m *MemoryIndex) Fields() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.postings))
	for f := range m.postings {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Terms snapshots the matching terms of field, so the iterator stays valid
// while documents are added.
func (m *MemoryIndex) Terms(field, from string) (TermIterator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for term := range m.postings[field] {
		if strings.Compare(term, from) >= 0 {
			out = append(out, term)
		}
	}
	sort.Strings(out)
	return NewSliceTerms(out, nil), nil
}

func (m *MemoryIndex) Postings(field, term string) ([]Posting, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src := m.postings[field][term]
	out := make([]Posting, len(src))
	copy(out, src)
	return out, nil
}

func (m *MemoryIndex) DocFreq(field, term string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.postings[field][term]), nil
}

func (m *MemoryIndex) Document(doc uint32) (document.StoredFields, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if doc >= uint32(len(m.stored)) {
		return nil, fmt.Errorf("document %d out of range", doc)
	}
	return m.stored[doc], nil
}

func (m *MemoryIndex) FieldLength(field string, doc uint32) uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lens := m.lengths[field]
	if doc >= uint32(len(lens)) {
		return 0
	}
	return lens[doc]
}

func (m *MemoryIndex) SumFieldLength(field string) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sums[field]
}

// Close is a no-op; a memory index holds no files.
func (m *MemoryIndex) Close() error { return nil }
