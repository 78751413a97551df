// Package index holds the inverted-index primitives shared by the in-memory
// delta index and durable segments: positional postings, stored fields,
// field lengths and the read-only Reader contract.
package index

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/document"
)

// Posting lists the positions of a term within one document.
type Posting struct {
	Doc       uint32  `json:"d"`
	Positions []int32 `json:"p,omitempty"`
}

// Frequency is the number of occurrences of the term in the document.
func (p Posting) Frequency() int {
	if len(p.Positions) == 0 {
		return 1
	}
	return len(p.Positions)
}

// TermIterator walks the terms of one field in ascending order. Callers must
// Close it; an open iterator pins its reader.
type TermIterator interface {
	Next() bool
	Term() string
	Err() error
	Close() error
}

// Reader is a read-only view over one index leaf. Document numbers are local
// to the leaf and dense in [0, MaxDoc).
type Reader interface {
	MaxDoc() uint32
	// Live returns the documents not deleted. The bitmap must not be
	// modified.
	Live() *roaring.Bitmap
	Fields() []string
	// Terms iterates the terms of field that are >= from.
	Terms(field, from string) (TermIterator, error)
	Postings(field, term string) ([]Posting, error)
	DocFreq(field, term string) (int, error)
	Document(doc uint32) (document.StoredFields, error)
	// FieldLength is the number of tokens indexed for field in doc.
	FieldLength(field string, doc uint32) uint32
	// SumFieldLength totals FieldLength over all documents.
	SumFieldLength(field string) uint64
	Close() error
}

// SliceTerms iterates a sorted term slice.
type SliceTerms struct {
	terms []string
	pos   int
	close func() error
}

// NewSliceTerms iterates terms, which must be sorted. onClose runs once on
// Close and may be nil.
func NewSliceTerms(terms []string, onClose func() error) *SliceTerms {
	return &SliceTerms{terms: terms, pos: -1, close: onClose}
}

func (it *SliceTerms) Next() bool {
	if it.pos+1 >= len(it.terms) {
		it.pos = len(it.terms)
		return false
	}
	it.pos++
	return true
}

func (it *SliceTerms) Term() string { return it.terms[it.pos] }

func (it *SliceTerms) Err() error { return nil }

func (it *SliceTerms) Close() error {
	if it.close == nil {
		return nil
	}
	fn := it.close
	it.close = nil
	return fn()
}

// LiveDocs ANDs the live documents of r with docs in place.
func LiveDocs(r Reader, docs *roaring.Bitmap) *roaring.Bitmap {
	docs.And(r.Live())
	return docs
}
