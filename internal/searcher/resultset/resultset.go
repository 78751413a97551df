// Package resultset holds the rows of an executed query. Result sets are
// read-only: every mutator reports ErrReadOnly.
package resultset

import (
	"encoding/json"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/repository"
	apperrors "github.com/Adithya-Monish-Kumar-K/repository-search/pkg/errors"
)

// LimitBy names what bounded a result set.
type LimitBy string

const (
	Unlimited                     LimitBy = "UNLIMITED"
	FinalSize                     LimitBy = "FINAL_SIZE"
	NumberOfPermissionEvaluations LimitBy = "NUMBER_OF_PERMISSION_EVALUATIONS"
)

// ParseLimitBy reads a limit policy; the empty string is Unlimited.
func ParseLimitBy(s string) (LimitBy, error) {
	switch l := LimitBy(s); l {
	case "":
		return Unlimited, nil
	case Unlimited, FinalSize, NumberOfPermissionEvaluations:
		return l, nil
	}
	return "", apperrors.Newf(apperrors.ErrInvalidInput, 400, "unknown limit policy %q", s)
}

// Row is one matched node.
type Row struct {
	NodeRef repository.NodeRef    `json:"nodeRef"`
	Score   float64               `json:"score"`
	Values  document.StoredFields `json:"values,omitempty"`
}

// Value returns the first stored value of field.
func (r Row) Value(field string) string {
	return r.Values.Get(field)
}

// Metadata describes how a result set was produced.
type Metadata struct {
	Store     repository.StoreRef `json:"store"`
	Language  string              `json:"language"`
	LimitedBy LimitBy             `json:"limitedBy"`
	// Truncated is set when matches were dropped by a limit or by the
	// permission check budget.
	Truncated bool `json:"truncated"`
}

// ResultSet is an ordered, read-only list of rows.
type ResultSet struct {
	rows []Row
	meta Metadata
}

// New wraps rows, which the result set takes ownership of.
func New(rows []Row, meta Metadata) *ResultSet {
	if meta.LimitedBy == "" {
		meta.LimitedBy = Unlimited
	}
	return &ResultSet{rows: rows, meta: meta}
}

// Length is the number of rows.
func (rs *ResultSet) Length() int { return len(rs.rows) }

// Row returns row i.
func (rs *ResultSet) Row(i int) (Row, error) {
	if i < 0 || i >= len(rs.rows) {
		return Row{}, apperrors.Newf(apperrors.ErrNotFound, 404, "row %d out of range [0, %d)", i, len(rs.rows))
	}
	return rs.rows[i], nil
}

// NodeRef returns the node of row i.
func (rs *ResultSet) NodeRef(i int) (repository.NodeRef, error) {
	r, err := rs.Row(i)
	return r.NodeRef, err
}

// Score returns the score of row i.
func (rs *ResultSet) Score(i int) (float64, error) {
	r, err := rs.Row(i)
	return r.Score, err
}

// NodeRefs lists the nodes in row order.
func (rs *ResultSet) NodeRefs() []repository.NodeRef {
	out := make([]repository.NodeRef, len(rs.rows))
	for i, r := range rs.rows {
		out[i] = r.NodeRef
	}
	return out
}

// Rows returns a copy of the rows.
func (rs *ResultSet) Rows() []Row {
	return append([]Row(nil), rs.rows...)
}

// Metadata describes the query that produced the rows.
func (rs *ResultSet) Metadata() Metadata { return rs.meta }

// Truncated reports whether matches were left out.
func (rs *ResultSet) Truncated() bool { return rs.meta.Truncated }

// Add is not supported.
func (rs *ResultSet) Add(Row) error { return readOnly("add") }

// Remove is not supported.
func (rs *ResultSet) Remove(int) error { return readOnly("remove") }

// Set is not supported.
func (rs *ResultSet) Set(int, Row) error { return readOnly("set") }

func readOnly(op string) error {
	return apperrors.Newf(apperrors.ErrReadOnly, 405, "result set %s: result sets are read-only", op)
}

// ListIterator returns an iterator positioned before row start.
func (rs *ResultSet) ListIterator(start int) (*Iterator, error) {
	if start < 0 || start > len(rs.rows) {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, 400, "iterator start %d out of range [0, %d]", start, len(rs.rows))
	}
	return &Iterator{rs: rs, cursor: start, last: -1}, nil
}

type wire struct {
	Rows []Row    `json:"rows"`
	Meta Metadata `json:"metadata"`
}

// MarshalJSON encodes rows and metadata.
func (rs *ResultSet) MarshalJSON() ([]byte, error) {
	rows := rs.rows
	if rows == nil {
		rows = []Row{}
	}
	return json.Marshal(wire{Rows: rows, Meta: rs.meta})
}

// UnmarshalJSON restores a result set written by MarshalJSON.
func (rs *ResultSet) UnmarshalJSON(data []byte) error {
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decoding result set: %w", err)
	}
	*rs = *New(w.Rows, w.Meta)
	return nil
}

// Iterator walks a result set in both directions. The cursor sits between
// rows: Next returns the row after it, Previous the row before it.
type Iterator struct {
	rs     *ResultSet
	cursor int
	last   int
}

func (it *Iterator) HasNext() bool      { return it.cursor < len(it.rs.rows) }
func (it *Iterator) HasPrevious() bool  { return it.cursor > 0 }
func (it *Iterator) NextIndex() int     { return it.cursor }
func (it *Iterator) PreviousIndex() int { return it.cursor - 1 }

// Next advances past the next row and returns it.
func (it *Iterator) Next() (Row, error) {
	if !it.HasNext() {
		return Row{}, apperrors.Newf(apperrors.ErrNotFound, 404, "no row after position %d", it.cursor)
	}
	it.last = it.cursor
	it.cursor++
	return it.rs.rows[it.last], nil
}

// Previous steps back over the previous row and returns it.
func (it *Iterator) Previous() (Row, error) {
	if !it.HasPrevious() {
		return Row{}, apperrors.New(apperrors.ErrNotFound, 404, "no row before the first")
	}
	it.cursor--
	it.last = it.cursor
	return it.rs.rows[it.last], nil
}

// Index is the position of the row last returned, or -1.
func (it *Iterator) Index() int { return it.last }

// Remove is not supported.
func (it *Iterator) Remove() error { return readOnly("remove") }

// Set is not supported.
func (it *Iterator) Set(Row) error { return readOnly("set") }

// Add is not supported.
func (it *Iterator) Add(Row) error { return readOnly("add") }
