// Package query is the compiled query algebra shared by every front-end:
// term, wildcard, phrase, boolean, range and path nodes evaluated per index
// leaf into document sets and BM25 scores.
package query

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/tokenizer"
)

// Node is a compiled query. String renders it in lucene syntax.
type Node interface {
	String() string
	eval(ctx context.Context, s *Searcher, leaf index.Reader) (*Hits, error)
}

// Occur says how a boolean clause participates.
type Occur int

const (
	Should Occur = iota
	Must
	MustNot
	// Filter must match but does not score.
	Filter
)

func (o Occur) prefix() string {
	switch o {
	case Must:
		return "+"
	case MustNot:
		return "-"
	case Filter:
		return "#"
	}
	return ""
}

// Term matches one exact term.
type Term struct {
	Field string
	Text  string
}

func (q *Term) String() string { return q.Field + ":" + q.Text }

// Wildcard matches terms against a pattern where * is any run of
// characters and ? is exactly one.
type Wildcard struct {
	Field   string
	Pattern string
}

func (q *Wildcard) String() string { return q.Field + ":" + q.Pattern }

// Prefix matches terms starting with Prefix.
type Prefix struct {
	Field  string
	Prefix string
}

func (q *Prefix) String() string { return q.Field + ":" + q.Prefix + "*" }

// Fuzzy matches terms within an edit-distance similarity of Text.
// Similarity is 1 - distance/min(len(Text), len(term)).
type Fuzzy struct {
	Field         string
	Text          string
	MinSimilarity float64
	PrefixLength  int
}

func (q *Fuzzy) String() string {
	return q.Field + ":" + q.Text + "~" + strconv.FormatFloat(q.MinSimilarity, 'f', -1, 64)
}

// Phrase matches terms in sequence. Each slot lists alternative terms at
// its position; Positions holds the relative position of each slot and
// defaults to 0, 1, 2, ... when nil. Slop is the number of position moves
// tolerated.
type Phrase struct {
	Field     string
	Terms     [][]string
	Positions []int
	Slop      int
}

func (q *Phrase) position(i int) int {
	if q.Positions == nil {
		return i
	}
	return q.Positions[i]
}

func (q *Phrase) String() string {
	var sb strings.Builder
	sb.WriteString(q.Field)
	sb.WriteString(":\"")
	for i, alts := range q.Terms {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if len(alts) == 1 {
			sb.WriteString(alts[0])
			continue
		}
		sb.WriteByte('(')
		sb.WriteString(strings.Join(alts, " "))
		sb.WriteByte(')')
	}
	sb.WriteByte('"')
	if q.Slop != 0 {
		sb.WriteString("~" + strconv.Itoa(q.Slop))
	}
	return sb.String()
}

// Clause is one member of a Boolean.
type Clause struct {
	Occur Occur
	Node  Node
}

// Boolean combines clauses. Without required clauses at least MinShould
// (default 1) optional clauses must match. A boolean of prohibited clauses
// alone matches nothing.
type Boolean struct {
	Clauses   []Clause
	MinShould int
}

// NewBoolean builds a Boolean from clauses.
func NewBoolean(clauses ...Clause) *Boolean {
	return &Boolean{Clauses: clauses}
}

// Add appends a clause.
func (q *Boolean) Add(n Node, o Occur) *Boolean {
	q.Clauses = append(q.Clauses, Clause{Occur: o, Node: n})
	return q
}

func (q *Boolean) String() string {
	parts := make([]string, 0, len(q.Clauses))
	for _, c := range q.Clauses {
		s := c.Node.String()
		if _, nested := c.Node.(*Boolean); nested {
			s = "(" + s + ")"
		}
		parts = append(parts, c.Occur.prefix()+s)
	}
	out := strings.Join(parts, " ")
	if q.MinShould > 0 {
		out = "(" + out + ")~" + strconv.Itoa(q.MinShould)
	}
	return out
}

// Range matches terms between two bounds. An empty bound is open.
type Range struct {
	Field        string
	Lower        string
	Upper        string
	IncludeLower bool
	IncludeUpper bool
}

func (q *Range) String() string {
	start, end := "{", "}"
	if q.IncludeLower {
		start = "["
	}
	if q.IncludeUpper {
		end = "]"
	}
	lo, hi := q.Lower, q.Upper
	if lo == "" {
		lo = "*"
	}
	if hi == "" {
		hi = "*"
	}
	return fmt.Sprintf("%s:%s%s TO %s%s", q.Field, start, lo, hi, end)
}

// MatchAll matches every live document.
type MatchAll struct{}

func (MatchAll) String() string { return "*:*" }

// MatchNone matches nothing.
type MatchNone struct{}

func (MatchNone) String() string { return "-*:*" }

// NoTokens stands in for a value that could not be converted to its field
// type. It never matches.
type NoTokens struct{}

func (NoTokens) String() string { return document.FieldNoTokens + ":" + tokenizer.NoTokensText }

// Boost scales the score of its query.
type Boost struct {
	Node  Node
	Boost float64
}

func (q *Boost) String() string {
	s := q.Node.String()
	if _, nested := q.Node.(*Boolean); nested {
		s = "(" + s + ")"
	}
	return s + "^" + strconv.FormatFloat(q.Boost, 'f', -1, 64)
}

// IsEmpty reports whether n can never match.
func IsEmpty(n Node) bool {
	switch q := n.(type) {
	case nil:
		return true
	case MatchNone, *MatchNone, NoTokens, *NoTokens:
		return true
	case *Boolean:
		return len(q.Clauses) == 0
	}
	return false
}
