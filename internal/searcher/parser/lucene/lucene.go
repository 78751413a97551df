// Package lucene parses the index query language: terms, phrases, ranges,
// wildcards, fuzzy terms, boosts, field scopes and boolean operators. Leaf
// constraints are compiled by the field query builder.
package lucene

import (
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/searcher/builder"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/searcher/query"
)

// Language is the query language identifier.
const Language = "lucene"

// Operator joins bare clauses.
type Operator int

const (
	OperatorOR Operator = iota
	OperatorAND
)

// ParseOperator reads "AND" or "OR" in any case; anything else is OR.
func ParseOperator(s string) Operator {
	if strings.EqualFold(s, "AND") {
		return OperatorAND
	}
	return OperatorOR
}

const defaultMinSimilarity = 0.5

// Options configure a Parser.
type Options struct {
	// DefaultField scopes clauses without a field; TEXT when empty.
	DefaultField    string
	DefaultOperator Operator
}

// Parser compiles query strings through a builder.
type Parser struct {
	b    *builder.Builder
	opts Options
}

// New creates a Parser.
func New(b *builder.Builder, opts Options) *Parser {
	if opts.DefaultField == "" {
		opts.DefaultField = builder.FieldText
	}
	return &Parser{b: b, opts: opts}
}

// Parse compiles q. A query whose clauses all analyse to nothing matches
// nothing.
func (p *Parser) Parse(q string) (query.Node, error) {
	toks, err := lex(q)
	if err != nil {
		return nil, err
	}
	s := &state{Parser: p, src: q, toks: toks}
	n, err := s.query(p.opts.DefaultField)
	if err != nil {
		return nil, err
	}
	if t := s.peek(); t.kind != tEOF {
		return nil, fail(q, t.pos, "unexpected %q", t.text)
	}
	if n == nil {
		return query.MatchNone{}, nil
	}
	return n, nil
}

type conj int

const (
	conjNone conj = iota
	conjAnd
	conjOr
)

type modifier int

const (
	modNone modifier = iota
	modRequired
	modNot
)

type state struct {
	*Parser
	src  string
	toks []tok
	i    int
}

func (s *state) peek() tok       { return s.toks[s.i] }
func (s *state) peekAt(n int) tok { return s.toks[min(s.i+n, len(s.toks)-1)] }

func (s *state) next() tok {
	t := s.toks[s.i]
	if t.kind != tEOF {
		s.i++
	}
	return t
}

func (s *state) query(field string) (query.Node, error) {
	var clauses []query.Clause
	for first := true; ; first = false {
		t := s.peek()
		if t.kind == tEOF || t.kind == tRParen {
			if first {
				return nil, nil
			}
			break
		}
		c := conjNone
		if t.kind == tAnd || t.kind == tOr {
			if first {
				return nil, fail(s.src, t.pos, "%s without a left operand", t.text)
			}
			c = conjOr
			if t.kind == tAnd {
				c = conjAnd
			}
			s.next()
		}
		m := modNone
		switch s.peek().kind {
		case tPlus:
			m = modRequired
			s.next()
		case tMinus, tNot:
			m = modNot
			s.next()
		}
		n, err := s.clause(field)
		if err != nil {
			return nil, err
		}
		clauses = s.addClause(clauses, c, m, n)
	}
	switch {
	case len(clauses) == 0:
		return nil, nil
	case len(clauses) == 1 && clauses[0].Occur != query.MustNot:
		return clauses[0].Node, nil
	}
	return query.NewBoolean(clauses...), nil
}

// addClause applies conjunctions and modifiers: AND makes the previous
// clause required, OR under an AND default makes it optional, and + - NOT
// override the default operator for the new clause.
func (s *state) addClause(clauses []query.Clause, c conj, m modifier, n query.Node) []query.Clause {
	if last := len(clauses) - 1; last >= 0 {
		switch {
		case c == conjAnd && clauses[last].Occur == query.Should:
			clauses[last].Occur = query.Must
		case c == conjOr && s.opts.DefaultOperator == OperatorAND && clauses[last].Occur == query.Must:
			clauses[last].Occur = query.Should
		}
	}
	if n == nil {
		return clauses
	}
	prohibited := m == modNot
	var required bool
	if s.opts.DefaultOperator == OperatorOR {
		required = m == modRequired || c == conjAnd && !prohibited
	} else {
		required = !prohibited && c != conjOr
	}
	occur := query.Should
	switch {
	case prohibited:
		occur = query.MustNot
	case required:
		occur = query.Must
	}
	return append(clauses, query.Clause{Occur: occur, Node: n})
}

func (s *state) clause(field string) (query.Node, error) {
	if t := s.peek(); t.kind == tWord && s.peekAt(1).kind == tColon {
		s.next()
		s.next()
		if t.text == "*" {
			if v := s.peek(); v.kind == tWord && v.text == "*" {
				s.next()
				return s.boost(query.MatchAll{})
			}
		}
		field = t.text
	}
	t := s.next()
	switch t.kind {
	case tLParen:
		n, err := s.query(field)
		if err != nil {
			return nil, err
		}
		if r := s.next(); r.kind != tRParen {
			return nil, fail(s.src, t.pos, "unbalanced (")
		}
		return s.boost(n)
	case tWord:
		return s.term(field, t)
	case tPhrase:
		slop := 0
		if s.peek().kind == tTilde {
			v := s.next()
			f, err := strconv.ParseFloat(v.text, 64)
			if err != nil {
				return nil, fail(s.src, v.pos, "phrase slop must be a number")
			}
			slop = int(f)
		}
		n, err := s.b.Phrase(field, t.text, slop)
		if err != nil {
			return nil, err
		}
		return s.boost(n)
	case tRange:
		n, err := s.b.Range(field, t.lower, t.upper, t.includeLower, t.includeUpper)
		if err != nil {
			return nil, err
		}
		return s.boost(n)
	case tEOF:
		return nil, fail(s.src, t.pos, "query ends where a term was expected")
	}
	return nil, fail(s.src, t.pos, "unexpected %q", t.text)
}

func (s *state) term(field string, t tok) (query.Node, error) {
	text := t.text
	var (
		n   query.Node
		err error
	)
	switch {
	case s.peek().kind == tTilde:
		v := s.next()
		sim := defaultMinSimilarity
		if v.text != "" {
			if sim, err = strconv.ParseFloat(v.text, 64); err != nil {
				return nil, fail(s.src, v.pos, "fuzzy similarity must be a number")
			}
		}
		if sim < 0 || sim >= 1 {
			return nil, fail(s.src, v.pos, "fuzzy similarity must be in [0, 1)")
		}
		n, err = s.b.Fuzzy(field, text, sim)
	case strings.HasSuffix(text, "*") && !query.HasWildcard(text[:len(text)-1]):
		n, err = s.b.Prefix(field, text[:len(text)-1])
	case query.HasWildcard(text):
		n, err = s.b.Wildcard(field, text)
	default:
		n, err = s.b.Field(field, text)
	}
	if err != nil {
		return nil, err
	}
	return s.boost(n)
}

func (s *state) boost(n query.Node) (query.Node, error) {
	if s.peek().kind != tCaret {
		return n, nil
	}
	v := s.next()
	f, err := strconv.ParseFloat(v.text, 64)
	if err != nil {
		return nil, fail(s.src, v.pos, "boost must be a number")
	}
	if n == nil {
		return nil, nil
	}
	return &query.Boost{Node: n, Boost: f}, nil
}
