package fts

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/locale"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/searcher/builder"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/searcher/query"
)

// QueryOptions configure the query-model engine.
type QueryOptions struct {
	// FetchSize is the number of rows materialised per batch.
	FetchSize int
	// MaxItems caps the result; zero is unlimited.
	MaxItems   int
	Locales    []locale.Locale
	Connective Connective
	Store      string
	// IncludeInTransactionData searches the caller's uncommitted changes.
	IncludeInTransactionData bool
	// DefaultField scopes unqualified terms; TEXT when empty.
	DefaultField string
	// Templates expand a property name into several underlying properties.
	Templates map[string][]string
}

// Engine compiles constraint trees into index queries.
type Engine struct {
	base   builder.Options
	logger *slog.Logger
}

// NewEngine creates an Engine whose leaves are compiled by builders
// configured from base. QueryOptions locales override base locales.
func NewEngine(base builder.Options) *Engine {
	return &Engine{base: base, logger: slog.Default().With("component", "fts-engine")}
}

type compiler struct {
	b    *builder.Builder
	opts QueryOptions
}

// Query parses and compiles src.
func (e *Engine) Query(src string, opts QueryOptions) (query.Node, error) {
	c, err := Parse(src, opts.Connective)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("fts constraint", "store", opts.Store, "constraint", c.String())
	return e.Compile(c, opts)
}

// Compile lowers c into an index query.
func (e *Engine) Compile(c Constraint, opts QueryOptions) (query.Node, error) {
	bo := e.base
	if len(opts.Locales) > 0 {
		bo.Locales = opts.Locales
	}
	cc := &compiler{b: builder.New(bo), opts: opts}
	n, err := cc.compile(c)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return query.MatchNone{}, nil
	}
	return n, nil
}

func (e *compiler) compile(c Constraint) (query.Node, error) {
	switch c := c.(type) {
	case *Conjunction:
		out := query.NewBoolean()
		for _, m := range c.Constraints {
			if neg, ok := m.(*Negation); ok {
				n, err := e.compile(neg.Constraint)
				if err != nil {
					return nil, err
				}
				if n != nil {
					out.Add(n, query.MustNot)
				}
				continue
			}
			n, err := e.compile(m)
			if err != nil {
				return nil, err
			}
			if n != nil {
				out.Add(n, query.Must)
			}
		}
		if len(out.Clauses) == 0 {
			return nil, nil
		}
		if !hasRequired(out) {
			out.Add(query.MatchAll{}, query.Must)
		}
		return out, nil
	case *Disjunction:
		out := query.NewBoolean()
		for _, m := range c.Constraints {
			n, err := e.compile(m)
			if err != nil {
				return nil, err
			}
			if n != nil {
				out.Add(n, query.Should)
			}
		}
		if len(out.Clauses) == 0 {
			return nil, nil
		}
		return out, nil
	case *Negation:
		n, err := e.compile(c.Constraint)
		if err != nil {
			return nil, err
		}
		out := query.NewBoolean(query.Clause{Occur: query.Must, Node: query.MatchAll{}})
		if n != nil {
			out.Add(n, query.MustNot)
		}
		return out, nil
	case *Term:
		return e.leaf(c.Property, func(field string) (query.Node, error) {
			text := c.Text
			switch {
			case strings.HasSuffix(text, "*") && !query.HasWildcard(text[:len(text)-1]):
				return e.b.Prefix(field, text[:len(text)-1])
			case query.HasWildcard(text):
				return e.b.Wildcard(field, text)
			}
			return e.b.Field(field, text)
		})
	case *ExactTerm:
		return e.leaf(c.Property, func(field string) (query.Node, error) {
			return e.b.Field(field, c.Text)
		})
	case *Phrase:
		return e.leaf(c.Property, func(field string) (query.Node, error) {
			return e.b.Phrase(field, c.Text, 0)
		})
	case *Range:
		return e.leaf(c.Property, func(field string) (query.Node, error) {
			return e.b.Range(field, c.Lower, c.Upper, c.IncludeLower, c.IncludeUpper)
		})
	case *Like:
		return e.leaf(c.Property, func(field string) (query.Node, error) {
			return e.b.Like(field, c.Pattern)
		})
	}
	return nil, fmt.Errorf("fts: unsupported constraint %T", c)
}

func hasRequired(b *query.Boolean) bool {
	for _, c := range b.Clauses {
		if c.Occur == query.Must || c.Occur == query.Should {
			return true
		}
	}
	return false
}

// leaf applies build to every field property resolves to. Templated
// properties become a disjunction over their members.
func (e *compiler) leaf(property string, build func(field string) (query.Node, error)) (query.Node, error) {
	fields := e.fields(property)
	if len(fields) == 1 {
		return build(fields[0])
	}
	out := query.NewBoolean()
	for _, f := range fields {
		n, err := build(f)
		if err != nil {
			return nil, err
		}
		if n == nil {
			n = query.NoTokens{}
		}
		out.Add(n, query.Should)
	}
	return out, nil
}

func (e *compiler) fields(property string) []string {
	opts := e.opts
	if property == "" {
		if opts.DefaultField != "" {
			return []string{fieldName(opts.DefaultField)}
		}
		return []string{builder.FieldText}
	}
	if members, ok := opts.Templates[property]; ok && len(members) > 0 {
		out := make([]string, len(members))
		for i, m := range members {
			out[i] = fieldName(m)
		}
		return out
	}
	return []string{fieldName(property)}
}

// fieldName maps a column reference to an index field: upper-case names
// are well-known fields, anything else is a property.
func fieldName(name string) string {
	if strings.HasPrefix(name, "@") || isUpper(name) {
		return name
	}
	return "@" + name
}

func isUpper(s string) bool {
	for _, r := range s {
		if unicode.IsLower(r) || r == ':' || r == '{' {
			return false
		}
	}
	return s != ""
}
