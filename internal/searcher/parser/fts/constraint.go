// Package fts parses the structured full-text search language into a
// constraint tree and compiles constraint trees into index queries.
package fts

import (
	"fmt"
	"strings"
)

// Language is the query language identifier.
const Language = "fts"

// Constraint is a node of the constraint tree.
type Constraint interface {
	fmt.Stringer
	constraint()
}

// Conjunction requires every member.
type Conjunction struct {
	Constraints []Constraint
}

// Disjunction requires at least one member.
type Disjunction struct {
	Constraints []Constraint
}

// Negation excludes what its member matches.
type Negation struct {
	Constraint Constraint
}

// Term is analysed text, with wildcards expanded. An empty Property
// searches the default field.
type Term struct {
	Property string
	Text     string
}

// ExactTerm is text compiled as a plain field query, without the prefix
// and wildcard shortcuts of Term.
type ExactTerm struct {
	Property string
	Text     string
}

// Phrase is a sequence of analysed words.
type Phrase struct {
	Property string
	Text     string
}

// Range bounds the values of a property.
type Range struct {
	Property     string
	Lower        string
	Upper        string
	IncludeLower bool
	IncludeUpper bool
}

// Like is an SQL LIKE pattern match. It has no surface syntax and is built
// by callers assembling constraint trees directly.
type Like struct {
	Property string
	Pattern  string
}

func (*Conjunction) constraint() {}
func (*Disjunction) constraint() {}
func (*Negation) constraint()    {}
func (*Term) constraint()        {}
func (*ExactTerm) constraint()   {}
func (*Phrase) constraint()      {}
func (*Range) constraint()       {}
func (*Like) constraint()        {}

func join(cs []Constraint, sep string) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = c.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}

func scoped(property, s string) string {
	if property == "" {
		return s
	}
	return property + ":" + s
}

func (c *Conjunction) String() string { return join(c.Constraints, " AND ") }
func (c *Disjunction) String() string { return join(c.Constraints, " OR ") }
func (c *Negation) String() string    { return "NOT " + c.Constraint.String() }
func (c *Term) String() string        { return scoped(c.Property, c.Text) }
func (c *ExactTerm) String() string   { return "=" + scoped(c.Property, c.Text) }
func (c *Phrase) String() string      { return scoped(c.Property, `"`+c.Text+`"`) }
func (c *Like) String() string        { return scoped(c.Property, "LIKE '"+c.Pattern+"'") }

func (c *Range) String() string {
	start, end := "<", ">"
	if c.IncludeLower {
		start = "["
	}
	if c.IncludeUpper {
		end = "]"
	}
	return scoped(c.Property, start+c.Lower+" TO "+c.Upper+end)
}
