package builder

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/searcher/query"
)

// Bound sentinels. An empty bound is always open.
const (
	LowerOpen = "\x00"
	UpperOpen = "\uffff"
	dateMin   = "min"
	dateMax   = "max"
)

var minComponents, maxComponents tokenizer.DateComponents

func init() {
	for _, u := range tokenizer.DateUnits {
		minComponents[u] = u.Min()
		maxComponents[u] = u.Max()
	}
}

// dateBound parses a range bound of a date field. min and max (any case)
// and the open sentinels select the extreme instants.
func dateBound(s string, upper bool) (tokenizer.DateComponents, bool) {
	switch {
	case s == "" || s == "*" || s == LowerOpen || s == UpperOpen:
		if upper {
			return maxComponents, true
		}
		return minComponents, true
	case !upper && strings.EqualFold(s, dateMin):
		return minComponents, true
	case upper && strings.EqualFold(s, dateMax):
		return maxComponents, true
	}
	t, err := tokenizer.ParseDate(s)
	if err != nil {
		return tokenizer.DateComponents{}, false
	}
	return tokenizer.Components(t), true
}

// dateRange compiles a date interval over the component terms of field.
// An unparseable bound degrades to the no-tokens sentinel.
func (b *Builder) dateRange(field, lower, upper string, includeLower, includeUpper bool) query.Node {
	start, ok := dateBound(lower, false)
	if !ok {
		b.logger.Debug("unparseable date bound", "field", field, "value", lower)
		return query.NoTokens{}
	}
	end, ok := dateBound(upper, true)
	if !ok {
		b.logger.Debug("unparseable date bound", "field", field, "value", upper)
		return query.NoTokens{}
	}
	return DateRange(field, start, end, includeLower, includeUpper)
}

// DateRange decomposes [start, end] into a conjunction of the component
// terms start and end share and a disjunction over the first component
// they differ in: the tail of the start value, whole values strictly
// between, and the head of the end value. Tails and heads that cover a
// whole unit fold into the range of whole values.
func DateRange(field string, start, end tokenizer.DateComponents, includeLower, includeUpper bool) query.Node {
	d := dateFields{field: field}
	if compare(start, end) > 0 {
		return query.NoTokens{}
	}
	out := query.NewBoolean()
	u := 0
	for ; u < len(tokenizer.DateUnits) && start[u] == end[u]; u++ {
		out.Add(d.term(tokenizer.DateUnits[u], start[u]), query.Must)
	}
	if u == len(tokenizer.DateUnits) {
		if includeLower && includeUpper {
			return out
		}
		return query.NoTokens{}
	}
	unit := tokenizer.DateUnits[u]

	tail := d.atLeast(u+1, start, includeLower)
	head := d.atMost(u+1, end, includeUpper)
	lo, hi := start[u]+1, end[u]-1
	if tail.always {
		lo = start[u]
	}
	if head.always {
		hi = end[u]
	}

	arms := query.NewBoolean()
	if !tail.always && !tail.never {
		arms.Add(d.and(d.term(unit, start[u]), tail.node), query.Should)
	}
	if lo <= hi {
		arms.Add(d.between(unit, lo, hi), query.Should)
	}
	if !head.always && !head.never {
		arms.Add(d.and(d.term(unit, end[u]), head.node), query.Should)
	}
	switch len(arms.Clauses) {
	case 0:
		return query.NoTokens{}
	case 1:
		out.Add(arms.Clauses[0].Node, query.Must)
	default:
		out.Add(arms, query.Must)
	}
	if len(out.Clauses) == 1 {
		return out.Clauses[0].Node
	}
	return out
}

func compare(a, b tokenizer.DateComponents) int {
	for i := range a {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	return 0
}

// cond is a constraint on the trailing units of a date. always and never
// stand for constraints that need no query.
type cond struct {
	node   query.Node
	always bool
	never  bool
}

type dateFields struct {
	field string
}

func (d dateFields) term(u tokenizer.DateUnit, v int) query.Node {
	return &query.Term{Field: d.field, Text: u.Term(v)}
}

func (d dateFields) between(u tokenizer.DateUnit, lo, hi int) query.Node {
	if lo == hi {
		return d.term(u, lo)
	}
	return &query.Range{Field: d.field, Lower: u.Term(lo), Upper: u.Term(hi), IncludeLower: true, IncludeUpper: true}
}

func (d dateFields) and(a, b query.Node) query.Node {
	return query.NewBoolean(query.Clause{Occur: query.Must, Node: a}, query.Clause{Occur: query.Must, Node: b})
}

func (d dateFields) or(arms ...query.Node) cond {
	var kept []query.Node
	for _, a := range arms {
		if a != nil {
			kept = append(kept, a)
		}
	}
	switch len(kept) {
	case 0:
		return cond{never: true}
	case 1:
		return cond{node: kept[0]}
	}
	out := query.NewBoolean()
	for _, a := range kept {
		out.Add(a, query.Should)
	}
	return cond{node: out}
}

// atLeast constrains units from index u onwards to be after c, or equal
// to it when inclusive.
func (d dateFields) atLeast(u int, c tokenizer.DateComponents, inclusive bool) cond {
	if u == len(tokenizer.DateUnits) {
		return cond{always: inclusive, never: !inclusive}
	}
	if inclusive && c == withTail(c, u, minComponents) {
		return cond{always: true}
	}
	unit := tokenizer.DateUnits[u]
	var greater query.Node
	if c[u] < unit.Max() {
		greater = d.between(unit, c[u]+1, unit.Max())
	}
	return d.or(greater, d.equalThen(unit, c[u], d.atLeast(u+1, c, inclusive)))
}

// atMost constrains units from index u onwards to be before c, or equal
// to it when inclusive.
func (d dateFields) atMost(u int, c tokenizer.DateComponents, inclusive bool) cond {
	if u == len(tokenizer.DateUnits) {
		return cond{always: inclusive, never: !inclusive}
	}
	if inclusive && c == withTail(c, u, maxComponents) {
		return cond{always: true}
	}
	unit := tokenizer.DateUnits[u]
	var less query.Node
	if c[u] > unit.Min() {
		less = d.between(unit, unit.Min(), c[u]-1)
	}
	return d.or(d.equalThen(unit, c[u], d.atMost(u+1, c, inclusive)), less)
}

func (d dateFields) equalThen(unit tokenizer.DateUnit, v int, rest cond) query.Node {
	switch {
	case rest.never:
		return nil
	case rest.always:
		return d.term(unit, v)
	}
	return d.and(d.term(unit, v), rest.node)
}

// withTail returns c with the units from index u replaced by bound's.
func withTail(c tokenizer.DateComponents, u int, bound tokenizer.DateComponents) tokenizer.DateComponents {
	copy(c[u:], bound[u:])
	return c
}
