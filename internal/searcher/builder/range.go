package builder

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/dictionary"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/searcher/query"
)

// Range compiles a range over field. Date properties are decomposed into
// component terms; text-like properties compare raw bounds; other
// properties compare the analysed form of each bound, so numbers compare
// in their sortable encoding.
func (b *Builder) Range(field, lower, upper string, includeLower, includeUpper bool) (query.Node, error) {
	if !strings.HasPrefix(field, document.AttributePrefix) {
		lower, upper = b.rangeBounds(lower, upper)
		return &query.Range{Field: field, Lower: lower, Upper: upper, IncludeLower: includeLower, IncludeUpper: includeUpper}, nil
	}
	expanded, err := b.expandAttribute(field)
	if err != nil {
		return nil, err
	}
	if def, ok := b.property(expanded); ok {
		switch def.DataType {
		case dictionary.TypeDate, dictionary.TypeDatetime:
			return b.dateRange(expanded, lower, upper, includeLower, includeUpper), nil
		case dictionary.TypeText, dictionary.TypeContent, dictionary.TypeAny:
			lower, upper = b.rangeBounds(lower, upper)
			return &query.Range{Field: expanded, Lower: lower, Upper: upper, IncludeLower: includeLower, IncludeUpper: includeUpper}, nil
		}
	}
	return &query.Range{
		Field:        expanded,
		Lower:        b.boundToken(expanded, lower),
		Upper:        b.boundToken(expanded, upper),
		IncludeLower: includeLower,
		IncludeUpper: includeUpper,
	}, nil
}

func isOpen(bound string) bool {
	return bound == "" || bound == "*" || bound == LowerOpen || bound == UpperOpen
}

func (b *Builder) rangeBounds(lower, upper string) (string, string) {
	if isOpen(lower) {
		lower = ""
	}
	if isOpen(upper) {
		upper = ""
	}
	if b.opts.CaseInsensitiveRanges {
		lower, upper = strings.ToLower(lower), strings.ToLower(upper)
	}
	return lower, upper
}

// boundToken is the first analysed token of a bound, or the bound itself
// when analysis yields nothing usable.
func (b *Builder) boundToken(field, bound string) string {
	if isOpen(bound) {
		return ""
	}
	analyzer, _ := b.analyzerFor(field)
	t, ok := analyzer.Analyze(bound).Next()
	if !ok || t.Type == tokenizer.TypeNoTokens {
		return bound
	}
	return t.Text
}
