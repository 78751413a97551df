package builder

import (
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/dictionary"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/locale"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/searcher/query"
)

// attribute handles @ fields: content sub-fields, multilingual fan-out,
// content locale filtering and date values.
func (b *Builder) attribute(r request) (query.Node, error) {
	field, err := b.expandAttribute(r.field)
	if err != nil {
		return nil, err
	}
	r.field = field

	if suffix := contentSuffix(field); suffix != "" {
		if def, ok := b.property(field[:len(field)-len(suffix)]); ok && def.DataType == dictionary.TypeContent {
			return b.plain(r)
		}
	}

	def, ok := b.property(field)
	if !ok {
		return orNoTokens(b.plain(r))
	}
	switch def.DataType {
	case dictionary.TypeMLText:
		return b.multilingual(r)
	case dictionary.TypeContent:
		return b.content(r)
	case dictionary.TypeDate, dictionary.TypeDatetime:
		if r.kind == kindField {
			return b.dateRange(field, r.text, r.text, true, true), nil
		}
	}
	return orNoTokens(b.plain(r))
}

func orNoTokens(n query.Node, err error) (query.Node, error) {
	if err != nil {
		return nil, err
	}
	if n == nil {
		return query.NoTokens{}, nil
	}
	return n, nil
}

// multilingual ORs one sub-query per requested locale. Analysed text is
// tagged with the locale and expanded by the analyzer; other queries are
// expanded here into one {pattern}text term per locale pattern.
func (b *Builder) multilingual(r request) (query.Node, error) {
	out := query.NewBoolean()
	for _, loc := range b.locales() {
		if r.kind == kindField {
			n, err := b.plain(r.with(r.field, tokenizer.TagLocale(loc, r.text)))
			if err != nil {
				return nil, err
			}
			if n == nil {
				n = query.NoTokens{}
			}
			out.Add(n, query.Should)
			continue
		}
		for _, p := range b.opts.MLAnalysisMode.Expand(loc) {
			n, err := b.plain(r.with(r.field, tokenizer.LocaleTerm(p, r.text)))
			if err != nil {
				return nil, err
			}
			out.Add(n, query.Should)
		}
	}
	if len(out.Clauses) == 0 {
		out.Add(query.NoTokens{}, query.Should)
	}
	return out, nil
}

// content requires the content query and, unless the analysis mode spans
// every locale, a match on the content's .locale sub-field.
func (b *Builder) content(r request) (query.Node, error) {
	if b.opts.MLAnalysisMode.IncludesAll() {
		return orNoTokens(b.plain(r))
	}
	var patterns []locale.Pattern
	for _, loc := range b.locales() {
		patterns = append(patterns, b.opts.MLAnalysisMode.Expand(loc)...)
	}
	if len(patterns) == 0 {
		return orNoTokens(b.plain(r))
	}
	n, err := b.plain(r)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return query.NoTokens{}, nil
	}
	localeField := r.field + document.SuffixLocale
	locales := query.NewBoolean()
	for _, p := range patterns {
		if p.IsWildcard() {
			locales.Add(&query.Wildcard{Field: localeField, Pattern: string(p)}, query.Should)
		} else {
			locales.Add(&query.Term{Field: localeField, Text: string(p)}, query.Should)
		}
	}
	return query.NewBoolean(
		query.Clause{Occur: query.Must, Node: n},
		query.Clause{Occur: query.Must, Node: locales},
	), nil
}
