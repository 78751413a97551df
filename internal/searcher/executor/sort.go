package executor

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/dictionary"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/locale"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/repository-search/pkg/errors"
)

// candidate is a match waiting for sorting and permission checks.
type candidate struct {
	ranker.ScoredDoc
	stored document.StoredFields
}

type valueKind int

const (
	kindText valueKind = iota
	kindNumber
	kindDate
	kindML
)

type sortKey struct {
	def   SortDefinition
	field string
	kind  valueKind
}

var numericFields = map[string]bool{document.FieldTX: true}

// sortKeys resolves field names against the dictionary so that values can
// be compared by data type.
func sortKeys(defs []SortDefinition, dict *dictionary.Dictionary, ns dictionary.NamespaceResolver) ([]sortKey, error) {
	keys := make([]sortKey, 0, len(defs))
	for _, d := range defs {
		k := sortKey{def: d}
		if d.Type != SortByField {
			keys = append(keys, k)
			continue
		}
		name := strings.TrimPrefix(d.Field, document.AttributePrefix)
		if !strings.ContainsAny(name, ":{") {
			k.field = name
			if numericFields[name] {
				k.kind = kindNumber
			}
			keys = append(keys, k)
			continue
		}
		q, err := dictionary.Resolve(ns, name)
		if err != nil {
			return nil, apperrors.Unresolved("sort field", d.Field)
		}
		k.field = document.PropertyField(q)
		if def, ok := dict.Property(q); ok {
			switch def.DataType {
			case dictionary.TypeInt, dictionary.TypeLong, dictionary.TypeFloat, dictionary.TypeDouble:
				k.kind = kindNumber
			case dictionary.TypeDate, dictionary.TypeDatetime:
				k.kind = kindDate
			case dictionary.TypeMLText:
				k.kind = kindML
			}
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// sortCandidates orders cs by keys. Without keys the order is descending
// score. Ties keep document order.
func sortCandidates(cs []candidate, keys []sortKey, locales []locale.Locale) {
	if len(keys) == 0 {
		keys = []sortKey{{def: SortDefinition{Type: SortByScore}}}
	}
	slices.SortStableFunc(cs, func(a, b candidate) int {
		for _, k := range keys {
			var c int
			switch k.def.Type {
			case SortByScore:
				c = cmp.Compare(a.Score, b.Score)
			case SortByDocument:
				c = cmp.Or(cmp.Compare(a.Leaf, b.Leaf), cmp.Compare(a.Doc, b.Doc))
			default:
				c = compareValues(k.value(a, locales), k.value(b, locales), k.kind)
			}
			if !k.def.Ascending {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
}

func (k sortKey) value(c candidate, locales []locale.Locale) string {
	if k.kind != kindML {
		return c.stored.Get(k.field)
	}
	return localised(c.stored[k.field], locales)
}

// localised picks the multilingual value that best fits locales: the first
// requested locale that has a value, trying each fallback in turn. Values
// in no requested locale lose to those that are.
func localised(values []string, locales []locale.Locale) string {
	if len(values) == 0 {
		return ""
	}
	byTag := make(map[string]string, len(values))
	first := ""
	for i, v := range values {
		tag, body, _, _ := tokenizer.SplitLocale(v)
		if _, seen := byTag[tag]; !seen {
			byTag[tag] = body
		}
		if i == 0 {
			first = body
		}
	}
	for _, l := range locales {
		for _, f := range l.Fallbacks() {
			if body, ok := byTag[f.String()]; ok {
				return body
			}
		}
	}
	return first
}

// compareValues orders missing values first, then by kind. Values that do
// not parse as their kind compare as text.
func compareValues(a, b string, kind valueKind) int {
	switch {
	case a == "" && b == "":
		return 0
	case a == "":
		return -1
	case b == "":
		return 1
	}
	switch kind {
	case kindNumber:
		x, errA := strconv.ParseFloat(a, 64)
		y, errB := strconv.ParseFloat(b, 64)
		if errA == nil && errB == nil {
			return cmp.Compare(x, y)
		}
	case kindDate:
		x, errA := tokenizer.ParseDate(a)
		y, errB := tokenizer.ParseDate(b)
		if errA == nil && errB == nil {
			return x.Compare(y)
		}
	}
	return cmp.Or(strings.Compare(strings.ToLower(a), strings.ToLower(b)), strings.Compare(a, b))
}
