// Package builder lowers a (field, text) constraint into the query algebra.
// Well-known fields are dispatched through a table; property fields are
// resolved against the dictionary and handled per data type.
package builder

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/dictionary"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/locale"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/searcher/parser/xpath"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/searcher/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/repository-search/pkg/errors"
)

// Pseudo-fields that are resolved by the builder rather than indexed.
const (
	FieldText            = "TEXT"
	FieldAll             = "ALL"
	FieldPathWithRepeats = "PATH_WITH_REPEATS"
	FieldExactType       = "EXACTTYPE"
	FieldExactAspect     = "EXACTASPECT"
	FieldIsUnset         = "ISUNSET"
	FieldIsNull          = "ISNULL"
	FieldIsNotNull       = "ISNOTNULL"
)

// Options configure a Builder.
type Options struct {
	Dictionary *dictionary.Dictionary
	Analyzers  *tokenizer.Registry
	Namespaces dictionary.NamespaceResolver
	// Terms expands wildcard positions of phrases. Without it such
	// positions match nothing.
	Terms query.TermSource

	// TextAttributes and AllAttributes replace the dictionary-derived
	// property sets of TEXT and ALL when non-empty.
	TextAttributes []string
	AllAttributes  []string

	// Locales of multilingual queries; the registry default when empty.
	Locales        []locale.Locale
	MLAnalysisMode locale.AnalysisMode

	LowerCaseExpandedTerms bool
	CaseInsensitiveRanges  bool
	MaxExpansions          int
}

type kind int

const (
	kindField kind = iota
	kindPrefix
	kindWildcard
	kindFuzzy
)

// request is one constraint on its way through dispatch.
type request struct {
	kind          kind
	field         string
	text          string
	slop          int
	minSimilarity float64
}

func (r request) with(field, text string) request {
	r.field, r.text = field, text
	return r
}

type handler func(b *Builder, r request) (query.Node, error)

// fieldHandlers serve field queries against well-known fields. Prefix,
// wildcard and fuzzy queries only special-case TEXT and ALL. Both are
// filled by init since TEXT and ALL dispatch back through them.
var fieldHandlers, expandingHandlers map[string]handler

func init() {
	fieldHandlers = map[string]handler{
		document.FieldPath:          (*Builder).path,
		FieldPathWithRepeats:        (*Builder).path,
		FieldText:                   (*Builder).text,
		FieldAll:                    (*Builder).all,
		document.FieldID:            (*Builder).exact,
		document.FieldIsRoot:        (*Builder).exact,
		document.FieldIsContainer:   (*Builder).exact,
		document.FieldIsNode:        (*Builder).exact,
		document.FieldTX:            (*Builder).exact,
		document.FieldParent:        (*Builder).exact,
		document.FieldPrimaryParent: (*Builder).exact,
		document.FieldQName:         (*Builder).qname,
		document.FieldType:          (*Builder).classQuery,
		document.FieldAspect:        (*Builder).classQuery,
		FieldExactType:              (*Builder).classQuery,
		FieldExactAspect:            (*Builder).classQuery,
		FieldIsUnset:                (*Builder).presence,
		FieldIsNull:                 (*Builder).presence,
		FieldIsNotNull:              (*Builder).presence,
	}
	expandingHandlers = map[string]handler{
		FieldText: (*Builder).text,
		FieldAll:  (*Builder).all,
	}
}

// Builder compiles field constraints. It is cheap to create and is not
// safe for concurrent use while its options are being changed.
type Builder struct {
	opts   Options
	logger *slog.Logger
}

// New creates a Builder.
func New(opts Options) *Builder {
	if opts.Namespaces == nil && opts.Dictionary != nil {
		opts.Namespaces = opts.Dictionary.Namespaces()
	}
	return &Builder{
		opts:   opts,
		logger: slog.Default().With("component", "query-builder"),
	}
}

// Namespaces is the prefix resolver used for names in query text.
func (b *Builder) Namespaces() dictionary.NamespaceResolver { return b.opts.Namespaces }

// Field compiles an analysed field query. A nil node means the text
// produced no tokens.
func (b *Builder) Field(field, text string) (query.Node, error) {
	return b.dispatch(request{kind: kindField, field: field, text: text})
}

// Phrase is Field with a proximity allowance for multi-token text.
func (b *Builder) Phrase(field, text string, slop int) (query.Node, error) {
	return b.dispatch(request{kind: kindField, field: field, text: text, slop: slop})
}

// Prefix compiles a prefix query; text excludes the trailing *.
func (b *Builder) Prefix(field, text string) (query.Node, error) {
	return b.dispatch(request{kind: kindPrefix, field: field, text: text})
}

// Wildcard compiles an unanalysed wildcard query.
func (b *Builder) Wildcard(field, pattern string) (query.Node, error) {
	return b.dispatch(request{kind: kindWildcard, field: field, text: pattern})
}

// Fuzzy compiles an edit-distance query.
func (b *Builder) Fuzzy(field, text string, minSimilarity float64) (query.Node, error) {
	return b.dispatch(request{kind: kindFuzzy, field: field, text: text, minSimilarity: minSimilarity})
}

// Like compiles an SQL LIKE pattern: % is any run, _ one character and a
// backslash escapes either.
func (b *Builder) Like(field, pattern string) (query.Node, error) {
	return b.Field(field, LikeToWildcard(pattern))
}

// DoesNotMatch matches every document the field query does not.
func (b *Builder) DoesNotMatch(field, text string) (query.Node, error) {
	n, err := b.Field(field, text)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, 400, "field %s: %q has no tokens to exclude", field, text)
	}
	return query.NewBoolean(query.Clause{Occur: query.Must, Node: query.MatchAll{}}, query.Clause{Occur: query.MustNot, Node: n}), nil
}

// LikeToWildcard converts an SQL LIKE pattern into * and ? form.
func LikeToWildcard(pattern string) string {
	var sb strings.Builder
	escaped := false
	for _, r := range pattern {
		switch {
		case escaped:
			sb.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '%':
			sb.WriteByte('*')
		case r == '_':
			sb.WriteByte('?')
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func (b *Builder) dispatch(r request) (query.Node, error) {
	table := expandingHandlers
	if r.kind == kindField {
		table = fieldHandlers
	}
	if h, ok := table[r.field]; ok {
		return h(b, r)
	}
	if strings.HasPrefix(r.field, document.AttributePrefix) {
		return b.attribute(r)
	}
	if dt, ok := b.dataType(r.field); ok {
		return b.fanOut(r, prefixed(b.opts.Dictionary.PropertiesOfType(dt)))
	}
	return b.plain(r)
}

// plain builds the query for an already expanded field without any
// dictionary handling.
func (b *Builder) plain(r request) (query.Node, error) {
	switch r.kind {
	case kindPrefix:
		return &query.Prefix{Field: r.field, Prefix: b.lowerExpanded(r.text)}, nil
	case kindWildcard:
		return &query.Wildcard{Field: r.field, Pattern: b.lowerExpanded(r.text)}, nil
	case kindFuzzy:
		text := b.lowerExpanded(r.text)
		prefix := 0
		if tag, _, ok := tokenizer.SplitLocaleTerm(text); ok {
			prefix = len(tag) + 2
		}
		return &query.Fuzzy{Field: r.field, Text: text, MinSimilarity: r.minSimilarity, PrefixLength: prefix}, nil
	}
	return b.analyze(r.field, r.text, r.slop)
}

// lowerExpanded lower-cases the text of an expanded term, leaving a
// {locale} tag alone.
func (b *Builder) lowerExpanded(text string) string {
	if !b.opts.LowerCaseExpandedTerms {
		return text
	}
	if tag, body, ok := tokenizer.SplitLocaleTerm(text); ok {
		return "{" + tag + "}" + strings.ToLower(body)
	}
	return strings.ToLower(text)
}

func (b *Builder) dataType(field string) (dictionary.QName, bool) {
	if b.opts.Dictionary == nil || !strings.ContainsAny(field, ":{") {
		return dictionary.QName{}, false
	}
	q, err := dictionary.Resolve(b.opts.Namespaces, field)
	if err != nil || !b.opts.Dictionary.IsDataType(q) {
		return dictionary.QName{}, false
	}
	return q, true
}

func prefixed(names []dictionary.QName) []string {
	out := make([]string, len(names))
	for i, q := range names {
		out[i] = document.PropertyField(q)
	}
	return out
}

// fanOut ORs r over fields. A field yielding no query contributes the
// no-tokens sentinel so the disjunction keeps one clause per field.
func (b *Builder) fanOut(r request, fields []string) (query.Node, error) {
	out := query.NewBoolean()
	for _, f := range fields {
		n, err := b.dispatch(r.with(f, r.text))
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

func (b *Builder) text(r request) (query.Node, error) {
	fields := b.opts.TextAttributes
	if len(fields) == 0 {
		fields = prefixed(b.opts.Dictionary.PropertiesOfType(dictionary.TypeContent))
	}
	return b.fanOut(r, fields)
}

func (b *Builder) all(r request) (query.Node, error) {
	fields := b.opts.AllAttributes
	if len(fields) == 0 {
		fields = prefixed(b.opts.Dictionary.AllProperties())
	}
	return b.fanOut(r, fields)
}

func (b *Builder) exact(r request) (query.Node, error) {
	return &query.Term{Field: r.field, Text: r.text}, nil
}

func (b *Builder) path(r request) (query.Node, error) {
	return xpath.Compile(r.text, b.opts.Namespaces, r.field == FieldPathWithRepeats)
}

func (b *Builder) qname(r request) (query.Node, error) {
	return xpath.Compile("//"+r.text, b.opts.Namespaces, false)
}

// classQuery resolves a type or aspect name. TYPE and ASPECT match the
// class and every subclass; the EXACT forms match the class alone.
func (b *Builder) classQuery(r request) (query.Node, error) {
	aspect := r.field == document.FieldAspect || r.field == FieldExactAspect
	kind, field := "type", document.FieldType
	if aspect {
		kind, field = "aspect", document.FieldAspect
	}
	q, err := b.resolve(r.text)
	if err != nil {
		return nil, err
	}
	var def *dictionary.ClassDef
	var ok bool
	if aspect {
		def, ok = b.opts.Dictionary.Aspect(q)
	} else {
		def, ok = b.opts.Dictionary.Type(q)
	}
	if !ok {
		return nil, apperrors.Unresolved(kind, r.text)
	}
	if r.field == FieldExactType || r.field == FieldExactAspect {
		return &query.Term{Field: field, Text: def.Name.String()}, nil
	}
	subs := b.opts.Dictionary.SubTypes(def.Name)
	if aspect {
		subs = b.opts.Dictionary.SubAspects(def.Name)
	}
	out := query.NewBoolean()
	for _, s := range subs {
		out.Add(&query.Term{Field: field, Text: s.String()}, query.Should)
	}
	return out, nil
}

// resolve turns a {uri}local, prefix:local or bare name into a QName.
func (b *Builder) resolve(name string) (dictionary.QName, error) {
	q, err := dictionary.Resolve(b.opts.Namespaces, name)
	if err == nil {
		return q, nil
	}
	if prefix, _, found := strings.Cut(name, ":"); found && !strings.HasPrefix(name, "{") {
		if _, ok := b.opts.Namespaces.URI(prefix); !ok {
			return dictionary.QName{}, apperrors.Unresolved("namespace prefix", prefix)
		}
	}
	return dictionary.QName{}, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
}

// presence builds ISUNSET, ISNULL and ISNOTNULL from a wildcard that
// matches any indexed value of the named property.
func (b *Builder) presence(r request) (query.Node, error) {
	q, err := b.resolve(r.text)
	if err != nil {
		return nil, err
	}
	def, ok := b.opts.Dictionary.Property(q)
	if !ok {
		return b.analyze(r.field, r.text, r.slop)
	}
	present, err := b.dispatch(request{kind: kindWildcard, field: document.PropertyField(q), text: "*"})
	if err != nil {
		return nil, err
	}
	switch r.field {
	case FieldIsNull:
		return query.NewBoolean(
			query.Clause{Occur: query.Must, Node: query.MatchAll{}},
			query.Clause{Occur: query.MustNot, Node: present},
		), nil
	case FieldIsNotNull:
		return query.NewBoolean(query.Clause{Occur: query.Must, Node: present}), nil
	}
	classField := document.FieldType
	if c, ok := b.opts.Dictionary.Class(def.Container); ok && c.IsAspect {
		classField = document.FieldAspect
	}
	owner, err := b.dispatch(request{kind: kindField, field: classField, text: def.Container.String()})
	if err != nil {
		return nil, err
	}
	return query.NewBoolean(
		query.Clause{Occur: query.Must, Node: owner},
		query.Clause{Occur: query.MustNot, Node: present},
	), nil
}

// expandAttribute rewrites @prefix:local[.suffix] to @{uri}local[.suffix].
func (b *Builder) expandAttribute(field string) (string, error) {
	name := strings.TrimPrefix(field, document.AttributePrefix)
	suffix := contentSuffix(name)
	name = strings.TrimSuffix(name, suffix)
	if strings.HasPrefix(name, "{") {
		if _, err := dictionary.ParseQName(name); err != nil {
			return "", fmt.Errorf("%w: field %s: %v", apperrors.ErrInvalidInput, field, err)
		}
		return document.AttributePrefix + name + suffix, nil
	}
	q, err := b.resolve(name)
	if err != nil {
		return "", err
	}
	return document.PropertyField(q) + suffix, nil
}

func contentSuffix(name string) string {
	for _, s := range []string{document.SuffixMimetype, document.SuffixSize, document.SuffixLocale} {
		if strings.HasSuffix(name, s) {
			return s
		}
	}
	return ""
}

// property looks up the property of an expanded @{uri}local field.
func (b *Builder) property(field string) (*dictionary.PropertyDef, bool) {
	if b.opts.Dictionary == nil {
		return nil, false
	}
	q, err := dictionary.ParseQName(strings.TrimPrefix(field, document.AttributePrefix))
	if err != nil {
		return nil, false
	}
	return b.opts.Dictionary.Property(q)
}

func (b *Builder) locales() []locale.Locale {
	if len(b.opts.Locales) > 0 {
		return b.opts.Locales
	}
	return []locale.Locale{b.opts.Analyzers.DefaultLocale()}
}
