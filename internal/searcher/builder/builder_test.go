package builder

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/dictionary"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/locale"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/searcher/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/repository-search/pkg/errors"
)

const testModel = `
namespaces:
  p: http://example.com/p
types:
  - name: cm:cmobject
    properties:
      - name: cm:name
        type: d:text
        stored: true
      - name: p:name
        type: d:text
  - name: cm:content
    parent: cm:cmobject
    properties:
      - name: cm:content
        type: d:content
  - name: cm:folder
    parent: cm:cmobject
  - name: p:report
    parent: cm:content
    properties:
      - name: p:published
        type: d:datetime
      - name: p:pages
        type: d:int
aspects:
  - name: cm:titled
    properties:
      - name: cm:title
        type: d:mltext
`

type fixture struct {
	t    *testing.T
	dict *dictionary.Dictionary
	reg  *tokenizer.Registry
	idx  *index.MemoryIndex
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dict, err := dictionary.Load([]byte(testModel))
	require.NoError(t, err)
	reg, err := tokenizer.NewRegistry(tokenizer.Options{DefaultLocale: locale.MustParse("en")})
	require.NoError(t, err)
	return &fixture{t: t, dict: dict, reg: reg, idx: index.NewMemoryIndex()}
}

type node struct {
	id      string
	typ     string
	props   map[string]string
	ml      map[string]string
	content string
	locale  string
}

func (f *fixture) add(n node) {
	f.t.Helper()
	ns := f.dict.Namespaces()
	doc := document.New(n.id)
	typ, err := dictionary.Resolve(ns, n.typ)
	require.NoError(f.t, err)
	doc.Keyword(document.FieldType, typ.String())
	for name, v := range n.props {
		q, err := dictionary.Resolve(ns, name)
		require.NoError(f.t, err)
		def, ok := f.dict.Property(q)
		require.True(f.t, ok, name)
		require.NoError(f.t, doc.Add(document.Field{
			Name: document.PropertyField(q), Value: v, Indexed: true, Tokenised: true,
			Analyzer: f.reg.ForDataType(def.DataType, true),
		}))
	}
	title := document.PropertyField(dictionary.QName{URI: dictionary.ContentURI, Local: "title"})
	for tag, v := range n.ml {
		require.NoError(f.t, doc.Add(document.Field{
			Name: title, Value: tokenizer.TagLocale(locale.MustParse(tag), v), Indexed: true, Tokenised: true,
			Analyzer: f.reg.ForDataType(dictionary.TypeMLText, true),
		}))
	}
	if n.content != "" {
		field := document.PropertyField(dictionary.QName{URI: dictionary.ContentURI, Local: "content"})
		doc.Keyword(field+document.SuffixLocale, n.locale)
		require.NoError(f.t, doc.Add(document.Field{
			Name: field, Value: n.content, Indexed: true, Tokenised: true, Analyzer: f.reg.Text(),
		}))
	}
	_, err = f.idx.Add(doc)
	require.NoError(f.t, err)
}

func (f *fixture) searcher() *query.Searcher {
	return query.NewSearcher([]index.Reader{f.idx}, query.Options{})
}

func (f *fixture) builder(opts Options) *Builder {
	opts.Dictionary = f.dict
	opts.Analyzers = f.reg
	if opts.Terms == nil {
		opts.Terms = f.searcher()
	}
	return New(opts)
}

func (f *fixture) ids(n query.Node) []string {
	f.t.Helper()
	require.NotNil(f.t, n)
	s := f.searcher()
	hits, err := s.Search(context.Background(), n)
	require.NoError(f.t, err)
	docs, err := s.Collect(hits)
	require.NoError(f.t, err)
	out := []string{}
	for _, d := range docs {
		out = append(out, d.ID)
	}
	sort.Strings(out)
	return out
}

func must(t *testing.T) func(query.Node, error) query.Node {
	return func(n query.Node, err error) query.Node {
		t.Helper()
		require.NoError(t, err)
		return n
	}
}

func TestTypeIncludesSubtypes(t *testing.T) {
	f := newFixture(t)
	f.add(node{id: "folder", typ: "cm:folder"})
	f.add(node{id: "content", typ: "cm:content"})
	f.add(node{id: "report", typ: "p:report"})
	b := f.builder(Options{})

	require.Equal(t, []string{"folder"}, f.ids(must(t)(b.Field("TYPE", "cm:folder"))))
	require.Equal(t, []string{"content", "report"}, f.ids(must(t)(b.Field("TYPE", "cm:content"))))
	require.Equal(t, []string{"content"}, f.ids(must(t)(b.Field("EXACTTYPE", "cm:content"))))
	require.Equal(t, []string{"content", "folder", "report"},
		f.ids(must(t)(b.Field("TYPE", "{"+dictionary.ContentURI+"}cmobject"))))

	_, err := b.Field("TYPE", "cm:missing")
	var ue *apperrors.UnresolvedError
	require.True(t, errors.As(err, &ue))
	require.Equal(t, []string{"cm:missing"}, ue.Names)

	_, err = b.Field("ASPECT", "cm:folder")
	require.True(t, errors.Is(err, apperrors.ErrUnresolved))
}

func TestPrefixOnTextProperty(t *testing.T) {
	f := newFixture(t)
	f.add(node{id: "a", typ: "cm:content", props: map[string]string{"p:name": "foobar123"}})
	f.add(node{id: "b", typ: "cm:content", props: map[string]string{"p:name": "xfoobar"}})
	b := f.builder(Options{LowerCaseExpandedTerms: true})

	require.Equal(t, []string{"a"}, f.ids(must(t)(b.Prefix("@p:name", "FOO"))))
	require.Equal(t, []string{"a"}, f.ids(must(t)(b.Field("@p:name", "foo*"))))
	require.Equal(t, []string{"a", "b"}, f.ids(must(t)(b.Field("@p:name", "*foobar*"))))
	require.Equal(t, []string{"b"}, f.ids(must(t)(b.Like("@p:name", "_foo%"))))

	_, err := b.Field("@zz:name", "x")
	var ue *apperrors.UnresolvedError
	require.True(t, errors.As(err, &ue))
	require.Equal(t, []string{"zz"}, ue.Names)
}

func TestWildcardAcrossTokenBoundary(t *testing.T) {
	f := newFixture(t)
	f.add(node{id: "a", typ: "cm:content", props: map[string]string{"cm:name": "ab-cod"}})
	f.add(node{id: "b", typ: "cm:content", props: map[string]string{"cm:name": "ab-cat"}})
	b := f.builder(Options{})

	n := must(t)(b.Field("@cm:name", "ab-c*d"))
	phrase, ok := n.(*query.Phrase)
	require.True(t, ok, n.String())
	require.Equal(t, [][]string{{"ab"}, {"cod"}}, phrase.Terms)
	require.Equal(t, []string{"a"}, f.ids(n))

	// nothing matches the wildcard position
	n = must(t)(b.Field("@cm:name", "ab-x*z"))
	require.Empty(t, f.ids(n))
}

func TestFragmentsReconstructRawText(t *testing.T) {
	// the analyzer dropped "the"; the fragment restores it with its *
	raw := "the* fox"
	tokens, _ := addFragments(raw, []token{{text: "fox", start: 5, end: 8, incr: 1}}, nil, false)
	sortTokens(tokens)
	fused := fuse(raw, tokens, false)
	require.Equal(t, []string{"the*", "fox"}, texts(fused))
	require.Equal(t, raw[fused[0].start:fused[0].end], "the*")

	raw = "a*bc"
	tokens, _ = addFragments(raw, []token{{text: "a", start: 0, end: 1, incr: 1}}, nil, false)
	sortTokens(tokens)
	require.Equal(t, []string{"a*bc"}, texts(fuse(raw, tokens, false)))

	raw = "ab?"
	tokens, _ = addFragments(raw, nil, nil, false)
	sortTokens(tokens)
	require.Equal(t, []string{"ab?"}, texts(fuse(raw, tokens, false)))

	tokens, several := addFragments("ab*", nil, []locale.Pattern{"en", "en_*"}, true)
	require.True(t, several)
	sortTokens(tokens)
	require.Equal(t, []string{"{en}ab*", "{en_*}ab*"}, texts(fuse("ab*", tokens, true)))
}

func texts(tokens []token) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.text
	}
	return out
}

type sliceSource []string

func (s sliceSource) Terms(_, from string) (index.TermIterator, error) {
	i := sort.SearchStrings(s, from)
	return index.NewSliceTerms(s[i:], nil), nil
}

func TestWildcardTermsSkipLocalePrefixedTerms(t *testing.T) {
	f := newFixture(t)
	b := f.builder(Options{Terms: sliceSource{"fox", "foxes", "{en}fox", "{fr}fox"}})

	terms, err := b.wildcardTerms("f", "fo*")
	require.NoError(t, err)
	require.Equal(t, []string{"fox", "foxes"}, terms)

	terms, err = b.wildcardTerms("f", "*x")
	require.NoError(t, err)
	require.Equal(t, []string{"fox"}, terms)

	terms, err = b.wildcardTerms("f", "{en}fo*")
	require.NoError(t, err)
	require.Equal(t, []string{"{en}fox"}, terms)

	terms, err = b.wildcardTerms("f", "{*}fox")
	require.NoError(t, err)
	require.Equal(t, []string{"{en}fox", "{fr}fox"}, terms)

	b.opts.MaxExpansions = 1
	_, err = b.wildcardTerms("f", "*")
	require.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

func TestMultilingualLocales(t *testing.T) {
	f := newFixture(t)
	f.add(node{id: "en", typ: "cm:content", ml: map[string]string{"en": "quick fox"}})
	f.add(node{id: "gb", typ: "cm:content", ml: map[string]string{"en_GB": "quick colour"}})
	f.add(node{id: "fr", typ: "cm:content", ml: map[string]string{"fr": "quick renard"}})
	en, gb := locale.MustParse("en"), locale.MustParse("en_GB")

	exact := f.builder(Options{Locales: []locale.Locale{en}, MLAnalysisMode: locale.ExactLocale})
	require.Equal(t, []string{"en"}, f.ids(must(t)(exact.Field("@cm:title", "quick"))))
	require.Equal(t, []string{"en"}, f.ids(must(t)(exact.Field("@cm:title", "quick fox"))))
	require.Equal(t, []string{"en"}, f.ids(must(t)(exact.Prefix("@cm:title", "qui"))))

	contained := f.builder(Options{Locales: []locale.Locale{en}, MLAnalysisMode: locale.LocaleAndContained})
	require.Equal(t, []string{"en", "gb"}, f.ids(must(t)(contained.Field("@cm:title", "quick"))))
	require.Equal(t, []string{"gb"}, f.ids(must(t)(contained.Field("@cm:title", "quick colour"))))

	containing := f.builder(Options{Locales: []locale.Locale{gb}, MLAnalysisMode: locale.LocaleAndContaining})
	require.Equal(t, []string{"en", "gb"}, f.ids(must(t)(containing.Field("@cm:title", "quick"))))

	all := f.builder(Options{Locales: []locale.Locale{gb}, MLAnalysisMode: locale.AllLocales})
	require.Equal(t, []string{"en", "fr", "gb"}, f.ids(must(t)(all.Field("@cm:title", "quick"))))
}

func TestContentLocaleFilter(t *testing.T) {
	f := newFixture(t)
	f.add(node{id: "en", typ: "cm:content", content: "the quick fox", locale: "en"})
	f.add(node{id: "fr", typ: "cm:content", content: "le quick renard", locale: "fr"})
	en := []locale.Locale{locale.MustParse("en")}

	exact := f.builder(Options{Locales: en})
	require.Equal(t, []string{"en"}, f.ids(must(t)(exact.Field("TEXT", "quick"))))
	require.Equal(t, []string{"en"}, f.ids(must(t)(exact.Field("@cm:content", "quick"))))

	all := f.builder(Options{Locales: en, MLAnalysisMode: locale.AllLocales})
	require.Equal(t, []string{"en", "fr"}, f.ids(must(t)(all.Field("TEXT", "quick"))))
	require.Equal(t, []string{"en"}, f.ids(must(t)(all.Field("@cm:content.locale", "en"))))
}

func TestFanOutKeepsEmptyClauses(t *testing.T) {
	f := newFixture(t)
	b := f.builder(Options{TextAttributes: []string{"@cm:name", "@p:name"}})
	n := must(t)(b.Field("TEXT", "  "))
	bq, ok := n.(*query.Boolean)
	require.True(t, ok)
	require.Len(t, bq.Clauses, 2)
	for _, c := range bq.Clauses {
		require.Equal(t, query.NoTokens{}, c.Node)
	}
}

func TestTextAndAllFanOutThroughHandlers(t *testing.T) {
	for _, field := range []string{FieldText, FieldAll} {
		require.NotNil(t, fieldHandlers[field], field)
		require.NotNil(t, expandingHandlers[field], field)
	}

	f := newFixture(t)
	f.add(node{id: "a", typ: "cm:content", props: map[string]string{"p:name": "foobar123"}})
	f.add(node{id: "b", typ: "cm:content", props: map[string]string{"cm:name": "minutes"}})
	b := f.builder(Options{TextAttributes: []string{"@cm:name", "@p:name"}})

	require.Equal(t, []string{"a"}, f.ids(must(t)(b.Prefix("TEXT", "foo"))))
	require.Equal(t, []string{"b"}, f.ids(must(t)(b.Field("TEXT", "minutes"))))
}

func TestPresence(t *testing.T) {
	f := newFixture(t)
	f.add(node{id: "named", typ: "cm:content", props: map[string]string{"cm:name": "report"}})
	f.add(node{id: "folder", typ: "cm:folder"})
	f.add(node{id: "other", typ: "p:report", props: map[string]string{"p:pages": "3"}})
	f.add(node{id: "blank", typ: "p:report"})
	b := f.builder(Options{})

	require.Equal(t, []string{"named"}, f.ids(must(t)(b.Field("ISNOTNULL", "cm:name"))))
	require.Equal(t, []string{"blank", "folder", "other"}, f.ids(must(t)(b.Field("ISNULL", "cm:name"))))
	require.Equal(t, []string{"blank"}, f.ids(must(t)(b.Field("ISUNSET", "p:pages"))))
	require.Equal(t, []string{"blank", "folder", "other"}, f.ids(must(t)(b.Field("ISUNSET", "cm:name"))))
}

func TestWellKnownFields(t *testing.T) {
	f := newFixture(t)
	b := f.builder(Options{})

	require.Equal(t, &query.Term{Field: "ID", Text: "store://x/1"}, must(t)(b.Field("ID", "store://x/1")))
	path, ok := must(t)(b.Field("PATH_WITH_REPEATS", "/cm:a//*")).(*query.Path)
	require.True(t, ok)
	require.True(t, path.Repeats)
	qn, ok := must(t)(b.Field("QNAME", "cm:a")).(*query.Path)
	require.True(t, ok)
	require.Equal(t, query.DescendantOrSelf, qn.Steps[0].Axis)

	n := must(t)(b.DoesNotMatch("ID", "x"))
	require.Equal(t, "+*:* -ID:x", n.String())
}

func TestRanges(t *testing.T) {
	f := newFixture(t)
	f.add(node{id: "p2", typ: "p:report", props: map[string]string{"p:pages": "2"}})
	f.add(node{id: "p10", typ: "p:report", props: map[string]string{"p:pages": "10"}})
	f.add(node{id: "p300", typ: "p:report", props: map[string]string{"p:pages": "300"}})
	b := f.builder(Options{CaseInsensitiveRanges: true})

	require.Equal(t, []string{"p10", "p2"}, f.ids(must(t)(b.Range("@p:pages", "1", "20", true, true))))
	require.Equal(t, []string{"p300"}, f.ids(must(t)(b.Range("@p:pages", "10", "*", false, true))))

	n := must(t)(b.Range("@cm:name", "*", "M", true, false))
	require.Equal(t, &query.Range{Field: "@{" + dictionary.ContentURI + "}name", Upper: "m", IncludeLower: true}, n)

	require.Equal(t, query.NoTokens{}, must(t)(b.Range("@p:published", "yesterday", "max", true, true)))
}

func TestLikeToWildcard(t *testing.T) {
	require.Equal(t, "10%?a*", LikeToWildcard(`10\%_a%`))
	require.Equal(t, "a_b", LikeToWildcard(`a\_b`))
}
