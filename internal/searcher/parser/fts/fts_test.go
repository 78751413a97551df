package fts

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/dictionary"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/locale"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/searcher/builder"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/searcher/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/repository-search/pkg/errors"
)

func TestParse(t *testing.T) {
	cases := []struct {
		src  string
		conn Connective
		want string
	}{
		{"a", ConnectiveAND, "a"},
		{"a b", ConnectiveAND, "(a AND b)"},
		{"a b", ConnectiveOR, "(a OR b)"},
		{"a OR b c", ConnectiveAND, "((a OR b) AND c)"},
		{"a AND b OR c", ConnectiveAND, "((a AND b) OR c)"},
		{"a && b || c", ConnectiveAND, "((a AND b) OR c)"},
		{"-a b", ConnectiveAND, "(NOT a AND b)"},
		{"!a", ConnectiveAND, "NOT a"},
		{"NOT a", ConnectiveAND, "NOT a"},
		{"+a |b", ConnectiveAND, "(a AND b)"},
		{"=foo", ConnectiveAND, "=foo"},
		{"cm:name:foo", ConnectiveAND, "cm:name:foo"},
		{`name:"big apple"`, ConnectiveAND, `name:"big apple"`},
		{`=cm:name:"x y"`, ConnectiveAND, "=cm:name:x y"},
		{"cm:created:[2000 TO 2001>", ConnectiveAND, "cm:created:[2000 TO 2001>"},
		{"p:pages:1..5", ConnectiveAND, "p:pages:[1 TO 5]"},
		{"(a OR b) AND c", ConnectiveAND, "((a OR b) AND c)"},
		{"TEXT:ab*", ConnectiveAND, "TEXT:ab*"},
		{`@{http://example.com/p}name:x`, ConnectiveAND, "@{http://example.com/p}name:x"},
	}
	for _, tc := range cases {
		c, err := Parse(tc.src, tc.conn)
		require.NoError(t, err, tc.src)
		assert.Equal(t, tc.want, c.String(), tc.src)
	}
}

func TestParseRejectsUnsupported(t *testing.T) {
	for _, src := range []string{"", "a AND", "(a", "a)", "big *(2) apple", "name:(a b)", "~a", "[a TO b", "=[a TO b]", "a]"} {
		_, err := Parse(src, ConnectiveAND)
		require.ErrorIs(t, err, apperrors.ErrParse, src)
	}
}

func registry(t *testing.T) *tokenizer.Registry {
	t.Helper()
	reg, err := tokenizer.NewRegistry(tokenizer.Options{DefaultLocale: locale.MustParse("en")})
	require.NoError(t, err)
	return reg
}

func TestCompile(t *testing.T) {
	e := NewEngine(builder.Options{Dictionary: dictionary.New(), Analyzers: registry(t)})
	opts := QueryOptions{DefaultField: "NAME", Templates: map[string][]string{"who": {"ID", "PARENT"}}}

	cases := []struct {
		src  string
		conn Connective
		want string
	}{
		{"a", ConnectiveAND, "NAME:a"},
		{"a -b", ConnectiveAND, "+NAME:a -NAME:b"},
		{"-b", ConnectiveAND, "+*:* -NAME:b"},
		{"a b", ConnectiveOR, "NAME:a NAME:b"},
		{"ab*", ConnectiveAND, "NAME:ab*"},
		{"a?c", ConnectiveAND, "NAME:a?c"},
		{"who:x", ConnectiveAND, "ID:x PARENT:x"},
		{"ID:x OR PARENT:y", ConnectiveAND, "ID:x PARENT:y"},
		{"NAME:[a TO c>", ConnectiveAND, "NAME:[a TO c}"},
	}
	for _, tc := range cases {
		o := opts
		o.Connective = tc.conn
		n, err := e.Query(tc.src, o)
		require.NoError(t, err, tc.src)
		assert.Equal(t, tc.want, n.String(), tc.src)
	}

	n, err := e.Compile(&Like{Property: "NAME", Pattern: "a%b_"}, opts)
	require.NoError(t, err)
	assert.Equal(t, "NAME:a*b?", n.String())
}

func TestQueryAgainstIndex(t *testing.T) {
	dict, err := dictionary.Load([]byte(`
namespaces:
  p: http://example.com/p
types:
  - name: p:doc
    properties:
      - name: p:name
        type: d:text
      - name: p:title
        type: d:text
`))
	require.NoError(t, err)
	reg := registry(t)
	name := document.PropertyField(dictionary.NewQName("http://example.com/p", "name"))
	title := document.PropertyField(dictionary.NewQName("http://example.com/p", "title"))

	m := index.NewMemoryIndex()
	docs := []struct{ id, name, title string }{
		{"a", "foobar123", "annual report"},
		{"b", "xfoobar", "quarterly report"},
		{"c", "Foo", "minutes"},
	}
	for _, d := range docs {
		doc := document.New(d.id)
		require.NoError(t, doc.Add(document.Field{Name: name, Value: d.name, Indexed: true, Tokenised: true, Analyzer: reg.Text()}))
		require.NoError(t, doc.Add(document.Field{Name: title, Value: d.title, Indexed: true, Tokenised: true, Analyzer: reg.Text()}))
		_, err := m.Add(doc)
		require.NoError(t, err)
	}
	s := query.NewSearcher([]index.Reader{m}, query.Options{})
	e := NewEngine(builder.Options{Dictionary: dict, Analyzers: reg, Terms: s})
	opts := QueryOptions{Templates: map[string][]string{"any": {"p:name", "p:title"}}}

	search := func(src string) []string {
		n, err := e.Query(src, opts)
		require.NoError(t, err, src)
		hits, err := s.Search(context.Background(), n)
		require.NoError(t, err)
		found, err := s.Collect(hits)
		require.NoError(t, err)
		var ids []string
		for _, d := range found {
			ids = append(ids, d.ID)
		}
		sort.Strings(ids)
		return ids
	}

	assert.Equal(t, []string{"a", "c"}, search("p:name:foo*"))
	assert.Equal(t, []string{"a"}, search(`p:title:"annual report"`))
	assert.Equal(t, []string{"a", "b"}, search("p:title:report"))
	assert.Equal(t, []string{"b"}, search("p:title:report -p:name:foo*"))
	assert.Equal(t, []string{"c"}, search("any:minutes"))
	assert.Equal(t, []string{"a", "c"}, search("any:foo* OR any:annual"))

	opts.DefaultField = "p:title"
	assert.Equal(t, []string{"a"}, search("annual"))
	assert.Equal(t, []string{"a", "b"}, search("report"))
	opts.DefaultField = "@p:name"
	assert.Equal(t, []string{"c"}, search("foo"))
}
