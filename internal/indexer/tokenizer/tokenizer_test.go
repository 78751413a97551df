package tokenizer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/dictionary"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/locale"
)

func newTestRegistry(t testing.TB) *Registry {
	t.Helper()
	r, err := NewRegistry(Options{DefaultLocale: locale.MustParse("en")})
	require.NoError(t, err)
	return r
}

func texts(tokens []Token) []string {
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		out[i] = tok.Text
	}
	return out
}

func TestTextAnalyzerOffsetsAndIncrements(t *testing.T) {
	r := newTestRegistry(t)
	tokens := Collect(r.Text().Analyze("Foo-bar baz*"))
	require.Equal(t, []string{"foo", "bar", "baz"}, texts(tokens))
	require.Equal(t, 0, tokens[0].Start)
	require.Equal(t, 3, tokens[0].End)
	require.Equal(t, 4, tokens[1].Start)
	require.Equal(t, 8, tokens[2].Start)
	for _, tok := range tokens {
		require.Equal(t, 1, tok.PositionIncrement)
	}
}

func TestKeywordKeepsValue(t *testing.T) {
	r := newTestRegistry(t)
	tokens := Collect(r.ForDataType(dictionary.TypeNodeRef, true).Analyze("workspace://SpacesStore/A1"))
	require.Equal(t, []string{"workspace://SpacesStore/A1"}, texts(tokens))
}

func TestNumericSortable(t *testing.T) {
	require.Less(t, EncodeInt(-5), EncodeInt(3))
	require.Less(t, EncodeInt(3), EncodeInt(40))
	require.Less(t, EncodeFloat(-2.5), EncodeFloat(-1))
	require.Less(t, EncodeFloat(-1), EncodeFloat(0.5))
	require.Less(t, EncodeFloat(0.5), EncodeFloat(10))

	r := newTestRegistry(t)
	tokens := Collect(r.ForDataType(dictionary.TypeInt, true).Analyze("abc"))
	require.Len(t, tokens, 1)
	require.Equal(t, TypeNoTokens, tokens[0].Type)
}

func TestDateAnalyzerEmitsComponents(t *testing.T) {
	r := newTestRegistry(t)
	tokens := Collect(r.ForDataType(dictionary.TypeDatetime, true).Analyze("2007-03-09T04:05:06.007Z"))
	require.Equal(t, []string{"YE2007", "MO03", "DA09", "HO04", "MI05", "SE06", "MS007"}, texts(tokens))
	require.Equal(t, 1, tokens[0].PositionIncrement)
	require.Equal(t, 0, tokens[6].PositionIncrement)

	d, err := ParseDate("2007-03-09")
	require.NoError(t, err)
	require.Equal(t, time.Date(2007, 3, 9, 0, 0, 0, 0, time.UTC), d)
}

func TestMLAnalyzerTagsAndDuplicates(t *testing.T) {
	r := newTestRegistry(t)

	tokens := Collect(r.ForDataType(dictionary.TypeMLText, true).Analyze(TagLocale(locale.MustParse("fr_CA"), "Bonjour monde")))
	require.Equal(t, []string{"{fr_CA}bonjour", "{fr_CA}monde"}, texts(tokens))
	require.Equal(t, 7, tokens[0].Start)

	tokens = Collect(r.ForMLQuery(true, locale.LocaleAndContaining).Analyze(TagLocale(locale.MustParse("en_GB"), "colour")))
	require.Equal(t, []string{"{en_GB}colour", "{en}colour", "{}colour"}, texts(tokens))
	require.Equal(t, []int{1, 0, 0}, []int{tokens[0].PositionIncrement, tokens[1].PositionIncrement, tokens[2].PositionIncrement})

	// untagged text falls back to the default locale
	tokens = Collect(r.ForDataType(dictionary.TypeMLText, true).Analyze("hello"))
	require.Equal(t, []string{"{en}hello"}, texts(tokens))
}

func TestSplitLocaleTerm(t *testing.T) {
	tag, text, ok := SplitLocaleTerm("{en_GB}colour")
	require.True(t, ok)
	require.Equal(t, "en_GB", tag)
	require.Equal(t, "colour", text)

	_, _, ok = SplitLocaleTerm("plain")
	require.False(t, ok)
}

func TestEnglishStemmingOption(t *testing.T) {
	r, err := NewRegistry(Options{TextAnalyzer: "en"})
	require.NoError(t, err)
	tokens := Collect(r.Text().Analyze("running"))
	require.Equal(t, []string{"run"}, texts(tokens))

	_, err = NewRegistry(Options{TextAnalyzer: "klingon"})
	require.Error(t, err)
}
