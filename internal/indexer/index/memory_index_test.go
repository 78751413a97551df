package index

import (
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/dictionary"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/locale"
)

func textDoc(t *testing.T, id string, values ...string) *document.Document {
	t.Helper()
	reg, err := tokenizer.NewRegistry(tokenizer.Options{DefaultLocale: locale.MustParse("en")})
	require.NoError(t, err)
	d := document.New(id)
	for _, v := range values {
		require.NoError(t, d.Add(document.Field{Name: "@name", Value: v, Stored: true, Indexed: true, Tokenised: true, Analyzer: reg.Text()}))
	}
	return d
}

func collectTerms(t *testing.T, r Reader, field, from string) []string {
	t.Helper()
	it, err := r.Terms(field, from)
	require.NoError(t, err)
	defer it.Close()
	var out []string
	for it.Next() {
		out = append(out, it.Term())
	}
	require.NoError(t, it.Err())
	return out
}

func TestMemoryIndexPostingsAndPositions(t *testing.T) {
	m := NewMemoryIndex()
	n, err := m.Add(textDoc(t, "a", "quick brown fox", "lazy dog"))
	require.NoError(t, err)
	require.Equal(t, uint32(0), n)

	postings, err := m.Postings("@name", "brown")
	require.NoError(t, err)
	require.Len(t, postings, 1)
	assert.Equal(t, []int32{1}, postings[0].Positions)

	// second value starts after the position gap
	postings, _ = m.Postings("@name", "lazy")
	assert.Equal(t, []int32{2 + positionGap + 1}, postings[0].Positions)

	assert.Equal(t, uint32(5), m.FieldLength("@name", 0))
	assert.Equal(t, uint64(5), m.SumFieldLength("@name"))

	postings, _ = m.Postings(document.FieldID, "a")
	require.Len(t, postings, 1)

	stored, err := m.Document(0)
	require.NoError(t, err)
	assert.Equal(t, "a", stored.ID())
	assert.Equal(t, []string{"quick brown fox", "lazy dog"}, stored["@name"])
}

func TestMemoryIndexTermsSortedFrom(t *testing.T) {
	m := NewMemoryIndex()
	_, err := m.Add(textDoc(t, "a", "delta alpha charlie bravo"))
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "bravo", "charlie", "delta"}, collectTerms(t, m, "@name", ""))
	assert.Equal(t, []string{"charlie", "delta"}, collectTerms(t, m, "@name", "c"))
	assert.Empty(t, collectTerms(t, m, "missing", ""))
}

func TestMemoryIndexReAddMasksEarlierCopy(t *testing.T) {
	m := NewMemoryIndex()
	_, err := m.Add(textDoc(t, "a", "one"))
	require.NoError(t, err)
	_, err = m.Add(textDoc(t, "a", "two"))
	require.NoError(t, err)
	assert.Equal(t, 1, m.DocCount())
	assert.Equal(t, []uint32{1}, m.Live().ToArray())

	assert.Equal(t, 1, m.Delete("a"))
	assert.Equal(t, 0, m.Delete("a"))
	assert.Equal(t, 0, m.DocCount())
}

func TestMemoryIndexNoTokensSentinel(t *testing.T) {
	reg, err := tokenizer.NewRegistry(tokenizer.Options{})
	require.NoError(t, err)
	d := document.New("a")
	d.Fields = append(d.Fields, document.Field{Name: "@size", Value: "abc", Indexed: true, Tokenised: true, Analyzer: reg.ForDataType(dictionary.TypeInt, true)})
	m := NewMemoryIndex()
	_, err = m.Add(d)
	require.NoError(t, err)
	freq, _ := m.DocFreq(document.FieldNoTokens, tokenizer.NoTokensText)
	assert.Equal(t, 1, freq)
}

func TestDeleteWhereAndMask(t *testing.T) {
	m := NewMemoryIndex()
	d := document.New("marker")
	d.Keyword(document.FieldAction, "STORE")
	_, err := m.Add(d)
	require.NoError(t, err)
	_, err = m.Add(textDoc(t, "b", "x"))
	require.NoError(t, err)

	masked := Mask(m, roaring.BitmapOf(1))
	assert.Equal(t, []uint32{0}, masked.Live().ToArray())
	require.NoError(t, masked.Close())

	assert.Equal(t, []string{"marker"}, m.DeleteWhere(document.FieldAction, "STORE"))
	assert.Equal(t, 1, m.DocCount())
}
