package segment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/tokenizer"
)

func memoryWith(t *testing.T, docs map[string]string) *index.MemoryIndex {
	t.Helper()
	reg, err := tokenizer.NewRegistry(tokenizer.Options{})
	require.NoError(t, err)
	m := index.NewMemoryIndex()
	for _, id := range []string{"a", "b", "c"} {
		text, ok := docs[id]
		if !ok {
			continue
		}
		d := document.New(id)
		require.NoError(t, d.Add(document.Field{Name: "@body", Value: text, Stored: true, Indexed: true, Tokenised: true, Analyzer: reg.Text()}))
		_, err := m.Add(d)
		require.NoError(t, err)
	}
	return m
}

func TestWriteAndRead(t *testing.T) {
	dir := t.TempDir()
	m := memoryWith(t, map[string]string{"a": "red green", "b": "green blue", "c": "blue"})
	m.Delete("b")

	info, err := NewWriter(dir).Write(m)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), info.DocCount)

	r, err := OpenReader(filepath.Join(dir, info.Name))
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, uint32(2), r.MaxDoc())
	assert.Equal(t, []string{"@body", document.FieldID}, r.Fields())

	postings, err := r.Postings("@body", "blue")
	require.NoError(t, err)
	require.Len(t, postings, 1)
	assert.Equal(t, uint32(1), postings[0].Doc)

	stored, err := r.Document(1)
	require.NoError(t, err)
	assert.Equal(t, "c", stored.ID())
	assert.Equal(t, uint32(2), r.FieldLength("@body", 0))
	assert.Equal(t, uint64(3), r.SumFieldLength("@body"))

	freq, err := r.DocFreq("@body", "green")
	require.NoError(t, err)
	assert.Equal(t, 1, freq)
}

func TestMergeRenumbers(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	first := memoryWith(t, map[string]string{"a": "alpha"})
	second := memoryWith(t, map[string]string{"b": "alpha beta"})

	info, err := w.Write(first, second)
	require.NoError(t, err)
	r, err := OpenReader(filepath.Join(dir, info.Name))
	require.NoError(t, err)
	defer r.Close()

	postings, err := r.Postings("@body", "alpha")
	require.NoError(t, err)
	require.Len(t, postings, 2)
	assert.Equal(t, []uint32{0, 1}, []uint32{postings[0].Doc, postings[1].Doc})
}

func TestIteratorPinsFile(t *testing.T) {
	dir := t.TempDir()
	info, err := NewWriter(dir).Write(memoryWith(t, map[string]string{"a": "one two three"}))
	require.NoError(t, err)
	r, err := OpenReader(filepath.Join(dir, info.Name))
	require.NoError(t, err)

	it, err := r.Terms("@body", "t")
	require.NoError(t, err)
	assert.Equal(t, 1, r.OpenIterators())
	require.NoError(t, r.Close())

	// the file is still readable while the iterator is open
	var terms []string
	for it.Next() {
		terms = append(terms, it.Term())
	}
	assert.Equal(t, []string{"three", "two"}, terms)
	_, err = r.Postings("@body", "two")
	require.NoError(t, err)

	require.NoError(t, it.Close())
	assert.Equal(t, 0, r.OpenIterators())
	_, err = r.Terms("@body", "")
	require.Error(t, err)
}

func TestRejectsCorruptSegment(t *testing.T) {
	dir := t.TempDir()
	info, err := NewWriter(dir).Write(memoryWith(t, map[string]string{"a": "x"}))
	require.NoError(t, err)
	path := filepath.Join(dir, info.Name)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-FooterSize-2] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0644))

	_, err = OpenReader(path)
	require.Error(t, err)

	_, err = NewWriter(dir).Write(index.NewMemoryIndex())
	require.Error(t, err)
}
