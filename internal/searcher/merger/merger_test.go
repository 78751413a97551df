package merger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/searcher/ranker"
)

func TestMergeKeepsBest(t *testing.T) {
	leaves := [][]ranker.ScoredDoc{
		{{ID: "a", Score: 1}, {ID: "b", Score: 3}},
		{{ID: "c", Score: 2}, {ID: "d", Score: 3}},
	}
	got := Merge(leaves, 3)
	require.Len(t, got, 3)
	require.Equal(t, []string{"b", "d", "c"}, []string{got[0].ID, got[1].ID, got[2].ID})

	all := Merge(leaves, 0)
	require.Len(t, all, 4)
	require.Equal(t, "a", all[3].ID)
}

func TestMergeTerms(t *testing.T) {
	closed := 0
	onClose := func() error { closed++; return nil }
	it := MergeTerms([]index.TermIterator{
		index.NewSliceTerms([]string{"a", "c", "e"}, onClose),
		index.NewSliceTerms([]string{"b", "c", "f"}, onClose),
		index.NewSliceTerms(nil, onClose),
	})
	var got []string
	for it.Next() {
		got = append(got, it.Term())
	}
	require.NoError(t, it.Err())
	require.Equal(t, []string{"a", "b", "c", "e", "f"}, got)
	require.NoError(t, it.Close())
	require.Equal(t, 3, closed)
}

func TestMergeTermsJoinsCloseErrors(t *testing.T) {
	boom := errors.New("boom")
	it := MergeTerms([]index.TermIterator{
		index.NewSliceTerms([]string{"a"}, func() error { return boom }),
	})
	require.True(t, errors.Is(it.Close(), boom))
}
