package query

import (
	"context"
	"sort"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/blevesearch/bleve/v2/search"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/repository-search/pkg/errors"
)

func (q *Term) eval(_ context.Context, s *Searcher, leaf index.Reader) (*Hits, error) {
	postings, err := leaf.Postings(q.Field, q.Text)
	if err != nil {
		return nil, apperrors.IndexIO("reading postings", err)
	}
	if len(postings) == 0 {
		return emptyHits(), nil
	}
	df, err := s.docFreq(q.Field, q.Text)
	if err != nil {
		return nil, err
	}
	stats := s.fieldStats(q.Field)
	idf := ranker.TermWeight(stats, df)
	docs := roaring.New()
	scores := make(map[uint32]float64, len(postings))
	for _, p := range postings {
		docs.Add(p.Doc)
		scores[p.Doc] = ranker.Score(stats, idf, p.Frequency(), leaf.FieldLength(q.Field, p.Doc))
	}
	return scoredHits(docs, scores), nil
}

// expand unions the postings of every term of field accepted by match,
// starting the scan at from and stopping at the first term without
// prefix. Matched documents score 1.
func expand(ctx context.Context, s *Searcher, leaf index.Reader, field, prefix string, match func(term string) bool) (*Hits, error) {
	it, err := leaf.Terms(field, prefix)
	if err != nil {
		return nil, apperrors.IndexIO("enumerating terms", err)
	}
	defer it.Close()
	docs := roaring.New()
	n := 0
	for it.Next() {
		term := it.Term()
		if !strings.HasPrefix(term, prefix) {
			break
		}
		if !match(term) {
			continue
		}
		n++
		if err := s.checkExpansions(field, n); err != nil {
			return nil, err
		}
		if n%256 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err := addPostings(leaf, field, term, docs); err != nil {
			return nil, err
		}
	}
	if err := it.Err(); err != nil {
		return nil, apperrors.IndexIO("enumerating terms", err)
	}
	return constantHits(docs, 1), nil
}

func addPostings(leaf index.Reader, field, term string, docs *roaring.Bitmap) error {
	postings, err := leaf.Postings(field, term)
	if err != nil {
		return apperrors.IndexIO("reading postings", err)
	}
	for _, p := range postings {
		docs.Add(p.Doc)
	}
	return nil
}

func (q *Wildcard) eval(ctx context.Context, s *Searcher, leaf index.Reader) (*Hits, error) {
	prefix := LiteralPrefix(q.Pattern)
	return expand(ctx, s, leaf, q.Field, prefix, func(term string) bool {
		return MatchWildcard(q.Pattern, term)
	})
}

func (q *Prefix) eval(ctx context.Context, s *Searcher, leaf index.Reader) (*Hits, error) {
	return expand(ctx, s, leaf, q.Field, q.Prefix, func(string) bool { return true })
}

func (q *Fuzzy) eval(ctx context.Context, s *Searcher, leaf index.Reader) (*Hits, error) {
	prefix := ""
	if q.PrefixLength > 0 && q.PrefixLength <= len(q.Text) {
		prefix = q.Text[:q.PrefixLength]
	}
	best := make(map[string]float64)
	h, err := expand(ctx, s, leaf, q.Field, prefix, func(term string) bool {
		sim := Similarity(q.Text, term)
		if sim < q.MinSimilarity {
			return false
		}
		best[term] = sim
		return true
	})
	if err != nil {
		return nil, err
	}
	scores := make(map[uint32]float64, h.Docs.GetCardinality())
	for term, sim := range best {
		postings, err := leaf.Postings(q.Field, term)
		if err != nil {
			return nil, apperrors.IndexIO("reading postings", err)
		}
		for _, p := range postings {
			if sim > scores[p.Doc] {
				scores[p.Doc] = sim
			}
		}
	}
	return scoredHits(h.Docs, scores), nil
}

// Similarity is 1 - edit distance over the shorter length, floored at 0.
func Similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	shorter := len(ra)
	if len(rb) < shorter {
		shorter = len(rb)
	}
	if shorter == 0 {
		if len(ra) == len(rb) {
			return 1
		}
		return 0
	}
	sim := 1 - float64(search.LevenshteinDistance(a, b))/float64(shorter)
	if sim < 0 {
		return 0
	}
	return sim
}

func (q *Range) eval(ctx context.Context, s *Searcher, leaf index.Reader) (*Hits, error) {
	it, err := leaf.Terms(q.Field, q.Lower)
	if err != nil {
		return nil, apperrors.IndexIO("enumerating terms", err)
	}
	defer it.Close()
	docs := roaring.New()
	n := 0
	for it.Next() {
		term := it.Term()
		if q.Lower != "" && term == q.Lower && !q.IncludeLower {
			continue
		}
		if q.Upper != "" {
			if term > q.Upper || term == q.Upper && !q.IncludeUpper {
				break
			}
		}
		n++
		if n%256 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err := addPostings(leaf, q.Field, term, docs); err != nil {
			return nil, err
		}
	}
	if err := it.Err(); err != nil {
		return nil, apperrors.IndexIO("enumerating terms", err)
	}
	return constantHits(docs, 1), nil
}

func (MatchAll) eval(_ context.Context, _ *Searcher, leaf index.Reader) (*Hits, error) {
	return constantHits(leaf.Live().Clone(), 1), nil
}

func (MatchNone) eval(context.Context, *Searcher, index.Reader) (*Hits, error) {
	return emptyHits(), nil
}

func (NoTokens) eval(context.Context, *Searcher, index.Reader) (*Hits, error) {
	return emptyHits(), nil
}

func (q *Boost) eval(ctx context.Context, s *Searcher, leaf index.Reader) (*Hits, error) {
	h, err := q.Node.eval(ctx, s, leaf)
	if err != nil {
		return nil, err
	}
	scores := make(map[uint32]float64, h.Docs.GetCardinality())
	it := h.Docs.Iterator()
	for it.HasNext() {
		doc := it.Next()
		scores[doc] = h.Score(doc) * q.Boost
	}
	return scoredHits(h.Docs, scores), nil
}

func (q *Boolean) eval(ctx context.Context, s *Searcher, leaf index.Reader) (*Hits, error) {
	var required *roaring.Bitmap
	var scoring, optional []*Hits
	prohibited := roaring.New()
	for _, c := range q.Clauses {
		h, err := c.Node.eval(ctx, s, leaf)
		if err != nil {
			return nil, err
		}
		switch c.Occur {
		case Must, Filter:
			if required == nil {
				required = h.Docs.Clone()
			} else {
				required.And(h.Docs)
			}
			if c.Occur == Must {
				scoring = append(scoring, h)
			}
		case Should:
			optional = append(optional, h)
		case MustNot:
			prohibited.Or(h.Docs)
		}
	}

	minShould := q.MinShould
	var docs *roaring.Bitmap
	switch {
	case required != nil:
		docs = required
	case len(optional) > 0:
		if minShould < 1 {
			minShould = 1
		}
		docs = roaring.New()
		for _, h := range optional {
			docs.Or(h.Docs)
		}
	default:
		return emptyHits(), nil
	}
	if minShould > 1 || required != nil && minShould > 0 {
		kept := roaring.New()
		it := docs.Iterator()
		for it.HasNext() {
			doc := it.Next()
			n := 0
			for _, h := range optional {
				if h.Docs.Contains(doc) {
					n++
				}
			}
			if n >= minShould {
				kept.Add(doc)
			}
		}
		docs = kept
	}
	docs.AndNot(prohibited)

	scores := make(map[uint32]float64, docs.GetCardinality())
	it := docs.Iterator()
	for it.HasNext() {
		doc := it.Next()
		var score float64
		for _, h := range scoring {
			score += h.Score(doc)
		}
		for _, h := range optional {
			score += h.Score(doc)
		}
		scores[doc] = score
	}
	return scoredHits(docs, scores), nil
}

func (q *Phrase) eval(ctx context.Context, s *Searcher, leaf index.Reader) (*Hits, error) {
	if len(q.Terms) == 0 {
		return emptyHits(), nil
	}
	slots := make([]map[uint32][]int32, len(q.Terms))
	var docs *roaring.Bitmap
	var idf float64
	stats := s.fieldStats(q.Field)
	for i, alts := range q.Terms {
		byDoc := make(map[uint32][]int32)
		present := roaring.New()
		for _, term := range alts {
			postings, err := leaf.Postings(q.Field, term)
			if err != nil {
				return nil, apperrors.IndexIO("reading postings", err)
			}
			if len(postings) > 0 {
				df, err := s.docFreq(q.Field, term)
				if err != nil {
					return nil, err
				}
				idf += ranker.TermWeight(stats, df) / float64(len(alts))
			}
			for _, p := range postings {
				byDoc[p.Doc] = append(byDoc[p.Doc], p.Positions...)
				present.Add(p.Doc)
			}
		}
		for doc, ps := range byDoc {
			sort.Slice(ps, func(a, b int) bool { return ps[a] < ps[b] })
			byDoc[doc] = ps
		}
		slots[i] = byDoc
		if docs == nil {
			docs = present
		} else {
			docs.And(present)
		}
		if docs.IsEmpty() {
			return emptyHits(), nil
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	matched := roaring.New()
	scores := make(map[uint32]float64)
	lists := make([][]int32, len(slots))
	it := docs.Iterator()
	for it.HasNext() {
		doc := it.Next()
		for i := range slots {
			lists[i] = slots[i][doc]
		}
		freq := q.frequency(lists)
		if freq <= 0 {
			continue
		}
		matched.Add(doc)
		tf := int(freq + 0.5)
		if tf < 1 {
			tf = 1
		}
		scores[doc] = ranker.Score(stats, idf, tf, leaf.FieldLength(q.Field, doc))
	}
	return scoredHits(matched, scores), nil
}

// frequency counts exact phrase occurrences, or for sloppy phrases
// weighs the tightest match by 1/(distance+1).
func (q *Phrase) frequency(lists [][]int32) float64 {
	if q.Slop == 0 {
		n := 0
		for _, p0 := range lists[0] {
			start := int(p0) - q.position(0)
			ok := true
			for i := 1; i < len(lists) && ok; i++ {
				ok = containsPosition(lists[i], int32(start+q.position(i)))
			}
			if ok {
				n++
			}
		}
		return float64(n)
	}
	norm := make([][]int32, len(lists))
	for i, l := range lists {
		shifted := make([]int32, len(l))
		for j, p := range l {
			shifted[j] = p - int32(q.position(i))
		}
		norm[i] = shifted
	}
	width, ok := smallestRange(norm)
	if !ok || width > q.Slop {
		return 0
	}
	return 1 / float64(width+1)
}

func containsPosition(sorted []int32, p int32) bool {
	i := sort.Search(len(sorted), func(i int) bool { return sorted[i] >= p })
	return i < len(sorted) && sorted[i] == p
}

// smallestRange is the narrowest window holding one value of every
// sorted list.
func smallestRange(lists [][]int32) (int, bool) {
	idx := make([]int, len(lists))
	for _, l := range lists {
		if len(l) == 0 {
			return 0, false
		}
	}
	best := -1
	for {
		lo, hi, loList := lists[0][idx[0]], lists[0][idx[0]], 0
		for i := 1; i < len(lists); i++ {
			v := lists[i][idx[i]]
			if v < lo {
				lo, loList = v, i
			}
			if v > hi {
				hi = v
			}
		}
		if w := int(hi - lo); best < 0 || w < best {
			best = w
		}
		idx[loList]++
		if idx[loList] >= len(lists[loList]) {
			return best, true
		}
	}
}
