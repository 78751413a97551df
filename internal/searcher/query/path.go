package query

import (
	"context"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/dictionary"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/repository-search/pkg/errors"
)

// Axis is the direction of a path step.
type Axis int

const (
	// Child consumes one path element that passes the name test.
	Child Axis = iota
	// DescendantOrSelf consumes any number of elements, including none.
	DescendantOrSelf
	// Self consumes nothing.
	Self
)

// Step is one location step. For Child steps AnyNamespace and a Local of
// "*" widen the name test.
type Step struct {
	Axis         Axis
	Name         dictionary.QName
	AnyNamespace bool
}

// AnyLocal is the local name matching every element.
const AnyLocal = "*"

func (st Step) matches(e dictionary.QName) bool {
	if !st.AnyNamespace && st.Name.URI != e.URI {
		return false
	}
	return st.Name.Local == AnyLocal || st.Name.Local == e.Local
}

func (st Step) exact() bool {
	return st.Axis == Child && !st.AnyNamespace && st.Name.Local != AnyLocal
}

func (st Step) String() string {
	switch st.Axis {
	case DescendantOrSelf:
		return "/"
	case Self:
		return "/."
	}
	if st.AnyNamespace {
		return "/" + st.Name.Local
	}
	return "/" + st.Name.String()
}

// Path matches documents by their primary and secondary paths from the
// store root. With Repeats a document scores once per matching path.
type Path struct {
	Steps   []Step
	Repeats bool
}

// Field is the pseudo-field the query was written against.
func (q *Path) Field() string {
	if q.Repeats {
		return "PATH_WITH_REPEATS"
	}
	return document.FieldPath
}

func (q *Path) String() string {
	var sb strings.Builder
	for _, st := range q.Steps {
		sb.WriteString(st.String())
	}
	if sb.Len() == 0 {
		sb.WriteString("/")
	}
	return q.Field() + ":\"" + sb.String() + "\""
}

func (q *Path) literalPrefix() string {
	var sb strings.Builder
	for _, st := range q.Steps {
		if !st.exact() {
			break
		}
		sb.WriteString("/")
		sb.WriteString(st.Name.String())
	}
	if sb.Len() == 0 {
		return "/"
	}
	return sb.String()
}

func (q *Path) eval(ctx context.Context, s *Searcher, leaf index.Reader) (*Hits, error) {
	prefix := q.literalPrefix()
	it, err := leaf.Terms(document.FieldPath, prefix)
	if err != nil {
		return nil, apperrors.IndexIO("enumerating paths", err)
	}
	defer it.Close()
	docs := roaring.New()
	counts := make(map[uint32]float64)
	n := 0
	for it.Next() {
		term := it.Term()
		if !strings.HasPrefix(term, prefix) {
			break
		}
		n++
		if n%256 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !MatchPath(q.Steps, ParsePath(term)) {
			continue
		}
		postings, err := leaf.Postings(document.FieldPath, term)
		if err != nil {
			return nil, apperrors.IndexIO("reading postings", err)
		}
		for _, p := range postings {
			docs.Add(p.Doc)
			counts[p.Doc] += float64(p.Frequency())
		}
	}
	if err := it.Err(); err != nil {
		return nil, apperrors.IndexIO("enumerating paths", err)
	}
	if !q.Repeats {
		return constantHits(docs, 1), nil
	}
	return scoredHits(docs, counts), nil
}

// ParsePath splits an indexed path such as /{uri}a/{uri}b into its
// element names. The root path / has none.
func ParsePath(p string) []dictionary.QName {
	var out []dictionary.QName
	for len(p) > 0 {
		if p[0] != '/' {
			return out
		}
		p = p[1:]
		if p == "" {
			break
		}
		var q dictionary.QName
		if p[0] == '{' {
			end := strings.IndexByte(p, '}')
			if end < 0 {
				return out
			}
			q.URI = p[1:end]
			p = p[end+1:]
		}
		end := strings.IndexByte(p, '/')
		if end < 0 {
			end = len(p)
		}
		q.Local = p[:end]
		p = p[end:]
		out = append(out, q)
	}
	return out
}

// MatchPath reports whether steps, applied from the root, end exactly at
// the last element of path.
func MatchPath(steps []Step, path []dictionary.QName) bool {
	cur := make([]bool, len(path)+1)
	cur[0] = true
	for _, st := range steps {
		next := make([]bool, len(path)+1)
		reached := false
		for j, ok := range cur {
			if !ok {
				continue
			}
			switch st.Axis {
			case Child:
				if j < len(path) && st.matches(path[j]) {
					next[j+1] = true
					reached = true
				}
			case DescendantOrSelf:
				for k := j; k <= len(path); k++ {
					next[k] = true
				}
				reached = true
			case Self:
				next[j] = true
				reached = true
			}
		}
		if !reached {
			return false
		}
		cur = next
	}
	return cur[len(path)]
}
