package executor

import (
	"context"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/searcher/parser"
)

// BenchmarkQuery measures compile plus execution for each language against
// a committed store.
func BenchmarkQuery(b *testing.B) {
	f := newFixture(b, nil)
	queries := []struct {
		name     string
		language string
		query    string
	}{
		{"lucene_term", parser.LanguageLucene, "@cm:name:report"},
		{"lucene_all", parser.LanguageLucene, "*:*"},
		{"lucene_range", parser.LanguageLucene, "@cm:size:[5 TO 50]"},
		{"fts", parser.LanguageFTS, "cm:name:report AND NOT cm:name:beta"},
		{"xpath", parser.LanguageXPath, "/cm:folder/*"},
	}
	ctx := context.Background()
	for _, q := range queries {
		b.Run(q.name, func(b *testing.B) {
			p := params(q.language, q.query)
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := f.exec.Query(ctx, p); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
