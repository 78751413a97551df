package tokenizer

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/locale"
)

var sampleTexts = map[string]string{
	"short": "The quick brown fox jumps over the lazy dog",
	"medium": `Repository stores keep nodes, their child associations and their
        properties. Each node is indexed as a document that carries its path,
        ancestry, type and aspects alongside the analysed property values, so
        that path, type and full text constraints can all be answered by one
        index.`,
	"long": strings.Repeat(`Content transformations turn binary content into plain text
        before analysis. Multilingual text is tagged with its locale, split on
        word boundaries and lower cased, while dates are decomposed into their
        calendar components so that partial dates can be queried. `, 20),
}

func BenchmarkTextAnalyzer(b *testing.B) {
	r := newTestRegistry(b)
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = Collect(r.Text().Analyze(text))
			}
		})
	}
}

func BenchmarkTextAnalyzerParallel(b *testing.B) {
	r := newTestRegistry(b)
	text := sampleTexts["medium"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = Collect(r.Text().Analyze(text))
		}
	})
}

func BenchmarkMLAnalyzer(b *testing.B) {
	r := newTestRegistry(b)
	en := locale.MustParse("en")
	for _, mode := range []locale.AnalysisMode{locale.ExactLocale, locale.LocaleAndContaining} {
		a := NewMLAnalyzer(r.Text(), en, mode)
		text := TagLocale(locale.MustParse("en_GB"), sampleTexts["medium"])
		b.Run(mode.String(), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = Collect(a.Analyze(text))
			}
		})
	}
}

func BenchmarkDateTerms(b *testing.B) {
	t := time.Date(2024, 3, 15, 10, 30, 45, 123e6, time.UTC)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = DateTerms(t)
	}
}

func BenchmarkTextAnalyzerVaryingSize(b *testing.B) {
	r := newTestRegistry(b)
	base := "repository search index transaction "
	for _, size := range []int{10, 100, 1000, 5000} {
		text := strings.Repeat(base, size/len(base)+1)[:size]
		b.Run(fmt.Sprintf("bytes_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = Collect(r.Text().Analyze(text))
			}
		})
	}
}
