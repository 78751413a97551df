package lucene

import "testing"

func BenchmarkParse(b *testing.B) {
	queries := []struct {
		name  string
		query string
	}{
		{"simple", "report"},
		{"boolean_and", "quarterly AND report AND draft"},
		{"boolean_or", "invoice OR receipt OR statement"},
		{"with_not", "report NOT draft"},
		{"fields", "title:(budget plan) name:\"annual report\"~2"},
		{"wildcards", "rep* AND fo?o AND -tmp*"},
		{"ranges", "size:[10 TO 100] AND modified:{2020 TO 2024}"},
	}
	p := parser(b, OperatorOR)
	for _, q := range queries {
		b.Run(q.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := p.Parse(q.query); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
