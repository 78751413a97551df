// Package ranker scores matches with BM25 over per-field statistics that
// span every leaf of a search.
package ranker

import (
	"math"
	"sort"
)

const (
	k1 = 1.2
	b  = 0.75
)

// ScoredDoc is one match. Leaf and Doc address the document inside the
// searched view; ID is its stored identity.
type ScoredDoc struct {
	ID    string  `json:"id"`
	Leaf  int     `json:"-"`
	Doc   uint32  `json:"-"`
	Score float64 `json:"score"`
}

// FieldStats are the collection statistics of one field.
type FieldStats struct {
	TotalDocs    int64
	AvgDocLength float64
}

// TermWeight is the idf of a term with docFreq matches in the collection.
func TermWeight(stats FieldStats, docFreq int64) float64 {
	return computeIDF(stats.TotalDocs, docFreq)
}

// Score is the BM25 contribution of a term occurring termFreq times in a
// field of docLength tokens.
func Score(stats FieldStats, idf float64, termFreq int, docLength uint32) float64 {
	return idf * computeTFNorm(float64(termFreq), float64(docLength), stats.AvgDocLength)
}

// Sort orders docs by descending score; ties keep identity order.
func Sort(docs []ScoredDoc) {
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].Score != docs[j].Score {
			return docs[i].Score > docs[j].Score
		}
		return docs[i].ID < docs[j].ID
	})
}

// Round trims scores for stable output.
func Round(score float64) float64 {
	return math.Round(score*10000) / 10000
}

func computeIDF(totalDocs int64, docFreq int64) float64 {
	if docFreq <= 0 {
		return 0
	}
	numerator := float64(totalDocs) - float64(docFreq)
	if numerator < 0 {
		numerator = 0
	}
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

func computeTFNorm(termFreq float64, docLength float64, avgDocLength float64) float64 {
	if avgDocLength == 0 {
		return 1
	}
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + k1*(1-b+b*lengthRatio)
	return (termFreq * (k1 + 1)) / denominator
}
