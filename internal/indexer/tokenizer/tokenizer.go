// Package tokenizer adapts bleve analyzers to the index: it turns raw field
// text into positioned tokens (text, byte offsets, position increment) and
// selects an analyzer per data type, including locale-tagged multilingual
// text, date component terms and sortable numeric terms.
package tokenizer

import (
	"github.com/blevesearch/bleve/v2/analysis"
)

// TokenType classifies a token.
type TokenType int

const (
	TypeWord TokenType = iota
	TypeNumeric
	TypeDate
	// TypeNoTokens marks a value that could not be converted to the
	// field's type; query builders replace it with the no-match sentinel.
	TypeNoTokens
)

// Token is one analyzer output unit. Start and End are byte offsets into
// the analysed text. A PositionIncrement of 0 places the token at the same
// position as its predecessor.
type Token struct {
	Text              string
	Start             int
	End               int
	PositionIncrement int
	Type              TokenType
}

// TokenStream yields tokens lazily.
type TokenStream interface {
	Next() (Token, bool)
}

// Analyzer turns text into a token stream.
type Analyzer interface {
	Analyze(text string) TokenStream
}

// AnalyzerFunc adapts a function to Analyzer.
type AnalyzerFunc func(text string) TokenStream

func (f AnalyzerFunc) Analyze(text string) TokenStream {
	return f(text)
}

type sliceStream struct {
	tokens []Token
	next   int
}

// Stream wraps a token slice.
func Stream(tokens []Token) TokenStream {
	return &sliceStream{tokens: tokens}
}

func (s *sliceStream) Next() (Token, bool) {
	if s.next >= len(s.tokens) {
		return Token{}, false
	}
	t := s.tokens[s.next]
	s.next++
	return t, true
}

// Collect drains a stream.
func Collect(ts TokenStream) []Token {
	var out []Token
	for {
		t, ok := ts.Next()
		if !ok {
			return out
		}
		out = append(out, t)
	}
}

// bleveStream converts bleve's absolute 1-based positions into increments
// as tokens are pulled.
type bleveStream struct {
	tokens  analysis.TokenStream
	next    int
	lastPos int
}

func (s *bleveStream) Next() (Token, bool) {
	if s.next >= len(s.tokens) {
		return Token{}, false
	}
	bt := s.tokens[s.next]
	s.next++
	incr := bt.Position - s.lastPos
	if incr < 0 {
		incr = 0
	}
	s.lastPos = bt.Position
	typ := TypeWord
	if bt.Type == analysis.Numeric {
		typ = TypeNumeric
	}
	return Token{
		Text:              string(bt.Term),
		Start:             bt.Start,
		End:               bt.End,
		PositionIncrement: incr,
		Type:              typ,
	}, true
}

// Bleve wraps a bleve analyzer.
type Bleve struct {
	analyzer analysis.Analyzer
}

// NewBleve wraps a.
func NewBleve(a analysis.Analyzer) *Bleve {
	return &Bleve{analyzer: a}
}

func (b *Bleve) Analyze(text string) TokenStream {
	return &bleveStream{tokens: b.analyzer.Analyze([]byte(text))}
}
