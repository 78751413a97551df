package tokenizer

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/locale"
)

const localeDelim = "\x00"

// TagLocale prefixes text with a null-delimited locale tag.
func TagLocale(l locale.Locale, text string) string {
	return localeDelim + l.String() + localeDelim + text
}

// SplitLocale strips a locale tag added by TagLocale. offset is the byte
// length of the tag.
func SplitLocale(text string) (tag string, body string, offset int, ok bool) {
	if !strings.HasPrefix(text, localeDelim) {
		return "", text, 0, false
	}
	end := strings.Index(text[1:], localeDelim)
	if end < 0 {
		return "", text, 0, false
	}
	tag = text[1 : end+1]
	offset = end + 2
	return tag, text[offset:], offset, true
}

// LocaleTerm renders the indexed form of token text under a locale
// pattern: {en_GB}text.
func LocaleTerm(p locale.Pattern, text string) string {
	return "{" + string(p) + "}" + text
}

// SplitLocaleTerm splits {tag}text.
func SplitLocaleTerm(term string) (tag string, text string, ok bool) {
	if !strings.HasPrefix(term, "{") {
		return "", term, false
	}
	end := strings.IndexByte(term, '}')
	if end < 0 {
		return "", term, false
	}
	return term[1:end], term[end+1:], true
}

type duplicatingStream struct {
	in       TokenStream
	patterns []locale.Pattern
	pending  []Token
}

// DuplicateLocales emits every token of in once per pattern, locale
// prefixed. Copies after the first sit at the same position.
func DuplicateLocales(in TokenStream, patterns []locale.Pattern) TokenStream {
	return &duplicatingStream{in: in, patterns: patterns}
}

func (s *duplicatingStream) Next() (Token, bool) {
	if len(s.pending) > 0 {
		t := s.pending[0]
		s.pending = s.pending[1:]
		return t, true
	}
	t, ok := s.in.Next()
	if !ok {
		return Token{}, false
	}
	if t.Type == TypeNoTokens {
		return t, true
	}
	for i, p := range s.patterns {
		dup := t
		dup.Text = LocaleTerm(p, t.Text)
		if i > 0 {
			dup.PositionIncrement = 0
		}
		s.pending = append(s.pending, dup)
	}
	if len(s.pending) == 0 {
		return s.Next()
	}
	first := s.pending[0]
	s.pending = s.pending[1:]
	return first, true
}

// MLAnalyzer analyses multilingual text. Text carrying a locale tag is
// analysed in that locale; untagged text uses the default locale. Tokens are
// expanded per the analysis mode.
type MLAnalyzer struct {
	text          Analyzer
	defaultLocale locale.Locale
	mode          locale.AnalysisMode
}

// NewMLAnalyzer builds an MLAnalyzer over a plain text analyzer.
func NewMLAnalyzer(text Analyzer, defaultLocale locale.Locale, mode locale.AnalysisMode) *MLAnalyzer {
	return &MLAnalyzer{text: text, defaultLocale: defaultLocale, mode: mode}
}

func (a *MLAnalyzer) Analyze(text string) TokenStream {
	loc := a.defaultLocale
	tag, body, offset, ok := SplitLocale(text)
	if ok {
		if parsed, err := locale.Parse(tag); err == nil {
			loc = parsed
		}
	}
	shifted := &offsetStream{in: a.text.Analyze(body), offset: offset}
	return DuplicateLocales(shifted, a.mode.Expand(loc))
}

type offsetStream struct {
	in     TokenStream
	offset int
}

func (s *offsetStream) Next() (Token, bool) {
	t, ok := s.in.Next()
	if !ok {
		return t, false
	}
	t.Start += s.offset
	t.End += s.offset
	return t, true
}
