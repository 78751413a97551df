package builder

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/dictionary"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/locale"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/searcher/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/repository-search/pkg/errors"
)

// noMatchTerm fills a phrase position that no indexed term can satisfy.
const noMatchTerm = "\x00"

// token is an analyzer token with offsets relative to the query text
// after any locale tag.
type token struct {
	text     string
	start    int
	end      int
	incr     int
	noTokens bool
}

// analyzerFor picks the query-time analyzer of a field and reports
// whether the field holds multilingual text.
func (b *Builder) analyzerFor(field string) (tokenizer.Analyzer, bool) {
	reg := b.opts.Analyzers
	if !strings.HasPrefix(field, document.AttributePrefix) || contentSuffix(field) != "" {
		return reg.Keyword(), false
	}
	def, ok := b.property(field)
	if !ok {
		return reg.Text(), false
	}
	tokenised := def.Tokenised != dictionary.TokeniseFalse
	if def.DataType == dictionary.TypeMLText {
		return reg.ForMLQuery(tokenised, b.opts.MLAnalysisMode), true
	}
	return reg.ForDataType(def.DataType, tokenised), false
}

// analyze tokenises text for field and assembles a term, wildcard,
// disjunction or phrase query. Wildcard characters the analyzer dropped
// are put back by rebuilding the fragments around them from the raw text.
func (b *Builder) analyze(field, text string, slop int) (query.Node, error) {
	analyzer, ml := b.analyzerFor(field)
	raw := text
	shift := 0
	loc := b.opts.Analyzers.DefaultLocale()
	if ml {
		if tag, body, offset, ok := tokenizer.SplitLocale(text); ok {
			raw, shift = body, offset
			if parsed, err := locale.Parse(tag); err == nil {
				loc = parsed
			}
		}
	}

	var tokens []token
	positions := 0
	samePosition := false
	for _, t := range tokenizer.Collect(analyzer.Analyze(text)) {
		tokens = append(tokens, token{
			text:     t.Text,
			start:    max(t.Start-shift, 0),
			end:      max(t.End-shift, 0),
			incr:     t.PositionIncrement,
			noTokens: t.Type == tokenizer.TypeNoTokens,
		})
		if t.PositionIncrement != 0 {
			positions += t.PositionIncrement
		} else {
			samePosition = true
		}
	}

	var patterns []locale.Pattern
	if ml {
		patterns = b.opts.MLAnalysisMode.Expand(loc)
	}
	tokens, several := addFragments(raw, tokens, patterns, ml)
	samePosition = samePosition || several

	sortTokens(tokens)
	tokens = fuse(raw, tokens, ml)
	sortTokens(tokens)

	switch {
	case len(tokens) == 0:
		return nil, nil
	case len(tokens) == 1:
		return tokenQuery(field, tokens[0]), nil
	case samePosition && positions == 1:
		out := query.NewBoolean()
		for _, t := range tokens {
			out.Add(tokenQuery(field, t), query.Should)
		}
		return out, nil
	case samePosition:
		return b.multiPhrase(field, tokens, slop)
	}
	phrase := &query.Phrase{Field: field, Slop: slop}
	for _, t := range tokens {
		if !query.HasWildcard(t.text) {
			phrase.Terms = append(phrase.Terms, []string{t.text})
			continue
		}
		terms, err := b.wildcardTerms(field, t.text)
		if err != nil {
			return nil, err
		}
		if len(terms) == 0 {
			terms = []string{noMatchTerm}
		}
		phrase.Terms = append(phrase.Terms, terms)
	}
	return phrase, nil
}

func tokenQuery(field string, t token) query.Node {
	switch {
	case t.noTokens:
		return query.NoTokens{}
	case query.HasWildcard(t.text):
		return &query.Wildcard{Field: field, Pattern: t.text}
	}
	return &query.Term{Field: field, Text: t.text}
}

// multiPhrase groups tokens that share a position into one phrase slot.
func (b *Builder) multiPhrase(field string, tokens []token, slop int) (query.Node, error) {
	phrase := &query.Phrase{Field: field, Slop: slop}
	var slot []string
	for _, t := range tokens {
		if t.incr != 0 && len(slot) > 0 {
			phrase.Terms = append(phrase.Terms, slot)
			slot = nil
		}
		if !query.HasWildcard(t.text) {
			slot = append(slot, t.text)
			continue
		}
		terms, err := b.wildcardTerms(field, t.text)
		if err != nil {
			return nil, err
		}
		slot = append(slot, terms...)
	}
	if len(slot) == 0 {
		slot = []string{noMatchTerm}
	}
	phrase.Terms = append(phrase.Terms, slot)
	return phrase, nil
}

// wildcardTerms lists the indexed terms of field matching pattern. Terms
// carrying a {locale} prefix are only returned for patterns that carry
// one too, so an untagged wildcard cannot match across locales.
func (b *Builder) wildcardTerms(field, pattern string) ([]string, error) {
	if b.opts.Terms == nil {
		return nil, nil
	}
	prefix := query.LiteralPrefix(pattern)
	it, err := b.opts.Terms.Terms(field, prefix)
	if err != nil {
		return nil, apperrors.IndexIO("expanding phrase wildcard", err)
	}
	defer it.Close()
	tagged := strings.HasPrefix(pattern, "{")
	var out []string
	for it.Next() {
		term := it.Term()
		if !strings.HasPrefix(term, prefix) {
			break
		}
		if !query.MatchWildcard(pattern, term) {
			continue
		}
		if strings.HasPrefix(term, "{") && !tagged {
			continue
		}
		out = append(out, term)
		if b.opts.MaxExpansions > 0 && len(out) > b.opts.MaxExpansions {
			return nil, fmt.Errorf("%w: phrase wildcard %s:%s matches more than %d terms",
				apperrors.ErrInvalidInput, field, pattern, b.opts.MaxExpansions)
		}
	}
	if err := it.Err(); err != nil {
		return nil, apperrors.IndexIO("expanding phrase wildcard", err)
	}
	return out, nil
}

func isWildcard(c byte) bool { return c == '*' || c == '?' }

func covered(tokens []token, i int) bool {
	for _, t := range tokens {
		if t.start <= i && i < t.end {
			return true
		}
	}
	return false
}

// addFragments synthesises tokens for the letters and digits next to each
// wildcard that no token covers. Multilingual fragments are duplicated per
// locale pattern; several reports that this put tokens at one position.
func addFragments(raw string, tokens []token, patterns []locale.Pattern, ml bool) ([]token, bool) {
	several := false
	add := func(frag string, start int) {
		if !ml {
			tokens = append(tokens, token{text: frag, start: start, end: start + len(frag), incr: 1})
			return
		}
		for i, p := range patterns {
			t := token{text: tokenizer.LocaleTerm(p, frag), start: start, end: start + len(frag)}
			if i == 0 {
				t.incr = 1
			} else {
				several = true
			}
			tokens = append(tokens, t)
		}
	}
	for idx := 0; idx < len(raw); idx++ {
		if !isWildcard(raw[idx]) || idx == 0 {
			continue
		}
		var pre []rune
		for i := idx; i > 0; {
			r, w := utf8.DecodeLastRuneInString(raw[:i])
			i -= w
			if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
				continue
			}
			if covered(tokens, i) {
				break
			}
			pre = append([]rune{r}, pre...)
		}
		if len(pre) > 0 {
			frag := string(pre)
			add(frag, idx-len(frag))
		}

		var post []rune
		for i := idx + 1; i < len(raw); {
			r, w := utf8.DecodeRuneInString(raw[i:])
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				if covered(tokens, i) {
					break
				}
				post = append(post, r)
			}
			i += w
		}
		if len(post) > 0 {
			add(string(post), idx+1)
		}
	}
	return tokens, several
}

func sortTokens(tokens []token) {
	sort.SliceStable(tokens, func(i, j int) bool {
		if tokens[i].start != tokens[j].start {
			return tokens[i].start < tokens[j].start
		}
		return tokens[i].incr > tokens[j].incr
	})
}

// splitTag separates a {locale} prefix from a multilingual token.
func splitTag(text string, ml bool) (string, string) {
	if !ml {
		return "", text
	}
	if tag, body, ok := tokenizer.SplitLocaleTerm(text); ok {
		return "{" + tag + "}", body
	}
	return "", text
}

// wildcardsBefore is the run of wildcard characters ending at end.
func wildcardsBefore(raw string, end int) string {
	i := min(end, len(raw))
	for i > 0 && isWildcard(raw[i-1]) {
		i--
	}
	return raw[i:min(end, len(raw))]
}

// wildcardsAfter is the run of wildcard characters starting at start.
func wildcardsAfter(raw string, start int) string {
	i := start
	for i < len(raw) && isWildcard(raw[i]) {
		i++
	}
	if start > len(raw) {
		return ""
	}
	return raw[start:i]
}

// fuse reattaches wildcard characters to the tokens around them. Tokens
// are fused level by level, where level n holds the tokens n places into
// a run sharing one position. Two tokens of a level merge when only
// wildcard characters separate them.
func fuse(raw string, tokens []token, ml bool) []token {
	deepest, run := 0, 0
	for _, t := range tokens {
		if t.incr == 0 {
			run++
		} else {
			run = 0
		}
		deepest = max(deepest, run)
	}

	var fixed []token
	for level := 0; level <= deepest; level++ {
		var cur *token
		run = 0
		for _, t := range tokens {
			if t.incr == 0 {
				run++
			} else {
				run = 0
			}
			if run != level {
				continue
			}
			tag, body := splitTag(t.text, ml)
			if cur == nil {
				pre := wildcardsBefore(raw, t.start)
				cur = &token{text: tag + pre + body, start: t.start - len(pre), end: t.end, incr: t.incr, noTokens: t.noTokens}
				continue
			}
			gap := ""
			if t.start > cur.end && t.start <= len(raw) {
				gap = raw[cur.end:t.start]
			}
			pre := wildcardsBefore(gap, len(gap))
			post := ""
			if len(pre) < len(gap) {
				post = wildcardsAfter(gap, 0)
			}
			if pre != "" && cur.end+len(pre) == t.start {
				cur.text += pre + body
				cur.end = t.end
				continue
			}
			fixed = append(fixed, token{text: cur.text + post, start: cur.start, end: cur.end + len(post), incr: cur.incr, noTokens: cur.noTokens})
			cur = &token{text: tag + pre + body, start: t.start - len(pre), end: t.end, incr: t.incr, noTokens: t.noTokens}
		}
		if cur != nil {
			post := wildcardsAfter(raw, cur.end)
			cur.text += post
			cur.end += len(post)
			fixed = append(fixed, *cur)
		}
	}
	return fixed
}
