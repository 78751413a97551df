package fts

import (
	"strings"
	"unicode/utf8"

	apperrors "github.com/Adithya-Monish-Kumar-K/repository-search/pkg/errors"
)

// Connective joins juxtaposed expressions.
type Connective int

const (
	ConnectiveAND Connective = iota
	ConnectiveOR
)

// ParseConnective reads "AND" or "OR" in any case; anything else is AND.
func ParseConnective(s string) Connective {
	if strings.EqualFold(s, "OR") {
		return ConnectiveOR
	}
	return ConnectiveAND
}

type kind int

const (
	kEOF kind = iota
	kWord
	kPhrase
	kRange
	kColon
	kLParen
	kRParen
	kAnd
	kOr
	kNot
	kMinus
	kPlus
	kBar
	kEquals
	kTilde
)

type token struct {
	kind kind
	text string
	pos  int

	lower, upper               string
	includeLower, includeUpper bool
}

func fail(src string, pos int, format string, args ...any) error {
	end := min(pos+16, len(src))
	return apperrors.NewParseError(Language, src[pos:end], pos, format, args...)
}

var punct = map[byte]kind{
	'(': kLParen, ')': kRParen, ':': kColon, '=': kEquals, '~': kTilde,
	'-': kMinus, '+': kPlus, '!': kNot,
}

// wordStops end a bare word.
const wordStops = `():="[]<>~`

func tokenize(src string) ([]token, error) {
	var out []token
	pos := 0
	for {
		for pos < len(src) && strings.IndexByte(" \t\r\n", src[pos]) >= 0 {
			pos++
		}
		if pos >= len(src) {
			return append(out, token{kind: kEOF, pos: pos}), nil
		}
		start := pos
		c := src[pos]
		switch {
		case strings.HasPrefix(src[pos:], "||"):
			out = append(out, token{kind: kOr, text: "||", pos: start})
			pos += 2
			continue
		case c == '|':
			out = append(out, token{kind: kBar, text: "|", pos: start})
			pos++
			continue
		case c == '"':
			t, next, err := phrase(src, pos)
			if err != nil {
				return nil, err
			}
			out = append(out, t)
			pos = next
			continue
		case c == '[' || c == '<':
			t, next, err := bracketRange(src, pos)
			if err != nil {
				return nil, err
			}
			out = append(out, t)
			pos = next
			continue
		case c == ']' || c == '>':
			return nil, fail(src, pos, "unbalanced %c", c)
		}
		if k, ok := punct[c]; ok {
			out = append(out, token{kind: k, text: string(c), pos: start})
			pos++
			continue
		}

		var sb strings.Builder
		for pos < len(src) {
			c := src[pos]
			if c == '\\' && pos+1 < len(src) {
				r, w := utf8.DecodeRuneInString(src[pos+1:])
				sb.WriteRune(r)
				pos += 1 + w
				continue
			}
			if c == '{' {
				end := strings.IndexByte(src[pos:], '}')
				if end < 0 {
					return nil, fail(src, pos, "unterminated namespace")
				}
				sb.WriteString(src[pos : pos+end+1])
				pos += end + 1
				continue
			}
			if strings.IndexByte(" \t\r\n", c) >= 0 || strings.IndexByte(wordStops, c) >= 0 {
				break
			}
			sb.WriteByte(c)
			pos++
		}
		t := token{kind: kWord, text: sb.String(), pos: start}
		switch t.text {
		case "AND", "&&":
			t.kind = kAnd
		case "OR":
			t.kind = kOr
		case "NOT":
			t.kind = kNot
		default:
			if lo, hi, ok := strings.Cut(t.text, ".."); ok {
				t = token{kind: kRange, text: t.text, pos: start, lower: lo, upper: hi, includeLower: true, includeUpper: true}
			}
		}
		out = append(out, t)
	}
}

func phrase(src string, pos int) (token, int, error) {
	start := pos
	pos++
	var sb strings.Builder
	for pos < len(src) {
		c := src[pos]
		if c == '\\' && pos+1 < len(src) {
			sb.WriteByte(src[pos+1])
			pos += 2
			continue
		}
		if c == '"' {
			return token{kind: kPhrase, text: sb.String(), pos: start}, pos + 1, nil
		}
		sb.WriteByte(c)
		pos++
	}
	return token{}, 0, fail(src, start, "unterminated phrase")
}

// bracketRange reads [a TO b] with < and > for exclusive ends.
func bracketRange(src string, pos int) (token, int, error) {
	start := pos
	t := token{kind: kRange, pos: start, includeLower: src[pos] == '['}
	pos++
	var parts []string
	for {
		for pos < len(src) && strings.IndexByte(" \t\r\n", src[pos]) >= 0 {
			pos++
		}
		if pos >= len(src) {
			return token{}, 0, fail(src, start, "unterminated range")
		}
		if c := src[pos]; c == ']' || c == '>' {
			t.includeUpper = c == ']'
			pos++
			break
		}
		if src[pos] == '"' {
			p, next, err := phrase(src, pos)
			if err != nil {
				return token{}, 0, err
			}
			parts = append(parts, p.text)
			pos = next
			continue
		}
		end := pos
		for end < len(src) && strings.IndexByte(" \t\r\n]>", src[end]) < 0 {
			end++
		}
		parts = append(parts, src[pos:end])
		pos = end
	}
	if len(parts) != 3 || parts[1] != "TO" {
		return token{}, 0, fail(src, start, "range must have the form [lower TO upper]")
	}
	t.lower, t.upper, t.text = parts[0], parts[2], src[start:pos]
	return t, pos, nil
}

// Parse compiles an FTS expression into a constraint tree. Juxtaposed
// expressions are joined by connective.
func Parse(src string, connective Connective) (Constraint, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, toks: toks, connective: connective}
	c, err := p.implicit()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != kEOF {
		return nil, fail(src, t.pos, "unexpected %q", t.text)
	}
	return c, nil
}

type parser struct {
	src        string
	toks       []token
	i          int
	connective Connective
}

func (p *parser) peek() token       { return p.toks[p.i] }
func (p *parser) peekAt(n int) token { return p.toks[min(p.i+n, len(p.toks)-1)] }

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != kEOF {
		p.i++
	}
	return t
}

func (p *parser) implicit() (Constraint, error) {
	var parts []Constraint
	for {
		if k := p.peek().kind; k == kEOF || k == kRParen {
			break
		}
		c, err := p.disjunction()
		if err != nil {
			return nil, err
		}
		parts = append(parts, c)
	}
	switch len(parts) {
	case 0:
		return nil, fail(p.src, p.peek().pos, "empty expression")
	case 1:
		return parts[0], nil
	}
	if p.connective == ConnectiveOR {
		return &Disjunction{Constraints: parts}, nil
	}
	return &Conjunction{Constraints: parts}, nil
}

func (p *parser) disjunction() (Constraint, error) {
	parts, err := p.sequence(kOr, p.conjunction)
	if err != nil || len(parts) == 1 {
		return first(parts), err
	}
	return &Disjunction{Constraints: parts}, nil
}

func (p *parser) conjunction() (Constraint, error) {
	parts, err := p.sequence(kAnd, p.prefixed)
	if err != nil || len(parts) == 1 {
		return first(parts), err
	}
	return &Conjunction{Constraints: parts}, nil
}

func first(cs []Constraint) Constraint {
	if len(cs) == 0 {
		return nil
	}
	return cs[0]
}

func (p *parser) sequence(sep kind, operand func() (Constraint, error)) ([]Constraint, error) {
	var parts []Constraint
	for {
		c, err := operand()
		if err != nil {
			return nil, err
		}
		parts = append(parts, c)
		if p.peek().kind != sep {
			return parts, nil
		}
		p.next()
	}
}

func (p *parser) prefixed() (Constraint, error) {
	switch p.peek().kind {
	case kNot, kMinus:
		p.next()
		c, err := p.test()
		if err != nil {
			return nil, err
		}
		return &Negation{Constraint: c}, nil
	case kPlus, kBar:
		p.next()
	}
	return p.test()
}

func (p *parser) column() string {
	if p.peek().kind != kWord || p.peekAt(1).kind != kColon {
		return ""
	}
	if p.peekAt(2).kind == kWord && p.peekAt(3).kind == kColon {
		name := p.peek().text + ":" + p.peekAt(2).text
		p.i += 4
		return name
	}
	name := p.peek().text
	p.i += 2
	return name
}

func (p *parser) test() (Constraint, error) {
	if p.peek().kind == kLParen {
		p.next()
		c, err := p.implicit()
		if err != nil {
			return nil, err
		}
		if t := p.next(); t.kind != kRParen {
			return nil, fail(p.src, t.pos, "expected )")
		}
		return c, nil
	}
	exact := false
	if p.peek().kind == kEquals {
		exact = true
		p.next()
	}
	property := p.column()
	t := p.next()
	switch t.kind {
	case kWord:
		if p.peek().kind == kLParen && strings.Trim(t.text, "*") == "" {
			return nil, fail(p.src, t.pos, "proximity is not supported")
		}
		if exact {
			return &ExactTerm{Property: property, Text: t.text}, nil
		}
		return &Term{Property: property, Text: t.text}, nil
	case kPhrase:
		if exact {
			return &ExactTerm{Property: property, Text: t.text}, nil
		}
		return &Phrase{Property: property, Text: t.text}, nil
	case kRange:
		if exact {
			return nil, fail(p.src, t.pos, "= does not apply to ranges")
		}
		return &Range{Property: property, Lower: t.lower, Upper: t.upper, IncludeLower: t.includeLower, IncludeUpper: t.includeUpper}, nil
	case kLParen:
		return nil, fail(p.src, t.pos, "field groups are not supported")
	case kTilde:
		return nil, fail(p.src, t.pos, "synonyms are not supported")
	case kEOF:
		return nil, fail(p.src, t.pos, "expression ends where a term was expected")
	}
	return nil, fail(p.src, t.pos, "unexpected %q", t.text)
}
