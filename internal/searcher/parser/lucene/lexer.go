package lucene

import (
	"strings"
	"unicode"
	"unicode/utf8"

	apperrors "github.com/Adithya-Monish-Kumar-K/repository-search/pkg/errors"
)

type tokKind int

const (
	tEOF tokKind = iota
	tWord
	tPhrase
	tRange
	tColon
	tLParen
	tRParen
	tAnd
	tOr
	tNot
	tPlus
	tMinus
	tCaret
	tTilde
)

type tok struct {
	kind tokKind
	text string
	pos  int

	lower, upper               string
	includeLower, includeUpper bool
}

func fail(src string, pos int, format string, args ...any) error {
	end := min(pos+16, len(src))
	return apperrors.NewParseError(Language, src[pos:end], pos, format, args...)
}

type lexer struct {
	src string
	pos int
}

func lex(src string) ([]tok, error) {
	l := &lexer{src: src}
	var out []tok
	for {
		t, err := l.next()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
		if t.kind == tEOF {
			return out, nil
		}
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// stops ends a bare word.
const stops = `():^~"[]{}`

var single = map[byte]tokKind{'(': tLParen, ')': tRParen, ':': tColon, '+': tPlus, '-': tMinus, '!': tNot}

func (l *lexer) next() (tok, error) {
	for l.pos < len(l.src) && isSpace(l.src[l.pos]) {
		l.pos++
	}
	start := l.pos
	if l.pos >= len(l.src) {
		return tok{kind: tEOF, pos: start}, nil
	}
	c := l.src[l.pos]
	if k, ok := single[c]; ok {
		l.pos++
		return tok{kind: k, text: string(c), pos: start}, nil
	}
	switch c {
	case '"':
		return l.phrase()
	case '[', '{':
		return l.rangeTok()
	case '^', '~':
		l.pos++
		num := l.pos
		for l.pos < len(l.src) && (l.src[l.pos] >= '0' && l.src[l.pos] <= '9' || l.src[l.pos] == '.') {
			l.pos++
		}
		k := tCaret
		if c == '~' {
			k = tTilde
		}
		return tok{kind: k, text: l.src[num:l.pos], pos: start}, nil
	case ']', '}':
		return tok{}, fail(l.src, start, "unbalanced %c", c)
	}
	return l.word()
}

func (l *lexer) phrase() (tok, error) {
	start := l.pos
	l.pos++
	var sb strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch c {
		case '\\':
			if l.pos+1 < len(l.src) {
				sb.WriteByte(l.src[l.pos+1])
				l.pos += 2
				continue
			}
		case '"':
			l.pos++
			return tok{kind: tPhrase, text: sb.String(), pos: start}, nil
		}
		sb.WriteByte(c)
		l.pos++
	}
	return tok{}, fail(l.src, start, "unterminated phrase")
}

func (l *lexer) rangeTok() (tok, error) {
	start := l.pos
	t := tok{kind: tRange, pos: start, includeLower: l.src[l.pos] == '['}
	l.pos++
	var parts []string
	for {
		for l.pos < len(l.src) && isSpace(l.src[l.pos]) {
			l.pos++
		}
		if l.pos >= len(l.src) {
			return tok{}, fail(l.src, start, "unterminated range")
		}
		c := l.src[l.pos]
		if c == ']' || c == '}' {
			t.includeUpper = c == ']'
			l.pos++
			break
		}
		if c == '"' {
			p, err := l.phrase()
			if err != nil {
				return tok{}, err
			}
			parts = append(parts, p.text)
			continue
		}
		var sb strings.Builder
		for l.pos < len(l.src) && !isSpace(l.src[l.pos]) && l.src[l.pos] != ']' && l.src[l.pos] != '}' {
			if l.src[l.pos] == '\\' && l.pos+1 < len(l.src) {
				l.pos++
			}
			sb.WriteByte(l.src[l.pos])
			l.pos++
		}
		parts = append(parts, sb.String())
	}
	if len(parts) != 3 || parts[1] != "TO" {
		return tok{}, fail(l.src, start, "range must have the form [lower TO upper]")
	}
	t.lower, t.upper = parts[0], parts[2]
	t.text = l.src[start:l.pos]
	return t, nil
}

func isNameChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == '.'
}

// prefixedName reports whether a name and another ':' follow the ':' at
// the cursor, as in @cm:name:value.
func (l *lexer) prefixedName() bool {
	i := l.pos + 1
	n := 0
	for i < len(l.src) {
		r, w := utf8.DecodeRuneInString(l.src[i:])
		if !isNameChar(r) {
			break
		}
		i += w
		n++
	}
	return n > 0 && i < len(l.src) && l.src[i] == ':'
}

func (l *lexer) word() (tok, error) {
	start := l.pos
	attr := l.src[l.pos] == '@'
	escaped := false
	var sb strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == '\\' {
			if l.pos+1 >= len(l.src) {
				return tok{}, fail(l.src, l.pos, "dangling escape")
			}
			r, w := utf8.DecodeRuneInString(l.src[l.pos+1:])
			sb.WriteRune(r)
			l.pos += 1 + w
			escaped = true
			continue
		}
		if attr && c == '{' && sb.Len() == 1 {
			end := strings.IndexByte(l.src[l.pos:], '}')
			if end < 0 {
				return tok{}, fail(l.src, l.pos, "unterminated namespace")
			}
			sb.WriteString(l.src[l.pos : l.pos+end+1])
			l.pos += end + 1
			continue
		}
		if attr && c == ':' && !strings.ContainsAny(sb.String(), ":}") && l.prefixedName() {
			sb.WriteByte(c)
			l.pos++
			continue
		}
		if isSpace(c) || strings.IndexByte(stops, c) >= 0 {
			break
		}
		r, w := utf8.DecodeRuneInString(l.src[l.pos:])
		sb.WriteRune(r)
		l.pos += w
	}
	t := tok{kind: tWord, text: sb.String(), pos: start}
	if !escaped {
		switch t.text {
		case "AND", "&&":
			t.kind = tAnd
		case "OR", "||":
			t.kind = tOr
		case "NOT":
			t.kind = tNot
		}
	}
	return t, nil
}
