package query

import (
	"strings"
	"unicode/utf8"
)

// LiteralPrefix is the part of a wildcard pattern before its first * or ?.
func LiteralPrefix(pattern string) string {
	if i := strings.IndexAny(pattern, "*?"); i >= 0 {
		return pattern[:i]
	}
	return pattern
}

// HasWildcard reports whether s contains * or ?.
func HasWildcard(s string) bool {
	return strings.ContainsAny(s, "*?")
}

// MatchWildcard matches s against pattern, where * is any run of runes and
// ? is exactly one rune. No other character is special.
func MatchWildcard(pattern, s string) bool {
	p, i := 0, 0
	starP, starI := -1, 0
	for i < len(s) {
		if p < len(pattern) {
			switch pattern[p] {
			case '*':
				starP, starI = p, i
				p++
				continue
			case '?':
				_, w := utf8.DecodeRuneInString(s[i:])
				p++
				i += w
				continue
			default:
				pr, pw := utf8.DecodeRuneInString(pattern[p:])
				sr, sw := utf8.DecodeRuneInString(s[i:])
				if pr == sr {
					p += pw
					i += sw
					continue
				}
			}
		}
		if starP < 0 {
			return false
		}
		_, w := utf8.DecodeRuneInString(s[starI:])
		starI += w
		p, i = starP+1, starI
	}
	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}
