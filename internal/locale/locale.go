// Package locale parses locale identifiers and expands them into the locale
// sets used for multilingual text indexing and search.
package locale

import (
	"fmt"
	"strings"
)

// Locale is a language with optional country and variant. The zero value
// is the root locale.
type Locale struct {
	Language string
	Country  string
	Variant  string
}

// Root is the locale every fallback chain ends in.
var Root = Locale{}

// Parse accepts lang, lang_COUNTRY, lang_COUNTRY_variant (or the same with
// '-') and normalises case.
func Parse(s string) (Locale, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Root, nil
	}
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '_' || r == '-' })
	if len(parts) == 0 || len(parts) > 3 {
		return Locale{}, fmt.Errorf("invalid locale %q", s)
	}
	for _, p := range parts {
		for _, r := range p {
			if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
				return Locale{}, fmt.Errorf("invalid locale %q", s)
			}
		}
	}
	l := Locale{Language: strings.ToLower(parts[0])}
	if len(parts) > 1 {
		l.Country = strings.ToUpper(parts[1])
	}
	if len(parts) > 2 {
		l.Variant = parts[2]
	}
	return l, nil
}

// MustParse is Parse for constants.
func MustParse(s string) Locale {
	l, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return l
}

// String renders lang_COUNTRY_variant; the root locale renders as "".
func (l Locale) String() string {
	switch {
	case l.Variant != "":
		return l.Language + "_" + l.Country + "_" + l.Variant
	case l.Country != "":
		return l.Language + "_" + l.Country
	default:
		return l.Language
	}
}

// IsRoot reports whether l is the root locale.
func (l Locale) IsRoot() bool {
	return l == Root
}

// Parent drops the most specific component.
func (l Locale) Parent() Locale {
	switch {
	case l.Variant != "":
		return Locale{Language: l.Language, Country: l.Country}
	case l.Country != "":
		return Locale{Language: l.Language}
	default:
		return Root
	}
}

// Fallbacks returns l followed by every more general locale down to root.
func (l Locale) Fallbacks() []Locale {
	out := []Locale{l}
	for cur := l; !cur.IsRoot(); {
		cur = cur.Parent()
		out = append(out, cur)
	}
	return out
}

// Contains reports whether other is l or a more specific locale of l.
func (l Locale) Contains(other Locale) bool {
	for _, f := range other.Fallbacks() {
		if f == l {
			return true
		}
	}
	return false
}
