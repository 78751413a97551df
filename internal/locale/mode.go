package locale

import (
	"fmt"
	"strings"
)

// AnalysisMode selects which locale variants of multilingual text are
// indexed or searched together.
type AnalysisMode int

const (
	// ExactLocale matches only the requested locale.
	ExactLocale AnalysisMode = iota
	// LocaleAndContaining adds the fallback chain (en_GB -> en -> root).
	LocaleAndContaining
	// LocaleAndContained adds every more specific locale (en -> en_*).
	LocaleAndContained
	// AllLocales ignores the locale entirely.
	AllLocales
)

var modeNames = map[AnalysisMode]string{
	ExactLocale:         "EXACT_LOCALE",
	LocaleAndContaining: "LOCALE_AND_CONTAINING",
	LocaleAndContained:  "LOCALE_AND_CONTAINED",
	AllLocales:          "ALL_LOCALES",
}

func (m AnalysisMode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("AnalysisMode(%d)", int(m))
}

// ParseMode parses a mode name, case-insensitively.
func ParseMode(s string) (AnalysisMode, error) {
	for m, name := range modeNames {
		if strings.EqualFold(name, s) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown analysis mode %q", s)
}

// IncludesAll reports whether the mode disables locale filtering.
func (m AnalysisMode) IncludesAll() bool {
	return m == AllLocales
}

// Pattern is a locale pattern produced by Expand. A pattern containing '*'
// is matched as a wildcard over indexed locale tags.
type Pattern string

// IsWildcard reports whether the pattern must be expanded against the index.
func (p Pattern) IsWildcard() bool {
	return strings.ContainsAny(string(p), "*?")
}

// Expand returns the locale patterns a query in l must match under m.
// Order is most specific first and free of duplicates.
func (m AnalysisMode) Expand(l Locale) []Pattern {
	switch m {
	case AllLocales:
		return []Pattern{"*"}
	case LocaleAndContaining:
		fb := l.Fallbacks()
		out := make([]Pattern, len(fb))
		for i, f := range fb {
			out[i] = Pattern(f.String())
		}
		return out
	case LocaleAndContained:
		if l.IsRoot() {
			return []Pattern{"*"}
		}
		return []Pattern{Pattern(l.String()), Pattern(l.String() + "_*")}
	default:
		return []Pattern{Pattern(l.String())}
	}
}
