// Package parser holds what the query languages share: language
// identifiers and ${qname} parameter substitution.
package parser

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/dictionary"
	apperrors "github.com/Adithya-Monish-Kumar-K/repository-search/pkg/errors"
)

// Query language identifiers.
const (
	LanguageLucene = "lucene"
	LanguageXPath  = "xpath"
	LanguageFTS    = "fts"
)

// Languages lists the supported language identifiers.
var Languages = []string{LanguageLucene, LanguageXPath, LanguageFTS}

// Definition declares a query parameter and its optional default.
type Definition struct {
	Name       dictionary.QName `json:"name"`
	Default    string           `json:"default,omitempty"`
	HasDefault bool             `json:"hasDefault,omitempty"`
}

// Value supplies one value for a parameter. A parameter may be given
// several values; they are used by successive placeholders in order.
type Value struct {
	Name  dictionary.QName `json:"name"`
	Value string           `json:"value"`
}

const (
	placeholderOpen  = "${"
	placeholderClose = "}"
)

// Substitute replaces every ${name} placeholder in q. Names resolve through
// ns. Each placeholder takes the next unused value of its parameter and
// falls back to the declared default once those run out. Placeholders that
// have neither are collected and reported together in one UnresolvedError.
func Substitute(q string, defs []Definition, values []Value, ns dictionary.NamespaceResolver) (string, error) {
	if !strings.Contains(q, placeholderOpen) {
		return q, nil
	}
	declared := make(map[dictionary.QName]Definition, len(defs))
	for _, d := range defs {
		declared[d.Name] = d
	}
	supplied := make(map[dictionary.QName][]string)
	for _, v := range values {
		supplied[v.Name] = append(supplied[v.Name], v.Value)
	}

	var (
		sb      strings.Builder
		missing []string
		seen    = make(map[string]bool)
	)
	report := func(name string) {
		if !seen[name] {
			seen[name] = true
			missing = append(missing, name)
		}
	}
	rest := q
	offset := 0
	for {
		start := strings.Index(rest, placeholderOpen)
		if start < 0 {
			sb.WriteString(rest)
			break
		}
		end := closeOf(rest, start+len(placeholderOpen))
		if end < 0 {
			return "", apperrors.NewParseError("parameters", rest[start:], offset+start, "unterminated parameter placeholder")
		}
		sb.WriteString(rest[:start])
		raw := rest[start+len(placeholderOpen) : end]

		name, err := dictionary.Resolve(ns, raw)
		if err != nil {
			report(raw)
		} else if vs := supplied[name]; len(vs) > 0 {
			sb.WriteString(vs[0])
			supplied[name] = vs[1:]
		} else if d, ok := declared[name]; ok && d.HasDefault {
			sb.WriteString(d.Default)
		} else {
			report(raw)
		}

		offset += end + len(placeholderClose)
		rest = rest[end+len(placeholderClose):]
	}
	if len(missing) > 0 {
		return "", apperrors.Unresolved("query parameter", missing...)
	}
	return sb.String(), nil
}

// closeOf returns the index of the brace closing a placeholder whose name
// starts at from. A {uri}local name carries its own closing brace first.
func closeOf(s string, from int) int {
	if strings.HasPrefix(s[from:], "{") {
		uriEnd := strings.Index(s[from:], "}")
		if uriEnd < 0 {
			return -1
		}
		from += uriEnd + 1
	}
	end := strings.Index(s[from:], placeholderClose)
	if end < 0 {
		return -1
	}
	return from + end
}
