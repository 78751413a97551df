// Package xpath compiles the location-path subset of XPath used for
// repository paths: absolute and relative paths of child name steps, //,
// wildcards and self steps.
package xpath

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/dictionary"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/searcher/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/repository-search/pkg/errors"
)

// Language is the query language identifier.
const Language = "xpath"

// Parse compiles expr into path steps. Relative paths are anchored at the
// store root. Every unknown namespace prefix is reported in one error.
func Parse(expr string, ns dictionary.NamespaceResolver) ([]query.Step, error) {
	p := &pathParser{src: expr, ns: ns}
	steps, err := p.parse()
	if err != nil {
		return nil, err
	}
	if len(p.unknown) > 0 {
		return nil, apperrors.Unresolved("namespace prefix", p.unknown...)
	}
	return steps, nil
}

// Compile parses expr into a path query.
func Compile(expr string, ns dictionary.NamespaceResolver, repeats bool) (*query.Path, error) {
	steps, err := Parse(expr, ns)
	if err != nil {
		return nil, err
	}
	return &query.Path{Steps: steps, Repeats: repeats}, nil
}

type pathParser struct {
	src     string
	pos     int
	ns      dictionary.NamespaceResolver
	unknown []string
}

func (p *pathParser) fail(format string, args ...any) error {
	end := p.pos + 16
	if end > len(p.src) {
		end = len(p.src)
	}
	return apperrors.NewParseError(Language, p.src[p.pos:end], p.pos, format, args...)
}

func (p *pathParser) parse() ([]query.Step, error) {
	p.src = strings.TrimSpace(p.src)
	if p.src == "" {
		return nil, p.fail("empty path")
	}
	if p.src == "/" {
		return nil, nil
	}
	var steps []query.Step
	first := true
	for p.pos < len(p.src) {
		switch {
		case strings.HasPrefix(p.src[p.pos:], "//"):
			steps = append(steps, query.Step{Axis: query.DescendantOrSelf})
			p.pos += 2
		case p.src[p.pos] == '/':
			p.pos++
		case !first:
			return nil, p.fail("expected /")
		}
		first = false
		if p.pos >= len(p.src) {
			return nil, p.fail("path ends with a separator")
		}
		st, err := p.step()
		if err != nil {
			return nil, err
		}
		steps = append(steps, st)
	}
	return steps, nil
}

func (p *pathParser) step() (query.Step, error) {
	start := p.pos
	for p.pos < len(p.src) && p.src[p.pos] != '/' {
		switch p.src[p.pos] {
		case '[':
			return query.Step{}, p.fail("predicates are not supported")
		case '"', '\'':
			return query.Step{}, p.fail("literals are not supported")
		case '{':
			// a namespace URI may contain '/'
			end := strings.IndexByte(p.src[p.pos:], '}')
			if end < 0 {
				return query.Step{}, p.fail("unterminated namespace")
			}
			p.pos += end + 1
			continue
		}
		p.pos++
	}
	text := p.src[start:p.pos]
	if axis, test, ok := strings.Cut(text, "::"); ok {
		return p.axisStep(start, axis, test)
	}
	switch {
	case text == ".":
		return query.Step{Axis: query.Self}, nil
	case text == "..":
		p.pos = start
		return query.Step{}, p.fail("parent steps are not supported")
	case strings.HasPrefix(text, "@"):
		p.pos = start
		return query.Step{}, p.fail("attribute steps are not supported")
	case strings.ContainsAny(text, "()"):
		p.pos = start
		return query.Step{}, p.fail("functions are not supported")
	}
	return p.nameStep(start, text)
}

func (p *pathParser) axisStep(start int, axis, test string) (query.Step, error) {
	switch axis {
	case "child":
		if test == "node()" {
			return query.Step{Axis: query.Child, Name: dictionary.QName{Local: query.AnyLocal}, AnyNamespace: true}, nil
		}
		return p.nameStep(start, test)
	case "self":
		if test == "node()" {
			return query.Step{Axis: query.Self}, nil
		}
	case "descendant-or-self":
		if test == "node()" {
			return query.Step{Axis: query.DescendantOrSelf}, nil
		}
	default:
		p.pos = start
		return query.Step{}, p.fail("axis %s is not supported", axis)
	}
	p.pos = start
	return query.Step{}, p.fail("only node() may follow the %s axis", axis)
}

func (p *pathParser) nameStep(start int, name string) (query.Step, error) {
	if name == "" {
		p.pos = start
		return query.Step{}, p.fail("empty step")
	}
	if name == "*" {
		return query.Step{Axis: query.Child, Name: dictionary.QName{Local: query.AnyLocal}, AnyNamespace: true}, nil
	}
	if strings.HasPrefix(name, "{") {
		q, err := dictionary.ParseQName(name)
		if err != nil {
			p.pos = start
			return query.Step{}, p.fail("%v", err)
		}
		return query.Step{Axis: query.Child, Name: q}, nil
	}
	prefix, local, found := strings.Cut(name, ":")
	if !found {
		prefix, local = "", name
	}
	if local == "" || strings.ContainsAny(local, ":{}") {
		p.pos = start
		return query.Step{}, p.fail("invalid name %q", name)
	}
	uri, ok := p.ns.URI(prefix)
	if !ok {
		p.unknown = append(p.unknown, prefix)
	}
	return query.Step{Axis: query.Child, Name: dictionary.QName{URI: uri, Local: local}}, nil
}
