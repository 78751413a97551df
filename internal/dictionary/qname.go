// Package dictionary is the read-only content model consumed by the indexer
// and the query compiler: qualified names, namespace prefixes, types,
// aspects, properties and their data types.
package dictionary

import (
	"fmt"
	"strings"
)

// QName is a namespace-qualified name.
type QName struct {
	URI   string
	Local string
}

// NewQName builds a QName.
func NewQName(uri, local string) QName {
	return QName{URI: uri, Local: local}
}

// String renders the canonical {uri}local form.
func (q QName) String() string {
	return "{" + q.URI + "}" + q.Local
}

// IsZero reports whether q is the empty name.
func (q QName) IsZero() bool {
	return q.URI == "" && q.Local == ""
}

// ParseQName parses the {uri}local form.
func ParseQName(s string) (QName, error) {
	if !strings.HasPrefix(s, "{") {
		return QName{}, fmt.Errorf("qname %q: missing namespace", s)
	}
	end := strings.IndexByte(s, '}')
	if end < 0 {
		return QName{}, fmt.Errorf("qname %q: unterminated namespace", s)
	}
	local := s[end+1:]
	if local == "" {
		return QName{}, fmt.Errorf("qname %q: empty local name", s)
	}
	return QName{URI: s[1:end], Local: local}, nil
}

// PrefixString renders q in prefix:local form using r, falling back to the
// canonical form when the namespace has no prefix.
func (q QName) PrefixString(r NamespaceResolver) string {
	prefix, ok := r.Prefix(q.URI)
	if !ok {
		return q.String()
	}
	if prefix == "" {
		return q.Local
	}
	return prefix + ":" + q.Local
}

// MarshalText encodes the canonical form.
func (q QName) MarshalText() ([]byte, error) {
	if q.IsZero() {
		return nil, nil
	}
	return []byte(q.String()), nil
}

// UnmarshalText decodes the canonical form.
func (q *QName) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*q = QName{}
		return nil
	}
	parsed, err := ParseQName(string(b))
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}
