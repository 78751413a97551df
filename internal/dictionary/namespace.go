package dictionary

import (
	"fmt"
	"strings"
	"sync"
)

// NamespaceResolver maps prefixes to namespace URIs and back.
type NamespaceResolver interface {
	URI(prefix string) (string, bool)
	Prefix(uri string) (string, bool)
}

// Namespaces is a mutable, concurrency-safe NamespaceResolver.
type Namespaces struct {
	mu       sync.RWMutex
	byPrefix map[string]string
	byURI    map[string]string
}

// NewNamespaces returns a resolver that maps the empty prefix to the empty
// namespace.
func NewNamespaces() *Namespaces {
	n := &Namespaces{
		byPrefix: make(map[string]string),
		byURI:    make(map[string]string),
	}
	n.Register("", "")
	return n
}

// Register binds prefix to uri.
func (n *Namespaces) Register(prefix, uri string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.byPrefix[prefix] = uri
	if _, ok := n.byURI[uri]; !ok || prefix != "" {
		n.byURI[uri] = prefix
	}
}

func (n *Namespaces) URI(prefix string) (string, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	uri, ok := n.byPrefix[prefix]
	return uri, ok
}

func (n *Namespaces) Prefix(uri string) (string, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	prefix, ok := n.byURI[uri]
	return prefix, ok
}

// Resolve turns a name in {uri}local, prefix:local or bare local form into
// a QName. Bare names resolve against the empty prefix.
func Resolve(r NamespaceResolver, name string) (QName, error) {
	if strings.HasPrefix(name, "{") {
		return ParseQName(name)
	}
	prefix, local := "", name
	if i := strings.IndexByte(name, ':'); i >= 0 {
		prefix, local = name[:i], name[i+1:]
	}
	if local == "" {
		return QName{}, fmt.Errorf("name %q: empty local name", name)
	}
	uri, ok := r.URI(prefix)
	if !ok {
		return QName{}, fmt.Errorf("name %q: unknown namespace prefix %q", name, prefix)
	}
	return QName{URI: uri, Local: local}, nil
}
