// Package auth identifies API callers and decides which nodes they may
// read.
//
// A node lists the authorities allowed to read it in its sys:readers
// property. A node without the property inherits from its primary parent,
// and a chain with no readers anywhere is readable by everyone.
package auth

import (
	"context"
	"slices"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/dictionary"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/repository"
)

// Well-known authorities.
const (
	Everyone      = "GROUP_EVERYONE"
	Administrator = "ROLE_ADMINISTRATOR"
)

// ReadersProperty holds the authorities allowed to read a node.
var ReadersProperty = dictionary.NewQName(dictionary.SystemURI, "readers")

// maxInheritDepth bounds the primary-parent walk.
const maxInheritDepth = 256

// Caller is an authenticated principal and the authorities it holds.
type Caller struct {
	Principal   string   `json:"principal"`
	Authorities []string `json:"authorities,omitempty"`
}

// Holds reports whether c is, or is a member of, authority.
func (c Caller) Holds(authority string) bool {
	return authority == Everyone || authority == c.Principal || slices.Contains(c.Authorities, authority)
}

// Scope identifies everything that affects what c can read. Callers with
// the same scope see the same results.
func (c Caller) Scope() string {
	auths := slices.Clone(c.Authorities)
	slices.Sort(auths)
	return c.Principal + "|" + strings.Join(slices.Compact(auths), ",")
}

type callerKey struct{}

// WithCaller attaches c to ctx.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFrom returns the caller attached by WithCaller.
func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}

// ReadEvaluator checks sys:readers against the caller in the context. A
// context without a caller runs as the system and reads everything.
type ReadEvaluator struct {
	nodes repository.NodeService
}

// NewReadEvaluator creates a ReadEvaluator over nodes.
func NewReadEvaluator(nodes repository.NodeService) *ReadEvaluator {
	return &ReadEvaluator{nodes: nodes}
}

// CanRead reports whether the caller may see ref. Nodes that no longer
// exist are hidden.
func (e *ReadEvaluator) CanRead(ctx context.Context, ref repository.NodeRef) (bool, error) {
	caller, ok := CallerFrom(ctx)
	if !ok || caller.Holds(Administrator) {
		return true, nil
	}
	seen := make(map[repository.NodeRef]bool)
	for depth := 0; depth < maxInheritDepth && !seen[ref]; depth++ {
		seen[ref] = true
		n, found, err := e.nodes.Node(ctx, ref)
		if err != nil {
			return false, err
		}
		if !found {
			return depth > 0, nil
		}
		if readers, ok := n.Properties[ReadersProperty]; ok && len(readers.Values) > 0 {
			return slices.ContainsFunc(readers.Values, caller.Holds), nil
		}
		parent, ok := n.PrimaryParent()
		if !ok {
			return true, nil
		}
		ref = parent.Parent
	}
	return true, nil
}
