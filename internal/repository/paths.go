package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/dictionary"
)

// Path is the sequence of association names from a store root to a node.
type Path []dictionary.QName

// String renders /{uri}a/{uri}b; the root path renders as "/".
func (p Path) String() string {
	if len(p) == 0 {
		return "/"
	}
	var b strings.Builder
	for _, q := range p {
		b.WriteByte('/')
		b.WriteString(q.String())
	}
	return b.String()
}

type pathFrame struct {
	ref      NodeRef
	expanded bool
}

// ResolvePaths returns every path from a root to ref, following primary and
// secondary parent associations. Association cycles are cut: a node already
// being resolved on the current walk contributes no paths through itself.
func ResolvePaths(ctx context.Context, nodes NodeService, ref NodeRef) ([]Path, error) {
	const (
		inProgress = 1
		done       = 2
	)
	state := make(map[NodeRef]int)
	resolved := make(map[NodeRef][]Path)
	cache := make(map[NodeRef]Node)

	load := func(r NodeRef) (Node, bool, error) {
		if n, ok := cache[r]; ok {
			return n, true, nil
		}
		n, found, err := nodes.Node(ctx, r)
		if err != nil || !found {
			return Node{}, found, err
		}
		cache[r] = n
		return n, true, nil
	}

	stack := []pathFrame{{ref: ref}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if state[top.ref] == done {
			stack = stack[:len(stack)-1]
			continue
		}
		n, found, err := load(top.ref)
		if err != nil {
			return nil, fmt.Errorf("resolving paths of %s: %w", ref, err)
		}
		if !found {
			state[top.ref] = done
			stack = stack[:len(stack)-1]
			continue
		}
		if !top.expanded {
			top.expanded = true
			state[top.ref] = inProgress
			for _, p := range n.Parents {
				if state[p.Parent] == 0 {
					stack = append(stack, pathFrame{ref: p.Parent})
				}
			}
			continue
		}

		var paths []Path
		if n.IsRoot || len(n.Parents) == 0 {
			paths = append(paths, Path{})
		}
		for _, p := range n.Parents {
			if state[p.Parent] != done {
				continue
			}
			for _, pp := range resolved[p.Parent] {
				child := make(Path, len(pp), len(pp)+1)
				copy(child, pp)
				paths = append(paths, append(child, p.QName))
			}
		}
		resolved[top.ref] = paths
		state[top.ref] = done
		stack = stack[:len(stack)-1]
	}

	out := resolved[ref]
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}
