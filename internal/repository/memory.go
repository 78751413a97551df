package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process NodeService and ChangeSource. Every Put or Delete
// bumps the store version and appends to the store change log.
type Memory struct {
	mu       sync.RWMutex
	nodes    map[NodeRef]Node
	children map[NodeRef]map[NodeRef]struct{}
	versions map[StoreRef]int64
	changes  map[StoreRef][]Change
}

// NewMemory returns an empty repository.
func NewMemory() *Memory {
	return &Memory{
		nodes:    make(map[NodeRef]Node),
		children: make(map[NodeRef]map[NodeRef]struct{}),
		versions: make(map[StoreRef]int64),
		changes:  make(map[StoreRef][]Change),
	}
}

// Put creates or replaces a node and returns the new store version.
func (m *Memory) Put(n Node) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	kind := ChangeCreated
	if old, ok := m.nodes[n.Ref]; ok {
		kind = ChangeUpdated
		m.unlinkLocked(old)
	}
	for i := range n.Parents {
		n.Parents[i].Child = n.Ref
		kids := m.children[n.Parents[i].Parent]
		if kids == nil {
			kids = make(map[NodeRef]struct{})
			m.children[n.Parents[i].Parent] = kids
		}
		kids[n.Ref] = struct{}{}
	}
	n.Container = len(m.children[n.Ref]) > 0
	m.nodes[n.Ref] = n
	for _, p := range n.Parents {
		if parent, ok := m.nodes[p.Parent]; ok && !parent.Container {
			parent.Container = true
			m.nodes[p.Parent] = parent
		}
	}
	return m.recordLocked(n.Ref, kind)
}

// Delete removes a node and returns the new store version. Deleting a missing
// node is a no-op that returns the current version.
func (m *Memory) Delete(ref NodeRef) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.nodes[ref]
	if !ok {
		return m.versions[ref.Store()]
	}
	m.unlinkLocked(old)
	delete(m.nodes, ref)
	return m.recordLocked(ref, ChangeDeleted)
}

func (m *Memory) unlinkLocked(n Node) {
	for _, p := range n.Parents {
		kids := m.children[p.Parent]
		delete(kids, n.Ref)
		if len(kids) == 0 {
			delete(m.children, p.Parent)
			if parent, ok := m.nodes[p.Parent]; ok {
				parent.Container = false
				m.nodes[p.Parent] = parent
			}
		}
	}
}

func (m *Memory) recordLocked(ref NodeRef, kind ChangeKind) int64 {
	store := ref.Store()
	m.versions[store]++
	v := m.versions[store]
	m.changes[store] = append(m.changes[store], Change{Ref: ref, Kind: kind, Version: v})
	if n, ok := m.nodes[ref]; ok {
		n.Version = v
		m.nodes[ref] = n
	}
	return v
}

// Version returns the current version of a store.
func (m *Memory) Version(store StoreRef) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.versions[store]
}

func (m *Memory) Node(_ context.Context, ref NodeRef) (Node, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[ref]
	return n, ok, nil
}

func (m *Memory) StoreNodes(_ context.Context, store StoreRef) ([]NodeRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	prefix := string(store) + "/"
	var out []NodeRef
	for ref := range m.nodes {
		if strings.HasPrefix(string(ref), prefix) {
			out = append(out, ref)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Changes returns the changes with from < version <= to, oldest first.
func (m *Memory) Changes(_ context.Context, store StoreRef, from, to int64) ([]Change, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Change
	for _, c := range m.changes[store] {
		if c.Version > from && c.Version <= to {
			out = append(out, c)
		}
	}
	return out, nil
}

// MemoryContent serves content text from memory keyed by content URL.
type MemoryContent struct {
	mu    sync.RWMutex
	texts map[string]string
}

// NewMemoryContent returns an empty content store.
func NewMemoryContent() *MemoryContent {
	return &MemoryContent{texts: make(map[string]string)}
}

// Put registers the text for a content URL.
func (c *MemoryContent) Put(url, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts[url] = text
}

// Text returns the text of content. Only text/* mimetypes are transformable;
// others yield ErrNoTransformer. A text mimetype without registered text
// yields ErrTransformFailed.
func (c *MemoryContent) Text(_ context.Context, content ContentData) (string, error) {
	if !strings.HasPrefix(content.Mimetype, "text/") {
		return "", ErrNoTransformer
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	text, ok := c.texts[content.URL]
	if !ok {
		return "", ErrTransformFailed
	}
	return text, nil
}
