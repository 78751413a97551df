package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/dictionary"
)

const store = StoreRef("workspace://SpacesStore")

func cm(local string) dictionary.QName {
	return dictionary.NewQName(dictionary.ContentURI, local)
}

func assoc(parent NodeRef, name string, primary bool) ChildAssoc {
	return ChildAssoc{Parent: parent, Type: cm("contains"), QName: cm(name), Primary: primary}
}

func TestNodeRefParts(t *testing.T) {
	ref := NewNodeRef(store, "abc")
	assert.Equal(t, store, ref.Store())
	assert.Equal(t, "abc", ref.ID())
}

func TestMemoryVersionsAndChanges(t *testing.T) {
	m := NewMemory()
	root := NewNodeRef(store, "root")
	a := NewNodeRef(store, "a")

	v1 := m.Put(Node{Ref: root, IsRoot: true, Type: cm("folder")})
	v2 := m.Put(Node{Ref: a, Type: cm("content"), Parents: []ChildAssoc{assoc(root, "a", true)}})
	v3 := m.Delete(a)
	require.Equal(t, []int64{1, 2, 3}, []int64{v1, v2, v3})

	ctx := context.Background()
	changes, err := m.Changes(ctx, store, 1, 3)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, ChangeCreated, changes[0].Kind)
	assert.Equal(t, ChangeDeleted, changes[1].Kind)

	_, found, err := m.Node(ctx, a)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, int64(3), m.Delete(a))
}

func TestMemoryContainerFlag(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	root := NewNodeRef(store, "root")
	child := NewNodeRef(store, "child")
	m.Put(Node{Ref: root, IsRoot: true})
	m.Put(Node{Ref: child, Parents: []ChildAssoc{assoc(root, "child", true)}})

	n, _, _ := m.Node(ctx, root)
	assert.True(t, n.Container)

	m.Delete(child)
	n, _, _ = m.Node(ctx, root)
	assert.False(t, n.Container)
}

func TestResolvePathsMultipleParents(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	root := NewNodeRef(store, "root")
	f1 := NewNodeRef(store, "f1")
	f2 := NewNodeRef(store, "f2")
	doc := NewNodeRef(store, "doc")
	m.Put(Node{Ref: root, IsRoot: true})
	m.Put(Node{Ref: f1, Parents: []ChildAssoc{assoc(root, "one", true)}})
	m.Put(Node{Ref: f2, Parents: []ChildAssoc{assoc(root, "two", true)}})
	m.Put(Node{Ref: doc, Parents: []ChildAssoc{assoc(f1, "doc", true), assoc(f2, "link", false)}})

	paths, err := ResolvePaths(ctx, m, doc)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	uri := "{" + dictionary.ContentURI + "}"
	assert.Equal(t, "/"+uri+"one/"+uri+"doc", paths[0].String())
	assert.Equal(t, "/"+uri+"two/"+uri+"link", paths[1].String())

	rootPaths, err := ResolvePaths(ctx, m, root)
	require.NoError(t, err)
	require.Len(t, rootPaths, 1)
	assert.Equal(t, "/", rootPaths[0].String())
}

func TestResolvePathsTerminatesOnCycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	root := NewNodeRef(store, "root")
	a := NewNodeRef(store, "a")
	b := NewNodeRef(store, "b")
	m.Put(Node{Ref: root, IsRoot: true})
	m.Put(Node{Ref: a, Parents: []ChildAssoc{assoc(root, "a", true), assoc(b, "back", false)}})
	m.Put(Node{Ref: b, Parents: []ChildAssoc{assoc(a, "b", true)}})

	paths, err := ResolvePaths(ctx, m, b)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	uri := "{" + dictionary.ContentURI + "}"
	assert.Equal(t, "/"+uri+"a/"+uri+"b", paths[0].String())
}

func TestMemoryContent(t *testing.T) {
	c := NewMemoryContent()
	c.Put("store://1", "hello")
	ctx := context.Background()

	text, err := c.Text(ctx, ContentData{URL: "store://1", Mimetype: "text/plain"})
	require.NoError(t, err)
	assert.Equal(t, "hello", text)

	_, err = c.Text(ctx, ContentData{URL: "store://1", Mimetype: "image/png"})
	assert.ErrorIs(t, err, ErrNoTransformer)

	_, err = c.Text(ctx, ContentData{URL: "store://2", Mimetype: "text/plain"})
	assert.ErrorIs(t, err, ErrTransformFailed)
}
