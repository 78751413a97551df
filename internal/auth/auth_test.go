package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/dictionary"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/repository"
)

const store = repository.StoreRef("workspace://SpacesStore")

func node(id, parent string, readers ...string) repository.Node {
	cm := func(l string) dictionary.QName { return dictionary.NewQName(dictionary.ContentURI, l) }
	n := repository.Node{
		Ref:        repository.NewNodeRef(store, id),
		Type:       cm("content"),
		Properties: map[dictionary.QName]repository.PropertyValue{},
	}
	if parent == "" {
		n.IsRoot = true
	} else {
		n.Parents = []repository.ChildAssoc{{
			Parent:  repository.NewNodeRef(store, parent),
			Type:    cm("contains"),
			QName:   cm(id),
			Primary: true,
		}}
	}
	if len(readers) > 0 {
		n.Properties[ReadersProperty] = repository.PropertyValue{Values: readers}
	}
	return n
}

func TestReadEvaluator(t *testing.T) {
	repo := repository.NewMemory()
	repo.Put(node("root", ""))
	repo.Put(node("hr", "root", "GROUP_HR"))
	repo.Put(node("payroll", "hr"))
	repo.Put(node("memo", "hr", "alice"))
	repo.Put(node("public", "root"))
	repo.Put(node("notice", "root", Everyone))
	e := NewReadEvaluator(repo)

	alice := WithCaller(context.Background(), Caller{Principal: "alice"})
	bob := WithCaller(context.Background(), Caller{Principal: "bob", Authorities: []string{"GROUP_HR"}})
	admin := WithCaller(context.Background(), Caller{Principal: "root", Authorities: []string{Administrator}})

	cases := []struct {
		ctx  context.Context
		id   string
		want bool
	}{
		{alice, "public", true},
		{alice, "notice", true},
		{alice, "payroll", false},
		{alice, "memo", true},
		{bob, "payroll", true},
		{bob, "memo", false},
		{admin, "memo", true},
		{context.Background(), "payroll", true},
		{alice, "missing", false},
	}
	for _, tc := range cases {
		got, err := e.CanRead(tc.ctx, repository.NewNodeRef(store, tc.id))
		require.NoError(t, err)
		c, _ := CallerFrom(tc.ctx)
		assert.Equal(t, tc.want, got, "%s reading %s", c.Principal, tc.id)
	}
}

func TestReadEvaluatorStopsOnCycle(t *testing.T) {
	repo := repository.NewMemory()
	repo.Put(node("a", "b"))
	repo.Put(node("b", "a"))
	ok, err := NewReadEvaluator(repo).CanRead(WithCaller(context.Background(), Caller{Principal: "x"}), repository.NewNodeRef(store, "a"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCallerScopeIgnoresAuthorityOrder(t *testing.T) {
	a := Caller{Principal: "alice", Authorities: []string{"GROUP_B", "GROUP_A", "GROUP_A"}}
	b := Caller{Principal: "alice", Authorities: []string{"GROUP_A", "GROUP_B"}}
	assert.Equal(t, a.Scope(), b.Scope())
	assert.NotEqual(t, a.Scope(), Caller{Principal: "bob", Authorities: b.Authorities}.Scope())
	assert.Equal(t, []string{"GROUP_B", "GROUP_A", "GROUP_A"}, a.Authorities)
}
