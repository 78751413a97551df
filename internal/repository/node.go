// Package repository defines the content-repository collaborators the
// indexer reads from: nodes, their associations and properties, store change
// logs and content-to-text transformation.
package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/dictionary"
)

// StoreRef identifies a store, e.g. workspace://SpacesStore.
type StoreRef string

// NodeRef identifies a node: <store>/<id>.
type NodeRef string

// NewNodeRef joins a store and a node id.
func NewNodeRef(store StoreRef, id string) NodeRef {
	return NodeRef(string(store) + "/" + id)
}

// Store returns the store part of the reference.
func (r NodeRef) Store() StoreRef {
	s := string(r)
	if i := strings.LastIndexByte(s, '/'); i > 0 {
		return StoreRef(s[:i])
	}
	return StoreRef(s)
}

// ID returns the node id part of the reference.
func (r NodeRef) ID() string {
	s := string(r)
	return s[strings.LastIndexByte(s, '/')+1:]
}

// ChildAssoc links a parent to a child under an association name.
type ChildAssoc struct {
	Parent  NodeRef          `json:"parent"`
	Child   NodeRef          `json:"child"`
	Type    dictionary.QName `json:"type"`
	QName   dictionary.QName `json:"qname"`
	Primary bool             `json:"primary"`
}

// ContentData describes a content property value.
type ContentData struct {
	URL      string `json:"url"`
	Mimetype string `json:"mimetype"`
	Size     int64  `json:"size"`
	Locale   string `json:"locale"`
	Encoding string `json:"encoding"`
}

// PropertyValue holds one property. Exactly one of Values, ML and Content is
// meaningful, depending on the property's data type.
type PropertyValue struct {
	Values  []string          `json:"values,omitempty"`
	ML      map[string]string `json:"ml,omitempty"`
	Content *ContentData      `json:"content,omitempty"`
}

// Text returns a single-valued property.
func Text(v string) PropertyValue { return PropertyValue{Values: []string{v}} }

// Node is a repository node as the indexer sees it.
type Node struct {
	Ref        NodeRef                            `json:"ref"`
	Type       dictionary.QName                   `json:"type"`
	Aspects    []dictionary.QName                 `json:"aspects,omitempty"`
	Properties map[dictionary.QName]PropertyValue `json:"properties,omitempty"`
	Parents    []ChildAssoc                       `json:"parents,omitempty"`
	IsRoot     bool                               `json:"isRoot,omitempty"`
	Container  bool                               `json:"container,omitempty"`
	TxID       int64                              `json:"txId,omitempty"`
	Version    int64                              `json:"version,omitempty"`
}

// PrimaryParent returns the primary parent association, if any.
func (n *Node) PrimaryParent() (ChildAssoc, bool) {
	for _, p := range n.Parents {
		if p.Primary {
			return p, true
		}
	}
	return ChildAssoc{}, false
}

// ChangeKind classifies a store change.
type ChangeKind int

const (
	ChangeUpdated ChangeKind = iota
	ChangeCreated
	ChangeDeleted
)

// Change is one entry of a store change log.
type Change struct {
	Ref     NodeRef
	Kind    ChangeKind
	Version int64
}

// NodeService reads nodes. A missing node is reported with found=false,
// never as an error.
type NodeService interface {
	Node(ctx context.Context, ref NodeRef) (node Node, found bool, err error)
	StoreNodes(ctx context.Context, store StoreRef) ([]NodeRef, error)
}

// ChangeSource lists changes between two store versions.
type ChangeSource interface {
	Changes(ctx context.Context, store StoreRef, from, to int64) ([]Change, error)
}

// Transformation outcomes that the indexer degrades on instead of failing.
var (
	ErrNoTransformer   = errors.New("no content transformer for mimetype")
	ErrTransformFailed = errors.New("content transformation failed")
)

// ContentService converts content to indexable text.
type ContentService interface {
	Text(ctx context.Context, content ContentData) (string, error)
}
