package txn

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/repository"
)

// Reserved identity prefixes.
const (
	SnapshotPrefix   = "SnapShot:"
	BackgroundPrefix = "\x00BG:"
)

// Action is the work a background marker asks for.
type Action string

const (
	ActionStore  Action = "STORE"
	ActionCreate Action = "CREATE"
	ActionDelete Action = "DELETE"
)

// Marker is a decoded background work marker.
type Marker struct {
	ID     string
	Action Action
	Store  repository.StoreRef
	From   int64
	To     int64
}

func snapshotID(store repository.StoreRef, src, dst int64) string {
	return fmt.Sprintf("%s%s:%010d:%010d", SnapshotPrefix, store, src, dst)
}

func snapshotDocument(store repository.StoreRef, src, dst int64) *document.Document {
	doc := document.New(snapshotID(store, src, dst))
	doc.Keyword(document.FieldStore, string(store))
	doc.Keyword(document.FieldFrom, strconv.FormatInt(src, 10))
	doc.Keyword(document.FieldTo, strconv.FormatInt(dst, 10))
	return doc
}

func backgroundPrefix(action Action, store repository.StoreRef) string {
	return BackgroundPrefix + string(action) + ":" + string(store) + ":"
}

func markerDocument(m Marker) *document.Document {
	id := backgroundPrefix(m.Action, m.Store)
	if m.Action == ActionStore {
		id += fmt.Sprintf("%010d:%010d:", m.From, m.To)
	}
	id += uuid.NewString()
	doc := document.New(id)
	doc.Keyword(document.FieldAction, string(m.Action))
	doc.Keyword(document.FieldStore, string(m.Store))
	if m.Action == ActionStore {
		doc.Keyword(document.FieldFrom, strconv.FormatInt(m.From, 10))
		doc.Keyword(document.FieldTo, strconv.FormatInt(m.To, 10))
	}
	return doc
}

func markerFromStored(stored document.StoredFields) (Marker, error) {
	m := Marker{
		ID:     stored.ID(),
		Action: Action(stored.Get(document.FieldAction)),
		Store:  repository.StoreRef(stored.Get(document.FieldStore)),
	}
	switch m.Action {
	case ActionCreate, ActionDelete:
		return m, nil
	case ActionStore:
		var err error
		if m.From, err = strconv.ParseInt(stored.Get(document.FieldFrom), 10, 64); err != nil {
			return m, fmt.Errorf("marker %q: bad FROM: %w", m.ID, err)
		}
		if m.To, err = strconv.ParseInt(stored.Get(document.FieldTo), 10, 64); err != nil {
			return m, fmt.Errorf("marker %q: bad TO: %w", m.ID, err)
		}
		return m, nil
	default:
		return m, fmt.Errorf("marker %q: unknown action %q", m.ID, m.Action)
	}
}

// liveTerm reports whether some live document carries field:term.
func liveTerm(r index.Reader, field, term string) (bool, error) {
	postings, err := r.Postings(field, term)
	if err != nil {
		return false, err
	}
	live := r.Live()
	for _, p := range postings {
		if live.Contains(p.Doc) {
			return true, nil
		}
	}
	return false, nil
}

// scanIDs calls fn for every live identity starting with prefix, in term
// order per leaf. The term iterator is always closed.
func scanIDs(leaves []index.Reader, prefix string, fn func(leaf index.Reader, id string) error) error {
	for _, leaf := range leaves {
		if err := scanLeaf(leaf, prefix, fn); err != nil {
			return err
		}
	}
	return nil
}

func scanLeaf(leaf index.Reader, prefix string, fn func(leaf index.Reader, id string) error) error {
	it, err := leaf.Terms(document.FieldID, prefix)
	if err != nil {
		return err
	}
	defer it.Close()
	for it.Next() {
		term := it.Term()
		if !strings.HasPrefix(term, prefix) {
			break
		}
		ok, err := liveTerm(leaf, document.FieldID, term)
		if err != nil {
			return err
		}
		if ok {
			if err := fn(leaf, term); err != nil {
				return err
			}
		}
	}
	return it.Err()
}

// lastVersion returns the largest version held fromEnd colon separated
// parts from the end of identities with prefix, or -1.
func lastVersion(leaves []index.Reader, prefix string, fromEnd int) (int64, error) {
	last := int64(-1)
	err := scanIDs(leaves, prefix, func(_ index.Reader, id string) error {
		parts := strings.Split(id, ":")
		if len(parts) < fromEnd {
			return nil
		}
		v, err := strconv.ParseInt(parts[len(parts)-fromEnd], 10, 64)
		if err != nil {
			return fmt.Errorf("marker %q: %w", id, err)
		}
		if v > last {
			last = v
		}
		return nil
	})
	return last, err
}

// lastSynchronousSnapshot is the destination version of the newest
// snapshot marker.
func lastSynchronousSnapshot(leaves []index.Reader, store repository.StoreRef) (int64, error) {
	return lastVersion(leaves, SnapshotPrefix+string(store)+":", 1)
}

// lastAsynchronousSnapshot is the destination version of the newest queued
// STORE marker.
func lastAsynchronousSnapshot(leaves []index.Reader, store repository.StoreRef) (int64, error) {
	return lastVersion(leaves, backgroundPrefix(ActionStore, store), 2)
}

// indexCreated reports whether a store root has been indexed.
func indexCreated(leaves []index.Reader) (bool, error) {
	for _, leaf := range leaves {
		ok, err := liveTerm(leaf, document.FieldIsRoot, document.True)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

// pendingMarkers returns every live background marker in the order they
// were indexed: leaves are ordered oldest first and keep document order.
func pendingMarkers(leaves []index.Reader) ([]Marker, error) {
	type found struct {
		leaf int
		doc  uint32
		m    Marker
	}
	var all []found
	for i, leaf := range leaves {
		err := scanLeaf(leaf, BackgroundPrefix, func(leaf index.Reader, id string) error {
			postings, err := leaf.Postings(document.FieldID, id)
			if err != nil {
				return err
			}
			for _, p := range postings {
				if !leaf.Live().Contains(p.Doc) {
					continue
				}
				stored, err := leaf.Document(p.Doc)
				if err != nil {
					return err
				}
				m, err := markerFromStored(stored)
				if err != nil {
					return err
				}
				all = append(all, found{leaf: i, doc: p.Doc, m: m})
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Slice(all, func(a, b int) bool {
		if all[a].leaf != all[b].leaf {
			return all[a].leaf < all[b].leaf
		}
		return all[a].doc < all[b].doc
	})
	out := make([]Marker, len(all))
	for i, f := range all {
		out[i] = f.m
	}
	return out, nil
}
