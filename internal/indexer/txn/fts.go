package txn

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/repository"
	apperrors "github.com/Adithya-Monish-Kumar-K/repository-search/pkg/errors"
)

// UpdateFullTextSearch performs one unit of background work and returns how
// many items it processed. The oldest background marker is carried out
// synchronously and removed; once no markers remain, up to size documents
// indexed without their content are rebuilt. Remaining reports what is
// still queued afterwards.
func (ix *Indexer) UpdateFullTextSearch(ctx context.Context, size int) (int, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if err := ix.checkWorkLocked(workFTS); err != nil {
		return 0, err
	}
	n, err := ix.updateFullTextSearchLocked(ctx, size)
	if err != nil {
		return 0, ix.failLocked("update_fts", err)
	}
	return n, nil
}

func (ix *Indexer) updateFullTextSearchLocked(ctx context.Context, size int) (int, error) {
	var markers []Marker
	var dirty []string
	err := ix.withViewLocked(func(leaves []index.Reader) error {
		var err error
		if markers, err = pendingMarkers(leaves); err != nil || len(markers) > 0 {
			return err
		}
		dirty, err = idsWhere(leaves, document.FieldFTSStatus, document.FTSStatusDirty)
		return err
	})
	if err != nil {
		return 0, apperrors.IndexIO("finding background work", err)
	}

	if len(markers) > 0 {
		m := markers[0]
		if err := ix.applyMarkerLocked(ctx, m); err != nil {
			return 0, err
		}
		if err := ix.delta.Delete(m.ID); err != nil {
			return 0, err
		}
		ix.remaining = len(markers) - 1
		ix.svc.Metrics.MarkerDrained(string(m.Action))
		ix.logger.Info("background marker processed", "action", m.Action, "remaining", ix.remaining)
		return 1, nil
	}

	if size <= 0 {
		size = 1
	}
	done := 0
	for _, id := range dirty {
		if done >= size {
			break
		}
		if err := ix.reindexLocked(ctx, repository.NodeRef(id), false, Synchronous); err != nil {
			return done, err
		}
		done++
	}
	ix.remaining = len(dirty) - done
	if done > 0 {
		ix.logger.Info("full-text content indexed", "docs", done, "remaining", ix.remaining)
	}
	return done, nil
}

func (ix *Indexer) applyMarkerLocked(ctx context.Context, m Marker) error {
	if m.Store != ix.store {
		return fmt.Errorf("marker %q belongs to store %s", m.ID, m.Store)
	}
	switch m.Action {
	case ActionStore:
		return ix.synchronousIndexLocked(ctx, m.From, m.To)
	case ActionCreate:
		return ix.synchronousCreateLocked(ctx)
	case ActionDelete:
		return ix.deleteAllLocked(BackgroundPrefix)
	}
	return fmt.Errorf("marker %q: unknown action %q", m.ID, m.Action)
}
