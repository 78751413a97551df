package executor

import (
	"context"
	"time"

	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/repository"
	"github.com/Adithya-Monish-Kumar-K/repository-search/internal/searcher/resultset"
)

// PermissionEvaluator decides whether the caller may see a node.
type PermissionEvaluator interface {
	CanRead(ctx context.Context, ref repository.NodeRef) (bool, error)
}

// PermissionFunc adapts a function to PermissionEvaluator.
type PermissionFunc func(ctx context.Context, ref repository.NodeRef) (bool, error)

func (f PermissionFunc) CanRead(ctx context.Context, ref repository.NodeRef) (bool, error) {
	return f(ctx, ref)
}

// AllowAll grants every node.
type AllowAll struct{}

func (AllowAll) CanRead(context.Context, repository.NodeRef) (bool, error) { return true, nil }

// budget bounds the permission checks of one query. A zero field is
// unbounded.
type budget struct {
	maxChecks int
	maxTime   time.Duration
	finalSize int

	checks int
	start  time.Time
	now    func() time.Time
}

// exhausted reports whether another check may run, given rows already
// accepted, and if not which limit stopped it.
func (b *budget) exhausted(accepted int) (resultset.LimitBy, bool) {
	if b.finalSize > 0 && accepted >= b.finalSize {
		return resultset.FinalSize, true
	}
	if b.maxChecks > 0 && b.checks >= b.maxChecks {
		return resultset.NumberOfPermissionEvaluations, true
	}
	if b.maxTime > 0 && b.now().Sub(b.start) >= b.maxTime {
		return resultset.NumberOfPermissionEvaluations, true
	}
	return "", false
}
