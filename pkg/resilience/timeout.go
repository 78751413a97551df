package resilience

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/repository-search/pkg/errors"
)

// WithTimeout runs fn under a context that ends after timeout and returns
// as soon as that happens, even if fn has not returned yet. fn must not
// keep using shared state after its context ends. A non-positive timeout
// calls fn directly. Expiry matches both apperrors.ErrTimeout and
// context.DeadlineExceeded.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- fn(tctx) }()
	select {
	case err := <-done:
		return err
	case <-tctx.Done():
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", name, ctx.Err())
		}
		return fmt.Errorf("%s: %w: %w after %v", name, apperrors.ErrTimeout, context.DeadlineExceeded, timeout)
	}
}
