package resilience

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// Timeout runs fn with a context that expires after d and stops waiting for
// fn when it does, even if fn ignores its context. An expired deadline is
// reported as apperrors.ErrTimeout; cancellation of ctx itself is returned
// as ctx.Err(). A non-positive d calls fn directly.
func Timeout[T any](ctx context.Context, d time.Duration, name string, fn func(context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type outcome struct {
		v   T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn(ctx)
		done <- outcome{v, err}
	}()

	select {
	case o := <-done:
		if o.err != nil && ctx.Err() == context.DeadlineExceeded {
			return o.v, fmt.Errorf("%s: %w after %v: %v", name, apperrors.ErrTimeout, d, o.err)
		}
		return o.v, o.err
	case <-ctx.Done():
		var zero T
		if ctx.Err() == context.DeadlineExceeded {
			return zero, fmt.Errorf("%s: %w after %v", name, apperrors.ErrTimeout, d)
		}
		return zero, ctx.Err()
	}
}
