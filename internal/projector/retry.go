package projector

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/roach88/s01l/internal/store"
)

// DefaultRetryBudget bounds how long one operation is retried.
const DefaultRetryBudget = 30 * time.Second

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return b
}

// permanent reports errors that retrying cannot fix.
func permanent(err error) bool {
	return errors.Is(err, store.ErrConflict) ||
		errors.Is(err, store.ErrBlockOrder) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// retry runs op until it succeeds, fails permanently, or the retry budget
// runs out. The last error is returned in the latter two cases.
func retry[T any](ctx context.Context, p *Projector, name string, op func() (T, error)) (T, error) {
	return backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil && permanent(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(p.newBackOff()),
		backoff.WithMaxElapsedTime(p.retryBudget),
		backoff.WithNotify(func(err error, wait time.Duration) {
			retryTotal.Inc()
			p.logger.Warn("retrying", "op", name, "wait", wait, "error", err)
		}),
	)
}
