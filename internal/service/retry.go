package service

import (
	"context"
	"time"

	"shop-sync-service/internal/util"

	"go.uber.org/zap"
)

// RetryPolicy retries a remote call with a linearly growing delay
type RetryPolicy struct {
	Attempts int
	Base     time.Duration

	// Sleep waits between attempts; nil uses a context-aware timer
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy is three attempts total, one second times the attempt number
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Base: time.Second}
}

func (p RetryPolicy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	return sleepContext(ctx, d)
}

// Retry calls fn until it succeeds, the attempts run out or it fails with an
// authorization error. The returned error is always a *SyncError.
func Retry[T any](ctx context.Context, p RetryPolicy, op string, fn func(context.Context) (T, error)) (T, error) {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		kind := Classify(err)
		if kind == KindUnauthorized {
			return zero, &SyncError{Kind: KindUnauthorized, Op: op, Err: err}
		}
		if attempt == attempts {
			break
		}

		util.SyncRetriesTotal.WithLabelValues(op).Inc()
		util.GetLogger().Warn("Remote call failed, retrying",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if err := p.sleep(ctx, p.Base*time.Duration(attempt)); err != nil {
			return zero, &SyncError{Kind: KindTransient, Op: op, Err: err}
		}
	}

	return zero, &SyncError{Kind: Classify(lastErr), Op: op, Err: lastErr}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
