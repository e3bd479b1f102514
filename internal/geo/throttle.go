package geo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/evcraddock/trip-planner/internal/metrics"
)

// Throttled wraps a provider with an inter-call delay and a per-call timeout.
type Throttled struct {
	next    Provider
	limiter *rate.Limiter
	timeout time.Duration
	metrics *metrics.Metrics
}

// NewThrottled spaces calls to next at least interval apart and bounds each
// call by timeout. A zero interval disables throttling; a zero timeout
// disables the per-call deadline.
func NewThrottled(next Provider, interval, timeout time.Duration, m *metrics.Metrics) *Throttled {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Throttled{
		next:    next,
		limiter: rate.NewLimiter(limit, 1),
		timeout: timeout,
		metrics: m,
	}
}

// Resolve waits for the limiter, then resolves one text.
func (t *Throttled) Resolve(ctx context.Context, text, region string) (*LocationRecord, error) {
	var rec *LocationRecord
	err := t.call(ctx, "single", func(ctx context.Context) error {
		var err error
		rec, err = t.next.Resolve(ctx, text, region)
		return err
	})
	return rec, err
}

// ResolveBatch waits for the limiter, then resolves texts in one call.
func (t *Throttled) ResolveBatch(ctx context.Context, texts []string, region string) ([]*LocationRecord, error) {
	var recs []*LocationRecord
	err := t.call(ctx, "batch", func(ctx context.Context) error {
		var err error
		recs, err = t.next.ResolveBatch(ctx, texts, region)
		return err
	})
	return recs, err
}

func (t *Throttled) call(ctx context.Context, mode string, fn func(context.Context) error) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for geocoding slot: %w", err)
	}

	callCtx := ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	err := fn(callCtx)
	if err != nil && !errors.Is(err, ErrTimeout) && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w after %s: %v", ErrTimeout, t.timeout, err)
	}
	t.metrics.GeocodeRequest(mode, Outcome(err))
	return err
}

// Outcome labels a provider error for metrics.
func Outcome(err error) string {
	return metrics.Outcome(err, map[string]error{
		"not_found":    ErrNotFound,
		"rate_limited": ErrRateLimited,
		"timeout":      ErrTimeout,
	})
}
