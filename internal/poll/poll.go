// Package poll waits for a plan's generation to reach a terminal status.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/evcraddock/trip-planner/internal/itinerary"
	"github.com/evcraddock/trip-planner/internal/job"
	"github.com/evcraddock/trip-planner/internal/plan"
)

const (
	DefaultInterval      = 5 * time.Second
	DefaultMaxAttempts   = 60
	DefaultNotFoundGrace = 15 * time.Second
)

var (
	// ErrPollingTimeout means the plan was still not terminal after the last
	// attempt. The server-side job may still finish.
	ErrPollingTimeout = errors.New("timed out waiting for itinerary")
	// ErrInvalidStatus means the server reported a status the poller does
	// not understand.
	ErrInvalidStatus = errors.New("invalid plan status")
)

// Source reports a plan's status.
type Source interface {
	PlanStatus(ctx context.Context, planID string) (*job.StatusView, error)
}

// Attempt describes one status check.
type Attempt struct {
	N      int
	Status plan.Status
	Err    error
}

// Poller checks a plan's status on a fixed interval.
type Poller struct {
	Source      Source
	Interval    time.Duration
	MaxAttempts int
	// NotFoundGrace is how long after polling starts a not-found response
	// is treated as "not visible yet" rather than a failure.
	NotFoundGrace time.Duration

	now func() time.Time
}

// New returns a poller with the default interval and limits.
func New(src Source) *Poller {
	return &Poller{
		Source:        src,
		Interval:      DefaultInterval,
		MaxAttempts:   DefaultMaxAttempts,
		NotFoundGrace: DefaultNotFoundGrace,
	}
}

// Poll checks the plan once per interval until it is generated or failed.
// It returns the itinerary, the plan's failure as *job.SynthesisError,
// ErrPollingTimeout once MaxAttempts checks have not seen a terminal status,
// or the error that stopped it. onAttempt may be nil.
func (p *Poller) Poll(ctx context.Context, planID string, onAttempt func(Attempt)) (*itinerary.Itinerary, error) {
	now := p.now
	if now == nil {
		now = time.Now
	}
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	start := now()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
		if attempt > maxAttempts {
			return nil, fmt.Errorf("%w: plan %s after %d attempts", ErrPollingTimeout, planID, maxAttempts)
		}

		view, err := p.Source.PlanStatus(ctx, planID)
		if err != nil {
			report(onAttempt, Attempt{N: attempt, Err: err})
			if errors.Is(err, job.ErrNotFound) && now().Sub(start) < p.NotFoundGrace {
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("checking plan %s status: %w", planID, err)
		}
		report(onAttempt, Attempt{N: attempt, Status: view.Status})

		switch view.Status {
		case plan.StatusPendingGeneration, plan.StatusGenerating:
			continue
		case plan.StatusGenerated:
			// A generated status without days is a response from an
			// older server; keep waiting for the full payload.
			if view.Itinerary == nil || len(view.Itinerary.DailyPlans) == 0 {
				continue
			}
			return view.Itinerary, nil
		case plan.StatusError:
			return nil, &job.SynthesisError{PlanID: planID, Message: view.ErrorMessage}
		default:
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, view.Status)
		}
	}
}

func report(fn func(Attempt), a Attempt) {
	if fn != nil {
		fn(a)
	}
}
