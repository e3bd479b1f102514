// Package enrich attaches resolved locations to itinerary activities.
package enrich

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/evcraddock/trip-planner/internal/geo"
	"github.com/evcraddock/trip-planner/internal/itinerary"
	"github.com/evcraddock/trip-planner/internal/metrics"
)

// Mode selects how cache misses are handled.
type Mode int

const (
	// ResolveNow calls the provider for every miss before returning. Misses
	// the provider could not answer are queued for the background worker.
	ResolveNow Mode = iota
	// ResolveLater queues every miss without calling the provider.
	ResolveLater
)

func (m Mode) String() string {
	if m == ResolveLater {
		return "resolve_later"
	}
	return "resolve_now"
}

// DefaultConcurrency bounds parallel provider calls in ResolveNow mode.
const DefaultConcurrency = 4

// Report describes one Enrich pass.
type Report struct {
	Distinct   int `json:"distinct"`
	CacheHits  int `json:"cache_hits"`
	Resolved   int `json:"resolved"`
	Unresolved int `json:"unresolved"`
	Queued     int `json:"queued"`
}

// Partial reports whether some distinct locations were left unresolved.
// It is not an error: the itinerary is still usable.
func (r Report) Partial() bool {
	return r.Unresolved > 0
}

// Enricher resolves activity locations through the cache, the provider and
// the backfill queue.
type Enricher struct {
	cache       *geo.Cache
	queue       *geo.Queue
	provider    geo.Provider
	concurrency int
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithConcurrency bounds parallel provider calls.
func WithConcurrency(n int) Option {
	return func(e *Enricher) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Enricher) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics sets the metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Enricher) { e.metrics = m }
}

// New creates an Enricher. A nil provider makes every pass behave like
// ResolveLater.
func New(cache *geo.Cache, queue *geo.Queue, provider geo.Provider, opts ...Option) *Enricher {
	e := &Enricher{
		cache:       cache,
		queue:       queue,
		provider:    provider,
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enrich returns a copy of it with location data attached wherever the
// location text resolves in region. Each distinct text is looked up once.
// Failures are logged and leave the affected activities unresolved; Enrich
// itself never fails.
func (e *Enricher) Enrich(ctx context.Context, itineraryID string, it *itinerary.Itinerary, region string, mode Mode) (*itinerary.Itinerary, Report) {
	texts := it.LocationTexts()
	report := Report{Distinct: len(texts)}
	if len(texts) == 0 {
		return it.Clone(), report
	}

	found, err := e.cache.Lookup(ctx, texts, region)
	if err != nil {
		e.logger.Warn("location cache lookup failed", "itinerary_id", itineraryID, "region", region, "error", err)
		found = make(map[string]*geo.LocationRecord)
	}
	report.CacheHits = len(found)

	var misses []string
	for _, text := range texts {
		if _, ok := found[text]; !ok {
			misses = append(misses, text)
		}
	}
	e.metrics.CacheLookup(report.CacheHits, len(misses))

	toQueue := misses
	if mode == ResolveNow && e.provider != nil && len(misses) > 0 {
		var resolved map[string]*geo.LocationRecord
		resolved, toQueue = e.resolve(ctx, misses, region)
		for text, rec := range resolved {
			found[text] = rec
		}
		report.Resolved = len(resolved)
	}
	report.Unresolved = report.Distinct - report.CacheHits - report.Resolved

	if len(toQueue) > 0 && ctx.Err() == nil {
		n, err := e.queue.Enqueue(ctx, itineraryID, toQueue, region)
		if err != nil {
			e.logger.Warn("queueing locations failed", "itinerary_id", itineraryID, "error", err)
		}
		report.Queued = n
		e.metrics.QueueEvent("enqueued", n)
	}

	out := it.Clone()
	attach(out, found, true)

	e.logger.Info("itinerary enriched",
		"itinerary_id", itineraryID, "region", region, "mode", mode.String(),
		"distinct", report.Distinct, "cache_hits", report.CacheHits,
		"resolved", report.Resolved, "unresolved", report.Unresolved, "queued", report.Queued)
	return out, report
}

// resolve calls the provider for each text with bounded concurrency and
// writes results through the cache. It returns the resolved records and the
// texts worth retrying later. Texts the provider reported as not found are
// in neither.
func (e *Enricher) resolve(ctx context.Context, texts []string, region string) (map[string]*geo.LocationRecord, []string) {
	var (
		mu       sync.Mutex
		resolved = make(map[string]*geo.LocationRecord, len(texts))
		failed   = make(map[string]bool)
	)

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for _, text := range texts {
		g.Go(func() error {
			rec, err := e.provider.Resolve(ctx, text, region)
			if err != nil {
				if errors.Is(err, geo.ErrNotFound) {
					e.logger.Info("location not found", "location", text, "region", region)
					return nil
				}
				e.logger.Warn("resolving location failed", "location", text, "region", region, "error", err)
				mu.Lock()
				failed[text] = true
				mu.Unlock()
				return nil
			}
			if err := e.cache.Put(ctx, text, region, rec); err != nil {
				e.logger.Warn("caching location failed", "location", text, "region", region, "error", err)
			}
			mu.Lock()
			resolved[text] = rec
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	var retry []string
	for _, text := range texts {
		if failed[text] {
			retry = append(retry, text)
		}
	}
	return resolved, retry
}

// Attach fills activities that have no location data from the cache only.
// It makes no provider calls and writes nothing.
func (e *Enricher) Attach(ctx context.Context, it *itinerary.Itinerary, region string) (*itinerary.Itinerary, error) {
	var missing []string
	seen := make(map[string]bool)
	for _, day := range it.DailyPlans {
		for _, a := range day.Activities {
			text := geo.Normalize(a.Location)
			if text == "" || a.LocationData != nil || seen[text] {
				continue
			}
			seen[text] = true
			missing = append(missing, text)
		}
	}
	if len(missing) == 0 {
		return it, nil
	}

	found, err := e.cache.Lookup(ctx, missing, region)
	if err != nil {
		return it, err
	}
	if len(found) == 0 {
		return it, nil
	}
	out := it.Clone()
	attach(out, found, false)
	return out, nil
}

// attach sets location data from records keyed by trimmed location text.
// With overwrite false only nil location data is filled.
func attach(it *itinerary.Itinerary, records map[string]*geo.LocationRecord, overwrite bool) {
	for d := range it.DailyPlans {
		activities := it.DailyPlans[d].Activities
		for i := range activities {
			if !overwrite && activities[i].LocationData != nil {
				continue
			}
			rec, ok := records[geo.Normalize(activities[i].Location)]
			if !ok {
				continue
			}
			cp := *rec
			activities[i].LocationData = &cp
		}
	}
}
