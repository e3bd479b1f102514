package geo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/evcraddock/trip-planner/internal/metrics"
)

// Worker defaults.
const (
	DefaultInterval     = 30 * time.Second
	DefaultBatchSize    = 100
	DefaultGroupTimeout = 30 * time.Second
)

// BatchResult summarizes one ProcessBatch call.
type BatchResult struct {
	Selected  int `json:"selected"`
	Groups    int `json:"groups"`
	Completed int `json:"completed"`
	Retried   int `json:"retried"`
	Unmatched int `json:"unmatched"`
}

// Worker drains the geocode queue into the cache.
type Worker struct {
	queue    *Queue
	cache    *Cache
	provider Provider
	logger   *slog.Logger
	metrics  *metrics.Metrics

	interval     time.Duration
	batchSize    int
	groupTimeout time.Duration

	running atomic.Bool
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithLogger sets the worker's logger.
func WithLogger(l *slog.Logger) WorkerOption {
	return func(w *Worker) { w.logger = l }
}

// WithMetrics sets the worker's metrics.
func WithMetrics(m *metrics.Metrics) WorkerOption {
	return func(w *Worker) { w.metrics = m }
}

// WithInterval sets how often Run ticks.
func WithInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithBatchSize sets how many entries one tick selects.
func WithBatchSize(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

// WithGroupTimeout bounds each per-region provider call.
func WithGroupTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.groupTimeout = d
		}
	}
}

// NewWorker creates a queue worker.
func NewWorker(queue *Queue, cache *Cache, provider Provider, opts ...WorkerOption) *Worker {
	w := &Worker{
		queue:        queue,
		cache:        cache,
		provider:     provider,
		logger:       slog.Default(),
		interval:     DefaultInterval,
		batchSize:    DefaultBatchSize,
		groupTimeout: DefaultGroupTimeout,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

type regionGroup struct {
	region string
	texts  []string
	ids    map[string][]int64
}

// groupByRegion groups entries by region in first-appearance order. Texts
// repeated across entries are sent to the provider once.
func groupByRegion(entries []Entry) []*regionGroup {
	var groups []*regionGroup
	byRegion := make(map[string]*regionGroup)
	for _, e := range entries {
		g, ok := byRegion[e.Region]
		if !ok {
			g = &regionGroup{region: e.Region, ids: make(map[string][]int64)}
			byRegion[e.Region] = g
			groups = append(groups, g)
		}
		if _, seen := g.ids[e.Location]; !seen {
			g.texts = append(g.texts, e.Location)
		}
		g.ids[e.Location] = append(g.ids[e.Location], e.ID)
	}
	return groups
}

// ProcessBatch selects up to limit due entries and resolves them one region
// at a time. A failed provider call costs every entry in that region one
// retry. Matched entries are cached and completed; unmatched entries stay
// pending with their retries intact and go to the back of the line.
func (w *Worker) ProcessBatch(ctx context.Context, limit int) (BatchResult, error) {
	var res BatchResult
	if limit <= 0 {
		limit = w.batchSize
	}

	entries, err := w.queue.Due(ctx, limit)
	if err != nil {
		return res, err
	}
	res.Selected = len(entries)
	if len(entries) == 0 {
		return res, nil
	}

	for _, g := range groupByRegion(entries) {
		res.Groups++

		groupCtx, cancel := context.WithTimeout(ctx, w.groupTimeout)
		records, err := w.provider.ResolveBatch(groupCtx, g.texts, g.region)
		cancel()

		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if err == nil && len(records) != len(g.texts) {
			err = fmt.Errorf("provider returned %d results for %d texts", len(records), len(g.texts))
		}
		if err != nil {
			ids := g.allIDs()
			w.logger.Warn("geocode batch failed", "region", g.region, "entries", len(ids), "error", err)
			if err := w.queue.IncrementRetries(ctx, ids...); err != nil {
				return res, err
			}
			res.Retried += len(ids)
			w.metrics.QueueEvent("retried", len(ids))
			continue
		}

		var completed, unmatched []int64
		for i, rec := range records {
			text := g.texts[i]
			if rec == nil {
				unmatched = append(unmatched, g.ids[text]...)
				continue
			}
			if err := w.cache.Put(ctx, text, g.region, rec); err != nil {
				return res, err
			}
			completed = append(completed, g.ids[text]...)
		}
		if err := w.queue.MarkCompleted(ctx, completed...); err != nil {
			return res, err
		}
		res.Completed += len(completed)
		w.metrics.QueueEvent("completed", len(completed))
		if err := w.queue.Touch(ctx, unmatched...); err != nil {
			return res, err
		}
		res.Unmatched += len(unmatched)
	}

	w.logger.Info("geocode batch processed",
		"selected", res.Selected, "groups", res.Groups,
		"completed", res.Completed, "retried", res.Retried, "unmatched", res.Unmatched)
	return res, nil
}

func (g *regionGroup) allIDs() []int64 {
	var ids []int64
	for _, text := range g.texts {
		ids = append(ids, g.ids[text]...)
	}
	return ids
}

// ErrTickSkipped is returned by Tick when the previous tick is still running.
var ErrTickSkipped = errors.New("previous geocode tick still running")

// Tick runs one batch unless another is already in progress.
func (w *Worker) Tick(ctx context.Context) (BatchResult, error) {
	if !w.running.CompareAndSwap(false, true) {
		w.metrics.WorkerTick(true)
		w.logger.Debug("skipping geocode tick, previous still running")
		return BatchResult{}, ErrTickSkipped
	}
	defer w.running.Store(false)

	w.metrics.WorkerTick(false)
	return w.ProcessBatch(ctx, w.batchSize)
}

// Run ticks immediately and then every interval until ctx is done. Ticks
// that fire while one is still running are skipped. Run waits for the
// in-flight tick before returning.
func (w *Worker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	defer wg.Wait()

	tick := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := w.Tick(ctx); err != nil && !errors.Is(err, ErrTickSkipped) && ctx.Err() == nil {
				w.logger.Error("geocode tick failed", "error", err)
			}
		}()
	}

	w.logger.Info("geocode worker started", "interval", w.interval, "batch_size", w.batchSize)
	tick()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("geocode worker stopping")
			return
		case <-ticker.C:
			tick()
		}
	}
}
