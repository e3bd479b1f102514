// Package job owns the plan lifecycle: it runs synthesis and enrichment as
// one job per plan and is the only writer of plan status.
package job

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/evcraddock/trip-planner/internal/db"
	"github.com/evcraddock/trip-planner/internal/enrich"
	"github.com/evcraddock/trip-planner/internal/events"
	"github.com/evcraddock/trip-planner/internal/itinerary"
	"github.com/evcraddock/trip-planner/internal/metrics"
	"github.com/evcraddock/trip-planner/internal/plan"
	"github.com/evcraddock/trip-planner/internal/synth"
)

// DefaultTimeout bounds one generation job.
const DefaultTimeout = 10 * time.Minute

// InterruptedMessage is recorded on plans whose job died with the process.
const InterruptedMessage = "generation interrupted"

const (
	kindGenerate   = "generate"
	kindRegenerate = "regenerate"
)

// Synthesizer produces itinerary content.
type Synthesizer interface {
	Synthesize(ctx context.Context, req synth.Request) (*itinerary.Itinerary, error)
	Reorganize(ctx context.Context, activities []itinerary.Activity, day synth.DayContext) ([]itinerary.Activity, error)
}

// Config holds the orchestrator's collaborators.
type Config struct {
	DB          *sql.DB
	Synthesizer Synthesizer
	Enricher    *enrich.Enricher
	Events      events.Publisher
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
	Timeout     time.Duration
}

// Orchestrator drives plans through pending_generation → generating →
// generated | error.
type Orchestrator struct {
	db          *sql.DB
	plans       *plan.Repository
	itineraries *itinerary.Repository
	synth       Synthesizer
	enricher    *enrich.Enricher
	events      events.Publisher
	metrics     *metrics.Metrics
	logger      *slog.Logger
	timeout     time.Duration
	now         func() time.Time
	newID       func() string

	claims sync.Map
	wg     sync.WaitGroup
}

// New creates an orchestrator.
func New(cfg Config) *Orchestrator {
	o := &Orchestrator{
		db:          cfg.DB,
		plans:       plan.NewRepository(cfg.DB),
		itineraries: itinerary.NewRepository(cfg.DB),
		synth:       cfg.Synthesizer,
		enricher:    cfg.Enricher,
		events:      cfg.Events,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		timeout:     cfg.Timeout,
		now:         time.Now,
		newID:       uuid.NewString,
	}
	if o.events == nil {
		o.events = events.Noop{}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.timeout <= 0 {
		o.timeout = DefaultTimeout
	}
	return o
}

// StatusView is what pollers see.
type StatusView struct {
	Status       plan.Status          `json:"status"`
	Itinerary    *itinerary.Itinerary `json:"itinerary,omitempty"`
	ErrorMessage string               `json:"error_message,omitempty"`
}

// CreatePlan validates req and stores a pending plan for owner.
func (o *Orchestrator) CreatePlan(ctx context.Context, ownerID string, req plan.Request) (*plan.Plan, error) {
	p, err := plan.New(o.newID(), ownerID, req, o.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := o.plans.Insert(ctx, p); err != nil {
		return nil, err
	}
	o.logger.Info("plan created", "plan_id", p.ID, "destination", p.Destination)
	o.publish(ctx, p, "")
	return p, nil
}

// GetPlan returns the owner's plan.
func (o *Orchestrator) GetPlan(ctx context.Context, ownerID, planID string) (*plan.Plan, error) {
	p, err := o.plans.Get(ctx, ownerID, planID)
	if err != nil {
		return nil, notFound(err, "plan %s", planID)
	}
	return p, nil
}

// ListPlans returns the owner's plans, newest first.
func (o *Orchestrator) ListPlans(ctx context.Context, ownerID string) ([]*plan.Plan, error) {
	return o.plans.List(ctx, ownerID)
}

// Generate runs the first generation for a plan and blocks until it
// finishes. Failures are recorded on the plan and returned as
// *SynthesisError.
func (o *Orchestrator) Generate(ctx context.Context, ownerID, planID string) (*itinerary.Itinerary, error) {
	p, err := o.claimGenerate(ctx, ownerID, planID)
	if err != nil {
		return nil, err
	}
	defer o.release(planID)
	return o.run(ctx, p, kindGenerate)
}

// StartGenerate checks and claims the plan, then generates in the
// background. It returns once the plan is generating.
func (o *Orchestrator) StartGenerate(ctx context.Context, ownerID, planID string) (*plan.Plan, error) {
	p, err := o.claimGenerate(ctx, ownerID, planID)
	if err != nil {
		return nil, err
	}
	o.background(ctx, p, kindGenerate)
	return p, nil
}

// Regenerate replaces an existing itinerary, folding instructions into the
// request, and blocks until it finishes.
func (o *Orchestrator) Regenerate(ctx context.Context, ownerID, planID, instructions string) (*itinerary.Itinerary, error) {
	p, err := o.claimRegenerate(ctx, ownerID, planID, instructions)
	if err != nil {
		return nil, err
	}
	defer o.release(planID)
	return o.run(ctx, p, kindRegenerate)
}

// StartRegenerate is the background form of Regenerate.
func (o *Orchestrator) StartRegenerate(ctx context.Context, ownerID, planID, instructions string) (*plan.Plan, error) {
	p, err := o.claimRegenerate(ctx, ownerID, planID, instructions)
	if err != nil {
		return nil, err
	}
	o.background(ctx, p, kindRegenerate)
	return p, nil
}

// Wait blocks until every background job has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) background(ctx context.Context, p *plan.Plan, kind string) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.release(p.ID)
		_, _ = o.run(context.WithoutCancel(ctx), p, kind)
	}()
}

func (o *Orchestrator) claim(planID string) bool {
	_, held := o.claims.LoadOrStore(planID, struct{}{})
	return !held
}

func (o *Orchestrator) release(planID string) {
	o.claims.Delete(planID)
}

// claimGenerate moves a plan with no itinerary to generating. It is allowed
// from pending_generation and from error, which is how a failed or timed-out
// generation is retried.
func (o *Orchestrator) claimGenerate(ctx context.Context, ownerID, planID string) (*plan.Plan, error) {
	p, err := o.plans.Get(ctx, ownerID, planID)
	if err != nil {
		return nil, notFound(err, "plan %s", planID)
	}
	exists, err := o.itineraries.Exists(ctx, planID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: plan %s already has an itinerary", ErrConflict, planID)
	}
	if !o.claim(planID) {
		return nil, fmt.Errorf("%w: plan %s is already being generated", ErrConflict, planID)
	}

	ok, err := o.plans.Transition(ctx, ownerID, planID,
		[]plan.Status{plan.StatusPendingGeneration, plan.StatusError}, plan.StatusGenerating)
	if err != nil {
		o.release(planID)
		return nil, err
	}
	if !ok {
		o.release(planID)
		return nil, fmt.Errorf("%w: plan %s is %s", ErrConflict, planID, p.Status)
	}

	p.Status, p.ErrorMessage = plan.StatusGenerating, ""
	o.publish(ctx, p, "")
	return p, nil
}

// claimRegenerate deletes the current itinerary and moves the plan back to
// generating in one transaction.
func (o *Orchestrator) claimRegenerate(ctx context.Context, ownerID, planID, instructions string) (*plan.Plan, error) {
	p, err := o.plans.Get(ctx, ownerID, planID)
	if err != nil {
		return nil, notFound(err, "plan %s", planID)
	}
	// A running job has already deleted the itinerary it is replacing, so
	// the generating check must come before the existence check.
	if !o.claim(planID) {
		return nil, fmt.Errorf("%w: plan %s is already being generated", ErrConflict, planID)
	}
	if p.Status == plan.StatusGenerating {
		o.release(planID)
		return nil, fmt.Errorf("%w: plan %s is already being generated", ErrConflict, planID)
	}
	exists, err := o.itineraries.Exists(ctx, planID)
	if err != nil {
		o.release(planID)
		return nil, err
	}
	if !exists {
		o.release(planID)
		return nil, fmt.Errorf("%w: plan %s has no itinerary to regenerate", ErrNotFound, planID)
	}

	err = db.WithinTx(ctx, o.db, func(tx db.DBTX) error {
		ok, err := o.plans.WithTx(tx).Transition(ctx, ownerID, planID,
			[]plan.Status{plan.StatusGenerated, plan.StatusError}, plan.StatusGenerating)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: plan %s is %s", ErrConflict, planID, p.Status)
		}
		if err := o.plans.WithTx(tx).SetInstructions(ctx, ownerID, planID, instructions); err != nil {
			return err
		}
		if err := o.itineraries.WithTx(tx).Delete(ctx, ownerID, planID); err != nil {
			return notFound(err, "itinerary %s", planID)
		}
		return nil
	})
	if err != nil {
		o.release(planID)
		return nil, err
	}

	p.Status, p.ErrorMessage, p.RegenerationInstructions = plan.StatusGenerating, "", instructions
	o.logger.Info("regeneration started", "plan_id", planID, "has_instructions", instructions != "")
	o.publish(ctx, p, "")
	return p, nil
}

// run synthesizes, enriches and stores an itinerary for a plan that is
// already generating. Any error or panic moves the plan to error.
func (o *Orchestrator) run(ctx context.Context, p *plan.Plan, kind string) (out *itinerary.Itinerary, err error) {
	start := o.now()
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("generation panicked", "plan_id", p.ID, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("internal error: %v", r)
		}
		status := plan.StatusGenerated
		if err != nil {
			status = plan.StatusError
			o.fail(ctx, p, err)
			out, err = nil, &SynthesisError{PlanID: p.ID, Message: err.Error(), Err: err}
		}
		o.metrics.Generation(kind, string(status), o.now().Sub(start))
	}()

	o.logger.Info("generating itinerary", "plan_id", p.ID, "kind", kind, "destination", p.Destination)

	raw, err := o.synth.Synthesize(ctx, synth.FromPlan(p))
	if err != nil {
		return nil, fmt.Errorf("synthesizing itinerary: %w", err)
	}
	if raw == nil {
		return nil, errors.New("synthesizer returned no itinerary")
	}
	raw.PlanID, raw.OwnerID = p.ID, p.OwnerID

	enriched, report := o.enricher.Enrich(ctx, p.ID, raw, p.Destination, enrich.ResolveNow)
	if report.Partial() {
		o.logger.Warn("some locations unresolved", "plan_id", p.ID, "unresolved", report.Unresolved, "queued", report.Queued)
	}

	err = db.WithinTx(ctx, o.db, func(tx db.DBTX) error {
		if err := o.itineraries.WithTx(tx).Insert(ctx, enriched); err != nil {
			return fmt.Errorf("storing itinerary: %w", err)
		}
		ok, err := o.plans.WithTx(tx).Transition(ctx, p.OwnerID, p.ID,
			[]plan.Status{plan.StatusGenerating}, plan.StatusGenerated)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("plan %s is no longer generating", p.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.Status = plan.StatusGenerated
	o.logger.Info("itinerary generated", "plan_id", p.ID, "kind", kind,
		"days", len(enriched.DailyPlans), "duration", o.now().Sub(start))
	o.publish(ctx, p, "")
	return enriched, nil
}

// fail records cause on the plan. It runs even when ctx is already done.
func (o *Orchestrator) fail(ctx context.Context, p *plan.Plan, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	o.logger.Error("generation failed", "plan_id", p.ID, "error", cause)
	if err := o.plans.SetStatus(ctx, p.OwnerID, p.ID, plan.StatusError, cause.Error()); err != nil {
		o.logger.Error("recording generation failure", "plan_id", p.ID, "error", err)
		return
	}
	p.Status, p.ErrorMessage = plan.StatusError, cause.Error()
	o.publish(ctx, p, cause.Error())
}

// GetStatus returns the plan's status, its itinerary once generated, or its
// error message. It never changes state. Locations the background worker
// has resolved since generation are attached from the cache.
func (o *Orchestrator) GetStatus(ctx context.Context, ownerID, planID string) (*StatusView, error) {
	p, err := o.plans.Get(ctx, ownerID, planID)
	if err != nil {
		return nil, notFound(err, "plan %s", planID)
	}

	view := &StatusView{Status: p.Status}
	switch p.Status {
	case plan.StatusError:
		view.ErrorMessage = p.ErrorMessage
	case plan.StatusGenerated:
		it, err := o.itineraries.Get(ctx, ownerID, planID)
		if errors.Is(err, itinerary.ErrNotFound) {
			return view, nil
		}
		if err != nil {
			return nil, err
		}
		if attached, err := o.enricher.Attach(ctx, it, p.Destination); err != nil {
			o.logger.Warn("attaching cached locations", "plan_id", planID, "error", err)
		} else {
			it = attached
		}
		view.Itinerary = it
	}
	return view, nil
}

// UpdateDayActivities replaces one day's activities with the synthesizer's
// reorganization of them. Location data is carried over for activities whose
// (activity, location) text is unchanged, then filled from the cache; the
// rest is queued for the background worker.
func (o *Orchestrator) UpdateDayActivities(ctx context.Context, ownerID, planID string, dayIndex int, activities []itinerary.Activity) (*itinerary.Itinerary, error) {
	if len(activities) == 0 {
		return nil, fmt.Errorf("%w: at least one activity is required", ErrValidation)
	}
	p, err := o.plans.Get(ctx, ownerID, planID)
	if err != nil {
		return nil, notFound(err, "plan %s", planID)
	}
	if !o.claim(planID) {
		return nil, fmt.Errorf("%w: plan %s is being generated", ErrConflict, planID)
	}
	defer o.release(planID)

	if p.Status == plan.StatusGenerating {
		return nil, fmt.Errorf("%w: plan %s is being generated", ErrConflict, planID)
	}

	it, err := o.itineraries.Get(ctx, ownerID, planID)
	if err != nil {
		return nil, notFound(err, "itinerary %s", planID)
	}
	if dayIndex < 0 || dayIndex >= len(it.DailyPlans) {
		return nil, fmt.Errorf("%w: day %d does not exist, itinerary has %d days", ErrValidation, dayIndex, len(it.DailyPlans))
	}
	day := it.DailyPlans[dayIndex]

	known := make(map[activityKey]itinerary.Activity)
	for _, a := range day.Activities {
		if a.LocationData != nil {
			known[keyOf(a)] = a
		}
	}
	for _, a := range activities {
		if a.LocationData != nil {
			known[keyOf(a)] = a
		}
	}

	reorganized, err := o.synth.Reorganize(ctx, activities, synth.DayContext{
		Destination: p.Destination,
		Date:        day.Date,
		Budget:      p.Budget,
	})
	if err != nil {
		return nil, fmt.Errorf("reorganizing day %d: %w", dayIndex, err)
	}
	for i := range reorganized {
		if prev, ok := known[keyOf(reorganized[i])]; ok {
			rec := *prev.LocationData
			reorganized[i].LocationData = &rec
		}
	}

	edited := &itinerary.Itinerary{DailyPlans: []itinerary.DayPlan{{Date: day.Date, Activities: reorganized}}}
	edited, _ = o.enricher.Enrich(ctx, planID, edited, p.Destination, enrich.ResolveLater)

	updated, err := o.itineraries.ReplaceDay(ctx, ownerID, planID, dayIndex, edited.DailyPlans[0].Activities)
	if err != nil {
		return nil, notFound(err, "itinerary %s", planID)
	}
	o.logger.Info("day updated", "plan_id", planID, "day", dayIndex, "activities", len(reorganized))
	return updated, nil
}

type activityKey struct {
	activity string
	location string
}

func keyOf(a itinerary.Activity) activityKey {
	return activityKey{activity: a.Activity, location: a.Location}
}

// DeletePlan removes the owner's plan and, by cascade, its itinerary.
func (o *Orchestrator) DeletePlan(ctx context.Context, ownerID, planID string) error {
	if err := o.plans.Delete(ctx, ownerID, planID); err != nil {
		return notFound(err, "plan %s", planID)
	}
	o.logger.Info("plan deleted", "plan_id", planID)
	return nil
}

// RecoverInterrupted moves plans left generating by a previous process to
// error so they can be generated again. Call it before starting any job.
func (o *Orchestrator) RecoverInterrupted(ctx context.Context) (int64, error) {
	stuck, err := o.plans.ListByStatus(ctx, plan.StatusGenerating)
	if err != nil {
		return 0, err
	}
	n, err := o.plans.FailStuck(ctx, InterruptedMessage)
	if err != nil {
		return 0, err
	}
	for _, p := range stuck {
		p.Status, p.ErrorMessage = plan.StatusError, InterruptedMessage
		o.publish(ctx, p, InterruptedMessage)
	}
	if n > 0 {
		o.logger.Warn("recovered interrupted generations", "count", n)
	}
	return n, nil
}

func (o *Orchestrator) publish(ctx context.Context, p *plan.Plan, message string) {
	ev := events.StatusEvent{
		PlanID:       p.ID,
		OwnerID:      p.OwnerID,
		Status:       string(p.Status),
		ErrorMessage: message,
		At:           o.now().UTC(),
	}
	if err := o.events.PublishStatus(context.WithoutCancel(ctx), ev); err != nil {
		o.logger.Warn("publishing status event", "plan_id", p.ID, "status", p.Status, "error", err)
	}
}

// notFound maps repository not-found errors to ErrNotFound.
func notFound(err error, format string, args ...any) error {
	if errors.Is(err, plan.ErrNotFound) || errors.Is(err, itinerary.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
	}
	return err
}
