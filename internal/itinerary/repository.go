package itinerary

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/evcraddock/trip-planner/internal/db"
)

var (
	// ErrNotFound is returned when an itinerary does not exist or belongs to another owner.
	ErrNotFound = errors.New("itinerary not found")
	// ErrExists is returned when inserting for a plan that already has an itinerary.
	ErrExists = errors.New("itinerary already exists")
	// ErrDayOutOfRange is returned when a day index does not exist.
	ErrDayOutOfRange = errors.New("day index out of range")
)

// Repository provides data access for itineraries, keyed by plan ID and
// scoped to an owner.
type Repository struct {
	db  db.DBTX
	now func() time.Time
}

// NewRepository creates an itinerary repository.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn, now: time.Now}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx db.DBTX) *Repository {
	return &Repository{db: tx, now: r.now}
}

// Insert stores a new itinerary. It returns ErrExists if the plan already
// has one.
func (r *Repository) Insert(ctx context.Context, it *Itinerary) error {
	days, err := json.Marshal(it.DailyPlans)
	if err != nil {
		return fmt.Errorf("encoding days: %w", err)
	}
	now := r.now().UTC()
	it.CreatedAt, it.UpdatedAt = now, now

	result, err := r.db.ExecContext(ctx, `INSERT INTO itineraries
		(plan_id, owner_id, days_json, total_cost, general_notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(plan_id) DO NOTHING`,
		it.PlanID, it.OwnerID, string(days), it.TotalCost, it.GeneralNotes, now, now,
	)
	if err != nil {
		return fmt.Errorf("inserting itinerary: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrExists
	}
	return nil
}

// Get returns the owner's itinerary for a plan.
func (r *Repository) Get(ctx context.Context, ownerID, planID string) (*Itinerary, error) {
	var it Itinerary
	var days string
	err := r.db.QueryRowContext(ctx, `SELECT plan_id, owner_id, days_json, total_cost, general_notes, created_at, updated_at
		FROM itineraries WHERE plan_id = ? AND owner_id = ?`, planID, ownerID,
	).Scan(&it.PlanID, &it.OwnerID, &days, &it.TotalCost, &it.GeneralNotes, &it.CreatedAt, &it.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying itinerary %s: %w", planID, err)
	}
	if err := json.Unmarshal([]byte(days), &it.DailyPlans); err != nil {
		return nil, fmt.Errorf("decoding itinerary %s days: %w", planID, err)
	}
	return &it, nil
}

// Exists reports whether the plan has an itinerary.
func (r *Repository) Exists(ctx context.Context, planID string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM itineraries WHERE plan_id = ?", planID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking itinerary %s: %w", planID, err)
	}
	return n > 0, nil
}

// UpdateDays replaces the stored day plans.
func (r *Repository) UpdateDays(ctx context.Context, ownerID, planID string, days []DayPlan) error {
	data, err := json.Marshal(days)
	if err != nil {
		return fmt.Errorf("encoding days: %w", err)
	}
	result, err := r.db.ExecContext(ctx,
		"UPDATE itineraries SET days_json = ?, updated_at = ? WHERE plan_id = ? AND owner_id = ?",
		string(data), r.now().UTC(), planID, ownerID,
	)
	if err != nil {
		return fmt.Errorf("updating itinerary %s: %w", planID, err)
	}
	return requireOne(result)
}

// ReplaceDay swaps the activities of one day, keeping its date and cost.
func (r *Repository) ReplaceDay(ctx context.Context, ownerID, planID string, dayIndex int, activities []Activity) (*Itinerary, error) {
	it, err := r.Get(ctx, ownerID, planID)
	if err != nil {
		return nil, err
	}
	if dayIndex < 0 || dayIndex >= len(it.DailyPlans) {
		return nil, fmt.Errorf("%w: %d of %d", ErrDayOutOfRange, dayIndex, len(it.DailyPlans))
	}
	it.DailyPlans[dayIndex].Activities = activities
	if err := r.UpdateDays(ctx, ownerID, planID, it.DailyPlans); err != nil {
		return nil, err
	}
	return r.Get(ctx, ownerID, planID)
}

// Delete removes the owner's itinerary for a plan.
func (r *Repository) Delete(ctx context.Context, ownerID, planID string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM itineraries WHERE plan_id = ? AND owner_id = ?", planID, ownerID)
	if err != nil {
		return fmt.Errorf("deleting itinerary: %w", err)
	}
	return requireOne(result)
}

func requireOne(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
