package plan

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/evcraddock/trip-planner/internal/db"
)

// ErrNotFound is returned when a plan does not exist or belongs to another owner.
var ErrNotFound = errors.New("plan not found")

// Repository provides data access for plans. Every read and write is scoped
// to an owner.
type Repository struct {
	db  db.DBTX
	now func() time.Time
}

// NewRepository creates a plan repository.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn, now: time.Now}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx db.DBTX) *Repository {
	return &Repository{db: tx, now: r.now}
}

const selectColumns = `id, owner_id, destination, start_date, end_date, travel_group, interests, budget,
	transportation, flight_json, accommodation_json, regeneration_instructions, status, error_message,
	created_at, updated_at`

// Insert stores a new plan.
func (r *Repository) Insert(ctx context.Context, p *Plan) error {
	flight, err := marshalBooking(p.Flight)
	if err != nil {
		return err
	}
	accommodation, err := marshalBooking(p.Accommodation)
	if err != nil {
		return err
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = r.now().UTC()
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	if p.Status == "" {
		p.Status = StatusPendingGeneration
	}

	_, err = r.db.ExecContext(ctx, `INSERT INTO plans
		(id, owner_id, destination, start_date, end_date, travel_group, interests, budget, transportation,
		 flight_json, accommodation_json, regeneration_instructions, status, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.OwnerID, p.Destination, p.StartDate.UTC(), p.EndDate.UTC(),
		string(p.TravelGroup), p.Interests, p.Budget, p.Transportation,
		flight, accommodation, p.RegenerationInstructions,
		string(p.Status), p.ErrorMessage, p.CreatedAt.UTC(), p.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting plan: %w", err)
	}
	return nil
}

// Get returns the owner's plan with the given ID.
func (r *Repository) Get(ctx context.Context, ownerID, id string) (*Plan, error) {
	query := fmt.Sprintf("SELECT %s FROM plans WHERE id = ? AND owner_id = ?", selectColumns)
	p, err := scanPlan(r.db.QueryRowContext(ctx, query, id, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying plan %s: %w", id, err)
	}
	return p, nil
}

// List returns the owner's plans, newest first.
func (r *Repository) List(ctx context.Context, ownerID string) ([]*Plan, error) {
	query := fmt.Sprintf("SELECT %s FROM plans WHERE owner_id = ? ORDER BY created_at DESC, id", selectColumns)
	return r.query(ctx, query, ownerID)
}

// ListByStatus returns plans of every owner in the given status.
func (r *Repository) ListByStatus(ctx context.Context, status Status) ([]*Plan, error) {
	query := fmt.Sprintf("SELECT %s FROM plans WHERE status = ? ORDER BY created_at, id", selectColumns)
	return r.query(ctx, query, string(status))
}

func (r *Repository) query(ctx context.Context, query string, args ...any) (plans []*Plan, err error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing plans: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing rows: %w", closeErr)
		}
	}()

	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning plan: %w", err)
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating plans: %w", err)
	}
	return plans, nil
}

// Transition moves the plan to status `to` only if its current status is one
// of from. It reports whether the row changed. Moving to any status other
// than error clears the stored error message.
func (r *Repository) Transition(ctx context.Context, ownerID, id string, from []Status, to Status) (bool, error) {
	if len(from) == 0 {
		return false, errors.New("transition needs at least one source status")
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(from)), ", ")
	query := fmt.Sprintf(`UPDATE plans
		SET status = ?, error_message = CASE WHEN ? = 'error' THEN error_message ELSE '' END, updated_at = ?
		WHERE id = ? AND owner_id = ? AND status IN (%s)`, placeholders)

	args := []any{string(to), string(to), r.now().UTC(), id, ownerID}
	for _, s := range from {
		args = append(args, string(s))
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("transitioning plan %s to %s: %w", id, to, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return n == 1, nil
}

// SetStatus writes status and message unconditionally.
func (r *Repository) SetStatus(ctx context.Context, ownerID, id string, status Status, message string) error {
	if !status.Valid() {
		return fmt.Errorf("invalid plan status: %s", status)
	}
	result, err := r.db.ExecContext(ctx,
		"UPDATE plans SET status = ?, error_message = ?, updated_at = ? WHERE id = ? AND owner_id = ?",
		string(status), message, r.now().UTC(), id, ownerID,
	)
	if err != nil {
		return fmt.Errorf("setting plan %s status: %w", id, err)
	}
	return requireOne(result)
}

// SetInstructions records the traveler's regeneration instructions.
func (r *Repository) SetInstructions(ctx context.Context, ownerID, id, instructions string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE plans SET regeneration_instructions = ?, updated_at = ? WHERE id = ? AND owner_id = ?",
		instructions, r.now().UTC(), id, ownerID,
	)
	if err != nil {
		return fmt.Errorf("setting plan %s instructions: %w", id, err)
	}
	return requireOne(result)
}

// FailStuck moves every plan in the generating status to error with the
// given message and returns how many were changed.
func (r *Repository) FailStuck(ctx context.Context, message string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"UPDATE plans SET status = ?, error_message = ?, updated_at = ? WHERE status = ?",
		string(StatusError), message, r.now().UTC(), string(StatusGenerating),
	)
	if err != nil {
		return 0, fmt.Errorf("failing stuck plans: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

// Delete removes the owner's plan. Its itinerary cascades.
func (r *Repository) Delete(ctx context.Context, ownerID, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM plans WHERE id = ? AND owner_id = ?", id, ownerID)
	if err != nil {
		return fmt.Errorf("deleting plan: %w", err)
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

type scanner interface {
	Scan(dest ...any) error
}

func scanPlan(s scanner) (*Plan, error) {
	var p Plan
	var group, status string
	var flight, accommodation sql.NullString

	err := s.Scan(
		&p.ID, &p.OwnerID, &p.Destination, &p.StartDate, &p.EndDate,
		&group, &p.Interests, &p.Budget, &p.Transportation,
		&flight, &accommodation, &p.RegenerationInstructions,
		&status, &p.ErrorMessage, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.TravelGroup = TravelGroup(group)
	p.Status = Status(status)

	if p.Flight, err = unmarshalBooking(flight); err != nil {
		return nil, fmt.Errorf("decoding flight: %w", err)
	}
	if p.Accommodation, err = unmarshalBooking(accommodation); err != nil {
		return nil, fmt.Errorf("decoding accommodation: %w", err)
	}
	return &p, nil
}

func marshalBooking(b *Booking) (sql.NullString, error) {
	if b == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(b)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encoding booking: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalBooking(s sql.NullString) (*Booking, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var b Booking
	if err := json.Unmarshal([]byte(s.String), &b); err != nil {
		return nil, err
	}
	return &b, nil
}
