package geo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/evcraddock/trip-planner/internal/db"
)

// EntryStatus is the state of a queue entry.
type EntryStatus string

const (
	EntryPending   EntryStatus = "pending"
	EntryCompleted EntryStatus = "completed"
	EntryFailed    EntryStatus = "failed"
)

// Entry is one location waiting to be geocoded in the background.
type Entry struct {
	ID          int64       `json:"id"`
	ItineraryID string      `json:"itinerary_id"`
	Location    string      `json:"location"`
	Region      string      `json:"region"`
	Status      EntryStatus `json:"status"`
	Retries     int         `json:"retries"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// QueueStats summarizes the queue.
type QueueStats struct {
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
	// Exhausted entries are still pending but have hit the retry ceiling and
	// are never selected again.
	Exhausted int `json:"exhausted"`
}

// Queue is the durable backlog of unresolved location texts.
type Queue struct {
	db  db.DBTX
	now func() time.Time
}

// NewQueue creates a geocode queue.
func NewQueue(conn db.DBTX) *Queue {
	return &Queue{db: conn, now: time.Now}
}

// WithTx returns a queue bound to tx.
func (q *Queue) WithTx(tx db.DBTX) *Queue {
	return &Queue{db: tx, now: q.now}
}

// Enqueue adds one pending entry per distinct non-empty text and returns how
// many were added.
func (q *Queue) Enqueue(ctx context.Context, itineraryID string, texts []string, region string) (int, error) {
	now := q.now().UTC()
	seen := make(map[string]bool, len(texts))
	n := 0
	for _, raw := range texts {
		text := Normalize(raw)
		if text == "" || seen[text] {
			continue
		}
		seen[text] = true
		_, err := q.db.ExecContext(ctx, `INSERT INTO geocode_queue
			(itinerary_id, location, region, status, retries, created_at, updated_at)
			VALUES (?, ?, ?, ?, 0, ?, ?)`,
			itineraryID, text, region, string(EntryPending), now, now,
		)
		if err != nil {
			return n, fmt.Errorf("enqueueing %q: %w", text, err)
		}
		n++
	}
	return n, nil
}

const entryColumns = "id, itinerary_id, location, region, status, retries, created_at, updated_at"

// Due returns up to limit pending entries still under the retry ceiling,
// least recently attempted first.
func (q *Queue) Due(ctx context.Context, limit int) ([]Entry, error) {
	return q.list(ctx, "SELECT "+entryColumns+" FROM geocode_queue WHERE status = ? AND retries < ? ORDER BY updated_at, id LIMIT ?",
		string(EntryPending), MaxRetries, limit)
}

// ForItinerary returns every entry queued for one itinerary.
func (q *Queue) ForItinerary(ctx context.Context, itineraryID string) ([]Entry, error) {
	return q.list(ctx, "SELECT "+entryColumns+" FROM geocode_queue WHERE itinerary_id = ? ORDER BY id", itineraryID)
}

func (q *Queue) list(ctx context.Context, query string, args ...any) (entries []Entry, err error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("selecting queue entries: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing rows: %w", closeErr)
		}
	}()

	for rows.Next() {
		var e Entry
		var status string
		if err := rows.Scan(&e.ID, &e.ItineraryID, &e.Location, &e.Region, &status, &e.Retries, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		e.Status = EntryStatus(status)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entries: %w", err)
	}
	return entries, nil
}

// MarkCompleted retires entries whose location is now cached.
func (q *Queue) MarkCompleted(ctx context.Context, ids ...int64) error {
	return q.update(ctx, "status = 'completed'", ids)
}

// IncrementRetries records one failed attempt on every entry.
func (q *Queue) IncrementRetries(ctx context.Context, ids ...int64) error {
	return q.update(ctx, "retries = retries + 1", ids)
}

// Touch marks entries as attempted without costing a retry, moving them
// behind entries that have waited longer.
func (q *Queue) Touch(ctx context.Context, ids ...int64) error {
	return q.update(ctx, "status = status", ids)
}

func (q *Queue) update(ctx context.Context, set string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	query := fmt.Sprintf("UPDATE geocode_queue SET %s, updated_at = ? WHERE id IN (%s)", set, placeholders)

	args := make([]any, 0, len(ids)+1)
	args = append(args, q.now().UTC())
	for _, id := range ids {
		args = append(args, id)
	}
	if _, err := q.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("updating queue entries: %w", err)
	}
	return nil
}

// Stats counts entries by state.
func (q *Queue) Stats(ctx context.Context) (QueueStats, error) {
	var s QueueStats
	err := q.db.QueryRowContext(ctx, `SELECT
			COALESCE(SUM(CASE WHEN status = 'pending' AND retries < ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'pending' AND retries >= ? THEN 1 ELSE 0 END), 0)
		FROM geocode_queue`, MaxRetries, MaxRetries,
	).Scan(&s.Pending, &s.Completed, &s.Exhausted)
	if err != nil {
		return QueueStats{}, fmt.Errorf("counting queue entries: %w", err)
	}
	return s, nil
}
