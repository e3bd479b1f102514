package geo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueue(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(testDB(t))

	n, err := q.Enqueue(ctx, "it-1", []string{"MAAT", " MAAT ", "", "LX Factory"}, "Lisbon")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	entries, err := q.ForItinerary(ctx, "it-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "MAAT", entries[0].Location)
	assert.Equal(t, "Lisbon", entries[0].Region)
	assert.Equal(t, EntryPending, entries[0].Status)
	assert.Equal(t, 0, entries[0].Retries)
}

func TestDueRespectsLimitAndOrder(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(testDB(t))
	_, err := q.Enqueue(ctx, "it-1", []string{"a", "b", "c"}, "Lisbon")
	require.NoError(t, err)

	due, err := q.Due(ctx, 2)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "a", due[0].Location)
	assert.Equal(t, "b", due[1].Location)
}

func TestDueExcludesCompletedAndExhausted(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(testDB(t))
	_, err := q.Enqueue(ctx, "it-1", []string{"done", "tired", "fresh"}, "Lisbon")
	require.NoError(t, err)

	due, err := q.Due(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 3)
	done, tired := due[0].ID, due[1].ID

	require.NoError(t, q.MarkCompleted(ctx, done))
	for i := 0; i < MaxRetries; i++ {
		require.NoError(t, q.IncrementRetries(ctx, tired))
	}

	due, err = q.Due(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "fresh", due[0].Location)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, QueueStats{Pending: 1, Completed: 1, Exhausted: 1}, stats)

	// Exhausted entries stay in the table as pending.
	entries, err := q.ForItinerary(ctx, "it-1")
	require.NoError(t, err)
	assert.Equal(t, EntryPending, entries[1].Status)
	assert.Equal(t, MaxRetries, entries[1].Retries)
}

func TestTouchMovesEntriesBehindOlderOnes(t *testing.T) {
	ctx := context.Background()
	q := NewQueue(testDB(t))
	clock := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return clock }

	_, err := q.Enqueue(ctx, "it-1", []string{"stubborn", "patient"}, "Lisbon")
	require.NoError(t, err)
	clock = clock.Add(time.Minute)
	_, err = q.Enqueue(ctx, "it-2", []string{"newcomer"}, "Lisbon")
	require.NoError(t, err)

	due, err := q.Due(ctx, 1)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "stubborn", due[0].Location)

	clock = clock.Add(time.Minute)
	require.NoError(t, q.Touch(ctx, due[0].ID))

	due, err = q.Due(ctx, 3)
	require.NoError(t, err)
	require.Len(t, due, 3)
	assert.Equal(t, []string{"patient", "newcomer", "stubborn"},
		[]string{due[0].Location, due[1].Location, due[2].Location})
	assert.Equal(t, 0, due[2].Retries)
}

func TestUpdateWithNoIDsIsNoop(t *testing.T) {
	q := NewQueue(testDB(t))
	require.NoError(t, q.MarkCompleted(context.Background()))
	require.NoError(t, q.IncrementRetries(context.Background()))
	require.NoError(t, q.Touch(context.Background()))
}

func TestStatsEmpty(t *testing.T) {
	stats, err := NewQueue(testDB(t)).Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, QueueStats{}, stats)
}
