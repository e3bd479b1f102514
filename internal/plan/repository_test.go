package plan

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evcraddock/trip-planner/internal/db"
)

func testRepo(t *testing.T) *Repository {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return NewRepository(d)
}

func newPlan(t *testing.T, id, owner string) *Plan {
	t.Helper()
	p, err := New(id, owner, Request{
		Destination: "Lisbon, Portugal",
		Dates:       "10/05/2025 - 14/05/2025",
		TravelGroup: "couple",
		Budget:      "moderate",
	}, time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return p
}

func TestInsertAndGet(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)

	p := newPlan(t, "p1", "alice")
	p.Accommodation = &Booking{Booked: true, Details: "Hotel Avenida"}
	require.NoError(t, repo.Insert(ctx, p))

	got, err := repo.Get(ctx, "alice", "p1")
	require.NoError(t, err)
	assert.Equal(t, "Lisbon, Portugal", got.Destination)
	assert.Equal(t, StatusPendingGeneration, got.Status)
	assert.Equal(t, GroupCouple, got.TravelGroup)
	assert.True(t, got.StartDate.Equal(p.StartDate))
	assert.True(t, got.EndDate.Equal(p.EndDate))
	assert.Nil(t, got.Flight)
	require.NotNil(t, got.Accommodation)
	assert.Equal(t, "Hotel Avenida", got.Accommodation.Details)
}

func TestGetScopedToOwner(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)
	require.NoError(t, repo.Insert(ctx, newPlan(t, "p1", "alice")))

	_, err := repo.Get(ctx, "bob", "p1")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.Get(ctx, "alice", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTransition(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)
	require.NoError(t, repo.Insert(ctx, newPlan(t, "p1", "alice")))

	ok, err := repo.Transition(ctx, "alice", "p1", []Status{StatusPendingGeneration}, StatusGenerating)
	require.NoError(t, err)
	assert.True(t, ok)

	// Second claim from the same source status must not apply.
	ok, err = repo.Transition(ctx, "alice", "p1", []Status{StatusPendingGeneration}, StatusGenerating)
	require.NoError(t, err)
	assert.False(t, ok)

	// Another owner cannot move it.
	ok, err = repo.Transition(ctx, "bob", "p1", []Status{StatusGenerating}, StatusGenerated)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.Get(ctx, "alice", "p1")
	require.NoError(t, err)
	assert.Equal(t, StatusGenerating, got.Status)
}

func TestTransitionClearsErrorMessage(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)
	require.NoError(t, repo.Insert(ctx, newPlan(t, "p1", "alice")))
	require.NoError(t, repo.SetStatus(ctx, "alice", "p1", StatusError, "synthesizer unavailable"))

	ok, err := repo.Transition(ctx, "alice", "p1", []Status{StatusGenerated, StatusError}, StatusGenerating)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := repo.Get(ctx, "alice", "p1")
	require.NoError(t, err)
	assert.Equal(t, StatusGenerating, got.Status)
	assert.Empty(t, got.ErrorMessage)
}

func TestTransitionStampsUpdatedAt(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)
	later := time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return later }

	require.NoError(t, repo.Insert(ctx, newPlan(t, "p1", "alice")))
	_, err := repo.Transition(ctx, "alice", "p1", []Status{StatusPendingGeneration}, StatusGenerating)
	require.NoError(t, err)

	got, err := repo.Get(ctx, "alice", "p1")
	require.NoError(t, err)
	assert.True(t, got.UpdatedAt.Equal(later), "updated_at = %v", got.UpdatedAt)
}

func TestTransitionRequiresSource(t *testing.T) {
	_, err := testRepo(t).Transition(context.Background(), "alice", "p1", nil, StatusGenerating)
	require.Error(t, err)
}

func TestSetStatus(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)
	require.NoError(t, repo.Insert(ctx, newPlan(t, "p1", "alice")))

	require.NoError(t, repo.SetStatus(ctx, "alice", "p1", StatusError, "boom"))
	got, err := repo.Get(ctx, "alice", "p1")
	require.NoError(t, err)
	assert.Equal(t, StatusError, got.Status)
	assert.Equal(t, "boom", got.ErrorMessage)

	assert.Error(t, repo.SetStatus(ctx, "alice", "p1", Status("done"), ""))
	assert.ErrorIs(t, repo.SetStatus(ctx, "alice", "missing", StatusError, ""), ErrNotFound)
}

func TestSetInstructions(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)
	require.NoError(t, repo.Insert(ctx, newPlan(t, "p1", "alice")))

	require.NoError(t, repo.SetInstructions(ctx, "alice", "p1", "add more museums"))
	got, err := repo.Get(ctx, "alice", "p1")
	require.NoError(t, err)
	assert.Equal(t, "add more museums", got.RegenerationInstructions)

	assert.ErrorIs(t, repo.SetInstructions(ctx, "bob", "p1", "x"), ErrNotFound)
}

func TestListAndListByStatus(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)
	require.NoError(t, repo.Insert(ctx, newPlan(t, "p1", "alice")))
	require.NoError(t, repo.Insert(ctx, newPlan(t, "p2", "alice")))
	require.NoError(t, repo.Insert(ctx, newPlan(t, "p3", "bob")))
	require.NoError(t, repo.SetStatus(ctx, "bob", "p3", StatusGenerating, ""))

	mine, err := repo.List(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	generating, err := repo.ListByStatus(ctx, StatusGenerating)
	require.NoError(t, err)
	require.Len(t, generating, 1)
	assert.Equal(t, "p3", generating[0].ID)
}

func TestFailStuck(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)
	require.NoError(t, repo.Insert(ctx, newPlan(t, "p1", "alice")))
	require.NoError(t, repo.Insert(ctx, newPlan(t, "p2", "bob")))
	require.NoError(t, repo.SetStatus(ctx, "alice", "p1", StatusGenerating, ""))

	n, err := repo.FailStuck(ctx, "generation interrupted")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := repo.Get(ctx, "alice", "p1")
	require.NoError(t, err)
	assert.Equal(t, StatusError, got.Status)
	assert.Equal(t, "generation interrupted", got.ErrorMessage)

	untouched, err := repo.Get(ctx, "bob", "p2")
	require.NoError(t, err)
	assert.Equal(t, StatusPendingGeneration, untouched.Status)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)
	require.NoError(t, repo.Insert(ctx, newPlan(t, "p1", "alice")))

	assert.ErrorIs(t, repo.Delete(ctx, "bob", "p1"), ErrNotFound)
	require.NoError(t, repo.Delete(ctx, "alice", "p1"))

	_, err := repo.Get(ctx, "alice", "p1")
	assert.ErrorIs(t, err, ErrNotFound)
}
