package geo

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/evcraddock/trip-planner/internal/db"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

// fakeProvider resolves texts from a fixed table and records every call.
type fakeProvider struct {
	mu        sync.Mutex
	known     map[string]*LocationRecord
	failBatch map[string]error
	failOne   map[string]error
	calls     []string
	batches   [][]string
	block     chan struct{}
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		known:     make(map[string]*LocationRecord),
		failBatch: make(map[string]error),
		failOne:   make(map[string]error),
	}
}

func (f *fakeProvider) Resolve(ctx context.Context, text, region string) (*LocationRecord, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	rec, ok := f.known[text]
	err := f.failOne[text]
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (f *fakeProvider) ResolveBatch(ctx context.Context, texts []string, region string) ([]*LocationRecord, error) {
	f.mu.Lock()
	f.batches = append(f.batches, append([]string(nil), texts...))
	block := f.block
	err := f.failBatch[region]
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*LocationRecord, len(texts))
	for i, text := range texts {
		out[i] = f.known[text]
	}
	return out, nil
}

func (f *fakeProvider) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func record(lat, lng float64, name string) *LocationRecord {
	return &LocationRecord{
		Lat:         lat,
		Lng:         lng,
		DisplayName: name,
		MapURL:      MapURL(lat, lng),
		Provider:    "fake",
	}
}
