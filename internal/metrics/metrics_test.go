package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.GeocodeRequest("single", "ok")
		m.CacheLookup(1, 2)
		m.QueueEvent("enqueued", 3)
		m.WorkerTick(true)
		m.Generation("generate", "generated", time.Second)
	})
}

func TestRecording(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.GeocodeRequest("single", "ok")
	m.GeocodeRequest("single", "ok")
	m.GeocodeRequest("batch", "error")
	m.CacheLookup(3, 1)
	m.QueueEvent("enqueued", 4)
	m.QueueEvent("completed", 0)
	m.WorkerTick(false)
	m.WorkerTick(true)
	m.Generation("generate", "generated", 2*time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.GeocodeRequests.WithLabelValues("single", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GeocodeRequests.WithLabelValues("batch", "error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.QueueEntries.WithLabelValues("enqueued")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WorkerTicks.WithLabelValues("skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Generations.WithLabelValues("generate", "generated")))

	n, err := testutil.GatherAndCount(reg, "tp_generation_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNewWithoutRegistry(t *testing.T) {
	m := New(nil)
	m.GeocodeRequest("single", "ok")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GeocodeRequests.WithLabelValues("single", "ok")))
}

func TestOutcome(t *testing.T) {
	errLimited := errors.New("limited")
	labels := map[string]error{"rate_limited": errLimited}

	assert.Equal(t, "ok", Outcome(nil, labels))
	assert.Equal(t, "timeout", Outcome(fmt.Errorf("call: %w", context.DeadlineExceeded), labels))
	assert.Equal(t, "rate_limited", Outcome(fmt.Errorf("call: %w", errLimited), labels))
	assert.Equal(t, "error", Outcome(errors.New("other"), labels))
}
