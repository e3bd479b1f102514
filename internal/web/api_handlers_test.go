package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evcraddock/trip-planner/internal/auth"
	"github.com/evcraddock/trip-planner/internal/db"
	"github.com/evcraddock/trip-planner/internal/enrich"
	"github.com/evcraddock/trip-planner/internal/geo"
	"github.com/evcraddock/trip-planner/internal/itinerary"
	"github.com/evcraddock/trip-planner/internal/job"
	"github.com/evcraddock/trip-planner/internal/metrics"
	"github.com/evcraddock/trip-planner/internal/plan"
	"github.com/evcraddock/trip-planner/internal/synth"
)

type stubSynth struct{}

func (stubSynth) Synthesize(ctx context.Context, req synth.Request) (*itinerary.Itinerary, error) {
	return &itinerary.Itinerary{
		DailyPlans: []itinerary.DayPlan{
			{Date: "2025-05-10", Activities: []itinerary.Activity{
				{Time: "09:00", Activity: "Castle visit", Location: "Castelo de São Jorge"},
			}},
		},
		TotalCost: "€200",
	}, nil
}

func (stubSynth) Reorganize(ctx context.Context, activities []itinerary.Activity, day synth.DayContext) ([]itinerary.Activity, error) {
	return itinerary.CloneActivities(activities), nil
}

type testEnv struct {
	srv   *Server
	orch  *job.Orchestrator
	token string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, d.Close()) })

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	orch := job.New(job.Config{
		DB:          d,
		Synthesizer: stubSynth{},
		Enricher:    enrich.New(geo.NewCache(d), geo.NewQueue(d), nil, enrich.WithMetrics(m)),
		Metrics:     m,
	})
	srv := NewServer(Config{DB: d, Orchestrator: orch, Gatherer: reg})

	rawKey, _, err := auth.NewAPIKeyStore(d).Create("test", "owner-1")
	require.NoError(t, err)
	return &testEnv{srv: srv, orch: orch, token: rawKey}
}

func apiRequest(t *testing.T, srv *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	reqBody := &bytes.Buffer{}
	if body != nil {
		require.NoError(t, json.NewEncoder(reqBody).Encode(body))
	}

	r := httptest.NewRequest(method, path, reqBody)
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v))
	return v
}

func lisbon() plan.Request {
	return plan.Request{
		Destination: "Lisbon, Portugal",
		Dates:       "10/05/2025 - 14/05/2025",
		TravelGroup: "couple",
		Budget:      "moderate",
	}
}

func (e *testEnv) createPlan(t *testing.T) *plan.Plan {
	t.Helper()
	w := apiRequest(t, e.srv, "POST", "/api/plans", e.token, lisbon())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	p := decode[plan.Plan](t, w)
	return &p
}

func TestAPIRequiresKey(t *testing.T) {
	e := newTestEnv(t)

	w := apiRequest(t, e.srv, "GET", "/api/plans", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAPICreatePlan(t *testing.T) {
	e := newTestEnv(t)

	p := e.createPlan(t)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, plan.StatusPendingGeneration, p.Status)

	w := apiRequest(t, e.srv, "GET", "/api/plans", e.token, nil)
	plans := decode[[]plan.Plan](t, w)
	require.Len(t, plans, 1)
	assert.Equal(t, p.ID, plans[0].ID)
}

func TestAPICreatePlanValidation(t *testing.T) {
	e := newTestEnv(t)

	w := apiRequest(t, e.srv, "POST", "/api/plans", e.token, plan.Request{Destination: "Lisbon"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decode[map[string]string](t, w)
	assert.Contains(t, resp["error"], "dates are required")

	r := httptest.NewRequest("POST", "/api/plans", strings.NewReader("{not json"))
	r.Header.Set("Authorization", "Bearer "+e.token)
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "bad JSON")
}

func TestAPIGenerateAndStatus(t *testing.T) {
	e := newTestEnv(t)
	p := e.createPlan(t)

	w := apiRequest(t, e.srv, "POST", "/api/plans/"+p.ID+"/generate", e.token, nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Equal(t, plan.StatusGenerating, decode[plan.Plan](t, w).Status)
	e.orch.Wait()

	w = apiRequest(t, e.srv, "GET", "/api/plans/"+p.ID+"/status", e.token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[job.StatusView](t, w)
	assert.Equal(t, plan.StatusGenerated, view.Status)
	require.NotNil(t, view.Itinerary)
	require.Len(t, view.Itinerary.DailyPlans, 1)

	w = apiRequest(t, e.srv, "POST", "/api/plans/"+p.ID+"/generate", e.token, nil)
	assert.Equal(t, http.StatusConflict, w.Code, "second generate")
}

func TestAPIRegenerate(t *testing.T) {
	e := newTestEnv(t)
	p := e.createPlan(t)

	w := apiRequest(t, e.srv, "POST", "/api/plans/"+p.ID+"/regenerate", e.token, map[string]string{"instructions": "more museums"})
	assert.Equal(t, http.StatusNotFound, w.Code, "regenerate before generate")

	apiRequest(t, e.srv, "POST", "/api/plans/"+p.ID+"/generate", e.token, nil)
	e.orch.Wait()

	w = apiRequest(t, e.srv, "POST", "/api/plans/"+p.ID+"/regenerate", e.token, map[string]string{"instructions": "more museums"})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	e.orch.Wait()

	w = apiRequest(t, e.srv, "GET", "/api/plans/"+p.ID, e.token, nil)
	got := decode[plan.Plan](t, w)
	assert.Equal(t, "more museums", got.RegenerationInstructions)
	assert.Equal(t, plan.StatusGenerated, got.Status)
}

func TestAPIUpdateDay(t *testing.T) {
	e := newTestEnv(t)
	p := e.createPlan(t)
	apiRequest(t, e.srv, "POST", "/api/plans/"+p.ID+"/generate", e.token, nil)
	e.orch.Wait()

	body := map[string]any{"activities": []itinerary.Activity{
		{Time: "10:00", Activity: "Tram ride", Location: "Martim Moniz"},
	}}
	w := apiRequest(t, e.srv, "PUT", "/api/plans/"+p.ID+"/days/0", e.token, body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	it := decode[itinerary.Itinerary](t, w)
	require.NotEmpty(t, it.DailyPlans)
	require.NotEmpty(t, it.DailyPlans[0].Activities)
	assert.Equal(t, "Tram ride", it.DailyPlans[0].Activities[0].Activity)

	for path, want := range map[string]int{
		"/api/plans/" + p.ID + "/days/9":   http.StatusBadRequest,
		"/api/plans/" + p.ID + "/days/one": http.StatusBadRequest,
		"/api/plans/missing/days/0":        http.StatusNotFound,
	} {
		w := apiRequest(t, e.srv, "PUT", path, e.token, body)
		assert.Equal(t, want, w.Code, path)
	}
}

func TestAPIOwnerIsolation(t *testing.T) {
	e := newTestEnv(t)
	p := e.createPlan(t)

	other, _, err := e.srv.apiKeys.Create("other", "owner-2")
	require.NoError(t, err)
	for _, req := range []struct{ method, path string }{
		{"GET", "/api/plans/" + p.ID},
		{"GET", "/api/plans/" + p.ID + "/status"},
		{"POST", "/api/plans/" + p.ID + "/generate"},
		{"DELETE", "/api/plans/" + p.ID},
	} {
		w := apiRequest(t, e.srv, req.method, req.path, other, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, "%s %s", req.method, req.path)
	}
}

func TestAPIDeletePlan(t *testing.T) {
	e := newTestEnv(t)
	p := e.createPlan(t)

	w := apiRequest(t, e.srv, "DELETE", "/api/plans/"+p.ID, e.token, nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	w = apiRequest(t, e.srv, "GET", "/api/plans/"+p.ID+"/status", e.token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "status after delete")
}

func TestHealthAndMetrics(t *testing.T) {
	e := newTestEnv(t)
	p := e.createPlan(t)
	apiRequest(t, e.srv, "POST", "/api/plans/"+p.ID+"/generate", e.token, nil)
	e.orch.Wait()

	w := apiRequest(t, e.srv, "GET", "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	health := decode[struct {
		Status string         `json:"status"`
		Queue  geo.QueueStats `json:"geocode_queue"`
	}](t, w)
	assert.Equal(t, "ok", health.Status)
	assert.EqualValues(t, 1, health.Queue.Pending)

	w = apiRequest(t, e.srv, "GET", "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `tp_generations_total{kind="generate",status="generated"} 1`)
}
