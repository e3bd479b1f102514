package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/evcraddock/trip-planner/internal/auth"
	"github.com/evcraddock/trip-planner/internal/itinerary"
	"github.com/evcraddock/trip-planner/internal/job"
	"github.com/evcraddock/trip-planner/internal/plan"
)

// apiError writes a JSON error response.
func apiError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	resp := map[string]string{"error": msg}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, `{"error":"encode failed"}`, http.StatusInternalServerError)
	}
}

// apiJSON writes a JSON response with the given status code.
func apiJSON(w http.ResponseWriter, data any, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, `{"error":"encode failed"}`, http.StatusInternalServerError)
	}
}

// jobError maps orchestrator errors to status codes.
func (s *Server) jobError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, job.ErrValidation):
		apiError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, job.ErrNotFound):
		apiError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, job.ErrConflict):
		apiError(w, err.Error(), http.StatusConflict)
	default:
		s.logger.Error("api request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		apiError(w, err.Error(), http.StatusInternalServerError)
	}
}

// owner returns the authenticated owner. RequireAPIKey guarantees one for
// /api/ routes.
func (s *Server) owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner, ok := auth.OwnerFromContext(r.Context())
	if !ok {
		apiError(w, "authorization required", http.StatusUnauthorized)
	}
	return owner, ok
}

func (s *Server) apiListPlans(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	plans, err := s.orch.ListPlans(r.Context(), owner)
	if err != nil {
		s.jobError(w, r, err)
		return
	}
	if plans == nil {
		plans = make([]*plan.Plan, 0)
	}
	apiJSON(w, plans, http.StatusOK)
}

func (s *Server) apiCreatePlan(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	var req plan.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	p, err := s.orch.CreatePlan(r.Context(), owner, req)
	if err != nil {
		s.jobError(w, r, err)
		return
	}
	apiJSON(w, p, http.StatusCreated)
}

func (s *Server) apiGetPlan(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	p, err := s.orch.GetPlan(r.Context(), owner, r.PathValue("id"))
	if err != nil {
		s.jobError(w, r, err)
		return
	}
	apiJSON(w, p, http.StatusOK)
}

func (s *Server) apiDeletePlan(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	if err := s.orch.DeletePlan(r.Context(), owner, r.PathValue("id")); err != nil {
		s.jobError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// apiGenerate starts generation and answers 202 once the plan is generating.
func (s *Server) apiGenerate(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	p, err := s.orch.StartGenerate(r.Context(), owner, r.PathValue("id"))
	if err != nil {
		s.jobError(w, r, err)
		return
	}
	apiJSON(w, p, http.StatusAccepted)
}

func (s *Server) apiRegenerate(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	var req struct {
		Instructions string `json:"instructions"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apiError(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
	}

	p, err := s.orch.StartRegenerate(r.Context(), owner, r.PathValue("id"), req.Instructions)
	if err != nil {
		s.jobError(w, r, err)
		return
	}
	apiJSON(w, p, http.StatusAccepted)
}

func (s *Server) apiStatus(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	view, err := s.orch.GetStatus(r.Context(), owner, r.PathValue("id"))
	if err != nil {
		s.jobError(w, r, err)
		return
	}
	apiJSON(w, view, http.StatusOK)
}

func (s *Server) apiUpdateDay(w http.ResponseWriter, r *http.Request) {
	owner, ok := s.owner(w, r)
	if !ok {
		return
	}
	day, err := strconv.Atoi(r.PathValue("day"))
	if err != nil {
		apiError(w, "day must be an integer index", http.StatusBadRequest)
		return
	}
	var req struct {
		Activities []itinerary.Activity `json:"activities"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	it, err := s.orch.UpdateDayActivities(r.Context(), owner, r.PathValue("id"), day, req.Activities)
	if err != nil {
		s.jobError(w, r, err)
		return
	}
	apiJSON(w, it, http.StatusOK)
}
