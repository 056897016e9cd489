package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/lossim/internal/analysis"
	"github.com/opensource-finance/lossim/internal/domain"
	"github.com/opensource-finance/lossim/internal/scenario"
)

// CreateScenarioRequest is the body of POST /scenarios. Preset names an
// embedded scenario used as the starting point; explicit fields override it.
type CreateScenarioRequest struct {
	ID          string               `json:"id,omitempty"`
	Preset      string               `json:"preset,omitempty"`
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	Params      *domain.ParameterSet `json:"params,omitempty"`
	Seed        *int64               `json:"seed,omitempty"`
	Paths       int                  `json:"paths,omitempty"`
}

func (h *Handler) requireRepo(w http.ResponseWriter) bool {
	if h.Repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "repository not available"})
		return false
	}
	return true
}

// CreateScenario saves a named parameter set for the tenant.
func (h *Handler) CreateScenario(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req CreateScenarioRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	seed, paths := h.Service.Defaults()
	s := &domain.Scenario{
		Params: h.Service.Baseline(),
		Seed:   seed,
		Paths:  paths,
	}
	if req.Preset != "" {
		preset, err := scenario.LoadPreset(req.Preset)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Field: "preset"})
			return
		}
		s = preset
	}

	s.ID = req.ID
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if req.Name != "" {
		s.Name = req.Name
	}
	if req.Description != "" {
		s.Description = req.Description
	}
	if req.Params != nil {
		s.Params = *req.Params
	}
	if req.Seed != nil {
		s.Seed = *req.Seed
	}
	if req.Paths != 0 {
		s.Paths = req.Paths
	}

	if err := s.Validate(); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.Repo.SaveScenario(ctx, tenantID, s); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.Info("scenario saved", "tenant_id", tenantID, "scenario_id", s.ID, "name", s.Name)
	writeJSON(w, http.StatusCreated, s)
}

// ListScenarios returns the tenant's saved scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}

	list, err := h.Repo.ListScenarios(r.Context(), GetTenantID(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []*domain.Scenario{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scenarios": list,
		"count":     len(list),
	})
}

// GetScenario returns one saved scenario.
func (h *Handler) GetScenario(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}

	s, err := h.Repo.GetScenario(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// DeleteScenario removes a saved scenario.
func (h *Handler) DeleteScenario(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	tenantID := GetTenantID(r.Context())
	id := chi.URLParam(r, "id")

	if err := h.Repo.DeleteScenario(r.Context(), tenantID, id); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.Info("scenario deleted", "tenant_id", tenantID, "scenario_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// SimulateScenario runs a saved scenario with its stored seed and paths.
func (h *Handler) SimulateScenario(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	s, err := h.Repo.GetScenario(ctx, tenantID, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	report, err := h.Service.Simulate(ctx, tenantID, analysis.SimulateRequest{
		Params: &s.Params,
		Seed:   &s.Seed,
		Paths:  s.Paths,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
