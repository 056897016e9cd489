package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/lossim/internal/domain"
)

// CreatePolicyRequest is the body of POST /policies.
type CreatePolicyRequest struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Expression  string              `json:"expression"`
	Bands       []domain.PolicyBand `json:"bands"`
	Weight      float64             `json:"weight"`
	Enabled     bool                `json:"enabled"`
}

// ListPolicies returns the policies currently loaded in the engine.
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	var loaded []*domain.AppetitePolicy
	if h.Appetite != nil {
		loaded = h.Appetite.Policies()
	}
	if loaded == nil {
		loaded = []*domain.AppetitePolicy{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"policies": loaded,
		"count":    len(loaded),
	})
}

// GetPolicy looks a policy up among the loaded ones first, then in the
// repository, where disabled or not-yet-reloaded policies live.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if h.Appetite != nil {
		for _, p := range h.Appetite.Policies() {
			if p.ID == id {
				writeJSON(w, http.StatusOK, p)
				return
			}
		}
	}
	if h.Repo == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "policy not found"})
		return
	}

	p, err := h.Repo.GetPolicy(r.Context(), GlobalTenantID, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// CreatePolicy validates and stores a policy. It takes effect after
// POST /policies/reload.
func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	if h.Appetite == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "appetite engine not available"})
		return
	}

	var req CreatePolicyRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "id, name, and expression are required"})
		return
	}

	p := &domain.AppetitePolicy{
		ID:          req.ID,
		TenantID:    GlobalTenantID,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1.0.0",
		Expression:  req.Expression,
		Bands:       req.Bands,
		Weight:      req.Weight,
		Enabled:     req.Enabled,
	}
	if err := h.Appetite.ValidatePolicy(p); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid CEL expression: " + err.Error(), Field: "expression"})
		return
	}

	if err := h.Repo.SavePolicy(r.Context(), GlobalTenantID, p); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.Info("policy saved", "policy_id", p.ID, "name", p.Name)
	writeJSON(w, http.StatusCreated, map[string]any{
		"policy":  p,
		"message": "Policy saved. Call POST /policies/reload to apply changes.",
	})
}

// ReloadPolicies swaps the engine's policy set for the repository's. A
// policy that fails to compile leaves the running set untouched.
func (h *Handler) ReloadPolicies(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	if h.Appetite == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "appetite engine not available"})
		return
	}

	stored, err := h.Repo.ListPolicies(r.Context(), GlobalTenantID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.Appetite.ReloadPolicies(stored); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "failed to reload policies: " + err.Error()})
		return
	}

	count := h.Appetite.PoliciesCount()
	h.logger.Info("policies reloaded", "count", count)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "policies reloaded successfully",
		"count":   count,
	})
}
