package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/lossim/internal/analysis"
	"github.com/opensource-finance/lossim/internal/appetite"
	"github.com/opensource-finance/lossim/internal/domain"
	"github.com/opensource-finance/lossim/internal/logging"
	"github.com/opensource-finance/lossim/internal/quota"
	"github.com/opensource-finance/lossim/internal/repository"
	"github.com/opensource-finance/lossim/internal/scenario"
	"github.com/opensource-finance/lossim/internal/telemetry"
	"github.com/opensource-finance/lossim/internal/worker"
)

// GlobalTenantID owns appetite policies, which apply to every tenant.
const GlobalTenantID = "*"

// maxBodyBytes bounds request bodies. Sweep requests are the largest.
const maxBodyBytes = 1 << 20

// SweepQueue dispatches sweeps to the worker and reports their state.
type SweepQueue interface {
	Dispatch(ctx context.Context, tenantID string, req analysis.SweepRequest) (string, error)
	Lookup(ctx context.Context, tenantID, jobID string) (*worker.Result, error)
}

// Deps are the handler's collaborators. Only Service is required.
type Deps struct {
	Service  *analysis.Service
	Repo     domain.Repository
	Cache    domain.Cache
	Bus      domain.EventBus
	Appetite *appetite.Engine
	Sweeps   SweepQueue
	Metrics  *telemetry.Metrics
	Version  string
}

// Handler holds dependencies for API handlers.
type Handler struct {
	Deps
	logger *slog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(d Deps) *Handler {
	return &Handler{Deps: d, logger: logging.New("api")}
}

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps domain errors onto HTTP status codes.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	body := errorBody{Error: err.Error()}

	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		status = http.StatusBadRequest
		body.Field = verr.Field
	case errors.Is(err, domain.ErrInvalidParameter), errors.Is(err, repository.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, worker.ErrJobNotFound):
		status = http.StatusNotFound
	case errors.Is(err, quota.ErrQuotaExceeded):
		status = http.StatusTooManyRequests
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			"path", r.URL.Path,
			"tenant_id", GetTenantID(r.Context()),
			"trace_id", GetTraceID(r.Context()),
			"error", err,
		)
		body.Error = "internal server error"
	}
	writeJSON(w, status, body)
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: invalid JSON request body: %v", repository.ErrInvalidInput, err)
	}
	return nil
}

// Health reports the status of every configured backend.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checks := map[string]string{}
	status := "healthy"

	check := func(name string, ping func(context.Context) error) {
		if err := ping(ctx); err != nil {
			checks[name] = err.Error()
			status = "degraded"
			return
		}
		checks[name] = "ok"
	}
	if h.Repo != nil {
		check("repository", h.Repo.Ping)
	}
	if h.Cache != nil {
		check("cache", h.Cache.Ping)
	}
	if h.Bus != nil {
		check("eventBus", h.Bus.Ping)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": h.Version,
		"checks":  checks,
	})
}

// Ready reports whether the server can take traffic: appetite policies
// are loaded when an engine is configured.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	policies := 0
	if h.Appetite != nil {
		policies = h.Appetite.PoliciesCount()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ready":    true,
		"policies": policies,
	})
}

// Simulate handles POST /simulate.
func (h *Handler) Simulate(w http.ResponseWriter, r *http.Request) {
	var req analysis.SimulateRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	report, err := h.Service.Simulate(r.Context(), GetTenantID(r.Context()), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Tornado handles POST /tornado.
func (h *Handler) Tornado(w http.ResponseWriter, r *http.Request) {
	var req analysis.TornadoRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.Service.Tornado(r.Context(), GetTenantID(r.Context()), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Stress handles POST /stress.
func (h *Handler) Stress(w http.ResponseWriter, r *http.Request) {
	var req analysis.StressRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.Service.Stress(r.Context(), GetTenantID(r.Context()), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Sweep handles POST /sweep synchronously.
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	var req analysis.SweepRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.Service.Sweep(r.Context(), GetTenantID(r.Context()), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SweepAsync handles POST /sweep/async: the sweep is queued on the event
// bus and its job ID returned with 202.
func (h *Handler) SweepAsync(w http.ResponseWriter, r *http.Request) {
	if h.Sweeps == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "async sweeps not available"})
		return
	}

	var req analysis.SweepRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	// Fail fast on bad requests rather than in the worker.
	if err := h.Service.ValidateSweep(req); err != nil {
		h.writeError(w, r, err)
		return
	}

	tenantID := GetTenantID(r.Context())
	jobID, err := h.Sweeps.Dispatch(r.Context(), tenantID, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logger.Info("sweep queued", "tenant_id", tenantID, "job_id", jobID, "samples", req.Samples)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"jobId":  jobID,
		"status": worker.StatusPending,
	})
}

// GetSweep handles GET /sweeps/{id}.
func (h *Handler) GetSweep(w http.ResponseWriter, r *http.Request) {
	if h.Sweeps == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "async sweeps not available"})
		return
	}

	res, err := h.Sweeps.Lookup(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListPresets handles GET /presets.
func (h *Handler) ListPresets(w http.ResponseWriter, r *http.Request) {
	names := scenario.ListPresets()
	writeJSON(w, http.StatusOK, map[string]any{
		"presets": names,
		"count":   len(names),
	})
}

// GetPreset handles GET /presets/{name}.
func (h *Handler) GetPreset(w http.ResponseWriter, r *http.Request) {
	s, err := scenario.LoadPreset(chi.URLParam(r, "name"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, s)
}
