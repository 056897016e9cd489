// Package worker runs parameter sweeps asynchronously off the event bus.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/lossim/internal/analysis"
	"github.com/opensource-finance/lossim/internal/bus"
	"github.com/opensource-finance/lossim/internal/domain"
	"github.com/opensource-finance/lossim/internal/logging"
)

// Job states.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ErrJobNotFound is returned for unknown or expired job IDs.
var ErrJobNotFound = errors.New("sweep job not found")

const defaultJobTTL = time.Hour

// Sweeper runs a sweep synchronously.
type Sweeper interface {
	Sweep(ctx context.Context, tenantID string, req analysis.SweepRequest) (*domain.SweepReport, error)
}

// Job is the lossim.sweep.requested payload.
type Job struct {
	JobID   string                `json:"jobId"`
	Request analysis.SweepRequest `json:"request"`
}

// Result is the lossim.sweep.completed payload and the stored job state.
type Result struct {
	JobID    string              `json:"jobId"`
	TenantID string              `json:"tenantId"`
	Status   string              `json:"status"`
	Error    string              `json:"error,omitempty"`
	Report   *domain.SweepReport `json:"report,omitempty"`
}

// Worker consumes sweep jobs per tenant. Job state is kept in the cache,
// when one is configured, so the API can poll it.
type Worker struct {
	bus     domain.EventBus
	sweeper Sweeper
	cache   domain.Cache
	jobTTL  time.Duration
	logger  *slog.Logger

	mu            sync.Mutex
	subscriptions map[string]domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// New creates a sweep worker. cache may be nil; jobTTL <= 0 keeps job
// state for an hour.
func New(b domain.EventBus, sweeper Sweeper, cache domain.Cache, jobTTL time.Duration) *Worker {
	if jobTTL <= 0 {
		jobTTL = defaultJobTTL
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:           b,
		sweeper:       sweeper,
		cache:         cache,
		jobTTL:        jobTTL,
		logger:        logging.New("worker"),
		subscriptions: make(map[string]domain.Subscription),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start subscribes to sweep requests of every listed tenant.
func (w *Worker) Start(tenantIDs []string) error {
	for _, tenantID := range tenantIDs {
		if err := w.Subscribe(tenantID); err != nil {
			return err
		}
	}
	w.logger.Info("sweep worker started", "tenant_count", len(tenantIDs))
	return nil
}

// Subscribe starts consuming a tenant's sweep requests. It is idempotent.
func (w *Worker) Subscribe(tenantID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.ctx.Err(); err != nil {
		return fmt.Errorf("worker stopped: %w", err)
	}
	if _, ok := w.subscriptions[tenantID]; ok {
		return nil
	}

	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicSweepRequested, w.handle)
	if err != nil {
		return fmt.Errorf("subscribe %s for %s: %w", domain.TopicSweepRequested, tenantID, err)
	}
	w.subscriptions[tenantID] = sub

	w.logger.Debug("tenant subscribed", "tenant_id", tenantID, "topic", domain.TopicSweepRequested)
	return nil
}

// Dispatch queues a sweep and returns its job ID. The tenant is subscribed
// first so the request is never published to nobody.
func (w *Worker) Dispatch(ctx context.Context, tenantID string, req analysis.SweepRequest) (string, error) {
	if err := w.Subscribe(tenantID); err != nil {
		return "", err
	}

	job := Job{JobID: uuid.New().String(), Request: req}
	w.store(ctx, tenantID, &Result{JobID: job.JobID, TenantID: tenantID, Status: StatusPending})

	if err := bus.PublishJSON(ctx, w.bus, tenantID, domain.TopicSweepRequested, job); err != nil {
		return "", err
	}
	return job.JobID, nil
}

// Lookup returns the stored state of a job.
func (w *Worker) Lookup(ctx context.Context, tenantID, jobID string) (*Result, error) {
	if w.cache == nil {
		return nil, ErrJobNotFound
	}
	data, err := w.cache.Get(ctx, tenantID, jobKey(jobID))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, ErrJobNotFound
	}

	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", jobID, err)
	}
	return &res, nil
}

func (w *Worker) handle(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var job Job
	if err := json.Unmarshal(msg.Payload, &job); err != nil {
		w.logger.Error("failed to parse sweep job", "message_id", msg.ID, "error", err)
		return err
	}
	if job.JobID == "" {
		job.JobID = msg.ID
	}

	res := &Result{JobID: job.JobID, TenantID: msg.TenantID, Status: StatusCompleted}
	report, err := w.sweeper.Sweep(ctx, msg.TenantID, job.Request)
	if err != nil {
		res.Status = StatusFailed
		res.Error = err.Error()
	} else {
		res.Report = report
	}

	w.store(ctx, msg.TenantID, res)

	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode sweep result: %w", err)
	}
	if err := w.bus.Publish(ctx, msg.TenantID, domain.TopicSweepCompleted, payload); err != nil {
		w.logger.Error("failed to publish sweep result", "job_id", job.JobID, "error", err)
	}
	if err := bus.Respond(w.bus, msg, payload); err != nil {
		w.logger.Error("failed to reply to sweep request", "job_id", job.JobID, "error", err)
	}

	w.logger.Info("sweep processed",
		"job_id", job.JobID,
		"tenant_id", msg.TenantID,
		"status", res.Status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (w *Worker) store(ctx context.Context, tenantID string, res *Result) {
	if w.cache == nil {
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		w.logger.Error("failed to encode job state", "job_id", res.JobID, "error", err)
		return
	}
	if err := w.cache.Set(ctx, tenantID, jobKey(res.JobID), data, w.jobTTL); err != nil {
		w.logger.Warn("failed to store job state", "job_id", res.JobID, "error", err)
	}
}

func jobKey(jobID string) string {
	return "sweep:" + jobID
}

// Stop unsubscribes every tenant.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()

	for tenantID, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			w.logger.Error("failed to unsubscribe",
				"tenant_id", tenantID,
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = make(map[string]domain.Subscription)

	w.logger.Info("sweep worker stopped")
	return nil
}

// Stats describes the worker's subscriptions.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Tenants           []string `json:"tenants"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	tenants := make([]string, 0, len(w.subscriptions))
	for tenantID := range w.subscriptions {
		tenants = append(tenants, tenantID)
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Tenants:           tenants,
	}
}
