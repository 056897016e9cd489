package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/lossim/internal/analysis"
	"github.com/opensource-finance/lossim/internal/bus"
	"github.com/opensource-finance/lossim/internal/cache"
	"github.com/opensource-finance/lossim/internal/domain"
)

type fakeSweeper struct {
	calls atomic.Int32
	err   error
}

func (f *fakeSweeper) Sweep(_ context.Context, tenantID string, req analysis.SweepRequest) (*domain.SweepReport, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	points := make([]domain.SweepPoint, req.Samples)
	for i := range points {
		points[i].Index = i
	}
	return &domain.SweepReport{SweepID: "sweep-1", TenantID: tenantID, Paths: req.Paths, Points: points}, nil
}

func awaitResult(t *testing.T, ch <-chan *domain.Message) Result {
	t.Helper()
	select {
	case msg := <-ch:
		var res Result
		if err := json.Unmarshal(msg.Payload, &res); err != nil {
			t.Fatalf("bad result payload: %v", err)
		}
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for sweep result")
	}
	return Result{}
}

func subscribeCompleted(t *testing.T, b domain.EventBus, tenantID string) <-chan *domain.Message {
	t.Helper()
	ch := make(chan *domain.Message, 4)
	_, err := b.Subscribe(context.Background(), tenantID, domain.TopicSweepCompleted, func(_ context.Context, msg *domain.Message) error {
		ch <- msg
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	return ch
}

func TestStartAndStop(t *testing.T) {
	eventBus := bus.NewChannelBus(10)
	defer eventBus.Close()

	w := New(eventBus, &fakeSweeper{}, nil, 0)
	if err := w.Start([]string{"tenant-001", "tenant-002"}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := w.Subscribe("tenant-001"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if got := w.GetStats().SubscriptionCount; got != 2 {
		t.Errorf("expected 2 subscriptions, got %d", got)
	}

	if err := w.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if got := w.GetStats().SubscriptionCount; got != 0 {
		t.Errorf("expected 0 subscriptions after stop, got %d", got)
	}
	if err := w.Subscribe("tenant-003"); err == nil {
		t.Error("expected Subscribe to fail after Stop")
	}
}

func TestDispatch(t *testing.T) {
	eventBus := bus.NewChannelBus(10)
	defer eventBus.Close()
	lru := cache.NewLRUCache(100)
	defer lru.Close()

	sweeper := &fakeSweeper{}
	w := New(eventBus, sweeper, lru, time.Minute)
	defer w.Stop()

	ctx := context.Background()
	completed := subscribeCompleted(t, eventBus, "tenant-001")

	jobID, err := w.Dispatch(ctx, "tenant-001", analysis.SweepRequest{Samples: 3, Paths: 100})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	res := awaitResult(t, completed)
	if res.JobID != jobID || res.Status != StatusCompleted {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Report == nil || len(res.Report.Points) != 3 {
		t.Errorf("expected 3 points, got %+v", res.Report)
	}

	stored, err := w.Lookup(ctx, "tenant-001", jobID)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if stored.Status != StatusCompleted {
		t.Errorf("expected stored status %s, got %s", StatusCompleted, stored.Status)
	}

	if _, err := w.Lookup(ctx, "tenant-002", jobID); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound for other tenant, got %v", err)
	}
	if sweeper.calls.Load() != 1 {
		t.Errorf("expected 1 sweep call, got %d", sweeper.calls.Load())
	}
}

func TestDispatchFailure(t *testing.T) {
	eventBus := bus.NewChannelBus(10)
	defer eventBus.Close()

	w := New(eventBus, &fakeSweeper{err: domain.InvalidField("n", 0, "must be positive")}, nil, 0)
	defer w.Stop()

	completed := subscribeCompleted(t, eventBus, "tenant-001")
	if _, err := w.Dispatch(context.Background(), "tenant-001", analysis.SweepRequest{}); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	res := awaitResult(t, completed)
	if res.Status != StatusFailed || res.Error == "" || res.Report != nil {
		t.Errorf("expected failed result with error, got %+v", res)
	}
}

func TestRequestReply(t *testing.T) {
	eventBus := bus.NewChannelBus(10)
	defer eventBus.Close()

	w := New(eventBus, &fakeSweeper{}, nil, 0)
	defer w.Stop()
	if err := w.Start([]string{"tenant-001"}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	payload, _ := json.Marshal(Job{JobID: "job-1", Request: analysis.SweepRequest{Samples: 2}})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reply, err := eventBus.Request(ctx, "tenant-001", domain.TopicSweepRequested, payload)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}

	var res Result
	if err := json.Unmarshal(reply, &res); err != nil {
		t.Fatalf("bad reply: %v", err)
	}
	if res.JobID != "job-1" || res.Status != StatusCompleted || len(res.Report.Points) != 2 {
		t.Errorf("unexpected reply: %+v", res)
	}
}

func TestHandleRejectsBadPayload(t *testing.T) {
	w := New(bus.NewChannelBus(1), &fakeSweeper{}, nil, 0)
	defer w.Stop()

	err := w.handle(context.Background(), &domain.Message{ID: "m1", TenantID: "tenant-001", Payload: []byte("{not json")})
	if err == nil {
		t.Error("expected parse error")
	}
}

func TestLookupWithoutCache(t *testing.T) {
	w := New(bus.NewChannelBus(1), &fakeSweeper{}, nil, 0)
	defer w.Stop()

	if _, err := w.Lookup(context.Background(), "tenant-001", "job"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}
