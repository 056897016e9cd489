package bus

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/lossim/internal/domain"
)

func waitFor(t *testing.T, ch <-chan *domain.Message) *domain.Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
		return nil
	}
}

func collect(ch chan<- *domain.Message) domain.MessageHandler {
	return func(_ context.Context, msg *domain.Message) error {
		ch <- msg
		return nil
	}
}

func TestChannelBus(t *testing.T) {
	bus := NewChannelBus(100)
	defer bus.Close()

	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("PublishAndSubscribe", func(t *testing.T) {
		got := make(chan *domain.Message, 1)
		if _, err := bus.Subscribe(ctx, tenantID, domain.TopicRunCompleted, collect(got)); err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}

		if err := bus.Publish(ctx, tenantID, domain.TopicRunCompleted, []byte("hello")); err != nil {
			t.Fatalf("publish failed: %v", err)
		}

		msg := waitFor(t, got)
		if string(msg.Payload) != "hello" {
			t.Errorf("expected payload 'hello', got '%s'", string(msg.Payload))
		}
		if msg.TenantID != tenantID || msg.Topic != domain.TopicRunCompleted {
			t.Errorf("unexpected envelope: %+v", msg)
		}
		if msg.ID == "" || msg.Timestamp == 0 {
			t.Error("expected message id and timestamp")
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		got1 := make(chan *domain.Message, 1)
		got2 := make(chan *domain.Message, 1)
		_, _ = bus.Subscribe(ctx, "tenant-a", "isolation.topic", collect(got1))
		_, _ = bus.Subscribe(ctx, "tenant-b", "isolation.topic", collect(got2))

		_ = bus.Publish(ctx, "tenant-a", "isolation.topic", []byte("msg1"))

		waitFor(t, got1)
		select {
		case <-got2:
			t.Error("tenant-b received tenant-a's message")
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		if err := bus.Publish(ctx, "", "topic", []byte("data")); err == nil {
			t.Error("expected error for empty tenantID")
		}
		if _, err := bus.Subscribe(ctx, "", "topic", collect(make(chan *domain.Message))); err == nil {
			t.Error("expected error for empty tenantID")
		}
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		var count atomic.Int32
		got := make(chan *domain.Message, 4)

		sub, _ := bus.Subscribe(ctx, tenantID, "unsub.topic", func(ctx context.Context, msg *domain.Message) error {
			count.Add(1)
			got <- msg
			return nil
		})

		_ = bus.Publish(ctx, tenantID, "unsub.topic", []byte("msg1"))
		waitFor(t, got)

		if err := sub.Unsubscribe(); err != nil {
			t.Fatalf("unsubscribe failed: %v", err)
		}
		_ = bus.Publish(ctx, tenantID, "unsub.topic", []byte("msg2"))
		time.Sleep(50 * time.Millisecond)

		if count.Load() != 1 {
			t.Errorf("expected 1 message after unsubscribe, got %d", count.Load())
		}

		bus.mu.RLock()
		_, still := bus.subscriptions[subscriptionKey(tenantID, "unsub.topic")]
		bus.mu.RUnlock()
		if still {
			t.Error("subscription not removed from bus")
		}
	})

	t.Run("MultipleSubscribers", func(t *testing.T) {
		got1 := make(chan *domain.Message, 1)
		got2 := make(chan *domain.Message, 1)
		_, _ = bus.Subscribe(ctx, tenantID, "multi.topic", collect(got1))
		_, _ = bus.Subscribe(ctx, tenantID, "multi.topic", collect(got2))

		_ = bus.Publish(ctx, tenantID, "multi.topic", []byte("broadcast"))

		waitFor(t, got1)
		waitFor(t, got2)
	})

	t.Run("PublishJSON", func(t *testing.T) {
		got := make(chan *domain.Message, 1)
		_, _ = bus.Subscribe(ctx, tenantID, domain.TopicAppetiteBreach, collect(got))

		report := &domain.RunReport{RunID: "run-42", Seed: 42, Paths: 100}
		if err := PublishJSON(ctx, bus, tenantID, domain.TopicAppetiteBreach, report); err != nil {
			t.Fatalf("PublishJSON failed: %v", err)
		}

		var decoded domain.RunReport
		if err := json.Unmarshal(waitFor(t, got).Payload, &decoded); err != nil {
			t.Fatalf("payload is not a report: %v", err)
		}
		if decoded.RunID != "run-42" {
			t.Errorf("expected run-42, got %s", decoded.RunID)
		}
	})

	t.Run("RequestReply", func(t *testing.T) {
		_, _ = bus.Subscribe(ctx, tenantID, "echo.topic", func(_ context.Context, msg *domain.Message) error {
			return Respond(bus, msg, append([]byte("echo:"), msg.Payload...))
		})

		rctx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()

		reply, err := bus.Request(rctx, tenantID, "echo.topic", []byte("ping"))
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		if string(reply) != "echo:ping" {
			t.Errorf("expected 'echo:ping', got %q", reply)
		}
	})

	t.Run("RequestTimeout", func(t *testing.T) {
		rctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()

		if _, err := bus.Request(rctx, tenantID, "nobody.listens", nil); err == nil {
			t.Error("expected timeout error")
		}
	})

	t.Run("RespondWithoutReplyAddress", func(t *testing.T) {
		msg := &domain.Message{TenantID: tenantID, Metadata: map[string]string{}}
		if err := Respond(bus, msg, []byte("x")); err != nil {
			t.Errorf("expected no-op, got %v", err)
		}
	})

	t.Run("SubscriptionTopic", func(t *testing.T) {
		sub, _ := bus.Subscribe(ctx, tenantID, "my.topic", collect(make(chan *domain.Message, 1)))
		if sub.Topic() != "my.topic" {
			t.Errorf("expected topic 'my.topic', got '%s'", sub.Topic())
		}
	})
}

func TestChannelBusClose(t *testing.T) {
	bus := NewChannelBus(100)
	ctx := context.Background()

	_, _ = bus.Subscribe(ctx, "tenant-001", "close.topic", collect(make(chan *domain.Message, 1)))

	if err := bus.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Errorf("second close failed: %v", err)
	}

	if err := bus.Publish(ctx, "tenant-001", "close.topic", []byte("data")); err == nil {
		t.Error("expected error after close")
	}
	if err := bus.Ping(ctx); err == nil {
		t.Error("expected ping error after close")
	}
}

func TestNewBus(t *testing.T) {
	t.Run("ChannelType", func(t *testing.T) {
		bus, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 50})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer bus.Close()

		if _, ok := bus.(*ChannelBus); !ok {
			t.Error("expected ChannelBus for channel type")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		if _, err := New(domain.EventBusConfig{Type: "kafka"}); err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}

func TestNATSSubject(t *testing.T) {
	if got := subject("tenant-001", domain.TopicSweepCompleted); got != "lossim.sweep.completed.tenant-001" {
		t.Errorf("unexpected subject %q", got)
	}
}

func TestChannelBusHighLoad(t *testing.T) {
	bus := NewChannelBus(1000)
	defer bus.Close()

	ctx := context.Background()
	const messageCount = 100

	got := make(chan *domain.Message, messageCount)
	_, _ = bus.Subscribe(ctx, "tenant-load", "load.topic", collect(got))

	for i := 0; i < messageCount; i++ {
		_ = bus.Publish(ctx, "tenant-load", "load.topic", []byte("msg"))
	}

	for i := 0; i < messageCount; i++ {
		waitFor(t, got)
	}
}
