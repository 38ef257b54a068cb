package bus

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/fraudlens/internal/domain"
)

func TestChannelBus(t *testing.T) {
	bus := NewChannelBus(100)
	defer bus.Close()

	ctx := context.Background()

	t.Run("PublishAndSubscribe", func(t *testing.T) {
		received := make(chan *domain.Message, 1)

		_, err := bus.Subscribe(ctx, "test.topic", func(ctx context.Context, msg *domain.Message) error {
			received <- msg
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}

		if err := bus.Publish(ctx, "test.topic", []byte("hello")); err != nil {
			t.Fatalf("publish failed: %v", err)
		}

		select {
		case msg := <-received:
			if string(msg.Payload) != "hello" {
				t.Errorf("expected payload 'hello', got '%s'", string(msg.Payload))
			}
			if msg.Topic != "test.topic" {
				t.Errorf("expected topic 'test.topic', got '%s'", msg.Topic)
			}
			if msg.ID == "" {
				t.Error("expected message ID")
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for message")
		}
	})

	t.Run("TopicIsolation", func(t *testing.T) {
		var completed, failed atomic.Int32

		bus.Subscribe(ctx, domain.TopicPredictionCompleted, func(ctx context.Context, msg *domain.Message) error {
			completed.Add(1)
			return nil
		})
		bus.Subscribe(ctx, domain.TopicPredictionFailed, func(ctx context.Context, msg *domain.Message) error {
			failed.Add(1)
			return nil
		})

		bus.Publish(ctx, domain.TopicPredictionCompleted, []byte("msg1"))
		time.Sleep(50 * time.Millisecond)

		if completed.Load() != 1 {
			t.Errorf("completed subscriber should receive 1 message, got %d", completed.Load())
		}
		if failed.Load() != 0 {
			t.Errorf("failed subscriber should receive 0 messages, got %d", failed.Load())
		}
	})

	t.Run("RequiresTopic", func(t *testing.T) {
		if err := bus.Publish(ctx, "", []byte("data")); err == nil {
			t.Error("expected error for empty topic")
		}

		_, err := bus.Subscribe(ctx, "", func(ctx context.Context, msg *domain.Message) error {
			return nil
		})
		if err == nil {
			t.Error("expected error for empty topic")
		}
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		var count atomic.Int32

		sub, _ := bus.Subscribe(ctx, "unsub.topic", func(ctx context.Context, msg *domain.Message) error {
			count.Add(1)
			return nil
		})

		bus.Publish(ctx, "unsub.topic", []byte("msg1"))
		time.Sleep(50 * time.Millisecond)

		if count.Load() != 1 {
			t.Errorf("expected 1 message before unsubscribe, got %d", count.Load())
		}

		sub.Unsubscribe()

		bus.Publish(ctx, "unsub.topic", []byte("msg2"))
		time.Sleep(50 * time.Millisecond)

		// Should still be 1 after unsubscribe
		if count.Load() != 1 {
			t.Errorf("expected 1 message after unsubscribe, got %d", count.Load())
		}

		bus.mu.RLock()
		_, remaining := bus.subscriptions["unsub.topic"]
		bus.mu.RUnlock()
		if remaining {
			t.Error("expected topic to be removed after last unsubscribe")
		}
	})

	t.Run("MultipleSubscribers", func(t *testing.T) {
		var count1, count2 atomic.Int32

		bus.Subscribe(ctx, "multi.topic", func(ctx context.Context, msg *domain.Message) error {
			count1.Add(1)
			return nil
		})

		bus.Subscribe(ctx, "multi.topic", func(ctx context.Context, msg *domain.Message) error {
			count2.Add(1)
			return nil
		})

		bus.Publish(ctx, "multi.topic", []byte("broadcast"))
		time.Sleep(50 * time.Millisecond)

		if count1.Load() != 1 || count2.Load() != 1 {
			t.Errorf("expected both subscribers to receive, got %d and %d", count1.Load(), count2.Load())
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := bus.Ping(ctx); err != nil {
			t.Errorf("ping failed: %v", err)
		}
	})

	t.Run("SubscriptionTopic", func(t *testing.T) {
		sub, _ := bus.Subscribe(ctx, "my.topic", func(ctx context.Context, msg *domain.Message) error {
			return nil
		})

		if sub.Topic() != "my.topic" {
			t.Errorf("expected topic 'my.topic', got '%s'", sub.Topic())
		}
	})
}

func TestChannelBusClose(t *testing.T) {
	bus := NewChannelBus(100)

	ctx := context.Background()

	bus.Subscribe(ctx, "close.topic", func(ctx context.Context, msg *domain.Message) error {
		return nil
	})

	if err := bus.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}

	// Operations should fail after close
	if err := bus.Publish(ctx, "close.topic", []byte("data")); err == nil {
		t.Error("expected error after close")
	}

	if err := bus.Ping(ctx); err == nil {
		t.Error("expected ping error after close")
	}

	if err := bus.Close(); err != nil {
		t.Errorf("second close failed: %v", err)
	}
}

func TestNewBus(t *testing.T) {
	t.Run("ChannelType", func(t *testing.T) {
		cfg := domain.EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 50,
		}

		bus, err := New(cfg)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer bus.Close()

		_, ok := bus.(*ChannelBus)
		if !ok {
			t.Error("expected ChannelBus for channel type")
		}
	})

	t.Run("NoneType", func(t *testing.T) {
		bus, err := New(domain.EventBusConfig{Type: "none"})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		if err := bus.Publish(context.Background(), "any", []byte("x")); err != nil {
			t.Errorf("expected nop publish to succeed, got %v", err)
		}
		sub, _ := bus.Subscribe(context.Background(), "any", nil)
		if sub.Topic() != "any" {
			t.Errorf("expected topic 'any', got '%s'", sub.Topic())
		}
	})

	t.Run("UnreachableNATS", func(t *testing.T) {
		cfg := domain.EventBusConfig{
			Type:              "nats",
			NATSUrl:           "nats://127.0.0.1:1",
			NATSMaxReconnects: 1,
		}

		if _, err := New(cfg); err == nil {
			t.Error("expected error for unreachable NATS")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		cfg := domain.EventBusConfig{
			Type: "kafka",
		}

		_, err := New(cfg)
		if err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}

func TestPublishPrediction(t *testing.T) {
	bus := NewChannelBus(10)
	defer bus.Close()

	ctx := context.Background()
	received := make(chan *domain.Message, 2)
	handler := func(ctx context.Context, msg *domain.Message) error {
		received <- msg
		return nil
	}
	bus.Subscribe(ctx, domain.TopicPredictionCompleted, handler)
	bus.Subscribe(ctx, domain.TopicPredictionFailed, handler)

	tests := []struct {
		name  string
		evt   *domain.PredictionEvent
		topic string
	}{
		{
			name:  "scored",
			evt:   &domain.PredictionEvent{PredictionID: "p-1", Variant: domain.VariantClusterAugmented, Label: 1, Probability: 0.9},
			topic: domain.TopicPredictionCompleted,
		},
		{
			name:  "failed",
			evt:   &domain.PredictionEvent{PredictionID: "p-2", Variant: domain.VariantClusterAugmented, FailedStage: domain.StageAssembling},
			topic: domain.TopicPredictionFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TopicFor(tt.evt); got != tt.topic {
				t.Errorf("expected topic %s, got %s", tt.topic, got)
			}
			if err := PublishPrediction(ctx, bus, tt.evt); err != nil {
				t.Fatalf("PublishPrediction failed: %v", err)
			}

			select {
			case msg := <-received:
				if msg.Topic != tt.topic {
					t.Errorf("expected message on %s, got %s", tt.topic, msg.Topic)
				}
				var evt domain.PredictionEvent
				if err := json.Unmarshal(msg.Payload, &evt); err != nil {
					t.Fatalf("failed to decode event: %v", err)
				}
				if evt.PredictionID != tt.evt.PredictionID {
					t.Errorf("expected prediction %s, got %s", tt.evt.PredictionID, evt.PredictionID)
				}
			case <-time.After(time.Second):
				t.Fatal("timeout waiting for event")
			}
		})
	}
}

func TestWatchFailures(t *testing.T) {
	bus := NewChannelBus(10)
	defer bus.Close()

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	monitor, err := WatchFailures(ctx, bus, logger)
	if err != nil {
		t.Fatalf("WatchFailures failed: %v", err)
	}
	defer monitor.Close()

	events := []*domain.PredictionEvent{
		{PredictionID: "p-1", Label: 1, Probability: 0.9},
		{PredictionID: "p-2", FailedStage: domain.StageAssembling, Error: "missing mandatory field \"dist1\""},
		{PredictionID: "p-3", FailedStage: domain.StageAssembling},
		{PredictionID: "p-4", FailedStage: domain.StageReducing},
	}
	for _, evt := range events {
		if err := PublishPrediction(ctx, bus, evt); err != nil {
			t.Fatalf("PublishPrediction failed: %v", err)
		}
	}
	if err := bus.Publish(ctx, domain.TopicPredictionFailed, []byte("not json")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	want := map[domain.Stage]int{domain.StageAssembling: 2, domain.StageReducing: 1}
	deadline := time.Now().Add(time.Second)
	for {
		got := monitor.Counts()
		if got[domain.StageAssembling] == want[domain.StageAssembling] && got[domain.StageReducing] == want[domain.StageReducing] {
			if len(got) != len(want) {
				t.Errorf("unexpected stages counted: %v", got)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected counts %v, got %v", want, got)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestEncodeMessage(t *testing.T) {
	data, err := encodeMessage("fraudlens.prediction.completed", []byte(`{"label":1}`))
	if err != nil {
		t.Fatalf("encodeMessage failed: %v", err)
	}

	var msg domain.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("failed to decode envelope: %v", err)
	}
	if msg.Topic != "fraudlens.prediction.completed" || string(msg.Payload) != `{"label":1}` {
		t.Errorf("unexpected envelope %+v", msg)
	}
}

func TestChannelBusHighLoad(t *testing.T) {
	bus := NewChannelBus(1000)
	defer bus.Close()

	ctx := context.Background()

	var received atomic.Int32
	const messageCount = 100

	var wg sync.WaitGroup
	wg.Add(messageCount)

	bus.Subscribe(ctx, "load.topic", func(ctx context.Context, msg *domain.Message) error {
		received.Add(1)
		wg.Done()
		return nil
	})

	// Publish many messages
	for i := 0; i < messageCount; i++ {
		bus.Publish(ctx, "load.topic", []byte("msg"))
	}

	// Wait for all messages
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if received.Load() != messageCount {
			t.Errorf("expected %d messages, got %d", messageCount, received.Load())
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout: received %d/%d messages", received.Load(), messageCount)
	}
}
