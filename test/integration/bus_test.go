// Package integration exercises the registry against real infrastructure.
package integration

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/gridhouse/peerreg/pkg/bus"
	"github.com/gridhouse/peerreg/pkg/config"
	"github.com/gridhouse/peerreg/pkg/errors"
	"github.com/gridhouse/peerreg/pkg/logging"
)

// setupEventBus connects to the test NATS server with a stream name unique
// to this run, skipping the test when the server is unreachable. The stream
// is deleted on cleanup so durable consumers never replay across runs.
func setupEventBus(t *testing.T, ctx context.Context) *bus.JetStreamEventBus {
	t.Helper()

	streamName := fmt.Sprintf("PEERREG_IT_%d", time.Now().UnixNano())
	cfg := config.EventBusConfig{
		Backend:      "jetstream",
		Servers:      []string{"nats://localhost:4222"},
		StreamName:   streamName,
		ConsumerName: "peerreg-integration",
		MaxDeliver:   3,
		AckWait:      5 * time.Second,
	}

	eventBus, err := bus.NewJetStream(ctx, cfg)
	if err != nil {
		t.Skipf("nats not available: %v", err)
	}

	t.Cleanup(func() {
		eventBus.Close()
		deleteStream(streamName)
	})

	return eventBus
}

// deleteStream removes a test stream directly, best effort.
func deleteStream(name string) {
	nc, err := nats.Connect("nats://localhost:4222", nats.Timeout(2*time.Second))
	if err != nil {
		return
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	js.DeleteStream(ctx, name)
}

// TestEventBusLifecycleEvents verifies registry lifecycle events round trip
// through JetStream with their payloads intact.
func TestEventBusLifecycleEvents(t *testing.T) {
	ctx := context.Background()
	eventBus := setupEventBus(t, ctx)

	received := make(chan *bus.Event, 1)
	topic := bus.TopicName(bus.EventServiceRegistered)

	err := eventBus.Subscribe(ctx, topic, func(ctx context.Context, event *bus.Event) error {
		received <- event
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	// Give the consumer time to start
	time.Sleep(100 * time.Millisecond)

	sent := bus.NewServiceRegistered("vision-api", "windows-vm", "http://10.0.0.5:8470")
	if err := eventBus.Publish(ctx, topic, sent); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case event := <-received:
		if event.Type != bus.EventServiceRegistered {
			t.Errorf("Type = %s, want %s", event.Type, bus.EventServiceRegistered)
		}
		if event.ServiceName != "vision-api" {
			t.Errorf("ServiceName = %s, want vision-api", event.ServiceName)
		}
		if event.Environment != "windows-vm" {
			t.Errorf("Environment = %s, want windows-vm", event.Environment)
		}
		if event.Endpoint != "http://10.0.0.5:8470" {
			t.Errorf("Endpoint = %s, want http://10.0.0.5:8470", event.Endpoint)
		}
		if event.OccurredAt.IsZero() {
			t.Error("OccurredAt should be set")
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Timeout waiting for registered event")
	}
}

// TestEventBusDurableReplay verifies events published before a subscriber
// exists are delivered once it attaches.
func TestEventBusDurableReplay(t *testing.T) {
	ctx := context.Background()
	eventBus := setupEventBus(t, ctx)

	topic := bus.TopicName(bus.EventServicesPruned)
	if err := eventBus.Publish(ctx, topic, bus.NewServicesPruned(7)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	received := make(chan *bus.Event, 1)
	err := eventBus.Subscribe(ctx, topic, func(ctx context.Context, event *bus.Event) error {
		received <- event
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	select {
	case event := <-received:
		if event.Count != 7 {
			t.Errorf("Count = %d, want 7", event.Count)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Timeout waiting for replayed event")
	}
}

// TestEventBusTopicIsolation verifies subscriptions only see their own
// event type.
func TestEventBusTopicIsolation(t *testing.T) {
	ctx := context.Background()
	eventBus := setupEventBus(t, ctx)

	registered := make(chan *bus.Event, 2)
	missed := make(chan *bus.Event, 2)

	if err := eventBus.Subscribe(ctx, bus.TopicName(bus.EventServiceRegistered), func(ctx context.Context, event *bus.Event) error {
		registered <- event
		return nil
	}); err != nil {
		t.Fatalf("Subscribe registered failed: %v", err)
	}
	if err := eventBus.Subscribe(ctx, bus.TopicName(bus.EventHeartbeatMissed), func(ctx context.Context, event *bus.Event) error {
		missed <- event
		return nil
	}); err != nil {
		t.Fatalf("Subscribe missed failed: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if err := eventBus.Publish(ctx, bus.TopicName(bus.EventServiceRegistered),
		bus.NewServiceRegistered("chat-api", "container", "http://chat:8000")); err != nil {
		t.Fatalf("Publish registered failed: %v", err)
	}
	if err := eventBus.Publish(ctx, bus.TopicName(bus.EventHeartbeatMissed),
		bus.NewHeartbeatMissed("vision-api", "windows-vm")); err != nil {
		t.Fatalf("Publish missed failed: %v", err)
	}

	select {
	case event := <-registered:
		if event.ServiceName != "chat-api" {
			t.Errorf("registered handler got %s, want chat-api", event.ServiceName)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Timeout waiting for registered event")
	}

	select {
	case event := <-missed:
		if event.ServiceName != "vision-api" {
			t.Errorf("missed handler got %s, want vision-api", event.ServiceName)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Timeout waiting for missed event")
	}

	// Neither handler should see the other's event.
	select {
	case event := <-registered:
		t.Errorf("registered handler got extra event: %+v", event)
	case event := <-missed:
		t.Errorf("missed handler got extra event: %+v", event)
	case <-time.After(500 * time.Millisecond):
	}
}

// TestEventBusRedelivery verifies a handler reporting its backend down gets
// the event again.
func TestEventBusRedelivery(t *testing.T) {
	ctx := context.Background()
	eventBus := setupEventBus(t, ctx)

	var attempts int32
	done := make(chan struct{})

	topic := bus.TopicName(bus.EventServiceUnregistered)
	err := eventBus.Subscribe(ctx, topic, func(ctx context.Context, event *bus.Event) error {
		if atomic.AddInt32(&attempts, 1) == 1 {
			return errors.NewUnavailable("postgres", "connection refused", nil)
		}
		close(done)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if err := eventBus.Publish(ctx, topic, bus.NewServiceUnregistered("chat-api", "container")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case <-done:
		if got := atomic.LoadInt32(&attempts); got < 2 {
			t.Errorf("attempts = %d, want at least 2", got)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("Timeout waiting for redelivery")
	}
}

// TestEventBusWithMiddleware verifies subscription middleware composes over
// JetStream delivery.
func TestEventBusWithMiddleware(t *testing.T) {
	ctx := context.Background()
	eventBus := setupEventBus(t, ctx)

	logger := logging.New(config.LogConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	})

	received := make(chan *bus.Event, 1)
	topic := bus.TopicName(bus.EventServiceRegistered)

	err := eventBus.Subscribe(ctx, topic,
		func(ctx context.Context, event *bus.Event) error {
			received <- event
			return nil
		},
		bus.WithLogging(logger),
		bus.WithRecovery(),
	)
	if err != nil {
		t.Fatalf("Subscribe with middleware failed: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if err := eventBus.Publish(ctx, topic, bus.NewServiceRegistered("dashboard", "container", "http://dashboard:3000")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case event := <-received:
		if event.ServiceName != "dashboard" {
			t.Errorf("ServiceName = %s, want dashboard", event.ServiceName)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Timeout waiting for event through middleware")
	}
}

// TestEventBusClosed verifies a closed bus rejects publishes.
func TestEventBusClosed(t *testing.T) {
	ctx := context.Background()

	streamName := fmt.Sprintf("PEERREG_IT_CLOSED_%d", time.Now().UnixNano())
	cfg := config.EventBusConfig{
		Backend:    "jetstream",
		Servers:    []string{"nats://localhost:4222"},
		StreamName: streamName,
	}

	eventBus, err := bus.NewJetStream(ctx, cfg)
	if err != nil {
		t.Skipf("nats not available: %v", err)
	}
	t.Cleanup(func() { deleteStream(streamName) })

	if err := eventBus.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	err = eventBus.Publish(ctx, bus.TopicName(bus.EventServiceRegistered),
		bus.NewServiceRegistered("vision-api", "windows-vm", "http://vm:8470"))
	if !errors.IsUnavailable(err) {
		t.Errorf("expected Unavailable after close, got %v", err)
	}
}
