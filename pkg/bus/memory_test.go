package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gridhouse/peerreg/pkg/errors"
)

func TestMemoryEventBus_PublishSubscribe(t *testing.T) {
	bus := NewMemory()
	defer bus.Close()

	ctx := context.Background()
	topic := TopicName(EventServiceRegistered)

	// Track received events
	var received atomic.Int32
	var wg sync.WaitGroup
	wg.Add(1)

	handler := HandlerFunc(func(ctx context.Context, evt *Event) error {
		if evt.ServiceName != "collector" {
			t.Errorf("Expected serviceName=collector, got %s", evt.ServiceName)
		}
		if evt.Type != EventServiceRegistered {
			t.Errorf("Expected type=%s, got %s", EventServiceRegistered, evt.Type)
		}
		received.Add(1)
		wg.Done()
		return nil
	})

	// Subscribe
	err := bus.Subscribe(ctx, topic, handler)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	// Give subscriber time to start
	time.Sleep(10 * time.Millisecond)

	// Publish an event
	evt := NewServiceRegistered("collector", "production", "http://10.0.0.5:8080")
	err = bus.Publish(ctx, topic, evt)
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	// Wait for event to be received
	wg.Wait()

	if received.Load() != 1 {
		t.Errorf("Expected 1 event received, got %d", received.Load())
	}
}

func TestMemoryEventBus_MultipleSubscribers(t *testing.T) {
	bus := NewMemory()
	defer bus.Close()

	ctx := context.Background()
	topic := TopicName(EventServiceUnregistered)

	// Track events received by each subscriber
	var sub1Count, sub2Count atomic.Int32
	var wg sync.WaitGroup
	wg.Add(2)

	handler1 := HandlerFunc(func(ctx context.Context, evt *Event) error {
		sub1Count.Add(1)
		wg.Done()
		return nil
	})

	handler2 := HandlerFunc(func(ctx context.Context, evt *Event) error {
		sub2Count.Add(1)
		wg.Done()
		return nil
	})

	// Subscribe both handlers
	err := bus.Subscribe(ctx, topic, handler1)
	if err != nil {
		t.Fatalf("Subscribe 1 failed: %v", err)
	}

	err = bus.Subscribe(ctx, topic, handler2)
	if err != nil {
		t.Fatalf("Subscribe 2 failed: %v", err)
	}

	time.Sleep(10 * time.Millisecond)

	// Publish an event
	evt := NewServiceUnregistered("dashboard", "staging")
	err = bus.Publish(ctx, topic, evt)
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	// Wait for both subscribers
	wg.Wait()

	if sub1Count.Load() != 1 {
		t.Errorf("Subscriber 1: expected 1 event, got %d", sub1Count.Load())
	}
	if sub2Count.Load() != 1 {
		t.Errorf("Subscriber 2: expected 1 event, got %d", sub2Count.Load())
	}
}

func TestMemoryEventBus_Close(t *testing.T) {
	bus := NewMemory()

	ctx := context.Background()
	topic := TopicName(EventServiceRegistered)

	// Close the bus
	err := bus.Close()
	if err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Try to publish - should fail
	evt := NewServiceRegistered("collector", "production", "http://10.0.0.5:8080")
	err = bus.Publish(ctx, topic, evt)
	if err == nil {
		t.Error("Expected error when publishing to closed bus")
	}
	if !errors.IsUnavailable(err) {
		t.Error("Expected unavailable error for closed bus")
	}

	// Try to subscribe - should fail
	handler := HandlerFunc(func(ctx context.Context, evt *Event) error {
		return nil
	})
	err = bus.Subscribe(ctx, topic, handler)
	if err == nil {
		t.Error("Expected error when subscribing to closed bus")
	}
}

func TestMemoryEventBus_NoSubscribers(t *testing.T) {
	bus := NewMemory()
	defer bus.Close()

	ctx := context.Background()
	topic := TopicName("nonexistent")

	// Publish should succeed even with no subscribers
	evt := NewServicesPruned(3)
	err := bus.Publish(ctx, topic, evt)
	if err != nil {
		t.Errorf("Publish with no subscribers should succeed, got error: %v", err)
	}
}

func TestMemoryEventBus_HandlerError(t *testing.T) {
	bus := NewMemory()
	defer bus.Close()

	ctx := context.Background()
	topic := TopicName(EventHeartbeatMissed)

	var wg sync.WaitGroup
	wg.Add(1)

	handler := HandlerFunc(func(ctx context.Context, evt *Event) error {
		defer wg.Done()
		return errors.NewTransient("simulated error", nil)
	})

	err := bus.Subscribe(ctx, topic, handler)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	time.Sleep(10 * time.Millisecond)

	// Publish - handler will error but bus should continue
	evt := NewHeartbeatMissed("collector", "production")
	err = bus.Publish(ctx, topic, evt)
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	wg.Wait()
	// If we get here, error was handled gracefully
}

func TestMemoryEventBus_DoubleClose(t *testing.T) {
	bus := NewMemory()

	// Close once
	err := bus.Close()
	if err != nil {
		t.Fatalf("First close failed: %v", err)
	}

	// Close again - should be idempotent
	err = bus.Close()
	if err != nil {
		t.Errorf("Second close should not error, got: %v", err)
	}
}
