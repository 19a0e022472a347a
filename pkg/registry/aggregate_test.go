package registry

import (
	"context"
	"testing"
	"time"

	"github.com/gridhouse/peerreg/pkg/config"
)

// TestFindAIService tests the GPU-preferring AI lookup.
func TestFindAIService(t *testing.T) {
	ctx := context.Background()

	t.Run("Prefers the Windows VM", func(t *testing.T) {
		store := NewMemoryStore()
		mustUpsert(t, store, Registration{
			ServiceName:  "ai-container",
			Environment:  EnvironmentContainer,
			Endpoint:     "http://10.0.0.8:9000",
			Capabilities: []string{CapabilityAI},
		})
		mustUpsert(t, store, Registration{
			ServiceName:  "ai-gpu",
			Environment:  EnvironmentWindowsVM,
			Endpoint:     "http://10.0.0.5:9000",
			Capabilities: []string{CapabilityAI},
		})
		c := newTestClient(t, config.RegistryConfig{}, WithStore(store))

		svc := c.FindAIService(ctx)
		if svc == nil {
			t.Fatal("FindAIService returned nil")
		}
		if svc.Name != "ai-gpu" {
			t.Errorf("Expected the Windows VM worker, got %s", svc.Name)
		}
	})

	t.Run("Falls back to the freshest candidate", func(t *testing.T) {
		base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		store := NewMemoryStore()
		store.now = func() time.Time { return base.Add(-time.Minute) }
		mustUpsert(t, store, Registration{
			ServiceName:  "ai-older",
			Environment:  EnvironmentContainer,
			Endpoint:     "http://h:1",
			Capabilities: []string{CapabilityAI},
		})
		store.now = func() time.Time { return base }
		mustUpsert(t, store, Registration{
			ServiceName:  "ai-newest",
			Environment:  EnvironmentGPUNode,
			Endpoint:     "http://h:2",
			Capabilities: []string{CapabilityAI},
		})
		c := newTestClient(t, config.RegistryConfig{}, WithStore(store))
		c.now = func() time.Time { return base }

		svc := c.FindAIService(ctx)
		if svc == nil || svc.Name != "ai-newest" {
			t.Errorf("Expected the freshest candidate, got %+v", svc)
		}
	})

	t.Run("Nothing available is nil", func(t *testing.T) {
		c := newTestClient(t, config.RegistryConfig{}, WithStore(NewMemoryStore()))
		if svc := c.FindAIService(ctx); svc != nil {
			t.Errorf("Expected nil, got %+v", svc)
		}
	})
}

// TestFindDashboard tests the well-known dashboard lookup.
func TestFindDashboard(t *testing.T) {
	ctx := context.Background()

	store := NewMemoryStore()
	mustUpsert(t, store, Registration{
		ServiceName: ServiceDashboard,
		Environment: EnvironmentContainer,
		Endpoint:    "http://192.168.1.20:3000",
	})
	c := newTestClient(t, config.RegistryConfig{}, WithStore(store))

	svc := c.FindDashboard(ctx)
	if svc == nil {
		t.Fatal("FindDashboard returned nil")
	}
	if svc.Endpoint != "http://192.168.1.20:3000" {
		t.Errorf("Unexpected endpoint: %s", svc.Endpoint)
	}

	empty := newTestClient(t, config.RegistryConfig{}, WithStore(NewMemoryStore()))
	if svc := empty.FindDashboard(ctx); svc != nil {
		t.Errorf("Expected nil without a dashboard, got %+v", svc)
	}
}

// TestServiceHealth tests the fleet health rollup.
func TestServiceHealth(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Counts by health and environment", func(t *testing.T) {
		store := NewMemoryStore()
		store.now = func() time.Time { return base }
		mustUpsert(t, store, Registration{ServiceName: "ai-worker", Environment: EnvironmentWindowsVM, Endpoint: "http://h:1"})
		mustUpsert(t, store, Registration{ServiceName: "dashboard", Environment: EnvironmentContainer, Endpoint: "http://h:2"})
		store.now = func() time.Time { return base.Add(-10 * time.Minute) }
		mustUpsert(t, store, Registration{ServiceName: "backup", Environment: EnvironmentContainer, Endpoint: "http://h:3"})

		c := newTestClient(t, config.RegistryConfig{}, WithStore(store))
		c.now = func() time.Time { return base }

		summary := c.ServiceHealth(ctx)
		if summary.Total != 3 || summary.Healthy != 2 || summary.Unhealthy != 1 {
			t.Errorf("Unexpected totals: %+v", summary)
		}
		vm := summary.ByEnvironment[EnvironmentWindowsVM]
		if vm.Healthy != 1 || vm.Unhealthy != 0 {
			t.Errorf("Unexpected windows-vm counts: %+v", vm)
		}
		container := summary.ByEnvironment[EnvironmentContainer]
		if container.Healthy != 1 || container.Unhealthy != 1 {
			t.Errorf("Unexpected container counts: %+v", container)
		}
	})

	t.Run("Unreachable registry reads as an empty fleet", func(t *testing.T) {
		c := newTestClient(t, config.RegistryConfig{}, WithStore(newFailingStore()))
		summary := c.ServiceHealth(ctx)
		if summary.Total != 0 || len(summary.ByEnvironment) != 0 {
			t.Errorf("Expected an empty summary, got %+v", summary)
		}
	})
}
