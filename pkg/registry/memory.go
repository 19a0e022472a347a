package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gridhouse/peerreg/pkg/errors"
)

// MemoryStore implements Store with an in-process map keyed by the natural
// key. It is suitable for tests, examples, and single-process registryd
// deployments that do not need registrations to survive a restart. For
// durable storage use PGStore instead.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]RegistrationRecord

	now func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]RegistrationRecord),
		now:     time.Now,
	}
}

// memoryKey builds the map key for a natural key. The separator cannot
// occur in either part, so distinct keys never collide.
func memoryKey(name, environment string) string {
	return name + "\x00" + environment
}

// Upsert inserts a record for the registration's natural key or updates the
// existing one in place, preserving its ID.
func (m *MemoryStore) Upsert(ctx context.Context, reg Registration) error {
	if reg.ServiceName == "" {
		return errors.NewInvalidInput("service_name", "service name is required")
	}
	if reg.Endpoint == "" {
		return errors.NewInvalidInput("endpoint", "endpoint is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := memoryKey(reg.ServiceName, reg.Environment)
	rec, ok := m.records[key]
	if !ok {
		rec = RegistrationRecord{
			ID:          uuid.New().String(),
			ServiceName: reg.ServiceName,
			Environment: reg.Environment,
		}
	}

	rec.Endpoint = reg.Endpoint
	rec.Capabilities = append([]string(nil), reg.Capabilities...)
	rec.Metadata = cloneMetadata(reg.Metadata)

	// Heartbeats never move backward.
	if now := m.now().UTC(); now.After(rec.LastHeartbeat) {
		rec.LastHeartbeat = now
	}

	m.records[key] = rec
	return nil
}

// Touch refreshes the heartbeat timestamp for the given key.
func (m *MemoryStore) Touch(ctx context.Context, name, environment string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := memoryKey(name, environment)
	rec, ok := m.records[key]
	if !ok {
		return false, nil
	}

	if now := m.now().UTC(); now.After(rec.LastHeartbeat) {
		rec.LastHeartbeat = now
		m.records[key] = rec
	}
	return true, nil
}

// Delete removes the record for the given key.
func (m *MemoryStore) Delete(ctx context.Context, name, environment string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := memoryKey(name, environment)
	if _, ok := m.records[key]; !ok {
		return false, nil
	}
	delete(m.records, key)
	return true, nil
}

// DeleteByName removes every environment's record for the given name.
func (m *MemoryStore) DeleteByName(ctx context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := false
	for key, rec := range m.records {
		if rec.ServiceName == name {
			delete(m.records, key)
			deleted = true
		}
	}
	return deleted, nil
}

// Get returns the record for the name with the most recent heartbeat across
// environments.
func (m *MemoryStore) Get(ctx context.Context, name string) (*RegistrationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *RegistrationRecord
	for _, rec := range m.records {
		if rec.ServiceName != name {
			continue
		}
		if best == nil || rec.LastHeartbeat.After(best.LastHeartbeat) {
			r := rec
			best = &r
		}
	}
	if best == nil {
		return nil, errors.NewNotFound("service", name)
	}
	return best, nil
}

// ListByCapability returns records inside the health window that advertise
// the capability, most recently heartbeated first.
func (m *MemoryStore) ListByCapability(ctx context.Context, capability string, window time.Duration) ([]RegistrationRecord, error) {
	now := m.now()

	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []RegistrationRecord
	for _, rec := range m.records {
		if rec.HasCapability(capability) && IsHealthy(rec.LastHeartbeat, now, window) {
			results = append(results, rec)
		}
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].LastHeartbeat.After(results[j].LastHeartbeat)
	})
	return results, nil
}

// ListByEnvironment returns every record registered under the environment,
// sorted by service name.
func (m *MemoryStore) ListByEnvironment(ctx context.Context, environment string) ([]RegistrationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []RegistrationRecord
	for _, rec := range m.records {
		if rec.Environment == environment {
			results = append(results, rec)
		}
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].ServiceName < results[j].ServiceName
	})
	return results, nil
}

// ListAll returns every record in the store, sorted by service name and
// environment.
func (m *MemoryStore) ListAll(ctx context.Context) ([]RegistrationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]RegistrationRecord, 0, len(m.records))
	for _, rec := range m.records {
		results = append(results, rec)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].ServiceName != results[j].ServiceName {
			return results[i].ServiceName < results[j].ServiceName
		}
		return results[i].Environment < results[j].Environment
	})
	return results, nil
}

// DeleteOlderThan removes records whose heartbeat is strictly older than
// the cutoff.
func (m *MemoryStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	for key, rec := range m.records {
		if rec.LastHeartbeat.Before(cutoff) {
			delete(m.records, key)
			deleted++
		}
	}
	return deleted, nil
}

// cloneMetadata copies a metadata map so callers cannot mutate stored
// records. A nil input yields an empty, non-nil map.
func cloneMetadata(md map[string]string) map[string]string {
	out := make(map[string]string, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}
