// Package registry provides resilient two-tier service discovery. A process
// registers its own identity in a local PostgreSQL store when one is
// reachable and falls back to a remote HTTP registry when it is not; every
// discovery call follows the same try-local-then-remote shape. A single
// heartbeat scheduler keeps the registration fresh, and a fixed health
// window separates peers that are merely registered from peers that are
// currently alive.
//
// Example usage:
//
//	store := registry.NewPGStore(pool)
//	remote, _ := registry.NewHTTPRemote(ctx, cfg.Registry.Remote, cfg.Registry.HealthTimeout)
//
//	client, err := registry.New(cfg.Registry,
//	    registry.WithStore(store),
//	    registry.WithRemote(remote),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.Register(ctx, registry.Registration{
//	    ServiceName:  "ai-worker",
//	    Endpoint:     "http://10.0.0.5:9000",
//	    Capabilities: []string{"ai", "inference"},
//	})
//
//	if svc := client.DiscoverService(ctx, "dashboard"); svc != nil {
//	    fmt.Println(svc.Endpoint)
//	}
package registry

import (
	"context"
	"time"
)

// Default timing constants. The health window must stay strictly larger than
// the heartbeat interval so a peer survives missed heartbeats before it is
// classified unhealthy; the defaults tolerate two misses in a row.
const (
	// DefaultHeartbeatInterval is how often the scheduler re-asserts liveness.
	DefaultHeartbeatInterval = 30 * time.Second

	// DefaultHealthTimeout is the window after the last heartbeat during
	// which a registration counts as healthy.
	DefaultHealthTimeout = 90 * time.Second

	// DefaultRetention is how long stale registrations are kept before
	// PruneStale removes them with its default cutoff.
	DefaultRetention = 24 * time.Hour
)

// Registration describes the identity a process submits about itself.
type Registration struct {
	// ServiceName is the logical name peers discover this process under,
	// e.g. "dashboard" or "ai-worker". Required.
	ServiceName string

	// Environment tags the deployment context, e.g. "windows-vm". When empty
	// the client fills it in from environment detection.
	Environment string

	// Endpoint is the address peers should use to reach this process,
	// scheme included. Required.
	Endpoint string

	// Capabilities advertises what this process can do, e.g. ["ai", "gpu"].
	// Matching is exact and case-sensitive.
	Capabilities []string

	// Metadata holds free-form string pairs stored alongside the
	// registration. The registry never interprets them.
	Metadata map[string]string
}

// RegistrationRecord is the persisted row owned by a Store. The pair
// (ServiceName, Environment) is the natural key: registering the same pair
// twice updates the existing row in place and preserves its ID.
type RegistrationRecord struct {
	// ID is assigned by the store on insert and survives updates.
	ID string

	ServiceName  string
	Environment  string
	Endpoint     string
	Capabilities []string

	// LastHeartbeat is monotonically non-decreasing for a given record;
	// every successful heartbeat or registration update moves it forward,
	// never backward.
	LastHeartbeat time.Time

	Metadata map[string]string
}

// HasCapability reports whether the record advertises the capability.
// Matching is exact and case-sensitive.
func (r RegistrationRecord) HasCapability(capability string) bool {
	for _, c := range r.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// View derives the caller-facing service entry for this record as of the
// given instant. Views are never persisted; health is recomputed on every
// read.
func (r RegistrationRecord) View(now time.Time, window time.Duration) RegisteredService {
	return RegisteredService{
		Name:         r.ServiceName,
		Environment:  r.Environment,
		Endpoint:     r.Endpoint,
		Capabilities: r.Capabilities,
		LastSeen:     r.LastHeartbeat,
		IsHealthy:    IsHealthy(r.LastHeartbeat, now, window),
		Metadata:     r.Metadata,
	}
}

// RegisteredService is the transient view returned to callers. It is
// reconstructed on every read, either from a stored record or by parsing a
// remote registry response into the same shape.
type RegisteredService struct {
	Name         string            `json:"name"`
	Environment  string            `json:"environment"`
	Endpoint     string            `json:"endpoint"`
	Capabilities []string          `json:"capabilities,omitempty"`
	LastSeen     time.Time         `json:"lastSeen"`
	IsHealthy    bool              `json:"isHealthy"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// HasCapability reports whether the service advertises the capability.
// Matching is exact and case-sensitive.
func (s RegisteredService) HasCapability(capability string) bool {
	for _, c := range s.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// Store is the local persistence tier holding registration records.
// Implementations must be safe for concurrent use. Errors are classified
// with the pkg/errors taxonomy so the resolver can tell a missing row
// (NotFound) from a failing backend (Unavailable, Transient).
type Store interface {
	// Upsert inserts a record for the registration's (ServiceName,
	// Environment) key or updates the existing one in place, refreshing
	// its heartbeat timestamp.
	Upsert(ctx context.Context, reg Registration) error

	// Touch refreshes the heartbeat timestamp for the given key. It returns
	// false with a nil error when no such row exists.
	Touch(ctx context.Context, name, environment string) (bool, error)

	// Delete removes the record for the given key. It returns false with a
	// nil error when no such row exists.
	Delete(ctx context.Context, name, environment string) (bool, error)

	// DeleteByName removes every environment's record for the given name.
	// It returns false with a nil error when no rows matched.
	DeleteByName(ctx context.Context, name string) (bool, error)

	// Get returns the record for the name with the most recent heartbeat
	// across environments. Absence is a NotFound error.
	Get(ctx context.Context, name string) (*RegistrationRecord, error)

	// ListByCapability returns records whose heartbeat falls inside the
	// health window and whose capability set contains the given capability.
	ListByCapability(ctx context.Context, capability string, window time.Duration) ([]RegistrationRecord, error)

	// ListByEnvironment returns every record registered under the given
	// environment, healthy or not.
	ListByEnvironment(ctx context.Context, environment string) ([]RegistrationRecord, error)

	// ListAll returns every record in the store.
	ListAll(ctx context.Context) ([]RegistrationRecord, error)

	// DeleteOlderThan removes records whose heartbeat is strictly older
	// than the cutoff and reports how many were removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Remote performs registry operations against a remote HTTP registry.
// It is the second tier the resolver consults when the local store is
// absent, failing, or empty.
type Remote interface {
	// Register submits a registration tagged with the caller's environment.
	Register(ctx context.Context, reg Registration) error

	// Unregister removes the registration for the name, and for the
	// environment when one is given.
	Unregister(ctx context.Context, name, environment string) error

	// Heartbeat refreshes the remote registration's liveness timestamp.
	// A NotFound error means the remote registry no longer knows the
	// identity and the caller should re-register.
	Heartbeat(ctx context.Context, name, environment string) error

	// Lookup returns the remote registry's entry for the name. Absence is
	// a NotFound error.
	Lookup(ctx context.Context, name string) (*RegisteredService, error)

	// ListByCapability returns the remote registry's healthy entries
	// advertising the capability.
	ListByCapability(ctx context.Context, capability string) ([]RegisteredService, error)

	// ListAll returns every entry the remote registry knows about.
	ListAll(ctx context.Context) ([]RegisteredService, error)
}

// Source is a read-only discovery tier consulted after the remote registry,
// e.g. a Redis snapshot, static config entries, or environment variables.
// Sources serve lookups only; they never receive registrations or
// heartbeats.
type Source interface {
	// Name identifies the tier in logs and metrics, e.g. "cache".
	Name() string

	// Lookup returns the source's entry for the name. Absence is a
	// NotFound error.
	Lookup(ctx context.Context, name string) (*RegisteredService, error)

	// ListByCapability returns the source's healthy entries advertising
	// the capability.
	ListByCapability(ctx context.Context, capability string) ([]RegisteredService, error)
}

// SnapshotSink receives full service listings after successful remote
// queries so a cache tier can serve discovery during a later outage.
// Writes are best-effort; failures are ignored by the resolver.
type SnapshotSink interface {
	StoreSnapshot(ctx context.Context, services []RegisteredService) error
}
