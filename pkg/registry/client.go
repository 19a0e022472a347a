package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gridhouse/peerreg/pkg/bus"
	"github.com/gridhouse/peerreg/pkg/config"
	"github.com/gridhouse/peerreg/pkg/errors"
	"github.com/gridhouse/peerreg/pkg/health"
	"github.com/gridhouse/peerreg/pkg/logging"
	"github.com/gridhouse/peerreg/pkg/metrics"
	"github.com/gridhouse/peerreg/pkg/tracing"
)

// Operation names used in metrics, traces and logs.
const (
	opRegister              = "register"
	opUnregister            = "unregister"
	opDiscoverService       = "discover_service"
	opDiscoverByCapability  = "discover_by_capability"
	opDiscoverByEnvironment = "discover_by_environment"
	opHeartbeat             = "heartbeat"
	opHealthyPeers          = "healthy_peers"
	opAllServices           = "all_services"
	opPruneStale            = "prune_stale"
)

// Tier names reported as the source of a result.
const (
	sourceLocal  = "local"
	sourceRemote = "remote"
	sourceNone   = "none"
)

// FallbackPolicy decides when a read operation moves from the local store
// to the remote registry.
type FallbackPolicy int

const (
	// FallthroughOnEmpty consults the remote registry when the local
	// store fails or answers with nothing.
	FallthroughOnEmpty FallbackPolicy = iota

	// FallthroughOnError consults the remote registry only when the local
	// store fails. A reachable store is authoritative even when empty.
	FallthroughOnError

	// LocalOnly never consults the remote registry.
	LocalOnly
)

// Client resolves services across tiers. Reads try the local store first
// and fall through to the remote registry per policy; DiscoverService and
// DiscoverByCapability additionally consult any read-only sources when
// both tiers come up empty. Writes land in the first tier that accepts
// them. Every operation degrades gracefully: callers see zero values when
// all tiers fail, never backend errors.
//
// Client is safe for concurrent use.
type Client struct {
	cfg         config.RegistryConfig
	store       Store
	remote      Remote
	sources     []Source
	snapshot    SnapshotSink
	eventBus    bus.EventBus
	logger      *logging.Logger
	environment string

	now func() time.Time

	mu      sync.Mutex
	lastReg *Registration
	task    *heartbeatTask
}

// Option configures a Client.
type Option func(*Client)

// WithStore wires the local persistence tier.
func WithStore(store Store) Option {
	return func(c *Client) { c.store = store }
}

// WithRemote wires the remote registry tier.
func WithRemote(remote Remote) Option {
	return func(c *Client) { c.remote = remote }
}

// WithSources appends read-only discovery tiers, consulted in the order
// given after the local store and remote registry both come up empty.
func WithSources(sources ...Source) Option {
	return func(c *Client) { c.sources = append(c.sources, sources...) }
}

// WithSnapshotSink wires the sink that receives a copy of every full
// listing obtained from the remote registry.
func WithSnapshotSink(sink SnapshotSink) Option {
	return func(c *Client) { c.snapshot = sink }
}

// WithEventBus publishes registration lifecycle events to the bus.
// Publishing is best-effort and never affects operation results.
func WithEventBus(eventBus bus.EventBus) Option {
	return func(c *Client) { c.eventBus = eventBus }
}

// WithLogger overrides the default logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithEnvironment overrides the detected runtime environment used for
// registrations that do not carry their own.
func WithEnvironment(environment string) Option {
	return func(c *Client) { c.environment = environment }
}

// New creates a resolver. Zero config fields take the package defaults.
// The health timeout must exceed the heartbeat interval, otherwise a
// service would flap unhealthy between its own heartbeats.
func New(cfg config.RegistryConfig, opts ...Option) (*Client, error) {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = DefaultHealthTimeout
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.HealthTimeout <= cfg.HeartbeatInterval {
		return nil, errors.NewInvalidInput("health_timeout", fmt.Sprintf(
			"health timeout %v must exceed heartbeat interval %v",
			cfg.HealthTimeout, cfg.HeartbeatInterval))
	}

	c := &Client{
		cfg:         cfg,
		environment: DetectEnvironment(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.FromContext(context.Background())
	}
	c.logger = c.logger.WithComponent("registry")
	return c, nil
}

// Register announces a service to the first tier that accepts it: the
// local store when reachable, the remote registry otherwise. On success
// it remembers the identity for heartbeats and unregistration, starts the
// heartbeat scheduler if one is not already running, and reports true.
// An empty environment is filled from the detected runtime environment.
func (c *Client) Register(ctx context.Context, reg Registration) bool {
	if reg.ServiceName == "" || reg.Endpoint == "" {
		c.logger.Warn().
			Str(logging.ServiceName, reg.ServiceName).
			Msg("registration rejected: service name and endpoint are required")
		return false
	}
	if reg.Environment == "" {
		reg.Environment = c.environment
	}

	ctx, span := tracing.StartSpan(ctx, "registry."+opRegister)
	defer span.End()

	mode := ""
	if c.store != nil {
		if err := c.store.Upsert(ctx, reg); err != nil {
			c.countRegistration(sourceLocal, "error")
			c.logger.Warn().Err(err).
				Str(logging.ServiceName, reg.ServiceName).
				Msg("local registration failed")
		} else {
			c.countRegistration(sourceLocal, "ok")
			mode = modeLocal
		}
	}
	if mode == "" && c.remote != nil {
		if err := c.remote.Register(ctx, reg); err != nil {
			c.countRegistration(sourceRemote, "error")
			c.logger.Warn().Err(err).
				Str(logging.ServiceName, reg.ServiceName).
				Msg("remote registration failed")
		} else {
			c.countRegistration(sourceRemote, "ok")
			mode = modeRemote
		}
	}
	if mode == "" {
		c.logger.Error().
			Str(logging.ServiceName, reg.ServiceName).
			Msg("registration failed in every tier")
		return false
	}

	regCopy := reg
	c.mu.Lock()
	c.lastReg = &regCopy
	c.mu.Unlock()

	c.startHeartbeat(mode)

	tracing.SetSpanAttributes(ctx, tracing.RegistryAttributes(opRegister, reg.ServiceName, mode)...)
	c.publish(ctx, bus.NewServiceRegistered(reg.ServiceName, reg.Environment, reg.Endpoint))
	c.logger.Info().
		Str(logging.ServiceName, reg.ServiceName).
		Str(logging.Environment, reg.Environment).
		Str(logging.Endpoint, reg.Endpoint).
		Str(logging.Source, mode).
		Msg("service registered")
	return true
}

// Unregister removes a registration and reports whether any tier deleted
// it. An empty name targets the identity remembered from the last
// successful Register; when none is held the call fails fast. The
// heartbeat scheduler is stopped before any backend is touched so that no
// concurrent heartbeat can land after the delete and resurrect the
// record. With an environment the delete is exact; without one every
// record carrying the name goes.
func (c *Client) Unregister(ctx context.Context, name, environment string) bool {
	if name == "" {
		c.mu.Lock()
		if c.lastReg == nil {
			c.mu.Unlock()
			c.logger.Debug().Msg("unregister skipped: nothing registered")
			return false
		}
		name, environment = c.lastReg.ServiceName, c.lastReg.Environment
		c.mu.Unlock()
	}

	ctx, span := tracing.StartSpan(ctx, "registry."+opUnregister)
	defer span.End()

	c.stopHeartbeat()

	deleted := false
	if c.store != nil {
		var err error
		if environment != "" {
			deleted, err = c.store.Delete(ctx, name, environment)
		} else {
			deleted, err = c.store.DeleteByName(ctx, name)
		}
		if err != nil {
			c.logger.Warn().Err(err).
				Str(logging.ServiceName, name).
				Msg("local unregister failed")
		}
	}
	if !deleted && c.remote != nil {
		if err := c.remote.Unregister(ctx, name, environment); err != nil {
			if !errors.IsNotFound(err) {
				c.logger.Warn().Err(err).
					Str(logging.ServiceName, name).
					Msg("remote unregister failed")
			}
		} else {
			deleted = true
		}
	}

	c.mu.Lock()
	if c.lastReg != nil && c.lastReg.ServiceName == name {
		c.lastReg = nil
	}
	c.mu.Unlock()

	if deleted {
		c.publish(ctx, bus.NewServiceUnregistered(name, environment))
		c.logger.Info().
			Str(logging.ServiceName, name).
			Str(logging.Environment, environment).
			Msg("service unregistered")
	}
	return deleted
}

// DiscoverService finds the registration for name with the most recent
// heartbeat. The local store is tried first, then the remote registry,
// then any read-only sources. It returns nil when no tier knows the
// name; an unreachable backend looks the same as an unknown service.
func (c *Client) DiscoverService(ctx context.Context, name string) *RegisteredService {
	if name == "" {
		return nil
	}
	ctx, span := tracing.StartSpan(ctx, "registry."+opDiscoverService)
	defer span.End()

	var local, remote func(context.Context) (*RegisteredService, error)
	if c.store != nil {
		local = func(ctx context.Context) (*RegisteredService, error) {
			rec, err := c.store.Get(ctx, name)
			if err != nil {
				return nil, err
			}
			view := rec.View(c.now(), c.cfg.HealthTimeout)
			return &view, nil
		}
	}
	if c.remote != nil {
		remote = func(ctx context.Context) (*RegisteredService, error) {
			return c.remote.Lookup(ctx, name)
		}
	}

	svc, source := withFallback(ctx, c, opDiscoverService, FallthroughOnEmpty, isNilService, local, remote)
	if svc == nil {
		svc, source = c.lookupFromSources(ctx, name)
	}

	c.countLookup(opDiscoverService, source)
	tracing.SetSpanAttributes(ctx, tracing.RegistryAttributes(opDiscoverService, name, source)...)
	if svc == nil {
		c.logger.Debug().Str(logging.ServiceName, name).Msg("service not found in any tier")
	}
	return svc
}

// DiscoverByCapability lists the healthy services advertising the exact
// capability, most recently heartbeated first. Tiers are consulted in
// the same order as DiscoverService and results are never merged across
// tiers.
func (c *Client) DiscoverByCapability(ctx context.Context, capability string) []RegisteredService {
	if capability == "" {
		return nil
	}
	ctx, span := tracing.StartSpan(ctx, "registry."+opDiscoverByCapability)
	defer span.End()

	var local, remote func(context.Context) ([]RegisteredService, error)
	if c.store != nil {
		local = func(ctx context.Context) ([]RegisteredService, error) {
			records, err := c.store.ListByCapability(ctx, capability, c.cfg.HealthTimeout)
			if err != nil {
				return nil, err
			}
			return c.views(records), nil
		}
	}
	if c.remote != nil {
		remote = func(ctx context.Context) ([]RegisteredService, error) {
			return c.remote.ListByCapability(ctx, capability)
		}
	}

	services, source := withFallback(ctx, c, opDiscoverByCapability, FallthroughOnEmpty, isEmptyList, local, remote)
	if len(services) == 0 {
		services, source = c.capabilityFromSources(ctx, capability)
	}

	c.countLookup(opDiscoverByCapability, source)
	tracing.SetSpanAttributes(ctx, tracing.RegistryAttributes(opDiscoverByCapability, capability, source)...)
	return services
}

// DiscoverByEnvironment lists every service registered in the given
// environment, healthy or not, sorted by name. This answers from the
// local store only; remote and source tiers are not consulted.
func (c *Client) DiscoverByEnvironment(ctx context.Context, environment string) []RegisteredService {
	if environment == "" {
		return nil
	}
	ctx, span := tracing.StartSpan(ctx, "registry."+opDiscoverByEnvironment)
	defer span.End()

	var local func(context.Context) ([]RegisteredService, error)
	if c.store != nil {
		local = func(ctx context.Context) ([]RegisteredService, error) {
			records, err := c.store.ListByEnvironment(ctx, environment)
			if err != nil {
				return nil, err
			}
			return c.views(records), nil
		}
	}

	services, source := withFallback(ctx, c, opDiscoverByEnvironment, LocalOnly, isEmptyList, local, nil)
	c.countLookup(opDiscoverByEnvironment, source)
	return services
}

// Heartbeat refreshes the liveness timestamp for the identity remembered
// from the last successful Register. It reports false when nothing is
// registered or no tier accepted the refresh.
func (c *Client) Heartbeat(ctx context.Context) bool {
	c.mu.Lock()
	reg := c.lastReg
	mode := modeLocal
	if c.task != nil {
		mode = c.task.mode
	}
	c.mu.Unlock()

	if reg == nil {
		return false
	}
	return c.deliverHeartbeat(ctx, *reg, mode)
}

// HealthyPeers lists every service whose last heartbeat falls inside the
// health window. The local store is filtered directly; when it yields no
// healthy rows the remote registry's full listing is filtered the same
// way.
func (c *Client) HealthyPeers(ctx context.Context) []RegisteredService {
	ctx, span := tracing.StartSpan(ctx, "registry."+opHealthyPeers)
	defer span.End()

	var local, remote func(context.Context) ([]RegisteredService, error)
	if c.store != nil {
		local = func(ctx context.Context) ([]RegisteredService, error) {
			records, err := c.store.ListAll(ctx)
			if err != nil {
				return nil, err
			}
			now := c.now()
			var healthy []RegisteredService
			for _, rec := range records {
				if view := rec.View(now, c.cfg.HealthTimeout); view.IsHealthy {
					healthy = append(healthy, view)
				}
			}
			return healthy, nil
		}
	}
	if c.remote != nil {
		remote = func(ctx context.Context) ([]RegisteredService, error) {
			all, err := c.remote.ListAll(ctx)
			if err != nil {
				return nil, err
			}
			c.storeSnapshot(ctx, all)
			var healthy []RegisteredService
			for _, svc := range all {
				if svc.IsHealthy {
					healthy = append(healthy, svc)
				}
			}
			return healthy, nil
		}
	}

	services, source := withFallback(ctx, c, opHealthyPeers, FallthroughOnEmpty, isEmptyList, local, remote)
	c.countLookup(opHealthyPeers, source)
	return services
}

// AllServices lists everything the serving tier knows, healthy or not. A
// reachable local store is authoritative even when empty; the remote
// registry answers only when the store is absent or failing.
func (c *Client) AllServices(ctx context.Context) []RegisteredService {
	ctx, span := tracing.StartSpan(ctx, "registry."+opAllServices)
	defer span.End()

	var local, remote func(context.Context) ([]RegisteredService, error)
	if c.store != nil {
		local = func(ctx context.Context) ([]RegisteredService, error) {
			records, err := c.store.ListAll(ctx)
			if err != nil {
				return nil, err
			}
			return c.views(records), nil
		}
	}
	if c.remote != nil {
		remote = func(ctx context.Context) ([]RegisteredService, error) {
			all, err := c.remote.ListAll(ctx)
			if err != nil {
				return nil, err
			}
			c.storeSnapshot(ctx, all)
			return all, nil
		}
	}

	services, source := withFallback(ctx, c, opAllServices, FallthroughOnError, isEmptyList, local, remote)
	c.countLookup(opAllServices, source)
	return services
}

// PruneStale deletes local records whose last heartbeat is older than
// maxAge and returns how many were removed. Zero or negative maxAge
// selects the configured retention. Pruning is local housekeeping; the
// remote registry prunes its own store.
func (c *Client) PruneStale(ctx context.Context, maxAge time.Duration) int64 {
	if c.store == nil {
		return 0
	}
	if maxAge <= 0 {
		maxAge = c.cfg.Retention
	}
	ctx, span := tracing.StartSpan(ctx, "registry."+opPruneStale)
	defer span.End()

	cutoff := c.now().Add(-maxAge)
	pruned, err := c.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		c.logger.Warn().Err(err).Msg("prune failed")
		return 0
	}
	if pruned > 0 {
		c.countPruned(pruned)
		c.publish(ctx, bus.NewServicesPruned(pruned))
		c.logger.Info().Int64("pruned", pruned).Msg("stale services pruned")
	}
	return pruned
}

// Check reports whether the primary tier is reachable. It satisfies
// health.Checker so the resolver can back a readiness probe.
func (c *Client) Check(ctx context.Context) error {
	if c.store == nil && c.remote == nil {
		return errors.NewUnavailable("registry", "no backend configured", nil)
	}
	if checker, ok := c.store.(health.Checker); ok {
		return checker.Check(ctx)
	}
	return nil
}

// Close stops the heartbeat scheduler. It does not unregister; callers
// that want a clean departure call Unregister first.
func (c *Client) Close() error {
	c.stopHeartbeat()
	return nil
}

// withFallback runs the local leg and decides per policy whether the
// remote leg is consulted, returning the winning value and the tier that
// served it. NotFound from either tier counts as an empty result, not a
// failure.
func withFallback[T any](ctx context.Context, c *Client, op string, policy FallbackPolicy, isEmpty func(T) bool, local, remote func(context.Context) (T, error)) (T, string) {
	var zero T

	if local != nil {
		result, err := local(ctx)
		if err != nil && errors.IsNotFound(err) {
			result, err = zero, nil
		}
		if err == nil {
			if policy == FallthroughOnError || !isEmpty(result) {
				return result, sourceLocal
			}
		} else {
			c.logger.Debug().Err(err).Str(logging.Op, op).Msg("local tier failed")
		}
	}

	if policy == LocalOnly || remote == nil {
		return zero, sourceNone
	}

	c.countFallback(op)
	result, err := remote(ctx)
	if err != nil {
		if !errors.IsNotFound(err) {
			c.logger.Debug().Err(err).Str(logging.Op, op).Msg("remote tier failed")
		}
		return zero, sourceNone
	}
	if isEmpty(result) {
		return zero, sourceNone
	}
	return result, sourceRemote
}

func isNilService(svc *RegisteredService) bool { return svc == nil }

func isEmptyList(services []RegisteredService) bool { return len(services) == 0 }

// lookupFromSources consults the read-only tiers in order until one knows
// the name.
func (c *Client) lookupFromSources(ctx context.Context, name string) (*RegisteredService, string) {
	for _, source := range c.sources {
		svc, err := source.Lookup(ctx, name)
		if err != nil {
			if !errors.IsNotFound(err) {
				c.logger.Debug().Err(err).
					Str(logging.Source, source.Name()).
					Str(logging.ServiceName, name).
					Msg("source lookup failed")
			}
			continue
		}
		if svc != nil {
			return svc, source.Name()
		}
	}
	return nil, sourceNone
}

// capabilityFromSources consults the read-only tiers in order until one
// yields matches.
func (c *Client) capabilityFromSources(ctx context.Context, capability string) ([]RegisteredService, string) {
	for _, source := range c.sources {
		services, err := source.ListByCapability(ctx, capability)
		if err != nil {
			if !errors.IsNotFound(err) {
				c.logger.Debug().Err(err).
					Str(logging.Source, source.Name()).
					Str(logging.Capability, capability).
					Msg("source query failed")
			}
			continue
		}
		if len(services) > 0 {
			return services, source.Name()
		}
	}
	return nil, sourceNone
}

// views converts stored records into caller-facing entries as of now.
func (c *Client) views(records []RegistrationRecord) []RegisteredService {
	if len(records) == 0 {
		return nil
	}
	now := c.now()
	services := make([]RegisteredService, 0, len(records))
	for _, rec := range records {
		services = append(services, rec.View(now, c.cfg.HealthTimeout))
	}
	return services
}

// storeSnapshot pushes a full remote listing into the snapshot sink so a
// later outage can still serve cached entries. Failures are logged and
// dropped; the snapshot is an opportunistic copy, not a system of record.
func (c *Client) storeSnapshot(ctx context.Context, services []RegisteredService) {
	if c.snapshot == nil || len(services) == 0 {
		return
	}
	if err := c.snapshot.StoreSnapshot(ctx, services); err != nil {
		c.logger.Debug().Err(err).Int("services", len(services)).Msg("snapshot refresh failed")
	}
}

// publish emits a lifecycle event. Publishing is best-effort; a down
// broker never affects the operation that produced the event.
func (c *Client) publish(ctx context.Context, event *bus.Event) {
	if c.eventBus == nil {
		return
	}
	if err := c.eventBus.Publish(ctx, bus.TopicName(event.Type), event); err != nil {
		c.logger.Debug().Err(err).Str("event_type", event.Type).Msg("event publish failed")
	}
}

func (c *Client) countLookup(op, source string) {
	if m := metrics.GetRegistryLookups(); m != nil {
		m.Inc(op, source)
	}
}

func (c *Client) countFallback(op string) {
	if m := metrics.GetRegistryFallbacks(); m != nil {
		m.Inc(op)
	}
}

func (c *Client) countRegistration(backend, result string) {
	if m := metrics.GetRegistryRegistrations(); m != nil {
		m.Inc(backend, result)
	}
}

func (c *Client) countHeartbeatSent(backend string) {
	if m := metrics.GetHeartbeatsSent(); m != nil {
		m.Inc(backend)
	}
}

func (c *Client) countHeartbeatFailed(backend string) {
	if m := metrics.GetHeartbeatsFailed(); m != nil {
		m.Inc(backend)
	}
}

func (c *Client) countPruned(pruned int64) {
	if m := metrics.GetStaleRecordsPruned(); m != nil {
		m.Add(float64(pruned))
	}
}
