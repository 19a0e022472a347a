package registry

import (
	"context"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gridhouse/peerreg/pkg/cache"
	"github.com/gridhouse/peerreg/pkg/config"
	"github.com/gridhouse/peerreg/pkg/errors"
)

// Source tier names, reported as the source of a discovery result.
const (
	SourceCache  = "cache"
	SourceConfig = "config"
	SourceEnv    = "env"
)

const (
	// DefaultSnapshotKey is the cache key the discovery snapshot lives
	// under.
	DefaultSnapshotKey = "peerreg:snapshot"

	// DefaultSnapshotTTL matches the default retention: entries older
	// than that would be pruned anyway.
	DefaultSnapshotTTL = 24 * time.Hour
)

// Snapshot is the cached copy of a full remote listing. Health flags are
// not trusted on read; they are recomputed from LastSeen and the health
// window, so an aging snapshot degrades instead of lying.
type Snapshot struct {
	Services []RegisteredService `json:"services"`
	TakenAt  time.Time           `json:"takenAt"`
}

// CacheSource serves discovery from the last stored snapshot. It is both
// a read-only Source and the SnapshotSink the resolver refreshes after
// successful remote listings.
type CacheSource struct {
	store  cache.Cache
	key    string
	ttl    time.Duration
	window time.Duration
	now    func() time.Time
}

// NewCacheSource wraps a cache in a snapshot-backed discovery tier. An
// empty key selects DefaultSnapshotKey, a zero window selects
// DefaultHealthTimeout.
func NewCacheSource(store cache.Cache, key string, window time.Duration) *CacheSource {
	if key == "" {
		key = DefaultSnapshotKey
	}
	if window <= 0 {
		window = DefaultHealthTimeout
	}
	return &CacheSource{
		store:  store,
		key:    key,
		ttl:    DefaultSnapshotTTL,
		window: window,
		now:    time.Now,
	}
}

// Name identifies the tier in logs and metrics.
func (s *CacheSource) Name() string { return SourceCache }

// StoreSnapshot replaces the cached snapshot with the given listing.
func (s *CacheSource) StoreSnapshot(ctx context.Context, services []RegisteredService) error {
	snap := Snapshot{
		Services: services,
		TakenAt:  s.now().UTC(),
	}
	return s.store.Set(ctx, s.key, snap, s.ttl)
}

// Lookup finds name in the snapshot, preferring the entry seen most
// recently. The health flag is recomputed against the snapshot timestamps.
func (s *CacheSource) Lookup(ctx context.Context, name string) (*RegisteredService, error) {
	snap, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	var best *RegisteredService
	for i := range snap.Services {
		svc := snap.Services[i]
		if svc.Name != name {
			continue
		}
		if best == nil || svc.LastSeen.After(best.LastSeen) {
			best = &svc
		}
	}
	if best == nil {
		return nil, errors.NewNotFound("service", name)
	}
	found := *best
	found.IsHealthy = IsHealthy(found.LastSeen, s.now(), s.window)
	return &found, nil
}

// ListByCapability lists the snapshot entries advertising the capability
// whose recomputed health still holds, most recently seen first.
func (s *CacheSource) ListByCapability(ctx context.Context, capability string) ([]RegisteredService, error) {
	snap, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var matches []RegisteredService
	for _, svc := range snap.Services {
		if !svc.HasCapability(capability) {
			continue
		}
		svc.IsHealthy = IsHealthy(svc.LastSeen, now, s.window)
		if svc.IsHealthy {
			matches = append(matches, svc)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].LastSeen.After(matches[j].LastSeen)
	})
	return matches, nil
}

func (s *CacheSource) load(ctx context.Context) (*Snapshot, error) {
	var snap Snapshot
	if err := s.store.Get(ctx, s.key, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// ConfigSource serves statically configured services. Entries have no
// heartbeat to judge, so they are always healthy with LastSeen pinned to
// the moment they are read.
type ConfigSource struct {
	services []config.StaticServiceConfig
	now      func() time.Time
}

// NewConfigSource builds a discovery tier from static configuration.
func NewConfigSource(services []config.StaticServiceConfig) *ConfigSource {
	return &ConfigSource{services: services, now: time.Now}
}

// Name identifies the tier in logs and metrics.
func (s *ConfigSource) Name() string { return SourceConfig }

// Lookup finds the first configured entry for name.
func (s *ConfigSource) Lookup(ctx context.Context, name string) (*RegisteredService, error) {
	for i := range s.services {
		if s.services[i].Name == name {
			svc := s.view(s.services[i], s.now())
			return &svc, nil
		}
	}
	return nil, errors.NewNotFound("service", name)
}

// ListByCapability lists the configured entries advertising the
// capability.
func (s *ConfigSource) ListByCapability(ctx context.Context, capability string) ([]RegisteredService, error) {
	now := s.now()
	var matches []RegisteredService
	for _, entry := range s.services {
		svc := s.view(entry, now)
		if svc.HasCapability(capability) {
			matches = append(matches, svc)
		}
	}
	return matches, nil
}

func (s *ConfigSource) view(entry config.StaticServiceConfig, now time.Time) RegisteredService {
	environment := entry.Environment
	if environment == "" {
		environment = EnvironmentUnknown
	}
	return RegisteredService{
		Name:         entry.Name,
		Environment:  environment,
		Endpoint:     entry.Endpoint,
		Capabilities: append([]string(nil), entry.Capabilities...),
		LastSeen:     now,
		IsHealthy:    true,
		Metadata:     entry.Metadata,
	}
}

// EnvServicePrefix prefixes the per-service override variables read by
// EnvSource.
const EnvServicePrefix = "PEERREG_SERVICE_"

// EnvSource serves services declared through environment variables, the
// tier of last resort. One variable per service:
//
//	PEERREG_SERVICE_VISION_API=http://10.0.0.5:8470|windows-vm|ai,vision
//
// The value is endpoint, environment and capabilities separated by pipes;
// only the endpoint is required. Entries are always healthy.
type EnvSource struct {
	now func() time.Time
}

// NewEnvSource builds the environment variable discovery tier.
func NewEnvSource() *EnvSource {
	return &EnvSource{now: time.Now}
}

// Name identifies the tier in logs and metrics.
func (s *EnvSource) Name() string { return SourceEnv }

// Lookup reads the override variable for name.
func (s *EnvSource) Lookup(ctx context.Context, name string) (*RegisteredService, error) {
	raw := os.Getenv(envVarName(name))
	if raw == "" {
		return nil, errors.NewNotFound("service", name)
	}
	svc := parseEnvService(name, raw, s.now())
	if svc == nil {
		return nil, errors.NewNotFound("service", name)
	}
	return svc, nil
}

// ListByCapability scans the whole environment for override variables
// advertising the capability.
func (s *EnvSource) ListByCapability(ctx context.Context, capability string) ([]RegisteredService, error) {
	now := s.now()
	var matches []RegisteredService
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, EnvServicePrefix) {
			continue
		}
		svc := parseEnvService(serviceNameFromVar(name), value, now)
		if svc != nil && svc.HasCapability(capability) {
			matches = append(matches, *svc)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Name < matches[j].Name
	})
	return matches, nil
}

// envVarName converts a service name to its override variable:
// "vision-api" becomes "PEERREG_SERVICE_VISION_API".
func envVarName(service string) string {
	mangled := strings.ToUpper(service)
	mangled = strings.ReplaceAll(mangled, "-", "_")
	mangled = strings.ReplaceAll(mangled, ".", "_")
	return EnvServicePrefix + mangled
}

// serviceNameFromVar reverses envVarName for listings. Dashes and dots
// both collapse to underscores on the way in, so every separator comes
// back as a dash.
func serviceNameFromVar(varName string) string {
	suffix := strings.TrimPrefix(varName, EnvServicePrefix)
	return strings.ReplaceAll(strings.ToLower(suffix), "_", "-")
}

// parseEnvService parses an override value. A missing environment reads
// as unknown; a blank endpoint voids the entry.
func parseEnvService(name, raw string, now time.Time) *RegisteredService {
	parts := strings.SplitN(raw, "|", 3)
	endpoint := strings.TrimSpace(parts[0])
	if endpoint == "" {
		return nil
	}

	svc := &RegisteredService{
		Name:        name,
		Environment: EnvironmentUnknown,
		Endpoint:    endpoint,
		LastSeen:    now,
		IsHealthy:   true,
	}
	if len(parts) > 1 {
		if environment := strings.TrimSpace(parts[1]); environment != "" {
			svc.Environment = environment
		}
	}
	if len(parts) > 2 {
		for _, capability := range strings.Split(parts[2], ",") {
			if capability = strings.TrimSpace(capability); capability != "" {
				svc.Capabilities = append(svc.Capabilities, capability)
			}
		}
	}
	return svc
}
