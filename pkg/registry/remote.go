package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gridhouse/peerreg/pkg/config"
	"github.com/gridhouse/peerreg/pkg/errors"
	"github.com/gridhouse/peerreg/pkg/httpclient"
)

// Wire protocol actions. Mutations share one POST endpoint and are
// distinguished by the action field in the body.
const (
	actionRegister   = "register"
	actionUnregister = "unregister"
	actionHeartbeat  = "heartbeat"
)

// Wire protocol paths relative to the registry base URL. Exported so
// processes embedding Server can mount it where remote clients expect it.
const (
	// MutationPath receives register, unregister, and heartbeat POSTs.
	MutationPath = "/api/registry"

	// ServicesPath serves discovery GETs filtered by name or capability.
	ServicesPath = "/api/registry/services"
)

// DefaultRemoteTimeout bounds every remote registry call, retries included.
const DefaultRemoteTimeout = 10 * time.Second

// wireMutation is the POST body for register, unregister, and heartbeat.
type wireMutation struct {
	Action  string      `json:"action"`
	Service wireService `json:"service"`
}

// wireService is the canonical outbound JSON shape for a service entry.
// Timestamps travel as epoch milliseconds.
type wireService struct {
	ServiceName   string            `json:"serviceName"`
	Environment   string            `json:"environment,omitempty"`
	Endpoint      string            `json:"endpoint,omitempty"`
	Capabilities  []string          `json:"capabilities,omitempty"`
	LastHeartbeat int64             `json:"lastHeartbeat,omitempty"`
	IsHealthy     *bool             `json:"isHealthy,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// wireAck is the mutation response.
type wireAck struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// wireListing is the query response envelope. Name lookups carry Service,
// listings carry Services. Bare-array responses are normalized into this
// shape before use.
type wireListing struct {
	Success  bool           `json:"success"`
	Error    string         `json:"error,omitempty"`
	Service  *looseService  `json:"service,omitempty"`
	Services []looseService `json:"services,omitempty"`
}

// looseService tolerates the field variants remote registries answer with:
// serviceName or name keys the identity, lastHeartbeat or lastSeen carries
// the timestamp as either epoch milliseconds or RFC3339 text, and isHealthy
// may be absent.
type looseService struct {
	ServiceName  string            `json:"serviceName"`
	Name         string            `json:"name"`
	Environment  string            `json:"environment"`
	Endpoint     string            `json:"endpoint"`
	Capabilities []string          `json:"capabilities"`
	LastBeat     json.RawMessage   `json:"lastHeartbeat"`
	LastSeen     json.RawMessage   `json:"lastSeen"`
	IsHealthy    *bool             `json:"isHealthy"`
	Metadata     map[string]string `json:"metadata"`
}

// toService normalizes a wire entry into the caller-facing view, recomputing
// health from the window when the server does not state it.
func (w looseService) toService(now time.Time, window time.Duration) RegisteredService {
	name := w.ServiceName
	if name == "" {
		name = w.Name
	}

	lastSeen := parseWireTime(w.LastBeat)
	if lastSeen.IsZero() {
		lastSeen = parseWireTime(w.LastSeen)
	}

	healthy := IsHealthy(lastSeen, now, window)
	if w.IsHealthy != nil {
		healthy = *w.IsHealthy
	}

	return RegisteredService{
		Name:         name,
		Environment:  w.Environment,
		Endpoint:     w.Endpoint,
		Capabilities: w.Capabilities,
		LastSeen:     lastSeen,
		IsHealthy:    healthy,
		Metadata:     w.Metadata,
	}
}

// parseWireTime accepts epoch milliseconds or RFC3339 text. Anything else
// yields the zero time, which classifies as unhealthy downstream.
func parseWireTime(raw json.RawMessage) time.Time {
	if len(raw) == 0 {
		return time.Time{}
	}

	var millis int64
	if err := json.Unmarshal(raw, &millis); err == nil {
		if millis <= 0 {
			return time.Time{}
		}
		return time.UnixMilli(millis).UTC()
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if t, perr := time.Parse(time.RFC3339, text); perr == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// HTTPRemote implements Remote against the registry wire protocol. Every
// call is bounded by the configured timeout regardless of how many retry
// attempts the underlying client makes inside it.
type HTTPRemote struct {
	http    *httpclient.Client
	base    string
	token   string
	timeout time.Duration
	window  time.Duration

	now func() time.Time
}

// NewHTTPRemote creates a remote registry client for the configured base
// URL. The health window is used to recompute isHealthy for responses that
// omit it; pass the same window the resolver classifies with.
func NewHTTPRemote(ctx context.Context, cfg config.RemoteConfig, window time.Duration) (*HTTPRemote, error) {
	if cfg.BaseURL == "" {
		return nil, errors.NewInvalidInput("base_url", "remote registry base URL is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultRemoteTimeout
	}
	if window <= 0 {
		window = DefaultHealthTimeout
	}

	client, err := httpclient.New(ctx, config.HTTPClientConfig{
		Timeout:    timeout,
		RetryCount: cfg.RetryCount,
	})
	if err != nil {
		return nil, err
	}

	return &HTTPRemote{
		http:    client,
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		timeout: timeout,
		window:  window,
		now:     time.Now,
	}, nil
}

// Register submits a registration.
func (r *HTTPRemote) Register(ctx context.Context, reg Registration) error {
	return r.mutate(ctx, actionRegister, wireService{
		ServiceName:  reg.ServiceName,
		Environment:  reg.Environment,
		Endpoint:     reg.Endpoint,
		Capabilities: reg.Capabilities,
		Metadata:     reg.Metadata,
	})
}

// Unregister removes the registration for the name, scoped to one
// environment when given.
func (r *HTTPRemote) Unregister(ctx context.Context, name, environment string) error {
	return r.mutate(ctx, actionUnregister, wireService{
		ServiceName: name,
		Environment: environment,
	})
}

// Heartbeat refreshes the remote registration's liveness timestamp.
func (r *HTTPRemote) Heartbeat(ctx context.Context, name, environment string) error {
	return r.mutate(ctx, actionHeartbeat, wireService{
		ServiceName: name,
		Environment: environment,
	})
}

// Lookup returns the remote registry's entry for the name.
func (r *HTTPRemote) Lookup(ctx context.Context, name string) (*RegisteredService, error) {
	body, err := r.query(ctx, map[string]string{"name": name})
	if err != nil {
		return nil, err
	}

	listing, err := parseListing(body)
	if err != nil {
		return nil, err
	}

	if listing.Service != nil {
		svc := listing.Service.toService(r.now(), r.window)
		return &svc, nil
	}
	// Some registries answer a name query with a one-element listing.
	if len(listing.Services) > 0 {
		svc := listing.Services[0].toService(r.now(), r.window)
		return &svc, nil
	}
	return nil, errors.NewNotFound("service", name)
}

// ListByCapability returns healthy remote entries advertising the
// capability. Both filters are applied locally as well, so a registry that
// ignores the query parameter cannot smuggle in stale or unrelated entries.
func (r *HTTPRemote) ListByCapability(ctx context.Context, capability string) ([]RegisteredService, error) {
	body, err := r.query(ctx, map[string]string{"capability": capability})
	if err != nil {
		return nil, err
	}

	listing, err := parseListing(body)
	if err != nil {
		return nil, err
	}

	now := r.now()
	var services []RegisteredService
	for _, entry := range listing.Services {
		svc := entry.toService(now, r.window)
		if svc.IsHealthy && svc.HasCapability(capability) {
			services = append(services, svc)
		}
	}
	return services, nil
}

// ListAll returns every entry the remote registry knows about, healthy or
// not.
func (r *HTTPRemote) ListAll(ctx context.Context) ([]RegisteredService, error) {
	body, err := r.query(ctx, nil)
	if err != nil {
		return nil, err
	}

	listing, err := parseListing(body)
	if err != nil {
		return nil, err
	}

	now := r.now()
	services := make([]RegisteredService, 0, len(listing.Services))
	for _, entry := range listing.Services {
		services = append(services, entry.toService(now, r.window))
	}
	return services, nil
}

// Close releases the underlying HTTP client.
func (r *HTTPRemote) Close() error {
	return r.http.Close()
}

// mutate sends one action through the shared mutation endpoint.
func (r *HTTPRemote) mutate(ctx context.Context, action string, svc wireService) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req := r.http.Post(ctx, r.base+MutationPath).
		WithJSON(wireMutation{Action: action, Service: svc})
	if r.token != "" {
		req = req.WithAuthToken(r.token)
	}

	resp, err := req.Do()
	if err != nil {
		return err
	}

	var ack wireAck
	if err := resp.BodyAsJSON(&ack); err != nil {
		return err
	}
	if !ack.Success {
		msg := ack.Error
		if msg == "" {
			msg = "request rejected"
		}
		return errors.NewTransient(fmt.Sprintf("remote registry %s failed: %s", action, msg), nil)
	}
	return nil
}

// query issues a discovery GET and returns the raw body for parsing.
func (r *HTTPRemote) query(ctx context.Context, params map[string]string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req := r.http.Get(ctx, r.base+ServicesPath)
	if len(params) > 0 {
		req = req.WithQueryParams(params)
	}
	if r.token != "" {
		req = req.WithAuthToken(r.token)
	}

	resp, err := req.Do()
	if err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

// parseListing accepts both the {"success": ..., "services": [...]}
// envelope and a bare JSON array of service entries.
func parseListing(body []byte) (*wireListing, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return &wireListing{}, nil
	}

	if trimmed[0] == '[' {
		var services []looseService
		if err := json.Unmarshal(trimmed, &services); err != nil {
			return nil, errors.NewInvalidInputWithCause("body", "malformed registry listing", err)
		}
		return &wireListing{Success: true, Services: services}, nil
	}

	var listing wireListing
	if err := json.Unmarshal(trimmed, &listing); err != nil {
		return nil, errors.NewInvalidInputWithCause("body", "malformed registry listing", err)
	}
	return &listing, nil
}
