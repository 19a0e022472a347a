package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func postMutation(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, MutationPath, strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeAck(t *testing.T, rec *httptest.ResponseRecorder) wireAck {
	t.Helper()
	var ack wireAck
	if err := json.Unmarshal(rec.Body.Bytes(), &ack); err != nil {
		t.Fatalf("Decode ack: %v (body %s)", err, rec.Body.String())
	}
	return ack
}

// TestServerMutations tests the mutation endpoint over a memory store.
func TestServerMutations(t *testing.T) {
	t.Run("Register nested shape", func(t *testing.T) {
		store := NewMemoryStore()
		srv := NewServer(store, 90*time.Second, nil)

		rec := postMutation(t, srv, `{"action":"register","service":{
			"serviceName":"ai-worker","environment":"windows-vm",
			"endpoint":"http://10.0.0.5:9000","capabilities":["ai"]}}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if ack := decodeAck(t, rec); !ack.Success {
			t.Errorf("Expected success ack, got %+v", ack)
		}

		stored, err := store.Get(context.Background(), "ai-worker")
		if err != nil {
			t.Fatalf("Registered service not in store: %v", err)
		}
		if stored.Endpoint != "http://10.0.0.5:9000" {
			t.Errorf("Expected endpoint stored, got %s", stored.Endpoint)
		}
	})

	t.Run("Register flat legacy shape", func(t *testing.T) {
		store := NewMemoryStore()
		srv := NewServer(store, 90*time.Second, nil)

		rec := postMutation(t, srv, `{"action":"register",
			"serviceName":"dashboard","endpoint":"http://192.168.1.20:3000"}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if _, err := store.Get(context.Background(), "dashboard"); err != nil {
			t.Errorf("Flat-shape registration not stored: %v", err)
		}
	})

	t.Run("Register honors name alias", func(t *testing.T) {
		store := NewMemoryStore()
		srv := NewServer(store, 90*time.Second, nil)

		rec := postMutation(t, srv, `{"action":"register","service":{
			"name":"transcoder","endpoint":"http://host:8100"}}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if _, err := store.Get(context.Background(), "transcoder"); err != nil {
			t.Errorf("Alias registration not stored: %v", err)
		}
	})

	t.Run("Heartbeat refreshes and 404s when unknown", func(t *testing.T) {
		store := NewMemoryStore()
		srv := NewServer(store, 90*time.Second, nil)
		ctx := context.Background()

		base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		store.now = func() time.Time { return base }
		if err := store.Upsert(ctx, Registration{
			ServiceName: "ai-worker",
			Environment: "windows-vm",
			Endpoint:    "http://host:9000",
		}); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}

		store.now = func() time.Time { return base.Add(time.Minute) }
		rec := postMutation(t, srv, `{"action":"heartbeat","service":{
			"serviceName":"ai-worker","environment":"windows-vm"}}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		stored, _ := store.Get(ctx, "ai-worker")
		if !stored.LastHeartbeat.Equal(base.Add(time.Minute)) {
			t.Errorf("Heartbeat did not refresh, lastHeartbeat %v", stored.LastHeartbeat)
		}

		rec = postMutation(t, srv, `{"action":"heartbeat","service":{
			"serviceName":"ghost","environment":"dev"}}`)
		if rec.Code != http.StatusNotFound {
			t.Errorf("Expected 404 for unknown service, got %d", rec.Code)
		}
	})

	t.Run("Unregister scoped and unscoped", func(t *testing.T) {
		store := NewMemoryStore()
		srv := NewServer(store, 90*time.Second, nil)
		ctx := context.Background()

		for _, env := range []string{"windows-vm", "container"} {
			if err := store.Upsert(ctx, Registration{
				ServiceName: "ai-worker",
				Environment: env,
				Endpoint:    "http://host:9000",
			}); err != nil {
				t.Fatalf("Upsert failed: %v", err)
			}
		}

		rec := postMutation(t, srv, `{"action":"unregister","service":{
			"serviceName":"ai-worker","environment":"container"}}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if all, _ := store.ListAll(ctx); len(all) != 1 {
			t.Fatalf("Expected 1 record after scoped unregister, got %d", len(all))
		}

		rec = postMutation(t, srv, `{"action":"unregister","service":{
			"serviceName":"ai-worker"}}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if all, _ := store.ListAll(ctx); len(all) != 0 {
			t.Errorf("Expected empty store after unscoped unregister, got %d", len(all))
		}

		rec = postMutation(t, srv, `{"action":"unregister","service":{
			"serviceName":"ai-worker"}}`)
		if rec.Code != http.StatusNotFound {
			t.Errorf("Expected 404 when nothing matched, got %d", rec.Code)
		}
	})

	t.Run("Bad requests", func(t *testing.T) {
		srv := NewServer(NewMemoryStore(), 90*time.Second, nil)

		tests := []struct {
			name string
			body string
			want int
		}{
			{"malformed json", `{"action":`, http.StatusBadRequest},
			{"missing service name", `{"action":"register","service":{"endpoint":"http://h:1"}}`, http.StatusBadRequest},
			{"unknown action", `{"action":"destroy","service":{"serviceName":"x"}}`, http.StatusBadRequest},
			{"invalid registration", `{"action":"register","service":{"serviceName":"x"}}`, http.StatusBadRequest},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				rec := postMutation(t, srv, tt.body)
				if rec.Code != tt.want {
					t.Errorf("Expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
				}
				if ack := decodeAck(t, rec); ack.Success || ack.Error == "" {
					t.Errorf("Expected failure ack with an error, got %+v", ack)
				}
			})
		}
	})

	t.Run("Method not allowed", func(t *testing.T) {
		srv := NewServer(NewMemoryStore(), 90*time.Second, nil)

		req := httptest.NewRequest(http.MethodGet, MutationPath, nil)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)

		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("Expected 405, got %d", rec.Code)
		}
		if allow := rec.Header().Get("Allow"); allow != http.MethodPost {
			t.Errorf("Expected Allow: POST, got %q", allow)
		}
	})
}

// TestServerQueries tests the discovery endpoint over a memory store.
func TestServerQueries(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	seed := func(t *testing.T) (*Server, *MemoryStore) {
		t.Helper()
		store := NewMemoryStore()
		store.now = func() time.Time { return base.Add(-2 * time.Minute) }
		if err := store.Upsert(context.Background(), Registration{
			ServiceName:  "stale-worker",
			Environment:  "container",
			Endpoint:     "http://host:2",
			Capabilities: []string{"ai"},
		}); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
		store.now = func() time.Time { return base }
		if err := store.Upsert(context.Background(), Registration{
			ServiceName:  "ai-worker",
			Environment:  "windows-vm",
			Endpoint:     "http://10.0.0.5:9000",
			Capabilities: []string{"ai", "vision"},
		}); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}

		srv := NewServer(store, 90*time.Second, nil)
		srv.now = func() time.Time { return base }
		return srv, store
	}

	get := func(t *testing.T, srv *Server, target string) *httptest.ResponseRecorder {
		t.Helper()
		req := httptest.NewRequest(http.MethodGet, target, nil)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		return rec
	}

	t.Run("Lookup by name", func(t *testing.T) {
		srv, _ := seed(t)
		rec := get(t, srv, ServicesPath+"?name=ai-worker")
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var resp struct {
			Success bool `json:"success"`
			Service struct {
				ServiceName   string `json:"serviceName"`
				Endpoint      string `json:"endpoint"`
				LastHeartbeat int64  `json:"lastHeartbeat"`
				IsHealthy     *bool  `json:"isHealthy"`
			} `json:"service"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Decode response: %v", err)
		}
		if !resp.Success || resp.Service.ServiceName != "ai-worker" {
			t.Errorf("Unexpected response: %+v", resp)
		}
		if resp.Service.LastHeartbeat != base.UnixMilli() {
			t.Errorf("Expected epoch millis %d, got %d", base.UnixMilli(), resp.Service.LastHeartbeat)
		}
		if resp.Service.IsHealthy == nil || !*resp.Service.IsHealthy {
			t.Errorf("Expected isHealthy true, got %v", resp.Service.IsHealthy)
		}
	})

	t.Run("Lookup unknown name is 404", func(t *testing.T) {
		srv, _ := seed(t)
		rec := get(t, srv, ServicesPath+"?name=ghost")
		if rec.Code != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", rec.Code)
		}
	})

	t.Run("Capability query filters health", func(t *testing.T) {
		srv, _ := seed(t)
		rec := get(t, srv, ServicesPath+"?capability=ai")
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var resp struct {
			Success  bool `json:"success"`
			Services []struct {
				ServiceName string `json:"serviceName"`
			} `json:"services"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Decode response: %v", err)
		}
		if len(resp.Services) != 1 || resp.Services[0].ServiceName != "ai-worker" {
			t.Errorf("Expected only the healthy ai-worker, got %+v", resp.Services)
		}
	})

	t.Run("Full listing keeps stale entries", func(t *testing.T) {
		srv, _ := seed(t)
		rec := get(t, srv, ServicesPath)
		if rec.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var resp struct {
			Services []struct {
				ServiceName string `json:"serviceName"`
				IsHealthy   *bool  `json:"isHealthy"`
			} `json:"services"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Decode response: %v", err)
		}
		if len(resp.Services) != 2 {
			t.Fatalf("Expected 2 services, got %d", len(resp.Services))
		}
		for _, svc := range resp.Services {
			if svc.IsHealthy == nil {
				t.Errorf("Expected isHealthy stated for %s", svc.ServiceName)
			}
		}
	})

	t.Run("POST on query path is 405", func(t *testing.T) {
		srv, _ := seed(t)
		req := httptest.NewRequest(http.MethodPost, ServicesPath, strings.NewReader("{}"))
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("Expected 405, got %d", rec.Code)
		}
	})
}

// TestServerRemoteRoundTrip drives HTTPRemote against Server, checking the
// two ends of the wire protocol agree with each other.
func TestServerRemoteRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	srv := httptest.NewServer(NewServer(store, 90*time.Second, nil))
	defer srv.Close()

	remote := newTestRemote(t, srv.URL, "", time.Now())
	remote.now = time.Now
	ctx := context.Background()

	reg := Registration{
		ServiceName:  "ai-worker",
		Environment:  "windows-vm",
		Endpoint:     "http://10.0.0.5:9000",
		Capabilities: []string{"ai"},
		Metadata:     map[string]string{"gpu": "rtx4090"},
	}
	if err := remote.Register(ctx, reg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	svc, err := remote.Lookup(ctx, "ai-worker")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if svc.Endpoint != reg.Endpoint || svc.Environment != reg.Environment {
		t.Errorf("Lookup mismatch: %+v", svc)
	}
	if !svc.IsHealthy {
		t.Error("Freshly registered service should be healthy")
	}
	if svc.Metadata["gpu"] != "rtx4090" {
		t.Errorf("Metadata did not survive the round trip: %v", svc.Metadata)
	}

	if err := remote.Heartbeat(ctx, "ai-worker", "windows-vm"); err != nil {
		t.Errorf("Heartbeat() error = %v", err)
	}

	services, err := remote.ListByCapability(ctx, "ai")
	if err != nil {
		t.Fatalf("ListByCapability() error = %v", err)
	}
	if len(services) != 1 {
		t.Errorf("Expected 1 ai service, got %d", len(services))
	}

	if err := remote.Unregister(ctx, "ai-worker", "windows-vm"); err != nil {
		t.Fatalf("Unregister() error = %v", err)
	}
	if _, err := remote.Lookup(ctx, "ai-worker"); err == nil {
		t.Error("Lookup after unregister should fail")
	}

	if err := remote.Heartbeat(ctx, "ai-worker", "windows-vm"); err == nil {
		t.Error("Heartbeat after unregister should fail")
	}
}
