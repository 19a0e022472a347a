package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gridhouse/peerreg/pkg/errors"
	"github.com/gridhouse/peerreg/pkg/logging"
)

// Server serves the registry wire protocol over a Store, so any process
// holding the authoritative store can act as the remote tier for peers
// without database access. Auth, logging, and metrics wrap it as ordinary
// HTTP middleware.
type Server struct {
	store  Store
	window time.Duration
	logger *logging.Logger
	mux    *http.ServeMux

	now func() time.Time
}

// NewServer creates a wire protocol server over the store. The window is
// the health classification cutoff; zero selects the default. A nil logger
// selects the process default.
func NewServer(store Store, window time.Duration, logger *logging.Logger) *Server {
	if window <= 0 {
		window = DefaultHealthTimeout
	}
	if logger == nil {
		logger = logging.FromContext(context.Background())
	}

	s := &Server{
		store:  store,
		window: window,
		logger: logger.WithComponent("registry-server"),
		now:    time.Now,
	}

	mux := http.NewServeMux()
	mux.HandleFunc(MutationPath, s.handleMutation)
	mux.HandleFunc(ServicesPath, s.handleQuery)
	s.mux = mux
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// mutationRequest tolerates both the nested {action, service: {...}} shape
// and the flat legacy shape carrying identity fields at the top level.
type mutationRequest struct {
	Action  string        `json:"action"`
	Service *looseService `json:"service,omitempty"`
	looseService
}

// service returns whichever shape the request used.
func (m mutationRequest) service() looseService {
	if m.Service != nil {
		return *m.Service
	}
	return m.looseService
}

// wireLookupResponse answers name queries.
type wireLookupResponse struct {
	Success bool         `json:"success"`
	Service *wireService `json:"service,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// wireListResponse answers capability queries and full listings.
type wireListResponse struct {
	Success  bool          `json:"success"`
	Services []wireService `json:"services"`
}

func (s *Server) handleMutation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		s.writeJSON(w, http.StatusMethodNotAllowed, wireAck{Success: false, Error: "method not allowed"})
		return
	}

	var mutation mutationRequest
	if err := json.NewDecoder(r.Body).Decode(&mutation); err != nil {
		s.writeJSON(w, http.StatusBadRequest, wireAck{Success: false, Error: "malformed request body"})
		return
	}

	svc := mutation.service()
	name := svc.ServiceName
	if name == "" {
		name = svc.Name
	}
	if name == "" {
		s.writeJSON(w, http.StatusBadRequest, wireAck{Success: false, Error: "service name is required"})
		return
	}

	switch mutation.Action {
	case actionRegister:
		s.handleRegister(w, r, name, svc)
	case actionUnregister:
		s.handleUnregister(w, r, name, svc.Environment)
	case actionHeartbeat:
		s.handleHeartbeat(w, r, name, svc.Environment)
	default:
		s.writeJSON(w, http.StatusBadRequest, wireAck{Success: false, Error: fmt.Sprintf("unknown action %q", mutation.Action)})
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request, name string, svc looseService) {
	reg := Registration{
		ServiceName:  name,
		Environment:  svc.Environment,
		Endpoint:     svc.Endpoint,
		Capabilities: svc.Capabilities,
		Metadata:     svc.Metadata,
	}

	if err := s.store.Upsert(r.Context(), reg); err != nil {
		s.writeError(w, err)
		return
	}

	s.logger.Info().
		Str(logging.ServiceName, name).
		Str(logging.Environment, reg.Environment).
		Str(logging.Endpoint, reg.Endpoint).
		Msg("service registered")
	s.writeJSON(w, http.StatusOK, wireAck{Success: true})
}

func (s *Server) handleUnregister(w http.ResponseWriter, r *http.Request, name, environment string) {
	var (
		deleted bool
		err     error
	)
	if environment != "" {
		deleted, err = s.store.Delete(r.Context(), name, environment)
	} else {
		deleted, err = s.store.DeleteByName(r.Context(), name)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !deleted {
		s.writeJSON(w, http.StatusNotFound, wireAck{Success: false, Error: "service not found"})
		return
	}

	s.logger.Info().
		Str(logging.ServiceName, name).
		Str(logging.Environment, environment).
		Msg("service unregistered")
	s.writeJSON(w, http.StatusOK, wireAck{Success: true})
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request, name, environment string) {
	touched, err := s.store.Touch(r.Context(), name, environment)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !touched {
		s.writeJSON(w, http.StatusNotFound, wireAck{Success: false, Error: "service not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, wireAck{Success: true})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		s.writeJSON(w, http.StatusMethodNotAllowed, wireAck{Success: false, Error: "method not allowed"})
		return
	}

	query := r.URL.Query()
	switch {
	case query.Get("name") != "":
		s.handleLookup(w, r, query.Get("name"))
	case query.Get("capability") != "":
		s.handleCapability(w, r, query.Get("capability"))
	default:
		s.handleListAll(w, r)
	}
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request, name string) {
	rec, err := s.store.Get(r.Context(), name)
	if err != nil {
		if errors.IsNotFound(err) {
			s.writeJSON(w, http.StatusNotFound, wireLookupResponse{Success: false, Error: "service not found"})
			return
		}
		s.writeError(w, err)
		return
	}

	entry := s.wireEntry(*rec)
	s.writeJSON(w, http.StatusOK, wireLookupResponse{Success: true, Service: &entry})
}

func (s *Server) handleCapability(w http.ResponseWriter, r *http.Request, capability string) {
	records, err := s.store.ListByCapability(r.Context(), capability, s.window)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.listResponse(records))
}

func (s *Server) handleListAll(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListAll(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.listResponse(records))
}

// wireEntry converts a stored record into the outbound wire shape,
// timestamp as epoch milliseconds and health computed as of now.
func (s *Server) wireEntry(rec RegistrationRecord) wireService {
	healthy := IsHealthy(rec.LastHeartbeat, s.now(), s.window)
	return wireService{
		ServiceName:   rec.ServiceName,
		Environment:   rec.Environment,
		Endpoint:      rec.Endpoint,
		Capabilities:  rec.Capabilities,
		LastHeartbeat: rec.LastHeartbeat.UnixMilli(),
		IsHealthy:     &healthy,
		Metadata:      rec.Metadata,
	}
}

func (s *Server) listResponse(records []RegistrationRecord) wireListResponse {
	services := make([]wireService, 0, len(records))
	for _, rec := range records {
		services = append(services, s.wireEntry(rec))
	}
	return wireListResponse{Success: true, Services: services}
}

// writeError reports a backend failure in the wire envelope with the status
// the error taxonomy maps to.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := errors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("registry request failed")
	}
	s.writeJSON(w, status, wireAck{Success: false, Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	// Encode response (ignore error - if encoding fails, empty response is sent)
	_ = json.NewEncoder(w).Encode(body)
}
