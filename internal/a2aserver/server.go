package a2aserver

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server mounts the JSON-RPC and HTTP+JSON bindings for every registered
// agent, plus discovery, health, and metrics endpoints, on one chi router.
type Server struct {
	router    chi.Router
	mu        sync.RWMutex
	agents    map[string]Handler
	startedAt time.Time
	metrics   *metrics
	baseURL   string
	service   string
	version   string
	dbCheck   func(context.Context) error
	timeout   time.Duration
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithBaseURL sets the externally-visible base URL used to render agent
// discovery records (agent_card_url, jsonrpc_endpoint, http_endpoint).
func WithBaseURL(url string) Option { return func(s *Server) { s.baseURL = url } }

// WithServiceInfo sets the service name and version reported by /health.
func WithServiceInfo(service, version string) Option {
	return func(s *Server) { s.service = service; s.version = version }
}

// WithDatabaseCheck sets the probe /health uses to populate its "database"
// field; a nil check (the default) always reports "ok".
func WithDatabaseCheck(check func(context.Context) error) Option {
	return func(s *Server) { s.dbCheck = check }
}

// WithRequestTimeout bounds every request's handling time; zero disables
// the bound. Cancellation propagates to the Handler via the request's
// context, which connector calls, LLM streams, and SSE loops must observe
// at their next suspension point.
func WithRequestTimeout(d time.Duration) Option { return func(s *Server) { s.timeout = d } }

// NewServer builds a Server with no agents registered.
func NewServer(opts ...Option) *Server {
	s := &Server{
		agents:    map[string]Handler{},
		startedAt: time.Now(),
		metrics:   newMetrics(),
		service:   "oxy-a2a",
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

// RegisterAgent exposes handler at /a2a/agents/{name}/v1/... and under the
// discovery/agent-card endpoints. Registering the same name twice replaces
// the previous handler.
func (s *Server) RegisterAgent(name string, handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[name] = handler
}

func (s *Server) lookupAgent(name string) (Handler, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.agents[name]
	return h, ok
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestTimeoutMiddleware)
	r.Use(s.metricsMiddleware)

	r.Route("/a2a/agents/{name}/v1", func(r chi.Router) {
		r.Post("/jsonrpc", s.handleJSONRPC)
		r.Post("/messages", s.handleHTTPSendMessage)
		r.Post("/messages/stream", s.handleHTTPSendStreamingMessage)
		r.Get("/tasks/{id}", s.handleHTTPGetTask)
		r.Delete("/tasks/{id}", s.handleHTTPDeleteTask)
		r.Get("/agent", s.handleHTTPGetAgentCard)
	})
	r.Get("/a2a/agents", s.handleListAgents)
	r.Get("/a2a/agents/{name}/.well-known/agent-card.json", s.handleAgentCardWellKnown)
	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)

	return r
}

func (s *Server) requestTimeoutMiddleware(next http.Handler) http.Handler {
	if s.timeout <= 0 {
		return next
	}
	return http.TimeoutHandler(next, s.timeout, `{"error":{"message":"request timed out"}}`)
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.metrics.recordRequest(sw.status >= 400)
	})
}

// statusWriter captures the status code written by a downstream handler so
// the metrics middleware can classify the request after the fact.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// handleListAgents implements GET /a2a/agents.
func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type agentRecord struct {
		Name            string `json:"name"`
		AgentCardURL    string `json:"agent_card_url"`
		JSONRPCEndpoint string `json:"jsonrpc_endpoint"`
		HTTPEndpoint    string `json:"http_endpoint"`
	}
	records := make([]agentRecord, 0, len(s.agents))
	for name := range s.agents {
		records = append(records, agentRecord{
			Name:            name,
			AgentCardURL:    s.baseURL + "/a2a/agents/" + name + "/.well-known/agent-card.json",
			JSONRPCEndpoint: s.baseURL + "/a2a/agents/" + name + "/v1/jsonrpc",
			HTTPEndpoint:    s.baseURL + "/a2a/agents/" + name + "/v1",
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": records})
}

func (s *Server) handleAgentCardWellKnown(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	handler, ok := s.lookupAgent(name)
	if !ok {
		writeJSON(w, http.StatusNotFound, newHTTPErrorResponse("unknown agent: "+name, RPCTaskNotFound))
		return
	}
	card, err := handler.HandleGetAgentCard(r.Context(), newRequestContext(r.Header))
	if err != nil {
		status, code := statusForError(err)
		writeJSON(w, status, newHTTPErrorResponse(err.Error(), code))
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	dbStatus := "ok"
	code := http.StatusOK
	if s.dbCheck != nil {
		if err := s.dbCheck(r.Context()); err != nil {
			status = "degraded"
			dbStatus = err.Error()
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, map[string]any{
		"status":         status,
		"service":        s.service,
		"uptime_seconds": time.Since(s.startedAt).Seconds(),
		"database":       dbStatus,
		"version":        s.version,
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"requests_total":  counterValue(s.metrics.requestsTotal),
		"requests_failed": counterValue(s.metrics.requestsFailed),
		"uptime_seconds":  time.Since(s.startedAt).Seconds(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
