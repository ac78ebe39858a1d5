// Package guiserver is a stand-in for the Greentic GUI backend: the four
// endpoints the SDK talks to, implemented just far enough for local
// development and the end-to-end harness. It records every request it
// serves so tests can assert on what the SDK actually sent.
package guiserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/greentic-ai-org/greentic-gui/pkg/events"
	"github.com/greentic-ai-org/greentic-gui/pkg/logging"
	"github.com/greentic-ai-org/greentic-gui/pkg/session"
)

const maxBodyBytes int64 = 1 << 20

// SessionCookieName is the cookie carrying the signed session token.
const SessionCookieName = "greentic_session"

// Config configures the stub backend.
type Config struct {
	// TenantDomain is echoed in the config endpoint response.
	TenantDomain string
	// SessionSecret signs session tokens; generated when empty.
	SessionSecret []byte
	// EventInterval, when positive, rate-limits the events endpoint per
	// remote address.
	EventInterval time.Duration
	// Logger receives request logs; nil discards.
	Logger *logging.Logger
}

// RecordedRequest is one request the stub served, kept for assertions.
type RecordedRequest struct {
	Method string
	Path   string
	Body   []byte
	At     time.Time
}

// Server implements the backend endpoints the SDK consumes.
type Server struct {
	cfg    Config
	router chi.Router
	logger *logging.Logger

	mu       sync.Mutex
	requests []RecordedRequest
	events   []events.Event
	limiters map[string]*rate.Limiter
}

// New creates a stub backend.
func New(cfg Config) (*Server, error) {
	if cfg.TenantDomain == "" {
		cfg.TenantDomain = "localhost"
	}
	if len(cfg.SessionSecret) == 0 {
		secret, err := generateSecret()
		if err != nil {
			return nil, fmt.Errorf("generating session secret: %w", err)
		}
		cfg.SessionSecret = secret
	}

	s := &Server{
		cfg:      cfg,
		logger:   cfg.Logger,
		limiters: make(map[string]*rate.Limiter),
	}

	router := chi.NewRouter()
	router.Route("/api/gui", func(r chi.Router) {
		r.Use(s.recordMiddleware)
		r.Get("/config", s.handleConfig)
		r.Post("/worker/message", s.handleWorkerMessage)
		r.Post("/events", s.handleEvents)
		r.Post("/session", s.handleSession)
	})
	router.Get("/healthz", s.handleHealthz)
	router.Get("/metrics", handleMetrics)
	s.router = router

	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// RecordedRequests returns a copy of every API request served so far.
func (s *Server) RecordedRequests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecordedRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// Events returns a copy of every accepted event.
func (s *Server) Events() []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]events.Event, len(s.events))
	copy(out, s.events)
	return out
}

// recordMiddleware captures API request bodies for later assertions. It is
// installed on the /api/gui group only, so operational endpoints stay out
// of the request log and the request counter.
func (s *Server) recordMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil && r.Body != http.NoBody {
			body, _ = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
			r.Body = io.NopCloser(bytes.NewReader(body))
		}

		s.mu.Lock()
		s.requests = append(s.requests, RecordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Body:   body,
			At:     time.Now(),
		})
		s.mu.Unlock()

		metricRequestsTotal.WithLabelValues(r.URL.Path).Inc()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]any{
		"tenant_domain": s.cfg.TenantDomain,
		"features": map[string]any{
			"events":  true,
			"session": true,
		},
	})
}

func (s *Server) handleWorkerMessage(w http.ResponseWriter, r *http.Request) {
	var msg struct {
		WorkerID string         `json:"worker_id"`
		Payload  any            `json:"payload"`
		Context  map[string]any `json:"context"`
	}
	if status, err := decodeJSON(w, r, &msg); err != nil {
		respondError(w, status, err)
		return
	}
	if msg.WorkerID == "" {
		respondError(w, http.StatusBadRequest, errors.New("worker_id is required"))
		return
	}

	metricWorkerMessagesTotal.WithLabelValues(msg.WorkerID).Inc()
	s.logger.Info(logging.CategoryServer, "worker.message", "worker message received", map[string]any{
		"worker_id": msg.WorkerID,
	})

	respondJSON(w, map[string]any{
		"message_id": uuid.NewString(),
		"worker_id":  msg.WorkerID,
		"status":     "accepted",
		"echo":       msg.Payload,
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !s.allowEvent(remoteHost(r)) {
		respondError(w, http.StatusTooManyRequests, errors.New("event rate exceeded"))
		return
	}

	var ev events.Event
	if status, err := decodeJSON(w, r, &ev); err != nil {
		respondError(w, status, err)
		return
	}
	if ev.EventType == "" {
		respondError(w, http.StatusBadRequest, errors.New("event_type is required"))
		return
	}

	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()

	metricEventsTotal.WithLabelValues(ev.EventType).Inc()
	respondJSON(w, map[string]any{"accepted": true})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	var req session.StartRequest
	if status, err := decodeJSON(w, r, &req); err != nil {
		respondError(w, status, err)
		return
	}
	if req.UserID == "" {
		respondError(w, http.StatusBadRequest, errors.New("user_id is required"))
		return
	}

	sessionID := uuid.NewString()
	token, err := s.mintSessionToken(sessionID, req.UserID, req.Team)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	metricSessionsTotal.Inc()
	s.logger.Info(logging.CategoryServer, "session.started", "session established", map[string]any{
		"user_id": req.UserID,
	})

	respondJSON(w, map[string]any{
		"session_id": sessionID,
		"user_id":    req.UserID,
		"team":       req.Team,
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]any{"status": "ok"})
}

// allowEvent applies the per-remote event rate limit.
func (s *Server) allowEvent(remote string) bool {
	if s.cfg.EventInterval <= 0 {
		return true
	}
	s.mu.Lock()
	limiter, ok := s.limiters[remote]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(s.cfg.EventInterval), 1)
		s.limiters[remote] = limiter
	}
	s.mu.Unlock()
	return limiter.Allow()
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) (int, error) {
	if r.Body == nil {
		return http.StatusBadRequest, errors.New("request body required")
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return http.StatusRequestEntityTooLarge, errors.New("request body too large")
		}
		return http.StatusBadRequest, err
	}
	return 0, nil
}

// respondJSON sends a JSON response with appropriate headers.
func respondJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"error": err.Error()})
}
