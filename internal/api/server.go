package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/flitsinc/agentboard/internal/agents"
	"github.com/flitsinc/agentboard/internal/config"
	"github.com/flitsinc/agentboard/internal/eventlog"
	"github.com/flitsinc/agentboard/internal/messages"
	"github.com/flitsinc/agentboard/internal/missions"
	"github.com/flitsinc/agentboard/internal/policies"
	"github.com/flitsinc/agentboard/internal/state"
	"github.com/flitsinc/agentboard/internal/status"
)

type Server struct {
	Store    *state.Store
	Registry *agents.Registry
	Log      *eventlog.Log
	Missions *missions.Tracker
	Messages *messages.Bus
	Policies *policies.Store
	Status   *status.Aggregator

	APIKey    string
	RateLimit config.RateLimitConfig
	Logger    *slog.Logger
	StartedAt time.Time
}

// Handler returns the routed API. ctx bounds the rate limiter's cleanup
// goroutine.
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/status.json", s.handleStatus)
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/api/agents", s.handleAgents)
	mux.HandleFunc("/api/agents/", s.handleAgentItem)
	mux.HandleFunc("/api/missions", s.handleMissions)
	mux.HandleFunc("/api/missions/", s.handleMissionItem)
	mux.HandleFunc("/api/messages", s.handleMessages)
	mux.HandleFunc("/api/messages/counts", s.handleMessageCounts)
	mux.HandleFunc("/api/messages/", s.handleMessageItem)
	mux.HandleFunc("/api/policies", s.handlePolicies)
	mux.HandleFunc("/api/policies/", s.handlePolicyItem)

	var h http.Handler = mux
	h = s.guardWrites(ctx, h)
	h = s.logRequests(h)
	h = traceRequests(h)
	h = withRequestID(h)
	return h
}

func (s *Server) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.Logger
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	payload := map[string]any{"status": "ok", "time": time.Now().UTC()}
	if !s.StartedAt.IsZero() {
		payload["uptime_seconds"] = int(time.Since(s.StartedAt).Seconds())
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	snap, err := s.Status.Snapshot(r.Context(), s.Store.Now())
	if err != nil {
		s.writeStateError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// writeStateError maps domain error kinds onto HTTP status codes.
func (s *Server) writeStateError(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, state.ErrValidation):
		code = http.StatusBadRequest
	case errors.Is(err, state.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, state.ErrReferential):
		code = http.StatusUnprocessableEntity
	}
	if code == http.StatusInternalServerError {
		s.logger().ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, code, err)
}

func decodeJSON(body io.Reader, dest any) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil && !errors.Is(err, io.EOF) {
		return state.Malformed("request body", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
}

func parseInt(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseID(entity, value string) (int64, error) {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return 0, state.NotFound(entity, value)
	}
	return id, nil
}

func splitComma(value string) []string {
	parts := strings.Split(value, ",")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// pathSegments returns the path below prefix split on "/".
func pathSegments(path, prefix string) []string {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}
