package api

import (
	"net/http"

	"github.com/flitsinc/agentboard/internal/messages"
	"github.com/flitsinc/agentboard/internal/state"
)

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		filter := messages.Filter{
			To:    q.Get("to"),
			From:  q.Get("from"),
			Type:  q.Get("type"),
			Limit: parseInt(q.Get("limit"), 0),
		}
		if raw := q.Get("status"); raw != "" {
			st, err := messages.ParseStatus(raw)
			if err != nil {
				s.writeStateError(w, r, err)
				return
			}
			filter.Status = st
		}
		list, err := s.Messages.List(r.Context(), filter)
		if err != nil {
			s.writeStateError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	case http.MethodPost:
		var out messages.Outgoing
		if err := decodeJSON(r.Body, &out); err != nil {
			s.writeStateError(w, r, err)
			return
		}
		msg, err := s.Messages.Send(r.Context(), out)
		if err != nil {
			s.writeStateError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, msg)
	default:
		writeMethodNotAllowed(w)
	}
}

func (s *Server) handleMessageCounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	agentID := r.URL.Query().Get("agent")
	if agentID == "" {
		s.writeStateError(w, r, state.Invalid("counts", "agent"))
		return
	}
	counts, err := s.Messages.Counts(r.Context(), agentID)
	if err != nil {
		s.writeStateError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (s *Server) handleMessageItem(w http.ResponseWriter, r *http.Request) {
	segments := pathSegments(r.URL.Path, "/api/messages/")
	if len(segments) != 1 {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "not found"})
		return
	}
	id, err := parseID("message", segments[0])
	if err != nil {
		s.writeStateError(w, r, err)
		return
	}
	switch r.Method {
	case http.MethodGet:
		msg, err := s.Messages.Get(r.Context(), id)
		if err != nil {
			s.writeStateError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, msg)
	case http.MethodPatch:
		var body struct {
			Status messages.Status `json:"status"`
		}
		if err := decodeJSON(r.Body, &body); err != nil {
			s.writeStateError(w, r, err)
			return
		}
		msg, err := s.Messages.UpdateStatus(r.Context(), id, body.Status)
		if err != nil {
			s.writeStateError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, msg)
	default:
		writeMethodNotAllowed(w)
	}
}

func (s *Server) handlePolicies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	list, err := s.Policies.List(r.Context())
	if err != nil {
		s.writeStateError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handlePolicyItem(w http.ResponseWriter, r *http.Request) {
	segments := pathSegments(r.URL.Path, "/api/policies/")
	if len(segments) != 1 {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "not found"})
		return
	}
	key := segments[0]
	switch r.Method {
	case http.MethodGet:
		p, err := s.Policies.Get(r.Context(), key)
		if err != nil {
			s.writeStateError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	case http.MethodPut:
		var body struct {
			Value map[string]any `json:"value"`
		}
		if err := decodeJSON(r.Body, &body); err != nil {
			s.writeStateError(w, r, err)
			return
		}
		p, err := s.Policies.Set(r.Context(), key, body.Value)
		if err != nil {
			s.writeStateError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	default:
		writeMethodNotAllowed(w)
	}
}
