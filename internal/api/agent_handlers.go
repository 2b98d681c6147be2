package api

import (
	"net/http"

	"github.com/flitsinc/agentboard/internal/agents"
	"github.com/flitsinc/agentboard/internal/eventlog"
)

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		events, err := s.Log.Recent(r.Context(), eventlog.Query{
			Limit:   parseInt(q.Get("limit"), eventlog.DefaultLimit),
			Offset:  parseInt(q.Get("offset"), 0),
			AgentID: q.Get("agent"),
		})
		if err != nil {
			s.writeStateError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, events)
	case http.MethodPost:
		var in eventlog.Input
		if err := decodeJSON(r.Body, &in); err != nil {
			s.writeStateError(w, r, err)
			return
		}
		event, err := s.Log.Append(r.Context(), in)
		if err != nil {
			s.writeStateError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, event)
	default:
		writeMethodNotAllowed(w)
	}
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	list, err := s.Registry.ListActive(r.Context())
	if err != nil {
		s.writeStateError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleAgentItem(w http.ResponseWriter, r *http.Request) {
	segments := pathSegments(r.URL.Path, "/api/agents/")
	switch {
	case len(segments) == 1 && r.Method == http.MethodGet:
		agent, err := s.Registry.Get(r.Context(), segments[0])
		if err != nil {
			s.writeStateError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, agent)
	case len(segments) == 2 && segments[1] == "status":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		s.handleStatusReport(w, r, segments[0])
	case len(segments) == 1:
		writeMethodNotAllowed(w)
	default:
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "not found"})
	}
}

func (s *Server) handleStatusReport(w http.ResponseWriter, r *http.Request, agentID string) {
	var upd agents.Update
	if err := decodeJSON(r.Body, &upd); err != nil {
		s.writeStateError(w, r, err)
		return
	}
	agent, _, err := s.Log.RecordStatus(r.Context(), agentID, upd)
	if err != nil {
		s.writeStateError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}
