package api

import (
	"net/http"

	"github.com/flitsinc/agentboard/internal/missions"
)

func (s *Server) handleMissions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		filter := missions.Filter{
			AgentID: q.Get("agent"),
			Limit:   parseInt(q.Get("limit"), 0),
		}
		for _, raw := range splitComma(q.Get("status")) {
			st, err := missions.ParseStatus(raw)
			if err != nil {
				s.writeStateError(w, r, err)
				return
			}
			filter.Statuses = append(filter.Statuses, st)
		}
		list, err := s.Missions.List(r.Context(), filter)
		if err != nil {
			s.writeStateError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	case http.MethodPost:
		var in missions.NewMission
		if err := decodeJSON(r.Body, &in); err != nil {
			s.writeStateError(w, r, err)
			return
		}
		mission, err := s.Missions.Create(r.Context(), in)
		if err != nil {
			s.writeStateError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, mission)
	default:
		writeMethodNotAllowed(w)
	}
}

// handleMissionItem serves /api/missions/{id} and its steps.
func (s *Server) handleMissionItem(w http.ResponseWriter, r *http.Request) {
	segments := pathSegments(r.URL.Path, "/api/missions/")
	if len(segments) == 0 || len(segments) > 3 || (len(segments) > 1 && segments[1] != "steps") {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "not found"})
		return
	}
	missionID, err := parseID("mission", segments[0])
	if err != nil {
		s.writeStateError(w, r, err)
		return
	}

	switch len(segments) {
	case 1:
		s.handleMission(w, r, missionID)
	case 2:
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		var in missions.NewStep
		if err := decodeJSON(r.Body, &in); err != nil {
			s.writeStateError(w, r, err)
			return
		}
		step, err := s.Missions.AddStep(r.Context(), missionID, in)
		if err != nil {
			s.writeStateError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, step)
	case 3:
		if r.Method != http.MethodPatch {
			writeMethodNotAllowed(w)
			return
		}
		stepID, err := parseID("step", segments[2])
		if err != nil {
			s.writeStateError(w, r, err)
			return
		}
		var patch missions.StepPatch
		if err := decodeJSON(r.Body, &patch); err != nil {
			s.writeStateError(w, r, err)
			return
		}
		step, err := s.Missions.UpdateStep(r.Context(), missionID, stepID, patch)
		if err != nil {
			s.writeStateError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, step)
	}
}

func (s *Server) handleMission(w http.ResponseWriter, r *http.Request, id int64) {
	switch r.Method {
	case http.MethodGet:
		mission, err := s.Missions.Get(r.Context(), id)
		if err != nil {
			s.writeStateError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, mission)
	case http.MethodPatch:
		var patch missions.Patch
		if err := decodeJSON(r.Body, &patch); err != nil {
			s.writeStateError(w, r, err)
			return
		}
		mission, err := s.Missions.Update(r.Context(), id, patch)
		if err != nil {
			s.writeStateError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, mission)
	default:
		writeMethodNotAllowed(w)
	}
}
