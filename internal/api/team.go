package api

import (
	"net/http"

	"agency-tracker/pkg/tracker"
)

func (s *Server) handleTeamList(w http.ResponseWriter, r *http.Request) {
	team, err := s.tracker.ListTeam(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, 200, team)
}

func (s *Server) handleTeamCreate(w http.ResponseWriter, r *http.Request) {
	var n tracker.NewTeamUser
	if err := decode(r, &n); err != nil {
		writeError(w, 400, err.Error())
		return
	}
	u, err := s.tracker.AddTeamUser(r.Context(), actor(r), n)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, 201, u)
}

func (s *Server) handleTeamUpdate(w http.ResponseWriter, r *http.Request) {
	var p tracker.TeamUserPatch
	if err := decode(r, &p); err != nil {
		writeError(w, 400, err.Error())
		return
	}
	u, err := s.tracker.UpdateTeamUser(r.Context(), actor(r), r.PathValue("id"), p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, 200, u)
}

func (s *Server) handleTeamDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.tracker.DeleteTeamUser(r.Context(), actor(r), r.PathValue("id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
