package api

import (
	"net/http"

	"agency-tracker/pkg/model"
)

func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, 400, err.Error())
		return
	}
	res, err := s.tracker.TransitionTask(r.Context(), r.PathValue("id"), model.TaskStatus(req.Status), req.Reason)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, 200, res)
}

func (s *Server) handleTaskAssignee(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, 400, err.Error())
		return
	}
	t, err := s.tracker.ReassignTask(r.Context(), actor(r), r.PathValue("id"), req.UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, 200, t)
}

func (s *Server) handleTaskReminded(w http.ResponseWriter, r *http.Request) {
	t, err := s.tracker.MarkReminded(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, 200, t)
}
