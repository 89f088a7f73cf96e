package api

import (
	"net/http"

	"agency-tracker/internal/logging"
	"agency-tracker/pkg/classify"
	"agency-tracker/pkg/model"
	"agency-tracker/pkg/tracker"
)

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	cards, err := s.tracker.Dashboard(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, 200, cards)
}

func (s *Server) handleFollowUps(w http.ResponseWriter, r *http.Request) {
	fu, err := s.tracker.FollowUps(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, 200, fu)
}

type catalogEntry struct {
	Type  model.ServiceType `json:"type"`
	Label string            `json:"label"`
	Tasks []string          `json:"tasks"`
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	c := s.tracker.Catalog()
	out := []catalogEntry{}
	for _, typ := range c.Types() {
		t, _ := c.Template(typ)
		out = append(out, catalogEntry{Type: typ, Label: t.Label, Tasks: t.Tasks})
	}
	writeJSON(w, 200, out)
}

func (s *Server) handleClientList(w http.ResponseWriter, r *http.Request) {
	cards, err := s.tracker.ListClients(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, 200, cards)
}

func (s *Server) handleClientCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, 400, err.Error())
		return
	}
	c, err := s.tracker.CreateClient(r.Context(), req.Name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, 201, c)
}

func (s *Server) handleClientGet(w http.ResponseWriter, r *http.Request) {
	v, err := s.tracker.ClientDetail(r.Context(), r.PathValue("id"), r.URL.Query().Get("q"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, 200, v)
}

func (s *Server) handleProjectList(w http.ResponseWriter, r *http.Request) {
	items, err := s.tracker.ProjectList(r.Context(), actor(r), r.URL.Query().Get("q"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, 200, items)
}

// handleProjectGet accepts tab, q and service query parameters. Unknown tabs
// fall back to ALL.
func (s *Server) handleProjectGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	q := r.URL.Query()
	f := classify.Filter{
		Tab:       classify.ParseTab(q.Get("tab")),
		Query:     q.Get("q"),
		ServiceID: q.Get("service"),
	}
	v, err := s.tracker.ProjectDetail(logging.WithProjectID(r.Context(), id), id, f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, 200, v)
}

func (s *Server) handleProjectCreate(w http.ResponseWriter, r *http.Request) {
	var d tracker.ProjectDraft
	if err := decode(r, &d); err != nil {
		writeError(w, 400, err.Error())
		return
	}
	out, err := s.tracker.CreateProject(r.Context(), actor(r), d)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, 201, out)
}

// handleProjectUpdate applies a partial edit. Send "" for a date to clear it.
func (s *Server) handleProjectUpdate(w http.ResponseWriter, r *http.Request) {
	var p tracker.ProjectPatch
	if err := decode(r, &p); err != nil {
		writeError(w, 400, err.Error())
		return
	}
	id := r.PathValue("id")
	out, err := s.tracker.UpdateProject(logging.WithProjectID(r.Context(), id), actor(r), id, p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, 200, out)
}

func (s *Server) handleProjectDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.tracker.DeleteProject(logging.WithProjectID(r.Context(), id), actor(r), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleServicesReplace(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Services []tracker.ServiceDraft `json:"services"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, 400, err.Error())
		return
	}
	id := r.PathValue("id")
	out, err := s.tracker.ReplaceServices(logging.WithProjectID(r.Context(), id), actor(r), id, req.Services)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, 200, out)
}

func (s *Server) handleProjectSync(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	res, err := s.tracker.SyncProjectStatus(logging.WithProjectID(r.Context(), id), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, 200, res)
}
