package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agency-tracker/pkg/datastore"
	"agency-tracker/pkg/tracker"
)

var now = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*Server, datastore.Store) {
	t.Helper()
	ctx := context.Background()
	mem := datastore.NewMemStore()
	seed := []struct {
		table string
		rows  []datastore.Row
	}{
		{"team_users", []datastore.Row{
			{"user_id": "admin", "name": "Aina", "role": "ADMIN"},
			{"user_id": "staff", "name": "Badrul", "phone": "0123456789", "role": "STAFF"},
		}},
		{"clients", []datastore.Row{{"id": "c1", "name": "Kedai Kopi"}}},
		{"projects", []datastore.Row{{"id": "p1", "client_id": "c1", "name": "Raya", "status": "IN_PROGRESS", "priority": "HIGH"}}},
		{"services", []datastore.Row{{"id": "s1", "project_id": "p1", "type": "META_ADS", "quantity": 1}}},
		{"tasks", []datastore.Row{
			{"id": "t1", "project_id": "p1", "service_id": "s1", "title": "Brief", "status": "TODO", "priority": "MEDIUM",
				"due_date": "2026-03-01", "assignee_user_id": "staff", "last_update_at": now},
		}},
	}
	for _, s := range seed {
		_, err := mem.Insert(ctx, s.table, s.rows...)
		require.NoError(t, err)
	}
	tr := tracker.New(mem, zerolog.Nop(), tracker.WithClock(func() time.Time { return now }))
	return New(tr, zerolog.Nop()), mem
}

func do(t *testing.T, s *Server, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s, "GET", "/health", "", "")
	assert.Equal(t, 200, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
}

func TestProjectDetailEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(t, s, "GET", "/api/projects/p1?tab=overdue", "staff", "")
	require.Equal(t, 200, w.Code, w.Body.String())
	v := decodeBody[tracker.ProjectView](t, w)
	assert.Equal(t, "Kedai Kopi", v.Client.Name)
	assert.Equal(t, 1, v.Rollup.Overdue)
	require.Len(t, v.Tasks, 1)
	assert.True(t, strings.HasPrefix(v.Tasks[0].RemindLink, "https://wa.me/60123456789?text="))

	w = do(t, s, "GET", "/api/projects/p1?tab=done", "staff", "")
	v = decodeBody[tracker.ProjectView](t, w)
	assert.Empty(t, v.Tasks)

	w = do(t, s, "GET", "/api/projects/nope", "staff", "")
	assert.Equal(t, 404, w.Code)
	assert.Contains(t, decodeBody[map[string]string](t, w)["error"], "nope")
}

func TestTaskStatusEndpoint(t *testing.T) {
	s, mem := newTestServer(t)

	w := do(t, s, "PATCH", "/api/tasks/t1/status", "staff", `{"status":"BLOCKED","reason":"  "}`)
	assert.Equal(t, 400, w.Code)

	w = do(t, s, "PATCH", "/api/tasks/t1/status", "staff", `{"status":`)
	assert.Equal(t, 400, w.Code)

	w = do(t, s, "PATCH", "/api/tasks/t1/status", "staff", `{"status":"DONE"}`)
	require.Equal(t, 200, w.Code, w.Body.String())
	res := decodeBody[tracker.TransitionResult](t, w)
	assert.True(t, res.Sync.Changed)

	row, err := mem.FetchOne(context.Background(), "projects", "id", "p1")
	require.NoError(t, err)
	assert.Equal(t, "DONE", row.String("status"))

	w = do(t, s, "PATCH", "/api/tasks/missing/status", "staff", `{"status":"DONE"}`)
	assert.Equal(t, 404, w.Code)
}

func TestAdminOnlyEndpoints(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		user   string
		body   string
		want   int
	}{
		{"reassign as staff", "PATCH", "/api/tasks/t1/assignee", "staff", `{"user_id":"admin"}`, 403},
		{"reassign anonymously", "PATCH", "/api/tasks/t1/assignee", "", `{"user_id":"admin"}`, 403},
		{"reassign to unknown user", "PATCH", "/api/tasks/t1/assignee", "admin", `{"user_id":"ghost"}`, 400},
		{"reassign as admin", "PATCH", "/api/tasks/t1/assignee", "admin", `{"user_id":"admin"}`, 200},
		{"edit project as staff", "PATCH", "/api/projects/p1", "staff", `{"name":"x"}`, 403},
		{"edit project as admin", "PATCH", "/api/projects/p1", "admin", `{"name":"Raya 2026","due_date":""}`, 200},
		{"replace services", "PUT", "/api/projects/p1/services", "admin", `{"services":[{"id":"s1","type":"META_ADS","quantity":3}]}`, 200},
		{"add member as staff", "POST", "/api/team", "staff", `{"user_id":"u9","name":"Dewi"}`, 403},
		{"add member", "POST", "/api/team", "admin", `{"user_id":"u9","name":"Dewi"}`, 201},
		{"demote self", "PATCH", "/api/team/admin", "admin", `{"role":"STAFF"}`, 400},
		{"delete member", "DELETE", "/api/team/u9", "admin", "", 204},
		{"delete project as staff", "DELETE", "/api/projects/p1", "staff", "", 403},
		{"delete project", "DELETE", "/api/projects/p1", "admin", "", 204},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, tt.method, tt.path, tt.user, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestCreateProjectEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	body := `{"client_id":"c1","name":"Launch","start_date":"2026-03-10","due_date":"2026-03-20",
		"services":[{"type":"TIKTOK_LIVE","quantity":2}],"auto_tasks":true,"default_assignee":"staff"}`
	w := do(t, s, "POST", "/api/projects", "staff", body)
	require.Equal(t, 201, w.Code, w.Body.String())
	out := decodeBody[tracker.CreatedProject](t, w)
	assert.Equal(t, "staff", out.Project.OwnerUserID)
	assert.NotEmpty(t, out.Tasks)

	w = do(t, s, "POST", "/api/projects", "staff", `{"client_id":"c1","name":"Empty","services":[]}`)
	assert.Equal(t, 400, w.Code)

	w = do(t, s, "GET", "/api/projects", "staff", "")
	require.Equal(t, 200, w.Code)
	items := decodeBody[[]tracker.ProjectListItem](t, w)
	assert.Len(t, items, 2, "staff hold tasks in both projects")

	w = do(t, s, "GET", "/api/projects", "", "")
	assert.Equal(t, 403, w.Code)
}

func TestClientAndDashboardEndpoints(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(t, s, "POST", "/api/clients", "admin", `{"name":"Studio Lima"}`)
	require.Equal(t, 201, w.Code)

	w = do(t, s, "GET", "/api/clients?q=kopi", "admin", "")
	cards := decodeBody[[]tracker.ClientCard](t, w)
	require.Len(t, cards, 1)
	assert.Equal(t, 1, cards[0].Projects)

	w = do(t, s, "GET", "/api/clients/c1", "admin", "")
	require.Equal(t, 200, w.Code)
	cv := decodeBody[tracker.ClientView](t, w)
	assert.Equal(t, 1, cv.Rollup.Overdue)

	w = do(t, s, "GET", "/api/dashboard", "admin", "")
	require.Equal(t, 200, w.Code)
	dash := decodeBody[[]tracker.DashboardCard](t, w)
	assert.Len(t, dash, 2)

	w = do(t, s, "GET", "/api/followups", "admin", "")
	require.Equal(t, 200, w.Code)
	fu := decodeBody[tracker.FollowUps](t, w)
	assert.Len(t, fu.Overdue, 1)
	assert.Empty(t, fu.Stale)

	w = do(t, s, "POST", "/api/tasks/t1/reminded", "admin", "")
	require.Equal(t, 200, w.Code)
	w = do(t, s, "GET", "/api/followups", "admin", "")
	fu = decodeBody[tracker.FollowUps](t, w)
	assert.False(t, fu.Overdue[0].CanRemind)
}

func TestCatalogAndSyncEndpoints(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(t, s, "GET", "/api/catalog", "", "")
	require.Equal(t, 200, w.Code)
	entries := decodeBody[[]catalogEntry](t, w)
	require.NotEmpty(t, entries)
	assert.Equal(t, "META_ADS", string(entries[0].Type))
	assert.Equal(t, "Meta Ads", entries[0].Label)

	w = do(t, s, "POST", "/api/projects/p1/sync", "", "")
	require.Equal(t, 200, w.Code)
	res := decodeBody[tracker.SyncResult](t, w)
	assert.False(t, res.Changed)
}
