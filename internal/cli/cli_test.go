package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agency-tracker/internal/config"
	"agency-tracker/pkg/datastore"
)

// useStore points the commands at mem for the duration of the test.
func useStore(t *testing.T, mem datastore.Store) {
	t.Helper()
	prev := openStore
	openStore = func(context.Context, config.DatabaseConfig) (datastore.Store, error) { return mem, nil }
	t.Cleanup(func() { openStore = prev })
}

func seeded(t *testing.T) *datastore.MemStore {
	t.Helper()
	ctx := context.Background()
	mem := datastore.NewMemStore()
	old := time.Now().Add(-5 * 24 * time.Hour)
	inserts := []struct {
		table string
		rows  []datastore.Row
	}{
		{"team_users", []datastore.Row{
			{"user_id": "admin", "name": "Aina", "role": "ADMIN"},
			{"user_id": "staff", "name": "Badrul", "phone": "0123456789", "role": "STAFF"},
		}},
		{"clients", []datastore.Row{{"id": "c1", "name": "Kedai Kopi"}, {"id": "c2", "name": "Studio Lima"}}},
		{"projects", []datastore.Row{
			{"id": "p1", "client_id": "c1", "name": "Raya", "status": "IN_PROGRESS", "priority": "HIGH"},
			{"id": "p2", "client_id": "c1", "name": "Website", "status": "IN_PROGRESS", "priority": "LOW"},
		}},
		{"tasks", []datastore.Row{
			{"id": "t1", "project_id": "p1", "title": "Brief", "status": "TODO", "priority": "MEDIUM",
				"due_date": "2020-01-01", "assignee_user_id": "staff", "last_update_at": time.Now()},
			{"id": "t2", "project_id": "p2", "title": "Wireframes", "status": "IN_PROGRESS", "priority": "MEDIUM",
				"assignee_user_id": "staff", "last_update_at": old},
		}},
	}
	for _, in := range inserts {
		_, err := mem.Insert(ctx, in.table, in.rows...)
		require.NoError(t, err)
	}
	return mem
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--driver", "memory"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMigrate(t *testing.T) {
	useStore(t, datastore.NewMemStore())
	out, err := run(t, "migrate")
	require.NoError(t, err)
	assert.Equal(t, "schema ready (memory)\n", out)
}

func TestReportOrdersWorstFirst(t *testing.T) {
	useStore(t, seeded(t))

	out, err := run(t, "report")
	require.NoError(t, err)
	assert.Contains(t, out, "Kedai Kopi")
	assert.Contains(t, out, "Studio Lima")
	assert.Contains(t, out, "High risk")
	assert.Less(t, strings.Index(out, "Raya"), strings.Index(out, "Website"), "overdue project first")

	out, err = run(t, "report", "--client", "c2")
	require.NoError(t, err)
	assert.Contains(t, out, "no projects")
	assert.NotContains(t, out, "Kedai Kopi")
}

func TestReportJSON(t *testing.T) {
	useStore(t, seeded(t))

	out, err := run(t, "--json", "report", "--client", "c1")
	require.NoError(t, err)
	var views []struct {
		Projects []struct {
			Project struct {
				ID string `json:"id"`
			} `json:"project"`
			Risk string `json:"risk"`
		} `json:"projects"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &views))
	require.Len(t, views, 1)
	require.Len(t, views[0].Projects, 2)
	assert.Equal(t, "p1", views[0].Projects[0].Project.ID)
	assert.Equal(t, "Medium risk", views[0].Projects[1].Risk)
}

func TestFollowUps(t *testing.T) {
	useStore(t, seeded(t))

	out, err := run(t, "followups")
	require.NoError(t, err)
	assert.Contains(t, out, "Overdue (1)")
	assert.Contains(t, out, "Stale (1)")
	assert.Contains(t, out, "https://wa.me/60123456789?text=")
}

func TestTaskCommands(t *testing.T) {
	mem := seeded(t)
	useStore(t, mem)
	ctx := context.Background()

	_, err := run(t, "task", "status", "t1", "blocked")
	assert.Error(t, err, "blocked without a reason")

	out, err := run(t, "task", "status", "t1", "blocked", "--reason", "no brief yet")
	require.NoError(t, err)
	assert.Contains(t, out, "t1 Brief -> BLOCKED")
	row, err := mem.FetchOne(ctx, "tasks", "id", "t1")
	require.NoError(t, err)
	assert.Equal(t, "no brief yet", row.String("blocked_reason"))

	out, err = run(t, "task", "status", "t1", "done")
	require.NoError(t, err)
	assert.Contains(t, out, "project p1 is now COMPLETED")

	_, err = run(t, "task", "assign", "t2", "admin")
	assert.Error(t, err, "no actor")
	out, err = run(t, "--as", "admin", "task", "assign", "t2", "admin")
	require.NoError(t, err)
	assert.Contains(t, out, "t2 assigned to admin")

	out, err = run(t, "task", "reminded", "t2")
	require.NoError(t, err)
	assert.Contains(t, out, "t2 reminded at")
}

func TestSync(t *testing.T) {
	mem := seeded(t)
	useStore(t, mem)
	require.NoError(t, mem.Update(context.Background(), "tasks", "id", "t2", datastore.Row{"status": "DONE"}))

	out, err := run(t, "sync", "p1", "p2")
	require.NoError(t, err)
	assert.Contains(t, out, "p1: IN_PROGRESS (unchanged)")
	assert.Contains(t, out, "p2: COMPLETED (updated)")

	_, err = run(t, "sync", "missing")
	assert.Error(t, err)
	_, err = run(t, "sync")
	assert.Error(t, err, "ids or --all required")
}

func TestSyncAll(t *testing.T) {
	mem := seeded(t)
	useStore(t, mem)
	require.NoError(t, mem.Update(context.Background(), "tasks", "id", "t2", datastore.Row{"status": "DONE"}))

	out, err := run(t, "sync", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "2 checked, 1 updated, 0 skipped, 0 failed")

	_, err = run(t, "sync", "--all", "p1")
	assert.Error(t, err)
}
