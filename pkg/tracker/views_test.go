package tracker

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agency-tracker/pkg/classify"
	"agency-tracker/pkg/model"
)

func TestProjectDetailScenario(t *testing.T) {
	f := newFixture(t)

	v, err := f.tracker.ProjectDetail(context.Background(), "p1", classify.Filter{Tab: classify.TabAll})
	require.NoError(t, err)

	assert.Equal(t, "Kedai Kopi", v.Client.Name)
	assert.Equal(t, classify.Rollup{Total: 4, Done: 2, Open: 2, Blocked: 1, Overdue: 1, Stale: 0, Pct: 50}, v.Rollup)
	assert.Equal(t, classify.BadgeHighRisk, v.Risk)
	assert.Equal(t, model.ProjectInProgress, v.Project.Status)
	assert.False(t, v.Sync.Changed)
	assert.Len(t, v.Tasks, 4)

	assert.Equal(t, map[classify.Tab]int{
		classify.TabAll: 4, classify.TabOpen: 2, classify.TabOverdue: 1,
		classify.TabStale: 0, classify.TabBlocked: 1, classify.TabDone: 2,
	}, v.TabCounts)

	require.Len(t, v.Services, 2)
	assert.Equal(t, "Meta Ads", v.Services[0].Label)
	assert.Equal(t, 100, v.Services[0].Rollup.Pct)
	assert.Equal(t, classify.BadgeOnTrack, v.Services[0].Risk)
	assert.Equal(t, classify.BadgeHighRisk, v.Services[1].Risk)
}

func TestProjectDetailFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v, err := f.tracker.ProjectDetail(ctx, "p1", classify.Filter{Tab: classify.TabOverdue})
	require.NoError(t, err)
	require.Len(t, v.Tasks, 1)
	line := v.Tasks[0]
	assert.Equal(t, "t3", line.ID)
	assert.True(t, line.Flags.Overdue)
	assert.Equal(t, "Badrul", line.AssigneeName)
	assert.Equal(t, "UGC_VIDEO", line.ServiceType)
	assert.True(t, line.CanRemind)
	assert.Empty(t, line.RemindLink, "no phone on file")
	assert.Equal(t, 4, v.Rollup.Total, "rollups ignore the filter")

	v, err = f.tracker.ProjectDetail(ctx, "p1", classify.Filter{Query: "chong"})
	require.NoError(t, err)
	require.Len(t, v.Tasks, 1)
	assert.Equal(t, "t4", v.Tasks[0].ID)
	assert.True(t, strings.HasPrefix(v.Tasks[0].RemindLink, "https://wa.me/60198765432?text="))

	v, err = f.tracker.ProjectDetail(ctx, "p1", classify.Filter{ServiceID: "s1"})
	require.NoError(t, err)
	assert.Len(t, v.Tasks, 2)
}

func TestProjectDetailSyncsOnLoad(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, id := range []string{"t3", "t4"} {
		_, err := f.tracker.TransitionTask(ctx, id, model.StatusDone, "")
		require.NoError(t, err)
	}
	assert.Equal(t, model.ProjectDone, f.project(t, "p1").Status)

	v, err := f.tracker.ProjectDetail(ctx, "p1", classify.Filter{})
	require.NoError(t, err)
	assert.Equal(t, model.ProjectDone, v.Project.Status)
	assert.Equal(t, 100, v.Rollup.Pct)
}

func TestProjectDetailUnknown(t *testing.T) {
	f := newFixture(t)

	_, err := f.tracker.ProjectDetail(context.Background(), "missing", classify.Filter{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClientDetailWorstFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	v, err := f.tracker.ClientDetail(ctx, "c1", "")
	require.NoError(t, err)
	assert.Equal(t, classify.Rollup{Total: 5, Done: 2, Open: 3, Blocked: 1, Overdue: 1, Stale: 1, Pct: 40}, v.Rollup)
	assert.Equal(t, classify.BadgeHighRisk, v.Risk)
	require.Len(t, v.Projects, 2)
	assert.Equal(t, "p1", v.Projects[0].Project.ID)
	assert.Equal(t, "p2", v.Projects[1].Project.ID)
	assert.Equal(t, classify.BadgeMediumRisk, v.Projects[1].Risk)

	v, err = f.tracker.ClientDetail(ctx, "c1", "web")
	require.NoError(t, err)
	require.Len(t, v.Projects, 1)
	assert.Equal(t, "p2", v.Projects[0].Project.ID)

	v, err = f.tracker.ClientDetail(ctx, "c2", "")
	require.NoError(t, err)
	assert.Equal(t, classify.Rollup{}, v.Rollup)
	assert.Equal(t, classify.BadgeOnTrack, v.Risk)

	_, err = f.tracker.ClientDetail(ctx, "missing", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListClients(t *testing.T) {
	f := newFixture(t)

	cards, err := f.tracker.ListClients(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.Equal(t, ClientCard{Client: cards[0].Client, Projects: 2, InProgress: 2}, cards[0])
	assert.Equal(t, ClientCard{Client: cards[1].Client, Projects: 1, Completed: 1}, cards[1])

	cards, err = f.tracker.ListClients(context.Background(), "LIMA")
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, "Studio Lima", cards[0].Name)
}

func TestDashboard(t *testing.T) {
	f := newFixture(t)

	cards, err := f.tracker.Dashboard(context.Background())
	require.NoError(t, err)
	require.Len(t, cards, 2)

	kopi := cards[0]
	assert.Equal(t, "Kedai Kopi", kopi.Client.Name)
	assert.Equal(t, 2, kopi.Projects)
	assert.Equal(t, 2, kopi.InProgress)
	assert.Equal(t, 0, kopi.Done)
	assert.Equal(t, 1, kopi.OverdueProjects)
	assert.Equal(t, []ServiceTotal{
		{Type: model.ServiceUGCVideo, Label: "UGC Video", Quantity: 3},
		{Type: model.ServiceMetaAds, Label: "Meta Ads", Quantity: 2},
		{Type: model.ServiceWebsiteDev, Label: "Website Dev", Quantity: 1},
	}, kopi.ServiceTotals)

	lima := cards[1]
	assert.Equal(t, 1, lima.Done)
	assert.Equal(t, 0, lima.OverdueProjects)
	assert.Empty(t, lima.ServiceTotals)
}

func TestProjectListVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	projectIDs := func(items []ProjectListItem) []string {
		out := make([]string, len(items))
		for i, it := range items {
			out[i] = it.Project.ID
		}
		return out
	}

	all, err := f.tracker.ProjectList(ctx, "u-admin", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"p3", "p2", "p1"}, projectIDs(all))
	assert.Equal(t, "Studio Lima", all[0].ClientName)

	mine, err := f.tracker.ProjectList(ctx, "u-staff", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, projectIDs(mine))
	assert.Equal(t, 50, mine[0].Pct)

	other, err := f.tracker.ProjectList(ctx, "u-other", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"p2", "p1"}, projectIDs(other))

	high, err := f.tracker.ProjectList(ctx, "u-admin", "high")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, projectIDs(high))

	_, err = f.tracker.ProjectList(ctx, "stranger", "")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestProjectListEmptyForStaffWithoutTasks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.tracker.AddTeamUser(ctx, "u-admin", NewTeamUser{UserID: "u-idle", Name: "Idle"})
	require.NoError(t, err)

	items, err := f.tracker.ProjectList(ctx, "u-idle", "")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestFollowUps(t *testing.T) {
	f := newFixture(t)

	fu, err := f.tracker.FollowUps(context.Background())
	require.NoError(t, err)

	require.Len(t, fu.Overdue, 1)
	overdue := fu.Overdue[0]
	assert.Equal(t, "t3", overdue.Task.ID)
	assert.Equal(t, "Kedai Kopi", overdue.ClientName)
	assert.Equal(t, "Raya Campaign", overdue.ProjectName)
	assert.True(t, overdue.CanRemind)
	assert.Contains(t, overdue.Message, "Due: 2026-03-09")
	assert.Empty(t, overdue.Link)

	require.Len(t, fu.Stale, 1)
	stale := fu.Stale[0]
	assert.Equal(t, "t5", stale.Task.ID)
	assert.Equal(t, "Chong", stale.AssigneeName)
	assert.False(t, stale.CanRemind, "reminded 10 hours ago")
	assert.Contains(t, stale.Message, "Last update: 2026-03-06")
	assert.True(t, strings.HasPrefix(stale.Link, "https://wa.me/60198765432?text="))
}
