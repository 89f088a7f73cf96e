package tracker

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agency-tracker/pkg/classify"
	"agency-tracker/pkg/model"
)

func TestCreateClient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.tracker.CreateClient(ctx, "   ")
	assert.ErrorIs(t, err, ErrValidation)

	c, err := f.tracker.CreateClient(ctx, "  Nasi Lemak Co ")
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "Nasi Lemak Co", c.Name)
}

const thingCatalog = `
services:
  - type: THING
    label: Thing
    tasks:
      - Draft
      - Deliver
`

func TestCreateProjectExpandsTemplates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	catalog, err := classify.ParseCatalog([]byte(thingCatalog))
	require.NoError(t, err)
	tr := New(f.mem, zerolog.Nop(), WithClock(fixedClock), WithCatalog(catalog))

	out, err := tr.CreateProject(ctx, "u-staff", ProjectDraft{
		ClientID:        "c2",
		Name:            " Podcast ",
		StartDate:       "2026-04-01",
		DueDate:         "2026-04-11",
		Services:        []ServiceDraft{{Type: "thing", Quantity: 3, Notes: " weekly "}},
		AutoTasks:       true,
		DefaultAssignee: "u-staff",
	})
	require.NoError(t, err)

	assert.Equal(t, "Podcast", out.Project.Name)
	assert.Equal(t, model.ProjectInProgress, out.Project.Status)
	assert.Equal(t, model.PriorityMedium, out.Project.Priority)
	assert.Equal(t, "u-staff", out.Project.OwnerUserID)

	require.Len(t, out.Services, 1)
	svc := out.Services[0]
	assert.Equal(t, model.ServiceType("THING"), svc.Type)
	assert.Equal(t, 3, svc.Quantity)
	assert.Equal(t, "weekly", svc.Notes)

	require.Len(t, out.Tasks, 6)
	for i, task := range out.Tasks {
		unit := i/2 + 1
		base := []string{"Draft", "Deliver"}[i%2]
		assert.Equal(t, fmt.Sprintf("[Thing #%d] %s", unit, base), task.Title)
		assert.Equal(t, model.StatusTodo, task.Status)
		assert.Equal(t, "u-staff", task.AssigneeUserID)
		assert.True(t, task.InService(svc.ID))
		assert.True(t, now.Equal(task.LastUpdateAt))
	}
	assert.Equal(t, model.Date("2026-04-01"), out.Tasks[0].DueDate)
	assert.Equal(t, model.Date("2026-04-11"), out.Tasks[5].DueDate)

	stored, err := tr.repo.tasksByProject(ctx, out.Project.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 6)
}

func TestCreateProjectLeavesNothingOnFailure(t *testing.T) {
	ctx := context.Background()
	catalog, err := classify.ParseCatalog([]byte(thingCatalog))
	require.NoError(t, err)
	draft := ProjectDraft{
		ClientID:        "c2",
		Name:            "Podcast",
		Services:        []ServiceDraft{{Type: "thing", Quantity: 2}},
		AutoTasks:       true,
		DefaultAssignee: "u-staff",
	}

	for _, table := range []string{"services", "tasks"} {
		t.Run(table, func(t *testing.T) {
			f := newFixture(t)
			tr := New(&failingStore{Store: f.mem, failInsert: table}, zerolog.Nop(),
				WithClock(fixedClock), WithCatalog(catalog))

			out, err := tr.CreateProject(ctx, "u-admin", draft)
			require.ErrorIs(t, err, errDown)
			assert.Empty(t, out.Project.ID)

			projects, err := f.mem.FetchOrdered(ctx, "projects")
			require.NoError(t, err)
			assert.Len(t, projects, 3)
			services, err := f.mem.FetchOrdered(ctx, "services")
			require.NoError(t, err)
			assert.Len(t, services, 3)
			tasks, err := f.mem.FetchOrdered(ctx, "tasks")
			require.NoError(t, err)
			assert.Len(t, tasks, 5)
		})
	}
}

func TestCreateProjectValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	valid := ProjectDraft{ClientID: "c1", Name: "Promo", Services: []ServiceDraft{{Type: model.ServiceMetaAds}}}

	cases := map[string]func(d *ProjectDraft){
		"client_id":        func(d *ProjectDraft) { d.ClientID = "" },
		"name":             func(d *ProjectDraft) { d.Name = " " },
		"services":         func(d *ProjectDraft) { d.Services = nil },
		"priority":         func(d *ProjectDraft) { d.Priority = "URGENT" },
		"default_assignee": func(d *ProjectDraft) { d.AutoTasks = true },
	}
	t.Run("unknown default_assignee", func(t *testing.T) {
		d := valid
		d.AutoTasks = true
		d.DefaultAssignee = "ghost"
		_, err := f.tracker.CreateProject(ctx, "u-admin", d)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "default_assignee", verr.Field)
	})
	for field, mutate := range cases {
		t.Run(field, func(t *testing.T) {
			d := valid
			mutate(&d)
			_, err := f.tracker.CreateProject(ctx, "u-admin", d)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, field, verr.Field)
		})
	}

	d := valid
	d.ClientID = "ghost"
	_, err := f.tracker.CreateProject(ctx, "u-admin", d)
	assert.ErrorIs(t, err, ErrValidation, "unknown client is a constraint failure")

	projects, err := f.tracker.repo.projects(ctx)
	require.NoError(t, err)
	assert.Len(t, projects, 3, "no partial project was stored")
}

func TestCreateProjectClampsQuantity(t *testing.T) {
	f := newFixture(t)

	out, err := f.tracker.CreateProject(context.Background(), "u-admin", ProjectDraft{
		ClientID: "c1",
		Name:     "Always on",
		Services: []ServiceDraft{{Type: model.ServiceTikTokLive, Quantity: 0}, {Type: model.ServiceMetaVideo, Quantity: 5000}},
	})
	require.NoError(t, err)
	require.Len(t, out.Services, 2)
	assert.Equal(t, 1, out.Services[0].Quantity)
	assert.Equal(t, model.MaxQuantity, out.Services[1].Quantity)
	assert.Empty(t, out.Tasks)
}

func TestUpdateProject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	name := "Raya 2026"
	due := model.Date("")

	_, err := f.tracker.UpdateProject(ctx, "u-staff", "p1", ProjectPatch{Name: &name})
	assert.ErrorIs(t, err, ErrForbidden)

	p, err := f.tracker.UpdateProject(ctx, "u-admin", "p1", ProjectPatch{Name: &name, DueDate: &due})
	require.NoError(t, err)
	assert.Equal(t, "Raya 2026", p.Name)
	assert.True(t, p.DueDate.IsZero())
	assert.Equal(t, model.Date("2026-03-01"), p.StartDate)

	bad := model.ProjectStatus("COMPLETED")
	_, err = f.tracker.UpdateProject(ctx, "u-admin", "p1", ProjectPatch{Status: &bad})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.tracker.UpdateProject(ctx, "u-admin", "missing", ProjectPatch{Name: &name})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReplaceServices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	drafts := []ServiceDraft{
		{ID: "s1", Type: model.ServiceMetaAds, Quantity: 4},
		{Type: model.ServiceWebsiteDev, Quantity: 1, Notes: "landing page"},
	}

	_, err := f.tracker.ReplaceServices(ctx, "u-staff", "p1", drafts)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.tracker.ReplaceServices(ctx, "u-admin", "p1", nil)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.tracker.ReplaceServices(ctx, "u-admin", "missing", drafts)
	assert.ErrorIs(t, err, ErrNotFound)

	services, err := f.tracker.ReplaceServices(ctx, "u-admin", "p1", drafts)
	require.NoError(t, err)
	require.Len(t, services, 2)
	assert.Equal(t, "s1", services[0].ID)
	assert.Equal(t, 4, services[0].Quantity)
	assert.Equal(t, "p1", services[1].ProjectID)

	assert.True(t, f.task(t, "t1").InService("s1"), "tasks keep their retained service")
	assert.Nil(t, f.task(t, "t3").ServiceID, "tasks of the removed service are ungrouped")

	stored, err := f.tracker.repo.servicesByProject(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestDeleteProject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.tracker.DeleteProject(ctx, "u-other", "p1"), ErrForbidden)
	require.NoError(t, f.tracker.DeleteProject(ctx, "u-admin", "p1"))
	assert.ErrorIs(t, f.tracker.DeleteProject(ctx, "u-admin", "p1"), ErrNotFound)

	_, err := f.tracker.repo.task(ctx, "t1")
	assert.ErrorIs(t, err, ErrNotFound, "tasks go with their project")
}

func TestTeamManagement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.tracker.AddTeamUser(ctx, "u-staff", NewTeamUser{UserID: "u-new", Name: "Dewi"})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.tracker.AddTeamUser(ctx, "u-admin", NewTeamUser{UserID: " ", Name: "Dewi"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.tracker.AddTeamUser(ctx, "u-admin", NewTeamUser{UserID: "u-new", Name: ""})
	assert.ErrorIs(t, err, ErrValidation)

	u, err := f.tracker.AddTeamUser(ctx, "u-admin", NewTeamUser{UserID: "u-new", Name: "Dewi", Role: "admin"})
	require.NoError(t, err)
	assert.True(t, u.IsAdmin())
	assert.Empty(t, u.Phone)

	_, err = f.tracker.AddTeamUser(ctx, "u-admin", NewTeamUser{UserID: "u-new", Name: "Dewi again"})
	assert.ErrorIs(t, err, ErrValidation, "duplicate user id")

	team, err := f.tracker.ListTeam(ctx)
	require.NoError(t, err)
	var names []string
	for _, m := range team {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"Aina", "Dewi", "Badrul", "Chong"}, names)

	staff := model.RoleStaff
	_, err = f.tracker.UpdateTeamUser(ctx, "u-admin", "u-admin", TeamUserPatch{Role: &staff})
	assert.ErrorIs(t, err, ErrValidation, "admins cannot demote themselves")

	phone := "019-2223333"
	updated, err := f.tracker.UpdateTeamUser(ctx, "u-admin", "u-new", TeamUserPatch{Role: &staff, Phone: &phone})
	require.NoError(t, err)
	assert.Equal(t, model.RoleStaff, updated.Role)
	assert.Equal(t, "019-2223333", updated.Phone)

	assert.ErrorIs(t, f.tracker.DeleteTeamUser(ctx, "u-admin", "u-admin"), ErrValidation)
	require.NoError(t, f.tracker.DeleteTeamUser(ctx, "u-admin", "u-new"))
	assert.ErrorIs(t, f.tracker.DeleteTeamUser(ctx, "u-admin", "u-new"), ErrNotFound)
}
