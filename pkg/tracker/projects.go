package tracker

import (
	"context"
	"errors"
	"strings"

	"agency-tracker/pkg/changefeed"
	"agency-tracker/pkg/datastore"
	"agency-tracker/pkg/model"
)

// CreateClient stores a new client.
func (t *Tracker) CreateClient(ctx context.Context, name string) (model.Client, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Client{}, invalid("name", "client name is required")
	}
	rows, err := t.store.Insert(ctx, tableClients, datastore.Row{"name": name})
	if err != nil {
		return model.Client{}, storeErr("create client", err)
	}
	c := clientFromRow(rows[0])
	t.log.Info().Str("client_id", c.ID).Msg("client created")
	t.feed.Publish(changefeed.Change{Kind: changefeed.ClientCreated, Content: map[string]any{"client_id": c.ID}})
	return c, nil
}

// ServiceDraft is one service line in a project form.
type ServiceDraft struct {
	ID       string            `json:"id,omitempty"`
	Type     model.ServiceType `json:"type"`
	Quantity int               `json:"quantity"`
	Notes    string            `json:"notes,omitempty"`
}

func (d ServiceDraft) service(projectID string) model.Service {
	return model.Service{
		ID:        d.ID,
		ProjectID: projectID,
		Type:      model.ServiceType(strings.ToUpper(strings.TrimSpace(string(d.Type)))),
		Quantity:  model.ClampQuantity(d.Quantity),
		Notes:     strings.TrimSpace(d.Notes),
	}
}

func validateServices(services []ServiceDraft) error {
	if len(services) == 0 {
		return invalid("services", "at least one service is required")
	}
	for _, s := range services {
		if strings.TrimSpace(string(s.Type)) == "" {
			return invalid("services", "every service needs a type")
		}
	}
	return nil
}

// ProjectDraft is the create-project form.
type ProjectDraft struct {
	ClientID  string         `json:"client_id"`
	Name      string         `json:"name"`
	Priority  model.Priority `json:"priority"`
	StartDate model.Date     `json:"start_date"`
	DueDate   model.Date     `json:"due_date"`
	Services  []ServiceDraft `json:"services"`

	// AutoTasks expands the service templates into tasks assigned to
	// DefaultAssignee.
	AutoTasks       bool   `json:"auto_tasks"`
	DefaultAssignee string `json:"default_assignee"`
}

// CreatedProject is what CreateProject stored.
type CreatedProject struct {
	Project  model.Project   `json:"project"`
	Services []model.Service `json:"services"`
	Tasks    []model.Task    `json:"tasks"`
}

// CreateProject stores a project owned by actorID with its services and,
// when asked, the template tasks for those services.
func (t *Tracker) CreateProject(ctx context.Context, actorID string, d ProjectDraft) (CreatedProject, error) {
	var out CreatedProject
	if actorID == "" {
		return out, invalid("owner_user_id", "an owner is required")
	}
	if strings.TrimSpace(d.ClientID) == "" {
		return out, invalid("client_id", "a client is required")
	}
	name := strings.TrimSpace(d.Name)
	if name == "" {
		return out, invalid("name", "project name is required")
	}
	priority, err := model.ParsePriority(string(d.Priority))
	if err != nil {
		return out, invalid("priority", err.Error())
	}
	if err := validateServices(d.Services); err != nil {
		return out, err
	}
	assignee := strings.TrimSpace(d.DefaultAssignee)
	if d.AutoTasks && assignee == "" {
		return out, invalid("default_assignee", "a default assignee is required to auto-create tasks")
	}
	if d.AutoTasks {
		if _, err := t.repo.user(ctx, assignee); err != nil {
			if isNotFound(err) {
				return out, invalid("default_assignee", "unknown team member "+assignee)
			}
			return out, err
		}
	}

	rows, err := t.store.Insert(ctx, tableProjects, datastore.Row{
		"client_id":     d.ClientID,
		"owner_user_id": actorID,
		"name":          name,
		"status":        string(model.ProjectInProgress),
		"priority":      string(priority),
		"start_date":    dateValue(d.StartDate),
		"due_date":      dateValue(d.DueDate),
	})
	if err != nil {
		return out, storeErr("create project", err)
	}
	out.Project = projectFromRow(rows[0])

	svcRows := make([]datastore.Row, len(d.Services))
	for i, s := range d.Services {
		sd := s
		sd.ID = ""
		svcRows[i] = serviceRow(sd.service(out.Project.ID))
	}
	rows, err = t.store.Insert(ctx, tableServices, svcRows...)
	if err != nil {
		return CreatedProject{}, t.undoCreate(ctx, out.Project.ID, storeErr("create services", err))
	}
	out.Services = mapRows(rows, serviceFromRow)

	if d.AutoTasks {
		tasks := t.catalog.ExpandProjectTemplates(out.Services, out.Project, assignee, stamp(t.now()))
		if len(tasks) > 0 {
			taskRows := make([]datastore.Row, len(tasks))
			for i, task := range tasks {
				taskRows[i] = taskRow(task)
			}
			rows, err = t.store.Insert(ctx, tableTasks, taskRows...)
			if err != nil {
				return CreatedProject{}, t.undoCreate(ctx, out.Project.ID, storeErr("create template tasks", err))
			}
			out.Tasks = mapRows(rows, taskFromRow)
		}
	}

	t.log.Info().Str("project_id", out.Project.ID).
		Int("services", len(out.Services)).Int("tasks", len(out.Tasks)).
		Msg("project created")
	t.feed.Publish(changefeed.Change{Kind: changefeed.ProjectCreated, ProjectID: out.Project.ID, ActorID: actorID})
	return out, nil
}

// undoCreate removes a half-created project. Services and tasks go with it
// through the cascade. cause is returned either way.
func (t *Tracker) undoCreate(ctx context.Context, projectID string, cause error) error {
	if err := t.store.Delete(context.WithoutCancel(ctx), tableProjects, "id", projectID); err != nil && !errors.Is(err, datastore.ErrNotFound) {
		t.log.Error().Err(err).Str("project_id", projectID).Msg("could not remove partially created project")
	}
	return cause
}

// ProjectPatch is the edit-project form. Nil fields are left unchanged;
// an empty date clears it.
type ProjectPatch struct {
	ClientID  *string              `json:"client_id,omitempty"`
	Name      *string              `json:"name,omitempty"`
	Status    *model.ProjectStatus `json:"status,omitempty"`
	Priority  *model.Priority      `json:"priority,omitempty"`
	StartDate *model.Date          `json:"start_date,omitempty"`
	DueDate   *model.Date          `json:"due_date,omitempty"`
}

func (p ProjectPatch) row() (datastore.Row, error) {
	r := datastore.Row{}
	if p.ClientID != nil {
		if strings.TrimSpace(*p.ClientID) == "" {
			return nil, invalid("client_id", "a client is required")
		}
		r["client_id"] = *p.ClientID
	}
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return nil, invalid("name", "project name is required")
		}
		r["name"] = name
	}
	if p.Status != nil {
		switch *p.Status {
		case model.ProjectInProgress, model.ProjectDone:
			r["status"] = string(*p.Status)
		default:
			return nil, invalid("status", "invalid project status "+string(*p.Status))
		}
	}
	if p.Priority != nil {
		pr, err := model.ParsePriority(string(*p.Priority))
		if err != nil {
			return nil, invalid("priority", err.Error())
		}
		r["priority"] = string(pr)
	}
	if p.StartDate != nil {
		r["start_date"] = dateValue(*p.StartDate)
	}
	if p.DueDate != nil {
		r["due_date"] = dateValue(*p.DueDate)
	}
	return r, nil
}

// UpdateProject applies an edit. Admin only.
func (t *Tracker) UpdateProject(ctx context.Context, actorID, projectID string, p ProjectPatch) (model.Project, error) {
	if _, err := t.requireAdmin(ctx, actorID, "edit project"); err != nil {
		return model.Project{}, err
	}
	patch, err := p.row()
	if err != nil {
		return model.Project{}, err
	}
	if len(patch) > 0 {
		if err := t.store.Update(ctx, tableProjects, "id", projectID, patch); err != nil {
			return model.Project{}, storeErr("update project "+projectID, err)
		}
		t.feed.Publish(changefeed.Change{Kind: changefeed.ProjectUpdated, ProjectID: projectID, ActorID: actorID})
	}
	return t.repo.project(ctx, projectID)
}

// ReplaceServices reconciles a project's services with the given list in
// one transaction. Services keep their ids when the draft names them; tasks
// of removed services lose their service link. Admin only.
func (t *Tracker) ReplaceServices(ctx context.Context, actorID, projectID string, services []ServiceDraft) ([]model.Service, error) {
	if _, err := t.requireAdmin(ctx, actorID, "edit services"); err != nil {
		return nil, err
	}
	if err := validateServices(services); err != nil {
		return nil, err
	}
	if _, err := t.repo.project(ctx, projectID); err != nil {
		return nil, err
	}
	rows := make([]datastore.Row, len(services))
	for i, s := range services {
		r := serviceRow(s.service(projectID))
		delete(r, "project_id")
		rows[i] = r
	}
	stored, err := t.store.ReplaceSet(ctx, tableServices, "project_id", projectID, rows)
	if err != nil {
		return nil, storeErr("replace services of project "+projectID, err)
	}
	t.log.Info().Str("project_id", projectID).Int("services", len(stored)).Msg("services replaced")
	t.feed.Publish(changefeed.Change{Kind: changefeed.ServicesReplaced, ProjectID: projectID, ActorID: actorID})
	return mapRows(stored, serviceFromRow), nil
}

// DeleteProject removes a project with its services and tasks. Admin only.
func (t *Tracker) DeleteProject(ctx context.Context, actorID, projectID string) error {
	if _, err := t.requireAdmin(ctx, actorID, "delete project"); err != nil {
		return err
	}
	if err := t.store.Delete(ctx, tableProjects, "id", projectID); err != nil {
		return storeErr("delete project "+projectID, err)
	}
	t.log.Info().Str("project_id", projectID).Msg("project deleted")
	t.feed.Publish(changefeed.Change{Kind: changefeed.ProjectDeleted, ProjectID: projectID, ActorID: actorID})
	return nil
}

// ListTeam returns admins first, then everyone else, each group by name.
func (t *Tracker) ListTeam(ctx context.Context) ([]model.TeamUser, error) {
	users, err := t.repo.team(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.TeamUser, 0, len(users))
	for _, u := range users {
		if u.IsAdmin() {
			out = append(out, u)
		}
	}
	for _, u := range users {
		if !u.IsAdmin() {
			out = append(out, u)
		}
	}
	return out, nil
}

// NewTeamUser is the add-member form.
type NewTeamUser struct {
	UserID string     `json:"user_id"`
	Name   string     `json:"name"`
	Phone  string     `json:"phone,omitempty"`
	Role   model.Role `json:"role"`
}

// AddTeamUser registers a member. Admin only. Role defaults to STAFF.
func (t *Tracker) AddTeamUser(ctx context.Context, actorID string, n NewTeamUser) (model.TeamUser, error) {
	if _, err := t.requireAdmin(ctx, actorID, "add team member"); err != nil {
		return model.TeamUser{}, err
	}
	uid := strings.TrimSpace(n.UserID)
	if uid == "" {
		return model.TeamUser{}, invalid("user_id", "user id is required")
	}
	name := strings.TrimSpace(n.Name)
	if name == "" {
		return model.TeamUser{}, invalid("name", "name is required")
	}
	role := model.RoleStaff
	if n.Role != "" {
		r, err := model.ParseRole(string(n.Role))
		if err != nil {
			return model.TeamUser{}, invalid("role", err.Error())
		}
		role = r
	}
	rows, err := t.store.Insert(ctx, tableTeam, datastore.Row{
		"user_id": uid,
		"name":    name,
		"phone":   model.StringPtr(strings.TrimSpace(n.Phone)),
		"role":    string(role),
	})
	if err != nil {
		return model.TeamUser{}, storeErr("add team user "+uid, err)
	}
	t.teamChanged(actorID, uid)
	return userFromRow(rows[0]), nil
}

// TeamUserPatch edits a member. Nil fields are left unchanged.
type TeamUserPatch struct {
	Name  *string     `json:"name,omitempty"`
	Phone *string     `json:"phone,omitempty"`
	Role  *model.Role `json:"role,omitempty"`
}

// UpdateTeamUser edits a member. Admin only; an admin cannot demote themself.
func (t *Tracker) UpdateTeamUser(ctx context.Context, actorID, userID string, p TeamUserPatch) (model.TeamUser, error) {
	if _, err := t.requireAdmin(ctx, actorID, "edit team member"); err != nil {
		return model.TeamUser{}, err
	}
	patch := datastore.Row{}
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return model.TeamUser{}, invalid("name", "name is required")
		}
		patch["name"] = name
	}
	if p.Phone != nil {
		patch["phone"] = model.StringPtr(strings.TrimSpace(*p.Phone))
	}
	if p.Role != nil {
		r, err := model.ParseRole(string(*p.Role))
		if err != nil {
			return model.TeamUser{}, invalid("role", err.Error())
		}
		if userID == actorID && r != model.RoleAdmin {
			return model.TeamUser{}, invalid("role", "you cannot downgrade your own role")
		}
		patch["role"] = string(r)
	}
	if len(patch) > 0 {
		if err := t.store.Update(ctx, tableTeam, "user_id", userID, patch); err != nil {
			return model.TeamUser{}, storeErr("update team user "+userID, err)
		}
		t.teamChanged(actorID, userID)
	}
	return t.repo.user(ctx, userID)
}

// DeleteTeamUser removes a member from the team list. Admin only; an admin
// cannot remove themself. Their tasks keep the assignee id.
func (t *Tracker) DeleteTeamUser(ctx context.Context, actorID, userID string) error {
	if _, err := t.requireAdmin(ctx, actorID, "delete team member"); err != nil {
		return err
	}
	if userID == actorID {
		return invalid("user_id", "you cannot delete yourself")
	}
	if err := t.store.Delete(ctx, tableTeam, "user_id", userID); err != nil {
		return storeErr("delete team user "+userID, err)
	}
	t.teamChanged(actorID, userID)
	return nil
}

func (t *Tracker) teamChanged(actorID, userID string) {
	t.feed.Publish(changefeed.Change{Kind: changefeed.TeamChanged, ActorID: actorID, Content: map[string]any{"user_id": userID}})
}

// isNotFound reports whether err means the addressed record does not exist.
func isNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
