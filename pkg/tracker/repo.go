package tracker

import (
	"context"
	"time"

	"agency-tracker/pkg/datastore"
	"agency-tracker/pkg/model"
)

const (
	tableClients  = "clients"
	tableProjects = "projects"
	tableServices = "services"
	tableTasks    = "tasks"
	tableTeam     = "team_users"
)

func clientFromRow(r datastore.Row) model.Client {
	return model.Client{
		ID:        r.String("id"),
		Name:      r.String("name"),
		CreatedAt: r.Time("created_at"),
	}
}

func projectFromRow(r datastore.Row) model.Project {
	return model.Project{
		ID:          r.String("id"),
		ClientID:    r.String("client_id"),
		OwnerUserID: r.String("owner_user_id"),
		Name:        r.String("name"),
		Status:      model.ProjectStatus(r.String("status")),
		Priority:    model.Priority(r.String("priority")),
		StartDate:   model.Date(r.String("start_date")),
		DueDate:     model.Date(r.String("due_date")),
		CreatedAt:   r.Time("created_at"),
	}
}

func serviceFromRow(r datastore.Row) model.Service {
	return model.Service{
		ID:        r.String("id"),
		ProjectID: r.String("project_id"),
		Type:      model.ServiceType(r.String("type")),
		Quantity:  int(r.Int("quantity")),
		Notes:     r.String("notes"),
		CreatedAt: r.Time("created_at"),
	}
}

func taskFromRow(r datastore.Row) model.Task {
	return model.Task{
		ID:             r.String("id"),
		ProjectID:      r.String("project_id"),
		ServiceID:      r.StringPtr("service_id"),
		Title:          r.String("title"),
		Status:         model.TaskStatus(r.String("status")),
		Priority:       model.Priority(r.String("priority")),
		DueDate:        model.Date(r.String("due_date")),
		AssigneeUserID: r.String("assignee_user_id"),
		BlockedReason:  r.StringPtr("blocked_reason"),
		LastUpdateAt:   r.Time("last_update_at"),
		LastRemindedAt: r.TimePtr("last_reminded_at"),
		CreatedAt:      r.Time("created_at"),
	}
}

func userFromRow(r datastore.Row) model.TeamUser {
	return model.TeamUser{
		UserID:    r.String("user_id"),
		Name:      r.String("name"),
		Phone:     r.String("phone"),
		Role:      model.Role(r.String("role")),
		CreatedAt: r.Time("created_at"),
	}
}

func dateValue(d model.Date) any {
	if d.IsZero() {
		return nil
	}
	return string(d)
}

func taskRow(t model.Task) datastore.Row {
	r := datastore.Row{
		"project_id":       t.ProjectID,
		"service_id":       t.ServiceID,
		"title":            t.Title,
		"status":           string(t.Status),
		"priority":         string(t.Priority),
		"due_date":         dateValue(t.DueDate),
		"assignee_user_id": t.AssigneeUserID,
		"blocked_reason":   t.BlockedReason,
		"last_update_at":   t.LastUpdateAt,
		"last_reminded_at": t.LastRemindedAt,
	}
	if t.ID != "" {
		r["id"] = t.ID
	}
	return r
}

func serviceRow(s model.Service) datastore.Row {
	r := datastore.Row{
		"project_id": s.ProjectID,
		"type":       string(s.Type),
		"quantity":   model.ClampQuantity(s.Quantity),
		"notes":      model.StringPtr(s.Notes),
	}
	if s.ID != "" {
		r["id"] = s.ID
	}
	return r
}

func mapRows[T any](rows []datastore.Row, fn func(datastore.Row) T) []T {
	out := make([]T, len(rows))
	for i, r := range rows {
		out[i] = fn(r)
	}
	return out
}

// repo is the typed view of the tables the tracker reads.
type repo struct {
	store datastore.Store
}

func (r repo) client(ctx context.Context, id string) (model.Client, error) {
	row, err := r.store.FetchOne(ctx, tableClients, "id", id)
	if err != nil {
		return model.Client{}, storeErr("get client "+id, err)
	}
	return clientFromRow(row), nil
}

func (r repo) clients(ctx context.Context) ([]model.Client, error) {
	rows, err := r.store.FetchOrdered(ctx, tableClients, datastore.Asc("name"))
	if err != nil {
		return nil, storeErr("list clients", err)
	}
	return mapRows(rows, clientFromRow), nil
}

func (r repo) project(ctx context.Context, id string) (model.Project, error) {
	row, err := r.store.FetchOne(ctx, tableProjects, "id", id)
	if err != nil {
		return model.Project{}, storeErr("get project "+id, err)
	}
	return projectFromRow(row), nil
}

func (r repo) projects(ctx context.Context, order ...datastore.Order) ([]model.Project, error) {
	rows, err := r.store.FetchOrdered(ctx, tableProjects, order...)
	if err != nil {
		return nil, storeErr("list projects", err)
	}
	return mapRows(rows, projectFromRow), nil
}

func (r repo) projectsByClient(ctx context.Context, clientID string) ([]model.Project, error) {
	rows, err := r.store.FetchByEquality(ctx, tableProjects, "client_id", clientID, datastore.Desc("created_at"))
	if err != nil {
		return nil, storeErr("list projects of client "+clientID, err)
	}
	return mapRows(rows, projectFromRow), nil
}

func (r repo) projectsByID(ctx context.Context, ids []string, order ...datastore.Order) ([]model.Project, error) {
	rows, err := r.store.FetchByMembership(ctx, tableProjects, "id", anySlice(ids), order...)
	if err != nil {
		return nil, storeErr("list projects by id", err)
	}
	return mapRows(rows, projectFromRow), nil
}

func (r repo) services(ctx context.Context) ([]model.Service, error) {
	rows, err := r.store.FetchOrdered(ctx, tableServices, datastore.Asc("created_at"))
	if err != nil {
		return nil, storeErr("list services", err)
	}
	return mapRows(rows, serviceFromRow), nil
}

func (r repo) servicesByProject(ctx context.Context, projectID string) ([]model.Service, error) {
	rows, err := r.store.FetchByEquality(ctx, tableServices, "project_id", projectID, datastore.Asc("created_at"))
	if err != nil {
		return nil, storeErr("list services of project "+projectID, err)
	}
	return mapRows(rows, serviceFromRow), nil
}

func (r repo) task(ctx context.Context, id string) (model.Task, error) {
	row, err := r.store.FetchOne(ctx, tableTasks, "id", id)
	if err != nil {
		return model.Task{}, storeErr("get task "+id, err)
	}
	return taskFromRow(row), nil
}

func (r repo) tasks(ctx context.Context) ([]model.Task, error) {
	rows, err := r.store.FetchOrdered(ctx, tableTasks, datastore.Asc("created_at"))
	if err != nil {
		return nil, storeErr("list tasks", err)
	}
	return mapRows(rows, taskFromRow), nil
}

func (r repo) tasksByProject(ctx context.Context, projectID string) ([]model.Task, error) {
	rows, err := r.store.FetchByEquality(ctx, tableTasks, "project_id", projectID, datastore.Asc("due_date"), datastore.Asc("created_at"))
	if err != nil {
		return nil, storeErr("list tasks of project "+projectID, err)
	}
	return mapRows(rows, taskFromRow), nil
}

func (r repo) tasksByProjects(ctx context.Context, projectIDs []string) ([]model.Task, error) {
	rows, err := r.store.FetchByMembership(ctx, tableTasks, "project_id", anySlice(projectIDs), datastore.Asc("due_date"), datastore.Asc("created_at"))
	if err != nil {
		return nil, storeErr("list tasks of projects", err)
	}
	return mapRows(rows, taskFromRow), nil
}

func (r repo) tasksByAssignee(ctx context.Context, userID string) ([]model.Task, error) {
	rows, err := r.store.FetchByEquality(ctx, tableTasks, "assignee_user_id", userID)
	if err != nil {
		return nil, storeErr("list tasks of "+userID, err)
	}
	return mapRows(rows, taskFromRow), nil
}

func (r repo) user(ctx context.Context, userID string) (model.TeamUser, error) {
	row, err := r.store.FetchOne(ctx, tableTeam, "user_id", userID)
	if err != nil {
		return model.TeamUser{}, storeErr("get team user "+userID, err)
	}
	return userFromRow(row), nil
}

func (r repo) team(ctx context.Context) ([]model.TeamUser, error) {
	rows, err := r.store.FetchOrdered(ctx, tableTeam, datastore.Asc("name"))
	if err != nil {
		return nil, storeErr("list team", err)
	}
	return mapRows(rows, userFromRow), nil
}

func (r repo) updateTask(ctx context.Context, id string, patch datastore.Row) error {
	if err := r.store.Update(ctx, tableTasks, "id", id, patch); err != nil {
		return storeErr("update task "+id, err)
	}
	return nil
}

func anySlice(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

func stamp(now time.Time) time.Time { return now.UTC().Truncate(time.Microsecond) }
