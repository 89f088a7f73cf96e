package tracker

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"agency-tracker/pkg/classify"
	"agency-tracker/pkg/datastore"
	"agency-tracker/pkg/followup"
	"agency-tracker/pkg/model"
)

// TaskLine is one line of a project's task table.
type TaskLine struct {
	model.Task
	Flags        classify.Flags `json:"flags"`
	AssigneeName string         `json:"assignee_name"`
	ServiceType  string         `json:"service_type,omitempty"`
	CanRemind    bool           `json:"can_remind"`
	RemindLink   string         `json:"remind_link,omitempty"`
}

// ServiceCard is one service card with its rollup.
type ServiceCard struct {
	model.Service
	Label  string          `json:"label"`
	Rollup classify.Rollup `json:"rollup"`
	Risk   classify.Badge  `json:"risk"`
}

// ProjectView is everything the project page shows.
type ProjectView struct {
	Project   model.Project        `json:"project"`
	Client    model.Client         `json:"client"`
	Rollup    classify.Rollup      `json:"rollup"`
	Risk      classify.Badge       `json:"risk"`
	Services  []ServiceCard        `json:"services"`
	Tasks     []TaskLine           `json:"tasks"`
	TabCounts map[classify.Tab]int `json:"tab_counts"`
	Team      []model.TeamUser     `json:"team"`
	Sync      SyncResult           `json:"sync"`
}

func teamIndex(team []model.TeamUser) map[string]model.TeamUser {
	m := make(map[string]model.TeamUser, len(team))
	for _, u := range team {
		m[u.UserID] = u
	}
	return m
}

// ProjectDetail syncs the project's status and then loads its page. The
// filter narrows Tasks only; rollups and tab counts cover every task.
func (t *Tracker) ProjectDetail(ctx context.Context, projectID string, f classify.Filter) (ProjectView, error) {
	var v ProjectView

	res, err := t.SyncProjectStatus(ctx, projectID)
	if err != nil {
		return v, err
	}
	v.Sync = res

	var (
		services []model.Service
		tasks    []model.Task
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		v.Project, err = t.repo.project(gctx, projectID)
		if err != nil {
			return err
		}
		v.Client, err = t.repo.client(gctx, v.Project.ClientID)
		return err
	})
	g.Go(func() (err error) {
		services, err = t.repo.servicesByProject(gctx, projectID)
		return err
	})
	g.Go(func() (err error) {
		tasks, err = t.repo.tasksByProject(gctx, projectID)
		return err
	})
	g.Go(func() (err error) {
		v.Team, err = t.ListTeam(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return ProjectView{}, err
	}

	c := t.Clock()
	v.Rollup = classify.ComputeRollup(tasks, c)
	v.Risk = v.Rollup.Badge()
	v.TabCounts = classify.TabCounts(tasks, c)

	byService := classify.RollupByService(services, tasks, c)
	labels := classify.Labels{
		AssigneeNames: make(map[string]string, len(v.Team)),
		ServiceTypes:  make(map[string]string, len(services)),
	}
	for _, s := range services {
		r := byService[s.ID]
		v.Services = append(v.Services, ServiceCard{Service: s, Label: t.catalog.Label(s.Type), Rollup: r, Risk: r.Badge()})
		labels.ServiceTypes[s.ID] = string(s.Type)
	}
	team := teamIndex(v.Team)
	for _, u := range v.Team {
		labels.AssigneeNames[u.UserID] = u.Name
	}

	for _, task := range classify.FilterTasks(tasks, f, c, labels) {
		row := TaskLine{
			Task:         task,
			Flags:        classify.ClassifyTask(task, c),
			AssigneeName: labels.AssigneeNames[task.AssigneeUserID],
			CanRemind:    classify.CanRemind(task.LastRemindedAt, c.Now),
		}
		if task.ServiceID != nil {
			row.ServiceType = labels.ServiceTypes[*task.ServiceID]
		}
		msg := followup.StatusCheckMessage(followup.Context{
			Assignee:      row.AssigneeName,
			Client:        v.Client.Name,
			Project:       v.Project.Name,
			Service:       row.ServiceType,
			Task:          task.Title,
			Status:        task.Status,
			BlockedReason: model.Deref(task.BlockedReason),
			Due:           task.DueDate,
			LastUpdate:    task.LastUpdateAt,
		})
		row.RemindLink = followup.WhatsAppLink(team[task.AssigneeUserID].Phone, msg)
		v.Tasks = append(v.Tasks, row)
	}
	return v, nil
}

// ClientView is the client page: a client-wide rollup and its projects
// worst first.
type ClientView struct {
	Client   model.Client              `json:"client"`
	Rollup   classify.Rollup           `json:"rollup"`
	Risk     classify.Badge            `json:"risk"`
	Projects []classify.ProjectSummary `json:"projects"`
}

// ClientDetail loads a client's page. query filters the project list by
// name, status or priority.
func (t *Tracker) ClientDetail(ctx context.Context, clientID, query string) (ClientView, error) {
	var (
		v        ClientView
		projects []model.Project
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		v.Client, err = t.repo.client(gctx, clientID)
		return err
	})
	g.Go(func() (err error) {
		projects, err = t.repo.projectsByClient(gctx, clientID)
		return err
	})
	if err := g.Wait(); err != nil {
		return ClientView{}, err
	}

	ids := make([]string, len(projects))
	for i, p := range projects {
		ids[i] = p.ID
	}
	tasks, err := t.repo.tasksByProjects(ctx, ids)
	if err != nil {
		return ClientView{}, err
	}

	c := t.Clock()
	v.Rollup = classify.ComputeScopedRollup(classify.Scope{Kind: classify.ScopeClient, ID: clientID}, tasks, projects, c)
	v.Risk = v.Rollup.Badge()
	summaries := classify.SummarizeProjects(projects, tasks, c)
	classify.SortWorstFirst(summaries)
	v.Projects = classify.SearchProjects(summaries, query)
	return v, nil
}

// ClientCard is one row of the client list.
type ClientCard struct {
	model.Client
	Projects   int `json:"projects"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
}

// ListClients returns every client by name with project counts. query
// filters by client name.
func (t *Tracker) ListClients(ctx context.Context, query string) ([]ClientCard, error) {
	var (
		clients  []model.Client
		projects []model.Project
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		clients, err = t.repo.clients(gctx)
		return err
	})
	g.Go(func() (err error) {
		projects, err = t.repo.projects(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	counts := make(map[string]*ClientCard, len(clients))
	out := make([]ClientCard, 0, len(clients))
	needle := strings.ToLower(strings.TrimSpace(query))
	for _, c := range clients {
		counts[c.ID] = &ClientCard{Client: c}
	}
	for _, p := range projects {
		cc, ok := counts[p.ClientID]
		if !ok {
			continue
		}
		cc.Projects++
		if p.Status == model.ProjectDone {
			cc.Completed++
		} else {
			cc.InProgress++
		}
	}
	for _, c := range clients {
		if needle != "" && !strings.Contains(strings.ToLower(c.Name), needle) {
			continue
		}
		out = append(out, *counts[c.ID])
	}
	return out, nil
}

// ServiceTotal is the summed quantity of one service type.
type ServiceTotal struct {
	Type     model.ServiceType `json:"type"`
	Label    string            `json:"label"`
	Quantity int               `json:"quantity"`
}

// DashboardCard summarises one client on the dashboard.
type DashboardCard struct {
	Client          model.Client   `json:"client"`
	Projects        int            `json:"projects"`
	InProgress      int            `json:"in_progress"`
	Done            int            `json:"done"`
	OverdueProjects int            `json:"overdue_projects"`
	ServiceTotals   []ServiceTotal `json:"service_totals"`
}

// Dashboard returns one card per client. A project is overdue when it is not
// done and its due date is before today; service totals are sorted by
// quantity, largest first.
func (t *Tracker) Dashboard(ctx context.Context) ([]DashboardCard, error) {
	var (
		clients  []model.Client
		projects []model.Project
		services []model.Service
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		clients, err = t.repo.clients(gctx)
		return err
	})
	g.Go(func() (err error) {
		projects, err = t.repo.projects(gctx, datastore.Asc("due_date"))
		return err
	})
	g.Go(func() (err error) {
		services, err = t.repo.services(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	today := t.Clock().Today
	cards := make(map[string]*DashboardCard, len(clients))
	for _, c := range clients {
		cards[c.ID] = &DashboardCard{Client: c}
	}
	clientOf := make(map[string]string, len(projects))
	for _, p := range projects {
		clientOf[p.ID] = p.ClientID
		card, ok := cards[p.ClientID]
		if !ok {
			continue
		}
		card.Projects++
		if p.Status == model.ProjectDone {
			card.Done++
			continue
		}
		card.InProgress++
		if !p.DueDate.IsZero() && p.DueDate.Before(today) {
			card.OverdueProjects++
		}
	}

	totals := make(map[string]map[model.ServiceType]int)
	for _, s := range services {
		cid, ok := clientOf[s.ProjectID]
		if !ok {
			continue
		}
		if totals[cid] == nil {
			totals[cid] = make(map[model.ServiceType]int)
		}
		totals[cid][s.Type] += s.Quantity
	}

	out := make([]DashboardCard, 0, len(clients))
	for _, c := range clients {
		card := cards[c.ID]
		for typ, qty := range totals[c.ID] {
			card.ServiceTotals = append(card.ServiceTotals, ServiceTotal{Type: typ, Label: t.catalog.Label(typ), Quantity: qty})
		}
		sort.Slice(card.ServiceTotals, func(i, j int) bool {
			a, b := card.ServiceTotals[i], card.ServiceTotals[j]
			if a.Quantity != b.Quantity {
				return a.Quantity > b.Quantity
			}
			return a.Type < b.Type
		})
		out = append(out, *card)
	}
	return out, nil
}

// ProjectListItem is one row of the project list.
type ProjectListItem struct {
	classify.ProjectSummary
	ClientName string `json:"client_name"`
}

// ProjectList returns the projects actorID may see, newest first. Admins see
// every project; staff see only projects where they hold a task. query
// filters by project name, status or priority.
func (t *Tracker) ProjectList(ctx context.Context, actorID, query string) ([]ProjectListItem, error) {
	me, err := t.repo.user(ctx, actorID)
	if err != nil {
		if isNotFound(err) {
			return nil, forbidden("list projects")
		}
		return nil, err
	}

	var projects []model.Project
	if me.IsAdmin() {
		projects, err = t.repo.projects(ctx, datastore.Desc("created_at"))
	} else {
		var mine []model.Task
		mine, err = t.repo.tasksByAssignee(ctx, me.UserID)
		if err != nil {
			return nil, err
		}
		seen := make(map[string]bool)
		var ids []string
		for _, task := range mine {
			if !seen[task.ProjectID] {
				seen[task.ProjectID] = true
				ids = append(ids, task.ProjectID)
			}
		}
		if len(ids) == 0 {
			return []ProjectListItem{}, nil
		}
		projects, err = t.repo.projectsByID(ctx, ids, datastore.Desc("created_at"))
	}
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(projects))
	for i, p := range projects {
		ids[i] = p.ID
	}
	var (
		tasks   []model.Task
		clients []model.Client
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		tasks, err = t.repo.tasksByProjects(gctx, ids)
		return err
	})
	g.Go(func() (err error) {
		clients, err = t.repo.clients(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	names := make(map[string]string, len(clients))
	for _, c := range clients {
		names[c.ID] = c.Name
	}
	summaries := classify.SearchProjects(classify.SummarizeProjects(projects, tasks, t.Clock()), query)
	out := make([]ProjectListItem, len(summaries))
	for i, s := range summaries {
		out[i] = ProjectListItem{ProjectSummary: s, ClientName: names[s.Project.ClientID]}
	}
	return out, nil
}

// FollowUp is one task that needs chasing.
type FollowUp struct {
	Task         model.Task `json:"task"`
	ClientName   string     `json:"client_name"`
	ProjectName  string     `json:"project_name"`
	AssigneeName string     `json:"assignee_name"`
	CanRemind    bool       `json:"can_remind"`
	Message      string     `json:"message"`
	Link         string     `json:"link,omitempty"`
}

// FollowUps lists overdue tasks by due date and stale tasks by last update,
// oldest first.
type FollowUps struct {
	Overdue []FollowUp `json:"overdue"`
	Stale   []FollowUp `json:"stale"`
}

// FollowUps collects every overdue and every stale task with a prepared
// reminder message and WhatsApp link. A task can appear in both lists.
func (t *Tracker) FollowUps(ctx context.Context) (FollowUps, error) {
	var (
		tasks    []model.Task
		projects []model.Project
		clients  []model.Client
		team     []model.TeamUser
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		tasks, err = t.repo.tasks(gctx)
		return err
	})
	g.Go(func() (err error) {
		projects, err = t.repo.projects(gctx)
		return err
	})
	g.Go(func() (err error) {
		clients, err = t.repo.clients(gctx)
		return err
	})
	g.Go(func() (err error) {
		team, err = t.repo.team(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return FollowUps{}, err
	}

	projectByID := make(map[string]model.Project, len(projects))
	for _, p := range projects {
		projectByID[p.ID] = p
	}
	clientName := make(map[string]string, len(clients))
	for _, c := range clients {
		clientName[c.ID] = c.Name
	}
	members := teamIndex(team)

	c := t.Clock()
	build := func(task model.Task, message func(followup.Context) string) FollowUp {
		p := projectByID[task.ProjectID]
		u := members[task.AssigneeUserID]
		fc := followup.Context{
			Assignee:   u.Name,
			Client:     clientName[p.ClientID],
			Project:    p.Name,
			Task:       task.Title,
			Status:     task.Status,
			Due:        task.DueDate,
			LastUpdate: task.LastUpdateAt,
		}
		msg := message(fc)
		return FollowUp{
			Task:         task,
			ClientName:   fc.Client,
			ProjectName:  p.Name,
			AssigneeName: u.Name,
			CanRemind:    classify.CanRemind(task.LastRemindedAt, c.Now),
			Message:      msg,
			Link:         followup.WhatsAppLink(u.Phone, msg),
		}
	}

	out := FollowUps{Overdue: []FollowUp{}, Stale: []FollowUp{}}
	for _, task := range tasks {
		if classify.IsOverdue(task, c) {
			out.Overdue = append(out.Overdue, build(task, followup.OverdueMessage))
		}
		if classify.IsStale(task, c) {
			out.Stale = append(out.Stale, build(task, followup.StaleMessage))
		}
	}
	sort.SliceStable(out.Overdue, func(i, j int) bool {
		return out.Overdue[i].Task.DueDate.Before(out.Overdue[j].Task.DueDate)
	})
	sort.SliceStable(out.Stale, func(i, j int) bool {
		return out.Stale[i].Task.LastUpdateAt.Before(out.Stale[j].Task.LastUpdateAt)
	})
	return out, nil
}
