package classify

import (
	"agency-tracker/pkg/model"
)

// Rollup aggregates task counts over one scope.
type Rollup struct {
	Total   int `json:"total"`
	Done    int `json:"done"`
	Open    int `json:"open"`
	Blocked int `json:"blocked"`
	Overdue int `json:"overdue"`
	Stale   int `json:"stale"`
	Pct     int `json:"pct"`
}

// Badge returns the risk badge for the rollup's counts.
func (r Rollup) Badge() Badge { return RiskBadge(r.Overdue, r.Stale, r.Blocked) }

// Percent returns round(100*done/total) with halves rounded up, or 0 when
// total is 0. 100 is reserved for fully done scopes, so an unfinished scope
// that would round up to 100 reports 99.
func Percent(done, total int) int {
	if total <= 0 || done <= 0 {
		return 0
	}
	if done >= total {
		return 100
	}
	return min((200*done+total)/(2*total), 99)
}

func (r *Rollup) add(t model.Task, c Clock) {
	r.Total++
	f := ClassifyTask(t, c)
	if f.Done {
		r.Done++
	} else {
		r.Open++
	}
	if f.Blocked {
		r.Blocked++
	}
	if f.Overdue {
		r.Overdue++
	}
	if f.Stale {
		r.Stale++
	}
}

func (r *Rollup) finish() { r.Pct = Percent(r.Done, r.Total) }

// ComputeRollup counts every task in tasks.
func ComputeRollup(tasks []model.Task, c Clock) Rollup {
	var r Rollup
	for _, t := range tasks {
		r.add(t, c)
	}
	r.finish()
	return r
}

// ScopeKind is the aggregation granularity.
type ScopeKind string

const (
	ScopeService ScopeKind = "service"
	ScopeProject ScopeKind = "project"
	ScopeClient  ScopeKind = "client"
)

// Scope selects the tasks a rollup counts.
type Scope struct {
	Kind ScopeKind
	ID   string
}

// ComputeScopedRollup filters tasks to scope and counts them. projects is
// only consulted for client scope, to map tasks to their client. Tasks whose
// project is unknown are excluded from a client rollup.
func ComputeScopedRollup(scope Scope, tasks []model.Task, projects []model.Project, c Clock) Rollup {
	var match func(model.Task) bool
	switch scope.Kind {
	case ScopeService:
		match = func(t model.Task) bool { return t.InService(scope.ID) }
	case ScopeProject:
		match = func(t model.Task) bool { return t.ProjectID == scope.ID }
	case ScopeClient:
		owned := make(map[string]bool)
		for _, p := range projects {
			if p.ClientID == scope.ID {
				owned[p.ID] = true
			}
		}
		match = func(t model.Task) bool { return owned[t.ProjectID] }
	default:
		return Rollup{}
	}

	var r Rollup
	for _, t := range tasks {
		if match(t) {
			r.add(t, c)
		}
	}
	r.finish()
	return r
}

// RollupByService returns one rollup per service id. Every listed service gets
// an entry, even with no tasks; tasks with no or an unlisted service are skipped.
func RollupByService(services []model.Service, tasks []model.Task, c Clock) map[string]Rollup {
	acc := make(map[string]*Rollup, len(services))
	for _, s := range services {
		acc[s.ID] = &Rollup{}
	}
	for _, t := range tasks {
		if t.ServiceID == nil {
			continue
		}
		if r, ok := acc[*t.ServiceID]; ok {
			r.add(t, c)
		}
	}
	return flatten(acc)
}

// RollupByProject returns one rollup per listed project.
func RollupByProject(projects []model.Project, tasks []model.Task, c Clock) map[string]Rollup {
	acc := make(map[string]*Rollup, len(projects))
	for _, p := range projects {
		acc[p.ID] = &Rollup{}
	}
	for _, t := range tasks {
		if r, ok := acc[t.ProjectID]; ok {
			r.add(t, c)
		}
	}
	return flatten(acc)
}

// RollupByClient returns one rollup per client that owns at least one listed project.
func RollupByClient(projects []model.Project, tasks []model.Task, c Clock) map[string]Rollup {
	clientOf := make(map[string]string, len(projects))
	acc := make(map[string]*Rollup)
	for _, p := range projects {
		clientOf[p.ID] = p.ClientID
		if _, ok := acc[p.ClientID]; !ok {
			acc[p.ClientID] = &Rollup{}
		}
	}
	for _, t := range tasks {
		cid, ok := clientOf[t.ProjectID]
		if !ok {
			continue
		}
		acc[cid].add(t, c)
	}
	return flatten(acc)
}

func flatten(acc map[string]*Rollup) map[string]Rollup {
	out := make(map[string]Rollup, len(acc))
	for k, r := range acc {
		r.finish()
		out[k] = *r
	}
	return out
}

// DeriveProjectStatus returns the status a project should have given its
// tasks. ok is false when there are no tasks, in which case the status must
// be left unchanged.
func DeriveProjectStatus(tasks []model.Task) (status model.ProjectStatus, ok bool) {
	if len(tasks) == 0 {
		return "", false
	}
	for _, t := range tasks {
		if !IsDone(t) {
			return model.ProjectInProgress, true
		}
	}
	return model.ProjectDone, true
}
