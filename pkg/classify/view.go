package classify

import (
	"sort"
	"strings"

	"agency-tracker/pkg/model"
)

// Badge is a display-level risk summary.
type Badge string

const (
	BadgeHighRisk   Badge = "High risk"
	BadgeMediumRisk Badge = "Medium risk"
	BadgeBlocked    Badge = "Blocked"
	BadgeOnTrack    Badge = "On track"
)

// RiskBadge applies the precedence overdue > stale > blocked > on track.
func RiskBadge(overdue, stale, blocked int) Badge {
	switch {
	case overdue > 0:
		return BadgeHighRisk
	case stale > 0:
		return BadgeMediumRisk
	case blocked > 0:
		return BadgeBlocked
	default:
		return BadgeOnTrack
	}
}

// Tab is a category filter over a task list.
type Tab string

const (
	TabAll     Tab = "ALL"
	TabOpen    Tab = "OPEN"
	TabOverdue Tab = "OVERDUE"
	TabStale   Tab = "STALE"
	TabBlocked Tab = "BLOCKED"
	TabDone    Tab = "DONE"
)

// Tabs lists every tab in display order.
var Tabs = []Tab{TabAll, TabOpen, TabOverdue, TabStale, TabBlocked, TabDone}

// ParseTab returns the tab named by s, defaulting to ALL for blank or unknown input.
func ParseTab(s string) Tab {
	t := Tab(strings.ToUpper(strings.TrimSpace(s)))
	for _, v := range Tabs {
		if t == v {
			return t
		}
	}
	return TabAll
}

// Match reports whether the task belongs under the tab.
func (tab Tab) Match(t model.Task, c Clock) bool {
	switch tab {
	case TabOpen:
		return IsOpen(t)
	case TabOverdue:
		return IsOverdue(t, c)
	case TabStale:
		return IsStale(t, c)
	case TabBlocked:
		return IsBlocked(t)
	case TabDone:
		return IsDone(t)
	default:
		return true
	}
}

// TabCounts counts tasks under every tab.
func TabCounts(tasks []model.Task, c Clock) map[Tab]int {
	counts := make(map[Tab]int, len(Tabs))
	for _, tab := range Tabs {
		counts[tab] = 0
	}
	for _, t := range tasks {
		for _, tab := range Tabs {
			if tab.Match(t, c) {
				counts[tab]++
			}
		}
	}
	return counts
}

// Labels resolves display strings that live outside the task row.
type Labels struct {
	AssigneeNames map[string]string // user id -> display name
	ServiceTypes  map[string]string // service id -> service type
}

func (l Labels) assignee(t model.Task) string { return l.AssigneeNames[t.AssigneeUserID] }

func (l Labels) service(t model.Task) string {
	if t.ServiceID == nil {
		return ""
	}
	return l.ServiceTypes[*t.ServiceID]
}

// Filter composes the task list controls.
type Filter struct {
	Tab       Tab
	Query     string
	ServiceID string
}

// FilterTasks applies the service scope, tab and free-text needle in that
// order. The input slice is not modified; order is preserved.
func FilterTasks(tasks []model.Task, f Filter, c Clock, labels Labels) []model.Task {
	needle := strings.ToLower(strings.TrimSpace(f.Query))
	out := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		if f.ServiceID != "" && !t.InService(f.ServiceID) {
			continue
		}
		if !f.Tab.Match(t, c) {
			continue
		}
		if needle != "" && !matchesNeedle(t, needle, labels) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func matchesNeedle(t model.Task, needle string, labels Labels) bool {
	fields := []string{
		t.Title,
		string(t.Status),
		model.Deref(t.BlockedReason),
		labels.assignee(t),
		labels.service(t),
	}
	for _, f := range fields {
		if f != "" && strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}

// ProjectSummary is one row of a project risk list.
type ProjectSummary struct {
	Project model.Project `json:"project"`
	Rollup
	Risk Badge `json:"risk"`
}

// SummarizeProjects builds a summary per project from the given tasks.
func SummarizeProjects(projects []model.Project, tasks []model.Task, c Clock) []ProjectSummary {
	rollups := RollupByProject(projects, tasks, c)
	out := make([]ProjectSummary, 0, len(projects))
	for _, p := range projects {
		r := rollups[p.ID]
		out = append(out, ProjectSummary{Project: p, Rollup: r, Risk: r.Badge()})
	}
	return out
}

// SortWorstFirst orders summaries by overdue desc, stale desc, blocked desc,
// then completion asc. Remaining ties keep their input order.
func SortWorstFirst(rows []ProjectSummary) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Overdue != b.Overdue {
			return a.Overdue > b.Overdue
		}
		if a.Stale != b.Stale {
			return a.Stale > b.Stale
		}
		if a.Blocked != b.Blocked {
			return a.Blocked > b.Blocked
		}
		return a.Pct < b.Pct
	})
}

// SearchProjects keeps summaries whose project name, status or priority
// contains the needle, case-insensitively.
func SearchProjects(rows []ProjectSummary, query string) []ProjectSummary {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return rows
	}
	out := make([]ProjectSummary, 0, len(rows))
	for _, r := range rows {
		p := r.Project
		for _, f := range []string{p.Name, string(p.Status), string(p.Priority)} {
			if strings.Contains(strings.ToLower(f), needle) {
				out = append(out, r)
				break
			}
		}
	}
	return out
}
