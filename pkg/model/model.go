package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	StatusTodo       TaskStatus = "TODO"
	StatusInProgress TaskStatus = "IN_PROGRESS"
	StatusBlocked    TaskStatus = "BLOCKED"
	StatusDone       TaskStatus = "DONE"
)

// TaskStatuses lists every valid task status in display order.
var TaskStatuses = []TaskStatus{StatusTodo, StatusInProgress, StatusBlocked, StatusDone}

// ParseTaskStatus validates s against the finite status set.
func ParseTaskStatus(s string) (TaskStatus, error) {
	st := TaskStatus(strings.ToUpper(strings.TrimSpace(s)))
	for _, v := range TaskStatuses {
		if st == v {
			return st, nil
		}
	}
	return "", fmt.Errorf("invalid task status %q", s)
}

// ProjectStatus is derived from the project's tasks.
type ProjectStatus string

const (
	ProjectInProgress ProjectStatus = "IN_PROGRESS"
	ProjectDone       ProjectStatus = "DONE"
)

// DisplayName renders DONE as COMPLETED.
func (s ProjectStatus) DisplayName() string {
	if s == ProjectDone {
		return "COMPLETED"
	}
	return string(s)
}

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// ParsePriority validates s. An empty string yields MEDIUM.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.ToUpper(strings.TrimSpace(s))); p {
	case "":
		return PriorityMedium, nil
	case PriorityLow, PriorityMedium, PriorityHigh:
		return p, nil
	default:
		return "", fmt.Errorf("invalid priority %q", s)
	}
}

type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleStaff Role = "STAFF"
)

// ParseRole validates s.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case RoleAdmin, RoleStaff:
		return r, nil
	default:
		return "", fmt.Errorf("invalid role %q", s)
	}
}

// ServiceType is the kind of deliverable a service represents.
type ServiceType string

const (
	ServiceMetaAds     ServiceType = "META_ADS"
	ServiceTikTokAds   ServiceType = "TIKTOK_ADS"
	ServiceMetaVideo   ServiceType = "META_VIDEO"
	ServiceTikTokVideo ServiceType = "TIKTOK_VIDEO"
	ServiceUGCVideo    ServiceType = "UGC_VIDEO"
	ServiceTikTokLive  ServiceType = "TIKTOK_LIVE"
	ServiceWebsiteDev  ServiceType = "WEBSITE_DEV"
)

// Client is an agency customer.
type Client struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Project belongs to exactly one client and owns services and tasks.
type Project struct {
	ID          string        `json:"id"`
	ClientID    string        `json:"client_id"`
	OwnerUserID string        `json:"owner_user_id,omitempty"`
	Name        string        `json:"name"`
	Status      ProjectStatus `json:"status"`
	Priority    Priority      `json:"priority"`
	StartDate   Date          `json:"start_date"`
	DueDate     Date          `json:"due_date"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Service is a deliverable line on a project and the grouping key for its tasks.
type Service struct {
	ID        string      `json:"id"`
	ProjectID string      `json:"project_id"`
	Type      ServiceType `json:"type"`
	Quantity  int         `json:"quantity"`
	Notes     string      `json:"notes,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// Task is a unit of work assigned to one team member.
type Task struct {
	ID             string     `json:"id"`
	ProjectID      string     `json:"project_id"`
	ServiceID      *string    `json:"service_id"`
	Title          string     `json:"title"`
	Status         TaskStatus `json:"status"`
	Priority       Priority   `json:"priority"`
	DueDate        Date       `json:"due_date"`
	AssigneeUserID string     `json:"assignee_user_id"`
	BlockedReason  *string    `json:"blocked_reason"`
	LastUpdateAt   time.Time  `json:"last_update_at"`
	LastRemindedAt *time.Time `json:"last_reminded_at"`
	CreatedAt      time.Time  `json:"created_at"`
}

// ErrBlockedReason is returned by Task.Validate when the blocked reason and status disagree.
var ErrBlockedReason = errors.New("blocked reason must be set exactly when status is BLOCKED")

// Validate checks the blocked-reason invariant.
func (t Task) Validate() error {
	hasReason := t.BlockedReason != nil && strings.TrimSpace(*t.BlockedReason) != ""
	if (t.Status == StatusBlocked) != hasReason {
		return ErrBlockedReason
	}
	return nil
}

// InService reports whether the task is grouped under the given service.
func (t Task) InService(serviceID string) bool {
	return t.ServiceID != nil && *t.ServiceID == serviceID
}

// TeamUser is a staff member who can be assigned tasks.
type TeamUser struct {
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// IsAdmin reports whether the user may perform admin-only mutations.
func (u TeamUser) IsAdmin() bool { return u.Role == RoleAdmin }

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns *s or "" when s is nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
