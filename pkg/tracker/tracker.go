// Package tracker is the service layer of the project tracker. It loads
// snapshots through a datastore.Store, runs them through the classify
// engine, and applies the few mutations the tracker allows: task status
// transitions, reassignment, reminders, project status sync and the admin
// CRUD around clients, projects, services and the team.
package tracker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"agency-tracker/pkg/changefeed"
	"agency-tracker/pkg/classify"
	"agency-tracker/pkg/datastore"
	"agency-tracker/pkg/model"
)

// Tracker is safe for concurrent use.
type Tracker struct {
	repo    repo
	store   datastore.Store
	log     zerolog.Logger
	now     func() time.Time
	catalog *classify.Catalog
	feed    *changefeed.Bus

	mu      sync.Mutex
	syncing map[string]struct{} // project ids with a sync pass in flight
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithCatalog overrides the service template catalog.
func WithCatalog(c *classify.Catalog) Option {
	return func(t *Tracker) { t.catalog = c }
}

// WithFeed publishes every committed write to b.
func WithFeed(b *changefeed.Bus) Option {
	return func(t *Tracker) { t.feed = b }
}

// New creates a Tracker over store.
func New(store datastore.Store, logger zerolog.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		repo:    repo{store: store},
		store:   store,
		log:     logger.With().Str("component", "tracker").Logger(),
		now:     time.Now,
		catalog: classify.DefaultCatalog(),
		syncing: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Clock returns the reference instants for one evaluation pass.
func (t *Tracker) Clock() classify.Clock { return classify.NewClock(t.now()) }

// Feed returns the change feed, or nil when none was configured.
func (t *Tracker) Feed() *changefeed.Bus { return t.feed }

// Catalog returns the service template catalog in use.
func (t *Tracker) Catalog() *classify.Catalog { return t.catalog }

// SyncResult reports what a sync pass did.
type SyncResult struct {
	ProjectID string              `json:"project_id"`
	Status    model.ProjectStatus `json:"status"`
	Changed   bool                `json:"changed"`
	Skipped   bool                `json:"skipped"`
	// Failed is set by TransitionTask when the follow-up sync errored.
	Failed bool `json:"failed,omitempty"`
}

// tryBeginSync marks projectID as syncing. It returns false when a pass for
// the same project is already in flight.
func (t *Tracker) tryBeginSync(projectID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, busy := t.syncing[projectID]; busy {
		return false
	}
	t.syncing[projectID] = struct{}{}
	return true
}

func (t *Tracker) endSync(projectID string) {
	t.mu.Lock()
	delete(t.syncing, projectID)
	t.mu.Unlock()
}

// SyncProjectStatus reconciles a project's status with its full task set.
// A call that overlaps another pass for the same project returns at once
// with Skipped set. Projects without tasks keep their status, and nothing is
// written when the derived status already matches.
func (t *Tracker) SyncProjectStatus(ctx context.Context, projectID string) (SyncResult, error) {
	res := SyncResult{ProjectID: projectID}
	if !t.tryBeginSync(projectID) {
		t.log.Debug().Str("project_id", projectID).Msg("sync already in flight, skipping")
		res.Skipped = true
		return res, nil
	}
	defer t.endSync(projectID)

	tasks, err := t.repo.tasksByProject(ctx, projectID)
	if err != nil {
		return res, err
	}
	p, err := t.repo.project(ctx, projectID)
	if err != nil {
		return res, err
	}
	res.Status = p.Status

	next, ok := classify.DeriveProjectStatus(tasks)
	if !ok || next == p.Status {
		return res, nil
	}
	if err := t.store.Update(ctx, tableProjects, "id", projectID, datastore.Row{"status": string(next)}); err != nil {
		return res, storeErr("update project status "+projectID, err)
	}
	t.log.Info().Str("project_id", projectID).
		Str("from", string(p.Status)).Str("to", string(next)).
		Msg("project status synced")
	t.feed.Publish(changefeed.Change{
		Kind:      changefeed.ProjectStatus,
		ProjectID: projectID,
		Content:   map[string]any{"from": p.Status, "to": next},
	})
	res.Status = next
	res.Changed = true
	return res, nil
}

// requireAdmin loads the actor and checks the role. The store's own access
// policy remains the enforcement boundary; this check only fails early.
func (t *Tracker) requireAdmin(ctx context.Context, actorID, action string) (model.TeamUser, error) {
	if actorID == "" {
		return model.TeamUser{}, forbidden(action)
	}
	u, err := t.repo.user(ctx, actorID)
	if errors.Is(err, ErrNotFound) {
		return model.TeamUser{}, forbidden(action)
	}
	if err != nil {
		return model.TeamUser{}, err
	}
	if !u.IsAdmin() {
		return u, forbidden(action)
	}
	return u, nil
}
