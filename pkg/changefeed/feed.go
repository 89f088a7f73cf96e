// Package changefeed fans tracker writes out to in-process subscribers so
// open views can refresh without polling.
package changefeed

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind names what changed.
type Kind string

const (
	TaskStatus       Kind = "task.status"
	TaskAssignee     Kind = "task.assignee"
	TaskReminded     Kind = "task.reminded"
	ProjectCreated   Kind = "project.created"
	ProjectUpdated   Kind = "project.updated"
	ProjectStatus    Kind = "project.status"
	ProjectDeleted   Kind = "project.deleted"
	ServicesReplaced Kind = "project.services"
	ClientCreated    Kind = "client.created"
	TeamChanged      Kind = "team.changed"
)

// Change is one committed write.
type Change struct {
	ID        string         `json:"id"` // UUID v7 (time-ordered)
	Kind      Kind           `json:"kind"`
	At        time.Time      `json:"at"`
	ProjectID string         `json:"project_id,omitempty"`
	TaskID    string         `json:"task_id,omitempty"`
	ActorID   string         `json:"actor_id,omitempty"`
	Content   map[string]any `json:"content,omitempty"`
}

// Bus delivers every published change to all current subscribers. A nil
// *Bus accepts publishes and drops them.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Change]struct{}
	now  func() time.Time
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[chan Change]struct{}), now: time.Now}
}

// Publish stamps c with an id and time when missing and fans it out.
// Subscribers that are behind miss the change rather than block the writer.
func (b *Bus) Publish(c Change) Change {
	if b == nil {
		return c
	}
	if c.ID == "" {
		c.ID = uuid.Must(uuid.NewV7()).String()
	}
	if c.At.IsZero() {
		c.At = b.now().UTC()
	}

	b.mu.RLock()
	for ch := range b.subs {
		select {
		case ch <- c:
		default:
		}
	}
	b.mu.RUnlock()
	return c
}

// Subscribe returns a buffered channel that receives new changes.
func (b *Bus) Subscribe() chan Change {
	ch := make(chan Change, 64)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(ch chan Change) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Subscribers reports how many channels are attached.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
