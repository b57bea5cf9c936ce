// Package task defines the task model and the store contract the engine
// reads tasks through.
package task

import (
	"strings"
	"time"
)

// Metadata keys stamped by the engine when a status change is applied.
const (
	MetaPreviousStatus  = "previous_status"
	MetaStatusReason    = "status_reason"
	MetaStatusChangedAt = "status_changed_at"
	MetaAutoTransition  = "auto_transition"
	MetaBlockReason     = "block_reason"
	MetaProgress        = "progress"
	MetaBatchID         = "batch_id"
)

// Task describes a task record. The path is the primary key; its parent is
// the path minus the last segment.
type Task struct {
	Path         string         `json:"path"`
	Title        string         `json:"title,omitempty"`
	Status       Status         `json:"status"`
	Dependencies []string       `json:"dependencies,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    string         `json:"created_at,omitempty"`
	UpdatedAt    string         `json:"updated_at,omitempty"`
}

// ParentPath returns the owning task's path, or empty for a root task.
func (t *Task) ParentPath() string {
	idx := strings.LastIndex(t.Path, "/")
	if idx <= 0 {
		return ""
	}
	return t.Path[:idx]
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	out := *t
	if t.Dependencies != nil {
		out.Dependencies = make([]string, len(t.Dependencies))
		copy(out.Dependencies, t.Dependencies)
	}
	if t.Metadata != nil {
		out.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// Update is a partial task mutation. Nil fields are left unchanged;
// Metadata entries are merged into the existing bag.
type Update struct {
	Title        *string
	Status       *Status
	Dependencies *[]string
	Metadata     map[string]any
}

// Apply writes the update onto t and bumps UpdatedAt.
func (u Update) Apply(t *Task) {
	if u.Title != nil {
		t.Title = *u.Title
	}
	if u.Status != nil {
		t.Status = *u.Status
	}
	if u.Dependencies != nil {
		deps := make([]string, len(*u.Dependencies))
		copy(deps, *u.Dependencies)
		t.Dependencies = deps
	}
	if len(u.Metadata) > 0 {
		if t.Metadata == nil {
			t.Metadata = make(map[string]any, len(u.Metadata))
		}
		for k, v := range u.Metadata {
			t.Metadata[k] = v
		}
	}
	t.UpdatedAt = Now()
}

// Now returns the timestamp format used on task records.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
