package task

import (
	"fmt"
	"strings"
)

// Status is the workflow status of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusBlocked    Status = "blocked"
	StatusCancelled  Status = "cancelled"
)

// transitions is the status state machine. A pair absent from this table is
// an invalid transition; there are no self-loops.
var transitions = map[Status][]Status{
	StatusPending:    {StatusInProgress, StatusBlocked, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled, StatusBlocked},
	StatusCompleted:  {StatusInProgress},
	StatusCancelled:  {StatusPending},
	StatusBlocked:    {StatusPending, StatusCancelled},
}

// ParseStatus normalizes a status string. Upper-case wire forms such as
// "IN_PROGRESS" are accepted.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}

// Valid reports whether the status is a known status value.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// AllowedTransitions returns the statuses reachable from s in one step.
func (s Status) AllowedTransitions() []Status {
	next := transitions[s]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

// CanTransitionTo reports whether s -> next is present in the state machine.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
