package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/scotthamilton77/atlas-mcp-server-sub005/internal/task"
)

// Kind classifies an engine error.
type Kind int

const (
	// KindInput marks a programming-contract violation in the call itself
	// (bad arguments, empty batch). Never retried.
	KindInput Kind = iota + 1
	// KindDependency marks a dependency-graph problem.
	KindDependency
	// KindStatus marks an illegal or blocked status transition.
	KindStatus
	// KindExecution marks a store failure or unexpected error while
	// applying one batch item.
	KindExecution
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindDependency:
		return "dependency"
	case KindStatus:
		return "status"
	case KindExecution:
		return "execution"
	default:
		return "unknown"
	}
}

// DependencyIssueType subtypes a dependency error.
type DependencyIssueType string

const (
	DependencyMissing  DependencyIssueType = "missing"
	DependencyInvalid  DependencyIssueType = "invalid"
	DependencyCircular DependencyIssueType = "circular"
	DependencyStatus   DependencyIssueType = "status"
)

// DependencyDetail carries the offending path and, for missing
// dependencies, an optional suggestion.
type DependencyDetail struct {
	Type       DependencyIssueType `json:"type"`
	Path       string              `json:"path,omitempty"`
	Suggestion string              `json:"suggestion,omitempty"`
	Cycle      []string            `json:"cycle,omitempty"`
}

// BlockingDependency names one dependency preventing a transition.
type BlockingDependency struct {
	Path   string      `json:"path"`
	Status task.Status `json:"status,omitempty"`
	Reason string      `json:"reason"`
}

// StatusDetail carries the rejected transition and either the allowed
// destinations or the full blocking list.
type StatusDetail struct {
	Current   task.Status          `json:"current"`
	Requested task.Status          `json:"requested"`
	Allowed   []task.Status        `json:"allowed,omitempty"`
	Blocking  []BlockingDependency `json:"blocking,omitempty"`
}

// Error is the engine's tagged error type. Exactly one detail field is set,
// matching Kind.
type Error struct {
	Kind       Kind
	Msg        string
	Dependency *DependencyDetail
	Status     *StatusDetail
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Unwrap exposes the wrapped cause of execution errors.
func (e *Error) Unwrap() error { return e.Err }

// MarshalJSON renders the error as structured data for batch results.
func (e *Error) MarshalJSON() ([]byte, error) {
	out := struct {
		Kind       string            `json:"kind"`
		Message    string            `json:"message"`
		Dependency *DependencyDetail `json:"dependency,omitempty"`
		Status     *StatusDetail     `json:"status,omitempty"`
	}{
		Kind:       e.Kind.String(),
		Message:    e.Msg,
		Dependency: e.Dependency,
		Status:     e.Status,
	}
	if e.Err != nil {
		out.Message = fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return json.Marshal(out)
}

// AsError unwraps err into an *Error when possible. A typed-nil *Error
// inside the interface is treated as no engine error at all.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err is an engine error of the given kind.
func IsKind(err error, kind Kind) bool {
	e, ok := AsError(err)
	return ok && e.Kind == kind
}

func inputErrorf(format string, args ...any) *Error {
	return &Error{Kind: KindInput, Msg: fmt.Sprintf(format, args...)}
}

func dependencyError(detail DependencyDetail, format string, args ...any) *Error {
	return &Error{Kind: KindDependency, Msg: fmt.Sprintf(format, args...), Dependency: &detail}
}

func statusError(detail StatusDetail, format string, args ...any) *Error {
	return &Error{Kind: KindStatus, Msg: fmt.Sprintf(format, args...), Status: &detail}
}

func executionError(err error, format string, args ...any) *Error {
	return &Error{Kind: KindExecution, Msg: fmt.Sprintf(format, args...), Err: err}
}

func cycleMessage(cycle []string) string {
	return "circular dependency: " + strings.Join(cycle, " -> ")
}
