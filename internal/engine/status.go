package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/scotthamilton77/atlas-mcp-server-sub005/internal/logging"
	"github.com/scotthamilton77/atlas-mcp-server-sub005/internal/task"
)

// Transition is the outcome of a validated status change. AutoTransition is
// set when the engine substituted a consistent status for the requested one.
type Transition struct {
	Status         task.Status `json:"status"`
	AutoTransition bool        `json:"auto_transition"`
}

// ParentUpdate instructs the caller to propagate completion one level up.
type ParentUpdate struct {
	Path   string      `json:"path"`
	Status task.Status `json:"status"`
}

// StatusEffect records one applied status change for batch results.
type StatusEffect struct {
	Path   string      `json:"path"`
	From   task.Status `json:"from"`
	To     task.Status `json:"to"`
	Reason string      `json:"reason,omitempty"`
}

// TransitionService validates and applies task status transitions.
type TransitionService struct {
	store task.Store
	log   zerolog.Logger
}

// NewTransitionService creates a transition service over the given store.
func NewTransitionService(store task.Store) *TransitionService {
	return &TransitionService{
		store: store,
		log:   logging.Component("transitions"),
	}
}

// ValidateTransition checks whether t may move to requested. A request for
// IN_PROGRESS with a blocked or cancelled dependency is not an error: the
// result carries BLOCKED with AutoTransition set instead.
func (s *TransitionService) ValidateTransition(ctx context.Context, t *task.Task, requested task.Status) (Transition, error) {
	if t == nil || t.Path == "" {
		return Transition{}, inputErrorf("validate transition: task is required")
	}
	if !requested.Valid() {
		return Transition{}, inputErrorf("validate transition: unknown status %q", requested)
	}

	// Dependency preconditions run before the table check: a completion
	// request must report every blocking dependency, and a start request
	// must auto-downgrade, regardless of the current status.
	switch requested {
	case task.StatusCompleted:
		blocking, err := s.completionBlockers(ctx, t)
		if err != nil {
			return Transition{}, err
		}
		if len(blocking) > 0 {
			return Transition{}, statusError(StatusDetail{
				Current:   t.Status,
				Requested: requested,
				Blocking:  blocking,
			}, "cannot complete task %s: %s", t.Path, describeBlocking(blocking))
		}
	case task.StatusInProgress:
		blocking, err := s.startBlockers(ctx, t)
		if err != nil {
			return Transition{}, err
		}
		if len(blocking) > 0 {
			s.log.Debug().
				Str("task", t.Path).
				Int("blocking", len(blocking)).
				Msg("auto-transitioning to blocked")
			return Transition{Status: task.StatusBlocked, AutoTransition: true}, nil
		}
	case task.StatusPending:
		if t.Status == task.StatusBlocked {
			blocking, err := s.startBlockers(ctx, t)
			if err != nil {
				return Transition{}, err
			}
			if len(blocking) > 0 {
				return Transition{}, statusError(StatusDetail{
					Current:   t.Status,
					Requested: requested,
					Blocking:  blocking,
				}, "cannot unblock task %s: %s", t.Path, describeBlocking(blocking))
			}
		}
	}

	if !t.Status.CanTransitionTo(requested) {
		allowed := t.Status.AllowedTransitions()
		return Transition{}, statusError(StatusDetail{
			Current:   t.Status,
			Requested: requested,
			Allowed:   allowed,
		}, "cannot transition task %s from %s to %s; allowed: %s", t.Path, t.Status, requested, joinStatuses(allowed))
	}
	return Transition{Status: requested}, nil
}

// ApplyTransition writes the transition through the store, stamping audit
// metadata. Returns the updated task.
func (s *TransitionService) ApplyTransition(ctx context.Context, t *task.Task, tr Transition, reason, batchID string) (*task.Task, error) {
	status := tr.Status
	update := task.Update{
		Status:   &status,
		Metadata: AuditMetadata(t, tr, reason, batchID),
	}
	updated, err := s.store.UpdateTask(ctx, t.Path, update)
	if err != nil {
		return nil, executionError(err, "apply transition %s -> %s on %s", t.Status, tr.Status, t.Path)
	}
	return updated, nil
}

// AuditMetadata builds the status-change audit entries stamped onto a task
// when a transition is applied.
func AuditMetadata(t *task.Task, tr Transition, reason, batchID string) map[string]any {
	meta := map[string]any{
		task.MetaPreviousStatus:  string(t.Status),
		task.MetaStatusChangedAt: task.Now(),
		task.MetaAutoTransition:  tr.AutoTransition,
	}
	if reason != "" {
		meta[task.MetaStatusReason] = reason
	}
	if tr.Status == task.StatusBlocked && reason != "" {
		meta[task.MetaBlockReason] = reason
	}
	if batchID != "" {
		meta[task.MetaBatchID] = batchID
	}
	return meta
}

// ValidateParentChildStatus inspects the sibling set of t for the proposed
// status. Sibling issues are warnings, never rejections; when the change
// would leave every child of the parent completed, a one-level ParentUpdate
// instruction is returned for the caller to apply.
func (s *TransitionService) ValidateParentChildStatus(ctx context.Context, t *task.Task, newStatus task.Status) ([]string, *ParentUpdate, error) {
	parentPath := t.ParentPath()
	if parentPath == "" {
		return nil, nil, nil
	}
	siblings, err := s.store.GetTasksByPattern(ctx, parentPath+"/*")
	if err != nil {
		return nil, nil, executionError(err, "list children of %s", parentPath)
	}

	var warnings []string
	allSiblingsCompleted := true
	for _, sib := range siblings {
		if sib.Path == t.Path {
			continue
		}
		if newStatus == task.StatusCompleted && sib.Status == task.StatusBlocked {
			warnings = append(warnings, fmt.Sprintf("completing %s while sibling %s is blocked", t.Path, sib.Path))
		}
		if newStatus == task.StatusInProgress && sib.Status == task.StatusCancelled {
			warnings = append(warnings, fmt.Sprintf("starting %s while sibling %s is cancelled", t.Path, sib.Path))
		}
		if sib.Status != task.StatusCompleted {
			allSiblingsCompleted = false
		}
	}

	if newStatus == task.StatusCompleted && allSiblingsCompleted {
		if _, err := s.store.GetTask(ctx, parentPath); err != nil {
			if errors.Is(err, task.ErrNotFound) {
				return warnings, nil, nil
			}
			return warnings, nil, executionError(err, "look up parent %s", parentPath)
		}
		return warnings, &ParentUpdate{Path: parentPath, Status: task.StatusCompleted}, nil
	}
	return warnings, nil, nil
}

// ApplyParentUpdate applies a propagated completion directly through the
// store. Propagation is system-derived, so it does not re-enter the
// transition table; further levels propagate on a subsequent pass.
func (s *TransitionService) ApplyParentUpdate(ctx context.Context, pu ParentUpdate) (*task.Task, *StatusEffect, error) {
	parent, err := s.store.GetTask(ctx, pu.Path)
	if err != nil {
		return nil, nil, executionError(err, "look up parent %s", pu.Path)
	}
	if parent.Status == pu.Status {
		return parent, nil, nil
	}
	from := parent.Status
	reason := "all child tasks completed"
	updated, err := s.ApplyTransition(ctx, parent, Transition{Status: pu.Status, AutoTransition: true}, reason, "")
	if err != nil {
		return nil, nil, err
	}
	return updated, &StatusEffect{Path: pu.Path, From: from, To: pu.Status, Reason: reason}, nil
}

// completionBlockers collects every dependency of t that is missing or not
// completed, each with a human-readable reason.
func (s *TransitionService) completionBlockers(ctx context.Context, t *task.Task) ([]BlockingDependency, error) {
	var blocking []BlockingDependency
	for _, dep := range t.Dependencies {
		depTask, err := s.store.GetTask(ctx, dep)
		if err != nil {
			if errors.Is(err, task.ErrNotFound) {
				blocking = append(blocking, BlockingDependency{Path: dep, Reason: "Dependency does not exist"})
				continue
			}
			return nil, executionError(err, "look up dependency %s", dep)
		}
		if depTask.Status != task.StatusCompleted {
			blocking = append(blocking, BlockingDependency{
				Path:   dep,
				Status: depTask.Status,
				Reason: blockingReason(depTask),
			})
		}
	}
	return blocking, nil
}

// startBlockers collects dependencies that prevent work from starting:
// cancelled or blocked ones. Missing dependencies do not block a start.
func (s *TransitionService) startBlockers(ctx context.Context, t *task.Task) ([]BlockingDependency, error) {
	var blocking []BlockingDependency
	for _, dep := range t.Dependencies {
		depTask, err := s.store.GetTask(ctx, dep)
		if err != nil {
			if errors.Is(err, task.ErrNotFound) {
				continue
			}
			return nil, executionError(err, "look up dependency %s", dep)
		}
		if depTask.Status == task.StatusCancelled || depTask.Status == task.StatusBlocked {
			blocking = append(blocking, BlockingDependency{
				Path:   dep,
				Status: depTask.Status,
				Reason: blockingReason(depTask),
			})
		}
	}
	return blocking, nil
}

// blockingReason renders the reason a dependency blocks progress.
func blockingReason(dep *task.Task) string {
	switch dep.Status {
	case task.StatusPending:
		return "Not started"
	case task.StatusInProgress:
		if progress, ok := dep.Metadata[task.MetaProgress]; ok {
			return fmt.Sprintf("In progress (%v%% complete)", progress)
		}
		return "In progress"
	case task.StatusBlocked:
		if reason, ok := dep.Metadata[task.MetaBlockReason].(string); ok && reason != "" {
			return reason
		}
		return "Blocked by dependencies"
	case task.StatusCancelled:
		return "Task was cancelled"
	default:
		return string(dep.Status)
	}
}

func describeBlocking(blocking []BlockingDependency) string {
	parts := make([]string, 0, len(blocking))
	for _, b := range blocking {
		if b.Status == "" {
			parts = append(parts, fmt.Sprintf("%s (%s)", b.Path, b.Reason))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s [%s] (%s)", b.Path, b.Status, b.Reason))
	}
	return strings.Join(parts, ", ")
}

func joinStatuses(statuses []task.Status) string {
	parts := make([]string, len(statuses))
	for i, st := range statuses {
		parts[i] = string(st)
	}
	return strings.Join(parts, ", ")
}
