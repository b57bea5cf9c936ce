// Package engine implements the dependency validation, status transition,
// and batch execution services over a task store.
//
// Validation results are returned as data, never as errors; engine errors
// carry a Kind so callers can pattern-match instead of probing messages.
// Partially applied batches are not rolled back: the store guarantees
// per-call atomicity only, and the batch result reports per-item outcomes.
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

// Mode controls how missing or invalid dependencies affect overall
// validity.
type Mode string

const (
	// ModeStrict treats every missing, invalid, or conflicting dependency
	// as an error.
	ModeStrict Mode = "strict"
	// ModeLenient downgrades missing dependencies to warnings.
	ModeLenient Mode = "lenient"
	// ModeDeferred accepts missing dependencies entirely; used for bulk
	// creation where referenced paths may be created later in the same
	// batch. Cycles still invalidate the result.
	ModeDeferred Mode = "deferred"
)

// ParseMode normalizes a mode string.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case ModeStrict, ModeLenient, ModeDeferred:
		return m, nil
	default:
		return "", fmt.Errorf("unknown validation mode %q", s)
	}
}

// ValidationError is one structured problem found during dependency
// validation.
type ValidationError struct {
	Type       DependencyIssueType `json:"type"`
	Message    string              `json:"message"`
	Path       string              `json:"path"`
	Suggestion string              `json:"suggestion,omitempty"`
}

// ValidationDetails itemizes the findings for caller inspection, populated
// in every mode.
type ValidationDetails struct {
	MissingDependencies []string            `json:"missing_dependencies,omitempty"`
	InvalidDependencies []string            `json:"invalid_dependencies,omitempty"`
	StatusConflicts     []string            `json:"status_conflicts,omitempty"`
	Suggestions         map[string][]string `json:"suggestions,omitempty"`
}

// ValidationResult is the outcome of validating one task's dependency set.
// Created fresh per call and never persisted.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Errors   []ValidationError `json:"errors,omitempty"`
	Warnings []string          `json:"warnings,omitempty"`
	Details  ValidationDetails `json:"details"`
}

// Options carries the validator limits and toggles.
type Options struct {
	MaxDependencies     int
	SimilarityThreshold float64
	MaxSuggestions      int
	CycleDepthLimit     int
	SuggestSimilar      bool
	ValidateStatus      bool
}

// DefaultOptions returns the built-in validator limits.
func DefaultOptions() Options {
	return Options{
		MaxDependencies:     50,
		SimilarityThreshold: 0.7,
		MaxSuggestions:      3,
		CycleDepthLimit:     1000,
		SuggestSimilar:      true,
		ValidateStatus:      true,
	}
}

// Validator checks a task's declared dependencies against existence,
// status, and cycles.
type Validator struct {
	store task.Store
	opts  Options
	log   zerolog.Logger
}

// NewValidator creates a validator over the given store. Non-positive
// limits fall back field by field to the defaults; MaxSuggestions zero is
// meaningful and kept (it disables suggestions).
func NewValidator(store task.Store, opts Options) *Validator {
	def := DefaultOptions()
	if opts.MaxDependencies <= 0 {
		opts.MaxDependencies = def.MaxDependencies
	}
	if opts.CycleDepthLimit <= 0 {
		opts.CycleDepthLimit = def.CycleDepthLimit
	}
	return &Validator{
		store: store,
		opts:  opts,
		log:   logging.Component("validator"),
	}
}

// ValidateDependencies validates deps as the dependency set of t under the
// given mode. Contract violations (nil task, invalid mode, oversized
// dependency list) return an input-kind error; everything else is reported
// inside the result.
func (v *Validator) ValidateDependencies(ctx context.Context, t *task.Task, deps []string, mode Mode) (*ValidationResult, error) {
	if t == nil || t.Path == "" {
		return nil, inputErrorf("validate dependencies: task is required")
	}
	switch mode {
	case ModeStrict, ModeLenient, ModeDeferred:
	default:
		return nil, inputErrorf("validate dependencies: unknown mode %q", mode)
	}
	if len(deps) > v.opts.MaxDependencies {
		return nil, inputErrorf("validate dependencies: %d dependencies exceeds maximum of %d", len(deps), v.opts.MaxDependencies)
	}

	res := &ValidationResult{Valid: true}
	seen := make(map[string]bool, len(deps))
	var known []string // lazily fetched task paths for similarity search

	for _, dep := range deps {
		if seen[dep] {
			continue
		}
		seen[dep] = true

		if strings.TrimSpace(dep) == "" {
			res.Details.InvalidDependencies = append(res.Details.InvalidDependencies, dep)
			res.addError(ValidationError{
				Type:    DependencyInvalid,
				Message: "dependency path is empty",
				Path:    dep,
			})
			continue
		}
		if dep == t.Path {
			res.addError(ValidationError{
				Type:    DependencyCircular,
				Message: fmt.Sprintf("task %s cannot depend on itself", t.Path),
				Path:    dep,
			})
			continue
		}

		depTask, err := v.store.GetTask(ctx, dep)
		if err != nil {
			if !errors.Is(err, task.ErrNotFound) {
				return nil, executionError(err, "look up dependency %s", dep)
			}
			res.Details.MissingDependencies = append(res.Details.MissingDependencies, dep)
			var suggestion string
			if v.opts.SuggestSimilar {
				if known == nil {
					known, err = v.knownPaths(ctx)
					if err != nil {
						return nil, err
					}
				}
				matches := v.suggestSimilar(dep, known)
				if len(matches) > 0 {
					suggestion = matches[0]
					if res.Details.Suggestions == nil {
						res.Details.Suggestions = make(map[string][]string)
					}
					res.Details.Suggestions[dep] = matches
				}
			}
			switch mode {
			case ModeStrict:
				msg := fmt.Sprintf("dependency %s does not exist", dep)
				if suggestion != "" {
					msg = fmt.Sprintf("%s (did you mean %s?)", msg, suggestion)
				}
				res.addError(ValidationError{
					Type:       DependencyMissing,
					Message:    msg,
					Path:       dep,
					Suggestion: suggestion,
				})
			case ModeLenient:
				res.Warnings = append(res.Warnings, fmt.Sprintf("dependency %s does not exist and will need to be created", dep))
			case ModeDeferred:
				// Surfaced through details only.
			}
			continue
		}

		if v.opts.ValidateStatus && depTask.Status == task.StatusCancelled {
			res.Details.StatusConflicts = append(res.Details.StatusConflicts, dep)
			if mode == ModeStrict {
				res.addError(ValidationError{
					Type:    DependencyStatus,
					Message: fmt.Sprintf("cannot depend on a cancelled task: %s", dep),
					Path:    dep,
				})
			} else {
				res.Warnings = append(res.Warnings, fmt.Sprintf("dependency %s is cancelled", dep))
			}
		}

		cycle, err := v.findCycle(ctx, t.Path, dep)
		if err != nil {
			return nil, err
		}
		if cycle != nil {
			res.addError(ValidationError{
				Type:    DependencyCircular,
				Message: cycleMessage(cycle),
				Path:    dep,
			})
		}
	}

	res.Valid = resultValid(res, mode)
	return res, nil
}

func (r *ValidationResult) addError(e ValidationError) {
	r.Errors = append(r.Errors, e)
}

// resultValid applies the per-mode validity rule. Cycles invalidate the
// result in every mode.
func resultValid(res *ValidationResult, mode Mode) bool {
	if mode != ModeDeferred {
		return len(res.Errors) == 0
	}
	for _, e := range res.Errors {
		if e.Type == DependencyCircular {
			return false
		}
	}
	return true
}

func (v *Validator) knownPaths(ctx context.Context) ([]string, error) {
	all, err := v.store.GetTasksByPattern(ctx, "**")
	if err != nil {
		return nil, executionError(err, "enumerate tasks for similarity search")
	}
	paths := make([]string, 0, len(all))
	for _, t := range all {
		paths = append(paths, t.Path)
	}
	return paths, nil
}

// findCycle walks the persisted dependency graph depth-first from start,
// looking for a path back to root. The walk carries a visited set and an
// operation cap so pathological or already-cyclic data cannot stall
// validation. Returns the witness path root -> ... -> root, or nil.
func (v *Validator) findCycle(ctx context.Context, root, start string) ([]string, error) {
	type frame struct {
		path  string
		trail []string
	}
	visited := map[string]bool{}
	stack := []frame{{path: start, trail: []string{root, start}}}
	ops := 0

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[top.path] {
			continue
		}
		visited[top.path] = true

		ops++
		if ops > v.opts.CycleDepthLimit {
			v.log.Warn().
				Str("task", root).
				Int("limit", v.opts.CycleDepthLimit).
				Msg("cycle detection aborted at depth limit")
			return nil, nil
		}

		node, err := v.store.GetTask(ctx, top.path)
		if err != nil {
			if errors.Is(err, task.ErrNotFound) {
				continue
			}
			return nil, executionError(err, "walk dependency %s", top.path)
		}
		for _, next := range node.Dependencies {
			if next == root {
				return append(top.trail, root), nil
			}
			if !visited[next] {
				trail := make([]string, len(top.trail), len(top.trail)+1)
				copy(trail, top.trail)
				stack = append(stack, frame{path: next, trail: append(trail, next)})
			}
		}
	}
	return nil, nil
}
