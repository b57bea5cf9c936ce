package task

import (
	"context"
	"errors"
	"path"
	"strings"
)

// ErrNotFound is returned by stores when a path has no task.
var ErrNotFound = errors.New("task not found")

// Store is the persistence contract the engine consumes. Implementations
// guarantee per-call atomicity only; no cross-call transactions.
type Store interface {
	// GetTask fetches a task by path. Missing tasks return ErrNotFound.
	GetTask(ctx context.Context, taskPath string) (*Task, error)
	// GetTasksByPattern returns tasks whose path matches the pattern,
	// ordered by path. See MatchPattern for the pattern grammar.
	GetTasksByPattern(ctx context.Context, pattern string) ([]*Task, error)
	// CreateTask inserts a new task. The path must be unused.
	CreateTask(ctx context.Context, t *Task) error
	// UpdateTask applies a partial update and returns the updated record.
	UpdateTask(ctx context.Context, taskPath string, update Update) (*Task, error)
	// DeleteTask removes a task by path.
	DeleteTask(ctx context.Context, taskPath string) error
}

// MatchPattern reports whether taskPath matches pattern. An empty pattern or
// "**" matches everything, a trailing "/**" matches the subtree under the
// prefix, and "*" matches a single segment.
func MatchPattern(pattern, taskPath string) bool {
	if pattern == "" || pattern == "**" {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, "/**"); ok {
		return taskPath == prefix || strings.HasPrefix(taskPath, prefix+"/")
	}
	patSegs := strings.Split(pattern, "/")
	pathSegs := strings.Split(taskPath, "/")
	if len(patSegs) != len(pathSegs) {
		return false
	}
	for i, seg := range patSegs {
		ok, err := path.Match(seg, pathSegs[i])
		if err != nil || !ok {
			return false
		}
	}
	return true
}

// Dependents returns the paths of tasks that declare taskPath as a
// dependency.
func Dependents(ctx context.Context, store Store, taskPath string) ([]string, error) {
	all, err := store.GetTasksByPattern(ctx, "**")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, t := range all {
		for _, dep := range t.Dependencies {
			if dep == taskPath {
				out = append(out, t.Path)
				break
			}
		}
	}
	return out, nil
}
