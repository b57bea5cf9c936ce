package task

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemStore is an in-memory Store for tests and ephemeral runs.
type MemStore struct {
	mu    sync.Mutex
	tasks map[string]*Task
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{tasks: make(map[string]*Task)}
}

// GetTask fetches a task by path.
func (s *MemStore) GetTask(_ context.Context, taskPath string) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskPath]
	if !ok {
		return nil, fmt.Errorf("get task %s: %w", taskPath, ErrNotFound)
	}
	return t.Clone(), nil
}

// GetTasksByPattern returns matching tasks ordered by path.
func (s *MemStore) GetTasksByPattern(_ context.Context, pattern string) ([]*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Task
	for p, t := range s.tasks {
		if MatchPattern(pattern, p) {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// CreateTask inserts a new task.
func (s *MemStore) CreateTask(_ context.Context, t *Task) error {
	if t == nil || t.Path == "" {
		return fmt.Errorf("create task: path is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[t.Path]; ok {
		return fmt.Errorf("create task %s: already exists", t.Path)
	}
	stored := t.Clone()
	if stored.Status == "" {
		stored.Status = StatusPending
	}
	now := Now()
	if stored.CreatedAt == "" {
		stored.CreatedAt = now
	}
	if stored.UpdatedAt == "" {
		stored.UpdatedAt = now
	}
	s.tasks[stored.Path] = stored
	return nil
}

// UpdateTask applies a partial update and returns the updated record.
func (s *MemStore) UpdateTask(_ context.Context, taskPath string, update Update) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskPath]
	if !ok {
		return nil, fmt.Errorf("update task %s: %w", taskPath, ErrNotFound)
	}
	update.Apply(t)
	return t.Clone(), nil
}

// DeleteTask removes a task by path.
func (s *MemStore) DeleteTask(_ context.Context, taskPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[taskPath]; !ok {
		return fmt.Errorf("delete task %s: %w", taskPath, ErrNotFound)
	}
	delete(s.tasks, taskPath)
	return nil
}
