package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// SQLStore is the SQLite-backed Store.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a store over an open database handle.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

const taskColumns = `path, title, status, dependencies_json, metadata_json, created_at, updated_at`

func scanTask(row interface{ Scan(...any) error }) (*Task, error) {
	var t Task
	var depsJSON, metaJSON string
	if err := row.Scan(&t.Path, &t.Title, &t.Status, &depsJSON, &metaJSON, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(depsJSON), &t.Dependencies); err != nil {
		return nil, fmt.Errorf("parse dependencies: %w", err)
	}
	if err := json.Unmarshal([]byte(metaJSON), &t.Metadata); err != nil {
		return nil, fmt.Errorf("parse metadata: %w", err)
	}
	return &t, nil
}

// GetTask fetches a task by path.
func (s *SQLStore) GetTask(ctx context.Context, taskPath string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE path=?`, taskPath)
	t, err := scanTask(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("get task %s: %w", taskPath, ErrNotFound)
		}
		return nil, fmt.Errorf("read task: %w", err)
	}
	return t, nil
}

// GetTasksByPattern returns matching tasks ordered by path. Rows are
// filtered in Go because the pattern grammar is segment-based, not SQL LIKE.
func (s *SQLStore) GetTasksByPattern(ctx context.Context, pattern string) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()
	var out []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		if MatchPattern(pattern, t.Path) {
			out = append(out, t)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return out, nil
}

// CreateTask inserts a new task.
func (s *SQLStore) CreateTask(ctx context.Context, t *Task) error {
	if t == nil || t.Path == "" {
		return fmt.Errorf("create task: path is required")
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
	depsJSON, metaJSON, err := encodeTask(stored)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES(?, ?, ?, ?, ?, ?, ?)`,
		stored.Path, stored.Title, stored.Status, depsJSON, metaJSON, stored.CreatedAt, stored.UpdatedAt); err != nil {
		return fmt.Errorf("insert task %s: %w", stored.Path, err)
	}
	return nil
}

// UpdateTask applies a partial update in one transaction and returns the
// updated record.
func (s *SQLStore) UpdateTask(ctx context.Context, taskPath string, update Update) (*Task, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin update task: %w", err)
	}
	row := tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE path=?`, taskPath)
	t, err := scanTask(row)
	if err != nil {
		_ = tx.Rollback()
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("update task %s: %w", taskPath, ErrNotFound)
		}
		return nil, fmt.Errorf("read task: %w", err)
	}
	update.Apply(t)
	depsJSON, metaJSON, err := encodeTask(t)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE tasks SET title=?, status=?, dependencies_json=?, metadata_json=?, updated_at=? WHERE path=?`,
		t.Title, t.Status, depsJSON, metaJSON, t.UpdatedAt, t.Path); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("update task %s: %w", taskPath, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update task: %w", err)
	}
	return t, nil
}

// DeleteTask removes a task by path.
func (s *SQLStore) DeleteTask(ctx context.Context, taskPath string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE path=?`, taskPath)
	if err != nil {
		return fmt.Errorf("delete task %s: %w", taskPath, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("delete task %s: %w", taskPath, ErrNotFound)
	}
	return nil
}

func encodeTask(t *Task) (string, string, error) {
	deps := t.Dependencies
	if deps == nil {
		deps = []string{}
	}
	depsJSON, err := json.Marshal(deps)
	if err != nil {
		return "", "", fmt.Errorf("marshal dependencies: %w", err)
	}
	meta := t.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return "", "", fmt.Errorf("marshal metadata: %w", err)
	}
	return string(depsJSON), string(metaJSON), nil
}
