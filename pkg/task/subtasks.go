package task

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"zenith-tasker/internal/db"
)

const subtaskColumns = `id, task_id, title, completed, order_index, created_at`

const subtaskOrder = ` ORDER BY order_index ASC, created_at ASC, id ASC`

// Subtasks returns a task's checklist in display order.
func (s *SQLStore) Subtasks(ctx context.Context, taskID int64) ([]Subtask, error) {
	subs := []Subtask{}
	err := sqlx.SelectContext(ctx, s.q, &subs,
		s.q.Rebind(`SELECT `+subtaskColumns+` FROM subtasks WHERE task_id = ?`+subtaskOrder), taskID)
	if err != nil {
		return nil, fmt.Errorf("list subtasks of task %d: %w", taskID, err)
	}
	return subs, nil
}

// CreateSubtask adds an open subtask to taskID.
func (s *SQLStore) CreateSubtask(ctx context.Context, taskID int64, title string, orderIndex int) (*Subtask, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}

	var id int64
	err := s.q.QueryRowxContext(ctx, s.q.Rebind(`
		INSERT INTO subtasks (task_id, title, completed, order_index, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`),
		taskID, title, false, orderIndex, db.Timestamp(s.now())).
		Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("create subtask: %w", err)
	}
	return s.subtask(ctx, taskID, id)
}

// UpdateSubtask applies p. An empty patch returns the stored subtask.
func (s *SQLStore) UpdateSubtask(ctx context.Context, taskID, subtaskID int64, p SubtaskPatch) (*Subtask, error) {
	var set []string
	var args []any
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: title is required", ErrValidation)
		}
		set = append(set, "title = ?")
		args = append(args, title)
	}
	if p.Completed != nil {
		set = append(set, "completed = ?")
		args = append(args, *p.Completed)
	}
	if p.OrderIndex != nil {
		set = append(set, "order_index = ?")
		args = append(args, *p.OrderIndex)
	}
	if len(set) == 0 {
		return s.subtask(ctx, taskID, subtaskID)
	}
	args = append(args, subtaskID, taskID)

	query := fmt.Sprintf("UPDATE subtasks SET %s WHERE id = ? AND task_id = ?", strings.Join(set, ", "))
	res, err := s.q.ExecContext(ctx, s.q.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("update subtask %d: %w", subtaskID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.subtask(ctx, taskID, subtaskID)
}

// ToggleSubtask flips completed in place.
func (s *SQLStore) ToggleSubtask(ctx context.Context, taskID, subtaskID int64) (*Subtask, error) {
	res, err := s.q.ExecContext(ctx,
		s.q.Rebind(`UPDATE subtasks SET completed = NOT completed WHERE id = ? AND task_id = ?`),
		subtaskID, taskID)
	if err != nil {
		return nil, fmt.Errorf("toggle subtask %d: %w", subtaskID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.subtask(ctx, taskID, subtaskID)
}

// DeleteSubtask removes one subtask of taskID.
func (s *SQLStore) DeleteSubtask(ctx context.Context, taskID, subtaskID int64) (bool, error) {
	res, err := s.q.ExecContext(ctx,
		s.q.Rebind(`DELETE FROM subtasks WHERE id = ? AND task_id = ?`), subtaskID, taskID)
	if err != nil {
		return false, fmt.Errorf("delete subtask %d: %w", subtaskID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *SQLStore) subtask(ctx context.Context, taskID, subtaskID int64) (*Subtask, error) {
	var sub Subtask
	err := sqlx.GetContext(ctx, s.q, &sub,
		s.q.Rebind(`SELECT `+subtaskColumns+` FROM subtasks WHERE id = ? AND task_id = ?`), subtaskID, taskID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subtask %d: %w", subtaskID, err)
	}
	return &sub, nil
}
