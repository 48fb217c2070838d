package task

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"zenith-tasker/internal/db"
)

const taskSelect = `
	SELECT t.id, t.user_id, t.page_id, p.title AS page_title, t.title, t.description,
		t.status, t.priority, t.due_date, t.category, t.order_index, t.created_at, t.updated_at
	FROM tasks t
	LEFT JOIN pages p ON p.id = t.page_id`

const taskOrder = ` ORDER BY t.order_index ASC, t.created_at DESC, t.id DESC`

// SQLStore is a relational Store. The zero transaction state runs each
// call on the pool; InTx hands out copies bound to a transaction.
type SQLStore struct {
	db   *db.DB
	q    sqlx.ExtContext
	inTx bool
	now  func() time.Time
}

// NewSQLStore creates a SQLStore.
func NewSQLStore(d *db.DB) *SQLStore {
	return &SQLStore{db: d, q: d, now: time.Now}
}

// InTx runs fn in a transaction. Nested calls reuse the outer transaction.
func (s *SQLStore) InTx(ctx context.Context, fn func(Store) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&SQLStore{db: s.db, q: tx, inTx: true, now: s.now}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// List returns every task of userID with page titles and subtasks.
func (s *SQLStore) List(ctx context.Context, userID int64) ([]Task, error) {
	tasks, err := s.selectTasks(ctx, taskSelect+` WHERE t.user_id = ?`+taskOrder, userID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// Get returns one task owned by userID.
func (s *SQLStore) Get(ctx context.Context, id, userID int64) (*Task, error) {
	var t Task
	err := sqlx.GetContext(ctx, s.q, &t, s.q.Rebind(taskSelect+` WHERE t.id = ? AND t.user_id = ?`), id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task %d: %w", id, err)
	}

	one := []Task{t}
	if err := s.attachSubtasks(ctx, one); err != nil {
		return nil, err
	}
	return &one[0], nil
}

// ListByPage returns the tasks of userID linked to pageID.
func (s *SQLStore) ListByPage(ctx context.Context, pageID, userID int64) ([]Task, error) {
	tasks, err := s.selectTasks(ctx, taskSelect+` WHERE t.page_id = ? AND t.user_id = ?`+taskOrder, pageID, userID)
	if err != nil {
		return nil, fmt.Errorf("list tasks for page %d: %w", pageID, err)
	}
	return tasks, nil
}

// Create inserts a task. The title is trimmed and required.
func (s *SQLStore) Create(ctx context.Context, userID int64, nt NewTask) (*Task, error) {
	nt.Title = strings.TrimSpace(nt.Title)
	if nt.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if nt.Status == "" {
		nt.Status = StatusTodo
	}
	if !nt.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, nt.Status)
	}
	if nt.Priority == "" {
		nt.Priority = PriorityMedium
	}
	if !nt.Priority.Valid() {
		return nil, fmt.Errorf("%w: unknown priority %q", ErrValidation, nt.Priority)
	}
	pageID := nilIfZero(nt.PageID)
	if err := s.checkPage(ctx, pageID, userID); err != nil {
		return nil, err
	}

	now := db.Timestamp(s.now())
	var id int64
	err := s.q.QueryRowxContext(ctx, s.q.Rebind(`
		INSERT INTO tasks (user_id, page_id, title, description, status, priority, due_date, category, order_index, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
		RETURNING id`),
		userID, pageID, nt.Title, nilIfEmpty(nt.Description), nt.Status, nt.Priority,
		timestampPtr(nt.DueDate), nilIfEmpty(nt.Category), now, now).
		Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return s.Get(ctx, id, userID)
}

// Update applies p to a task owned by userID and refreshes updated_at.
func (s *SQLStore) Update(ctx context.Context, id, userID int64, p Patch) (*Task, error) {
	pageID := nilIfZero(p.PageID)
	set := []string{"updated_at = ?", "due_date = ?", "page_id = ?"}
	args := []any{db.Timestamp(s.now()), timestampPtr(p.DueDate), pageID}

	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: title is required", ErrValidation)
		}
		set = append(set, "title = ?")
		args = append(args, title)
	}
	if p.Description != nil {
		set = append(set, "description = ?")
		args = append(args, nilIfEmpty(p.Description))
	}
	if p.Status != nil {
		if !p.Status.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, *p.Status)
		}
		set = append(set, "status = ?")
		args = append(args, *p.Status)
	}
	if p.Priority != nil {
		if !p.Priority.Valid() {
			return nil, fmt.Errorf("%w: unknown priority %q", ErrValidation, *p.Priority)
		}
		set = append(set, "priority = ?")
		args = append(args, *p.Priority)
	}
	if p.Category != nil {
		set = append(set, "category = ?")
		args = append(args, nilIfEmpty(p.Category))
	}
	if p.OrderIndex != nil {
		set = append(set, "order_index = ?")
		args = append(args, *p.OrderIndex)
	}
	if err := s.checkPage(ctx, pageID, userID); err != nil {
		return nil, err
	}
	args = append(args, id, userID)

	query := fmt.Sprintf("UPDATE tasks SET %s WHERE id = ? AND user_id = ?", strings.Join(set, ", "))
	res, err := s.q.ExecContext(ctx, s.q.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("update task %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, id, userID)
}

// Delete removes a task and, through the foreign key, its subtasks.
func (s *SQLStore) Delete(ctx context.Context, id, userID int64) (bool, error) {
	res, err := s.q.ExecContext(ctx, s.q.Rebind(`DELETE FROM tasks WHERE id = ? AND user_id = ?`), id, userID)
	if err != nil {
		return false, fmt.Errorf("delete task %d: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Reorder updates order_index one row at a time. There is no transaction:
// concurrent batches interleave, last write wins per row.
func (s *SQLStore) Reorder(ctx context.Context, userID int64, orders []Order) error {
	query := s.q.Rebind(`UPDATE tasks SET order_index = ? WHERE id = ? AND user_id = ?`)
	for _, o := range orders {
		if _, err := s.q.ExecContext(ctx, query, o.OrderIndex, o.ID, userID); err != nil {
			return fmt.Errorf("reorder task %d: %w", o.ID, err)
		}
	}
	return nil
}

// Lookup returns the status of a task owned by userID.
func (s *SQLStore) Lookup(ctx context.Context, id, userID int64) (Status, error) {
	query := `SELECT status FROM tasks WHERE id = ? AND user_id = ?`
	if s.inTx {
		query += s.db.Dialect.LockClause()
	}

	var status Status
	err := sqlx.GetContext(ctx, s.q, &status, s.q.Rebind(query), id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup task %d: %w", id, err)
	}
	return status, nil
}

// SetStatus writes a task's status without touching other fields.
func (s *SQLStore) SetStatus(ctx context.Context, id, userID int64, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}
	res, err := s.q.ExecContext(ctx, s.q.Rebind(`
		UPDATE tasks SET status = ?, updated_at = ? WHERE id = ? AND user_id = ?`),
		status, db.Timestamp(s.now()), id, userID)
	if err != nil {
		return fmt.Errorf("set status of task %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) selectTasks(ctx context.Context, query string, args ...any) ([]Task, error) {
	tasks := []Task{}
	if err := sqlx.SelectContext(ctx, s.q, &tasks, s.q.Rebind(query), args...); err != nil {
		return nil, err
	}
	if err := s.attachSubtasks(ctx, tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// attachSubtasks loads the subtasks of every task in one query.
func (s *SQLStore) attachSubtasks(ctx context.Context, tasks []Task) error {
	if len(tasks) == 0 {
		return nil
	}
	ids := make([]int64, len(tasks))
	for i := range tasks {
		ids[i] = tasks[i].ID
		tasks[i].Subtasks = []Subtask{}
	}

	query, args, err := sqlx.In(`SELECT `+subtaskColumns+` FROM subtasks WHERE task_id IN (?)`+subtaskOrder, ids)
	if err != nil {
		return fmt.Errorf("build subtask query: %w", err)
	}
	var subs []Subtask
	if err := sqlx.SelectContext(ctx, s.q, &subs, s.q.Rebind(query), args...); err != nil {
		return fmt.Errorf("load subtasks: %w", err)
	}

	byTask := make(map[int64]int, len(tasks))
	for i := range tasks {
		byTask[tasks[i].ID] = i
	}
	for _, sub := range subs {
		if i, ok := byTask[sub.TaskID]; ok {
			tasks[i].Subtasks = append(tasks[i].Subtasks, sub)
		}
	}
	return nil
}

// checkPage rejects links to pages the user does not own.
func (s *SQLStore) checkPage(ctx context.Context, pageID *int64, userID int64) error {
	if pageID == nil {
		return nil
	}
	var n int
	err := sqlx.GetContext(ctx, s.q, &n, s.q.Rebind(`SELECT COUNT(*) FROM pages WHERE id = ? AND user_id = ?`), *pageID, userID)
	if err != nil {
		return fmt.Errorf("check page %d: %w", *pageID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: page not found", ErrValidation)
	}
	return nil
}

func nilIfEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

func nilIfZero(id *int64) *int64 {
	if id == nil || *id == 0 {
		return nil
	}
	return id
}

func timestampPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	ts := db.Timestamp(*t)
	return &ts
}
