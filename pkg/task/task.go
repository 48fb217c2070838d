package task

import (
	"context"
	"errors"
	"time"
)

// Status is a task's workflow state. Any state may follow any other, except
// that done requires every subtask to be completed.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// Priority ranks a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

var (
	// ErrNotFound covers both a missing row and one owned by another user.
	// Callers must not be able to tell the two apart.
	ErrNotFound = errors.New("not found")

	// ErrValidation wraps every rejected input.
	ErrValidation = errors.New("validation failed")

	// ErrIncompleteSubtasks rejects status=done while a subtask is open.
	ErrIncompleteSubtasks = errors.New("cannot mark task done while subtasks are incomplete")
)

// Task is a to-do item owned by one user.
type Task struct {
	ID          int64      `json:"id" db:"id"`
	UserID      int64      `json:"user_id" db:"user_id"`
	PageID      *int64     `json:"page_id" db:"page_id"`
	PageTitle   *string    `json:"page_title" db:"page_title"` // title of the linked page, if any
	Title       string     `json:"title" db:"title"`
	Description *string    `json:"description" db:"description"`
	Status      Status     `json:"status" db:"status"`
	Priority    Priority   `json:"priority" db:"priority"`
	DueDate     *time.Time `json:"due_date" db:"due_date"`
	Category    *string    `json:"category" db:"category"`
	OrderIndex  int        `json:"order_index" db:"order_index"` // manual sort position, not unique
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`

	Subtasks []Subtask `json:"subtasks" db:"-"`
}

// Subtask is a checklist entry. It has no owner of its own: access goes
// through its parent task.
type Subtask struct {
	ID         int64     `json:"id" db:"id"`
	TaskID     int64     `json:"task_id" db:"task_id"`
	Title      string    `json:"title" db:"title"`
	Completed  bool      `json:"completed" db:"completed"`
	OrderIndex int       `json:"order_index" db:"order_index"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// NewTask holds the fields accepted on create. Zero values take defaults:
// status todo, priority medium, no page.
type NewTask struct {
	Title       string
	Description *string
	Status      Status
	Priority    Priority
	DueDate     *time.Time
	Category    *string
	PageID      *int64
}

// Patch is a partial task update. A nil pointer keeps the stored value,
// except DueDate and PageID which are always written: nil clears the due
// date and unlinks the page.
type Patch struct {
	Title       *string
	Description *string
	Status      *Status
	Priority    *Priority
	Category    *string
	OrderIndex  *int
	DueDate     *time.Time
	PageID      *int64
}

// SubtaskPatch is a partial subtask update; nil fields keep their value.
type SubtaskPatch struct {
	Title      *string `json:"title"`
	Completed  *bool   `json:"completed"`
	OrderIndex *int    `json:"order_index"`
}

// Order moves one task to a new order_index.
type Order struct {
	ID         int64 `json:"id"`
	OrderIndex int   `json:"order_index"`
}

// Store is the contract for task and subtask persistence.
//
// Task methods are scoped by owner. Subtask methods are scoped only by the
// parent task id: they trust that the caller has already checked the parent
// belongs to the requesting user (see Service). Never expose them directly
// to untrusted input.
type Store interface {
	List(ctx context.Context, userID int64) ([]Task, error)
	Get(ctx context.Context, id, userID int64) (*Task, error)
	ListByPage(ctx context.Context, pageID, userID int64) ([]Task, error)
	Create(ctx context.Context, userID int64, nt NewTask) (*Task, error)
	Update(ctx context.Context, id, userID int64, p Patch) (*Task, error)
	Delete(ctx context.Context, id, userID int64) (bool, error)
	// Reorder applies each entry independently; entries for tasks the user
	// does not own change nothing and are not an error.
	Reorder(ctx context.Context, userID int64, orders []Order) error

	// Lookup returns the task's status if userID owns it. Inside InTx the
	// row is locked until the transaction ends.
	Lookup(ctx context.Context, id, userID int64) (Status, error)
	SetStatus(ctx context.Context, id, userID int64, status Status) error

	Subtasks(ctx context.Context, taskID int64) ([]Subtask, error)
	CreateSubtask(ctx context.Context, taskID int64, title string, orderIndex int) (*Subtask, error)
	UpdateSubtask(ctx context.Context, taskID, subtaskID int64, p SubtaskPatch) (*Subtask, error)
	// ToggleSubtask flips completed relative to the stored value.
	ToggleSubtask(ctx context.Context, taskID, subtaskID int64) (*Subtask, error)
	DeleteSubtask(ctx context.Context, taskID, subtaskID int64) (bool, error)

	// InTx runs fn against a Store bound to one transaction.
	InTx(ctx context.Context, fn func(Store) error) error
}
