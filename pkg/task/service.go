package task

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Service is the user-facing task API. It checks that the caller owns a task
// before touching its subtasks, enforces the done guard, and keeps a task's
// status in step with its subtasks on toggle.
type Service struct {
	store Store
	log   *zap.Logger
}

// NewService creates a Service. A nil logger discards output.
func NewService(store Store, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, log: log}
}

func (s *Service) ListTasks(ctx context.Context, userID int64) ([]Task, error) {
	return s.store.List(ctx, userID)
}

func (s *Service) GetTask(ctx context.Context, userID, id int64) (*Task, error) {
	return s.store.Get(ctx, id, userID)
}

func (s *Service) ListTasksByPage(ctx context.Context, userID, pageID int64) ([]Task, error) {
	return s.store.ListByPage(ctx, pageID, userID)
}

func (s *Service) CreateTask(ctx context.Context, userID int64, nt NewTask) (*Task, error) {
	t, err := s.store.Create(ctx, userID, nt)
	if err != nil {
		return nil, err
	}
	s.log.Debug("task created", zap.Int64("task_id", t.ID), zap.Int64("user_id", userID))
	return t, nil
}

// UpdateTask applies p. Moving a task to done fails with
// ErrIncompleteSubtasks while any of its subtasks is open.
func (s *Service) UpdateTask(ctx context.Context, userID, id int64, p Patch) (*Task, error) {
	var updated *Task
	err := s.store.InTx(ctx, func(tx Store) error {
		if _, err := tx.Lookup(ctx, id, userID); err != nil {
			return err
		}
		if p.Status != nil && *p.Status == StatusDone {
			subs, err := tx.Subtasks(ctx, id)
			if err != nil {
				return err
			}
			if n := Incomplete(subs); n > 0 {
				s.log.Debug("done rejected",
					zap.Int64("task_id", id), zap.Int("incomplete", n))
				return ErrIncompleteSubtasks
			}
		}

		t, err := tx.Update(ctx, id, userID, p)
		if err != nil {
			return err
		}
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteTask removes a task and its subtasks.
func (s *Service) DeleteTask(ctx context.Context, userID, id int64) error {
	ok, err := s.store.Delete(ctx, id, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	s.log.Debug("task deleted", zap.Int64("task_id", id), zap.Int64("user_id", userID))
	return nil
}

func (s *Service) ReorderTasks(ctx context.Context, userID int64, orders []Order) error {
	return s.store.Reorder(ctx, userID, orders)
}

// ListSubtasks returns the checklist of a task the caller owns.
func (s *Service) ListSubtasks(ctx context.Context, userID, taskID int64) ([]Subtask, error) {
	if _, err := s.store.Lookup(ctx, taskID, userID); err != nil {
		return nil, err
	}
	return s.store.Subtasks(ctx, taskID)
}

func (s *Service) CreateSubtask(ctx context.Context, userID, taskID int64, title string, orderIndex int) (*Subtask, error) {
	if _, err := s.store.Lookup(ctx, taskID, userID); err != nil {
		return nil, err
	}
	return s.store.CreateSubtask(ctx, taskID, title, orderIndex)
}

// UpdateSubtask edits a subtask without recomputing the parent status.
func (s *Service) UpdateSubtask(ctx context.Context, userID, taskID, subtaskID int64, p SubtaskPatch) (*Subtask, error) {
	if _, err := s.store.Lookup(ctx, taskID, userID); err != nil {
		return nil, err
	}
	return s.store.UpdateSubtask(ctx, taskID, subtaskID, p)
}

// ToggleSubtask flips a subtask and recomputes its task's status in the same
// transaction. It returns the subtask and the task status afterwards.
func (s *Service) ToggleSubtask(ctx context.Context, userID, taskID, subtaskID int64) (*Subtask, Status, error) {
	var (
		sub    *Subtask
		status Status
	)
	err := s.store.InTx(ctx, func(tx Store) error {
		current, err := tx.Lookup(ctx, taskID, userID)
		if err != nil {
			return err
		}
		if sub, err = tx.ToggleSubtask(ctx, taskID, subtaskID); err != nil {
			return err
		}
		subs, err := tx.Subtasks(ctx, taskID)
		if err != nil {
			return err
		}

		status = RecomputeStatus(current, subs)
		if status == current {
			return nil
		}
		if err := tx.SetStatus(ctx, taskID, userID, status); err != nil {
			return err
		}
		s.log.Debug("task status derived",
			zap.Int64("task_id", taskID),
			zap.String("from", string(current)),
			zap.String("to", string(status)))
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return sub, status, nil
}

func (s *Service) DeleteSubtask(ctx context.Context, userID, taskID, subtaskID int64) error {
	if _, err := s.store.Lookup(ctx, taskID, userID); err != nil {
		return err
	}
	ok, err := s.store.DeleteSubtask(ctx, taskID, subtaskID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// IsClientError reports whether err is caused by the request rather than the
// server.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrIncompleteSubtasks)
}
