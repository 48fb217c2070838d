package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"zenith-tasker/pkg/task"
)

// taskRequest is the JSON body of task create and update.
type taskRequest struct {
	Title       *string        `json:"title"`
	Description *string        `json:"description"`
	Status      *task.Status   `json:"status"`
	Priority    *task.Priority `json:"priority"`
	DueDate     *string        `json:"due_date"`
	Category    *string        `json:"category"`
	OrderIndex  *int           `json:"order_index"`
	PageID      *int64         `json:"page_id"`
}

// dueDate accepts RFC 3339 timestamps or plain dates. Empty means none.
func (req taskRequest) dueDate() (*time.Time, error) {
	if req.DueDate == nil || strings.TrimSpace(*req.DueDate) == "" {
		return nil, nil
	}
	raw := strings.TrimSpace(*req.DueDate)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, errBadDueDate
}

var errBadDueDate = errors.New("due_date must be an RFC 3339 timestamp or YYYY-MM-DD")

func (s *Server) handleTaskList(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.tasks.ListTasks(r.Context(), callerID(r))
	if err != nil {
		s.fail(w, r, err, "task")
		return
	}
	s.writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleTaskGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}
	t, err := s.tasks.GetTask(r.Context(), callerID(r), id)
	if err != nil {
		s.fail(w, r, err, "task")
		return
	}
	s.writeJSON(w, http.StatusOK, t)
}

// handleTaskCollection serves GET /tasks/page/{pageId} and
// GET /tasks/{taskId}/subtasks.
func (s *Server) handleTaskCollection(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.PathValue("first") == "page":
		s.handleTaskListByPage(w, r)
	case r.PathValue("second") == "subtasks":
		s.handleSubtaskList(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleTaskListByPage(w http.ResponseWriter, r *http.Request) {
	pageID, ok := pathID(r, "second")
	if !ok {
		s.writeError(w, http.StatusNotFound, "page not found")
		return
	}
	tasks, err := s.tasks.ListTasksByPage(r.Context(), callerID(r), pageID)
	if err != nil {
		s.fail(w, r, err, "page")
		return
	}
	s.writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleTaskCreate(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Title == nil || strings.TrimSpace(*req.Title) == "" {
		s.writeError(w, http.StatusBadRequest, "Title is required")
		return
	}
	due, err := req.dueDate()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	nt := task.NewTask{
		Title:       *req.Title,
		Description: req.Description,
		DueDate:     due,
		Category:    req.Category,
		PageID:      req.PageID,
	}
	if req.Status != nil {
		nt.Status = *req.Status
	}
	if req.Priority != nil {
		nt.Priority = *req.Priority
	}

	t, err := s.tasks.CreateTask(r.Context(), callerID(r), nt)
	if err != nil {
		s.fail(w, r, err, "task")
		return
	}
	s.writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleTaskUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}
	var req taskRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	due, err := req.dueDate()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	t, err := s.tasks.UpdateTask(r.Context(), callerID(r), id, task.Patch{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
		Category:    req.Category,
		OrderIndex:  req.OrderIndex,
		DueDate:     due,
		PageID:      req.PageID,
	})
	if err != nil {
		s.fail(w, r, err, "task")
		return
	}
	s.writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleTaskDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if err := s.tasks.DeleteTask(r.Context(), callerID(r), id); err != nil {
		s.fail(w, r, err, "task")
		return
	}
	s.writeMessage(w, "Task deleted")
}

func (s *Server) handleTaskReorder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TaskOrders *[]task.Order `json:"taskOrders"`
	}
	if err := decode(w, r, &req); err != nil || req.TaskOrders == nil {
		s.writeError(w, http.StatusBadRequest, "taskOrders must be an array")
		return
	}
	if err := s.tasks.ReorderTasks(r.Context(), callerID(r), *req.TaskOrders); err != nil {
		s.fail(w, r, err, "task")
		return
	}
	s.writeMessage(w, "Tasks reordered")
}
