package api

import (
	"net/http"
	"strings"

	"zenith-tasker/pkg/task"
)

// toggleResponse is a subtask plus its task's status after the toggle.
type toggleResponse struct {
	task.Subtask
	TaskStatus task.Status `json:"task_status"`
}

func (s *Server) handleSubtaskList(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathID(r, "first")
	if !ok {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}
	subs, err := s.tasks.ListSubtasks(r.Context(), callerID(r), taskID)
	if err != nil {
		s.fail(w, r, err, "task")
		return
	}
	s.writeJSON(w, http.StatusOK, subs)
}

func (s *Server) handleSubtaskCreate(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathID(r, "taskId")
	if !ok {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}
	var req struct {
		Title      string `json:"title"`
		OrderIndex int    `json:"order_index"`
	}
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		s.writeError(w, http.StatusBadRequest, "Title is required")
		return
	}

	sub, err := s.tasks.CreateSubtask(r.Context(), callerID(r), taskID, req.Title, req.OrderIndex)
	if err != nil {
		s.fail(w, r, err, "task")
		return
	}
	s.writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleSubtaskUpdate(w http.ResponseWriter, r *http.Request) {
	taskID, ok1 := pathID(r, "taskId")
	subtaskID, ok2 := pathID(r, "subtaskId")
	if !ok1 || !ok2 {
		s.writeError(w, http.StatusNotFound, "subtask not found")
		return
	}
	var p task.SubtaskPatch
	if err := decode(w, r, &p); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	sub, err := s.tasks.UpdateSubtask(r.Context(), callerID(r), taskID, subtaskID, p)
	if err != nil {
		s.fail(w, r, err, "subtask")
		return
	}
	s.writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleSubtaskToggle(w http.ResponseWriter, r *http.Request) {
	taskID, ok1 := pathID(r, "taskId")
	subtaskID, ok2 := pathID(r, "subtaskId")
	if !ok1 || !ok2 {
		s.writeError(w, http.StatusNotFound, "subtask not found")
		return
	}

	sub, status, err := s.tasks.ToggleSubtask(r.Context(), callerID(r), taskID, subtaskID)
	if err != nil {
		s.fail(w, r, err, "subtask")
		return
	}
	s.writeJSON(w, http.StatusOK, toggleResponse{Subtask: *sub, TaskStatus: status})
}

func (s *Server) handleSubtaskDelete(w http.ResponseWriter, r *http.Request) {
	taskID, ok1 := pathID(r, "taskId")
	subtaskID, ok2 := pathID(r, "subtaskId")
	if !ok1 || !ok2 {
		s.writeError(w, http.StatusNotFound, "subtask not found")
		return
	}
	if err := s.tasks.DeleteSubtask(r.Context(), callerID(r), taskID, subtaskID); err != nil {
		s.fail(w, r, err, "subtask")
		return
	}
	s.writeMessage(w, "Subtask deleted")
}
