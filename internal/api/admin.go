package api

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"zenith-tasker/internal/logging"
	"zenith-tasker/pkg/user"
)

func (s *Server) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.List(r.Context())
	if err != nil {
		s.fail(w, r, err, "user")
		return
	}
	s.writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleAdminUserGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		s.writeError(w, http.StatusNotFound, "user not found")
		return
	}
	u, err := s.users.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err, "user")
		return
	}
	allowed, err := s.users.ResetAllowed(r.Context(), id)
	if err != nil {
		s.fail(w, r, err, "user")
		return
	}
	s.writeJSON(w, http.StatusOK, struct {
		*user.User
		ResetAllowed bool `json:"reset_allowed"`
	}{u, allowed})
}

// handleAllowReset opens a passwordless reset window, 24 hours unless the
// body says otherwise.
func (s *Server) handleAllowReset(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		s.writeError(w, http.StatusNotFound, "user not found")
		return
	}
	var req struct {
		Hours int `json:"hours"`
	}
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	u, err := s.users.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err, "user")
		return
	}
	until, err := s.users.AllowReset(r.Context(), id, req.Hours)
	if err != nil {
		s.fail(w, r, err, "user")
		return
	}

	s.log.Info("reset window opened", append(logging.ContextFields(r.Context()),
		zap.Int64("admin_id", callerID(r)),
		zap.Int64("user_id", id),
		zap.Time("until", until))...)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"message":   fmt.Sprintf("Password reset enabled for %s until %s", u.Username, until.UTC().Format(time.RFC3339)),
		"expiresAt": until,
	})
}

func (s *Server) handleRevokeReset(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		s.writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if err := s.users.RevokeReset(r.Context(), id); err != nil {
		s.fail(w, r, err, "user")
		return
	}
	s.writeMessage(w, "Password reset permission revoked")
}
