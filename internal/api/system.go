package api

import (
	"net/http"

	"go.uber.org/zap"

	"zenith-tasker/internal/logging"
)

func (s *Server) handleBanner(w http.ResponseWriter, r *http.Request) {
	s.writeMessage(w, "Zenith Tasker API is running")
}

// handleHealth reports ok only if the database answers.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	now, err := s.db.Now(r.Context())
	if err != nil {
		s.log.Warn("health check failed", append(logging.ContextFields(r.Context()), zap.Error(err))...)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status":  "error",
			"message": "database unavailable",
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "db_time": now})
}
