package api

import (
	"net/http"

	"zenith-tasker/pkg/page"
)

func (s *Server) handlePageList(w http.ResponseWriter, r *http.Request) {
	pages, err := s.pages.List(r.Context(), callerID(r))
	if err != nil {
		s.fail(w, r, err, "page")
		return
	}
	s.writeJSON(w, http.StatusOK, pages)
}

func (s *Server) handlePageGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		s.writeError(w, http.StatusNotFound, "page not found")
		return
	}
	p, err := s.pages.Get(r.Context(), id, callerID(r))
	if err != nil {
		s.fail(w, r, err, "page")
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) handlePageCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	}
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	p, err := s.pages.Create(r.Context(), callerID(r), req.Title, req.Content)
	if err != nil {
		s.fail(w, r, err, "page")
		return
	}
	s.writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handlePageUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		s.writeError(w, http.StatusNotFound, "page not found")
		return
	}
	var patch page.Patch
	if err := decode(w, r, &patch); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	p, err := s.pages.Update(r.Context(), id, callerID(r), patch)
	if err != nil {
		s.fail(w, r, err, "page")
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) handlePageFavorite(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		s.writeError(w, http.StatusNotFound, "page not found")
		return
	}
	p, err := s.pages.ToggleFavorite(r.Context(), id, callerID(r))
	if err != nil {
		s.fail(w, r, err, "page")
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) handlePageDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		s.writeError(w, http.StatusNotFound, "page not found")
		return
	}
	if err := s.pages.Delete(r.Context(), id, callerID(r)); err != nil {
		s.fail(w, r, err, "page")
		return
	}
	s.writeMessage(w, "Page deleted")
}

func (s *Server) handlePageReorder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Updates []page.Order `json:"updates"`
	}
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "updates must be an array")
		return
	}
	if len(req.Updates) == 0 {
		s.writeMessage(w, "No updates needed")
		return
	}
	if err := s.pages.Reorder(r.Context(), callerID(r), req.Updates); err != nil {
		s.fail(w, r, err, "page")
		return
	}
	s.writeMessage(w, "Order updated")
}
