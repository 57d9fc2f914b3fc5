package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"catalog/taxonomy/internal/domain"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"
)

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.Tree(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.treeView(snap))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.service.Refresh()

	snap, err := s.service.Tree(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.treeView(snap))
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var in domain.CategoryInput
	if !decode(w, r, &in) {
		return
	}
	rec, err := s.service.CreateCategory(r.Context(), in)
	writeRecord(w, http.StatusCreated, rec, err)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var in domain.CategoryInput
	if !decode(w, r, &in) {
		return
	}
	rec, err := s.service.UpdateCategory(r.Context(), chi.URLParam(r, "id"), in)
	writeRecord(w, http.StatusOK, rec, err)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	writeDeleted(w, s.service.DeleteCategory(r.Context(), chi.URLParam(r, "id")))
}

func (s *Server) handleToggleCategoryStatus(w http.ResponseWriter, r *http.Request) {
	rec, err := s.service.ToggleCategoryStatus(r.Context(), chi.URLParam(r, "id"))
	writeRecord(w, http.StatusOK, rec, err)
}

func (s *Server) handleCreateSubcategory(w http.ResponseWriter, r *http.Request) {
	var in domain.SubcategoryInput
	if !decode(w, r, &in) {
		return
	}
	rec, err := s.service.CreateSubcategory(r.Context(), in)
	writeRecord(w, http.StatusCreated, rec, err)
}

func (s *Server) handleUpdateSubcategory(w http.ResponseWriter, r *http.Request) {
	var in domain.SubcategoryInput
	if !decode(w, r, &in) {
		return
	}
	rec, err := s.service.UpdateSubcategory(r.Context(), chi.URLParam(r, "id"), in)
	writeRecord(w, http.StatusOK, rec, err)
}

func (s *Server) handleDeleteSubcategory(w http.ResponseWriter, r *http.Request) {
	writeDeleted(w, s.service.DeleteSubcategory(r.Context(), chi.URLParam(r, "id")))
}

func (s *Server) handleToggleSubcategoryStatus(w http.ResponseWriter, r *http.Request) {
	rec, err := s.service.ToggleSubcategoryStatus(r.Context(), chi.URLParam(r, "id"))
	writeRecord(w, http.StatusOK, rec, err)
}

func (s *Server) handleCreateSubSubcategory(w http.ResponseWriter, r *http.Request) {
	var in domain.SubSubcategoryInput
	if !decode(w, r, &in) {
		return
	}
	rec, err := s.service.CreateSubSubcategory(r.Context(), in)
	writeRecord(w, http.StatusCreated, rec, err)
}

func (s *Server) handleUpdateSubSubcategory(w http.ResponseWriter, r *http.Request) {
	var in domain.SubSubcategoryInput
	if !decode(w, r, &in) {
		return
	}
	rec, err := s.service.UpdateSubSubcategory(r.Context(), chi.URLParam(r, "id"), in)
	writeRecord(w, http.StatusOK, rec, err)
}

// Leaf deletes and toggles take the owning subcategory as ?subcategoryId= so
// only that branch is refetched.
func (s *Server) handleDeleteSubSubcategory(w http.ResponseWriter, r *http.Request) {
	err := s.service.DeleteSubSubcategory(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("subcategoryId"))
	writeDeleted(w, err)
}

func (s *Server) handleToggleSubSubcategoryStatus(w http.ResponseWriter, r *http.Request) {
	rec, err := s.service.ToggleSubSubcategoryStatus(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("subcategoryId"))
	writeRecord(w, http.StatusOK, rec, err)
}

func (s *Server) handleToggleCategoryExpansion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	writeJSON(w, http.StatusOK, expansionView{ID: id, Expanded: s.service.ToggleCategory(id)})
}

func (s *Server) handleToggleSubcategoryExpansion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	transition, err := s.service.ToggleSubcategory(r.Context(), id)

	view := expansionView{ID: id, Expanded: transition.Expanded}
	if err != nil {
		// the toggle itself succeeded; the branch just stays empty
		view.BranchError = domain.UserMessage(err)
	}
	writeJSON(w, http.StatusOK, view)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorView{Error: "Invalid request body"})
		return false
	}
	return true
}

func writeRecord(w http.ResponseWriter, status int, rec domain.RawRecord, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	if rec == nil {
		rec = domain.RawRecord{}
	}
	writeJSON(w, status, rec)
}

func writeDeleted(w http.ResponseWriter, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusOf(err), errorView{Error: domain.UserMessage(err)})
}

// statusOf maps command and read failures to HTTP statuses. Catalog API
// statuses pass through.
func statusOf(err error) int {
	var apiErr *domain.APIError
	switch {
	case domain.IsPreconditionError(err):
		return http.StatusBadRequest
	case errors.As(err, &apiErr) && apiErr.Status >= 400:
		return apiErr.Status
	case domain.IsTransportError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnf("⚠️ Failed to write response: %v", err)
	}
}
