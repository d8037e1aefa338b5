package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/skilldash/internal/skill"
)

func (s *Server) handleListSkills(w http.ResponseWriter, r *http.Request) {
	if !s.requireSkills(w) {
		return
	}
	list, err := s.skills.List(r.Context(), userID(r))
	if err != nil {
		s.storeFailure(w, r, "list", err, "Failed to fetch skills")
		return
	}
	if list == nil {
		list = []skill.Skill{}
	}
	respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateSkill(w http.ResponseWriter, r *http.Request) {
	if !s.requireSkills(w) {
		return
	}
	var d skill.Draft
	if err := decodeJSON(w, r, &d); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	d, err := d.Normalize()
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_skill", err.Error())
		return
	}
	created, err := s.skills.Create(r.Context(), userID(r), d)
	if err != nil {
		s.storeFailure(w, r, "create", err, "Failed to create skill")
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetSkill(w http.ResponseWriter, r *http.Request) {
	if !s.requireSkills(w) {
		return
	}
	got, err := s.skills.Get(r.Context(), userID(r), skillID(r))
	if err != nil {
		s.storeFailure(w, r, "get", err, "Failed to fetch skill")
		return
	}
	respondJSON(w, http.StatusOK, got)
}

func (s *Server) handleUpdateSkill(w http.ResponseWriter, r *http.Request) {
	if !s.requireSkills(w) {
		return
	}
	var u skill.Update
	if err := decodeJSON(w, r, &u); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	u, err := u.Normalize()
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_skill", err.Error())
		return
	}
	updated, err := s.skills.Update(r.Context(), userID(r), skillID(r), u)
	if err != nil {
		s.storeFailure(w, r, "update", err, "Failed to update skill")
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteSkill(w http.ResponseWriter, r *http.Request) {
	if !s.requireSkills(w) {
		return
	}
	if err := s.skills.Delete(r.Context(), userID(r), skillID(r)); err != nil {
		s.storeFailure(w, r, "delete", err, "Failed to delete skill")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Skill deleted"})
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	if !s.requireSkills(w) {
		return
	}
	cats, err := s.skills.Categories(r.Context(), userID(r))
	if err != nil {
		s.storeFailure(w, r, "categories", err, "Failed to fetch categories")
		return
	}
	if cats == nil {
		cats = []string{}
	}
	respondJSON(w, http.StatusOK, cats)
}

func (s *Server) requireSkills(w http.ResponseWriter) bool {
	if s.skills == nil {
		respondError(w, http.StatusNotImplemented, "skill_store_disabled", "Skill store is disabled.")
		return false
	}
	return true
}

func (s *Server) storeFailure(w http.ResponseWriter, r *http.Request, op string, err error, message string) {
	if errors.Is(err, skill.ErrNotFound) {
		respondError(w, http.StatusNotFound, "skill_not_found", "Skill not found")
		return
	}
	s.metrics.ObserveStoreError(s.skills.Mode(), op)
	s.requestLogger(r).Error("skill store failure", "op", op, "error", err)
	respondError(w, http.StatusInternalServerError, "store_failed", message)
}

func skillID(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "id"))
}
