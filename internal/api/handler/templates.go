package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/tomvergara/fabricd/internal/api/response"
	"github.com/tomvergara/fabricd/internal/store"
)

// NewListTemplatesHandler returns an http.HandlerFunc for GET /api/v1/templates.
func NewListTemplatesHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		templates, err := st.ListTemplates(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to list templates", nil)
			return
		}
		response.JSON(w, templates)
	}
}

// NewGetTemplateHandler returns an http.HandlerFunc for GET /api/v1/templates/{id}.
func NewGetTemplateHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id <= 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid template id", nil)
			return
		}

		tmpl, err := st.GetTemplate(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Template not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to fetch template", nil)
			return
		}
		response.JSON(w, tmpl)
	}
}
