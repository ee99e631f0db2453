package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/tomvergara/fabricd/internal/api/response"
	"github.com/tomvergara/fabricd/internal/store"
	"github.com/tomvergara/fabricd/pkg/models"
)

// JobSubmitter defines the provisioning surface the job handlers depend on.
type JobSubmitter interface {
	Submit(ctx context.Context, name string, templateID *int64, cfg models.FabricConfig) (*models.Job, error)
}

// NewSubmitJobHandler returns an http.HandlerFunc for POST /api/v1/jobs.
// Submission is asynchronous: the job is durably created and the workflow
// runs in the background, so the handler answers 202 with the job id.
func NewSubmitJobHandler(svc JobSubmitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name       string              `json:"name"`
			TemplateID *int64              `json:"template_id"`
			Config     models.FabricConfig `json:"config"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if req.Name == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "name is required", nil)
			return
		}

		job, err := svc.Submit(r.Context(), req.Name, req.TemplateID, req.Config)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to create provisioning job", nil)
			return
		}

		response.Accepted(w, map[string]any{
			"job_id":  job.ID,
			"status":  "started",
			"message": "Provisioning job started",
		})
	}
}

// NewListJobsHandler returns an http.HandlerFunc for GET /api/v1/jobs.
func NewListJobsHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs, err := st.ListJobs(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to list jobs", nil)
			return
		}
		response.JSON(w, jobs)
	}
}

// NewGetJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/{id}.
func NewGetJobHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobID(w, r)
		if !ok {
			return
		}

		job, err := st.GetJob(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to fetch job", nil)
			return
		}
		response.JSON(w, job)
	}
}

// NewJobLogsHandler returns an http.HandlerFunc for GET /api/v1/jobs/{id}/logs.
func NewJobLogsHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobID(w, r)
		if !ok {
			return
		}

		// Verify the job exists so a missing job reads as 404, not an
		// empty log list.
		if _, err := st.GetJob(r.Context(), id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to fetch job", nil)
			return
		}

		logs, err := st.ListTaskLogs(r.Context(), id)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to fetch task logs", nil)
			return
		}
		response.JSON(w, logs)
	}
}

// NewDeleteJobHandler returns an http.HandlerFunc for DELETE /api/v1/jobs/{id}.
// Task logs go with the job via the cascading foreign key.
func NewDeleteJobHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobID(w, r)
		if !ok {
			return
		}

		if err := st.DeleteJob(r.Context(), id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to delete job", nil)
			return
		}

		response.JSON(w, map[string]string{"message": "Job deleted"})
	}
}

func jobID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid job id", nil)
		return 0, false
	}
	return id, true
}
