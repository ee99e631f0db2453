package handler

import (
	"net/http"
	"strconv"

	"github.com/tomvergara/fabricd/internal/api/response"
	"github.com/tomvergara/fabricd/internal/store"
)

const (
	defaultRecentLogs = 50
	maxRecentLogs     = 500
)

// NewStatsHandler returns an http.HandlerFunc for GET /api/v1/stats.
func NewStatsHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := st.JobStats(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to compute job stats", nil)
			return
		}
		response.JSON(w, stats)
	}
}

// NewRecentLogsHandler returns an http.HandlerFunc for GET /api/v1/logs/recent.
// Entries come back newest first, across all jobs, each tagged with its job
// name.
func NewRecentLogsHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultRecentLogs
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"limit must be a positive integer", nil)
				return
			}
			limit = n
		}
		if limit > maxRecentLogs {
			limit = maxRecentLogs
		}

		logs, err := st.ListRecentTaskLogs(r.Context(), limit)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to fetch recent logs", nil)
			return
		}
		response.JSON(w, logs)
	}
}
