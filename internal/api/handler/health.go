package handler

import (
	"encoding/json"
	"net/http"

	"github.com/tomvergara/fabricd/internal/cache"
	"github.com/tomvergara/fabricd/internal/store"
)

// NewHealthHandler returns an http.HandlerFunc for GET /healthz. It reports
// degraded rather than failing outright when a dependency is down, so load
// balancers can still tell the process is alive.
func NewHealthHandler(st store.Store, ca cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := struct {
			Status   string `json:"status"`
			Database string `json:"database"`
			Cache    string `json:"cache"`
		}{Status: "ok", Database: "ok", Cache: "ok"}

		if err := st.Ping(r.Context()); err != nil {
			body.Database = "unavailable"
			body.Status = "degraded"
		}
		if err := ca.Ping(r.Context()); err != nil {
			body.Cache = "unavailable"
			body.Status = "degraded"
		}

		code := http.StatusOK
		if body.Status != "ok" {
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(body)
	}
}
