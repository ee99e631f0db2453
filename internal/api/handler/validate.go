package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/tomvergara/fabricd/internal/api/response"
	"github.com/tomvergara/fabricd/internal/provisioning"
	"github.com/tomvergara/fabricd/pkg/models"
)

// ConfigValidator defines the validation surface the handlers depend on.
type ConfigValidator interface {
	Validate(ctx context.Context, cfg models.FabricConfig) *provisioning.ValidationResult
	ValidateMultiSite(ctx context.Context, creds models.ControllerCredentials) *provisioning.ValidationResult
}

// NewValidateHandler returns an http.HandlerFunc for POST /api/v1/validate.
// Validation never provisions anything; it reports structural problems plus
// the controller connectivity probe in one pass.
func NewValidateHandler(svc ConfigValidator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var cfg models.FabricConfig
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		response.JSON(w, svc.Validate(r.Context(), cfg))
	}
}

// NewValidateMultiSiteHandler returns an http.HandlerFunc for
// POST /api/v1/multisite/validate.
func NewValidateMultiSiteHandler(svc ConfigValidator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Credentials models.ControllerCredentials `json:"credentials"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if req.Credentials.Host == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "credentials.host is required", nil)
			return
		}

		response.JSON(w, svc.ValidateMultiSite(r.Context(), req.Credentials))
	}
}
