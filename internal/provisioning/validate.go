package provisioning

import (
	"context"
	"fmt"

	"github.com/tomvergara/fabricd/pkg/models"
)

// ValidationResult reports the outcome of validating a fabric config. A
// config is valid only when Errors is empty; Warnings is reserved for
// non-blocking findings.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Validate checks a fabric config before provisioning. Structural checks run
// first; the controller connectivity probe runs regardless, so one call
// reports every problem at once.
func (s *Service) Validate(ctx context.Context, cfg models.FabricConfig) *ValidationResult {
	result := &ValidationResult{
		Errors:   []string{},
		Warnings: []string{},
	}

	if len(cfg.Tenants) == 0 {
		result.Errors = append(result.Errors, "At least one tenant must be specified")
	}

	tenants := make(map[string]bool, len(cfg.Tenants))
	for _, t := range cfg.Tenants {
		tenants[t.Name] = true
	}

	contexts := make(map[string]bool, len(cfg.RoutingContexts))
	for _, rc := range cfg.RoutingContexts {
		if !tenants[rc.Tenant] {
			result.Errors = append(result.Errors,
				fmt.Sprintf("Routing context '%s' references non-existent tenant '%s'", rc.Name, rc.Tenant))
		}
		contexts[rc.Tenant+"/"+rc.Name] = true
	}

	for _, bd := range cfg.BridgeDomains {
		if !tenants[bd.Tenant] {
			result.Errors = append(result.Errors,
				fmt.Sprintf("Bridge domain '%s' references non-existent tenant '%s'", bd.Name, bd.Tenant))
		}
		if !contexts[bd.Tenant+"/"+bd.RoutingContext] {
			result.Errors = append(result.Errors,
				fmt.Sprintf("Bridge domain '%s' references non-existent routing context '%s' in tenant '%s'",
					bd.Name, bd.RoutingContext, bd.Tenant))
		}
	}

	gw := s.newGateway(cfg.Credentials)
	if err := gw.TestConnectivity(ctx); err != nil {
		result.Errors = append(result.Errors,
			fmt.Sprintf("Fabric controller connectivity test failed: %v", err))
	}

	result.Valid = len(result.Errors) == 0
	return result
}

// ValidateMultiSite probes the multi-site orchestrator reachable with the
// given credentials. Object-level checks do not apply here; the orchestrator
// validates schemas itself at deploy time.
func (s *Service) ValidateMultiSite(ctx context.Context, creds models.ControllerCredentials) *ValidationResult {
	result := &ValidationResult{
		Errors:   []string{},
		Warnings: []string{},
	}

	orch := s.newOrchestrator(creds)
	if err := orch.TestConnectivity(ctx); err != nil {
		result.Errors = append(result.Errors,
			fmt.Sprintf("Orchestrator connectivity test failed: %v", err))
	}

	result.Valid = len(result.Errors) == 0
	return result
}
