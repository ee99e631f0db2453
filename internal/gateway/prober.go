package gateway

import (
	"context"
	"time"

	"github.com/tomvergara/fabricd/internal/gateway/ndo"
	"github.com/tomvergara/fabricd/pkg/models"
)

// Prober is the minimal surface shared by both remote targets; the multi-site
// orchestrator exposes it without the single-site object-creation calls.
type Prober interface {
	Authenticate(ctx context.Context) error
	TestConnectivity(ctx context.Context) error
}

// ProberFactory builds a connectivity prober bound to one set of credentials.
type ProberFactory func(creds models.ControllerCredentials) Prober

// NewOrchestratorFactory returns a ProberFactory producing multi-site
// orchestrator clients with the given deadlines.
func NewOrchestratorFactory(requestTimeout, probeTimeout time.Duration) ProberFactory {
	return func(creds models.ControllerCredentials) Prober {
		return ndo.NewClient(creds, requestTimeout, probeTimeout)
	}
}
