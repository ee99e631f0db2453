// Package gateway wires concrete remote-controller clients to the
// models.Gateway contract the workflow engine consumes.
package gateway

import (
	"time"

	"github.com/tomvergara/fabricd/internal/gateway/apic"
	"github.com/tomvergara/fabricd/pkg/models"
)

// Factory builds a Gateway bound to one controller's credentials. Jobs carry
// their own credentials, so a fresh client is constructed per job; tests
// inject a factory returning a mock instead.
type Factory func(creds models.ControllerCredentials) models.Gateway

// NewFactory returns a Factory producing fabric-controller HTTP clients with
// the given request and probe deadlines.
func NewFactory(requestTimeout, probeTimeout time.Duration) Factory {
	return func(creds models.ControllerCredentials) models.Gateway {
		return apic.NewClient(creds, requestTimeout, probeTimeout)
	}
}
