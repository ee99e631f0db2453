package models

import "context"

// Gateway is the remote fabric controller surface the workflow engine drives.
// Create calls return the controller's human-readable confirmation message on
// success; a non-nil error carries the remote failure text. Implementations
// must bound every call with their own request deadline; a hung gateway call
// otherwise blocks its job indefinitely.
type Gateway interface {
	Authenticate(ctx context.Context) error
	TestConnectivity(ctx context.Context) error
	CreateTenant(ctx context.Context, t Tenant) (string, error)
	CreateRoutingContext(ctx context.Context, rc RoutingContext) (string, error)
	CreateBridgeDomain(ctx context.Context, bd BridgeDomain) (string, error)
	CreateApplicationGroup(ctx context.Context, ag ApplicationGroup) (string, error)
	CreateEndpointGroup(ctx context.Context, epg EndpointGroup) (string, error)
}
