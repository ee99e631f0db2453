package mock

import (
	"context"
	"fmt"

	"github.com/tomvergara/fabricd/pkg/models"
)

// MockGateway satisfies models.Gateway for testing.
type MockGateway struct {
	AuthenticateFunc           func(ctx context.Context) error
	TestConnectivityFunc       func(ctx context.Context) error
	CreateTenantFunc           func(ctx context.Context, t models.Tenant) (string, error)
	CreateRoutingContextFunc   func(ctx context.Context, rc models.RoutingContext) (string, error)
	CreateBridgeDomainFunc     func(ctx context.Context, bd models.BridgeDomain) (string, error)
	CreateApplicationGroupFunc func(ctx context.Context, ag models.ApplicationGroup) (string, error)
	CreateEndpointGroupFunc    func(ctx context.Context, epg models.EndpointGroup) (string, error)
}

func (m *MockGateway) Authenticate(ctx context.Context) error {
	if m.AuthenticateFunc != nil {
		return m.AuthenticateFunc(ctx)
	}
	return nil
}

func (m *MockGateway) TestConnectivity(ctx context.Context) error {
	if m.TestConnectivityFunc != nil {
		return m.TestConnectivityFunc(ctx)
	}
	return nil
}

func (m *MockGateway) CreateTenant(ctx context.Context, t models.Tenant) (string, error) {
	if m.CreateTenantFunc != nil {
		return m.CreateTenantFunc(ctx, t)
	}
	return fmt.Sprintf("Tenant '%s' created successfully", t.Name), nil
}

func (m *MockGateway) CreateRoutingContext(ctx context.Context, rc models.RoutingContext) (string, error) {
	if m.CreateRoutingContextFunc != nil {
		return m.CreateRoutingContextFunc(ctx, rc)
	}
	return fmt.Sprintf("Routing context '%s' created successfully", rc.Name), nil
}

func (m *MockGateway) CreateBridgeDomain(ctx context.Context, bd models.BridgeDomain) (string, error) {
	if m.CreateBridgeDomainFunc != nil {
		return m.CreateBridgeDomainFunc(ctx, bd)
	}
	return fmt.Sprintf("Bridge domain '%s' created successfully", bd.Name), nil
}

func (m *MockGateway) CreateApplicationGroup(ctx context.Context, ag models.ApplicationGroup) (string, error) {
	if m.CreateApplicationGroupFunc != nil {
		return m.CreateApplicationGroupFunc(ctx, ag)
	}
	return fmt.Sprintf("Application group '%s' created successfully", ag.Name), nil
}

func (m *MockGateway) CreateEndpointGroup(ctx context.Context, epg models.EndpointGroup) (string, error) {
	if m.CreateEndpointGroupFunc != nil {
		return m.CreateEndpointGroupFunc(ctx, epg)
	}
	return fmt.Sprintf("Endpoint group '%s' created successfully", epg.Name), nil
}

// NewMockGateway returns a MockGateway where every call succeeds.
func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

// NewAuthFailingGateway returns a MockGateway whose Authenticate always
// returns the given error.
func NewAuthFailingGateway(err error) *MockGateway {
	return &MockGateway{
		AuthenticateFunc: func(_ context.Context) error { return err },
	}
}

// NewUnreachableGateway returns a MockGateway whose connectivity probe
// always returns the given error.
func NewUnreachableGateway(err error) *MockGateway {
	return &MockGateway{
		TestConnectivityFunc: func(_ context.Context) error { return err },
	}
}

// Compile-time check that MockGateway implements Gateway.
var _ models.Gateway = (*MockGateway)(nil)
