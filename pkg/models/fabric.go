package models

// ControllerCredentials are the connection details for a fabric controller
// or multi-site orchestrator. Passwords travel inside job configs only and
// are never logged.
type ControllerCredentials struct {
	Host      string `json:"host"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	Port      int    `json:"port"`
	VerifySSL bool   `json:"verify_ssl"`
}

// Tenant is the top-level isolation boundary in the fabric object model.
type Tenant struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// RoutingContext is a Layer-3 forwarding domain scoped to a tenant.
type RoutingContext struct {
	Name        string `json:"name"`
	Tenant      string `json:"tenant"`
	Description string `json:"description,omitempty"`
	Enforcement string `json:"enforcement,omitempty"`
}

// BridgeDomain is a Layer-2 forwarding domain bound to one routing context,
// optionally carrying a gateway subnet.
type BridgeDomain struct {
	Name           string `json:"name"`
	Tenant         string `json:"tenant"`
	RoutingContext string `json:"routing_context"`
	Subnet         string `json:"subnet,omitempty"`
	Description    string `json:"description,omitempty"`
}

// ApplicationGroup is a logical grouping of endpoint groups within a tenant.
type ApplicationGroup struct {
	Name        string `json:"name"`
	Tenant      string `json:"tenant"`
	Description string `json:"description,omitempty"`
}

// EndpointGroup is a policy-enforcement grouping bound to one bridge domain
// and one application group.
type EndpointGroup struct {
	Name             string `json:"name"`
	Tenant           string `json:"tenant"`
	ApplicationGroup string `json:"application_group"`
	BridgeDomain     string `json:"bridge_domain"`
	Description      string `json:"description,omitempty"`
}

// FabricConfig is the declarative specification a provisioning job executes.
// Slice order is creation order; referential integrity between the sections
// is checked by the validation engine, not by the type.
type FabricConfig struct {
	SiteCode    string                `json:"site_code"`
	FabricType  string                `json:"fabric_type"`
	Credentials ControllerCredentials `json:"credentials"`

	Tenants           []Tenant           `json:"tenants"`
	RoutingContexts   []RoutingContext   `json:"routing_contexts"`
	BridgeDomains     []BridgeDomain     `json:"bridge_domains"`
	ApplicationGroups []ApplicationGroup `json:"application_groups"`
	EndpointGroups    []EndpointGroup    `json:"endpoint_groups"`
}
