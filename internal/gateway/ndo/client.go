// Package ndo implements the multi-site orchestrator REST client. It mirrors
// the fabric-controller surface but deploys schemas and templates across
// sites instead of posting objects one by one.
package ndo

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/tomvergara/fabricd/pkg/models"
)

// Sentinel errors for orchestrator transport failures.
var (
	ErrUnreachable = errors.New("orchestrator unreachable")
	ErrTimeout     = errors.New("orchestrator request timeout")
)

const defaultPort = 443

// Site is one fabric site managed by the orchestrator.
type Site struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SchemaTemplate is one template inside a schema definition.
type SchemaTemplate struct {
	Name     string `json:"name"`
	TenantID string `json:"tenant_id,omitempty"`
}

// SchemaConfig describes a schema to create on the orchestrator.
type SchemaConfig struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Templates   []SchemaTemplate `json:"templates,omitempty"`
}

// DeploymentStatus is the orchestrator's view of one template deployment.
type DeploymentStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Client talks to a multi-site orchestrator over its REST API.
type Client struct {
	baseURL      string
	username     string
	password     string
	probeTimeout time.Duration
	client       *http.Client
	token        string
}

// NewClient creates an orchestrator client from credentials.
func NewClient(creds models.ControllerCredentials, requestTimeout, probeTimeout time.Duration) *Client {
	port := creds.Port
	if port == 0 {
		port = defaultPort
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: !creds.VerifySSL}

	return &Client{
		baseURL:      fmt.Sprintf("https://%s:%d/mso/api/v1", creds.Host, port),
		username:     creds.Username,
		password:     creds.Password,
		probeTimeout: probeTimeout,
		client: &http.Client{
			Timeout:   requestTimeout,
			Transport: transport,
		},
	}
}

// NewClientWithBaseURL is a test hook that points the client at an arbitrary
// endpoint (httptest servers speak plain HTTP).
func NewClientWithBaseURL(baseURL, username, password string, requestTimeout, probeTimeout time.Duration) *Client {
	return &Client{
		baseURL:      baseURL,
		username:     username,
		password:     password,
		probeTimeout: probeTimeout,
		client:       &http.Client{Timeout: requestTimeout},
	}
}

// Authenticate logs in and captures the bearer token replayed on every
// subsequent call.
func (c *Client) Authenticate(ctx context.Context) error {
	payload := map[string]string{
		"username": c.username,
		"password": c.password,
	}

	resp, err := c.do(ctx, http.MethodPost, c.baseURL+"/auth/login", payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("authentication failed: %s", readError(resp))
	}

	var login struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&login); err != nil {
		return fmt.Errorf("decoding login response: %w", err)
	}
	if login.Token == "" {
		return errors.New("invalid authentication response")
	}

	c.token = login.Token
	return nil
}

// TestConnectivity probes the orchestrator's platform health endpoint.
func (c *Client) TestConnectivity(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, c.baseURL+"/platform/health", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("connectivity test failed: status %d", resp.StatusCode)
	}
	return nil
}

// GetSites lists the sites managed by the orchestrator.
func (c *Client) GetSites(ctx context.Context) ([]Site, error) {
	resp, err := c.do(ctx, http.MethodGet, c.baseURL+"/sites", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing sites failed: %s", readError(resp))
	}

	var body struct {
		Sites []Site `json:"sites"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding sites response: %w", err)
	}
	return body.Sites, nil
}

// CreateSchema creates a schema and returns its orchestrator-assigned id.
func (c *Client) CreateSchema(ctx context.Context, cfg SchemaConfig) (string, error) {
	templates := make([]map[string]any, 0, len(cfg.Templates))
	for _, t := range cfg.Templates {
		templates = append(templates, map[string]any{
			"name":            t.Name,
			"displayName":     t.Name,
			"tenantId":        t.TenantID,
			"anps":            []any{},
			"vrfs":            []any{},
			"bds":             []any{},
			"contracts":       []any{},
			"filters":         []any{},
			"externalEpgs":    []any{},
			"serviceGraphs":   []any{},
			"intersiteL3outs": []any{},
		})
	}

	payload := map[string]any{
		"displayName": cfg.Name,
		"description": cfg.Description,
		"templates":   templates,
	}

	resp, err := c.do(ctx, http.MethodPost, c.baseURL+"/schemas", payload)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("creating schema: %s", readError(resp))
	}

	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decoding schema response: %w", err)
	}
	return body.ID, nil
}

// DeployTemplate starts a deployment of one schema template to the given
// sites and returns the deployment id to poll.
func (c *Client) DeployTemplate(ctx context.Context, schemaID, templateName string, sites []string) (string, error) {
	payload := map[string]any{
		"schemaId":     schemaID,
		"templateName": templateName,
		"sites":        sites,
	}

	u := fmt.Sprintf("%s/schemas/%s/templates/%s/deploy", c.baseURL, schemaID, templateName)
	resp, err := c.do(ctx, http.MethodPost, u, payload)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("deploying template: %s", readError(resp))
	}

	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decoding deploy response: %w", err)
	}
	return body.ID, nil
}

// GetDeploymentStatus fetches the current state of a deployment.
func (c *Client) GetDeploymentStatus(ctx context.Context, deploymentID string) (*DeploymentStatus, error) {
	resp, err := c.do(ctx, http.MethodGet, c.baseURL+"/deployments/"+deploymentID, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("deployment status: %s", readError(resp))
	}

	var status DeploymentStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decoding deployment response: %w", err)
	}
	return &status, nil
}

func (c *Client) do(ctx context.Context, method, u string, payload any) (*http.Response, error) {
	var reqBody io.Reader
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyError(err)
	}
	return resp, nil
}

func readError(resp *http.Response) string {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 512))
	if err != nil || len(body) == 0 {
		return fmt.Sprintf("status %d", resp.StatusCode)
	}
	return string(body)
}

func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}
