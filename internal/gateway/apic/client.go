// Package apic implements the fabric-controller REST client.
package apic

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

// Sentinel errors for controller transport failures.
var (
	ErrUnreachable = errors.New("fabric controller unreachable")
	ErrTimeout     = errors.New("fabric controller request timeout")
)

const defaultPort = 443

// Client talks to a fabric controller over its REST API. It is used by a
// single job goroutine at a time; the session token captured by Authenticate
// is replayed on every subsequent call.
type Client struct {
	baseURL      string
	username     string
	password     string
	probeTimeout time.Duration
	client       *http.Client
	token        string
}

// NewClient creates a controller client from job credentials. Every request
// is bounded by requestTimeout; the connectivity probe uses the tighter
// probeTimeout.
func NewClient(creds models.ControllerCredentials, requestTimeout, probeTimeout time.Duration) *Client {
	port := creds.Port
	if port == 0 {
		port = defaultPort
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: !creds.VerifySSL}

	return &Client{
		baseURL:      fmt.Sprintf("https://%s:%d/api", creds.Host, port),
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

type loginResponse struct {
	IMData []struct {
		AAALogin struct {
			Attributes struct {
				Token string `json:"token"`
			} `json:"attributes"`
		} `json:"aaaLogin"`
	} `json:"imdata"`
}

// Authenticate logs in and captures the session token replayed on every
// subsequent call.
func (c *Client) Authenticate(ctx context.Context) error {
	payload := map[string]any{
		"aaaUser": map[string]any{
			"attributes": map[string]string{
				"name": c.username,
				"pwd":  c.password,
			},
		},
	}

	resp, err := c.post(ctx, c.baseURL+"/aaaLogin.json", payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("authentication failed: %s", readError(resp))
	}

	var login loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&login); err != nil {
		return fmt.Errorf("decoding login response: %w", err)
	}
	if len(login.IMData) == 0 || login.IMData[0].AAALogin.Attributes.Token == "" {
		return errors.New("invalid authentication response")
	}

	c.token = login.IMData[0].AAALogin.Attributes.Token
	return nil
}

// TestConnectivity probes the controller's system class endpoint without
// requiring a prior login.
func (c *Client) TestConnectivity(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/class/topSystem.json", nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("connectivity test failed: status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) CreateTenant(ctx context.Context, t models.Tenant) (string, error) {
	payload := map[string]any{
		"fvTenant": map[string]any{
			"attributes": map[string]string{
				"name":   t.Name,
				"descr":  t.Description,
				"status": "created",
			},
		},
	}

	path := fmt.Sprintf("%s/node/mo/uni/tn-%s.json", c.baseURL, t.Name)
	if err := c.createObject(ctx, path, payload); err != nil {
		return "", err
	}
	return fmt.Sprintf("Tenant '%s' created successfully", t.Name), nil
}

func (c *Client) CreateRoutingContext(ctx context.Context, rc models.RoutingContext) (string, error) {
	enforcement := rc.Enforcement
	if enforcement == "" {
		enforcement = "enforced"
	}
	payload := map[string]any{
		"fvCtx": map[string]any{
			"attributes": map[string]string{
				"name":      rc.Name,
				"descr":     rc.Description,
				"pcEnfPref": enforcement,
				"status":    "created",
			},
		},
	}

	path := fmt.Sprintf("%s/node/mo/uni/tn-%s/ctx-%s.json", c.baseURL, rc.Tenant, rc.Name)
	if err := c.createObject(ctx, path, payload); err != nil {
		return "", err
	}
	return fmt.Sprintf("Routing context '%s' created successfully", rc.Name), nil
}

func (c *Client) CreateBridgeDomain(ctx context.Context, bd models.BridgeDomain) (string, error) {
	children := []any{
		map[string]any{
			"fvRsCtx": map[string]any{
				"attributes": map[string]string{
					"tnFvCtxName": bd.RoutingContext,
				},
			},
		},
	}
	if bd.Subnet != "" {
		children = append(children, map[string]any{
			"fvSubnet": map[string]any{
				"attributes": map[string]string{
					"ip":     bd.Subnet,
					"scope":  "public",
					"status": "created",
				},
			},
		})
	}

	payload := map[string]any{
		"fvBD": map[string]any{
			"attributes": map[string]string{
				"name":   bd.Name,
				"descr":  bd.Description,
				"status": "created",
			},
			"children": children,
		},
	}

	path := fmt.Sprintf("%s/node/mo/uni/tn-%s/BD-%s.json", c.baseURL, bd.Tenant, bd.Name)
	if err := c.createObject(ctx, path, payload); err != nil {
		return "", err
	}
	return fmt.Sprintf("Bridge domain '%s' created successfully", bd.Name), nil
}

func (c *Client) CreateApplicationGroup(ctx context.Context, ag models.ApplicationGroup) (string, error) {
	payload := map[string]any{
		"fvAp": map[string]any{
			"attributes": map[string]string{
				"name":   ag.Name,
				"descr":  ag.Description,
				"status": "created",
			},
		},
	}

	path := fmt.Sprintf("%s/node/mo/uni/tn-%s/ap-%s.json", c.baseURL, ag.Tenant, ag.Name)
	if err := c.createObject(ctx, path, payload); err != nil {
		return "", err
	}
	return fmt.Sprintf("Application group '%s' created successfully", ag.Name), nil
}

func (c *Client) CreateEndpointGroup(ctx context.Context, epg models.EndpointGroup) (string, error) {
	payload := map[string]any{
		"fvAEPg": map[string]any{
			"attributes": map[string]string{
				"name":   epg.Name,
				"descr":  epg.Description,
				"status": "created",
			},
			"children": []any{
				map[string]any{
					"fvRsBd": map[string]any{
						"attributes": map[string]string{
							"tnFvBDName": epg.BridgeDomain,
						},
					},
				},
			},
		},
	}

	path := fmt.Sprintf("%s/node/mo/uni/tn-%s/ap-%s/epg-%s.json",
		c.baseURL, epg.Tenant, epg.ApplicationGroup, epg.Name)
	if err := c.createObject(ctx, path, payload); err != nil {
		return "", err
	}
	return fmt.Sprintf("Endpoint group '%s' created successfully", epg.Name), nil
}

// createObject posts an object payload and treats any 2xx as success.
func (c *Client) createObject(ctx context.Context, path string, payload any) error {
	resp, err := c.post(ctx, path, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("status %d: %s", resp.StatusCode, readError(resp))
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyError(err)
	}
	return resp, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("APIC-Cookie", c.token)
	}
}

// readError extracts a short error string from a non-2xx response body.
func readError(resp *http.Response) string {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 512))
	if err != nil || len(body) == 0 {
		return fmt.Sprintf("status %d", resp.StatusCode)
	}
	return string(body)
}

// classifyError maps transport-level errors to sentinel errors.
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

// Compile-time check that Client implements the gateway contract.
var _ models.Gateway = (*Client)(nil)
