// Package platform is the HTTP client for the remote tool-hosting
// platform that provisions auth configurations and tool-scoped gateway
// servers. All failures surface as typed gateway errors with the
// underlying cause attached.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/calyptra/skillflow/internal/errdefs"
)

const (
	defaultTimeout = 30 * time.Second
	maxRetries     = 4

	// AuthHeader is the API-key header the platform requires on every
	// call, including calls the execution engine makes to gateway URLs.
	AuthHeader = "x-api-key"
)

// Client talks to the remote tool-hosting platform.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewClient creates a platform client with bounded retries.
func NewClient(baseURL, apiKey string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = maxRetries
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = defaultTimeout
	rc.Logger = nil

	return &Client{
		httpClient: rc.StandardClient(),
		baseURL:    baseURL,
		apiKey:     apiKey,
	}
}

// APIKey returns the key used for gateway authentication headers.
func (c *Client) APIKey() string {
	return c.apiKey
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set(AuthHeader, c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errdefs.Gateway(fmt.Sprintf("%s %s", method, path), err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errdefs.Gateway("read response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errdefs.Gateway(
			fmt.Sprintf("%s %s", method, path),
			fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody)))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return errdefs.Gateway("decode response", err)
		}
	}
	return nil
}

// ListAuthConfigs returns existing auth configurations for a toolkit.
func (c *Client) ListAuthConfigs(ctx context.Context, toolkit string) ([]AuthConfig, error) {
	var out struct {
		Items []AuthConfig `json:"items"`
	}
	path := fmt.Sprintf("/api/v3/auth_configs?toolkit_slug=%s", toolkit)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// CreateAuthConfig creates a platform-managed auth configuration for a
// toolkit.
func (c *Client) CreateAuthConfig(ctx context.Context, toolkit string) (*AuthConfig, error) {
	body := map[string]any{
		"toolkit": map[string]string{"slug": toolkit},
		"auth_config": map[string]string{
			"type": "use_platform_managed_auth",
		},
	}
	var out struct {
		AuthConfig AuthConfig `json:"auth_config"`
	}
	if err := c.doRequest(ctx, http.MethodPost, "/api/v3/auth_configs", body, &out); err != nil {
		return nil, err
	}
	return &out.AuthConfig, nil
}

// ListToolkitTools returns every tool slug a toolkit exposes.
func (c *Client) ListToolkitTools(ctx context.Context, toolkit string) ([]string, error) {
	var out struct {
		Items []struct {
			Slug string `json:"slug"`
		} `json:"items"`
	}
	path := fmt.Sprintf("/api/v3/tools?toolkit_slug=%s", toolkit)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	slugs := make([]string, 0, len(out.Items))
	for _, item := range out.Items {
		slugs = append(slugs, item.Slug)
	}
	return slugs, nil
}

// CreateServer provisions a gateway server scoped to the given tools.
func (c *Client) CreateServer(ctx context.Context, name string, authConfigIDs, allowedTools []string) (*Server, error) {
	body := map[string]any{
		"name":            name,
		"auth_config_ids": authConfigIDs,
		"allowed_tools":   allowedTools,
	}
	var out Server
	if err := c.doRequest(ctx, http.MethodPost, "/api/v3/mcp/servers", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteServer removes a gateway server by id.
func (c *Client) DeleteServer(ctx context.Context, serverID string) error {
	path := fmt.Sprintf("/api/v3/mcp/servers/%s", serverID)
	return c.doRequest(ctx, http.MethodDelete, path, nil, nil)
}

// Ping reports whether the platform is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodGet, "/api/v3/health", nil, nil)
}
