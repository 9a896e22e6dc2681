// Package manage provides the authenticated management client for
// pay2run Actions: create, read, update and delete on behalf of a
// creator, authorized by API key.
package manage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pay2run/pay2run"
)

// Client manages Actions on the pay2run platform.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// Option configures a Client.
type Option func(*Client) error

// New creates a management client. The API key is required; every
// request carries it as a bearer credential.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, pay2run.ErrMissingAPIKey
	}

	client := &Client{
		baseURL: pay2run.DefaultBaseURL,
		apiKey:  apiKey,
	}

	for _, opt := range opts {
		if err := opt(client); err != nil {
			return nil, err
		}
	}

	return client, nil
}

// WithBaseURL overrides the platform endpoint, e.g. for a staging
// environment or a local sandbox.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) error {
		if baseURL == "" {
			return fmt.Errorf("manage: base URL cannot be empty")
		}
		c.baseURL = strings.TrimSuffix(baseURL, "/")
		return nil
	}
}

// WithHTTPClient sets a custom underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) error {
		if httpClient == nil {
			return fmt.Errorf("manage: http client cannot be nil")
		}
		c.client = httpClient
		return nil
	}
}

// httpClient returns the HTTP client to use, defaulting to http.DefaultClient.
func (c *Client) httpClient() *http.Client {
	if c.client != nil {
		return c.client
	}
	return http.DefaultClient
}

// Create registers a new Action. The input carries the full runner-side
// configuration including secrets; the returned record is the public
// projection with secrets and target stripped by the platform.
func (c *Client) Create(ctx context.Context, input pay2run.ActionInput) (*pay2run.ActionConfig, error) {
	if err := input.Payment.Validate(); err != nil {
		return nil, err
	}

	var created pay2run.ActionConfig
	if err := c.do(ctx, http.MethodPost, "/v1/actions", input, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// Get fetches a single Action by ID.
func (c *Client) Get(ctx context.Context, id string) (*pay2run.ActionConfig, error) {
	var action pay2run.ActionConfig
	if err := c.do(ctx, http.MethodGet, "/v1/actions/"+id, nil, &action); err != nil {
		return nil, err
	}
	return &action, nil
}

// List fetches all Actions owned by the API key.
func (c *Client) List(ctx context.Context) ([]pay2run.ActionConfig, error) {
	var actions []pay2run.ActionConfig
	if err := c.do(ctx, http.MethodGet, "/v1/actions", nil, &actions); err != nil {
		return nil, err
	}
	return actions, nil
}

// Update applies a partial update to an Action and returns the updated
// record. Nil patch fields are left unchanged by the platform.
func (c *Client) Update(ctx context.Context, id string, patch pay2run.ActionPatch) (*pay2run.ActionConfig, error) {
	if patch.Payment != nil {
		if err := patch.Payment.Validate(); err != nil {
			return nil, err
		}
	}

	var updated pay2run.ActionConfig
	if err := c.do(ctx, http.MethodPatch, "/v1/actions/"+id, patch, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete removes an Action.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/actions/"+id, nil, nil)
}

// do sends a single request and decodes the response into out when out
// is non-nil. Exactly one attempt per call: no retries, no backoff.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseErrorResponse(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// parseErrorResponse extracts the server message from a non-2xx
// response, falling back to the HTTP status text.
func parseErrorResponse(resp *http.Response) error {
	apiErr := &pay2run.APIError{
		StatusCode: resp.StatusCode,
		Message:    http.StatusText(resp.StatusCode),
	}

	bodyBytes, _ := io.ReadAll(resp.Body)
	var errBody struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(bodyBytes, &errBody); err == nil && errBody.Message != "" {
		apiErr.Message = errBody.Message
	}
	return apiErr
}
