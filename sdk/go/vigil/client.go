package vigil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the Vigil gate (e.g. "http://localhost:8080").
	BaseURL string

	// Token is an optional bearer token for gates running with auth enabled.
	// The token carries the agent identity; when set, the gate ignores the
	// agent_id and maturity_level fields in request bodies.
	Token string

	// HTTPClient is an optional custom HTTP client. If nil, a default client
	// with a 10-second timeout is used.
	HTTPClient *http.Client

	// Timeout applies to individual API requests. Defaults to 10 seconds.
	Timeout time.Duration
}

// Client is an HTTP client for the Vigil validation gate API.
// All methods are safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient creates a Client from the given configuration.
// Returns an error if BaseURL is empty.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("vigil: BaseURL is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		client:  httpClient,
	}, nil
}

// Validate submits one proposed action and returns the signed verdict.
// A DENY or ESCALATE decision is a successful call; check Verdict.Allowed()
// before acting. On any error the caller must treat the action as denied.
func (c *Client) Validate(ctx context.Context, action ActionPrimitive, agent AgentContext) (*Verdict, error) {
	var resp validateResponse
	if err := c.post(ctx, "/validate", validateRequest{Action: action, Agent: agent}, &resp); err != nil {
		return nil, err
	}
	return &resp.Verdict, nil
}

// Recent returns the most recent audit ledger entries, newest first.
// A limit <= 0 uses the server default of 50.
func (c *Client) Recent(ctx context.Context, limit int) ([]Verdict, error) {
	path := "/v1/verdicts/recent"
	if limit > 0 {
		params := url.Values{}
		params.Set("limit", strconv.Itoa(limit))
		path += "?" + params.Encode()
	}
	var resp recentResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Verdicts, nil
}

// Summary returns aggregate decision counts and latency over the trailing
// window. A zero window uses the server default of one hour.
func (c *Client) Summary(ctx context.Context, window time.Duration) (*Summary, error) {
	path := "/v1/metrics/summary"
	if window > 0 {
		params := url.Values{}
		params.Set("window", window.String())
		path += "?" + params.Encode()
	}
	var resp Summary
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health checks the gate's health status. This endpoint does not require
// authentication and will work even if the client has an invalid token.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.get(ctx, "/health", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ---------------------------------------------------------------------------
// HTTP transport
// ---------------------------------------------------------------------------

// apiErrorEnvelope is the server's standard error response wrapper.
type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) post(ctx context.Context, path string, body any, dest any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("vigil: marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("vigil: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doRequest(req, dest)
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("vigil: create request: %w", err)
	}

	return c.doRequest(req, dest)
}

func (c *Client) doRequest(req *http.Request, dest any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("vigil: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return handleResponse(resp, dest)
}

func handleResponse(resp *http.Response, dest any) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("vigil: read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var envelope apiErrorEnvelope
		if err := json.Unmarshal(bodyBytes, &envelope); err == nil && envelope.Error.Code != "" {
			return &Error{
				StatusCode: resp.StatusCode,
				Code:       envelope.Error.Code,
				Message:    envelope.Error.Message,
			}
		}
		return &Error{
			StatusCode: resp.StatusCode,
			Code:       "unknown",
			Message:    strings.TrimSpace(string(bodyBytes)),
		}
	}

	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, dest); err != nil {
		return fmt.Errorf("vigil: decode response: %w", err)
	}
	return nil
}
