package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config holds the configuration for connecting to the Agenttrust registry.
type Config struct {
	APIURL string // Base URL, e.g. "http://localhost:8080"
	Token  string // Ownership token, e.g. "agt_..." (optional, only needed for owner-gated tools)
}

// RegistryClient is a pure HTTP client for the Agenttrust registry API.
type RegistryClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewRegistryClient creates a new client for the Agenttrust registry.
func NewRegistryClient(cfg Config) *RegistryClient {
	return &RegistryClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError represents an error response from the registry.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request to the registry and returns the response body.
func (c *RegistryClient) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// GetAgent looks up one agent identity by ID.
func (c *RegistryClient) GetAgent(ctx context.Context, id uint64) (json.RawMessage, error) {
	path := "/v1/agents/" + strconv.FormatUint(id, 10)
	return c.doRequest(ctx, http.MethodGet, path, nil, nil)
}

// ListAgents lists registered agents with paging.
func (c *RegistryClient) ListAgents(ctx context.Context, limit, offset int) (json.RawMessage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/agents", q, nil)
}

// GetOwnerStatus reports whether an address holds an identity.
func (c *RegistryClient) GetOwnerStatus(ctx context.Context, address string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/owners/"+address, nil, nil)
}

// GetAgentFeedback returns all feedback for a server agent, revoked entries included.
func (c *RegistryClient) GetAgentFeedback(ctx context.Context, agentID uint64) (json.RawMessage, error) {
	path := "/v1/agents/" + strconv.FormatUint(agentID, 10) + "/feedback"
	return c.doRequest(ctx, http.MethodGet, path, nil, nil)
}

// GetAgentValidations returns all validation entries for an agent.
func (c *RegistryClient) GetAgentValidations(ctx context.Context, agentID uint64) (json.RawMessage, error) {
	path := "/v1/agents/" + strconv.FormatUint(agentID, 10) + "/validations"
	return c.doRequest(ctx, http.MethodGet, path, nil, nil)
}

// SubmitValidation records an independent validation of an agent.
func (c *RegistryClient) SubmitValidation(ctx context.Context, agentID uint64, validatorAddr, requestHash string, resultCode uint8, evidenceURI, tag string) (json.RawMessage, error) {
	body := map[string]any{
		"agentId":          agentID,
		"validatorAddress": validatorAddr,
		"requestHash":      requestHash,
		"resultCode":       resultCode,
		"evidenceURI":      evidenceURI,
		"tag":              tag,
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/validations", nil, body)
}

// GetStats returns registry-wide statistics.
func (c *RegistryClient) GetStats(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/stats", nil, nil)
}
