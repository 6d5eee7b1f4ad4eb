package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test helpers ---

func newTestSetup(handler http.Handler) (*Handlers, func()) {
	ts := httptest.NewServer(handler)
	cfg := Config{
		APIURL: ts.URL,
		Token:  "agt_test_token",
	}
	client := NewRegistryClient(cfg)
	h := NewHandlers(client)
	return h, ts.Close
}

func makeRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	if args == nil {
		args = map[string]any{}
	}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content, "expected at least one content block")
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

// ============================================================
// Client tests
// ============================================================

func TestClient_DoRequest_AuthHeader(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := NewRegistryClient(Config{APIURL: ts.URL, Token: "agt_secret123"})
	_, err := client.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer agt_secret123", gotAuth)
}

func TestClient_DoRequest_NoTokenNoHeader(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := NewRegistryClient(Config{APIURL: ts.URL})
	_, err := client.GetStats(context.Background())
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
}

func TestClient_DoRequest_HTTPError_WithAPIMessage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":   "not_found",
			"message": "Agent not found",
		})
	}))
	defer ts.Close()

	client := NewRegistryClient(Config{APIURL: ts.URL})
	_, err := client.GetAgent(context.Background(), 42)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "Agent not found")
}

func TestClient_DoRequest_HTTPError_NonJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream timeout"))
	}))
	defer ts.Close()

	client := NewRegistryClient(Config{APIURL: ts.URL})
	_, err := client.GetStats(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "upstream timeout")
}

func TestClient_DoRequest_ConnectionRefused(t *testing.T) {
	client := NewRegistryClient(Config{APIURL: "http://127.0.0.1:1"})
	_, err := client.GetStats(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
}

func TestClient_DoRequest_CancelledContext(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Second)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := NewRegistryClient(Config{APIURL: ts.URL})
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately
	_, err := client.GetStats(ctx)
	require.Error(t, err)
}

func TestClient_ListAgents_QueryParams(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/agents", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		assert.Equal(t, "10", r.URL.Query().Get("offset"))
		_, _ = w.Write([]byte(`{"agents":[],"count":0}`))
	}))
	defer ts.Close()

	client := NewRegistryClient(Config{APIURL: ts.URL})
	_, err := client.ListAgents(context.Background(), 5, 10)
	require.NoError(t, err)
}

func TestClient_SubmitValidation_Body(t *testing.T) {
	var gotBody map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/validations", r.URL.Path)
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":0,"agentId":3,"resultCode":1}`))
	}))
	defer ts.Close()

	client := NewRegistryClient(Config{APIURL: ts.URL})
	_, err := client.SubmitValidation(context.Background(), 3,
		"0xcccccccccccccccccccccccccccccccccccccccc", "req1", 1, "https://ev.example.com", "latency")
	require.NoError(t, err)

	assert.Equal(t, float64(3), gotBody["agentId"])
	assert.Equal(t, float64(1), gotBody["resultCode"])
	assert.Equal(t, "req1", gotBody["requestHash"])
	assert.Equal(t, "latency", gotBody["tag"])
}

// ============================================================
// Handler tests
// ============================================================

func TestHandleLookUpAgent(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/agents/0", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"id": 0,
			"ownerAddress": "0xaaaa000000000000000000000000000000000001",
			"domain": "bot.example.com",
			"cardURI": "https://bot.example.com/card.json"
		}`))
	}))
	defer cleanup()

	result, err := h.HandleLookUpAgent(context.Background(), makeRequest(map[string]any{
		"agent_id": float64(0),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "bot.example.com")
	assert.Contains(t, text, "0xaaaa000000000000000000000000000000000001")
}

func TestHandleLookUpAgent_MissingID(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("should not reach the API")
	}))
	defer cleanup()

	result, err := h.HandleLookUpAgent(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleListAgents(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"agents":[
			{"id":0,"ownerAddress":"0xa","domain":"one.example.com"},
			{"id":1,"ownerAddress":"0xb","domain":"two.example.com"}
		],"count":2}`))
	}))
	defer cleanup()

	result, err := h.HandleListAgents(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Found 2 agent(s)")
	assert.Contains(t, text, "one.example.com")
	assert.Contains(t, text, "two.example.com")
}

func TestHandleListAgents_Empty(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"agents":[],"count":0}`))
	}))
	defer cleanup()

	result, err := h.HandleListAgents(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "No agents registered")
}

func TestHandleGetOwnerStatus_Registered(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/owners/0xabc", r.URL.Path)
		_, _ = w.Write([]byte(`{"address":"0xabc","registered":true,"identityId":0}`))
	}))
	defer cleanup()

	result, err := h.HandleGetOwnerStatus(context.Background(), makeRequest(map[string]any{
		"address": "0xabc",
	}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "registered as agent 0")
}

func TestHandleGetOwnerStatus_Unregistered(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"address":"0xabc","registered":false}`))
	}))
	defer cleanup()

	result, err := h.HandleGetOwnerStatus(context.Background(), makeRequest(map[string]any{
		"address": "0xabc",
	}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "no agent identity")
}

func TestHandleGetAgentFeedback(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/agents/2/feedback", r.URL.Path)
		_, _ = w.Write([]byte(`{"feedback":[
			{"id":0,"serverId":2,"clientId":1,"dataHash":"hash1","revoked":false},
			{"id":1,"serverId":2,"clientId":3,"dataHash":"hash2","revoked":true}
		],"count":2}`))
	}))
	defer cleanup()

	result, err := h.HandleGetAgentFeedback(context.Background(), makeRequest(map[string]any{
		"agent_id": float64(2),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "hash1")
	assert.Contains(t, text, "REVOKED")
}

func TestHandleGetAgentValidations(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/agents/0/validations", r.URL.Path)
		_, _ = w.Write([]byte(`{"validations":[
			{"id":0,"agentId":0,"validatorAddress":"0xv","requestHash":"req1","resultCode":0,"tag":"latency"},
			{"id":1,"agentId":0,"validatorAddress":"0xv","requestHash":"req2","resultCode":2}
		],"count":2}`))
	}))
	defer cleanup()

	result, err := h.HandleGetAgentValidations(context.Background(), makeRequest(map[string]any{
		"agent_id": float64(0),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "pass")
	assert.Contains(t, text, "disputed")
	assert.Contains(t, text, "latency")
}

func TestHandleSubmitValidation(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":7,"agentId":3,"resultCode":0}`))
	}))
	defer cleanup()

	result, err := h.HandleSubmitValidation(context.Background(), makeRequest(map[string]any{
		"agent_id":          float64(3),
		"validator_address": "0xcccccccccccccccccccccccccccccccccccccccc",
		"request_hash":      "req1",
		"result_code":       float64(0),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Validation recorded")
	assert.Contains(t, text, "pass")
}

func TestHandleSubmitValidation_BadCode(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("should not reach the API")
	}))
	defer cleanup()

	result, err := h.HandleSubmitValidation(context.Background(), makeRequest(map[string]any{
		"agent_id":          float64(3),
		"validator_address": "0xc",
		"request_hash":      "req1",
		"result_code":       float64(9),
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleSubmitValidation_MissingFields(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("should not reach the API")
	}))
	defer cleanup()

	for _, args := range []map[string]any{
		{"validator_address": "0xc", "request_hash": "r", "result_code": float64(0)},
		{"agent_id": float64(1), "request_hash": "r", "result_code": float64(0)},
		{"agent_id": float64(1), "validator_address": "0xc", "result_code": float64(0)},
	} {
		result, err := h.HandleSubmitValidation(context.Background(), makeRequest(args))
		require.NoError(t, err)
		assert.True(t, result.IsError, "expected error for args %v", args)
	}
}

func TestHandleRegistryStats(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/stats", r.URL.Path)
		_, _ = w.Write([]byte(`{"totalAgents":3,"totalFeedback":5,"totalValidations":2}`))
	}))
	defer cleanup()

	result, err := h.HandleRegistryStats(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "totalAgents")
	assert.Contains(t, text, "3")
}

func TestHandleLookUpAgent_APIError(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": "not_found", "message": "Agent not found",
		})
	}))
	defer cleanup()

	result, err := h.HandleLookUpAgent(context.Background(), makeRequest(map[string]any{
		"agent_id": float64(42),
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}
