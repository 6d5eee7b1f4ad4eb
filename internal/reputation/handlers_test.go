package reputation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyonlabs/agenttrust/internal/auth"
	"github.com/halcyonlabs/agenttrust/internal/identity"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type handlerFixture struct {
	router *gin.Engine
	agents []testAgent
	tokens map[uint64]string // identity ID -> ownership token
}

func setupHandlerTest(t *testing.T, n int) *handlerFixture {
	t.Helper()

	idents := identity.NewMemoryStore()
	agents := newTestAgents(t, idents, n)

	mgr := auth.NewManager(auth.NewMemoryStore())
	tokens := make(map[uint64]string, n)
	for _, a := range agents {
		raw, _, err := mgr.Issue(context.Background(), a.addr, a.id)
		require.NoError(t, err)
		tokens[a.id] = raw
	}

	h := NewHandler(NewService(NewMemoryStore(), idents), nil)
	r := gin.New()
	r.Use(auth.Middleware(mgr))
	h.RegisterRoutes(r.Group("/v1"), mgr)

	return &handlerFixture{router: r, agents: agents, tokens: tokens}
}

func (f *handlerFixture) do(method, path string, body any, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *handlerFixture) submit(t *testing.T, server, client testAgent, dataHash string) Feedback {
	t.Helper()

	sig := signGrant(t, server, server.id, client.id, dataHash)
	w := f.do("POST", "/v1/feedback", gin.H{
		"serverId":    server.id,
		"dataHash":    dataHash,
		"feedbackURI": "https://feedback.example.com/" + dataHash,
		"signature":   sig.Hex(),
	}, f.tokens[client.id])
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var fb Feedback
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fb))
	return fb
}

func TestSubmitFeedbackHandler(t *testing.T) {
	f := setupHandlerTest(t, 2)
	client, server := f.agents[0], f.agents[1]

	fb := f.submit(t, server, client, "hash1")

	assert.Equal(t, uint64(0), fb.ID)
	assert.Equal(t, server.id, fb.ServerID)
	assert.Equal(t, client.id, fb.ClientID)
	assert.False(t, fb.Revoked)
}

func TestSubmitFeedbackHandlerRequiresToken(t *testing.T) {
	f := setupHandlerTest(t, 2)
	client, server := f.agents[0], f.agents[1]

	sig := signGrant(t, server, server.id, client.id, "hash1")
	w := f.do("POST", "/v1/feedback", gin.H{
		"serverId":  server.id,
		"dataHash":  "hash1",
		"signature": sig.Hex(),
	}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSubmitFeedbackHandlerBadSignature(t *testing.T) {
	f := setupHandlerTest(t, 2)
	client, server := f.agents[0], f.agents[1]

	w := f.do("POST", "/v1/feedback", gin.H{
		"serverId":  server.id,
		"dataHash":  "hash1",
		"signature": "0xdeadbeef",
	}, f.tokens[client.id])
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitFeedbackHandlerWrongSigner(t *testing.T) {
	f := setupHandlerTest(t, 2)
	client, server := f.agents[0], f.agents[1]

	// Grant signed by the client instead of the server
	sig := signGrant(t, client, server.id, client.id, "hash1")
	w := f.do("POST", "/v1/feedback", gin.H{
		"serverId":  server.id,
		"dataHash":  "hash1",
		"signature": sig.Hex(),
	}, f.tokens[client.id])
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSubmitFeedbackHandlerUnknownServer(t *testing.T) {
	f := setupHandlerTest(t, 2)
	client, server := f.agents[0], f.agents[1]

	sig := signGrant(t, server, 99, client.id, "hash1")
	w := f.do("POST", "/v1/feedback", gin.H{
		"serverId":  99,
		"dataHash":  "hash1",
		"signature": sig.Hex(),
	}, f.tokens[client.id])
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetFeedbackHandler(t *testing.T) {
	f := setupHandlerTest(t, 2)
	client, server := f.agents[0], f.agents[1]
	fb := f.submit(t, server, client, "hash1")

	w := f.do("GET", fmt.Sprintf("/v1/feedback/%d", fb.ID), nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var got Feedback
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, fb.ID, got.ID)
	assert.Equal(t, "hash1", got.DataHash)
}

func TestGetFeedbackHandlerNotFound(t *testing.T) {
	f := setupHandlerTest(t, 1)

	w := f.do("GET", "/v1/feedback/5", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRevokeFeedbackHandler(t *testing.T) {
	f := setupHandlerTest(t, 2)
	client, server := f.agents[0], f.agents[1]
	fb := f.submit(t, server, client, "hash1")

	w := f.do("POST", fmt.Sprintf("/v1/feedback/%d/revoke", fb.ID), nil, f.tokens[client.id])
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got Feedback
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.True(t, got.Revoked)
	assert.NotNil(t, got.RevokedAt)

	// Second revocation conflicts
	w = f.do("POST", fmt.Sprintf("/v1/feedback/%d/revoke", fb.ID), nil, f.tokens[client.id])
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRevokeFeedbackHandlerRequiresToken(t *testing.T) {
	f := setupHandlerTest(t, 2)
	client, server := f.agents[0], f.agents[1]
	fb := f.submit(t, server, client, "hash1")

	w := f.do("POST", fmt.Sprintf("/v1/feedback/%d/revoke", fb.ID), nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRevokeFeedbackHandlerServerCannotRevoke(t *testing.T) {
	f := setupHandlerTest(t, 2)
	client, server := f.agents[0], f.agents[1]
	fb := f.submit(t, server, client, "hash1")

	w := f.do("POST", fmt.Sprintf("/v1/feedback/%d/revoke", fb.ID), nil, f.tokens[server.id])
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestListAgentFeedbackHandler(t *testing.T) {
	f := setupHandlerTest(t, 2)
	client, server := f.agents[0], f.agents[1]
	fb := f.submit(t, server, client, "hash1")
	f.submit(t, server, client, "hash2")

	// Revoke the first entry; it must still be listed
	w := f.do("POST", fmt.Sprintf("/v1/feedback/%d/revoke", fb.ID), nil, f.tokens[client.id])
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do("GET", fmt.Sprintf("/v1/agents/%d/feedback", server.id), nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Feedback []Feedback `json:"feedback"`
		Count    int        `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, 2, body.Count)
	assert.True(t, body.Feedback[0].Revoked)
	assert.False(t, body.Feedback[1].Revoked)
}

func TestListAgentFeedbackHandlerPaging(t *testing.T) {
	f := setupHandlerTest(t, 2)
	client, server := f.agents[0], f.agents[1]
	for i := 0; i < 4; i++ {
		f.submit(t, server, client, fmt.Sprintf("hash%d", i))
	}

	w := f.do("GET", fmt.Sprintf("/v1/agents/%d/feedback?limit=2&offset=1", server.id), nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Feedback []Feedback `json:"feedback"`
		Count    int        `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 4, body.Count, "count reports the full history")
	require.Len(t, body.Feedback, 2)
	assert.Equal(t, "hash1", body.Feedback[0].DataHash)
	assert.Equal(t, "hash2", body.Feedback[1].DataHash)
}

func TestListAgentFeedbackHandlerUnknownAgent(t *testing.T) {
	f := setupHandlerTest(t, 1)

	w := f.do("GET", "/v1/agents/42/feedback", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
