package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *RegistryClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *RegistryClient) *Handlers {
	return &Handlers{client: client}
}

// HandleLookUpAgent returns one agent identity.
func (h *Handlers) HandleLookUpAgent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, ok := requireAgentID(req)
	if !ok {
		return mcp.NewToolResultError("agent_id is required and must be a non-negative number"), nil
	}

	raw, err := h.client.GetAgent(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to look up agent: %v", err)), nil
	}

	text, err := formatAgent(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse agent: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleListAgents lists registered agents.
func (h *Handlers) HandleListAgents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 20)
	offset := req.GetInt("offset", 0)

	raw, err := h.client.ListAgents(ctx, limit, offset)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list agents: %v", err)), nil
	}

	text, err := formatAgentList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse agents: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleGetOwnerStatus checks whether an address holds an identity.
func (h *Handlers) HandleGetOwnerStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	address := req.GetString("address", "")
	if address == "" {
		return mcp.NewToolResultError("address is required"), nil
	}

	raw, err := h.client.GetOwnerStatus(ctx, address)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get owner status: %v", err)), nil
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse status: %v", err)), nil
	}

	if registered, _ := m["registered"].(bool); registered {
		if id, ok := m["identityId"].(float64); ok {
			return mcp.NewToolResultText(fmt.Sprintf(
				"%s is registered as agent %d.", address, uint64(id))), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("%s is registered.", address)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s holds no agent identity.", address)), nil
}

// HandleGetAgentFeedback returns the feedback history for a server agent.
func (h *Handlers) HandleGetAgentFeedback(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, ok := requireAgentID(req)
	if !ok {
		return mcp.NewToolResultError("agent_id is required and must be a non-negative number"), nil
	}

	raw, err := h.client.GetAgentFeedback(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get feedback: %v", err)), nil
	}

	text, err := formatFeedbackList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse feedback: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleGetAgentValidations returns the validation record for an agent.
func (h *Handlers) HandleGetAgentValidations(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, ok := requireAgentID(req)
	if !ok {
		return mcp.NewToolResultError("agent_id is required and must be a non-negative number"), nil
	}

	raw, err := h.client.GetAgentValidations(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get validations: %v", err)), nil
	}

	text, err := formatValidationList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse validations: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleSubmitValidation records a validation result.
func (h *Handlers) HandleSubmitValidation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, ok := requireAgentID(req)
	if !ok {
		return mcp.NewToolResultError("agent_id is required and must be a non-negative number"), nil
	}
	validator := req.GetString("validator_address", "")
	if validator == "" {
		return mcp.NewToolResultError("validator_address is required"), nil
	}
	requestHash := req.GetString("request_hash", "")
	if requestHash == "" {
		return mcp.NewToolResultError("request_hash is required"), nil
	}
	resultCode := req.GetInt("result_code", -1)
	if resultCode < 0 || resultCode > 2 {
		return mcp.NewToolResultError("result_code must be 0 (pass), 1 (fail) or 2 (disputed)"), nil
	}
	evidenceURI := req.GetString("evidence_uri", "")
	tag := req.GetString("tag", "")

	raw, err := h.client.SubmitValidation(ctx, id, validator, requestHash, uint8(resultCode), evidenceURI, tag)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to submit validation: %v", err)), nil
	}

	var v map[string]any
	if err := json.Unmarshal(raw, &v); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse validation: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Validation recorded.\n"+
			"  Validation ID: %s\n"+
			"  Agent: %s\n"+
			"  Result: %s\n",
		getString(v, "id"), getString(v, "agentId"), resultCodeName(resultCode))), nil
}

// HandleRegistryStats returns registry-wide statistics.
func (h *Handlers) HandleRegistryStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.GetStats(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get registry stats: %v", err)), nil
	}

	return mcp.NewToolResultText(formatJSON(raw)), nil
}

// --- Formatting helpers ---

func requireAgentID(req mcp.CallToolRequest) (uint64, bool) {
	id := req.GetInt("agent_id", -1)
	if id < 0 {
		return 0, false
	}
	return uint64(id), true
}

func resultCodeName(code int) string {
	switch code {
	case 0:
		return "pass"
	case 1:
		return "fail"
	case 2:
		return "disputed"
	default:
		return "unknown"
	}
}

func formatAgent(raw json.RawMessage) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("Agent Identity:\n")
	sb.WriteString(fmt.Sprintf("  ID: %s\n", getString(m, "id")))
	sb.WriteString(fmt.Sprintf("  Owner: %s\n", getString(m, "ownerAddress")))
	sb.WriteString(fmt.Sprintf("  Domain: %s\n", getString(m, "domain")))
	if v := getString(m, "cardURI"); v != "" {
		sb.WriteString(fmt.Sprintf("  Card: %s\n", v))
	}
	if v := getString(m, "registeredAt"); v != "" {
		sb.WriteString(fmt.Sprintf("  Registered: %s\n", v))
	}
	return sb.String(), nil
}

func formatAgentList(raw json.RawMessage) (string, error) {
	var resp struct {
		Agents []map[string]any `json:"agents"`
	}
	// Try as {"agents": [...]}
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Agents == nil {
		// Try as direct array
		if err := json.Unmarshal(raw, &resp.Agents); err != nil {
			return "", fmt.Errorf("unexpected agents response format")
		}
	}

	if len(resp.Agents) == 0 {
		return "No agents registered.", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d agent(s):\n\n", len(resp.Agents)))
	for i, a := range resp.Agents {
		sb.WriteString(fmt.Sprintf("%d. Agent %s — %s\n", i+1, getString(a, "id"), getString(a, "domain")))
		sb.WriteString(fmt.Sprintf("   Owner: %s\n", getString(a, "ownerAddress")))
		if v := getString(a, "cardURI"); v != "" {
			sb.WriteString(fmt.Sprintf("   Card: %s\n", v))
		}
	}
	return sb.String(), nil
}

func formatFeedbackList(raw json.RawMessage) (string, error) {
	var resp struct {
		Feedback []map[string]any `json:"feedback"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("unexpected feedback response format")
	}

	if len(resp.Feedback) == 0 {
		return "No feedback recorded for this agent.", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d feedback entr(ies):\n\n", len(resp.Feedback)))
	for i, fb := range resp.Feedback {
		status := "active"
		if revoked, _ := fb["revoked"].(bool); revoked {
			status = "REVOKED"
		}
		sb.WriteString(fmt.Sprintf("%d. Feedback %s [%s]\n", i+1, getString(fb, "id"), status))
		sb.WriteString(fmt.Sprintf("   From client: %s\n", getString(fb, "clientId")))
		sb.WriteString(fmt.Sprintf("   Data hash: %s\n", getString(fb, "dataHash")))
		if v := getString(fb, "feedbackURI"); v != "" {
			sb.WriteString(fmt.Sprintf("   Detail: %s\n", v))
		}
	}
	return sb.String(), nil
}

func formatValidationList(raw json.RawMessage) (string, error) {
	var resp struct {
		Validations []map[string]any `json:"validations"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("unexpected validations response format")
	}

	if len(resp.Validations) == 0 {
		return "No validations recorded for this agent.", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d validation(s):\n\n", len(resp.Validations)))
	for i, v := range resp.Validations {
		code := -1
		if f, ok := v["resultCode"].(float64); ok {
			code = int(f)
		}
		sb.WriteString(fmt.Sprintf("%d. Validation %s — %s\n", i+1, getString(v, "id"), resultCodeName(code)))
		sb.WriteString(fmt.Sprintf("   Validator: %s\n", getString(v, "validatorAddress")))
		sb.WriteString(fmt.Sprintf("   Request hash: %s\n", getString(v, "requestHash")))
		if t := getString(v, "tag"); t != "" {
			sb.WriteString(fmt.Sprintf("   Tag: %s\n", t))
		}
		if e := getString(v, "evidenceURI"); e != "" {
			sb.WriteString(fmt.Sprintf("   Evidence: %s\n", e))
		}
	}
	return sb.String(), nil
}

func formatJSON(raw json.RawMessage) string {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		return string(raw)
	}
	return pretty.String()
}

// getString extracts a string value from a map, trying multiple key names.
func getString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
			if f, ok := v.(float64); ok {
				return fmt.Sprintf("%g", f)
			}
		}
	}
	return ""
}
