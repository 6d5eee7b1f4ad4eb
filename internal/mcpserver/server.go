package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all Agenttrust tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("agenttrust", "1.0.0")
	client := NewRegistryClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolLookUpAgent, h.HandleLookUpAgent)
	s.AddTool(ToolListAgents, h.HandleListAgents)
	s.AddTool(ToolGetOwnerStatus, h.HandleGetOwnerStatus)
	s.AddTool(ToolGetAgentFeedback, h.HandleGetAgentFeedback)
	s.AddTool(ToolGetAgentValidations, h.HandleGetAgentValidations)
	s.AddTool(ToolSubmitValidation, h.HandleSubmitValidation)
	s.AddTool(ToolRegistryStats, h.HandleRegistryStats)

	return s
}
