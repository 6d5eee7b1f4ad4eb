package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the Agenttrust MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolLookUpAgent = mcp.NewTool("look_up_agent",
	mcp.WithDescription(
		"Look up one agent identity on the Agenttrust registry by its numeric ID. "+
			"Returns the owner address, claimed domain, and agent card URI."),
	mcp.WithNumber("agent_id",
		mcp.Required(),
		mcp.Description("The agent's registry ID (first registered agent is 0)")),
)

var ToolListAgents = mcp.NewTool("list_agents",
	mcp.WithDescription(
		"Browse registered agent identities on the Agenttrust registry. "+
			"Returns agents in registration order with owner address and domain."),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of agents to return (default 20)")),
	mcp.WithNumber("offset",
		mcp.Description("Number of agents to skip, for paging")),
)

var ToolGetOwnerStatus = mcp.NewTool("get_owner_status",
	mcp.WithDescription(
		"Check whether an address holds an agent identity. "+
			"Returns the identity ID if registered."),
	mcp.WithString("address",
		mcp.Required(),
		mcp.Description("The owner address to check (e.g. '0x1234...')")),
)

var ToolGetAgentFeedback = mcp.NewTool("get_agent_feedback",
	mcp.WithDescription(
		"Get the feedback history for a server agent on the Agenttrust registry. "+
			"Includes revoked entries (marked as such) so you can judge the full record."),
	mcp.WithNumber("agent_id",
		mcp.Required(),
		mcp.Description("The server agent's registry ID")),
)

var ToolGetAgentValidations = mcp.NewTool("get_agent_validations",
	mcp.WithDescription(
		"Get independent validation results for an agent: pass, fail, or disputed, "+
			"with the validator's address and optional evidence URI."),
	mcp.WithNumber("agent_id",
		mcp.Required(),
		mcp.Description("The agent's registry ID")),
)

var ToolSubmitValidation = mcp.NewTool("submit_validation",
	mcp.WithDescription(
		"Record a validation result for an agent's work. "+
			"Any address may validate; no registration is required. "+
			"Result codes: 0 = pass, 1 = fail, 2 = disputed."),
	mcp.WithNumber("agent_id",
		mcp.Required(),
		mcp.Description("The registry ID of the agent being validated")),
	mcp.WithString("validator_address",
		mcp.Required(),
		mcp.Description("Your validator address (e.g. '0x1234...')")),
	mcp.WithString("request_hash",
		mcp.Required(),
		mcp.Description("Hash identifying the validated request or work product")),
	mcp.WithNumber("result_code",
		mcp.Required(),
		mcp.Description("Validation outcome: 0 (pass), 1 (fail), or 2 (disputed)")),
	mcp.WithString("evidence_uri",
		mcp.Description("Optional URI pointing to validation evidence")),
	mcp.WithString("tag",
		mcp.Description("Optional free-form tag (e.g. 'latency', 'accuracy')")),
)

var ToolRegistryStats = mcp.NewTool("registry_stats",
	mcp.WithDescription(
		"Get Agenttrust registry statistics: total agents, feedback entries, and validations."),
)
