// Package prompts implements MCP prompt handlers for statevault.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to execute a specific sequence. Unlike tools (which
// the AI calls), prompts are initiated by the user.
package prompts

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// HealthPrompt handles the state-health MCP prompt.
// It instructs the AI to check schema version and persistence health.
type HealthPrompt struct{}

// NewHealthPrompt creates a HealthPrompt.
func NewHealthPrompt() *HealthPrompt {
	return &HealthPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *HealthPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("state-health",
		mcp.WithPromptDescription(
			"Check the health of the persisted state. "+
				"Shows the schema version, pending migrations, "+
				"and whether writes are failing.",
		),
	)
}

// Handle processes the state-health prompt request.
func (p *HealthPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{
		Description: "Persisted State Health",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(
					"Please run `state_version` and then `state_diagnostics`.\n\n" +
						"Then:\n" +
						"1. Tell me the current schema version and whether any migrations are pending\n" +
						"2. If persistence is failing, say so first and show the captured exceptions\n" +
						"3. If a migration reported a skip diagnostic, explain which precondition failed\n" +
						"4. Suggest the next step (for example `state_migrate`), or confirm nothing is needed",
				),
			},
		},
	}, nil
}
