package prompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// InspectPrompt handles the state-inspect MCP prompt.
// It guides the AI through reading and explaining one controller's state.
type InspectPrompt struct{}

// NewInspectPrompt creates an InspectPrompt.
func NewInspectPrompt() *InspectPrompt {
	return &InspectPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *InspectPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("state-inspect",
		mcp.WithPromptDescription(
			"Inspect one controller in the persisted state and explain its contents.",
		),
		mcp.WithArgument("controller",
			mcp.ArgumentDescription("Controller name, e.g. PermissionController. Default: the whole envelope"),
		),
	)
}

// Handle processes the state-inspect prompt request.
func (p *InspectPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	controller := req.Params.Arguments["controller"]

	call := "`state_get`"
	subject := "the whole state envelope"
	if controller != "" {
		call = fmt.Sprintf("`state_get` with controller=%q", controller)
		subject = fmt.Sprintf("the %s state", controller)
	}

	return &mcp.GetPromptResult{
		Description: "Inspect Persisted State",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"Please run %s and explain %s to me.\n\n"+
						"Point out anything a pending or recent migration would change, "+
						"and anything that looks malformed (wrong types, missing keys). "+
						"Do not modify state unless I ask.",
					call, subject,
				)),
			},
		},
	}, nil
}
