package statetools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/statevault/internal/lifecycle"
)

// GetTool handles the state_get MCP tool.
type GetTool struct {
	vault *lifecycle.Vault
}

// NewGetTool creates a GetTool over the given vault.
func NewGetTool(vault *lifecycle.Vault) *GetTool {
	return &GetTool{vault: vault}
}

// Definition returns the MCP tool definition for state_get.
func (t *GetTool) Definition() mcp.Tool {
	return mcp.NewTool("state_get",
		mcp.WithDescription(
			"Return the live state envelope as JSON, or a single controller's state when 'controller' is given.",
		),
		mcp.WithString("controller",
			mcp.Description("Controller name (e.g. NetworkController). Omit for the whole envelope."),
		),
	)
}

// Handle processes the state_get tool call.
func (t *GetTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	controller := req.GetString("controller", "")
	if controller == "" {
		env := t.vault.State()
		if env == nil {
			return mcp.NewToolResultError("state has not been loaded"), nil
		}
		return jsonResult(env)
	}

	value, ok := t.vault.Controller(controller)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("controller %q not found", controller)), nil
	}
	return jsonResult(value)
}
