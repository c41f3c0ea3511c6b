package statetools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/statevault/internal/lifecycle"
)

// SetControllerTool handles the state_set_controller MCP tool.
type SetControllerTool struct {
	vault *lifecycle.Vault
}

// NewSetControllerTool creates a SetControllerTool over the given vault.
func NewSetControllerTool(vault *lifecycle.Vault) *SetControllerTool {
	return &SetControllerTool{vault: vault}
}

// Definition returns the MCP tool definition for state_set_controller.
func (t *SetControllerTool) Definition() mcp.Tool {
	return mcp.NewTool("state_set_controller",
		mcp.WithDescription(
			"Replace one controller's state in the live tree and persist it. "+
				"Storage failures are reported through diagnostics, not as tool errors.",
		),
		mcp.WithString("controller",
			mcp.Required(),
			mcp.Description("Controller name (e.g. SelectedNetworkController)"),
		),
		mcp.WithString("value",
			mcp.Required(),
			mcp.Description("New controller state as a JSON document"),
		),
	)
}

// Handle processes the state_set_controller tool call.
func (t *SetControllerTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	controller := req.GetString("controller", "")
	raw := req.GetString("value", "")

	if controller == "" {
		return mcp.NewToolResultError("'controller' is required"), nil
	}
	if raw == "" {
		return mcp.NewToolResultError("'value' is required"), nil
	}

	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("'value' is not valid JSON: %v", err)), nil
	}

	if err := t.vault.SetController(ctx, controller, value); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to set %s: %v", controller, err)), nil
	}

	status := "persisted"
	if t.vault.Manager().DataPersistenceFailing() {
		status = "kept in memory (persistence is failing)"
	}
	return mcp.NewToolResultText(fmt.Sprintf("Updated %s: %s.", controller, status)), nil
}
