package statetools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/statevault/internal/lifecycle"
)

// MigrateTool handles the state_migrate MCP tool.
type MigrateTool struct {
	vault *lifecycle.Vault
}

// NewMigrateTool creates a MigrateTool over the given vault.
func NewMigrateTool(vault *lifecycle.Vault) *MigrateTool {
	return &MigrateTool{vault: vault}
}

// Definition returns the MCP tool definition for state_migrate.
func (t *MigrateTool) Definition() mcp.Tool {
	return mcp.NewTool("state_migrate",
		mcp.WithDescription(
			"Re-read persisted state from the backing store, apply every pending migration in order, "+
				"and persist after each step. The result becomes the live state.",
		),
	)
}

// Handle processes the state_migrate tool call.
func (t *MigrateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := t.vault.Boot(ctx, nil)
	if err != nil {
		msg := fmt.Sprintf("migration failed: %v", err)
		if res != nil && res.Envelope != nil {
			msg += fmt.Sprintf(" (state left at version %d)", res.Envelope.Version())
		}
		return mcp.NewToolResultError(msg), nil
	}

	var sb strings.Builder
	sb.WriteString("## Migration\n\n")
	switch {
	case res.FreshInstall:
		sb.WriteString(fmt.Sprintf("No persisted state found. Started fresh at version %d.\n", res.Envelope.Version()))
	case len(res.Applied) == 0:
		sb.WriteString(fmt.Sprintf("Already at version %d. Nothing to do.\n", res.Envelope.Version()))
	default:
		applied := make([]string, len(res.Applied))
		for i, v := range res.Applied {
			applied[i] = fmt.Sprintf("%d", v)
		}
		sb.WriteString(fmt.Sprintf("- **From**: %d\n", res.FromVersion))
		sb.WriteString(fmt.Sprintf("- **To**: %d\n", res.Envelope.Version()))
		sb.WriteString(fmt.Sprintf("- **Applied**: %s\n", strings.Join(applied, ", ")))
	}
	return mcp.NewToolResultText(sb.String()), nil
}
