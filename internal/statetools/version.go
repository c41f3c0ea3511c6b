package statetools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/statevault/internal/lifecycle"
)

// VersionTool handles the state_version MCP tool.
type VersionTool struct {
	vault *lifecycle.Vault
}

// NewVersionTool creates a VersionTool over the given vault.
func NewVersionTool(vault *lifecycle.Vault) *VersionTool {
	return &VersionTool{vault: vault}
}

// Definition returns the MCP tool definition for state_version.
func (t *VersionTool) Definition() mcp.Tool {
	return mcp.NewTool("state_version",
		mcp.WithDescription(
			"Show the schema version of the live state, the latest known migration, any migrations still pending, and every registered migration.",
		),
	)
}

// Handle processes the state_version tool call.
func (t *VersionTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	env := t.vault.State()
	if env == nil {
		return mcp.NewToolResultError("state has not been loaded"), nil
	}
	runner := t.vault.Runner()

	var sb strings.Builder
	sb.WriteString("## State Version\n\n")
	sb.WriteString(fmt.Sprintf("- **Current**: %d\n", env.Version()))
	sb.WriteString(fmt.Sprintf("- **Latest**: %d\n", runner.LatestVersion()))

	if !runner.NeedsMigration(env) {
		sb.WriteString("- **Pending**: none\n")
	} else {
		pending := runner.Pending(env)
		sb.WriteString(fmt.Sprintf("- **Pending** (%d):\n", len(pending)))
		for _, m := range pending {
			sb.WriteString(fmt.Sprintf("  - %d %s\n", m.Version, m.Name))
		}
	}

	known := runner.Migrations()
	sb.WriteString(fmt.Sprintf("\n### Known migrations (%d)\n\n", len(known)))
	for _, m := range known {
		sb.WriteString(fmt.Sprintf("- %d %s\n", m.Version, m.Name))
	}
	return mcp.NewToolResultText(sb.String()), nil
}
