package statetools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/statevault/internal/lifecycle"
	"github.com/HendryAvila/statevault/internal/telemetry"
)

// maxListedExceptions caps how many captured exceptions are printed.
const maxListedExceptions = 10

// DiagnosticsTool handles the state_diagnostics MCP tool.
type DiagnosticsTool struct {
	vault    *lifecycle.Vault
	recorder *telemetry.Recorder
}

// NewDiagnosticsTool creates a DiagnosticsTool. recorder may be nil.
func NewDiagnosticsTool(vault *lifecycle.Vault, recorder *telemetry.Recorder) *DiagnosticsTool {
	return &DiagnosticsTool{vault: vault, recorder: recorder}
}

// Definition returns the MCP tool definition for state_diagnostics.
func (t *DiagnosticsTool) Definition() mcp.Tool {
	return mcp.NewTool("state_diagnostics",
		mcp.WithDescription(
			"Show persistence health: whether writes are failing, whether a write has happened, "+
				"the version of the pre-write snapshot, and recently captured exceptions.",
		),
		mcp.WithBoolean("clear_snapshot",
			mcp.Description("Drop the diagnostic snapshot after reporting it (default: false)"),
		),
	)
}

// Handle processes the state_diagnostics tool call.
func (t *DiagnosticsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	m := t.vault.Manager()

	var sb strings.Builder
	sb.WriteString("## Persistence Diagnostics\n\n")
	sb.WriteString(fmt.Sprintf("- **Persistence failing**: %t\n", m.DataPersistenceFailing()))
	sb.WriteString(fmt.Sprintf("- **Initialized**: %t\n", m.IsInitialized()))

	if meta := m.Metadata(); meta != nil {
		sb.WriteString(fmt.Sprintf("- **Write version**: %d\n", meta.Version))
	} else {
		sb.WriteString("- **Write version**: not set\n")
	}

	if snap := m.MostRecentRetrievedState(); snap != nil {
		sb.WriteString(fmt.Sprintf("- **Snapshot**: version %d, %d controllers\n", snap.Version(), len(snap.Data)))
	} else {
		sb.WriteString("- **Snapshot**: none\n")
	}

	if t.recorder != nil {
		errs := t.recorder.Errors()
		sb.WriteString(fmt.Sprintf("- **Captured exceptions**: %d\n", len(errs)))
		start := max(0, len(errs)-maxListedExceptions)
		for _, err := range errs[start:] {
			sb.WriteString(fmt.Sprintf("  - %v\n", err))
		}
	}

	if req.GetBool("clear_snapshot", false) {
		m.CleanUpMostRecentRetrievedState()
		sb.WriteString("\nSnapshot cleared.\n")
	}

	return mcp.NewToolResultText(sb.String()), nil
}
