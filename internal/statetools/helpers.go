// Package statetools provides MCP tool handlers for inspecting and editing
// the live persisted state during development.
//
// Each tool follows the same pattern:
// - A struct with dependencies (lifecycle.Vault) injected via constructor
// - Definition() returns the mcp.Tool schema
// - Handle() processes the request and returns a result
//
// Tool failures are returned as error results, never as Go errors, so the
// host sees the message instead of a transport failure.
package statetools

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// jsonResult renders v as indented JSON text.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
