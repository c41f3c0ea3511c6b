// Package resources implements MCP resource handlers for persisted state.
//
// Resources provide read-only data that the host can consume for context.
// They use URI-based addressing (statevault://...) following MCP conventions.
package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/statevault/internal/lifecycle"
)

// Resource URIs.
const (
	SnapshotURI = "statevault://diagnostics/snapshot"
	StateURI    = "statevault://state/current"
)

// Handler manages statevault resource endpoints.
type Handler struct {
	vault *lifecycle.Vault
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(vault *lifecycle.Vault) *Handler {
	return &Handler{vault: vault}
}

// SnapshotResource returns the MCP resource definition for the diagnostic
// snapshot.
func (h *Handler) SnapshotResource() mcp.Resource {
	return mcp.NewResource(
		SnapshotURI,
		"Pre-write State Snapshot",
		mcp.WithResourceDescription("The envelope last read from storage before the first write of this session"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleSnapshot returns the diagnostic snapshot as JSON.
func (h *Handler) HandleSnapshot(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	snap := h.vault.Manager().MostRecentRetrievedState()
	if snap == nil {
		return errorResource(req.Params.URI, "no snapshot: nothing was read before the first write, or it was cleared"), nil
	}
	return jsonResource(req.Params.URI, snap)
}

// StateResource returns the MCP resource definition for the live state.
func (h *Handler) StateResource() mcp.Resource {
	return mcp.NewResource(
		StateURI,
		"Live State Envelope",
		mcp.WithResourceDescription("The current in-memory state envelope, including its schema version"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleState returns the live envelope as JSON.
func (h *Handler) HandleState(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	env := h.vault.State()
	if env == nil {
		return errorResource(req.Params.URI, "state has not been loaded"), nil
	}
	return jsonResource(req.Params.URI, env)
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// errorResource returns a resource with an error message.
func errorResource(uri, message string) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     fmt.Sprintf("Error: %s", message),
		},
	}
}
