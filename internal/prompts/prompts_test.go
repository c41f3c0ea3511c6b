package prompts

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func promptText(t *testing.T, r *mcp.GetPromptResult) string {
	t.Helper()
	if r == nil || len(r.Messages) != 1 {
		t.Fatalf("want 1 message, got %+v", r)
	}
	tc, ok := r.Messages[0].Content.(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want TextContent", r.Messages[0].Content)
	}
	return tc.Text
}

func TestHealthPrompt(t *testing.T) {
	p := NewHealthPrompt()
	if got := p.Definition().Name; got != "state-health" {
		t.Errorf("name = %q, want state-health", got)
	}

	result, err := p.Handle(context.Background(), mcp.GetPromptRequest{})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	text := promptText(t, result)
	for _, want := range []string{"state_version", "state_diagnostics"} {
		if !strings.Contains(text, want) {
			t.Errorf("prompt should mention %s", want)
		}
	}
}

func TestInspectPrompt_WithController(t *testing.T) {
	req := mcp.GetPromptRequest{}
	req.Params.Arguments = map[string]string{"controller": "PermissionController"}

	result, err := NewInspectPrompt().Handle(context.Background(), req)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	text := promptText(t, result)
	if !strings.Contains(text, `controller="PermissionController"`) {
		t.Errorf("prompt should pass the controller through:\n%s", text)
	}
}

func TestInspectPrompt_WholeEnvelope(t *testing.T) {
	result, err := NewInspectPrompt().Handle(context.Background(), mcp.GetPromptRequest{})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !strings.Contains(promptText(t, result), "the whole state envelope") {
		t.Error("expected whole-envelope wording")
	}
}
