package statetools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/statevault/internal/lifecycle"
	"github.com/HendryAvila/statevault/internal/migrations"
	"github.com/HendryAvila/statevault/internal/persistence"
	"github.com/HendryAvila/statevault/internal/storage"
	"github.com/HendryAvila/statevault/internal/telemetry"
)

// ─── Test helpers ────────────────────────────────────────────────────────────

// flakyStore is a MemoryStore whose writes can be made to fail.
type flakyStore struct {
	*storage.MemoryStore
	setErr error
}

func (s *flakyStore) Set(ctx context.Context, env storage.Envelope) error {
	if s.setErr != nil {
		return s.setErr
	}
	return s.MemoryStore.Set(ctx, env)
}

func noopMigration(version int) migrations.Migration {
	return migrations.Migration{
		Version: version,
		Name:    "noop",
		Migrate: func(_ context.Context, env *storage.Envelope, _ migrations.Deps) (*storage.Envelope, error) {
			return env, nil
		},
	}
}

// newTestVault boots a vault over seed with migrations 1..3.
func newTestVault(t *testing.T, seed *storage.Envelope) (*lifecycle.Vault, *flakyStore, *telemetry.Recorder) {
	t.Helper()
	store := &flakyStore{MemoryStore: storage.NewMemoryStore(seed)}
	rec := &telemetry.Recorder{}
	runner, err := migrations.NewRunner([]migrations.Migration{noopMigration(1), noopMigration(2), noopMigration(3)})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	vault := lifecycle.NewVault(persistence.New(store, persistence.WithReporter(rec)), runner, nil)
	if _, err := vault.Boot(context.Background(), map[string]any{"AppStateController": map[string]any{"theme": "dark"}}); err != nil {
		t.Fatalf("Boot: %v", err)
	}
	return vault, store, rec
}

// makeReq builds a mcp.CallToolRequest with the given arguments.
func makeReq(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// resultText extracts the text content from a tool result.
func resultText(r *mcp.CallToolResult) string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// ─── GetTool ─────────────────────────────────────────────────────────────────

func TestGetTool_Definition(t *testing.T) {
	vault, _, _ := newTestVault(t, nil)
	def := NewGetTool(vault).Definition()

	if def.Name != "state_get" {
		t.Errorf("tool name = %q, want %q", def.Name, "state_get")
	}
	if _, ok := def.InputSchema.Properties["controller"]; !ok {
		t.Error("missing 'controller' parameter")
	}
}

func TestGetTool_WholeEnvelope(t *testing.T) {
	vault, _, _ := newTestVault(t, nil)

	result, err := NewGetTool(vault).Handle(context.Background(), makeReq(nil))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", resultText(result))
	}

	var env storage.Envelope
	if err := json.Unmarshal([]byte(resultText(result)), &env); err != nil {
		t.Fatalf("result is not an envelope: %v", err)
	}
	if env.Version() != 3 {
		t.Errorf("version = %d, want 3", env.Version())
	}
	if _, ok := env.Data["AppStateController"]; !ok {
		t.Error("AppStateController missing from envelope")
	}
}

func TestGetTool_SingleController(t *testing.T) {
	vault, _, _ := newTestVault(t, nil)

	result, _ := NewGetTool(vault).Handle(context.Background(), makeReq(map[string]interface{}{
		"controller": "AppStateController",
	}))
	text := resultText(result)
	if !strings.Contains(text, `"theme": "dark"`) {
		t.Errorf("expected controller JSON, got: %s", text)
	}
}

func TestGetTool_UnknownController(t *testing.T) {
	vault, _, _ := newTestVault(t, nil)

	result, _ := NewGetTool(vault).Handle(context.Background(), makeReq(map[string]interface{}{
		"controller": "NopeController",
	}))
	if !result.IsError {
		t.Error("expected error result for unknown controller")
	}
}

func TestGetTool_NotBooted(t *testing.T) {
	runner, _ := migrations.NewRunner(nil)
	vault := lifecycle.NewVault(persistence.New(storage.NewMemoryStore(nil)), runner, nil)

	result, _ := NewGetTool(vault).Handle(context.Background(), makeReq(nil))
	if !result.IsError {
		t.Error("expected error result before boot")
	}
}

// ─── VersionTool ─────────────────────────────────────────────────────────────

func TestVersionTool_UpToDate(t *testing.T) {
	vault, _, _ := newTestVault(t, nil)

	result, _ := NewVersionTool(vault).Handle(context.Background(), makeReq(nil))
	text := resultText(result)

	for _, want := range []string{"**Current**: 3", "**Latest**: 3", "**Pending**: none", "Known migrations (3)", "- 1 noop", "- 3 noop"} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in:\n%s", want, text)
		}
	}
}

func TestVersionTool_NewerThanLatest(t *testing.T) {
	vault, _, _ := newTestVault(t, &storage.Envelope{Meta: &storage.Meta{Version: 9}, Data: map[string]any{"A": 1}})

	result, _ := NewVersionTool(vault).Handle(context.Background(), makeReq(nil))
	text := resultText(result)
	if !strings.Contains(text, "**Current**: 9") {
		t.Errorf("expected current 9, got:\n%s", text)
	}
}

// ─── MigrateTool ─────────────────────────────────────────────────────────────

func TestMigrateTool_AppliesPending(t *testing.T) {
	vault, store, _ := newTestVault(t, nil)

	// Another process rolls the store back to version 1.
	if err := store.MemoryStore.Set(context.Background(), storage.Envelope{
		Meta: &storage.Meta{Version: 1},
		Data: map[string]any{"A": "b"},
	}); err != nil {
		t.Fatal(err)
	}

	result, _ := NewMigrateTool(vault).Handle(context.Background(), makeReq(nil))
	text := resultText(result)
	if result.IsError {
		t.Fatalf("unexpected error: %s", text)
	}
	if !strings.Contains(text, "**Applied**: 2, 3") {
		t.Errorf("expected applied 2, 3 in:\n%s", text)
	}
	if v := vault.State().Version(); v != 3 {
		t.Errorf("live version = %d, want 3", v)
	}
}

func TestMigrateTool_NothingToDo(t *testing.T) {
	vault, _, _ := newTestVault(t, nil)

	result, _ := NewMigrateTool(vault).Handle(context.Background(), makeReq(nil))
	if !strings.Contains(resultText(result), "Nothing to do") {
		t.Errorf("expected nothing-to-do message, got: %s", resultText(result))
	}
}

// ─── SetControllerTool ───────────────────────────────────────────────────────

func TestSetControllerTool_Definition(t *testing.T) {
	vault, _, _ := newTestVault(t, nil)
	def := NewSetControllerTool(vault).Definition()

	if def.Name != "state_set_controller" {
		t.Errorf("tool name = %q", def.Name)
	}
	required := map[string]bool{}
	for _, r := range def.InputSchema.Required {
		required[r] = true
	}
	if !required["controller"] || !required["value"] {
		t.Errorf("required = %v, want controller and value", def.InputSchema.Required)
	}
}

func TestSetControllerTool_Persists(t *testing.T) {
	vault, store, _ := newTestVault(t, nil)

	result, _ := NewSetControllerTool(vault).Handle(context.Background(), makeReq(map[string]interface{}{
		"controller": "SelectedNetworkController",
		"value":      `{"domains": {"https://example.com": "0x1"}}`,
	}))
	if result.IsError {
		t.Fatalf("unexpected error: %s", resultText(result))
	}
	if !strings.Contains(resultText(result), "persisted") {
		t.Errorf("got: %s", resultText(result))
	}

	persisted, _ := store.MemoryStore.Get(context.Background())
	snc, ok := persisted.Data["SelectedNetworkController"].(map[string]any)
	if !ok {
		t.Fatalf("SelectedNetworkController not persisted: %+v", persisted.Data)
	}
	domains := snc["domains"].(map[string]any)
	if domains["https://example.com"] != "0x1" {
		t.Errorf("domains = %v", domains)
	}
}

func TestSetControllerTool_InvalidJSON(t *testing.T) {
	vault, _, _ := newTestVault(t, nil)

	result, _ := NewSetControllerTool(vault).Handle(context.Background(), makeReq(map[string]interface{}{
		"controller": "A",
		"value":      `{not json`,
	}))
	if !result.IsError {
		t.Error("expected error result for invalid JSON")
	}
}

func TestSetControllerTool_MissingArgs(t *testing.T) {
	vault, _, _ := newTestVault(t, nil)
	tool := NewSetControllerTool(vault)

	for _, args := range []map[string]interface{}{
		{"value": "1"},
		{"controller": "A"},
	} {
		result, _ := tool.Handle(context.Background(), makeReq(args))
		if !result.IsError {
			t.Errorf("expected error result for args %v", args)
		}
	}
}

func TestSetControllerTool_StorageFailure(t *testing.T) {
	vault, store, rec := newTestVault(t, nil)
	store.setErr = errors.New("quota exceeded")

	result, _ := NewSetControllerTool(vault).Handle(context.Background(), makeReq(map[string]interface{}{
		"controller": "A",
		"value":      `"x"`,
	}))
	if result.IsError {
		t.Fatalf("storage failure must not be a tool error: %s", resultText(result))
	}
	if !strings.Contains(resultText(result), "persistence is failing") {
		t.Errorf("got: %s", resultText(result))
	}
	if rec.Count() != 1 {
		t.Errorf("captured = %d, want 1", rec.Count())
	}
}

// ─── DiagnosticsTool ─────────────────────────────────────────────────────────

func TestDiagnosticsTool_Healthy(t *testing.T) {
	vault, _, rec := newTestVault(t, nil)

	result, _ := NewDiagnosticsTool(vault, rec).Handle(context.Background(), makeReq(nil))
	text := resultText(result)

	for _, want := range []string{
		"**Persistence failing**: false",
		"**Initialized**: true",
		"**Write version**: 3",
		"**Snapshot**: none",
		"**Captured exceptions**: 0",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in:\n%s", want, text)
		}
	}
}

func TestDiagnosticsTool_ReportsFailuresAndSnapshot(t *testing.T) {
	vault, store, rec := newTestVault(t, &storage.Envelope{
		Meta: &storage.Meta{Version: 3},
		Data: map[string]any{"A": 1, "B": 2},
	})
	store.setErr = errors.New("disk full")
	if err := vault.SetController(context.Background(), "A", 5); err != nil {
		t.Fatal(err)
	}

	tool := NewDiagnosticsTool(vault, rec)
	result, _ := tool.Handle(context.Background(), makeReq(map[string]interface{}{"clear_snapshot": true}))
	text := resultText(result)

	for _, want := range []string{
		"**Persistence failing**: true",
		"**Snapshot**: version 3, 2 controllers",
		"**Captured exceptions**: 1",
		"disk full",
		"Snapshot cleared.",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in:\n%s", want, text)
		}
	}

	result, _ = tool.Handle(context.Background(), makeReq(nil))
	if !strings.Contains(resultText(result), "**Snapshot**: none") {
		t.Errorf("snapshot should be gone:\n%s", resultText(result))
	}
}

func TestDiagnosticsTool_NilRecorder(t *testing.T) {
	vault, _, _ := newTestVault(t, nil)

	result, _ := NewDiagnosticsTool(vault, nil).Handle(context.Background(), makeReq(nil))
	if strings.Contains(resultText(result), "Captured exceptions") {
		t.Error("exceptions section should be omitted without a recorder")
	}
}
