package aliases

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/codeforge/codeforge/internal/credstore"
	"github.com/codeforge/codeforge/internal/llm"
	"github.com/codeforge/codeforge/internal/registry"
)

type stubProvider struct {
	id     string
	models []llm.ModelInfo
}

func (s *stubProvider) ProviderID() string { return s.id }
func (s *stubProvider) ListModels(_ context.Context) ([]llm.ModelInfo, error) {
	return s.models, nil
}
func (s *stubProvider) Generate(_ context.Context, _ llm.Request) (llm.Response, error) {
	return llm.Response{}, nil
}
func (s *stubProvider) Stream(_ context.Context, _ llm.Request, _ func(llm.StreamDelta) error) error {
	return nil
}
func (s *stubProvider) SupportsCapability(_ llm.Capability) bool { return false }

func newTestRegistry(t *testing.T, id string, models []llm.ModelInfo) *registry.Registry {
	t.Helper()
	store := credstore.New(filepath.Join(t.TempDir(), "auth.json"))
	if err := store.Set(id, credstore.Record{Type: credstore.TypeAPIKey, Key: "test-key"}); err != nil {
		t.Fatalf("seed credential: %v", err)
	}
	reg := registry.New(store)
	reg.Register(id, func(*credstore.Store) llm.Provider { return &stubProvider{id: id, models: models} }, "", 0)
	return reg
}

func TestPickLatest(t *testing.T) {
	models := []llm.ModelInfo{
		{ID: "claude-opus-4-5"},
		{ID: "claude-opus-4-6"},
		{ID: "claude-opus-4-5-20250929"},
		{ID: "claude-sonnet-4-5-20250929"},
	}

	if got := pickLatest(models, "claude-opus-"); got != "claude-opus-4-6" {
		t.Errorf("pickLatest = %q, want claude-opus-4-6", got)
	}
	if got := pickLatest(models, "claude-sonnet-"); got != "claude-sonnet-4-5-20250929" {
		t.Errorf("pickLatest = %q, want claude-sonnet-4-5-20250929", got)
	}
	if got := pickLatest(models, "nonexistent-"); got != "" {
		t.Errorf("pickLatest = %q, want empty", got)
	}
}

func TestPickLatestExactMatch(t *testing.T) {
	models := []llm.ModelInfo{{ID: "gemini-2.5-pro"}, {ID: "gemini-2.5-flash"}}
	if got := pickLatest(models, "gemini-2.5-pro"); got != "gemini-2.5-pro" {
		t.Errorf("pickLatest exact = %q, want gemini-2.5-pro", got)
	}
}

func TestApplyResolutions(t *testing.T) {
	aliasMap := map[string]string{
		"opus":   "claude-opus-4-5",
		"sonnet": "claude-sonnet-4-5-20250929",
	}
	resolutions := []Resolution{
		{Alias: "opus", Resolved: "claude-opus-4-6", Changed: true},
		{Alias: "sonnet", Resolved: "claude-sonnet-4-5-20250929"},
		{Alias: "haiku", Resolved: "", Error: "no models"},
	}
	if n := ApplyResolutions(aliasMap, resolutions); n != 1 {
		t.Errorf("ApplyResolutions = %d, want 1", n)
	}
	if aliasMap["opus"] != "claude-opus-4-6" {
		t.Errorf("opus = %q, want claude-opus-4-6", aliasMap["opus"])
	}
}

func TestResolve_ProviderNotAvailable(t *testing.T) {
	reg := newTestRegistry(t, "anthropic", nil)
	results := Resolve(context.Background(), reg, nil, []Rule{
		{Alias: "opus", Prefix: "claude-opus-", Provider: "unregistered"},
	})
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Error == "" {
		t.Error("expected error for unregistered provider")
	}
}

func TestResolve_PicksLatestAndReportsChange(t *testing.T) {
	reg := newTestRegistry(t, "anthropic", []llm.ModelInfo{
		{ID: "claude-opus-4-5"},
		{ID: "claude-opus-4-6"},
	})
	results := Resolve(context.Background(), reg, map[string]string{"opus": "claude-opus-4-5"}, []Rule{
		{Alias: "opus", Prefix: "claude-opus-", Provider: "anthropic"},
	})
	if len(results) != 1 || results[0].Resolved != "claude-opus-4-6" || !results[0].Changed {
		t.Fatalf("got %+v, want resolved claude-opus-4-6 and Changed=true", results)
	}
}

func TestDefaultRules(t *testing.T) {
	rules := DefaultRules()
	if len(rules) == 0 {
		t.Fatal("expected non-empty default rules")
	}
	for _, r := range rules {
		if r.Alias == "" || r.Prefix == "" || r.Provider == "" {
			t.Errorf("incomplete rule: %+v", r)
		}
	}
}

func TestExpandAlias(t *testing.T) {
	aliasMap := map[string]string{"opus": "claude-opus-4-6"}
	if got := ExpandAlias(aliasMap, "opus"); got != "claude-opus-4-6" {
		t.Errorf("ExpandAlias = %q, want claude-opus-4-6", got)
	}
	if got := ExpandAlias(aliasMap, "claude-sonnet-4-6"); got != "claude-sonnet-4-6" {
		t.Errorf("ExpandAlias passthrough = %q, want unchanged", got)
	}
}
