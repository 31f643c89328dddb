package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/codeforge/codeforge/internal/credstore"
	"github.com/codeforge/codeforge/internal/llm"
)

// stubProvider is a minimal llm.Provider for testing registry lookup,
// mirroring router_test.go's stubHarness.
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

func newTestStore(t *testing.T) *credstore.Store {
	t.Helper()
	return credstore.New(filepath.Join(t.TempDir(), "auth.json"))
}

func TestListAvailableProviders_StoredAndEnvFallback(t *testing.T) {
	store := newTestStore(t)
	if err := store.Set("anthropic", credstore.Record{Type: credstore.TypeAPIKey, Key: "sk-ant-test"}); err != nil {
		t.Fatalf("seed credential: %v", err)
	}
	t.Setenv("OPENAI_API_KEY", "sk-test")
	os.Unsetenv("GOOGLE_API_KEY")

	r := New(store)
	r.Register("anthropic", func(s *credstore.Store) llm.Provider { return &stubProvider{id: "anthropic"} }, "ANTHROPIC_API_KEY", 0)
	r.Register("openai", func(s *credstore.Store) llm.Provider { return &stubProvider{id: "openai"} }, "OPENAI_API_KEY", 1)
	r.Register("google", func(s *credstore.Store) llm.Provider { return &stubProvider{id: "google"} }, "GOOGLE_API_KEY", 2)

	got, err := r.ListAvailableProviders()
	if err != nil {
		t.Fatalf("ListAvailableProviders: %v", err)
	}
	want := []string{"anthropic", "openai"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestGetBestModel_PicksLowestPreferenceAvailable(t *testing.T) {
	store := newTestStore(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")

	r := New(store)
	r.Register("anthropic", func(s *credstore.Store) llm.Provider { return &stubProvider{id: "anthropic"} }, "ANTHROPIC_API_KEY", 0)
	r.Register("openai", func(s *credstore.Store) llm.Provider { return &stubProvider{id: "openai"} }, "OPENAI_API_KEY", 1)

	handle, err := r.GetBestModel("gpt-5.2")
	if err != nil {
		t.Fatalf("GetBestModel: %v", err)
	}
	if handle.Provider.ProviderID() != "openai" {
		t.Fatalf("got provider %q, want openai", handle.Provider.ProviderID())
	}
	if handle.ModelID != "gpt-5.2" {
		t.Fatalf("got model %q, want gpt-5.2", handle.ModelID)
	}
}

func TestGetBestModel_NoneAvailable(t *testing.T) {
	store := newTestStore(t)
	r := New(store)
	r.Register("anthropic", func(s *credstore.Store) llm.Provider { return &stubProvider{id: "anthropic"} }, "ANTHROPIC_API_KEY", 0)

	if _, err := r.GetBestModel("claude-sonnet-4-6"); err == nil {
		t.Fatal("expected error when no providers are available")
	}
}

func TestGetModel_UnknownProvider(t *testing.T) {
	store := newTestStore(t)
	r := New(store)

	if _, err := r.GetModel("unknown", "model"); err == nil {
		t.Fatal("expected error for unregistered provider id")
	}
}

func TestResolveProvider_CachesConstructedAdapter(t *testing.T) {
	store := newTestStore(t)
	if err := store.Set("anthropic", credstore.Record{Type: credstore.TypeAPIKey, Key: "sk-ant-test"}); err != nil {
		t.Fatalf("seed credential: %v", err)
	}

	calls := 0
	r := New(store)
	r.Register("anthropic", func(s *credstore.Store) llm.Provider {
		calls++
		return &stubProvider{id: "anthropic"}
	}, "ANTHROPIC_API_KEY", 0)

	if _, err := r.GetModel("anthropic", "claude-sonnet-4-6"); err != nil {
		t.Fatalf("GetModel: %v", err)
	}
	if _, err := r.GetModel("anthropic", "claude-opus-4-6"); err != nil {
		t.Fatalf("GetModel: %v", err)
	}
	if calls != 1 {
		t.Fatalf("factory called %d times, want 1 (cached)", calls)
	}
}

func TestLoadModelsDevConfigs_MergesByProvider(t *testing.T) {
	store := newTestStore(t)
	r := New(store)

	data := []byte(`[
		{"provider_id": "anthropic", "model_id": "claude-sonnet-4-6", "context_limit": 200000, "supports_tool_call": true},
		{"provider_id": "openai", "model_id": "gpt-5.2", "context_limit": 128000, "supports_streaming": true}
	]`)

	merged, err := r.LoadModelsDevConfigs(data)
	if err != nil {
		t.Fatalf("LoadModelsDevConfigs: %v", err)
	}
	if len(merged["anthropic"]) != 1 || merged["anthropic"][0].ID != "claude-sonnet-4-6" {
		t.Fatalf("unexpected anthropic entries: %+v", merged["anthropic"])
	}
	if len(merged["openai"]) != 1 || merged["openai"][0].ID != "gpt-5.2" {
		t.Fatalf("unexpected openai entries: %+v", merged["openai"])
	}
}
