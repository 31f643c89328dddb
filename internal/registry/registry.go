// Package registry implements the Provider Registry of spec.md §4.4:
// enumerate adapters, resolve credentials (stored or environment-supplied),
// cache model handles, and pick a default provider by static preference.
// Grounded on sebastianxbutler-godex's pkg/router.Router — this package
// keeps its registration-order bookkeeping and RWMutex-guarded cache, but
// generalizes matching from per-model-string harness lookup to the
// canonical llm.Provider interface, since codeforge selects providers by
// explicit provider-id rather than by sniffing a model-name prefix.
package registry

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"sync"

	"github.com/codeforge/codeforge/internal/credstore"
	"github.com/codeforge/codeforge/internal/errs"
	"github.com/codeforge/codeforge/internal/llm"
)

// Factory constructs a provider adapter bound to the shared credential
// store. Adapters are constructed lazily, on first use, and cached.
type Factory func(store *credstore.Store) llm.Provider

// entry is one statically registered provider: its factory, an
// environment-variable fallback for list_available_providers, and its
// position in the default preference order (lower wins).
type entry struct {
	id         string
	factory    Factory
	envVar     string
	preference int
}

// ModelHandle pairs a resolved provider adapter with one of its models,
// the unit get_model/get_best_model hand back to the orchestrator.
type ModelHandle struct {
	Provider llm.Provider
	ModelID  string
}

// Registry is the process-wide Provider Registry. One RWMutex-guarded
// cache of constructed adapters backs every lookup, mirroring the
// teacher's router.Router.
type Registry struct {
	store *credstore.Store

	mu      sync.RWMutex
	entries []entry             // registration order, doubles as tie-break order
	cache   map[string]llm.Provider // provider-id -> constructed adapter
}

// New constructs an empty registry backed by store for credential
// resolution.
func New(store *credstore.Store) *Registry {
	return &Registry{store: store, cache: map[string]llm.Provider{}}
}

// Register adds a provider factory under id. envVar is the environment
// variable that, if set, counts as "available" even with nothing in
// credstore (spec.md §6's ANTHROPIC_API_KEY/OPENAI_API_KEY/GOOGLE_API_KEY
// fallbacks). preference ranks this provider for get_best_model; lower
// values are preferred, per SPEC_FULL.md's ProviderInfo.Preference
// (Anthropic=0, OpenAI=1, Google=2, Codex=3, others after).
func (r *Registry) Register(id string, factory Factory, envVar string, preference int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry{id: id, factory: factory, envVar: envVar, preference: preference})
}

// ListAvailableProviders returns the ids of providers with a stored
// credential or a populated environment-variable fallback, ordered by
// preference then registration order.
func (r *Registry) ListAvailableProviders() ([]string, error) {
	r.mu.RLock()
	entries := append([]entry(nil), r.entries...)
	r.mu.RUnlock()

	stored, err := r.store.List()
	if err != nil {
		return nil, err
	}
	storedSet := make(map[string]bool, len(stored))
	for _, id := range stored {
		storedSet[id] = true
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].preference < entries[j].preference })

	var available []string
	for _, e := range entries {
		if storedSet[e.id] || (e.envVar != "" && os.Getenv(e.envVar) != "") {
			available = append(available, e.id)
		}
	}
	return available, nil
}

// GetModel resolves credentials and returns a cached (or newly
// constructed) adapter for providerID bound to modelID.
func (r *Registry) GetModel(providerID, modelID string) (ModelHandle, error) {
	provider, err := r.resolveProvider(providerID)
	if err != nil {
		return ModelHandle{}, err
	}
	return ModelHandle{Provider: provider, ModelID: modelID}, nil
}

// resolveProvider returns the cached adapter for id, constructing it
// under a write lock on first use. Mirrors router.Router's read-mostly
// lookup pattern but adds the construct-once cache spec.md §4.4 calls for.
func (r *Registry) resolveProvider(id string) (llm.Provider, error) {
	r.mu.RLock()
	if p, ok := r.cache[id]; ok {
		r.mu.RUnlock()
		return p, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.cache[id]; ok {
		return p, nil
	}

	var found *entry
	for i := range r.entries {
		if r.entries[i].id == id {
			found = &r.entries[i]
			break
		}
	}
	if found == nil {
		return nil, errs.New(errs.KindInvalidParameters, "unknown provider: "+id)
	}

	if _, ok, err := r.store.Get(id); err != nil {
		return nil, err
	} else if !ok && (found.envVar == "" || os.Getenv(found.envVar) == "") {
		return nil, errs.New(errs.KindAuthentication, "no credentials available for provider: "+id)
	} else if !ok {
		if err := r.store.Set(id, credstore.Record{Type: credstore.TypeAPIKey, Key: os.Getenv(found.envVar)}); err != nil {
			return nil, err
		}
	}

	provider := found.factory(r.store)
	r.cache[id] = provider
	return provider, nil
}

// GetBestModel walks the static preference order and returns the first
// available provider's handle for modelID, per spec.md §4.4.
func (r *Registry) GetBestModel(modelID string) (ModelHandle, error) {
	available, err := r.ListAvailableProviders()
	if err != nil {
		return ModelHandle{}, err
	}
	if len(available) == 0 {
		return ModelHandle{}, errs.New(errs.KindAuthentication, "no providers available")
	}
	return r.GetModel(available[0], modelID)
}

// ListModels proxies to the resolved provider's ListModels, context-aware
// per the canonical llm.Provider contract.
func (r *Registry) ListModels(ctx context.Context, providerID string) ([]llm.ModelInfo, error) {
	provider, err := r.resolveProvider(providerID)
	if err != nil {
		return nil, err
	}
	return provider.ListModels(ctx)
}

// ModelsDevEntry is one descriptor from an external models.dev-style
// catalog: provider/model metadata not known statically by any adapter.
type ModelsDevEntry struct {
	ProviderID        string `json:"provider_id"`
	ModelID           string `json:"model_id"`
	ContextLimit      int    `json:"context_limit"`
	SupportsToolCall  bool   `json:"supports_tool_call"`
	SupportsVision    bool   `json:"supports_vision"`
	SupportsStreaming bool   `json:"supports_streaming"`
}

// LoadModelsDevConfigs parses an external JSON catalog of provider/model
// descriptors and returns it grouped by provider-id, as a side catalog
// for callers needing model metadata beyond any single adapter's static
// ListModels, per spec.md §4.4's load_models_dev_configs. The registry
// does not keep the result.
func (r *Registry) LoadModelsDevConfigs(data []byte) (map[string][]llm.ModelInfo, error) {
	var entries []ModelsDevEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, errs.Wrap(errs.KindInvalidParameters, "parse models.dev catalog", err)
	}

	merged := make(map[string][]llm.ModelInfo)
	for _, e := range entries {
		merged[e.ProviderID] = append(merged[e.ProviderID], llm.ModelInfo{
			ID:                e.ModelID,
			ContextLimit:      e.ContextLimit,
			SupportsToolCall:  e.SupportsToolCall,
			SupportsVision:    e.SupportsVision,
			SupportsStreaming: e.SupportsStreaming,
		})
	}
	return merged, nil
}
