// Package aliases resolves user-facing model aliases ("opus", "sonnet")
// to the latest concrete model id by querying the Provider Registry's
// ListModels, generalized from pkg/aliases.Resolve's backend-map lookup
// to internal/registry.Registry's provider-id-keyed resolution.
package aliases

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/codeforge/codeforge/internal/llm"
	"github.com/codeforge/codeforge/internal/registry"
)

// Rule defines how an alias maps to a model family: the registry queries
// Provider's model list and picks the lexicographically-latest id
// starting with Prefix.
type Rule struct {
	Alias   string
	Prefix  string
	Provider string
}

// DefaultRules returns the built-in alias resolution rules for the
// anthropic, google and openai providers; codex has no built-in alias.
func DefaultRules() []Rule {
	return []Rule{
		{Alias: "opus", Prefix: "claude-opus-", Provider: "anthropic"},
		{Alias: "sonnet", Prefix: "claude-sonnet-", Provider: "anthropic"},
		{Alias: "haiku", Prefix: "claude-haiku-", Provider: "anthropic"},
		{Alias: "gemini", Prefix: "gemini-3.0-pro", Provider: "google"},
		{Alias: "flash", Prefix: "gemini-3.0-flash", Provider: "google"},
		{Alias: "gpt", Prefix: "gpt-5", Provider: "openai"},
	}
}

// Resolution is the result of resolving one alias.
type Resolution struct {
	Alias    string
	Previous string
	Resolved string
	Changed  bool
	Error    string
}

// Resolve queries reg for each rule's provider and resolves aliases to
// the latest matching model, caching one ListModels call per provider
// across rules that share it. current is the existing alias map (may be
// nil); rules defaults to DefaultRules when nil.
func Resolve(ctx context.Context, reg *registry.Registry, current map[string]string, rules []Rule) []Resolution {
	if rules == nil {
		rules = DefaultRules()
	}
	if current == nil {
		current = map[string]string{}
	}

	modelCache := map[string][]llm.ModelInfo{}

	var results []Resolution
	for _, rule := range rules {
		res := Resolution{Alias: rule.Alias, Previous: current[rule.Alias]}

		models, cached := modelCache[rule.Provider]
		if !cached {
			var err error
			models, err = reg.ListModels(ctx, rule.Provider)
			if err != nil {
				res.Error = fmt.Sprintf("list models: %v", err)
				res.Resolved = res.Previous
				results = append(results, res)
				continue
			}
			modelCache[rule.Provider] = models
		}

		resolved := pickLatest(models, rule.Prefix)
		if resolved == "" {
			res.Error = fmt.Sprintf("no model matching prefix %q", rule.Prefix)
			res.Resolved = res.Previous
		} else {
			res.Resolved = resolved
			res.Changed = res.Previous != resolved
		}
		results = append(results, res)
	}
	return results
}

// pickLatest finds the lexicographically-last model id matching prefix,
// falling back to an exact match against prefix itself.
func pickLatest(models []llm.ModelInfo, prefix string) string {
	var matches []string
	for _, m := range models {
		if strings.HasPrefix(m.ID, prefix) {
			matches = append(matches, m.ID)
		}
	}
	if len(matches) == 0 {
		for _, m := range models {
			if m.ID == prefix {
				return m.ID
			}
		}
		return ""
	}
	sort.Strings(matches)
	return matches[len(matches)-1]
}

// ApplyResolutions updates the alias map with successful resolutions,
// returning the count of aliases actually changed.
func ApplyResolutions(aliasMap map[string]string, resolutions []Resolution) int {
	changed := 0
	for _, r := range resolutions {
		if r.Error == "" && r.Resolved != "" {
			if aliasMap[r.Alias] != r.Resolved {
				aliasMap[r.Alias] = r.Resolved
				changed++
			}
		}
	}
	return changed
}

// ExpandAlias returns alias's resolved model id from aliasMap, or alias
// itself unchanged if no mapping exists — the lookup the CLI's run
// command performs before asking the Registry for a model handle.
func ExpandAlias(aliasMap map[string]string, alias string) string {
	if resolved, ok := aliasMap[alias]; ok {
		return resolved
	}
	return alias
}
