// Package websearchtool implements the "web_search" tool: a pluggable
// search backend behind one interface, following the same
// adapter-factory shape as the Provider Registry (no pack example wires
// a direct search API client, so the backend abstraction itself is the
// grounding point rather than any one backend's wire format).
package websearchtool

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/codeforge/codeforge/internal/errs"
	"github.com/codeforge/codeforge/internal/tool"
)

// SearchResult is one organic result returned by a Backend.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Backend performs the actual search request. DuckDuckGoBackend is the
// default; alternate backends can be registered by embedders.
type Backend interface {
	Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error)
}

// Tool implements tool.Tool for the "web_search" id.
type Tool struct {
	Backend Backend
}

// New constructs the web_search tool with the DuckDuckGo HTML backend.
func New() *Tool {
	return &Tool{Backend: NewDuckDuckGoBackend(nil)}
}

func (*Tool) ID() string { return "web_search" }

func (*Tool) Description() string {
	return "Searches the web and returns a list of titled results with snippets and URLs."
}

func (*Tool) ParametersSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string"},
			"max_results": {"type": "integer", "default": 5}
		},
		"required": ["query"]
	}`)
}

func (t *Tool) Execute(ctx context.Context, args map[string]any, _ tool.ExecutionContext) (tool.Result, error) {
	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return tool.Result{}, errs.New(errs.KindInvalidParameters, "query is required")
	}
	maxResults := 5
	if v, ok := args["max_results"].(float64); ok && v > 0 {
		maxResults = int(v)
	}

	results, err := t.Backend.Search(ctx, query, maxResults)
	if err != nil {
		return tool.Result{}, err
	}

	buf, err := json.Marshal(results)
	if err != nil {
		return tool.Result{}, errs.Wrap(errs.KindInternal, "encode search results", err)
	}

	return tool.Result{
		Title:  query,
		Output: string(buf),
		Metadata: map[string]any{
			"count": len(results),
		},
	}, nil
}

// DuckDuckGoBackend scrapes the no-JS HTML results page, which requires
// no API key and returns a stable, parseable result list.
type DuckDuckGoBackend struct {
	Client *http.Client
}

// NewDuckDuckGoBackend constructs a backend using client, or a 10s
// default timeout client when nil.
func NewDuckDuckGoBackend(client *http.Client) *DuckDuckGoBackend {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &DuckDuckGoBackend{Client: client}
}

func (b *DuckDuckGoBackend) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	endpoint := "https://html.duckduckgo.com/html/?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errs.Wrap(errs.KindInvalidParameters, "build search request", err)
	}
	req.Header.Set("User-Agent", "codeforge-agent/1.0")

	resp, err := b.Client.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransientNetwork, "search request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, errs.New(errs.KindExecutionFailed, "search backend returned status "+resp.Status)
	}

	return parseDuckDuckGoResults(resp.Body, maxResults)
}

func parseDuckDuckGoResults(body io.Reader, maxResults int) ([]SearchResult, error) {
	tokenizer := html.NewTokenizer(body)
	var results []SearchResult
	var current SearchResult
	inResultLink := false
	inSnippet := false

	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			break
		}
		tok := tokenizer.Token()
		switch tt {
		case html.StartTagToken:
			if tok.Data == "a" && hasClass(tok, "result__a") {
				if len(results) >= maxResults {
					return results, nil
				}
				inResultLink = true
				inSnippet = false
				current = SearchResult{URL: attr(tok, "href")}
			}
			if hasClass(tok, "result__snippet") {
				inSnippet = true
			}
		case html.TextToken:
			if inResultLink {
				current.Title += tok.Data
			}
			if inSnippet && len(results) > 0 {
				results[len(results)-1].Snippet += tok.Data
			}
		case html.EndTagToken:
			if tok.Data == "a" && inResultLink {
				inResultLink = false
				if current.Title != "" && current.URL != "" {
					results = append(results, current)
				}
			} else if tok.Data == "a" && inSnippet {
				inSnippet = false
			}
		}
	}
	return results, nil
}

func hasClass(tok html.Token, class string) bool {
	for _, a := range tok.Attr {
		if a.Key == "class" && strings.Contains(a.Val, class) {
			return true
		}
	}
	return false
}

func attr(tok html.Token, key string) string {
	for _, a := range tok.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

