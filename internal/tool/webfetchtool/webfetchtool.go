// Package webfetchtool implements the "web_fetch" tool: fetches a URL,
// strips HTML markup to plain text, and enforces an SSRF guard and a
// per-host rate limit before dialing. Grounded on
// original_source/crates/code-mesh-core/src/tool/web.rs for the
// invariant list, netguard for SSRF, and internal/ratelimit for the
// per-host token bucket.
package webfetchtool

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/codeforge/codeforge/internal/errs"
	"github.com/codeforge/codeforge/internal/netguard"
	"github.com/codeforge/codeforge/internal/ratelimit"
	"github.com/codeforge/codeforge/internal/tool"
)

const (
	// MaxBodyBytes caps the response body read from the network.
	MaxBodyBytes = 2 * 1024 * 1024
	// RequestTimeout bounds the whole fetch.
	RequestTimeout = 20 * time.Second
)

// Tool implements tool.Tool for the "web_fetch" id.
type Tool struct {
	Client  *http.Client
	Limiter *ratelimit.Limiter
}

// New constructs the web_fetch tool with a pooled client and a shared
// per-host rate limiter.
func New() *Tool {
	return &Tool{
		Client: &http.Client{
			Timeout: RequestTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return http.ErrUseLastResponse
				}
				if _, err := netguard.ValidateURL(req.URL.String()); err != nil {
					return err
				}
				return nil
			},
		},
		Limiter: ratelimit.NewLimiter(ratelimit.DefaultConfig()),
	}
}

func (*Tool) ID() string { return "web_fetch" }

func (*Tool) Description() string {
	return "Fetches a URL over HTTP(S) and returns its text content with markup stripped."
}

func (*Tool) ParametersSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"url": {"type": "string"}
		},
		"required": ["url"]
	}`)
}

func (t *Tool) Execute(ctx context.Context, args map[string]any, ectx tool.ExecutionContext) (tool.Result, error) {
	rawURL, _ := args["url"].(string)
	if rawURL == "" {
		return tool.Result{}, errs.New(errs.KindInvalidParameters, "url is required")
	}

	u, err := netguard.ValidateURL(rawURL)
	if err != nil {
		return tool.Result{}, err
	}

	if err := t.Limiter.Wait(ctx, u.Hostname()); err != nil {
		return tool.Result{}, errs.Wrap(errs.KindAborted, "rate limit wait interrupted", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return tool.Result{}, errs.Wrap(errs.KindInvalidParameters, "build request", err)
	}
	req.Header.Set("User-Agent", "codeforge-agent/1.0")

	resp, err := t.Client.Do(req)
	if err != nil {
		return tool.Result{}, errs.Wrap(errs.KindTransientNetwork, "fetch failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return tool.Result{}, errs.New(errs.KindExecutionFailed, "fetch returned status "+resp.Status)
	}

	limited := io.LimitReader(resp.Body, MaxBodyBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return tool.Result{}, errs.Wrap(errs.KindIO, "read response body", err)
	}
	truncated := len(body) > MaxBodyBytes
	if truncated {
		body = body[:MaxBodyBytes]
	}

	contentType := resp.Header.Get("Content-Type")
	var text string
	if strings.Contains(contentType, "html") {
		text = htmlToText(body)
	} else {
		text = string(body)
	}

	return tool.Result{
		Title:  rawURL,
		Output: text,
		Metadata: map[string]any{
			"status_code": resp.StatusCode,
			"content_type": contentType,
			"truncated":   truncated,
		},
	}, nil
}

// collapseBlankLines normalizes whitespace within each line and drops
// runs of consecutive blank lines left by block-tag newline markers.
func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	blank := false
	for _, line := range lines {
		trimmed := strings.Join(strings.Fields(line), " ")
		if trimmed == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, trimmed)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// htmlToText walks the token stream, emitting text nodes and skipping
// script/style bodies, collapsing runs of whitespace.
func htmlToText(body []byte) string {
	tokenizer := html.NewTokenizer(strings.NewReader(string(body)))
	var b strings.Builder
	skipDepth := 0
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return collapseBlankLines(b.String())
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := tokenizer.TagName()
			tag := string(name)
			if tag == "script" || tag == "style" {
				if tt == html.StartTagToken {
					skipDepth++
				}
			}
			if tag == "br" || tag == "p" || tag == "div" || tag == "li" {
				b.WriteString("\n")
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			tag := string(name)
			if tag == "script" || tag == "style" {
				if skipDepth > 0 {
					skipDepth--
				}
			}
			if tag == "p" || tag == "div" || tag == "li" {
				b.WriteString("\n")
			}
		case html.TextToken:
			if skipDepth == 0 {
				b.Write(tokenizer.Text())
				b.WriteString(" ")
			}
		}
	}
}
