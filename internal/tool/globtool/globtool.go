// Package globtool implements the "glob" tool: recursive filename
// pattern matching under the working directory, newest-first. Grounded
// on haasonsaas-nexus's discovery walkers (internal/templates/discovery.go,
// internal/plugins/discovery.go) for the filepath.WalkDir idiom; pattern
// matching itself uses stdlib path/filepath.Match since no example repo
// actually imports bmatcuk/doublestar directly (it appears only as an
// indirect dependency in goadesign-goa-ai and kadirpekel-hector's go.sum,
// never referenced from their own source).
package globtool

import (
	"context"
	"encoding/json"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/codeforge/codeforge/internal/errs"
	"github.com/codeforge/codeforge/internal/tool"
	"github.com/codeforge/codeforge/internal/tool/pathguard"
)

// MaxResults caps the number of paths returned in one call.
const MaxResults = 500

// Tool implements tool.Tool for the "glob" id.
type Tool struct{}

// New constructs the glob tool.
func New() *Tool { return &Tool{} }

func (*Tool) ID() string { return "glob" }

func (*Tool) Description() string {
	return "Finds files under a directory matching a glob pattern, newest-modified first."
}

func (*Tool) ParametersSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"pattern": {"type": "string", "description": "glob pattern matched against each file's base name or relative path"},
			"path": {"type": "string", "description": "directory to search, defaults to the working directory"}
		},
		"required": ["pattern"]
	}`)
}

type match struct {
	path    string
	modTime int64
}

func (t *Tool) Execute(ctx context.Context, args map[string]any, ectx tool.ExecutionContext) (tool.Result, error) {
	pattern, _ := args["pattern"].(string)
	if pattern == "" {
		return tool.Result{}, errs.New(errs.KindInvalidParameters, "pattern is required")
	}
	searchPath, _ := args["path"].(string)
	if searchPath == "" {
		searchPath = "."
	}

	root, err := pathguard.Resolve(ectx.WorkingDir, searchPath)
	if err != nil {
		return tool.Result{}, err
	}

	var matches []match
	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if ectx.Abort != nil && ectx.Abort.Aborted() {
			return errs.New(errs.KindAborted, "glob aborted")
		}
		if d.IsDir() {
			if d.Name() == ".git" || d.Name() == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			rel = p
		}
		matched, matchErr := filepath.Match(pattern, d.Name())
		if matchErr != nil {
			return errs.Wrap(errs.KindInvalidParameters, "invalid pattern", matchErr)
		}
		if !matched {
			matched, _ = filepath.Match(pattern, rel)
		}
		if matched {
			info, infoErr := d.Info()
			var mt int64
			if infoErr == nil {
				mt = info.ModTime().UnixNano()
			}
			matches = append(matches, match{path: rel, modTime: mt})
		}
		return nil
	})
	if walkErr != nil {
		return tool.Result{}, errs.Wrap(errs.KindIO, "walk directory", walkErr)
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].modTime > matches[j].modTime })
	truncated := false
	if len(matches) > MaxResults {
		matches = matches[:MaxResults]
		truncated = true
	}

	paths := make([]string, len(matches))
	for i, m := range matches {
		paths[i] = m.path
	}

	buf, err := json.Marshal(paths)
	if err != nil {
		return tool.Result{}, errs.Wrap(errs.KindInternal, "encode glob results", err)
	}

	return tool.Result{
		Title:  pattern,
		Output: string(buf),
		Metadata: map[string]any{
			"count":     len(paths),
			"truncated": truncated,
		},
	}, nil
}
