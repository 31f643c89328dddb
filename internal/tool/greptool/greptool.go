// Package greptool implements the "grep" tool: regular-expression search
// across files under the working directory, returning matching lines
// with file:line prefixes. Grounded on haasonsaas-nexus's directory
// walkers for traversal; pattern matching uses stdlib regexp since no
// pack example wires an external grep/ripgrep binary or search library
// directly (nexus shells out to a user-installed `rg` in some commands,
// but always as an optional external tool, not an importable library —
// depending on a binary on PATH is not a Go dependency to ground on).
package greptool

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/codeforge/codeforge/internal/errs"
	"github.com/codeforge/codeforge/internal/tool"
	"github.com/codeforge/codeforge/internal/tool/pathguard"
)

// MaxMatches caps the number of lines returned in one call.
const MaxMatches = 300

// Tool implements tool.Tool for the "grep" id.
type Tool struct{}

// New constructs the grep tool.
func New() *Tool { return &Tool{} }

func (*Tool) ID() string { return "grep" }

func (*Tool) Description() string {
	return "Searches file contents under a directory for lines matching a regular expression."
}

func (*Tool) ParametersSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"pattern": {"type": "string"},
			"path": {"type": "string"},
			"glob": {"type": "string", "description": "only search files whose base name matches this glob"},
			"case_insensitive": {"type": "boolean", "default": false}
		},
		"required": ["pattern"]
	}`)
}

type hit struct {
	path string
	line int
	text string
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
	fileGlob, _ := args["glob"].(string)
	caseInsensitive, _ := args["case_insensitive"].(bool)

	expr := pattern
	if caseInsensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return tool.Result{}, errs.Wrap(errs.KindInvalidParameters, "invalid regular expression", err)
	}

	root, err := pathguard.Resolve(ectx.WorkingDir, searchPath)
	if err != nil {
		return tool.Result{}, err
	}

	var hits []hit
	truncated := false
	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if ectx.Abort != nil && ectx.Abort.Aborted() {
			return errs.New(errs.KindAborted, "grep aborted")
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if d.Name() == ".git" || d.Name() == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		if fileGlob != "" {
			if matched, _ := filepath.Match(fileGlob, d.Name()); !matched {
				return nil
			}
		}
		if len(hits) >= MaxMatches {
			truncated = true
			return nil
		}
		found, scanErr := scanFile(p, re, MaxMatches-len(hits))
		if scanErr != nil {
			return nil
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			rel = p
		}
		for _, h := range found {
			h.path = rel
			hits = append(hits, h)
		}
		return nil
	})
	if walkErr != nil {
		return tool.Result{}, errs.Wrap(errs.KindIO, "walk directory", walkErr)
	}

	var b strings.Builder
	for _, h := range hits {
		fmt.Fprintf(&b, "%s:%d:%s\n", h.path, h.line, h.text)
	}

	return tool.Result{
		Title:  pattern,
		Output: b.String(),
		Metadata: map[string]any{
			"count":     len(hits),
			"truncated": truncated,
		},
	}, nil
}

// scanFile reads a single file line-by-line, skipping likely-binary
// files, and returns at most limit matching lines.
func scanFile(path string, re *regexp.Regexp, limit int) ([]hit, error) {
	if limit <= 0 {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	head := make([]byte, 512)
	n, _ := f.Read(head)
	for i := 0; i < n; i++ {
		if head[i] == 0 {
			return nil, nil
		}
	}
	if _, err := f.Seek(0, 0); err != nil {
		return nil, err
	}

	var out []hit
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if re.MatchString(line) {
			out = append(out, hit{line: lineNo, text: line})
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}
