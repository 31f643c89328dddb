// Package edittool (continued) implements the "edit" tool itself: a
// single find-and-replace against one file, applied through the
// strategy ladder in strategy.go and committed atomically via fsutil.
package edittool

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/codeforge/codeforge/internal/errs"
	"github.com/codeforge/codeforge/internal/tool"
	"github.com/codeforge/codeforge/internal/tool/fsutil"
	"github.com/codeforge/codeforge/internal/tool/pathguard"
)

// Tool implements tool.Tool for the "edit" id.
type Tool struct {
	Now func() time.Time
}

// New constructs the edit tool.
func New() *Tool {
	return &Tool{Now: time.Now}
}

func (*Tool) ID() string { return "edit" }

func (*Tool) Description() string {
	return "Replaces an exact (or near-exact) occurrence of text in a file with new text."
}

func (*Tool) ParametersSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"file_path": {"type": "string"},
			"old_string": {"type": "string"},
			"new_string": {"type": "string"},
			"replace_all": {"type": "boolean", "default": false}
		},
		"required": ["file_path", "old_string", "new_string"]
	}`)
}

func (t *Tool) Execute(_ context.Context, args map[string]any, ectx tool.ExecutionContext) (tool.Result, error) {
	rawPath, _ := args["file_path"].(string)
	if rawPath == "" {
		return tool.Result{}, errs.New(errs.KindInvalidParameters, "file_path is required")
	}
	oldText, ok := args["old_string"].(string)
	if !ok {
		return tool.Result{}, errs.New(errs.KindInvalidParameters, "old_string is required")
	}
	newText, _ := args["new_string"].(string)
	replaceAll, _ := args["replace_all"].(bool)
	if oldText == newText {
		return tool.Result{}, errs.New(errs.KindInvalidParameters, "old_string and new_string must differ")
	}

	path, err := pathguard.Resolve(ectx.WorkingDir, rawPath)
	if err != nil {
		return tool.Result{}, err
	}

	original, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return tool.Result{}, errs.Wrap(errs.KindInvalidParameters, "file does not exist: "+rawPath, err)
		}
		return tool.Result{}, errs.Wrap(errs.KindIO, "read file", err)
	}

	updated, strategy, count, ok := Apply(string(original), oldText, newText, replaceAll)
	if !ok {
		return tool.Result{}, errs.New(errs.KindExecutionFailed, "old_string not found in "+rawPath)
	}
	if !replaceAll && count > 1 {
		return tool.Result{}, errs.New(errs.KindInvalidParameters, "old_string matches multiple locations; pass replace_all or narrow the match")
	}

	now := time.Now
	if t.Now != nil {
		now = t.Now
	}
	info, statErr := os.Stat(path)
	perm := os.FileMode(0o644)
	if statErr == nil {
		perm = info.Mode().Perm()
	}
	backupPath, err := fsutil.Backup(path, now())
	if err != nil {
		return tool.Result{}, err
	}

	if err := fsutil.AtomicWrite(path, []byte(updated), perm); err != nil {
		return tool.Result{}, err
	}

	return tool.Result{
		Title:  rawPath,
		Output: "edited " + rawPath,
		Metadata: map[string]any{
			"strategy":     string(strategy),
			"replacements": count,
			"backup_path":  backupPath,
		},
	}, nil
}
