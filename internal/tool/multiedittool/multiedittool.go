// Package multiedittool implements the "multiedit" tool: a sequence of
// edittool-style operations against one file, applied as a single
// all-or-nothing transaction. Grounded on
// original_source/crates/code-mesh-core/src/tool/mod.rs's multiedit
// semantics and internal/tool/fsutil's snapshot/restore primitive.
package multiedittool

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/codeforge/codeforge/internal/errs"
	"github.com/codeforge/codeforge/internal/tool"
	"github.com/codeforge/codeforge/internal/tool/edittool"
	"github.com/codeforge/codeforge/internal/tool/fsutil"
	"github.com/codeforge/codeforge/internal/tool/pathguard"
)

// Tool implements tool.Tool for the "multiedit" id.
type Tool struct {
	Now func() time.Time
}

// New constructs the multiedit tool.
func New() *Tool {
	return &Tool{Now: time.Now}
}

func (*Tool) ID() string { return "multiedit" }

func (*Tool) Description() string {
	return "Applies a sequence of find-and-replace edits to one file atomically; if any edit fails, none are applied."
}

func (*Tool) ParametersSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"file_path": {"type": "string"},
			"edits": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"old_string": {"type": "string"},
						"new_string": {"type": "string"},
						"replace_all": {"type": "boolean", "default": false}
					},
					"required": ["old_string", "new_string"]
				},
				"minItems": 1
			}
		},
		"required": ["file_path", "edits"]
	}`)
}

type editOp struct {
	OldString  string `json:"old_string"`
	NewString  string `json:"new_string"`
	ReplaceAll bool   `json:"replace_all"`
}

func (t *Tool) Execute(_ context.Context, args map[string]any, ectx tool.ExecutionContext) (tool.Result, error) {
	rawPath, _ := args["file_path"].(string)
	if rawPath == "" {
		return tool.Result{}, errs.New(errs.KindInvalidParameters, "file_path is required")
	}

	edits, err := decodeEdits(args["edits"])
	if err != nil {
		return tool.Result{}, err
	}
	if len(edits) == 0 {
		return tool.Result{}, errs.New(errs.KindInvalidParameters, "edits must contain at least one operation")
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
	info, err := os.Stat(path)
	perm := os.FileMode(0o644)
	if err == nil {
		perm = info.Mode().Perm()
	}

	// Apply every operation in memory first; a failure here leaves the
	// file on disk untouched, matching the all-or-nothing invariant
	// without needing a snapshot at all for the common failure path.
	content := string(original)
	strategies := make([]string, len(edits))
	totalReplacements := 0
	for i, op := range edits {
		if op.OldString == op.NewString {
			return tool.Result{}, errs.New(errs.KindInvalidParameters, "edit at index "+strconv.Itoa(i)+": old_string and new_string must differ")
		}
		updated, strategy, count, ok := edittool.Apply(content, op.OldString, op.NewString, op.ReplaceAll)
		if !ok {
			return tool.Result{}, errs.New(errs.KindExecutionFailed, "edit at index "+strconv.Itoa(i)+": old_string not found")
		}
		if !op.ReplaceAll && count > 1 {
			return tool.Result{}, errs.New(errs.KindInvalidParameters, "edit at index "+strconv.Itoa(i)+": old_string matches multiple locations")
		}
		content = updated
		strategies[i] = string(strategy)
		totalReplacements += count
	}

	now := time.Now
	if t.Now != nil {
		now = t.Now
	}

	// Snapshot the original so a failure during commit (AtomicWrite) can
	// be rolled back, and write the timestamped backup (fsutil.Backup)
	// before committing; the snapshot itself is discarded on success.
	snapshotPath, err := fsutil.SnapshotTemp(path, original)
	if err != nil {
		return tool.Result{}, err
	}
	backupPath, err := fsutil.Backup(path, now())
	if err != nil {
		_ = fsutil.DiscardSnapshot(snapshotPath)
		return tool.Result{}, err
	}

	if err := fsutil.AtomicWrite(path, []byte(content), perm); err != nil {
		if restoreErr := fsutil.RestoreSnapshot(snapshotPath, path); restoreErr != nil {
			combined := multierror.Append(err, restoreErr)
			return tool.Result{}, errs.Wrap(errs.KindIO, "write failed and rollback to original content also failed; file may be left in the half-written snapshot state", combined)
		}
		return tool.Result{}, err
	}
	if err := fsutil.DiscardSnapshot(snapshotPath); err != nil {
		return tool.Result{}, err
	}

	return tool.Result{
		Title:  rawPath,
		Output: "applied " + strconv.Itoa(len(edits)) + " edits to " + rawPath,
		Metadata: map[string]any{
			"edits_applied": len(edits),
			"replacements":  totalReplacements,
			"strategies":    strategies,
			"backup_path":   backupPath,
		},
	}, nil
}

func decodeEdits(raw any) ([]editOp, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, errs.New(errs.KindInvalidParameters, "edits must be an array")
	}
	buf, err := json.Marshal(list)
	if err != nil {
		return nil, errs.Wrap(errs.KindInvalidParameters, "encode edits", err)
	}
	var ops []editOp
	if err := json.Unmarshal(buf, &ops); err != nil {
		return nil, errs.Wrap(errs.KindInvalidParameters, "decode edits", err)
	}
	return ops, nil
}

