// Package writetool implements the file-write tool: atomic whole-file
// replacement with a timestamped backup of any prior content, restricted
// to the execution context's working directory. Grounded on
// original_source/crates/code-mesh-core/src/tool/mod.rs's write-tool
// semantics and internal/tool/fsutil's atomic-write primitive.
package writetool

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/codeforge/codeforge/internal/errs"
	"github.com/codeforge/codeforge/internal/tool"
	"github.com/codeforge/codeforge/internal/tool/fsutil"
	"github.com/codeforge/codeforge/internal/tool/pathguard"
)

// MaxContentBytes caps a single write-tool call's payload, per spec §4.5.
const MaxContentBytes = 5 * 1024 * 1024

// Tool implements tool.Tool for the "write" id.
type Tool struct {
	// Now is overridable in tests; defaults to time.Now.
	Now func() time.Time
}

// New constructs the write tool.
func New() *Tool {
	return &Tool{Now: time.Now}
}

func (*Tool) ID() string { return "write" }

func (*Tool) Description() string {
	return "Writes content to a file, creating it or replacing its entire contents. Backs up any existing file first."
}

func (*Tool) ParametersSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"file_path": {"type": "string"},
			"content": {"type": "string"}
		},
		"required": ["file_path", "content"]
	}`)
}

func (t *Tool) Execute(_ context.Context, args map[string]any, ectx tool.ExecutionContext) (tool.Result, error) {
	rawPath, _ := args["file_path"].(string)
	if rawPath == "" {
		return tool.Result{}, errs.New(errs.KindInvalidParameters, "file_path is required")
	}
	content, ok := args["content"].(string)
	if !ok {
		return tool.Result{}, errs.New(errs.KindInvalidParameters, "content is required")
	}
	if len(content) > MaxContentBytes {
		return tool.Result{}, errs.New(errs.KindInvalidParameters, "content exceeds maximum write size")
	}
	if strings.ContainsRune(content, 0) {
		return tool.Result{}, errs.New(errs.KindInvalidParameters, "content contains a NUL byte")
	}

	path, err := pathguard.Resolve(ectx.WorkingDir, rawPath)
	if err != nil {
		return tool.Result{}, err
	}

	now := time.Now
	if t.Now != nil {
		now = t.Now
	}

	_, statErr := os.Stat(path)
	existedBefore := statErr == nil
	backupPath := ""
	if existedBefore {
		backupPath, err = fsutil.Backup(path, now())
		if err != nil {
			return tool.Result{}, err
		}
	}

	if err := fsutil.AtomicWrite(path, []byte(content), 0o644); err != nil {
		return tool.Result{}, err
	}

	meta := map[string]any{
		"bytes_written": len(content),
		"created":       !existedBefore,
	}
	if backupPath != "" {
		meta["backup_path"] = backupPath
	}

	return tool.Result{
		Title:    rawPath,
		Output:   "wrote " + rawPath,
		Metadata: meta,
	}, nil
}
