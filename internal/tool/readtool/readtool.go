// Package readtool implements the file-read tool: UTF-8 text reading
// with optional line-range selection and a byte cap, restricted to
// paths under the execution context's working directory. Grounded on
// original_source/crates/code-mesh-core/src/tool/mod.rs's read-tool
// semantics (line numbering, truncation marker, binary rejection).
package readtool

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/codeforge/codeforge/internal/errs"
	"github.com/codeforge/codeforge/internal/tool"
	"github.com/codeforge/codeforge/internal/tool/pathguard"
)

const (
	// DefaultByteCap is the amount of file content read before the tool
	// truncates and reports a marker, per spec §4.5.
	DefaultByteCap = 256 * 1024
)

// Tool implements tool.Tool for the "read" id.
type Tool struct{}

// New constructs the read tool.
func New() *Tool { return &Tool{} }

func (*Tool) ID() string { return "read" }

func (*Tool) Description() string {
	return "Reads a text file from disk, optionally restricted to a line range."
}

func (*Tool) ParametersSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"file_path": {"type": "string", "description": "absolute or working-directory-relative path"},
			"offset": {"type": "integer", "description": "1-based first line to include"},
			"limit": {"type": "integer", "description": "maximum number of lines to return"}
		},
		"required": ["file_path"]
	}`)
}

func (t *Tool) Execute(_ context.Context, args map[string]any, ectx tool.ExecutionContext) (tool.Result, error) {
	rawPath, _ := args["file_path"].(string)
	if rawPath == "" {
		return tool.Result{}, errs.New(errs.KindInvalidParameters, "file_path is required")
	}

	resolved, err := pathguard.Resolve(ectx.WorkingDir, rawPath)
	if err != nil {
		return tool.Result{}, err
	}

	offset := 1
	if v, ok := args["offset"].(float64); ok && v > 0 {
		offset = int(v)
	}
	limit := -1
	if v, ok := args["limit"].(float64); ok && v > 0 {
		limit = int(v)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return tool.Result{}, errs.Wrap(errs.KindInvalidParameters, "file does not exist: "+rawPath, err)
		}
		return tool.Result{}, errs.Wrap(errs.KindIO, "stat file", err)
	}
	if info.IsDir() {
		return tool.Result{}, errs.New(errs.KindInvalidParameters, "path is a directory: "+rawPath)
	}

	f, err := os.Open(resolved)
	if err != nil {
		return tool.Result{}, errs.Wrap(errs.KindIO, "open file", err)
	}
	defer f.Close()

	head := make([]byte, 512)
	n, _ := f.Read(head)
	if isBinary(head[:n]) {
		return tool.Result{}, errs.New(errs.KindInvalidParameters, "refusing to read binary file: "+rawPath)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return tool.Result{}, errs.Wrap(errs.KindIO, "seek file", err)
	}

	var b strings.Builder
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	written := 0
	truncated := false
	linesEmitted := 0
	for scanner.Scan() {
		lineNo++
		if lineNo < offset {
			continue
		}
		if limit >= 0 && linesEmitted >= limit {
			break
		}
		line := scanner.Text()
		if written+len(line) > DefaultByteCap {
			truncated = true
			break
		}
		fmt.Fprintf(&b, "%6d\t%s\n", lineNo, line)
		written += len(line)
		linesEmitted++
	}
	if err := scanner.Err(); err != nil {
		return tool.Result{}, errs.Wrap(errs.KindIO, "scan file", err)
	}

	output := b.String()
	if truncated {
		output += fmt.Sprintf("\n[truncated: output exceeded %d bytes]\n", DefaultByteCap)
	}
	if linesEmitted == 0 && !truncated {
		output = "[empty selection]\n"
	}

	return tool.Result{
		Title:  rawPath,
		Output: output,
		Metadata: map[string]any{
			"lines_read": linesEmitted,
			"truncated":  truncated,
			"size_bytes": info.Size(),
		},
	}, nil
}

// isBinary uses the same heuristic as common text tools: a NUL byte or
// a high ratio of invalid UTF-8 in the sample marks the file binary.
func isBinary(sample []byte) bool {
	if bytes.IndexByte(sample, 0) != -1 {
		return true
	}
	if len(sample) == 0 {
		return false
	}
	total := len(sample)
	invalid := 0
	for len(sample) > 0 {
		r, size := utf8.DecodeRune(sample)
		if r == utf8.RuneError && size == 1 {
			invalid++
		}
		sample = sample[size:]
	}
	return invalid*10 > total
}
