// Package pathguard resolves a tool-supplied path against an execution
// context's working directory and rejects any path that escapes it,
// shared by every tool that touches the filesystem.
package pathguard

import (
	"path/filepath"
	"strings"

	"github.com/codeforge/codeforge/internal/errs"
)

// Resolve joins rawPath against workingDir (absolute paths are used
// as-is) and rejects the result if it falls outside workingDir.
func Resolve(workingDir, rawPath string) (string, error) {
	if workingDir == "" {
		workingDir = "."
	}
	var candidate string
	if filepath.IsAbs(rawPath) {
		candidate = rawPath
	} else {
		candidate = filepath.Join(workingDir, rawPath)
	}
	candidate = filepath.Clean(candidate)

	absWorkingDir, err := filepath.Abs(workingDir)
	if err != nil {
		return "", errs.Wrap(errs.KindInternal, "resolve working directory", err)
	}
	absCandidate, err := filepath.Abs(candidate)
	if err != nil {
		return "", errs.Wrap(errs.KindInternal, "resolve candidate path", err)
	}
	rel, err := filepath.Rel(absWorkingDir, absCandidate)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errs.New(errs.KindPermissionDenied, "path escapes working directory: "+rawPath)
	}
	return absCandidate, nil
}
