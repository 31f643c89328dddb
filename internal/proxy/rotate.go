package proxy

import (
	"fmt"
	"os"
	"path/filepath"
)

// rotateFile shifts path -> path.1 -> path.2 ... up to maxBackups, kept
// verbatim from the teacher since log rotation has nothing
// domain-specific about it.
func rotateFile(path string, maxBackups int) error {
	if maxBackups <= 0 {
		return nil
	}
	for i := maxBackups - 1; i >= 1; i-- {
		from := fmt.Sprintf("%s.%d", path, i)
		to := fmt.Sprintf("%s.%d", path, i+1)
		if _, err := os.Stat(from); err == nil {
			_ = os.Rename(from, to)
		}
	}
	if _, err := os.Stat(path); err == nil {
		_ = os.Rename(path, fmt.Sprintf("%s.1", path))
	}
	return os.MkdirAll(filepath.Dir(path), 0o700)
}
