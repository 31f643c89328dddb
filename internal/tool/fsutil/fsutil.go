// Package fsutil provides the atomic-write primitive shared by the write,
// edit, and multiedit tools: write-temp -> fsync -> rename, grounded on
// the teacher's pkg/auth.Store.saveNoLock pattern, generalized to
// arbitrary target paths with optional backup-before-overwrite.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/codeforge/codeforge/internal/errs"
)

// AtomicWrite serializes content to a sibling dotfile, fsyncs, and
// renames it over target. On failure the temp file is removed and the
// target is left untouched.
func AtomicWrite(target string, content []byte, perm os.FileMode) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.Wrap(errs.KindIO, "create parent directories", err)
	}

	tmpPath := filepath.Join(dir, fmt.Sprintf(".%s.tmp.%s", filepath.Base(target), uuid.NewString()))
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return errs.Wrap(errs.KindIO, "create temp file", err)
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return errs.Wrap(errs.KindIO, "write temp file", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return errs.Wrap(errs.KindIO, "fsync temp file", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return errs.Wrap(errs.KindIO, "close temp file", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return errs.Wrap(errs.KindIO, "rename temp file over target", err)
	}
	return nil
}

// BackupPath returns the timestamped backup path for target, per spec's
// "<basename>.backup.<YYYYMMDD_HHMMSS>" convention.
func BackupPath(target string, now time.Time) string {
	return target + ".backup." + now.Format("20060102_150405")
}

// Backup copies target to a timestamped backup file, if target exists. It
// returns the backup path (empty if target didn't exist, which is not an
// error).
func Backup(target string, now time.Time) (string, error) {
	data, err := os.ReadFile(target)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", errs.Wrap(errs.KindIO, "read target for backup", err)
	}
	info, err := os.Stat(target)
	perm := os.FileMode(0o644)
	if err == nil {
		perm = info.Mode().Perm()
	}
	backupPath := BackupPath(target, now)
	if err := os.WriteFile(backupPath, data, perm); err != nil {
		return "", errs.Wrap(errs.KindIO, "write backup file", err)
	}
	return backupPath, nil
}

// SnapshotTemp writes content to a sibling dotfile for use as a rollback
// snapshot during a multi-step transaction (e.g. multiedit). It is not
// renamed into place; callers rename it back on failure or remove it on
// success.
func SnapshotTemp(target string, content []byte) (string, error) {
	dir := filepath.Dir(target)
	tmpPath := filepath.Join(dir, fmt.Sprintf(".%s.snapshot.%s", filepath.Base(target), uuid.NewString()))
	if err := os.WriteFile(tmpPath, content, 0o600); err != nil {
		return "", errs.Wrap(errs.KindIO, "write snapshot", err)
	}
	return tmpPath, nil
}

// RestoreSnapshot renames a snapshot produced by SnapshotTemp back over
// target, undoing a failed transaction.
func RestoreSnapshot(snapshotPath, target string) error {
	if err := os.Rename(snapshotPath, target); err != nil {
		return errs.Wrap(errs.KindIO, "restore snapshot", err)
	}
	return nil
}

// DiscardSnapshot removes a snapshot produced by SnapshotTemp after a
// successful transaction.
func DiscardSnapshot(snapshotPath string) error {
	if snapshotPath == "" {
		return nil
	}
	err := os.Remove(snapshotPath)
	if err != nil && !os.IsNotExist(err) {
		return errs.Wrap(errs.KindIO, "discard snapshot", err)
	}
	return nil
}
