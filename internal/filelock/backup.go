package filelock

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/zeebo/blake3"
)

// snapshot copies the current content of path to a timestamp-suffixed
// sibling file and returns its location, content hash, and the original
// file mode. Names are deterministic in form and collision-resistant
// through nanosecond resolution.
func (m *Manager) snapshot(path string) (backupPath, hash string, mode uint32, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", "", 0, fmt.Errorf("stat original: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", 0, fmt.Errorf("read original: %w", err)
	}

	sum := blake3.Sum256(data)
	hash = hex.EncodeToString(sum[:])

	stamp := m.now().UTC().Format("20060102T150405.000000000")
	backupPath = fmt.Sprintf("%s%s-%s", path, m.backupSuffix, stamp)

	if err := os.WriteFile(backupPath, data, info.Mode().Perm()); err != nil {
		return "", "", 0, fmt.Errorf("write backup: %w", err)
	}

	// Verify the snapshot is byte-identical before letting the caller
	// proceed; a torn backup must never authorize a mutation.
	written, err := os.ReadFile(backupPath)
	if err != nil {
		_ = os.Remove(backupPath)
		return "", "", 0, fmt.Errorf("verify backup: %w", err)
	}
	if writtenSum := blake3.Sum256(written); writtenSum != sum {
		_ = os.Remove(backupPath)
		return "", "", 0, fmt.Errorf("backup verification failed for %s", path)
	}

	return backupPath, hash, uint32(info.Mode().Perm()), nil
}

// Restore rewrites the original file from the handle's backup snapshot.
// The snapshot content is hash-verified before the original is touched.
func (h *Handle) Restore() error {
	if h.backupPath == "" {
		return fmt.Errorf("no backup recorded for %s", h.path)
	}

	data, err := os.ReadFile(h.backupPath)
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}
	sum := blake3.Sum256(data)
	if hex.EncodeToString(sum[:]) != h.backupHash {
		return fmt.Errorf("backup %s failed integrity check", h.backupPath)
	}

	if err := os.WriteFile(h.path, data, os.FileMode(h.fileMode)); err != nil {
		return fmt.Errorf("restore from backup: %w", err)
	}
	return nil
}
