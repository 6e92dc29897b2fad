package history

import (
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// WriteFileAtomic streams r into a temp file next to path and renames it into
// place, so readers see either the old content or the new one.
func WriteFileAtomic(path string, r io.Reader) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}

// jobLockStripes bounds the lock table; jobs sharing a stripe serialize.
const jobLockStripes = 64

// jobLocks serializes load-modify-save cycles per job id.
type jobLocks struct {
	stripes [jobLockStripes]sync.Mutex
}

func (l *jobLocks) lock(jobID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(jobID))
	mu := &l.stripes[h.Sum32()%jobLockStripes]
	mu.Lock()
	return mu.Unlock
}
