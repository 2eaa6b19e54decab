// Package atomicfile writes files through a temporary sibling followed by
// an atomic rename, so a crash mid-write never leaves a truncated or
// interleaved target. Transient failures (the target briefly held open by
// a reader on some platforms) are retried a bounded number of times with
// backoff before the error is surfaced.
package atomicfile

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	maxAttempts  = 5
	baseInterval = 50 * time.Millisecond
)

// WriteFile atomically replaces the file at path with data.
// The parent directory is created if missing.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(baseInterval << (attempt - 1))
		}
		if lastErr = writeOnce(path, data, perm); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("write %s: retries exhausted: %w", path, lastErr)
}

func writeOnce(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
