package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const lockFileName = ".lock"

// runLock is the advisory single-writer lock on a project's state
// directory. Creation with O_EXCL is the acquisition; the file holds
// the owner's pid and a nonce for post-mortem identification.
type runLock struct {
	path string
}

func acquireLock(stateDir string) (*runLock, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	path := filepath.Join(stateDir, lockFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("another run appears to be active (lock file %s exists); remove it if the previous run is dead", path)
		}
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	fmt.Fprintf(f, "pid=%d\nnonce=%s\n", os.Getpid(), uuid.NewString())
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	return &runLock{path: path}, nil
}

func (l *runLock) Release() {
	if l == nil {
		return
	}
	_ = os.Remove(l.path)
}
