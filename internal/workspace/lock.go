package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrLocked reports a descriptor held by another writer.
var ErrLocked = errors.New("workspace: descriptor is locked by another mica process")

// Lock is an advisory lock file next to a descriptor. The file holds a random
// token so a release never removes a lock taken over by someone else.
type Lock struct {
	path  string
	token string
}

func lockPath(target string) string {
	return target + ".lock"
}

// AcquireLock creates target.lock exclusively. A held lock fails with
// ErrLocked.
func AcquireLock(target string) (*Lock, error) {
	path := lockPath(target)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("workspace: create dir for %s: %w", path, err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%w: remove %s if no other mica is running", ErrLocked, path)
		}
		return nil, fmt.Errorf("workspace: lock %s: %w", path, err)
	}
	token := uuid.NewString()
	_, writeErr := file.WriteString(token + "\n")
	closeErr := file.Close()
	if err := errors.Join(writeErr, closeErr); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("workspace: write lock %s: %w", path, err)
	}
	return &Lock{path: path, token: token}, nil
}

// Release removes the lock file if it still carries this lock's token.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	data, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("workspace: read lock %s: %w", l.path, err)
	}
	if strings.TrimSpace(string(data)) != l.token {
		return fmt.Errorf("workspace: lock %s was replaced by another writer", l.path)
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("workspace: release lock %s: %w", l.path, err)
	}
	return nil
}

// writeAtomic replaces path through a temp file in the same directory.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("workspace: create dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("workspace: temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("workspace: write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("workspace: sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("workspace: close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("workspace: chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("workspace: replace %s: %w", path, err)
	}
	return nil
}

// withLock runs fn while holding target's lock. Lock contention is logged.
func (w *Workspace) withLock(target string, fn func() error) (err error) {
	lock, err := AcquireLock(target)
	if err != nil {
		if errors.Is(err, ErrLocked) {
			w.log.Warn("lock busy for %s", target)
		}
		return err
	}
	defer func() {
		if releaseErr := lock.Release(); releaseErr != nil && err == nil {
			err = releaseErr
		}
	}()
	return fn()
}
