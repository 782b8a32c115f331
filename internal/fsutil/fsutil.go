// Package fsutil holds the small file helpers shared by the quota file,
// the run lock and prompt template overrides.
package fsutil

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// WriteAtomic writes data to path via a temp file in the same directory
// followed by a rename, so readers never observe a partial file.
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", tmpName, path, err)
	}
	tmpName = ""
	return nil
}

// WriteJSON writes v as indented JSON to path atomically.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	data = append(data, '\n')
	return WriteAtomic(path, data)
}

// ReadJSON reads the JSON file at path into v. A missing file is returned
// unwrapped so callers can test it with os.IsNotExist.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", path, err)
	}
	return nil
}

// ErrLocked is returned by AcquireLock while another holder owns the lock.
var ErrLocked = errors.New("lock is held by another process")

// ErrLockLost is returned by Lock.Refresh once another process has taken the
// lock over.
var ErrLockLost = errors.New("lock was taken over by another process")

// Lock is an exclusive lock file. Its content identifies the holder, so a
// holder never refreshes or removes a lock it no longer owns.
type Lock struct {
	path  string
	token string
}

// AcquireLock creates path exclusively. A lock file whose mtime is older than
// staleAfter is considered abandoned and taken over; long-lived holders must
// call Refresh (or KeepAlive) well within staleAfter.
func AcquireLock(path string, staleAfter time.Duration) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir lock dir: %w", err)
	}
	token := fmt.Sprintf("%d %s", os.Getpid(), uuid.NewString())
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			_, werr := fmt.Fprintln(f, token)
			cerr := f.Close()
			if werr == nil {
				werr = cerr
			}
			if werr != nil {
				os.Remove(path)
				return nil, fmt.Errorf("write lock %s: %w", path, werr)
			}
			return &Lock{path: path, token: token}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock %s: %w", path, err)
		}
		info, statErr := os.Stat(path)
		if statErr != nil || time.Since(info.ModTime()) < staleAfter {
			return nil, ErrLocked
		}
		// Stale: remove and retry once.
		os.Remove(path)
	}
	return nil, ErrLocked
}

func (l *Lock) owned() bool {
	data, err := os.ReadFile(l.path)
	return err == nil && strings.TrimSpace(string(data)) == l.token
}

// Refresh bumps the lock's mtime so it does not go stale.
func (l *Lock) Refresh() error {
	if !l.owned() {
		return ErrLockLost
	}
	now := time.Now()
	if err := os.Chtimes(l.path, now, now); err != nil {
		return fmt.Errorf("refresh lock %s: %w", l.path, err)
	}
	return nil
}

// KeepAlive refreshes the lock every interval until ctx is done. It returns
// nil on cancellation and the refresh error otherwise.
func (l *Lock) KeepAlive(ctx context.Context, every time.Duration) error {
	tick := time.NewTicker(every)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			if err := l.Refresh(); err != nil {
				return err
			}
		}
	}
}

// Release removes the lock file if this holder still owns it.
func (l *Lock) Release() {
	if l.owned() {
		os.Remove(l.path)
	}
}
