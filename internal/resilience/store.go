// Package resilience persists the probe ledger shared by esigate processes.
// The ledger lives in a JSON file guarded by an advisory file lock, so
// concurrent invocations (cron jobs, watch loops) see consistent history.
package resilience

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/gofrs/flock"
)

const (
	// StateFileName is the ledger file inside the state directory.
	StateFileName = "state.json"

	lockFileName = ".lock"
)

// LockTimeout bounds the wait for the file lock. Past it, the operation
// proceeds unlocked rather than hanging the command.
const LockTimeout = 100 * time.Millisecond

// Store reads and writes the ledger with file locking.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the state directory path.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the full path to the ledger file.
func (s *Store) Path() string {
	return filepath.Join(s.dir, StateFileName)
}

// withLock runs fn while holding the directory lock. A lock that cannot be
// taken within LockTimeout is skipped; any other lock failure is returned.
func (s *Store) withLock(fn func() error) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}

	lock := flock.New(filepath.Join(s.dir, lockFileName))
	ctx, cancel := context.WithTimeout(context.Background(), LockTimeout)
	defer cancel()

	locked, err := lock.TryLockContext(ctx, 10*time.Millisecond)
	switch {
	case err != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("locking state dir: %w", err)
	case locked:
		defer func() { _ = lock.Unlock() }()
	}

	return fn()
}

// Load reads the ledger. A missing or corrupt file yields an empty State.
func (s *Store) Load() (*State, error) {
	var state *State
	err := s.withLock(func() error {
		var err error
		state, err = s.read()
		return err
	})
	return state, err
}

// Update loads, modifies and saves the ledger under a single lock.
func (s *Store) Update(fn func(*State) error) error {
	return s.withLock(func() error {
		state, err := s.read()
		if err != nil {
			return err
		}
		if err := fn(state); err != nil {
			return err
		}
		return s.write(state)
	})
}

// Clear removes the ledger file.
func (s *Store) Clear() error {
	return s.withLock(func() error {
		if err := os.Remove(s.Path()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	})
}

// Exists reports whether a ledger file exists.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.Path())
	return err == nil
}

func (s *Store) read() (*State, error) {
	data, err := os.ReadFile(s.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return NewState(), nil
	}
	if err != nil {
		return nil, err
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil || state.Version > StateVersion {
		return NewState(), nil
	}
	return &state, nil
}

// write saves via a uniquely named temp file and rename, so unlocked
// writers never interleave partial files.
func (s *Store) write(state *State) error {
	state.Version = StateVersion

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	tmp := fmt.Sprintf("%s.%d.%d.tmp", s.Path(), os.Getpid(), time.Now().UnixNano())
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}

	// os.Rename does not replace an existing file on Windows.
	if runtime.GOOS == "windows" {
		_ = os.Remove(s.Path())
	}

	if err := os.Rename(tmp, s.Path()); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
