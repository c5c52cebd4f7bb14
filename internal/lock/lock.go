// Package lock provides the run lock that keeps two migration runs off the
// same tree.
package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

// FileName is the lock file name under the state directory.
const FileName = "run.lock"

// ErrLocked is returned by Acquire when another run holds the lock.
var ErrLocked = errors.New("lock: tree is locked by another run")

// Info is written into the lock file.
type Info struct {
	PID       int       `json:"pid"`
	Root      string    `json:"root"`
	StartedAt time.Time `json:"startedAt"`
}

// Manager owns a single lock file.
type Manager struct {
	fs   afero.Fs
	path string
}

// New returns a Manager for the lock file at <stateDir>/run.lock.
func New(fs afero.Fs, stateDir string) *Manager {
	return &Manager{fs: fs, path: filepath.Join(stateDir, FileName)}
}

// Path returns the lock file path.
func (m *Manager) Path() string { return m.path }

// Acquire creates the lock file. If it already exists the holder's Info is
// included in the returned error, which wraps ErrLocked.
func (m *Manager) Acquire(info Info) error {
	if err := m.fs.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("lock: create dir: %w", err)
	}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("lock: marshal: %w", err)
	}

	f, err := m.fs.OpenFile(m.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) || errors.Is(err, os.ErrExist) {
			held, ierr := m.Info()
			if ierr != nil {
				return fmt.Errorf("%w (lock file %s unreadable: %v)", ErrLocked, m.path, ierr)
			}
			return fmt.Errorf("%w: pid %d since %s (remove %s if that run is gone)",
				ErrLocked, held.PID, held.StartedAt.Format(time.RFC3339), m.path)
		}
		return fmt.Errorf("lock: create %s: %w", m.path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = m.fs.Remove(m.path)
		return fmt.Errorf("lock: write %s: %w", m.path, err)
	}
	return f.Close()
}

// Release removes the lock file. Releasing an absent lock is not an error.
func (m *Manager) Release() error {
	if err := m.fs.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("lock: remove %s: %w", m.path, err)
	}
	return nil
}

// IsLocked reports whether the lock file exists.
func (m *Manager) IsLocked() bool {
	_, err := m.fs.Stat(m.path)
	return err == nil
}

// Info reads the current holder.
func (m *Manager) Info() (*Info, error) {
	data, err := afero.ReadFile(m.fs, m.path)
	if err != nil {
		return nil, fmt.Errorf("lock: read %s: %w", m.path, err)
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("lock: parse %s: %w", m.path, err)
	}
	return &info, nil
}

// Current returns Info for this process.
func Current(root string) Info {
	return Info{PID: os.Getpid(), Root: root, StartedAt: time.Now().UTC()}
}
