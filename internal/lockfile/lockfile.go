// Package lockfile implements the cross-process single-writer lock from
// spec.md §4.2: a PID file with a liveness probe, grounded on bb's
// internal/registry.WithLock flock pattern but using a PID-file-plus-signal-0
// probe instead of flock, since the lock must be inspectable and
// stale-recoverable by an unrelated process (e.g. a crashed prior run).
package lockfile

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// Holder is the persisted contents of the lock file.
type Holder struct {
	PID       int       `json:"pid"`
	StartTime time.Time `json:"start_time"`
}

// Lock manages a single PID-file lock at Path.
type Lock struct {
	Path string
}

// New returns a Lock backed by the given path. Callers typically derive
// Path from the config directory, e.g. filepath.Join(configDir, "imploid.lock").
func New(path string) *Lock {
	return &Lock{Path: path}
}

// Acquire attempts to take the lock. It returns true if the lock is now
// held by the current process. If an existing lock file names a live
// process, it returns false without disturbing the file. A stale file
// (dead pid, or unparsable contents) is removed and acquisition retried
// once. Any filesystem failure is reported as false, nil error.
func (l *Lock) Acquire() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.Path), 0o755); err != nil {
		return false, nil
	}

	ok, stale, err := l.tryWrite()
	if err != nil {
		return false, nil
	}
	if ok {
		return true, nil
	}
	if !stale {
		return false, nil
	}

	// Stale holder: remove and retry once.
	_ = os.Remove(l.Path)
	ok, _, err = l.tryWrite()
	if err != nil {
		return false, nil
	}
	return ok, nil
}

// tryWrite attempts an exclusive create of the lock file. If the file
// already exists, it inspects the existing holder: stale=true means the
// holder's process is not alive and the caller should remove + retry.
func (l *Lock) tryWrite() (acquired bool, stale bool, err error) {
	f, err := os.OpenFile(l.Path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if !errors.Is(err, os.ErrExist) {
			return false, false, err
		}
		holder, readErr := readHolder(l.Path)
		if readErr != nil {
			// Unparsable/corrupt file: treat as stale.
			return false, true, nil
		}
		if isLive(holder.PID) {
			return false, false, nil
		}
		return false, true, nil
	}
	defer func() { _ = f.Close() }()

	holder := Holder{PID: os.Getpid(), StartTime: time.Now().UTC()}
	enc := json.NewEncoder(f)
	if err := enc.Encode(holder); err != nil {
		_ = os.Remove(l.Path)
		return false, false, err
	}
	return true, false, nil
}

// Release deletes the lock file iff it is held by the current process.
// A missing file is not an error.
func (l *Lock) Release() error {
	holder, err := readHolder(l.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return nil
	}
	if holder.PID != os.Getpid() {
		return nil
	}
	if err := os.Remove(l.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// CurrentHolder returns the lock file's contents, or nil if no file exists
// or it cannot be parsed.
func (l *Lock) CurrentHolder() *Holder {
	holder, err := readHolder(l.Path)
	if err != nil {
		return nil
	}
	return holder
}

func readHolder(path string) (*Holder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var h Holder
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// isLive probes whether pid refers to a running process without affecting
// it, via signal 0 (spec.md §4.2: "the probe must not kill the process").
func isLive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, syscall.Signal(0))
	if err == nil {
		return true
	}
	if errors.Is(err, syscall.ESRCH) {
		return false
	}
	if errors.Is(err, syscall.EPERM) {
		// Process exists but is owned by someone else: still live.
		return true
	}
	return false
}
