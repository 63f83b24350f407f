// Package marker coordinates capture workers through files on disk so that at most one
// worker captures a given live stream at a time. A marker lives at <dir>/trava_<videoID>.
//
// Two staleness strategies exist. The pid strategy stores the owning process id and treats
// the marker as active while that process is alive. The mtime strategy treats the marker as
// active while it was touched within a threshold; owners must call Heartbeat regularly.
package marker

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Strategy names accepted by New.
const (
	StrategyPID   = "pid"
	StrategyMtime = "mtime"
)

// DefaultStaleAfter is the mtime strategy threshold.
const DefaultStaleAfter = 20 * time.Minute

const filePrefix = "trava_"

// Coordinator is the single-flight claim on a video id.
type Coordinator interface {
	// IsActive reports whether a live owner holds the marker.
	IsActive(id string) (bool, error)
	// Acquire claims the marker for the calling process, overwriting a stale one.
	Acquire(id string) error
	// Reassign hands an existing marker to another process. It fails with fs.ErrNotExist
	// when the marker is gone, which means its owner already finished.
	Reassign(id string, pid int) error
	// Heartbeat refreshes the marker's modification time.
	Heartbeat(id string) error
	// Release removes the marker unless it names another process. A missing marker is
	// not an error.
	Release(id string) error
}

// New returns the coordinator for strategy rooted at dir.
func New(strategy, dir string, staleAfter time.Duration) (Coordinator, error) {
	switch strings.ToLower(strategy) {
	case "", StrategyPID:
		return NewPIDMarkers(dir), nil
	case StrategyMtime:
		return NewMtimeMarkers(dir, staleAfter), nil
	default:
		return nil, fmt.Errorf("unknown marker strategy %q", strategy)
	}
}

// TryAcquire claims id when no live owner holds it. It reports whether the claim was made.
// Two processes racing on the same directory can both succeed; callers run one supervisor
// per marker directory.
func TryAcquire(c Coordinator, id string) (bool, error) {
	active, err := c.IsActive(id)
	if err != nil {
		return false, err
	}
	if active {
		return false, nil
	}
	if err := c.Acquire(id); err != nil {
		return false, err
	}
	return true, nil
}

// Path returns the marker file for id under dir.
func Path(dir, id string) string {
	return filepath.Join(dir, filePrefix+id)
}

// files holds the on-disk operations both strategies share.
type files struct {
	dir string
	pid int
}

func (f files) path(id string) string { return Path(f.dir, id) }

func (f files) write(id string, pid int) error {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("create marker dir: %w", err)
	}
	if err := os.WriteFile(f.path(id), []byte(strconv.Itoa(pid)), 0o644); err != nil {
		return fmt.Errorf("write marker %s: %w", id, err)
	}
	return nil
}

// reassign rewrites the pid of an existing marker without recreating a removed one.
func (f files) reassign(id string, pid int) error {
	fh, err := os.OpenFile(f.path(id), os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return fmt.Errorf("reassign marker %s: %w", id, err)
	}
	_, err = fh.WriteString(strconv.Itoa(pid))
	if cerr := fh.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("reassign marker %s: %w", id, err)
	}
	return nil
}

func (f files) touch(id string) error {
	now := time.Now()
	if err := os.Chtimes(f.path(id), now, now); err != nil {
		return fmt.Errorf("touch marker %s: %w", id, err)
	}
	return nil
}

func (f files) remove(id string) error {
	if err := os.Remove(f.path(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove marker %s: %w", id, err)
	}
	return nil
}

// release removes the marker when it names this process or holds no readable pid.
func (f files) release(id string) error {
	if pid, ok, err := f.readPID(id); err == nil && ok && pid != f.pid {
		return nil
	}
	return f.remove(id)
}

// readPID returns the pid stored in the marker; ok is false when the content is not a pid.
func (f files) readPID(id string) (pid int, ok bool, err error) {
	b, err := os.ReadFile(f.path(id))
	if err != nil {
		return 0, false, err
	}
	pid, perr := strconv.Atoi(strings.TrimSpace(string(b)))
	if perr != nil || pid <= 0 {
		return 0, false, nil
	}
	return pid, true, nil
}

// PIDMarkers considers a marker active while the process it names is alive.
type PIDMarkers struct {
	files
	alive func(pid int) bool
}

// NewPIDMarkers returns the pid strategy rooted at dir.
func NewPIDMarkers(dir string) *PIDMarkers {
	return &PIDMarkers{files: files{dir: dir, pid: os.Getpid()}, alive: processAlive}
}

func (m *PIDMarkers) IsActive(id string) (bool, error) {
	pid, ok, err := m.readPID(id)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read marker %s: %w", id, err)
	}
	if !ok {
		return false, nil
	}
	return m.alive(pid), nil
}

func (m *PIDMarkers) Acquire(id string) error { return m.write(id, m.pid) }

func (m *PIDMarkers) Reassign(id string, pid int) error { return m.reassign(id, pid) }

func (m *PIDMarkers) Heartbeat(id string) error { return m.touch(id) }

func (m *PIDMarkers) Release(id string) error { return m.release(id) }

// MtimeMarkers considers a marker active while it was modified within StaleAfter.
type MtimeMarkers struct {
	files
	staleAfter time.Duration
	now        func() time.Time
}

// NewMtimeMarkers returns the mtime strategy rooted at dir.
func NewMtimeMarkers(dir string, staleAfter time.Duration) *MtimeMarkers {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &MtimeMarkers{files: files{dir: dir, pid: os.Getpid()}, staleAfter: staleAfter, now: time.Now}
}

func (m *MtimeMarkers) IsActive(id string) (bool, error) {
	st, err := os.Stat(m.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat marker %s: %w", id, err)
	}
	return m.now().Sub(st.ModTime()) < m.staleAfter, nil
}

func (m *MtimeMarkers) Acquire(id string) error { return m.write(id, m.pid) }

func (m *MtimeMarkers) Reassign(id string, pid int) error { return m.reassign(id, pid) }

func (m *MtimeMarkers) Heartbeat(id string) error { return m.touch(id) }

func (m *MtimeMarkers) Release(id string) error { return m.release(id) }
