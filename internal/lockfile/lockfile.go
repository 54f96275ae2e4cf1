// Package lockfile keeps two IntakePipe processes from sharing one state directory.
//
// The lock is an flock(2) on a file inside the state directory, so the kernel
// drops it when the holder exits for any reason.
package lockfile

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"
)

// LockFileName is the lock file inside the state directory.
const LockFileName = "intakepipe.lock"

// Owner describes the process recorded in a lock file.
type Owner struct {
	PID       int
	Transport string
	StartedAt time.Time
	Running   bool
}

func (o Owner) String() string {
	if o.PID <= 0 {
		return "unknown process"
	}
	state := "not running, stale lock"
	if o.Running {
		state = "running"
	}
	s := fmt.Sprintf("PID %d (%s)", o.PID, state)
	if o.Transport != "" {
		s += " transport=" + o.Transport
	}
	if !o.StartedAt.IsZero() {
		s += " since " + o.StartedAt.Format(time.RFC3339)
	}
	return s
}

// Lock is a held state directory lock.
type Lock struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// Acquire takes the exclusive lock for stateDir, creating the directory if
// needed. transport is recorded for the benefit of a second instance's error
// message. A held lock yields a *LockError.
func Acquire(stateDir, transport string) (*Lock, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("lockfile: create state dir %s: %w", stateDir, err)
	}
	path := filepath.Join(stateDir, LockFileName)

	// Open without truncating: a losing contender must not wipe the owner's record.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("lockfile: open %s: %w", path, err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		owner, _ := ReadOwner(path)
		slog.Error("lockfile.Acquire: state directory already locked", "path", path, "owner", owner.String())
		return nil, &LockError{Path: path, Owner: owner, Cause: err}
	}

	record := fmt.Sprintf("pid=%d\ntransport=%s\nstarted_at=%s\n",
		os.Getpid(), transport, time.Now().UTC().Format(time.RFC3339))
	if err := writeRecord(f, record); err != nil {
		syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
		return nil, fmt.Errorf("lockfile: write %s: %w", path, err)
	}

	slog.Info("lockfile.Acquire: state directory locked", "path", path, "pid", os.Getpid())
	return &Lock{file: f, path: path}, nil
}

func writeRecord(f *os.File, record string) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.WriteAt([]byte(record), 0); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		slog.Warn("lockfile: sync failed", "path", f.Name(), "error", err)
	}
	return nil
}

// Path returns the lock file location.
func (l *Lock) Path() string { return l.path }

// Release drops the lock and removes the file. Calling it again is a no-op.
func (l *Lock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	// Remove while still holding the flock so no contender sees an empty file.
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("lockfile.Release: remove failed", "path", l.path, "error", err)
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		slog.Warn("lockfile.Release: unlock failed", "path", l.path, "error", err)
	}
	err := l.file.Close()
	l.file = nil
	slog.Info("lockfile.Release: state directory unlocked", "path", l.path)
	return err
}

// ReadOwner parses the record at path. Unknown keys are ignored.
func ReadOwner(path string) (Owner, error) {
	f, err := os.Open(path)
	if err != nil {
		return Owner{}, err
	}
	defer f.Close()

	var o Owner
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		key, val, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			o.PID, _ = strconv.Atoi(val)
		case "transport":
			o.Transport = val
		case "started_at":
			o.StartedAt, _ = time.Parse(time.RFC3339, val)
		}
	}
	if o.PID > 0 {
		o.Running = processAlive(o.PID)
	}
	return o, sc.Err()
}

// processAlive checks pid with signal 0.
func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}

// LockError reports a state directory held by another process.
type LockError struct {
	Path  string
	Owner Owner
	Cause error
}

func (e *LockError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "another IntakePipe instance holds the state directory lock %s (%s)", e.Path, e.Owner)
	if e.Owner.PID > 0 && !e.Owner.Running {
		fmt.Fprintf(&b, "; if no instance is running, remove it with: rm %s", e.Path)
	}
	return b.String()
}

func (e *LockError) Unwrap() error { return e.Cause }
