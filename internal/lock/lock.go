// Package lock serializes access to a staging directory so two decrypt
// runs never interleave their outputs.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// HeldError is returned when another process holds the staging lock.
type HeldError struct {
	PID  int
	Path string
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("staging directory locked by PID %d (%s)", e.PID, e.Path)
}

// Lock represents an acquired staging-directory lock file.
type Lock struct {
	path string
}

// Acquire takes the exclusive lock on a staging directory, creating the
// directory if needed. Returns HeldError if a live process already holds
// it; a lock left behind by a dead process is broken and re-acquired.
func Acquire(stagingDir string) (*Lock, error) {
	lockPath := filepath.Join(stagingDir, "LOCK")

	if err := os.MkdirAll(stagingDir, 0700); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
		if err == nil {
			content := fmt.Sprintf("pid=%d\ntime=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
			if _, werr := f.WriteString(content); werr != nil {
				_ = f.Close()
				_ = os.Remove(lockPath)
				return nil, werr
			}
			if cerr := f.Close(); cerr != nil {
				_ = os.Remove(lockPath)
				return nil, cerr
			}
			return &Lock{path: lockPath}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("open lock file: %w", err)
		}

		data, _ := os.ReadFile(lockPath)
		pid := parsePID(string(data))
		if pid != 0 && processAlive(pid) {
			return nil, &HeldError{PID: pid, Path: lockPath}
		}
		// Holder is gone; break the stale lock and retry once.
		if rerr := os.Remove(lockPath); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			return nil, &HeldError{PID: pid, Path: lockPath}
		}
	}
	return nil, &HeldError{Path: lockPath}
}

// Release removes the lock file. Safe to call on a nil receiver.
func (l *Lock) Release() error {
	if l == nil || l.path == "" {
		return nil
	}
	err := os.Remove(l.path)
	l.path = ""
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func processAlive(pid int) bool {
	alive, err := process.PidExists(int32(pid))
	return err == nil && alive
}

func parsePID(content string) int {
	for _, line := range strings.Split(content, "\n") {
		if after, ok := strings.CutPrefix(line, "pid="); ok {
			pid, _ := strconv.Atoi(after)
			return pid
		}
	}
	return 0
}
