// Package lockfile implements exclusive-create lock files for serializing
// shared mutations across mesh processes. The holder's PID is the file
// content; a stale lock is evicted once its holder is dead and the file is
// older than the configured window.
package lockfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/grovetools/mesh/errors"
	"github.com/grovetools/mesh/pkg/process"
)

// Options controls acquisition behavior.
type Options struct {
	// StaleAfter is how old a lock file must be before a dead holder is evicted.
	StaleAfter time.Duration
	// RetryInterval is the sleep between acquisition attempts.
	RetryInterval time.Duration
	// MaxRetries bounds acquisition attempts before failing. Zero means a
	// single attempt with no retry.
	MaxRetries int
}

// SwarmOptions matches the swarm lock policy: short critical sections,
// aggressive retry, 10s stale window.
func SwarmOptions() Options {
	return Options{
		StaleAfter:    10 * time.Second,
		RetryInterval: 100 * time.Millisecond,
		MaxRetries:    50,
	}
}

// CrewOptions matches the planning lock policy: multi-minute critical
// sections, no retry (the caller reports `locked` to the user).
func CrewOptions() Options {
	return Options{
		StaleAfter: 10 * time.Minute,
	}
}

// Lock is a held lock file. Release it with Release.
type Lock struct {
	path string
}

// Acquire takes the lock at path, evicting stale holders and retrying per
// opts. It returns a typed LOCKED error (with the holder PID) on failure.
func Acquire(path string, opts Options) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	attempts := opts.MaxRetries + 1
	for i := 0; i < attempts; i++ {
		if i > 0 {
			time.Sleep(opts.RetryInterval)
		}

		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			_, werr := f.WriteString(strconv.Itoa(os.Getpid()))
			cerr := f.Close()
			if werr != nil || cerr != nil {
				_ = os.Remove(path)
				return nil, fmt.Errorf("write lock content: %w", werr)
			}
			return &Lock{path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock file: %w", err)
		}

		evictIfStale(path, opts.StaleAfter)
	}

	holder, _ := HolderPID(path)
	return nil, errors.Locked(path, holder)
}

// Release removes the lock file. Safe to call on an already-released lock.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	err := os.Remove(l.path)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// HolderPID reads the PID recorded in a lock file, or 0 when absent/garbled.
func HolderPID(path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(content)))
	if err != nil {
		return 0, err
	}
	return pid, nil
}

// evictIfStale removes the lock when it is older than the stale window and
// its holder is dead or unreadable. A live holder is never evicted.
func evictIfStale(path string, staleAfter time.Duration) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if time.Since(info.ModTime()) < staleAfter {
		return
	}

	pid, err := HolderPID(path)
	if err == nil && process.IsAlive(pid) {
		return
	}
	_ = os.Remove(path)
}
