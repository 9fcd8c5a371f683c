package lockfile

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/grovetools/mesh/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// deadPID is far beyond any real pid_max.
const deadPID = 99999999

func TestAcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swarm.lock")

	lock, err := Acquire(path, Options{})
	require.NoError(t, err)

	pid, err := HolderPID(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	require.NoError(t, lock.Release())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestContentionFailsWithHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swarm.lock")

	lock, err := Acquire(path, Options{})
	require.NoError(t, err)
	defer lock.Release()

	// Our own PID is alive, so the second acquire can never evict.
	_, err = Acquire(path, Options{RetryInterval: time.Millisecond, MaxRetries: 3, StaleAfter: time.Hour})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeLocked))

	meshErr := err.(*errors.MeshError)
	assert.Equal(t, os.Getpid(), meshErr.Details["holderPid"])
}

func TestStaleDeadHolderEvicted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swarm.lock")
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(deadPID)), 0644))

	// Age the file past the stale window.
	old := time.Now().Add(-time.Minute)
	require.NoError(t, os.Chtimes(path, old, old))

	lock, err := Acquire(path, Options{StaleAfter: 10 * time.Second, RetryInterval: time.Millisecond, MaxRetries: 2})
	require.NoError(t, err)
	defer lock.Release()

	pid, err := HolderPID(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestFreshDeadHolderNotEvicted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swarm.lock")
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(deadPID)), 0644))

	// mtime is now, inside the stale window: the lock must hold.
	_, err := Acquire(path, Options{StaleAfter: time.Hour, RetryInterval: time.Millisecond, MaxRetries: 2})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeLocked))
}

func TestSwarmOptionsPolicy(t *testing.T) {
	opts := SwarmOptions()
	assert.Equal(t, 10*time.Second, opts.StaleAfter)
	assert.Equal(t, 100*time.Millisecond, opts.RetryInterval)
	assert.Equal(t, 50, opts.MaxRetries)
}
