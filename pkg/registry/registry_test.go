package registry

import (
	"os"
	"testing"
	"time"

	"github.com/grovetools/mesh/errors"
	"github.com/grovetools/mesh/pkg/atomicio"
	"github.com/grovetools/mesh/pkg/paths"
	"github.com/grovetools/mesh/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const deadPID = 99999999

func liveRegistration(name string) *Registration {
	return &Registration{
		Name:      name,
		PID:       os.Getpid(),
		SessionID: "session-" + name,
		Cwd:       "/work/" + name,
		StartedAt: time.Now(),
		Activity:  Activity{LastActivityAt: time.Now()},
	}
}

func TestRegisterAndLoad(t *testing.T) {
	testutil.TempBase(t)
	reg := New()

	require.NoError(t, reg.Register(liveRegistration("alpha")))

	loaded, err := reg.Load("alpha")
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), loaded.PID)
	assert.Equal(t, "session-alpha", loaded.SessionID)
}

func TestRegisterNameTaken(t *testing.T) {
	testutil.TempBase(t)
	reg := New()
	require.NoError(t, reg.Register(liveRegistration("alpha")))

	dup := liveRegistration("alpha")
	dup.SessionID = "other"
	err := reg.Register(dup)
	// Same PID counts as taken by a live process.
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeNameTaken))
}

func TestDeadRegistrationIsReclaimed(t *testing.T) {
	testutil.TempBase(t)
	reg := New()

	stale := liveRegistration("ghost")
	stale.PID = deadPID
	require.NoError(t, atomicio.WriteJSON(paths.RegistrationPath("ghost"), stale))

	taken, _ := reg.IsTaken("ghost")
	assert.False(t, taken)
	_, err := os.Stat(paths.RegistrationPath("ghost"))
	assert.True(t, os.IsNotExist(err), "dead registration should be deleted")

	require.NoError(t, reg.Register(liveRegistration("ghost")))
}

func TestActiveAgentsPrunesDeadAndFilters(t *testing.T) {
	testutil.TempBase(t)
	reg := New()

	require.NoError(t, reg.Register(liveRegistration("alpha")))
	require.NoError(t, reg.Register(liveRegistration("beta")))

	dead := liveRegistration("ghost")
	dead.PID = deadPID
	require.NoError(t, atomicio.WriteJSON(paths.RegistrationPath("ghost"), dead))
	reg.Invalidate()

	agents, err := reg.ActiveAgents(ListOptions{})
	require.NoError(t, err)
	names := make([]string, 0, len(agents))
	for _, a := range agents {
		names = append(names, a.Name)
	}
	assert.Equal(t, []string{"alpha", "beta"}, names)

	agents, err = reg.ActiveAgents(ListOptions{ExcludeName: "alpha"})
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, "beta", agents[0].Name)

	agents, err = reg.ActiveAgents(ListOptions{Cwd: "/work/alpha"})
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, "alpha", agents[0].Name)
}

func TestActiveAgentsCacheInvalidation(t *testing.T) {
	testutil.TempBase(t)
	reg := New()
	require.NoError(t, reg.Register(liveRegistration("alpha")))

	agents, err := reg.ActiveAgents(ListOptions{})
	require.NoError(t, err)
	require.Len(t, agents, 1)

	// A local mutation must bust the one-second cache immediately.
	require.NoError(t, reg.Register(liveRegistration("beta")))
	agents, err = reg.ActiveAgents(ListOptions{})
	require.NoError(t, err)
	assert.Len(t, agents, 2)
}

func TestRenameKeepsSession(t *testing.T) {
	testutil.TempBase(t)
	reg := New()

	original := liveRegistration("alpha")
	require.NoError(t, reg.Register(original))

	renamed, err := reg.Rename(original, "omega")
	require.NoError(t, err)
	assert.Equal(t, "omega", renamed.Name)
	assert.Equal(t, original.SessionID, renamed.SessionID, "inbox is keyed by session id")

	_, err = reg.Load("alpha")
	assert.True(t, os.IsNotExist(err))
	_, err = reg.Load("omega")
	assert.NoError(t, err)
}

func TestRenameToTakenNameFails(t *testing.T) {
	testutil.TempBase(t)
	reg := New()

	a := liveRegistration("alpha")
	require.NoError(t, reg.Register(a))
	b := liveRegistration("beta")
	b.SessionID = "session-b2"
	require.NoError(t, reg.Register(b))

	_, err := reg.Rename(a, "beta")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeNameTaken))
}

func TestRecordFileBounded(t *testing.T) {
	var c Counters
	for i := 0; i < MaxRecentFiles+5; i++ {
		c.RecordFile(string(rune('a'+i%26)) + ".go")
	}
	assert.LessOrEqual(t, len(c.RecentFiles), MaxRecentFiles)

	c.RecordFile("z.go")
	assert.Equal(t, "z.go", c.RecentFiles[0])
	count := 0
	for _, f := range c.RecentFiles {
		if f == "z.go" {
			count++
		}
	}
	assert.Equal(t, 1, count, "recent files deduplicate")
}
