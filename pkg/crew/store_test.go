package crew

import (
	"context"
	"testing"

	"github.com/grovetools/mesh/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(t.TempDir())
}

func TestCreatePlanOnce(t *testing.T) {
	store := newTestStore(t)

	plan, err := store.CreatePlan("PRD.md")
	require.NoError(t, err)
	assert.Equal(t, "PRD.md", plan.PRDPath)

	_, err = store.CreatePlan("OTHER.md")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodePlanExists))
	assert.Equal(t, "PRD.md", err.(*errors.MeshError).Details["prd"])
}

func TestLoadPlanMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.LoadPlan()
	assert.True(t, errors.Is(err, errors.ErrCodeNoPlan))
}

func TestTaskIDsAreSequential(t *testing.T) {
	store := newTestStore(t)
	_, err := store.CreatePlan("PRD.md")
	require.NoError(t, err)

	for i, title := range []string{"first", "second", "third"} {
		task, err := store.CreateTask(title, "spec body", nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"task-1", "task-2", "task-3"}[i], task.ID)
	}

	plan, err := store.LoadPlan()
	require.NoError(t, err)
	assert.Equal(t, 3, plan.TaskCount)
}

func TestCreateTaskUnknownDependency(t *testing.T) {
	store := newTestStore(t)
	_, err := store.CreateTask("solo", "", []string{"task-99"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeDependencyNotFound))
}

func TestLifecycle(t *testing.T) {
	store := newTestStore(t)
	_, err := store.CreatePlan("PRD.md")
	require.NoError(t, err)
	ctx := context.Background()

	task, err := store.CreateTask("build parser", "parse things", nil)
	require.NoError(t, err)

	started, err := store.Start(ctx, task.ID, "alpha")
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, started.Status)
	assert.Equal(t, 1, started.Attempts)
	assert.Equal(t, "alpha", started.Assigned)
	assert.NotNil(t, started.StartedAt)

	// todo -> done is not a legal transition.
	other, err := store.CreateTask("second", "", nil)
	require.NoError(t, err)
	_, err = store.Complete(other.ID, "", nil)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidStatus))

	done, err := store.Complete(task.ID, "parser built", &Evidence{Commits: []string{"abc123"}})
	require.NoError(t, err)
	assert.Equal(t, StatusDone, done.Status)
	assert.NotNil(t, done.CompletedAt)

	plan, err := store.LoadPlan()
	require.NoError(t, err)
	assert.Equal(t, 1, plan.CompletedCount)
}

func TestBlockUnblock(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	task, err := store.CreateTask("risky", "", nil)
	require.NoError(t, err)
	_, err = store.Start(ctx, task.ID, "alpha")
	require.NoError(t, err)

	blocked, err := store.Block(task.ID, "waiting on API keys")
	require.NoError(t, err)
	assert.Equal(t, StatusBlocked, blocked.Status)
	assert.Equal(t, "waiting on API keys", blocked.BlockedReason)

	unblocked, err := store.Unblock(task.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusTodo, unblocked.Status)
	assert.Empty(t, unblocked.BlockedReason)

	// Attempt counter survives the round trip.
	_, err = store.Start(ctx, task.ID, "alpha")
	require.NoError(t, err)
	reloaded, err := store.LoadTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.Attempts)
}

func TestReadiness(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t1, err := store.CreateTask("base", "", nil)
	require.NoError(t, err)
	t2, err := store.CreateTask("depends", "", []string{t1.ID})
	require.NoError(t, err)

	ready, err := store.Ready()
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, t1.ID, ready[0].ID)

	_, err = store.Start(ctx, t2.ID, "alpha")
	assert.True(t, errors.Is(err, errors.ErrCodeUnmetDependencies))

	_, err = store.Start(ctx, t1.ID, "alpha")
	require.NoError(t, err)
	_, err = store.Complete(t1.ID, "", nil)
	require.NoError(t, err)

	ready, err = store.Ready()
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, t2.ID, ready[0].ID)
}

func TestResetCascade(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t1, _ := store.CreateTask("a", "", nil)
	t2, _ := store.CreateTask("b", "", []string{t1.ID})
	t3, _ := store.CreateTask("c", "", []string{t2.ID})
	t4, _ := store.CreateTask("d", "", nil)

	for _, id := range []string{t1.ID, t4.ID} {
		_, err := store.Start(ctx, id, "alpha")
		require.NoError(t, err)
		_, err = store.Complete(id, "", nil)
		require.NoError(t, err)
	}

	reset, err := store.Reset(t1.ID, true)
	require.NoError(t, err)

	ids := make([]string, 0, len(reset))
	for _, task := range reset {
		ids = append(ids, task.ID)
	}
	assert.ElementsMatch(t, []string{t1.ID, t2.ID, t3.ID}, ids)

	untouched, err := store.LoadTask(t4.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, untouched.Status)
}

func TestFindCycle(t *testing.T) {
	acyclic := []*Task{
		{ID: "task-1"},
		{ID: "task-2", DependsOn: []string{"task-1"}},
		{ID: "task-3", DependsOn: []string{"task-1", "task-2"}},
	}
	assert.Nil(t, findCycle(acyclic))

	cyclic := []*Task{
		{ID: "task-1", DependsOn: []string{"task-3"}},
		{ID: "task-2", DependsOn: []string{"task-1"}},
		{ID: "task-3", DependsOn: []string{"task-2"}},
	}
	cycle := findCycle(cyclic)
	assert.NotEmpty(t, cycle)
}

func TestValidateResyncsCounters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	plan, err := store.CreatePlan("PRD.md")
	require.NoError(t, err)

	t1, _ := store.CreateTask("a", "", nil)
	_, err = store.Start(ctx, t1.ID, "alpha")
	require.NoError(t, err)
	_, err = store.Complete(t1.ID, "", nil)
	require.NoError(t, err)

	// Corrupt the counters, then validate.
	plan, err = store.LoadPlan()
	require.NoError(t, err)
	plan.TaskCount = 42
	plan.CompletedCount = 0
	require.NoError(t, store.SavePlan(plan))

	report, err := store.Validate()
	require.NoError(t, err)
	assert.True(t, report.CountersFixed)
	assert.Equal(t, 1, report.TaskCount)
	assert.Equal(t, 1, report.CompletedCount)
}

func TestTaskSpecRoundtrip(t *testing.T) {
	store := newTestStore(t)

	task, err := store.CreateTask("specced", "Implement the thing.\n\nDetails here.", nil)
	require.NoError(t, err)

	spec, err := store.LoadTaskSpec(task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Implement the thing.\n\nDetails here.", spec)

	require.NoError(t, store.AppendTaskSpec(task.ID, "## Amendment\n\nMore."))
	spec, err = store.LoadTaskSpec(task.ID)
	require.NoError(t, err)
	assert.Contains(t, spec, "Amendment")
	assert.Contains(t, spec, "Implement the thing.")
}

func TestResolveRoleDefaultsAndOverride(t *testing.T) {
	store := newTestStore(t)

	def, err := store.ResolveRole(RoleScout)
	require.NoError(t, err)
	assert.Equal(t, "scout", def.Agent)
	assert.Equal(t, 50*1024, def.MaxOutputBytes)

	_, err = store.ResolveRole(Role("wizard"))
	assert.Error(t, err)

	written, err := store.InstallRoles()
	require.NoError(t, err)
	assert.Len(t, written, len(AllRoles))

	// Second install is a no-op.
	written, err = store.InstallRoles()
	require.NoError(t, err)
	assert.Empty(t, written)

	require.NoError(t, store.UninstallRoles())
}
