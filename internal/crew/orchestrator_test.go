package crew

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/grovetools/mesh/config"
	meshErrors "github.com/grovetools/mesh/errors"
	"github.com/grovetools/mesh/pkg/crew"
	"github.com/grovetools/mesh/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fileExecutor plays back a prepared JSONL transcript for every child.
type fileExecutor struct {
	path string
	fail bool
}

func (e *fileExecutor) script() string {
	if e.fail {
		return "exit 1"
	}
	return "cat " + e.path
}

func (e *fileExecutor) Command(name string, args ...string) *exec.Cmd {
	return exec.Command("sh", "-c", e.script())
}

func (e *fileExecutor) CommandContext(ctx context.Context, name string, args ...string) *exec.Cmd {
	return exec.CommandContext(ctx, "sh", "-c", e.script())
}

// writeTranscript renders assistant text as the JSONL protocol.
func writeTranscript(t *testing.T, text string) string {
	t.Helper()
	line, err := json.Marshal(map[string]interface{}{
		"type": "assistant", "text": text, "tokens": 10,
	})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "transcript.jsonl")
	require.NoError(t, os.WriteFile(path, append(line, '\n'), 0644))
	return path
}

func requireSh(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func newTestOrchestrator(t *testing.T, execOut string, fail bool) (*Orchestrator, string) {
	t.Helper()
	testutil.TempBase(t)
	projectDir := t.TempDir()

	cfg := config.Default()
	cfg.Crew.Planning.MaxPasses = 2
	cfg.Crew.Concurrency.Scouts = 1
	cfg.Crew.Concurrency.Workers = 2

	executor := &fileExecutor{fail: fail}
	if execOut != "" {
		executor.path = writeTranscript(t, execOut)
	}

	o := New(crew.NewStore(projectDir), cfg, executor, nil)
	return o, projectDir
}

const plannerOutput = "Plan looks like this.\n\nVerdict: SHIP\n\n" +
	"```tasks-json\n" +
	`[
  {"title": "Set up storage", "description": "store layer", "dependsOn": []},
  {"title": "Wire transport", "description": "transport", "dependsOn": ["Set up storage"]},
  {"title": "Polish", "description": "cleanup", "dependsOn": ["task 1"]}
]` + "\n```\n"

func TestPlanEndToEnd(t *testing.T) {
	requireSh(t)
	o, projectDir := newTestOrchestrator(t, plannerOutput, false)
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, "PRD.md"),
		[]byte("# PRD\n\nBuild the thing.\n"), 0644))

	result, err := o.Plan(context.Background(), PlanOptions{})
	require.NoError(t, err)
	assert.Equal(t, "PRD.md", result.PRDPath)
	assert.Equal(t, []string{"task-1", "task-2", "task-3"}, result.TaskIDs)
	assert.Equal(t, crew.VerdictShip, result.Verdict)
	assert.Empty(t, result.Unresolved)

	tasks, err := o.store.ListTasks()
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, []string{"task-1"}, tasks[1].DependsOn)
	assert.Equal(t, []string{"task-1"}, tasks[2].DependsOn)

	// The analyst output lands in plan.md, the loop log in progress.
	planDoc, err := os.ReadFile(o.store.PlanSpecPath())
	require.NoError(t, err)
	assert.NotEmpty(t, planDoc)
	progress, err := os.ReadFile(o.store.ProgressPath())
	require.NoError(t, err)
	assert.Contains(t, string(progress), "Planner pass 1")

	// A second plan in the same project is refused.
	_, err = o.Plan(context.Background(), PlanOptions{})
	require.Error(t, err)
	assert.True(t, meshErrors.Is(err, meshErrors.ErrCodePlanExists))
}

func TestPlanRequiresPRD(t *testing.T) {
	requireSh(t)
	o, _ := newTestOrchestrator(t, plannerOutput, false)

	_, err := o.Plan(context.Background(), PlanOptions{})
	require.Error(t, err)
	assert.True(t, meshErrors.Is(err, meshErrors.ErrCodeNoPRD))
}

func TestPlanRollsBackOnFailure(t *testing.T) {
	requireSh(t)
	o, projectDir := newTestOrchestrator(t, "", true)
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, "PRD.md"), []byte("# PRD\n"), 0644))

	_, err := o.Plan(context.Background(), PlanOptions{})
	require.Error(t, err)

	// The plan entry created during the failed run must be gone.
	_, err = o.store.LoadPlan()
	assert.True(t, meshErrors.Is(err, meshErrors.ErrCodeNoPlan))
}

func TestPlanLockRejectsConcurrentRun(t *testing.T) {
	requireSh(t)
	o, projectDir := newTestOrchestrator(t, plannerOutput, false)
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, "PRD.md"), []byte("# PRD\n"), 0644))

	// A live holder in plan.lock simulates a planning run in flight.
	require.NoError(t, os.MkdirAll(o.store.Dir(), 0755))
	require.NoError(t, os.WriteFile(o.store.PlanLockPath(),
		[]byte(strconv.Itoa(os.Getpid())), 0644))

	_, err := o.Plan(context.Background(), PlanOptions{})
	require.Error(t, err)
	assert.True(t, meshErrors.Is(err, meshErrors.ErrCodeLocked))
}

func TestDiscoverPRDOrder(t *testing.T) {
	o, projectDir := newTestOrchestrator(t, "", false)

	docs := filepath.Join(projectDir, "docs")
	require.NoError(t, os.MkdirAll(docs, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "PLAN.md"), []byte("plan"), 0644))

	found, err := o.discoverPRD("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(docs, "PLAN.md"), found)

	// A root SPEC.md outranks anything under docs/.
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, "SPEC.md"), []byte("spec"), 0644))
	found, err = o.discoverPRD("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(projectDir, "SPEC.md"), found)

	_, err = o.discoverPRD("nope.md")
	assert.True(t, meshErrors.Is(err, meshErrors.ErrCodeNoPRD))
}

func TestWorkAutonomousBlocksIdleWorkerAndStops(t *testing.T) {
	requireSh(t)
	// Worker output never marks the task done, so the autonomous branch
	// blocks it and the run stops with nothing left to do.
	o, _ := newTestOrchestrator(t, "did some exploring, nothing committed", false)
	_, err := o.store.CreatePlan("PRD.md")
	require.NoError(t, err)
	_, err = o.store.CreateTask("only task", "spec", nil)
	require.NoError(t, err)

	result, err := o.Work(context.Background(), WorkOptions{Autonomous: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"task-1"}, result.Attempted)
	assert.Equal(t, []string{"task-1"}, result.Blocked)
	assert.Equal(t, "blocked", result.StopReason)
	assert.False(t, result.Continuing)

	task, err := o.store.LoadTask("task-1")
	require.NoError(t, err)
	assert.Equal(t, crew.StatusBlocked, task.Status)
}

func TestWorkNonAutonomousCountsFailed(t *testing.T) {
	requireSh(t)
	o, _ := newTestOrchestrator(t, "no completion", false)
	_, err := o.store.CreatePlan("PRD.md")
	require.NoError(t, err)
	_, err = o.store.CreateTask("only task", "spec", nil)
	require.NoError(t, err)

	result, err := o.Work(context.Background(), WorkOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"task-1"}, result.Failed)

	// Outside autonomous mode the task is left in_progress for the operator.
	task, err := o.store.LoadTask("task-1")
	require.NoError(t, err)
	assert.Equal(t, crew.StatusInProgress, task.Status)
}

func TestWorkStopsCompletedWhenAllDone(t *testing.T) {
	o, _ := newTestOrchestrator(t, "unused", false)
	_, err := o.store.CreatePlan("PRD.md")
	require.NoError(t, err)
	task, err := o.store.CreateTask("done already", "", nil)
	require.NoError(t, err)
	_, err = o.store.Start(context.Background(), task.ID, "x")
	require.NoError(t, err)
	_, err = o.store.Complete(task.ID, "", nil)
	require.NoError(t, err)

	result, err := o.Work(context.Background(), WorkOptions{Autonomous: true})
	require.NoError(t, err)
	assert.Equal(t, "completed", result.StopReason)
}

func TestWorkRequiresPlan(t *testing.T) {
	o, _ := newTestOrchestrator(t, "", false)
	_, err := o.Work(context.Background(), WorkOptions{})
	require.Error(t, err)
	assert.True(t, meshErrors.Is(err, meshErrors.ErrCodeNoPlan))
}

func TestWorkerPromptCarriesReviewFeedback(t *testing.T) {
	o, _ := newTestOrchestrator(t, "", false)
	_, err := o.store.CreatePlan("PRD.md")
	require.NoError(t, err)
	task, err := o.store.CreateTask("retry me", "original spec", nil)
	require.NoError(t, err)

	task.Attempts = 2
	task.LastReview = &crew.Review{
		Verdict: crew.VerdictNeedsWork,
		Issues:  []string{"missing error handling", "no tests"},
	}
	require.NoError(t, o.store.SaveTask(task))

	def, err := o.store.ResolveRole(crew.RoleWorker)
	require.NoError(t, err)
	prompt, err := o.workerPrompt(def, task)
	require.NoError(t, err)

	assert.Contains(t, prompt, "missing error handling")
	assert.Contains(t, prompt, "no tests")
	assert.Contains(t, prompt, crew.VerdictNeedsWork)
	assert.Contains(t, prompt, "original spec")
}

func TestAutonomousWaveNumbering(t *testing.T) {
	o, _ := newTestOrchestrator(t, "", false)
	o.ensureAutoState()
	assert.Equal(t, 1, o.auto.NextWave)

	o.recordWave(&WorkResult{Attempted: []string{"task-1"}})
	// NextWave names the upcoming wave once a result is recorded.
	assert.Equal(t, 2, o.auto.NextWave)
	require.Len(t, o.auto.History, 1)
	assert.Equal(t, 1, o.auto.History[0].Wave)
	assert.Equal(t, 1, o.auto.Attempts["task-1"])
}

func TestGuardRecursion(t *testing.T) {
	o, _ := newTestOrchestrator(t, "", false)
	t.Setenv("PI_CREW_CHILD", "1")

	_, err := o.Work(context.Background(), WorkOptions{})
	require.Error(t, err)
	assert.True(t, meshErrors.Is(err, meshErrors.ErrCodeCrewRecursion))
}

func TestReadProgressTruncation(t *testing.T) {
	o, _ := newTestOrchestrator(t, "", false)
	require.NoError(t, os.MkdirAll(o.store.Dir(), 0755))

	var doc []byte
	doc = append(doc, []byte("notes prefix\n")...)
	for run := 0; run < 4; run++ {
		doc = append(doc, []byte(fmt.Sprintf("\n## Run %d — ts\n\n", run))...)
		for i := 0; i < 20000; i++ {
			doc = append(doc, 'x')
		}
		doc = append(doc, '\n')
	}
	require.NoError(t, os.WriteFile(o.store.ProgressPath(), doc, 0644))

	got := o.readProgressForPrompt()
	assert.LessOrEqual(t, len(got), maxProgressPromptBytes+64)
	assert.Contains(t, got, "notes prefix")
	assert.Contains(t, got, "Run 3", "current run is retained")
	assert.Contains(t, got, "elided")
	assert.NotContains(t, got[:2000], "Run 1")
}
