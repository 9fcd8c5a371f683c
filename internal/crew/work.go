package crew

import (
	"context"
	"fmt"
	"strings"

	"github.com/grovetools/mesh/internal/spawn"
	"github.com/grovetools/mesh/pkg/crew"
)

// maxPlanSliceBytes caps the plan spec slice embedded in worker prompts.
const maxPlanSliceBytes = 20 * 1024

// WorkOptions parameterizes the work action.
type WorkOptions struct {
	// Autonomous keeps waves running across turns via continuation steers.
	Autonomous bool
}

// WorkResult summarizes one wave.
type WorkResult struct {
	Wave      int      `json:"wave"`
	Attempted []string `json:"attempted,omitempty"`
	Succeeded []string `json:"succeeded,omitempty"`
	Failed    []string `json:"failed,omitempty"`
	Blocked   []string `json:"blocked,omitempty"`

	// StopReason is set when an autonomous run ends: completed, blocked, or
	// manual.
	StopReason string `json:"stop_reason,omitempty"`
	// Continuing reports that a continuation steer was emitted.
	Continuing bool `json:"continuing,omitempty"`
}

// Work runs one wave of ready tasks through worker children. With
// opts.Autonomous the session's wave state machine decides whether to stop or
// emit a continuation steer for the next turn.
func (o *Orchestrator) Work(ctx context.Context, opts WorkOptions) (*WorkResult, error) {
	if err := o.guardRecursion(); err != nil {
		return nil, err
	}
	if _, err := o.store.LoadPlan(); err != nil {
		return nil, err
	}

	if opts.Autonomous {
		o.ensureAutoState()
	}

	result := &WorkResult{}
	if o.auto != nil && opts.Autonomous {
		// NextWave is the number this wave will get once recorded.
		result.Wave = o.auto.NextWave
	}

	ready, err := o.store.Ready()
	if err != nil {
		return nil, err
	}

	workers := o.cfg.Crew.Concurrency.Workers
	if workers < 1 {
		workers = 1
	}

	// In autonomous mode a task out of retry budget is blocked rather than
	// retried forever.
	var wave []*crew.Task
	for _, task := range ready {
		if len(wave) == workers {
			break
		}
		if opts.Autonomous && o.cfg.Crew.Work.MaxAttemptsPerTask > 0 &&
			task.Attempts >= o.cfg.Crew.Work.MaxAttemptsPerTask {
			if started, err := o.store.Start(ctx, task.ID, "crew"); err == nil {
				_, _ = o.store.Block(started.ID, "retry budget exhausted")
			}
			result.Blocked = append(result.Blocked, task.ID)
			continue
		}
		wave = append(wave, task)
	}

	if len(wave) == 0 {
		if opts.Autonomous {
			o.evaluateAutonomous(ctx, result)
		}
		return result, nil
	}

	workerDef, err := o.store.ResolveRole(crew.RoleWorker)
	if err != nil {
		return nil, o.missingRole(crew.RoleWorker, err)
	}

	runID := newRunID()
	sp := o.newSpawner(runID)

	reqs := make([]spawn.Request, 0, len(wave))
	for i, task := range wave {
		started, err := o.store.Start(ctx, task.ID, workerDef.Agent)
		if err != nil {
			return nil, err
		}
		result.Attempted = append(result.Attempted, started.ID)

		prompt, err := o.workerPrompt(workerDef, started)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, spawn.Request{
			Role:   crew.RoleWorker,
			Def:    workerDef,
			Prompt: prompt,
			Dir:    o.store.ProjectDir(),
			Index:  i,
			Label:  started.ID,
		})
	}

	results := sp.RunAll(ctx, reqs, workers, func(r spawn.Result) {
		o.log.WithField("task", r.Request.Label).Infof("worker finished (%s)", r.Progress.Status)
	})

	// Classify each task by its post-execution status: the worker child marks
	// the task done or blocked through its own tool surface.
	for _, r := range results {
		taskID := r.Request.Label
		task, err := o.store.LoadTask(taskID)
		if err != nil {
			result.Failed = append(result.Failed, taskID)
			continue
		}

		switch task.Status {
		case crew.StatusDone:
			result.Succeeded = append(result.Succeeded, taskID)
		case crew.StatusBlocked:
			result.Blocked = append(result.Blocked, taskID)
		default:
			if opts.Autonomous {
				reason := "worker exited without completing the task"
				if r.Err != nil {
					reason = r.Err.Error()
				}
				if task.Status == crew.StatusInProgress {
					_, _ = o.store.Block(taskID, reason)
				}
				result.Blocked = append(result.Blocked, taskID)
			} else {
				result.Failed = append(result.Failed, taskID)
			}
		}
	}

	if opts.Autonomous {
		o.recordWave(result)
		o.evaluateAutonomous(ctx, result)
	}
	return result, nil
}

// workerPrompt assembles the prompt for one task: spec, dependencies, review
// feedback on retries, and a slice of the plan document.
func (o *Orchestrator) workerPrompt(def crew.RoleDef, task *crew.Task) (string, error) {
	spec, err := o.store.LoadTaskSpec(task.ID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(def.Preamble)
	fmt.Fprintf(&b, "\n\nTask %s: %s\n\n%s\n", task.ID, task.Title, spec)

	if len(task.DependsOn) > 0 {
		b.WriteString("\nCompleted dependencies:\n")
		for _, dep := range task.DependsOn {
			depTask, err := o.store.LoadTask(dep)
			if err != nil {
				continue
			}
			fmt.Fprintf(&b, "- %s: %s", depTask.ID, depTask.Title)
			if depTask.Summary != "" {
				fmt.Fprintf(&b, " — %s", depTask.Summary)
			}
			b.WriteString("\n")
		}
	}

	// Attempt > 1 means a reviewer sent this back; the worker must see why.
	if task.Attempts > 1 && task.LastReview != nil {
		fmt.Fprintf(&b, "\nPrevious attempt was reviewed (%s). Fix these issues:\n", task.LastReview.Verdict)
		for _, issue := range task.LastReview.Issues {
			fmt.Fprintf(&b, "- %s\n", issue)
		}
		for _, suggestion := range task.LastReview.Suggestions {
			fmt.Fprintf(&b, "- (suggestion) %s\n", suggestion)
		}
	}

	if planSpec := o.planSlice(); planSpec != "" {
		b.WriteString("\nPlan context:\n")
		b.WriteString(planSpec)
	}
	return b.String(), nil
}

// planSlice returns a truncated slice of plan.md for prompt context.
func (o *Orchestrator) planSlice() string {
	data, err := readFileCapped(o.store.PlanSpecPath(), maxPlanSliceBytes)
	if err != nil {
		return ""
	}
	return data
}
