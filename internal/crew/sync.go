package crew

import (
	"context"
	"fmt"
	"strings"

	mesherrors "github.com/grovetools/mesh/errors"
	"github.com/grovetools/mesh/pkg/crew"
)

// SyncResult reports which dependent task specs were amended.
type SyncResult struct {
	Task    string   `json:"task"`
	Updated []string `json:"updated,omitempty"`
	Skipped []string `json:"skipped,omitempty"`
}

// Sync propagates a completed task's outcome into the specs of its dependent
// todo tasks. The sync agent proposes amendments; each parsed "New content"
// section is appended to the target's spec file, never replacing it.
func (o *Orchestrator) Sync(ctx context.Context, taskID string) (*SyncResult, error) {
	if err := o.guardRecursion(); err != nil {
		return nil, err
	}

	task, err := o.store.LoadTask(taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != crew.StatusDone {
		return nil, mesherrors.InvalidStatus(taskID, string(task.Status), string(crew.StatusDone))
	}

	tasks, err := o.store.ListTasks()
	if err != nil {
		return nil, err
	}

	var dependents []*crew.Task
	for _, t := range tasks {
		if t.Status != crew.StatusTodo {
			continue
		}
		for _, dep := range t.DependsOn {
			if dep == taskID {
				dependents = append(dependents, t)
				break
			}
		}
	}
	if len(dependents) == 0 {
		return &SyncResult{Task: taskID}, nil
	}

	def, err := o.store.ResolveRole(crew.RoleSync)
	if err != nil {
		return nil, mesherrors.Wrap(err, mesherrors.ErrCodeInternal, "no usable sync agent")
	}

	var b strings.Builder
	b.WriteString(def.Preamble)
	fmt.Fprintf(&b, "\n\nCompleted task %s: %s\n", task.ID, task.Title)
	if task.Summary != "" {
		fmt.Fprintf(&b, "Outcome: %s\n", task.Summary)
	}
	b.WriteString("\nDependent tasks that may need amending:\n")
	for _, dep := range dependents {
		spec, _ := o.store.LoadTaskSpec(dep.ID)
		fmt.Fprintf(&b, "\n### %s: %s\n%s\n", dep.ID, dep.Title, spec)
	}

	sp := o.newSpawner(newRunID())
	output, err := o.invokeRole(ctx, sp, crew.RoleSync, b.String(), "sync "+taskID, 0)
	if err != nil {
		return nil, err
	}

	allowed := make(map[string]bool, len(dependents))
	for _, dep := range dependents {
		allowed[dep.ID] = true
	}

	result := &SyncResult{Task: taskID}
	for _, update := range parseSpecUpdates(output) {
		if !allowed[update.TaskID] {
			result.Skipped = append(result.Skipped, update.TaskID)
			continue
		}
		section := fmt.Sprintf("## Amendment after %s\n\n%s", taskID, update.Content)
		if err := o.store.AppendTaskSpec(update.TaskID, section); err != nil {
			return nil, fmt.Errorf("append spec for %s: %w", update.TaskID, err)
		}
		result.Updated = append(result.Updated, update.TaskID)
	}
	return result, nil
}
