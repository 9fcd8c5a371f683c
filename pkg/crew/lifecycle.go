package crew

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/grovetools/mesh/errors"
	"github.com/grovetools/mesh/git"
	"github.com/grovetools/mesh/pkg/atomicio"
)

// Start transitions a task todo -> in_progress. It records the base git
// commit for later review diffs and increments the attempt counter, so a
// retried task carries its history.
func (s *Store) Start(ctx context.Context, id, agent string) (*Task, error) {
	task, err := s.LoadTask(id)
	if err != nil {
		return nil, err
	}
	if task.Status != StatusTodo {
		return nil, errors.InvalidStatus(id, string(task.Status), string(StatusInProgress))
	}

	ready, missing, err := s.depsDone(task)
	if err != nil {
		return nil, err
	}
	if !ready {
		return nil, errors.New(errors.ErrCodeUnmetDependencies,
			fmt.Sprintf("task '%s' has unmet dependencies: %v", id, missing)).
			WithDetail("missing", missing)
	}

	now := time.Now()
	task.Status = StatusInProgress
	task.StartedAt = &now
	task.Assigned = agent
	task.Attempts++
	task.BaseCommit = git.NewClient(s.projectDir).Head(ctx)

	if err := s.SaveTask(task); err != nil {
		return nil, err
	}
	return task, nil
}

// Complete transitions a task in_progress -> done and bumps the plan's
// completed counter.
func (s *Store) Complete(id, summary string, evidence *Evidence) (*Task, error) {
	task, err := s.LoadTask(id)
	if err != nil {
		return nil, err
	}
	if task.Status != StatusInProgress {
		return nil, errors.InvalidStatus(id, string(task.Status), string(StatusDone))
	}

	now := time.Now()
	task.Status = StatusDone
	task.CompletedAt = &now
	task.Summary = summary
	task.Evidence = evidence
	task.BlockedReason = ""

	if err := s.SaveTask(task); err != nil {
		return nil, err
	}

	if plan, err := s.LoadPlan(); err == nil {
		plan.CompletedCount++
		if err := s.SavePlan(plan); err != nil {
			s.log.WithError(err).Warn("could not bump plan completed count")
		}
	}
	return task, nil
}

// Block transitions a task in_progress -> blocked and writes the reason to
// blocks/<id>.md.
func (s *Store) Block(id, reason string) (*Task, error) {
	task, err := s.LoadTask(id)
	if err != nil {
		return nil, err
	}
	if task.Status != StatusInProgress {
		return nil, errors.InvalidStatus(id, string(task.Status), string(StatusBlocked))
	}

	task.Status = StatusBlocked
	task.BlockedReason = reason
	if err := s.SaveTask(task); err != nil {
		return nil, err
	}

	note := fmt.Sprintf("# %s blocked\n\n%s\n\nRecorded %s\n", id, reason, time.Now().Format(time.RFC3339))
	blockPath := filepath.Join(s.BlocksDir(), id+".md")
	if err := atomicio.WriteFile(blockPath, []byte(note), 0644); err != nil {
		s.log.WithError(err).Warnf("could not write block note for %s", id)
	}
	return task, nil
}

// Unblock transitions a task blocked -> todo.
func (s *Store) Unblock(id string) (*Task, error) {
	task, err := s.LoadTask(id)
	if err != nil {
		return nil, err
	}
	if task.Status != StatusBlocked {
		return nil, errors.InvalidStatus(id, string(task.Status), string(StatusTodo))
	}

	task.Status = StatusTodo
	task.BlockedReason = ""
	if err := s.SaveTask(task); err != nil {
		return nil, err
	}
	return task, nil
}

// Reset forces a task back to todo from any state. With cascade, every task
// that depends (transitively) on it is reset too. Counters are resynced
// afterwards.
func (s *Store) Reset(id string, cascade bool) ([]*Task, error) {
	tasks, err := s.ListTasks()
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}
	if _, ok := byID[id]; !ok {
		return nil, errors.TaskNotFound(id)
	}

	targets := map[string]bool{id: true}
	if cascade {
		// Fixed-point walk over reverse dependencies.
		for changed := true; changed; {
			changed = false
			for _, t := range tasks {
				if targets[t.ID] {
					continue
				}
				for _, dep := range t.DependsOn {
					if targets[dep] {
						targets[t.ID] = true
						changed = true
						break
					}
				}
			}
		}
	}

	var reset []*Task
	for _, t := range tasks {
		if !targets[t.ID] {
			continue
		}
		t.Status = StatusTodo
		t.StartedAt = nil
		t.CompletedAt = nil
		t.Assigned = ""
		t.Summary = ""
		t.Evidence = nil
		t.BlockedReason = ""
		if err := s.SaveTask(t); err != nil {
			return nil, err
		}
		reset = append(reset, t)
	}

	if _, err := s.Resync(); err != nil {
		s.log.WithError(err).Warn("counter resync after reset failed")
	}
	return reset, nil
}

// depsDone reports whether every dependency of a task is done.
func (s *Store) depsDone(task *Task) (bool, []string, error) {
	var missing []string
	for _, dep := range task.DependsOn {
		depTask, err := s.LoadTask(dep)
		if err != nil {
			return false, nil, err
		}
		if depTask.Status != StatusDone {
			missing = append(missing, dep)
		}
	}
	return len(missing) == 0, missing, nil
}

// Ready returns every task that is todo with all dependencies done, in id
// order.
func (s *Store) Ready() ([]*Task, error) {
	tasks, err := s.ListTasks()
	if err != nil {
		return nil, err
	}

	done := make(map[string]bool)
	for _, t := range tasks {
		if t.Status == StatusDone {
			done[t.ID] = true
		}
	}

	var ready []*Task
	for _, t := range tasks {
		if t.Status != StatusTodo {
			continue
		}
		ok := true
		for _, dep := range t.DependsOn {
			if !done[dep] {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, t)
		}
	}
	return ready, nil
}
