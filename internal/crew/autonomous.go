package crew

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/grovetools/mesh/pkg/crew"
)

// WaveRecord is one entry of the autonomous wave history.
type WaveRecord struct {
	Wave      int       `json:"wave"`
	Attempted []string  `json:"attempted,omitempty"`
	Succeeded []string  `json:"succeeded,omitempty"`
	Failed    []string  `json:"failed,omitempty"`
	Blocked   []string  `json:"blocked,omitempty"`
	At        time.Time `json:"at"`
}

// AutoState is the session-embedded autonomous run state. It is not a file:
// the host session owns it and the continuation steer carries the run across
// turns.
//
// NextWave is the number the NEXT wave will record; recordWave increments it
// before the continuation check runs, so readers see the upcoming wave's
// number, not the finished one's.
type AutoState struct {
	Active     bool         `json:"active"`
	Dir        string       `json:"dir"`
	NextWave   int          `json:"next_wave"`
	Attempts   map[string]int `json:"attempts,omitempty"`
	History    []WaveRecord `json:"history,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	StoppedAt  *time.Time   `json:"stopped_at,omitempty"`
	StopReason string       `json:"stop_reason,omitempty"` // completed | blocked | manual
}

// AutoState returns the current autonomous state, nil when no run is active
// or recorded this session.
func (o *Orchestrator) AutoState() *AutoState {
	return o.auto
}

// StopAutonomous ends the run manually.
func (o *Orchestrator) StopAutonomous() {
	if o.auto != nil && o.auto.Active {
		o.stopAuto("manual")
	}
}

// ensureAutoState initializes the state machine on the first wave or when the
// working directory changed since the last run.
func (o *Orchestrator) ensureAutoState() {
	if o.auto != nil && o.auto.Active && o.auto.Dir == o.store.ProjectDir() {
		return
	}
	o.auto = &AutoState{
		Active:    true,
		Dir:       o.store.ProjectDir(),
		NextWave:  1,
		Attempts:  make(map[string]int),
		StartedAt: time.Now(),
	}
	o.log.Info("autonomous run started")
}

// recordWave appends the wave record and advances NextWave.
func (o *Orchestrator) recordWave(result *WorkResult) {
	if o.auto == nil {
		return
	}
	o.auto.History = append(o.auto.History, WaveRecord{
		Wave:      o.auto.NextWave,
		Attempted: result.Attempted,
		Succeeded: result.Succeeded,
		Failed:    result.Failed,
		Blocked:   result.Blocked,
		At:        time.Now(),
	})
	for _, id := range result.Attempted {
		o.auto.Attempts[id]++
	}
	o.auto.NextWave++
}

// evaluateAutonomous decides whether the run stops or continues. Stop
// reasons: completed (all tasks done), blocked (nothing ready and nothing in
// flight), manual (wave cap reached). Otherwise a continuation steer re-enters
// the work action on the next agent step.
func (o *Orchestrator) evaluateAutonomous(ctx context.Context, result *WorkResult) {
	if o.auto == nil || !o.auto.Active {
		return
	}

	tasks, err := o.store.ListTasks()
	if err != nil {
		o.log.WithError(err).Warn("autonomous evaluation could not list tasks")
		return
	}

	allDone := len(tasks) > 0
	inProgress := false
	for _, t := range tasks {
		if t.Status != crew.StatusDone {
			allDone = false
		}
		if t.Status == crew.StatusInProgress {
			inProgress = true
		}
	}

	ready, err := o.store.Ready()
	if err != nil {
		o.log.WithError(err).Warn("autonomous evaluation could not compute readiness")
		return
	}

	switch {
	case allDone:
		o.stopAuto("completed")
		result.StopReason = "completed"
	case len(ready) == 0 && !inProgress:
		o.stopAuto("blocked")
		result.StopReason = "blocked"
	case o.cfg.Crew.Work.MaxWaves > 0 && o.auto.NextWave > o.cfg.Crew.Work.MaxWaves:
		o.stopAuto("manual")
		result.StopReason = "manual"
	default:
		result.Continuing = true
		o.steer(fmt.Sprintf(
			"Autonomous crew run in %s: wave %d finished (%d succeeded, %d blocked). Run the work action again to continue.",
			o.auto.Dir, o.auto.NextWave-1, len(result.Succeeded), len(result.Blocked)))
	}
}

func (o *Orchestrator) stopAuto(reason string) {
	now := time.Now()
	o.auto.Active = false
	o.auto.StoppedAt = &now
	o.auto.StopReason = reason
	o.log.WithField("reason", reason).Info("autonomous run stopped")
}

// readFileCapped reads a file truncated to maxBytes with a marker.
func readFileCapped(path string, maxBytes int) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if maxBytes > 0 && len(data) > maxBytes {
		return string(data[:maxBytes]) + "\n\n[truncated]", nil
	}
	return string(data), nil
}
