// Package spawn runs child model-runner processes for the crew orchestrator
// and parses their JSONL output. Children are isolated OS processes; abort is
// SIGTERM with a SIGKILL escalation.
package spawn

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/grovetools/mesh/command"
	"github.com/grovetools/mesh/logging"
	"github.com/grovetools/mesh/pkg/crew"
	"github.com/grovetools/mesh/pkg/paths"
	"github.com/sirupsen/logrus"
)

// killGrace is how long a child gets between SIGTERM and SIGKILL.
const killGrace = 3 * time.Second

// Request describes one child to spawn.
type Request struct {
	Role   crew.Role
	Def    crew.RoleDef
	Prompt string
	Dir    string
	Index  int
	Label  string

	// MaxOutputBytes/MaxOutputLines override the role's budget when > 0.
	MaxOutputBytes int
	MaxOutputLines int
}

// Progress is the per-child record surfaced to progress displays.
type Progress struct {
	Phase   string        `json:"phase"`
	Tokens  int           `json:"tokens"`
	Elapsed time.Duration `json:"elapsed"`
	Status  string        `json:"status"`
	Error   string        `json:"error,omitempty"`
}

// Event is one line of the child's JSONL protocol. Unknown types pass
// through untouched; malformed lines are skipped.
type Event struct {
	Type   string `json:"type"`
	Text   string `json:"text,omitempty"`
	Phase  string `json:"phase,omitempty"`
	Tokens int    `json:"tokens,omitempty"`
}

// Result is the outcome of one child run.
type Result struct {
	Request   Request
	Output    string
	Truncated bool
	Progress  Progress
	Err       error

	transcript []string
}

// Spawner runs children and records artifacts.
type Spawner struct {
	exec         command.Executor
	log          *logrus.Entry
	artifactsDir string // empty disables artifacts
	runID        string
}

// New creates a Spawner. artifactsDir may be empty to disable artifact
// recording.
func New(exec command.Executor, artifactsDir, runID string) *Spawner {
	if exec == nil {
		exec = &command.RealExecutor{}
	}
	return &Spawner{
		exec:         exec,
		log:          logging.NewLogger("spawn"),
		artifactsDir: artifactsDir,
		runID:        runID,
	}
}

// Run spawns one child and blocks until it exits or ctx is cancelled.
// Cancellation sends SIGTERM, then SIGKILL after the grace period.
func (s *Spawner) Run(ctx context.Context, req Request) Result {
	started := time.Now()
	result := Result{Request: req, Progress: Progress{Status: "running", Phase: "starting"}}

	cmd := s.exec.CommandContext(ctx, "pi", "--mode", "json", "--agent", req.Def.Agent, "-p", req.Prompt)
	cmd.Dir = req.Dir
	cmd.Env = append(os.Environ(), paths.EnvCrewChild+"=1")
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = killGrace

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		result.Err = fmt.Errorf("pipe stdout: %w", err)
		result.Progress.Status = "failed"
		result.Progress.Error = result.Err.Error()
		return result
	}

	if err := cmd.Start(); err != nil {
		result.Err = fmt.Errorf("start child %s: %w", req.Def.Agent, err)
		result.Progress.Status = "failed"
		result.Progress.Error = result.Err.Error()
		return result
	}

	var assistant []string
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		result.transcript = append(result.transcript, line)

		var event Event
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue
		}
		if event.Tokens > 0 {
			result.Progress.Tokens += event.Tokens
		}
		switch event.Type {
		case "phase":
			result.Progress.Phase = event.Phase
		case "assistant":
			assistant = append(assistant, event.Text)
		}
	}

	waitErr := cmd.Wait()
	result.Progress.Elapsed = time.Since(started)

	output := strings.Join(assistant, "\n")
	output, result.Truncated = s.truncate(req, output)
	result.Output = output

	if waitErr != nil {
		result.Err = fmt.Errorf("child %s exited: %w", req.Def.Agent, waitErr)
		result.Progress.Status = "failed"
		result.Progress.Error = waitErr.Error()
	} else {
		result.Progress.Status = "done"
		result.Progress.Phase = "done"
	}

	if s.artifactsDir != "" {
		if err := s.writeArtifacts(req, &result); err != nil {
			s.log.WithError(err).Warn("could not write artifacts")
		}
	}

	s.log.WithFields(logrus.Fields{
		"role":    req.Role,
		"label":   req.Label,
		"elapsed": result.Progress.Elapsed.Round(time.Millisecond),
		"status":  result.Progress.Status,
	}).Debug("child finished")
	return result
}

// truncate applies the role's output budget (or the request override). When
// truncating with artifacts enabled, the marker points at the full output.
func (s *Spawner) truncate(req Request, output string) (string, bool) {
	maxBytes := req.Def.MaxOutputBytes
	if req.MaxOutputBytes > 0 {
		maxBytes = req.MaxOutputBytes
	}
	maxLines := req.Def.MaxOutputLines
	if req.MaxOutputLines > 0 {
		maxLines = req.MaxOutputLines
	}

	truncated := false
	if maxLines > 0 {
		lines := strings.Split(output, "\n")
		if len(lines) > maxLines {
			output = strings.Join(lines[:maxLines], "\n")
			truncated = true
		}
	}
	if maxBytes > 0 && len(output) > maxBytes {
		output = output[:maxBytes]
		truncated = true
	}

	if truncated {
		marker := "\n\n[output truncated]"
		if s.artifactsDir != "" {
			marker = fmt.Sprintf("\n\n[output truncated; full output in %s]",
				s.artifactPath(req, "output.md"))
		}
		output += marker
	}
	return output, truncated
}
