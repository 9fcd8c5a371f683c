// Package crew implements the orchestrator actions: plan, work, review,
// interview, and sync. Each action reads plan/task state, fans out child
// agents through the spawner under a concurrency cap, parses their outputs,
// and writes back to the store.
package crew

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/grovetools/mesh/command"
	"github.com/grovetools/mesh/config"
	mesherrors "github.com/grovetools/mesh/errors"
	"github.com/grovetools/mesh/internal/spawn"
	"github.com/grovetools/mesh/logging"
	"github.com/grovetools/mesh/pkg/crew"
	"github.com/grovetools/mesh/pkg/paths"
	"github.com/sirupsen/logrus"
)

// SteerFunc feeds a continuation prompt back into the host runtime's turn
// loop, so the next agent step re-enters the orchestrator.
type SteerFunc func(text string)

// Orchestrator drives crew actions for one project directory. It is owned by
// the host-integration shell; the autonomous state lives here for the
// session, not in a file.
type Orchestrator struct {
	store *crew.Store
	cfg   *config.Config
	exec  command.Executor
	steer SteerFunc
	log   *logrus.Entry

	auto *AutoState
}

// New creates an Orchestrator.
func New(store *crew.Store, cfg *config.Config, exec command.Executor, steer SteerFunc) *Orchestrator {
	if exec == nil {
		exec = &command.RealExecutor{}
	}
	if steer == nil {
		steer = func(string) {}
	}
	return &Orchestrator{
		store: store,
		cfg:   cfg,
		exec:  exec,
		steer: steer,
		log:   logging.NewLogger("crew"),
	}
}

// Store exposes the underlying store for the tool handlers.
func (o *Orchestrator) Store() *crew.Store {
	return o.store
}

// guardRecursion rejects orchestration from crew children. Workers get the
// full tool surface except fan-out.
func (o *Orchestrator) guardRecursion() error {
	if os.Getenv(paths.EnvCrewChild) != "" {
		return mesherrors.New(mesherrors.ErrCodeCrewRecursion,
			"crew children cannot spawn further crews")
	}
	return nil
}

// newSpawner builds a Spawner for one orchestration run, honoring the
// artifacts toggle.
func (o *Orchestrator) newSpawner(runID string) *spawn.Spawner {
	artifactsDir := ""
	if o.cfg.ArtifactsEnabled() {
		artifactsDir = o.store.ArtifactsDir()
		if err := spawn.CleanupArtifacts(artifactsDir, o.cfg.Crew.Artifacts.CleanupDays); err != nil {
			o.log.WithError(err).Warn("artifact cleanup failed")
		}
	}
	return spawn.New(o.exec, artifactsDir, runID)
}

// invokeRole spawns a single child for a role and returns its assembled
// output.
func (o *Orchestrator) invokeRole(ctx context.Context, sp *spawn.Spawner, role crew.Role, prompt, label string, idx int) (string, error) {
	def, err := o.store.ResolveRole(role)
	if err != nil {
		return "", o.missingRole(role, err)
	}

	result := sp.Run(ctx, spawn.Request{
		Role:   role,
		Def:    def,
		Prompt: prompt,
		Dir:    o.store.ProjectDir(),
		Index:  idx,
		Label:  label,
	})
	if result.Err != nil {
		return "", result.Err
	}
	return result.Output, nil
}

// missingRole maps a role resolution failure onto the availability taxonomy.
func (o *Orchestrator) missingRole(role crew.Role, cause error) error {
	var code mesherrors.ErrorCode
	switch role {
	case crew.RolePlanner:
		code = mesherrors.ErrCodeNoPlanner
	case crew.RoleWorker:
		code = mesherrors.ErrCodeNoWorker
	case crew.RoleReviewer:
		code = mesherrors.ErrCodeNoReviewer
	case crew.RoleAnalyst:
		code = mesherrors.ErrCodeNoAnalyst
	default:
		code = mesherrors.ErrCodeInternal
	}
	return mesherrors.Wrap(cause, code, fmt.Sprintf("no usable %s agent", role))
}

// newRunID allocates an artifact run id.
func newRunID() string {
	return uuid.NewString()[:8]
}
