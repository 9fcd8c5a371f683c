package crew

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/grovetools/mesh/pkg/atomicio"
	"gopkg.in/yaml.v3"
)

// Role identifies a child-agent role spawned by the orchestrator.
type Role string

const (
	RoleScout       Role = "scout"
	RoleAnalyst     Role = "analyst"
	RolePlanner     Role = "planner"
	RoleWorker      Role = "worker"
	RoleReviewer    Role = "reviewer"
	RoleInterviewer Role = "interviewer"
	RoleSync        Role = "sync"
)

// AllRoles lists every known role.
var AllRoles = []Role{
	RoleScout, RoleAnalyst, RolePlanner, RoleWorker, RoleReviewer,
	RoleInterviewer, RoleSync,
}

// RoleDef configures one child-agent role: the model-runner agent name, its
// output budget, and a prompt preamble. Projects can override any role by
// dropping crew/agents/<role>.yaml.
type RoleDef struct {
	Name           Role   `yaml:"name"`
	Description    string `yaml:"description,omitempty"`
	Agent          string `yaml:"agent"`
	MaxOutputBytes int    `yaml:"max_output_bytes,omitempty"`
	MaxOutputLines int    `yaml:"max_output_lines,omitempty"`
	Preamble       string `yaml:"preamble,omitempty"`
}

// defaultRoles carries the embedded role definitions. Scouts are kept on a
// tight budget; analysts wider; workers and reviewers wider still.
var defaultRoles = map[Role]RoleDef{
	RoleScout: {
		Name:           RoleScout,
		Description:    "explores the codebase and reports findings",
		Agent:          "scout",
		MaxOutputBytes: 50 * 1024,
		MaxOutputLines: 500,
		Preamble:       "You are a scout. Explore quickly and report only what you found.",
	},
	RoleAnalyst: {
		Name:           RoleAnalyst,
		Description:    "digests the PRD and the planner's task list into a plan",
		Agent:          "analyst",
		MaxOutputBytes: 100 * 1024,
		MaxOutputLines: 2000,
		Preamble:       "You are an analyst. Produce a concrete, dependency-ordered plan.",
	},
	RolePlanner: {
		Name:           RolePlanner,
		Description:    "turns a PRD into an ordered task list",
		Agent:          "planner",
		MaxOutputBytes: 100 * 1024,
		MaxOutputLines: 2000,
		Preamble: "You are a planner. Emit the final task list in a fenced " +
			"```tasks-json block: an array of {title, description, dependsOn}.",
	},
	RoleWorker: {
		Name:           RoleWorker,
		Description:    "implements one task end to end",
		Agent:          "worker",
		MaxOutputBytes: 200 * 1024,
		MaxOutputLines: 4000,
		Preamble:       "You are a worker. Implement the task, run its tests, and commit.",
	},
	RoleReviewer: {
		Name:           RoleReviewer,
		Description:    "reviews plans and implementations",
		Agent:          "reviewer",
		MaxOutputBytes: 200 * 1024,
		MaxOutputLines: 4000,
		Preamble: "You are a reviewer. Respond with sections: Verdict " +
			"(SHIP | NEEDS_WORK | MAJOR_RETHINK), Issues, Suggestions.",
	},
	RoleInterviewer: {
		Name:           RoleInterviewer,
		Description:    "generates clarification questions from a PRD",
		Agent:          "interviewer",
		MaxOutputBytes: 50 * 1024,
		MaxOutputLines: 500,
		Preamble: "You are an interviewer. Emit questions as '### Q<N> (<type>)' " +
			"blocks where type is single, multi, or text.",
	},
	RoleSync: {
		Name:           RoleSync,
		Description:    "propagates a completed task's outcome to dependent specs",
		Agent:          "sync",
		MaxOutputBytes: 100 * 1024,
		MaxOutputLines: 2000,
		Preamble: "You are a sync agent. For each dependent task that needs " +
			"amending, emit a '### Updated: <task-id>' block with a 'New content' section.",
	},
}

// AgentsDir returns the per-project role override directory.
func (s *Store) AgentsDir() string {
	return filepath.Join(s.Dir(), "agents")
}

// ResolveRole returns the effective definition for a role: the project
// override when present, else the embedded default.
func (s *Store) ResolveRole(role Role) (RoleDef, error) {
	def, ok := defaultRoles[role]
	if !ok {
		return RoleDef{}, fmt.Errorf("unknown role %q", role)
	}

	path := filepath.Join(s.AgentsDir(), string(role)+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return def, nil
		}
		return RoleDef{}, fmt.Errorf("read role override %s: %w", path, err)
	}

	override := def
	if err := yaml.Unmarshal(data, &override); err != nil {
		return RoleDef{}, fmt.Errorf("parse role override %s: %w", path, err)
	}
	override.Name = role
	return override, nil
}

// InstallRoles writes the default role definitions into the project so they
// can be customized. Existing files are left alone.
func (s *Store) InstallRoles() ([]string, error) {
	var written []string
	for _, role := range AllRoles {
		path := filepath.Join(s.AgentsDir(), string(role)+".yaml")
		if _, err := os.Stat(path); err == nil {
			continue
		}
		data, err := yaml.Marshal(defaultRoles[role])
		if err != nil {
			return written, fmt.Errorf("marshal role %s: %w", role, err)
		}
		if err := atomicio.WriteFile(path, data, 0644); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

// UninstallRoles removes the per-project role overrides.
func (s *Store) UninstallRoles() error {
	err := os.RemoveAll(s.AgentsDir())
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
