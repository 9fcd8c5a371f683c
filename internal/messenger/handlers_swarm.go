package messenger

import (
	"fmt"
	"sort"
	"strings"

	meshErrors "github.com/grovetools/mesh/errors"
	"github.com/grovetools/mesh/util/pathutil"
)

// swarmRequest covers the claim/unclaim/complete argument shapes, including
// the legacy key form where the task id sits under the action key itself.
type swarmRequest struct {
	Spec     string `json:"spec"`
	Task     string `json:"task"`
	Reason   string `json:"reason"`
	Notes    string `json:"notes"`
	Claim    string `json:"claim"`
	Unclaim  string `json:"unclaim"`
	Complete string `json:"complete"`
}

// resolveSwarmTarget normalizes a swarm request: spec falls back to the
// registration's working spec, the task id may arrive under the legacy key.
func (m *Messenger) resolveSwarmTarget(req *swarmRequest, legacyTask string) (spec, task string, err error) {
	task = req.Task
	if task == "" {
		task = legacyTask
	}
	if task == "" {
		return "", "", meshErrors.New(meshErrors.ErrCodeInvalidInput, "missing task id")
	}

	spec = req.Spec
	if spec == "" {
		spec = m.Self().SpecPath
	}
	if spec == "" {
		return "", "", meshErrors.New(meshErrors.ErrCodeNoSpec,
			"no spec given and none set on this registration; pass `spec` or use the spec action")
	}
	return pathutil.Canonical(m.cwd, spec), task, nil
}

func (m *Messenger) handleClaim(args map[string]interface{}) Result {
	var req swarmRequest
	if err := decode(args, &req); err != nil {
		return fail(err)
	}
	spec, task, err := m.resolveSwarmTarget(&req, req.Claim)
	if err != nil {
		return fail(err)
	}

	if err := m.swarm.Claim(m.Self(), spec, task, req.Reason); err != nil {
		return fail(err)
	}
	return ok(fmt.Sprintf("Claimed %s in %s.", task, spec),
		map[string]interface{}{"spec": spec, "task": task})
}

func (m *Messenger) handleUnclaim(args map[string]interface{}) Result {
	var req swarmRequest
	if err := decode(args, &req); err != nil {
		return fail(err)
	}
	spec, task, err := m.resolveSwarmTarget(&req, req.Unclaim)
	if err != nil {
		return fail(err)
	}

	if err := m.swarm.Unclaim(m.Self(), spec, task); err != nil {
		return fail(err)
	}
	return ok(fmt.Sprintf("Released claim on %s in %s.", task, spec),
		map[string]interface{}{"spec": spec, "task": task})
}

func (m *Messenger) handleComplete(args map[string]interface{}) Result {
	var req swarmRequest
	if err := decode(args, &req); err != nil {
		return fail(err)
	}
	spec, task, err := m.resolveSwarmTarget(&req, req.Complete)
	if err != nil {
		return fail(err)
	}

	if err := m.swarm.Complete(m.Self(), spec, task, req.Notes); err != nil {
		return fail(err)
	}
	return ok(fmt.Sprintf("Completed %s in %s.", task, spec),
		map[string]interface{}{"spec": spec, "task": task})
}

func (m *Messenger) handleSwarmList(args map[string]interface{}) Result {
	var req swarmRequest
	if err := decode(args, &req); err != nil {
		return fail(err)
	}

	spec := req.Spec
	if spec == "" {
		spec = m.Self().SpecPath
	}
	if spec == "" {
		return fail(meshErrors.New(meshErrors.ErrCodeNoSpec, "swarm requires a spec"))
	}
	spec = pathutil.Canonical(m.cwd, spec)

	state, err := m.swarm.List(spec)
	if err != nil {
		return fail(err)
	}

	var lines []string
	claimed := make([]string, 0, len(state.Claims))
	for task := range state.Claims {
		claimed = append(claimed, task)
	}
	sort.Strings(claimed)
	for _, task := range claimed {
		claim := state.Claims[task]
		lines = append(lines, fmt.Sprintf("%s: claimed by %s", task, claim.Agent))
	}

	completed := make([]string, 0, len(state.Completions))
	for task := range state.Completions {
		completed = append(completed, task)
	}
	sort.Strings(completed)
	for _, task := range completed {
		done := state.Completions[task]
		lines = append(lines, fmt.Sprintf("%s: completed by %s", task, done.By))
	}

	if len(lines) == 0 {
		return ok(fmt.Sprintf("No claims or completions for %s.", spec),
			map[string]interface{}{"spec": spec})
	}
	return ok(strings.Join(lines, "\n"), map[string]interface{}{
		"spec":        spec,
		"claims":      state.Claims,
		"completions": state.Completions,
	})
}
