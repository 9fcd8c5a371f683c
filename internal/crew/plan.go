package crew

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	mesherrors "github.com/grovetools/mesh/errors"
	"github.com/grovetools/mesh/internal/spawn"
	"github.com/grovetools/mesh/pkg/crew"
	"github.com/grovetools/mesh/pkg/lockfile"
)

// maxProgressPromptBytes caps the planning-progress slice embedded in planner
// prompts.
const maxProgressPromptBytes = 50 * 1024

// PlanOptions parameterizes the plan action.
type PlanOptions struct {
	// PRD is an explicit PRD path; empty triggers discovery.
	PRD string
}

// PlanResult summarizes a completed plan action.
type PlanResult struct {
	PRDPath    string   `json:"prd_path"`
	Passes     int      `json:"passes"`
	Verdict    string   `json:"verdict,omitempty"`
	TaskIDs    []string `json:"task_ids"`
	Unresolved []string `json:"unresolved_deps,omitempty"`
}

// Plan discovers a PRD, creates the plan under the crew lock, runs scouts and
// the planning refinement loop, then materializes the task list. Any failure
// after plan creation rolls the plan entry back.
func (o *Orchestrator) Plan(ctx context.Context, opts PlanOptions) (*PlanResult, error) {
	if err := o.guardRecursion(); err != nil {
		return nil, err
	}

	// The planning run can take minutes; the crew lock rejects, rather than
	// queues, a concurrent plan in the same project.
	lock, err := lockfile.Acquire(o.store.PlanLockPath(), lockfile.CrewOptions())
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := lock.Release(); rerr != nil {
			o.log.WithError(rerr).Warn("could not release crew lock")
		}
	}()

	prdPath, err := o.discoverPRD(opts.PRD)
	if err != nil {
		return nil, err
	}
	prdContent, err := readPRD(prdPath)
	if err != nil {
		return nil, err
	}

	relPRD := prdPath
	if rel, err := filepath.Rel(o.store.ProjectDir(), prdPath); err == nil {
		relPRD = rel
	}
	plan, err := o.store.CreatePlan(relPRD)
	if err != nil {
		return nil, err
	}

	result, err := o.runPlanning(ctx, prdContent, relPRD)
	if err != nil {
		// Roll back the plan entry created earlier in this call so a failed
		// run doesn't wedge the project behind PLAN_EXISTS.
		if derr := o.store.DeletePlan(); derr != nil {
			o.log.WithError(derr).Warn("plan rollback failed")
		}
		return nil, err
	}

	plan.TaskCount = len(result.TaskIDs)
	if err := o.store.SavePlan(plan); err != nil {
		o.log.WithError(err).Warn("could not update plan counters")
	}
	result.PRDPath = relPRD
	return result, nil
}

// runPlanning executes scouts, the planner refinement loop, and task
// materialization.
func (o *Orchestrator) runPlanning(ctx context.Context, prdContent, relPRD string) (*PlanResult, error) {
	runID := newRunID()
	sp := o.newSpawner(runID)

	scoutReports, err := o.runScouts(ctx, sp, prdContent)
	if err != nil {
		return nil, err
	}

	reviewerAvailable := true
	if _, err := o.store.ResolveRole(crew.RoleReviewer); err != nil {
		reviewerAvailable = false
	}

	maxPasses := o.cfg.Crew.Planning.MaxPasses
	if maxPasses < 1 {
		maxPasses = 1
	}

	var plannerOutput string
	var lastReview ReviewOutcome
	result := &PlanResult{}

	for pass := 1; pass <= maxPasses; pass++ {
		result.Passes = pass

		prompt := o.plannerPrompt(prdContent, scoutReports, pass)
		plannerOutput, err = o.invokeRole(ctx, sp, crew.RolePlanner, prompt,
			fmt.Sprintf("planner pass %d", pass), pass)
		if err != nil {
			return nil, mesherrors.Wrap(err, mesherrors.ErrCodePlannerFailed,
				fmt.Sprintf("planner pass %d failed", pass))
		}

		o.appendProgress(fmt.Sprintf("Planner pass %d", pass), plannerOutput)

		if !reviewerAvailable || pass == maxPasses {
			break
		}

		reviewPrompt := o.planReviewPrompt(plannerOutput, lastReview)
		reviewOutput, err := o.invokeRole(ctx, sp, crew.RoleReviewer, reviewPrompt,
			fmt.Sprintf("plan review %d", pass), pass)
		if err != nil {
			o.log.WithError(err).Warn("plan reviewer failed; shipping current pass")
			break
		}

		lastReview = parseReview(reviewOutput)
		result.Verdict = lastReview.Verdict
		o.appendProgress(fmt.Sprintf("Review of pass %d (%s)", pass, lastReview.Verdict), reviewOutput)
		if lastReview.Verdict == crew.VerdictShip {
			break
		}
		// NEEDS_WORK and MAJOR_RETHINK both feed the next pass through the
		// progress file.
	}

	// The analyst digests the winning pass into the durable plan document.
	analystPrompt := fmt.Sprintf(
		"Synthesize the final plan document for this project.\n\nPRD (%s):\n%s\n\nTask list:\n%s\n",
		relPRD, prdContent, plannerOutput)
	analystOutput, err := o.invokeRole(ctx, sp, crew.RoleAnalyst, analystPrompt, "analyst", 0)
	if err != nil {
		return nil, mesherrors.Wrap(err, mesherrors.ErrCodeAnalystFailed, "analyst failed")
	}
	if err := os.WriteFile(o.store.PlanSpecPath(), []byte(analystOutput), 0644); err != nil {
		return nil, fmt.Errorf("write plan.md: %w", err)
	}

	parsed, err := parseTasks(plannerOutput)
	if err != nil {
		return nil, mesherrors.Wrap(err, mesherrors.ErrCodePlannerFailed, "planner output had no usable task list")
	}
	if len(parsed) == 0 {
		return nil, mesherrors.New(mesherrors.ErrCodePlannerFailed, "planner produced an empty task list")
	}

	// Create in store order first, then resolve dependency strings to the ids
	// that creation allocated.
	created := make([]*crew.Task, 0, len(parsed))
	for _, p := range parsed {
		task, err := o.store.CreateTask(p.Title, p.Description, nil)
		if err != nil {
			return nil, err
		}
		created = append(created, task)
		result.TaskIDs = append(result.TaskIDs, task.ID)
	}

	resolved, unresolved := resolveDependencies(parsed, created)
	result.Unresolved = unresolved
	for i, deps := range resolved {
		if len(deps) == 0 {
			continue
		}
		created[i].DependsOn = deps
		if err := o.store.SaveTask(created[i]); err != nil {
			return nil, err
		}
	}
	for _, u := range unresolved {
		o.log.Warnf("dropped unresolvable dependency %s", u)
	}

	return result, nil
}

// scoutFocuses splits the exploration pass across scouts.
var scoutFocuses = []string{
	"Map the repository layout: entry points, packages, build and test setup.",
	"Find the code most relevant to the PRD and summarize how it works today.",
	"List existing tests, fixtures, and tooling a worker could lean on.",
}

// runScouts fans out the exploration pass. Individual scout failures are
// tolerated; all of them failing aborts the plan.
func (o *Orchestrator) runScouts(ctx context.Context, sp *spawn.Spawner, prdContent string) ([]string, error) {
	def, err := o.store.ResolveRole(crew.RoleScout)
	if err != nil {
		// No scout role at all: planning proceeds on the PRD alone.
		o.log.WithError(err).Debug("no scout role; skipping exploration")
		return nil, nil
	}

	count := o.cfg.Crew.Concurrency.Scouts
	if count < 1 {
		count = 1
	}
	if count > len(scoutFocuses) {
		count = len(scoutFocuses)
	}

	reqs := make([]spawn.Request, count)
	for i := 0; i < count; i++ {
		reqs[i] = spawn.Request{
			Role: crew.RoleScout,
			Def:  def,
			Prompt: fmt.Sprintf("%s\n\nFocus: %s\n\nPRD:\n%s",
				def.Preamble, scoutFocuses[i], prdContent),
			Dir:   o.store.ProjectDir(),
			Index: i,
			Label: fmt.Sprintf("scout %d", i+1),
		}
	}

	results := sp.RunAll(ctx, reqs, count, nil)
	var reports []string
	for _, r := range results {
		if r.Err != nil {
			o.log.WithError(r.Err).Warnf("%s failed", r.Request.Label)
			continue
		}
		reports = append(reports, r.Output)
	}
	if len(reports) == 0 && count > 0 {
		return nil, mesherrors.New(mesherrors.ErrCodeAllScoutsFailed, "every scout failed")
	}
	return reports, nil
}

// plannerPrompt assembles a planning pass prompt: PRD, scout reports, and the
// truncated progress log so later passes see review feedback.
func (o *Orchestrator) plannerPrompt(prdContent string, scoutReports []string, pass int) string {
	var b strings.Builder
	def, _ := o.store.ResolveRole(crew.RolePlanner)
	b.WriteString(def.Preamble)
	b.WriteString("\n\nPRD:\n")
	b.WriteString(prdContent)

	for i, report := range scoutReports {
		fmt.Fprintf(&b, "\n\nScout report %d:\n%s", i+1, report)
	}

	if progress := o.readProgressForPrompt(); progress != "" {
		b.WriteString("\n\nPlanning progress so far:\n")
		b.WriteString(progress)
	}
	if pass > 1 {
		fmt.Fprintf(&b, "\n\nThis is pass %d. Address the review feedback above.", pass)
	}
	return b.String()
}

// planReviewPrompt assembles the reviewer prompt for one planner pass.
func (o *Orchestrator) planReviewPrompt(plannerOutput string, previous ReviewOutcome) string {
	var b strings.Builder
	def, _ := o.store.ResolveRole(crew.RoleReviewer)
	b.WriteString(def.Preamble)
	b.WriteString("\n\nReview this plan:\n")
	b.WriteString(plannerOutput)
	if previous.Verdict != "" && previous.Verdict != crew.VerdictShip {
		b.WriteString("\n\nYour previous review:\n")
		b.WriteString(previous.Summary)
		for _, issue := range previous.Issues {
			b.WriteString("\n- ")
			b.WriteString(issue)
		}
	}
	return b.String()
}

// appendProgress records one run section in planning-progress.md under a
// timestamped header.
func (o *Orchestrator) appendProgress(title, body string) {
	section := fmt.Sprintf("\n## %s — %s\n\n%s\n", title, time.Now().Format(time.RFC3339), body)
	file, err := os.OpenFile(o.store.ProgressPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		o.log.WithError(err).Warn("could not append planning progress")
		return
	}
	defer file.Close()
	if _, err := file.WriteString(section); err != nil {
		o.log.WithError(err).Warn("could not append planning progress")
	}
}

// readProgressForPrompt returns the progress log truncated to the prompt
// budget. Truncation keeps the notes prefix (everything before the first run
// header) and the current run, eliding earlier runs.
func (o *Orchestrator) readProgressForPrompt() string {
	data, err := os.ReadFile(o.store.ProgressPath())
	if err != nil {
		return ""
	}
	content := string(data)
	if len(content) <= maxProgressPromptBytes {
		return content
	}

	prefix := content
	if idx := strings.Index(content, "\n## "); idx >= 0 {
		prefix = content[:idx]
	}
	current := content
	if idx := strings.LastIndex(content, "\n## "); idx >= 0 {
		current = content[idx:]
	}

	combined := prefix + "\n\n[earlier planning runs elided]\n" + current
	if len(combined) > maxProgressPromptBytes {
		combined = combined[:maxProgressPromptBytes] + "\n\n[progress truncated]"
	}
	return combined
}
