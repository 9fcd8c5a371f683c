package crew

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/grovetools/mesh/git"
	"github.com/grovetools/mesh/pkg/crew"
)

// maxDiffBytes caps the implementation diff embedded in reviewer prompts.
const maxDiffBytes = 50 * 1024

// ReviewOptions parameterizes the review action.
type ReviewOptions struct {
	// Target selects what to review: a task id (`task-N`) for an
	// implementation review, anything else (or empty) for a plan review.
	Target string
}

// ReviewResult is the parsed reviewer outcome plus what was reviewed.
type ReviewResult struct {
	Target      string   `json:"target"`
	Kind        string   `json:"kind"` // implementation | plan
	Verdict     string   `json:"verdict"`
	Summary     string   `json:"summary,omitempty"`
	Issues      []string `json:"issues,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// Review infers the review type from the target and runs the reviewer child.
// Implementation reviews are stored on the task so the next worker attempt
// sees the feedback.
func (o *Orchestrator) Review(ctx context.Context, opts ReviewOptions) (*ReviewResult, error) {
	if err := o.guardRecursion(); err != nil {
		return nil, err
	}

	if strings.HasPrefix(opts.Target, "task-") {
		return o.reviewImplementation(ctx, opts.Target)
	}
	return o.reviewPlan(ctx)
}

func (o *Orchestrator) reviewImplementation(ctx context.Context, taskID string) (*ReviewResult, error) {
	task, err := o.store.LoadTask(taskID)
	if err != nil {
		return nil, err
	}
	plan, err := o.store.LoadPlan()
	if err != nil {
		return nil, err
	}
	spec, err := o.store.LoadTaskSpec(taskID)
	if err != nil {
		return nil, err
	}

	def, err := o.store.ResolveRole(crew.RoleReviewer)
	if err != nil {
		return nil, o.missingRole(crew.RoleReviewer, err)
	}

	gitClient := git.NewClient(o.store.ProjectDir())
	var diff, commits string
	if task.BaseCommit != "" {
		diff, err = gitClient.Diff(ctx, task.BaseCommit, maxDiffBytes)
		if err != nil {
			o.log.WithError(err).Warnf("could not diff %s..HEAD", task.BaseCommit)
		}
		commits, err = gitClient.Log(ctx, task.BaseCommit)
		if err != nil {
			o.log.WithError(err).Warn("could not read commit log")
		}
	}

	var b strings.Builder
	b.WriteString(def.Preamble)
	fmt.Fprintf(&b, "\n\nReview the implementation of %s: %s\n", task.ID, task.Title)
	fmt.Fprintf(&b, "\nTask spec:\n%s\n", spec)
	fmt.Fprintf(&b, "\nPRD: %s\n", plan.PRDPath)
	if commits != "" {
		fmt.Fprintf(&b, "\nCommits since %s:\n%s\n", shortSHA(task.BaseCommit), commits)
	}
	if diff != "" {
		fmt.Fprintf(&b, "\nDiff:\n%s\n", diff)
	}

	sp := o.newSpawner(newRunID())
	output, err := o.invokeRole(ctx, sp, crew.RoleReviewer, b.String(), "review "+task.ID, 0)
	if err != nil {
		return nil, err
	}

	outcome := parseReview(output)
	task.LastReview = &crew.Review{
		Verdict:     outcome.Verdict,
		Summary:     outcome.Summary,
		Issues:      outcome.Issues,
		Suggestions: outcome.Suggestions,
		ReviewedAt:  time.Now(),
	}
	if err := o.store.SaveTask(task); err != nil {
		return nil, err
	}

	return &ReviewResult{
		Target:      taskID,
		Kind:        "implementation",
		Verdict:     outcome.Verdict,
		Summary:     outcome.Summary,
		Issues:      outcome.Issues,
		Suggestions: outcome.Suggestions,
	}, nil
}

func (o *Orchestrator) reviewPlan(ctx context.Context) (*ReviewResult, error) {
	plan, err := o.store.LoadPlan()
	if err != nil {
		return nil, err
	}
	tasks, err := o.store.ListTasks()
	if err != nil {
		return nil, err
	}

	def, err := o.store.ResolveRole(crew.RoleReviewer)
	if err != nil {
		return nil, o.missingRole(crew.RoleReviewer, err)
	}

	var b strings.Builder
	b.WriteString(def.Preamble)
	fmt.Fprintf(&b, "\n\nReview this project's plan (PRD: %s).\n", plan.PRDPath)
	if planSpec := o.planSlice(); planSpec != "" {
		fmt.Fprintf(&b, "\nPlan document:\n%s\n", planSpec)
	}
	b.WriteString("\nTasks:\n")
	for _, task := range tasks {
		spec, _ := o.store.LoadTaskSpec(task.ID)
		preview := spec
		if len(preview) > 400 {
			preview = preview[:400] + "…"
		}
		fmt.Fprintf(&b, "\n%s: %s [%s]\n%s\n", task.ID, task.Title, task.Status, preview)
	}

	sp := o.newSpawner(newRunID())
	output, err := o.invokeRole(ctx, sp, crew.RoleReviewer, b.String(), "plan review", 0)
	if err != nil {
		return nil, err
	}

	outcome := parseReview(output)
	return &ReviewResult{
		Target:      "plan",
		Kind:        "plan",
		Verdict:     outcome.Verdict,
		Summary:     outcome.Summary,
		Issues:      outcome.Issues,
		Suggestions: outcome.Suggestions,
	}, nil
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
