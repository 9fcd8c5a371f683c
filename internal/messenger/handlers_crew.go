package messenger

import (
	"context"
	"fmt"
	"strings"

	meshErrors "github.com/grovetools/mesh/errors"
	crewpkg "github.com/grovetools/mesh/internal/crew"
	"github.com/grovetools/mesh/pkg/crew"
)

func (m *Messenger) handlePlan(ctx context.Context, args map[string]interface{}) Result {
	var req struct {
		PRD string `json:"prd"`
	}
	if err := decode(args, &req); err != nil {
		return fail(err)
	}

	result, err := m.crewOps.Plan(ctx, crewpkg.PlanOptions{PRD: req.PRD})
	if err != nil {
		return fail(err)
	}

	text := fmt.Sprintf("Planned %d task(s) from %s in %d pass(es).",
		len(result.TaskIDs), result.PRDPath, result.Passes)
	if result.Verdict != "" {
		text += fmt.Sprintf(" Final review verdict: %s.", result.Verdict)
	}
	return ok(text, map[string]interface{}{
		"prd":     result.PRDPath,
		"tasks":   result.TaskIDs,
		"passes":  result.Passes,
		"verdict": result.Verdict,
	})
}

func (m *Messenger) handleWork(ctx context.Context, args map[string]interface{}) Result {
	var req struct {
		Autonomous bool `json:"autonomous"`
	}
	if err := decode(args, &req); err != nil {
		return fail(err)
	}

	result, err := m.crewOps.Work(ctx, crewpkg.WorkOptions{Autonomous: req.Autonomous})
	if err != nil {
		return fail(err)
	}

	var parts []string
	if len(result.Attempted) > 0 {
		parts = append(parts, fmt.Sprintf("ran %s", strings.Join(result.Attempted, ", ")))
	}
	if len(result.Succeeded) > 0 {
		parts = append(parts, fmt.Sprintf("%d succeeded", len(result.Succeeded)))
	}
	if len(result.Failed) > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", len(result.Failed)))
	}
	if len(result.Blocked) > 0 {
		parts = append(parts, fmt.Sprintf("%d blocked", len(result.Blocked)))
	}
	text := "Wave complete"
	if len(parts) > 0 {
		text = "Wave complete: " + strings.Join(parts, ", ") + "."
	} else {
		text = "No ready tasks to run."
	}
	if result.StopReason != "" {
		text += fmt.Sprintf(" Autonomous run stopped (%s).", result.StopReason)
	} else if result.Continuing {
		text += " Continuing autonomously."
	}

	return ok(text, map[string]interface{}{
		"wave":        result.Wave,
		"attempted":   result.Attempted,
		"succeeded":   result.Succeeded,
		"failed":      result.Failed,
		"blocked":     result.Blocked,
		"stop_reason": result.StopReason,
		"continuing":  result.Continuing,
	})
}

func (m *Messenger) handleReview(ctx context.Context, args map[string]interface{}) Result {
	var req struct {
		Target string `json:"target"`
	}
	if err := decode(args, &req); err != nil {
		return fail(err)
	}

	result, err := m.crewOps.Review(ctx, crewpkg.ReviewOptions{Target: req.Target})
	if err != nil {
		return fail(err)
	}

	text := fmt.Sprintf("%s review of %s: %s", result.Kind, result.Target, result.Verdict)
	if result.Summary != "" {
		text += " — " + result.Summary
	}
	for _, issue := range result.Issues {
		text += "\n- " + issue
	}
	return ok(text, map[string]interface{}{
		"target":      result.Target,
		"kind":        result.Kind,
		"verdict":     result.Verdict,
		"issues":      result.Issues,
		"suggestions": result.Suggestions,
	})
}

func (m *Messenger) handleInterview(ctx context.Context, args map[string]interface{}) Result {
	var req struct {
		PRD string `json:"prd"`
	}
	if err := decode(args, &req); err != nil {
		return fail(err)
	}

	result, err := m.crewOps.Interview(ctx, req.PRD)
	if err != nil {
		return fail(err)
	}
	return ok(fmt.Sprintf("Wrote %d interview question(s) to %s.", len(result.Questions), result.Path),
		map[string]interface{}{"questions": result.Questions, "path": result.Path})
}

func (m *Messenger) handleSync(ctx context.Context, args map[string]interface{}) Result {
	id, err := taskID(args)
	if err != nil {
		return fail(err)
	}

	result, err := m.crewOps.Sync(ctx, id)
	if err != nil {
		return fail(err)
	}
	if len(result.Updated) == 0 {
		return ok(fmt.Sprintf("No dependent specs needed updating after %s.", id),
			map[string]interface{}{"task": id})
	}
	return ok(fmt.Sprintf("Amended %s after %s.", strings.Join(result.Updated, ", "), id),
		map[string]interface{}{"task": id, "updated": result.Updated, "skipped": result.Skipped})
}

func (m *Messenger) handleCrew(op string) Result {
	store := m.crewOps.Store()

	switch op {
	case "status":
		plan, err := store.LoadPlan()
		if err != nil {
			return fail(err)
		}
		tasks, err := store.ListTasks()
		if err != nil {
			return fail(err)
		}
		counts := map[crew.TaskStatus]int{}
		for _, task := range tasks {
			counts[task.Status]++
		}
		text := fmt.Sprintf("Plan for %s: %d/%d done (%d in progress, %d blocked, %d todo).",
			plan.PRDPath, counts[crew.StatusDone], len(tasks),
			counts[crew.StatusInProgress], counts[crew.StatusBlocked], counts[crew.StatusTodo])
		details := map[string]interface{}{"plan": plan, "counts": counts}
		if auto := m.crewOps.AutoState(); auto != nil {
			details["autonomous"] = auto
			if auto.Active {
				text += fmt.Sprintf(" Autonomous run active (next wave %d).", auto.NextWave)
			}
		}
		return ok(text, details)

	case "agents":
		var lines []string
		defs := map[string]interface{}{}
		for _, role := range crew.AllRoles {
			def, err := store.ResolveRole(role)
			if err != nil {
				continue
			}
			lines = append(lines, fmt.Sprintf("%s -> %s (%s)", role, def.Agent, def.Description))
			defs[string(role)] = def
		}
		return ok(strings.Join(lines, "\n"), map[string]interface{}{"roles": defs})

	case "install":
		written, err := store.InstallRoles()
		if err != nil {
			return fail(err)
		}
		if len(written) == 0 {
			return ok("Role definitions already installed.", nil)
		}
		return ok(fmt.Sprintf("Installed %d role definition(s).", len(written)),
			map[string]interface{}{"written": written})

	case "uninstall":
		if err := store.UninstallRoles(); err != nil {
			return fail(err)
		}
		return ok("Removed project role definitions.", nil)

	case "validate":
		report, err := store.Validate()
		if err != nil {
			return fail(err)
		}
		text := fmt.Sprintf("%d task(s), %d done.", report.TaskCount, report.CompletedCount)
		if report.CountersFixed {
			text += " Plan counters resynced."
		}
		if len(report.MissingDeps) > 0 {
			text += fmt.Sprintf(" Missing dependencies: %s.", strings.Join(report.MissingDeps, "; "))
		}
		if len(report.Cycle) > 0 {
			text += fmt.Sprintf(" Dependency cycle: %s.", strings.Join(report.Cycle, " -> "))
		}
		return ok(text, map[string]interface{}{"report": report})

	default:
		return fail(meshErrors.New(meshErrors.ErrCodeInvalidInput,
			fmt.Sprintf("unknown crew operation %q", op)))
	}
}
