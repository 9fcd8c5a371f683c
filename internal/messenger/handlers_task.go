package messenger

import (
	"context"
	"fmt"
	"strings"

	meshErrors "github.com/grovetools/mesh/errors"
	"github.com/grovetools/mesh/pkg/crew"
)

func (m *Messenger) handleTask(ctx context.Context, op string, args map[string]interface{}) Result {
	store := m.crewOps.Store()

	switch op {
	case "create":
		var req struct {
			Title string `json:"title"`
			Spec  string `json:"spec"`
		}
		if err := decode(args, &req); err != nil {
			return fail(err)
		}
		if req.Title == "" {
			return fail(meshErrors.New(meshErrors.ErrCodeInvalidInput, "task.create requires `title`"))
		}
		task, err := store.CreateTask(req.Title, req.Spec, stringList(args["dependsOn"]))
		if err != nil {
			return fail(err)
		}
		return ok(fmt.Sprintf("Created %s: %s", task.ID, task.Title),
			map[string]interface{}{"task": task})

	case "show":
		id, err := taskID(args)
		if err != nil {
			return fail(err)
		}
		task, err := store.LoadTask(id)
		if err != nil {
			return fail(err)
		}
		spec, _ := store.LoadTaskSpec(id)
		text := fmt.Sprintf("%s: %s [%s]", task.ID, task.Title, task.Status)
		if len(task.DependsOn) > 0 {
			text += fmt.Sprintf(" (depends on %s)", strings.Join(task.DependsOn, ", "))
		}
		if spec != "" {
			text += "\n\n" + spec
		}
		return ok(text, map[string]interface{}{"task": task})

	case "list":
		tasks, err := store.ListTasks()
		if err != nil {
			return fail(err)
		}
		if len(tasks) == 0 {
			return ok("No tasks.", map[string]interface{}{"tasks": []interface{}{}})
		}
		var lines []string
		for _, task := range tasks {
			line := fmt.Sprintf("%s [%s] %s", task.ID, task.Status, task.Title)
			if len(task.DependsOn) > 0 {
				line += fmt.Sprintf(" <- %s", strings.Join(task.DependsOn, ", "))
			}
			lines = append(lines, line)
		}
		return ok(strings.Join(lines, "\n"), map[string]interface{}{"tasks": tasks})

	case "start":
		id, err := taskID(args)
		if err != nil {
			return fail(err)
		}
		task, err := store.Start(ctx, id, m.Self().Name)
		if err != nil {
			return fail(err)
		}
		return ok(fmt.Sprintf("Started %s (attempt %d, base %s).", task.ID, task.Attempts, task.BaseCommit),
			map[string]interface{}{"task": task})

	case "done":
		id, err := taskID(args)
		if err != nil {
			return fail(err)
		}
		summary, _ := args["summary"].(string)
		evidence := &crew.Evidence{
			Commits: stringList(args["commits"]),
			Tests:   stringList(args["tests"]),
			PRs:     stringList(args["prs"]),
		}
		if len(evidence.Commits) == 0 && len(evidence.Tests) == 0 && len(evidence.PRs) == 0 {
			evidence = nil
		}
		task, err := store.Complete(id, summary, evidence)
		if err != nil {
			return fail(err)
		}
		return ok(fmt.Sprintf("%s done.", task.ID), map[string]interface{}{"task": task})

	case "block":
		id, err := taskID(args)
		if err != nil {
			return fail(err)
		}
		reason, _ := args["reason"].(string)
		task, err := store.Block(id, reason)
		if err != nil {
			return fail(err)
		}
		return ok(fmt.Sprintf("%s blocked: %s", task.ID, reason), map[string]interface{}{"task": task})

	case "unblock":
		id, err := taskID(args)
		if err != nil {
			return fail(err)
		}
		task, err := store.Unblock(id)
		if err != nil {
			return fail(err)
		}
		return ok(fmt.Sprintf("%s back to todo.", task.ID), map[string]interface{}{"task": task})

	case "ready":
		tasks, err := store.Ready()
		if err != nil {
			return fail(err)
		}
		if len(tasks) == 0 {
			return ok("No tasks are ready.", map[string]interface{}{"tasks": []interface{}{}})
		}
		var lines []string
		for _, task := range tasks {
			lines = append(lines, fmt.Sprintf("%s: %s", task.ID, task.Title))
		}
		return ok(strings.Join(lines, "\n"), map[string]interface{}{"tasks": tasks})

	case "reset":
		id, err := taskID(args)
		if err != nil {
			return fail(err)
		}
		cascade, _ := args["cascade"].(bool)
		tasks, err := store.Reset(id, cascade)
		if err != nil {
			return fail(err)
		}
		var ids []string
		for _, task := range tasks {
			ids = append(ids, task.ID)
		}
		return ok(fmt.Sprintf("Reset %s.", strings.Join(ids, ", ")),
			map[string]interface{}{"reset": ids})

	default:
		return fail(meshErrors.New(meshErrors.ErrCodeInvalidInput,
			fmt.Sprintf("unknown task operation %q", op)))
	}
}

func taskID(args map[string]interface{}) (string, error) {
	for _, key := range []string{"task", "id", "target"} {
		if v, isString := args[key].(string); isString && v != "" {
			return v, nil
		}
	}
	return "", meshErrors.New(meshErrors.ErrCodeInvalidInput, "missing task id")
}
