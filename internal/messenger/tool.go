package messenger

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
)

// ToolDefinition returns the MCP definition of the single pi_messenger tool.
// The action string selects the operation; remaining arguments are
// action-specific and validated by the router.
func (m *Messenger) ToolDefinition() mcp.Tool {
	return mcp.NewTool("pi_messenger",
		mcp.WithDescription(
			"Coordinate with other coding agents on this host: join the mesh, "+
				"send messages, reserve paths, claim swarm tasks, and drive the "+
				"crew orchestrator (plan/work/review/interview/sync). "+
				"Pass `action` plus action-specific arguments.",
		),
		mcp.WithString("action",
			mcp.Description("Action to perform, e.g. join, list, send, claim, task.create, plan, work."),
		),
		mcp.WithString("to",
			mcp.Description("Message recipient name(s) for send."),
		),
		mcp.WithString("message",
			mcp.Description("Message text for send/broadcast."),
		),
		mcp.WithString("spec",
			mcp.Description("Spec path for swarm actions, or task spec text for task.create."),
		),
		mcp.WithString("task",
			mcp.Description("Task id for swarm and task actions."),
		),
		mcp.WithString("target",
			mcp.Description("Review target: a task id or empty for a plan review."),
		),
		mcp.WithBoolean("autonomous",
			mcp.Description("For work: keep running waves across turns."),
		),
	)
}

// HandleTool adapts the router to the MCP handler signature.
func (m *Messenger) HandleTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	if args == nil {
		args = map[string]interface{}{}
	}
	action, _ := args["action"].(string)
	delete(args, "action")

	result := m.Dispatch(ctx, action, args)
	if result.IsError() {
		return mcp.NewToolResultError(result.Text), nil
	}

	text := result.Text
	if len(result.Details) > 0 {
		if data, err := json.MarshalIndent(result.Details, "", "  "); err == nil {
			text += "\n\n" + string(data)
		}
	}
	return mcp.NewToolResultText(text), nil
}
