package messenger

import (
	"context"
	"fmt"
	"strings"

	meshErrors "github.com/grovetools/mesh/errors"
	"github.com/mitchellh/mapstructure"
)

// actionsWithoutRegistration may run before join. Everything else returns
// NOT_REGISTERED.
var actionsWithoutRegistration = map[string]bool{
	"join":             true,
	"autoRegisterPath": true,
}

// Dispatch routes one tool call. The action string splits at the first `.`:
// the group selects a handler, the remainder (if present) is the sub-op. The
// legacy key-based form (top-level `to`, `claim`, `reserve`, …) is mapped to
// an action first.
func (m *Messenger) Dispatch(ctx context.Context, action string, args map[string]interface{}) Result {
	if args == nil {
		args = map[string]interface{}{}
	}
	if action == "" {
		action = inferLegacyAction(args)
	}
	if action == "" {
		return fail(meshErrors.New(meshErrors.ErrCodeInvalidInput, "missing action"))
	}

	group, op := action, ""
	if idx := strings.Index(action, "."); idx >= 0 {
		group, op = action[:idx], action[idx+1:]
	}

	if !actionsWithoutRegistration[group] && !m.Registered() {
		return fail(meshErrors.NotRegistered(action))
	}

	switch group {
	case "join":
		return m.handleJoin(args)
	case "status":
		return m.handleStatus()
	case "list":
		return m.handleList()
	case "whois":
		return m.handleWhois(args)
	case "feed":
		return m.handleFeed(args)
	case "set_status":
		return m.handleSetStatus(args)
	case "reserve":
		return m.handleReserve(args)
	case "release":
		return m.handleRelease(args)
	case "rename":
		return m.handleRename(args)
	case "send":
		return m.handleSend(args)
	case "broadcast":
		return m.handleBroadcast(args)
	case "swarm":
		return m.handleSwarmList(args)
	case "claim":
		return m.handleClaim(args)
	case "unclaim":
		return m.handleUnclaim(args)
	case "complete":
		return m.handleComplete(args)
	case "spec":
		return m.handleSpec(args)
	case "autoRegisterPath":
		return m.handleAutoRegisterPath(args)
	case "task":
		return m.handleTask(ctx, op, args)
	case "plan":
		return m.handlePlan(ctx, args)
	case "work":
		return m.handleWork(ctx, args)
	case "review":
		return m.handleReview(ctx, args)
	case "interview":
		return m.handleInterview(ctx, args)
	case "sync":
		return m.handleSync(ctx, args)
	case "crew":
		return m.handleCrew(op)
	default:
		return fail(meshErrors.New(meshErrors.ErrCodeInvalidInput,
			fmt.Sprintf("unknown action %q", action)))
	}
}

// inferLegacyAction maps the key-based tool form onto an action string.
func inferLegacyAction(args map[string]interface{}) string {
	for _, probe := range []struct {
		key    string
		action string
	}{
		{"claim", "claim"},
		{"unclaim", "unclaim"},
		{"complete", "complete"},
		{"reserve", "reserve"},
		{"release", "release"},
		{"to", "send"},
		{"broadcast", "broadcast"},
		{"rename", "rename"},
	} {
		if _, found := args[probe.key]; found {
			return probe.action
		}
	}
	return ""
}

// decode maps loosely-typed tool arguments onto a request struct.
func decode(args map[string]interface{}, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "json",
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(args); err != nil {
		return meshErrors.Wrap(err, meshErrors.ErrCodeInvalidInput, "invalid arguments")
	}
	return nil
}

// stringList normalizes a parameter that historically accepted either a
// string or a list of strings into a list.
func stringList(v interface{}) []string {
	switch value := v.(type) {
	case nil:
		return nil
	case string:
		if value == "" {
			return nil
		}
		return []string{value}
	case []string:
		return value
	case []interface{}:
		var list []string
		for _, item := range value {
			if s, isString := item.(string); isString && s != "" {
				list = append(list, s)
			}
		}
		return list
	default:
		return nil
	}
}
