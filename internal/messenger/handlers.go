package messenger

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	meshErrors "github.com/grovetools/mesh/errors"
	"github.com/grovetools/mesh/pkg/atomicio"
	"github.com/grovetools/mesh/pkg/naming"
	"github.com/grovetools/mesh/pkg/paths"
	"github.com/grovetools/mesh/pkg/presence"
	"github.com/grovetools/mesh/pkg/reserve"
)

func (m *Messenger) handleJoin(args map[string]interface{}) Result {
	var req struct {
		Name  string `json:"name"`
		Spec  string `json:"spec"`
		Human bool   `json:"human"`
	}
	if err := decode(args, &req); err != nil {
		return fail(err)
	}

	reg, err := m.Join(req.Name, req.Spec, req.Human)
	if err != nil {
		return fail(err)
	}

	text := fmt.Sprintf("Joined the mesh as %s (session %s).", reg.Name, reg.SessionID)
	if m.cfg.RegistrationContext != "" {
		text += "\n" + m.cfg.RegistrationContext
	}
	return ok(text, map[string]interface{}{
		"name":    reg.Name,
		"session": reg.SessionID,
		"cwd":     reg.Cwd,
		"branch":  reg.Branch,
	})
}

func (m *Messenger) handleStatus() Result {
	self := m.Self()
	status := m.statusOf(self)

	details := map[string]interface{}{
		"name":         self.Name,
		"status":       string(status),
		"cwd":          self.Cwd,
		"branch":       self.Branch,
		"tool_calls":   self.Counters.ToolCalls,
		"reservations": self.Reservations,
	}

	text := fmt.Sprintf("%s is %s in %s", self.Name, status, self.Cwd)
	if spec, taskID, found, err := m.swarm.ClaimOf(self); err == nil && found {
		details["claim"] = map[string]string{"spec": spec, "task": taskID}
		text += fmt.Sprintf("; claims %s in %s", taskID, spec)
	}
	if self.StatusMessage != "" {
		text += " — " + self.StatusMessage
	}
	return ok(text, details)
}

func (m *Messenger) handleList() Result {
	agents, err := m.peers()
	if err != nil {
		return fail(err)
	}
	if len(agents) == 0 {
		return ok("No other agents on the mesh.", map[string]interface{}{"agents": []interface{}{}})
	}

	var lines []string
	var summaries []map[string]interface{}
	for i := range agents {
		agent := &agents[i]
		status := m.statusOf(agent)
		line := fmt.Sprintf("%s (%s) — %s", agent.Name, status, agent.Cwd)
		if agent.Branch != "" {
			line += " @" + strings.TrimPrefix(agent.Branch, "@")
		}
		if agent.StatusMessage != "" {
			line += " — " + agent.StatusMessage
		}
		lines = append(lines, line)
		summaries = append(summaries, map[string]interface{}{
			"name":   agent.Name,
			"status": string(status),
			"cwd":    agent.Cwd,
			"branch": agent.Branch,
			"model":  agent.Model,
		})
	}
	return ok(strings.Join(lines, "\n"), map[string]interface{}{"agents": summaries})
}

func (m *Messenger) handleWhois(args map[string]interface{}) Result {
	var req struct {
		Name string `json:"name"`
	}
	if err := decode(args, &req); err != nil {
		return fail(err)
	}

	target, err := m.reg.Load(req.Name)
	if err != nil {
		return fail(meshErrors.AgentNotFound(req.Name))
	}

	status := m.statusOf(target)
	text := fmt.Sprintf("%s: %s in %s (model %s, started %s)",
		target.Name, status, target.Cwd, target.Model,
		target.StartedAt.Format("15:04:05"))
	return ok(text, map[string]interface{}{
		"name":         target.Name,
		"status":       string(status),
		"cwd":          target.Cwd,
		"branch":       target.Branch,
		"model":        target.Model,
		"human":        target.Human,
		"spec":         target.SpecPath,
		"reservations": target.Reservations,
		"activity":     target.Activity,
	})
}

func (m *Messenger) handleFeed(args map[string]interface{}) Result {
	var req struct {
		Limit int `json:"limit"`
	}
	if err := decode(args, &req); err != nil {
		return fail(err)
	}
	if req.Limit <= 0 {
		req.Limit = 20
	}

	events, err := m.feed.Recent(req.Limit)
	if err != nil {
		return fail(err)
	}

	var lines []string
	for _, event := range events {
		line, err := presence.FormatLine(event)
		if err != nil {
			continue
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return ok("The feed is empty.", nil)
	}
	return ok(strings.Join(lines, "\n"), map[string]interface{}{"events": events})
}

func (m *Messenger) handleSetStatus(args map[string]interface{}) Result {
	var req struct {
		Message string `json:"message"`
	}
	if err := decode(args, &req); err != nil {
		return fail(err)
	}

	m.mu.Lock()
	self := m.self
	self.StatusMessage = req.Message
	m.mu.Unlock()
	if err := m.reg.Save(self); err != nil {
		return fail(err)
	}
	return ok(fmt.Sprintf("Status set: %s", req.Message), nil)
}

func (m *Messenger) handleReserve(args map[string]interface{}) Result {
	reason, _ := args["reason"].(string)
	requested := stringList(args["paths"])
	if len(requested) == 0 {
		requested = stringList(args["reserve"]) // legacy key form
	}
	if len(requested) == 0 {
		return fail(meshErrors.New(meshErrors.ErrCodeInvalidInput, "reserve requires at least one path"))
	}

	m.mu.Lock()
	self := m.self
	var added []string
	for _, path := range requested {
		res := reserve.Declare(m.cwd, path, reason)
		duplicate := false
		for _, existing := range self.Reservations {
			if existing.Path == res.Path && existing.Dir == res.Dir {
				duplicate = true
				break
			}
		}
		if !duplicate {
			self.Reservations = append(self.Reservations, res)
			added = append(added, res.Path)
		}
	}
	m.mu.Unlock()

	if err := m.reg.Save(self); err != nil {
		return fail(err)
	}
	for _, path := range added {
		if err := m.feed.Emit(presence.Event{Kind: presence.EventReserve, Agent: self.Name, Target: path, Detail: reason}); err != nil {
			m.log.WithError(err).Debug("could not emit reserve event")
		}
	}
	return ok(fmt.Sprintf("Reserved %s.", strings.Join(added, ", ")),
		map[string]interface{}{"reserved": added})
}

func (m *Messenger) handleRelease(args map[string]interface{}) Result {
	releaseAll := false
	if v, found := args["releaseAll"].(bool); found {
		releaseAll = v
	}
	// Legacy form: `release` is a list of paths or the boolean sentinel for
	// release-everything.
	var requested []string
	if v, found := args["release"]; found {
		if all, isBool := v.(bool); isBool {
			releaseAll = releaseAll || all
		} else {
			requested = stringList(v)
		}
	}
	requested = append(requested, stringList(args["paths"])...)

	m.mu.Lock()
	self := m.self
	var released []string
	if releaseAll {
		for _, res := range self.Reservations {
			released = append(released, res.Path)
		}
		self.Reservations = nil
	} else {
		targets := make(map[string]bool, len(requested))
		for _, path := range requested {
			targets[reserve.Declare(m.cwd, path, "").Path] = true
		}
		remaining := self.Reservations[:0]
		for _, res := range self.Reservations {
			if targets[res.Path] {
				released = append(released, res.Path)
			} else {
				remaining = append(remaining, res)
			}
		}
		self.Reservations = remaining
	}
	m.mu.Unlock()

	if err := m.reg.Save(self); err != nil {
		return fail(err)
	}
	for _, path := range released {
		if err := m.feed.Emit(presence.Event{Kind: presence.EventRelease, Agent: self.Name, Target: path}); err != nil {
			m.log.WithError(err).Debug("could not emit release event")
		}
	}
	if len(released) == 0 {
		return ok("Nothing to release.", nil)
	}
	return ok(fmt.Sprintf("Released %s.", strings.Join(released, ", ")),
		map[string]interface{}{"released": released})
}

func (m *Messenger) handleRename(args map[string]interface{}) Result {
	var req struct {
		Name   string `json:"name"`
		Rename string `json:"rename"`
	}
	if err := decode(args, &req); err != nil {
		return fail(err)
	}
	newName := req.Name
	if newName == "" {
		newName = req.Rename
	}
	if err := naming.Validate(newName); err != nil {
		return fail(err)
	}

	m.mu.Lock()
	self := m.self
	m.mu.Unlock()

	renamed, err := m.reg.Rename(self, newName)
	if err != nil {
		return fail(err)
	}

	m.mu.Lock()
	m.self = renamed
	m.mu.Unlock()
	return ok(fmt.Sprintf("Renamed to %s. Pending messages follow the session, not the name.", newName),
		map[string]interface{}{"name": newName})
}

func (m *Messenger) handleSend(args map[string]interface{}) Result {
	message, _ := args["message"].(string)
	replyTo, _ := args["replyTo"].(string)
	recipients := stringList(args["to"])
	if len(recipients) == 0 || message == "" {
		return fail(meshErrors.New(meshErrors.ErrCodeInvalidInput, "send requires `to` and `message`"))
	}

	self := m.Self()
	sent := map[string]interface{}{}
	failed := map[string]interface{}{}
	for _, to := range recipients {
		msg, err := m.sender.Send(self.Name, to, message, replyTo)
		if err != nil {
			// One bad recipient doesn't sink the rest.
			failed[to] = fail(err).Details
			continue
		}
		sent[to] = msg.ID
		if err := m.feed.Emit(presence.Event{Kind: presence.EventMessage, Agent: self.Name, Target: to}); err != nil {
			m.log.WithError(err).Debug("could not emit message event")
		}
	}

	details := map[string]interface{}{"sent": sent}
	if len(failed) > 0 {
		details["failed"] = failed
	}
	if len(sent) == 0 {
		details["error"] = string(meshErrors.ErrCodeNotFound)
		return Result{Text: "No message could be delivered.", Details: details}
	}
	return ok(fmt.Sprintf("Message sent to %d agent(s).", len(sent)), details)
}

func (m *Messenger) handleBroadcast(args map[string]interface{}) Result {
	message, _ := args["message"].(string)
	if message == "" {
		if legacy, isString := args["broadcast"].(string); isString {
			message = legacy
		}
	}
	if message == "" {
		return fail(meshErrors.New(meshErrors.ErrCodeInvalidInput, "broadcast requires `message`"))
	}

	agents, err := m.peers()
	if err != nil {
		return fail(err)
	}
	if len(agents) == 0 {
		return ok("No other agents to broadcast to.", nil)
	}
	names := make([]interface{}, 0, len(agents))
	for i := range agents {
		names = append(names, agents[i].Name)
	}
	return m.handleSend(map[string]interface{}{"to": names, "message": message})
}

func (m *Messenger) handleSpec(args map[string]interface{}) Result {
	var req struct {
		Spec string `json:"spec"`
		Path string `json:"path"`
	}
	if err := decode(args, &req); err != nil {
		return fail(err)
	}
	specPath := req.Spec
	if specPath == "" {
		specPath = req.Path
	}

	m.mu.Lock()
	self := m.self
	self.SpecPath = specPath
	m.mu.Unlock()
	if err := m.reg.Save(self); err != nil {
		return fail(err)
	}
	if specPath == "" {
		return ok("Spec cleared.", nil)
	}
	return ok(fmt.Sprintf("Working spec set to %s.", specPath), map[string]interface{}{"spec": specPath})
}

// handleAutoRegisterPath edits the autoRegisterPaths list in the user config
// file. It runs without registration so setup works before the first join.
func (m *Messenger) handleAutoRegisterPath(args map[string]interface{}) Result {
	var req struct {
		Path   string `json:"path"`
		Remove bool   `json:"remove"`
	}
	if err := decode(args, &req); err != nil {
		return fail(err)
	}
	if req.Path == "" {
		return fail(meshErrors.New(meshErrors.ErrCodeInvalidInput, "autoRegisterPath requires `path`"))
	}

	configPath := paths.ConfigPath()
	doc := map[string]interface{}{}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := json.Unmarshal(data, &doc); err != nil {
			return fail(meshErrors.Wrap(err, meshErrors.ErrCodeInvalidInput,
				fmt.Sprintf("existing config at %s is not valid JSON", configPath)))
		}
	}

	existing := stringList(doc["autoRegisterPaths"])
	var updated []string
	if req.Remove {
		for _, p := range existing {
			if p != req.Path {
				updated = append(updated, p)
			}
		}
	} else {
		updated = existing
		found := false
		for _, p := range existing {
			if p == req.Path {
				found = true
				break
			}
		}
		if !found {
			updated = append(updated, req.Path)
		}
	}
	doc["autoRegisterPaths"] = updated
	doc["autoRegister"] = true

	if err := atomicio.WriteJSON(configPath, doc); err != nil {
		return fail(err)
	}

	verb := "added to"
	if req.Remove {
		verb = "removed from"
	}
	return ok(fmt.Sprintf("%s %s autoRegisterPaths.", req.Path, verb),
		map[string]interface{}{"autoRegisterPaths": updated})
}
