package errors

import "fmt"

// InvalidName creates an invalid agent name error
func InvalidName(name string) *MeshError {
	return New(ErrCodeInvalidName, fmt.Sprintf("invalid agent name: %q (must match [A-Za-z0-9_][A-Za-z0-9_-]*, max 50 chars)", name)).
		WithDetail("name", name)
}

// NameTaken creates a name conflict error for explicit names
func NameTaken(name string, pid int) *MeshError {
	return New(ErrCodeNameTaken, fmt.Sprintf("agent name '%s' is already registered to a live process", name)).
		WithDetail("name", name).
		WithDetail("pid", pid)
}

// RaceLost creates a registration race error
func RaceLost(name string, winnerPID int) *MeshError {
	return New(ErrCodeRaceLost, fmt.Sprintf("lost registration race for '%s' to PID %d", name, winnerPID)).
		WithDetail("name", name).
		WithDetail("winnerPid", winnerPID)
}

// NotRegistered creates an error for actions invoked before join
func NotRegistered(action string) *MeshError {
	return New(ErrCodeNotRegistered, fmt.Sprintf("action '%s' requires registration; call join first", action)).
		WithDetail("action", action)
}

// AgentNotFound creates a missing recipient error
func AgentNotFound(name string) *MeshError {
	return New(ErrCodeNotFound, fmt.Sprintf("no agent named '%s' is registered", name)).
		WithDetail("name", name)
}

// AgentNotActive creates a dead-recipient error
func AgentNotActive(name string, pid int) *MeshError {
	return New(ErrCodeNotActive, fmt.Sprintf("agent '%s' (PID %d) is no longer running", name, pid)).
		WithDetail("name", name).
		WithDetail("pid", pid)
}

// PathReserved creates a reservation conflict error
func PathReserved(path, holder string) *MeshError {
	return New(ErrCodePathReserved, fmt.Sprintf("%s is reserved by %s", path, holder)).
		WithDetail("path", path).
		WithDetail("holder", holder)
}

// AlreadyHaveClaim creates a single-claim violation error
func AlreadyHaveClaim(spec, taskID string) *MeshError {
	return New(ErrCodeAlreadyHaveClaim, fmt.Sprintf("you already hold a claim on %s in %s; complete or unclaim it first", taskID, spec)).
		WithDetail("spec", spec).
		WithDetail("taskId", taskID)
}

// AlreadyClaimed creates a slot conflict error
func AlreadyClaimed(spec, taskID, holder string) *MeshError {
	return New(ErrCodeAlreadyClaimed, fmt.Sprintf("%s in %s is already claimed by %s", taskID, spec, holder)).
		WithDetail("spec", spec).
		WithDetail("taskId", taskID).
		WithDetail("holder", holder)
}

// AlreadyCompleted creates a terminal-completion error
func AlreadyCompleted(spec, taskID, by string) *MeshError {
	return New(ErrCodeAlreadyCompleted, fmt.Sprintf("%s in %s was already completed by %s", taskID, spec, by)).
		WithDetail("spec", spec).
		WithDetail("taskId", taskID).
		WithDetail("by", by)
}

// PlanExists creates a duplicate plan error
func PlanExists(prdPath string) *MeshError {
	return New(ErrCodePlanExists, fmt.Sprintf("a plan already exists for this project (PRD: %s)", prdPath)).
		WithDetail("prd", prdPath)
}

// NoPlan creates a missing plan error
func NoPlan() *MeshError {
	return New(ErrCodeNoPlan, "no plan exists for this project; run the plan action first")
}

// TaskNotFound creates a missing task error
func TaskNotFound(id string) *MeshError {
	return New(ErrCodeNotFound, fmt.Sprintf("task '%s' not found", id)).
		WithDetail("taskId", id)
}

// InvalidStatus creates a lifecycle transition error
func InvalidStatus(id, from, to string) *MeshError {
	return New(ErrCodeInvalidStatus, fmt.Sprintf("task '%s' cannot go from %s to %s", id, from, to)).
		WithDetail("taskId", id).
		WithDetail("from", from).
		WithDetail("to", to)
}

// Locked creates a held-lock error
func Locked(path string, holderPID int) *MeshError {
	return New(ErrCodeLocked, fmt.Sprintf("lock %s is held by PID %d", path, holderPID)).
		WithDetail("lock", path).
		WithDetail("holderPid", holderPID)
}
