package crew

import "time"

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in_progress"
	StatusDone       TaskStatus = "done"
	StatusBlocked    TaskStatus = "blocked"
)

// ValidStatus reports whether s is a known task status.
func ValidStatus(s TaskStatus) bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone, StatusBlocked:
		return true
	}
	return false
}

// Plan anchors one PRD for a project. At most one plan exists per project.
type Plan struct {
	PRDPath        string    `json:"prd_path"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	TaskCount      int       `json:"task_count"`
	CompletedCount int       `json:"completed_count"`
}

// Evidence collects the artifacts a worker reports on completion.
type Evidence struct {
	Commits []string `json:"commits,omitempty"`
	Tests   []string `json:"tests,omitempty"`
	PRs     []string `json:"prs,omitempty"`
}

// Review is the stored outcome of the last implementation review, surfaced
// to the next worker attempt.
type Review struct {
	Verdict     string    `json:"verdict"`
	Summary     string    `json:"summary,omitempty"`
	Issues      []string  `json:"issues,omitempty"`
	Suggestions []string  `json:"suggestions,omitempty"`
	ReviewedAt  time.Time `json:"reviewed_at"`
}

// Task is one unit of plan work, persisted as tasks/task-N.json with its spec
// text in tasks/task-N.md.
type Task struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Status        TaskStatus `json:"status"`
	DependsOn     []string   `json:"depends_on,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	BaseCommit    string     `json:"base_commit,omitempty"`
	Assigned      string     `json:"assigned,omitempty"`
	Summary       string     `json:"summary,omitempty"`
	Evidence      *Evidence  `json:"evidence,omitempty"`
	BlockedReason string     `json:"blocked_reason,omitempty"`
	Attempts      int        `json:"attempts"`
	LastReview    *Review    `json:"last_review,omitempty"`
}

// Verdicts produced by reviewer agents.
const (
	VerdictShip         = "SHIP"
	VerdictNeedsWork    = "NEEDS_WORK"
	VerdictMajorRethink = "MAJOR_RETHINK"
)
