package registry

import "time"

// Reservation is a declared exclusive-write claim over a file or directory
// subtree. Paths are stored canonicalized (absolute, forward slashes).
type Reservation struct {
	Path   string    `json:"path"`
	Dir    bool      `json:"dir,omitempty"`
	Reason string    `json:"reason,omitempty"`
	Since  time.Time `json:"since"`
}

// Activity records the registration owner's most recent local events.
type Activity struct {
	LastActivityAt  time.Time `json:"last_activity_at"`
	CurrentActivity string    `json:"current_activity,omitempty"`
	LastTool        string    `json:"last_tool,omitempty"`
}

// Counters accumulates per-session usage. RecentFiles is bounded to
// MaxRecentFiles entries, newest first.
type Counters struct {
	ToolCalls   int      `json:"tool_calls"`
	Tokens      int      `json:"tokens"`
	RecentFiles []string `json:"recent_files,omitempty"`
}

// MaxRecentFiles bounds Counters.RecentFiles.
const MaxRecentFiles = 20

// Registration is the per-agent file under registry/<name>.json. It is
// authoritative only while its PID is alive; any reader that finds a dead PID
// removes it.
type Registration struct {
	Name          string        `json:"name"`
	PID           int           `json:"pid"`
	SessionID     string        `json:"session_id"`
	Cwd           string        `json:"cwd"`
	Model         string        `json:"model,omitempty"`
	StartedAt     time.Time     `json:"started_at"`
	Branch        string        `json:"branch,omitempty"`
	SpecPath      string        `json:"spec,omitempty"`
	Human         bool          `json:"human,omitempty"`
	Counters      Counters      `json:"counters"`
	Activity      Activity      `json:"activity"`
	StatusMessage string        `json:"status_message,omitempty"`
	Reservations  []Reservation `json:"reservations,omitempty"`
}

// PeerSummary is the small value surfaced in conflict results instead of a
// back-pointer into the registry.
type PeerSummary struct {
	Name   string `json:"name"`
	Cwd    string `json:"cwd"`
	Branch string `json:"branch,omitempty"`
	Model  string `json:"model,omitempty"`
}

// Summary extracts the peer-facing view of a registration.
func (r *Registration) Summary() PeerSummary {
	return PeerSummary{
		Name:   r.Name,
		Cwd:    r.Cwd,
		Branch: r.Branch,
		Model:  r.Model,
	}
}

// RecordFile prepends a modified file to the recent list, deduplicating and
// truncating to the bound.
func (c *Counters) RecordFile(path string) {
	files := make([]string, 0, len(c.RecentFiles)+1)
	files = append(files, path)
	for _, f := range c.RecentFiles {
		if f != path {
			files = append(files, f)
		}
	}
	if len(files) > MaxRecentFiles {
		files = files[:MaxRecentFiles]
	}
	c.RecentFiles = files
}
