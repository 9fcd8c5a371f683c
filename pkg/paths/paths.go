// Package paths resolves the mesh directory layout.
//
// Resolution order for the shared base directory:
// 1. PI_MESSENGER_DIR (explicit override, used by tests and sandboxes)
// 2. ~/.pi/agent/messenger
//
// Per-project crew state lives under <project>/.pi/messenger/crew.
package paths

import (
	"os"
	"path/filepath"
)

// EnvBaseDir overrides the shared mesh base directory.
const EnvBaseDir = "PI_MESSENGER_DIR"

// EnvConfigPath overrides the configuration file location.
const EnvConfigPath = "PI_MESSENGER_CONFIG"

// EnvAgentName forces an explicit agent name (disables collision retry).
const EnvAgentName = "PI_MESSENGER_NAME"

// EnvCrewChild marks a process as a crew child to block recursive fan-out.
const EnvCrewChild = "PI_CREW_CHILD"

// BaseDir returns the shared coordination directory.
func BaseDir() string {
	if dir := os.Getenv(EnvBaseDir); dir != "" {
		return dir
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".pi", "agent", "messenger")
	}
	return filepath.Join(os.TempDir(), "pi-messenger")
}

// RegistryDir returns the directory holding per-agent registration files.
func RegistryDir() string {
	return filepath.Join(BaseDir(), "registry")
}

// RegistrationPath returns the registration file for an agent name.
func RegistrationPath(name string) string {
	return filepath.Join(RegistryDir(), name+".json")
}

// InboxDir returns the inbox directory for a session id.
func InboxDir(sessionID string) string {
	return filepath.Join(BaseDir(), "inbox", sessionID)
}

// DeadLetterDir returns the quarantine directory inside an inbox.
func DeadLetterDir(sessionID string) string {
	return filepath.Join(InboxDir(sessionID), ".deadletter")
}

// ClaimsPath returns the swarm claims file.
func ClaimsPath() string {
	return filepath.Join(BaseDir(), "claims.json")
}

// CompletionsPath returns the swarm completions file.
func CompletionsPath() string {
	return filepath.Join(BaseDir(), "completions.json")
}

// SwarmLockPath returns the swarm mutation lock file.
func SwarmLockPath() string {
	return filepath.Join(BaseDir(), "swarm.lock")
}

// FeedPath returns the activity feed log.
func FeedPath() string {
	return filepath.Join(BaseDir(), "feed.jsonl")
}

// LogsDir returns the directory for component log files.
func LogsDir() string {
	return filepath.Join(BaseDir(), "logs")
}

// ConfigPath returns the user configuration file.
func ConfigPath() string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".pi", "agent", "pi-messenger.json")
	}
	return filepath.Join(BaseDir(), "pi-messenger.json")
}

// CrewDir returns the per-project crew directory for a working directory.
func CrewDir(projectDir string) string {
	return filepath.Join(projectDir, ".pi", "messenger", "crew")
}

// EnsureBase creates the shared directories if they don't exist.
func EnsureBase() error {
	for _, dir := range []string{BaseDir(), RegistryDir(), filepath.Join(BaseDir(), "inbox"), LogsDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
