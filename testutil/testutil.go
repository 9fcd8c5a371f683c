package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/grovetools/mesh/pkg/paths"
)

// TempBase points the shared mesh base directory at a fresh temp dir for the
// duration of a test.
func TempBase(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(paths.EnvBaseDir, dir)
	if err := paths.EnsureBase(); err != nil {
		t.Fatalf("Failed to create mesh base dirs: %v", err)
	}
	return dir
}

// TempConfig points the config path at a file inside a temp dir and writes
// content there when non-empty.
func TempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pi-messenger.json")
	t.Setenv(paths.EnvConfigPath, path)
	if content != "" {
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write config: %v", err)
		}
	}
	return path
}

// InitGitRepo initializes a git repository with one commit in the given
// directory. Tests that need git skip when the binary is missing.
func InitGitRepo(t *testing.T, dir string) {
	t.Helper()

	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if err := cmd.Run(); err != nil {
			t.Fatalf("Failed to run git %v: %v", args, err)
		}
	}

	run("init")
	run("config", "user.name", "Test User")
	run("config", "user.email", "test@example.com")

	readme := filepath.Join(dir, "README.md")
	if err := os.WriteFile(readme, []byte("# Test Project\n"), 0600); err != nil {
		t.Fatalf("Failed to create README: %v", err)
	}
	run("add", ".")
	run("commit", "-m", "Initial commit")

	// Ensure we have a main branch (rename from master if needed)
	cmd := exec.Command("git", "branch", "-m", "main")
	cmd.Dir = dir
	_ = cmd.Run()
}
