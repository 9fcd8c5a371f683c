// Package git shells out to the git binary for the repository facts the mesh
// records: the current branch, HEAD, diffs, and commit logs. CurrentBranch and
// Head tolerate a missing repository by returning ""; Diff and Log return the
// git error.
package git

import (
	"context"
	"fmt"
	"strings"

	"github.com/grovetools/mesh/command"
)

// Client runs git commands in a fixed working directory.
type Client struct {
	dir  string
	exec command.Executor
}

// NewClient creates a Client for the given directory.
func NewClient(dir string) *Client {
	return &Client{dir: dir, exec: &command.RealExecutor{}}
}

// NewClientWithExecutor creates a Client with a custom Executor for tests.
func NewClientWithExecutor(dir string, exec command.Executor) *Client {
	return &Client{dir: dir, exec: exec}
}

// run executes git with args and returns trimmed stdout.
func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	cmd := c.exec.CommandContext(ctx, "git", args...)
	cmd.Dir = c.dir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// CurrentBranch returns the branch name, or "@<short-sha>" for a detached
// HEAD, or "" when the directory is not a git repository.
func (c *Client) CurrentBranch(ctx context.Context) string {
	branch, err := c.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return ""
	}
	if branch != "HEAD" {
		return branch
	}

	// Detached HEAD: record the short commit instead.
	sha, err := c.run(ctx, "rev-parse", "--short", "HEAD")
	if err != nil {
		return ""
	}
	return "@" + sha
}

// Head returns the full HEAD commit hash, or "" outside a repository.
func (c *Client) Head(ctx context.Context) string {
	sha, err := c.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return ""
	}
	return sha
}

// Diff returns the diff between base and HEAD, truncated to maxBytes with a
// marker when longer.
func (c *Client) Diff(ctx context.Context, base string, maxBytes int) (string, error) {
	out, err := c.run(ctx, "diff", base+"..HEAD")
	if err != nil {
		return "", err
	}
	if maxBytes > 0 && len(out) > maxBytes {
		out = out[:maxBytes] + "\n\n[diff truncated]"
	}
	return out, nil
}

// Log returns the one-line commit log between base and HEAD.
func (c *Client) Log(ctx context.Context, base string) (string, error) {
	return c.run(ctx, "log", "--oneline", base+"..HEAD")
}
