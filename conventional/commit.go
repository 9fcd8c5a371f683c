// Package conventional parses conventional-commit subjects so the activity
// feed can label commit events by type.
package conventional

import (
	"fmt"
	"regexp"
	"strings"
)

// Commit represents a parsed conventional commit subject.
type Commit struct {
	Type       string
	Scope      string
	Subject    string
	IsBreaking bool
}

// Captures: 1: type, 2: scope (optional), 3: breaking change indicator (!), 4: subject
var commitRegex = regexp.MustCompile(`^(\w+)(?:\(([^)]+)\))?(!?):\s(.*)$`)

// Parse parses a commit subject line into a Commit struct.
func Parse(message string) (*Commit, error) {
	header := strings.SplitN(strings.TrimSpace(message), "\n", 2)[0]

	matches := commitRegex.FindStringSubmatch(header)
	if len(matches) < 5 {
		return nil, fmt.Errorf("invalid commit message format: %s", header)
	}

	return &Commit{
		Type:       strings.ToLower(matches[1]),
		Scope:      matches[2],
		IsBreaking: matches[3] == "!",
		Subject:    matches[4],
	}, nil
}

// Label renders a short feed label: "feat(auth): add login" stays as-is,
// non-conventional subjects pass through untouched.
func Label(message string) string {
	commit, err := Parse(message)
	if err != nil {
		return strings.SplitN(strings.TrimSpace(message), "\n", 2)[0]
	}
	label := commit.Type
	if commit.Scope != "" {
		label += "(" + commit.Scope + ")"
	}
	if commit.IsBreaking {
		label += "!"
	}
	return label + ": " + commit.Subject
}
