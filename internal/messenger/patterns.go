package messenger

import (
	"regexp"
	"strings"

	"github.com/grovetools/mesh/conventional"
)

var (
	commitPattern = regexp.MustCompile(`(?i)\bgit\s+commit\b`)
	testPattern   = regexp.MustCompile(`(?i)\b(go\s+test|npm\s+(run\s+)?test|pnpm\s+test|yarn\s+test|pytest|cargo\s+test|make\s+test)\b`)
	commitMsgFlag = regexp.MustCompile(`-m\s+["']([^"']+)["']`)
)

// commitSubject extracts the -m message from a git commit command and labels
// it conventionally when it parses, falling back to the command itself.
func commitSubject(cmd string) string {
	if match := commitMsgFlag.FindStringSubmatch(cmd); match != nil {
		return conventional.Label(match[1])
	}
	return strings.TrimSpace(cmd)
}
