package crew

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/grovetools/mesh/errors"
	"github.com/grovetools/mesh/util/pathutil"
)

// maxPRDBytes caps how much of a PRD is read into prompts.
const maxPRDBytes = 100 * 1024

// prdCandidates is the fixed-order discovery list, checked at the project
// root and under docs/.
var prdCandidates = []string{
	"PRD.md", "SPEC.md", "REQUIREMENTS.md", "DESIGN.md", "PLAN.md",
}

// discoverPRD resolves the PRD to plan against: the explicit path when given,
// else the first candidate that exists. Candidates are deduplicated by
// canonical path so case-insensitive filesystems don't yield the same file
// twice.
func (o *Orchestrator) discoverPRD(explicit string) (string, error) {
	if explicit != "" {
		path := explicit
		if !filepath.IsAbs(path) {
			path = filepath.Join(o.store.ProjectDir(), path)
		}
		if _, err := os.Stat(path); err != nil {
			return "", errors.New(errors.ErrCodeNoPRD,
				fmt.Sprintf("PRD not found at %s", explicit)).WithDetail("path", explicit)
		}
		return path, nil
	}

	seen := make(map[string]bool)
	for _, dir := range []string{o.store.ProjectDir(), filepath.Join(o.store.ProjectDir(), "docs")} {
		for _, name := range prdCandidates {
			path := filepath.Join(dir, name)
			canonical, err := pathutil.NormalizeForLookup(path)
			if err != nil {
				canonical = path
			}
			if seen[canonical] {
				continue
			}
			seen[canonical] = true

			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path, nil
			}
		}
	}

	return "", errors.New(errors.ErrCodeNoPRD,
		"no PRD found; looked for PRD.md, SPEC.md, REQUIREMENTS.md, DESIGN.md, PLAN.md at the root and under docs/")
}

// readPRD reads the PRD up to the byte cap, appending a truncation marker
// when the file is larger.
func readPRD(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read PRD %s: %w", path, err)
	}
	if len(data) > maxPRDBytes {
		return string(data[:maxPRDBytes]) + "\n\n[PRD truncated]", nil
	}
	return string(data), nil
}
