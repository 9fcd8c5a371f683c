package spawn

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/grovetools/mesh/pkg/atomicio"
)

// artifactPath returns <artifacts>/<runId>/<agent>-<idx>.<ext>.
func (s *Spawner) artifactPath(req Request, ext string) string {
	name := fmt.Sprintf("%s-%d.%s", req.Def.Agent, req.Index, ext)
	return filepath.Join(s.artifactsDir, s.runID, name)
}

// writeArtifacts records the quartet for one run: input prompt, assembled
// output, raw JSONL transcript, and run metadata.
func (s *Spawner) writeArtifacts(req Request, result *Result) error {
	if err := atomicio.WriteFile(s.artifactPath(req, "input.md"), []byte(req.Prompt), 0644); err != nil {
		return err
	}
	if err := atomicio.WriteFile(s.artifactPath(req, "output.md"), []byte(result.Output), 0644); err != nil {
		return err
	}
	transcript := strings.Join(result.transcript, "\n")
	if err := atomicio.WriteFile(s.artifactPath(req, "jsonl"), []byte(transcript), 0644); err != nil {
		return err
	}

	meta := map[string]interface{}{
		"role":      req.Role,
		"agent":     req.Def.Agent,
		"label":     req.Label,
		"index":     req.Index,
		"truncated": result.Truncated,
		"progress":  result.Progress,
	}
	if result.Err != nil {
		meta["error"] = result.Err.Error()
	}
	return atomicio.WriteJSON(s.artifactPath(req, "metadata.json"), meta)
}

// CleanupArtifacts removes run directories older than cleanupDays. A zero or
// negative retention disables cleanup.
func CleanupArtifacts(artifactsDir string, cleanupDays int) error {
	if cleanupDays <= 0 {
		return nil
	}
	cutoff := time.Now().AddDate(0, 0, -cleanupDays)

	entries, err := os.ReadDir(artifactsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.RemoveAll(filepath.Join(artifactsDir, entry.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}
