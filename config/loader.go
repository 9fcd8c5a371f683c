package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/grovetools/mesh/pkg/paths"
	"github.com/grovetools/mesh/schema"
	"github.com/grovetools/mesh/util/pathutil"
	"github.com/moby/patternmatcher"
)

// Load reads the user configuration, applies defaults, and validates it
// against the embedded schema. A missing file yields the defaults.
func Load() (*Config, error) {
	return LoadFrom(paths.ConfigPath())
}

// LoadFrom reads a configuration file from an explicit path.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Validate the raw document before decoding so schema errors point at the
	// user's file, not at our defaults.
	validator, err := schema.NewValidator()
	if err != nil {
		return nil, fmt.Errorf("load config schema: %w", err)
	}
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := validator.ValidateDocument(raw); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}

	if cfg.StuckThresholdSeconds <= 0 {
		cfg.StuckThresholdSeconds = 900
	}
	return cfg, nil
}

// ShouldAutoRegister reports whether a session starting in cwd should join
// the mesh automatically. With no configured paths, autoRegister alone
// decides; otherwise cwd must match one of the patterns.
func (c *Config) ShouldAutoRegister(cwd string) (bool, error) {
	if !c.AutoRegister {
		return false, nil
	}
	if len(c.AutoRegisterPaths) == 0 {
		return true, nil
	}

	patterns := make([]string, 0, len(c.AutoRegisterPaths))
	for _, p := range c.AutoRegisterPaths {
		expanded, err := pathutil.Expand(p)
		if err != nil {
			return false, fmt.Errorf("expand autoRegisterPath %q: %w", p, err)
		}
		patterns = append(patterns, expanded)
	}

	pm, err := patternmatcher.New(patterns)
	if err != nil {
		return false, fmt.Errorf("compile autoRegisterPaths: %w", err)
	}

	// A pattern naming a directory also covers everything under it.
	matched, err := pm.MatchesOrParentMatches(cwd)
	if err != nil {
		return false, err
	}
	if matched {
		return true, nil
	}
	for _, p := range patterns {
		if cwd == p || strings.HasPrefix(cwd, p+string(os.PathSeparator)) {
			return true, nil
		}
	}
	return false, nil
}
