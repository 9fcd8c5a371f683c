package config

import (
	"path/filepath"
	"testing"

	"github.com/grovetools/mesh/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 900, cfg.StuckThresholdSeconds)
	assert.Equal(t, "default", cfg.NameTheme)
	assert.Equal(t, 2, cfg.Crew.Concurrency.Workers)
	assert.Equal(t, 3, cfg.Crew.Concurrency.Scouts)
	assert.Equal(t, 3, cfg.Crew.Work.MaxAttemptsPerTask)
	assert.Equal(t, 10, cfg.Crew.Work.MaxWaves)
	assert.Equal(t, 3, cfg.Crew.Planning.MaxPasses)
	assert.True(t, cfg.ReviewEnabled())
	assert.True(t, cfg.ArtifactsEnabled())
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.json")
	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, 900, cfg.StuckThresholdSeconds)
}

func TestLoadValidConfig(t *testing.T) {
	path := testutil.TempConfig(t, `{
  "autoRegister": true,
  "scopeToFolder": true,
  "stuckThreshold": 300,
  "nameTheme": "space",
  "crew": {
    "concurrency": {"workers": 4},
    "review": {"enabled": false}
  }
}`)

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.True(t, cfg.AutoRegister)
	assert.True(t, cfg.ScopeToFolder)
	assert.Equal(t, 300, cfg.StuckThresholdSeconds)
	assert.Equal(t, "space", cfg.NameTheme)
	assert.Equal(t, 4, cfg.Crew.Concurrency.Workers)
	assert.False(t, cfg.ReviewEnabled())
	// Untouched sections keep their defaults.
	assert.Equal(t, 3, cfg.Crew.Concurrency.Scouts)
}

func TestLoadRejectsSchemaViolations(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown key", `{"autoRegster": true}`},
		{"bad theme", `{"nameTheme": "pirate"}`},
		{"bad type", `{"stuckThreshold": "soon"}`},
		{"not json", `{autoRegister: yes}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := testutil.TempConfig(t, tt.content)
			_, err := LoadFrom(path)
			assert.Error(t, err)
		})
	}
}

func TestShouldAutoRegister(t *testing.T) {
	cfg := Default()
	cfg.AutoRegister = true

	should, err := cfg.ShouldAutoRegister("/anywhere")
	require.NoError(t, err)
	assert.True(t, should, "no path restriction joins everywhere")

	cfg.AutoRegisterPaths = []string{"/work/project"}
	should, err = cfg.ShouldAutoRegister("/work/project")
	require.NoError(t, err)
	assert.True(t, should)

	should, err = cfg.ShouldAutoRegister("/work/project/sub/dir")
	require.NoError(t, err)
	assert.True(t, should, "a directory entry covers its subtree")

	should, err = cfg.ShouldAutoRegister("/elsewhere")
	require.NoError(t, err)
	assert.False(t, should)

	cfg.AutoRegister = false
	should, err = cfg.ShouldAutoRegister("/work/project")
	require.NoError(t, err)
	assert.False(t, should)
}

func TestShouldAutoRegisterGlob(t *testing.T) {
	cfg := Default()
	cfg.AutoRegister = true
	cfg.AutoRegisterPaths = []string{"/work/*/service"}

	should, err := cfg.ShouldAutoRegister("/work/alpha/service")
	require.NoError(t, err)
	assert.True(t, should)

	should, err = cfg.ShouldAutoRegister("/work/alpha/other")
	require.NoError(t, err)
	assert.False(t, should)
}
