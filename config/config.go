// Package config loads and validates the mesh user configuration at
// ~/.pi/agent/pi-messenger.json.
package config

import (
	"github.com/grovetools/mesh/pkg/naming"
)

// Config is the full pi-messenger.json document.
type Config struct {
	// AutoRegister joins the mesh at host session start.
	AutoRegister bool `json:"autoRegister,omitempty"`

	// AutoRegisterPaths restricts auto-registration to matching working
	// directories. Entries support `~` expansion and `*` globs.
	AutoRegisterPaths []string `json:"autoRegisterPaths,omitempty"`

	// ScopeToFolder filters peer visibility to same-cwd agents.
	ScopeToFolder bool `json:"scopeToFolder,omitempty"`

	// StuckThresholdSeconds is the elapsed-inactivity threshold for the
	// `stuck` presence state.
	StuckThresholdSeconds int `json:"stuckThreshold,omitempty"`

	// NameTheme selects the name generator word list.
	NameTheme string `json:"nameTheme,omitempty" jsonschema:"enum=default,enum=nature,enum=space,enum=minimal,enum=custom"`

	// NameWords supplies custom word lists for nameTheme=custom.
	NameWords naming.WordLists `json:"nameWords,omitempty"`

	// RegistrationContext is orientation text injected into the join result.
	RegistrationContext string `json:"registrationContext,omitempty"`

	// ReplyHint is appended to every delivered message.
	ReplyHint string `json:"replyHint,omitempty"`

	// SenderDetailsOnFirstContact prepends sender details the first time a
	// given (name, sessionId) pair messages this agent.
	SenderDetailsOnFirstContact bool `json:"senderDetailsOnFirstContact,omitempty"`

	// Crew configures the orchestrator.
	Crew CrewConfig `json:"crew,omitempty"`
}

// CrewConfig controls the orchestrator's fan-out and retry behavior.
type CrewConfig struct {
	Concurrency ConcurrencyConfig `json:"concurrency,omitempty"`
	Work        WorkConfig        `json:"work,omitempty"`
	Review      ReviewConfig      `json:"review,omitempty"`
	Planning    PlanningConfig    `json:"planning,omitempty"`
	Artifacts   ArtifactsConfig   `json:"artifacts,omitempty"`
}

// ConcurrencyConfig caps child-process fan-out per role.
type ConcurrencyConfig struct {
	Scouts  int `json:"scouts,omitempty" jsonschema:"minimum=1,maximum=16"`
	Workers int `json:"workers,omitempty" jsonschema:"minimum=1,maximum=16"`
}

// WorkConfig caps autonomous retries and waves.
type WorkConfig struct {
	MaxAttemptsPerTask int `json:"maxAttemptsPerTask,omitempty" jsonschema:"minimum=1"`
	MaxWaves           int `json:"maxWaves,omitempty" jsonschema:"minimum=1"`
}

// ReviewConfig controls automatic implementation review.
type ReviewConfig struct {
	Enabled       *bool `json:"enabled,omitempty"`
	MaxIterations int   `json:"maxIterations,omitempty" jsonschema:"minimum=1"`
}

// PlanningConfig bounds the planning refinement loop.
type PlanningConfig struct {
	MaxPasses int `json:"maxPasses,omitempty" jsonschema:"minimum=1"`
}

// ArtifactsConfig controls per-run artifact retention.
type ArtifactsConfig struct {
	Enabled     *bool `json:"enabled,omitempty"`
	CleanupDays int   `json:"cleanupDays,omitempty" jsonschema:"minimum=0"`
}

// Default returns a Config with every knob at its documented default.
func Default() *Config {
	enabled := true
	return &Config{
		StuckThresholdSeconds: 900,
		NameTheme:             string(naming.ThemeDefault),
		Crew: CrewConfig{
			Concurrency: ConcurrencyConfig{Scouts: 3, Workers: 2},
			Work:        WorkConfig{MaxAttemptsPerTask: 3, MaxWaves: 10},
			Review:      ReviewConfig{Enabled: &enabled, MaxIterations: 2},
			Planning:    PlanningConfig{MaxPasses: 3},
			Artifacts:   ArtifactsConfig{Enabled: &enabled, CleanupDays: 14},
		},
	}
}

// ReviewEnabled resolves the tri-state review toggle.
func (c *Config) ReviewEnabled() bool {
	return c.Crew.Review.Enabled == nil || *c.Crew.Review.Enabled
}

// ArtifactsEnabled resolves the tri-state artifacts toggle.
func (c *Config) ArtifactsEnabled() bool {
	return c.Crew.Artifacts.Enabled == nil || *c.Crew.Artifacts.Enabled
}
