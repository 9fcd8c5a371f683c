// Package naming validates agent names and generates memorable ones from
// themed word lists. Generated names collide rarely; on collision the
// generator appends a numeric suffix before giving up.
package naming

import (
	"fmt"
	"math/rand"
	"regexp"

	"github.com/grovetools/mesh/errors"
)

// MaxNameLength bounds agent names.
const MaxNameLength = 50

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_-]*$`)

// Theme selects a word list for name generation.
type Theme string

const (
	ThemeDefault Theme = "default"
	ThemeNature  Theme = "nature"
	ThemeSpace   Theme = "space"
	ThemeMinimal Theme = "minimal"
	ThemeCustom  Theme = "custom"
)

// WordLists carries custom adjective/noun pools for ThemeCustom.
type WordLists struct {
	Adjectives []string `json:"adjectives"`
	Nouns      []string `json:"nouns"`
}

var defaultAdjectives = []string{
	"Swift", "Bright", "Calm", "Keen", "Bold", "Quiet", "Lucky", "Clever",
	"Rapid", "Steady", "Merry", "Vivid", "Noble", "Brisk", "Witty", "Sunny",
}

var defaultNouns = []string{
	"Falcon", "Otter", "Badger", "Heron", "Lynx", "Marmot", "Osprey", "Puffin",
	"Raven", "Stoat", "Tern", "Viper", "Wren", "Ibex", "Jackal", "Kestrel",
}

var natureAdjectives = []string{
	"Mossy", "Fern", "Cedar", "Alpine", "Tidal", "Amber", "Misty", "Wild",
}

var natureNouns = []string{
	"Grove", "Brook", "Glade", "Ridge", "Meadow", "Thicket", "Fjord", "Dune",
}

var spaceAdjectives = []string{
	"Lunar", "Solar", "Astro", "Cosmic", "Stellar", "Orbital", "Radiant", "Nova",
}

var spaceNouns = []string{
	"Comet", "Pulsar", "Quasar", "Nebula", "Meteor", "Halley", "Vega", "Rigel",
}

var minimalWords = []string{
	"Ash", "Birch", "Clay", "Dove", "Elm", "Flint", "Gale", "Hale",
	"Iris", "Jade", "Kit", "Lark", "Moss", "Nook", "Onyx", "Pike",
}

// Validate checks an agent name against the allowed pattern and length.
func Validate(name string) error {
	if name == "" || len(name) > MaxNameLength || !namePattern.MatchString(name) {
		return errors.InvalidName(name)
	}
	return nil
}

// Generator produces names from a theme, retrying collisions with a numeric
// suffix (2..99).
type Generator struct {
	theme Theme
	words WordLists
	rng   *rand.Rand
}

// NewGenerator creates a Generator. For ThemeCustom, empty word lists fall
// back to the default theme.
func NewGenerator(theme Theme, words WordLists, seed int64) *Generator {
	return &Generator{
		theme: theme,
		words: words,
		rng:   rand.New(rand.NewSource(seed)),
	}
}

// pools returns the adjective and noun pools for the generator's theme.
// The minimal theme uses single words (nil adjectives).
func (g *Generator) pools() ([]string, []string) {
	switch g.theme {
	case ThemeNature:
		return natureAdjectives, natureNouns
	case ThemeSpace:
		return spaceAdjectives, spaceNouns
	case ThemeMinimal:
		return nil, minimalWords
	case ThemeCustom:
		if len(g.words.Nouns) > 0 {
			return g.words.Adjectives, g.words.Nouns
		}
	}
	return defaultAdjectives, defaultNouns
}

// candidate produces one un-suffixed name.
func (g *Generator) candidate() string {
	adjectives, nouns := g.pools()
	noun := nouns[g.rng.Intn(len(nouns))]
	if len(adjectives) == 0 {
		return noun
	}
	return adjectives[g.rng.Intn(len(adjectives))] + noun
}

// Generate returns a name not rejected by taken. It tries a handful of fresh
// candidates, then appends 2..99 to the last one. Exhaustion is a fatal
// registration failure.
func (g *Generator) Generate(taken func(string) bool) (string, error) {
	var base string
	for i := 0; i < 8; i++ {
		base = g.candidate()
		if !taken(base) {
			return base, nil
		}
	}

	for n := 2; n <= 99; n++ {
		name := fmt.Sprintf("%s%d", base, n)
		if !taken(name) {
			return name, nil
		}
	}

	return "", errors.New(errors.ErrCodeRegistrationFailed,
		"could not generate a free agent name; registry is saturated")
}
