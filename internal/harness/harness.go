// Package harness runs YAML-scripted scenarios against the engine:
// join players, submit actions, advance ticks, then check assertions
// or compare the final state snapshot against a golden file. Runs are
// fully deterministic: fixed clock, sequential player IDs, scripted
// random draws.
package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tidegate/simroom/internal/def"
)

// Scenario is one scripted run.
type Scenario struct {
	Name string `yaml:"name"`
	// Definition is the game definition path (.json or .cue), relative
	// to the scenario file.
	Definition string `yaml:"definition"`
	// Draws scripts the RNG. Empty means every draw is 0.99, which
	// suppresses events below that probability.
	Draws   []float64   `yaml:"draws"`
	Players []Player    `yaml:"players"`
	Steps   []Step      `yaml:"steps"`
	Asserts []Assertion `yaml:"assertions"`
}

// Player joins before the simulation starts.
type Player struct {
	Name string `yaml:"name"`
	Role string `yaml:"role"`
}

// Step is one scripted operation. Exactly one field is set.
type Step struct {
	// Tick advances the simulation by N forced ticks.
	Tick int `yaml:"tick"`
	// Action submits an action as Player (by name).
	Action string         `yaml:"action"`
	Player string         `yaml:"player"`
	Params map[string]any `yaml:"params"`
	// ExpectError flips the step's success expectation.
	ExpectError bool `yaml:"expect_error"`
	// Pause/Resume/Finish drive the lifecycle.
	Pause  bool   `yaml:"pause"`
	Resume bool   `yaml:"resume"`
	Finish string `yaml:"finish"`
	// AdvanceMillis moves the clock without ticking (cooldown tests).
	AdvanceMillis int `yaml:"advance_millis"`
}

// Assertion is one post-run check. Exactly one field is set.
type Assertion struct {
	VarEquals    *VarAssertion    `yaml:"var_equals"`
	EntityEquals *EntityAssertion `yaml:"entity_equals"`
	Status       string           `yaml:"status"`
	Score        *ScoreAssertion  `yaml:"score"`
	HistoryLen   *int             `yaml:"history_len"`
	LogContains  string           `yaml:"log_contains"`
	TickIs       *int64           `yaml:"tick_is"`
}

// VarAssertion checks a variable's final value.
type VarAssertion struct {
	Name  string  `yaml:"name"`
	Value float64 `yaml:"value"`
}

// EntityAssertion checks an entity property's final value.
type EntityAssertion struct {
	Entity   string `yaml:"entity"`
	Property string `yaml:"property"`
	Value    any    `yaml:"value"`
}

// ScoreAssertion checks a player's final score.
type ScoreAssertion struct {
	Player string  `yaml:"player"`
	Value  float64 `yaml:"value"`
}

// Load reads a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("harness: read scenario: %w", err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("harness: parse scenario %s: %w", path, err)
	}
	if sc.Definition == "" {
		return nil, fmt.Errorf("harness: scenario %s names no definition", path)
	}
	if !filepath.IsAbs(sc.Definition) {
		sc.Definition = filepath.Join(filepath.Dir(path), sc.Definition)
	}
	return &sc, nil
}

// LoadDefinition reads a game definition, compiling CUE sources and
// parsing JSON ones by extension.
func LoadDefinition(path string) (*def.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("harness: read definition: %w", err)
	}
	if strings.HasSuffix(path, ".cue") {
		return def.CompileCUE(data, filepath.Base(path))
	}
	return def.Parse(data)
}
