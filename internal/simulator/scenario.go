// Package simulator is a scripted stand-in for the promotion chat backend. It
// serves the polling REST protocol, the websocket push protocol and the
// broker push protocol from the same YAML scenario.
package simulator

import (
	"embed"
	"fmt"
	"os"
	"strings"
	"time"

	"promochat/pkg/chat/state"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Stage outcomes a scenario can script.
const (
	OutcomeFound    = "found"
	OutcomeFollowUp = "follow_up"
	OutcomeError    = "error"
	// OutcomeSilent never answers; push clients only see the stage stall.
	OutcomeSilent = "silent"
)

//go:embed scenarios/*.yaml
var builtin embed.FS

type StageScript struct {
	Outcome string `yaml:"outcome" validate:"omitempty,oneof=found follow_up error silent"`
	// Running is the number of status polls answered with run_in_progress
	// before the outcome is reported.
	Running int `yaml:"running" validate:"gte=0"`
	// Delay is how long push playback waits before reporting the stage.
	Delay   time.Duration    `yaml:"delay" validate:"gte=0"`
	Context map[string]any   `yaml:"context"`
	Results []map[string]any `yaml:"results"`
	// Text is the follow-up question, the error message or the final answer.
	Text string `yaml:"text"`
	// Stream splits the stage output into delta fragments on push transports.
	Stream []string `yaml:"stream"`
	// Notice is a system chat line pushed after the stage completes.
	Notice string `yaml:"notice"`
}

type Scenario struct {
	Name   string                 `yaml:"name" validate:"required"`
	Stages map[string]StageScript `yaml:"stages" validate:"dive"`
}

// Script returns the script for a stage. Unscripted stages succeed at once.
func (s *Scenario) Script(stage state.Stage) StageScript {
	script := s.Stages[string(stage)]
	if script.Outcome == "" {
		script.Outcome = OutcomeFound
	}
	return script
}

func (s *Scenario) Validate() error {
	if err := validator.New().Struct(s); err != nil {
		return fmt.Errorf("invalid scenario %q: %w", s.Name, err)
	}
	for name := range s.Stages {
		if _, err := state.ParseStage(name); err != nil {
			return fmt.Errorf("invalid scenario %q: %w", s.Name, err)
		}
	}
	return nil
}

// ParseScenario decodes and validates a YAML scenario.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// LoadScenario accepts a built-in scenario name or a path to a YAML file.
// An empty ref selects the default scenario.
func LoadScenario(ref string) (*Scenario, error) {
	if ref == "" {
		ref = "default"
	}
	data, err := builtin.ReadFile("scenarios/" + ref + ".yaml")
	if err != nil {
		if data, err = os.ReadFile(ref); err != nil {
			return nil, fmt.Errorf("reading scenario %q: %w", ref, err)
		}
	}
	return ParseScenario(data)
}

// BuiltinScenarios lists the names accepted by LoadScenario.
func BuiltinScenarios() []string {
	entries, _ := builtin.ReadDir("scenarios")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	return names
}
