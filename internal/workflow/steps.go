// Package workflow runs the staged resume analysis: a fixed manifest
// of steps, each backed by a system prompt template, executed in order
// against one model stream per step.
package workflow

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed steps.yaml
var stepsYAML []byte

// Step is one stage of the analysis workflow.
type Step struct {
	Number      int    `yaml:"step"`
	Key         string `yaml:"key"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
}

type manifest struct {
	Steps []Step `yaml:"steps"`
}

// Steps returns the built-in workflow manifest.
func Steps() ([]Step, error) {
	return parseSteps(stepsYAML)
}

// FinalStep returns the number of the last step, which marks a
// conversation as completed once its result is persisted.
func FinalStep(steps []Step) int {
	if len(steps) == 0 {
		return 0
	}
	return steps[len(steps)-1].Number
}

func parseSteps(data []byte) ([]Step, error) {
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing step manifest: %w", err)
	}
	if len(m.Steps) == 0 {
		return nil, fmt.Errorf("step manifest is empty")
	}

	seen := make(map[string]bool, len(m.Steps))
	for i, s := range m.Steps {
		if s.Number != i+1 {
			return nil, fmt.Errorf("step manifest: expected step %d, got %d", i+1, s.Number)
		}
		if s.Key == "" || s.Title == "" {
			return nil, fmt.Errorf("step %d: key and title are required", s.Number)
		}
		if seen[s.Key] {
			return nil, fmt.Errorf("step %d: duplicate key %q", s.Number, s.Key)
		}
		seen[s.Key] = true
	}
	return m.Steps, nil
}
