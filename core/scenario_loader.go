package core

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario bundles a simulation Config with run-shape parameters: how long
// to run and how much background traffic to inject. Scenario files are YAML
// by convention, with JSON accepted as a fallback.
type Scenario struct {
	Name        string `json:"Name" yaml:"name"`
	Description string `json:"Description,omitempty" yaml:"description"`

	// Ticks bounds the run; zero means run until stopped.
	Ticks int `json:"Ticks" yaml:"ticks"`

	// SendRate is the expected number of background packets injected per
	// tick between random active pairs.
	SendRate float64 `json:"SendRate" yaml:"sendRate"`

	Config Config `json:"Config" yaml:"config"`
}

// DefaultScenario is the reference run: the default deployment stepped for
// 200 ticks with one background packet per tick.
func DefaultScenario() Scenario {
	return Scenario{
		Name:     "default",
		Ticks:    200,
		SendRate: 1.0,
		Config:   DefaultConfig(),
	}
}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load scenario: %w", err)
	}
	defer f.Close()
	return ReadScenario(f)
}

// ReadScenario parses a scenario from r. Fields absent from the document
// keep their DefaultScenario values, so a file can override just the knobs
// it cares about.
func ReadScenario(r io.Reader) (*Scenario, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	// JSON is attempted first: every JSON document is also valid YAML, so
	// the YAML decoder would accept JSON input while matching none of its
	// keys. JSON decoding fails fast on real YAML instead.
	sc := DefaultScenario()
	if jsonErr := json.Unmarshal(data, &sc); jsonErr != nil {
		sc = DefaultScenario()
		if yamlErr := yaml.Unmarshal(data, &sc); yamlErr != nil {
			return nil, fmt.Errorf("parse scenario: not valid JSON (%v) nor YAML: %w", jsonErr, yamlErr)
		}
	}

	if sc.Ticks < 0 {
		return nil, fmt.Errorf("scenario ticks %d: %w", sc.Ticks, ErrInvalidParameter)
	}
	if sc.SendRate < 0 {
		return nil, fmt.Errorf("scenario send rate %.3f: %w", sc.SendRate, ErrInvalidParameter)
	}
	if err := sc.Config.Validate(); err != nil {
		return nil, fmt.Errorf("scenario config: %w", err)
	}
	return &sc, nil
}
