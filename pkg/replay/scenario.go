// Package replay implements executors for deterministic offline runs:
// Executor answers requests from a recorded scenario, Recorder captures
// live exchanges into one.
package replay

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/arcanine/pkg/model"
)

// Scenario is a file of recorded HTTP exchanges.
type Scenario struct {
	Exchanges []Exchange `yaml:"exchanges"`
}

// Exchange is one recorded request and the response it got.
type Exchange struct {
	Method     string            `yaml:"method,omitempty"`
	URL        string            `yaml:"url"`
	Status     int               `yaml:"status"`
	StatusText string            `yaml:"status_text,omitempty"`
	Headers    map[string]string `yaml:"headers,omitempty"`
	Body       string            `yaml:"body,omitempty"`
	// Repeat lets the exchange answer any number of matching requests.
	Repeat bool `yaml:"repeat,omitempty"`
}

func (e *Exchange) method() string {
	if e.Method == "" {
		return string(model.MethodGet)
	}
	return strings.ToUpper(e.Method)
}

// LoadScenario reads and parses a scenario YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML bytes.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if len(s.Exchanges) == 0 {
		return nil, fmt.Errorf("scenario must have at least one exchange")
	}
	for i, e := range s.Exchanges {
		if e.URL == "" {
			return nil, fmt.Errorf("exchanges[%d]: url is required", i)
		}
		if e.Status < 100 || e.Status > 599 {
			return nil, fmt.Errorf("exchanges[%d]: status %d out of range", i, e.Status)
		}
	}
	return &s, nil
}

// Save writes s to path as YAML.
func (s *Scenario) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal scenario: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write scenario file: %w", err)
	}
	return nil
}
