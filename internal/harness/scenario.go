package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test: a dataset fixture plus an
// ordered list of queries with expectations on their envelopes.
type Scenario struct {
	// Name uniquely identifies this scenario. It doubles as the golden
	// file name, so it must be a valid file name component.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description,omitempty"`

	// Dataset is the path to the dataset fixture to load before the
	// steps run. Relative paths resolve against the scenario file.
	Dataset string `yaml:"dataset"`

	// Steps are executed in order against the same store, so earlier
	// steps can rely on state the dataset established.
	Steps []QueryStep `yaml:"steps"`

	// dir is the directory the scenario was loaded from, used to
	// resolve the dataset path.
	dir string
}

// QueryStep runs one query through the engine.
type QueryStep struct {
	// Query is the AQL text to execute.
	Query string `yaml:"query"`

	// AllowFullScan permits unindexed scans for this step.
	AllowFullScan bool `yaml:"allow_full_scan,omitempty"`

	// Optimize enables cost-based access ordering for hybrid queries.
	Optimize bool `yaml:"optimize,omitempty"`

	// Explain attaches the index consultation order to the response.
	Explain bool `yaml:"explain,omitempty"`

	// Batch enables cursor pagination with the given page size.
	Batch int `yaml:"batch,omitempty"`

	// Expect validates the step's outcome. A nil Expect means the step
	// only has to succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected outcome of a step. Error is
// mutually exclusive with the envelope fields.
type ExpectClause struct {
	// Error is the expected query error code, e.g. "PARSE_ERROR".
	// When set, the step must fail with that code.
	Error string `yaml:"error,omitempty"`

	// Count is the expected row count. Nil skips the check.
	Count *int `yaml:"count,omitempty"`

	// Type is the expected envelope type ("or", "join", "traversal",
	// "vector_geo", "content_geo", "geo"). Empty skips the check, so
	// the plain conjunctive envelope is asserted via Count or Entities.
	Type string `yaml:"type,omitempty"`

	// Entities is the expected result list, compared in full and in
	// order. Nil skips the check.
	Entities []any `yaml:"entities,omitempty"`

	// HasMore asserts the pagination flag. Nil skips the check.
	HasMore *bool `yaml:"has_more,omitempty"`
}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var sc Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("failed to parse scenario %s: %w", path, err)
	}
	sc.dir = filepath.Dir(path)

	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &sc, nil
}

// Validate checks the scenario for structural problems before any
// store work happens.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("scenario has no name")
	}
	if s.Dataset == "" {
		return fmt.Errorf("scenario has no dataset")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("scenario has no steps")
	}
	for i, step := range s.Steps {
		if step.Query == "" {
			return fmt.Errorf("step %d has no query", i)
		}
		if exp := step.Expect; exp != nil && exp.Error != "" {
			if exp.Count != nil || exp.Type != "" || exp.Entities != nil || exp.HasMore != nil {
				return fmt.Errorf("step %d expects both an error and envelope fields", i)
			}
		}
	}
	return nil
}

// datasetPath resolves the dataset fixture relative to the scenario
// file's directory.
func (s *Scenario) datasetPath() string {
	if filepath.IsAbs(s.Dataset) || s.dir == "" {
		return s.Dataset
	}
	return filepath.Join(s.dir, s.Dataset)
}
