package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadScenario(t *testing.T) {
	path := writeScenario(t, `
name: demo
description: a minimal scenario
dataset: fixtures/data.yaml
steps:
  - query: FOR u IN users RETURN u
    allow_full_scan: true
    expect:
      count: 3
`)
	sc, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "demo", sc.Name)
	require.Len(t, sc.Steps, 1)
	assert.True(t, sc.Steps[0].AllowFullScan)
	require.NotNil(t, sc.Steps[0].Expect.Count)
	assert.Equal(t, 3, *sc.Steps[0].Expect.Count)

	// Relative dataset paths resolve against the scenario file.
	assert.Equal(t, filepath.Join(filepath.Dir(path), "fixtures/data.yaml"), sc.datasetPath())
}

func TestLoadScenarioRejectsUnknownFields(t *testing.T) {
	path := writeScenario(t, `
name: demo
dataset: d.yaml
stepz:
  - query: FOR u IN users RETURN u
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stepz")
}

func TestScenarioValidation(t *testing.T) {
	count := 1
	cases := map[string]struct {
		scenario Scenario
		wantErr  string
	}{
		"missing name": {
			scenario: Scenario{Dataset: "d.yaml", Steps: []QueryStep{{Query: "RETURN 1"}}},
			wantErr:  "no name",
		},
		"missing dataset": {
			scenario: Scenario{Name: "x", Steps: []QueryStep{{Query: "RETURN 1"}}},
			wantErr:  "no dataset",
		},
		"no steps": {
			scenario: Scenario{Name: "x", Dataset: "d.yaml"},
			wantErr:  "no steps",
		},
		"empty query": {
			scenario: Scenario{Name: "x", Dataset: "d.yaml", Steps: []QueryStep{{}}},
			wantErr:  "step 0 has no query",
		},
		"error plus envelope expectations": {
			scenario: Scenario{Name: "x", Dataset: "d.yaml", Steps: []QueryStep{{
				Query:  "FOR u IN",
				Expect: &ExpectClause{Error: "PARSE_ERROR", Count: &count},
			}}},
			wantErr: "both an error and envelope",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := tc.scenario.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
