package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/tessera/internal/engine"
)

// Snapshot is the golden-file representation of a scenario run. It
// captures every step's envelope (or failure) so any drift in result
// shape, ordering, or error taxonomy shows up as a golden diff.
type Snapshot struct {
	Scenario string         `json:"scenario"`
	Steps    []StepSnapshot `json:"steps"`
}

// StepSnapshot records one step. Exactly one of Response and Error is
// set.
type StepSnapshot struct {
	Query    string           `json:"query"`
	Response *engine.Response `json:"response,omitempty"`
	Error    *FailureSnapshot `json:"error,omitempty"`
}

// FailureSnapshot records a query failure by code and fault
// attribution. Messages are left out so golden files do not churn on
// wording changes.
type FailureSnapshot struct {
	Code   string `json:"code"`
	Client bool   `json:"client"`
}

// snapshot flattens a run result into its golden representation.
func (r *Result) snapshot() *Snapshot {
	snap := &Snapshot{Scenario: r.Scenario, Steps: make([]StepSnapshot, 0, len(r.Steps))}
	for _, step := range r.Steps {
		ss := StepSnapshot{Query: step.Query}
		if step.Err != nil {
			ss.Error = &FailureSnapshot{
				Code:   string(engine.ErrorCode(step.Err)),
				Client: engine.IsClientError(step.Err),
			}
		} else {
			ss.Response = step.Response
		}
		snap.Steps = append(snap.Steps, ss)
	}
	return snap
}

// RunWithGolden loads a scenario, runs it against a fresh store in the
// test's temp directory, verifies its expectations, and compares the
// run snapshot against testdata/golden/{name}.golden.
//
// Regenerate golden files with:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenarioPath string) {
	t.Helper()

	sc, err := LoadScenario(scenarioPath)
	if err != nil {
		t.Fatalf("loading scenario: %v", err)
	}

	runner := &Runner{DBPath: filepath.Join(t.TempDir(), "scenario.db")}
	result, err := runner.Run(context.Background(), sc)
	if err != nil {
		t.Fatalf("running scenario %s: %v", sc.Name, err)
	}
	if err := result.Verify(sc); err != nil {
		t.Fatalf("scenario %s: %v", sc.Name, err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result.snapshot()); err != nil {
		t.Fatalf("encoding snapshot: %v", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, sc.Name, buf.Bytes())
}
