package harness

import (
	"context"
	"fmt"

	"github.com/roach88/tessera/internal/dataset"
	"github.com/roach88/tessera/internal/engine"
	"github.com/roach88/tessera/internal/store"
)

// Runner executes scenarios against a real store and engine.
type Runner struct {
	// DBPath is where the SQLite database lives for the run. Tests
	// should point this at a temp directory so runs stay isolated.
	DBPath string
}

// Result captures the outcome of every step in a scenario run.
type Result struct {
	Scenario string
	Steps    []StepResult
}

// StepResult is one executed step. Exactly one of Response and Err is
// set.
type StepResult struct {
	Query    string
	Response *engine.Response
	Err      error
}

// Run loads the scenario's dataset into a fresh store and executes
// every step in order. Step-level query failures are recorded in the
// result rather than aborting the run, so expectation checks can
// assert on them. Infrastructure failures abort.
func (r *Runner) Run(ctx context.Context, sc *Scenario) (*Result, error) {
	st, err := store.Open(r.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening scenario store: %w", err)
	}
	defer st.Close()

	ds, err := dataset.Load(sc.datasetPath())
	if err != nil {
		return nil, fmt.Errorf("loading dataset for %s: %w", sc.Name, err)
	}
	if err := ds.Apply(ctx, st); err != nil {
		return nil, fmt.Errorf("applying dataset for %s: %w", sc.Name, err)
	}

	eng := engine.New(st, st, st, st, engine.Options{})
	result := &Result{Scenario: sc.Name, Steps: make([]StepResult, 0, len(sc.Steps))}
	for _, step := range sc.Steps {
		resp, err := eng.Execute(ctx, engine.Request{
			Query:         step.Query,
			AllowFullScan: step.AllowFullScan,
			Optimize:      step.Optimize,
			Explain:       step.Explain,
			UseCursor:     step.Batch > 0,
			BatchSize:     step.Batch,
		})
		result.Steps = append(result.Steps, StepResult{
			Query:    step.Query,
			Response: resp,
			Err:      err,
		})
	}
	return result, nil
}

// Verify checks every step's expectation against the recorded
// outcome. The first failure is returned as an *AssertionError.
func (r *Result) Verify(sc *Scenario) error {
	if len(r.Steps) != len(sc.Steps) {
		return fmt.Errorf("scenario %s ran %d of %d steps", sc.Name, len(r.Steps), len(sc.Steps))
	}
	for i, step := range sc.Steps {
		if step.Expect == nil {
			if err := r.Steps[i].Err; err != nil {
				return fmt.Errorf("step %d failed: %w", i, err)
			}
			continue
		}
		if err := checkExpect(i, r.Steps[i], step.Expect); err != nil {
			return err
		}
	}
	return nil
}
