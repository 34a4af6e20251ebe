package harness

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/tessera/internal/engine"
)

// AssertionError reports one failed step expectation with enough
// context to debug it without rerunning the scenario.
type AssertionError struct {
	Step     int    // zero-based step index
	Query    string // the step's query text
	Field    string // which expectation failed
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "step %d expectation failed: %s\n", e.Step, e.Field)
	fmt.Fprintf(&buf, "  query: %s\n", e.Query)
	fmt.Fprintf(&buf, "  expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  actual: %s", e.Actual)
	return buf.String()
}

// checkExpect validates one step outcome against its expect clause.
func checkExpect(step int, res StepResult, exp *ExpectClause) error {
	fail := func(field, expected, actual string) error {
		return &AssertionError{Step: step, Query: res.Query, Field: field, Expected: expected, Actual: actual}
	}

	if exp.Error != "" {
		if res.Err == nil {
			return fail("error", exp.Error, "step succeeded")
		}
		if code := string(engine.ErrorCode(res.Err)); code != exp.Error {
			return fail("error", exp.Error, fmt.Sprintf("%s (%v)", code, res.Err))
		}
		return nil
	}

	if res.Err != nil {
		return fail("success", "step succeeds", res.Err.Error())
	}
	resp := res.Response

	if exp.Count != nil && resp.Count != *exp.Count {
		return fail("count", fmt.Sprintf("%d", *exp.Count), fmt.Sprintf("%d", resp.Count))
	}
	if exp.Type != "" && resp.Type != exp.Type {
		return fail("type", exp.Type, resp.Type)
	}
	if exp.HasMore != nil && resp.HasMore != *exp.HasMore {
		return fail("has_more", fmt.Sprintf("%t", *exp.HasMore), fmt.Sprintf("%t", resp.HasMore))
	}
	if exp.Entities != nil {
		rows := resp.Entities
		if rows == nil {
			rows = resp.Items
		}
		want, got := jsonText(exp.Entities), jsonText(rows)
		if want != got {
			return fail("entities", want, got)
		}
	}
	return nil
}

// jsonText canonicalizes a value for comparison. Running both sides
// through JSON washes out the int vs float64 mismatch between YAML
// expectations and engine results.
func jsonText(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("<unencodable: %v>", err)
	}
	return string(data)
}
