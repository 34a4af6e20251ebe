package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runScenario(t *testing.T, sc *Scenario) *Result {
	t.Helper()
	runner := &Runner{DBPath: filepath.Join(t.TempDir(), "test.db")}
	result, err := runner.Run(context.Background(), sc)
	require.NoError(t, err)
	return result
}

func usersScenario(steps ...QueryStep) *Scenario {
	return &Scenario{
		Name:    "inline",
		Dataset: filepath.Join("testdata", "datasets", "users.yaml"),
		Steps:   steps,
	}
}

func TestRunRecordsStepOutcomes(t *testing.T) {
	sc := usersScenario(
		QueryStep{Query: `FOR u IN users FILTER u.status == 'active' RETURN u.name`},
		QueryStep{Query: `FOR u IN`},
	)
	result := runScenario(t, sc)

	require.Len(t, result.Steps, 2)
	require.NoError(t, result.Steps[0].Err)
	assert.Equal(t, 2, result.Steps[0].Response.Count)
	assert.Error(t, result.Steps[1].Err, "query failures are recorded, not fatal")
}

func TestVerifyPassesOnMatchingExpectations(t *testing.T) {
	two := 2
	sc := usersScenario(
		QueryStep{
			Query: `FOR u IN users FILTER u.status == 'active' RETURN u.name`,
			Expect: &ExpectClause{
				Count:    &two,
				Entities: []any{"Alice", "Carol"},
			},
		},
		QueryStep{
			Query:  `FOR u IN`,
			Expect: &ExpectClause{Error: "PARSE_ERROR"},
		},
	)
	result := runScenario(t, sc)
	require.NoError(t, result.Verify(sc))
}

func TestVerifyReportsCountMismatch(t *testing.T) {
	ninetyNine := 99
	sc := usersScenario(QueryStep{
		Query:  `FOR u IN users FILTER u.status == 'active' RETURN u.name`,
		Expect: &ExpectClause{Count: &ninetyNine},
	})
	result := runScenario(t, sc)

	err := result.Verify(sc)
	require.Error(t, err)
	var aerr *AssertionError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, 0, aerr.Step)
	assert.Equal(t, "count", aerr.Field)
	assert.Equal(t, "99", aerr.Expected)
	assert.Equal(t, "2", aerr.Actual)
}

func TestVerifyReportsEntityMismatch(t *testing.T) {
	sc := usersScenario(QueryStep{
		Query:  `FOR u IN users FILTER u.status == 'active' RETURN u.name`,
		Expect: &ExpectClause{Entities: []any{"Alice", "Mallory"}},
	})
	result := runScenario(t, sc)

	err := result.Verify(sc)
	require.Error(t, err)
	var aerr *AssertionError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "entities", aerr.Field)
	assert.Contains(t, aerr.Actual, "Carol")
}

func TestVerifyReportsWrongErrorCode(t *testing.T) {
	sc := usersScenario(QueryStep{
		Query:  `FOR u IN`,
		Expect: &ExpectClause{Error: "EXECUTION_ERROR"},
	})
	result := runScenario(t, sc)

	err := result.Verify(sc)
	require.Error(t, err)
	var aerr *AssertionError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "error", aerr.Field)
	assert.Contains(t, aerr.Actual, "PARSE_ERROR")
}

func TestVerifyReportsUnexpectedFailureWithoutExpect(t *testing.T) {
	sc := usersScenario(QueryStep{Query: `FOR u IN`})
	result := runScenario(t, sc)

	err := result.Verify(sc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 0 failed")
}

func TestRunFailsOnMissingDataset(t *testing.T) {
	runner := &Runner{DBPath: filepath.Join(t.TempDir(), "test.db")}
	sc := &Scenario{
		Name:    "missing",
		Dataset: filepath.Join(t.TempDir(), "nope.yaml"),
		Steps:   []QueryStep{{Query: "RETURN 1"}},
	}
	_, err := runner.Run(context.Background(), sc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading dataset")
}
