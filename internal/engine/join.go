package engine

import (
	"context"

	"github.com/roach88/tessera/internal/aql"
	"github.com/roach88/tessera/internal/plan"
)

// executeJoin runs a nested-loop evaluation over the cross product of
// every FOR source, in declaration order. For each combination the LET
// bindings are evaluated in order and bound into scope, then every
// FILTER runs (filters may reference LET names); surviving combinations
// are grouped by COLLECT, annotated with window function results, sorted,
// limited, projected through RETURN, and deduplicated when RETURN
// DISTINCT is set.
func (r *runtime) executeJoin(ctx context.Context, j *plan.Join) ([]any, error) {
	if j.Return == nil {
		return nil, NewTranslateError(errMissingReturn)
	}

	sources := make([][]map[string]any, len(j.Fors))
	for i, f := range j.Fors {
		docs, err := r.tableDocs(ctx, f.Collection)
		if err != nil {
			return nil, err
		}
		sources[i] = docs
	}

	var combos []map[string]any
	var walk func(depth int, env map[string]any) error
	walk = func(depth int, env map[string]any) error {
		if depth == len(j.Fors) {
			scoped := cloneEnv(env)
			for _, let := range j.Lets {
				v, err := evalExpr(scoped, let.Expr, nil)
				if err != nil {
					return err
				}
				scoped[let.Variable] = v
			}
			for _, f := range j.Filters {
				ok, err := evalExpr(scoped, f.Condition, nil)
				if err != nil {
					return err
				}
				if !truthy(ok) {
					return nil
				}
			}
			combos = append(combos, scoped)
			return nil
		}
		for _, doc := range sources[depth] {
			env[j.Fors[depth].Variable] = doc
			if err := walk(depth+1, env); err != nil {
				return err
			}
		}
		delete(env, j.Fors[depth].Variable)
		return nil
	}
	if err := walk(0, map[string]any{}); err != nil {
		return nil, err
	}

	if j.Collect != nil {
		groups, err := groupAndAggregate(combos, j.Collect)
		if err != nil {
			return nil, err
		}
		combos = groups
	}

	if windows := collectWindowExprs(j.Return.Expr, nil); len(windows) > 0 {
		if err := applyWindows(combos, windows); err != nil {
			return nil, err
		}
	}

	if j.Sort != nil {
		if err := sortEnvs(combos, j.Sort); err != nil {
			return nil, err
		}
	}
	combos = applyLimit(combos, j.Limit)

	out := make([]any, 0, len(combos))
	seen := map[string]bool{}
	for _, env := range combos {
		v, err := evalExpr(env, j.Return.Expr, nil)
		if err != nil {
			return nil, err
		}
		if j.Return.Distinct {
			key := canonicalKey(v)
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		out = append(out, v)
	}
	return out, nil
}

var errMissingReturn = &plan.TranslateError{Message: "query has no RETURN clause"}

func cloneEnv(env map[string]any) map[string]any {
	out := make(map[string]any, len(env)+4)
	for k, v := range env {
		out[k] = v
	}
	return out
}

// sortEnvs orders row combinations by the SORT specifications, falling
// back to a stable order for equal keys.
func sortEnvs(envs []map[string]any, s *aql.SortClause) error {
	keys := make([][]any, len(envs))
	for i, env := range envs {
		row := make([]any, len(s.Specs))
		for si, spec := range s.Specs {
			v, err := evalExpr(env, spec.Expr, nil)
			if err != nil {
				return err
			}
			row[si] = v
		}
		keys[i] = row
	}

	less := func(i, j int) bool {
		for si, spec := range s.Specs {
			cmp := compareScalarStrings(plan.LiteralString(keys[i][si]), plan.LiteralString(keys[j][si]))
			if cmp == 0 {
				continue
			}
			if spec.Ascending {
				return cmp < 0
			}
			return cmp > 0
		}
		return false
	}
	stableSortBy(envs, keys, less)
	return nil
}

// stableSortBy sorts envs and their precomputed keys together.
func stableSortBy(envs []map[string]any, keys [][]any, less func(i, j int) bool) {
	idx := make([]int, len(envs))
	for i := range idx {
		idx[i] = i
	}
	stableSortInts(idx, func(a, b int) bool { return less(a, b) })

	outEnvs := make([]map[string]any, len(envs))
	outKeys := make([][]any, len(keys))
	for pos, i := range idx {
		outEnvs[pos] = envs[i]
		outKeys[pos] = keys[i]
	}
	copy(envs, outEnvs)
	copy(keys, outKeys)
}

func stableSortInts(idx []int, less func(a, b int) bool) {
	// Insertion sort keeps the original order of equal elements; the
	// combination counts here are small.
	for i := 1; i < len(idx); i++ {
		for j := i; j > 0 && less(idx[j], idx[j-1]); j-- {
			idx[j], idx[j-1] = idx[j-1], idx[j]
		}
	}
}

func applyLimit[T any](rows []T, limit *aql.LimitClause) []T {
	if limit == nil {
		return rows
	}
	offset := int(limit.Offset)
	count := int(limit.Count)
	if offset < 0 {
		offset = 0
	}
	if offset >= len(rows) {
		return nil
	}
	rows = rows[offset:]
	if count >= 0 && count < len(rows) {
		rows = rows[:count]
	}
	return rows
}
