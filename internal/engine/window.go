package engine

import (
	"github.com/roach88/tessera/internal/aql"
	"github.com/roach88/tessera/internal/plan"
)

// windowBinding is the reserved environment key carrying per-row window
// function results, keyed by AST node identity.
const windowBinding = "__window_values"

// collectWindowExprs gathers every window node in the expression tree in
// evaluation order.
func collectWindowExprs(expr aql.Expr, out []*aql.WindowExpr) []*aql.WindowExpr {
	switch e := expr.(type) {
	case *aql.WindowExpr:
		out = append(out, e)
	case *aql.BinaryExpr:
		out = collectWindowExprs(e.Left, out)
		out = collectWindowExprs(e.Right, out)
	case *aql.UnaryExpr:
		out = collectWindowExprs(e.Operand, out)
	case *aql.FunctionCallExpr:
		for _, a := range e.Args {
			out = collectWindowExprs(a, out)
		}
	case *aql.ArrayExpr:
		for _, el := range e.Elements {
			out = collectWindowExprs(el, out)
		}
	case *aql.ObjectExpr:
		for _, f := range e.Fields {
			out = collectWindowExprs(f.Value, out)
		}
	}
	return out
}

// applyWindows computes each window function over the materialized rows
// and attaches the per-row results to every environment under
// windowBinding, keyed by node pointer so distinct windows in one RETURN
// stay independent. Storing results in the envs keeps them aligned
// through later SORT and LIMIT reordering.
func applyWindows(envs []map[string]any, windows []*aql.WindowExpr) error {
	for _, env := range envs {
		if _, ok := env[windowBinding]; !ok {
			env[windowBinding] = map[*aql.WindowExpr]any{}
		}
	}
	for _, w := range windows {
		values, err := evaluateWindow(envs, w)
		if err != nil {
			return err
		}
		for i, env := range envs {
			env[windowBinding].(map[*aql.WindowExpr]any)[w] = values[i]
		}
	}
	return nil
}

// evaluateWindow computes one window function across all rows, returning
// one result per input row in input order.
func evaluateWindow(envs []map[string]any, w *aql.WindowExpr) ([]any, error) {
	results := make([]any, len(envs))
	parts, err := partitionRows(envs, w.PartitionBy)
	if err != nil {
		return nil, err
	}
	for _, rows := range parts {
		sorted := append([]int(nil), rows...)
		keys, err := windowOrderKeys(envs, w.OrderBy, sorted)
		if err != nil {
			return nil, err
		}
		if len(w.OrderBy) > 0 {
			sortPartition(sorted, keys, w.OrderBy)
		}
		if err := fillWindow(envs, w, sorted, keys, results); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// partitionRows groups row indices by their PARTITION BY key, partitions
// ordered by first appearance. An empty expression list yields a single
// partition over all rows.
func partitionRows(envs []map[string]any, exprs []aql.Expr) ([][]int, error) {
	if len(exprs) == 0 {
		all := make([]int, len(envs))
		for i := range envs {
			all[i] = i
		}
		return [][]int{all}, nil
	}
	index := map[string]int{}
	var parts [][]int
	for i, env := range envs {
		key := make([]any, len(exprs))
		for ki, ex := range exprs {
			v, err := evalExpr(env, ex, nil)
			if err != nil {
				return nil, err
			}
			key[ki] = v
		}
		k := canonicalKey(key)
		pi, ok := index[k]
		if !ok {
			pi = len(parts)
			index[k] = pi
			parts = append(parts, nil)
		}
		parts[pi] = append(parts[pi], i)
	}
	return parts, nil
}

// windowOrderKeys evaluates the ORDER BY expressions for each partition
// row, rendered canonically for comparison and tie detection.
func windowOrderKeys(envs []map[string]any, specs []aql.SortSpec, rows []int) ([][]string, error) {
	keys := make([][]string, len(rows))
	for pos, i := range rows {
		row := make([]string, len(specs))
		for si, spec := range specs {
			v, err := evalExpr(envs[i], spec.Expr, nil)
			if err != nil {
				return nil, err
			}
			row[si] = plan.LiteralString(v)
		}
		keys[pos] = row
	}
	return keys, nil
}

// sortPartition stably orders a partition's rows and their keys together.
func sortPartition(rows []int, keys [][]string, specs []aql.SortSpec) {
	idx := make([]int, len(rows))
	for i := range idx {
		idx[i] = i
	}
	stableSortInts(idx, func(a, b int) bool {
		for si, spec := range specs {
			cmp := compareScalarStrings(keys[a][si], keys[b][si])
			if cmp == 0 {
				continue
			}
			if spec.Ascending {
				return cmp < 0
			}
			return cmp > 0
		}
		return false
	})
	outRows := make([]int, len(rows))
	outKeys := make([][]string, len(keys))
	for pos, i := range idx {
		outRows[pos] = rows[i]
		outKeys[pos] = keys[i]
	}
	copy(rows, outRows)
	copy(keys, outKeys)
}

// fillWindow writes the function's value for every row of one sorted
// partition into results at the row's original index.
func fillWindow(envs []map[string]any, w *aql.WindowExpr, sorted []int, keys [][]string, results []any) error {
	switch w.Func {
	case "ROW_NUMBER":
		for pos, i := range sorted {
			results[i] = int64(pos + 1)
		}
	case "RANK":
		// Ties share a rank; the next distinct key jumps to its row number.
		rank := int64(1)
		for pos, i := range sorted {
			if pos > 0 && !equalKeys(keys[pos], keys[pos-1]) {
				rank = int64(pos + 1)
			}
			results[i] = rank
		}
	case "DENSE_RANK":
		rank := int64(1)
		for pos, i := range sorted {
			if pos > 0 && !equalKeys(keys[pos], keys[pos-1]) {
				rank++
			}
			results[i] = rank
		}
	case "LAG", "LEAD":
		offset, def, err := lagLeadParams(w)
		if err != nil {
			return err
		}
		step := -offset
		if w.Func == "LEAD" {
			step = offset
		}
		for pos, i := range sorted {
			target := pos + step
			if target < 0 || target >= len(sorted) {
				results[i] = def
				continue
			}
			v, err := evalExpr(envs[sorted[target]], w.Args[0], nil)
			if err != nil {
				return err
			}
			results[i] = v
		}
	case "FIRST_VALUE":
		var first any
		if len(sorted) > 0 {
			v, err := evalExpr(envs[sorted[0]], w.Args[0], nil)
			if err != nil {
				return err
			}
			first = v
		}
		for _, i := range sorted {
			results[i] = first
		}
	case "LAST_VALUE":
		// The default frame ends at the current row, so each row sees its
		// own value.
		for _, i := range sorted {
			v, err := evalExpr(envs[i], w.Args[0], nil)
			if err != nil {
				return err
			}
			results[i] = v
		}
	default:
		return NewExecutionError("unknown window function %s", w.Func)
	}
	return nil
}

func equalKeys(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// lagLeadParams resolves the offset and default arguments. Both are
// evaluated without row context since they describe the frame, not a row.
func lagLeadParams(w *aql.WindowExpr) (int, any, error) {
	offset := 1
	if len(w.Args) >= 2 {
		v, err := evalExpr(map[string]any{}, w.Args[1], nil)
		if err != nil {
			return 0, nil, err
		}
		f, ok := asFloat(v)
		if !ok || f < 0 {
			return 0, nil, NewUsageError("%s offset must be a non-negative integer", w.Func)
		}
		offset = int(f)
	}
	var def any
	if len(w.Args) == 3 {
		v, err := evalExpr(map[string]any{}, w.Args[2], nil)
		if err != nil {
			return 0, nil, err
		}
		def = v
	}
	return offset, def, nil
}
