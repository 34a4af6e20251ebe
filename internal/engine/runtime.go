package engine

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/roach88/tessera/internal/plan"
)

// runtime is the per-request execution context: the engine's
// collaborators plus the overlay of materialized CTE pseudo-collections.
// A CTE name shadows any base table of the same name for the duration of
// the request.
type runtime struct {
	e             *Engine
	overlay       map[string][]map[string]any
	allowFullScan bool
}

func newRuntime(e *Engine, allowFullScan bool) *runtime {
	return &runtime{e: e, overlay: map[string][]map[string]any{}, allowFullScan: allowFullScan}
}

func (r *runtime) isOverlay(table string) bool {
	_, ok := r.overlay[table]
	return ok
}

// addOverlay registers materialized CTE rows, assigning synthetic keys
// to rows that carry none so scans and loads stay addressable.
func (r *runtime) addOverlay(name string, rows []map[string]any) {
	for i, row := range rows {
		if _, ok := row["_key"]; !ok {
			row["_key"] = fmt.Sprintf("%s:%d", name, i)
		}
	}
	r.overlay[name] = rows
}

func (r *runtime) load(ctx context.Context, table, pk string) (map[string]any, error) {
	if rows, ok := r.overlay[table]; ok {
		for _, row := range rows {
			if row["_key"] == pk {
				return row, nil
			}
		}
		return nil, NewExecutionError("key %q not found in %s", pk, table)
	}
	return r.e.rows.Load(ctx, table, pk)
}

// tableDocs returns every row of a table. Overlay tables keep their
// materialization order; base tables come back in ascending key order.
func (r *runtime) tableDocs(ctx context.Context, table string) ([]map[string]any, error) {
	if rows, ok := r.overlay[table]; ok {
		return rows, nil
	}
	keys, err := r.e.rows.ScanTable(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", table, err)
	}
	docs := make([]map[string]any, 0, len(keys))
	for _, pk := range keys {
		doc, err := r.e.rows.Load(ctx, table, pk)
		if err != nil {
			return nil, fmt.Errorf("load %s/%s: %w", table, pk, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// executeConjunctiveKeys computes the key set of a pure-AND plan:
// the sorted intersection of per-predicate index scans, starting from
// the smallest list. Fulltext scores are returned alongside the keys.
//
// Tables without a covering index fall back to a full scan only when the
// request allows it; CTE overlay tables are always scanned since no
// index can exist for them.
func (r *runtime) executeConjunctiveKeys(ctx context.Context, q *plan.Conjunctive) ([]string, map[string]float64, error) {
	if r.isOverlay(q.Table) {
		keys, err := r.fullScanKeys(ctx, q)
		return keys, nil, err
	}

	var lists [][]string
	var fulltextOrder []string
	scores := map[string]float64{}

	if q.Fulltext != nil {
		matches, err := r.e.idx.ScanFulltext(ctx, q.Table, q.Fulltext.Column, q.Fulltext.Query, q.Fulltext.Limit)
		if err != nil {
			return nil, nil, NewExecutionError("fulltext scan on %s.%s: %v", q.Table, q.Fulltext.Column, err)
		}
		keys := make([]string, 0, len(matches))
		for _, m := range matches {
			keys = append(keys, m.PK)
			scores[m.PK] = m.Score
		}
		fulltextOrder = keys
		sorted := append([]string(nil), keys...)
		sort.Strings(sorted)
		lists = append(lists, sorted)
	}

	for _, p := range q.Predicates {
		ok, err := r.e.idx.HasEqualityIndex(ctx, q.Table, p.Column)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			return r.scanFallback(ctx, q, scores, "no equality index on %s.%s", q.Table, p.Column)
		}
		keys, err := r.e.idx.ScanEquality(ctx, q.Table, p.Column, p.Value)
		if err != nil {
			return nil, nil, NewExecutionError("equality scan on %s.%s: %v", q.Table, p.Column, err)
		}
		lists = append(lists, keys)
	}

	for _, p := range q.RangePredicates {
		ok, err := r.e.idx.HasRangeIndex(ctx, q.Table, p.Column)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			return r.scanFallback(ctx, q, scores, "no range index on %s.%s", q.Table, p.Column)
		}
		keys, err := r.e.idx.ScanRange(ctx, q.Table, p.Column, p.Lower, p.Upper, p.IncludeLower, p.IncludeUpper, 0, false)
		if err != nil {
			return nil, nil, NewExecutionError("range scan on %s.%s: %v", q.Table, p.Column, err)
		}
		sort.Strings(keys)
		lists = append(lists, keys)
	}

	if len(lists) == 0 {
		keys, err := r.fullScanKeys(ctx, q)
		return keys, nil, err
	}

	keys := intersectSorted(lists)

	// A fulltext predicate dictates relevance order for the survivors.
	if fulltextOrder != nil {
		member := make(map[string]bool, len(keys))
		for _, k := range keys {
			member[k] = true
		}
		ordered := make([]string, 0, len(keys))
		for _, k := range fulltextOrder {
			if member[k] {
				ordered = append(ordered, k)
			}
		}
		return ordered, scores, nil
	}
	return keys, scores, nil
}

func (r *runtime) scanFallback(ctx context.Context, q *plan.Conjunctive, scores map[string]float64, format string, args ...any) ([]string, map[string]float64, error) {
	if !r.allowFullScan {
		return nil, nil, NewExecutionError(format+" and full scans are disabled", args...)
	}
	if q.Fulltext != nil {
		// Scores come from the index; a scan cannot synthesize them.
		return nil, nil, NewExecutionError("FULLTEXT requires a fulltext index on %s.%s", q.Table, q.Fulltext.Column)
	}
	keys, err := r.fullScanKeys(ctx, q)
	return keys, scores, err
}

// fullScanKeys loads every row and applies the predicates in memory.
func (r *runtime) fullScanKeys(ctx context.Context, q *plan.Conjunctive) ([]string, error) {
	if !r.isOverlay(q.Table) && !r.allowFullScan && (len(q.Predicates) > 0 || len(q.RangePredicates) > 0) {
		return nil, NewExecutionError("full scan on %s is disabled", q.Table)
	}
	docs, err := r.tableDocs(ctx, q.Table)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, doc := range docs {
		if matchesPredicates(doc, q) {
			pk, _ := doc["_key"].(string)
			keys = append(keys, pk)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// allTableKeys returns every key of a table, overlay rows included.
func (r *runtime) allTableKeys(ctx context.Context, table string) ([]string, error) {
	if rows, ok := r.overlay[table]; ok {
		keys := make([]string, 0, len(rows))
		for _, row := range rows {
			pk, _ := row["_key"].(string)
			keys = append(keys, pk)
		}
		return keys, nil
	}
	keys, err := r.e.rows.ScanTable(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", table, err)
	}
	return keys, nil
}

// executeOrKeys computes the deduplicated union of the key sets of each
// disjunct, evaluated independently. A disjunct with zero matches
// contributes nothing; the overall result is sorted for determinism.
func (r *runtime) executeOrKeys(ctx context.Context, q *plan.Disjunctive) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for i := range q.Disjuncts {
		keys, _, err := r.executeConjunctiveKeys(ctx, &q.Disjuncts[i])
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// intersectSorted intersects ascending key lists, iterating the smallest
// list and binary-probing the rest.
func intersectSorted(lists [][]string) []string {
	if len(lists) == 0 {
		return nil
	}
	sort.Slice(lists, func(i, j int) bool { return len(lists[i]) < len(lists[j]) })

	out := make([]string, 0, len(lists[0]))
	for _, k := range lists[0] {
		in := true
		for _, other := range lists[1:] {
			i := sort.SearchStrings(other, k)
			if i >= len(other) || other[i] != k {
				in = false
				break
			}
		}
		if in {
			out = append(out, k)
		}
	}
	return out
}

// matchesPredicates checks equality and range predicates against a
// loaded row, comparing numerically when both sides parse as numbers.
func matchesPredicates(doc map[string]any, q *plan.Conjunctive) bool {
	for _, p := range q.Predicates {
		v := fieldValue(doc, p.Column)
		if v == nil {
			return false
		}
		if compareScalarStrings(plan.LiteralString(v), p.Value) != 0 {
			return false
		}
	}
	for _, p := range q.RangePredicates {
		v := fieldValue(doc, p.Column)
		if v == nil {
			return false
		}
		s := plan.LiteralString(v)
		if p.Lower != nil {
			cmp := compareScalarStrings(s, *p.Lower)
			if cmp < 0 || (cmp == 0 && !p.IncludeLower) {
				return false
			}
		}
		if p.Upper != nil {
			cmp := compareScalarStrings(s, *p.Upper)
			if cmp > 0 || (cmp == 0 && !p.IncludeUpper) {
				return false
			}
		}
	}
	return true
}

// fieldValue resolves a dotted column path inside a document.
func fieldValue(doc map[string]any, column string) any {
	parts := strings.Split(column, ".")
	var cur any = doc
	for _, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[part]
	}
	return cur
}

// compareScalarStrings orders two canonical value strings numerically
// when both parse as numbers, byte-wise otherwise.
func compareScalarStrings(a, b string) int {
	af, aerr := parseNumber(a)
	bf, berr := parseNumber(b)
	if aerr == nil && berr == nil {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	}
	return strings.Compare(a, b)
}

func parseNumber(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
