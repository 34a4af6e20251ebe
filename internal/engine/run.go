package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/tessera/internal/aql"
	"github.com/roach88/tessera/internal/optimize"
	"github.com/roach88/tessera/internal/plan"
)

// Request is one query execution request.
type Request struct {
	// Query is the AQL source text.
	Query string `json:"query"`

	// AllowFullScan permits scanning tables without a covering index.
	AllowFullScan bool `json:"allow_full_scan,omitempty"`

	// Optimize enables the cost-based access-order decision for hybrid
	// vector/geo queries. Without it vector-first is used unconditionally.
	Optimize bool `json:"optimize,omitempty"`

	// Explain attaches index-consultation order to the response for
	// eligible plans.
	Explain bool `json:"explain,omitempty"`

	// UseCursor enables cursor pagination.
	UseCursor bool `json:"use_cursor,omitempty"`

	// Cursor resumes a previous paginated request.
	Cursor string `json:"cursor,omitempty"`

	// BatchSize overrides the default page size.
	BatchSize int `json:"batch_size,omitempty"`
}

// Response is the result envelope. Entities carries document-shaped
// results, Items carries projected join rows; exactly one is populated.
type Response struct {
	Table      string            `json:"table,omitempty"`
	Type       string            `json:"type,omitempty"`
	Count      int               `json:"count"`
	Entities   []any             `json:"entities,omitempty"`
	Items      []any             `json:"items,omitempty"`
	Plan       *optimize.Explain `json:"plan,omitempty"`
	HasMore    bool              `json:"has_more,omitempty"`
	NextCursor string            `json:"next_cursor,omitempty"`
	BatchSize  int               `json:"batch_size,omitempty"`
}

// Execute parses, translates, and runs one query end to end. All
// failures come back as *QueryError so transports can distinguish
// client mistakes from system faults.
func (e *Engine) Execute(ctx context.Context, req Request) (*Response, error) {
	q, err := aql.Parse(req.Query)
	if err != nil {
		return nil, NewParseError(err)
	}
	tr, err := plan.Translate(q)
	if err != nil {
		return nil, NewTranslateError(err)
	}

	if err := validateScoreUsage(tr); err != nil {
		return nil, err
	}

	r := newRuntime(e, req.AllowFullScan)
	if err := r.materializeCTEs(ctx, tr.CTEs); err != nil {
		return nil, err
	}

	switch p := tr.Plan.(type) {
	case *plan.Conjunctive:
		return r.runConjunctive(ctx, p, req)
	case *plan.Disjunctive:
		rows, err := r.runDisjunctive(ctx, p)
		if err != nil {
			return nil, err
		}
		return &Response{Table: p.Table, Type: "or", Count: len(rows), Entities: rows}, nil
	case *plan.Join:
		rows, err := r.executeJoin(ctx, p)
		if err != nil {
			return nil, err
		}
		return &Response{Type: "join", Count: len(rows), Items: rows}, nil
	case *plan.VectorGeo:
		decision := optimize.Decision{Plan: optimize.VectorFirst}
		if req.Optimize {
			decision, err = r.chooseHybridOrder(ctx, p)
			if err != nil {
				return nil, err
			}
		}
		rows, err := r.executeVectorGeo(ctx, p, decision)
		if err != nil {
			return nil, err
		}
		return &Response{Table: p.Table, Type: "vector_geo", Count: len(rows), Entities: rows}, nil
	case *plan.Traversal:
		rows, err := r.executeTraversal(ctx, p)
		if err != nil {
			return nil, err
		}
		return &Response{Type: "traversal", Count: len(rows), Entities: rows}, nil
	default:
		return nil, NewExecutionError("unknown plan type %T", tr.Plan)
	}
}

// materializeCTEs runs each CTE subquery in declaration order and
// registers its rows as a pseudo-collection. Nested CTEs materialize
// before the subquery that refers to them.
func (r *runtime) materializeCTEs(ctx context.Context, ctes []plan.CTEPlan) error {
	for _, cte := range ctes {
		if err := r.materializeCTEs(ctx, cte.Result.CTEs); err != nil {
			return err
		}
		rows, err := r.planRows(ctx, cte.Result.Plan)
		if err != nil {
			return fmt.Errorf("CTE %q: %w", cte.Name, err)
		}
		docs := make([]map[string]any, 0, len(rows))
		for _, row := range rows {
			if m, ok := row.(map[string]any); ok {
				docs = append(docs, m)
				continue
			}
			// Scalar projections stay addressable as one-field documents.
			docs = append(docs, map[string]any{"value": row})
		}
		r.addOverlay(cte.Name, docs)
	}
	return nil
}

// planRows executes a plan for CTE materialization: full result set, no
// pagination or envelope concerns.
func (r *runtime) planRows(ctx context.Context, p plan.Plan) ([]any, error) {
	switch pl := p.(type) {
	case *plan.Conjunctive:
		rows, _, err := r.conjunctiveRows(ctx, pl)
		if err != nil {
			return nil, err
		}
		rows = sliceRows(rows, conjOffset(pl), conjCount(pl))
		return r.projectConjunctive(rows, pl, false)
	case *plan.Disjunctive:
		return r.runDisjunctive(ctx, pl)
	case *plan.Join:
		return r.executeJoin(ctx, pl)
	case *plan.VectorGeo:
		return r.executeVectorGeo(ctx, pl, optimize.Decision{Plan: optimize.VectorFirst})
	case *plan.Traversal:
		return r.executeTraversal(ctx, pl)
	default:
		return nil, NewExecutionError("unknown plan type %T", p)
	}
}

// conjRow is one conjunctive result before projection.
type conjRow struct {
	pk      string
	doc     map[string]any
	score   float64
	hasLex  bool
	sortVal string
	dist    float64
}

// conjunctiveRows computes, loads, and orders the result rows of a
// pure-AND plan. The returned rows are already truncated to the plan's
// internal fetch bound (OrderBy.Limit) but not yet offset or paginated;
// cursor skipping happens after this truncation, which is the documented
// short-page behavior.
func (r *runtime) conjunctiveRows(ctx context.Context, q *plan.Conjunctive) ([]conjRow, string, error) {
	keys, scores, err := r.executeConjunctiveKeys(ctx, q)
	if err != nil {
		return nil, "", err
	}

	rows := make([]conjRow, 0, len(keys))
	for _, pk := range keys {
		doc, lerr := r.load(ctx, q.Table, pk)
		if lerr != nil {
			return nil, "", lerr
		}
		row := conjRow{pk: pk, doc: doc}
		if scores != nil {
			row.score = scores[pk]
		}
		if q.OrderBy != nil && q.OrderBy.Column != "" {
			row.sortVal = plan.LiteralString(fieldValue(doc, q.OrderBy.Column))
			row.hasLex = true
		}
		if q.Proximity != nil {
			lon, lat, ok := lonLat(fieldValue(doc, q.Proximity.Column))
			if ok {
				row.dist = haversineMeters(q.Proximity.Lon, q.Proximity.Lat, lon, lat)
			}
		}
		rows = append(rows, row)
	}

	envelope := ""
	switch {
	case q.Proximity != nil && q.Fulltext != nil:
		envelope = "content_geo"
	case q.Proximity != nil:
		envelope = "geo"
	}

	switch {
	case q.Proximity != nil:
		desc := q.Proximity.Desc
		sort.SliceStable(rows, func(i, j int) bool {
			if rows[i].dist != rows[j].dist {
				if desc {
					return rows[i].dist > rows[j].dist
				}
				return rows[i].dist < rows[j].dist
			}
			return rows[i].pk < rows[j].pk
		})
	case q.OrderBy != nil && q.OrderBy.Column != "":
		desc := q.OrderBy.Desc
		sort.SliceStable(rows, func(i, j int) bool {
			cmp := compareScalarStrings(rows[i].sortVal, rows[j].sortVal)
			if cmp != 0 {
				if desc {
					return cmp > 0
				}
				return cmp < 0
			}
			// Ties always break by primary key ascending, matching the
			// cursor boundary rule.
			return rows[i].pk < rows[j].pk
		})
	case q.Fulltext != nil:
		// Keys already arrive in relevance order.
	default:
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].pk < rows[j].pk })
	}

	if q.OrderBy != nil && q.OrderBy.Limit > 0 && int64(len(rows)) > q.OrderBy.Limit {
		rows = rows[:q.OrderBy.Limit]
	}
	return rows, envelope, nil
}

func (r *runtime) runConjunctive(ctx context.Context, q *plan.Conjunctive, req Request) (*Response, error) {
	rows, envelope, err := r.conjunctiveRows(ctx, q)
	if err != nil {
		return nil, err
	}

	resp := &Response{Table: q.Table, Type: envelope}

	if req.UseCursor || req.Cursor != "" {
		column, desc := cursorOrdering(q)
		batch := req.BatchSize
		if batch <= 0 {
			batch = r.e.opts.DefaultBatchSize
		}

		if req.Cursor != "" {
			c, derr := DecodeCursor(req.Cursor)
			if derr != nil {
				return nil, derr
			}
			if c.Table != q.Table || c.Column != column || c.Desc != desc {
				return nil, NewCursorError("cursor does not match this query")
			}
			if c.Batch > 0 && req.BatchSize <= 0 {
				batch = c.Batch
			}
			skipped := rows[:0:0]
			for _, row := range rows {
				if c.afterBoundary(cursorSortValue(row, column), row.pk) {
					skipped = append(skipped, row)
				}
			}
			rows = skipped
		} else {
			rows = sliceRows(rows, conjOffset(q), -1)
		}

		hasMore := len(rows) > batch
		if hasMore {
			rows = rows[:batch]
		}
		resp.HasMore = hasMore
		resp.BatchSize = batch
		if hasMore && len(rows) > 0 {
			last := rows[len(rows)-1]
			token, eerr := EncodeCursor(Cursor{
				Table:  q.Table,
				Column: column,
				Desc:   desc,
				Value:  cursorSortValue(last, column),
				PK:     last.pk,
				Batch:  batch,
			})
			if eerr != nil {
				return nil, NewExecutionError("encode cursor: %v", eerr)
			}
			resp.NextCursor = token
		}
	} else {
		rows = sliceRows(rows, conjOffset(q), conjCount(q))
	}

	entities, err := r.projectConjunctive(rows, q, envelope == "content_geo")
	if err != nil {
		return nil, err
	}
	resp.Entities = entities
	resp.Count = len(entities)

	if req.Explain {
		resp.Plan = r.explainConjunctive(ctx, q)
	}
	return resp, nil
}

// projectConjunctive evaluates the RETURN expression per row, binding
// the loop variable and the fulltext score. content_geo rows are
// augmented with their computed geo_distance before projection.
func (r *runtime) projectConjunctive(rows []conjRow, q *plan.Conjunctive, geoDistance bool) ([]any, error) {
	out := make([]any, 0, len(rows))
	seen := map[string]bool{}
	for _, row := range rows {
		doc := row.doc
		if geoDistance {
			augmented := make(map[string]any, len(doc)+1)
			for k, v := range doc {
				augmented[k] = v
			}
			augmented["geo_distance"] = row.dist
			doc = augmented
		}

		var v any = doc
		if q.Return != nil {
			env := map[string]any{scoreBinding: row.score}
			if q.Var != "" {
				env[q.Var] = doc
			}
			pv, err := evalExpr(env, q.Return.Expr, nil)
			if err != nil {
				return nil, err
			}
			v = pv
		}
		if q.Return != nil && q.Return.Distinct {
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

func (r *runtime) runDisjunctive(ctx context.Context, q *plan.Disjunctive) ([]any, error) {
	keys, err := r.executeOrKeys(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(keys))
	seen := map[string]bool{}
	for _, pk := range keys {
		doc, lerr := r.load(ctx, q.Table, pk)
		if lerr != nil {
			return nil, lerr
		}
		var v any = doc
		if q.Return != nil {
			env := map[string]any{}
			if q.Var != "" {
				env[q.Var] = doc
			}
			pv, perr := evalExpr(env, q.Return.Expr, nil)
			if perr != nil {
				return nil, perr
			}
			v = pv
		}
		if q.Return != nil && q.Return.Distinct {
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

// chooseHybridOrder builds the cost-model input from runtime statistics
// and picks the access order.
func (r *runtime) chooseHybridOrder(ctx context.Context, v *plan.VectorGeo) (optimize.Decision, error) {
	keys, err := r.allTableKeys(ctx, v.Table)
	if err != nil {
		return optimize.Decision{}, err
	}

	in := optimize.CostInput{
		HasVectorIndex:      r.e.vec != nil,
		HasSpatialIndex:     v.Spatial != nil,
		SpatialIndexEntries: len(keys),
		K:                   v.K,
		VectorDim:           len(v.QueryVector),
		Overfetch:           r.e.opts.Overfetch,
	}
	if v.Spatial != nil {
		// Fraction of the full lon/lat plane the box covers.
		area := (v.Spatial.East - v.Spatial.West) * (v.Spatial.North - v.Spatial.South)
		in.BBoxRatio = clampRatio(area / (360.0 * 180.0))
	}
	if len(v.ExtraFilters) > 0 {
		survivors, perr := r.prefilterKeys(ctx, v)
		if perr != nil {
			return optimize.Decision{}, perr
		}
		in.PrefilterSize = len(survivors)
	}
	return optimize.ChooseVectorGeoPlan(in), nil
}

func clampRatio(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// explainConjunctive classifies an equality-only indexed plan for the
// explain envelope, ordering predicates by estimated selectivity.
func (r *runtime) explainConjunctive(ctx context.Context, q *plan.Conjunctive) *optimize.Explain {
	if r.isOverlay(q.Table) {
		return nil
	}
	for _, p := range q.Predicates {
		ok, err := r.e.idx.HasEqualityIndex(ctx, q.Table, p.Column)
		if err != nil || !ok {
			return nil
		}
	}
	return optimize.ClassifyConjunctive(q, func(column, value string) int {
		n, err := r.e.idx.EstimateEquality(ctx, q.Table, column, value)
		if err != nil {
			return -1
		}
		return n
	})
}

// validateScoreUsage walks the whole translation, CTE subplans included,
// and rejects FULLTEXT_SCORE() wherever no fulltext score is ever bound.
func validateScoreUsage(tr *plan.Translation) error {
	for _, cte := range tr.CTEs {
		if err := validateScoreUsage(cte.Result); err != nil {
			return err
		}
	}
	return checkScoreUsage(tr.Plan)
}

// checkScoreUsage rejects FULLTEXT_SCORE() on plans whose filter set
// carries no FULLTEXT predicate. Only the conjunctive path binds the
// per-row score, so every other plan kind rejects any use of it.
func checkScoreUsage(p plan.Plan) error {
	switch q := p.(type) {
	case *plan.Conjunctive:
		if q.Fulltext != nil {
			return nil
		}
		return rejectScoreUsage(returnExpr(q.Return))
	case *plan.Disjunctive:
		return rejectScoreUsage(returnExpr(q.Return))
	case *plan.Join:
		exprs := []aql.Expr{returnExpr(q.Return)}
		for _, l := range q.Lets {
			exprs = append(exprs, l.Expr)
		}
		for _, f := range q.Filters {
			exprs = append(exprs, f.Condition)
		}
		if q.Sort != nil {
			for _, s := range q.Sort.Specs {
				exprs = append(exprs, s.Expr)
			}
		}
		if q.Collect != nil {
			for _, g := range q.Collect.Groups {
				exprs = append(exprs, g.Expr)
			}
			for _, a := range q.Collect.Aggregations {
				exprs = append(exprs, a.Arg)
			}
		}
		return rejectScoreUsage(exprs...)
	case *plan.VectorGeo:
		exprs := []aql.Expr{returnExpr(q.Return)}
		exprs = append(exprs, q.ExtraFilters...)
		return rejectScoreUsage(exprs...)
	case *plan.Traversal:
		exprs := []aql.Expr{returnExpr(q.Return)}
		for _, f := range q.Filters {
			exprs = append(exprs, f.Condition)
		}
		return rejectScoreUsage(exprs...)
	}
	return nil
}

func returnExpr(ret *aql.ReturnClause) aql.Expr {
	if ret == nil {
		return nil
	}
	return ret.Expr
}

func rejectScoreUsage(exprs ...aql.Expr) error {
	for _, e := range exprs {
		if e == nil {
			continue
		}
		if exprUsesFunction(e, "FULLTEXT_SCORE") {
			return NewUsageError("FULLTEXT_SCORE() requires a FULLTEXT filter in the same query")
		}
	}
	return nil
}

// exprUsesFunction reports whether the expression tree contains a call
// to the named function.
func exprUsesFunction(expr aql.Expr, name string) bool {
	switch e := expr.(type) {
	case *aql.FunctionCallExpr:
		if strings.EqualFold(e.Name, name) {
			return true
		}
		for _, a := range e.Args {
			if exprUsesFunction(a, name) {
				return true
			}
		}
		return false
	case *aql.BinaryExpr:
		return exprUsesFunction(e.Left, name) || exprUsesFunction(e.Right, name)
	case *aql.UnaryExpr:
		return exprUsesFunction(e.Operand, name)
	case *aql.FieldAccessExpr:
		return exprUsesFunction(e.Object, name)
	case *aql.ArrayExpr:
		for _, el := range e.Elements {
			if exprUsesFunction(el, name) {
				return true
			}
		}
		return false
	case *aql.ObjectExpr:
		for _, f := range e.Fields {
			if exprUsesFunction(f.Value, name) {
				return true
			}
		}
		return false
	case *aql.WindowExpr:
		for _, a := range e.Args {
			if exprUsesFunction(a, name) {
				return true
			}
		}
		for _, pexpr := range e.PartitionBy {
			if exprUsesFunction(pexpr, name) {
				return true
			}
		}
		for _, spec := range e.OrderBy {
			if exprUsesFunction(spec.Expr, name) {
				return true
			}
		}
		return false
	case *aql.SimilarityExpr:
		for _, a := range e.Args {
			if exprUsesFunction(a, name) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Cursor orderings with no backing document column. Extracted column
// paths are dotted identifiers, so the "$" prefix cannot collide.
const (
	cursorOrderProximity = "$proximity"
	cursorOrderScore     = "$score"
)

// cursorOrdering names the effective sort of the emitted stream so the
// cursor boundary resumes in that same order. Proximity and fulltext
// relevance streams are not primary-key ordered, so they carry synthetic
// column names instead of falling back to the pk-only boundary.
func cursorOrdering(q *plan.Conjunctive) (column string, desc bool) {
	switch {
	case q.Proximity != nil:
		return cursorOrderProximity, q.Proximity.Desc
	case q.OrderBy != nil && q.OrderBy.Column != "":
		return q.OrderBy.Column, q.OrderBy.Desc
	case q.Fulltext != nil:
		// Relevance order is score descending, pk ascending.
		return cursorOrderScore, true
	default:
		return "", false
	}
}

// cursorSortValue is the row's value under the cursor ordering.
func cursorSortValue(row conjRow, column string) string {
	switch column {
	case cursorOrderProximity:
		return plan.LiteralString(row.dist)
	case cursorOrderScore:
		return plan.LiteralString(row.score)
	case "":
		return ""
	default:
		return row.sortVal
	}
}

// conjOffset returns the row offset of the plan's LIMIT clause.
func conjOffset(q *plan.Conjunctive) int {
	if q.OrderBy != nil {
		return int(q.OrderBy.Offset)
	}
	if q.Limit != nil {
		return int(q.Limit.Offset)
	}
	return 0
}

// conjCount returns the row count bound, or -1 for unbounded.
func conjCount(q *plan.Conjunctive) int {
	if q.Limit != nil {
		return int(q.Limit.Count)
	}
	return -1
}

// sliceRows applies offset then count. count < 0 means unbounded.
func sliceRows(rows []conjRow, offset, count int) []conjRow {
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
