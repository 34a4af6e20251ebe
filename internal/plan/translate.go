package plan

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/tessera/internal/aql"
)

// Translation defaults. The fetch limit bounds index scans when no LIMIT
// clause is present; the fulltext limit bounds match lists the same way.
const (
	DefaultFetchLimit    = 1000
	DefaultFulltextLimit = 1000
	DefaultK             = 10
)

// TranslateError reports a semantically invalid but syntactically
// parseable query (wrong SIMILARITY arity, non-array vector literal,
// unsupported filter shapes).
type TranslateError struct {
	Message string
}

func (e *TranslateError) Error() string {
	return "translate error: " + e.Message
}

func errorf(format string, args ...any) error {
	return &TranslateError{Message: fmt.Sprintf(format, args...)}
}

// Translate walks the AST and emits exactly one plan, expanding WITH
// clauses into recursively translated CTE steps first.
//
// Plan selection, first match wins:
//  1. traversal clause        -> Traversal
//  2. more than one FOR       -> Join
//  3. window fn in RETURN     -> Join (materialized evaluation path)
//  4. OR/XOR in any filter    -> Disjunctive (DNF)
//  5. SIMILARITY in SORT/LET  -> VectorGeo
//  6. LET or COLLECT present  -> Join (single-FOR evaluation path)
//  7. otherwise               -> Conjunctive
//
// Translate is pure: the same AST always yields a structurally identical
// Translation, and no state is retained between calls.
func Translate(q *aql.Query) (*Translation, error) {
	if q == nil {
		return nil, errorf("nil query")
	}

	t := &Translation{}
	if q.With != nil {
		if len(q.With.CTEs) == 0 {
			return nil, errorf("WITH clause has no CTE definitions")
		}
		for _, cte := range q.With.CTEs {
			sub, err := Translate(cte.Subquery)
			if err != nil {
				return nil, fmt.Errorf("CTE %q: %w", cte.Name, err)
			}
			t.CTEs = append(t.CTEs, CTEPlan{Name: cte.Name, Result: sub})
		}
	}

	p, err := translateBody(q)
	if err != nil {
		return nil, err
	}
	t.Plan = p
	return t, nil
}

func translateBody(q *aql.Query) (Plan, error) {
	if err := checkWindowPlacement(q); err != nil {
		return nil, err
	}

	if q.Traversal != nil {
		return &Traversal{
			VarVertex:   q.Traversal.VarVertex,
			VarEdge:     q.Traversal.VarEdge,
			VarPath:     q.Traversal.VarPath,
			MinDepth:    q.Traversal.MinDepth,
			MaxDepth:    q.Traversal.MaxDepth,
			Direction:   q.Traversal.Direction,
			StartVertex: q.Traversal.StartVertex,
			GraphName:   q.Traversal.GraphName,
			Filters:     q.Filters,
			Limit:       q.Limit,
			Return:      q.Return,
		}, nil
	}

	if len(q.Fors) == 0 {
		return nil, errorf("query has no FOR clause")
	}

	if len(q.Fors) > 1 {
		return newJoin(q), nil
	}

	// Window functions need the materialized row set, so they always run
	// through the join evaluation path.
	if q.Return != nil && exprHasWindow(q.Return.Expr) {
		if findSimilarity(q) != nil {
			return nil, errorf("window functions cannot be combined with SIMILARITY")
		}
		return newJoin(q), nil
	}

	if filtersContainOrXor(q.Filters) {
		return translateDisjunctive(q)
	}

	if sim := findSimilarity(q); sim != nil {
		return translateVectorGeo(q, sim)
	}

	if len(q.Lets) > 0 || q.Collect != nil {
		return newJoin(q), nil
	}

	return translateConjunctive(q)
}

// checkWindowPlacement rejects window functions outside RETURN. They
// compute over the final row set, so FILTER, LET, SORT, and COLLECT
// cannot observe their results.
func checkWindowPlacement(q *aql.Query) error {
	for _, f := range q.Filters {
		if exprHasWindow(f.Condition) {
			return errorf("window functions are not allowed in FILTER")
		}
	}
	for _, l := range q.Lets {
		if exprHasWindow(l.Expr) {
			return errorf("window functions are not allowed in LET")
		}
	}
	if q.Sort != nil {
		for _, s := range q.Sort.Specs {
			if exprHasWindow(s.Expr) {
				return errorf("window functions are not allowed in SORT")
			}
		}
	}
	if q.Collect != nil {
		for _, g := range q.Collect.Groups {
			if exprHasWindow(g.Expr) {
				return errorf("window functions are not allowed in COLLECT")
			}
		}
		for _, a := range q.Collect.Aggregations {
			if exprHasWindow(a.Arg) {
				return errorf("window functions are not allowed in AGGREGATE")
			}
		}
	}
	if q.Traversal != nil && q.Return != nil && exprHasWindow(q.Return.Expr) {
		return errorf("window functions are not supported in graph traversals")
	}
	return nil
}

// exprHasWindow reports whether a WindowExpr appears anywhere in the tree.
func exprHasWindow(expr aql.Expr) bool {
	switch e := expr.(type) {
	case *aql.WindowExpr:
		return true
	case *aql.BinaryExpr:
		return exprHasWindow(e.Left) || exprHasWindow(e.Right)
	case *aql.UnaryExpr:
		return exprHasWindow(e.Operand)
	case *aql.FieldAccessExpr:
		return exprHasWindow(e.Object)
	case *aql.FunctionCallExpr:
		for _, a := range e.Args {
			if exprHasWindow(a) {
				return true
			}
		}
	case *aql.SimilarityExpr:
		for _, a := range e.Args {
			if exprHasWindow(a) {
				return true
			}
		}
	case *aql.ArrayExpr:
		for _, el := range e.Elements {
			if exprHasWindow(el) {
				return true
			}
		}
	case *aql.ObjectExpr:
		for _, f := range e.Fields {
			if exprHasWindow(f.Value) {
				return true
			}
		}
	}
	return false
}

func newJoin(q *aql.Query) *Join {
	return &Join{
		Fors:    q.Fors,
		Filters: q.Filters,
		Lets:    q.Lets,
		Collect: q.Collect,
		Sort:    q.Sort,
		Limit:   q.Limit,
		Return:  q.Return,
	}
}

// translateConjunctive emits the pure-AND plan for a single-FOR query.
func translateConjunctive(q *aql.Query) (Plan, error) {
	conj := &Conjunctive{
		Table:  q.Fors[0].Collection,
		Var:    q.Fors[0].Variable,
		Return: q.Return,
		Limit:  q.Limit,
	}
	for _, f := range q.Filters {
		if f.Condition == nil {
			return nil, errorf("empty filter condition")
		}
		if err := extractPredicates(f.Condition, conj); err != nil {
			return nil, err
		}
	}
	if err := applyOrdering(q, conj); err != nil {
		return nil, err
	}
	return conj, nil
}

// applyOrdering fills OrderBy or Proximity from SORT and LIMIT.
func applyOrdering(q *aql.Query, conj *Conjunctive) error {
	if q.Sort == nil || len(q.Sort.Specs) == 0 {
		return nil
	}
	spec := q.Sort.Specs[0]

	if call, ok := spec.Expr.(*aql.FunctionCallExpr); ok && strings.EqualFold(call.Name, "PROXIMITY") {
		prox, err := extractProximity(call)
		if err != nil {
			return err
		}
		prox.Desc = !spec.Ascending
		conj.Proximity = prox
		return nil
	}

	column := ExtractColumnName(spec.Expr)
	if column == "" {
		return errorf("SORT expression must be a field access")
	}
	ob := &OrderBy{Column: column, Desc: !spec.Ascending}
	if q.Limit != nil {
		offset := max64(0, q.Limit.Offset)
		count := max64(0, q.Limit.Count)
		ob.Offset = offset
		ob.Limit = offset + count
	} else {
		ob.Limit = DefaultFetchLimit
	}
	conj.OrderBy = ob
	return nil
}

func extractProximity(call *aql.FunctionCallExpr) (*ProximityOrder, error) {
	if len(call.Args) != 2 {
		return nil, errorf("PROXIMITY requires a field and a [lon, lat] point")
	}
	column := ExtractColumnName(call.Args[0])
	if column == "" {
		return nil, errorf("PROXIMITY field argument must be a field access")
	}
	point, err := numberArray(call.Args[1])
	if err != nil || len(point) != 2 {
		return nil, errorf("PROXIMITY point must be a [lon, lat] array literal")
	}
	return &ProximityOrder{Column: column, Lon: point[0], Lat: point[1]}, nil
}

// extractPredicates splits a pure-AND condition tree into equality,
// range, and fulltext predicates on conj.
func extractPredicates(expr aql.Expr, conj *Conjunctive) error {
	switch e := expr.(type) {
	case *aql.BinaryExpr:
		switch e.Op {
		case aql.OpAnd:
			if err := extractPredicates(e.Left, conj); err != nil {
				return err
			}
			return extractPredicates(e.Right, conj)
		case aql.OpOr, aql.OpXor:
			return errorf("OR/XOR reached conjunctive translation; filter tree was not normalized")
		}
		return extractComparison(e, conj)
	case *aql.FunctionCallExpr:
		if strings.EqualFold(e.Name, "FULLTEXT") {
			return extractFulltext(e, conj)
		}
		return errorf("unsupported function %s in filter", e.Name)
	}
	return errorf("unsupported expression in filter (only comparisons and FULLTEXT are indexable)")
}

func extractComparison(e *aql.BinaryExpr, conj *Conjunctive) error {
	column := ExtractColumnName(e.Left)
	if column == "" {
		return errorf("left side of comparison must be a field access (e.g. doc.age)")
	}
	lit, ok := e.Right.(*aql.LiteralExpr)
	if !ok {
		return errorf("right side of comparison must be a literal value")
	}
	value := LiteralString(lit.Value)

	switch e.Op {
	case aql.OpEq:
		conj.Predicates = append(conj.Predicates, EqPredicate{Column: column, Value: value})
	case aql.OpLt:
		conj.RangePredicates = append(conj.RangePredicates, RangePredicate{
			Column: column, Upper: &value, IncludeLower: true,
		})
	case aql.OpLe:
		conj.RangePredicates = append(conj.RangePredicates, RangePredicate{
			Column: column, Upper: &value, IncludeLower: true, IncludeUpper: true,
		})
	case aql.OpGt:
		conj.RangePredicates = append(conj.RangePredicates, RangePredicate{
			Column: column, Lower: &value, IncludeUpper: true,
		})
	case aql.OpGe:
		conj.RangePredicates = append(conj.RangePredicates, RangePredicate{
			Column: column, Lower: &value, IncludeLower: true, IncludeUpper: true,
		})
	case aql.OpNe:
		return errorf("!= is not supported by index predicates")
	default:
		return errorf("unsupported operator %s in filter", e.Op)
	}
	return nil
}

func extractFulltext(call *aql.FunctionCallExpr, conj *Conjunctive) error {
	if conj.Fulltext != nil {
		return errorf("at most one FULLTEXT predicate per conjunction")
	}
	if len(call.Args) < 2 || len(call.Args) > 3 {
		return errorf("FULLTEXT requires a field and a query string")
	}
	column := ExtractColumnName(call.Args[0])
	if column == "" {
		return errorf("FULLTEXT field argument must be a field access")
	}
	qlit, ok := call.Args[1].(*aql.LiteralExpr)
	if !ok {
		return errorf("FULLTEXT query argument must be a string literal")
	}
	query, ok := qlit.Value.(string)
	if !ok {
		return errorf("FULLTEXT query argument must be a string literal")
	}
	ft := &FulltextPredicate{Column: column, Query: query, Limit: DefaultFulltextLimit}
	if len(call.Args) == 3 {
		llit, ok := call.Args[2].(*aql.LiteralExpr)
		if !ok {
			return errorf("FULLTEXT limit argument must be an integer literal")
		}
		n, ok := llit.Value.(int64)
		if !ok {
			return errorf("FULLTEXT limit argument must be an integer literal")
		}
		ft.Limit = int(n)
	}
	conj.Fulltext = ft
	return nil
}

// ExtractColumnName flattens dotted field access into a column path,
// dropping the loop variable at the root: doc.address.city -> "address.city".
// Returns "" when the expression is not a field access chain.
func ExtractColumnName(expr aql.Expr) string {
	fa, ok := expr.(*aql.FieldAccessExpr)
	if !ok {
		return ""
	}
	if inner, ok := fa.Object.(*aql.FieldAccessExpr); ok {
		prefix := ExtractColumnName(inner)
		if prefix == "" {
			return ""
		}
		return prefix + "." + fa.Field
	}
	if _, ok := fa.Object.(*aql.VariableExpr); ok {
		return fa.Field
	}
	return ""
}

// LiteralString renders a literal value in its canonical string form,
// the representation index collaborators match against.
func LiteralString(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case bool:
		if val {
			return "true"
		}
		return "false"
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case string:
		return val
	}
	return fmt.Sprintf("%v", v)
}

func numberArray(expr aql.Expr) ([]float64, error) {
	arr, ok := expr.(*aql.ArrayExpr)
	if !ok {
		return nil, errorf("expected an array literal")
	}
	nums := make([]float64, 0, len(arr.Elements))
	for _, el := range arr.Elements {
		lit, ok := el.(*aql.LiteralExpr)
		if !ok {
			return nil, errorf("expected numeric array elements")
		}
		switch n := lit.Value.(type) {
		case int64:
			nums = append(nums, float64(n))
		case float64:
			nums = append(nums, n)
		default:
			return nil, errorf("expected numeric array elements")
		}
	}
	return nums, nil
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
