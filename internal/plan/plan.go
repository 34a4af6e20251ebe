package plan

import "github.com/roach88/tessera/internal/aql"

// Plan represents a translated execution plan.
//
// This is a sealed interface - only types in this package implement it.
// The marker method pattern prevents external implementations and lets
// the executor dispatch with an exhaustive type switch. Exactly one plan
// type is produced per successful translation; there is no result struct
// with multiple optional plan members.
//
// Plan types:
//   - Conjunctive: pure-AND filter set over one collection
//   - Disjunctive: DNF form, an OR-union of Conjunctive disjuncts
//   - Join: multi-FOR nested-loop evaluation with LET bindings
//   - VectorGeo: vector-KNN ranking with optional spatial bbox filter
//   - Traversal: hop-bounded graph expansion
type Plan interface {
	planNode() // Marker method - seals interface to this package
}

// EqPredicate is field == value. Values are carried as their canonical
// string form so index collaborators can match without type dispatch.
type EqPredicate struct {
	Column string
	Value  string
}

// RangePredicate is a one- or two-sided range over a field. A nil bound
// means unbounded on that side.
type RangePredicate struct {
	Column       string
	Lower        *string
	Upper        *string
	IncludeLower bool
	IncludeUpper bool
}

// FulltextPredicate is FULLTEXT(field, query[, limit]). Limit defaults
// to 1000 matches when the call omits the third argument.
type FulltextPredicate struct {
	Column string
	Query  string
	Limit  int
}

// OrderBy captures SORT plus LIMIT for index-backed ordering. Limit is
// the internal fetch bound: offset+count when a LIMIT clause is present,
// else a fixed default. Cursor resumption state is filled in by the
// executor, never by the translator.
type OrderBy struct {
	Column      string
	Desc        bool
	Offset      int64
	Limit       int64
	CursorValue *string
	CursorPK    *string
}

// ProximityOrder is SORT PROXIMITY(geofield, [lon, lat]). Combined with
// a fulltext predicate it triggers the content_geo result envelope.
type ProximityOrder struct {
	Column string
	Lon    float64
	Lat    float64
	Desc   bool
}

// Conjunctive is a pure-AND filter set over a single collection. Var is
// the FOR loop variable, kept so the executor can bind rows for RETURN
// projection.
type Conjunctive struct {
	Table           string
	Var             string
	Predicates      []EqPredicate
	RangePredicates []RangePredicate
	Fulltext        *FulltextPredicate
	OrderBy         *OrderBy
	Proximity       *ProximityOrder
	Return          *aql.ReturnClause
	Limit           *aql.LimitClause
}

func (*Conjunctive) planNode() {}

// Disjunctive is the DNF form: an OR of Conjunctive disjuncts over one
// collection. The disjunct count equals the product of the branch counts
// of every OR-group conjoined by AND in the source filter tree.
type Disjunctive struct {
	Table     string
	Var       string
	Disjuncts []Conjunctive
	Return    *aql.ReturnClause
}

func (*Disjunctive) planNode() {}

// Join is the multi-FOR plan. Clause slices keep their AST form; the
// executor evaluates LET bindings per row combination, in declaration
// order, before filters run.
type Join struct {
	Fors    []aql.ForClause
	Filters []aql.FilterClause
	Lets    []aql.LetClause
	Collect *aql.CollectClause
	Sort    *aql.SortClause
	Limit   *aql.LimitClause
	Return  *aql.ReturnClause
}

func (*Join) planNode() {}

// BBox is a west/south/east/north bounding box from ST_WITHIN.
type BBox struct {
	Field string
	West  float64
	South float64
	East  float64
	North float64
}

// VectorGeo is the hybrid similarity plan: rank by vector distance,
// optionally restricted to a spatial bounding box. Extra non-spatial
// filters are collected, not rejected; the executor applies them as a
// prefilter before ranking.
type VectorGeo struct {
	Table        string
	Var          string
	VectorField  string
	QueryVector  []float64
	K            int
	Spatial      *BBox
	ExtraFilters []aql.Expr
	Return       *aql.ReturnClause
}

func (*VectorGeo) planNode() {}

// Traversal is the graph expansion plan recognized from the traversal
// FOR clause. Filters and the return clause keep their AST form; the
// executor evaluates per-hop predicates and PATH constraints.
type Traversal struct {
	VarVertex   string
	VarEdge     string
	VarPath     string
	MinDepth    int
	MaxDepth    int
	Direction   aql.Direction
	StartVertex string
	GraphName   string
	Filters     []aql.FilterClause
	Limit       *aql.LimitClause
	Return      *aql.ReturnClause
}

func (*Traversal) planNode() {}

// CTEPlan is one materialization step produced from a WITH clause.
// Result carries the recursively translated subquery, including its own
// nested CTE steps.
type CTEPlan struct {
	Name   string
	Result *Translation
}

// Translation is the output of Translate: the CTE steps in declaration
// order followed by the main plan.
type Translation struct {
	CTEs []CTEPlan
	Plan Plan
}
