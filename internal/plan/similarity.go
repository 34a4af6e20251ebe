package plan

import (
	"strings"

	"github.com/roach88/tessera/internal/aql"
)

// findSimilarity locates a SIMILARITY call in the SORT specifications or
// LET bindings. The parser produces a dedicated node for the call, so no
// function-name matching happens here.
func findSimilarity(q *aql.Query) *aql.SimilarityExpr {
	if q.Sort != nil {
		for _, spec := range q.Sort.Specs {
			if sim := similarityIn(spec.Expr); sim != nil {
				return sim
			}
		}
	}
	for _, let := range q.Lets {
		if sim := similarityIn(let.Expr); sim != nil {
			return sim
		}
	}
	return nil
}

func similarityIn(expr aql.Expr) *aql.SimilarityExpr {
	switch e := expr.(type) {
	case *aql.SimilarityExpr:
		return e
	case *aql.BinaryExpr:
		if sim := similarityIn(e.Left); sim != nil {
			return sim
		}
		return similarityIn(e.Right)
	case *aql.UnaryExpr:
		return similarityIn(e.Operand)
	case *aql.FunctionCallExpr:
		for _, arg := range e.Args {
			if sim := similarityIn(arg); sim != nil {
				return sim
			}
		}
	}
	return nil
}

// translateVectorGeo builds the hybrid plan from a SIMILARITY call plus
// the query's filters.
//
// The k precedence rule: an explicit third argument is final and is not
// overridden by LIMIT; otherwise the LIMIT count applies, else the
// default. FILTER ST_WITHIN(field, bbox) becomes the spatial filter;
// every other filter conjunct is collected into ExtraFilters.
func translateVectorGeo(q *aql.Query, sim *aql.SimilarityExpr) (Plan, error) {
	if len(sim.Args) < 2 || len(sim.Args) > 3 {
		return nil, errorf("SIMILARITY requires 2-3 arguments (field, vector[, k])")
	}

	field := ExtractColumnName(sim.Args[0])
	if field == "" {
		return nil, errorf("SIMILARITY field argument must be a field access")
	}

	vector, err := numberArray(sim.Args[1])
	if err != nil {
		return nil, errorf("SIMILARITY query vector must be an array literal of numbers")
	}

	k := DefaultK
	if len(sim.Args) == 3 {
		lit, ok := sim.Args[2].(*aql.LiteralExpr)
		if !ok {
			return nil, errorf("SIMILARITY k argument must be an integer literal")
		}
		n, ok := lit.Value.(int64)
		if !ok || n <= 0 {
			return nil, errorf("SIMILARITY k argument must be a positive integer")
		}
		k = int(n)
	} else if q.Limit != nil && q.Limit.Count > 0 {
		k = int(q.Limit.Count)
	}

	vg := &VectorGeo{
		Table:       q.Fors[0].Collection,
		Var:         q.Fors[0].Variable,
		VectorField: field,
		QueryVector: vector,
		K:           k,
		Return:      q.Return,
	}

	for _, f := range q.Filters {
		for _, conjunct := range andConjuncts(f.Condition) {
			bbox, ok, err := spatialFilter(conjunct)
			if err != nil {
				return nil, err
			}
			if ok {
				if vg.Spatial != nil {
					return nil, errorf("at most one ST_WITHIN filter per similarity query")
				}
				vg.Spatial = bbox
				continue
			}
			vg.ExtraFilters = append(vg.ExtraFilters, conjunct)
		}
	}
	return vg, nil
}

// andConjuncts flattens an AND chain into its conjunct list.
func andConjuncts(expr aql.Expr) []aql.Expr {
	if b, ok := expr.(*aql.BinaryExpr); ok && b.Op == aql.OpAnd {
		return append(andConjuncts(b.Left), andConjuncts(b.Right)...)
	}
	return []aql.Expr{expr}
}

// spatialFilter recognizes ST_WITHIN(field, [west, south, east, north]).
func spatialFilter(expr aql.Expr) (*BBox, bool, error) {
	call, ok := expr.(*aql.FunctionCallExpr)
	if !ok || !strings.EqualFold(call.Name, "ST_WITHIN") {
		return nil, false, nil
	}
	if len(call.Args) != 2 {
		return nil, false, errorf("ST_WITHIN requires a field and a [west, south, east, north] array")
	}
	field := ExtractColumnName(call.Args[0])
	if field == "" {
		return nil, false, errorf("ST_WITHIN field argument must be a field access")
	}
	box, err := numberArray(call.Args[1])
	if err != nil || len(box) != 4 {
		return nil, false, errorf("ST_WITHIN requires a [west, south, east, north] array literal")
	}
	return &BBox{Field: field, West: box[0], South: box[1], East: box[2], North: box[3]}, true, nil
}
