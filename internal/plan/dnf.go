package plan

import "github.com/roach88/tessera/internal/aql"

// filtersContainOrXor reports whether any filter condition carries an OR
// or XOR at its boolean level, which routes translation through DNF.
func filtersContainOrXor(filters []aql.FilterClause) bool {
	for _, f := range filters {
		if containsOrXor(f.Condition) {
			return true
		}
	}
	return false
}

func containsOrXor(expr aql.Expr) bool {
	b, ok := expr.(*aql.BinaryExpr)
	if !ok {
		return false
	}
	if b.Op == aql.OpOr || b.Op == aql.OpXor {
		return true
	}
	if b.Op == aql.OpAnd {
		return containsOrXor(b.Left) || containsOrXor(b.Right)
	}
	return false
}

// translateDisjunctive normalizes the combined filter tree to DNF and
// emits one Conjunctive disjunct per AND-branch. Multiple FILTER clauses
// are AND-ed before normalization, so the disjunct count is the product
// of the branch counts of every OR-group conjoined at the top level.
//
// XOR expands like OR here; exclusivity is not re-checked per key. The
// union semantics of disjunct execution make the difference unobservable
// for disjoint branches, which is the shape these queries take.
func translateDisjunctive(q *aql.Query) (Plan, error) {
	combined := combineFilters(q.Filters)
	if combined == nil {
		return nil, errorf("disjunctive query has no filter condition")
	}

	branches := dnf(combined)
	d := &Disjunctive{Table: q.Fors[0].Collection, Var: q.Fors[0].Variable, Return: q.Return}
	for _, leaves := range branches {
		conj := Conjunctive{Table: d.Table, Var: d.Var}
		for _, leaf := range leaves {
			if err := extractPredicates(leaf, &conj); err != nil {
				return nil, err
			}
		}
		d.Disjuncts = append(d.Disjuncts, conj)
	}
	return d, nil
}

// combineFilters folds separate FILTER clauses into one AND chain.
func combineFilters(filters []aql.FilterClause) aql.Expr {
	var combined aql.Expr
	for _, f := range filters {
		if f.Condition == nil {
			continue
		}
		if combined == nil {
			combined = f.Condition
			continue
		}
		combined = &aql.BinaryExpr{Op: aql.OpAnd, Left: combined, Right: f.Condition}
	}
	return combined
}

// dnf returns the disjunctive normal form of a boolean tree as a list of
// branches, each branch being the list of non-boolean leaves that must
// all hold. AND distributes over OR groups via the cross product;
// OR/XOR concatenates branches. Redundant disjuncts are not deduplicated.
func dnf(expr aql.Expr) [][]aql.Expr {
	b, ok := expr.(*aql.BinaryExpr)
	if !ok {
		return [][]aql.Expr{{expr}}
	}
	switch b.Op {
	case aql.OpOr, aql.OpXor:
		return append(dnf(b.Left), dnf(b.Right)...)
	case aql.OpAnd:
		left := dnf(b.Left)
		right := dnf(b.Right)
		product := make([][]aql.Expr, 0, len(left)*len(right))
		for _, l := range left {
			for _, r := range right {
				branch := make([]aql.Expr, 0, len(l)+len(r))
				branch = append(branch, l...)
				branch = append(branch, r...)
				product = append(product, branch)
			}
		}
		return product
	}
	return [][]aql.Expr{{expr}}
}
