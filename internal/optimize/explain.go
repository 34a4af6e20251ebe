package optimize

import (
	"sort"

	"github.com/roach88/tessera/internal/plan"
)

// PredicateStep is one predicate of an explain plan, in consultation order.
type PredicateStep struct {
	Column string `json:"column"`
	Value  string `json:"value"`
}

// Explain is the introspection record attached to query responses when
// explain mode is requested.
type Explain struct {
	Mode  string          `json:"mode"`
	Order []PredicateStep `json:"order"`
}

// ModeIndexOptimized marks an equality-only conjunctive plan whose every
// predicate is answerable from an index.
const ModeIndexOptimized = "index_optimized"

// ClassifyConjunctive returns the explain record for an equality-only
// conjunctive plan, or nil when the plan does not qualify (range
// predicates, fulltext, or a predicate without an index).
//
// estimate reports the expected match count of one equality predicate;
// a negative estimate means no index covers the column. Predicates are
// ordered cheapest first, the order the executor intersects them in.
func ClassifyConjunctive(q *plan.Conjunctive, estimate func(column, value string) int) *Explain {
	if q == nil || len(q.Predicates) == 0 {
		return nil
	}
	if len(q.RangePredicates) > 0 || q.Fulltext != nil {
		return nil
	}

	type ranked struct {
		step PredicateStep
		size int
	}
	steps := make([]ranked, 0, len(q.Predicates))
	for _, p := range q.Predicates {
		size := estimate(p.Column, p.Value)
		if size < 0 {
			return nil
		}
		steps = append(steps, ranked{
			step: PredicateStep{Column: p.Column, Value: p.Value},
			size: size,
		})
	}
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].size < steps[j].size })

	out := &Explain{Mode: ModeIndexOptimized}
	for _, s := range steps {
		out.Order = append(out.Order, s.step)
	}
	return out
}
