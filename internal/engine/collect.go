package engine

import (
	"fmt"

	"github.com/roach88/tessera/internal/aql"
)

// groupAndAggregate reduces row combinations to one environment per
// distinct group-key tuple. Group variables are bound to their key
// values; AGGREGATE variables are computed over each group's member
// rows. Groups keep first-seen order so a later SORT clause is the only
// thing that reorders them.
func groupAndAggregate(rows []map[string]any, c *aql.CollectClause) ([]map[string]any, error) {
	type group struct {
		env     map[string]any
		members []map[string]any
	}

	var order []string
	groups := map[string]*group{}

	for _, row := range rows {
		keyVals := make([]any, len(c.Groups))
		for i, g := range c.Groups {
			v, err := evalExpr(row, g.Expr, nil)
			if err != nil {
				return nil, err
			}
			keyVals[i] = v
		}
		key := canonicalKey(keyVals)
		grp, ok := groups[key]
		if !ok {
			env := map[string]any{}
			for i, g := range c.Groups {
				env[g.Var] = keyVals[i]
			}
			grp = &group{env: env}
			groups[key] = grp
			order = append(order, key)
		}
		grp.members = append(grp.members, row)
	}

	out := make([]map[string]any, 0, len(order))
	for _, key := range order {
		grp := groups[key]
		for _, agg := range c.Aggregations {
			v, err := aggregate(agg, grp.members)
			if err != nil {
				return nil, err
			}
			grp.env[agg.Var] = v
		}
		out = append(out, grp.env)
	}
	return out, nil
}

func aggregate(agg aql.Aggregation, members []map[string]any) (any, error) {
	if agg.Func == "COUNT" && agg.Arg == nil {
		return int64(len(members)), nil
	}
	if agg.Arg == nil {
		return nil, fmt.Errorf("aggregate %s requires an argument", agg.Func)
	}

	var (
		sum     float64
		count   int64
		minV    any
		maxV    any
		haveExt bool
	)
	for _, row := range members {
		v, err := evalExpr(row, agg.Arg, nil)
		if err != nil {
			return nil, err
		}
		if v == nil {
			continue
		}
		count++
		if f, ok := asFloat(v); ok {
			sum += f
		} else if agg.Func == "SUM" || agg.Func == "AVG" {
			return nil, fmt.Errorf("aggregate %s requires numeric values, got %T", agg.Func, v)
		}
		if !haveExt {
			minV, maxV = v, v
			haveExt = true
			continue
		}
		if cmp, err := orderValues(v, minV); err == nil && cmp < 0 {
			minV = v
		}
		if cmp, err := orderValues(v, maxV); err == nil && cmp > 0 {
			maxV = v
		}
	}

	switch agg.Func {
	case "COUNT":
		return count, nil
	case "SUM":
		return numericResult(sum), nil
	case "AVG":
		if count == 0 {
			return nil, nil
		}
		return sum / float64(count), nil
	case "MIN":
		return minV, nil
	case "MAX":
		return maxV, nil
	default:
		return nil, fmt.Errorf("unknown aggregate function %s", agg.Func)
	}
}

// numericResult collapses integral sums back to int64 so JSON output
// stays free of trailing ".0" noise.
func numericResult(f float64) any {
	if f == float64(int64(f)) {
		return int64(f)
	}
	return f
}
