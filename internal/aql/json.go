package aql

// Structural JSON projection of the AST. Node maps round-trip through
// encoding/json with deterministic key order, which the golden tests
// rely on.

func (e *LiteralExpr) JSON() map[string]any {
	return map[string]any{"type": "literal", "value": e.Value}
}

func (e *VariableExpr) JSON() map[string]any {
	return map[string]any{"type": "variable", "name": e.Name}
}

func (e *FieldAccessExpr) JSON() map[string]any {
	return map[string]any{
		"type":   "field_access",
		"object": e.Object.JSON(),
		"field":  e.Field,
	}
}

func (e *BinaryExpr) JSON() map[string]any {
	return map[string]any{
		"type":     "binary_op",
		"operator": string(e.Op),
		"left":     e.Left.JSON(),
		"right":    e.Right.JSON(),
	}
}

func (e *UnaryExpr) JSON() map[string]any {
	return map[string]any{
		"type":     "unary_op",
		"operator": string(e.Op),
		"operand":  e.Operand.JSON(),
	}
}

func (e *FunctionCallExpr) JSON() map[string]any {
	args := make([]any, 0, len(e.Args))
	for _, a := range e.Args {
		args = append(args, a.JSON())
	}
	return map[string]any{
		"type":      "function_call",
		"name":      e.Name,
		"arguments": args,
	}
}

func (e *ArrayExpr) JSON() map[string]any {
	elems := make([]any, 0, len(e.Elements))
	for _, el := range e.Elements {
		elems = append(elems, el.JSON())
	}
	return map[string]any{"type": "array_literal", "elements": elems}
}

func (e *ObjectExpr) JSON() map[string]any {
	fields := make(map[string]any, len(e.Fields))
	for _, f := range e.Fields {
		fields[f.Key] = f.Value.JSON()
	}
	return map[string]any{"type": "object_construct", "fields": fields}
}

func (e *SimilarityExpr) JSON() map[string]any {
	args := make([]any, 0, len(e.Args))
	for _, a := range e.Args {
		args = append(args, a.JSON())
	}
	return map[string]any{"type": "similarity", "arguments": args}
}

func (e *WindowExpr) JSON() map[string]any {
	args := make([]any, 0, len(e.Args))
	for _, a := range e.Args {
		args = append(args, a.JSON())
	}
	j := map[string]any{
		"type":      "window",
		"function":  e.Func,
		"arguments": args,
	}
	if len(e.PartitionBy) > 0 {
		parts := make([]any, 0, len(e.PartitionBy))
		for _, p := range e.PartitionBy {
			parts = append(parts, p.JSON())
		}
		j["partition_by"] = parts
	}
	if len(e.OrderBy) > 0 {
		specs := make([]any, 0, len(e.OrderBy))
		for _, s := range e.OrderBy {
			specs = append(specs, s.JSON())
		}
		j["order_by"] = specs
	}
	return j
}

func (f ForClause) JSON() map[string]any {
	return map[string]any{
		"type":       "for",
		"variable":   f.Variable,
		"collection": f.Collection,
	}
}

func (t *TraversalClause) JSON() map[string]any {
	return map[string]any{
		"type":        "traversal",
		"varVertex":   t.VarVertex,
		"varEdge":     t.VarEdge,
		"varPath":     t.VarPath,
		"minDepth":    t.MinDepth,
		"maxDepth":    t.MaxDepth,
		"direction":   string(t.Direction),
		"startVertex": t.StartVertex,
		"graphName":   t.GraphName,
	}
}

func (f FilterClause) JSON() map[string]any {
	return map[string]any{"type": "filter", "condition": f.Condition.JSON()}
}

func (l LetClause) JSON() map[string]any {
	return map[string]any{
		"type":       "let",
		"variable":   l.Variable,
		"expression": l.Expr.JSON(),
	}
}

func (s SortSpec) JSON() map[string]any {
	return map[string]any{
		"expression": s.Expr.JSON(),
		"ascending":  s.Ascending,
	}
}

func (s *SortClause) JSON() map[string]any {
	specs := make([]any, 0, len(s.Specs))
	for _, sp := range s.Specs {
		specs = append(specs, sp.JSON())
	}
	return map[string]any{"type": "sort", "specifications": specs}
}

func (l *LimitClause) JSON() map[string]any {
	return map[string]any{"type": "limit", "offset": l.Offset, "count": l.Count}
}

func (r *ReturnClause) JSON() map[string]any {
	j := map[string]any{"type": "return", "expression": r.Expr.JSON()}
	if r.Distinct {
		j["distinct"] = true
	}
	return j
}

func (c *CollectClause) JSON() map[string]any {
	groups := make([]any, 0, len(c.Groups))
	for _, g := range c.Groups {
		groups = append(groups, map[string]any{"var": g.Var, "expr": g.Expr.JSON()})
	}
	aggs := make([]any, 0, len(c.Aggregations))
	for _, a := range c.Aggregations {
		entry := map[string]any{"var": a.Var, "func": a.Func}
		if a.Arg != nil {
			entry["arg"] = a.Arg.JSON()
		} else {
			entry["arg"] = nil
		}
		aggs = append(aggs, entry)
	}
	return map[string]any{"type": "collect", "groups": groups, "aggregations": aggs}
}

func (w *WithClause) JSON() map[string]any {
	ctes := make([]any, 0, len(w.CTEs))
	for _, cte := range w.CTEs {
		ctes = append(ctes, map[string]any{
			"name":     cte.Name,
			"subquery": cte.Subquery.JSON(),
		})
	}
	return map[string]any{"ctes": ctes}
}

// JSON projects the whole query. The "for" key always holds the first
// iteration source; traversal queries project a pseudo-FOR over the
// "graph" collection for shape compatibility with collection queries.
func (q *Query) JSON() map[string]any {
	j := map[string]any{"type": "query"}

	switch {
	case q.Traversal != nil:
		j["for"] = ForClause{Variable: q.Traversal.VarVertex, Collection: "graph"}.JSON()
		j["traversal"] = q.Traversal.JSON()
	case len(q.Fors) > 0:
		j["for"] = q.Fors[0].JSON()
		if len(q.Fors) > 1 {
			fors := make([]any, 0, len(q.Fors))
			for _, f := range q.Fors {
				fors = append(fors, f.JSON())
			}
			j["fors"] = fors
		}
	}

	if len(q.Filters) > 0 {
		filters := make([]any, 0, len(q.Filters))
		for _, f := range q.Filters {
			filters = append(filters, f.JSON())
		}
		j["filters"] = filters
	}
	if len(q.Lets) > 0 {
		lets := make([]any, 0, len(q.Lets))
		for _, l := range q.Lets {
			lets = append(lets, l.JSON())
		}
		j["lets"] = lets
	}
	if q.Sort != nil {
		j["sort"] = q.Sort.JSON()
	}
	if q.Limit != nil {
		j["limit"] = q.Limit.JSON()
	}
	if q.Collect != nil {
		j["collect"] = q.Collect.JSON()
	}
	if q.Return != nil {
		j["return"] = q.Return.JSON()
	}
	if q.With != nil {
		j["with"] = q.With.JSON()
	}
	return j
}
