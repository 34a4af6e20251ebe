package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/tessera/internal/aql"
	"github.com/roach88/tessera/internal/plan"
)

// pathState is one enumerated traversal path: the vertices visited in
// order (starting with the start vertex) and the edges walked between
// them. len(vertices) == len(edges)+1 always holds.
type pathState struct {
	vertexPKs []string
	vertices  []map[string]any
	edges     []map[string]any
}

func (p *pathState) depth() int { return len(p.edges) }

func (p *pathState) onPath(pk string) bool {
	for _, v := range p.vertexPKs {
		if v == pk {
			return true
		}
	}
	return false
}

func (p *pathState) object() map[string]any {
	vs := make([]any, len(p.vertices))
	for i, v := range p.vertices {
		vs[i] = v
	}
	es := make([]any, len(p.edges))
	for i, e := range p.edges {
		es[i] = e
	}
	return map[string]any{"vertices": vs, "edges": es}
}

// executeTraversal expands from the start vertex over the graph
// collaborator, enumerating every acyclic path of 1..MaxDepth hops.
// MinDepth is an inclusion floor for results, not an expansion skip:
// shorter paths are still walked, they just do not produce rows. Paths
// are enumerated rather than vertices deduplicated, so RETURN p may
// yield several rows for one reachable vertex while RETURN v and
// RETURN e collapse duplicates.
func (r *runtime) executeTraversal(ctx context.Context, t *plan.Traversal) ([]any, error) {
	if t.Return == nil {
		return nil, NewTranslateError(errMissingReturn)
	}

	start, err := r.e.graph.Vertex(ctx, t.StartVertex)
	if err != nil {
		return nil, NewExecutionError("traversal: load start vertex %q: %v", t.StartVertex, err)
	}
	if start == nil {
		return nil, NewExecutionError("traversal: start vertex %q not found", t.StartVertex)
	}

	var results []any
	seen := map[string]bool{}
	dedup := !exprUsesVariable(t.Return.Expr, t.VarPath) || t.VarPath == ""

	emit := func(p *pathState) error {
		if p.depth() < t.MinDepth {
			return nil
		}
		env := map[string]any{t.VarVertex: p.vertices[len(p.vertices)-1]}
		var lastEdge map[string]any
		if p.depth() > 0 {
			lastEdge = p.edges[len(p.edges)-1]
		}
		if t.VarEdge != "" {
			env[t.VarEdge] = lastEdge
		}
		if t.VarPath != "" {
			env[t.VarPath] = p.object()
		}
		hook := r.pathHook(t, p)
		for _, f := range t.Filters {
			ok, ferr := evalExpr(env, f.Condition, hook)
			if ferr != nil {
				return ferr
			}
			if !truthy(ok) {
				return nil
			}
		}
		v, verr := evalExpr(env, t.Return.Expr, hook)
		if verr != nil {
			return verr
		}
		if dedup || t.Return.Distinct {
			key := canonicalKey(v)
			if seen[key] {
				return nil
			}
			seen[key] = true
		}
		results = append(results, v)
		return nil
	}

	var expand func(p *pathState) error
	expand = func(p *pathState) error {
		if p.depth() >= t.MaxDepth {
			return nil
		}
		current := p.vertexPKs[len(p.vertexPKs)-1]
		hops, eerr := r.neighborHops(ctx, t.GraphName, t.Direction, current)
		if eerr != nil {
			return eerr
		}
		for _, h := range hops {
			next := h.target
			if p.onPath(next) {
				continue
			}
			vdoc, verr := r.e.graph.Vertex(ctx, next)
			if verr != nil {
				return NewExecutionError("traversal: load vertex %q: %v", next, verr)
			}
			if vdoc == nil {
				continue
			}
			p.vertexPKs = append(p.vertexPKs, next)
			p.vertices = append(p.vertices, vdoc)
			p.edges = append(p.edges, edgeObject(h.edge))
			if err := emit(p); err != nil {
				return err
			}
			if err := expand(p); err != nil {
				return err
			}
			p.vertexPKs = p.vertexPKs[:len(p.vertexPKs)-1]
			p.vertices = p.vertices[:len(p.vertices)-1]
			p.edges = p.edges[:len(p.edges)-1]
		}
		return nil
	}

	root := &pathState{vertexPKs: []string{t.StartVertex}, vertices: []map[string]any{start}}
	if t.MinDepth == 0 {
		if err := emit(root); err != nil {
			return nil, err
		}
	}
	if err := expand(root); err != nil {
		return nil, err
	}

	return applyLimit(results, t.Limit), nil
}

// hop pairs an edge with the vertex it leads to from the current
// position, which depends on the traversal direction.
type hop struct {
	edge   Edge
	target string
}

// neighborHops resolves direction to the right adjacency calls. ANY
// walks both edge directions from the current vertex.
func (r *runtime) neighborHops(ctx context.Context, graph string, dir aql.Direction, pk string) ([]hop, error) {
	var hops []hop
	if dir == aql.DirectionOutbound || dir == aql.DirectionAny {
		out, err := r.e.graph.OutEdges(ctx, graph, pk)
		if err != nil {
			return nil, NewExecutionError("traversal: out edges of %q: %v", pk, err)
		}
		for _, e := range out {
			hops = append(hops, hop{edge: e, target: e.To})
		}
	}
	if dir == aql.DirectionInbound || dir == aql.DirectionAny {
		in, err := r.e.graph.InEdges(ctx, graph, pk)
		if err != nil {
			return nil, NewExecutionError("traversal: in edges of %q: %v", pk, err)
		}
		for _, e := range in {
			hops = append(hops, hop{edge: e, target: e.From})
		}
	}
	if dir != aql.DirectionOutbound && dir != aql.DirectionInbound && dir != aql.DirectionAny {
		return nil, NewExecutionError("traversal: unknown direction %q", dir)
	}
	return hops, nil
}

func edgeObject(e Edge) map[string]any {
	obj := make(map[string]any, len(e.Fields)+3)
	for k, v := range e.Fields {
		obj[k] = v
	}
	obj["_key"] = e.PK
	obj["_from"] = e.From
	obj["_to"] = e.To
	return obj
}

// pathHook resolves PATH.ALL, PATH.ANY, and PATH.NONE against the path
// accumulated up to and including the current hop. The first argument
// names the traversal variable being quantified (the vertex or the edge
// variable); the second is the predicate evaluated once per element.
func (r *runtime) pathHook(t *plan.Traversal, p *pathState) callHook {
	return func(call *aql.FunctionCallExpr, env map[string]any) (any, bool, error) {
		name := strings.ToUpper(call.Name)
		if name != "PATH.ALL" && name != "PATH.ANY" && name != "PATH.NONE" {
			return nil, false, nil
		}
		if len(call.Args) != 2 {
			return nil, true, fmt.Errorf("%s requires 2 arguments (variable, predicate)", name)
		}
		v, ok := call.Args[0].(*aql.VariableExpr)
		if !ok {
			return nil, true, fmt.Errorf("%s first argument must be the vertex or edge variable", name)
		}

		var elements []map[string]any
		switch v.Name {
		case t.VarVertex:
			elements = p.vertices
		case t.VarEdge:
			if t.VarEdge == "" {
				return nil, true, fmt.Errorf("%s references unbound edge variable", name)
			}
			elements = p.edges
		default:
			return nil, true, fmt.Errorf("%s references unknown traversal variable %q", name, v.Name)
		}

		matched := 0
		for _, el := range elements {
			scoped := cloneEnv(env)
			scoped[v.Name] = el
			res, err := evalExpr(scoped, call.Args[1], nil)
			if err != nil {
				return nil, true, err
			}
			if truthy(res) {
				matched++
			}
		}
		switch name {
		case "PATH.ALL":
			return matched == len(elements), true, nil
		case "PATH.ANY":
			return matched > 0, true, nil
		default:
			return matched == 0, true, nil
		}
	}
}

// exprUsesVariable reports whether the expression references the named
// variable anywhere in its tree.
func exprUsesVariable(expr aql.Expr, name string) bool {
	if name == "" || expr == nil {
		return false
	}
	switch e := expr.(type) {
	case *aql.LiteralExpr:
		return false
	case *aql.VariableExpr:
		return e.Name == name
	case *aql.FieldAccessExpr:
		return exprUsesVariable(e.Object, name)
	case *aql.BinaryExpr:
		return exprUsesVariable(e.Left, name) || exprUsesVariable(e.Right, name)
	case *aql.UnaryExpr:
		return exprUsesVariable(e.Operand, name)
	case *aql.FunctionCallExpr:
		for _, a := range e.Args {
			if exprUsesVariable(a, name) {
				return true
			}
		}
		return false
	case *aql.SimilarityExpr:
		for _, a := range e.Args {
			if exprUsesVariable(a, name) {
				return true
			}
		}
		return false
	case *aql.ArrayExpr:
		for _, el := range e.Elements {
			if exprUsesVariable(el, name) {
				return true
			}
		}
		return false
	case *aql.ObjectExpr:
		for _, f := range e.Fields {
			if exprUsesVariable(f.Value, name) {
				return true
			}
		}
		return false
	default:
		return false
	}
}
