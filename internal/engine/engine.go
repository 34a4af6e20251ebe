package engine

import "context"

// ScoredKey is one fulltext match with its relevance score.
type ScoredKey struct {
	PK    string
	Score float64
}

// Match is one vector search result; Distance is cosine distance, so
// smaller is closer.
type Match struct {
	PK       string
	Distance float64
}

// Edge is one graph edge with its document fields.
type Edge struct {
	PK     string
	From   string
	To     string
	Fields map[string]any
}

// Index is the secondary-index collaborator. Scans return primary keys;
// all calls are synchronous and atomic-or-failed.
type Index interface {
	// ScanEquality returns the keys whose field equals value, in
	// ascending key order.
	ScanEquality(ctx context.Context, table, field, value string) ([]string, error)

	// ScanRange returns keys whose field falls in the given bounds,
	// ordered by field value (reversed when reverse is set) with ties
	// broken by ascending key. A nil bound is unbounded; limit <= 0
	// means unbounded.
	ScanRange(ctx context.Context, table, field string, lower, upper *string, incLower, incUpper bool, limit int, reverse bool) ([]string, error)

	// ScanFulltext returns scored matches for a token query, best first.
	ScanFulltext(ctx context.Context, table, field, query string, limit int) ([]ScoredKey, error)

	// HasEqualityIndex reports whether equality scans cover the field.
	HasEqualityIndex(ctx context.Context, table, field string) (bool, error)

	// HasRangeIndex reports whether range scans cover the field.
	HasRangeIndex(ctx context.Context, table, field string) (bool, error)

	// EstimateEquality returns the expected match count of an equality
	// predicate, used for intersection ordering and explain output.
	EstimateEquality(ctx context.Context, table, field, value string) (int, error)
}

// Graph is the graph-topology collaborator.
type Graph interface {
	// OutEdges returns the edges leaving pk, in edge key order.
	OutEdges(ctx context.Context, graph, pk string) ([]Edge, error)

	// InEdges returns the edges entering pk, in edge key order.
	InEdges(ctx context.Context, graph, pk string) ([]Edge, error)

	// Vertex loads a vertex document by primary key.
	Vertex(ctx context.Context, pk string) (map[string]any, error)
}

// Vector is the vector-index collaborator.
type Vector interface {
	// SearchKNN returns the k nearest neighbours of query, closest
	// first. A non-nil whitelist restricts the candidate set.
	SearchKNN(ctx context.Context, table, field string, query []float64, k int, whitelist []string) ([]Match, error)
}

// Rows is the row-materialization collaborator.
type Rows interface {
	// Load returns the document fields for one key, including "_key".
	Load(ctx context.Context, table, pk string) (map[string]any, error)

	// ScanTable returns every key of a table in ascending order.
	ScanTable(ctx context.Context, table string) ([]string, error)
}

// Options tunes executor behavior. The zero value picks defaults.
type Options struct {
	// DefaultBatchSize is the page size when a request sets none.
	DefaultBatchSize int

	// Overfetch is the candidate multiplier for vector-first hybrid
	// search, compensating for candidates the bbox filter discards.
	Overfetch float64
}

func (o Options) withDefaults() Options {
	if o.DefaultBatchSize <= 0 {
		o.DefaultBatchSize = 100
	}
	if o.Overfetch < 1 {
		o.Overfetch = 3.0
	}
	return o
}

// Engine executes translated plans against the index, graph, vector,
// and row collaborators. One query runs on one goroutine end-to-end;
// the engine keeps no cross-query mutable state, so a single Engine is
// safe for concurrent use when its collaborators are.
type Engine struct {
	idx   Index
	graph Graph
	vec   Vector
	rows  Rows
	opts  Options
}

// New creates an engine over the given collaborators.
func New(idx Index, graph Graph, vec Vector, rows Rows, opts Options) *Engine {
	return &Engine{idx: idx, graph: graph, vec: vec, rows: rows, opts: opts.withDefaults()}
}
