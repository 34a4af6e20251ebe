package aql

// Expr represents an expression node in the query AST.
//
// This is a sealed interface - only types in this package implement it.
// The marker method pattern prevents external implementations and enables
// exhaustive type switches in the translator and evaluator.
//
// Expression types:
//   - LiteralExpr: null, bool, int, float, string constants
//   - VariableExpr: a loop/LET-bound variable reference
//   - FieldAccessExpr: dotted field access (doc.address.city)
//   - BinaryExpr: boolean, comparison, and arithmetic operators
//   - UnaryExpr: NOT, unary minus/plus
//   - FunctionCallExpr: generic call (ABS, FULLTEXT, ST_WITHIN, PATH.ALL, ...)
//   - ArrayExpr, ObjectExpr: container construction
//   - SimilarityExpr: the SIMILARITY(field, vector[, k]) vector-KNN form,
//     kept as its own node so the translator finds it without name matching
//   - WindowExpr: a window function call, FUNC(args) OVER (...)
type Expr interface {
	exprNode() // Marker method - seals interface to this package

	// JSON returns the structural projection of the node, used for
	// introspection and golden tests.
	JSON() map[string]any
}

// BinaryOp is the operator of a BinaryExpr. The string value doubles as
// the operator spelling in the JSON projection.
type BinaryOp string

const (
	OpEq  BinaryOp = "=="
	OpNe  BinaryOp = "!="
	OpLt  BinaryOp = "<"
	OpLe  BinaryOp = "<="
	OpGt  BinaryOp = ">"
	OpGe  BinaryOp = ">="
	OpAnd BinaryOp = "AND"
	OpOr  BinaryOp = "OR"
	OpXor BinaryOp = "XOR"
	OpIn  BinaryOp = "IN"
	OpAdd BinaryOp = "+"
	OpSub BinaryOp = "-"
	OpMul BinaryOp = "*"
	OpDiv BinaryOp = "/"
	OpMod BinaryOp = "%"
)

// UnaryOp is the operator of a UnaryExpr.
type UnaryOp string

const (
	OpNot    UnaryOp = "NOT"
	OpNegate UnaryOp = "-"
	OpPosit  UnaryOp = "+"
)

// LiteralExpr holds a constant value: nil, bool, int64, float64, or string.
type LiteralExpr struct {
	Value any
}

func (*LiteralExpr) exprNode() {}

// VariableExpr references a FOR/LET-bound variable by name.
type VariableExpr struct {
	Name string
}

func (*VariableExpr) exprNode() {}

// FieldAccessExpr is one step of dotted field access. Object is a
// VariableExpr or a nested FieldAccessExpr.
type FieldAccessExpr struct {
	Object Expr
	Field  string
}

func (*FieldAccessExpr) exprNode() {}

// BinaryExpr applies Op to Left and Right.
type BinaryExpr struct {
	Op    BinaryOp
	Left  Expr
	Right Expr
}

func (*BinaryExpr) exprNode() {}

// UnaryExpr applies Op to Operand.
type UnaryExpr struct {
	Op      UnaryOp
	Operand Expr
}

func (*UnaryExpr) exprNode() {}

// FunctionCallExpr is a generic named call. Dotted names such as PATH.ALL
// are preserved verbatim in Name.
type FunctionCallExpr struct {
	Name string
	Args []Expr
}

func (*FunctionCallExpr) exprNode() {}

// ArrayExpr is an array literal.
type ArrayExpr struct {
	Elements []Expr
}

func (*ArrayExpr) exprNode() {}

// ObjectField is one key/value pair of an ObjectExpr. Declaration order
// is preserved.
type ObjectField struct {
	Key   string
	Value Expr
}

// ObjectExpr is an object construction literal, e.g. {name: doc.name}.
type ObjectExpr struct {
	Fields []ObjectField
}

func (*ObjectExpr) exprNode() {}

// SimilarityExpr is the parsed SIMILARITY(...) call. The raw argument list
// is preserved so the translator can report arity and type errors itself.
type SimilarityExpr struct {
	Args []Expr
}

func (*SimilarityExpr) exprNode() {}

// WindowExpr is a window function call with its OVER specification, e.g.
// ROW_NUMBER() OVER (PARTITION BY doc.category ORDER BY doc.amount DESC).
// Func is stored upper-cased. Window functions compute one value per
// input row without collapsing rows the way COLLECT does.
type WindowExpr struct {
	Func        string
	Args        []Expr
	PartitionBy []Expr
	OrderBy     []SortSpec
}

func (*WindowExpr) exprNode() {}

// Direction of a graph traversal clause.
type Direction string

const (
	DirectionOutbound Direction = "OUTBOUND"
	DirectionInbound  Direction = "INBOUND"
	DirectionAny      Direction = "ANY"
)

// ForClause binds a loop variable over a collection (or CTE name).
type ForClause struct {
	Variable   string
	Collection string
}

// TraversalClause describes FOR v[,e[,p]] IN min..max DIR start GRAPH name.
// When set on a Query, it replaces collection iteration.
type TraversalClause struct {
	VarVertex   string
	VarEdge     string // empty when not bound
	VarPath     string // empty when not bound
	MinDepth    int
	MaxDepth    int
	Direction   Direction
	StartVertex string
	GraphName   string
}

// FilterClause holds one FILTER condition. Separate FILTER clauses are
// AND-ed by the translator.
type FilterClause struct {
	Condition Expr
}

// LetClause binds a variable to an expression, evaluated per row
// combination in declaration order before filters run.
type LetClause struct {
	Variable string
	Expr     Expr
}

// SortSpec is one ordering term of a SORT clause.
type SortSpec struct {
	Expr      Expr
	Ascending bool
}

// SortClause holds the ordered sort specifications.
type SortClause struct {
	Specs []SortSpec
}

// LimitClause is LIMIT [offset,] count.
type LimitClause struct {
	Offset int64
	Count  int64
}

// CollectGroup is one `var = expr` group term of a COLLECT clause.
type CollectGroup struct {
	Var  string
	Expr Expr
}

// Aggregation is one `var = FUNC(expr)` term of an AGGREGATE clause.
// Func is COUNT, SUM, AVG, MIN, or MAX; Arg may be nil for COUNT().
type Aggregation struct {
	Var  string
	Func string
	Arg  Expr
}

// CollectClause is COLLECT groups [AGGREGATE aggregations].
type CollectClause struct {
	Groups       []CollectGroup
	Aggregations []Aggregation
}

// ReturnClause is RETURN [DISTINCT] expr.
type ReturnClause struct {
	Distinct bool
	Expr     Expr
}

// CTE is one named subquery of a WITH clause. Subqueries may themselves
// carry a nested WithClause.
type CTE struct {
	Name     string
	Subquery *Query
}

// WithClause is the leading WITH name AS (subquery)[, ...] prefix.
type WithClause struct {
	CTEs []CTE
}

// Query is the AST root. Clause slices preserve source order. Exactly one
// of Fors (non-empty) or Traversal is populated; a traversal query has no
// collection FOR clauses.
type Query struct {
	With      *WithClause
	Fors      []ForClause
	Traversal *TraversalClause
	Filters   []FilterClause
	Lets      []LetClause
	Collect   *CollectClause
	Sort      *SortClause
	Limit     *LimitClause
	Return    *ReturnClause
}
