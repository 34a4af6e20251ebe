// Package aql implements the lexer, parser, and AST for the tessera
// query language: FOR/FILTER/LET/SORT/LIMIT/COLLECT/RETURN clauses,
// leading WITH common table expressions, graph traversal FOR clauses,
// and the SIMILARITY vector search form.
//
// Parsing is pure and stateless; the AST is data only, with a structural
// JSON projection used for introspection and golden tests. Plan
// construction lives in the plan package, execution in engine.
package aql
