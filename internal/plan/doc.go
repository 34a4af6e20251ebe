// Package plan translates parsed queries into execution plans: the
// sealed Plan sum type (Conjunctive, Disjunctive, Join, VectorGeo,
// Traversal), DNF normalization of OR/XOR filter trees, SIMILARITY
// vector-geo extraction, and recursive WITH/CTE expansion.
//
// Translation is pure and idempotent; all cost decisions live in the
// optimize package and all evaluation in engine.
package plan
