// Package store is the SQLite-backed storage layer: document bodies,
// graph edges, and the secondary structures (field index, fulltext
// tokens, vectors) the query engine reads through its collaborator
// interfaces.
//
// One Store implements all four collaborator roles, so a single Open
// call wires a complete engine:
//
//	st, err := store.Open("data.db")
//	eng := engine.New(st, st, st, st, engine.Options{})
//
// Writes maintain every declared index synchronously inside the same
// transaction as the document body; reads never rebuild state. Index
// declarations live in the index_specs table and are consulted on every
// write, so CreateIndex on a populated collection backfills existing
// documents.
package store
