package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// IndexKind selects the secondary structure maintained for a field.
type IndexKind string

const (
	IndexEquality IndexKind = "equality"
	IndexRange    IndexKind = "range"
	IndexFulltext IndexKind = "fulltext"
	IndexVector   IndexKind = "vector"
)

// PutDocument stores a document in a collection and maintains every
// declared secondary index for it. A missing "_key" field gets a
// time-ordered UUID so insertion order stays recoverable from the key.
// Returns the primary key.
func (s *Store) PutDocument(ctx context.Context, collection string, doc map[string]any) (string, error) {
	pk, _ := doc["_key"].(string)
	if pk == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return "", fmt.Errorf("generate key: %w", err)
		}
		pk = id.String()
		doc["_key"] = pk
	}

	body, err := marshalBody(doc)
	if err != nil {
		return "", fmt.Errorf("marshal document %s/%s: %w", collection, pk, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin write: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO documents (collection, pk, body) VALUES (?, ?, ?)
		 ON CONFLICT(collection, pk) DO UPDATE SET body = excluded.body`,
		collection, pk, body); err != nil {
		return "", fmt.Errorf("put document %s/%s: %w", collection, pk, err)
	}

	if err := s.reindexDocument(ctx, tx, collection, pk, doc); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit write: %w", err)
	}
	return pk, nil
}

// PutEdge stores a graph edge. Fields may be nil.
func (s *Store) PutEdge(ctx context.Context, graph, pk, from, to string, fields map[string]any) error {
	if pk == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate edge key: %w", err)
		}
		pk = id.String()
	}
	if fields == nil {
		fields = map[string]any{}
	}
	body, err := marshalBody(fields)
	if err != nil {
		return fmt.Errorf("marshal edge %s/%s: %w", graph, pk, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO edges (graph, pk, from_pk, to_pk, body) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(graph, pk) DO UPDATE SET from_pk = excluded.from_pk, to_pk = excluded.to_pk, body = excluded.body`,
		graph, pk, from, to, body)
	if err != nil {
		return fmt.Errorf("put edge %s/%s: %w", graph, pk, err)
	}
	return nil
}

// CreateIndex declares a secondary index on a field and backfills it
// from the documents already stored. Idempotent per (collection, field,
// kind).
func (s *Store) CreateIndex(ctx context.Context, collection, field string, kind IndexKind) error {
	switch kind {
	case IndexEquality, IndexRange, IndexFulltext, IndexVector:
	default:
		return fmt.Errorf("unknown index kind %q", kind)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create index: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO index_specs (collection, field, kind) VALUES (?, ?, ?)`,
		collection, field, string(kind)); err != nil {
		return fmt.Errorf("record index spec: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT pk, body FROM documents WHERE collection = ? ORDER BY pk`, collection)
	if err != nil {
		return fmt.Errorf("scan for backfill: %w", err)
	}
	type pending struct {
		pk  string
		doc map[string]any
	}
	var docs []pending
	for rows.Next() {
		var pk, body string
		if err := rows.Scan(&pk, &body); err != nil {
			rows.Close()
			return fmt.Errorf("scan document: %w", err)
		}
		doc, err := unmarshalBody(body)
		if err != nil {
			rows.Close()
			return fmt.Errorf("decode document %s/%s: %w", collection, pk, err)
		}
		docs = append(docs, pending{pk: pk, doc: doc})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, d := range docs {
		if err := s.indexField(ctx, tx, collection, d.pk, field, kind, d.doc); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create index: %w", err)
	}
	return nil
}

// reindexDocument drops and rebuilds every index entry of one document.
func (s *Store) reindexDocument(ctx context.Context, tx *sql.Tx, collection, pk string, doc map[string]any) error {
	for _, stmt := range []string{
		`DELETE FROM field_index WHERE collection = ? AND pk = ?`,
		`DELETE FROM fulltext_index WHERE collection = ? AND pk = ?`,
		`DELETE FROM vectors WHERE collection = ? AND pk = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, collection, pk); err != nil {
			return fmt.Errorf("clear index entries for %s/%s: %w", collection, pk, err)
		}
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT field, kind FROM index_specs WHERE collection = ?`, collection)
	if err != nil {
		return fmt.Errorf("load index specs: %w", err)
	}
	type spec struct {
		field string
		kind  IndexKind
	}
	var specs []spec
	for rows.Next() {
		var sp spec
		var kind string
		if err := rows.Scan(&sp.field, &kind); err != nil {
			rows.Close()
			return fmt.Errorf("scan index spec: %w", err)
		}
		sp.kind = IndexKind(kind)
		specs = append(specs, sp)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, sp := range specs {
		if err := s.indexField(ctx, tx, collection, pk, sp.field, sp.kind, doc); err != nil {
			return err
		}
	}
	return nil
}

// indexField writes the index entries of one (document, field, kind).
// Documents without the field simply contribute no entries.
func (s *Store) indexField(ctx context.Context, tx *sql.Tx, collection, pk, field string, kind IndexKind, doc map[string]any) error {
	v := docFieldValue(doc, field)
	if v == nil {
		return nil
	}

	switch kind {
	case IndexEquality, IndexRange:
		value, num, ok := canonicalScalar(v)
		if !ok {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO field_index (collection, field, value, num, pk) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(collection, field, pk) DO UPDATE SET value = excluded.value, num = excluded.num`,
			collection, field, value, num, pk); err != nil {
			return fmt.Errorf("index %s.%s for %s: %w", collection, field, pk, err)
		}
	case IndexFulltext:
		text, ok := v.(string)
		if !ok {
			return nil
		}
		for token, freq := range tokenize(text) {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO fulltext_index (collection, field, token, pk, freq) VALUES (?, ?, ?, ?, ?)
				 ON CONFLICT(collection, field, token, pk) DO UPDATE SET freq = excluded.freq`,
				collection, field, token, pk, freq); err != nil {
				return fmt.Errorf("fulltext index %s.%s for %s: %w", collection, field, pk, err)
			}
		}
	case IndexVector:
		vec, ok := floatSlice(v)
		if !ok {
			return nil
		}
		body, err := marshalVector(vec)
		if err != nil {
			return fmt.Errorf("encode vector %s.%s for %s: %w", collection, field, pk, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO vectors (collection, field, pk, vec) VALUES (?, ?, ?, ?)
			 ON CONFLICT(collection, field, pk) DO UPDATE SET vec = excluded.vec`,
			collection, field, pk, body); err != nil {
			return fmt.Errorf("vector index %s.%s for %s: %w", collection, field, pk, err)
		}
	}
	return nil
}
