package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/roach88/tessera/internal/engine"
)

// The read side implements the query engine's collaborator interfaces:
// engine.Index, engine.Graph, engine.Vector, and engine.Rows. All four
// are backed by the same SQLite database, so one Store can serve as
// every collaborator of one engine.

// Load returns the document fields for one key.
func (s *Store) Load(ctx context.Context, table, pk string) (map[string]any, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection = ? AND pk = ?`, table, pk).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("document %s/%s not found", table, pk)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s/%s: %w", table, pk, err)
	}
	return unmarshalBody(body)
}

// ScanTable returns every key of a collection in ascending order.
func (s *Store) ScanTable(ctx context.Context, table string) ([]string, error) {
	return s.stringColumn(ctx,
		`SELECT pk FROM documents WHERE collection = ? ORDER BY pk`, table)
}

// ScanEquality returns the keys whose indexed field equals value, in
// ascending key order. Numeric values match through the numeric shadow
// column so "20" and "20.0" are the same key.
func (s *Store) ScanEquality(ctx context.Context, table, field, value string) ([]string, error) {
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return s.stringColumn(ctx,
			`SELECT pk FROM field_index WHERE collection = ? AND field = ? AND num = ? ORDER BY pk`,
			table, field, f)
	}
	return s.stringColumn(ctx,
		`SELECT pk FROM field_index WHERE collection = ? AND field = ? AND value = ? ORDER BY pk`,
		table, field, value)
}

// ScanRange returns keys whose field falls within the bounds, ordered by
// field value with ties broken by ascending key. Bounds that parse as
// numbers compare numerically, everything else lexicographically.
func (s *Store) ScanRange(ctx context.Context, table, field string, lower, upper *string, incLower, incUpper bool, limit int, reverse bool) ([]string, error) {
	numeric := true
	for _, b := range []*string{lower, upper} {
		if b == nil {
			continue
		}
		if _, err := strconv.ParseFloat(*b, 64); err != nil {
			numeric = false
		}
	}

	col := "value"
	if numeric {
		col = "num"
	}

	var sb strings.Builder
	args := []any{table, field}
	sb.WriteString(`SELECT pk FROM field_index WHERE collection = ? AND field = ?`)
	if numeric {
		sb.WriteString(` AND num IS NOT NULL`)
	}
	appendBound := func(b *string, op string) error {
		if b == nil {
			return nil
		}
		sb.WriteString(fmt.Sprintf(" AND %s %s ?", col, op))
		if numeric {
			f, err := strconv.ParseFloat(*b, 64)
			if err != nil {
				return err
			}
			args = append(args, f)
		} else {
			args = append(args, *b)
		}
		return nil
	}
	lowerOp, upperOp := ">", "<"
	if incLower {
		lowerOp = ">="
	}
	if incUpper {
		upperOp = "<="
	}
	if err := appendBound(lower, lowerOp); err != nil {
		return nil, fmt.Errorf("range lower bound: %w", err)
	}
	if err := appendBound(upper, upperOp); err != nil {
		return nil, fmt.Errorf("range upper bound: %w", err)
	}

	dir := "ASC"
	if reverse {
		dir = "DESC"
	}
	sb.WriteString(fmt.Sprintf(" ORDER BY %s %s, pk ASC", col, dir))
	if limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, limit)
	}

	return s.stringColumn(ctx, sb.String(), args...)
}

// ScanFulltext matches documents containing every query token, scored
// by total term frequency, best first with ties broken by key.
func (s *Store) ScanFulltext(ctx context.Context, table, field, query string, limit int) ([]engine.ScoredKey, error) {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return nil, nil
	}
	ordered := make([]string, 0, len(tokens))
	for token := range tokens {
		ordered = append(ordered, token)
	}
	sort.Strings(ordered)

	placeholders := make([]string, 0, len(ordered))
	args := []any{table, field}
	for _, token := range ordered {
		placeholders = append(placeholders, "?")
		args = append(args, token)
	}
	args = append(args, len(ordered))

	q := fmt.Sprintf(
		`SELECT pk, SUM(freq) AS score
		 FROM fulltext_index
		 WHERE collection = ? AND field = ? AND token IN (%s)
		 GROUP BY pk
		 HAVING COUNT(DISTINCT token) = ?
		 ORDER BY score DESC, pk ASC`,
		strings.Join(placeholders, ", "))
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("fulltext scan %s.%s: %w", table, field, err)
	}
	defer rows.Close()

	var out []engine.ScoredKey
	for rows.Next() {
		var sk engine.ScoredKey
		if err := rows.Scan(&sk.PK, &sk.Score); err != nil {
			return nil, fmt.Errorf("scan fulltext row: %w", err)
		}
		out = append(out, sk)
	}
	return out, rows.Err()
}

// HasEqualityIndex reports whether an equality index covers the field.
func (s *Store) HasEqualityIndex(ctx context.Context, table, field string) (bool, error) {
	return s.hasIndex(ctx, table, field, IndexEquality)
}

// HasRangeIndex reports whether a range index covers the field.
func (s *Store) HasRangeIndex(ctx context.Context, table, field string) (bool, error) {
	return s.hasIndex(ctx, table, field, IndexRange)
}

func (s *Store) hasIndex(ctx context.Context, table, field string, kind IndexKind) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM index_specs WHERE collection = ? AND field = ? AND kind = ?`,
		table, field, string(kind)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check index %s.%s: %w", table, field, err)
	}
	return n > 0, nil
}

// EstimateEquality returns the expected match count of an equality
// predicate, or -1 when no index covers the column.
func (s *Store) EstimateEquality(ctx context.Context, table, field, value string) (int, error) {
	ok, err := s.hasIndex(ctx, table, field, IndexEquality)
	if err != nil {
		return 0, err
	}
	if !ok {
		return -1, nil
	}
	keys, err := s.ScanEquality(ctx, table, field, value)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// OutEdges returns the edges leaving pk, in edge key order.
func (s *Store) OutEdges(ctx context.Context, graph, pk string) ([]engine.Edge, error) {
	return s.edgeQuery(ctx,
		`SELECT pk, from_pk, to_pk, body FROM edges WHERE graph = ? AND from_pk = ? ORDER BY pk`,
		graph, pk)
}

// InEdges returns the edges entering pk, in edge key order.
func (s *Store) InEdges(ctx context.Context, graph, pk string) ([]engine.Edge, error) {
	return s.edgeQuery(ctx,
		`SELECT pk, from_pk, to_pk, body FROM edges WHERE graph = ? AND to_pk = ? ORDER BY pk`,
		graph, pk)
}

// Vertex loads a vertex document by primary key, searching across
// collections. Returns nil without error when no document has the key.
func (s *Store) Vertex(ctx context.Context, pk string) (map[string]any, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE pk = ? ORDER BY collection LIMIT 1`, pk).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load vertex %s: %w", pk, err)
	}
	return unmarshalBody(body)
}

// SearchKNN ranks stored vectors by cosine distance to the query,
// closest first with ties broken by key. The scan is exact; every
// stored vector of the field is compared.
func (s *Store) SearchKNN(ctx context.Context, table, field string, query []float64, k int, whitelist []string) ([]engine.Match, error) {
	if k <= 0 {
		return nil, nil
	}
	var allowed map[string]bool
	if whitelist != nil {
		allowed = make(map[string]bool, len(whitelist))
		for _, pk := range whitelist {
			allowed[pk] = true
		}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT pk, vec FROM vectors WHERE collection = ? AND field = ? ORDER BY pk`, table, field)
	if err != nil {
		return nil, fmt.Errorf("vector scan %s.%s: %w", table, field, err)
	}
	defer rows.Close()

	var matches []engine.Match
	for rows.Next() {
		var pk, body string
		if err := rows.Scan(&pk, &body); err != nil {
			return nil, fmt.Errorf("scan vector row: %w", err)
		}
		if allowed != nil && !allowed[pk] {
			continue
		}
		vec, err := unmarshalVector(body)
		if err != nil {
			return nil, fmt.Errorf("vector %s/%s: %w", table, pk, err)
		}
		if len(vec) != len(query) {
			continue
		}
		matches = append(matches, engine.Match{PK: pk, Distance: cosineDistance(query, vec)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].PK < matches[j].PK
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (s *Store) edgeQuery(ctx context.Context, query string, args ...any) ([]engine.Edge, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("edge scan: %w", err)
	}
	defer rows.Close()

	var out []engine.Edge
	for rows.Next() {
		var e engine.Edge
		var body string
		if err := rows.Scan(&e.PK, &e.From, &e.To, &body); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		fields, err := unmarshalBody(body)
		if err != nil {
			return nil, fmt.Errorf("decode edge %s: %w", e.PK, err)
		}
		e.Fields = fields
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) stringColumn(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// cosineDistance is 1 - cosine similarity. Zero-magnitude vectors are
// maximally distant rather than dividing by zero.
func cosineDistance(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
