package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestOpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	st, err := Open(path)
	require.NoError(t, err)

	_, err = st.PutDocument(context.Background(), "users", map[string]any{"_key": "u1", "name": "Alice"})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st2, err := Open(path)
	require.NoError(t, err)
	defer st2.Close()

	doc, err := st2.Load(context.Background(), "users", "u1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", doc["name"])
}

func TestPutDocumentRoundtrip(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()

	pk, err := st.PutDocument(ctx, "users", map[string]any{
		"_key": "u1",
		"name": "Alice",
		"age":  float64(34),
		"tags": []any{"a", "b"},
	})
	require.NoError(t, err)
	assert.Equal(t, "u1", pk)

	doc, err := st.Load(ctx, "users", "u1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", doc["name"])
	assert.Equal(t, float64(34), doc["age"])
	assert.Equal(t, []any{"a", "b"}, doc["tags"])
	assert.Equal(t, "u1", doc["_key"])
}

func TestPutDocumentGeneratesKey(t *testing.T) {
	st := openTest(t)

	pk, err := st.PutDocument(context.Background(), "users", map[string]any{"name": "NoKey"})
	require.NoError(t, err)
	assert.Len(t, pk, 36, "generated keys are UUIDs")

	doc, err := st.Load(context.Background(), "users", pk)
	require.NoError(t, err)
	assert.Equal(t, pk, doc["_key"])
}

func TestPutDocumentNormalizesToNFC(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()

	// Decomposed e + combining acute is stored precomposed.
	_, err := st.PutDocument(ctx, "places", map[string]any{"_key": "p1", "name": "Café"})
	require.NoError(t, err)

	doc, err := st.Load(ctx, "places", "p1")
	require.NoError(t, err)
	assert.Equal(t, "Café", doc["name"])
}

func TestLoadMissingDocument(t *testing.T) {
	st := openTest(t)

	_, err := st.Load(context.Background(), "users", "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestScanTable(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	for _, pk := range []string{"b", "c", "a"} {
		_, err := st.PutDocument(ctx, "users", map[string]any{"_key": pk})
		require.NoError(t, err)
	}

	keys, err := st.ScanTable(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, keys)
}

func TestScanEqualityMatchesNumericRepresentations(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	require.NoError(t, st.CreateIndex(ctx, "users", "age", IndexEquality))

	for pk, age := range map[string]any{
		"u1": float64(20),
		"u2": "20",
		"u3": float64(20.0),
		"u4": float64(30),
	} {
		_, err := st.PutDocument(ctx, "users", map[string]any{"_key": pk, "age": age})
		require.NoError(t, err)
	}

	keys, err := st.ScanEquality(ctx, "users", "age", "20")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2", "u3"}, keys, "numeric representations of 20 all match")

	keys, err = st.ScanEquality(ctx, "users", "age", "30")
	require.NoError(t, err)
	assert.Equal(t, []string{"u4"}, keys)
}

func TestScanEqualityStringValues(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	require.NoError(t, st.CreateIndex(ctx, "users", "status", IndexEquality))

	for pk, status := range map[string]string{"u1": "active", "u2": "inactive", "u3": "active"} {
		_, err := st.PutDocument(ctx, "users", map[string]any{"_key": pk, "status": status})
		require.NoError(t, err)
	}

	keys, err := st.ScanEquality(ctx, "users", "status", "active")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u3"}, keys)
}

func TestScanRangeOrdersNumerically(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	require.NoError(t, st.CreateIndex(ctx, "items", "price", IndexRange))

	for pk, price := range map[string]float64{"i1": 30, "i2": 2, "i3": 10} {
		_, err := st.PutDocument(ctx, "items", map[string]any{"_key": pk, "price": price})
		require.NoError(t, err)
	}

	lower := "5"
	keys, err := st.ScanRange(ctx, "items", "price", &lower, nil, true, false, 0, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"i3", "i1"}, keys, "10 sorts before 30 numerically, not lexically")

	keys, err = st.ScanRange(ctx, "items", "price", nil, nil, false, false, 2, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"i1", "i3"}, keys, "reverse order with limit")
}

func TestScanRangeBoundInclusivity(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	require.NoError(t, st.CreateIndex(ctx, "items", "price", IndexRange))

	for pk, price := range map[string]float64{"i1": 10, "i2": 20, "i3": 30} {
		_, err := st.PutDocument(ctx, "items", map[string]any{"_key": pk, "price": price})
		require.NoError(t, err)
	}

	lower, upper := "10", "30"
	incl, err := st.ScanRange(ctx, "items", "price", &lower, &upper, true, true, 0, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"i1", "i2", "i3"}, incl)

	excl, err := st.ScanRange(ctx, "items", "price", &lower, &upper, false, false, 0, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"i2"}, excl)
}

func TestScanFulltext(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	require.NoError(t, st.CreateIndex(ctx, "articles", "body", IndexFulltext))

	docs := map[string]string{
		"a1": "database systems and database design",
		"a2": "a database primer",
		"a3": "cooking for beginners",
	}
	for pk, body := range docs {
		_, err := st.PutDocument(ctx, "articles", map[string]any{"_key": pk, "body": body})
		require.NoError(t, err)
	}

	matches, err := st.ScanFulltext(ctx, "articles", "body", "database", 0)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a1", matches[0].PK, "higher term frequency ranks first")
	assert.Equal(t, float64(2), matches[0].Score)
	assert.Equal(t, "a2", matches[1].PK)

	// Every token must match.
	matches, err = st.ScanFulltext(ctx, "articles", "body", "database design", 0)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "a1", matches[0].PK)

	matches, err = st.ScanFulltext(ctx, "articles", "body", "database", 1)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestCreateIndexBackfillsExistingDocuments(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()

	for pk, status := range map[string]string{"u1": "active", "u2": "inactive"} {
		_, err := st.PutDocument(ctx, "users", map[string]any{"_key": pk, "status": status})
		require.NoError(t, err)
	}

	require.NoError(t, st.CreateIndex(ctx, "users", "status", IndexEquality))

	keys, err := st.ScanEquality(ctx, "users", "status", "active")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, keys)
}

func TestCreateIndexRejectsUnknownKind(t *testing.T) {
	st := openTest(t)

	err := st.CreateIndex(context.Background(), "users", "status", IndexKind("btree"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown index kind")
}

func TestUpdateReindexesDocument(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	require.NoError(t, st.CreateIndex(ctx, "users", "status", IndexEquality))

	_, err := st.PutDocument(ctx, "users", map[string]any{"_key": "u1", "status": "active"})
	require.NoError(t, err)
	_, err = st.PutDocument(ctx, "users", map[string]any{"_key": "u1", "status": "inactive"})
	require.NoError(t, err)

	active, err := st.ScanEquality(ctx, "users", "status", "active")
	require.NoError(t, err)
	assert.Empty(t, active, "stale entries are dropped on rewrite")

	inactive, err := st.ScanEquality(ctx, "users", "status", "inactive")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, inactive)
}

func TestHasIndexAndEstimate(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	require.NoError(t, st.CreateIndex(ctx, "users", "status", IndexEquality))
	require.NoError(t, st.CreateIndex(ctx, "users", "age", IndexRange))

	_, err := st.PutDocument(ctx, "users", map[string]any{"_key": "u1", "status": "active"})
	require.NoError(t, err)

	ok, err := st.HasEqualityIndex(ctx, "users", "status")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = st.HasEqualityIndex(ctx, "users", "age")
	require.NoError(t, err)
	assert.False(t, ok, "a range index does not answer equality coverage")

	ok, err = st.HasRangeIndex(ctx, "users", "age")
	require.NoError(t, err)
	assert.True(t, ok)

	n, err := st.EstimateEquality(ctx, "users", "status", "active")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = st.EstimateEquality(ctx, "users", "name", "x")
	require.NoError(t, err)
	assert.Equal(t, -1, n, "unindexed columns report -1")
}

func TestEdges(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()

	require.NoError(t, st.PutEdge(ctx, "social", "e2", "user1", "user3", map[string]any{"type": "follows"}))
	require.NoError(t, st.PutEdge(ctx, "social", "e1", "user1", "user2", map[string]any{"type": "follows"}))
	require.NoError(t, st.PutEdge(ctx, "social", "e3", "user2", "user1", nil))

	out, err := st.OutEdges(ctx, "social", "user1")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "e1", out[0].PK, "edges come back in key order")
	assert.Equal(t, "user2", out[0].To)
	assert.Equal(t, "follows", out[0].Fields["type"])

	in, err := st.InEdges(ctx, "social", "user1")
	require.NoError(t, err)
	require.Len(t, in, 1)
	assert.Equal(t, "e3", in[0].PK)
	assert.Equal(t, "user2", in[0].From)
}

func TestVertex(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()

	_, err := st.PutDocument(ctx, "people", map[string]any{"_key": "user1", "name": "Alice"})
	require.NoError(t, err)

	v, err := st.Vertex(ctx, "user1")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "Alice", v["name"])

	v, err = st.Vertex(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, v, "a missing vertex is nil, not an error")
}

func TestSearchKNN(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()
	require.NoError(t, st.CreateIndex(ctx, "docs", "vec", IndexVector))

	vectors := map[string][]any{
		"d1": {float64(1), float64(0)},
		"d2": {float64(0.9), float64(0.1)},
		"d3": {float64(0), float64(1)},
	}
	for pk, vec := range vectors {
		_, err := st.PutDocument(ctx, "docs", map[string]any{"_key": pk, "vec": vec})
		require.NoError(t, err)
	}

	matches, err := st.SearchKNN(ctx, "docs", "vec", []float64{1, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "d1", matches[0].PK)
	assert.InDelta(t, 0, matches[0].Distance, 1e-9)
	assert.Equal(t, "d2", matches[1].PK)

	matches, err = st.SearchKNN(ctx, "docs", "vec", []float64{1, 0}, 2, []string{"d3"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "d3", matches[0].PK, "the whitelist restricts candidates")
}

func TestCollections(t *testing.T) {
	st := openTest(t)
	ctx := context.Background()

	_, err := st.PutDocument(ctx, "users", map[string]any{"_key": "u1"})
	require.NoError(t, err)
	_, err = st.PutDocument(ctx, "articles", map[string]any{"_key": "a1"})
	require.NoError(t, err)

	names, err := st.Collections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"articles", "users"}, names)
}
