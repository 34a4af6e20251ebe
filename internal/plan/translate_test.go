package plan

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tessera/internal/aql"
)

func translate(t *testing.T, src string) *Translation {
	t.Helper()
	q, err := aql.Parse(src)
	require.NoError(t, err)
	tr, err := Translate(q)
	require.NoError(t, err)
	return tr
}

func translateErr(t *testing.T, src string) error {
	t.Helper()
	q, err := aql.Parse(src)
	require.NoError(t, err)
	_, err = Translate(q)
	require.Error(t, err)
	return err
}

func TestTranslate_Conjunctive(t *testing.T) {
	tr := translate(t, `FOR u IN users FILTER u.status == 'active' FILTER u.age >= 21 SORT u.age ASC LIMIT 2, 5 RETURN u.name`)

	conj, ok := tr.Plan.(*Conjunctive)
	require.True(t, ok)
	assert.Equal(t, "users", conj.Table)
	assert.Equal(t, "u", conj.Var)

	require.Len(t, conj.Predicates, 1)
	assert.Equal(t, EqPredicate{Column: "status", Value: "active"}, conj.Predicates[0])

	require.Len(t, conj.RangePredicates, 1)
	rp := conj.RangePredicates[0]
	assert.Equal(t, "age", rp.Column)
	require.NotNil(t, rp.Lower)
	assert.Equal(t, "21", *rp.Lower)
	assert.True(t, rp.IncludeLower)
	assert.Nil(t, rp.Upper)

	require.NotNil(t, conj.OrderBy)
	assert.Equal(t, "age", conj.OrderBy.Column)
	assert.False(t, conj.OrderBy.Desc)
	assert.Equal(t, int64(2), conj.OrderBy.Offset)
	assert.Equal(t, int64(7), conj.OrderBy.Limit, "fetch bound is offset plus count")
}

func TestTranslate_DefaultFetchLimit(t *testing.T) {
	tr := translate(t, `FOR u IN users SORT u.age DESC RETURN u`)

	conj := tr.Plan.(*Conjunctive)
	require.NotNil(t, conj.OrderBy)
	assert.True(t, conj.OrderBy.Desc)
	assert.Equal(t, int64(DefaultFetchLimit), conj.OrderBy.Limit)
}

func TestTranslate_DottedColumnPath(t *testing.T) {
	tr := translate(t, `FOR u IN users FILTER u.address.city == 'Oslo' RETURN u`)

	conj := tr.Plan.(*Conjunctive)
	require.Len(t, conj.Predicates, 1)
	assert.Equal(t, "address.city", conj.Predicates[0].Column)
}

func TestTranslate_NotEqualsRejected(t *testing.T) {
	err := translateErr(t, `FOR u IN users FILTER u.status != 'active' RETURN u`)

	var terr *TranslateError
	require.ErrorAs(t, err, &terr)
	assert.Contains(t, terr.Message, "!=")
}

func TestTranslate_Fulltext(t *testing.T) {
	tr := translate(t, `FOR a IN articles FILTER FULLTEXT(a.body, 'database systems', 50) RETURN a`)

	conj := tr.Plan.(*Conjunctive)
	require.NotNil(t, conj.Fulltext)
	assert.Equal(t, "body", conj.Fulltext.Column)
	assert.Equal(t, "database systems", conj.Fulltext.Query)
	assert.Equal(t, 50, conj.Fulltext.Limit)
}

func TestTranslate_FulltextDefaultLimit(t *testing.T) {
	tr := translate(t, `FOR a IN articles FILTER FULLTEXT(a.body, 'graph') RETURN a`)

	conj := tr.Plan.(*Conjunctive)
	require.NotNil(t, conj.Fulltext)
	assert.Equal(t, DefaultFulltextLimit, conj.Fulltext.Limit)
}

func TestTranslate_DisjunctCountIsProduct(t *testing.T) {
	// (a OR b) AND (c OR d OR e) must expand to 2 * 3 = 6 disjuncts.
	tr := translate(t, `FOR d IN t FILTER (d.a == 1 OR d.a == 2) AND (d.b == 1 OR d.b == 2 OR d.b == 3) RETURN d`)

	disj, ok := tr.Plan.(*Disjunctive)
	require.True(t, ok)
	assert.Len(t, disj.Disjuncts, 6)
	for _, c := range disj.Disjuncts {
		assert.Equal(t, "t", c.Table)
		assert.Len(t, c.Predicates, 2, "every disjunct carries one leaf from each OR group")
	}
}

func TestTranslate_SeparateFiltersAreConjoined(t *testing.T) {
	// Two FILTER clauses AND together before DNF, so an OR in each
	// multiplies: 2 * 2 = 4.
	tr := translate(t, `FOR d IN t FILTER d.a == 1 OR d.a == 2 FILTER d.b == 1 OR d.b == 2 RETURN d`)

	disj := tr.Plan.(*Disjunctive)
	assert.Len(t, disj.Disjuncts, 4)
}

func TestTranslate_XorExpandsLikeOr(t *testing.T) {
	tr := translate(t, `FOR d IN t FILTER d.a == 1 XOR d.a == 2 RETURN d`)

	disj := tr.Plan.(*Disjunctive)
	assert.Len(t, disj.Disjuncts, 2)
}

func TestTranslate_SimilarityKPrecedence(t *testing.T) {
	t.Run("explicit k wins over LIMIT", func(t *testing.T) {
		tr := translate(t, `FOR d IN docs SORT SIMILARITY(d.vec, [0.1, 0.2], 7) LIMIT 3 RETURN d`)
		vg := tr.Plan.(*VectorGeo)
		assert.Equal(t, 7, vg.K)
	})
	t.Run("LIMIT applies without explicit k", func(t *testing.T) {
		tr := translate(t, `FOR d IN docs SORT SIMILARITY(d.vec, [0.1, 0.2]) LIMIT 5 RETURN d`)
		vg := tr.Plan.(*VectorGeo)
		assert.Equal(t, 5, vg.K)
	})
	t.Run("default without either", func(t *testing.T) {
		tr := translate(t, `FOR d IN docs SORT SIMILARITY(d.vec, [0.1, 0.2]) RETURN d`)
		vg := tr.Plan.(*VectorGeo)
		assert.Equal(t, DefaultK, vg.K)
	})
}

func TestTranslate_SimilarityArity(t *testing.T) {
	err := translateErr(t, `FOR d IN docs SORT SIMILARITY(d.vec) RETURN d`)
	assert.Contains(t, err.Error(), "requires 2-3 arguments")
}

func TestTranslate_SimilarityVectorMustBeArrayLiteral(t *testing.T) {
	err := translateErr(t, `FOR d IN docs SORT SIMILARITY(d.vec, d.other) RETURN d`)
	assert.Contains(t, err.Error(), "array literal")
}

func TestTranslate_VectorGeoSpatialAndExtras(t *testing.T) {
	tr := translate(t, `FOR d IN places FILTER ST_WITHIN(d.loc, [10.0, 59.0, 11.0, 60.0]) AND d.open == true SORT SIMILARITY(d.vec, [0.5, 0.5], 4) RETURN d`)

	vg := tr.Plan.(*VectorGeo)
	assert.Equal(t, []float64{0.5, 0.5}, vg.QueryVector)
	assert.Equal(t, "vec", vg.VectorField)

	require.NotNil(t, vg.Spatial)
	assert.Equal(t, &BBox{Field: "loc", West: 10, South: 59, East: 11, North: 60}, vg.Spatial)

	// Non-spatial conjuncts are kept for executor-side prefiltering.
	require.Len(t, vg.ExtraFilters, 1)
}

func TestTranslate_Proximity(t *testing.T) {
	tr := translate(t, `FOR h IN hotels FILTER FULLTEXT(h.description, 'sauna') SORT PROXIMITY(h.location, [10.75, 59.91]) RETURN h`)

	conj := tr.Plan.(*Conjunctive)
	require.NotNil(t, conj.Fulltext)
	require.NotNil(t, conj.Proximity)
	assert.Equal(t, "location", conj.Proximity.Column)
	assert.Equal(t, 10.75, conj.Proximity.Lon)
	assert.Equal(t, 59.91, conj.Proximity.Lat)
	assert.False(t, conj.Proximity.Desc)
	assert.Nil(t, conj.OrderBy, "PROXIMITY sorting does not produce a column order")
}

func TestTranslate_MultiForBecomesJoin(t *testing.T) {
	tr := translate(t, `FOR u IN users FOR o IN orders FILTER u._key == o.user_id RETURN DISTINCT u.name`)

	j, ok := tr.Plan.(*Join)
	require.True(t, ok)
	assert.Len(t, j.Fors, 2)
	assert.True(t, j.Return.Distinct)
}

func TestTranslate_LetForcesJoinPath(t *testing.T) {
	tr := translate(t, `FOR u IN users LET n = u.name RETURN n`)

	j, ok := tr.Plan.(*Join)
	require.True(t, ok)
	require.Len(t, j.Lets, 1)
	assert.Equal(t, "n", j.Lets[0].Variable)
}

func TestTranslate_CollectForcesJoinPath(t *testing.T) {
	tr := translate(t, `FOR o IN orders COLLECT city = o.city AGGREGATE total = SUM(o.amount) RETURN {city: city, total: total}`)

	j, ok := tr.Plan.(*Join)
	require.True(t, ok)
	require.NotNil(t, j.Collect)
}

func TestTranslate_WindowForcesJoinPath(t *testing.T) {
	tr := translate(t, `FOR s IN sales RETURN {n: ROW_NUMBER() OVER (PARTITION BY s.region ORDER BY s.amount DESC)}`)

	j, ok := tr.Plan.(*Join)
	require.True(t, ok)
	require.NotNil(t, j.Return)
}

func TestTranslate_WindowWithOrFilterStaysJoin(t *testing.T) {
	// Window queries skip DNF expansion; the join path evaluates OR
	// conditions directly.
	tr := translate(t, `FOR s IN sales FILTER s.region == 'east' OR s.region == 'west' RETURN RANK() OVER (ORDER BY s.amount)`)

	_, ok := tr.Plan.(*Join)
	require.True(t, ok)
}

func TestTranslate_WindowPlacementErrors(t *testing.T) {
	cases := []struct {
		name    string
		src     string
		message string
	}{
		{"filter", `FOR s IN sales FILTER RANK() OVER (ORDER BY s.amount) > 1 RETURN s`, "not allowed in FILTER"},
		{"let", `FOR s IN sales LET r = RANK() OVER (ORDER BY s.amount) RETURN r`, "not allowed in LET"},
		{"sort", `FOR s IN sales SORT RANK() OVER (ORDER BY s.amount) RETURN s`, "not allowed in SORT"},
		{"collect", `FOR s IN sales COLLECT r = RANK() OVER (ORDER BY s.amount) RETURN r`, "not allowed in COLLECT"},
		{"traversal", `FOR v IN 1..2 OUTBOUND 'a' GRAPH 'g' RETURN ROW_NUMBER() OVER (ORDER BY v.name)`, "not supported in graph traversals"},
		{"similarity", `FOR d IN docs SORT SIMILARITY(d.vec, [0.1, 0.2]) RETURN RANK() OVER (ORDER BY d.score)`, "cannot be combined with SIMILARITY"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := translateErr(t, tc.src)
			assert.Contains(t, err.Error(), tc.message)
		})
	}
}

func TestTranslate_Traversal(t *testing.T) {
	tr := translate(t, `FOR v, e, p IN 1..2 OUTBOUND 'user1' GRAPH 'social' FILTER e.type == 'follows' RETURN v`)

	tv, ok := tr.Plan.(*Traversal)
	require.True(t, ok)
	assert.Equal(t, 1, tv.MinDepth)
	assert.Equal(t, 2, tv.MaxDepth)
	assert.Equal(t, aql.DirectionOutbound, tv.Direction)
	assert.Equal(t, "user1", tv.StartVertex)
	assert.Equal(t, "social", tv.GraphName)
	assert.Len(t, tv.Filters, 1)
}

func TestTranslate_WithCTEs(t *testing.T) {
	tr := translate(t, `WITH cheap AS (FOR h IN hotels FILTER h.price < 100 RETURN h) FOR d IN cheap FILTER d.stars == 4 RETURN d`)

	require.Len(t, tr.CTEs, 1)
	assert.Equal(t, "cheap", tr.CTEs[0].Name)

	sub, ok := tr.CTEs[0].Result.Plan.(*Conjunctive)
	require.True(t, ok)
	assert.Equal(t, "hotels", sub.Table)

	main := tr.Plan.(*Conjunctive)
	assert.Equal(t, "cheap", main.Table, "the main query scans the CTE as a collection")
}

func TestTranslate_NestedWithCTE(t *testing.T) {
	tr := translate(t, `WITH outer AS (WITH inner AS (FOR x IN xs RETURN x) FOR y IN inner RETURN y) FOR d IN outer RETURN d`)

	require.Len(t, tr.CTEs, 1)
	inner := tr.CTEs[0].Result
	require.Len(t, inner.CTEs, 1)
	assert.Equal(t, "inner", inner.CTEs[0].Name)
}

func TestTranslate_CTEErrorNamesTheCTE(t *testing.T) {
	err := translateErr(t, `WITH bad AS (FOR h IN hotels FILTER h.price != 100 RETURN h) FOR d IN bad RETURN d`)
	assert.Contains(t, err.Error(), `CTE "bad"`)
}

func TestTranslate_Idempotence(t *testing.T) {
	queries := []string{
		`FOR u IN users FILTER u.status == 'active' AND u.age > 30 SORT u.age DESC LIMIT 10 RETURN u`,
		`FOR d IN t FILTER (d.a == 1 OR d.a == 2) AND d.b == 3 RETURN d`,
		`FOR d IN docs SORT SIMILARITY(d.vec, [0.1, 0.2], 5) RETURN d`,
		`FOR v, e IN 1..3 ANY 'n1' GRAPH 'g' RETURN v`,
		`WITH t AS (FOR h IN hotels RETURN h) FOR d IN t RETURN d`,
	}
	for _, src := range queries {
		q, err := aql.Parse(src)
		require.NoError(t, err)
		first, err := Translate(q)
		require.NoError(t, err)
		second, err := Translate(q)
		require.NoError(t, err)
		assert.True(t, reflect.DeepEqual(first, second), "repeated translation must be structurally identical: %s", src)
	}
}

func TestExtractColumnName(t *testing.T) {
	q, err := aql.Parse(`FOR d IN t RETURN d.address.geo.lat`)
	require.NoError(t, err)
	assert.Equal(t, "address.geo.lat", ExtractColumnName(q.Return.Expr))

	assert.Equal(t, "", ExtractColumnName(&aql.VariableExpr{Name: "d"}))
}

func TestLiteralString(t *testing.T) {
	assert.Equal(t, "null", LiteralString(nil))
	assert.Equal(t, "true", LiteralString(true))
	assert.Equal(t, "42", LiteralString(int64(42)))
	assert.Equal(t, "3.5", LiteralString(3.5))
	assert.Equal(t, "abc", LiteralString("abc"))
}
