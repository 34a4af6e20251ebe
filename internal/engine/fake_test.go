package engine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/roach88/tessera/internal/plan"
)

// fakeStore is an in-memory implementation of all four collaborator
// interfaces, good enough to drive the executor in tests.
type fakeStore struct {
	docs    map[string]map[string]map[string]any
	indexed map[string]bool
	ftIdx   map[string]bool
	vecs    map[string]map[string][]float64
	edges   map[string][]Edge
}

func newFake() *fakeStore {
	return &fakeStore{
		docs:    map[string]map[string]map[string]any{},
		indexed: map[string]bool{},
		ftIdx:   map[string]bool{},
		vecs:    map[string]map[string][]float64{},
		edges:   map[string][]Edge{},
	}
}

func (f *fakeStore) put(table, pk string, doc map[string]any) {
	if f.docs[table] == nil {
		f.docs[table] = map[string]map[string]any{}
	}
	f.docs[table][pk] = doc
}

func (f *fakeStore) index(table, field string) {
	f.indexed[table+"."+field] = true
}

func (f *fakeStore) indexFulltext(table, field string) {
	f.ftIdx[table+"."+field] = true
}

func (f *fakeStore) putVector(table, field, pk string, vec []float64) {
	key := table + "." + field
	if f.vecs[key] == nil {
		f.vecs[key] = map[string][]float64{}
	}
	f.vecs[key][pk] = vec
}

func (f *fakeStore) addEdge(graph, pk, from, to string, fields map[string]any) {
	f.edges[graph] = append(f.edges[graph], Edge{PK: pk, From: from, To: to, Fields: fields})
}

func (f *fakeStore) engine() *Engine {
	return New(f, f, f, f, Options{})
}

// Index implementation.

func (f *fakeStore) ScanEquality(_ context.Context, table, field, value string) ([]string, error) {
	var keys []string
	for pk, doc := range f.docs[table] {
		v := fieldValue(doc, field)
		if v == nil {
			continue
		}
		if compareScalarStrings(plan.LiteralString(v), value) == 0 {
			keys = append(keys, pk)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (f *fakeStore) ScanRange(_ context.Context, table, field string, lower, upper *string, incLower, incUpper bool, limit int, reverse bool) ([]string, error) {
	type entry struct {
		pk  string
		val string
	}
	var entries []entry
	for pk, doc := range f.docs[table] {
		v := fieldValue(doc, field)
		if v == nil {
			continue
		}
		s := plan.LiteralString(v)
		if lower != nil {
			cmp := compareScalarStrings(s, *lower)
			if cmp < 0 || (cmp == 0 && !incLower) {
				continue
			}
		}
		if upper != nil {
			cmp := compareScalarStrings(s, *upper)
			if cmp > 0 || (cmp == 0 && !incUpper) {
				continue
			}
		}
		entries = append(entries, entry{pk: pk, val: s})
	}
	sort.Slice(entries, func(i, j int) bool {
		cmp := compareScalarStrings(entries[i].val, entries[j].val)
		if cmp != 0 {
			if reverse {
				return cmp > 0
			}
			return cmp < 0
		}
		return entries[i].pk < entries[j].pk
	})
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.pk)
	}
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	return keys, nil
}

func (f *fakeStore) ScanFulltext(_ context.Context, table, field, query string, limit int) ([]ScoredKey, error) {
	if !f.ftIdx[table+"."+field] {
		return nil, fmt.Errorf("no fulltext index on %s.%s", table, field)
	}
	terms := strings.Fields(strings.ToLower(query))
	var matches []ScoredKey
	for pk, doc := range f.docs[table] {
		text, _ := fieldValue(doc, field).(string)
		words := strings.Fields(strings.ToLower(text))
		score := 0.0
		hit := map[string]bool{}
		for _, w := range words {
			for _, term := range terms {
				if w == term {
					score++
					hit[term] = true
				}
			}
		}
		if len(hit) == len(terms) && len(terms) > 0 {
			matches = append(matches, ScoredKey{PK: pk, Score: score})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].PK < matches[j].PK
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (f *fakeStore) HasEqualityIndex(_ context.Context, table, field string) (bool, error) {
	return f.indexed[table+"."+field], nil
}

func (f *fakeStore) HasRangeIndex(_ context.Context, table, field string) (bool, error) {
	return f.indexed[table+"."+field], nil
}

func (f *fakeStore) EstimateEquality(ctx context.Context, table, field, value string) (int, error) {
	if !f.indexed[table+"."+field] {
		return -1, nil
	}
	keys, _ := f.ScanEquality(ctx, table, field, value)
	return len(keys), nil
}

// Graph implementation.

func (f *fakeStore) OutEdges(_ context.Context, graph, pk string) ([]Edge, error) {
	return f.filterEdges(graph, func(e Edge) bool { return e.From == pk }), nil
}

func (f *fakeStore) InEdges(_ context.Context, graph, pk string) ([]Edge, error) {
	return f.filterEdges(graph, func(e Edge) bool { return e.To == pk }), nil
}

func (f *fakeStore) filterEdges(graph string, keep func(Edge) bool) []Edge {
	var out []Edge
	for _, e := range f.edges[graph] {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PK < out[j].PK })
	return out
}

func (f *fakeStore) Vertex(_ context.Context, pk string) (map[string]any, error) {
	for _, table := range f.docs {
		if doc, ok := table[pk]; ok {
			return withKey(doc, pk), nil
		}
	}
	return nil, nil
}

// Vector implementation.

func (f *fakeStore) SearchKNN(_ context.Context, table, field string, query []float64, k int, whitelist []string) ([]Match, error) {
	var allow map[string]bool
	if whitelist != nil {
		allow = make(map[string]bool, len(whitelist))
		for _, pk := range whitelist {
			allow[pk] = true
		}
	}
	var matches []Match
	for pk, vec := range f.vecs[table+"."+field] {
		if allow != nil && !allow[pk] {
			continue
		}
		matches = append(matches, Match{PK: pk, Distance: cosineDist(query, vec)})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].PK < matches[j].PK
	})
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func cosineDist(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		if i >= len(b) {
			break
		}
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// Rows implementation.

func (f *fakeStore) Load(_ context.Context, table, pk string) (map[string]any, error) {
	doc, ok := f.docs[table][pk]
	if !ok {
		return nil, fmt.Errorf("document %s/%s not found", table, pk)
	}
	return withKey(doc, pk), nil
}

func (f *fakeStore) ScanTable(_ context.Context, table string) ([]string, error) {
	keys := make([]string, 0, len(f.docs[table]))
	for pk := range f.docs[table] {
		keys = append(keys, pk)
	}
	sort.Strings(keys)
	return keys, nil
}

func withKey(doc map[string]any, pk string) map[string]any {
	out := make(map[string]any, len(doc)+1)
	for k, v := range doc {
		out[k] = v
	}
	out["_key"] = pk
	return out
}
