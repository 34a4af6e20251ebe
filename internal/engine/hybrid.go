package engine

import (
	"context"
	"math"

	"github.com/roach88/tessera/internal/optimize"
	"github.com/roach88/tessera/internal/plan"
)

// executeVectorGeo runs the hybrid similarity plan. The access order is
// decided by the cost model: vector-first overfetches the KNN search
// and discards candidates outside the bounding box, spatial-first
// collects the bbox survivors and ranks only those by vector distance.
// Either way extra non-spatial filters narrow the candidate whitelist
// before the index is consulted.
func (r *runtime) executeVectorGeo(ctx context.Context, v *plan.VectorGeo, decision optimize.Decision) ([]any, error) {
	if v.Return == nil {
		return nil, NewTranslateError(errMissingReturn)
	}

	whitelist, err := r.prefilterKeys(ctx, v)
	if err != nil {
		return nil, err
	}
	if whitelist != nil && len(whitelist) == 0 {
		return []any{}, nil
	}

	var matches []Match
	switch decision.Plan {
	case optimize.SpatialFirst:
		matches, err = r.spatialFirst(ctx, v, whitelist)
	default:
		matches, err = r.vectorFirst(ctx, v, whitelist)
	}
	if err != nil {
		return nil, err
	}

	out := make([]any, 0, len(matches))
	for _, m := range matches {
		doc, lerr := r.load(ctx, v.Table, m.PK)
		if lerr != nil {
			return nil, lerr
		}
		env := map[string]any{v.Var: doc}
		row, perr := evalExpr(env, v.Return.Expr, nil)
		if perr != nil {
			return nil, perr
		}
		out = append(out, row)
	}
	return out, nil
}

// prefilterKeys evaluates the extra non-spatial filters over the
// collection and returns the surviving keys, or nil when the plan has
// no extra filters and every key is a candidate.
func (r *runtime) prefilterKeys(ctx context.Context, v *plan.VectorGeo) ([]string, error) {
	if len(v.ExtraFilters) == 0 {
		return nil, nil
	}
	keys, err := r.allTableKeys(ctx, v.Table)
	if err != nil {
		return nil, err
	}
	survivors := make([]string, 0, len(keys))
	for _, pk := range keys {
		doc, lerr := r.load(ctx, v.Table, pk)
		if lerr != nil {
			return nil, lerr
		}
		env := map[string]any{v.Var: doc}
		keep := true
		for _, f := range v.ExtraFilters {
			ok, eerr := evalExpr(env, f, nil)
			if eerr != nil {
				return nil, eerr
			}
			if !truthy(ok) {
				keep = false
				break
			}
		}
		if keep {
			survivors = append(survivors, pk)
		}
	}
	return survivors, nil
}

func (r *runtime) vectorFirst(ctx context.Context, v *plan.VectorGeo, whitelist []string) ([]Match, error) {
	fetch := v.K
	if v.Spatial != nil {
		fetch = int(math.Ceil(float64(v.K) * r.e.opts.Overfetch))
	}
	matches, err := r.e.vec.SearchKNN(ctx, v.Table, v.VectorField, v.QueryVector, fetch, whitelist)
	if err != nil {
		return nil, NewExecutionError("vector search on %s.%s: %v", v.Table, v.VectorField, err)
	}
	if v.Spatial == nil {
		return matches, nil
	}
	kept := make([]Match, 0, v.K)
	for _, m := range matches {
		doc, lerr := r.load(ctx, v.Table, m.PK)
		if lerr != nil {
			return nil, lerr
		}
		ok, berr := insideBBox(doc, v.Spatial)
		if berr != nil {
			return nil, berr
		}
		if ok {
			kept = append(kept, m)
			if len(kept) == v.K {
				break
			}
		}
	}
	return kept, nil
}

func (r *runtime) spatialFirst(ctx context.Context, v *plan.VectorGeo, whitelist []string) ([]Match, error) {
	candidates := whitelist
	if candidates == nil {
		keys, err := r.allTableKeys(ctx, v.Table)
		if err != nil {
			return nil, err
		}
		candidates = keys
	}
	inBox := make([]string, 0, len(candidates))
	for _, pk := range candidates {
		doc, lerr := r.load(ctx, v.Table, pk)
		if lerr != nil {
			return nil, lerr
		}
		ok, berr := insideBBox(doc, v.Spatial)
		if berr != nil {
			return nil, berr
		}
		if ok {
			inBox = append(inBox, pk)
		}
	}
	if len(inBox) == 0 {
		return nil, nil
	}
	matches, err := r.e.vec.SearchKNN(ctx, v.Table, v.VectorField, v.QueryVector, v.K, inBox)
	if err != nil {
		return nil, NewExecutionError("vector search on %s.%s: %v", v.Table, v.VectorField, err)
	}
	return matches, nil
}

// insideBBox reads the geo field as a [lon, lat] pair and tests it
// against the bounding box. Documents without the field, or with a
// malformed value, fall outside the box rather than failing the query.
func insideBBox(doc map[string]any, box *plan.BBox) (bool, error) {
	lon, lat, ok := lonLat(fieldValue(doc, box.Field))
	if !ok {
		return false, nil
	}
	return lon >= box.West && lon <= box.East && lat >= box.South && lat <= box.North, nil
}

func lonLat(v any) (lon, lat float64, ok bool) {
	arr, isArr := v.([]any)
	if !isArr || len(arr) != 2 {
		if fs, isF := v.([]float64); isF && len(fs) == 2 {
			return fs[0], fs[1], true
		}
		return 0, 0, false
	}
	lon, lonOK := asFloat(arr[0])
	lat, latOK := asFloat(arr[1])
	return lon, lat, lonOK && latOK
}

const earthRadiusMeters = 6371000.0

// haversineMeters is the great-circle distance between two lon/lat
// points, used for the geo_distance row augmentation and PROXIMITY
// ordering.
func haversineMeters(lon1, lat1, lon2, lat2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(a))
}
