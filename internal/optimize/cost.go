// Package optimize holds the cost model for hybrid vector/geo access
// ordering and the explain-plan classification for index-backed
// conjunctive queries. Both are pure functions over their inputs.
package optimize

import "math"

// Strategy is the chosen access order for a vector-geo hybrid query.
type Strategy string

const (
	// VectorFirst runs the KNN search first, over-fetching candidates,
	// then discards those outside the bounding box.
	VectorFirst Strategy = "vector_first"

	// SpatialFirst narrows to the bounding box first, then ranks the
	// survivors by exact vector distance.
	SpatialFirst Strategy = "spatial_first"
)

// CostInput describes one hybrid query for the cost model.
type CostInput struct {
	HasVectorIndex      bool
	HasSpatialIndex     bool
	BBoxRatio           float64 // fraction of the index space the bbox covers, 0..1
	PrefilterSize       int     // rows already narrowed by equality/range filters, 0 = none
	SpatialIndexEntries int
	K                   int
	VectorDim           int
	Overfetch           float64 // candidate multiplier when post-filtering discards rows
}

// Decision is the outcome of ChooseVectorGeoPlan. Both costs are always
// strictly positive so callers can explain the choice that was not taken.
type Decision struct {
	Plan             Strategy
	CostVectorFirst  float64
	CostSpatialFirst float64
}

// Per-operation cost weights. The absolute scale is arbitrary; only the
// ordering of the two strategy costs matters for the decision.
const (
	costDistance   = 1.0  // one vector distance computation per dimension
	costBBoxCheck  = 2.0  // point-in-box test including the row load
	costSpatialHit = 4.0  // producing one candidate from the spatial scan
	costMissingIdx = 50.0 // multiplier when the needed index is absent
)

// ChooseVectorGeoPlan estimates both access orders and picks the cheaper.
//
// Shape of the model:
//   - vector-first cost grows with overfetch (more candidates), vector
//     dimensionality (each candidate distance is dearer), and a small
//     logarithmic term in the spatial entry count for the bbox check of
//     every over-fetched candidate;
//   - spatial-first cost grows linearly with the number of bbox survivors
//     (entries * bboxRatio), each of which pays a full-dimension distance
//     ranking, so a small bbox favors spatial-first and a large one
//     favors vector-first;
//   - a non-trivial prefilter discounts both costs, since either scan
//     starts from the narrowed key set.
func ChooseVectorGeoPlan(in CostInput) Decision {
	k := float64(maxInt(in.K, 1))
	dim := float64(maxInt(in.VectorDim, 1))
	entries := float64(maxInt(in.SpatialIndexEntries, 1))
	overfetch := math.Max(in.Overfetch, 1.0)
	ratio := clamp(in.BBoxRatio, 0.0, 1.0)

	// Candidates the KNN scan must produce before bbox post-filtering.
	vectorCandidates := k * overfetch
	costVector := vectorCandidates*dim*costDistance +
		vectorCandidates*costBBoxCheck*math.Log2(entries+2)
	if !in.HasVectorIndex {
		costVector *= costMissingIdx
	}

	// Survivors of the bbox scan, each ranked by exact distance.
	spatialCandidates := entries * ratio
	costSpatial := spatialCandidates*(costSpatialHit+dim*costDistance) + k*costDistance
	if !in.HasSpatialIndex {
		costSpatial *= costMissingIdx
	}

	// A prefilter narrows the starting key set for either strategy.
	if in.PrefilterSize > 0 {
		discount := 1.0 / (1.0 + math.Log2(1.0+float64(in.PrefilterSize)))
		costVector *= discount
		costSpatial *= discount
	}

	// Strictly positive floors; a zero cost would make the losing
	// strategy unexplainable.
	costVector = math.Max(costVector, 1.0)
	costSpatial = math.Max(costSpatial, 1.0)

	plan := VectorFirst
	if costSpatial < costVector {
		plan = SpatialFirst
	}
	return Decision{
		Plan:             plan,
		CostVectorFirst:  costVector,
		CostSpatialFirst: costSpatial,
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
