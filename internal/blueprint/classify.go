package blueprint

import (
	"sort"

	"foreman.ai/internal/catalogs"
	"foreman.ai/internal/world"
)

// Segment names one of the four construction groups a block belongs to.
type Segment string

const (
	SegmentFoundation Segment = "foundation"
	SegmentWalls      Segment = "walls"
	SegmentRoof       Segment = "roof"
	SegmentDetails    Segment = "details"
)

// Plan is the phase decomposition of a blueprint. The partition is disjoint
// and exhaustive: every blueprint block lands in exactly one group.
// Foundation and roof are determined solely by min/max Y, details by the
// detail-type table, walls are the remainder grouped into ascending-Y
// layers. The layer ordering is load-bearing: walls must be built bottom-up
// so each course rests on the one below it.
type Plan struct {
	Foundation []BlockSpec
	WallLayers [][]BlockSpec // ascending Y
	Roof       []BlockSpec
	Details    []BlockSpec
}

// Classify returns the segment a single block belongs to, given the
// blueprint's Y extremes.
func Classify(b BlockSpec, minY, maxY int, detail catalogs.Set) Segment {
	if b.Pos.Y == minY {
		return SegmentFoundation
	}
	if b.Pos.Y == maxY {
		return SegmentRoof
	}
	if detail.Has(b.Type) {
		return SegmentDetails
	}
	return SegmentWalls
}

// BuildPlan partitions the blueprint into the fixed phase groups.
//
// A single-layer blueprint (minY == maxY) is all foundation; roof and walls
// come out empty rather than double-counting the one layer.
func BuildPlan(bp *Blueprint, detail catalogs.Set) Plan {
	var plan Plan
	min, max, ok := bp.Bounds()
	if !ok {
		return plan
	}

	wallsByY := map[int][]BlockSpec{}
	for _, b := range bp.Blocks {
		switch Classify(b, min.Y, max.Y, detail) {
		case SegmentFoundation:
			plan.Foundation = append(plan.Foundation, b)
		case SegmentRoof:
			plan.Roof = append(plan.Roof, b)
		case SegmentDetails:
			plan.Details = append(plan.Details, b)
		default:
			wallsByY[b.Pos.Y] = append(wallsByY[b.Pos.Y], b)
		}
	}

	ys := make([]int, 0, len(wallsByY))
	for y := range wallsByY {
		ys = append(ys, y)
	}
	sort.Ints(ys)
	for _, y := range ys {
		plan.WallLayers = append(plan.WallLayers, wallsByY[y])
	}
	return plan
}

// Walls flattens the wall layers in build order.
func (p Plan) Walls() []BlockSpec {
	var out []BlockSpec
	for _, layer := range p.WallLayers {
		out = append(out, layer...)
	}
	return out
}

// TotalBlocks is the partition size; it always equals len(bp.Blocks) for
// the blueprint the plan was built from.
func (p Plan) TotalBlocks() int {
	n := len(p.Foundation) + len(p.Roof) + len(p.Details)
	for _, layer := range p.WallLayers {
		n += len(layer)
	}
	return n
}

// FloorCells returns the distinct (X,Z) foundation positions, used by the
// roof-coverage and interior checks.
func (p Plan) FloorCells() []world.Vec3i {
	seen := map[[2]int]world.Vec3i{}
	for _, b := range p.Foundation {
		seen[[2]int{b.Pos.X, b.Pos.Z}] = b.Pos
	}
	out := make([]world.Vec3i, 0, len(seen))
	for _, p := range seen {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].X != out[j].X {
			return out[i].X < out[j].X
		}
		return out[i].Z < out[j].Z
	})
	return out
}
