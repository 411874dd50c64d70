package verify

import (
	"context"
	"fmt"

	"foreman.ai/internal/blueprint"
	"foreman.ai/internal/world"
)

// Functionality test names. Fix dispatch keys off these.
const (
	TestDoorPresence        = "door_presence"
	TestEnclosure           = "enclosure"
	TestRoofCoverage        = "roof_coverage"
	TestInteriorClear       = "interior_clear"
	TestStructuralIntegrity = "structural_integrity"
	TestWallContinuity      = "wall_continuity"
	TestWallHeight          = "wall_height"
)

// Battery tolerances.
const (
	maxEnclosureGaps      = 10
	minRoofCoverage       = 0.70
	maxInteriorObstructions = 5
	maxUnsupportedBlocks  = 10
	doorScanMargin        = 2
)

type TestResult struct {
	Test   string `json:"test"`
	Passed bool   `json:"passed"`
	Issue  string `json:"issue,omitempty"`

	// Positions are the defect cells (gaps, obstructions, floating blocks)
	// that targeted fixes act on.
	Positions []world.Vec3i `json:"positions,omitempty"`
}

type FunctionalityReport struct {
	BuildingType string       `json:"building_type"`
	Functional   bool         `json:"functional"`
	Tests        []TestResult `json:"tests"`
}

// ValidateFunctionality runs the test battery for the blueprint's building
// type. Functional is the AND of every test; batteries are chosen by type.
func (v *Verifier) ValidateFunctionality(ctx context.Context, bp *blueprint.Blueprint) (FunctionalityReport, error) {
	rep := FunctionalityReport{BuildingType: bp.BuildingType}
	plan := blueprint.BuildPlan(bp, v.tables.DetailBlocks)

	var tests []TestResult
	var err error
	switch bp.BuildingType {
	case "house", "hut", "cabin", "shelter":
		tests, err = v.houseBattery(ctx, bp, plan)
	case "wall", "fence":
		tests, err = v.wallBattery(ctx, bp)
	default:
		tests, err = v.genericBattery(ctx, bp)
	}
	if err != nil {
		return rep, err
	}

	rep.Tests = tests
	rep.Functional = true
	for _, t := range tests {
		if !t.Passed {
			rep.Functional = false
		}
	}
	return rep, nil
}

func (v *Verifier) houseBattery(ctx context.Context, bp *blueprint.Blueprint, plan blueprint.Plan) ([]TestResult, error) {
	var out []TestResult
	for _, run := range []func(context.Context, *blueprint.Blueprint, blueprint.Plan) (TestResult, error){
		v.checkDoorPresence,
		v.checkEnclosure,
		v.checkRoofCoverage,
		v.checkInteriorClear,
		v.checkStructuralIntegrity,
	} {
		r, err := run(ctx, bp, plan)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (v *Verifier) wallBattery(ctx context.Context, bp *blueprint.Blueprint) ([]TestResult, error) {
	cont, height, err := v.checkWall(ctx, bp)
	if err != nil {
		return nil, err
	}
	return []TestResult{cont, height}, nil
}

func (v *Verifier) genericBattery(ctx context.Context, bp *blueprint.Blueprint) ([]TestResult, error) {
	plan := blueprint.BuildPlan(bp, v.tables.DetailBlocks)
	r, err := v.checkStructuralIntegrity(ctx, bp, plan)
	if err != nil {
		return nil, err
	}
	return []TestResult{r}, nil
}

func (v *Verifier) nonEmptyAt(ctx context.Context, pos world.Vec3i) (bool, error) {
	b, err := v.port.BlockAt(ctx, pos)
	if err != nil {
		return false, err
	}
	return !world.IsEmpty(b), nil
}

// checkDoorPresence scans the blueprint footprint plus a small margin for
// at least one known door block.
func (v *Verifier) checkDoorPresence(ctx context.Context, bp *blueprint.Blueprint, _ blueprint.Plan) (TestResult, error) {
	r := TestResult{Test: TestDoorPresence}
	min, max, ok := bp.Bounds()
	if !ok {
		r.Passed = true
		return r, nil
	}
	for x := min.X - doorScanMargin; x <= max.X+doorScanMargin; x++ {
		for z := min.Z - doorScanMargin; z <= max.Z+doorScanMargin; z++ {
			for y := min.Y; y <= max.Y; y++ {
				b, err := v.port.BlockAt(ctx, world.Vec3i{X: x, Y: y, Z: z})
				if err != nil {
					return r, err
				}
				if v.tables.DoorBlocks.Has(b) {
					r.Passed = true
					return r, nil
				}
			}
		}
	}
	r.Issue = "no door found"
	return r, nil
}

// checkEnclosure walks the bounding-box perimeter at the ground-level wall
// band and counts gaps. A design with no wall blocks at all is vacuously
// enclosed.
func (v *Verifier) checkEnclosure(ctx context.Context, bp *blueprint.Blueprint, _ blueprint.Plan) (TestResult, error) {
	r := TestResult{Test: TestEnclosure}
	min, max, ok := bp.Bounds()
	if !ok || max.Y <= min.Y {
		r.Passed = true
		return r, nil
	}

	groundY := min.Y + 1
	wallsFound := 0
	for _, p := range perimeterCells(min, max, groundY) {
		filled, err := v.nonEmptyAt(ctx, p)
		if err != nil {
			return r, err
		}
		if filled {
			wallsFound++
		} else {
			r.Positions = append(r.Positions, p)
		}
	}

	if wallsFound == 0 {
		// Open design: nothing to enclose.
		r.Passed = true
		r.Positions = nil
		return r, nil
	}
	gaps := len(r.Positions)
	r.Passed = gaps <= maxEnclosureGaps
	if !r.Passed {
		r.Issue = fmt.Sprintf("%d perimeter gaps", gaps)
	}
	return r, nil
}

func perimeterCells(min, max world.Vec3i, y int) []world.Vec3i {
	var out []world.Vec3i
	for x := min.X; x <= max.X; x++ {
		out = append(out, world.Vec3i{X: x, Y: y, Z: min.Z})
		if max.Z != min.Z {
			out = append(out, world.Vec3i{X: x, Y: y, Z: max.Z})
		}
	}
	for z := min.Z + 1; z < max.Z; z++ {
		out = append(out, world.Vec3i{X: min.X, Y: y, Z: z})
		if max.X != min.X {
			out = append(out, world.Vec3i{X: max.X, Y: y, Z: z})
		}
	}
	return out
}

// checkRoofCoverage requires a non-empty cell 3-5 units above at least 70%
// of floor cells. Vacuously passes when no floor exists.
func (v *Verifier) checkRoofCoverage(ctx context.Context, _ *blueprint.Blueprint, plan blueprint.Plan) (TestResult, error) {
	r := TestResult{Test: TestRoofCoverage}
	floor, err := v.builtFloorCells(ctx, plan)
	if err != nil {
		return r, err
	}
	if len(floor) == 0 {
		// No floor was built; nothing to cover.
		r.Passed = true
		return r, nil
	}

	covered := 0
	for _, cell := range floor {
		found := false
		for dy := 3; dy <= 5; dy++ {
			filled, err := v.nonEmptyAt(ctx, world.Vec3i{X: cell.X, Y: cell.Y + dy, Z: cell.Z})
			if err != nil {
				return r, err
			}
			if filled {
				found = true
				break
			}
		}
		if found {
			covered++
		} else {
			r.Positions = append(r.Positions, cell)
		}
	}

	frac := float64(covered) / float64(len(floor))
	r.Passed = frac >= minRoofCoverage
	if !r.Passed {
		r.Issue = fmt.Sprintf("roof covers %.0f%% of floor", frac*100)
	}
	return r, nil
}

// checkInteriorClear counts obstructions 1-3 units above interior floor
// cells, excluding a one-cell perimeter margin and the allow-listed
// furnishing types.
func (v *Verifier) checkInteriorClear(ctx context.Context, bp *blueprint.Blueprint, plan blueprint.Plan) (TestResult, error) {
	r := TestResult{Test: TestInteriorClear}
	min, max, ok := bp.Bounds()
	if !ok {
		r.Passed = true
		return r, nil
	}

	floor, err := v.builtFloorCells(ctx, plan)
	if err != nil {
		return r, err
	}
	for _, cell := range floor {
		if cell.X <= min.X || cell.X >= max.X || cell.Z <= min.Z || cell.Z >= max.Z {
			continue // perimeter margin
		}
		for dy := 1; dy <= 3; dy++ {
			p := world.Vec3i{X: cell.X, Y: cell.Y + dy, Z: cell.Z}
			b, err := v.port.BlockAt(ctx, p)
			if err != nil {
				return r, err
			}
			if world.IsEmpty(b) || v.tables.InteriorAllow.Has(b) {
				continue
			}
			r.Positions = append(r.Positions, p)
		}
	}

	r.Passed = len(r.Positions) <= maxInteriorObstructions
	if !r.Passed {
		r.Issue = fmt.Sprintf("%d interior obstructions", len(r.Positions))
	}
	return r, nil
}

// checkStructuralIntegrity scans the structure volume for floating blocks
// (no vertical and no lateral support: immediate fail) and merely
// unsupported blocks (lateral support only: tolerated up to a limit).
func (v *Verifier) checkStructuralIntegrity(ctx context.Context, bp *blueprint.Blueprint, _ blueprint.Plan) (TestResult, error) {
	r := TestResult{Test: TestStructuralIntegrity}
	min, max, ok := bp.Bounds()
	if !ok {
		r.Passed = true
		return r, nil
	}

	unsupported := 0
	for x := min.X; x <= max.X; x++ {
		for z := min.Z; z <= max.Z; z++ {
			for y := min.Y + 1; y <= max.Y; y++ {
				p := world.Vec3i{X: x, Y: y, Z: z}
				filled, err := v.nonEmptyAt(ctx, p)
				if err != nil {
					return r, err
				}
				if !filled {
					continue
				}
				below, err := v.nonEmptyAt(ctx, world.Vec3i{X: x, Y: y - 1, Z: z})
				if err != nil {
					return r, err
				}
				if below {
					continue
				}
				lateral, err := v.hasLateralSupport(ctx, p)
				if err != nil {
					return r, err
				}
				if lateral {
					unsupported++
				} else {
					r.Positions = append(r.Positions, p) // floating
				}
			}
		}
	}

	switch {
	case len(r.Positions) > 0:
		r.Issue = fmt.Sprintf("%d floating blocks", len(r.Positions))
	case unsupported > maxUnsupportedBlocks:
		r.Issue = fmt.Sprintf("%d unsupported blocks", unsupported)
	default:
		r.Passed = true
	}
	return r, nil
}

// builtFloorCells filters the planned floor down to cells actually present
// in the world, so coverage and clearance checks are judged against what was
// built rather than what was drawn.
func (v *Verifier) builtFloorCells(ctx context.Context, plan blueprint.Plan) ([]world.Vec3i, error) {
	var out []world.Vec3i
	for _, cell := range plan.FloorCells() {
		filled, err := v.nonEmptyAt(ctx, cell)
		if err != nil {
			return nil, err
		}
		if filled {
			out = append(out, cell)
		}
	}
	return out, nil
}

func (v *Verifier) hasLateralSupport(ctx context.Context, p world.Vec3i) (bool, error) {
	for _, n := range [4]world.Vec3i{
		{X: p.X - 1, Y: p.Y, Z: p.Z},
		{X: p.X + 1, Y: p.Y, Z: p.Z},
		{X: p.X, Y: p.Y, Z: p.Z - 1},
		{X: p.X, Y: p.Y, Z: p.Z + 1},
	} {
		filled, err := v.nonEmptyAt(ctx, n)
		if err != nil {
			return false, err
		}
		if filled {
			return true, nil
		}
	}
	return false, nil
}

// checkWall verifies every blueprint column has no vertical gaps and that
// the built top height is uniform along the wall's path.
func (v *Verifier) checkWall(ctx context.Context, bp *blueprint.Blueprint) (TestResult, TestResult, error) {
	cont := TestResult{Test: TestWallContinuity, Passed: true}
	height := TestResult{Test: TestWallHeight, Passed: true}

	min, max, ok := bp.Bounds()
	if !ok {
		return cont, height, nil
	}

	type column struct{ x, z int }
	seen := map[column]bool{}
	var cols []column
	for _, b := range bp.Blocks {
		c := column{b.Pos.X, b.Pos.Z}
		if !seen[c] {
			seen[c] = true
			cols = append(cols, c)
		}
	}

	tops := map[int]int{} // top height -> column count
	for _, c := range cols {
		top := min.Y - 1
		for y := min.Y; y <= max.Y; y++ {
			filled, err := v.nonEmptyAt(ctx, world.Vec3i{X: c.x, Y: y, Z: c.z})
			if err != nil {
				return cont, height, err
			}
			if filled {
				top = y
			}
		}
		if top < min.Y {
			continue // column not started; continuity is about built spans
		}
		tops[top]++
		for y := min.Y; y < top; y++ {
			p := world.Vec3i{X: c.x, Y: y, Z: c.z}
			filled, err := v.nonEmptyAt(ctx, p)
			if err != nil {
				return cont, height, err
			}
			if !filled {
				cont.Positions = append(cont.Positions, p)
			}
		}
	}

	if len(cont.Positions) > 0 {
		cont.Passed = false
		cont.Issue = fmt.Sprintf("%d vertical gaps", len(cont.Positions))
	}
	if len(tops) > 1 {
		height.Passed = false
		height.Issue = fmt.Sprintf("%d distinct top heights", len(tops))
	}
	return cont, height, nil
}
