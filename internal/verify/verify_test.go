package verify

import (
	"context"
	"io"
	"log"
	"testing"

	"foreman.ai/internal/blueprint"
	"foreman.ai/internal/catalogs"
	"foreman.ai/internal/world"
	"foreman.ai/internal/worldtest"
)

func newTestVerifier(f *worldtest.FakePort) *Verifier {
	return New(f, catalogs.Default(), Config{
		SettleDelay: -1,
		Logger:      log.New(io.Discard, "", 0),
	})
}

// groundUnder lays natural terrain one cell below every footprint cell so
// reference-neighbor placement always has a face to build against.
func groundUnder(f *worldtest.FakePort, minX, maxX, minZ, maxZ, y int) {
	for x := minX; x <= maxX; x++ {
		for z := minZ; z <= maxZ; z++ {
			f.SetBlock(world.Vec3i{X: x, Y: y - 1, Z: z}, "GRASS")
		}
	}
}

func TestPlaceBlockUsesReferenceNeighbor(t *testing.T) {
	f := worldtest.NewFakePort()
	f.SetBlock(world.Vec3i{X: 0, Y: -1, Z: 0}, "GRASS")
	f.AddInventory("PLANK", 1)
	v := newTestVerifier(f)

	target := world.Vec3i{X: 0, Y: 0, Z: 0}
	if err := v.PlaceBlock(context.Background(), "PLANK", target); err != nil {
		t.Fatalf("PlaceBlock: %v", err)
	}
	got, _ := f.BlockAt(context.Background(), target)
	if got != "PLANK" {
		t.Fatalf("block at %s = %q, want PLANK", target, got)
	}
	if n := f.OpCount("PLACE"); n != 1 {
		t.Fatalf("PLACE ops = %d, want 1", n)
	}
}

func TestPlaceBlockSkipsCorrectCell(t *testing.T) {
	f := worldtest.NewFakePort()
	target := world.Vec3i{X: 0, Y: 0, Z: 0}
	f.SetBlock(target, "PLANK")
	v := newTestVerifier(f)

	if err := v.PlaceBlock(context.Background(), "PLANK", target); err != nil {
		t.Fatalf("PlaceBlock: %v", err)
	}
	if n := f.OpCount("PLACE"); n != 0 {
		t.Fatalf("PLACE ops = %d, want 0 (cell already correct)", n)
	}
}

func TestPlaceBlockClearsWrongOccupant(t *testing.T) {
	f := worldtest.NewFakePort()
	target := world.Vec3i{X: 0, Y: 0, Z: 0}
	f.SetBlock(world.Vec3i{X: 0, Y: -1, Z: 0}, "GRASS")
	f.SetBlock(target, "DIRT")
	f.AddInventory("PLANK", 1)
	v := newTestVerifier(f)

	if err := v.PlaceBlock(context.Background(), "PLANK", target); err != nil {
		t.Fatalf("PlaceBlock: %v", err)
	}
	if n := f.OpCount("DIG"); n != 1 {
		t.Fatalf("DIG ops = %d, want 1", n)
	}
	got, _ := f.BlockAt(context.Background(), target)
	if got != "PLANK" {
		t.Fatalf("block at %s = %q, want PLANK", target, got)
	}
}

func TestPlaceBlockNoReferenceNeighbor(t *testing.T) {
	f := worldtest.NewFakePort()
	f.AddInventory("PLANK", 1)
	v := newTestVerifier(f)

	err := v.PlaceBlock(context.Background(), "PLANK", world.Vec3i{X: 0, Y: 10, Z: 0})
	if err == nil {
		t.Fatalf("PlaceBlock in empty space: want error, got nil")
	}
	if n := f.OpCount("PLACE"); n != 0 {
		t.Fatalf("PLACE ops = %d, want 0", n)
	}
}

func TestVerifyPlacementSuccess(t *testing.T) {
	f := worldtest.NewFakePort()
	pos := world.Vec3i{X: 1, Y: 0, Z: 1}
	f.SetBlock(pos, "STONE")
	v := newTestVerifier(f)

	res := v.VerifyPlacement(context.Background(), "STONE", pos)
	if !res.Success {
		t.Fatalf("VerifyPlacement: success=false, reason=%q", res.Reason)
	}
	if res.Actual != "STONE" {
		t.Fatalf("actual = %q, want STONE", res.Actual)
	}
}

func TestVerifyPlacementEmptyCell(t *testing.T) {
	f := worldtest.NewFakePort()
	v := newTestVerifier(f)

	res := v.VerifyPlacement(context.Background(), "STONE", world.Vec3i{X: 1, Y: 0, Z: 1})
	if res.Success {
		t.Fatalf("VerifyPlacement on empty cell: want failure")
	}
	if res.Reason != "cell empty after placement" {
		t.Fatalf("reason = %q", res.Reason)
	}
	// Empty cells are left for the structure sweep, not re-placed here.
	if n := f.OpCount("PLACE"); n != 0 {
		t.Fatalf("PLACE ops = %d, want 0", n)
	}
}

func TestVerifyPlacementCorrectsWrongBlock(t *testing.T) {
	f := worldtest.NewFakePort()
	pos := world.Vec3i{X: 1, Y: 0, Z: 1}
	f.SetBlock(world.Vec3i{X: 1, Y: -1, Z: 1}, "GRASS")
	f.SetBlock(pos, "DIRT")
	f.AddInventory("STONE", 1)
	v := newTestVerifier(f)

	res := v.VerifyPlacement(context.Background(), "STONE", pos)
	if !res.Success {
		t.Fatalf("VerifyPlacement: success=false, reason=%q", res.Reason)
	}
	if n := f.OpCount("DIG"); n != 1 {
		t.Fatalf("DIG ops = %d, want 1", n)
	}
	got, _ := f.BlockAt(context.Background(), pos)
	if got != "STONE" {
		t.Fatalf("block at %s = %q, want STONE", pos, got)
	}
}

func flatBlueprint(size int, blockType string) *blueprint.Blueprint {
	bp := &blueprint.Blueprint{BuildingType: "platform"}
	for x := 0; x < size; x++ {
		for z := 0; z < size; z++ {
			bp.Blocks = append(bp.Blocks, blueprint.BlockSpec{
				Type: blockType,
				Pos:  world.Vec3i{X: x, Y: 0, Z: z},
			})
		}
	}
	return bp
}

func TestValidateStructureAccuracyAndFixes(t *testing.T) {
	f := worldtest.NewFakePort()
	bp := flatBlueprint(10, "STONE")
	groundUnder(f, 0, 9, 0, 9, 0)
	for _, spec := range bp.Blocks {
		f.SetBlock(spec.Pos, spec.Type)
	}
	// 5 missing, 5 wrong.
	for x := 0; x < 5; x++ {
		f.SetBlock(world.Vec3i{X: x, Y: 0, Z: 0}, world.BlockAir)
		f.SetBlock(world.Vec3i{X: x, Y: 0, Z: 1}, "DIRT")
	}
	f.AddInventory("STONE", 50)
	v := newTestVerifier(f)

	rep, err := v.ValidateStructure(context.Background(), bp)
	if err != nil {
		t.Fatalf("ValidateStructure: %v", err)
	}
	if rep.TotalBlocks != 100 || rep.CorrectBlocks != 90 {
		t.Fatalf("total=%d correct=%d, want 100/90", rep.TotalBlocks, rep.CorrectBlocks)
	}
	if rep.Accuracy != 90.0 {
		t.Fatalf("accuracy = %v, want 90.0", rep.Accuracy)
	}
	if rep.IsComplete {
		t.Fatalf("IsComplete = true on a 90%% structure")
	}
	if len(rep.Missing) != 5 || len(rep.Wrong) != 5 {
		t.Fatalf("missing=%d wrong=%d, want 5/5", len(rep.Missing), len(rep.Wrong))
	}
	if rep.MissingFixes != 5 || rep.WrongFixes != 5 {
		t.Fatalf("fixes missing=%d wrong=%d, want 5/5", rep.MissingFixes, rep.WrongFixes)
	}

	// All ten defects were reachable; a second sweep finds the structure whole.
	rep2, err := v.ValidateStructure(context.Background(), bp)
	if err != nil {
		t.Fatalf("second ValidateStructure: %v", err)
	}
	if !rep2.IsComplete || rep2.Accuracy != 100.0 {
		t.Fatalf("after fixes: accuracy=%v complete=%v", rep2.Accuracy, rep2.IsComplete)
	}
	if rep2.MissingFixes != 0 || rep2.WrongFixes != 0 {
		t.Fatalf("complete sweep issued fixes: %d/%d", rep2.MissingFixes, rep2.WrongFixes)
	}
}

func TestValidateStructureFixBudget(t *testing.T) {
	f := worldtest.NewFakePort()
	bp := flatBlueprint(5, "STONE")
	groundUnder(f, 0, 4, 0, 4, 0)
	// Build only 13 of 25 cells; 12 are missing.
	built := 0
	for _, spec := range bp.Blocks {
		if built < 13 {
			f.SetBlock(spec.Pos, spec.Type)
			built++
		}
	}
	f.AddInventory("STONE", 50)
	v := newTestVerifier(f)

	rep, err := v.ValidateStructure(context.Background(), bp)
	if err != nil {
		t.Fatalf("ValidateStructure: %v", err)
	}
	if len(rep.Missing) != 12 {
		t.Fatalf("missing = %d, want 12", len(rep.Missing))
	}
	if rep.MissingFixes != 10 {
		t.Fatalf("missing fixes = %d, want the per-sweep cap of 10", rep.MissingFixes)
	}

	rep2, err := v.ValidateStructure(context.Background(), bp)
	if err != nil {
		t.Fatalf("second ValidateStructure: %v", err)
	}
	if len(rep2.Missing) != 2 {
		t.Fatalf("missing after capped sweep = %d, want 2", len(rep2.Missing))
	}
}

func TestValidateStructureUnreachableCell(t *testing.T) {
	f := worldtest.NewFakePort()
	bp := &blueprint.Blueprint{
		BuildingType: "platform",
		Blocks: []blueprint.BlockSpec{
			{Type: "STONE", Pos: world.Vec3i{X: 0, Y: 10, Z: 0}},
		},
	}
	f.AddInventory("STONE", 5)
	v := newTestVerifier(f)

	rep, err := v.ValidateStructure(context.Background(), bp)
	if err != nil {
		t.Fatalf("ValidateStructure: %v", err)
	}
	if rep.MissingFixes != 1 {
		t.Fatalf("missing fixes = %d, want 1 attempt", rep.MissingFixes)
	}
	// No reference neighbor exists; the attempt must not actuate.
	if n := f.OpCount("PLACE"); n != 0 {
		t.Fatalf("PLACE ops = %d, want 0", n)
	}
}

func TestValidateStructureEmptyBlueprint(t *testing.T) {
	f := worldtest.NewFakePort()
	v := newTestVerifier(f)

	rep, err := v.ValidateStructure(context.Background(), &blueprint.Blueprint{BuildingType: "house"})
	if err != nil {
		t.Fatalf("ValidateStructure: %v", err)
	}
	if !rep.IsComplete || rep.TotalBlocks != 0 {
		t.Fatalf("empty blueprint: total=%d complete=%v", rep.TotalBlocks, rep.IsComplete)
	}
}
