package blueprint

import (
	"os"
	"path/filepath"
	"testing"

	"foreman.ai/internal/world"
)

func TestParse_Valid(t *testing.T) {
	raw := []byte(`{
	  "building_type": "hut",
	  "clear_area": true,
	  "level_ground": true,
	  "blocks": [
	    {"pos": [10, 64, -3], "block": "PLANK"},
	    {"pos": [11, 64, -3], "block": "STONE"}
	  ]
	}`)
	bp, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if bp.BuildingType != "hut" || !bp.ClearArea || !bp.LevelGround {
		t.Fatalf("header fields wrong: %+v", bp)
	}
	if len(bp.Blocks) != 2 {
		t.Fatalf("blocks = %d, want 2", len(bp.Blocks))
	}
	want := world.Vec3i{X: 10, Y: 64, Z: -3}
	if bp.Blocks[0].Pos != want || bp.Blocks[0].Type != "PLANK" {
		t.Fatalf("block[0] = %+v", bp.Blocks[0])
	}
	if bp.Digest == "" {
		t.Fatalf("empty digest")
	}
}

func TestParse_SchemaRejects(t *testing.T) {
	cases := map[string]string{
		"missing type":  `{"blocks": []}`,
		"empty type":    `{"building_type": "", "blocks": []}`,
		"bad pos arity": `{"building_type": "hut", "blocks": [{"pos": [1, 2], "block": "PLANK"}]}`,
		"no block name": `{"building_type": "hut", "blocks": [{"pos": [1, 2, 3]}]}`,
		"float coords":  `{"building_type": "hut", "blocks": [{"pos": [1.5, 2, 3], "block": "PLANK"}]}`,
	}
	for name, raw := range cases {
		if _, err := Parse([]byte(raw)); err == nil {
			t.Fatalf("%s: Parse accepted invalid blueprint", name)
		}
	}
}

func TestBoundsCentroidMaterials(t *testing.T) {
	bp := &Blueprint{
		BuildingType: "hut",
		Blocks: []BlockSpec{
			{Type: "PLANK", Pos: world.Vec3i{X: -2, Y: 0, Z: 4}},
			{Type: "PLANK", Pos: world.Vec3i{X: 6, Y: 3, Z: 8}},
			{Type: "STONE", Pos: world.Vec3i{X: 0, Y: 1, Z: 6}},
		},
	}
	min, max, ok := bp.Bounds()
	if !ok {
		t.Fatalf("Bounds not ok")
	}
	if min != (world.Vec3i{X: -2, Y: 0, Z: 4}) || max != (world.Vec3i{X: 6, Y: 3, Z: 8}) {
		t.Fatalf("bounds = %v..%v", min, max)
	}
	if c := bp.Centroid(); c != (world.Vec3i{X: 2, Y: 1, Z: 6}) {
		t.Fatalf("centroid = %v", c)
	}
	counts := bp.MaterialCounts()
	if counts["PLANK"] != 2 || counts["STONE"] != 1 {
		t.Fatalf("material counts = %v", counts)
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	hut := `{"building_type": "hut", "blocks": [{"pos": [0, 0, 0], "block": "PLANK"}]}`
	tower := `{"building_type": "tower", "blocks": [{"pos": [0, 0, 0], "block": "STONE"}]}`
	files := map[string]string{
		"hut.json":   hut,
		"tower.json": tower,
		"notes.txt":  "not a blueprint",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	catalog, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if len(catalog) != 2 {
		t.Fatalf("catalog size = %d, want 2", len(catalog))
	}
	if bp := catalog["hut"]; bp == nil || bp.BuildingType != "hut" {
		t.Fatalf("hut entry = %+v", catalog["hut"])
	}
	if bp := catalog["tower"]; bp == nil || bp.BuildingType != "tower" {
		t.Fatalf("tower entry = %+v", catalog["tower"])
	}
}

func TestLoadDir_InvalidEntry(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte(`{"blocks": []}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadDir(dir); err == nil {
		t.Fatalf("LoadDir accepted an invalid blueprint")
	}
}

func TestBounds_Empty(t *testing.T) {
	if _, _, ok := (&Blueprint{}).Bounds(); ok {
		t.Fatalf("empty blueprint reported bounds")
	}
}
