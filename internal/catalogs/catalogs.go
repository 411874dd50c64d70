// Package catalogs holds the capability tables that drive block, tool and
// material classification. The tables are explicit enumerations loaded from
// JSON so that classification never depends on substring matching against
// live type names.
package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

type Set map[string]struct{}

func (s Set) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func NewSet(ids ...string) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Tables enumerates every block/item capability the foreman core consults.
type Tables struct {
	// DetailBlocks classify blueprint blocks into the details phase.
	DetailBlocks Set
	// DoorBlocks satisfy the door-presence functionality test.
	DoorBlocks Set
	// NaturalTerrain is not counted as an obstacle inside a build site.
	NaturalTerrain Set
	// BuildingMaterials count toward the minimum-resources threshold.
	BuildingMaterials Set
	// StructuralFill lists materials usable for support fixes, in
	// preference order.
	StructuralFill []string
	// WallFill lists materials usable for wall-gap fixes, in preference
	// order.
	WallFill []string
	// InteriorAllow may occupy interior cells without counting as an
	// obstruction.
	InteriorAllow Set
	// RequiredTools is the minimal tool list checked by the pre-build gate.
	RequiredTools []string

	Digest string
}

type tablesFile struct {
	DetailBlocks      []string `json:"detail_blocks"`
	DoorBlocks        []string `json:"door_blocks"`
	NaturalTerrain    []string `json:"natural_terrain"`
	BuildingMaterials []string `json:"building_materials"`
	StructuralFill    []string `json:"structural_fill"`
	WallFill          []string `json:"wall_fill"`
	InteriorAllow     []string `json:"interior_allow"`
	RequiredTools     []string `json:"required_tools"`
}

// Default returns the compiled-in tables used when no materials.json is
// provided.
func Default() *Tables {
	return &Tables{
		DetailBlocks:      NewSet("DOOR", "GLASS", "GLASS_PANE", "TORCH", "LADDER"),
		DoorBlocks:        NewSet("DOOR"),
		NaturalTerrain:    NewSet("GRASS", "DIRT", "STONE", "SAND", "GRAVEL", "WATER", "SNOW", "TALL_GRASS"),
		BuildingMaterials: NewSet("PLANK", "LOG", "STONE", "COBBLESTONE", "BRICK", "GLASS", "SANDSTONE"),
		StructuralFill:    []string{"COBBLESTONE", "STONE", "PLANK", "DIRT"},
		WallFill:          []string{"PLANK", "COBBLESTONE", "STONE"},
		InteriorAllow:     NewSet("TORCH", "DOOR", "LADDER", "CRAFTING_TABLE", "CHEST", "FURNACE"),
		RequiredTools:     []string{"PICKAXE", "AXE", "SHOVEL"},
		Digest:            "builtin",
	}
}

// Load reads capability tables from a JSON file. Empty lists fall back to
// the defaults for that table so a partial file stays usable.
func Load(path string) (*Tables, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f tablesFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("materials.json: %w", err)
	}

	t := Default()
	t.Digest = sha256Hex(raw)
	if len(f.DetailBlocks) > 0 {
		t.DetailBlocks = NewSet(f.DetailBlocks...)
	}
	if len(f.DoorBlocks) > 0 {
		t.DoorBlocks = NewSet(f.DoorBlocks...)
	}
	if len(f.NaturalTerrain) > 0 {
		t.NaturalTerrain = NewSet(f.NaturalTerrain...)
	}
	if len(f.BuildingMaterials) > 0 {
		t.BuildingMaterials = NewSet(f.BuildingMaterials...)
	}
	if len(f.StructuralFill) > 0 {
		t.StructuralFill = f.StructuralFill
	}
	if len(f.WallFill) > 0 {
		t.WallFill = f.WallFill
	}
	if len(f.InteriorAllow) > 0 {
		t.InteriorAllow = NewSet(f.InteriorAllow...)
	}
	if len(f.RequiredTools) > 0 {
		t.RequiredTools = f.RequiredTools
	}
	return t, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
