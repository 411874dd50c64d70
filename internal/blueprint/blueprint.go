// Package blueprint models the immutable target-structure description and
// its geometric decomposition into build phases.
package blueprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"foreman.ai/internal/world"
)

type BlockSpec struct {
	Type string      `json:"block"`
	Pos  world.Vec3i `json:"-"`
}

type Blueprint struct {
	BuildingType string      `json:"building_type"`
	Blocks       []BlockSpec `json:"-"`
	ClearArea    bool        `json:"clear_area"`
	LevelGround  bool        `json:"level_ground"`

	Digest string `json:"-"`
}

type blockFile struct {
	Pos   [3]int `json:"pos"`
	Block string `json:"block"`
}

type blueprintFile struct {
	BuildingType string      `json:"building_type"`
	ClearArea    bool        `json:"clear_area"`
	LevelGround  bool        `json:"level_ground"`
	Blocks       []blockFile `json:"blocks"`
}

const schemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["building_type", "blocks"],
  "properties": {
    "building_type": {"type": "string", "minLength": 1},
    "clear_area": {"type": "boolean"},
    "level_ground": {"type": "boolean"},
    "blocks": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["pos", "block"],
        "properties": {
          "pos": {
            "type": "array",
            "items": {"type": "integer"},
            "minItems": 3,
            "maxItems": 3
          },
          "block": {"type": "string", "minLength": 1}
        }
      }
    }
  }
}`

var fileSchema = jsonschema.MustCompileString("blueprint.schema.json", schemaJSON)

// Load reads and validates one blueprint file.
func Load(path string) (*Blueprint, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse validates raw JSON against the blueprint schema and decodes it.
func Parse(raw []byte) (*Blueprint, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("blueprint: %w", err)
	}
	if err := fileSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("blueprint schema: %w", err)
	}

	var f blueprintFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("blueprint: %w", err)
	}

	bp := &Blueprint{
		BuildingType: f.BuildingType,
		ClearArea:    f.ClearArea,
		LevelGround:  f.LevelGround,
		Digest:       sha256Hex(raw),
		Blocks:       make([]BlockSpec, 0, len(f.Blocks)),
	}
	for _, b := range f.Blocks {
		bp.Blocks = append(bp.Blocks, BlockSpec{
			Type: b.Block,
			Pos:  world.FromArray(b.Pos),
		})
	}
	return bp, nil
}

// LoadDir loads every *.json blueprint in dir, keyed by base filename.
func LoadDir(dir string) (map[string]*Blueprint, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := map[string]*Blueprint{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		bp, err := Load(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		out[strings.TrimSuffix(e.Name(), ".json")] = bp
	}
	return out, nil
}

// Bounds returns the axis-aligned bounding box of the blueprint. ok is
// false for an empty blueprint.
func (bp *Blueprint) Bounds() (min, max world.Vec3i, ok bool) {
	if len(bp.Blocks) == 0 {
		return world.Vec3i{}, world.Vec3i{}, false
	}
	min = bp.Blocks[0].Pos
	max = bp.Blocks[0].Pos
	for _, b := range bp.Blocks[1:] {
		p := b.Pos
		if p.X < min.X {
			min.X = p.X
		}
		if p.Y < min.Y {
			min.Y = p.Y
		}
		if p.Z < min.Z {
			min.Z = p.Z
		}
		if p.X > max.X {
			max.X = p.X
		}
		if p.Y > max.Y {
			max.Y = p.Y
		}
		if p.Z > max.Z {
			max.Z = p.Z
		}
	}
	return min, max, true
}

// Centroid is the integer center of the bounding box.
func (bp *Blueprint) Centroid() world.Vec3i {
	min, max, ok := bp.Bounds()
	if !ok {
		return world.Vec3i{}
	}
	return world.Vec3i{
		X: (min.X + max.X) / 2,
		Y: (min.Y + max.Y) / 2,
		Z: (min.Z + max.Z) / 2,
	}
}

// MaterialCounts returns the per-type block counts the blueprint requires.
func (bp *Blueprint) MaterialCounts() map[string]int {
	out := map[string]int{}
	for _, b := range bp.Blocks {
		out[b.Type]++
	}
	return out
}

// MaterialTypes returns the distinct required types in sorted order.
func (bp *Blueprint) MaterialTypes() []string {
	counts := bp.MaterialCounts()
	out := make([]string, 0, len(counts))
	for t := range counts {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
