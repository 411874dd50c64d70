package manager

import (
	"context"
	"fmt"
	"strings"

	"foreman.ai/internal/blueprint"
	"foreman.ai/internal/world"
)

// CheckResult is one pre-build gate check.
type CheckResult struct {
	Name   string   `json:"name"`
	Passed bool     `json:"passed"`
	Issues []string `json:"issues,omitempty"`
}

// PreBuildReport is the four-way validation gate. The gate passes only if
// every check passes; callers may force-proceed despite a failing gate.
type PreBuildReport struct {
	Materials   CheckResult `json:"materials"`
	Terrain     CheckResult `json:"terrain"`
	Environment CheckResult `json:"environment"`
	Tools       CheckResult `json:"tools"`
	Passed      bool        `json:"passed"`
}

// PreBuildCheck runs the four independent gate checks. Sensing faults fail
// the affected check rather than aborting the gate.
func (m *Manager) PreBuildCheck(ctx context.Context, bp *blueprint.Blueprint) PreBuildReport {
	rep := PreBuildReport{
		Materials:   m.checkMaterials(ctx, bp),
		Terrain:     m.checkTerrain(ctx, bp),
		Environment: m.checkEnvironment(ctx),
		Tools:       m.checkTools(ctx),
	}
	rep.Passed = rep.Materials.Passed && rep.Terrain.Passed && rep.Environment.Passed && rep.Tools.Passed
	return rep
}

func (m *Manager) checkMaterials(ctx context.Context, bp *blueprint.Blueprint) CheckResult {
	r := CheckResult{Name: "materials"}
	items, err := m.port.InventoryItems(ctx)
	if err != nil {
		r.Issues = append(r.Issues, fmt.Sprintf("inventory query: %v", err))
		return r
	}
	have := map[string]int{}
	for _, it := range items {
		have[it.Name] += it.Count
	}
	for _, blockType := range bp.MaterialTypes() {
		need := bp.MaterialCounts()[blockType]
		if have[blockType] < need {
			r.Issues = append(r.Issues, fmt.Sprintf("%s: need %d, have %d", blockType, need, have[blockType]))
		}
	}
	r.Passed = len(r.Issues) == 0
	return r
}

// checkTerrain counts obstacles: non-empty cells inside the blueprint's
// bounding box whose type is not allow-listed natural terrain.
func (m *Manager) checkTerrain(ctx context.Context, bp *blueprint.Blueprint) CheckResult {
	r := CheckResult{Name: "terrain"}
	min, max, ok := bp.Bounds()
	if !ok {
		r.Passed = true
		return r
	}
	obstacles := 0
	for x := min.X; x <= max.X; x++ {
		for z := min.Z; z <= max.Z; z++ {
			for y := min.Y; y <= max.Y; y++ {
				b, err := m.port.BlockAt(ctx, world.Vec3i{X: x, Y: y, Z: z})
				if err != nil {
					r.Issues = append(r.Issues, fmt.Sprintf("query: %v", err))
					return r
				}
				if world.IsEmpty(b) || m.tables.NaturalTerrain.Has(b) {
					continue
				}
				obstacles++
			}
		}
	}
	if obstacles > 0 {
		r.Issues = append(r.Issues, fmt.Sprintf("%d obstacles inside build area", obstacles))
	}
	r.Passed = len(r.Issues) == 0
	return r
}

func (m *Manager) checkEnvironment(ctx context.Context) CheckResult {
	r := CheckResult{Name: "environment"}
	if w, err := m.port.Weather(ctx); err == nil {
		if w.Raining {
			r.Issues = append(r.Issues, "raining")
		}
		if w.IsNight() {
			r.Issues = append(r.Issues, "night time")
		}
	} else {
		r.Issues = append(r.Issues, fmt.Sprintf("weather query: %v", err))
	}
	if ents, err := m.port.NearbyEntities(ctx, m.thresholds.HostileRadius); err == nil {
		hostiles := 0
		for _, e := range ents {
			if e.Kind == "hostile" {
				hostiles++
			}
		}
		if hostiles > 0 {
			r.Issues = append(r.Issues, fmt.Sprintf("%d hostile entities nearby", hostiles))
		}
	} else {
		r.Issues = append(r.Issues, fmt.Sprintf("entity query: %v", err))
	}
	r.Passed = len(r.Issues) == 0
	return r
}

// checkTools matches inventory item names against the minimal tool list by
// case-insensitive substring ("IRON_PICKAXE" satisfies "PICKAXE").
func (m *Manager) checkTools(ctx context.Context) CheckResult {
	r := CheckResult{Name: "tools"}
	items, err := m.port.InventoryItems(ctx)
	if err != nil {
		r.Issues = append(r.Issues, fmt.Sprintf("inventory query: %v", err))
		return r
	}
	for _, tool := range m.tables.RequiredTools {
		found := false
		for _, it := range items {
			if it.Count > 0 && strings.Contains(strings.ToUpper(it.Name), strings.ToUpper(tool)) {
				found = true
				break
			}
		}
		if !found {
			r.Issues = append(r.Issues, fmt.Sprintf("missing tool: %s", tool))
		}
	}
	r.Passed = len(r.Issues) == 0
	return r
}
