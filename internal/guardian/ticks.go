package guardian

import (
	"context"

	"foreman.ai/internal/buildlog"
	"foreman.ai/internal/world"
)

// snapshot gathers the world observations the checks consume. Failed
// queries leave zero values; a monitor never faults the build over a
// sensing error.
func (g *Guardian) snapshot(ctx context.Context) Snapshot {
	snap := Snapshot{Now: g.now()}

	if pos, err := g.port.AgentPosition(ctx); err == nil {
		snap.AgentPos = pos
		g.mu.Lock()
		snap.DistanceFromSite = pos.Dist(g.site)
		g.mu.Unlock()
	}
	if vit, err := g.port.AgentVitals(ctx); err == nil {
		snap.Vitals = vit
	}
	if w, err := g.port.Weather(ctx); err == nil {
		snap.Weather = w
	}
	if ents, err := g.port.NearbyEntities(ctx, g.th.HostileRadius); err == nil {
		for _, e := range ents {
			if e.Kind == "hostile" {
				snap.Hostiles++
			}
		}
	}
	if items, err := g.port.InventoryItems(ctx); err == nil {
		for _, it := range items {
			if g.tables.BuildingMaterials.Has(it.Name) {
				snap.MaterialCount += it.Count
			}
		}
	}
	return snap
}

func (g *Guardian) progressTick(ctx context.Context) {
	snap := g.snapshot(ctx)

	g.mu.Lock()
	action, warns, next := CheckProgress(g.th, snap, g.st)
	g.st = next
	g.mu.Unlock()

	g.warn("progress", warns)
	if action == ActionRecoverStagnation {
		g.recoverStagnation(ctx)
	}
}

func (g *Guardian) positionTick(ctx context.Context) {
	snap := g.snapshot(ctx)

	g.mu.Lock()
	action, warns, next := CheckPosition(g.th, snap, g.st)
	g.st = next
	g.mu.Unlock()

	g.warn("position", warns)
	if action == ActionRecoverStuck {
		g.recoverStuck(ctx, snap.AgentPos)
	}
}

func (g *Guardian) environmentTick(ctx context.Context) {
	snap := g.snapshot(ctx)

	g.mu.Lock()
	warns, next := CheckEnvironment(g.th, snap, g.st)
	g.st = next
	g.mu.Unlock()

	g.warn("environment", warns)
}

func (g *Guardian) resourceTick(ctx context.Context) {
	snap := g.snapshot(ctx)
	g.warn("resources", CheckResources(g.th, snap))
}

func (g *Guardian) healthTick(ctx context.Context) {
	snap := g.snapshot(ctx)
	g.warn("health", CheckHealth(g.th, snap))
}

// recoverStagnation gives the in-flight phase another chance: reset the
// progress timer, then re-invoke the session's current phase handler.
func (g *Guardian) recoverStagnation(ctx context.Context) {
	g.mu.Lock()
	g.st.LastProgress = g.now()
	hooks := g.hooks
	g.mu.Unlock()
	if hooks == nil {
		return
	}

	g.logger.Printf("recovery: stagnation, re-running phase %s", hooks.CurrentPhase())
	g.event(buildlog.KindRecovery, "stagnation recovery", map[string]any{"phase": hooks.CurrentPhase()})
	if ok := hooks.ExecuteCurrentPhase(ctx); !ok {
		g.logger.Printf("recovery: stagnation retry of %s failed", hooks.CurrentPhase())
	}
}

// recoverStuck attempts the four cardinal unit moves until one succeeds.
// The progress timer resets regardless of outcome so the stuck check does
// not immediately re-fire.
func (g *Guardian) recoverStuck(ctx context.Context, from world.Vec3i) {
	g.event(buildlog.KindRecovery, "stuck recovery", map[string]any{"pos": from.ToArray()})
	moved := false
	for _, off := range world.CardinalOffsets {
		if err := g.port.MoveTo(ctx, from.Add(off)); err != nil {
			continue
		}
		moved = true
		break
	}
	if !moved {
		g.logger.Printf("recovery: all cardinal moves from %s failed", from)
	}

	g.mu.Lock()
	g.st.LastProgress = g.now()
	g.mu.Unlock()
}
