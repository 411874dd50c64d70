package session

import (
	"context"
	"fmt"

	"foreman.ai/internal/blueprint"
	"foreman.ai/internal/buildlog"
	"foreman.ai/internal/world"
)

// ExecuteCurrentPhase dispatches to the handler for the session's current
// phase and reports success as a boolean so the caller decides whether to
// advance or retry. Each handler checkpoints on completion before
// returning; a crash right after a phase loses at most the in-flight
// phase's partial progress.
func (s *Session) ExecuteCurrentPhase(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	phase := s.phase
	var ok bool
	switch phase {
	case PhasePlanning:
		ok = s.runPlanning(ctx)
	case PhaseResourceGathering:
		ok = s.runResourceGathering(ctx)
	case PhaseSitePreparation:
		ok = s.runSitePreparation(ctx)
	case PhaseFoundation:
		ok = s.placeBlocks(ctx, s.plan.Foundation)
	case PhaseWalls:
		ok = s.runWalls(ctx)
	case PhaseRoof:
		ok = s.placeBlocks(ctx, s.plan.Roof)
	case PhaseDetails:
		ok = s.placeBlocks(ctx, s.plan.Details)
	case PhaseVerification:
		ok = s.runVerification(ctx)
	case PhaseComplete:
		return true
	default:
		s.logger.Printf("unknown phase %q", phase)
		return false
	}

	if ok {
		if err := s.checkpointLocked(ctx, fmt.Sprintf("%s handler complete", phase)); err != nil {
			s.logger.Printf("checkpoint after %s: %v", phase, err)
		}
	}
	return ok
}

// runPlanning classifies the blueprint into the phase plan and seeds the
// progress counters.
func (s *Session) runPlanning(_ context.Context) bool {
	s.plan = blueprint.BuildPlan(s.bp, s.tables.DetailBlocks)
	s.progress.TotalBlocks = len(s.bp.Blocks)

	s.logger.Printf("plan: %d foundation, %d wall layers (%d blocks), %d roof, %d details",
		len(s.plan.Foundation), len(s.plan.WallLayers), len(s.plan.Walls()), len(s.plan.Roof), len(s.plan.Details))
	s.event(buildlog.KindProgress, "plan ready", map[string]any{
		"total_blocks": s.progress.TotalBlocks,
		"wall_layers":  len(s.plan.WallLayers),
	})
	s.ping()
	return true
}

// runResourceGathering re-checks the inventory against the blueprint's
// requirements. This core does not craft or mine; a shortfall fails the
// phase with per-type reasons so the orchestrator's failure path runs.
func (s *Session) runResourceGathering(ctx context.Context) bool {
	items, err := s.port.InventoryItems(ctx)
	if err != nil {
		s.logger.Printf("resource check: inventory query: %v", err)
		return false
	}
	have := map[string]int{}
	for _, it := range items {
		have[it.Name] += it.Count
	}

	short := map[string]int{}
	for blockType, need := range s.bp.MaterialCounts() {
		if have[blockType] < need {
			short[blockType] = need - have[blockType]
		}
	}
	if len(short) > 0 {
		for blockType, n := range short {
			s.event(buildlog.KindFailure, "material shortfall", map[string]any{
				"block": blockType, "missing": n,
			})
		}
		s.logger.Printf("resource check: %d material types short", len(short))
		return false
	}
	s.ping()
	return true
}

// runSitePreparation clears non-natural obstacles inside the footprint and
// levels the ground under the foundation, per the blueprint's site flags.
func (s *Session) runSitePreparation(ctx context.Context) bool {
	min, max, ok := s.bp.Bounds()
	if !ok {
		return true
	}

	if s.bp.ClearArea {
		for x := min.X; x <= max.X; x++ {
			for z := min.Z; z <= max.Z; z++ {
				for y := min.Y; y <= max.Y; y++ {
					if s.stopped() {
						return false
					}
					p := world.Vec3i{X: x, Y: y, Z: z}
					b, err := s.port.BlockAt(ctx, p)
					if err != nil {
						s.logger.Printf("site prep: query %s: %v", p, err)
						return false
					}
					if world.IsEmpty(b) || s.tables.NaturalTerrain.Has(b) {
						continue
					}
					if err := s.port.Dig(ctx, p); err != nil {
						s.logger.Printf("site prep: dig %s: %v", p, err)
						continue
					}
					s.ping()
				}
			}
		}
	}

	if s.bp.LevelGround {
		fill := firstAvailable(ctx, s, s.tables.StructuralFill)
		for _, cell := range s.plan.FloorCells() {
			if s.stopped() {
				return false
			}
			below := world.Vec3i{X: cell.X, Y: cell.Y - 1, Z: cell.Z}
			b, err := s.port.BlockAt(ctx, below)
			if err != nil {
				s.logger.Printf("site prep: query %s: %v", below, err)
				return false
			}
			if !world.IsEmpty(b) {
				continue
			}
			if fill == "" {
				s.logger.Printf("site prep: hole under %s and no fill material", cell)
				continue
			}
			if err := s.verifier.PlaceBlock(ctx, fill, below); err != nil {
				s.logger.Printf("site prep: fill %s: %v", below, err)
				continue
			}
			s.ping()
		}
	}
	return true
}

func (s *Session) runWalls(ctx context.Context) bool {
	// Layers ascend in Y; building top-down would leave unsupported
	// courses.
	for _, layer := range s.plan.WallLayers {
		if !s.placeBlocks(ctx, layer) {
			return false
		}
	}
	return true
}

// runVerification runs the structure sweep. The result is informative:
// defects were already handed to the bounded auto-fix batches, and a
// remaining shortfall surfaces in the final report, not as a phase
// failure.
func (s *Session) runVerification(ctx context.Context) bool {
	rep, err := s.verifier.ValidateStructure(ctx, s.bp)
	if err != nil {
		s.logger.Printf("verification sweep: %v", err)
		return false
	}
	s.logger.Printf("verification: accuracy %.1f%% (%d/%d correct, %d missing, %d wrong)",
		rep.Accuracy, rep.CorrectBlocks, rep.TotalBlocks, len(rep.Missing), len(rep.Wrong))
	s.event(buildlog.KindProgress, "verification sweep", map[string]any{
		"accuracy": rep.Accuracy,
		"complete": rep.IsComplete,
	})
	s.ping()
	return true
}

// placeBlocks materializes one block group. Individual placement faults
// are recorded and never abort the group; the structure sweep retries
// them. Checkpoints every checkpointEveryBlocks placements.
func (s *Session) placeBlocks(ctx context.Context, specs []blueprint.BlockSpec) bool {
	for _, spec := range specs {
		if s.stopped() {
			return false
		}

		if err := s.verifier.PlaceBlock(ctx, spec.Type, spec.Pos); err != nil {
			s.recordPlacementFailure(spec, err.Error())
			continue
		}
		v := s.verifier.VerifyPlacement(ctx, spec.Type, spec.Pos)
		if !v.Success {
			s.recordPlacementFailure(spec, v.Reason)
			continue
		}

		s.progress.PlacedBlocks++
		s.sinceCkpt++
		s.ping()
		if s.sinceCkpt >= checkpointEveryBlocks {
			if err := s.checkpointLocked(ctx, "periodic"); err != nil {
				s.logger.Printf("periodic checkpoint: %v", err)
			}
		}
	}
	return true
}

func (s *Session) recordPlacementFailure(spec blueprint.BlockSpec, reason string) {
	s.progress.Failed = append(s.progress.Failed, FailedBlock{Block: spec, Reason: reason})
	s.logger.Printf("placement failed: %s at %s: %s", spec.Type, spec.Pos, reason)
	s.event(buildlog.KindFailure, "placement failed", map[string]any{
		"block": spec.Type, "pos": spec.Pos.ToArray(), "reason": reason,
	})
}

func firstAvailable(ctx context.Context, s *Session, prefs []string) string {
	items, err := s.port.InventoryItems(ctx)
	if err != nil {
		return ""
	}
	have := map[string]int{}
	for _, it := range items {
		have[it.Name] += it.Count
	}
	for _, m := range prefs {
		if have[m] > 0 {
			return m
		}
	}
	return ""
}
