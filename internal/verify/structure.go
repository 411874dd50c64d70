package verify

import (
	"context"

	"foreman.ai/internal/blueprint"
	"foreman.ai/internal/world"
)

// maxFixesPerSweep bounds each correction category (missing, wrong) within
// one ValidateStructure call.
const maxFixesPerSweep = 10

type CellState string

const (
	CellCorrect CellState = "correct"
	CellMissing CellState = "missing"
	CellWrong   CellState = "wrong"
)

// StructureReport is the accuracy diff of one sweep, computed before any
// corrections were issued.
type StructureReport struct {
	TotalBlocks   int                   `json:"total_blocks"`
	CorrectBlocks int                   `json:"correct_blocks"`
	Missing       []blueprint.BlockSpec `json:"missing,omitempty"`
	Wrong         []blueprint.BlockSpec `json:"wrong,omitempty"`
	Accuracy      float64               `json:"accuracy"` // percent
	IsComplete    bool                  `json:"is_complete"`

	// Fix attempts issued by this sweep (bounded per category).
	MissingFixes int `json:"missing_fixes"`
	WrongFixes   int `json:"wrong_fixes"`
}

// ValidateStructure diffs every blueprint block against the live world and
// issues bounded-batch corrections for defects. The returned accuracy
// reflects the state found, not the state after fixes; call again for a
// post-fix accuracy.
func (v *Verifier) ValidateStructure(ctx context.Context, bp *blueprint.Blueprint) (StructureReport, error) {
	rep := StructureReport{TotalBlocks: len(bp.Blocks)}

	for _, spec := range bp.Blocks {
		actual, err := v.port.BlockAt(ctx, spec.Pos)
		if err != nil {
			return rep, err
		}
		switch classifyCell(spec.Type, actual) {
		case CellCorrect:
			rep.CorrectBlocks++
		case CellMissing:
			rep.Missing = append(rep.Missing, spec)
		case CellWrong:
			rep.Wrong = append(rep.Wrong, spec)
		}
	}

	if rep.TotalBlocks > 0 {
		rep.Accuracy = float64(rep.CorrectBlocks) / float64(rep.TotalBlocks) * 100
	}
	rep.IsComplete = len(rep.Missing) == 0 && len(rep.Wrong) == 0

	if rep.IsComplete {
		return rep, nil
	}

	rep.MissingFixes = v.fixMissing(ctx, rep.Missing)
	rep.WrongFixes = v.fixWrong(ctx, rep.Wrong)
	return rep, nil
}

func classifyCell(expected, actual string) CellState {
	switch {
	case actual == expected:
		return CellCorrect
	case world.IsEmpty(actual):
		return CellMissing
	default:
		return CellWrong
	}
}

// fixMissing places up to maxFixesPerSweep absent blocks. Cells with no
// reference neighbor are skipped without consuming budget for others.
func (v *Verifier) fixMissing(ctx context.Context, missing []blueprint.BlockSpec) int {
	attempts := 0
	for _, spec := range missing {
		if attempts >= maxFixesPerSweep {
			break
		}
		attempts++
		if err := v.placeWithReference(ctx, spec.Type, spec.Pos); err != nil {
			v.logger.Printf("structure fix: place %s at %s: %v", spec.Type, spec.Pos, err)
			continue
		}
		v.event("AUDIT", "", "corrected missing block", map[string]any{
			"block": spec.Type, "pos": spec.Pos.ToArray(),
		})
	}
	return attempts
}

// fixWrong replaces up to maxFixesPerSweep mismatched blocks.
func (v *Verifier) fixWrong(ctx context.Context, wrong []blueprint.BlockSpec) int {
	attempts := 0
	for _, spec := range wrong {
		if attempts >= maxFixesPerSweep {
			break
		}
		attempts++
		if err := v.correctCell(ctx, spec.Type, spec.Pos); err != nil {
			v.logger.Printf("structure fix: correct %s at %s: %v", spec.Type, spec.Pos, err)
			continue
		}
		v.event("AUDIT", "", "corrected wrong block", map[string]any{
			"block": spec.Type, "pos": spec.Pos.ToArray(),
		})
	}
	return attempts
}
