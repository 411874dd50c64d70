// Package verify compares the live world against a blueprint: per-block
// placement verification, whole-structure accuracy sweeps with bounded
// auto-correction, and per-building-type functionality batteries.
package verify

import (
	"context"
	"fmt"
	"log"
	"time"

	"foreman.ai/internal/buildlog"
	"foreman.ai/internal/catalogs"
	"foreman.ai/internal/world"
)

// DefaultSettleDelay bounds the world's eventual consistency: a placed
// block is assumed visible to queries after this long.
const DefaultSettleDelay = 200 * time.Millisecond

type Config struct {
	// SettleDelay overrides DefaultSettleDelay; negative disables the wait
	// entirely (tests).
	SettleDelay time.Duration
	Logger      *log.Logger
	Events      *buildlog.Logger
}

type Verifier struct {
	port   world.Port
	tables *catalogs.Tables
	settle time.Duration
	logger *log.Logger
	events *buildlog.Logger
}

func New(port world.Port, tables *catalogs.Tables, cfg Config) *Verifier {
	settle := cfg.SettleDelay
	if settle == 0 {
		settle = DefaultSettleDelay
	}
	if settle < 0 {
		settle = 0
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Verifier{
		port:   port,
		tables: tables,
		settle: settle,
		logger: logger,
		events: cfg.Events,
	}
}

// Verification is the outcome of checking one placed block.
type Verification struct {
	BlockType string      `json:"block_type"`
	Pos       world.Vec3i `json:"pos"`
	Expected  string      `json:"expected"`
	Actual    string      `json:"actual"`
	Success   bool        `json:"success"`
	Reason    string      `json:"reason,omitempty"`
}

// VerifyPlacement checks that the block at pos matches the expected type,
// after waiting out the settle delay. A mismatched non-empty cell is
// corrected in place (dig, then re-place against a reference neighbor) and
// re-queried; an empty cell is recorded as a placement failure and left for
// the structure-level sweep.
func (v *Verifier) VerifyPlacement(ctx context.Context, blockType string, pos world.Vec3i) Verification {
	out := Verification{BlockType: blockType, Pos: pos, Expected: blockType}

	if v.settle > 0 {
		select {
		case <-time.After(v.settle):
		case <-ctx.Done():
			out.Reason = ctx.Err().Error()
			return out
		}
	}

	actual, err := v.port.BlockAt(ctx, pos)
	if err != nil {
		out.Reason = fmt.Sprintf("query: %v", err)
		return out
	}
	out.Actual = actual

	if actual == blockType {
		out.Success = true
		return out
	}

	if world.IsEmpty(actual) {
		out.Reason = "cell empty after placement"
		return out
	}

	// Wrong block in the cell: correct it now.
	if err := v.correctCell(ctx, blockType, pos); err != nil {
		out.Reason = fmt.Sprintf("correction: %v", err)
		return out
	}
	actual, err = v.port.BlockAt(ctx, pos)
	if err != nil {
		out.Reason = fmt.Sprintf("re-query: %v", err)
		return out
	}
	out.Actual = actual
	out.Success = actual == blockType
	if !out.Success {
		out.Reason = "correction did not stick"
	}
	return out
}

// correctCell removes whatever occupies pos and places the expected type.
func (v *Verifier) correctCell(ctx context.Context, blockType string, pos world.Vec3i) error {
	if err := v.port.Dig(ctx, pos); err != nil {
		return fmt.Errorf("dig: %w", err)
	}
	return v.placeWithReference(ctx, blockType, pos)
}

// PlaceBlock materializes one block at target using the reference-neighbor
// placement algorithm. Phase handlers call this, then VerifyPlacement.
func (v *Verifier) PlaceBlock(ctx context.Context, blockType string, target world.Vec3i) error {
	existing, err := v.port.BlockAt(ctx, target)
	if err != nil {
		return fmt.Errorf("target query: %w", err)
	}
	if existing == blockType {
		return nil // already in place (resume)
	}
	if !world.IsEmpty(existing) {
		if err := v.port.Dig(ctx, target); err != nil {
			return fmt.Errorf("clear target: %w", err)
		}
	}
	return v.placeWithReference(ctx, blockType, target)
}

// placeWithReference places blockType at target by finding the first
// non-empty axis-aligned neighbor and placing against the face pointing
// from it to the target. Returns an error when no reference exists; those
// cells are left for a later pass once their neighbors are filled.
func (v *Verifier) placeWithReference(ctx context.Context, blockType string, target world.Vec3i) error {
	for _, n := range target.AxisNeighbors() {
		b, err := v.port.BlockAt(ctx, n)
		if err != nil {
			return fmt.Errorf("neighbor query: %w", err)
		}
		if world.IsEmpty(b) {
			continue
		}
		face := target.Sub(n)
		if err := v.port.Place(ctx, blockType, n, face); err != nil {
			return fmt.Errorf("place: %w", err)
		}
		return nil
	}
	return fmt.Errorf("no reference neighbor at %s", target)
}

func (v *Verifier) event(kind, sessionID, msg string, data map[string]any) {
	if v.events == nil {
		return
	}
	_ = v.events.Event(buildlog.Event{
		Kind:      kind,
		SessionID: sessionID,
		Message:   msg,
		Data:      data,
	})
}
