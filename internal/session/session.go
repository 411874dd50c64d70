// Package session owns the phase state machine of one construction
// attempt: progress counters, checkpoint persistence, and per-phase
// execution dispatch. Block placement goes through the world port; check
// and correction of placements is delegated to the verifier.
package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"foreman.ai/internal/blueprint"
	"foreman.ai/internal/buildlog"
	"foreman.ai/internal/catalogs"
	"foreman.ai/internal/checkpoint"
	"foreman.ai/internal/verify"
	"foreman.ai/internal/world"
)

type Phase string

const (
	PhasePlanning          Phase = "planning"
	PhaseResourceGathering Phase = "resource_gathering"
	PhaseSitePreparation   Phase = "site_preparation"
	PhaseFoundation        Phase = "foundation"
	PhaseWalls             Phase = "walls"
	PhaseRoof              Phase = "roof"
	PhaseDetails           Phase = "details"
	PhaseVerification      Phase = "verification"
	PhaseComplete          Phase = "complete"
)

// phaseOrder is the fixed construction sequence. PhaseComplete is the
// terminal sentinel, not an executable phase.
var phaseOrder = []Phase{
	PhasePlanning,
	PhaseResourceGathering,
	PhaseSitePreparation,
	PhaseFoundation,
	PhaseWalls,
	PhaseRoof,
	PhaseDetails,
	PhaseVerification,
}

// checkpointEveryBlocks is the mid-phase checkpoint cadence.
const checkpointEveryBlocks = 20

type FailedBlock struct {
	Block  blueprint.BlockSpec `json:"block"`
	Reason string              `json:"reason"`
}

type Progress struct {
	TotalBlocks     int           `json:"total_blocks"`
	PlacedBlocks    int           `json:"placed_blocks"`
	Failed          []FailedBlock `json:"failed,omitempty"`
	CompletedPhases []Phase       `json:"completed_phases,omitempty"`
}

// ProgressSink receives forward-progress pings (the guardian).
type ProgressSink interface{ UpdateProgress() }

type Config struct {
	Logger *log.Logger
	Events *buildlog.Logger
	// Stop, when set and true, is honored between phases and between
	// individual block placements. In-flight world calls complete first.
	Stop *atomic.Bool
}

type Session struct {
	// mu serializes all access to mutable session state. Both the build
	// flow and guardian recovery can execute phases or checkpoint; only
	// one writer runs at a time.
	mu sync.Mutex

	id        string
	bp        *blueprint.Blueprint
	plan      blueprint.Plan
	phase     Phase
	progress  Progress
	nextSeq   int
	sinceCkpt int

	store    *checkpoint.Store
	port     world.Port
	verifier *verify.Verifier
	tables   *catalogs.Tables
	logger   *log.Logger
	events   *buildlog.Logger
	stop     *atomic.Bool
	sink     ProgressSink
}

// NewID derives a session id from the current time plus a random suffix.
func NewID() string {
	return fmt.Sprintf("build_%s_%s",
		time.Now().UTC().Format("20060102T150405"),
		uuid.NewString()[:8])
}

func New(port world.Port, verifier *verify.Verifier, tables *catalogs.Tables, store *checkpoint.Store, bp *blueprint.Blueprint, cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	s := &Session{
		id:       NewID(),
		bp:       bp,
		phase:    PhasePlanning,
		store:    store,
		port:     port,
		verifier: verifier,
		tables:   tables,
		logger:   logger,
		events:   cfg.Events,
		stop:     cfg.Stop,
	}
	s.progress.TotalBlocks = len(bp.Blocks)
	return s
}

// Load reconstructs a resumable session from the newest checkpoint written
// for id. Returns checkpoint.ErrSessionNotFound when none exists.
func Load(port world.Port, verifier *verify.Verifier, tables *catalogs.Tables, store *checkpoint.Store, id string, cfg Config) (*Session, error) {
	cp, err := store.Latest(id)
	if err != nil {
		return nil, err
	}
	next, err := store.NextSeq(id)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	s := &Session{
		id:       id,
		bp:       blueprintFromRecord(cp.Blueprint),
		phase:    Phase(cp.Phase),
		progress: progressFromRecord(cp.Progress),
		nextSeq:  next,
		store:    store,
		port:     port,
		verifier: verifier,
		tables:   tables,
		logger:   logger,
		events:   cfg.Events,
		stop:     cfg.Stop,
	}
	s.plan = blueprint.BuildPlan(s.bp, tables.DetailBlocks)
	return s, nil
}

func (s *Session) SessionID() string { return s.id }

func (s *Session) Blueprint() *blueprint.Blueprint { return s.bp }

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// CurrentPhase satisfies the guardian's hook interface.
func (s *Session) CurrentPhase() string { return string(s.Phase()) }

func (s *Session) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.progress
	out.Failed = append([]FailedBlock(nil), s.progress.Failed...)
	out.CompletedPhases = append([]Phase(nil), s.progress.CompletedPhases...)
	return out
}

// SetProgressSink wires the guardian in after construction (the guardian
// needs the session's hooks first).
func (s *Session) SetProgressSink(sink ProgressSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
}

// AdvancePhase moves to the next phase in the fixed sequence, records the
// finished phase, and checkpoints the transition. Advancing at or past the
// terminal state is idempotent and yields PhaseComplete without mutating
// anything.
func (s *Session) AdvancePhase(ctx context.Context) Phase {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhaseComplete {
		return PhaseComplete
	}

	finished := s.phase
	s.progress.CompletedPhases = append(s.progress.CompletedPhases, finished)

	next := PhaseComplete
	for i, p := range phaseOrder {
		if p == finished && i+1 < len(phaseOrder) {
			next = phaseOrder[i+1]
			break
		}
	}
	s.phase = next

	if err := s.checkpointLocked(ctx, fmt.Sprintf("phase %s complete", finished)); err != nil {
		s.logger.Printf("checkpoint on phase transition: %v", err)
	}
	s.event(buildlog.KindProgress, fmt.Sprintf("phase %s -> %s", finished, next), nil)
	return next
}

// CreateCheckpoint persists a durable snapshot of the session now.
func (s *Session) CreateCheckpoint(ctx context.Context, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkpointLocked(ctx, description)
}

func (s *Session) checkpointLocked(ctx context.Context, description string) error {
	cp := checkpoint.CheckpointV1{
		Header: checkpoint.Header{
			Version:   1,
			SessionID: s.id,
			Seq:       s.nextSeq,
		},
		Timestamp:   time.Now().UTC(),
		Phase:       string(s.phase),
		Progress:    progressToRecord(s.progress),
		Description: description,
		Blueprint:   blueprintToRecord(s.bp),
	}
	if pos, err := s.port.AgentPosition(ctx); err == nil {
		cp.AgentPos = pos.ToArray()
	}
	if items, err := s.port.InventoryItems(ctx); err == nil {
		for _, it := range items {
			cp.Inventory = append(cp.Inventory, checkpoint.ItemStackV1{Name: it.Name, Count: it.Count})
		}
	}

	if err := s.store.Append(cp); err != nil {
		return err
	}
	s.nextSeq++
	s.sinceCkpt = 0
	return nil
}

func (s *Session) stopped() bool {
	return s.stop != nil && s.stop.Load()
}

func (s *Session) ping() {
	if s.sink != nil {
		s.sink.UpdateProgress()
	}
}

func (s *Session) event(kind, msg string, data map[string]any) {
	if s.events == nil {
		return
	}
	_ = s.events.Event(buildlog.Event{
		Kind:      kind,
		SessionID: s.id,
		Phase:     string(s.phase),
		Message:   msg,
		Data:      data,
	})
}

func blueprintToRecord(bp *blueprint.Blueprint) checkpoint.BlueprintV1 {
	out := checkpoint.BlueprintV1{
		BuildingType: bp.BuildingType,
		ClearArea:    bp.ClearArea,
		LevelGround:  bp.LevelGround,
		Blocks:       make([]checkpoint.BlockV1, 0, len(bp.Blocks)),
	}
	for _, b := range bp.Blocks {
		out.Blocks = append(out.Blocks, checkpoint.BlockV1{Pos: b.Pos.ToArray(), Block: b.Type})
	}
	return out
}

func blueprintFromRecord(v1 checkpoint.BlueprintV1) *blueprint.Blueprint {
	bp := &blueprint.Blueprint{
		BuildingType: v1.BuildingType,
		ClearArea:    v1.ClearArea,
		LevelGround:  v1.LevelGround,
		Blocks:       make([]blueprint.BlockSpec, 0, len(v1.Blocks)),
	}
	for _, b := range v1.Blocks {
		bp.Blocks = append(bp.Blocks, blueprint.BlockSpec{Type: b.Block, Pos: world.FromArray(b.Pos)})
	}
	return bp
}

func progressToRecord(p Progress) checkpoint.ProgressV1 {
	out := checkpoint.ProgressV1{
		TotalBlocks:  p.TotalBlocks,
		PlacedBlocks: p.PlacedBlocks,
	}
	for _, f := range p.Failed {
		out.Failed = append(out.Failed, checkpoint.FailedBlockV1{
			Block:  checkpoint.BlockV1{Pos: f.Block.Pos.ToArray(), Block: f.Block.Type},
			Reason: f.Reason,
		})
	}
	for _, ph := range p.CompletedPhases {
		out.CompletedPhases = append(out.CompletedPhases, string(ph))
	}
	return out
}

func progressFromRecord(v1 checkpoint.ProgressV1) Progress {
	out := Progress{
		TotalBlocks:  v1.TotalBlocks,
		PlacedBlocks: v1.PlacedBlocks,
	}
	for _, f := range v1.Failed {
		out.Failed = append(out.Failed, FailedBlock{
			Block:  blueprint.BlockSpec{Type: f.Block.Block, Pos: world.FromArray(f.Block.Pos)},
			Reason: f.Reason,
		})
	}
	for _, ph := range v1.CompletedPhases {
		out.CompletedPhases = append(out.CompletedPhases, Phase(ph))
	}
	return out
}
