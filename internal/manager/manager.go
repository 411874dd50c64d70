// Package manager is the top-level orchestrator: it gates, runs and
// supervises build sessions, and produces the final verification report.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"foreman.ai/internal/blueprint"
	"foreman.ai/internal/buildlog"
	"foreman.ai/internal/catalogs"
	"foreman.ai/internal/checkpoint"
	"foreman.ai/internal/guardian"
	"foreman.ai/internal/session"
	"foreman.ai/internal/verify"
	"foreman.ai/internal/world"
)

// ErrValidationFailed reports a failing pre-build gate; pass Options.Force
// to proceed anyway.
var ErrValidationFailed = errors.New("pre-build validation failed")

// defaultFailureBackoff is the wait after a failed phase before the forced
// advance.
const defaultFailureBackoff = 5 * time.Second

type Config struct {
	Logger *log.Logger
	Events *buildlog.Logger
	// Verify is passed through to the verifier (settle delay etc).
	Verify verify.Config
	// FailureBackoff overrides defaultFailureBackoff (tests).
	FailureBackoff time.Duration
}

type Options struct {
	// Force proceeds despite a failing pre-build gate.
	Force bool
}

// Report is the final outcome of a build or resume call. Reaching the
// complete phase does not imply a correct structure; the verification
// sections are the authority on what was actually built.
type Report struct {
	SessionID  string                     `json:"session_id"`
	FinalPhase session.Phase              `json:"final_phase"`
	Progress   session.Progress           `json:"progress"`
	PreBuild   *PreBuildReport            `json:"pre_build,omitempty"`
	Structure  verify.StructureReport     `json:"structure"`
	Function   verify.FunctionalityReport `json:"functionality"`
	Fixes      verify.FixReport           `json:"fixes"`
	Warnings   []guardian.Diag            `json:"warnings,omitempty"`
	Failures   []guardian.Diag            `json:"failures,omitempty"`
	Patterns   guardian.Patterns          `json:"patterns"`
	Stopped    bool                       `json:"stopped,omitempty"`
}

type Manager struct {
	port       world.Port
	store      *checkpoint.Store
	tables     *catalogs.Tables
	thresholds guardian.Thresholds
	logger     *log.Logger
	events     *buildlog.Logger
	verifyCfg  verify.Config
	backoff    time.Duration

	stop atomic.Bool
}

func New(port world.Port, store *checkpoint.Store, tables *catalogs.Tables, th guardian.Thresholds, cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	backoff := cfg.FailureBackoff
	if backoff == 0 {
		backoff = defaultFailureBackoff
	}
	vcfg := cfg.Verify
	if vcfg.Logger == nil {
		vcfg.Logger = logger
	}
	if vcfg.Events == nil {
		vcfg.Events = cfg.Events
	}
	return &Manager{
		port:       port,
		store:      store,
		tables:     tables,
		thresholds: th,
		logger:     logger,
		events:     cfg.Events,
		verifyCfg:  vcfg,
		backoff:    backoff,
	}
}

// StopBuild requests a graceful stop. The flag is checked between phases
// and between block placements; an in-flight world call completes first.
func (m *Manager) StopBuild() { m.stop.Store(true) }

// ListSessions reports every resumable session known to the checkpoint
// store.
func (m *Manager) ListSessions() ([]checkpoint.SessionInfo, error) {
	return m.store.ListSessions()
}

// Build runs a full construction attempt for bp: pre-build gate, phase
// loop under guardian supervision, then post-build verification.
func (m *Manager) Build(ctx context.Context, bp *blueprint.Blueprint, opts Options) (*Report, error) {
	m.stop.Store(false)

	pre := m.PreBuildCheck(ctx, bp)
	if !pre.Passed && !opts.Force {
		return &Report{PreBuild: &pre}, fmt.Errorf("%w: %s", ErrValidationFailed, summarizeGate(pre))
	}
	if !pre.Passed {
		m.logger.Printf("pre-build gate failed, forced to proceed: %s", summarizeGate(pre))
	}

	verifier := verify.New(m.port, m.tables, m.verifyCfg)
	sess := session.New(m.port, verifier, m.tables, m.store, bp, session.Config{
		Logger: m.logger,
		Events: m.events,
		Stop:   &m.stop,
	})
	rep, err := m.run(ctx, sess, verifier)
	if rep != nil {
		rep.PreBuild = &pre
	}
	return rep, err
}

// Resume reconstructs the session from its latest checkpoint and continues
// the phase loop. Returns checkpoint.ErrSessionNotFound for unknown ids.
func (m *Manager) Resume(ctx context.Context, sessionID string, opts Options) (*Report, error) {
	m.stop.Store(false)

	verifier := verify.New(m.port, m.tables, m.verifyCfg)
	sess, err := session.Load(m.port, verifier, m.tables, m.store, sessionID, session.Config{
		Logger: m.logger,
		Events: m.events,
		Stop:   &m.stop,
	})
	if err != nil {
		return nil, err
	}
	m.logger.Printf("resuming session %s at phase %s", sessionID, sess.Phase())
	return m.run(ctx, sess, verifier)
}

// run drives the phase loop to completion, then the post-build
// verification. On a failed phase the loop records the failure, writes an
// emergency checkpoint, backs off, and advances anyway: the system prefers
// forward progress with a logged defect over halting, and surfaces
// accumulated defects in the final verification.
func (m *Manager) run(ctx context.Context, sess *session.Session, verifier *verify.Verifier) (*Report, error) {
	g := guardian.New(m.port, m.tables, m.thresholds, guardian.Config{
		Logger: m.logger,
		Events: m.events,
	})
	sess.SetProgressSink(g)
	g.StartMonitoring(ctx, sess, sess.Blueprint().Centroid())
	defer g.StopMonitoring()

	for sess.Phase() != session.PhaseComplete {
		if m.stop.Load() || ctx.Err() != nil {
			break
		}
		phase := sess.Phase()
		key := "phase_" + string(phase)

		if sess.ExecuteCurrentPhase(ctx) {
			g.UpdateProgress()
			g.RecordSuccess(key, sess.SessionID())
			sess.AdvancePhase(ctx)
			continue
		}
		if m.stop.Load() || ctx.Err() != nil {
			break
		}

		g.RecordFailure(key, sess.SessionID(), "phase handler failed")
		if err := sess.CreateCheckpoint(ctx, "emergency: "+string(phase)+" failed"); err != nil {
			m.logger.Printf("emergency checkpoint: %v", err)
		}
		select {
		case <-time.After(m.backoff):
		case <-ctx.Done():
		}
		sess.AdvancePhase(ctx)
	}

	rep := &Report{
		SessionID:  sess.SessionID(),
		FinalPhase: sess.Phase(),
		Progress:   sess.Progress(),
		Stopped:    m.stop.Load(),
	}

	if sess.Phase() == session.PhaseComplete {
		if err := m.postBuildVerify(ctx, sess.Blueprint(), verifier, rep); err != nil {
			m.logger.Printf("post-build verification: %v", err)
		}
	}

	rep.Warnings = g.Warnings()
	rep.Failures = g.Failures()
	rep.Patterns = g.PatternWindow()
	return rep, nil
}

// postBuildVerify fills the report's structure and functionality sections,
// attempting structural fixes when the battery fails.
func (m *Manager) postBuildVerify(ctx context.Context, bp *blueprint.Blueprint, verifier *verify.Verifier, rep *Report) error {
	structure, err := verifier.ValidateStructure(ctx, bp)
	if err != nil {
		return err
	}
	rep.Structure = structure

	fn, err := verifier.ValidateFunctionality(ctx, bp)
	if err != nil {
		return err
	}
	rep.Function = fn

	if !fn.Functional {
		rep.Fixes = verifier.AttemptStructuralFixes(ctx, fn)
	}
	return nil
}

// Validate runs structure plus functionality verification against an
// existing build without constructing anything.
func (m *Manager) Validate(ctx context.Context, bp *blueprint.Blueprint) (*Report, error) {
	verifier := verify.New(m.port, m.tables, m.verifyCfg)
	rep := &Report{FinalPhase: session.PhaseVerification}
	if err := m.postBuildVerify(ctx, bp, verifier, rep); err != nil {
		return nil, err
	}
	return rep, nil
}

func summarizeGate(pre PreBuildReport) string {
	var failed []string
	for _, c := range []CheckResult{pre.Materials, pre.Terrain, pre.Environment, pre.Tools} {
		if !c.Passed {
			failed = append(failed, c.Name)
		}
	}
	out := ""
	for i, f := range failed {
		if i > 0 {
			out += ", "
		}
		out += f
	}
	return out
}
