package guardian

import (
	"context"
	"log"
	"sync"
	"time"

	"foreman.ai/internal/buildlog"
	"foreman.ai/internal/catalogs"
	"foreman.ai/internal/world"
)

// SessionHooks is the narrow re-entry surface recovery may use. The
// guardian never mutates session progress counters directly.
type SessionHooks interface {
	ExecuteCurrentPhase(ctx context.Context) bool
	CreateCheckpoint(ctx context.Context, description string) error
	CurrentPhase() string
	SessionID() string
}

type Diag struct {
	Time    time.Time `json:"time"`
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
}

// Outcome is one recorded success or failure in the rolling pattern window.
type Outcome struct {
	Time    time.Time `json:"time"`
	Action  string    `json:"action"`
	Context string    `json:"context,omitempty"`
	Reason  string    `json:"reason,omitempty"`
}

type Patterns struct {
	Successes []Outcome `json:"successes"`
	Failures  []Outcome `json:"failures"`
}

type Config struct {
	Logger *log.Logger
	Events *buildlog.Logger
	// Now overrides the clock (tests).
	Now func() time.Time
}

// Guardian monitors one build session. Construct one per build attempt;
// Start activates the periodic checks and Stop tears them down. Failure
// counters survive Stop/Start and reset only through explicit recovery.
type Guardian struct {
	th     Thresholds
	port   world.Port
	tables *catalogs.Tables
	logger *log.Logger
	events *buildlog.Logger
	now    func() time.Time

	mu       sync.Mutex
	st       State
	hooks    SessionHooks
	site     world.Vec3i
	warnings []Diag
	failures []Diag
	patterns Patterns
	active   bool

	stop   chan struct{}
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func New(port world.Port, tables *catalogs.Tables, th Thresholds, cfg Config) *Guardian {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Guardian{
		th:     th,
		port:   port,
		tables: tables,
		logger: logger,
		events: cfg.Events,
		now:    now,
		st:     NewState(now(), world.Vec3i{}),
	}
}

// StartMonitoring binds the guardian to a session and launches the
// periodic checks. Warning/failure logs reset per activation; the
// repeated-failure counters deliberately do not.
func (g *Guardian) StartMonitoring(ctx context.Context, hooks SessionHooks, site world.Vec3i) {
	g.mu.Lock()
	if g.active {
		g.mu.Unlock()
		return
	}
	g.active = true
	g.hooks = hooks
	g.site = site
	g.warnings = nil
	g.failures = nil
	now := g.now()
	g.st.LastProgress = now
	g.st.LastPosChange = now
	g.stop = make(chan struct{})
	ctx, g.cancel = context.WithCancel(ctx)
	g.mu.Unlock()

	runs := []struct {
		every time.Duration
		tick  func(context.Context)
	}{
		{g.th.ProgressCheckEvery, g.progressTick},
		{g.th.PositionCheckEvery, g.positionTick},
		{g.th.EnvironmentCheckEvery, g.environmentTick},
		{g.th.ResourceCheckEvery, g.resourceTick},
		{g.th.HealthCheckEvery, g.healthTick},
	}
	for _, r := range runs {
		r := r
		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			t := time.NewTicker(r.every)
			defer t.Stop()
			for {
				select {
				case <-g.stop:
					return
				case <-ctx.Done():
					return
				case <-t.C:
					r.tick(ctx)
				}
			}
		}()
	}
}

func (g *Guardian) StopMonitoring() {
	g.mu.Lock()
	if !g.active {
		g.mu.Unlock()
		return
	}
	g.active = false
	close(g.stop)
	cancel := g.cancel
	g.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	g.wg.Wait()
}

// UpdateProgress marks forward progress; the build flow calls it after
// every successful phase and block placement.
func (g *Guardian) UpdateProgress() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.st.LastProgress = g.now()
}

// LastProgressAt exposes the progress timestamp for assertions and status
// reporting.
func (g *Guardian) LastProgressAt() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.st.LastProgress
}

// RecordSuccess appends to the rolling pattern window.
func (g *Guardian) RecordSuccess(action, context string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	g.patterns.Successes = append(g.patterns.Successes, Outcome{Time: now, Action: action, Context: context})
	g.patterns.Successes = pruneWindow(g.patterns.Successes, now, g.th.PatternWindow)
}

// RecordFailure appends to the pattern window and bumps the per-type
// failure counter. Crossing MaxRepeatedFailures fires repeated-failure
// recovery exactly once and resets that counter to zero.
func (g *Guardian) RecordFailure(action, context, reason string) {
	g.mu.Lock()
	now := g.now()
	g.patterns.Failures = append(g.patterns.Failures, Outcome{Time: now, Action: action, Context: context, Reason: reason})
	g.patterns.Failures = pruneWindow(g.patterns.Failures, now, g.th.PatternWindow)
	g.failures = append(g.failures, Diag{Time: now, Kind: action, Message: reason})

	g.st.RepeatedFailures[action]++
	escalate := g.st.RepeatedFailures[action] >= g.th.MaxRepeatedFailures
	if escalate {
		g.st.RepeatedFailures[action] = 0
		g.st.LastProgress = now
	}
	g.mu.Unlock()

	if escalate {
		g.logger.Printf("repeated failure escalation: %s (%s)", action, reason)
		g.event(buildlog.KindRecovery, "repeated_failure recovery", map[string]any{
			"action": action, "context": context,
		})
	}
}

// FailureCount reports the current per-type counter (observability).
func (g *Guardian) FailureCount(action string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.st.RepeatedFailures[action]
}

func (g *Guardian) Warnings() []Diag {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Diag(nil), g.warnings...)
}

func (g *Guardian) Failures() []Diag {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Diag(nil), g.failures...)
}

func (g *Guardian) PatternWindow() Patterns {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Patterns{
		Successes: append([]Outcome(nil), g.patterns.Successes...),
		Failures:  append([]Outcome(nil), g.patterns.Failures...),
	}
}

func pruneWindow(window []Outcome, now time.Time, keep time.Duration) []Outcome {
	cutoff := now.Add(-keep)
	i := 0
	for ; i < len(window); i++ {
		if window[i].Time.After(cutoff) {
			break
		}
	}
	return window[i:]
}

func (g *Guardian) warn(kind string, msgs []string) {
	if len(msgs) == 0 {
		return
	}
	g.mu.Lock()
	now := g.now()
	for _, m := range msgs {
		g.warnings = append(g.warnings, Diag{Time: now, Kind: kind, Message: m})
	}
	g.mu.Unlock()
	for _, m := range msgs {
		g.logger.Printf("warning [%s]: %s", kind, m)
		g.event(buildlog.KindWarning, m, map[string]any{"check": kind})
	}
}

func (g *Guardian) event(kind, msg string, data map[string]any) {
	if g.events == nil {
		return
	}
	sessionID := ""
	g.mu.Lock()
	if g.hooks != nil {
		sessionID = g.hooks.SessionID()
	}
	g.mu.Unlock()
	_ = g.events.Event(buildlog.Event{Kind: kind, SessionID: sessionID, Message: msg, Data: data})
}
