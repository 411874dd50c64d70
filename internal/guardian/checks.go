package guardian

import (
	"fmt"
	"time"

	"foreman.ai/internal/world"
)

// Action is a recovery the runner should attempt after a check.
type Action string

const (
	ActionNone              Action = ""
	ActionRecoverStagnation Action = "stagnation"
	ActionRecoverStuck      Action = "stuck"
)

// State is the monitoring ledger the pure checks thread through. Checks
// never mutate their input; they return the successor state.
type State struct {
	LastProgress  time.Time
	LastPos       world.Vec3i
	LastPosChange time.Time

	RepeatedFailures map[string]int

	LastMobCheck     time.Time
	LastWeatherCheck time.Time
}

func NewState(now time.Time, pos world.Vec3i) State {
	return State{
		LastProgress:     now,
		LastPos:          pos,
		LastPosChange:    now,
		RepeatedFailures: map[string]int{},
	}
}

func (s State) clone() State {
	out := s
	out.RepeatedFailures = make(map[string]int, len(s.RepeatedFailures))
	for k, v := range s.RepeatedFailures {
		out.RepeatedFailures[k] = v
	}
	return out
}

// Snapshot is everything a check may observe about the world.
type Snapshot struct {
	Now              time.Time
	AgentPos         world.Vec3i
	Vitals           world.Vitals
	Weather          world.Weather
	Hostiles         int
	MaterialCount    int
	DistanceFromSite float64
}

// CheckProgress fires a stagnation warning when no progress has been
// reported for longer than the stagnation threshold.
func CheckProgress(th Thresholds, snap Snapshot, st State) (Action, []string, State) {
	if snap.Now.Sub(st.LastProgress) <= th.MaxStagnantTime {
		return ActionNone, nil, st
	}
	out := st.clone()
	// The runner's recovery resets the timer again; this reset guarantees
	// a single warning per stagnation episode even if recovery fails.
	out.LastProgress = snap.Now
	warn := fmt.Sprintf("no progress for %s", snap.Now.Sub(st.LastProgress).Truncate(time.Second))
	return ActionRecoverStagnation, []string{warn}, out
}

// CheckPosition fires a stuck warning when the agent has not moved a full
// unit since the last check window and progress is also stale.
func CheckPosition(th Thresholds, snap Snapshot, st State) (Action, []string, State) {
	out := st.clone()
	if snap.AgentPos.Dist(st.LastPos) >= 1 {
		out.LastPos = snap.AgentPos
		out.LastPosChange = snap.Now
		return ActionNone, nil, out
	}
	if snap.Now.Sub(st.LastPosChange) <= th.StuckAfter || snap.Now.Sub(st.LastProgress) <= th.StuckAfter {
		return ActionNone, nil, out
	}
	out.LastPosChange = snap.Now
	warn := fmt.Sprintf("agent stuck at %s", snap.AgentPos)
	return ActionRecoverStuck, []string{warn}, out
}

// CheckEnvironment emits warnings only; environmental hazards never force
// recovery. Mob and weather sub-checks run on their own longer periods.
func CheckEnvironment(th Thresholds, snap Snapshot, st State) ([]string, State) {
	out := st.clone()
	var warns []string

	if snap.Now.Sub(st.LastMobCheck) >= th.MobCheckEvery {
		out.LastMobCheck = snap.Now
		if snap.Hostiles > 0 {
			warns = append(warns, fmt.Sprintf("%d hostile entities within %d units", snap.Hostiles, th.HostileRadius))
		}
	}
	if snap.Now.Sub(st.LastWeatherCheck) >= th.WeatherCheckEvery {
		out.LastWeatherCheck = snap.Now
		if snap.Weather.Raining {
			warns = append(warns, "raining at build site")
		}
		if snap.Weather.IsNight() {
			warns = append(warns, "night time")
		}
	}
	return warns, out
}

// CheckResources emits warnings for material shortage and site drift.
func CheckResources(th Thresholds, snap Snapshot) []string {
	var warns []string
	if snap.MaterialCount < th.MinResources {
		warns = append(warns, fmt.Sprintf("building materials low: %d", snap.MaterialCount))
	}
	if snap.DistanceFromSite > th.MaxDistanceFromSite {
		warns = append(warns, fmt.Sprintf("agent %.0f units from build site", snap.DistanceFromSite))
	}
	return warns
}

// CheckHealth emits warnings when vitals cross their floors.
func CheckHealth(th Thresholds, snap Snapshot) []string {
	var warns []string
	if snap.Vitals.Health <= th.HealthThreshold {
		warns = append(warns, fmt.Sprintf("health critical: %d", snap.Vitals.Health))
	}
	if snap.Vitals.Food <= th.FoodThreshold {
		warns = append(warns, fmt.Sprintf("food critical: %d", snap.Vitals.Food))
	}
	return warns
}
