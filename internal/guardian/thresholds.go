// Package guardian watches an active build session for stalls, stuck
// agents, environmental hazards and resource shortages, and drives
// recovery. Checks are pure functions over a world snapshot and the
// guardian state; the runner schedules them on independent periods
// concurrently with the build flow.
package guardian

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Thresholds struct {
	MaxStagnantTime     time.Duration
	StuckAfter          time.Duration
	MaxRepeatedFailures int
	MinResources        int
	MaxDistanceFromSite float64
	HealthThreshold     int
	FoodThreshold       int
	HostileRadius       int

	ProgressCheckEvery    time.Duration
	PositionCheckEvery    time.Duration
	EnvironmentCheckEvery time.Duration
	MobCheckEvery         time.Duration
	WeatherCheckEvery     time.Duration
	ResourceCheckEvery    time.Duration
	HealthCheckEvery      time.Duration

	// PatternWindow is how long recorded outcomes are kept.
	PatternWindow time.Duration
}

// duration decodes yaml "30s" / "24h" style values.
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration %q: %w", s, err)
	}
	*d = duration(v)
	return nil
}

type thresholdsFile struct {
	MaxStagnantTime     duration `yaml:"max_stagnant_time"`
	StuckAfter          duration `yaml:"stuck_after"`
	MaxRepeatedFailures int      `yaml:"max_repeated_failures"`
	MinResources        int      `yaml:"min_resources"`
	MaxDistanceFromSite float64  `yaml:"max_distance_from_site"`
	HealthThreshold     int      `yaml:"health_threshold"`
	FoodThreshold       int      `yaml:"food_threshold"`
	HostileRadius       int      `yaml:"hostile_radius"`

	ProgressCheckEvery    duration `yaml:"progress_check_every"`
	PositionCheckEvery    duration `yaml:"position_check_every"`
	EnvironmentCheckEvery duration `yaml:"environment_check_every"`
	MobCheckEvery         duration `yaml:"mob_check_every"`
	WeatherCheckEvery     duration `yaml:"weather_check_every"`
	ResourceCheckEvery    duration `yaml:"resource_check_every"`
	HealthCheckEvery      duration `yaml:"health_check_every"`

	PatternWindow duration `yaml:"pattern_window"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxStagnantTime:     30 * time.Second,
		StuckAfter:          10 * time.Second,
		MaxRepeatedFailures: 5,
		MinResources:        10,
		MaxDistanceFromSite: 20,
		HealthThreshold:     5,
		FoodThreshold:       5,
		HostileRadius:       20,

		ProgressCheckEvery:    5 * time.Second,
		PositionCheckEvery:    5 * time.Second,
		EnvironmentCheckEvery: 5 * time.Second,
		MobCheckEvery:         10 * time.Second,
		WeatherCheckEvery:     30 * time.Second,
		ResourceCheckEvery:    10 * time.Second,
		HealthCheckEvery:      3 * time.Second,

		PatternWindow: 24 * time.Hour,
	}
}

// LoadThresholds reads a thresholds yaml; unset fields keep their defaults.
func LoadThresholds(path string) (Thresholds, error) {
	t := DefaultThresholds()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	var f thresholdsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return t, fmt.Errorf("guardian.yaml: %w", err)
	}

	setDur := func(dst *time.Duration, v duration) {
		if v != 0 {
			*dst = time.Duration(v)
		}
	}
	setDur(&t.MaxStagnantTime, f.MaxStagnantTime)
	setDur(&t.StuckAfter, f.StuckAfter)
	setDur(&t.ProgressCheckEvery, f.ProgressCheckEvery)
	setDur(&t.PositionCheckEvery, f.PositionCheckEvery)
	setDur(&t.EnvironmentCheckEvery, f.EnvironmentCheckEvery)
	setDur(&t.MobCheckEvery, f.MobCheckEvery)
	setDur(&t.WeatherCheckEvery, f.WeatherCheckEvery)
	setDur(&t.ResourceCheckEvery, f.ResourceCheckEvery)
	setDur(&t.HealthCheckEvery, f.HealthCheckEvery)
	setDur(&t.PatternWindow, f.PatternWindow)

	if f.MaxRepeatedFailures != 0 {
		t.MaxRepeatedFailures = f.MaxRepeatedFailures
	}
	if f.MinResources != 0 {
		t.MinResources = f.MinResources
	}
	if f.MaxDistanceFromSite != 0 {
		t.MaxDistanceFromSite = f.MaxDistanceFromSite
	}
	if f.HealthThreshold != 0 {
		t.HealthThreshold = f.HealthThreshold
	}
	if f.FoodThreshold != 0 {
		t.FoodThreshold = f.FoodThreshold
	}
	if f.HostileRadius != 0 {
		t.HostileRadius = f.HostileRadius
	}
	return t, nil
}
