// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compositor

import (
	"image/color"
	"time"
)

// Default tuning constants.
const (
	// DefaultHealthProbeInterval is the number of ticks between device
	// health probes.
	DefaultHealthProbeInterval = 300

	// DefaultStallToleranceTicks is the number of ticks without a fresh
	// scene commit before the scene layer is considered stalled
	// (about two seconds at 60 Hz). A UX tuning parameter, not a
	// correctness requirement.
	DefaultStallToleranceTicks = 120

	// DefaultRecoveryAttemptBudget is the number of consecutive failed
	// probes while Lost before a user-visible diagnostic is emitted.
	DefaultRecoveryAttemptBudget = 5

	// DefaultSceneCadence is the scene producer's target frame interval.
	DefaultSceneCadence = time.Second / 60
)

// Options configures a Compositor or PresentationSurface.
type Options struct {
	// BackgroundColor is drawn beneath all layers every tick.
	// Default: opaque black.
	BackgroundColor color.Color

	// HealthProbeInterval is the number of ticks between device health
	// probes. Values < 1 select DefaultHealthProbeInterval.
	HealthProbeInterval int

	// StallToleranceTicks is the number of ticks without a fresh scene
	// commit before the layer degrades to its last-good frame with a
	// diagnostic. Values < 1 select DefaultStallToleranceTicks.
	StallToleranceTicks int

	// RecoveryAttemptBudget is the number of consecutive failed probes
	// while the device is Lost before OnDiagnostic fires. Values < 1
	// select DefaultRecoveryAttemptBudget.
	RecoveryAttemptBudget int

	// SceneCadence is the scene producer's target frame interval.
	// Values <= 0 select DefaultSceneCadence (60 Hz).
	SceneCadence time.Duration

	// Probe checks device liveness at the probe interval. nil means the
	// device is assumed healthy (software backends).
	Probe ProbeFunc

	// Metrics receives per-tick statistics. nil disables collection.
	Metrics MetricsSink

	// OnDiagnostic receives the single user-visible diagnostic emitted
	// when the recovery attempt budget is exhausted. nil logs a warning
	// instead.
	OnDiagnostic func(error)
}

// DefaultOptions returns Options with documented defaults applied.
func DefaultOptions() Options {
	return Options{
		BackgroundColor:       color.Black,
		HealthProbeInterval:   DefaultHealthProbeInterval,
		StallToleranceTicks:   DefaultStallToleranceTicks,
		RecoveryAttemptBudget: DefaultRecoveryAttemptBudget,
		SceneCadence:          DefaultSceneCadence,
	}
}

// normalized returns a copy with zero fields replaced by defaults.
func (o Options) normalized() Options {
	if o.BackgroundColor == nil {
		o.BackgroundColor = color.Black
	}
	if o.HealthProbeInterval < 1 {
		o.HealthProbeInterval = DefaultHealthProbeInterval
	}
	if o.StallToleranceTicks < 1 {
		o.StallToleranceTicks = DefaultStallToleranceTicks
	}
	if o.RecoveryAttemptBudget < 1 {
		o.RecoveryAttemptBudget = DefaultRecoveryAttemptBudget
	}
	if o.SceneCadence <= 0 {
		o.SceneCadence = DefaultSceneCadence
	}
	return o
}
