// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compositor

import (
	"log/slog"
	"sync/atomic"
)

// DeviceState is the health of the GPU device backing the shared
// textures. There are exactly two states; there is no intermediate
// "recovering" state because recovery happens lazily on the first
// successful re-export.
type DeviceState int32

const (
	// DeviceHealthy means handles of the current generation are
	// importable.
	DeviceHealthy DeviceState = iota

	// DeviceLost means the device has been lost: every outstanding
	// handle is stale and producers must reinitialize.
	DeviceLost
)

// String returns the state name.
func (s DeviceState) String() string {
	switch s {
	case DeviceHealthy:
		return "healthy"
	case DeviceLost:
		return "lost"
	default:
		return "unknown"
	}
}

// ProbeFunc checks device liveness. It returns nil while the device is
// usable and an error once it is lost. Probes run on the presentation
// thread and must be cheap.
type ProbeFunc func() error

// HealthMonitor tracks device health for one presentation surface.
//
// Transitions are one-way per incident: a failed probe moves
// Healthy -> Lost, marks the generation stale through the invalidate
// hook, and starts counting recovery attempts. The monitor never flips
// back on its own; ReportRecovery is called by the compositor when a
// producer's frame imports cleanly under a fresh generation.
//
// State reads are atomic so producers may consult the monitor from
// their own goroutines while probes run on the presentation thread.
type HealthMonitor struct {
	state atomic.Int32

	probe      ProbeFunc
	invalidate func()

	// losses counts Healthy -> Lost transitions over the monitor's
	// lifetime.
	losses atomic.Uint64

	// attemptsWhileLost counts probe failures since the current loss.
	// Reset on recovery. Presentation-thread only.
	attemptsWhileLost int

	budget       int
	onDiagnostic func(error)
	diagnosed    bool
}

// NewHealthMonitor creates a monitor in the Healthy state.
//
// probe checks device liveness; invalidate is called once per loss to
// bump the sharing generation (typically Exporter.Invalidate). budget
// is the number of consecutive failed probes while Lost before
// onDiagnostic fires once; onDiagnostic may be nil, in which case the
// diagnostic is logged at Warn.
func NewHealthMonitor(probe ProbeFunc, invalidate func(), budget int, onDiagnostic func(error)) *HealthMonitor {
	if budget < 1 {
		budget = DefaultRecoveryAttemptBudget
	}
	return &HealthMonitor{
		probe:        probe,
		invalidate:   invalidate,
		budget:       budget,
		onDiagnostic: onDiagnostic,
	}
}

// State returns the current device state. Safe for concurrent use.
func (m *HealthMonitor) State() DeviceState {
	return DeviceState(m.state.Load())
}

// Losses returns the number of device losses observed so far.
func (m *HealthMonitor) Losses() uint64 {
	return m.losses.Load()
}

// Probe runs one liveness check. Called from the presentation thread
// at the configured interval. It returns the state after the check.
//
// On the transition into Lost the sharing generation is invalidated,
// stranding every outstanding handle at once. While Lost, each further
// failed probe consumes recovery budget; when the budget is exhausted
// the diagnostic fires exactly once per incident.
func (m *HealthMonitor) Probe() DeviceState {
	err := m.probe()
	if err == nil {
		if m.State() == DeviceLost {
			// The device answers probes again, but handles stay stale
			// until a producer re-exports; recovery is reported by the
			// compositor when an import succeeds.
			Logger().Debug("device probe ok while lost, awaiting re-export")
		}
		return m.State()
	}

	switch m.State() {
	case DeviceHealthy:
		m.state.Store(int32(DeviceLost))
		m.losses.Add(1)
		m.attemptsWhileLost = 0
		m.diagnosed = false
		if m.invalidate != nil {
			m.invalidate()
		}
		Logger().Warn("device lost, handles invalidated",
			slog.Any("error", err),
			slog.Uint64("losses", m.losses.Load()))

	case DeviceLost:
		m.attemptsWhileLost++
		if m.attemptsWhileLost >= m.budget && !m.diagnosed {
			m.diagnosed = true
			diag := &DeviceLossDiagnostic{Attempts: m.attemptsWhileLost, Err: err}
			if m.onDiagnostic != nil {
				m.onDiagnostic(diag)
			} else {
				Logger().Warn("device recovery budget exhausted",
					slog.Int("attempts", m.attemptsWhileLost),
					slog.Any("error", err))
			}
		}
	}
	return m.State()
}

// ReportRecovery records that a frame imported cleanly under a fresh
// generation, flipping the state back to Healthy. Called by the
// compositor on the presentation thread; a no-op while Healthy.
func (m *HealthMonitor) ReportRecovery() {
	if m.State() != DeviceLost {
		return
	}
	m.state.Store(int32(DeviceHealthy))
	Logger().Info("device recovered",
		slog.Int("attempts", m.attemptsWhileLost),
		slog.Uint64("losses", m.losses.Load()))
	m.attemptsWhileLost = 0
	m.diagnosed = false
}

// DeviceLossDiagnostic is the user-visible diagnostic emitted when the
// recovery attempt budget is exhausted. The compositor keeps running
// after it fires; it signals "degraded for a while", not "give up".
type DeviceLossDiagnostic struct {
	// Attempts is the number of failed probes since the loss.
	Attempts int

	// Err is the most recent probe error.
	Err error
}

// Error implements the error interface.
func (d *DeviceLossDiagnostic) Error() string {
	return "compositor: device not recovered after repeated probes: " + d.Err.Error()
}

// Unwrap returns the underlying probe error.
func (d *DeviceLossDiagnostic) Unwrap() error { return d.Err }
