// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compositor

import (
	"sync/atomic"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// TickStats describes one compositing tick.
type TickStats struct {
	// Duration is the wall time spent inside Tick, including any
	// synchronous UI render.
	Duration time.Duration

	// SceneSequence and UISequence are the sequence numbers of the
	// frames claimed this tick. Zero means no frame was available.
	SceneSequence uint64
	UISequence    uint64

	// SceneFresh reports whether the scene frame changed since the
	// previous tick.
	SceneFresh bool

	// UIRendered reports whether the UI producer rendered this tick.
	UIRendered bool

	// Imported is the number of handles imported this tick. Steady
	// state is zero: imports happen only for handles not seen before.
	Imported int

	// Degraded reports whether any layer fell back to a last-good frame
	// or was skipped this tick.
	Degraded bool

	// DeviceState is the device health observed during the tick.
	DeviceState DeviceState
}

// MetricsSink receives per-tick statistics. Implementations must be
// cheap: RecordTick runs on the presentation thread inside the frame
// budget.
type MetricsSink interface {
	RecordTick(TickStats)
}

// Collector is a MetricsSink that aggregates tick statistics with
// atomic counters, safe to read from any goroutine while the
// compositor runs.
type Collector struct {
	ticks         atomic.Uint64
	degradedTicks atomic.Uint64
	uiRenders     atomic.Uint64
	imports       atomic.Uint64
	totalNanos    atomic.Int64
	maxNanos      atomic.Int64
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// RecordTick implements MetricsSink.
func (c *Collector) RecordTick(s TickStats) {
	c.ticks.Add(1)
	if s.Degraded {
		c.degradedTicks.Add(1)
	}
	if s.UIRendered {
		c.uiRenders.Add(1)
	}
	c.imports.Add(uint64(s.Imported))

	nanos := s.Duration.Nanoseconds()
	c.totalNanos.Add(nanos)
	for {
		max := c.maxNanos.Load()
		if nanos <= max || c.maxNanos.CompareAndSwap(max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated statistics so far.
func (c *Collector) Snapshot() CollectorStats {
	ticks := c.ticks.Load()
	stats := CollectorStats{
		Ticks:         ticks,
		DegradedTicks: c.degradedTicks.Load(),
		UIRenders:     c.uiRenders.Load(),
		Imports:       c.imports.Load(),
		MaxTick:       time.Duration(c.maxNanos.Load()),
	}
	if ticks > 0 {
		stats.AvgTick = time.Duration(c.totalNanos.Load() / int64(ticks))
	}
	return stats
}

// Reset zeroes all counters.
func (c *Collector) Reset() {
	c.ticks.Store(0)
	c.degradedTicks.Store(0)
	c.uiRenders.Store(0)
	c.imports.Store(0)
	c.totalNanos.Store(0)
	c.maxNanos.Store(0)
}

// CollectorStats is a point-in-time aggregate of tick statistics.
type CollectorStats struct {
	Ticks         uint64
	DegradedTicks uint64
	UIRenders     uint64
	Imports       uint64
	AvgTick       time.Duration
	MaxTick       time.Duration
}

// statsPrinter formats counts with locale-aware grouping.
var statsPrinter = message.NewPrinter(language.English)

// String returns a single-line summary suitable for logs and the debug
// overlay.
func (s CollectorStats) String() string {
	return statsPrinter.Sprintf("ticks=%d degraded=%d ui_renders=%d imports=%d avg=%v max=%v",
		s.Ticks, s.DegradedTicks, s.UIRenders, s.Imports, s.AvgTick, s.MaxTick)
}

// Ensure Collector implements MetricsSink.
var _ MetricsSink = (*Collector)(nil)
