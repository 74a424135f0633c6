// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compositor

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gogpu/compositor/internal/imports"
	"github.com/gogpu/compositor/share"
)

// layer is the compositor-side view of one producer channel: the last
// claimed frame, its imported texture, and stall bookkeeping.
//
// All fields are presentation-thread only.
type layer struct {
	name    string
	channel *DoubleBufferedChannel
	blend   bool

	// current is the texture backing the most recent successful import
	// for this layer. It is owned by the import cache, not the layer.
	current    share.Texture
	currentSeq uint64

	// natives are the slot IDs this layer's imports came from, oldest
	// first. Producers double-buffer, so two slots cover the live set;
	// when a resize retires a slot mid-generation its import is evicted
	// here instead of lingering until the next generation sweep.
	natives [2]uint64

	// staleTicks counts consecutive ticks without a fresh commit.
	staleTicks  int
	stallLogged bool
}

// Compositor merges the scene and UI layers into one presented frame
// per tick. It runs entirely on the presentation thread; producers are
// reached only through their channels' atomic reads and the UI
// producer's dirty flag.
type Compositor struct {
	opts      Options
	presenter Presenter
	importer  share.Exporter
	cache     *imports.Cache
	health    *HealthMonitor

	scene *layer
	ui    *layer
	uiP   *UIProducer

	ticks   uint64
	lastGen uint64
	closed  bool
}

// New creates a compositor presenting to presenter.
//
// importer is the compositor's own sharing context; scene is the scene
// producer's channel and uiProducer the on-demand UI producer. Either
// may be nil, leaving that layer out of the composite.
func New(presenter Presenter, importer share.Exporter,
	scene *DoubleBufferedChannel, uiProducer *UIProducer, opts Options) *Compositor {
	opts = opts.normalized()

	c := &Compositor{
		opts:      opts,
		presenter: presenter,
		importer:  importer,
		cache:     imports.New(),
		lastGen:   importer.Generation(),
	}

	probe := opts.Probe
	if probe == nil {
		probe = func() error { return nil }
	}
	c.health = NewHealthMonitor(probe, importer.Invalidate,
		opts.RecoveryAttemptBudget, opts.OnDiagnostic)

	if scene != nil {
		c.scene = &layer{name: "scene", channel: scene}
	}
	if uiProducer != nil {
		c.uiP = uiProducer
		c.ui = &layer{name: "ui", channel: uiProducer.Channel(), blend: true}
	}
	return c
}

// Health returns the compositor's device health monitor.
func (c *Compositor) Health() *HealthMonitor { return c.health }

// Ticks returns the number of completed ticks.
func (c *Compositor) Ticks() uint64 { return c.ticks }

// Tick composes and presents one frame. Called on the presentation
// thread for every redraw signal.
//
// The tick never fails outright: export, import, device and producer
// problems all degrade the output locally (last-good layer, scaled
// layer, or background only) and the composed frame is presented
// regardless. The returned error is the presenter's, which is the only
// unrecoverable part of a tick.
func (c *Compositor) Tick() error {
	if c.closed {
		return ErrSurfaceClosed
	}
	start := time.Now()
	c.ticks++

	stats := TickStats{}

	// Periodic device health probe. On the tick that discovers a loss,
	// the generation has been bumped by the monitor's invalidate hook;
	// drop every cached import of the dead generation at once.
	if c.opts.Probe != nil && c.ticks%uint64(c.opts.HealthProbeInterval) == 0 {
		c.health.Probe()
	}
	if gen := c.importer.Generation(); gen != c.lastGen {
		dropped := c.cache.DropStale(gen)
		c.lastGen = gen
		c.dropLayerTextures()
		Logger().Warn("generation changed, imports dropped",
			slog.Uint64("generation", gen),
			slog.Int("dropped", dropped))
	}
	stats.DeviceState = c.health.State()

	// Synchronous UI render, inside this tick's budget. A failure
	// leaves the dirty flag set and the last committed UI frame in use.
	if c.uiP != nil {
		rendered, err := c.uiP.RenderIfDirty()
		stats.UIRendered = rendered
		if err != nil {
			stats.Degraded = true
			Logger().Warn("ui render failed, reusing last frame",
				slog.Any("error", err))
		}
	}

	// Claim the latest frame from each channel and resolve it to an
	// imported texture.
	var sceneTex, uiTex share.Texture
	if c.scene != nil {
		sceneTex = c.claim(c.scene, &stats)
		if h, ok := c.scene.channel.ReadCurrent(); ok {
			stats.SceneSequence = h.Sequence
		}
	}
	if c.ui != nil {
		uiTex = c.claim(c.ui, &stats)
		if h, ok := c.ui.channel.ReadCurrent(); ok {
			stats.UISequence = h.Sequence
		}
	}

	// Compose back to front. Layer draw failures skip the layer; the
	// background beneath it has already been cleared.
	c.presenter.Clear(c.opts.BackgroundColor)
	if sceneTex != nil {
		if err := c.drawLayer(c.scene, sceneTex, &stats); err != nil {
			Logger().Warn("scene layer skipped", slog.Any("error", err))
		}
	} else if c.scene != nil {
		stats.Degraded = true
	}
	if uiTex != nil {
		if err := c.drawLayer(c.ui, uiTex, &stats); err != nil {
			Logger().Warn("ui layer skipped", slog.Any("error", err))
		}
	}

	err := c.presenter.Present()

	stats.Duration = time.Since(start)
	if c.opts.Metrics != nil {
		c.opts.Metrics.RecordTick(stats)
	}
	return err
}

// claim reads the layer's latest committed handle and resolves it to a
// texture, importing it if this handle has not been seen under the
// current generation. On any failure the layer's last successfully
// imported texture is returned instead.
func (c *Compositor) claim(l *layer, stats *TickStats) share.Texture {
	h, ok := l.channel.ReadCurrent()
	if !ok {
		return l.current
	}

	// Stall accounting is per committed sequence, scene layer only:
	// the UI legitimately goes quiet between interactions.
	if l.name == "scene" {
		c.trackStall(l, h.Sequence, stats)
	}
	if h.Sequence != l.currentSeq {
		stats.SceneFresh = stats.SceneFresh || l.name == "scene"
	}

	gen := c.importer.Generation()
	if h.Generation != gen {
		// Committed before the loss; the producer has not re-exported
		// yet. Keep whatever we have.
		stats.Degraded = true
		return l.current
	}

	key := imports.Key{Native: h.Native, Generation: h.Generation}
	tex, cached := c.cache.Get(key)
	if !cached {
		var err error
		tex, err = c.importer.Import(h)
		if err != nil {
			stats.Degraded = true
			Logger().Warn("handle import failed, reusing last texture",
				slog.String("layer", l.name),
				slog.String("handle", h.String()),
				slog.Any("error", err))
			return l.current
		}
		c.cache.Put(key, tex)
		stats.Imported++
		Logger().Debug("handle imported",
			slog.String("layer", l.name),
			slog.String("handle", h.String()))
	}

	// A clean import under the current generation is the recovery
	// signal after a device loss.
	c.health.ReportRecovery()

	c.rememberSlot(l, h)
	l.current = tex
	l.currentSeq = h.Sequence
	return tex
}

// rememberSlot tracks the slot natives behind a layer's imports, oldest
// first. A native not seen before displaces the oldest tracked one and
// evicts its import: producers double-buffer, so a third native means a
// resize retired a slot and its texture would otherwise stay pinned
// until the next generation sweep.
func (c *Compositor) rememberSlot(l *layer, h share.Handle) {
	if h.Native == l.natives[0] || h.Native == l.natives[1] {
		return
	}
	if old := l.natives[0]; old != 0 {
		c.cache.Delete(imports.Key{Native: old, Generation: h.Generation})
	}
	l.natives[0] = l.natives[1]
	l.natives[1] = h.Native
}

// trackStall counts ticks without a fresh scene commit and logs one
// warning per stall episode once the tolerance is exceeded.
func (c *Compositor) trackStall(l *layer, seq uint64, stats *TickStats) {
	if seq != l.currentSeq {
		if l.stallLogged {
			Logger().Info("producer resumed",
				slog.String("layer", l.name),
				slog.Int("stale_ticks", l.staleTicks))
		}
		l.staleTicks = 0
		l.stallLogged = false
		return
	}

	l.staleTicks++
	if l.staleTicks >= c.opts.StallToleranceTicks {
		stats.Degraded = true
		if !l.stallLogged {
			l.stallLogged = true
			Logger().Warn("producer stalled, presenting last frame",
				slog.String("layer", l.name),
				slog.Int("stale_ticks", l.staleTicks),
				slog.Any("error", ErrProducerStalled))
		}
	}
}

// drawLayer composites one resolved layer texture. Dimension
// mismatches (a resize in flight) scale the last valid frame to fit
// rather than dropping the layer.
func (c *Compositor) drawLayer(l *layer, tex share.Texture, stats *TickStats) error {
	tw, th := c.presenter.Size()
	scale := tex.Width() != tw || tex.Height() != th
	if scale {
		stats.Degraded = true
	}
	return c.presenter.DrawLayer(tex, DrawOptions{Blend: l.blend, ScaleToFit: scale})
}

// dropLayerTextures forgets per-layer texture references after their
// generation died. The textures themselves were destroyed by the
// import cache.
func (c *Compositor) dropLayerTextures() {
	if c.scene != nil {
		c.scene.current = nil
		c.scene.natives = [2]uint64{}
	}
	if c.ui != nil {
		c.ui.current = nil
		c.ui.natives = [2]uint64{}
	}
}

// Resize adapts the composite target to new surface dimensions.
// Producers are notified by the owning surface; until they commit at
// the new size, ticks scale the last valid frames to fit.
func (c *Compositor) Resize(width, height int) error {
	if c.closed {
		return ErrSurfaceClosed
	}
	if err := c.presenter.Resize(width, height); err != nil {
		return err
	}
	Logger().Info("composite target resized",
		slog.Int("width", width), slog.Int("height", height))
	return nil
}

// Close releases the compositor's imported textures and its presenter.
// Further ticks return ErrSurfaceClosed.
func (c *Compositor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.dropLayerTextures()
	c.cache.Clear()
	return c.presenter.Close()
}

// CacheLen returns the number of live imported textures. Diagnostics
// hook for the debug overlay and tests.
func (c *Compositor) CacheLen() int { return c.cache.Len() }

// IsRecoverable reports whether err is one of the degradation
// conditions a tick absorbs locally by falling back to a last-good
// frame or the background. Callers driving the tick loop can use it to
// distinguish cosmetic degradation from real failures.
func IsRecoverable(err error) bool {
	return errors.Is(err, share.ErrExportFailed) ||
		errors.Is(err, share.ErrImportFailed) ||
		errors.Is(err, ErrDeviceLost) ||
		errors.Is(err, ErrResizeInProgress) ||
		errors.Is(err, ErrProducerStalled)
}
