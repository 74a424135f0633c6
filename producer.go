// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compositor

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gogpu/compositor/share"
)

// AllocFunc allocates a producer-local texture in the producer's
// graphics context. Backends supply one (for the memory backend, see
// NewMemoryAlloc).
type AllocFunc func(width, height int) (share.Texture, error)

// RenderFunc draws one frame into tex. frame is a per-producer counter
// starting at 1. Returning an error skips the commit for this frame;
// the consumer keeps seeing the previous one.
type RenderFunc func(tex share.Texture, frame uint64) error

// NewMemoryAlloc adapts a memory-backend exporter into an AllocFunc.
func NewMemoryAlloc(e *share.MemoryExporter) AllocFunc {
	return func(width, height int) (share.Texture, error) {
		return e.NewTexture(width, height), nil
	}
}

// packedSize packs width and height into one atomic word so resize
// requests cross goroutines without a lock.
func packedSize(w, h int) uint64 {
	return uint64(uint32(w))<<32 | uint64(uint32(h))
}

func unpackSize(p uint64) (int, int) {
	return int(p >> 32), int(uint32(p))
}

// LayerProducer renders frames for one layer and publishes them
// through a double-buffered channel.
//
// It owns two slot textures in its own graphics context, alternating
// between them so the committed one is never redrawn. Each frame is
// rendered, exported and committed; an export failure skips the commit
// and the frame is dropped without disturbing the consumer.
//
// renderFrame runs on a single goroutine per producer: the scene
// producer's loop, or the presentation thread for the UI producer.
type LayerProducer struct {
	name     string
	alloc    AllocFunc
	exporter share.Exporter
	channel  *DoubleBufferedChannel
	render   RenderFunc

	// size is the requested texture size, packed. Written by Resize
	// from the presentation thread, read by renderFrame.
	size atomic.Uint64

	// Slot state below is renderFrame-goroutine only.
	textures [2]share.Texture
	texSize  [2]uint64
	texGen   [2]uint64

	frames  atomic.Uint64
	drops   atomic.Uint64
	exports atomic.Uint64
}

// NewLayerProducer creates a producer publishing width x height frames
// into channel. name appears in log output only.
func NewLayerProducer(name string, alloc AllocFunc, exporter share.Exporter,
	channel *DoubleBufferedChannel, width, height int, render RenderFunc) *LayerProducer {
	p := &LayerProducer{
		name:     name,
		alloc:    alloc,
		exporter: exporter,
		channel:  channel,
		render:   render,
	}
	p.size.Store(packedSize(width, height))
	return p
}

// Channel returns the producer's publishing channel.
func (p *LayerProducer) Channel() *DoubleBufferedChannel { return p.channel }

// Resize requests that subsequent frames render at the new dimensions.
// Safe to call from the presentation thread; takes effect on the
// producer's next frame. The already-committed frame keeps its old
// dimensions, which the compositor tolerates by scaling.
func (p *LayerProducer) Resize(width, height int) {
	if width < 1 || height < 1 {
		return
	}
	p.size.Store(packedSize(width, height))
}

// Frames returns the number of frames committed so far.
func (p *LayerProducer) Frames() uint64 { return p.frames.Load() }

// Drops returns the number of frames dropped due to export failure.
func (p *LayerProducer) Drops() uint64 { return p.drops.Load() }

// renderFrame produces, exports and commits one frame. A render or
// export failure drops the frame: the channel is left untouched and
// the consumer continues presenting the previous commit.
func (p *LayerProducer) renderFrame() error {
	slot := p.channel.WriteBegin()

	want := p.size.Load()
	gen := p.exporter.Generation()
	if p.textures[slot] == nil || p.texSize[slot] != want || p.texGen[slot] != gen {
		// (Re)allocate on first use, resize, or device generation
		// change. The old texture is context-local and safe to drop.
		if p.textures[slot] != nil {
			p.textures[slot].Destroy()
		}
		w, h := unpackSize(want)
		tex, err := p.alloc(w, h)
		if err != nil {
			p.drops.Add(1)
			return fmt.Errorf("compositor: %s texture alloc: %w", p.name, err)
		}
		p.textures[slot] = tex
		p.texSize[slot] = want
		p.texGen[slot] = gen
	}

	frame := p.frames.Load() + 1
	if err := p.render(p.textures[slot], frame); err != nil {
		p.drops.Add(1)
		return fmt.Errorf("compositor: %s render: %w", p.name, err)
	}

	handle, err := p.exporter.Export(p.textures[slot])
	if err != nil {
		p.drops.Add(1)
		Logger().Warn("frame export failed, dropping frame",
			slog.String("producer", p.name),
			slog.Any("error", err))
		return err
	}
	p.exports.Add(1)

	p.channel.SetSlot(slot, handle)
	if err := p.channel.WriteCommit(slot); err != nil {
		p.drops.Add(1)
		return err
	}
	p.frames.Store(frame)
	return nil
}

// Release destroys the producer's slot textures. Called after the
// producer's goroutine has stopped.
func (p *LayerProducer) Release() {
	for i, tex := range p.textures {
		if tex != nil {
			tex.Destroy()
			p.textures[i] = nil
		}
	}
}

// SceneProducer continuously renders scene frames on its own goroutine
// at a fixed cadence, independent of the compositor's tick rate.
type SceneProducer struct {
	*LayerProducer
	cadence time.Duration
}

// NewSceneProducer creates a scene producer. cadence <= 0 selects
// DefaultSceneCadence.
func NewSceneProducer(alloc AllocFunc, exporter share.Exporter,
	channel *DoubleBufferedChannel, width, height int,
	cadence time.Duration, render RenderFunc) *SceneProducer {
	if cadence <= 0 {
		cadence = DefaultSceneCadence
	}
	return &SceneProducer{
		LayerProducer: NewLayerProducer("scene", alloc, exporter, channel, width, height, render),
		cadence:       cadence,
	}
}

// Run renders frames at the configured cadence until ctx is canceled.
// It never blocks on the compositor: if the consumer is slow, frames
// are simply overwritten in the inactive slot. Render and export
// failures are logged and the frame dropped; Run keeps going.
func (p *SceneProducer) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cadence)
	defer ticker.Stop()

	Logger().Info("scene producer started",
		slog.Duration("cadence", p.cadence))
	for {
		select {
		case <-ctx.Done():
			Logger().Info("scene producer stopped",
				slog.Uint64("frames", p.Frames()),
				slog.Uint64("drops", p.Drops()))
			return
		case <-ticker.C:
			if err := p.renderFrame(); err != nil {
				Logger().Debug("scene frame dropped", slog.Any("error", err))
			}
		}
	}
}

// RenderOnce produces a single frame immediately. Used by headless
// drivers and tests that step the producer manually.
func (p *SceneProducer) RenderOnce() error {
	return p.renderFrame()
}

// UIProducer renders UI frames on demand. It does not own a goroutine:
// the compositor calls RenderIfDirty on the presentation thread, so a
// dirty UI is committed within the same tick that presents it.
type UIProducer struct {
	*LayerProducer
	dirty atomic.Bool
}

// NewUIProducer creates a UI producer. The first tick renders
// unconditionally: a new producer starts dirty.
func NewUIProducer(alloc AllocFunc, exporter share.Exporter,
	channel *DoubleBufferedChannel, width, height int, render RenderFunc) *UIProducer {
	p := &UIProducer{
		LayerProducer: NewLayerProducer("ui", alloc, exporter, channel, width, height, render),
	}
	p.dirty.Store(true)
	return p
}

// MarkDirty flags the UI for re-render on the next tick. Safe to call
// from any goroutine (input handlers, animation timers).
func (p *UIProducer) MarkDirty() {
	p.dirty.Store(true)
}

// Dirty reports whether a re-render is pending.
func (p *UIProducer) Dirty() bool { return p.dirty.Load() }

// RenderIfDirty renders and commits a frame if the UI is dirty.
// Presentation thread only. On failure the dirty flag is restored so
// the render is retried next tick, and the compositor keeps using the
// last committed UI frame meanwhile.
func (p *UIProducer) RenderIfDirty() (rendered bool, err error) {
	if !p.dirty.CompareAndSwap(true, false) {
		return false, nil
	}
	if err := p.renderFrame(); err != nil {
		p.dirty.Store(true)
		return false, err
	}
	return true, nil
}
