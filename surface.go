// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compositor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/compositor/share"
)

// SurfaceConfig configures a presentation surface.
type SurfaceConfig struct {
	// Width and Height are the initial surface dimensions in pixels.
	Width  int
	Height int

	// Backend names the sharing backend to use. Empty selects the
	// highest-priority available backend from the registry.
	Backend string

	// Share carries backend creation options (device provider, memory
	// table). Each of the surface's three contexts gets its own
	// exporter created from these options.
	Share share.Options

	// Scene renders the continuously produced scene layer. nil omits
	// the layer.
	Scene RenderFunc

	// UI renders the on-demand UI layer. nil omits the layer.
	UI RenderFunc

	// Presenter is the composite target. nil selects an ImagePresenter
	// (headless).
	Presenter Presenter

	// Options tunes the compositor.
	Options Options
}

// PresentationSurface owns everything one window needs: a compositor,
// its producers and their sharing contexts. Surfaces are independent;
// there is no process-wide compositor state.
//
// RequestRedraw and Resize must be called from the presentation
// thread. Close may be called from any goroutine, once.
type PresentationSurface struct {
	presenter Presenter
	comp      *Compositor
	scene     *SceneProducer
	ui        *UIProducer
	exporters []share.Exporter

	cancel    context.CancelFunc
	sceneDone chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewPresentationSurface creates a surface and starts its scene
// producer goroutine.
//
// Three sharing contexts are created from the same backend: one per
// producer and one for the compositor's imports, mirroring how the
// real contexts are isolated on hardware.
func NewPresentationSurface(cfg SurfaceConfig) (*PresentationSurface, error) {
	if cfg.Width < 1 || cfg.Height < 1 {
		return nil, fmt.Errorf("compositor: invalid surface size %dx%d", cfg.Width, cfg.Height)
	}

	s := &PresentationSurface{presenter: cfg.Presenter}
	if s.presenter == nil {
		s.presenter = NewImagePresenter(cfg.Width, cfg.Height)
	}

	newExporter := func() (share.Exporter, error) {
		if cfg.Backend != "" {
			return share.NewExporterByName(cfg.Backend, cfg.Share)
		}
		return share.NewExporter(cfg.Share)
	}
	// One exporter per context; cleanup on any constructor error.
	fail := func(err error) (*PresentationSurface, error) {
		for _, e := range s.exporters {
			e.Close()
		}
		return nil, err
	}

	compExp, err := newExporter()
	if err != nil {
		return fail(err)
	}
	s.exporters = append(s.exporters, compExp)

	var sceneCh *DoubleBufferedChannel
	if cfg.Scene != nil {
		exp, err := newExporter()
		if err != nil {
			return fail(err)
		}
		s.exporters = append(s.exporters, exp)
		alloc, err := allocatorFor(exp)
		if err != nil {
			return fail(err)
		}
		sceneCh = NewDoubleBufferedChannel()
		s.scene = NewSceneProducer(alloc, exp, sceneCh,
			cfg.Width, cfg.Height, cfg.Options.SceneCadence, cfg.Scene)
	}

	if cfg.UI != nil {
		exp, err := newExporter()
		if err != nil {
			return fail(err)
		}
		s.exporters = append(s.exporters, exp)
		alloc, err := allocatorFor(exp)
		if err != nil {
			return fail(err)
		}
		s.ui = NewUIProducer(alloc, exp, NewDoubleBufferedChannel(),
			cfg.Width, cfg.Height, cfg.UI)
	}

	s.comp = New(s.presenter, compExp, sceneCh, s.ui, cfg.Options)

	if s.scene != nil {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		s.sceneDone = make(chan struct{})
		go func() {
			defer close(s.sceneDone)
			s.scene.Run(ctx)
		}()
	}

	Logger().Info("presentation surface opened",
		slog.Int("width", cfg.Width),
		slog.Int("height", cfg.Height),
		slog.String("backends", fmt.Sprint(share.Available())))
	return s, nil
}

// allocatorFor derives the producer texture allocator from an exporter.
func allocatorFor(e share.Exporter) (AllocFunc, error) {
	ta, ok := e.(share.TextureAllocator)
	if !ok {
		return nil, fmt.Errorf("compositor: backend %T cannot allocate producer textures", e)
	}
	return ta.AllocateTexture, nil
}

// RequestRedraw composes and presents one frame. Called by the
// windowing system's redraw callback on the presentation thread.
func (s *PresentationSurface) RequestRedraw() error {
	return s.comp.Tick()
}

// Resize propagates new surface dimensions to the composite target and
// both producers, and marks the UI dirty so it re-renders at the new
// size this tick. Until the scene catches up, ticks scale its last
// frame.
func (s *PresentationSurface) Resize(width, height int) error {
	if err := s.comp.Resize(width, height); err != nil {
		return err
	}
	if s.scene != nil {
		s.scene.Resize(width, height)
	}
	if s.ui != nil {
		s.ui.Resize(width, height)
		s.ui.MarkDirty()
	}
	return nil
}

// MarkUIDirty flags the UI layer for re-render on the next tick. Safe
// from any goroutine.
func (s *PresentationSurface) MarkUIDirty() {
	if s.ui != nil {
		s.ui.MarkDirty()
	}
}

// Compositor returns the surface's compositor, exposing health and
// diagnostics.
func (s *PresentationSurface) Compositor() *Compositor { return s.comp }

// Close stops the scene producer, releases producer textures and
// imported textures, and closes the sharing contexts. Idempotent.
//
// Order matters: producers stop before the sharing resources they
// export through are released.
func (s *PresentationSurface) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		<-s.sceneDone
	}
	if s.scene != nil {
		s.scene.Release()
	}
	if s.ui != nil {
		s.ui.Release()
	}

	err := s.comp.Close()
	for _, e := range s.exporters {
		if cerr := e.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	Logger().Info("presentation surface closed")
	return err
}
