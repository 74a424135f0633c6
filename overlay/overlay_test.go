// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package overlay

import (
	"image/color"
	"testing"
	"time"

	"github.com/gogpu/compositor"
	"github.com/gogpu/compositor/share"
)

func TestOverlayRendersPanel(t *testing.T) {
	collector := compositor.NewCollector()
	collector.RecordTick(compositor.TickStats{Duration: time.Millisecond, Imported: 2})

	o := New(collector)
	o.AddLine(func() string { return "backend memory" })

	exp := share.NewMemoryExporter(share.NewTable())
	tex := exp.NewTexture(320, 240)
	if err := o.Render(tex, 1); err != nil {
		t.Fatal(err)
	}

	img := tex.Image()
	// The panel corner is translucent dark, not transparent.
	if got := img.RGBAAt(2, 2); got.A == 0 {
		t.Error("panel corner is fully transparent")
	}
	// Far corner stays transparent so the layers below show through.
	if got := img.RGBAAt(319, 239); got != (color.RGBA{}) {
		t.Errorf("far corner = %v, want transparent", got)
	}
	// Some white text pixels must exist inside the panel.
	white := 0
	for y := 0; y < 80; y++ {
		for x := 0; x < 200; x++ {
			if img.RGBAAt(x, y) == (color.RGBA{255, 255, 255, 255}) {
				white++
			}
		}
	}
	if white == 0 {
		t.Error("no text pixels rendered")
	}
}

func TestOverlayNilCollector(t *testing.T) {
	o := New(nil)
	exp := share.NewMemoryExporter(share.NewTable())
	tex := exp.NewTexture(64, 32)
	if err := o.Render(tex, 5); err != nil {
		t.Fatal(err)
	}
}

func TestOverlayAsUILayer(t *testing.T) {
	collector := compositor.NewCollector()
	o := New(collector)

	opts := compositor.DefaultOptions()
	opts.Metrics = collector
	s, err := compositor.NewPresentationSurface(compositor.SurfaceConfig{
		Width:   160,
		Height:  120,
		Backend: "memory",
		Share:   share.Options{Table: share.NewTable()},
		UI:      o.Render,
		Options: opts,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.RequestRedraw(); err != nil {
		t.Fatal(err)
	}
	if collector.Snapshot().Ticks != 1 {
		t.Errorf("ticks = %d, want 1", collector.Snapshot().Ticks)
	}
}
