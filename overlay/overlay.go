// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package overlay renders a debug statistics panel as a UI layer.
//
// The overlay plugs into a compositor as the UI producer's render
// function: a translucent panel in the top-left corner listing tick
// statistics, device health and any caller-supplied lines, drawn with
// a fixed 7x13 bitmap font. It is meant for development builds and
// headless diagnostics, not shipping UI.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/compositor"
	"github.com/gogpu/compositor/share"
)

// Panel geometry.
const (
	padding    = 6
	lineHeight = 13
)

// Overlay renders compositor statistics into a UI layer texture.
//
// Render runs on the presentation thread (the UI producer renders
// synchronously), so reading the collector's atomic counters there is
// safe and current.
type Overlay struct {
	collector *compositor.Collector
	printer   *message.Printer
	face      font.Face

	extra []func() string
}

// New creates an overlay reading statistics from collector.
func New(collector *compositor.Collector) *Overlay {
	return &Overlay{
		collector: collector,
		printer:   message.NewPrinter(language.English),
		face:      basicfont.Face7x13,
	}
}

// AddLine appends a caller-supplied status line, re-evaluated on every
// render. Call before the overlay starts rendering.
func (o *Overlay) AddLine(fn func() string) {
	o.extra = append(o.extra, fn)
}

// lines builds the panel text for one render.
func (o *Overlay) lines(frame uint64) []string {
	out := []string{o.printer.Sprintf("overlay frame %d", frame)}
	if o.collector != nil {
		s := o.collector.Snapshot()
		out = append(out,
			o.printer.Sprintf("ticks %d (degraded %d)", s.Ticks, s.DegradedTicks),
			o.printer.Sprintf("imports %d, ui renders %d", s.Imports, s.UIRenders),
			o.printer.Sprintf("tick avg %v, max %v", s.AvgTick, s.MaxTick),
		)
	}
	for _, fn := range o.extra {
		out = append(out, fn())
	}
	return out
}

// Render implements compositor.RenderFunc. The texture is cleared to
// transparent so everything outside the panel shows the layers below.
func (o *Overlay) Render(tex share.Texture, frame uint64) error {
	pt, ok := tex.(share.PixelTexture)
	if !ok {
		return fmt.Errorf("overlay: texture %T is not CPU-addressable", tex)
	}
	img := pt.Image()

	// Transparent base.
	draw.Draw(img, img.Bounds(), image.Transparent, image.Point{}, draw.Src)

	lines := o.lines(frame)
	panelW := 0
	for _, l := range lines {
		if w := font.MeasureString(o.face, l).Ceil(); w > panelW {
			panelW = w
		}
	}
	panelW += 2 * padding
	panelH := len(lines)*lineHeight + 2*padding

	b := img.Bounds()
	panel := image.Rect(b.Min.X, b.Min.Y, b.Min.X+panelW, b.Min.Y+panelH).Intersect(b)
	draw.Draw(img, panel, image.NewUniform(color.RGBA{A: 160}), image.Point{}, draw.Src)

	d := font.Drawer{
		Dst:  img,
		Src:  image.White,
		Face: o.face,
	}
	for i, l := range lines {
		d.Dot = fixed.P(b.Min.X+padding, b.Min.Y+padding+(i+1)*lineHeight-3)
		d.DrawString(l)
	}
	return nil
}
