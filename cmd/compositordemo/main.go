// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Command compositordemo runs a headless compositor for a few seconds:
// an animated scene layer at 60 Hz, the debug overlay as the UI layer,
// and a 30 Hz presentation loop writing the final frame to a PNG.
package main

import (
	"flag"
	"image/color"
	"image/png"
	"log"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/gogpu/compositor"
	"github.com/gogpu/compositor/overlay"
	"github.com/gogpu/compositor/share"
)

func main() {
	var (
		width    = flag.Int("width", 640, "surface width in pixels")
		height   = flag.Int("height", 480, "surface height in pixels")
		duration = flag.Duration("duration", 3*time.Second, "how long to run")
		out      = flag.String("o", "composite.png", "output PNG path")
		verbose  = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	compositor.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))

	collector := compositor.NewCollector()
	debug := overlay.New(collector)
	debug.AddLine(func() string { return "backend memory (headless)" })

	presenter := compositor.NewImagePresenter(*width, *height)

	opts := compositor.DefaultOptions()
	opts.BackgroundColor = color.RGBA{R: 18, G: 18, B: 24, A: 255}
	opts.Metrics = collector

	surface, err := compositor.NewPresentationSurface(compositor.SurfaceConfig{
		Width:     *width,
		Height:    *height,
		Backend:   "memory",
		Share:     share.Options{Table: share.NewTable()},
		Scene:     plasma,
		UI:        debug.Render,
		Presenter: presenter,
		Options:   opts,
	})
	if err != nil {
		log.Fatalf("open surface: %v", err)
	}
	defer surface.Close()

	// Presentation loop at 30 Hz, the scene producer runs at 60 Hz on
	// its own goroutine. The overlay is refreshed once per second.
	ticker := time.NewTicker(time.Second / 30)
	defer ticker.Stop()
	refresh := time.NewTicker(time.Second)
	defer refresh.Stop()
	deadline := time.After(*duration)

loop:
	for {
		select {
		case <-deadline:
			break loop
		case <-refresh.C:
			surface.MarkUIDirty()
		case <-ticker.C:
			if err := surface.RequestRedraw(); err != nil {
				log.Fatalf("redraw: %v", err)
			}
		}
	}

	log.Printf("stats: %s", collector.Snapshot())

	f, err := os.Create(*out)
	if err != nil {
		log.Fatalf("create %s: %v", *out, err)
	}
	defer f.Close()
	if err := png.Encode(f, presenter.Target()); err != nil {
		log.Fatalf("encode PNG: %v", err)
	}
	log.Printf("wrote %s", *out)
}

// plasma renders a moving color field, cheap enough to hold 60 Hz in
// software.
func plasma(tex share.Texture, frame uint64) error {
	img := tex.(share.PixelTexture).Image()
	b := img.Bounds()
	t := float64(frame) * 0.08
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := math.Sin(float64(x)*0.04+t) + math.Cos(float64(y)*0.05-t)
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(128 + 100*math.Sin(v+t)),
				G: uint8(128 + 100*math.Sin(v*1.3)),
				B: uint8(128 + 100*math.Cos(v-t)),
				A: 255,
			})
		}
	}
	return nil
}
