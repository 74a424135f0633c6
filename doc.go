// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package compositor merges independently produced GPU frame layers
// into one presented frame per display tick, entirely in GPU memory.
//
// A continuously running scene producer and an on-demand UI producer
// each publish frames through a lock-free double-buffered channel. On
// every redraw signal the compositor claims the latest frame from each
// channel, imports the shared handles it has not seen before, draws
// background, scene and UI layers in fixed order, and presents. No
// pixel ever crosses through CPU memory on the hot path, and no tick
// ever blocks on a producer.
//
// # Threads
//
// Three independently paced threads meet here. The scene producer runs
// its own goroutine at a steady cadence and never waits for the
// compositor. The UI producer renders only when marked dirty, directly
// on the presentation thread, inside the tick budget. The compositor
// runs on the presentation thread, woken by the windowing system. The
// only cross-thread mutable state is each channel's atomic active
// index and the device generation counter.
//
// # Failure model
//
// Export/import failures, device loss, resizes in flight and stalled
// producers are all recovered locally inside the tick by degrading the
// output (last-good frame or background only). A compositing failure
// never propagates as a crash. Device health is an explicit two-state
// machine (Healthy/Lost) with lazy recovery: the first successful
// export after reinitialization flips the state back.
//
// # Ownership
//
// A PresentationSurface is created per window and owns its Compositor
// and producers explicitly; there is no process-wide compositor state.
//
// By default the package produces no log output. Call SetLogger to
// enable structured logging.
package compositor
