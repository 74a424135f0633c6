// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compositor

import "errors"

// Compositing errors. All of these are recovered locally inside the
// tick by degrading the visual output; none propagates to the caller
// as a failed tick. Export and import failures are defined in the
// share package (share.ErrExportFailed, share.ErrImportFailed).
var (
	// ErrDeviceLost indicates the GPU device backing the shared
	// textures has been lost. All outstanding handles are stale; the
	// compositor presents background or last-good frames until a
	// producer successfully re-exports.
	ErrDeviceLost = errors.New("compositor: device lost")

	// ErrResizeInProgress indicates the producers have not yet
	// committed frames at the new surface dimensions. Transient, not a
	// failure: the tick presents the last valid frame scaled to fit.
	ErrResizeInProgress = errors.New("compositor: resize in progress")

	// ErrProducerStalled indicates a producer has not committed within
	// the configured tick window. The affected layer degrades to its
	// last-good frame.
	ErrProducerStalled = errors.New("compositor: producer stalled")

	// ErrSurfaceClosed is returned when operating on a closed
	// presentation surface.
	ErrSurfaceClosed = errors.New("compositor: presentation surface closed")

	// ErrInvalidSlot is returned when committing a slot index the
	// channel did not hand out.
	ErrInvalidSlot = errors.New("compositor: invalid slot index")
)
