// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compositor

import (
	"sync/atomic"

	"github.com/gogpu/compositor/share"
)

// noActiveSlot marks a channel no frame has ever been committed to.
const noActiveSlot = -1

// DoubleBufferedChannel hands frames from one producer to one consumer
// without locks and without copying frame content.
//
// The channel holds two slots. The producer stages the handle for the
// slot the consumer is not reading (WriteBegin always returns the
// inactive slot), and publishes it by atomically flipping the active
// index (WriteCommit). The consumer loads the active index and reads
// that slot's handle (ReadCurrent). Because the producer never touches
// the slot the active index references, the consumer can never observe
// a partially written frame: frames are published by index flip, never
// by mutating shared content.
//
// Single writer, single reader. The producer calls SetSlot, WriteBegin
// and WriteCommit from one goroutine; the consumer calls ReadCurrent
// from another. Neither side ever blocks. If the producer's GPU
// submission fails mid-frame it simply skips WriteCommit and the
// consumer continues to see the previous committed frame.
type DoubleBufferedChannel struct {
	// published holds the committed frame record per slot. Stored
	// through an atomic pointer so the consumer always observes a fully
	// formed, immutable record even while the producer stages the other
	// slot. The index flip below remains the only publication point.
	published [2]atomic.Pointer[frameRecord]

	// staged is producer-side state: the handle each slot will carry on
	// its next commit. Never read by the consumer.
	staged [2]share.Handle

	// active is the committed slot index, or noActiveSlot before the
	// first commit. The single cross-thread synchronization point.
	active atomic.Int32

	// seq tags each commit with a strictly increasing sequence number.
	seq atomic.Uint64
}

// frameRecord is an immutable published frame. A new record is
// allocated per commit; records are never mutated after publication.
type frameRecord struct {
	handle share.Handle
}

// NewDoubleBufferedChannel creates an empty channel. ReadCurrent
// returns no frame until the producer's first WriteCommit.
func NewDoubleBufferedChannel() *DoubleBufferedChannel {
	c := &DoubleBufferedChannel{}
	c.active.Store(noActiveSlot)
	return c
}

// SetSlot records the handle slot will publish on its next commit.
// Producer-only. Called when the slot's texture is (re)allocated —
// at viewport creation, on resize, and after device-loss recovery.
func (c *DoubleBufferedChannel) SetSlot(slot int, h share.Handle) {
	c.staged[slot&1] = h
}

// WriteBegin returns the slot the producer may render into: the one
// not currently referenced by the active index. Never blocks.
func (c *DoubleBufferedChannel) WriteBegin() int {
	switch c.active.Load() {
	case 0:
		return 1
	default:
		// Slot 0 is also the first slot written on a fresh channel.
		return 0
	}
}

// WriteCommit publishes slot after all GPU work targeting it has been
// submitted. A single atomic store of the index makes the frame
// visible; no lock is ever taken. Committing the currently active slot
// returns ErrInvalidSlot, since the consumer may be reading it.
func (c *DoubleBufferedChannel) WriteCommit(slot int) error {
	if slot != 0 && slot != 1 {
		return ErrInvalidSlot
	}
	if int32(slot) == c.active.Load() {
		return ErrInvalidSlot
	}

	h := c.staged[slot]
	h.Sequence = c.seq.Add(1)
	c.published[slot].Store(&frameRecord{handle: h})
	c.active.Store(int32(slot))
	return nil
}

// ReadCurrent returns the most recently committed frame. Consumer-only
// and never blocks. ok is false until the first commit. Repeated calls
// with no intervening commit return identical results.
func (c *DoubleBufferedChannel) ReadCurrent() (share.Handle, bool) {
	idx := c.active.Load()
	if idx == noActiveSlot {
		return share.Handle{}, false
	}
	rec := c.published[idx].Load()
	if rec == nil {
		return share.Handle{}, false
	}
	return rec.handle, true
}

// Sequence returns the sequence number of the latest commit, or zero
// if nothing has been committed.
func (c *DoubleBufferedChannel) Sequence() uint64 {
	return c.seq.Load()
}
