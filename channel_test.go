// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compositor

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/gogpu/compositor/share"
)

func TestChannelEmpty(t *testing.T) {
	c := NewDoubleBufferedChannel()
	if _, ok := c.ReadCurrent(); ok {
		t.Error("ReadCurrent on empty channel: ok = true, want false")
	}
	if got := c.Sequence(); got != 0 {
		t.Errorf("Sequence on empty channel = %d, want 0", got)
	}
}

func TestChannelFirstCommit(t *testing.T) {
	c := NewDoubleBufferedChannel()
	c.SetSlot(0, share.Handle{Native: 1, Width: 64, Height: 64, Generation: 1})
	c.SetSlot(1, share.Handle{Native: 2, Width: 64, Height: 64, Generation: 1})

	slot := c.WriteBegin()
	if slot != 0 {
		t.Fatalf("WriteBegin on fresh channel = %d, want 0", slot)
	}
	if err := c.WriteCommit(slot); err != nil {
		t.Fatalf("WriteCommit(%d): %v", slot, err)
	}

	h, ok := c.ReadCurrent()
	if !ok {
		t.Fatal("ReadCurrent after commit: ok = false")
	}
	if h.Native != 1 {
		t.Errorf("handle native = %d, want 1", h.Native)
	}
	if h.Sequence != 1 {
		t.Errorf("handle sequence = %d, want 1", h.Sequence)
	}
}

func TestChannelAlternatesSlots(t *testing.T) {
	c := NewDoubleBufferedChannel()
	c.SetSlot(0, share.Handle{Native: 1, Width: 8, Height: 8, Generation: 1})
	c.SetSlot(1, share.Handle{Native: 2, Width: 8, Height: 8, Generation: 1})

	want := []uint64{1, 2, 1, 2, 1}
	for i, wantNative := range want {
		slot := c.WriteBegin()
		if err := c.WriteCommit(slot); err != nil {
			t.Fatalf("commit %d: %v", i, err)
		}
		h, ok := c.ReadCurrent()
		if !ok {
			t.Fatalf("read %d: no frame", i)
		}
		if h.Native != wantNative {
			t.Errorf("read %d: native = %d, want %d", i, h.Native, wantNative)
		}
		if h.Sequence != uint64(i+1) {
			t.Errorf("read %d: sequence = %d, want %d", i, h.Sequence, i+1)
		}
	}
}

func TestChannelCommitActiveSlot(t *testing.T) {
	c := NewDoubleBufferedChannel()
	c.SetSlot(0, share.Handle{Native: 1, Width: 8, Height: 8, Generation: 1})

	if err := c.WriteCommit(2); err != ErrInvalidSlot {
		t.Errorf("WriteCommit(2) = %v, want ErrInvalidSlot", err)
	}
	if err := c.WriteCommit(0); err != nil {
		t.Fatalf("WriteCommit(0): %v", err)
	}
	if err := c.WriteCommit(0); err != ErrInvalidSlot {
		t.Errorf("recommitting active slot = %v, want ErrInvalidSlot", err)
	}
}

// Reads without an intervening commit must return identical results.
func TestChannelIdempotentReads(t *testing.T) {
	c := NewDoubleBufferedChannel()
	c.SetSlot(0, share.Handle{Native: 7, Width: 16, Height: 16, Generation: 3})
	slot := c.WriteBegin()
	if err := c.WriteCommit(slot); err != nil {
		t.Fatal(err)
	}

	first, ok := c.ReadCurrent()
	if !ok {
		t.Fatal("no frame")
	}
	for i := 0; i < 10; i++ {
		h, ok := c.ReadCurrent()
		if !ok || h != first {
			t.Fatalf("read %d: got %v ok=%v, want %v", i, h, ok, first)
		}
	}
}

// A concurrent reader must only ever observe fully formed handles with
// non-decreasing sequence numbers, regardless of interleaving with the
// producer. Run with -race to exercise the memory model.
func TestChannelConcurrentReadsAreOrdered(t *testing.T) {
	c := NewDoubleBufferedChannel()
	c.SetSlot(0, share.Handle{Native: 1, Width: 32, Height: 32, Generation: 1})
	c.SetSlot(1, share.Handle{Native: 2, Width: 32, Height: 32, Generation: 1})

	const commits = 5000
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		rng := rand.New(rand.NewSource(1))
		for i := 0; i < commits; i++ {
			slot := c.WriteBegin()
			if err := c.WriteCommit(slot); err != nil {
				t.Errorf("commit %d: %v", i, err)
				return
			}
			if rng.Intn(8) == 0 {
				// Occasionally restage a slot mid-stream, as a resize
				// would.
				c.SetSlot(slot^1, share.Handle{
					Native: uint64(3 + i), Width: 32, Height: 32, Generation: 1,
				})
			}
		}
	}()

	go func() {
		defer wg.Done()
		var lastSeq uint64
		for lastSeq < commits {
			h, ok := c.ReadCurrent()
			if !ok {
				continue
			}
			if h.IsZero() {
				t.Error("observed zero handle after commit")
				return
			}
			if h.Sequence < lastSeq {
				t.Errorf("sequence went backwards: %d after %d", h.Sequence, lastSeq)
				return
			}
			if h.Width != 32 || h.Height != 32 {
				t.Errorf("observed torn handle: %dx%d", h.Width, h.Height)
				return
			}
			lastSeq = h.Sequence
		}
	}()

	wg.Wait()
	if got := c.Sequence(); got != commits {
		t.Errorf("Sequence = %d, want %d", got, commits)
	}
}
