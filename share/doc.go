// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package share provides cross-context GPU texture sharing.
//
// Sharing lets a second graphics context address the same physical
// memory as the context that allocated a texture, without routing pixel
// data through the CPU. The exact export/import mechanism differs per
// OS and graphics API pairing, so it is isolated behind the narrow
// Exporter interface:
//
//	Export(Texture) (Handle, error)
//	Import(Handle) (Texture, error)
//
// Consumers of this package (the compositor core) never reference
// platform-specific types directly.
//
// # Handles and generations
//
// A Handle is an opaque driver-level reference tagged with the device
// generation that issued it. A device-loss event bumps the generation
// and thereby invalidates every outstanding handle simultaneously;
// handles are never individually revoked. Import of a stale handle
// fails with ErrImportFailed, which is recoverable: callers keep using
// their last successfully imported texture.
//
// # Backends
//
// Backends register themselves with a name and priority:
//
//	func init() {
//	    share.Register("wgpu", 100, wgpuFactory, wgpuAvailable)
//	}
//
// The built-in "memory" backend (priority 10) models shared memory with
// CPU-resident pixel buffers addressed through a process-wide table.
// Two exporters bound to the same table behave like two graphics
// contexts sharing one physical allocation: importing a handle yields a
// texture viewing the exporter's pixels, with no copy. It backs tests
// and headless use.
package share
