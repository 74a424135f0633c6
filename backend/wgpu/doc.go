// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package wgpu implements the hardware sharing backend on gogpu/wgpu.
//
// The backend registers itself with the share registry at priority 100
// under the name "wgpu"; it is selected automatically whenever a GPU
// adapter can be acquired. Textures are allocated through the HAL
// device supplied by the host application, and exported handles are
// resolved through a process-level table: wgpu does not expose
// OS-level share handles yet, so the table's native IDs stand in for
// them. Import semantics (generation and dimension checks, zero-copy
// views) are identical to what driver-level handles will provide.
//
// Device bring-up (instance, adapter, device, queue) uses wgpu/core;
// texture and pipeline work uses wgpu/hal.
package wgpu
