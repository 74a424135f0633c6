// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package share

import (
	"errors"
	"sort"
	"sync"

	"github.com/gogpu/gpucontext"
)

// Options configures exporter creation.
type Options struct {
	// Device provides GPU device access for hardware backends. It is
	// supplied by the host application; sharing backends never create
	// their own device.
	Device gpucontext.DeviceProvider

	// Table selects the shared-memory table for the memory backend.
	// nil selects the process-wide table.
	Table *Table

	// Custom holds backend-specific options.
	Custom map[string]any
}

// ExporterFactory creates a new Exporter with the given options.
// Implementations should validate options and return descriptive errors.
type ExporterFactory func(opts Options) (Exporter, error)

// RegistryEntry represents a registered sharing backend.
type RegistryEntry struct {
	// Name is the unique identifier for this backend.
	Name string

	// Priority determines selection order (higher = preferred).
	// Standard priorities:
	//   - 100: hardware backends (wgpu)
	//   - 10: the in-memory software backend
	Priority int

	// Factory creates exporter instances.
	Factory ExporterFactory

	// Available reports if the backend is available on this system.
	Available func() bool
}

// globalRegistry is the default registry.
var globalRegistry = &Registry{}

// Registry manages registered sharing backends.
//
// The registry enables platform backends to register themselves without
// requiring changes to the compositor core.
//
// Example registration:
//
//	func init() {
//	    share.Register("wgpu", 100, wgpuFactory, wgpuAvailable)
//	}
//
// Example usage:
//
//	e, err := share.NewExporterByName("wgpu", share.Options{Device: dev})
//	// or auto-select best available:
//	e, err := share.NewExporter(share.Options{Device: dev})
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*RegistryEntry
}

// NewRegistry creates a new empty registry.
// Most code should use the global registry via Register and NewExporter.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*RegistryEntry),
	}
}

// Register adds a backend to the global registry.
//
// If available is nil, the backend is assumed always available.
// Registering a name that already exists replaces the previous entry.
func Register(name string, priority int, factory ExporterFactory, available func() bool) {
	globalRegistry.Register(name, priority, factory, available)
}

// Unregister removes a backend from the global registry.
func Unregister(name string) {
	globalRegistry.Unregister(name)
}

// List returns all registered backend names sorted by priority (highest first).
func List() []string {
	return globalRegistry.List()
}

// Available returns names of all available backends sorted by priority.
func Available() []string {
	return globalRegistry.Available()
}

// Get returns information about a specific backend.
func Get(name string) (*RegistryEntry, bool) {
	return globalRegistry.Get(name)
}

// NewExporter creates an exporter using the best available backend.
// Returns an error if no backends are available.
func NewExporter(opts Options) (Exporter, error) {
	return globalRegistry.NewExporter(opts)
}

// NewExporterByName creates an exporter using a specific named backend.
func NewExporterByName(name string, opts Options) (Exporter, error) {
	return globalRegistry.NewExporterByName(name, opts)
}

// Register adds a backend to this registry.
func (r *Registry) Register(name string, priority int, factory ExporterFactory, available func() bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.entries == nil {
		r.entries = make(map[string]*RegistryEntry)
	}

	if available == nil {
		available = func() bool { return true }
	}

	r.entries[name] = &RegistryEntry{
		Name:      name,
		Priority:  priority,
		Factory:   factory,
		Available: available,
	}
}

// Unregister removes a backend from this registry.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.entries, name)
}

// List returns all registered backend names sorted by priority.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.sortedNames(false)
}

// Available returns names of all available backends sorted by priority.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.sortedNames(true)
}

// Get returns information about a specific backend.
func (r *Registry) Get(name string) (*RegistryEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[name]
	if !ok {
		return nil, false
	}

	// Return a copy to prevent modification
	entryCopy := *entry
	return &entryCopy, true
}

// NewExporter creates an exporter using the best available backend.
func (r *Registry) NewExporter(opts Options) (Exporter, error) {
	r.mu.RLock()
	available := r.sortedNames(true)
	r.mu.RUnlock()

	if len(available) == 0 {
		return nil, ErrNoBackendAvailable
	}

	// Try each available backend in priority order
	var lastErr error
	for _, name := range available {
		e, err := r.NewExporterByName(name, opts)
		if err == nil {
			return e, nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrNoBackendAvailable
}

// NewExporterByName creates an exporter using a specific backend.
func (r *Registry) NewExporterByName(name string, opts Options) (Exporter, error) {
	r.mu.RLock()
	entry, ok := r.entries[name]
	r.mu.RUnlock()

	if !ok {
		return nil, &BackendNotFoundError{Name: name}
	}

	if !entry.Available() {
		return nil, &BackendUnavailableError{Name: name}
	}

	return entry.Factory(opts)
}

// sortedNames returns backend names sorted by priority (highest first).
// If onlyAvailable is true, filters to available backends only.
// Must be called with lock held.
func (r *Registry) sortedNames(onlyAvailable bool) []string {
	if len(r.entries) == 0 {
		return nil
	}

	type entry struct {
		name     string
		priority int
	}

	entries := make([]entry, 0, len(r.entries))
	for name, e := range r.entries {
		if onlyAvailable && !e.Available() {
			continue
		}
		entries = append(entries, entry{name: name, priority: e.Priority})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].priority > entries[j].priority
	})

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.name
	}
	return names
}

// ErrNoBackendAvailable is returned when no sharing backends are
// registered or available on the current system.
var ErrNoBackendAvailable = errors.New("share: no backend available")

// BackendNotFoundError indicates a named backend is not registered.
type BackendNotFoundError struct {
	Name string
}

func (e *BackendNotFoundError) Error() string {
	return "share: backend not found: " + e.Name
}

// BackendUnavailableError indicates a backend exists but is not available.
type BackendUnavailableError struct {
	Name string
}

func (e *BackendUnavailableError) Error() string {
	return "share: backend unavailable: " + e.Name
}

// init registers the built-in memory backend.
func init() {
	Register("memory", 10, func(opts Options) (Exporter, error) {
		table := opts.Table
		if table == nil {
			table = GlobalTable()
		}
		return NewMemoryExporter(table), nil
	}, nil)
}
