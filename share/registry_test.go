// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package share

import (
	"errors"
	"testing"
)

func TestRegistryBuiltinMemoryBackend(t *testing.T) {
	entry, ok := Get("memory")
	if !ok {
		t.Fatal("built-in memory backend not registered")
	}
	if entry.Priority != 10 {
		t.Errorf("memory backend priority = %d, want 10", entry.Priority)
	}

	e, err := NewExporterByName("memory", Options{Table: NewTable()})
	if err != nil {
		t.Fatalf("NewExporterByName(memory) error = %v", err)
	}
	if _, ok := e.(*MemoryExporter); !ok {
		t.Errorf("memory factory returned %T, want *MemoryExporter", e)
	}
}

func TestRegistryPriorityOrder(t *testing.T) {
	r := NewRegistry()
	r.Register("low", 1, func(Options) (Exporter, error) {
		return NewMemoryExporter(NewTable()), nil
	}, nil)
	r.Register("high", 100, func(Options) (Exporter, error) {
		return NewMemoryExporter(NewTable()), nil
	}, nil)
	r.Register("mid", 50, func(Options) (Exporter, error) {
		return NewMemoryExporter(NewTable()), nil
	}, nil)

	names := r.List()
	want := []string{"high", "mid", "low"}
	if len(names) != len(want) {
		t.Fatalf("List() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("List()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestRegistryUnavailableSkipped(t *testing.T) {
	r := NewRegistry()
	r.Register("broken", 100, func(Options) (Exporter, error) {
		t.Fatal("unavailable backend factory must not run")
		return nil, nil
	}, func() bool { return false })
	r.Register("working", 10, func(Options) (Exporter, error) {
		return NewMemoryExporter(NewTable()), nil
	}, nil)

	if got := r.Available(); len(got) != 1 || got[0] != "working" {
		t.Errorf("Available() = %v, want [working]", got)
	}

	e, err := r.NewExporter(Options{})
	if err != nil {
		t.Fatalf("NewExporter() error = %v", err)
	}
	if e == nil {
		t.Fatal("NewExporter() returned nil exporter")
	}
}

func TestRegistryFallthroughOnFactoryError(t *testing.T) {
	r := NewRegistry()
	r.Register("flaky", 100, func(Options) (Exporter, error) {
		return nil, errors.New("no device")
	}, nil)
	r.Register("solid", 10, func(Options) (Exporter, error) {
		return NewMemoryExporter(NewTable()), nil
	}, nil)

	e, err := r.NewExporter(Options{})
	if err != nil {
		t.Fatalf("NewExporter() error = %v", err)
	}
	if _, ok := e.(*MemoryExporter); !ok {
		t.Errorf("NewExporter() fell through to %T, want *MemoryExporter", e)
	}
}

func TestRegistryErrors(t *testing.T) {
	r := NewRegistry()

	if _, err := r.NewExporter(Options{}); !errors.Is(err, ErrNoBackendAvailable) {
		t.Errorf("empty registry NewExporter() error = %v, want ErrNoBackendAvailable", err)
	}

	_, err := r.NewExporterByName("missing", Options{})
	var notFound *BackendNotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("NewExporterByName(missing) error = %v, want BackendNotFoundError", err)
	}

	r.Register("off", 1, func(Options) (Exporter, error) {
		return nil, nil
	}, func() bool { return false })
	_, err = r.NewExporterByName("off", Options{})
	var unavailable *BackendUnavailableError
	if !errors.As(err, &unavailable) {
		t.Errorf("NewExporterByName(off) error = %v, want BackendUnavailableError", err)
	}
}

func TestRegistryUnregister(t *testing.T) {
	r := NewRegistry()
	r.Register("gone", 1, func(Options) (Exporter, error) {
		return NewMemoryExporter(NewTable()), nil
	}, nil)
	r.Unregister("gone")

	if _, ok := r.Get("gone"); ok {
		t.Error("Get() found backend after Unregister()")
	}
}
