// Package auditor implements the audit log write path: it diffs tracked
// objects across a mutation, masks sensitive values, and appends an
// immutable log entry carrying the object's serialized state.
package auditor

import (
	"fmt"
	"sync"

	"github.com/rpattn/auditq/internal/domain"
)

// Options controls how one object type is tracked.
type Options struct {
	// IncludeFields, when non-empty, limits tracking to the listed fields.
	IncludeFields []string
	// ExcludeFields removes fields from tracking.
	ExcludeFields []string
	// MaskFields lists sensitive fields. Values are masked in recorded
	// diffs, and nested "__" paths are masked inside the serialized state.
	MaskFields []string
}

func (o Options) diffOptions() domain.DiffOptions {
	return domain.DiffOptions{
		IncludeFields: o.IncludeFields,
		ExcludeFields: o.ExcludeFields,
		MaskFields:    o.MaskFields,
	}
}

// Registry holds the tracking options per object type. Recording against an
// unregistered type is rejected: tracked types are declared up front at
// wiring time, the same way lookup sources are.
type Registry struct {
	mu    sync.RWMutex
	types map[string]Options
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]Options)}
}

// Register declares an object type as tracked. Registering the same type
// twice replaces the earlier options.
func (r *Registry) Register(objectType string, opts Options) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[objectType] = opts
}

// OptionsFor returns the tracking options for an object type.
func (r *Registry) OptionsFor(objectType string) (Options, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	opts, ok := r.types[objectType]
	if !ok {
		return Options{}, fmt.Errorf("object type %q is not registered for auditing", objectType)
	}
	return opts, nil
}

// Contains reports whether an object type is tracked.
func (r *Registry) Contains(objectType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.types[objectType]
	return ok
}
