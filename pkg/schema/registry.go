package schema

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Registry maps agent names to output schemas.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]*Schema
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{schemas: make(map[string]*Schema)}
}

// Register adds or replaces the schema for name.
func (r *Registry) Register(name string, s *Schema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[name] = s
}

// Lookup returns the schema registered for name.
func (r *Registry) Lookup(name string) (*Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[name]
	return s, ok
}

// Names lists registered agent names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func missingSchema(name string) Errors {
	return Errors{{Message: fmt.Sprintf("no schema found for agent %s", name)}}
}

// Validate checks raw against the schema registered for name. An unknown
// name is itself a failure.
func (r *Registry) Validate(name string, raw any) Errors {
	s, ok := r.Lookup(name)
	if !ok {
		return missingSchema(name)
	}
	return Check(s, raw)
}

// ValidatePartial type-checks only the fields present in raw.
func (r *Registry) ValidatePartial(name string, raw any) Errors {
	s, ok := r.Lookup(name)
	if !ok {
		return missingSchema(name)
	}
	return CheckPartial(s, raw)
}

// Result is the outcome of ValidateAs. Data is set only on success.
type Result[T any] struct {
	Success bool   `json:"success"`
	Data    *T     `json:"data,omitempty"`
	Errors  Errors `json:"errors,omitempty"`
}

// Err returns the errors as an error value, or nil on success.
func (res Result[T]) Err() error {
	if res.Success {
		return nil
	}
	return res.Errors
}

// ValidateAs validates raw against the schema for name and decodes it into T.
func ValidateAs[T any](reg *Registry, name string, raw any) Result[T] {
	if errs := reg.Validate(name, raw); len(errs) > 0 {
		return Result[T]{Errors: errs}
	}

	data, err := toJSON(raw)
	if err != nil {
		return Result[T]{Errors: Errors{{Message: err.Error()}}}
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return Result[T]{Errors: Errors{{Message: fmt.Sprintf("decode: %v", err)}}}
	}
	return Result[T]{Success: true, Data: &out}
}
