package decl

import (
	"fmt"
	"sort"
)

// References to values
type Ref[T any] struct {
	Value T
}

// Env[T] maps identifiers to bindings with basic lexical scoping via
// the 'outer' environment. The interpreter instantiates it with *Type
// as its abstract environment.
type Env[T any] struct {
	store map[string]*Ref[T]
	outer *Env[T]
}

// NewEnv[T] creates a new environment nested within an outer one.
// If outer is nil then returns a fresh top-level environment.
func NewEnv[T any](outer *Env[T]) *Env[T] {
	s := make(map[string]*Ref[T])
	return &Env[T]{store: s, outer: outer}
}

// GetRef retrieves a binding by name, checking the current environment
// first and then recursively the outer ones.
func (e *Env[T]) GetRef(name string) *Ref[T] {
	ref, ok := e.store[name]
	if (!ok || ref == nil) && e.outer != nil {
		ref = e.outer.GetRef(name)
	}
	return ref
}

func (e *Env[T]) Get(name string) (out T, found bool) {
	ref := e.GetRef(name)
	if ref != nil {
		out = ref.Value
		found = true
	}
	return
}

func (e *Env[T]) Set(key string, value T) {
	e.store[key] = &Ref[T]{Value: value}
}

// SetMany sets multiple key/values at once.
func (e *Env[T]) SetMany(kvpairs map[string]T) {
	for k, v := range kvpairs {
		e.Set(k, v)
	}
}

func (e *Env[T]) Push() *Env[T] {
	return NewEnv(e)
}

// Extend creates a nested environment seeded with the given bindings.
func (e *Env[T]) Extend(kvpairs map[string]T) *Env[T] {
	out := e.Push()
	out.SetMany(kvpairs)
	return out
}

// Flatten returns every visible binding, inner scopes shadowing outer.
func (e *Env[T]) Flatten() map[string]T {
	var out map[string]T
	if e.outer != nil {
		out = e.outer.Flatten()
	} else {
		out = make(map[string]T)
	}
	for k, ref := range e.store {
		if ref != nil {
			out[k] = ref.Value
		}
	}
	return out
}

// Clone returns an independent single-layer copy of the visible
// bindings. Branch arms are interpreted over clones so their effects
// can be merged explicitly instead of leaking through shared refs.
func (e *Env[T]) Clone() *Env[T] {
	out := NewEnv[T](nil)
	out.SetMany(e.Flatten())
	return out
}

// Keys returns all visible binding names, sorted for deterministic
// iteration.
func (e *Env[T]) Keys() []string {
	flat := e.Flatten()
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String representation for debugging
func (e *Env[T]) String() string {
	return fmt.Sprintf("Env{%v, outer: %v}", e.Keys(), e.outer != nil)
}
