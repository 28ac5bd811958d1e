package interp

import (
	"fmt"
	"strings"

	gfn "github.com/panyam/goutils/fn"

	"github.com/velang/velprof/decl"
)

// InferenceResult is a sealed cache value: the inferred return type,
// the diagnostics found in the subtree, and whether the fixpoint
// converged within bounds. Immutable once sealed.
type InferenceResult struct {
	Return    *decl.Type
	Errors    []*ErrorRecord
	Converged bool
}

type cacheEntry struct {
	sealed bool
	result InferenceResult

	// In-progress placeholder state, driving recursive fixpoints.
	current  *decl.Type   // best-effort return type so far, Bottom first
	history  []*decl.Type // return types observed across iterations
	hit      bool         // a recursive re-entry read the placeholder
	diverged bool         // fixpoint aborted at the hard iteration cap
	tainted  bool         // computed from an unstable placeholder; never seal
}

func (e *cacheEntry) converged() bool { return !e.diverged }

// Cache memoizes (function, argument-type-tuple) results for one run.
// It is discarded entirely at the start of every run; recursive
// re-entries into the same key share a single placeholder (single
// threaded reentrancy, not locking).
type Cache struct {
	entries    map[string]*cacheEntry
	maxEntries int
}

func NewCache(maxEntries int) *Cache {
	return &Cache{entries: make(map[string]*cacheEntry), maxEntries: maxEntries}
}

// Key canonicalizes a (function, argument types) pair. Union members
// are already in canonical order so String is stable.
func Key(fn string, args []*decl.Type) string {
	strs := gfn.Map(args, func(t *decl.Type) string { return t.String() })
	return fn + "(" + strings.Join(strs, ",") + ")"
}

func (c *Cache) Lookup(key string) (*cacheEntry, bool) {
	e, ok := c.entries[key]
	return e, ok
}

// Begin inserts an in-progress placeholder for key. Exceeding the
// entry cap is a tool-internal resource failure, not a diagnostic.
func (c *Cache) Begin(key string) (*cacheEntry, error) {
	if c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		return nil, fmt.Errorf("inference cache exceeded %d entries: %w", c.maxEntries, ErrResourceLimit)
	}
	e := &cacheEntry{current: decl.Bottom}
	c.entries[key] = e
	return e, nil
}

// Seal finalizes an entry. Sealed entries never change.
func (c *Cache) Seal(key string, result InferenceResult) {
	if e, ok := c.entries[key]; ok {
		e.sealed = true
		e.result = result
	}
}

// Drop removes an entry whose computation aborted, so a later retry of
// the same run does not see a stale placeholder.
func (c *Cache) Drop(key string) { delete(c.entries, key) }

func (c *Cache) Len() int { return len(c.entries) }
