// Package sharedctx provides the run-scoped key-value context threaded
// through agent invocations.
//
// A workflow run (or a single IPC task) gets its own Context, cloned from the
// orchestrator's base context when the run starts and merged back when it
// finishes. Contexts are never shared between concurrently executing runs;
// the clone/merge discipline is what keeps concurrent runs from observing
// each other's writes.
package sharedctx

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Context is a versioned key-value store. Keys are strings, values are
// arbitrary serializable data. Safe for concurrent readers and writers,
// though within one run access is strictly sequential.
type Context struct {
	mu      sync.RWMutex
	values  map[string]any
	version uint64
}

// New returns an empty context.
func New() *Context {
	return &Context{values: make(map[string]any)}
}

// FromMap returns a context seeded with the given values.
func FromMap(m map[string]any) *Context {
	c := New()
	for k, v := range m {
		c.values[k] = v
	}
	return c
}

// Set stores a value and bumps the version.
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	c.version++
}

// Get returns the value for key.
func (c *Context) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// GetString returns the value for key if it is a non-empty string.
func (c *Context) GetString(key string) (string, bool) {
	v, ok := c.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// StringOr returns the string value for key, or def when absent or not a
// string.
func (c *Context) StringOr(key, def string) string {
	if s, ok := c.GetString(key); ok {
		return s
	}
	return def
}

// Merge stores every entry of m, bumping the version once.
func (c *Context) Merge(m map[string]any) {
	if len(m) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range m {
		c.values[k] = v
	}
	c.version++
}

// Clone returns an independent copy. Values are copied shallowly; callers
// store plain strings and small structs, not shared mutable state.
func (c *Context) Clone() *Context {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := &Context{values: make(map[string]any, len(c.values))}
	for k, v := range c.values {
		out.values[k] = v
	}
	return out
}

// Snapshot returns a copy of the current values.
func (c *Context) Snapshot() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Version returns the mutation counter. It only ever increases.
func (c *Context) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Len returns the number of stored keys.
func (c *Context) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.values)
}

// Render formats the context as sorted "key: value" lines. Corrective
// prompts embed this snapshot, so the output must be deterministic.
func (c *Context) Render() string {
	snap := c.Snapshot()
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %v\n", k, snap[k])
	}
	return b.String()
}
