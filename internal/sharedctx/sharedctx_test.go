package sharedctx

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGet(t *testing.T) {
	c := New()

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("language", "Go")
	v, ok := c.Get("language")
	require.True(t, ok)
	assert.Equal(t, "Go", v)

	s, ok := c.GetString("language")
	require.True(t, ok)
	assert.Equal(t, "Go", s)

	// Non-string and empty values are not strings.
	c.Set("count", 3)
	_, ok = c.GetString("count")
	assert.False(t, ok)
	c.Set("empty", "")
	_, ok = c.GetString("empty")
	assert.False(t, ok)

	assert.Equal(t, "generate_new", c.StringOr("operation_type", "generate_new"))
}

func TestVersionIncrements(t *testing.T) {
	c := New()
	assert.Equal(t, uint64(0), c.Version())

	c.Set("a", 1)
	assert.Equal(t, uint64(1), c.Version())

	c.Merge(map[string]any{"b": 2, "c": 3})
	assert.Equal(t, uint64(2), c.Version())

	c.Merge(nil)
	assert.Equal(t, uint64(2), c.Version())
}

func TestCloneIsolation(t *testing.T) {
	base := FromMap(map[string]any{"shared": "seed"})

	run := base.Clone()
	run.Set("codegen_output", "generated")
	run.Set("shared", "run-local")

	// The base never observes run-local writes.
	v, ok := base.Get("shared")
	require.True(t, ok)
	assert.Equal(t, "seed", v)
	_, ok = base.Get("codegen_output")
	assert.False(t, ok)

	// Snapshot is a copy, not a view.
	snap := run.Snapshot()
	snap["shared"] = "mutated"
	v, _ = run.Get("shared")
	assert.Equal(t, "run-local", v)
}

func TestConcurrentRunsDoNotInterfere(t *testing.T) {
	base := FromMap(map[string]any{"goal": "refactor"})

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rc := base.Clone()
			rc.Set("task_output", fmt.Sprintf("output-%d", i))
			v, _ := rc.Get("task_output")
			results[i] = v.(string)
		}(i)
	}
	wg.Wait()

	for i, got := range results {
		assert.Equal(t, fmt.Sprintf("output-%d", i), got)
	}
	assert.Equal(t, 1, base.Len())
}

func TestRenderDeterministic(t *testing.T) {
	c := FromMap(map[string]any{
		"language":       "Go",
		"requirements":   "must stream",
		"operation_type": "generate_new",
	})

	want := "language: Go\noperation_type: generate_new\nrequirements: must stream\n"
	for i := 0; i < 5; i++ {
		assert.Equal(t, want, c.Render())
	}
}
