package graph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindCycleAcyclic(t *testing.T) {
	g := New(map[string][]string{
		"a": {"b", "c"},
		"b": {"c"},
		"c": nil,
		"d": {"missing"},
	})
	assert.Nil(t, g.FindCycle())
	assert.NoError(t, g.Validate())
}

func TestFindCycleReportsClosedPath(t *testing.T) {
	tests := []struct {
		name string
		deps map[string][]string
		want []string
	}{
		{
			name: "self loop",
			deps: map[string][]string{"a": {"a"}},
			want: []string{"a", "a"},
		},
		{
			name: "three node ring",
			deps: map[string][]string{"a": {"b"}, "b": {"c"}, "c": {"a"}},
			want: []string{"a", "b", "c", "a"},
		},
		{
			name: "cycle reachable from entry",
			deps: map[string][]string{"a": {"x"}, "x": {"y"}, "y": {"x"}},
			want: []string{"x", "y", "x"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(tt.deps)
			cycle := g.FindCycle()
			require.Equal(t, tt.want, cycle)
			assert.True(t, g.IsCycle(cycle))

			err := g.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrCycle))
			var cycleErr *CycleError
			require.True(t, errors.As(err, &cycleErr))
			assert.Equal(t, tt.want, cycleErr.Path)
		})
	}
}

func TestCheckEdge(t *testing.T) {
	g := New(map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": nil,
	})

	assert.NoError(t, g.CheckEdge("a", "c"))

	err := g.CheckEdge("c", "a")
	require.Error(t, err)
	var cycleErr *CycleError
	require.True(t, errors.As(err, &cycleErr))
	assert.Equal(t, []string{"c", "a", "b", "c"}, cycleErr.Path)
	assert.Contains(t, err.Error(), "c -> a -> b -> c")

	err = g.CheckEdge("b", "b")
	require.True(t, errors.As(err, &cycleErr))
	assert.Equal(t, []string{"b", "b"}, cycleErr.Path)
}

func TestDependents(t *testing.T) {
	g := New(map[string][]string{
		"a": {"c"},
		"b": {"c"},
		"c": nil,
	})
	assert.Equal(t, map[string][]string{"c": {"a", "b"}}, g.Dependents())
}

func TestIsCycleRejectsBrokenWalk(t *testing.T) {
	g := New(map[string][]string{"a": {"b"}, "b": nil})
	assert.False(t, g.IsCycle([]string{"a", "b", "a"}))
	assert.False(t, g.IsCycle([]string{"a"}))
}
