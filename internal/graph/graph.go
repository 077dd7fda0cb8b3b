// Package graph models the issue dependency relation and its cycle checks.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrCycle marks dependency cycles.
var ErrCycle = errors.New("dependency cycle detected")

// CycleError carries the offending cycle, first id repeated at the end.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%v: %s", ErrCycle, FormatPath(e.Path))
}

// Is matches ErrCycle.
func (e *CycleError) Is(target error) bool {
	return target == ErrCycle
}

// FormatPath renders a cycle as "a -> b -> a".
func FormatPath(path []string) string {
	return strings.Join(path, " -> ")
}

// Graph is a directed graph where an edge a -> b means a depends on b.
type Graph struct {
	edges map[string][]string
}

// New builds a graph from a dependency map. Dependency lists are copied.
func New(deps map[string][]string) *Graph {
	g := &Graph{edges: make(map[string][]string, len(deps))}
	for id, list := range deps {
		g.edges[id] = append([]string(nil), list...)
	}
	return g
}

// Nodes returns every id with an entry in the graph, sorted.
func (g *Graph) Nodes() []string {
	ids := make([]string, 0, len(g.edges))
	for id := range g.edges {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Has reports whether id has an entry in the graph.
func (g *Graph) Has(id string) bool {
	_, ok := g.edges[id]
	return ok
}

// Dependencies returns the direct dependencies of id.
func (g *Graph) Dependencies(id string) []string {
	return append([]string(nil), g.edges[id]...)
}

// Dependents returns the reverse adjacency: for each id, who depends on it.
func (g *Graph) Dependents() map[string][]string {
	rev := make(map[string][]string)
	for _, id := range g.Nodes() {
		for _, dep := range g.edges[id] {
			rev[dep] = append(rev[dep], id)
		}
	}
	return rev
}

const (
	white = iota
	grey
	black
)

// FindCycle walks every node in sorted order and returns the first cycle found.
// Edges to ids missing from the graph are ignored.
func (g *Graph) FindCycle() []string {
	color := make(map[string]int, len(g.edges))
	for _, id := range g.Nodes() {
		if color[id] != white {
			continue
		}
		if cycle := g.visit(id, color, nil); cycle != nil {
			return cycle
		}
	}
	return nil
}

// Validate returns a *CycleError when the graph is cyclic.
func (g *Graph) Validate() error {
	if cycle := g.FindCycle(); cycle != nil {
		return &CycleError{Path: cycle}
	}
	return nil
}

func (g *Graph) visit(id string, color map[string]int, stack []string) []string {
	color[id] = grey
	stack = append(stack, id)
	for _, dep := range g.edges[id] {
		if !g.Has(dep) {
			continue
		}
		switch color[dep] {
		case grey:
			return cyclePath(stack, dep)
		case white:
			if cycle := g.visit(dep, color, stack); cycle != nil {
				return cycle
			}
		}
	}
	color[id] = black
	return nil
}

// cyclePath returns the stack suffix starting at repeat, closed with repeat.
func cyclePath(stack []string, repeat string) []string {
	for i, id := range stack {
		if id == repeat {
			path := append([]string{}, stack[i:]...)
			return append(path, repeat)
		}
	}
	return []string{repeat, repeat}
}

// PathBetween returns a dependency path from -> ... -> to, or nil when to is
// unreachable from from.
func (g *Graph) PathBetween(from, to string) []string {
	seen := make(map[string]bool)
	var walk func(id string, path []string) []string
	walk = func(id string, path []string) []string {
		path = append(path, id)
		if id == to {
			return append([]string{}, path...)
		}
		if seen[id] {
			return nil
		}
		seen[id] = true
		for _, dep := range g.edges[id] {
			if found := walk(dep, path); found != nil {
				return found
			}
		}
		return nil
	}
	return walk(from, nil)
}

// CheckEdge reports the cycle that adding from -> to would close, before the
// edge is committed anywhere.
func (g *Graph) CheckEdge(from, to string) error {
	if from == to {
		return &CycleError{Path: []string{from, from}}
	}
	back := g.PathBetween(to, from)
	if back == nil {
		return nil
	}
	return &CycleError{Path: append([]string{from}, back...)}
}

// IsCycle reports whether path is a closed walk along edges of g.
func (g *Graph) IsCycle(path []string) bool {
	if len(path) < 2 || path[0] != path[len(path)-1] {
		return false
	}
	for i := 0; i < len(path)-1; i++ {
		found := false
		for _, dep := range g.edges[path[i]] {
			if dep == path[i+1] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
