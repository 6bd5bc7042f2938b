package domain

import (
	"slices"

	"go.trai.ch/zerr"
)

// Graph is the directed acyclic invalidation graph over cache keys. An edge
// from -> to means busting from must also bust to. Aggregate keys are ordinary
// nodes with fan-in edges from every non-aggregate key. The graph is built
// once at configuration load time and read-only afterwards.
type Graph struct {
	keys       []string
	edges      map[string][]string
	aggregates []string
}

// NewGraph creates an empty graph over the given keys.
func NewGraph(keys []string) *Graph {
	return &Graph{
		keys:  slices.Clone(keys),
		edges: make(map[string][]string),
	}
}

// Keys returns all keys in the graph.
func (g *Graph) Keys() []string {
	return slices.Clone(g.keys)
}

// Has reports whether the key exists in the graph.
func (g *Graph) Has(key string) bool {
	return slices.Contains(g.keys, key)
}

// AddEdge adds a directed invalidation edge. Both endpoints must be known keys.
func (g *Graph) AddEdge(from, to string) error {
	if !g.Has(from) {
		return zerr.With(ErrUnknownKey, "key", from)
	}
	if !g.Has(to) {
		return zerr.With(ErrUnknownKey, "key", to)
	}
	if slices.Contains(g.edges[from], to) {
		return nil
	}
	g.edges[from] = append(g.edges[from], to)
	return nil
}

// MarkAggregates declares the given keys as aggregate nodes and adds fan-in
// edges from every non-aggregate key to each of them. All aggregates are
// recorded before any edge is added, so no aggregate ever feeds into another
// regardless of declaration order.
func (g *Graph) MarkAggregates(keys ...string) error {
	for _, key := range keys {
		if !g.Has(key) {
			return zerr.With(ErrUnknownKey, "key", key)
		}
		if !slices.Contains(g.aggregates, key) {
			g.aggregates = append(g.aggregates, key)
		}
	}
	for _, key := range g.aggregates {
		for _, from := range g.keys {
			if from == key || slices.Contains(g.aggregates, from) {
				continue
			}
			if err := g.AddEdge(from, key); err != nil {
				return err
			}
		}
	}
	return nil
}

// Aggregates returns the declared aggregate keys.
func (g *Graph) Aggregates() []string {
	return slices.Clone(g.aggregates)
}

// Dependents returns the direct invalidation targets of key.
func (g *Graph) Dependents(key string) []string {
	return slices.Clone(g.edges[key])
}

// Reachable returns key plus every key reachable from it via invalidation
// edges, in breadth-first order. Each key appears at most once even for
// diamond-shaped graphs.
func (g *Graph) Reachable(key string) []string {
	visited := map[string]bool{key: true}
	order := []string{key}
	queue := []string{key}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range g.edges[current] {
			if visited[next] {
				continue
			}
			visited[next] = true
			order = append(order, next)
			queue = append(queue, next)
		}
	}
	return order
}

// Validate checks the graph for cycles using Kahn's algorithm and returns
// ErrCycleDetected naming the keys involved if one exists. Called once at
// startup so a silently-looping cascade can never reach the facade.
func (g *Graph) Validate() error {
	indegree := make(map[string]int, len(g.keys))
	for _, key := range g.keys {
		indegree[key] = 0
	}
	for _, targets := range g.edges {
		for _, to := range targets {
			indegree[to]++
		}
	}

	queue := make([]string, 0, len(g.keys))
	for _, key := range g.keys {
		if indegree[key] == 0 {
			queue = append(queue, key)
		}
	}

	processed := 0
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		processed++
		for _, next := range g.edges[current] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if processed != len(g.keys) {
		remaining := make([]string, 0)
		for _, key := range g.keys {
			if indegree[key] > 0 {
				remaining = append(remaining, key)
			}
		}
		slices.Sort(remaining)
		return zerr.With(ErrCycleDetected, "keys", remaining)
	}
	return nil
}
