// Package graph assembles independently authored stage groups into a single
// directed acyclic pipeline.
//
// A Subgraph is a set of named nodes plus internal edges. Builder.Add merges a
// subgraph into the pipeline, wiring its entry from already-registered nodes
// and its terminal nodes to external targets or End. Build validates the
// result and returns an immutable Graph.
//
// The package emits structure only. Scheduling, joins and state merging belong
// to the executor that walks the Graph.
package graph

import (
	"slices"

	"github.com/ahrav/convhealth/internal/domain"
)

// Reserved sentinel node names.
const (
	Start = "__start__"
	End   = "__end__"
)

// Edge is a directed connection between two node names.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Graph is a validated, immutable pipeline.
type Graph[N any] struct {
	order []string
	nodes map[string]N
	succ  map[string][]string
	pred  map[string][]string
	edges []Edge
}

// Node returns the payload registered under name.
func (g *Graph[N]) Node(name string) (N, bool) {
	n, ok := g.nodes[name]
	return n, ok
}

// Nodes returns node names in registration order, excluding sentinels.
func (g *Graph[N]) Nodes() []string { return slices.Clone(g.order) }

// Edges returns every edge, including those touching Start and End, in
// insertion order.
func (g *Graph[N]) Edges() []Edge { return slices.Clone(g.edges) }

// HasEdge reports whether from→to exists.
func (g *Graph[N]) HasEdge(from, to string) bool {
	return slices.Contains(g.succ[from], to)
}

// Successors returns the direct successors of name.
func (g *Graph[N]) Successors(name string) []string { return slices.Clone(g.succ[name]) }

// Predecessors returns the direct predecessors of name.
func (g *Graph[N]) Predecessors(name string) []string { return slices.Clone(g.pred[name]) }

// InDegree returns the number of incoming edges of name.
func (g *Graph[N]) InDegree(name string) int { return len(g.pred[name]) }

// TopologicalOrder returns node names so that every edge points forward.
// Ties keep registration order, so the result is stable across calls.
func (g *Graph[N]) TopologicalOrder() []string {
	indeg := make(map[string]int, len(g.order))
	for _, n := range g.order {
		for _, p := range g.pred[n] {
			if p != Start {
				indeg[n]++
			}
		}
	}

	out := make([]string, 0, len(g.order))
	done := make(map[string]bool, len(g.order))
	for len(out) < len(g.order) {
		progressed := false
		for _, n := range g.order {
			if done[n] || indeg[n] > 0 {
				continue
			}
			done[n] = true
			out = append(out, n)
			for _, s := range g.succ[n] {
				indeg[s]--
			}
			progressed = true
		}
		if !progressed {
			// Unreachable for a graph produced by Build.
			break
		}
	}
	return out
}

func isSentinel(name string) bool { return name == Start || name == End }

func configErr(format string, args ...any) error {
	return domain.NewConfigurationError("graph", format, args...)
}
