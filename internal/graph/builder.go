package graph

import (
	"slices"
	"sort"
)

// Subgraph is a named node set with internal edges, authored independently of
// the pipeline it will join.
type Subgraph[N any] struct {
	order []string
	nodes map[string]N
	edges []Edge
}

// NewSubgraph creates an empty subgraph.
func NewSubgraph[N any]() *Subgraph[N] {
	return &Subgraph[N]{nodes: make(map[string]N)}
}

// AddNode registers a node. A repeated name replaces the payload and keeps
// its original position; collisions are detected when the subgraph is added
// to a Builder against names registered there.
func (s *Subgraph[N]) AddNode(name string, node N) *Subgraph[N] {
	if _, ok := s.nodes[name]; !ok {
		s.order = append(s.order, name)
	}
	s.nodes[name] = node
	return s
}

// AddEdge records an internal edge. Both ends are checked when the subgraph
// is added to a Builder.
func (s *Subgraph[N]) AddEdge(from, to string) *Subgraph[N] {
	s.edges = append(s.edges, Edge{From: from, To: to})
	return s
}

// Has reports whether name is a node of s.
func (s *Subgraph[N]) Has(name string) bool {
	_, ok := s.nodes[name]
	return ok
}

// Names returns node names in insertion order.
func (s *Subgraph[N]) Names() []string { return slices.Clone(s.order) }

// Builder accumulates subgraphs into one pipeline.
// A Builder is not safe for concurrent use.
type Builder[N any] struct {
	initial string
	order   []string
	nodes   map[string]N
	edges   []Edge
	edgeSet map[Edge]struct{}
	added   bool
}

// NewBuilder creates a builder whose designated initial node is registered
// immediately. Build wires Start to it.
func NewBuilder[N any](initialName string, initial N) *Builder[N] {
	b := &Builder[N]{
		initial: initialName,
		nodes:   make(map[string]N),
		edgeSet: make(map[Edge]struct{}),
	}
	b.order = append(b.order, initialName)
	b.nodes[initialName] = initial
	return b
}

// Add merges sg into the pipeline.
//
// entry must be a node of sg. Each key of exits must be a node of sg; its
// value is the external target, which may be registered by a later Add, or
// End. Every name in connectFrom must already be registered and gets an edge
// into entry; several sources form a fan-in. Internal edges of sg are kept
// verbatim. Adding an edge that already exists is a no-op.
//
// On error the builder is left unchanged.
func (b *Builder[N]) Add(sg *Subgraph[N], entry string, exits map[string]string, connectFrom ...string) error {
	if sg == nil || len(sg.order) == 0 {
		return configErr("subgraph is empty")
	}
	if !sg.Has(entry) {
		return configErr("entry %q is not a node of the subgraph", entry)
	}
	for _, name := range sg.order {
		if isSentinel(name) {
			return configErr("node name %q is reserved", name)
		}
		if _, exists := b.nodes[name]; exists {
			return configErr("node %q is already registered", name)
		}
	}
	for _, e := range sg.edges {
		if !sg.Has(e.From) || !sg.Has(e.To) {
			return configErr("internal edge %s -> %s leaves the subgraph", e.From, e.To)
		}
	}
	exitSources := sortedExitSources(exits)
	for _, from := range exitSources {
		if !sg.Has(from) {
			return configErr("exit %q is not a node of the subgraph", from)
		}
		if exits[from] == Start {
			return configErr("exit %q cannot target the start sentinel", from)
		}
	}
	for _, src := range connectFrom {
		if _, ok := b.nodes[src]; !ok {
			return configErr("cannot connect entry %q from unregistered node %q", entry, src)
		}
	}

	for _, name := range sg.order {
		b.order = append(b.order, name)
		b.nodes[name] = sg.nodes[name]
	}
	for _, e := range sg.edges {
		b.addEdge(e.From, e.To)
	}
	for _, from := range exitSources {
		b.addEdge(from, exits[from])
	}
	for _, src := range connectFrom {
		b.addEdge(src, entry)
	}
	b.added = true
	return nil
}

// Connect adds a single edge between registered nodes, or from a registered
// node to End. Used for wiring that belongs to no particular subgraph.
func (b *Builder[N]) Connect(from, to string) error {
	if _, ok := b.nodes[from]; !ok {
		return configErr("unregistered edge source %q", from)
	}
	if _, ok := b.nodes[to]; !ok && to != End {
		return configErr("unregistered edge target %q", to)
	}
	b.addEdge(from, to)
	return nil
}

func (b *Builder[N]) addEdge(from, to string) {
	e := Edge{From: from, To: to}
	if _, ok := b.edgeSet[e]; ok {
		return
	}
	b.edgeSet[e] = struct{}{}
	b.edges = append(b.edges, e)
}

// Build validates the accumulated structure and returns an immutable Graph.
//
// It fails when nothing was added, when an edge names an unregistered node,
// when a node is unreachable from Start, when no path reaches End, or when
// the graph contains a cycle.
func (b *Builder[N]) Build() (*Graph[N], error) {
	if !b.added {
		return nil, configErr("no subgraphs were added")
	}

	g := &Graph[N]{
		order: slices.Clone(b.order),
		nodes: make(map[string]N, len(b.nodes)),
		succ:  make(map[string][]string),
		pred:  make(map[string][]string),
	}
	for k, v := range b.nodes {
		g.nodes[k] = v
	}

	edges := append([]Edge{{From: Start, To: b.initial}}, b.edges...)
	for _, e := range edges {
		if _, ok := g.nodes[e.From]; !ok && e.From != Start {
			return nil, configErr("edge %s -> %s references unregistered node %q", e.From, e.To, e.From)
		}
		if _, ok := g.nodes[e.To]; !ok && e.To != End {
			return nil, configErr("edge %s -> %s references unregistered node %q", e.From, e.To, e.To)
		}
		g.succ[e.From] = append(g.succ[e.From], e.To)
		g.pred[e.To] = append(g.pred[e.To], e.From)
	}
	g.edges = edges

	reached := reachable(g.succ, Start)
	for _, n := range g.order {
		if !reached[n] {
			return nil, configErr("node %q is unreachable from start", n)
		}
	}
	if !reached[End] {
		return nil, configErr("no path reaches the end sentinel")
	}
	if cycle := findCycle(g); cycle != "" {
		return nil, configErr("cycle detected through node %q", cycle)
	}
	return g, nil
}

func reachable(succ map[string][]string, from string) map[string]bool {
	seen := map[string]bool{from: true}
	stack := []string{from}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, s := range succ[n] {
			if !seen[s] {
				seen[s] = true
				stack = append(stack, s)
			}
		}
	}
	return seen
}

// findCycle returns a node on a cycle, or "" if the graph is acyclic.
func findCycle[N any](g *Graph[N]) string {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(g.order))
	var visit func(string) string
	visit = func(n string) string {
		color[n] = grey
		for _, s := range g.succ[n] {
			switch color[s] {
			case grey:
				return s
			case white:
				if c := visit(s); c != "" {
					return c
				}
			}
		}
		color[n] = black
		return ""
	}
	for _, n := range g.order {
		if color[n] == white {
			if c := visit(n); c != "" {
				return c
			}
		}
	}
	return ""
}

func sortedExitSources(exits map[string]string) []string {
	keys := make([]string, 0, len(exits))
	for k := range exits {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
