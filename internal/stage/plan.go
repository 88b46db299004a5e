package stage

import (
	"context"

	"github.com/ahrav/convhealth/internal/graph"
)

// ActivityDescribePlan is the registered name of Activities.DescribePlan.
const ActivityDescribePlan = "DescribePlan"

// PlanNode is one stage of a Plan with its dependencies. Sentinels are omitted.
type PlanNode struct {
	Name         string   `json:"name"`
	Kind         Kind     `json:"kind"`
	Predecessors []string `json:"predecessors"`
	Successors   []string `json:"successors"`
}

// Plan is the serializable form of a pipeline graph, in topological order.
// A workflow walks a Plan; it never sees stage implementations.
type Plan struct {
	Nodes []PlanNode `json:"nodes"`
}

// NewPlan describes g.
func NewPlan(g *graph.Graph[Stage]) Plan {
	order := g.TopologicalOrder()
	p := Plan{Nodes: make([]PlanNode, 0, len(order))}
	for _, name := range order {
		s, _ := g.Node(name)
		p.Nodes = append(p.Nodes, PlanNode{
			Name:         name,
			Kind:         s.Kind(),
			Predecessors: withoutSentinels(g.Predecessors(name)),
			Successors:   withoutSentinels(g.Successors(name)),
		})
	}
	return p
}

// Node returns the plan node called name.
func (p Plan) Node(name string) (PlanNode, bool) {
	for _, n := range p.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return PlanNode{}, false
}

// DescribePlan returns the plan of the worker's pipeline. The result is
// recorded in workflow history, so replay does not consult the worker.
func (a *Activities) DescribePlan(context.Context) (*Plan, error) {
	p := NewPlan(a.graph)
	return &p, nil
}

func withoutSentinels(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != graph.Start && n != graph.End {
			out = append(out, n)
		}
	}
	return out
}
