package graph

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fingraph-lang/fingraph/pkg/ferrors"
)

// DependencyGraph returns the full adjacency snapshot: node name -> direct
// input names. Nodes whose introspection panics default to an empty list
// rather than failing the whole call.
func (g *Graph) DependencyGraph() map[string][]string {
	adjacency := make(map[string][]string, len(g.order))
	for _, name := range g.order {
		adjacency[name] = g.dependenciesOf(name)
	}
	return adjacency
}

func (g *Graph) dependenciesOf(name string) (deps []string) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Warn("dependency introspection failed, defaulting to none",
				zap.String("node", name), zap.Any("panic", r))
			deps = []string{}
		}
	}()
	deps = g.nodes[name].Dependencies()
	if deps == nil {
		deps = []string{}
	}
	return deps
}

// TopologicalSort orders the nodes so every node appears after all of its
// direct inputs, using Kahn's algorithm. Edges point input -> dependent.
// It fails with a cycle error if the ordering cannot cover every node.
// Tie-break among zero-in-degree nodes is insertion-order-stable.
func (g *Graph) TopologicalSort() ([]string, error) {
	adjacency := g.DependencyGraph()

	inDegree := make(map[string]int, len(g.order))
	dependents := make(map[string][]string, len(g.order))
	for _, name := range g.order {
		inDegree[name] = 0
	}
	for _, name := range g.order {
		for _, input := range adjacency[name] {
			if _, ok := g.nodes[input]; !ok {
				// Dangling reference; Validate reports it.
				continue
			}
			inDegree[name]++
			dependents[input] = append(dependents[input], name)
		}
	}

	queue := make([]string, 0, len(g.order))
	for _, name := range g.order {
		if inDegree[name] == 0 {
			queue = append(queue, name)
		}
	}

	ordered := make([]string, 0, len(g.order))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		ordered = append(ordered, current)
		for _, dependent := range dependents[current] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(ordered) < len(g.order) {
		err := ferrors.New(ferrors.CodeCycleDetected,
			"graph contains at least one dependency cycle")
		if cycles := g.DetectCycles(); len(cycles) > 0 {
			err = err.WithCycle(cycles[0])
		}
		return nil, err
	}
	return ordered, nil
}

// DetectCycles enumerates every distinct dependency cycle using depth-first
// search with three-color marking and back-edge detection. Each cycle is the
// sequence of node names forming the loop, first name repeated at the end;
// degenerate self-loops are included.
func (g *Graph) DetectCycles() [][]string {
	const (
		white = 0 // unvisited
		gray  = 1 // on the recursion stack
		black = 2 // completed
	)

	adjacency := g.DependencyGraph()
	state := make(map[string]int, len(g.order))
	path := make([]string, 0, len(g.order))
	seen := make(map[string]struct{})
	var cycles [][]string

	var visit func(name string)
	visit = func(name string) {
		state[name] = gray
		path = append(path, name)

		for _, input := range adjacency[name] {
			if _, ok := g.nodes[input]; !ok {
				continue
			}
			switch state[input] {
			case white:
				visit(input)
			case gray:
				// Back edge: the cycle is the path segment from input onward.
				start := 0
				for i, p := range path {
					if p == input {
						start = i
						break
					}
				}
				cycle := append(append([]string(nil), path[start:]...), input)
				sig := signature(cycle)
				if _, dup := seen[sig]; !dup {
					seen[sig] = struct{}{}
					cycles = append(cycles, cycle)
				}
			}
		}

		path = path[:len(path)-1]
		state[name] = black
	}

	for _, name := range g.order {
		if state[name] == white {
			visit(name)
		}
	}
	return cycles
}

// signature canonicalizes a cycle (rotated to start at its smallest name) so
// the same loop reached from different entry points is deduplicated.
func signature(cycle []string) string {
	loop := cycle[:len(cycle)-1]
	minIdx := 0
	for i, name := range loop {
		if name < loop[minIdx] {
			minIdx = i
		}
	}
	sig := ""
	for i := range loop {
		sig += loop[(minIdx+i)%len(loop)] + "|"
	}
	return sig
}

// Validate returns one message per detected cycle and one per node with a
// dangling dependency. An empty result means the graph is well-formed.
func (g *Graph) Validate() []string {
	var problems []string

	for _, cycle := range g.DetectCycles() {
		problems = append(problems, fmt.Sprintf("dependency cycle: %s", joinArrow(cycle)))
	}

	adjacency := g.DependencyGraph()
	for _, name := range g.order {
		for _, input := range adjacency[name] {
			if _, ok := g.nodes[input]; !ok {
				problems = append(problems,
					fmt.Sprintf("node %q depends on %q, which is not in the graph", name, input))
			}
		}
	}
	return problems
}

func joinArrow(names []string) string {
	out := ""
	for i, name := range names {
		if i > 0 {
			out += " -> "
		}
		out += name
	}
	return out
}
