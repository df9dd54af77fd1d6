package object

import (
	"github.com/pkg/errors"
)

// ErrDependencyCycle is returned when a dependency edge would close a cycle.
var ErrDependencyCycle = errors.New("dependency cycle")

// Graph is the single-parent dependency DAG between objects. Edges are
// lookups only; the graph never owns the objects.
type Graph struct {
	deps     map[Node]Node
	prepared map[Node]bool
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		deps:     make(map[Node]Node),
		prepared: make(map[Node]bool),
	}
}

// SetDependency makes n depend on dep. A nil dep clears the edge. An edge
// that would make n reachable from itself is rejected.
func (g *Graph) SetDependency(n, dep Node) error {
	if dep == nil {
		delete(g.deps, n)
		return nil
	}
	for cur := dep; cur != nil; cur = g.deps[cur] {
		if cur == n {
			return errors.Wrapf(ErrDependencyCycle, "%s -> %s", n.Identifier(), dep.Identifier())
		}
	}
	g.deps[n] = dep
	return nil
}

// Dependency returns the node n depends on, or nil.
func (g *Graph) Dependency(n Node) Node {
	return g.deps[n]
}

// Depth is the number of dependency hops from n to a node without one.
func (g *Graph) Depth(n Node) int {
	d := 0
	for cur := g.deps[n]; cur != nil; cur = g.deps[cur] {
		d++
	}
	return d
}

// Prepared reports whether n has been prepared.
func (g *Graph) Prepared(n Node) bool {
	return g.prepared[n]
}

// Prepare prepares the dependency chain of n, then n itself, and returns the
// whole chain root first. Each node's Prepare hook runs at most once.
func (g *Graph) Prepare(n Node) []Node {
	var chain []Node
	if dep := g.deps[n]; dep != nil {
		chain = g.Prepare(dep)
	}
	if !g.prepared[n] {
		g.prepared[n] = true
		if p, ok := n.(Preparer); ok {
			p.Prepare()
		}
	}
	return append(chain, n)
}

// PrepareAll prepares the chain of the deepest node first, then every other
// node in the given order. It returns the nodes in the order they were
// prepared.
func (g *Graph) PrepareAll(nodes []Node) []Node {
	if len(nodes) == 0 {
		return nil
	}
	var order []Node
	prepare := func(n Node) {
		for _, c := range g.Prepare(n) {
			if !contains(order, c) {
				order = append(order, c)
			}
		}
	}

	deepest, depth := nodes[0], g.Depth(nodes[0])
	for _, n := range nodes[1:] {
		if d := g.Depth(n); d > depth {
			deepest, depth = n, d
		}
	}
	prepare(deepest)
	for _, n := range nodes {
		if !g.prepared[n] {
			prepare(n)
		}
	}
	return order
}

// Reset forgets which nodes were prepared.
func (g *Graph) Reset() {
	g.prepared = make(map[Node]bool)
}

func contains(list []Node, n Node) bool {
	for _, x := range list {
		if x == n {
			return true
		}
	}
	return false
}
