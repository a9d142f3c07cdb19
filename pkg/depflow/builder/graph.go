package builder

import (
	"github.com/depflow/depflow/pkg/depflow"
)

// Node is one schedulable step inside a constraint graph. Nodes are
// addressed by their integer index; the index doubles as the request
// order used for deterministic tie-breaking.
type Node struct {
	Step     depflow.Step
	Priority int
	Reason   depflow.Reason
}

// Graph is the constraint graph for one client's pass. Nodes live in an
// arena indexed by position; ordering edges and conflict pairs are
// stored as adjacency lists of indices, which keeps cycle detection and
// reachability scans free of pointer chasing.
type Graph struct {
	clientID  string
	nodes     []Node
	index     map[depflow.Identifier]int
	succs     [][]int
	conflicts [][2]int
}

// ClientID returns the client this graph was built for.
func (g *Graph) ClientID() string {
	return g.clientID
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Node returns the node at index i.
func (g *Graph) Node(i int) Node {
	return g.nodes[i]
}

// Successors returns the indices of nodes that must run after node i.
func (g *Graph) Successors(i int) []int {
	return g.succs[i]
}

// Conflicts returns the conflicting index pairs, each with the smaller
// index first.
func (g *Graph) Conflicts() [][2]int {
	return g.conflicts
}

// Lookup returns the index of the node for the given step.
func (g *Graph) Lookup(step depflow.Step) (int, bool) {
	i, ok := g.index[step.Identifier()]
	return i, ok
}

// nodesByProduct returns the indices of every scheduled action of the
// given product, in index order.
func (g *Graph) nodesByProduct(id depflow.ProductID) []int {
	var out []int
	for i, n := range g.nodes {
		if n.Step.Product == id {
			out = append(out, i)
		}
	}
	return out
}

func (g *Graph) addNode(step depflow.Step, priority int, reason depflow.Reason) int {
	if i, ok := g.index[step.Identifier()]; ok {
		return i
	}
	i := len(g.nodes)
	g.nodes = append(g.nodes, Node{Step: step, Priority: priority, Reason: reason})
	g.index[step.Identifier()] = i
	g.succs = append(g.succs, nil)
	return i
}

// addEdge records that node u must run before node v. Duplicate and
// self edges are dropped.
func (g *Graph) addEdge(u, v int) {
	if u == v {
		return
	}
	for _, w := range g.succs[u] {
		if w == v {
			return
		}
	}
	g.succs[u] = append(g.succs[u], v)
}

func (g *Graph) addConflict(a, b int) {
	if a == b {
		return
	}
	if b < a {
		a, b = b, a
	}
	for _, p := range g.conflicts {
		if p[0] == a && p[1] == b {
			return
		}
	}
	g.conflicts = append(g.conflicts, [2]int{a, b})
}
