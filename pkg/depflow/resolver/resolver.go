// Package resolver computes a valid, deterministic per-client action
// order from a constraint graph, or reports the unsatisfiable subset of
// its constraints. Resolution is a synchronous, pure computation: the
// same graph value always yields byte-for-byte identical sequences.
package resolver

import (
	"container/heap"
	"fmt"
	"sort"

	"github.com/depflow/depflow/pkg/depflow"
	"github.com/depflow/depflow/pkg/depflow/builder"
)

// ConflictPolicy selects how a pass with a firing conflict is handled.
type ConflictPolicy int

const (
	// ConflictFail fails the whole pass with an
	// UnresolvableConflictError. This is the default.
	ConflictFail ConflictPolicy = iota
	// ConflictDeprioritize drops the lower-priority side of each
	// conflicting pair from the schedule and records it in the
	// sequence's Omitted list. Ties fall to the later-requested side.
	ConflictDeprioritize
)

// Tracer observes scheduling decisions, mainly for verbose CLI output.
type Tracer interface {
	Scheduled(step depflow.Step, position int)
}

// DefaultTracer is a no-op.
type DefaultTracer struct{}

func (DefaultTracer) Scheduled(depflow.Step, int) {}

// Resolver sequences constraint graphs. The zero value is not usable;
// construct with New.
type Resolver struct {
	policy ConflictPolicy
	tracer Tracer
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithConflictPolicy overrides the default fail-fast conflict policy.
func WithConflictPolicy(p ConflictPolicy) Option {
	return func(r *Resolver) { r.policy = p }
}

// WithTracer installs a scheduling tracer.
func WithTracer(t Tracer) Option {
	return func(r *Resolver) { r.tracer = t }
}

// New returns a Resolver with the given options applied.
func New(opts ...Option) *Resolver {
	r := &Resolver{policy: ConflictFail, tracer: DefaultTracer{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve sequences the graph into an ordered action list. It fails
// with CyclicDependencyError when the ordering edges contain a cycle
// and with UnresolvableConflictError when two conflicting steps are
// both scheduled under the fail-fast policy.
func (r *Resolver) Resolve(g *builder.Graph) (depflow.ActionSequence, error) {
	seq := depflow.ActionSequence{ClientID: g.ClientID()}

	omitted := map[int]bool{}
	switch r.policy {
	case ConflictFail:
		if failure := checkConflicts(g); failure != nil {
			return seq, &depflow.UnresolvableConflictError{Failure: *failure}
		}
	case ConflictDeprioritize:
		omitted = deprioritize(g)
	}

	if failure := traceCycle(g, omitted); failure != nil {
		return seq, &depflow.CyclicDependencyError{Failure: *failure}
	}

	positions, err := r.schedule(g, omitted, &seq)
	if err != nil {
		return depflow.ActionSequence{ClientID: g.ClientID()}, err
	}

	// Requires carries the direct ordering predecessors as sequence
	// positions, so consumers can skip dependents without the graph.
	for u := 0; u < g.Len(); u++ {
		if omitted[u] {
			continue
		}
		for _, v := range g.Successors(u) {
			if omitted[v] {
				continue
			}
			entry := &seq.Steps[positions[v]]
			entry.Requires = append(entry.Requires, positions[u])
		}
	}
	for i := range seq.Steps {
		sort.Ints(seq.Steps[i].Requires)
	}

	for i := 0; i < g.Len(); i++ {
		if omitted[i] {
			seq.Omitted = append(seq.Omitted, g.Node(i).Step)
		}
	}
	return seq, nil
}

// schedule runs the stable topological sort. Nodes with no remaining
// unresolved predecessors are drawn from a heap keyed by priority
// (higher first) and request order (earlier first), which fixes the
// determinism the audit trail depends on.
func (r *Resolver) schedule(g *builder.Graph, omitted map[int]bool, seq *depflow.ActionSequence) (map[int]int, error) {
	indegree := make([]int, g.Len())
	for u := 0; u < g.Len(); u++ {
		if omitted[u] {
			continue
		}
		for _, v := range g.Successors(u) {
			if !omitted[v] {
				indegree[v]++
			}
		}
	}

	ready := &readyQueue{graph: g}
	heap.Init(ready)
	for i := 0; i < g.Len(); i++ {
		if !omitted[i] && indegree[i] == 0 {
			heap.Push(ready, i)
		}
	}

	positions := make(map[int]int, g.Len())
	for ready.Len() > 0 {
		u := heap.Pop(ready).(int)
		node := g.Node(u)
		positions[u] = len(seq.Steps)
		r.tracer.Scheduled(node.Step, len(seq.Steps))
		seq.Steps = append(seq.Steps, depflow.SequencedStep{
			Step:   node.Step,
			Reason: node.Reason,
		})
		for _, v := range g.Successors(u) {
			if omitted[v] {
				continue
			}
			indegree[v]--
			if indegree[v] == 0 {
				heap.Push(ready, v)
			}
		}
	}

	want := g.Len() - len(omitted)
	if len(seq.Steps) != want {
		// traceCycle runs first, so getting stuck here indicates a bug
		// rather than an undiagnosed cycle.
		return nil, fmt.Errorf("scheduled %d of %d steps without a diagnosed cycle", len(seq.Steps), want)
	}
	return positions, nil
}

// traceCycle looks for a back edge with a depth-first search and, on
// finding one, returns the minimal cycle it closes. The search order is
// fixed (node index, adjacency order), so the reported cycle is stable
// for a given graph.
func traceCycle(g *builder.Graph, omitted map[int]bool) *depflow.ResolutionFailure {
	const (
		unvisited = 0
		onStack   = 1
		done      = 2
	)
	state := make([]int, g.Len())
	var stack []int

	var visit func(u int) []int
	visit = func(u int) []int {
		state[u] = onStack
		stack = append(stack, u)
		for _, v := range g.Successors(u) {
			if omitted[v] {
				continue
			}
			switch state[v] {
			case onStack:
				// Back edge: the cycle is the stack suffix from v.
				for i, w := range stack {
					if w == v {
						return append([]int(nil), stack[i:]...)
					}
				}
			case unvisited:
				if cycle := visit(v); cycle != nil {
					return cycle
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[u] = done
		return nil
	}

	for i := 0; i < g.Len(); i++ {
		if omitted[i] || state[i] != unvisited {
			continue
		}
		stack = stack[:0]
		if cycle := visit(i); cycle != nil {
			return cycleFailure(g, cycle)
		}
	}
	return nil
}

// cycleFailure normalizes the cycle to start at its smallest identifier
// and renders the ordering constraints it is made of.
func cycleFailure(g *builder.Graph, cycle []int) *depflow.ResolutionFailure {
	start := 0
	for i := range cycle {
		if g.Node(cycle[i]).Step.Identifier() < g.Node(cycle[start]).Step.Identifier() {
			start = i
		}
	}
	rotated := append(append([]int(nil), cycle[start:]...), cycle[:start]...)

	steps := make([]depflow.Step, len(rotated))
	constraints := make([]string, len(rotated))
	for i, u := range rotated {
		v := rotated[(i+1)%len(rotated)]
		steps[i] = g.Node(u).Step
		constraints[i] = fmt.Sprintf("%s must run before %s", g.Node(u).Step, g.Node(v).Step)
	}
	return &depflow.ResolutionFailure{
		Kind:        depflow.FailureCycle,
		Cycle:       steps,
		Constraints: constraints,
	}
}

// deprioritize picks the losing side of every conflicting pair: lower
// priority loses, ties lose to the later-requested node.
func deprioritize(g *builder.Graph) map[int]bool {
	omitted := make(map[int]bool)
	for _, pair := range g.Conflicts() {
		a, b := pair[0], pair[1]
		if omitted[a] || omitted[b] {
			continue
		}
		loser := b
		if g.Node(a).Priority < g.Node(b).Priority {
			loser = a
		}
		omitted[loser] = true
	}
	return omitted
}

// readyQueue is a max-heap of node indices keyed by (priority desc,
// request order asc).
type readyQueue struct {
	graph *builder.Graph
	items []int
}

func (q *readyQueue) Len() int { return len(q.items) }

func (q *readyQueue) Less(i, j int) bool {
	a, b := q.graph.Node(q.items[i]), q.graph.Node(q.items[j])
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return q.items[i] < q.items[j]
}

func (q *readyQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
}

func (q *readyQueue) Push(x any) {
	q.items = append(q.items, x.(int))
}

func (q *readyQueue) Pop() any {
	last := q.items[len(q.items)-1]
	q.items = q.items[:len(q.items)-1]
	return last
}
