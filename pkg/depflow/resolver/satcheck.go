package resolver

import (
	"sort"

	"github.com/go-air/gini"
	"github.com/go-air/gini/z"

	"github.com/depflow/depflow/pkg/depflow"
	"github.com/depflow/depflow/pkg/depflow/builder"
)

const (
	satisfiable   = 1
	unsatisfiable = -1
)

// checkConflicts encodes the graph's schedule as a SAT problem: every
// node is anchored as scheduled, every conflict pair becomes a mutual
// exclusion. A satisfiable formula means no conflict can fire; an
// unsatisfiable one yields a minimal applied-constraint core for the
// failure diagnostics.
func checkConflicts(g *builder.Graph) *depflow.ResolutionFailure {
	if len(g.Conflicts()) == 0 {
		return nil
	}

	applied := make([]appliedConstraint, 0, g.Len()+len(g.Conflicts()))
	for i := 0; i < g.Len(); i++ {
		applied = append(applied, appliedConstraint{
			subject:    g.Node(i).Step.Identifier(),
			constraint: scheduledConstraint{},
		})
	}
	for _, pair := range g.Conflicts() {
		a := g.Node(pair[0]).Step
		b := g.Node(pair[1]).Step
		applied = append(applied, appliedConstraint{
			subject: a.Identifier(),
			constraint: exclusionConstraint{
				other: b.Identifier(),
				pair:  depflow.Conflict{A: a, B: b}.Normalized(),
			},
		})
	}

	litMap := newLitMapping(applied)
	giniSolver := gini.New()
	litMap.AddConstraints(giniSolver)

	anchors := litMap.AnchorIdentifiers()
	assumptions := make([]z.Lit, len(anchors))
	for i := range anchors {
		assumptions[i] = litMap.LitOf(anchors[i])
	}
	giniSolver.Assume(assumptions...)
	litMap.AssumeConstraints(giniSolver)

	if giniSolver.Solve() != unsatisfiable {
		return nil
	}

	// The named pair is the smallest exclusion inside the minimal core,
	// so the reported failure names a conflict that provably fires and
	// stays identical across repeated resolutions of the same graph.
	core := litMap.Conflicts(giniSolver)
	var pair depflow.Conflict
	found := false
	for _, a := range core {
		e, ok := a.constraint.(exclusionConstraint)
		if !ok {
			continue
		}
		if !found || conflictLess(e.pair, pair) {
			pair = e.pair
			found = true
		}
	}
	if !found {
		first := g.Conflicts()[0]
		pair = depflow.Conflict{
			A: g.Node(first[0]).Step,
			B: g.Node(first[1]).Step,
		}.Normalized()
	}

	rendered := make([]string, len(core))
	for i, a := range core {
		rendered[i] = a.String()
	}
	sort.Strings(rendered)

	return &depflow.ResolutionFailure{
		Kind:        depflow.FailureConflict,
		Conflict:    &pair,
		Constraints: rendered,
	}
}

func conflictLess(a, b depflow.Conflict) bool {
	if a.A.Identifier() != b.A.Identifier() {
		return a.A.Identifier() < b.A.Identifier()
	}
	return a.B.Identifier() < b.B.Identifier()
}
