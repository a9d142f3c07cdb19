// Package builder translates a catalog snapshot and a client request
// into a directed constraint graph. Building is a pure function over
// its inputs: all backend access happens before the call, and the same
// snapshot and request always produce the same graph.
package builder

import (
	"github.com/depflow/depflow/pkg/depflow"
	"github.com/depflow/depflow/pkg/depflow/catalog"
)

// maxExpansionDepth bounds recursive dependency pull-in. The guard is
// independent of the resolver's cycle detection: it catches expansion
// loops before a graph even exists.
const maxExpansionDepth = 64

// Build expands the requested steps into a constraint graph for one
// client. Requested steps keep their order; dependencies not already
// satisfied by the client's installed state are pulled in recursively
// in discovery order.
func Build(snap *catalog.Snapshot, request depflow.ClientRequest) (*Graph, error) {
	b := &build{
		snap:      snap,
		installed: request.Installed,
		graph: &Graph{
			clientID: request.ClientID,
			index:    make(map[depflow.Identifier]int),
		},
	}
	for _, step := range request.Steps {
		if _, err := b.addStep(step, depflow.ReasonRequested, depflow.ProductID(""), 0); err != nil {
			return nil, err
		}
	}
	if err := b.connect(); err != nil {
		return nil, err
	}
	return b.graph, nil
}

type build struct {
	snap      *catalog.Snapshot
	installed depflow.InstalledState
	graph     *Graph
}

// addStep inserts the step's node and recursively pulls in unsatisfied
// Before/After dependencies. requiredBy names the product whose
// dependency caused the insertion, for error reporting.
func (b *build) addStep(step depflow.Step, reason depflow.Reason, requiredBy depflow.ProductID, depth int) (int, error) {
	if depth > maxExpansionDepth {
		return 0, &depflow.ExpansionDepthError{Step: step, Depth: maxExpansionDepth}
	}
	if i, ok := b.graph.Lookup(step); ok {
		return i, nil
	}
	product, ok := b.snap.Product(step.Product)
	if !ok {
		return 0, &depflow.UnknownProductError{Product: step.Product, RequiredBy: requiredBy}
	}
	if versions, ambiguous := b.snap.Ambiguous(step.Product); ambiguous {
		return 0, &depflow.AmbiguousVersionError{Product: step.Product, Versions: versions}
	}
	i := b.graph.addNode(step, product.Priority, reason)
	for _, dep := range b.snap.Dependencies(step) {
		if dep.Kind == depflow.RequirementMandatoryIfPresent {
			// Orders only; pulling in nodes is not its job.
			continue
		}
		action := targetAction(dep)
		// Presence satisfies install-type targets; an uninstall target
		// is satisfied by absence instead.
		if action == depflow.ActionUninstall {
			if !b.installed.Has(dep.TargetProduct) {
				continue
			}
		} else if b.installed.Has(dep.TargetProduct) {
			continue
		}
		target := depflow.Step{Product: dep.TargetProduct, Action: action}
		if _, err := b.addStep(target, depflow.ReasonDependency, step.Product, depth+1); err != nil {
			return 0, err
		}
	}
	return i, nil
}

// connect adds ordering edges and conflict pairs once the node set is
// fixed. Edges bind only nodes present in the graph; an "after" target
// that never made it in is treated as already satisfied.
func (b *build) connect() error {
	for i := 0; i < b.graph.Len(); i++ {
		step := b.graph.Node(i).Step
		for _, dep := range b.snap.Dependencies(step) {
			for _, j := range b.targets(dep) {
				switch dep.Kind {
				case depflow.RequirementBefore, depflow.RequirementMandatoryIfPresent:
					b.graph.addEdge(j, i)
				case depflow.RequirementAfter:
					b.graph.addEdge(i, j)
				}
			}
		}
		for _, c := range b.snap.Conflicts(step) {
			other := c.A
			if other == step {
				other = c.B
			}
			if j, ok := b.graph.Lookup(other); ok {
				b.graph.addConflict(i, j)
			}
		}
	}
	return nil
}

// targets resolves a dependency's endpoint to node indices. An "any"
// target binds to every scheduled action of the product, which yields
// the strictest ordering.
func (b *build) targets(dep depflow.Dependency) []int {
	if dep.TargetAction == depflow.ActionAny {
		return b.graph.nodesByProduct(dep.TargetProduct)
	}
	if j, ok := b.graph.Lookup(depflow.Step{Product: dep.TargetProduct, Action: dep.TargetAction}); ok {
		return []int{j}
	}
	return nil
}

// targetAction picks the concrete action for a pulled-in dependency
// target. "any" defaults to install, matching what a client missing the
// product needs.
func targetAction(dep depflow.Dependency) depflow.Action {
	if dep.TargetAction == depflow.ActionAny {
		return depflow.ActionInstall
	}
	return dep.TargetAction
}
