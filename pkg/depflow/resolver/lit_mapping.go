package resolver

import (
	"github.com/go-air/gini/inter"
	"github.com/go-air/gini/logic"
	"github.com/go-air/gini/z"

	"github.com/depflow/depflow/pkg/depflow"
)

// litMapping performs translation between applied constraints over step
// identifiers and the literals that appear in the SAT formula.
type litMapping struct {
	inorder     []appliedConstraint
	ordered     []z.Lit
	lits        map[depflow.Identifier]z.Lit
	constraints map[z.Lit]appliedConstraint
	c           *logic.C
}

// newLitMapping builds the translation tables between applied
// constraints and the inputs to the underlying solver.
func newLitMapping(applied []appliedConstraint) *litMapping {
	d := &litMapping{
		inorder:     applied,
		ordered:     make([]z.Lit, 0, len(applied)),
		lits:        make(map[depflow.Identifier]z.Lit, len(applied)),
		constraints: make(map[z.Lit]appliedConstraint, len(applied)),
		c:           logic.NewC(),
	}
	for _, a := range applied {
		m := a.constraint.apply(d, a.subject)
		d.ordered = append(d.ordered, m)
		if m == z.LitNull {
			continue
		}
		d.constraints[m] = a
	}
	return d
}

// LitOf returns the positive literal corresponding to the step with the
// given identifier, allocating one on first use.
func (d *litMapping) LitOf(id depflow.Identifier) z.Lit {
	if m, ok := d.lits[id]; ok {
		return m
	}
	m := d.c.Lit()
	d.lits[id] = m
	return m
}

func (d *litMapping) circuit() *logic.C {
	return d.c
}

// AddConstraints teaches the constraints encoded in the embedded
// circuit to the solver g.
func (d *litMapping) AddConstraints(g inter.S) {
	d.c.ToCnf(g)
}

// AssumeConstraints assumes every non-anchor constraint in input order.
// The solver sees identical assumption sequences on repeated runs, so
// an unsatisfiable result always traces back to the same subset.
func (d *litMapping) AssumeConstraints(g inter.S) {
	for i, a := range d.inorder {
		if a.constraint.anchor() || d.ordered[i] == z.LitNull {
			continue
		}
		g.Assume(d.ordered[i])
	}
}

// AnchorIdentifiers returns the identifiers of every anchored step, in
// input order.
func (d *litMapping) AnchorIdentifiers() []depflow.Identifier {
	var ids []depflow.Identifier
	for _, a := range d.inorder {
		if a.constraint.anchor() {
			ids = append(ids, a.subject)
		}
	}
	return ids
}

// Conflicts maps the solver's minimal failed-assumption set back to the
// applied constraints it represents.
func (d *litMapping) Conflicts(g inter.Assumable) []appliedConstraint {
	whys := g.Why(nil)
	as := make([]appliedConstraint, 0, len(whys))
	for _, why := range whys {
		if a, ok := d.constraints[why]; ok {
			as = append(as, a)
		}
	}
	return as
}
