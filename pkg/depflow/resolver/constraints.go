package resolver

import (
	"fmt"

	"github.com/go-air/gini/z"

	"github.com/depflow/depflow/pkg/depflow"
)

// constraint implementations limit the circumstances under which a
// particular step can appear in a schedule. The set is closed: the
// conflict core only ever reasons about scheduled anchors and mutual
// exclusions.
type constraint interface {
	String(subject depflow.Identifier) string
	apply(lm *litMapping, subject depflow.Identifier) z.Lit
	anchor() bool
}

// scheduledConstraint anchors a step: every node of the constraint
// graph is scheduled in its pass, so each one is assumed true.
type scheduledConstraint struct{}

func (scheduledConstraint) String(subject depflow.Identifier) string {
	return fmt.Sprintf("%s is scheduled in this pass", subject)
}

func (scheduledConstraint) apply(lm *litMapping, subject depflow.Identifier) z.Lit {
	return lm.LitOf(subject)
}

func (scheduledConstraint) anchor() bool {
	return true
}

// exclusionConstraint forbids the subject and the named step from both
// being scheduled in the same pass.
type exclusionConstraint struct {
	other depflow.Identifier
	pair  depflow.Conflict
}

func (e exclusionConstraint) String(subject depflow.Identifier) string {
	return fmt.Sprintf("%s conflicts with %s", subject, e.other)
}

func (e exclusionConstraint) apply(lm *litMapping, subject depflow.Identifier) z.Lit {
	return lm.circuit().Or(lm.LitOf(subject).Not(), lm.LitOf(e.other).Not())
}

func (exclusionConstraint) anchor() bool {
	return false
}

// appliedConstraint composes a constraint with the step identifier it
// applies to.
type appliedConstraint struct {
	subject    depflow.Identifier
	constraint constraint
}

// String implements fmt.Stringer and returns a human-readable message
// representing the receiver.
func (a appliedConstraint) String() string {
	return a.constraint.String(a.subject)
}
