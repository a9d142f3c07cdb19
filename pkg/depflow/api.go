package depflow

import (
	"fmt"
	"sort"
	"strings"
)

// ProductID names a deployable product independent of its version.
type ProductID string

func (id ProductID) String() string {
	return string(id)
}

// Action is an operation applied to a product on a client. The set of
// actions is closed: an unknown action is a data error, not a new kind.
type Action string

const (
	ActionInstall   Action = "install"
	ActionUninstall Action = "uninstall"
	ActionUpdate    Action = "update"
	ActionOnce      Action = "once"
	ActionCustom    Action = "custom"

	// ActionAny is only valid as a dependency target: it is satisfied by
	// whichever action of the target product ends up scheduled.
	ActionAny Action = "any"
)

// Valid reports whether a is a schedulable action. ActionAny is not
// schedulable and is rejected here.
func (a Action) Valid() bool {
	switch a {
	case ActionInstall, ActionUninstall, ActionUpdate, ActionOnce, ActionCustom:
		return true
	}
	return false
}

// Step is the schedulable unit: one action on one product.
type Step struct {
	Product ProductID `json:"product" yaml:"product" msgpack:"product"`
	Action  Action    `json:"action" yaml:"action" msgpack:"action"`
}

// Identifier values uniquely identify particular Steps within the input
// to a single resolution pass.
type Identifier string

func (id Identifier) String() string {
	return string(id)
}

// Identifier returns the Identifier that uniquely identifies this Step
// among all other Steps in a given pass.
func (s Step) Identifier() Identifier {
	return Identifier(string(s.Product) + ":" + string(s.Action))
}

func (s Step) String() string {
	return string(s.Identifier())
}

// RequirementKind is the closed set of dependency semantics. Modeling it
// as a tagged variant keeps an unhandled kind a compile-time concern
// instead of a silently ignored string.
type RequirementKind uint8

const (
	// RequirementBefore orders the target before the depending step and
	// pulls the target in when the client does not already satisfy it.
	RequirementBefore RequirementKind = iota
	// RequirementAfter orders the target after the depending step. A
	// target absent from the graph is treated as already satisfied.
	RequirementAfter
	// RequirementMandatoryIfPresent orders the target before the
	// depending step only when both are scheduled; it never pulls in
	// new steps.
	RequirementMandatoryIfPresent
)

func (k RequirementKind) String() string {
	switch k {
	case RequirementBefore:
		return "before"
	case RequirementAfter:
		return "after"
	case RequirementMandatoryIfPresent:
		return "mandatory-if-present"
	}
	return fmt.Sprintf("requirement(%d)", uint8(k))
}

// ParseRequirementKind maps the stored representation back to the
// variant set.
func ParseRequirementKind(s string) (RequirementKind, error) {
	switch s {
	case "before":
		return RequirementBefore, nil
	case "after":
		return RequirementAfter, nil
	case "mandatory-if-present":
		return RequirementMandatoryIfPresent, nil
	}
	return 0, fmt.Errorf("unknown requirement kind %q", s)
}

// Dependency is an ordering/pull-in constraint between two product
// actions.
type Dependency struct {
	Product       ProductID       `json:"product" yaml:"product"`
	Action        Action          `json:"action" yaml:"action"`
	TargetProduct ProductID       `json:"targetProduct" yaml:"targetProduct"`
	TargetAction  Action          `json:"targetAction" yaml:"targetAction"`
	Kind          RequirementKind `json:"kind" yaml:"kind"`
}

// Validate rejects dependencies that reference their own product.
func (d Dependency) Validate() error {
	if d.Product == d.TargetProduct {
		return fmt.Errorf("product %s declares a dependency on itself", d.Product)
	}
	if !d.Action.Valid() {
		return fmt.Errorf("dependency of %s has invalid action %q", d.Product, d.Action)
	}
	if d.TargetAction != ActionAny && !d.TargetAction.Valid() {
		return fmt.Errorf("dependency of %s has invalid target action %q", d.Product, d.TargetAction)
	}
	return nil
}

func (d Dependency) String() string {
	return fmt.Sprintf("%s:%s requires %s:%s %s", d.Product, d.Action, d.TargetProduct, d.TargetAction, d.Kind)
}

// Conflict is a mutual-exclusion constraint between two steps within one
// pass. The pair is unordered: storing (A,B) also forbids (B,A).
type Conflict struct {
	A Step `json:"a" yaml:"a"`
	B Step `json:"b" yaml:"b"`
}

// Normalized returns the conflict with its endpoints in identifier
// order, so that (A,B) and (B,A) compare equal.
func (c Conflict) Normalized() Conflict {
	if c.B.Identifier() < c.A.Identifier() {
		return Conflict{A: c.B, B: c.A}
	}
	return c
}

// Involves reports whether s is one of the conflict's endpoints.
func (c Conflict) Involves(s Step) bool {
	return c.A == s || c.B == s
}

func (c Conflict) String() string {
	n := c.Normalized()
	return fmt.Sprintf("%s conflicts with %s", n.A, n.B)
}

// Product is a unit of deployable software as seen by one resolution
// pass. Products are immutable once loaded: a pass never observes a
// catalog mutation.
type Product struct {
	ID ProductID `json:"id" yaml:"id"`
	// ProductVersion and PackageVersion carry the upstream and packaging
	// version parts separately; Version is their joined, comparable form.
	ProductVersion string `json:"productVersion" yaml:"productVersion"`
	PackageVersion string `json:"packageVersion" yaml:"packageVersion"`
	Version        string `json:"version" yaml:"version"`
	// Priority schedules higher values earlier among otherwise-unordered
	// steps.
	Priority     int          `json:"priority" yaml:"priority"`
	Actions      []Action     `json:"actions" yaml:"actions"`
	Dependencies []Dependency `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Conflicts    []Conflict   `json:"conflicts,omitempty" yaml:"conflicts,omitempty"`
}

// Supports reports whether the product declares the given action.
func (p Product) Supports(a Action) bool {
	for _, action := range p.Actions {
		if action == a {
			return true
		}
	}
	return false
}

// InstalledProduct is one entry of a client's installed-state snapshot.
type InstalledProduct struct {
	Product    ProductID `json:"product" yaml:"product"`
	Version    string    `json:"version" yaml:"version"`
	LastAction Action    `json:"lastAction,omitempty" yaml:"lastAction,omitempty"`
}

// InstalledState is a client's point-in-time installed-product snapshot.
// It is owned by the backend and read-only to the resolver core.
type InstalledState map[ProductID]InstalledProduct

// Has reports whether the client already has the product installed.
func (s InstalledState) Has(id ProductID) bool {
	_, ok := s[id]
	return ok
}

// ClientRequest is one client's requested steps plus its installed-state
// snapshot.
type ClientRequest struct {
	ClientID  string         `json:"clientId" yaml:"clientId"`
	Steps     []Step         `json:"steps" yaml:"steps"`
	Installed InstalledState `json:"installed,omitempty" yaml:"installed,omitempty"`
}

// Reason records why a step is part of a sequence.
type Reason string

const (
	// ReasonRequested marks a step explicitly named by the client request.
	ReasonRequested Reason = "requested"
	// ReasonDependency marks a step pulled in to satisfy a dependency.
	ReasonDependency Reason = "dependency"
)

// SequencedStep is one entry of an ActionSequence. Requires holds the
// indices of sequence entries this step depends on, so a consumer can
// compute dependent-skipping without the original graph.
type SequencedStep struct {
	Step     `json:",inline" yaml:",inline" msgpack:",inline"`
	Reason   Reason `json:"reason" yaml:"reason" msgpack:"reason"`
	Requires []int  `json:"requires,omitempty" yaml:"requires,omitempty" msgpack:"requires"`
}

// ActionSequence is the ordered, deterministic output of one resolution
// pass for one client. The resolver holds no reference to it after
// returning; the caller owns it.
type ActionSequence struct {
	ClientID string          `json:"clientId" yaml:"clientId" msgpack:"clientId"`
	Steps    []SequencedStep `json:"steps" yaml:"steps" msgpack:"steps"`
	// Omitted lists steps dropped by a deprioritizing conflict policy.
	// Empty under the default fail-fast policy.
	Omitted []Step `json:"omitted,omitempty" yaml:"omitted,omitempty" msgpack:"omitted"`
}

// FailureKind classifies a ResolutionFailure.
type FailureKind string

const (
	FailureCycle    FailureKind = "cycle"
	FailureConflict FailureKind = "conflict"
)

// ResolutionFailure records the unsatisfiable subset of a constraint
// graph for diagnostics. It is stable: the same input graph produces the
// same failure value.
type ResolutionFailure struct {
	Kind FailureKind `json:"kind" yaml:"kind" msgpack:"kind"`
	// Cycle holds the members of the offending cycle, in traversal order
	// starting from the smallest identifier. Set when Kind is
	// FailureCycle.
	Cycle []Step `json:"cycle,omitempty" yaml:"cycle,omitempty" msgpack:"cycle"`
	// Conflict holds the offending pair. Set when Kind is
	// FailureConflict.
	Conflict *Conflict `json:"conflict,omitempty" yaml:"conflict,omitempty" msgpack:"conflict"`
	// Constraints holds human-readable renderings of the minimal applied
	// constraint set that makes the graph unsatisfiable.
	Constraints []string `json:"constraints,omitempty" yaml:"constraints,omitempty" msgpack:"constraints"`
}

func (f ResolutionFailure) String() string {
	switch f.Kind {
	case FailureCycle:
		ids := make([]string, len(f.Cycle))
		for i, s := range f.Cycle {
			ids[i] = s.String()
		}
		return fmt.Sprintf("dependency cycle: %s", strings.Join(ids, " -> "))
	case FailureConflict:
		if f.Conflict != nil {
			return f.Conflict.String()
		}
	}
	return "resolution failure"
}

// UnknownProductError reports a dependency that references a product id
// absent from the catalog subset supplied to the builder.
type UnknownProductError struct {
	Product    ProductID
	RequiredBy ProductID
}

func (e *UnknownProductError) Error() string {
	if e.RequiredBy != "" {
		return fmt.Sprintf("unknown product %q required by %q", e.Product, e.RequiredBy)
	}
	return fmt.Sprintf("unknown product %q", e.Product)
}

// AmbiguousVersionError reports more than one version of the same
// product id requested or implied in a single pass.
type AmbiguousVersionError struct {
	Product  ProductID
	Versions []string
}

func (e *AmbiguousVersionError) Error() string {
	versions := append([]string(nil), e.Versions...)
	sort.Strings(versions)
	return fmt.Sprintf("product %q is requested in multiple versions: %s", e.Product, strings.Join(versions, ", "))
}

// CyclicDependencyError reports a dependency cycle in the constraint
// graph. Removing any one edge of the named cycle makes it acyclic.
type CyclicDependencyError struct {
	Failure ResolutionFailure
}

func (e *CyclicDependencyError) Error() string {
	return e.Failure.String()
}

// Cycle returns the steps participating in the cycle.
func (e *CyclicDependencyError) Cycle() []Step {
	return e.Failure.Cycle
}

// UnresolvableConflictError reports two conflicting steps that are both
// scheduled in the same pass.
type UnresolvableConflictError struct {
	Failure ResolutionFailure
}

func (e *UnresolvableConflictError) Error() string {
	msg := e.Failure.String()
	if len(e.Failure.Constraints) > 0 {
		msg += ":\n" + strings.Join(e.Failure.Constraints, "\n")
	}
	return msg
}

// Pair returns the conflicting steps.
func (e *UnresolvableConflictError) Pair() (Step, Step) {
	if e.Failure.Conflict == nil {
		return Step{}, Step{}
	}
	return e.Failure.Conflict.A, e.Failure.Conflict.B
}

// ExpansionDepthError reports that dependency expansion exceeded the
// builder's recursion guard, which indicates a pathological catalog.
type ExpansionDepthError struct {
	Step  Step
	Depth int
}

func (e *ExpansionDepthError) Error() string {
	return fmt.Sprintf("dependency expansion exceeded depth %d at %s", e.Depth, e.Step)
}
