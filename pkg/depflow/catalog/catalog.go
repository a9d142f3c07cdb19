// Package catalog provides the immutable per-pass view of known
// products, their declared dependencies and conflicts, and per-client
// installed-state snapshots.
package catalog

import (
	"context"
	"fmt"
	"sort"

	"github.com/Masterminds/semver/v3"

	"github.com/depflow/depflow/pkg/depflow"
)

// Snapshot is a point-in-time, read-only catalog view. It is safe to
// share across concurrent resolution passes because nothing mutates it
// after construction.
type Snapshot struct {
	products map[depflow.ProductID]depflow.Product
	// versions keeps every version string seen per product id, in
	// descending semver order, for ambiguity diagnostics.
	versions  map[depflow.ProductID][]string
	deps      map[depflow.ProductID][]depflow.Dependency
	conflicts map[depflow.Identifier][]depflow.Conflict
	order     []depflow.ProductID
}

// NewSnapshot validates the given products and freezes them into a
// Snapshot. Validation covers self-dependencies, invalid actions and
// duplicate id+version entries; conflicts are normalized so a pair
// stored once is honored symmetrically.
func NewSnapshot(products []depflow.Product) (*Snapshot, error) {
	s := &Snapshot{
		products:  make(map[depflow.ProductID]depflow.Product, len(products)),
		versions:  make(map[depflow.ProductID][]string, len(products)),
		deps:      make(map[depflow.ProductID][]depflow.Dependency, len(products)),
		conflicts: make(map[depflow.Identifier][]depflow.Conflict),
	}
	for _, p := range products {
		if p.ID == "" {
			return nil, fmt.Errorf("product with empty id")
		}
		for _, d := range p.Dependencies {
			if err := d.Validate(); err != nil {
				return nil, err
			}
			if d.Product != p.ID {
				return nil, fmt.Errorf("product %s declares a dependency owned by %s", p.ID, d.Product)
			}
		}
		if prev, ok := s.products[p.ID]; ok {
			if sameVersion(prev.Version, p.Version) {
				return nil, fmt.Errorf("duplicate catalog entry for %s version %q", p.ID, p.Version)
			}
			s.versions[p.ID] = append(s.versions[p.ID], p.Version)
			// The highest version is the canonical entry; lower versions
			// stay visible through Versions for ambiguity diagnostics.
			if versionLess(prev.Version, p.Version) {
				s.products[p.ID] = p
				s.deps[p.ID] = append([]depflow.Dependency(nil), p.Dependencies...)
			}
			continue
		}
		s.products[p.ID] = p
		s.versions[p.ID] = []string{p.Version}
		s.deps[p.ID] = append([]depflow.Dependency(nil), p.Dependencies...)
		s.order = append(s.order, p.ID)
	}
	for id := range s.versions {
		sortVersionsDescending(s.versions[id])
	}
	sort.Slice(s.order, func(i, j int) bool { return s.order[i] < s.order[j] })
	// Conflicts come from the canonical entry of each product, so a
	// replaced lower version leaves no constraints behind.
	for _, id := range s.order {
		for _, c := range s.products[id].Conflicts {
			n := c.Normalized()
			s.conflicts[n.A.Identifier()] = append(s.conflicts[n.A.Identifier()], n)
			s.conflicts[n.B.Identifier()] = append(s.conflicts[n.B.Identifier()], n)
		}
	}
	return s, nil
}

// Product returns the catalog entry for id.
func (s *Snapshot) Product(id depflow.ProductID) (depflow.Product, bool) {
	p, ok := s.products[id]
	return p, ok
}

// Versions returns every version of id present in the snapshot, highest
// first. A result longer than one means the pass must disambiguate.
func (s *Snapshot) Versions(id depflow.ProductID) []string {
	return s.versions[id]
}

// Dependencies returns the declared dependencies of the given step.
func (s *Snapshot) Dependencies(step depflow.Step) []depflow.Dependency {
	var out []depflow.Dependency
	for _, d := range s.deps[step.Product] {
		if d.Action == step.Action {
			out = append(out, d)
		}
	}
	return out
}

// Conflicts returns the normalized conflicts involving the given step.
func (s *Snapshot) Conflicts(step depflow.Step) []depflow.Conflict {
	return s.conflicts[step.Identifier()]
}

// Len returns the number of distinct product ids in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.order)
}

// Iterate calls fn for every product in ascending id order. Iteration
// stops at the first error.
func (s *Snapshot) Iterate(fn func(depflow.Product) error) error {
	for _, id := range s.order {
		if err := fn(s.products[id]); err != nil {
			return err
		}
	}
	return nil
}

// Source is the catalog-facing subset of the backend dispatcher.
type Source interface {
	GetProducts(ctx context.Context, ids []depflow.ProductID) ([]depflow.Product, error)
	GetDependencies(ctx context.Context, id depflow.ProductID) ([]depflow.Dependency, error)
	GetConflicts(ctx context.Context, id depflow.ProductID) ([]depflow.Conflict, error)
}

// Load pulls a fresh snapshot for the given product ids through the
// backend boundary. Passing no ids loads the full catalog. Snapshots are
// loaded at pass start and discarded at pass end; nothing is cached
// across passes.
func Load(ctx context.Context, src Source, ids ...depflow.ProductID) (*Snapshot, error) {
	products, err := src.GetProducts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	for i := range products {
		deps, err := src.GetDependencies(ctx, products[i].ID)
		if err != nil {
			return nil, fmt.Errorf("load dependencies of %s: %w", products[i].ID, err)
		}
		conflicts, err := src.GetConflicts(ctx, products[i].ID)
		if err != nil {
			return nil, fmt.Errorf("load conflicts of %s: %w", products[i].ID, err)
		}
		if deps != nil {
			products[i].Dependencies = deps
		}
		if conflicts != nil {
			products[i].Conflicts = conflicts
		}
	}
	return NewSnapshot(products)
}

// sameVersion compares two version strings under semver normalization,
// so "1.0" and "1.0.0" do not count as an ambiguity. Unparseable
// versions fall back to string equality.
func sameVersion(a, b string) bool {
	if a == b {
		return true
	}
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	if errA != nil || errB != nil {
		return false
	}
	return va.Equal(vb)
}

func versionLess(a, b string) bool {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	if errA != nil || errB != nil {
		return a < b
	}
	return va.LessThan(vb)
}

func sortVersionsDescending(versions []string) {
	sort.Slice(versions, func(i, j int) bool { return versionLess(versions[j], versions[i]) })
}

// Ambiguous reports whether id resolves to more than one distinct
// version in this snapshot, returning the competing versions.
func (s *Snapshot) Ambiguous(id depflow.ProductID) ([]string, bool) {
	versions := s.versions[id]
	if len(versions) < 2 {
		return nil, false
	}
	return versions, true
}
