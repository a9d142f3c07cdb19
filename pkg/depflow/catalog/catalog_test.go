package catalog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depflow/depflow/pkg/depflow"
	"github.com/depflow/depflow/pkg/depflow/catalog"
)

func install(id depflow.ProductID) depflow.Step {
	return depflow.Step{Product: id, Action: depflow.ActionInstall}
}

func TestNewSnapshotRejectsSelfDependency(t *testing.T) {
	_, err := catalog.NewSnapshot([]depflow.Product{{
		ID:      "a",
		Version: "1.0.0",
		Actions: []depflow.Action{depflow.ActionInstall},
		Dependencies: []depflow.Dependency{{
			Product: "a", Action: depflow.ActionInstall,
			TargetProduct: "a", TargetAction: depflow.ActionInstall,
			Kind: depflow.RequirementBefore,
		}},
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dependency on itself")
}

func TestNewSnapshotRejectsDuplicateVersion(t *testing.T) {
	products := []depflow.Product{
		{ID: "a", Version: "1.0", Actions: []depflow.Action{depflow.ActionInstall}},
		{ID: "a", Version: "1.0.0", Actions: []depflow.Action{depflow.ActionInstall}},
	}
	// "1.0" and "1.0.0" are the same version under semver normalization.
	_, err := catalog.NewSnapshot(products)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate catalog entry")
}

func TestSnapshotTracksCompetingVersions(t *testing.T) {
	snap, err := catalog.NewSnapshot([]depflow.Product{
		{ID: "a", Version: "1.2.0", Actions: []depflow.Action{depflow.ActionInstall}},
		{ID: "a", Version: "2.0.0", Actions: []depflow.Action{depflow.ActionInstall}},
	})
	require.NoError(t, err)

	versions, ambiguous := snap.Ambiguous("a")
	require.True(t, ambiguous)
	assert.Equal(t, []string{"2.0.0", "1.2.0"}, versions)

	p, ok := snap.Product("a")
	require.True(t, ok)
	assert.Equal(t, "2.0.0", p.Version)
}

func TestSnapshotConflictsAreSymmetric(t *testing.T) {
	conflict := depflow.Conflict{A: install("b"), B: install("a")}
	snap, err := catalog.NewSnapshot([]depflow.Product{
		{ID: "a", Version: "1.0.0", Actions: []depflow.Action{depflow.ActionInstall}},
		{ID: "b", Version: "1.0.0", Actions: []depflow.Action{depflow.ActionInstall}, Conflicts: []depflow.Conflict{conflict}},
	})
	require.NoError(t, err)

	fromA := snap.Conflicts(install("a"))
	fromB := snap.Conflicts(install("b"))
	require.Len(t, fromA, 1)
	require.Len(t, fromB, 1)
	assert.Equal(t, fromA[0], fromB[0])
	// Stored once, normalized once.
	assert.Equal(t, install("a"), fromA[0].A)
	assert.Equal(t, install("b"), fromA[0].B)
}

func TestSnapshotConflictsFollowCanonicalVersion(t *testing.T) {
	v1 := depflow.Product{
		ID: "a", Version: "1.0.0",
		Actions:   []depflow.Action{depflow.ActionInstall},
		Conflicts: []depflow.Conflict{{A: install("a"), B: install("x")}},
	}
	v2 := depflow.Product{
		ID: "a", Version: "2.0.0",
		Actions:   []depflow.Action{depflow.ActionInstall},
		Conflicts: []depflow.Conflict{{A: install("a"), B: install("y")}},
	}
	snap, err := catalog.NewSnapshot([]depflow.Product{v1, v2})
	require.NoError(t, err)

	conflicts := snap.Conflicts(install("a"))
	require.Len(t, conflicts, 1)
	assert.Equal(t, install("y"), conflicts[0].B)
	assert.Empty(t, snap.Conflicts(install("x")))
}

func TestSnapshotDependenciesFilterByAction(t *testing.T) {
	snap, err := catalog.NewSnapshot([]depflow.Product{
		{
			ID: "a", Version: "1.0.0",
			Actions: []depflow.Action{depflow.ActionInstall, depflow.ActionUninstall},
			Dependencies: []depflow.Dependency{
				{Product: "a", Action: depflow.ActionInstall, TargetProduct: "b", TargetAction: depflow.ActionInstall, Kind: depflow.RequirementBefore},
				{Product: "a", Action: depflow.ActionUninstall, TargetProduct: "c", TargetAction: depflow.ActionUninstall, Kind: depflow.RequirementAfter},
			},
		},
	})
	require.NoError(t, err)

	deps := snap.Dependencies(install("a"))
	require.Len(t, deps, 1)
	assert.Equal(t, depflow.ProductID("b"), deps[0].TargetProduct)
}

type fakeSource struct {
	products  []depflow.Product
	deps      map[depflow.ProductID][]depflow.Dependency
	conflicts map[depflow.ProductID][]depflow.Conflict
}

func (f *fakeSource) GetProducts(_ context.Context, ids []depflow.ProductID) ([]depflow.Product, error) {
	return f.products, nil
}

func (f *fakeSource) GetDependencies(_ context.Context, id depflow.ProductID) ([]depflow.Dependency, error) {
	return f.deps[id], nil
}

func (f *fakeSource) GetConflicts(_ context.Context, id depflow.ProductID) ([]depflow.Conflict, error) {
	return f.conflicts[id], nil
}

func TestLoadPullsDependenciesThroughTheBoundary(t *testing.T) {
	src := &fakeSource{
		products: []depflow.Product{
			{ID: "a", Version: "1.0.0", Actions: []depflow.Action{depflow.ActionInstall}},
			{ID: "b", Version: "1.0.0", Actions: []depflow.Action{depflow.ActionInstall}},
		},
		deps: map[depflow.ProductID][]depflow.Dependency{
			"a": {{Product: "a", Action: depflow.ActionInstall, TargetProduct: "b", TargetAction: depflow.ActionInstall, Kind: depflow.RequirementBefore}},
		},
		conflicts: map[depflow.ProductID][]depflow.Conflict{},
	}

	snap, err := catalog.Load(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Len())
	assert.Len(t, snap.Dependencies(install("a")), 1)
	assert.Empty(t, snap.Dependencies(install("b")))
}
