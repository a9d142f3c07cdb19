package redisbackend_test

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depflow/depflow/pkg/depflow"
	"github.com/depflow/depflow/pkg/depflow/backend/redisbackend"
)

type staticCatalog struct {
	products []depflow.Product
}

func (c *staticCatalog) GetProducts(_ context.Context, _ []depflow.ProductID) ([]depflow.Product, error) {
	return c.products, nil
}

func (c *staticCatalog) GetDependencies(_ context.Context, _ depflow.ProductID) ([]depflow.Dependency, error) {
	return nil, nil
}

func (c *staticCatalog) GetConflicts(_ context.Context, _ depflow.ProductID) ([]depflow.Conflict, error) {
	return nil, nil
}

func (c *staticCatalog) GetInstalledState(_ context.Context, _ string) (depflow.InstalledState, error) {
	return depflow.InstalledState{}, nil
}

func TestInstalledStateRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	b, err := redisbackend.New("redis://"+mr.Addr(), &staticCatalog{})
	require.NoError(t, err)
	defer b.Close()

	ctx := context.Background()
	require.NoError(t, b.SetInstalled(ctx, "pc-1", depflow.InstalledProduct{
		Product: "webbrowser", Version: "3.6.0", LastAction: depflow.ActionInstall,
	}))

	state, err := b.GetInstalledState(ctx, "pc-1")
	require.NoError(t, err)
	require.True(t, state.Has("webbrowser"))
	assert.Equal(t, "3.6.0", state["webbrowser"].Version)
	assert.Equal(t, depflow.ActionInstall, state["webbrowser"].LastAction)

	require.NoError(t, b.RemoveInstalled(ctx, "pc-1", "webbrowser"))
	state, err = b.GetInstalledState(ctx, "pc-1")
	require.NoError(t, err)
	assert.False(t, state.Has("webbrowser"))
}

func TestCatalogReadsDelegate(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	catalog := &staticCatalog{products: []depflow.Product{{ID: "webbrowser", Version: "3.6.0"}}}
	b, err := redisbackend.New("redis://"+mr.Addr(), catalog)
	require.NoError(t, err)
	defer b.Close()

	products, err := b.GetProducts(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, depflow.ProductID("webbrowser"), products[0].ID)
}
