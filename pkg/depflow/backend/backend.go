// Package backend defines the dispatcher boundary through which the
// resolver core reads catalog data and client state. Implementations
// must return a point-in-time consistent view for the duration of one
// resolution pass; the core never writes through this boundary.
package backend

import (
	"context"

	"github.com/depflow/depflow/pkg/depflow"
)

// Dispatcher persists and retrieves catalog and client state on behalf
// of the resolver. All methods are read-only from the core's
// perspective.
type Dispatcher interface {
	// GetProducts returns the products for the given ids, or the whole
	// catalog when ids is empty.
	GetProducts(ctx context.Context, ids []depflow.ProductID) ([]depflow.Product, error)
	// GetDependencies returns the declared dependencies of a product.
	GetDependencies(ctx context.Context, id depflow.ProductID) ([]depflow.Dependency, error)
	// GetConflicts returns the declared conflicts of a product.
	GetConflicts(ctx context.Context, id depflow.ProductID) ([]depflow.Conflict, error)
	// GetInstalledState returns the client's installed-state snapshot.
	GetInstalledState(ctx context.Context, clientID string) (depflow.InstalledState, error)
}
