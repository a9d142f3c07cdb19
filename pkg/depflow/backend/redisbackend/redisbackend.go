// Package redisbackend keeps client installed-state snapshots in Redis,
// one hash per client, while delegating catalog reads to a wrapped
// dispatcher. It mirrors the deployment where agents report their state
// to a shared store that outlives any single management process.
package redisbackend

import (
	"context"
	"fmt"

	redis "github.com/redis/go-redis/v9"

	"github.com/depflow/depflow/pkg/depflow"
	"github.com/depflow/depflow/pkg/depflow/backend"
)

const defaultPrefix = "depflow:client:"

// Backend wraps a catalog dispatcher and overrides installed-state
// reads with Redis hashes keyed <prefix><clientID>. Hash fields map
// product id to "version|lastAction".
type Backend struct {
	catalog backend.Dispatcher
	client  *redis.Client
	prefix  string
}

var _ backend.Dispatcher = (*Backend)(nil)

// New connects to the Redis at url and layers it over the given catalog
// dispatcher.
func New(url string, catalog backend.Dispatcher) (*Backend, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("open redis backend: %w", err)
	}
	return &Backend{
		catalog: catalog,
		client:  redis.NewClient(opt),
		prefix:  defaultPrefix,
	}, nil
}

// Close releases the Redis connection.
func (b *Backend) Close() error {
	return b.client.Close()
}

// GetProducts implements backend.Dispatcher.
func (b *Backend) GetProducts(ctx context.Context, ids []depflow.ProductID) ([]depflow.Product, error) {
	return b.catalog.GetProducts(ctx, ids)
}

// GetDependencies implements backend.Dispatcher.
func (b *Backend) GetDependencies(ctx context.Context, id depflow.ProductID) ([]depflow.Dependency, error) {
	return b.catalog.GetDependencies(ctx, id)
}

// GetConflicts implements backend.Dispatcher.
func (b *Backend) GetConflicts(ctx context.Context, id depflow.ProductID) ([]depflow.Conflict, error) {
	return b.catalog.GetConflicts(ctx, id)
}

// GetInstalledState implements backend.Dispatcher.
func (b *Backend) GetInstalledState(ctx context.Context, clientID string) (depflow.InstalledState, error) {
	fields, err := b.client.HGetAll(ctx, b.prefix+clientID).Result()
	if err != nil {
		return nil, fmt.Errorf("read installed state of %s: %w", clientID, err)
	}
	state := make(depflow.InstalledState, len(fields))
	for product, value := range fields {
		ip := depflow.InstalledProduct{Product: depflow.ProductID(product)}
		ip.Version, ip.LastAction = splitStateValue(value)
		state[ip.Product] = ip
	}
	return state, nil
}

// SetInstalled records one installed product for a client. Agents call
// this after a successful install or update step.
func (b *Backend) SetInstalled(ctx context.Context, clientID string, ip depflow.InstalledProduct) error {
	value := ip.Version + "|" + string(ip.LastAction)
	if err := b.client.HSet(ctx, b.prefix+clientID, string(ip.Product), value).Err(); err != nil {
		return fmt.Errorf("write installed state of %s: %w", clientID, err)
	}
	return nil
}

// RemoveInstalled drops one product from a client's snapshot.
func (b *Backend) RemoveInstalled(ctx context.Context, clientID string, id depflow.ProductID) error {
	if err := b.client.HDel(ctx, b.prefix+clientID, string(id)).Err(); err != nil {
		return fmt.Errorf("clear installed state of %s: %w", clientID, err)
	}
	return nil
}

func splitStateValue(value string) (version string, action depflow.Action) {
	for i := len(value) - 1; i >= 0; i-- {
		if value[i] == '|' {
			return value[:i], depflow.Action(value[i+1:])
		}
	}
	return value, ""
}
