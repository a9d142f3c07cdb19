// Package filebackend reads catalog and client state from a directory
// of YAML files: products.yaml for the catalog and clients/<id>.yaml
// for installed-state snapshots.
package filebackend

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/depflow/depflow/pkg/depflow"
	"github.com/depflow/depflow/pkg/depflow/backend"
)

const (
	catalogFile = "products.yaml"
	clientsDir  = "clients"
)

// Backend serves the dispatcher boundary from a directory tree. Files
// are re-read per call, so every pass sees a fresh view.
type Backend struct {
	dir string
}

var _ backend.Dispatcher = (*Backend)(nil)

// New returns a file backend rooted at dir.
func New(dir string) (*Backend, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("open file backend: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open file backend: %s is not a directory", dir)
	}
	return &Backend{dir: dir}, nil
}

// catalogDoc is the on-disk catalog layout. Dependencies and conflicts
// live inline on each product, the way they are authored.
type catalogDoc struct {
	Products []productDoc `yaml:"products"`
}

type productDoc struct {
	ID             depflow.ProductID `yaml:"id"`
	Version        string            `yaml:"version"`
	ProductVersion string            `yaml:"productVersion"`
	PackageVersion string            `yaml:"packageVersion"`
	Priority       int               `yaml:"priority"`
	Actions        []depflow.Action  `yaml:"actions"`
	Dependencies   []dependencyDoc   `yaml:"dependencies"`
	Conflicts      []conflictDoc     `yaml:"conflicts"`
}

type dependencyDoc struct {
	Action        depflow.Action    `yaml:"action"`
	TargetProduct depflow.ProductID `yaml:"targetProduct"`
	TargetAction  depflow.Action    `yaml:"targetAction"`
	Kind          string            `yaml:"kind"`
}

type conflictDoc struct {
	Product depflow.ProductID `yaml:"product"`
	Action  depflow.Action    `yaml:"action"`
	// Action of the declaring product this conflict applies to.
	OwnAction depflow.Action `yaml:"ownAction"`
}

type clientDoc struct {
	Installed []depflow.InstalledProduct `yaml:"installed"`
}

func (b *Backend) load() ([]depflow.Product, error) {
	raw, err := os.ReadFile(filepath.Join(b.dir, catalogFile))
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var doc catalogDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	products := make([]depflow.Product, 0, len(doc.Products))
	for _, pd := range doc.Products {
		p := depflow.Product{
			ID:             pd.ID,
			Version:        pd.Version,
			ProductVersion: pd.ProductVersion,
			PackageVersion: pd.PackageVersion,
			Priority:       pd.Priority,
			Actions:        pd.Actions,
		}
		if p.Version == "" && pd.ProductVersion != "" {
			p.Version = pd.ProductVersion
		}
		for _, dd := range pd.Dependencies {
			kind, err := depflow.ParseRequirementKind(dd.Kind)
			if err != nil {
				return nil, fmt.Errorf("product %s: %w", pd.ID, err)
			}
			p.Dependencies = append(p.Dependencies, depflow.Dependency{
				Product:       pd.ID,
				Action:        dd.Action,
				TargetProduct: dd.TargetProduct,
				TargetAction:  dd.TargetAction,
				Kind:          kind,
			})
		}
		for _, cd := range pd.Conflicts {
			own := cd.OwnAction
			if own == "" {
				own = depflow.ActionInstall
			}
			p.Conflicts = append(p.Conflicts, depflow.Conflict{
				A: depflow.Step{Product: pd.ID, Action: own},
				B: depflow.Step{Product: cd.Product, Action: cd.Action},
			})
		}
		products = append(products, p)
	}
	return products, nil
}

// GetProducts implements backend.Dispatcher.
func (b *Backend) GetProducts(_ context.Context, ids []depflow.ProductID) ([]depflow.Product, error) {
	products, err := b.load()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return products, nil
	}
	want := make(map[depflow.ProductID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []depflow.Product
	for _, p := range products {
		if want[p.ID] {
			out = append(out, p)
		}
	}
	return out, nil
}

// GetDependencies implements backend.Dispatcher.
func (b *Backend) GetDependencies(ctx context.Context, id depflow.ProductID) ([]depflow.Dependency, error) {
	products, err := b.GetProducts(ctx, []depflow.ProductID{id})
	if err != nil {
		return nil, err
	}
	var out []depflow.Dependency
	for _, p := range products {
		out = append(out, p.Dependencies...)
	}
	return out, nil
}

// GetConflicts implements backend.Dispatcher.
func (b *Backend) GetConflicts(ctx context.Context, id depflow.ProductID) ([]depflow.Conflict, error) {
	products, err := b.GetProducts(ctx, []depflow.ProductID{id})
	if err != nil {
		return nil, err
	}
	var out []depflow.Conflict
	for _, p := range products {
		out = append(out, p.Conflicts...)
	}
	return out, nil
}

// GetInstalledState implements backend.Dispatcher. A missing client
// file means nothing is installed.
func (b *Backend) GetInstalledState(_ context.Context, clientID string) (depflow.InstalledState, error) {
	raw, err := os.ReadFile(filepath.Join(b.dir, clientsDir, clientID+".yaml"))
	if errors.Is(err, fs.ErrNotExist) {
		return depflow.InstalledState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read client state %s: %w", clientID, err)
	}
	var doc clientDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse client state %s: %w", clientID, err)
	}
	state := make(depflow.InstalledState, len(doc.Installed))
	for _, ip := range doc.Installed {
		state[ip.Product] = ip
	}
	return state, nil
}
