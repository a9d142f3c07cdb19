// Package sqlbackend serves the dispatcher boundary from a SQLite
// database. One resolution pass reads through a single transaction, so
// the catalog view stays point-in-time consistent for its duration.
package sqlbackend

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/depflow/depflow/pkg/depflow"
	"github.com/depflow/depflow/pkg/depflow/backend"
	"github.com/depflow/depflow/pkg/depflow/executor"
)

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id              TEXT NOT NULL,
	version         TEXT NOT NULL,
	product_version TEXT NOT NULL DEFAULT '',
	package_version TEXT NOT NULL DEFAULT '',
	priority        INTEGER NOT NULL DEFAULT 0,
	actions         TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (id, version)
);
CREATE TABLE IF NOT EXISTS dependencies (
	product        TEXT NOT NULL,
	action         TEXT NOT NULL,
	target_product TEXT NOT NULL,
	target_action  TEXT NOT NULL,
	kind           TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS conflicts (
	a_product TEXT NOT NULL,
	a_action  TEXT NOT NULL,
	b_product TEXT NOT NULL,
	b_action  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS client_products (
	client_id   TEXT NOT NULL,
	product     TEXT NOT NULL,
	version     TEXT NOT NULL,
	last_action TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (client_id, product)
);
CREATE TABLE IF NOT EXISTS outcomes (
	client_id  TEXT NOT NULL,
	product    TEXT NOT NULL,
	action     TEXT NOT NULL,
	status     TEXT NOT NULL,
	error      TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
`

// Backend owns the database handle. Open one per process and derive a
// Pass per resolution.
type Backend struct {
	db *sql.DB
}

// Open opens (or creates) the database at path.
func Open(path string) (*Backend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite backend: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure sqlite backend: %w", err)
	}
	return &Backend{db: db}, nil
}

// Install creates the schema.
func (b *Backend) Install(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("install sqlite schema: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (b *Backend) Close() error {
	return b.db.Close()
}

// Begin starts a transaction and returns the dispatcher view bound to
// it; the pass never commits, it only reads. Callers must Close the
// pass when the resolution is done.
func (b *Backend) Begin(ctx context.Context) (*Pass, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin pass: %w", err)
	}
	return &Pass{tx: tx}, nil
}

// Pass is a point-in-time dispatcher view over one transaction.
type Pass struct {
	tx *sql.Tx
}

var _ backend.Dispatcher = (*Pass)(nil)

// Close ends the pass.
func (p *Pass) Close() error {
	return p.tx.Rollback()
}

// GetProducts implements backend.Dispatcher.
func (p *Pass) GetProducts(ctx context.Context, ids []depflow.ProductID) ([]depflow.Product, error) {
	query := "SELECT id, version, product_version, package_version, priority, actions FROM products"
	var args []any
	if len(ids) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
		query += " WHERE id IN (" + placeholders + ")"
		for _, id := range ids {
			args = append(args, string(id))
		}
	}
	query += " ORDER BY id, version"

	rows, err := p.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var products []depflow.Product
	for rows.Next() {
		var prod depflow.Product
		var actions string
		if err := rows.Scan(&prod.ID, &prod.Version, &prod.ProductVersion, &prod.PackageVersion, &prod.Priority, &actions); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		for _, a := range strings.Split(actions, ",") {
			if a != "" {
				prod.Actions = append(prod.Actions, depflow.Action(a))
			}
		}
		products = append(products, prod)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	for i := range products {
		deps, err := p.GetDependencies(ctx, products[i].ID)
		if err != nil {
			return nil, err
		}
		conflicts, err := p.GetConflicts(ctx, products[i].ID)
		if err != nil {
			return nil, err
		}
		products[i].Dependencies = deps
		products[i].Conflicts = conflicts
	}
	return products, nil
}

// GetDependencies implements backend.Dispatcher.
func (p *Pass) GetDependencies(ctx context.Context, id depflow.ProductID) ([]depflow.Dependency, error) {
	rows, err := p.tx.QueryContext(ctx,
		"SELECT product, action, target_product, target_action, kind FROM dependencies WHERE product = ? ORDER BY rowid",
		string(id))
	if err != nil {
		return nil, fmt.Errorf("query dependencies of %s: %w", id, err)
	}
	defer rows.Close()

	var deps []depflow.Dependency
	for rows.Next() {
		var d depflow.Dependency
		var kind string
		if err := rows.Scan(&d.Product, &d.Action, &d.TargetProduct, &d.TargetAction, &kind); err != nil {
			return nil, fmt.Errorf("scan dependency: %w", err)
		}
		d.Kind, err = depflow.ParseRequirementKind(kind)
		if err != nil {
			return nil, fmt.Errorf("dependency of %s: %w", id, err)
		}
		deps = append(deps, d)
	}
	return deps, rows.Err()
}

// GetConflicts implements backend.Dispatcher.
func (p *Pass) GetConflicts(ctx context.Context, id depflow.ProductID) ([]depflow.Conflict, error) {
	rows, err := p.tx.QueryContext(ctx,
		"SELECT a_product, a_action, b_product, b_action FROM conflicts WHERE a_product = ? OR b_product = ? ORDER BY rowid",
		string(id), string(id))
	if err != nil {
		return nil, fmt.Errorf("query conflicts of %s: %w", id, err)
	}
	defer rows.Close()

	var conflicts []depflow.Conflict
	for rows.Next() {
		var c depflow.Conflict
		if err := rows.Scan(&c.A.Product, &c.A.Action, &c.B.Product, &c.B.Action); err != nil {
			return nil, fmt.Errorf("scan conflict: %w", err)
		}
		conflicts = append(conflicts, c)
	}
	return conflicts, rows.Err()
}

// GetInstalledState implements backend.Dispatcher.
func (p *Pass) GetInstalledState(ctx context.Context, clientID string) (depflow.InstalledState, error) {
	rows, err := p.tx.QueryContext(ctx,
		"SELECT product, version, last_action FROM client_products WHERE client_id = ?",
		clientID)
	if err != nil {
		return nil, fmt.Errorf("query installed state of %s: %w", clientID, err)
	}
	defer rows.Close()

	state := depflow.InstalledState{}
	for rows.Next() {
		var ip depflow.InstalledProduct
		if err := rows.Scan(&ip.Product, &ip.Version, &ip.LastAction); err != nil {
			return nil, fmt.Errorf("scan installed state: %w", err)
		}
		state[ip.Product] = ip
	}
	return state, rows.Err()
}

// PutProduct upserts a catalog entry with its dependencies and
// conflicts.
func (b *Backend) PutProduct(ctx context.Context, product depflow.Product) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put product %s: %w", product.ID, err)
	}
	defer tx.Rollback()

	actions := make([]string, len(product.Actions))
	for i, a := range product.Actions {
		actions[i] = string(a)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO products (id, version, product_version, package_version, priority, actions) VALUES (?, ?, ?, ?, ?, ?)",
		string(product.ID), product.Version, product.ProductVersion, product.PackageVersion, product.Priority, strings.Join(actions, ",")); err != nil {
		return fmt.Errorf("put product %s: %w", product.ID, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM dependencies WHERE product = ?", string(product.ID)); err != nil {
		return fmt.Errorf("put product %s: %w", product.ID, err)
	}
	for _, d := range product.Dependencies {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO dependencies (product, action, target_product, target_action, kind) VALUES (?, ?, ?, ?, ?)",
			string(d.Product), string(d.Action), string(d.TargetProduct), string(d.TargetAction), d.Kind.String()); err != nil {
			return fmt.Errorf("put dependency of %s: %w", product.ID, err)
		}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM conflicts WHERE a_product = ?", string(product.ID)); err != nil {
		return fmt.Errorf("put product %s: %w", product.ID, err)
	}
	for _, c := range product.Conflicts {
		n := c.Normalized()
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO conflicts (a_product, a_action, b_product, b_action) VALUES (?, ?, ?, ?)",
			string(n.A.Product), string(n.A.Action), string(n.B.Product), string(n.B.Action)); err != nil {
			return fmt.Errorf("put conflict of %s: %w", product.ID, err)
		}
	}
	return tx.Commit()
}

// RecordOutcomes persists an execution report and folds succeeded steps
// back into the client's installed state. Last writer wins between
// passes, which is the consistency the snapshot contract asks for.
func (b *Backend) RecordOutcomes(ctx context.Context, report executor.Report) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record outcomes for %s: %w", report.ClientID, err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for _, e := range report.Entries {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO outcomes (client_id, product, action, status, error, created_at) VALUES (?, ?, ?, ?, ?, ?)",
			report.ClientID, string(e.Step.Product), string(e.Step.Action), string(e.Status), e.Error, now); err != nil {
			return fmt.Errorf("record outcome for %s: %w", report.ClientID, err)
		}
		if e.Status != executor.StatusSucceeded {
			continue
		}
		switch e.Step.Action {
		case depflow.ActionInstall, depflow.ActionUpdate:
			if _, err := tx.ExecContext(ctx,
				"INSERT OR REPLACE INTO client_products (client_id, product, version, last_action) VALUES (?, ?, COALESCE((SELECT MAX(version) FROM products WHERE id = ?), ''), ?)",
				report.ClientID, string(e.Step.Product), string(e.Step.Product), string(e.Step.Action)); err != nil {
				return fmt.Errorf("update installed state for %s: %w", report.ClientID, err)
			}
		case depflow.ActionUninstall:
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM client_products WHERE client_id = ? AND product = ?",
				report.ClientID, string(e.Step.Product)); err != nil {
				return fmt.Errorf("update installed state for %s: %w", report.ClientID, err)
			}
		}
	}
	return tx.Commit()
}
