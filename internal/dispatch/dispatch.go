// Package dispatch wires a configured backend into a dispatcher for
// one resolution pass.
package dispatch

import (
	"context"
	"fmt"

	"github.com/depflow/depflow/internal/config"
	"github.com/depflow/depflow/pkg/depflow/backend"
	"github.com/depflow/depflow/pkg/depflow/backend/filebackend"
	"github.com/depflow/depflow/pkg/depflow/backend/redisbackend"
	"github.com/depflow/depflow/pkg/depflow/backend/sqlbackend"
)

// Open builds the dispatcher described by cfg and returns it together
// with a release function for the resources backing the pass.
func Open(ctx context.Context, cfg config.Backend) (backend.Dispatcher, func() error, error) {
	var (
		dispatcher backend.Dispatcher
		closers    []func() error
	)

	switch cfg.Kind {
	case config.BackendFile, config.BackendRedis:
		fb, err := filebackend.New(cfg.Dir)
		if err != nil {
			return nil, nil, err
		}
		dispatcher = fb
	case config.BackendSQL:
		db, err := sqlbackend.Open(cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Install(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		pass, err := db.Begin(ctx)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		closers = append(closers, pass.Close, db.Close)
		dispatcher = pass
	default:
		return nil, nil, fmt.Errorf("unknown backend kind %q", cfg.Kind)
	}

	if cfg.Kind == config.BackendRedis || cfg.RedisURL != "" {
		rb, err := redisbackend.New(cfg.RedisURL, dispatcher)
		if err != nil {
			for _, c := range closers {
				c()
			}
			return nil, nil, err
		}
		closers = append(closers, rb.Close)
		dispatcher = rb
	}

	release := func() error {
		var firstErr error
		for _, c := range closers {
			if err := c(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}
	return dispatcher, release, nil
}
