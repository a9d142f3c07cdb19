package executor

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/depflow/depflow/internal/metrics"
	"github.com/depflow/depflow/pkg/depflow"
)

// Job pairs one client's sequence with the options for its run.
type Job struct {
	Sequence depflow.ActionSequence
	Options  []Option
}

// ClientStepFunc executes one step against a named client.
type ClientStepFunc func(ctx context.Context, clientID string, step depflow.Step) error

// Pool runs many clients' executions concurrently. Each client's steps
// stay strictly in order; only distinct clients run in parallel, capped
// at the pool size. Jobs beyond the cap queue instead of spawning.
type Pool struct {
	size   int
	logger *zap.Logger
}

// NewPool returns a pool executing at most size client jobs at once.
// A size below one runs clients sequentially.
func NewPool(size int, logger *zap.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{size: size, logger: logger}
}

// Run applies every job's sequence and returns the reports in job
// order. Cancelling ctx stops dispatch between steps; reports for
// already-started clients mark their remaining entries skipped.
func (p *Pool) Run(ctx context.Context, jobs []Job, step ClientStepFunc) []Report {
	reports := make([]Report, len(jobs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.size)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			logger := p.logger.With(zap.String("client", job.Sequence.ClientID))
			opts := append([]Option{WithLogger(logger)}, job.Options...)
			clientID := job.Sequence.ClientID
			reports[i] = Apply(ctx, job.Sequence, func(ctx context.Context, s depflow.Step) error {
				return step(ctx, clientID, s)
			}, opts...)
			for _, e := range reports[i].Entries {
				metrics.ObserveStep(string(e.Status))
			}
			return nil
		})
	}
	// Workers never return errors; outcomes live in the reports.
	_ = g.Wait()
	return reports
}
