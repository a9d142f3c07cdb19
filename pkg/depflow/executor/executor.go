// Package executor hands the entries of an action sequence to an
// external execution channel, strictly in sequence order, and collects
// per-step outcomes.
package executor

import (
	"context"

	"go.uber.org/zap"

	"github.com/depflow/depflow/pkg/depflow"
)

// StepFunc executes a single step against a client. A nil error is a
// success. Implementations must be idempotent-safe: a sequence may be
// re-submitted after a partial prior failure.
type StepFunc func(ctx context.Context, step depflow.Step) error

// Status is the per-entry outcome of an execution run.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// SkipReason explains why a step was not attempted.
type SkipReason string

const (
	SkipUpstreamFailure SkipReason = "skipped-due-to-upstream-failure"
	SkipCancellation    SkipReason = "skipped-due-to-cancellation"
)

// Entry is one step's outcome.
type Entry struct {
	Step   depflow.Step `json:"step" yaml:"step" msgpack:"step"`
	Status Status       `json:"status" yaml:"status" msgpack:"status"`
	// Error carries the failure reason when Status is failed.
	Error string `json:"error,omitempty" yaml:"error,omitempty" msgpack:"error"`
	// SkipReason and UpstreamFailure are set when Status is skipped;
	// UpstreamFailure names the failed step the skip traces back to and
	// is nil for cancellation skips.
	SkipReason      SkipReason    `json:"skipReason,omitempty" yaml:"skipReason,omitempty" msgpack:"skipReason"`
	UpstreamFailure *depflow.Step `json:"upstreamFailure,omitempty" yaml:"upstreamFailure,omitempty" msgpack:"upstreamFailure"`
}

// Report is the serializable outcome of applying one sequence.
type Report struct {
	ClientID string  `json:"clientId" yaml:"clientId" msgpack:"clientId"`
	Entries  []Entry `json:"entries" yaml:"entries" msgpack:"entries"`
}

// Failed reports whether any entry failed.
func (r Report) Failed() bool {
	for _, e := range r.Entries {
		if e.Status == StatusFailed {
			return true
		}
	}
	return false
}

type config struct {
	continueOnError bool
	logger          *zap.Logger
}

// Option configures a single Apply call.
type Option func(*config)

// ContinueOnError marks only dependents of a failed step as skipped,
// computed from the sequence's recorded predecessor indices, and keeps
// executing independent branches. The default halts the remaining
// sequence on the first failure.
func ContinueOnError() Option {
	return func(c *config) { c.continueOnError = true }
}

// WithLogger logs each step outcome.
func WithLogger(logger *zap.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// Apply invokes step once per sequence entry, in order, never
// reordering or parallelizing. Cancellation is checked between steps
// only: a step's side effect on a remote client cannot be safely
// interrupted mid-flight.
func Apply(ctx context.Context, seq depflow.ActionSequence, step StepFunc, opts ...Option) Report {
	cfg := config{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	report := Report{
		ClientID: seq.ClientID,
		Entries:  make([]Entry, len(seq.Steps)),
	}

	// Root cause of each position's failure or skip, for dependent
	// tracing under continue-on-error.
	rootFailure := make([]*depflow.Step, len(seq.Steps))
	var halted *depflow.Step

	for i, entry := range seq.Steps {
		report.Entries[i].Step = entry.Step

		if err := ctx.Err(); err != nil {
			report.Entries[i].Status = StatusSkipped
			report.Entries[i].SkipReason = SkipCancellation
			continue
		}

		if halted != nil {
			report.Entries[i].Status = StatusSkipped
			report.Entries[i].SkipReason = SkipUpstreamFailure
			report.Entries[i].UpstreamFailure = halted
			continue
		}

		if upstream := blockedBy(entry, rootFailure); upstream != nil {
			report.Entries[i].Status = StatusSkipped
			report.Entries[i].SkipReason = SkipUpstreamFailure
			report.Entries[i].UpstreamFailure = upstream
			rootFailure[i] = upstream
			cfg.logger.Info("step skipped",
				zap.String("client", seq.ClientID),
				zap.Stringer("step", entry.Step),
				zap.Stringer("upstream", upstream))
			continue
		}

		if err := step(ctx, entry.Step); err != nil {
			report.Entries[i].Status = StatusFailed
			report.Entries[i].Error = err.Error()
			failed := entry.Step
			rootFailure[i] = &failed
			if !cfg.continueOnError {
				halted = &failed
			}
			cfg.logger.Warn("step failed",
				zap.String("client", seq.ClientID),
				zap.Stringer("step", entry.Step),
				zap.Error(err))
			continue
		}

		report.Entries[i].Status = StatusSucceeded
		cfg.logger.Debug("step succeeded",
			zap.String("client", seq.ClientID),
			zap.Stringer("step", entry.Step))
	}

	return report
}

// blockedBy returns the root upstream failure a step depends on, or nil
// when all of its recorded predecessors ran clean. Predecessor indices
// always point earlier in the sequence, so one forward pass suffices.
func blockedBy(entry depflow.SequencedStep, rootFailure []*depflow.Step) *depflow.Step {
	for _, pos := range entry.Requires {
		if pos >= 0 && pos < len(rootFailure) && rootFailure[pos] != nil {
			return rootFailure[pos]
		}
	}
	return nil
}
