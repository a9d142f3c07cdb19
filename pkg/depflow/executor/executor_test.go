package executor_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depflow/depflow/pkg/depflow"
	"github.com/depflow/depflow/pkg/depflow/executor"
)

func step(id depflow.ProductID) depflow.Step {
	return depflow.Step{Product: id, Action: depflow.ActionInstall}
}

func sequence(clientID string, steps ...depflow.SequencedStep) depflow.ActionSequence {
	return depflow.ActionSequence{ClientID: clientID, Steps: steps}
}

func TestApplyRunsStepsInOrder(t *testing.T) {
	seq := sequence("pc-1",
		depflow.SequencedStep{Step: step("b"), Reason: depflow.ReasonDependency},
		depflow.SequencedStep{Step: step("a"), Reason: depflow.ReasonRequested, Requires: []int{0}},
		depflow.SequencedStep{Step: step("c"), Reason: depflow.ReasonRequested},
	)

	var order []depflow.ProductID
	report := executor.Apply(context.Background(), seq, func(_ context.Context, s depflow.Step) error {
		order = append(order, s.Product)
		return nil
	})

	assert.Equal(t, []depflow.ProductID{"b", "a", "c"}, order)
	for _, e := range report.Entries {
		assert.Equal(t, executor.StatusSucceeded, e.Status)
	}
	assert.False(t, report.Failed())
}

func TestApplyHaltsAfterFailureByDefault(t *testing.T) {
	seq := sequence("pc-1",
		depflow.SequencedStep{Step: step("b")},
		depflow.SequencedStep{Step: step("a"), Requires: []int{0}},
		depflow.SequencedStep{Step: step("c")},
	)

	report := executor.Apply(context.Background(), seq, func(_ context.Context, s depflow.Step) error {
		if s.Product == "b" {
			return errors.New("installer exited 1")
		}
		return nil
	})

	require.Len(t, report.Entries, 3)
	assert.Equal(t, executor.StatusFailed, report.Entries[0].Status)
	assert.Equal(t, "installer exited 1", report.Entries[0].Error)
	for _, e := range report.Entries[1:] {
		assert.Equal(t, executor.StatusSkipped, e.Status)
		assert.Equal(t, executor.SkipUpstreamFailure, e.SkipReason)
		require.NotNil(t, e.UpstreamFailure)
		assert.Equal(t, step("b"), *e.UpstreamFailure)
	}
	assert.True(t, report.Failed())
}

func TestApplyContinueOnErrorSkipsOnlyDependents(t *testing.T) {
	seq := sequence("pc-1",
		depflow.SequencedStep{Step: step("b")},
		depflow.SequencedStep{Step: step("a"), Requires: []int{0}},
		depflow.SequencedStep{Step: step("c")},
	)

	report := executor.Apply(context.Background(), seq, func(_ context.Context, s depflow.Step) error {
		if s.Product == "b" {
			return errors.New("installer exited 1")
		}
		return nil
	}, executor.ContinueOnError())

	assert.Equal(t, executor.StatusFailed, report.Entries[0].Status)
	assert.Equal(t, executor.StatusSkipped, report.Entries[1].Status)
	require.NotNil(t, report.Entries[1].UpstreamFailure)
	assert.Equal(t, step("b"), *report.Entries[1].UpstreamFailure)
	assert.Equal(t, executor.StatusSucceeded, report.Entries[2].Status)
}

func TestApplyContinueOnErrorTracesTransitiveDependents(t *testing.T) {
	seq := sequence("pc-1",
		depflow.SequencedStep{Step: step("base")},
		depflow.SequencedStep{Step: step("mid"), Requires: []int{0}},
		depflow.SequencedStep{Step: step("top"), Requires: []int{1}},
	)

	report := executor.Apply(context.Background(), seq, func(_ context.Context, s depflow.Step) error {
		if s.Product == "base" {
			return errors.New("boom")
		}
		return nil
	}, executor.ContinueOnError())

	assert.Equal(t, executor.StatusSkipped, report.Entries[2].Status)
	require.NotNil(t, report.Entries[2].UpstreamFailure)
	// The skip traces back to the root failure, not the intermediate skip.
	assert.Equal(t, step("base"), *report.Entries[2].UpstreamFailure)
}

func TestApplyCancellationSkipsRemainingSteps(t *testing.T) {
	seq := sequence("pc-1",
		depflow.SequencedStep{Step: step("a")},
		depflow.SequencedStep{Step: step("b")},
		depflow.SequencedStep{Step: step("c")},
	)

	ctx, cancel := context.WithCancel(context.Background())
	var ran []depflow.ProductID
	report := executor.Apply(ctx, seq, func(_ context.Context, s depflow.Step) error {
		ran = append(ran, s.Product)
		if s.Product == "a" {
			cancel()
		}
		return nil
	})

	// The in-flight step is never interrupted; the cut happens between
	// steps.
	assert.Equal(t, []depflow.ProductID{"a"}, ran)
	assert.Equal(t, executor.StatusSucceeded, report.Entries[0].Status)
	for _, e := range report.Entries[1:] {
		assert.Equal(t, executor.StatusSkipped, e.Status)
		assert.Equal(t, executor.SkipCancellation, e.SkipReason)
		assert.Nil(t, e.UpstreamFailure)
	}
}

func TestPoolRunsClientsIndependently(t *testing.T) {
	jobs := []executor.Job{
		{Sequence: sequence("pc-1", depflow.SequencedStep{Step: step("a")})},
		{Sequence: sequence("pc-2", depflow.SequencedStep{Step: step("a")})},
		{Sequence: sequence("pc-3", depflow.SequencedStep{Step: step("a")})},
	}

	var mu sync.Mutex
	seen := map[string]int{}
	pool := executor.NewPool(2, nil)
	reports := pool.Run(context.Background(), jobs, func(_ context.Context, clientID string, _ depflow.Step) error {
		mu.Lock()
		defer mu.Unlock()
		seen[clientID]++
		if clientID == "pc-2" {
			return errors.New("unreachable host")
		}
		return nil
	})

	require.Len(t, reports, 3)
	assert.Equal(t, "pc-1", reports[0].ClientID)
	assert.Equal(t, "pc-2", reports[1].ClientID)
	assert.Equal(t, "pc-3", reports[2].ClientID)
	assert.False(t, reports[0].Failed())
	assert.True(t, reports[1].Failed())
	assert.False(t, reports[2].Failed())
	assert.Equal(t, map[string]int{"pc-1": 1, "pc-2": 1, "pc-3": 1}, seen)
}
