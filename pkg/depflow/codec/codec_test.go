package codec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depflow/depflow/pkg/depflow"
	"github.com/depflow/depflow/pkg/depflow/codec"
	"github.com/depflow/depflow/pkg/depflow/executor"
)

func sampleSequence() depflow.ActionSequence {
	return depflow.ActionSequence{
		ClientID: "pc-1",
		Steps: []depflow.SequencedStep{
			{Step: depflow.Step{Product: "webbrowser", Action: depflow.ActionInstall}, Reason: depflow.ReasonDependency},
			{Step: depflow.Step{Product: "mediaplugin", Action: depflow.ActionInstall}, Reason: depflow.ReasonRequested, Requires: []int{0}},
		},
	}
}

func TestSequenceRoundTrip(t *testing.T) {
	seq := sampleSequence()

	raw, err := codec.EncodeSequence(seq)
	require.NoError(t, err)
	decoded, err := codec.DecodeSequence(raw)
	require.NoError(t, err)
	assert.Equal(t, seq, decoded)
}

func TestEncodingIsDeterministic(t *testing.T) {
	first, err := codec.EncodeSequence(sampleSequence())
	require.NoError(t, err)
	second, err := codec.EncodeSequence(sampleSequence())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestReportRoundTrip(t *testing.T) {
	failed := depflow.Step{Product: "webbrowser", Action: depflow.ActionInstall}
	report := executor.Report{
		ClientID: "pc-1",
		Entries: []executor.Entry{
			{Step: failed, Status: executor.StatusFailed, Error: "installer exited 1"},
			{
				Step:            depflow.Step{Product: "mediaplugin", Action: depflow.ActionInstall},
				Status:          executor.StatusSkipped,
				SkipReason:      executor.SkipUpstreamFailure,
				UpstreamFailure: &failed,
			},
		},
	}

	raw, err := codec.EncodeReport(report)
	require.NoError(t, err)
	decoded, err := codec.DecodeReport(raw)
	require.NoError(t, err)
	assert.Equal(t, report, decoded)
}
