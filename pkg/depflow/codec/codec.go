// Package codec serializes resolution artifacts for remote agents and
// audit storage: message-pack on the wire, JSON for files meant to be
// read by people. Encodings are deterministic for identical inputs.
package codec

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/depflow/depflow/pkg/depflow"
	"github.com/depflow/depflow/pkg/depflow/executor"
)

// EncodeSequence renders a sequence as message-pack.
func EncodeSequence(seq depflow.ActionSequence) ([]byte, error) {
	raw, err := msgpack.Marshal(seq)
	if err != nil {
		return nil, fmt.Errorf("encode sequence for %s: %w", seq.ClientID, err)
	}
	return raw, nil
}

// DecodeSequence parses a message-pack sequence.
func DecodeSequence(raw []byte) (depflow.ActionSequence, error) {
	var seq depflow.ActionSequence
	if err := msgpack.Unmarshal(raw, &seq); err != nil {
		return depflow.ActionSequence{}, fmt.Errorf("decode sequence: %w", err)
	}
	return seq, nil
}

// EncodeReport renders an execution report as message-pack.
func EncodeReport(report executor.Report) ([]byte, error) {
	raw, err := msgpack.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("encode report for %s: %w", report.ClientID, err)
	}
	return raw, nil
}

// DecodeReport parses a message-pack execution report.
func DecodeReport(raw []byte) (executor.Report, error) {
	var report executor.Report
	if err := msgpack.Unmarshal(raw, &report); err != nil {
		return executor.Report{}, fmt.Errorf("decode report: %w", err)
	}
	return report, nil
}

// SequenceJSON renders a sequence as indented JSON for audit files.
func SequenceJSON(seq depflow.ActionSequence) ([]byte, error) {
	raw, err := json.MarshalIndent(seq, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode sequence for %s: %w", seq.ClientID, err)
	}
	return raw, nil
}

// ReportJSON renders an execution report as indented JSON.
func ReportJSON(report executor.Report) ([]byte, error) {
	raw, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode report for %s: %w", report.ClientID, err)
	}
	return raw, nil
}
