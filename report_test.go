// report_test.go: Tests for report rendering.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package cryptobench

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReports(t *testing.T) []*Report {
	t.Helper()
	forks := []ForkResult{
		completedFork(1, time.Second, 100, 100),
		completedFork(2, time.Second, 150, 150),
		{Fork: 3, Status: ForkSetupFailed, Error: "setup failed", ErrorKind: "setup"},
	}
	stats, err := NewThroughputAggregator(DefaultConfidence).Record(forks)
	require.NoError(t, err)

	return []*Report{
		{RunID: "run-1", Benchmark: "aead/stdlib/AEAD-256/encrypt", Config: ReferenceRunConfig(), Forks: forks, Stats: &stats},
		{RunID: "run-2", Benchmark: "jwt/geth/JWT_ES256K/verify_key1", Config: ReferenceRunConfig(), Error: "every fork failed setup"},
	}
}

func TestReport_Status(t *testing.T) {
	reports := sampleReports(t)
	assert.Equal(t, "partial", reports[0].Status())
	assert.Equal(t, 1, reports[0].SetupFailures())
	assert.Equal(t, "failed", reports[1].Status())
	assert.Equal(t, "no samples", (&Report{}).Status())

	reports[0].Forks = reports[0].Forks[:2]
	assert.Equal(t, "ok", reports[0].Status())
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReports(&buf, sampleReports(t), OutputTable))

	out := buf.String()
	assert.Contains(t, out, "aead/stdlib/AEAD-256/encrypt")
	assert.Contains(t, out, "250.00")
	assert.Contains(t, out, "partial")
	assert.Contains(t, out, "failed")
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReports(&buf, sampleReports(t), OutputJSON))

	var decoded []Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "run-1", decoded[0].RunID)
	require.NotNil(t, decoded[0].Stats)
	assert.InDelta(t, 250, decoded[0].Stats.OpsPerSec, 1e-9)
	assert.Nil(t, decoded[1].Stats)
	assert.Equal(t, "every fork failed setup", decoded[1].Error)
}

func TestWritePrometheus(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReports(&buf, sampleReports(t), OutputPrometheus))

	out := buf.String()
	assert.Contains(t, out, "# TYPE cryptobench_ops_per_second gauge")
	assert.Contains(t, out, `cryptobench_ops_per_second{benchmark="aead/stdlib/AEAD-256/encrypt"} 250`)
	assert.Contains(t, out, `cryptobench_ops_per_second_bound{benchmark="aead/stdlib/AEAD-256/encrypt",bound="min"} 200`)
	assert.Contains(t, out, `cryptobench_fork_ops_per_second{benchmark="aead/stdlib/AEAD-256/encrypt",fork="2"} 300`)
	assert.Contains(t, out, `cryptobench_measured_operations{benchmark="aead/stdlib/AEAD-256/encrypt"} 500`)
	assert.NotContains(t, out, "jwt/geth", "reports without stats are skipped")
}

func TestWriteReports_UnknownMode(t *testing.T) {
	err := WriteReports(&bytes.Buffer{}, nil, "xml")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
