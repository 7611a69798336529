// aggregate.go: Throughput aggregation across threads and forks.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package cryptobench

import (
	"fmt"
	"math"
	"time"

	"github.com/aclements/go-moremath/stats"
)

// DefaultConfidence is the confidence level of reported intervals.
const DefaultConfidence = 0.99

// Stats is the aggregate throughput of one benchmark.
type Stats struct {
	OpsPerSec  float64   `json:"ops_per_sec"` // Mean across completed forks
	Min        float64   `json:"min"`         // Slowest fork
	Max        float64   `json:"max"`         // Fastest fork
	StdDev     float64   `json:"stddev"`      // Sample standard deviation across forks
	CILower    float64   `json:"ci_lower"`    // Lower confidence bound of the mean
	CIUpper    float64   `json:"ci_upper"`    // Upper confidence bound of the mean
	Confidence float64   `json:"confidence"`  // Confidence level of the interval
	Forks      int       `json:"forks"`       // Forks that contributed
	Threads    int       `json:"threads"`     // Thread results that contributed
	Operations uint64    `json:"operations"`  // Measured operations that contributed
	PerFork    []float64 `json:"per_fork"`    // Throughput of each contributing fork
}

// ThroughputAggregator turns fork results into Stats.
type ThroughputAggregator struct {
	confidence float64
}

// NewThroughputAggregator returns an aggregator reporting intervals at the given
// confidence level (0.90, 0.95 or 0.99; other values fall back to the nearest
// lower table).
func NewThroughputAggregator(confidence float64) *ThroughputAggregator {
	if confidence <= 0 || confidence >= 1 {
		confidence = DefaultConfidence
	}
	return &ThroughputAggregator{confidence: confidence}
}

// ForkThroughput returns one fork's operations per second: operations summed
// across threads divided by the longest thread window.
func ForkThroughput(r ForkResult) float64 {
	elapsed := max(r.Elapsed(), time.Nanosecond)
	return float64(r.Operations()) / elapsed.Seconds()
}

// Record aggregates the completed forks of results. Forks that did not complete
// are skipped. It fails with ErrInsufficientSamples unless at least one
// completed fork reported at least one thread result.
func (a *ThroughputAggregator) Record(results []ForkResult) (Stats, error) {
	sample := stats.Sample{Xs: make([]float64, 0, len(results))}
	var out Stats

	for _, r := range results {
		if !r.Completed() || len(r.Threads) == 0 {
			continue
		}
		sample.Xs = append(sample.Xs, ForkThroughput(r))
		out.Threads += len(r.Threads)
		out.Operations += r.Operations()
	}

	n := len(sample.Xs)
	if n == 0 {
		return Stats{}, newError(ErrInsufficientSamples, ErrCodeInsufficient, fmt.Sprintf("no complete fork among %d results", len(results)))
	}

	out.Forks = n
	out.PerFork = sample.Xs
	out.Confidence = a.confidence
	out.OpsPerSec = sample.Mean()
	out.Min, out.Max = sample.Bounds()
	out.CILower, out.CIUpper = out.OpsPerSec, out.OpsPerSec

	if n >= 2 {
		out.StdDev = sample.StdDev()
		margin := tCriticalValue(n-1, a.confidence) * out.StdDev / math.Sqrt(float64(n))
		out.CILower = math.Max(0, out.OpsPerSec-margin)
		out.CIUpper = out.OpsPerSec + margin
	}
	return out, nil
}

// tCriticalValue returns the two-tailed t-distribution critical value for df
// degrees of freedom, falling back to z-scores above 30.
func tCriticalValue(df int, confidence float64) float64 {
	t90 := []float64{6.314, 2.920, 2.353, 2.132, 2.015, 1.943, 1.895, 1.860, 1.833, 1.812,
		1.796, 1.782, 1.771, 1.761, 1.753, 1.746, 1.740, 1.734, 1.729, 1.725,
		1.721, 1.717, 1.714, 1.711, 1.708, 1.706, 1.703, 1.701, 1.699, 1.697}
	t95 := []float64{12.706, 4.303, 3.182, 2.776, 2.571, 2.447, 2.365, 2.306, 2.262, 2.228,
		2.201, 2.179, 2.160, 2.145, 2.131, 2.120, 2.110, 2.101, 2.093, 2.086,
		2.080, 2.074, 2.069, 2.064, 2.060, 2.056, 2.052, 2.048, 2.045, 2.042}
	t99 := []float64{63.657, 9.925, 5.841, 4.604, 4.032, 3.707, 3.499, 3.355, 3.250, 3.169,
		3.106, 3.055, 3.012, 2.977, 2.947, 2.921, 2.898, 2.878, 2.861, 2.845,
		2.831, 2.819, 2.807, 2.797, 2.787, 2.779, 2.771, 2.763, 2.756, 2.750}

	table, z := t90, 1.645
	switch {
	case confidence >= 0.99:
		table, z = t99, 2.576
	case confidence >= 0.95:
		table, z = t95, 1.96
	}

	if df < 1 {
		df = 1
	}
	if df > len(table) {
		return z
	}
	return table[df-1]
}
