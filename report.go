// report.go: Benchmark reports and their table, JSON and Prometheus renderings.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package cryptobench

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	goerrors "github.com/agilira/go-errors"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Output modes understood by WriteReports.
const (
	OutputTable      = "table"
	OutputJSON       = "json"
	OutputPrometheus = "prometheus"
)

// Report is the outcome of running one benchmark.
type Report struct {
	RunID     string        `json:"run_id"`
	Benchmark string        `json:"benchmark"`
	Config    RunConfig     `json:"config"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Forks     []ForkResult  `json:"forks"`
	Stats     *Stats        `json:"stats,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// SetupFailures counts forks that failed setup.
func (r *Report) SetupFailures() int {
	n := 0
	for _, f := range r.Forks {
		if f.Status == ForkSetupFailed {
			n++
		}
	}
	return n
}

// Status summarizes the report in one word.
func (r *Report) Status() string {
	switch {
	case r.Error != "":
		return "failed"
	case r.Stats == nil:
		return "no samples"
	case r.Stats.Forks < len(r.Forks):
		return "partial"
	default:
		return "ok"
	}
}

// WriteReports renders reports in the given output mode.
func WriteReports(w io.Writer, reports []*Report, mode string) error {
	switch mode {
	case OutputTable, "":
		return WriteTable(w, reports)
	case OutputJSON:
		return WriteJSON(w, reports)
	case OutputPrometheus:
		return WritePrometheus(w, reports)
	default:
		return newError(ErrInvalidConfig, ErrCodeInvalidConfig, fmt.Sprintf("unknown output mode %q", mode))
	}
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	numberStyle = cellStyle.Align(lipgloss.Right)
	failedStyle = cellStyle.Foreground(lipgloss.Color("#EF4444"))
)

// WriteTable renders a human-readable table, one row per benchmark.
func WriteTable(w io.Writer, reports []*Report) error {
	rows := make([][]string, 0, len(reports))
	for _, r := range reports {
		row := []string{r.Benchmark, strconv.Itoa(len(r.Forks)), strconv.Itoa(r.Config.Threads), "-", "-", "-", "-", "-", r.Status()}
		if s := r.Stats; s != nil {
			row[3] = formatOps(s.OpsPerSec)
			row[4] = "± " + formatOps((s.CIUpper-s.CILower)/2)
			row[5] = formatOps(s.Min)
			row[6] = formatOps(s.Max)
			row[7] = formatOps(s.StdDev)
		}
		rows = append(rows, row)
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Benchmark", "Forks", "Threads", "ops/s", "Error", "Min", "Max", "StdDev", "Status").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 8 && rows[row][8] == "failed":
				return failedStyle
			case col >= 1 && col <= 7:
				return numberStyle
			default:
				return cellStyle
			}
		})

	if _, err := fmt.Fprintln(w, t.Render()); err != nil {
		return goerrors.Wrap(err, ErrCodeResultInconsistent, "failed to write table")
	}
	return nil
}

func formatOps(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// WriteJSON writes the reports as an indented JSON array.
func WriteJSON(w io.Writer, reports []*Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(reports); err != nil {
		return goerrors.Wrap(err, ErrCodeResultInconsistent, "failed to encode reports")
	}
	return nil
}

// reportMetrics holds the gauges of one Prometheus rendering.
type reportMetrics struct {
	registry   *prometheus.Registry
	opsPerSec  *prometheus.GaugeVec
	bounds     *prometheus.GaugeVec
	stddev     *prometheus.GaugeVec
	forkOps    *prometheus.GaugeVec
	operations *prometheus.GaugeVec
}

func newReportMetrics() *reportMetrics {
	m := &reportMetrics{
		registry: prometheus.NewRegistry(),
		opsPerSec: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "cryptobench",
			Name:      "ops_per_second",
			Help:      "Mean throughput across completed forks",
		}, []string{"benchmark"}),
		bounds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "cryptobench",
			Name:      "ops_per_second_bound",
			Help:      "Throughput bounds (min, max, ci_lower, ci_upper)",
		}, []string{"benchmark", "bound"}),
		stddev: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "cryptobench",
			Name:      "ops_per_second_stddev",
			Help:      "Standard deviation of fork throughput",
		}, []string{"benchmark"}),
		forkOps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "cryptobench",
			Name:      "fork_ops_per_second",
			Help:      "Throughput of each completed fork",
		}, []string{"benchmark", "fork"}),
		operations: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "cryptobench",
			Name:      "measured_operations",
			Help:      "Measured operations that contributed to the aggregate",
		}, []string{"benchmark"}),
	}
	m.registry.MustRegister(m.opsPerSec, m.bounds, m.stddev, m.forkOps, m.operations)
	return m
}

func (m *reportMetrics) record(r *Report) {
	if r.Stats == nil {
		return
	}
	s := r.Stats
	m.opsPerSec.WithLabelValues(r.Benchmark).Set(s.OpsPerSec)
	m.bounds.WithLabelValues(r.Benchmark, "min").Set(s.Min)
	m.bounds.WithLabelValues(r.Benchmark, "max").Set(s.Max)
	m.bounds.WithLabelValues(r.Benchmark, "ci_lower").Set(s.CILower)
	m.bounds.WithLabelValues(r.Benchmark, "ci_upper").Set(s.CIUpper)
	m.stddev.WithLabelValues(r.Benchmark).Set(s.StdDev)
	m.operations.WithLabelValues(r.Benchmark).Set(float64(s.Operations))
	for _, f := range r.Forks {
		if f.Completed() {
			m.forkOps.WithLabelValues(r.Benchmark, strconv.Itoa(f.Fork)).Set(ForkThroughput(f))
		}
	}
}

// WritePrometheus writes the reports in the Prometheus text exposition format.
// Reports without stats are skipped.
func WritePrometheus(w io.Writer, reports []*Report) error {
	m := newReportMetrics()
	for _, r := range reports {
		m.record(r)
	}

	families, err := m.registry.Gather()
	if err != nil {
		return goerrors.Wrap(err, ErrCodeResultInconsistent, "failed to gather metrics")
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return goerrors.Wrap(err, ErrCodeResultInconsistent, "failed to write metrics")
		}
	}
	return nil
}
