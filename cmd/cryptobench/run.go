// run.go: The run and list commands.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/agilira/cryptobench"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

// suiteConfig merges the configuration file, the environment and the flags
// the user actually set, in that order of increasing precedence.
func suiteConfig(cmd *cobra.Command) (cryptobench.SuiteConfig, error) {
	cfg, err := cryptobench.LoadSuiteConfig(configPath)
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("include") {
		cfg.Benchmarks = includeList
	}
	if flags.Changed("forks") {
		cfg.Run.Forks = forks
	}
	if flags.Changed("threads") {
		cfg.Run.Threads = threads
	}
	if flags.Changed("warmup") {
		cfg.Run.Warmup = warmup
	}
	if flags.Changed("measurement") {
		cfg.Run.Measurement = measurement
	}
	if flags.Changed("fork-timeout") {
		cfg.Run.ForkTimeout = forkTimeout
	}
	if flags.Changed("output") {
		cfg.Output = outputMode
	}
	if flags.Changed("isolation") {
		cfg.Isolation = isolation
	}
	return cfg, cfg.Validate()
}

func runBenchmarks(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	logger, err := newLogger(os.Stderr, logLevel, logFormat)
	if err != nil {
		return err
	}
	cfg, err := suiteConfig(cmd)
	if err != nil {
		return err
	}

	selected := cryptobench.SelectBenchmarks(cryptobench.DefaultSuite(), cfg.Benchmarks)
	if len(selected) == 0 {
		return fmt.Errorf("no benchmark matches %v", cfg.Benchmarks)
	}

	opts := []cryptobench.RunnerOption{
		cryptobench.WithLogger(logger),
		cryptobench.WithConfidence(cfg.Confidence),
	}
	if cfg.Isolation == cryptobench.IsolationProcess {
		exe, err := newSubprocessExecutor(logger)
		if err != nil {
			return err
		}
		opts = append(opts, cryptobench.WithForkExecutor(exe))
	}
	if traceSpans {
		tp, err := newTracerProvider(os.Stderr)
		if err != nil {
			return err
		}
		defer func() {
			if err := tp.Shutdown(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("failed to flush spans", slog.String("error", err.Error()))
			}
		}()
		opts = append(opts, cryptobench.WithTracerProvider(tp))
	}

	runner, err := cryptobench.NewRunner(cfg.Run, opts...)
	if err != nil {
		return err
	}

	reports, runErr := runAll(ctx, runner, selected, logger)
	if err := cryptobench.WriteReports(os.Stdout, reports, cfg.Output); err != nil {
		return err
	}
	return runErr
}

// runAll runs benchmarks in order. Benchmarks whose forks all failed setup or
// produced no samples are reported and the run moves on; an operation or
// concurrency failure stops everything.
func runAll(ctx context.Context, runner *cryptobench.Runner, suite []cryptobench.Benchmark, logger *slog.Logger) ([]*cryptobench.Report, error) {
	var (
		reports []*cryptobench.Report
		failed  []error
	)
	for _, b := range suite {
		report, err := runner.Run(ctx, b)
		if report == nil {
			report = &cryptobench.Report{Benchmark: b.Name, Config: runner.Config()}
		}
		if err != nil {
			report.Error = err.Error()
			failed = append(failed, fmt.Errorf("%s: %w", b.Name, err))
		}
		reports = append(reports, report)

		if errors.Is(err, cryptobench.ErrOperation) || errors.Is(err, cryptobench.ErrConcurrencyUnsafe) || ctx.Err() != nil {
			logger.Error("stopping after fatal benchmark failure", slog.String("benchmark", b.Name))
			break
		}
	}
	return reports, errors.Join(failed...)
}

func listBenchmarks(_ *cobra.Command, _ []string) error {
	suite := cryptobench.DefaultSuite()
	rows := make([][]string, 0, len(suite))
	for _, b := range suite {
		rows = append(rows, []string{b.Name, b.Description})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Benchmark", "Description").
		Rows(rows...)
	fmt.Println(t.Render())
	return nil
}
