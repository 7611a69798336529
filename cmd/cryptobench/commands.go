// commands.go: Command tree of the cryptobench CLI.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"time"

	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath  string
	includeList []string
	forks       int
	threads     int
	warmup      int
	measurement int
	forkTimeout time.Duration
	outputMode  string
	isolation   string
	logLevel    string
	logFormat   string
	traceSpans  bool

	childBenchmark string
	childFork      int

	rootCmd = &cobra.Command{
		Use:   "cryptobench",
		Short: "Microbenchmarks for pluggable cryptographic backends",
		Long: `cryptobench measures AEAD and token verification throughput of
interchangeable providers (Tink, the Go standard library, x/crypto, go-ethereum)
across isolated forks and concurrent worker threads.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the selected benchmarks and print their throughput",
		RunE:  runBenchmarks, // Defined in run.go
	}

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List the benchmark catalog",
		RunE:  listBenchmarks, // Defined in run.go
	}

	// forkChildCmd runs a single fork and prints its result as JSON on stdout.
	// It is invoked by the process isolation executor.
	forkChildCmd = &cobra.Command{
		Use:    "fork-child",
		Hidden: true,
		RunE:   runForkChild, // Defined in executor.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text, json)")

	for _, cmd := range []*cobra.Command{runCmd, forkChildCmd} {
		cmd.Flags().IntVar(&forks, "forks", 1, "Number of isolated forks")
		cmd.Flags().IntVar(&threads, "threads", 8, "Worker threads per fork")
		cmd.Flags().IntVar(&warmup, "warmup", 1, "Warm-up iterations per thread")
		cmd.Flags().IntVar(&measurement, "measurement", 1, "Measured iterations per thread")
		cmd.Flags().DurationVar(&forkTimeout, "fork-timeout", 0, "Maximum duration of one fork (0 disables)")
	}

	runCmd.Flags().StringVarP(&configPath, "config", "c", "", "Suite configuration file (YAML)")
	runCmd.Flags().StringSliceVarP(&includeList, "include", "i", nil, "Benchmark names or name fragments to run (comma separated)")
	runCmd.Flags().StringVarP(&outputMode, "output", "o", "table", "Output mode (table, json, prometheus)")
	runCmd.Flags().StringVar(&isolation, "isolation", "inprocess", "Fork isolation (inprocess, process)")
	runCmd.Flags().BoolVar(&traceSpans, "trace", false, "Export OpenTelemetry spans to stderr")

	forkChildCmd.Flags().StringVar(&childBenchmark, "benchmark", "", "Benchmark to run")
	forkChildCmd.Flags().IntVar(&childFork, "fork", 1, "Fork number")
	_ = forkChildCmd.MarkFlagRequired("benchmark")

	rootCmd.AddCommand(runCmd, listCmd, forkChildCmd)
}
