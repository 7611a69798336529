// executor.go: Process isolation for forks.
//
// Each fork re-executes this binary as "cryptobench fork-child", which runs one
// fork in process and prints the encoded result on stdout.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/agilira/cryptobench"
	"github.com/agilira/go-timecache"
	"github.com/spf13/cobra"
)

// forkGracePeriod is added to the fork timeout before a child is killed. It
// covers process start, setup and teardown, which the child does not time.
const forkGracePeriod = 30 * time.Second

type subprocessExecutor struct {
	executable string
	grace      time.Duration
	logger     *slog.Logger
}

func newSubprocessExecutor(logger *slog.Logger) (*subprocessExecutor, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}
	return &subprocessExecutor{executable: exe, grace: forkGracePeriod, logger: logger}, nil
}

// ExecuteFork implements cryptobench.ForkExecutor. With a fork timeout set, a
// child still running after the timeout plus the grace period is killed and
// the fork is reported as timed out.
func (e *subprocessExecutor) ExecuteFork(ctx context.Context, b cryptobench.Benchmark, cfg cryptobench.RunConfig, fork int) cryptobench.ForkResult {
	args := []string{
		"fork-child",
		"--benchmark", b.Name,
		"--fork", strconv.Itoa(fork),
		"--threads", strconv.Itoa(cfg.Threads),
		"--warmup", strconv.Itoa(cfg.Warmup),
		"--measurement", strconv.Itoa(cfg.Measurement),
		"--fork-timeout", cfg.ForkTimeout.String(),
		"--log-level", logLevel,
		"--log-format", logFormat,
	}

	runCtx := ctx
	if cfg.ForkTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeoutCause(ctx, cfg.ForkTimeout+e.grace, cryptobench.ErrForkTimeout)
		defer cancel()
	}

	var stdout bytes.Buffer
	cmd := exec.CommandContext(runCtx, e.executable, args...) // #nosec G204 -- re-executes this binary
	cmd.Stdout = &stdout
	cmd.Stderr = os.Stderr
	cmd.WaitDelay = time.Second

	e.logger.Debug("starting fork process", slog.String("benchmark", b.Name), slog.Int("fork", fork))
	startedAt := timecache.CachedTime().UTC()
	begin := time.Now()
	runErr := cmd.Run()

	if runErr != nil && errors.Is(context.Cause(runCtx), cryptobench.ErrForkTimeout) {
		e.logger.Warn("killed fork process", slog.String("benchmark", b.Name), slog.Int("fork", fork), slog.Duration("after", time.Since(begin)))
		err := fmt.Errorf("%w: fork process killed after %s", cryptobench.ErrForkTimeout, cfg.ForkTimeout+e.grace)
		return failedFork(fork, cryptobench.ForkTimedOut, startedAt, time.Since(begin), err)
	}

	res, err := cryptobench.DecodeForkResult(stdout.Bytes())
	if err != nil {
		if runErr != nil {
			err = fmt.Errorf("%w (fork process: %v)", err, runErr)
		}
		return failedFork(fork, cryptobench.ForkFailed, startedAt, time.Since(begin), err)
	}
	return res
}

func failedFork(fork int, status cryptobench.ForkStatus, startedAt time.Time, elapsed time.Duration, err error) cryptobench.ForkResult {
	return cryptobench.ForkResult{
		Fork:      fork,
		Status:    status,
		StartedAt: startedAt,
		Duration:  elapsed,
		Err:       err,
		Error:     err.Error(),
		ErrorKind: cryptobench.ErrorKind(err),
	}
}

func runForkChild(cmd *cobra.Command, _ []string) error {
	logger, err := newLogger(os.Stderr, logLevel, logFormat)
	if err != nil {
		return err
	}
	b, err := cryptobench.FindBenchmark(cryptobench.DefaultSuite(), childBenchmark)
	if err != nil {
		return err
	}

	cfg := cryptobench.RunConfig{
		Forks:       1,
		Threads:     threads,
		Warmup:      warmup,
		Measurement: measurement,
		ForkTimeout: forkTimeout,
	}
	runner, err := cryptobench.NewRunner(cfg, cryptobench.WithLogger(logger))
	if err != nil {
		return err
	}

	data, err := cryptobench.EncodeForkResult(runner.RunFork(cmd.Context(), b, childFork))
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(append(data, '\n'))
	return err
}
