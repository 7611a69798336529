// main_test.go: Tests for the CLI helpers.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/agilira/cryptobench"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// childModeEnv makes the test binary act as a fork process.
const childModeEnv = "CRYPTOBENCH_TEST_CHILD"

func TestMain(m *testing.M) {
	switch os.Getenv(childModeEnv) {
	case "hang":
		time.Sleep(time.Minute)
		os.Exit(0)
	case "result":
		data, err := cryptobench.EncodeForkResult(cryptobench.ForkResult{
			Fork:    2,
			Status:  cryptobench.ForkCompleted,
			Threads: []cryptobench.ThreadResult{{Thread: 1, Operations: 5, Elapsed: time.Millisecond}},
		})
		if err != nil {
			os.Exit(2)
		}
		_, _ = os.Stdout.Write(append(data, '\n'))
		os.Exit(0)
	case "silent":
		os.Exit(3)
	}
	os.Exit(m.Run())
}

func newTestExecutor(t *testing.T, grace time.Duration) *subprocessExecutor {
	t.Helper()
	exe, err := newSubprocessExecutor(slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	assert.Equal(t, forkGracePeriod, exe.grace)
	exe.grace = grace
	return exe
}

func TestSubprocessExecutor_DecodesChildResult(t *testing.T) {
	t.Setenv(childModeEnv, "result")
	exe := newTestExecutor(t, time.Second)

	res := exe.ExecuteFork(context.Background(), cryptobench.Benchmark{Name: "aead/stdlib/AEAD-256/encrypt"}, cryptobench.RunConfig{Forks: 1, Threads: 1, Measurement: 5}, 2)
	assert.Equal(t, cryptobench.ForkCompleted, res.Status)
	assert.EqualValues(t, 5, res.Operations())
}

func TestSubprocessExecutor_ChildWithoutResult(t *testing.T) {
	t.Setenv(childModeEnv, "silent")
	exe := newTestExecutor(t, time.Second)

	res := exe.ExecuteFork(context.Background(), cryptobench.Benchmark{Name: "x"}, cryptobench.RunConfig{Forks: 1, Threads: 1, Measurement: 1}, 1)
	assert.Equal(t, cryptobench.ForkFailed, res.Status)
	assert.Contains(t, res.Error, "fork process")
}

func TestSubprocessExecutor_KillsHungChild(t *testing.T) {
	t.Setenv(childModeEnv, "hang")
	exe := newTestExecutor(t, 50*time.Millisecond)

	begin := time.Now()
	res := exe.ExecuteFork(context.Background(), cryptobench.Benchmark{Name: "x"},
		cryptobench.RunConfig{Forks: 1, Threads: 1, Measurement: 1, ForkTimeout: 50 * time.Millisecond}, 1)

	assert.Less(t, time.Since(begin), 20*time.Second, "child must not run to completion")
	assert.Equal(t, cryptobench.ForkTimedOut, res.Status)
	assert.Equal(t, "timeout", res.ErrorKind)
	assert.ErrorIs(t, res.Err, cryptobench.ErrForkTimeout)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "debug", "json")
	require.NoError(t, err)
	logger.Debug("hello", slog.String("k", "v"))
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	buf.Reset()
	logger, err = newLogger(&buf, "warn", "TEXT")
	require.NoError(t, err)
	logger.Info("dropped")
	assert.Empty(t, buf.String())

	_, err = newLogger(io.Discard, "loud", "text")
	assert.Error(t, err)
	_, err = newLogger(io.Discard, "info", "xml")
	assert.Error(t, err)
}

func TestRunAll(t *testing.T) {
	runner, err := cryptobench.NewRunner(
		cryptobench.RunConfig{Forks: 2, Threads: 2, Warmup: 1, Measurement: 3},
		cryptobench.WithRegistry(cryptobench.NewProviderRegistry()),
		cryptobench.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)

	suite := cryptobench.SelectBenchmarks(cryptobench.DefaultSuite(), []string{"aead/stdlib/AEAD-256", "jwt/stdlib/JWT_EDDSA/verify_rejected"})
	require.Len(t, suite, 3)

	reports, err := runAll(context.Background(), runner, suite, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	require.Len(t, reports, 3)
	for _, r := range reports {
		assert.Equal(t, "ok", r.Status(), r.Benchmark)
	}

	var out bytes.Buffer
	require.NoError(t, cryptobench.WriteReports(&out, reports, cryptobench.OutputTable))
	assert.Contains(t, out.String(), "jwt/stdlib/JWT_EDDSA/verify_rejected")
}

func TestRunAll_ContinuesPastSetupFailures(t *testing.T) {
	runner, err := cryptobench.NewRunner(
		cryptobench.RunConfig{Forks: 1, Threads: 1, Measurement: 1},
		cryptobench.WithRegistry(cryptobench.NewProviderRegistry()),
		cryptobench.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)

	broken := cryptobench.AEADBenchmarks("stdlib", func() (cryptobench.Provider, error) {
		return cryptobench.NewStdlibProvider(), nil
	}, cryptobench.AlgorithmChaCha20Poly1305, cryptobench.DefaultFixtureSizes())
	working := cryptobench.SelectBenchmarks(cryptobench.DefaultSuite(), []string{"aead/xcrypto/CHACHA20_POLY1305/encrypt"})
	require.Len(t, working, 1)

	reports, err := runAll(context.Background(), runner, append(broken, working...), slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.ErrorIs(t, err, cryptobench.ErrAllForksFailed)
	assert.ErrorIs(t, err, cryptobench.ErrUnsupportedAlgorithm)
	require.Len(t, reports, 3)
	assert.Equal(t, "failed", reports[0].Status())
	assert.Equal(t, "failed", reports[1].Status())
	assert.Equal(t, "ok", reports[2].Status())
}
