// runner_test.go: Tests for fork orchestration, measurement and failure classification.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package cryptobench

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goerrors "github.com/agilira/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunner(t *testing.T, cfg RunConfig, opts ...RunnerOption) (*Runner, *ProviderRegistry) {
	t.Helper()
	reg := NewProviderRegistry()
	opts = append([]RunnerOption{WithRegistry(reg), WithLogger(discardLogger())}, opts...)
	r, err := NewRunner(cfg, opts...)
	require.NoError(t, err)
	return r, reg
}

func TestRunConfig_Validate(t *testing.T) {
	assert.NoError(t, ReferenceRunConfig().Validate())

	tests := []struct {
		name string
		cfg  RunConfig
	}{
		{"zero forks", RunConfig{Forks: 0, Threads: 1, Measurement: 1}},
		{"zero threads", RunConfig{Forks: 1, Threads: 0, Measurement: 1}},
		{"negative warmup", RunConfig{Forks: 1, Threads: 1, Warmup: -1, Measurement: 1}},
		{"zero measurement", RunConfig{Forks: 1, Threads: 1, Measurement: 0}},
		{"negative timeout", RunConfig{Forks: 1, Threads: 1, Measurement: 1, ForkTimeout: -time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.cfg.Validate(), ErrInvalidConfig)
			_, err := NewRunner(tt.cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestRunner_AEAD256ReferenceRun(t *testing.T) {
	runner, reg := newTestRunner(t, ReferenceRunConfig())
	benchmarks := AEADBenchmarks(StdlibProviderName, ProviderFactories()[StdlibProviderName], AlgorithmAEAD256, DefaultFixtureSizes())
	require.Len(t, benchmarks, 2)

	for _, b := range benchmarks {
		t.Run(b.Name, func(t *testing.T) {
			report, err := runner.Run(context.Background(), b)
			require.NoError(t, err)
			require.NotNil(t, report.Stats)

			assert.NotEmpty(t, report.RunID)
			assert.Equal(t, "ok", report.Status())
			require.Len(t, report.Forks, 1)
			fork := report.Forks[0]
			assert.Equal(t, ForkCompleted, fork.Status)
			require.Len(t, fork.Threads, 8)
			for _, th := range fork.Threads {
				assert.EqualValues(t, 1, th.Operations)
				assert.Positive(t, th.Elapsed)
			}

			ops := report.Stats.OpsPerSec
			assert.Positive(t, ops)
			assert.False(t, math.IsInf(ops, 0) || math.IsNaN(ops))
			assert.EqualValues(t, 8, report.Stats.Operations)
			assert.Empty(t, reg.Installed(), "fork must uninstall its provider")
		})
	}
}

func TestRunner_SinkCountMatchesThreadsTimesIterations(t *testing.T) {
	const threads, iterations = 4, 25
	runner, _ := newTestRunner(t, RunConfig{Forks: 2, Threads: threads, Warmup: 3, Measurement: iterations})

	var calls atomic.Int64
	b := fakeBenchmark(newFakeProvider("fake"), func(s *BenchmarkState) (Workload, error) {
		w, err := bindEncrypt(s)
		if err != nil {
			return Workload{}, err
		}
		op := w.Op
		w.Op = func(bh *Blackhole) error {
			calls.Add(1)
			return op(bh)
		}
		return w, nil
	})

	report, err := runner.Run(context.Background(), b)
	require.NoError(t, err)
	require.Len(t, report.Forks, 2)
	for _, f := range report.Forks {
		assert.EqualValues(t, threads*iterations, f.Operations())
	}
	assert.EqualValues(t, 2*threads*iterations, report.Stats.Operations)
	assert.EqualValues(t, 2*threads*(iterations+3), calls.Load(), "warm-up runs but is not counted")
	assert.Equal(t, 2, report.Stats.Forks)
}

func TestMeasure_WarmupDoesNotLeakIntoResults(t *testing.T) {
	w := Workload{Op: func(bh *Blackhole) error {
		bh.ConsumeString("x")
		return nil
	}}
	threads, err := measure(context.Background(), w, RunConfig{Forks: 1, Threads: 2, Warmup: 4, Measurement: 3})
	require.NoError(t, err)

	want := NewBlackhole()
	for range 3 {
		want.ConsumeString("x")
	}
	require.Len(t, threads, 2)
	for _, tr := range threads {
		assert.EqualValues(t, 3, tr.Operations)
		assert.Equal(t, want.Checksum(), tr.Checksum, "thread %d", tr.Thread)
	}
}

func TestRunner_AllForksFailSetup(t *testing.T) {
	runner, reg := newTestRunner(t, RunConfig{Forks: 3, Threads: 2, Measurement: 1})
	p := newFakeProvider("fake")
	p.aeadErr = errInjected

	report, err := runner.Run(context.Background(), fakeBenchmark(p, bindEncrypt))
	assert.ErrorIs(t, err, ErrAllForksFailed)
	assert.ErrorIs(t, err, ErrSetup)
	assert.ErrorIs(t, err, errInjected)

	require.NotNil(t, report)
	assert.Nil(t, report.Stats)
	assert.Equal(t, 3, report.SetupFailures())
	for _, f := range report.Forks {
		assert.Equal(t, ForkSetupFailed, f.Status)
		assert.Equal(t, "setup", f.ErrorKind)
		assert.Empty(t, f.Threads)
	}
	assert.EqualValues(t, 3, p.closed.Load(), "each fork tears down exactly once")
	assert.Empty(t, reg.Installed())
}

// flakySetupProvider fails NewAEAD on selected calls.
type flakySetupProvider struct {
	*fakeProvider
	calls  atomic.Int32
	failOn map[int32]bool
}

func (p *flakySetupProvider) NewAEAD(ks *Keyset) (AEAD, error) {
	if p.failOn[p.calls.Add(1)] {
		return nil, errInjected
	}
	return p.fakeProvider.NewAEAD(ks)
}

func TestRunner_SetupFailureExcludedFromAggregate(t *testing.T) {
	runner, _ := newTestRunner(t, RunConfig{Forks: 3, Threads: 2, Measurement: 5})
	p := &flakySetupProvider{fakeProvider: newFakeProvider("fake"), failOn: map[int32]bool{2: true}}

	b := fakeBenchmark(p.fakeProvider, bindDecrypt)
	b.State.Provider = func() (Provider, error) { return p, nil }

	report, err := runner.Run(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, ForkSetupFailed, report.Forks[1].Status)
	assert.Equal(t, 2, report.Stats.Forks)
	assert.Len(t, report.Stats.PerFork, 2)
	assert.Equal(t, "partial", report.Status())
}

func TestRunner_OperationFailureAborts(t *testing.T) {
	runner, reg := newTestRunner(t, RunConfig{Forks: 3, Threads: 1, Measurement: 10})
	p := newFakeProvider("fake")

	var n atomic.Int32
	report, err := runner.Run(context.Background(), fakeBenchmark(p, func(s *BenchmarkState) (Workload, error) {
		return Workload{Op: func(bh *Blackhole) error {
			if n.Add(1) == 5 {
				return errInjected
			}
			bh.ConsumeString("ok")
			return nil
		}}, nil
	}))

	assert.ErrorIs(t, err, ErrOperation)
	assert.ErrorIs(t, err, errInjected)
	require.Len(t, report.Forks, 1, "run stops at the failing fork")
	assert.Equal(t, ForkFailed, report.Forks[0].Status)
	assert.Equal(t, "operation", report.Forks[0].ErrorKind)
	assert.Nil(t, report.Stats)
	assert.Empty(t, reg.Installed())
	assert.EqualValues(t, 1, p.closed.Load())
}

func TestRunner_PanicIsOperationFailure(t *testing.T) {
	runner, _ := newTestRunner(t, RunConfig{Forks: 1, Threads: 1, Measurement: 1})
	_, err := runner.Run(context.Background(), fakeBenchmark(newFakeProvider("fake"), func(*BenchmarkState) (Workload, error) {
		return Workload{Op: func(*Blackhole) error { panic("boom") }}, nil
	}))
	assert.ErrorIs(t, err, ErrOperation)
}

func TestRunner_DeclaredUnsafeProvider(t *testing.T) {
	p := newFakeProvider("fake")
	p.unsafe = true
	b := fakeBenchmark(p, bindEncrypt)

	runner, _ := newTestRunner(t, RunConfig{Forks: 1, Threads: 4, Measurement: 1})
	report, err := runner.Run(context.Background(), b)
	assert.ErrorIs(t, err, ErrConcurrencyUnsafe)
	assert.Equal(t, "concurrency_unsafe", report.Forks[0].ErrorKind)

	single, _ := newTestRunner(t, RunConfig{Forks: 1, Threads: 1, Measurement: 1})
	_, err = single.Run(context.Background(), b)
	assert.NoError(t, err, "single-threaded runs do not need concurrent safety")
}

// mutatingBind corrupts the shared plaintext on the first operation.
func mutatingBind(s *BenchmarkState) (Workload, error) {
	f, err := s.AEADFixture()
	if err != nil {
		return Workload{}, err
	}
	var once sync.Once
	return Workload{Op: func(bh *Blackhole) error {
		once.Do(func() { f.Plaintext[0] ^= 0xff })
		bh.ConsumeBytes(f.AssociatedData)
		return nil
	}}, nil
}

func TestRunner_FixtureCorruptionDetected(t *testing.T) {
	b := fakeBenchmark(newFakeProvider("fake"), mutatingBind)

	multi, _ := newTestRunner(t, RunConfig{Forks: 1, Threads: 2, Measurement: 3})
	report, err := multi.Run(context.Background(), b)
	assert.ErrorIs(t, err, ErrConcurrencyUnsafe)
	require.Len(t, report.Forks, 1)
	assert.Equal(t, goerrors.ErrorCode(ErrCodeConcurrency), errorCode(report.Forks[0].Err))

	single, _ := newTestRunner(t, RunConfig{Forks: 1, Threads: 1, Measurement: 3})
	_, err = single.Run(context.Background(), b)
	assert.ErrorIs(t, err, ErrOperation)
	assert.NotErrorIs(t, err, ErrConcurrencyUnsafe)
}

func TestClassify(t *testing.T) {
	opErr := newError(ErrOperation, ErrCodeOperation, "iteration failed")
	ok := Workload{Check: func() error { return nil }}
	broken := Workload{Check: func() error { return errInjected }}

	assert.ErrorIs(t, classify(opErr, ok, 8), ErrConcurrencyUnsafe, "works alone, fails together")
	assert.NotErrorIs(t, classify(opErr, ok, 1), ErrConcurrencyUnsafe)
	assert.NotErrorIs(t, classify(opErr, broken, 8), ErrConcurrencyUnsafe)
	assert.NotErrorIs(t, classify(opErr, Workload{}, 8), ErrConcurrencyUnsafe)
}

func TestRunner_ForkTimeout(t *testing.T) {
	runner, reg := newTestRunner(t, RunConfig{Forks: 2, Threads: 2, Measurement: 1_000_000, ForkTimeout: 30 * time.Millisecond})

	report, err := runner.Run(context.Background(), fakeBenchmark(newFakeProvider("fake"), func(*BenchmarkState) (Workload, error) {
		return Workload{Op: func(bh *Blackhole) error {
			time.Sleep(time.Millisecond)
			bh.ConsumeString("tick")
			return nil
		}}, nil
	}))

	assert.ErrorIs(t, err, ErrInsufficientSamples, "timed-out forks contribute nothing")
	require.Len(t, report.Forks, 2)
	for _, f := range report.Forks {
		assert.Equal(t, ForkTimedOut, f.Status)
		assert.Equal(t, "timeout", f.ErrorKind)
		assert.Less(t, f.Duration, 10*time.Second)
	}
	assert.Empty(t, reg.Installed())
}

func TestRunner_CancelledContext(t *testing.T) {
	runner, _ := newTestRunner(t, RunConfig{Forks: 2, Threads: 1, Measurement: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := runner.Run(ctx, fakeBenchmark(newFakeProvider("fake"), bindEncrypt))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, report.Forks)
}

func TestRunner_BindErrors(t *testing.T) {
	runner, _ := newTestRunner(t, RunConfig{Forks: 1, Threads: 1, Measurement: 1})

	_, err := runner.Run(context.Background(), Benchmark{Name: "x"})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = runner.Run(context.Background(), fakeBenchmark(newFakeProvider("fake"), func(*BenchmarkState) (Workload, error) {
		return Workload{}, nil
	}))
	assert.ErrorIs(t, err, ErrAllForksFailed, "a workload without an operation fails setup")

	_, err = runner.Run(context.Background(), fakeBenchmark(newFakeProvider("fake"), func(*BenchmarkState) (Workload, error) {
		return Workload{
			Op:    func(bh *Blackhole) error { bh.ConsumeString("x"); return nil },
			Check: func() error { return errInjected },
		}, nil
	}))
	assert.ErrorIs(t, err, ErrAllForksFailed, "a failing check fails setup")
	assert.ErrorIs(t, err, errInjected)
}

// recordingExecutor returns canned fork results.
type recordingExecutor struct {
	results []ForkResult
	calls   []int
}

func (e *recordingExecutor) ExecuteFork(_ context.Context, _ Benchmark, _ RunConfig, fork int) ForkResult {
	e.calls = append(e.calls, fork)
	return e.results[fork-1]
}

func TestRunner_CustomForkExecutor(t *testing.T) {
	completed := func(fork int, ops uint64) ForkResult {
		return ForkResult{Fork: fork, Status: ForkCompleted, Threads: []ThreadResult{{Thread: 1, Operations: ops, Elapsed: time.Second}}}
	}
	exec := &recordingExecutor{results: []ForkResult{completed(1, 100), completed(2, 300)}}
	runner, _ := newTestRunner(t, RunConfig{Forks: 2, Threads: 1, Measurement: 1}, WithForkExecutor(exec))

	report, err := runner.Run(context.Background(), fakeBenchmark(newFakeProvider("fake"), bindEncrypt))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, exec.calls)
	assert.InDelta(t, 200, report.Stats.OpsPerSec, 1e-9)
}

func TestForkResultEncoding(t *testing.T) {
	in := ForkResult{
		Fork:      2,
		Status:    ForkCompleted,
		Threads:   []ThreadResult{{Thread: 1, Operations: 5, Elapsed: time.Millisecond, Checksum: 42}},
		StartedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		Duration:  time.Second,
	}
	data, err := EncodeForkResult(in)
	require.NoError(t, err)
	out, err := DecodeForkResult(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	failed := ForkResult{Fork: 1, Status: ForkSetupFailed}
	failed.fail(ForkSetupFailed, newError(ErrSetup, ErrCodeSetup, "no provider"))
	data, err = EncodeForkResult(failed)
	require.NoError(t, err)
	out, err = DecodeForkResult(data)
	require.NoError(t, err)
	assert.ErrorIs(t, out.Err, ErrSetup)
	assert.Equal(t, failed.Error, out.Err.Error(), "decoded error keeps its message")

	_, err = DecodeForkResult([]byte(`{"fork":1,"status":"exploded"}`))
	assert.Error(t, err)
	_, err = DecodeForkResult([]byte(`not json`))
	assert.Error(t, err)
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "", ErrorKind(nil))
	assert.Equal(t, "internal", ErrorKind(errInjected))
	assert.Equal(t, "timeout", ErrorKind(newError(ErrForkTimeout, ErrCodeTimeout, "slow")))

	// Concurrency wins over the operation error it wraps.
	err := wrapError(ErrConcurrencyUnsafe, newError(ErrOperation, ErrCodeOperation, "x"), ErrCodeConcurrency, "y")
	assert.Equal(t, "concurrency_unsafe", ErrorKind(err))

	assert.Nil(t, errorFromKind("", ""))
	assert.True(t, errors.Is(errorFromKind("operation", "boom"), ErrOperation))
	assert.Equal(t, "boom", errorFromKind("internal", "boom").Error())
}
