// runner.go: Fork, warm-up and measurement orchestration for one benchmark variant.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package cryptobench

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	goerrors "github.com/agilira/go-errors"
	"github.com/agilira/go-timecache"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const tracerName = "github.com/agilira/cryptobench"

// RunConfig controls forks, threads and iteration counts. There are no hidden
// defaults: every field must be set explicitly (ReferenceRunConfig returns the
// reference values).
type RunConfig struct {
	Forks       int           `yaml:"forks" json:"forks"`               // Sequential isolated repetitions
	Threads     int           `yaml:"threads" json:"threads"`           // Concurrent workers per fork
	Warmup      int           `yaml:"warmup" json:"warmup"`             // Discarded iterations per worker
	Measurement int           `yaml:"measurement" json:"measurement"`   // Measured iterations per worker
	ForkTimeout time.Duration `yaml:"fork_timeout" json:"fork_timeout"` // Zero disables the per-fork limit
}

// ReferenceRunConfig returns one fork of eight threads with one warm-up and one
// measurement iteration.
func ReferenceRunConfig() RunConfig {
	return RunConfig{Forks: 1, Threads: 8, Warmup: 1, Measurement: 1}
}

// Validate checks the configuration for consistency.
func (c RunConfig) Validate() error {
	switch {
	case c.Forks < 1:
		return newError(ErrInvalidConfig, ErrCodeInvalidConfig, fmt.Sprintf("forks must be at least 1, got %d", c.Forks))
	case c.Threads < 1:
		return newError(ErrInvalidConfig, ErrCodeInvalidConfig, fmt.Sprintf("threads must be at least 1, got %d", c.Threads))
	case c.Warmup < 0:
		return newError(ErrInvalidConfig, ErrCodeInvalidConfig, fmt.Sprintf("warmup must not be negative, got %d", c.Warmup))
	case c.Measurement < 1:
		return newError(ErrInvalidConfig, ErrCodeInvalidConfig, fmt.Sprintf("measurement must be at least 1, got %d", c.Measurement))
	case c.ForkTimeout < 0:
		return newError(ErrInvalidConfig, ErrCodeInvalidConfig, fmt.Sprintf("fork timeout must not be negative, got %s", c.ForkTimeout))
	}
	return nil
}

// Operation is one invocation of the primitive under test. It must push its
// result into bh exactly once.
type Operation func(bh *Blackhole) error

// Workload is what a benchmark binds to a READY state.
type Workload struct {
	Op Operation

	// Check validates one fresh result semantically (for example that decryption
	// returns the fixture plaintext). It runs once before workers start and once
	// per worker after measurement.
	Check func() error
}

// Benchmark is one named variant.
type Benchmark struct {
	Name        string
	Description string
	State       StateConfig
	Bind        func(s *BenchmarkState) (Workload, error)
}

// ForkStatus is the outcome of one fork.
type ForkStatus string

const (
	ForkCompleted   ForkStatus = "completed"
	ForkSetupFailed ForkStatus = "setup_failed"
	ForkTimedOut    ForkStatus = "timed_out"
	ForkFailed      ForkStatus = "failed"
)

// ThreadResult is one worker's measurement window.
type ThreadResult struct {
	Thread     int           `json:"thread"`
	Operations uint64        `json:"operations"`
	Elapsed    time.Duration `json:"elapsed"`
	Checksum   uint64        `json:"checksum"`
}

// ForkResult is the per-fork benchmark result.
type ForkResult struct {
	Fork      int            `json:"fork"`
	Status    ForkStatus     `json:"status"`
	Threads   []ThreadResult `json:"threads,omitempty"`
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
	Err       error          `json:"-"`
	Error     string         `json:"error,omitempty"`
	ErrorKind string         `json:"error_kind,omitempty"`
}

// Completed reports whether the fork finished measurement.
func (r ForkResult) Completed() bool { return r.Status == ForkCompleted }

// Operations returns the operations summed across threads.
func (r ForkResult) Operations() uint64 {
	var total uint64
	for _, t := range r.Threads {
		total += t.Operations
	}
	return total
}

// Elapsed returns the longest thread window, the fork's wall-clock denominator.
func (r ForkResult) Elapsed() time.Duration {
	var longest time.Duration
	for _, t := range r.Threads {
		longest = max(longest, t.Elapsed)
	}
	return longest
}

func (r *ForkResult) fail(status ForkStatus, err error) {
	r.Status = status
	r.Err = err
	r.Error = err.Error()
	r.ErrorKind = ErrorKind(err)
}

// EncodeForkResult serializes r for transport across a process boundary.
func EncodeForkResult(r ForkResult) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, goerrors.Wrap(err, ErrCodeResultInconsistent, "failed to encode fork result")
	}
	return data, nil
}

// DecodeForkResult is the inverse of EncodeForkResult. The decoded Err wraps the
// sentinel named by ErrorKind.
func DecodeForkResult(data []byte) (ForkResult, error) {
	var r ForkResult
	if err := json.Unmarshal(data, &r); err != nil {
		return ForkResult{}, goerrors.Wrap(err, ErrCodeResultInconsistent, "failed to decode fork result")
	}
	switch r.Status {
	case ForkCompleted, ForkSetupFailed, ForkTimedOut, ForkFailed:
	default:
		return ForkResult{}, goerrors.New(ErrCodeResultInconsistent, fmt.Sprintf("unknown fork status %q", r.Status))
	}
	r.Err = errorFromKind(r.ErrorKind, r.Error)
	return r, nil
}

// ForkExecutor runs one fork of a benchmark. The runner's in-process
// execution is the default; a subprocess executor gives real process isolation.
type ForkExecutor interface {
	ExecuteFork(ctx context.Context, b Benchmark, cfg RunConfig, fork int) ForkResult
}

// Runner drives benchmarks fork by fork.
type Runner struct {
	cfg        RunConfig
	registry   *ProviderRegistry
	logger     *slog.Logger
	tracer     trace.Tracer
	executor   ForkExecutor
	aggregator *ThroughputAggregator
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// WithRegistry sets the provider registry (DefaultRegistry otherwise).
func WithRegistry(reg *ProviderRegistry) RunnerOption {
	return func(r *Runner) { r.registry = reg }
}

// WithForkExecutor replaces in-process fork execution.
func WithForkExecutor(e ForkExecutor) RunnerOption {
	return func(r *Runner) { r.executor = e }
}

// WithTracerProvider sets the OpenTelemetry tracer provider (the global one otherwise).
func WithTracerProvider(tp trace.TracerProvider) RunnerOption {
	return func(r *Runner) { r.tracer = tp.Tracer(tracerName) }
}

// WithConfidence sets the confidence level of the reported interval.
func WithConfidence(level float64) RunnerOption {
	return func(r *Runner) { r.aggregator = NewThroughputAggregator(level) }
}

// NewRunner validates cfg and returns a runner.
func NewRunner(cfg RunConfig, opts ...RunnerOption) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Runner{
		cfg:        cfg,
		registry:   DefaultRegistry(),
		logger:     slog.Default(),
		tracer:     otel.Tracer(tracerName),
		aggregator: NewThroughputAggregator(DefaultConfidence),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.executor == nil {
		r.executor = r
	}
	return r, nil
}

// Config returns the run configuration.
func (r *Runner) Config() RunConfig { return r.cfg }

// Run executes every fork of b sequentially and aggregates the completed ones.
//
// Forks that fail setup or time out are excluded from aggregation. An operation
// or concurrency failure aborts the run; the partial report is returned with
// the error. If every fork failed setup the error wraps ErrAllForksFailed.
func (r *Runner) Run(ctx context.Context, b Benchmark) (*Report, error) {
	if b.Name == "" || b.Bind == nil {
		return nil, newError(ErrInvalidConfig, ErrCodeInvalidConfig, "benchmark needs a name and a bind function")
	}

	report := &Report{
		RunID:     uuid.NewString(),
		Benchmark: b.Name,
		Config:    r.cfg,
		StartedAt: timecache.CachedTime().UTC(),
	}
	logger := r.logger.With(slog.String("benchmark", b.Name), slog.String("run_id", report.RunID))
	logger.Info("benchmark started",
		slog.Int("forks", r.cfg.Forks),
		slog.Int("threads", r.cfg.Threads),
		slog.Int("warmup", r.cfg.Warmup),
		slog.Int("measurement", r.cfg.Measurement),
	)
	began := time.Now()
	defer func() { report.Duration = time.Since(began) }()

	var lastSetupErr error
	for fork := 1; fork <= r.cfg.Forks; fork++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		res := r.executor.ExecuteFork(ctx, b, r.cfg, fork)
		report.Forks = append(report.Forks, res)

		switch res.Status {
		case ForkCompleted:
			logger.Info("fork completed",
				slog.Int("fork", fork),
				slog.Uint64("operations", res.Operations()),
				slog.Duration("elapsed", res.Elapsed()),
			)
		case ForkSetupFailed:
			lastSetupErr = res.Err
			logger.Warn("fork setup failed", slog.Int("fork", fork), slog.String("error", res.Error))
		case ForkTimedOut:
			logger.Warn("fork timed out, results discarded", slog.Int("fork", fork), slog.Duration("timeout", r.cfg.ForkTimeout))
		default:
			logger.Error("run aborted", slog.Int("fork", fork), slog.String("kind", res.ErrorKind), slog.String("error", res.Error))
			return report, res.Err
		}
	}

	if report.SetupFailures() == len(report.Forks) {
		return report, wrapError(ErrAllForksFailed, lastSetupErr, ErrCodeSetup, fmt.Sprintf("all %d forks failed setup", len(report.Forks)))
	}

	stats, err := r.aggregator.Record(report.Forks)
	if err != nil {
		return report, err
	}
	report.Stats = &stats
	logger.Info("benchmark finished",
		slog.Float64("ops_per_sec", stats.OpsPerSec),
		slog.Float64("stddev", stats.StdDev),
		slog.Int("forks", stats.Forks),
	)
	return report, nil
}

// ExecuteFork runs one fork in the current process. It implements ForkExecutor.
func (r *Runner) ExecuteFork(ctx context.Context, b Benchmark, cfg RunConfig, fork int) ForkResult {
	return r.runFork(ctx, b, cfg, fork)
}

// RunFork runs one fork of b in the current process with the runner's configuration.
func (r *Runner) RunFork(ctx context.Context, b Benchmark, fork int) ForkResult {
	return r.runFork(ctx, b, r.cfg, fork)
}

func (r *Runner) runFork(ctx context.Context, b Benchmark, cfg RunConfig, fork int) (res ForkResult) {
	res = ForkResult{Fork: fork, StartedAt: timecache.CachedTime().UTC()}
	began := time.Now()
	logger := r.logger.With(slog.String("benchmark", b.Name), slog.Int("fork", fork))

	ctx, span := r.tracer.Start(ctx, "cryptobench.fork", trace.WithAttributes(
		attribute.String("benchmark", b.Name),
		attribute.Int("fork", fork),
		attribute.Int("threads", cfg.Threads),
	))
	defer func() {
		res.Duration = time.Since(began)
		span.SetAttributes(attribute.String("status", string(res.Status)))
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.ErrorKind)
		}
		span.End()
	}()

	forkCtx := ctx
	if cfg.ForkTimeout > 0 {
		var cancel context.CancelFunc
		forkCtx, cancel = context.WithTimeoutCause(ctx, cfg.ForkTimeout, ErrForkTimeout)
		defer cancel()
	}

	state := NewBenchmarkState(b.State, r.registry, logger)
	defer r.teardown(ctx, state, logger)

	if err := r.setup(forkCtx, state); err != nil {
		res.fail(ForkSetupFailed, err)
		return res
	}
	if timedOut(forkCtx) {
		res.fail(ForkTimedOut, newError(ErrForkTimeout, ErrCodeTimeout, "fork exceeded its time limit during setup"))
		return res
	}

	workload, err := bind(b, state)
	if err != nil {
		res.fail(ForkSetupFailed, err)
		return res
	}

	if cfg.Threads > 1 && !state.ConcurrentSafe() {
		res.fail(ForkFailed, newError(ErrConcurrencyUnsafe, ErrCodeConcurrency, fmt.Sprintf("provider declares its primitives unsafe for %d concurrent threads", cfg.Threads)))
		return res
	}

	_, measureSpan := r.tracer.Start(ctx, "measure")
	threads, err := measure(forkCtx, workload, cfg)
	measureSpan.End()

	if timedOut(forkCtx) {
		res.fail(ForkTimedOut, newError(ErrForkTimeout, ErrCodeTimeout, fmt.Sprintf("fork exceeded %s", cfg.ForkTimeout)))
		return res
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		res.fail(ForkFailed, goerrors.Wrap(ctxErr, ErrCodeTimeout, "fork cancelled"))
		return res
	}
	if err != nil {
		res.fail(ForkFailed, classify(err, workload, cfg.Threads))
		return res
	}
	if !state.FixturesIntact() {
		sentinel, code := ErrOperation, goerrors.ErrorCode(ErrCodeOperation)
		if cfg.Threads > 1 {
			sentinel, code = ErrConcurrencyUnsafe, ErrCodeConcurrency
		}
		res.fail(ForkFailed, newError(sentinel, code, "shared fixtures changed during measurement"))
		return res
	}
	for _, t := range threads {
		if t.Operations != uint64(cfg.Measurement) {
			res.fail(ForkFailed, newError(ErrOperation, ErrCodeResultInconsistent,
				fmt.Sprintf("thread %d consumed %d results, expected %d", t.Thread, t.Operations, cfg.Measurement)))
			return res
		}
	}

	res.Status = ForkCompleted
	res.Threads = threads
	return res
}

func (r *Runner) setup(ctx context.Context, state *BenchmarkState) error {
	ctx, span := r.tracer.Start(ctx, "setup")
	defer span.End()

	if err := state.Setup(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "setup failed")
		return err
	}
	return nil
}

// teardown never fails the fork: results are already captured.
func (r *Runner) teardown(ctx context.Context, state *BenchmarkState, logger *slog.Logger) {
	_, span := r.tracer.Start(ctx, "teardown")
	defer span.End()

	if err := state.Teardown(); err != nil {
		span.RecordError(err)
		logger.Warn("teardown failed", slog.String("error", err.Error()))
	}
}

func bind(b Benchmark, state *BenchmarkState) (Workload, error) {
	w, err := b.Bind(state)
	if err != nil {
		if errors.Is(err, ErrSetup) {
			return Workload{}, err
		}
		return Workload{}, wrapError(ErrSetup, err, ErrCodeSetup, "failed to bind workload")
	}
	if w.Op == nil {
		return Workload{}, newError(ErrSetup, ErrCodeSetup, "workload has no operation")
	}
	if w.Check != nil {
		if err := w.Check(); err != nil {
			return Workload{}, wrapError(ErrSetup, err, ErrCodeSetup, "workload check failed before measurement")
		}
	}
	return w, nil
}

func timedOut(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), ErrForkTimeout)
}

// classify turns a worker failure into an operation or concurrency error. A
// failure seen with several threads is re-checked single-threaded after join:
// if the primitive behaves alone, the failure came from concurrent access.
func classify(err error, w Workload, threads int) error {
	if errors.Is(err, ErrConcurrencyUnsafe) || threads == 1 || w.Check == nil {
		return err
	}
	if checkErr := w.Check(); checkErr != nil {
		return err
	}
	return wrapError(ErrConcurrencyUnsafe, err, ErrCodeConcurrency,
		fmt.Sprintf("operation failed under %d threads but succeeds single-threaded", threads))
}

// errAbandoned stops a worker whose fork was abandoned; its result is discarded.
var errAbandoned = errors.New("cryptobench: worker abandoned")

// measure runs cfg.Threads workers against w. Workers start together after a
// barrier; each runs its warm-up into its own sink, resets it, then runs the
// measured iterations into it, timing only the measured loop.
func measure(ctx context.Context, w Workload, cfg RunConfig) ([]ThreadResult, error) {
	results := make([]ThreadResult, cfg.Threads)

	var (
		abandon   atomic.Bool
		firstErr  error
		firstOnce sync.Once
	)
	fail := func(err error) error {
		firstOnce.Do(func() { firstErr = err })
		abandon.Store(true)
		return err
	}
	stop := context.AfterFunc(ctx, func() { abandon.Store(true) })
	defer stop()

	start := make(chan struct{})
	var g errgroup.Group
	for t := range cfg.Threads {
		g.Go(func() (err error) {
			defer func() {
				if p := recover(); p != nil {
					err = fail(newError(ErrOperation, ErrCodeOperation, fmt.Sprintf("thread %d panicked: %v", t+1, p)))
				}
			}()
			<-start

			bh := NewBlackhole()
			for i := range cfg.Warmup {
				if abandon.Load() {
					return errAbandoned
				}
				if err := w.Op(bh); err != nil {
					return fail(wrapError(ErrOperation, err, ErrCodeOperation, fmt.Sprintf("thread %d warm-up iteration %d", t+1, i+1)))
				}
			}
			bh.Flush()
			bh.Reset()

			begin := time.Now()
			for i := range cfg.Measurement {
				if abandon.Load() {
					return errAbandoned
				}
				if err := w.Op(bh); err != nil {
					return fail(wrapError(ErrOperation, err, ErrCodeOperation, fmt.Sprintf("thread %d iteration %d", t+1, i+1)))
				}
			}
			elapsed := time.Since(begin)
			bh.Flush()

			if w.Check != nil {
				if err := w.Check(); err != nil {
					return fail(wrapError(ErrOperation, err, ErrCodeOperation, fmt.Sprintf("thread %d result check", t+1)))
				}
			}

			results[t] = ThreadResult{
				Thread:     t + 1,
				Operations: bh.Count(),
				Elapsed:    elapsed,
				Checksum:   bh.Checksum(),
			}
			return nil
		})
	}
	close(start)

	if err := g.Wait(); firstErr == nil && err != nil {
		firstErr = err
	}
	return results, firstErr
}
