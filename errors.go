// errors.go: Error taxonomy for the benchmark harness.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package cryptobench

import (
	"errors"
	"fmt"
	"strings"

	goerrors "github.com/agilira/go-errors"
)

// Public sentinel errors. Every error returned by this package wraps exactly one
// of these, so callers can classify failures with errors.Is.
var (
	// ErrAlreadyInstalled is returned when a provider with the same name is already registered.
	ErrAlreadyInstalled = errors.New("cryptobench: provider already installed")

	// ErrNotInstalled is returned when uninstalling a handle that was already removed.
	ErrNotInstalled = errors.New("cryptobench: provider not installed")

	// ErrUnsupportedAlgorithm is returned for an algorithm identifier no installed provider serves.
	ErrUnsupportedAlgorithm = errors.New("cryptobench: unsupported algorithm")

	// ErrCapabilityMissing is returned when a provider lacks the capability a benchmark needs.
	ErrCapabilityMissing = errors.New("cryptobench: provider capability missing")

	// ErrInvalidCount is returned when a keyset is requested with fewer than one entry.
	ErrInvalidCount = errors.New("cryptobench: invalid key count")

	// ErrInvalidPrimary is returned when a keyset does not have exactly one primary entry.
	ErrInvalidPrimary = errors.New("cryptobench: keyset must have exactly one primary entry")

	// ErrDuplicateKeyID is returned when two entries of a keyset share an id.
	ErrDuplicateKeyID = errors.New("cryptobench: duplicate key id")

	// ErrNoPublicKey is returned when a public view is requested for symmetric key material.
	ErrNoPublicKey = errors.New("cryptobench: key material has no public part")

	// ErrKeyMaterial is returned when a provider is handed key material it did not create.
	ErrKeyMaterial = errors.New("cryptobench: foreign key material")

	// ErrInvalidFixtureSize is returned for negative fixture sizes.
	ErrInvalidFixtureSize = errors.New("cryptobench: invalid fixture size")

	// ErrInvalidConfig is returned when a run or suite configuration fails validation.
	ErrInvalidConfig = errors.New("cryptobench: invalid configuration")

	// ErrInvalidPhase is returned when a state transition is attempted from the wrong phase.
	ErrInvalidPhase = errors.New("cryptobench: invalid state phase")

	// ErrStateNotReady is returned when state fields are read outside the READY phase.
	ErrStateNotReady = errors.New("cryptobench: benchmark state not ready")

	// ErrSetup is returned when provider installation, keyset or fixture generation fails.
	// A fork failing setup reports zero throughput and is excluded from aggregation.
	ErrSetup = errors.New("cryptobench: setup failed")

	// ErrOperation is returned when the primitive under test fails during measurement.
	// Fixtures are self-consistent, so this always indicates a harness bug.
	ErrOperation = errors.New("cryptobench: operation failed")

	// ErrConcurrencyUnsafe is returned when corruption under concurrent access is detected.
	ErrConcurrencyUnsafe = errors.New("cryptobench: primitive is not safe for concurrent use")

	// ErrTeardown is returned when uninstalling a provider or releasing a keyset fails.
	// It is logged and never fails a run whose results were already captured.
	ErrTeardown = errors.New("cryptobench: teardown failed")

	// ErrForkTimeout is returned when a fork exceeds its maximum duration.
	ErrForkTimeout = errors.New("cryptobench: fork timed out")

	// ErrInsufficientSamples is returned when no complete fork/thread pair reported a result.
	ErrInsufficientSamples = errors.New("cryptobench: insufficient samples")

	// ErrAllForksFailed is returned when every fork of a benchmark failed setup.
	ErrAllForksFailed = errors.New("cryptobench: every fork failed setup")

	// ErrAuthentication is returned by AEAD decryption on tag or associated-data mismatch.
	ErrAuthentication = errors.New("cryptobench: authentication failed")

	// ErrValidation is returned by token verification on signature or policy failure.
	ErrValidation = errors.New("cryptobench: token validation failed")
)

// Error codes for rich error handling
const (
	ErrCodeAlreadyInstalled   = "BENCH_PROVIDER_ALREADY_INSTALLED"
	ErrCodeNotInstalled       = "BENCH_PROVIDER_NOT_INSTALLED"
	ErrCodeProviderInit       = "BENCH_PROVIDER_INIT"
	ErrCodeProviderClose      = "BENCH_PROVIDER_CLOSE"
	ErrCodeUnsupportedAlg     = "BENCH_UNSUPPORTED_ALGORITHM"
	ErrCodeCapability         = "BENCH_CAPABILITY_MISSING"
	ErrCodeInvalidCount       = "BENCH_INVALID_COUNT"
	ErrCodeInvalidPrimary     = "BENCH_INVALID_PRIMARY"
	ErrCodeDuplicateKeyID     = "BENCH_DUPLICATE_KEY_ID"
	ErrCodeKeyGeneration      = "BENCH_KEY_GENERATION"
	ErrCodeKeyMaterial        = "BENCH_KEY_MATERIAL"
	ErrCodeFixture            = "BENCH_FIXTURE"
	ErrCodeInvalidConfig      = "BENCH_INVALID_CONFIG"
	ErrCodeInvalidPhase       = "BENCH_INVALID_PHASE"
	ErrCodeSetup              = "BENCH_SETUP"
	ErrCodeOperation          = "BENCH_OPERATION"
	ErrCodeConcurrency        = "BENCH_CONCURRENCY_UNSAFE"
	ErrCodeTeardown           = "BENCH_TEARDOWN"
	ErrCodeTimeout            = "BENCH_FORK_TIMEOUT"
	ErrCodeInsufficient       = "BENCH_INSUFFICIENT_SAMPLES"
	ErrCodeAuthentication     = "BENCH_AUTHENTICATION"
	ErrCodeValidation         = "BENCH_VALIDATION"
	ErrCodeTokenEncoding      = "BENCH_TOKEN_ENCODING"
	ErrCodeResultInconsistent = "BENCH_RESULT_INCONSISTENT"
)

// newError builds a rich error with a code and joins it to its sentinel.
func newError(sentinel error, code goerrors.ErrorCode, msg string) error {
	return fmt.Errorf("%w: %w", sentinel, goerrors.New(code, msg))
}

// wrapError joins a coded error to its sentinel and keeps cause reachable
// through errors.Is.
func wrapError(sentinel error, cause error, code goerrors.ErrorCode, msg string) error {
	return fmt.Errorf("%w: %w: %w", sentinel, goerrors.New(code, msg), cause)
}

// errorKinds maps the phase-level sentinels to the stable names used in
// machine-readable fork results.
var errorKinds = []struct {
	kind     string
	sentinel error
}{
	{"concurrency_unsafe", ErrConcurrencyUnsafe},
	{"setup", ErrSetup},
	{"operation", ErrOperation},
	{"timeout", ErrForkTimeout},
	{"teardown", ErrTeardown},
	{"invalid_config", ErrInvalidConfig},
}

// ErrorKind returns the stable kind name for err, or "internal" if err does not
// wrap one of the phase-level sentinels.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.sentinel) {
			return k.kind
		}
	}
	return "internal"
}

// errorFromKind rebuilds an error decoded from a machine-readable fork result.
func errorFromKind(kind, msg string) error {
	if kind == "" {
		return nil
	}
	for _, k := range errorKinds {
		if k.kind == kind {
			return fmt.Errorf("%w: %s", k.sentinel, strings.TrimPrefix(msg, k.sentinel.Error()+": "))
		}
	}
	return errors.New(msg)
}
