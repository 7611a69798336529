// Package cryptobench measures the throughput of interchangeable cryptographic
// backends performing AEAD encryption and token verification.
//
// The package provides:
//   - A process-wide provider registry with explicit install and uninstall
//   - Keysets with exactly one primary entry and standalone single-key views
//   - Fixture generation with eagerly precomputed ciphertexts and tokens
//   - A scoped benchmark state whose setup is atomic and whose teardown runs once
//   - A runner driving forks, warm-up and measurement across worker goroutines
//   - A result sink that keeps every measured result observable
//   - Throughput aggregation with confidence bounds
//
// Bundled providers wrap Tink, the Go standard library, golang.org/x/crypto
// and go-ethereum's secp256k1 implementation.
//
// # Quick Start
//
// Running one benchmark with the reference configuration:
//
//	suite := cryptobench.DefaultSuite()
//	b, err := cryptobench.FindBenchmark(suite, "aead/stdlib/AEAD-256/encrypt")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	runner, err := cryptobench.NewRunner(cryptobench.ReferenceRunConfig())
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	report, err := runner.Run(ctx, b)
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Printf("%.0f ops/s\n", report.Stats.OpsPerSec)
//
// # Lifecycle
//
// Every fork builds a fresh BenchmarkState. Setup installs the provider,
// generates the keyset and the fixtures under the registry's transition lock;
// if any step fails the completed ones are rolled back and the fork reports
// ErrSetup without spawning workers. Workers start together once setup is
// done and teardown only begins after every worker has joined.
//
// # Errors
//
// All errors wrap one of the exported sentinels and can be classified with
// errors.Is. ErrOperation and ErrConcurrencyUnsafe abort a run. ErrSetup and
// ErrForkTimeout exclude the fork from aggregation. ErrTeardown is logged only.
// Nothing is retried.
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra library
// SPDX-License-Identifier: MPL-2.0
package cryptobench
