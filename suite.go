// suite.go: Benchmark catalog (AEAD encrypt/decrypt and per-key token verification).
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package cryptobench

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// TokenKeyCount is the keyset size of token verification benchmarks.
const TokenKeyCount = 5

// ProviderFactories returns a factory for every bundled provider, by name.
func ProviderFactories() map[string]ProviderFactory {
	return map[string]ProviderFactory{
		TinkProviderName:    func() (Provider, error) { return NewTinkProvider(), nil },
		StdlibProviderName:  func() (Provider, error) { return NewStdlibProvider(), nil },
		XCryptoProviderName: func() (Provider, error) { return NewXCryptoProvider(), nil },
		GethProviderName:    func() (Provider, error) { return NewGethProvider(), nil },
	}
}

// AEADBenchmarks returns the encrypt and decrypt variants of algorithm on one provider.
func AEADBenchmarks(provider string, factory ProviderFactory, algorithm string, sizes FixtureSizes) []Benchmark {
	state := StateConfig{
		Provider:     factory,
		Algorithm:    algorithm,
		Capability:   CapabilityAEAD,
		KeyCount:     1,
		PrimaryIndex: 0,
		Sizes:        sizes,
	}
	prefix := fmt.Sprintf("aead/%s/%s", provider, algorithm)
	return []Benchmark{
		{
			Name:        prefix + "/encrypt",
			Description: fmt.Sprintf("%s encrypt of %d bytes with %d bytes of associated data", algorithm, sizes.Plaintext, sizes.AssociatedData),
			State:       state,
			Bind:        bindEncrypt,
		},
		{
			Name:        prefix + "/decrypt",
			Description: fmt.Sprintf("%s decrypt of a precomputed %d-byte ciphertext", algorithm, sizes.Plaintext),
			State:       state,
			Bind:        bindDecrypt,
		},
	}
}

func aeadInputs(s *BenchmarkState) (AEAD, *AEADFixture, error) {
	a, err := s.AEAD()
	if err != nil {
		return nil, nil, err
	}
	f, err := s.AEADFixture()
	if err != nil {
		return nil, nil, err
	}
	return a, f, nil
}

func bindEncrypt(s *BenchmarkState) (Workload, error) {
	a, f, err := aeadInputs(s)
	if err != nil {
		return Workload{}, err
	}
	return Workload{
		Op: func(bh *Blackhole) error {
			ct, err := a.Encrypt(f.Plaintext, f.AssociatedData)
			if err != nil {
				return err
			}
			bh.ConsumeBytes(ct)
			return nil
		},
		Check: func() error {
			ct, err := a.Encrypt(f.Plaintext, f.AssociatedData)
			if err != nil {
				return err
			}
			return checkPlaintext(a, ct, f)
		},
	}, nil
}

func bindDecrypt(s *BenchmarkState) (Workload, error) {
	a, f, err := aeadInputs(s)
	if err != nil {
		return Workload{}, err
	}
	return Workload{
		Op: func(bh *Blackhole) error {
			pt, err := a.Decrypt(f.Ciphertext, f.AssociatedData)
			if err != nil {
				return err
			}
			bh.ConsumeBytes(pt)
			return nil
		},
		Check: func() error { return checkPlaintext(a, f.Ciphertext, f) },
	}, nil
}

func checkPlaintext(a AEAD, ct []byte, f *AEADFixture) error {
	pt, err := a.Decrypt(ct, f.AssociatedData)
	if err != nil {
		return err
	}
	if !bytes.Equal(pt, f.Plaintext) {
		return newError(ErrOperation, ErrCodeResultInconsistent, "decryption returned different plaintext")
	}
	return nil
}

// TokenBenchmarks returns one verify variant per key position of a keyset of
// keys entries (the first one primary), plus the rejection-path variant that
// verifies a token signed by an unrelated key.
func TokenBenchmarks(provider string, factory ProviderFactory, algorithm string, keys int) []Benchmark {
	state := StateConfig{
		Provider:       factory,
		Algorithm:      algorithm,
		Capability:     CapabilityVerify,
		KeyCount:       keys,
		PrimaryIndex:   0,
		Policy:         DefaultValidationPolicy(),
		UnrelatedToken: true,
	}
	prefix := fmt.Sprintf("jwt/%s/%s", provider, algorithm)

	benchmarks := make([]Benchmark, 0, keys+1)
	for i := range keys {
		benchmarks = append(benchmarks, Benchmark{
			Name:        fmt.Sprintf("%s/verify_key%d", prefix, i+1),
			Description: fmt.Sprintf("%s verify of a token signed by key %d of %d", algorithm, i+1, keys),
			State:       state,
			Bind:        bindVerify(i),
		})
	}
	return append(benchmarks, Benchmark{
		Name:        prefix + "/verify_rejected",
		Description: fmt.Sprintf("%s rejection of a token signed by a key outside the keyset", algorithm),
		State:       state,
		Bind:        bindVerifyRejected,
	})
}

func tokenInputs(s *BenchmarkState) (Verifier, *TokenFixture, error) {
	v, err := s.Verifier()
	if err != nil {
		return nil, nil, err
	}
	f, err := s.TokenFixture()
	if err != nil {
		return nil, nil, err
	}
	return v, f, nil
}

func bindVerify(index int) func(*BenchmarkState) (Workload, error) {
	return func(s *BenchmarkState) (Workload, error) {
		v, f, err := tokenInputs(s)
		if err != nil {
			return Workload{}, err
		}
		if index >= s.Config().KeyCount {
			return Workload{}, newError(ErrInvalidConfig, ErrCodeInvalidConfig, fmt.Sprintf("no token for key %d", index+1))
		}
		token, policy := f.Tokens[index], s.Policy()

		return Workload{
			Op: func(bh *Blackhole) error {
				claims, err := v.Verify(token, policy)
				if err != nil {
					return err
				}
				bh.ConsumeClaims(claims)
				return nil
			},
			Check: func() error {
				claims, err := v.Verify(token, policy)
				if err != nil {
					return err
				}
				if !sameClaims(claims, f.Claims) {
					return newError(ErrOperation, ErrCodeResultInconsistent, "verified claims differ from signed claims")
				}
				return nil
			},
		}, nil
	}
}

func bindVerifyRejected(s *BenchmarkState) (Workload, error) {
	v, f, err := tokenInputs(s)
	if err != nil {
		return Workload{}, err
	}
	if len(f.Tokens) <= s.Config().KeyCount {
		return Workload{}, newError(ErrInvalidConfig, ErrCodeInvalidConfig, "state has no unrelated token")
	}
	token, policy := f.Tokens[len(f.Tokens)-1], s.Policy()

	check := func(err error) error {
		switch {
		case err == nil:
			return newError(ErrOperation, ErrCodeResultInconsistent, "token signed by an unrelated key was accepted")
		case !errors.Is(err, ErrValidation):
			return err
		}
		return nil
	}
	return Workload{
		Op: func(bh *Blackhole) error {
			_, err := v.Verify(token, policy)
			if cerr := check(err); cerr != nil {
				return cerr
			}
			bh.ConsumeError(err)
			return nil
		},
		Check: func() error {
			_, err := v.Verify(token, policy)
			return check(err)
		},
	}, nil
}

// DefaultSuite returns the full catalog: AEAD variants for every provider and
// algorithm pair, and five-key token verification for every signature algorithm.
func DefaultSuite() []Benchmark {
	factories := ProviderFactories()
	sizes := DefaultFixtureSizes()

	var suite []Benchmark
	for _, pa := range []struct{ provider, algorithm string }{
		{TinkProviderName, AlgorithmAES256GCMSIV},
		{TinkProviderName, AlgorithmAES256GCM},
		{StdlibProviderName, AlgorithmAEAD256},
		{StdlibProviderName, AlgorithmAES256GCM},
		{XCryptoProviderName, AlgorithmChaCha20Poly1305},
		{XCryptoProviderName, AlgorithmXChaCha20Poly1305},
	} {
		suite = append(suite, AEADBenchmarks(pa.provider, factories[pa.provider], pa.algorithm, sizes)...)
	}
	for _, pa := range []struct{ provider, algorithm string }{
		{TinkProviderName, AlgorithmJWTPS256},
		{TinkProviderName, AlgorithmJWTES256},
		{StdlibProviderName, AlgorithmJWTEdDSA},
		{GethProviderName, AlgorithmJWTES256K},
	} {
		suite = append(suite, TokenBenchmarks(pa.provider, factories[pa.provider], pa.algorithm, TokenKeyCount)...)
	}
	return suite
}

// SelectBenchmarks returns the benchmarks whose name equals or contains one of
// include, in suite order. An empty include selects everything.
func SelectBenchmarks(suite []Benchmark, include []string) []Benchmark {
	if len(include) == 0 {
		return slices.Clone(suite)
	}
	var selected []Benchmark
	for _, b := range suite {
		if slices.ContainsFunc(include, func(pattern string) bool {
			pattern = strings.TrimSpace(pattern)
			return pattern != "" && strings.Contains(b.Name, pattern)
		}) {
			selected = append(selected, b)
		}
	}
	return selected
}

// FindBenchmark returns the benchmark named name.
func FindBenchmark(suite []Benchmark, name string) (Benchmark, error) {
	for _, b := range suite {
		if b.Name == name {
			return b, nil
		}
	}
	return Benchmark{}, newError(ErrInvalidConfig, ErrCodeInvalidConfig, fmt.Sprintf("unknown benchmark %q", name))
}
