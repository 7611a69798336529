// fakes_test.go: In-memory providers shared by the package tests.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package cryptobench

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

const fakeAlgorithm = "FAKE-AEAD"

// fakeKey is one-byte symmetric material.
type fakeKey struct {
	algorithm string
	value     byte
	destroyed atomic.Int32
}

func (k *fakeKey) Algorithm() string { return k.algorithm }

func (k *fakeKey) Public() (KeyMaterial, error) {
	return nil, newError(ErrNoPublicKey, ErrCodeKeyMaterial, "fake keys are symmetric")
}

func (k *fakeKey) Fingerprint() string { return Fingerprint([]byte{k.value}) }

func (k *fakeKey) Destroy() { k.destroyed.Add(1) }

// fakeAEAD xors the plaintext with the key and prefixes a one-byte tag over the
// associated data. It is only meant to be self-consistent.
type fakeAEAD struct {
	key byte
}

func aadTag(aad []byte) byte {
	var t byte = 0x5a
	for _, b := range aad {
		t = t*31 + b
	}
	return t
}

func (a *fakeAEAD) Encrypt(plaintext, associatedData []byte) ([]byte, error) {
	out := make([]byte, 1+len(plaintext))
	out[0] = aadTag(associatedData)
	for i, b := range plaintext {
		out[i+1] = b ^ a.key
	}
	return out, nil
}

func (a *fakeAEAD) Decrypt(ciphertext, associatedData []byte) ([]byte, error) {
	if len(ciphertext) < 1 || ciphertext[0] != aadTag(associatedData) {
		return nil, newError(ErrAuthentication, ErrCodeAuthentication, "fake tag mismatch")
	}
	out := make([]byte, len(ciphertext)-1)
	for i, b := range ciphertext[1:] {
		out[i] = b ^ a.key
	}
	return out, nil
}

// fakeProvider is a configurable AEAD provider that records its lifecycle.
type fakeProvider struct {
	name       string
	algorithms []string
	unsafe     bool

	initErr  error
	keyErr   error
	aeadErr  error
	closeErr error

	initialized atomic.Int32
	closed      atomic.Int32

	mu   sync.Mutex
	keys []*fakeKey
	next byte
}

func newFakeProvider(name string) *fakeProvider {
	return &fakeProvider{name: name, algorithms: []string{fakeAlgorithm}}
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Capabilities() []Capability { return []Capability{CapabilityAEAD} }

func (p *fakeProvider) Algorithms() []string { return p.algorithms }

func (p *fakeProvider) GenerateKey(algorithm string) (KeyMaterial, error) {
	if p.keyErr != nil {
		return nil, p.keyErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	k := &fakeKey{algorithm: algorithm, value: p.next}
	p.keys = append(p.keys, k)
	return k, nil
}

func (p *fakeProvider) NewAEAD(ks *Keyset) (AEAD, error) {
	if p.aeadErr != nil {
		return nil, p.aeadErr
	}
	k, ok := ks.Primary().Material.(*fakeKey)
	if !ok {
		return nil, newError(ErrKeyMaterial, ErrCodeKeyMaterial, "not a fake key")
	}
	return &fakeAEAD{key: k.value}, nil
}

func (p *fakeProvider) Initialize(context.Context) error {
	if p.initErr != nil {
		return p.initErr
	}
	p.initialized.Add(1)
	return nil
}

func (p *fakeProvider) Close() error {
	p.closed.Add(1)
	return p.closeErr
}

func (p *fakeProvider) ConcurrentSafe() bool { return !p.unsafe }

// generatedKeys returns every key the provider handed out.
func (p *fakeProvider) generatedKeys() []*fakeKey {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*fakeKey(nil), p.keys...)
}

func (p *fakeProvider) factory() ProviderFactory {
	return func() (Provider, error) { return p, nil }
}

// bareProvider generates keys but cannot build any primitive.
type bareProvider struct {
	name string
}

func (p *bareProvider) Name() string               { return p.name }
func (p *bareProvider) Capabilities() []Capability { return []Capability{CapabilityAEAD} }
func (p *bareProvider) Algorithms() []string       { return []string{fakeAlgorithm} }
func (p *bareProvider) GenerateKey(algorithm string) (KeyMaterial, error) {
	return &fakeKey{algorithm: algorithm, value: 1}, nil
}

var errInjected = errors.New("injected failure")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeEntries builds n fake entries with ids 1..n, the first one primary.
func fakeEntries(n int) []KeyEntry {
	entries := make([]KeyEntry, n)
	for i := range entries {
		entries[i] = KeyEntry{
			ID:       uint32(i + 1),
			Primary:  i == 0,
			Material: &fakeKey{algorithm: fakeAlgorithm, value: byte(i + 1)},
		}
	}
	return entries
}

// fakeBenchmark binds op to a fake AEAD state. The state is prepared by p.
func fakeBenchmark(p *fakeProvider, bind func(*BenchmarkState) (Workload, error)) Benchmark {
	return Benchmark{
		Name: fmt.Sprintf("aead/%s/%s/custom", p.name, fakeAlgorithm),
		State: StateConfig{
			Provider:   p.factory(),
			Algorithm:  fakeAlgorithm,
			Capability: CapabilityAEAD,
			KeyCount:   1,
			Sizes:      FixtureSizes{Plaintext: 64, AssociatedData: 16},
		},
		Bind: bind,
	}
}
