// fixture.go: Benchmark input generation (random buffers, precomputed ciphertexts and tokens).
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package cryptobench

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	mrand "math/rand/v2"
	"sync"
)

// FixtureSizes fixes the shape of generated AEAD inputs.
type FixtureSizes struct {
	Plaintext      int `yaml:"plaintext" json:"plaintext"`
	AssociatedData int `yaml:"associated_data" json:"associated_data"`
}

// DefaultFixtureSizes returns 4096 bytes of plaintext and 128 bytes of associated data.
func DefaultFixtureSizes() FixtureSizes {
	return FixtureSizes{Plaintext: 4096, AssociatedData: 128}
}

// Validate rejects negative sizes.
func (s FixtureSizes) Validate() error {
	if s.Plaintext < 0 || s.AssociatedData < 0 {
		return newError(ErrInvalidFixtureSize, ErrCodeFixture, fmt.Sprintf("fixture sizes must be non-negative, got %d/%d", s.Plaintext, s.AssociatedData))
	}
	return nil
}

// Fixture is a read-only benchmark input. Digest covers every buffer so the
// runner can detect mutation during measurement.
type Fixture interface {
	Digest() [sha256.Size]byte
}

// AEADFixture holds the inputs of encrypt and decrypt benchmarks.
type AEADFixture struct {
	Plaintext      []byte
	AssociatedData []byte
	Ciphertext     []byte // Plaintext sealed once with the state's primitive
}

// Digest hashes all three buffers with length prefixes.
func (f *AEADFixture) Digest() [sha256.Size]byte {
	return digestBuffers(f.Plaintext, f.AssociatedData, f.Ciphertext)
}

// TokenFixture holds one signed token per keyset position.
type TokenFixture struct {
	Claims Claims
	Tokens []string // Tokens[i] is signed by the key at index i
}

// Digest hashes every token with length prefixes.
func (f *TokenFixture) Digest() [sha256.Size]byte {
	bufs := make([][]byte, len(f.Tokens))
	for i, t := range f.Tokens {
		bufs[i] = []byte(t)
	}
	return digestBuffers(bufs...)
}

func digestBuffers(bufs ...[]byte) [sha256.Size]byte {
	h := sha256.New()
	var n [8]byte
	for _, b := range bufs {
		binary.BigEndian.PutUint64(n[:], uint64(len(b)))
		h.Write(n[:])
		h.Write(b)
	}
	var sum [sha256.Size]byte
	h.Sum(sum[:0])
	return sum
}

// FixtureGenerator produces non-trivial benchmark inputs. The random source only
// has to be statistically unbiased, not secret; it is seeded from crypto/rand
// unless a seed is given.
type FixtureGenerator struct {
	mu  sync.Mutex
	rng *mrand.Rand
}

// NewFixtureGenerator returns a generator with a fresh random seed.
func NewFixtureGenerator() (*FixtureGenerator, error) {
	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, wrapError(ErrSetup, err, ErrCodeFixture, "failed to seed fixture generator")
	}
	return NewSeededFixtureGenerator(seed), nil
}

// NewSeededFixtureGenerator returns a generator producing a reproducible stream.
func NewSeededFixtureGenerator(seed [32]byte) *FixtureGenerator {
	return &FixtureGenerator{rng: mrand.New(mrand.NewChaCha8(seed))}
}

// Bytes returns n pseudo-random bytes.
func (g *FixtureGenerator) Bytes(n int) []byte {
	g.mu.Lock()
	defer g.mu.Unlock()

	b := make([]byte, n)
	for i := 0; i < n; i += 8 {
		var word [8]byte
		binary.LittleEndian.PutUint64(word[:], g.rng.Uint64())
		copy(b[i:], word[:])
	}
	return b
}

// GenerateAEAD builds an AEAD fixture and eagerly seals its ciphertext with
// aead, so decrypt benchmarks never pay for encryption in their measurement
// window. The ciphertext is opened once to check the fixture is self-consistent.
func (g *FixtureGenerator) GenerateAEAD(sizes FixtureSizes, aead AEAD) (*AEADFixture, error) {
	if err := sizes.Validate(); err != nil {
		return nil, err
	}

	f := &AEADFixture{
		Plaintext:      g.Bytes(sizes.Plaintext),
		AssociatedData: g.Bytes(sizes.AssociatedData),
	}

	ct, err := aead.Encrypt(f.Plaintext, f.AssociatedData)
	if err != nil {
		return nil, wrapError(ErrSetup, err, ErrCodeFixture, "failed to precompute ciphertext")
	}
	pt, err := aead.Decrypt(ct, f.AssociatedData)
	if err != nil {
		return nil, wrapError(ErrSetup, err, ErrCodeFixture, "precomputed ciphertext does not decrypt")
	}
	if !bytes.Equal(pt, f.Plaintext) {
		return nil, newError(ErrSetup, ErrCodeFixture, "precomputed ciphertext decrypts to different plaintext")
	}
	f.Ciphertext = ct
	return f, nil
}

// SignerFunc builds a signer for a keyset.
type SignerFunc func(ks *Keyset) (Signer, error)

// GenerateTokens signs claims once with every key of ks, each through its own
// standalone single-key view, so verify benchmarks can be indexed by key position.
func (g *FixtureGenerator) GenerateTokens(ks *Keyset, newSigner SignerFunc, claims Claims) (*TokenFixture, error) {
	f := &TokenFixture{Claims: claims, Tokens: make([]string, ks.Len())}
	for i := range ks.Len() {
		view, err := ks.Standalone(i)
		if err != nil {
			return nil, wrapError(ErrSetup, err, ErrCodeFixture, fmt.Sprintf("failed to extract key %d", i+1))
		}
		signer, err := newSigner(view)
		if err != nil {
			return nil, wrapError(ErrSetup, err, ErrCodeFixture, fmt.Sprintf("failed to build signer for key %d", i+1))
		}
		token, err := signer.Sign(claims)
		if err != nil {
			return nil, wrapError(ErrSetup, err, ErrCodeFixture, fmt.Sprintf("failed to sign token with key %d", i+1))
		}
		f.Tokens[i] = token
	}
	return f, nil
}
