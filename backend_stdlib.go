// backend_stdlib.go: Provider backed by the Go standard library (AES-256-GCM and Ed25519).
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package cryptobench

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	goerrors "github.com/agilira/go-errors"
	"github.com/go-jose/go-jose/v4"
)

// StdlibProviderName is the registry name of the standard library provider.
const StdlibProviderName = "stdlib"

// StdlibProvider implements AES-256-GCM (also served as the generic AEAD-256
// identifier) and Ed25519 tokens.
type StdlibProvider struct{}

// NewStdlibProvider returns the standard library provider.
func NewStdlibProvider() *StdlibProvider { return &StdlibProvider{} }

// Name returns the registry name of the provider
func (p *StdlibProvider) Name() string { return StdlibProviderName }

// Capabilities reports AEAD, signing and verification
func (p *StdlibProvider) Capabilities() []Capability {
	return []Capability{CapabilityAEAD, CapabilitySign, CapabilityVerify}
}

// Algorithms lists the AES-GCM and Ed25519 algorithms the provider serves
func (p *StdlibProvider) Algorithms() []string {
	return []string{AlgorithmAEAD256, AlgorithmAES256GCM, AlgorithmJWTEdDSA}
}

// GenerateKey creates fresh key material for algorithm.
//
// Parameters:
//   - algorithm: AlgorithmAEAD256, AlgorithmAES256GCM or AlgorithmJWTEdDSA
//
// Returns:
//   - A 32-byte AES key or an Ed25519 key pair
//   - ErrUnsupportedAlgorithm for any other algorithm
//
// Example:
//
//	material, err := NewStdlibProvider().GenerateKey(AlgorithmAEAD256)
//	if err != nil {
//		return err
//	}
//	defer material.Destroy()
func (p *StdlibProvider) GenerateKey(algorithm string) (KeyMaterial, error) {
	switch algorithm {
	case AlgorithmAEAD256, AlgorithmAES256GCM:
		return newSymmetricKey(StdlibProviderName, algorithm, KeySize)
	case AlgorithmJWTEdDSA:
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, goerrors.Wrap(err, ErrCodeKeyGeneration, "failed to generate Ed25519 key")
		}
		return &ed25519Key{private: priv, public: pub}, nil
	default:
		return nil, newError(ErrUnsupportedAlgorithm, ErrCodeUnsupportedAlg, fmt.Sprintf("%s does not support %q", StdlibProviderName, algorithm))
	}
}

// NewAEAD returns an AES-256-GCM primitive over ks. Ciphertexts are prefixed
// with the primary key id, so any entry of ks can decrypt them.
func (p *StdlibProvider) NewAEAD(ks *Keyset) (AEAD, error) {
	return newKeysetAEAD(StdlibProviderName, ks, newGCM)
}

// NewSigner returns an EdDSA token signer over the primary key of ks
func (p *StdlibProvider) NewSigner(ks *Keyset) (Signer, error) {
	return newJWSSigner(ed25519Scheme, ks)
}

// NewVerifier returns an EdDSA token verifier accepting every key of the public keyset ks
func (p *StdlibProvider) NewVerifier(ks *Keyset) (Verifier, error) {
	return newJWSVerifier(ed25519Scheme, ks)
}

// newGCM builds the AES-256-GCM cipher for one key. The keyset AEAD keeps it for
// the keyset's lifetime so aes.NewCipher and cipher.NewGCM stay out of the
// measured loop.
func newGCM(_ string, key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, goerrors.New(ErrCodeKeyMaterial, fmt.Sprintf("invalid key size: must be 32 bytes for AES-256 (got %d)", len(key)))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM cipher: %w", err)
	}
	return gcm, nil
}

// ed25519Key is an Ed25519 key pair; the public view has no private half.
type ed25519Key struct {
	private ed25519.PrivateKey
	public  ed25519.PublicKey
}

func (k *ed25519Key) Algorithm() string { return AlgorithmJWTEdDSA }

func (k *ed25519Key) Public() (KeyMaterial, error) {
	return &ed25519Key{public: k.public}, nil
}

func (k *ed25519Key) Fingerprint() string { return Fingerprint(k.public) }

// Destroy zeroes the private half. Public views are left intact.
func (k *ed25519Key) Destroy() { Zeroize(k.private) }

var ed25519Scheme = &jwsScheme{
	alg: jose.EdDSA,
	signingKey: func(key KeyMaterial) (any, bool) {
		k, ok := key.(*ed25519Key)
		if !ok || len(k.private) != ed25519.PrivateKeySize {
			return nil, false
		}
		return k.private, true
	},
	verificationKey: func(key KeyMaterial) (any, bool) {
		k, ok := key.(*ed25519Key)
		if !ok || len(k.public) != ed25519.PublicKeySize {
			return nil, false
		}
		return k.public, true
	},
}
