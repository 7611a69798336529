// backend_xcrypto.go: Provider backed by golang.org/x/crypto (ChaCha20-Poly1305 and XChaCha20-Poly1305).
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package cryptobench

import (
	"crypto/cipher"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// XCryptoProviderName is the registry name of the x/crypto provider.
const XCryptoProviderName = "xcrypto"

// XCryptoProvider implements the ChaCha20-Poly1305 AEAD family.
type XCryptoProvider struct{}

// NewXCryptoProvider returns the x/crypto provider.
func NewXCryptoProvider() *XCryptoProvider { return &XCryptoProvider{} }

// Name returns the registry name of the provider
func (p *XCryptoProvider) Name() string { return XCryptoProviderName }

// Capabilities reports AEAD only
func (p *XCryptoProvider) Capabilities() []Capability { return []Capability{CapabilityAEAD} }

// Algorithms lists ChaCha20-Poly1305 and XChaCha20-Poly1305
func (p *XCryptoProvider) Algorithms() []string {
	return []string{AlgorithmChaCha20Poly1305, AlgorithmXChaCha20Poly1305}
}

// GenerateKey returns a random chacha20poly1305.KeySize key for algorithm
func (p *XCryptoProvider) GenerateKey(algorithm string) (KeyMaterial, error) {
	switch algorithm {
	case AlgorithmChaCha20Poly1305, AlgorithmXChaCha20Poly1305:
		return newSymmetricKey(XCryptoProviderName, algorithm, chacha20poly1305.KeySize)
	default:
		return nil, newError(ErrUnsupportedAlgorithm, ErrCodeUnsupportedAlg, fmt.Sprintf("%s does not support %q", XCryptoProviderName, algorithm))
	}
}

// NewAEAD returns a keyset AEAD over x/crypto's chacha20poly1305. The nonce
// size follows the algorithm: 12 bytes for ChaCha20, 24 for XChaCha20.
func (p *XCryptoProvider) NewAEAD(ks *Keyset) (AEAD, error) {
	return newKeysetAEAD(XCryptoProviderName, ks, newChaCha)
}

func newChaCha(algorithm string, key []byte) (cipher.AEAD, error) {
	if algorithm == AlgorithmXChaCha20Poly1305 {
		return chacha20poly1305.NewX(key)
	}
	return chacha20poly1305.New(key)
}
