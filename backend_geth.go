// backend_geth.go: Provider backed by go-ethereum's secp256k1 implementation (ES256K tokens).
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package cryptobench

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"fmt"

	goerrors "github.com/agilira/go-errors"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-jose/go-jose/v4"
)

// GethProviderName is the registry name of the secp256k1 provider.
const GethProviderName = "geth"

// GethProvider signs and verifies ES256K tokens.
type GethProvider struct{}

// NewGethProvider returns the secp256k1 provider.
func NewGethProvider() *GethProvider { return &GethProvider{} }

// Name returns the registry name of the provider
func (p *GethProvider) Name() string { return GethProviderName }

// Capabilities reports signing and verification
func (p *GethProvider) Capabilities() []Capability {
	return []Capability{CapabilitySign, CapabilityVerify}
}

// Algorithms lists ES256K
func (p *GethProvider) Algorithms() []string { return []string{AlgorithmJWTES256K} }

// GenerateKey creates a secp256k1 key pair with go-ethereum's crypto package.
//
// Parameters:
//   - algorithm: must be AlgorithmJWTES256K
//
// Returns:
//   - Key material holding the private key and its uncompressed public key
//   - ErrUnsupportedAlgorithm for any other algorithm
func (p *GethProvider) GenerateKey(algorithm string) (KeyMaterial, error) {
	if algorithm != AlgorithmJWTES256K {
		return nil, newError(ErrUnsupportedAlgorithm, ErrCodeUnsupportedAlg, fmt.Sprintf("%s does not support %q", GethProviderName, algorithm))
	}
	priv, err := crypto.GenerateKey()
	if err != nil {
		return nil, goerrors.Wrap(err, ErrCodeKeyGeneration, "failed to generate secp256k1 key")
	}
	return &secp256k1Key{private: priv, public: crypto.FromECDSAPub(&priv.PublicKey)}, nil
}

// NewSigner returns an ES256K token signer over the primary key of ks
func (p *GethProvider) NewSigner(ks *Keyset) (Signer, error) {
	return newJWSSigner(es256kScheme, ks)
}

// NewVerifier returns an ES256K token verifier accepting every key of the public keyset ks
func (p *GethProvider) NewVerifier(ks *Keyset) (Verifier, error) {
	return newJWSVerifier(es256kScheme, ks)
}

// secp256k1Key holds an uncompressed public key and, for private material, the
// signing key.
type secp256k1Key struct {
	private *ecdsa.PrivateKey
	public  []byte
}

func (k *secp256k1Key) Algorithm() string { return AlgorithmJWTES256K }

func (k *secp256k1Key) Public() (KeyMaterial, error) {
	return &secp256k1Key{public: k.public}, nil
}

func (k *secp256k1Key) Fingerprint() string { return Fingerprint(k.public) }

func (k *secp256k1Key) Destroy() {
	if k.private != nil && k.private.D != nil {
		k.private.D.SetInt64(0)
	}
}

// es256kAlgorithm is the RFC 8812 name; go-jose only reaches it through
// opaque signers.
const es256kAlgorithm = jose.SignatureAlgorithm("ES256K")

var es256kScheme = &jwsScheme{
	alg: es256kAlgorithm,
	signingKey: func(key KeyMaterial) (any, bool) {
		k, ok := key.(*secp256k1Key)
		if !ok || len(k.public) == 0 || k.private == nil {
			return nil, false
		}
		return &es256kSigner{key: k}, true
	},
	verificationKey: func(key KeyMaterial) (any, bool) {
		k, ok := key.(*secp256k1Key)
		if !ok || len(k.public) == 0 {
			return nil, false
		}
		return &es256kVerifier{public: k.public}, true
	},
}

// es256kSigner implements jose.OpaqueSigner over go-ethereum. JWS carries the
// 64-byte r||s form without the recovery id go-ethereum appends.
type es256kSigner struct {
	key *secp256k1Key
}

// Public returns nil: go-jose has no JWK form for secp256k1, and the key id
// travels in the kid header instead.
func (s *es256kSigner) Public() *jose.JSONWebKey { return nil }

// Algs reports ES256K only
func (s *es256kSigner) Algs() []jose.SignatureAlgorithm {
	return []jose.SignatureAlgorithm{es256kAlgorithm}
}

// SignPayload signs the SHA-256 digest of payload
func (s *es256kSigner) SignPayload(payload []byte, alg jose.SignatureAlgorithm) ([]byte, error) {
	if alg != es256kAlgorithm {
		return nil, jose.ErrUnsupportedAlgorithm
	}
	digest := sha256.Sum256(payload)
	sig, err := crypto.Sign(digest[:], s.key.private)
	if err != nil {
		return nil, err
	}
	return sig[:64], nil
}

// es256kVerifier implements jose.OpaqueVerifier over go-ethereum.
type es256kVerifier struct {
	public []byte
}

// VerifyPayload checks a 64-byte r||s signature over the SHA-256 digest of payload
func (v *es256kVerifier) VerifyPayload(payload, signature []byte, alg jose.SignatureAlgorithm) error {
	if alg != es256kAlgorithm {
		return jose.ErrUnsupportedAlgorithm
	}
	if len(signature) != 64 {
		return jose.ErrCryptoFailure
	}
	digest := sha256.Sum256(payload)
	if !crypto.VerifySignature(v.public, digest[:], signature) {
		return jose.ErrCryptoFailure
	}
	return nil
}
