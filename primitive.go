// primitive.go: Capability surface consumed from cryptographic backends.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package cryptobench

import (
	"time"
)

// Algorithm identifiers understood by the bundled providers.
const (
	// AlgorithmAEAD256 is the generic 256-bit AEAD identifier, served as AES-256-GCM.
	AlgorithmAEAD256           = "AEAD-256"
	AlgorithmAES256GCM         = "AES256_GCM"
	AlgorithmAES256GCMSIV      = "AES256_GCM_SIV"
	AlgorithmChaCha20Poly1305  = "CHACHA20_POLY1305"
	AlgorithmXChaCha20Poly1305 = "XCHACHA20_POLY1305"

	AlgorithmJWTPS256  = "JWT_PS256_3072_F4"
	AlgorithmJWTES256  = "JWT_ES256"
	AlgorithmJWTES256K = "JWT_ES256K"
	AlgorithmJWTEdDSA  = "JWT_EDDSA"
)

// AEAD is authenticated encryption with associated data.
//
// Implementations must be safe for concurrent use: the runner calls the same
// instance from every worker of a fork.
type AEAD interface {
	// Encrypt seals plaintext and authenticates associatedData.
	Encrypt(plaintext, associatedData []byte) ([]byte, error)

	// Decrypt opens ciphertext. It fails with an error wrapping ErrAuthentication
	// if the tag or the associated data do not match.
	Decrypt(ciphertext, associatedData []byte) ([]byte, error)
}

// Signer produces compact signed tokens.
type Signer interface {
	Sign(claims Claims) (string, error)
}

// Verifier checks a token's signature and validates its claims against a policy.
// Failures wrap ErrValidation.
type Verifier interface {
	Verify(token string, policy ValidationPolicy) (Claims, error)
}

// Claims is the registered claim subset carried by benchmark tokens.
type Claims struct {
	TypeHeader string
	Issuer     string
	Subject    string
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// NewClaims returns the claims every benchmark token carries: typ "JWT", issuer
// "iss", subject "sub", issued at now and valid for ten hours.
func NewClaims(now time.Time) Claims {
	now = now.Truncate(time.Second)
	return Claims{
		TypeHeader: "JWT",
		Issuer:     "iss",
		Subject:    "sub",
		IssuedAt:   now,
		ExpiresAt:  now.Add(10 * time.Hour),
	}
}

// ValidationPolicy describes what a verifier must check beyond the signature.
// It is a comparable value so verifiers can cache compiled forms of it.
type ValidationPolicy struct {
	ExpectedTypeHeader    string
	ExpectedIssuer        string
	ExpectIssuedInThePast bool
	ClockSkew             time.Duration
}

// DefaultValidationPolicy expects typ "JWT", issuer "iss", an issue time in the
// past and allows one minute of clock skew.
func DefaultValidationPolicy() ValidationPolicy {
	return ValidationPolicy{
		ExpectedTypeHeader:    "JWT",
		ExpectedIssuer:        "iss",
		ExpectIssuedInThePast: true,
		ClockSkew:             60 * time.Second,
	}
}

// sameClaims reports whether two claim sets carry the same values at second precision.
func sameClaims(a, b Claims) bool {
	return a.TypeHeader == b.TypeHeader &&
		a.Issuer == b.Issuer &&
		a.Subject == b.Subject &&
		a.IssuedAt.Unix() == b.IssuedAt.Unix() &&
		a.ExpiresAt.Unix() == b.ExpiresAt.Unix()
}
