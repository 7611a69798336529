// jws.go: Compact JWS tokens for raw-key signature providers, built on go-jose.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package cryptobench

import (
	"fmt"

	goerrors "github.com/agilira/go-errors"
	"github.com/agilira/go-timecache"
	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

// maxTokenSize bounds the tokens a verifier will parse.
const maxTokenSize = 8 * 1024

// jwsScheme binds a JOSE algorithm to the key forms go-jose signs and
// verifies with. Both converters report false for material of another scheme.
type jwsScheme struct {
	alg jose.SignatureAlgorithm

	// signingKey returns an ed25519.PrivateKey or a jose.OpaqueSigner.
	signingKey func(key KeyMaterial) (any, bool)

	// verificationKey returns the public counterpart, or a jose.OpaqueVerifier.
	verificationKey func(key KeyMaterial) (any, bool)
}

// jwsSigner signs with the primary key of a keyset.
type jwsSigner struct {
	scheme *jwsScheme
	kid    string
	key    any
}

func newJWSSigner(scheme *jwsScheme, ks *Keyset) (*jwsSigner, error) {
	primary := ks.Primary()
	key, ok := scheme.signingKey(primary.Material)
	if !ok {
		return nil, newError(ErrKeyMaterial, ErrCodeKeyMaterial, fmt.Sprintf("key %s is not a %s private key", FormatKeyID(primary.ID), scheme.alg))
	}
	return &jwsSigner{scheme: scheme, kid: FormatKeyID(primary.ID), key: key}, nil
}

// Sign serializes c as a compact JWS whose header carries the primary key id
// and, when set, the claims' type header.
func (s *jwsSigner) Sign(c Claims) (string, error) {
	opts := (&jose.SignerOptions{}).WithHeader("kid", s.kid)
	if c.TypeHeader != "" {
		opts = opts.WithType(jose.ContentType(c.TypeHeader))
	}
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: s.scheme.alg, Key: s.key}, opts)
	if err != nil {
		return "", goerrors.Wrap(err, ErrCodeTokenEncoding, "failed to create token signer")
	}

	token, err := jwt.Signed(signer).Claims(jwt.Claims{
		Issuer:   c.Issuer,
		Subject:  c.Subject,
		IssuedAt: jwt.NewNumericDate(c.IssuedAt),
		Expiry:   jwt.NewNumericDate(c.ExpiresAt),
	}).Serialize()
	if err != nil {
		return "", goerrors.Wrap(err, ErrCodeTokenEncoding, "failed to sign token")
	}
	return token, nil
}

// jwsVerifier accepts tokens signed by any key of a public keyset.
type jwsVerifier struct {
	scheme *jwsScheme
	keys   map[string]any
}

func newJWSVerifier(scheme *jwsScheme, ks *Keyset) (*jwsVerifier, error) {
	v := &jwsVerifier{scheme: scheme, keys: make(map[string]any, ks.Len())}
	for _, e := range ks.Entries() {
		key, ok := scheme.verificationKey(e.Material)
		if !ok {
			return nil, newError(ErrKeyMaterial, ErrCodeKeyMaterial, fmt.Sprintf("key %s is not a %s public key", FormatKeyID(e.ID), scheme.alg))
		}
		v.keys[FormatKeyID(e.ID)] = key
	}
	return v, nil
}

func invalidToken(msg string) error {
	return newError(ErrValidation, ErrCodeValidation, msg)
}

// Verify checks, in order: token size and shape, algorithm, type header, key
// id, signature, then issuer, issue time and expiry against policy.
func (v *jwsVerifier) Verify(token string, policy ValidationPolicy) (Claims, error) {
	if len(token) > maxTokenSize {
		return Claims{}, invalidToken("token exceeds maximum size")
	}

	// The algorithm is fixed by the verifier, never taken from the header.
	parsed, err := jwt.ParseSigned(token, []jose.SignatureAlgorithm{v.scheme.alg})
	if err != nil {
		return Claims{}, wrapError(ErrValidation, err, ErrCodeValidation, "malformed token")
	}
	if len(parsed.Headers) != 1 {
		return Claims{}, invalidToken("token must carry exactly one signature")
	}
	header := parsed.Headers[0]

	typ, _ := header.ExtraHeaders[jose.HeaderType].(string)
	if policy.ExpectedTypeHeader != "" && typ != policy.ExpectedTypeHeader {
		return Claims{}, invalidToken(fmt.Sprintf("typ must be %q", policy.ExpectedTypeHeader))
	}

	key, ok := v.keys[header.KeyID]
	if !ok {
		return Claims{}, invalidToken(fmt.Sprintf("unknown key id %q", header.KeyID))
	}

	var payload jwt.Claims
	if err := parsed.Claims(key, &payload); err != nil {
		return Claims{}, wrapError(ErrValidation, err, ErrCodeValidation, "invalid signature")
	}

	if policy.ExpectIssuedInThePast && payload.IssuedAt == nil {
		return Claims{}, invalidToken("iat claim is required")
	}
	checked := payload
	if !policy.ExpectIssuedInThePast {
		checked.IssuedAt = nil
	}
	expected := jwt.Expected{Issuer: policy.ExpectedIssuer, Time: timecache.CachedTime()}
	if err := checked.ValidateWithLeeway(expected, policy.ClockSkew); err != nil {
		return Claims{}, wrapError(ErrValidation, err, ErrCodeValidation, "claims rejected by policy")
	}

	return Claims{
		TypeHeader: typ,
		Issuer:     payload.Issuer,
		Subject:    payload.Subject,
		IssuedAt:   payload.IssuedAt.Time(),
		ExpiresAt:  payload.Expiry.Time(),
	}, nil
}
