// backend_tink.go: Provider backed by Tink (AES-GCM-SIV, AES-GCM, JWT PS256 and ES256).
//
// Keyset entries are assembled into Tink keysets with their ids preserved, so
// Tink's own ciphertext prefixes and JWT kid headers name the same keys as the
// harness keyset.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package cryptobench

import (
	"fmt"
	"sync/atomic"
	"time"

	goerrors "github.com/agilira/go-errors"
	"github.com/tink-crypto/tink-go/v2/aead"
	"github.com/tink-crypto/tink-go/v2/insecurecleartextkeyset"
	"github.com/tink-crypto/tink-go/v2/jwt"
	"github.com/tink-crypto/tink-go/v2/keyset"
	tinkpb "github.com/tink-crypto/tink-go/v2/proto/tink_go_proto"
	"github.com/tink-crypto/tink-go/v2/tink"
	"google.golang.org/protobuf/proto"
)

// TinkProviderName is the registry name of the Tink provider.
const TinkProviderName = "tink"

var tinkTemplates = map[string]func() *tinkpb.KeyTemplate{
	AlgorithmAES256GCMSIV: aead.AES256GCMSIVKeyTemplate,
	AlgorithmAES256GCM:    aead.AES256GCMKeyTemplate,
	AlgorithmJWTPS256:     jwt.PS256_3072_F4_Key_Template,
	AlgorithmJWTES256:     jwt.ES256Template,
}

// TinkProvider serves Tink key templates through the harness keyset model.
type TinkProvider struct{}

// NewTinkProvider returns the Tink provider.
func NewTinkProvider() *TinkProvider { return &TinkProvider{} }

// Name returns the registry name of the provider
func (p *TinkProvider) Name() string { return TinkProviderName }

// Capabilities reports AEAD, signing and verification
func (p *TinkProvider) Capabilities() []Capability {
	return []Capability{CapabilityAEAD, CapabilitySign, CapabilityVerify}
}

// Algorithms lists the algorithms that have a Tink key template
func (p *TinkProvider) Algorithms() []string {
	return []string{AlgorithmAES256GCMSIV, AlgorithmAES256GCM, AlgorithmJWTPS256, AlgorithmJWTES256}
}

// GenerateKey creates a one-key Tink keyset from the algorithm's template and
// keeps its key proto. The id Tink assigned is replaced when the key joins a
// harness keyset.
func (p *TinkProvider) GenerateKey(algorithm string) (KeyMaterial, error) {
	template, ok := tinkTemplates[algorithm]
	if !ok {
		return nil, newError(ErrUnsupportedAlgorithm, ErrCodeUnsupportedAlg, fmt.Sprintf("%s does not support %q", TinkProviderName, algorithm))
	}
	h, err := keyset.NewHandle(template())
	if err != nil {
		return nil, goerrors.Wrap(err, ErrCodeKeyGeneration, fmt.Sprintf("tink failed to generate %s key", algorithm))
	}
	material := insecurecleartextkeyset.KeysetMaterial(h)
	if len(material.GetKey()) != 1 {
		return nil, goerrors.New(ErrCodeKeyGeneration, fmt.Sprintf("tink template for %s produced %d keys", algorithm, len(material.GetKey())))
	}
	return &tinkKey{algorithm: algorithm, key: material.GetKey()[0]}, nil
}

// NewAEAD rebuilds ks as a Tink keyset and returns its AEAD primitive. Tink
// prefixes ciphertexts with the key id, so every entry decrypts.
func (p *TinkProvider) NewAEAD(ks *Keyset) (AEAD, error) {
	h, err := tinkHandle(ks)
	if err != nil {
		return nil, err
	}
	primitive, err := aead.New(h)
	if err != nil {
		return nil, goerrors.Wrap(err, ErrCodeKeyMaterial, "tink failed to build AEAD primitive")
	}
	return &tinkAEAD{primitive: primitive}, nil
}

// NewSigner returns a Tink JWT signer over the primary key of ks
func (p *TinkProvider) NewSigner(ks *Keyset) (Signer, error) {
	h, err := tinkHandle(ks)
	if err != nil {
		return nil, err
	}
	s, err := jwt.NewSigner(h)
	if err != nil {
		return nil, goerrors.Wrap(err, ErrCodeKeyMaterial, "tink failed to build JWT signer")
	}
	return &tinkSigner{signer: s}, nil
}

// NewVerifier returns a Tink JWT verifier over the public keyset ks.
//
// Parameters:
//   - ks: public keyset, as returned by Keyset.Public
//
// Returns:
//   - A Verifier accepting tokens signed by any entry of ks
//   - ErrKeyMaterial when an entry was not generated by the Tink provider
func (p *TinkProvider) NewVerifier(ks *Keyset) (Verifier, error) {
	h, err := tinkHandle(ks)
	if err != nil {
		return nil, err
	}
	v, err := jwt.NewVerifier(h)
	if err != nil {
		return nil, goerrors.Wrap(err, ErrCodeKeyMaterial, "tink failed to build JWT verifier")
	}
	return &tinkVerifier{verifier: v}, nil
}

// tinkKey is one Tink key proto, private or public.
type tinkKey struct {
	algorithm string
	key       *tinkpb.Keyset_Key
	public    bool
}

func (k *tinkKey) Algorithm() string { return k.algorithm }

func (k *tinkKey) Public() (KeyMaterial, error) {
	if k.public {
		return k, nil
	}
	if k.key.GetKeyData().GetKeyMaterialType() == tinkpb.KeyData_SYMMETRIC {
		return nil, newError(ErrNoPublicKey, ErrCodeKeyMaterial, fmt.Sprintf("%s keys are symmetric", k.algorithm))
	}

	key := proto.Clone(k.key).(*tinkpb.Keyset_Key)
	h, err := insecurecleartextkeyset.Read(&keyset.MemReaderWriter{
		Keyset: &tinkpb.Keyset{PrimaryKeyId: key.GetKeyId(), Key: []*tinkpb.Keyset_Key{key}},
	})
	if err != nil {
		return nil, goerrors.Wrap(err, ErrCodeKeyMaterial, "tink failed to load key")
	}
	pub, err := h.Public()
	if err != nil {
		return nil, wrapError(ErrNoPublicKey, err, ErrCodeKeyMaterial, "tink failed to derive public key")
	}
	material := insecurecleartextkeyset.KeysetMaterial(pub)
	return &tinkKey{algorithm: k.algorithm, key: material.GetKey()[0], public: true}, nil
}

func (k *tinkKey) Fingerprint() string { return Fingerprint(k.key.GetKeyData().GetValue()) }

func (k *tinkKey) Destroy() {
	if !k.public {
		Zeroize(k.key.GetKeyData().GetValue())
	}
}

// tinkHandle assembles a Tink keyset from harness entries, carrying over ids and
// the primary. Public views load without secrets.
func tinkHandle(ks *Keyset) (*keyset.Handle, error) {
	pb := &tinkpb.Keyset{PrimaryKeyId: ks.Primary().ID}
	public := true
	for _, e := range ks.Entries() {
		k, ok := e.Material.(*tinkKey)
		if !ok {
			return nil, newError(ErrKeyMaterial, ErrCodeKeyMaterial, fmt.Sprintf("key %s was not generated by %q", FormatKeyID(e.ID), TinkProviderName))
		}
		key := proto.Clone(k.key).(*tinkpb.Keyset_Key)
		key.KeyId = e.ID
		key.Status = tinkpb.KeyStatusType_ENABLED
		pb.Key = append(pb.Key, key)
		public = public && k.public
	}

	var (
		h   *keyset.Handle
		err error
	)
	if public {
		h, err = keyset.NewHandleWithNoSecrets(pb)
	} else {
		h, err = insecurecleartextkeyset.Read(&keyset.MemReaderWriter{Keyset: pb})
	}
	if err != nil {
		return nil, goerrors.Wrap(err, ErrCodeKeyMaterial, "tink failed to load keyset")
	}
	return h, nil
}

type tinkAEAD struct {
	primitive tink.AEAD
}

func (a *tinkAEAD) Encrypt(plaintext, associatedData []byte) ([]byte, error) {
	return a.primitive.Encrypt(plaintext, associatedData)
}

func (a *tinkAEAD) Decrypt(ciphertext, associatedData []byte) ([]byte, error) {
	pt, err := a.primitive.Decrypt(ciphertext, associatedData)
	if err != nil {
		return nil, wrapError(ErrAuthentication, err, ErrCodeAuthentication, "tink decryption failed")
	}
	return pt, nil
}

type tinkSigner struct {
	signer jwt.Signer
}

func (s *tinkSigner) Sign(c Claims) (string, error) {
	opts := &jwt.RawJWTOptions{
		TypeHeader: optionalString(c.TypeHeader),
		Issuer:     optionalString(c.Issuer),
		Subject:    optionalString(c.Subject),
		IssuedAt:   optionalTime(c.IssuedAt),
		ExpiresAt:  optionalTime(c.ExpiresAt),
	}
	if opts.ExpiresAt == nil {
		opts.WithoutExpiration = true
	}
	raw, err := jwt.NewRawJWT(opts)
	if err != nil {
		return "", goerrors.Wrap(err, ErrCodeTokenEncoding, "tink rejected token claims")
	}
	token, err := s.signer.SignAndEncode(raw)
	if err != nil {
		return "", goerrors.Wrap(err, ErrCodeTokenEncoding, "tink failed to sign token")
	}
	return token, nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// compiledPolicy pairs a policy with the Tink validator built from it.
type compiledPolicy struct {
	policy    ValidationPolicy
	validator *jwt.Validator
}

// tinkVerifier caches the validator of the last policy it saw; benchmarks use a
// single policy, so the validator is built once per state.
type tinkVerifier struct {
	verifier jwt.Verifier
	compiled atomic.Pointer[compiledPolicy]
}

func (v *tinkVerifier) validator(policy ValidationPolicy) (*jwt.Validator, error) {
	if c := v.compiled.Load(); c != nil && c.policy == policy {
		return c.validator, nil
	}
	opts := &jwt.ValidatorOpts{
		ExpectedTypeHeader:     optionalString(policy.ExpectedTypeHeader),
		ExpectedIssuer:         optionalString(policy.ExpectedIssuer),
		IgnoreTypeHeader:       policy.ExpectedTypeHeader == "",
		IgnoreIssuer:           policy.ExpectedIssuer == "",
		IgnoreAudiences:        true,
		ExpectIssuedInThePast:  policy.ExpectIssuedInThePast,
		AllowMissingExpiration: true,
		ClockSkew:              policy.ClockSkew,
	}
	validator, err := jwt.NewValidator(opts)
	if err != nil {
		return nil, wrapError(ErrValidation, err, ErrCodeValidation, "invalid validation policy")
	}
	v.compiled.Store(&compiledPolicy{policy: policy, validator: validator})
	return validator, nil
}

func (v *tinkVerifier) Verify(token string, policy ValidationPolicy) (Claims, error) {
	validator, err := v.validator(policy)
	if err != nil {
		return Claims{}, err
	}
	verified, err := v.verifier.VerifyAndDecode(token, validator)
	if err != nil {
		return Claims{}, wrapError(ErrValidation, err, ErrCodeValidation, "tink rejected token")
	}

	var c Claims
	if verified.HasTypeHeader() {
		c.TypeHeader, _ = verified.TypeHeader()
	}
	if verified.HasIssuer() {
		c.Issuer, _ = verified.Issuer()
	}
	if verified.HasSubject() {
		c.Subject, _ = verified.Subject()
	}
	if verified.HasIssuedAt() {
		c.IssuedAt, _ = verified.IssuedAt()
	}
	if verified.HasExpiration() {
		c.ExpiresAt, _ = verified.ExpiresAt()
	}
	return c, nil
}
