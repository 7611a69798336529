// state.go: Scoped benchmark state owning one installed provider, its keyset and fixtures.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package cryptobench

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/agilira/go-timecache"
)

// Phase is the lifecycle position of a BenchmarkState.
type Phase int32

const (
	PhaseUninitialized Phase = iota
	PhaseSetup
	PhaseReady
	PhaseTeardown
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "UNINITIALIZED"
	case PhaseSetup:
		return "SETUP"
	case PhaseReady:
		return "READY"
	case PhaseTeardown:
		return "TEARDOWN"
	case PhaseClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("Phase(%d)", int32(p))
	}
}

// ProviderFactory builds a fresh provider instance. Each state gets its own so
// nothing installed by one fork leaks into another.
type ProviderFactory func() (Provider, error)

// StateConfig describes what a BenchmarkState prepares during setup.
type StateConfig struct {
	Provider   ProviderFactory
	Algorithm  string
	Capability Capability // CapabilityAEAD or CapabilityVerify

	KeyCount     int // Keys in the keyset
	PrimaryIndex int // Position of the primary key

	Sizes  FixtureSizes     // AEAD fixture shape
	Policy ValidationPolicy // Token validation policy

	// UnrelatedToken additionally signs a token with a key outside the keyset,
	// for rejection-path benchmarks.
	UnrelatedToken bool
}

// BenchmarkState owns everything one benchmark variant reads during
// measurement. Setup and teardown each run once, serialized through the
// registry; fields are only readable in PhaseReady.
type BenchmarkState struct {
	cfg      StateConfig
	registry *ProviderRegistry
	logger   *slog.Logger
	phase    atomic.Int32

	provider  Provider
	handle    *ProviderHandle
	keyset    *Keyset
	public    *Keyset
	unrelated *Keyset

	aead     AEAD
	verifier Verifier

	aeadFixture  *AEADFixture
	tokenFixture *TokenFixture
	digest       [sha256.Size]byte

	releaseOnce sync.Once
	releaseErr  error
	teardowns   atomic.Int32
}

// NewBenchmarkState returns an uninitialized state bound to registry.
func NewBenchmarkState(cfg StateConfig, registry *ProviderRegistry, logger *slog.Logger) *BenchmarkState {
	if logger == nil {
		logger = slog.Default()
	}
	return &BenchmarkState{cfg: cfg, registry: registry, logger: logger}
}

// Phase returns the current lifecycle phase.
func (s *BenchmarkState) Phase() Phase { return Phase(s.phase.Load()) }

// Config returns the state configuration.
func (s *BenchmarkState) Config() StateConfig { return s.cfg }

// Setup installs the provider, generates the keyset and the fixtures as one
// unit. On any failure the completed steps are rolled back, the state moves to
// PhaseClosed and the returned error wraps ErrSetup and the original cause.
func (s *BenchmarkState) Setup(ctx context.Context) error {
	if !s.phase.CompareAndSwap(int32(PhaseUninitialized), int32(PhaseSetup)) {
		return newError(ErrInvalidPhase, ErrCodeInvalidPhase, fmt.Sprintf("setup requires %s, state is %s", PhaseUninitialized, s.Phase()))
	}

	err := s.registry.Transition(func() error {
		if err := s.prepare(ctx); err != nil {
			s.release()
			return err
		}
		return nil
	})
	if err != nil {
		s.phase.Store(int32(PhaseClosed))
		if errors.Is(err, ErrSetup) {
			return err
		}
		return wrapError(ErrSetup, err, ErrCodeSetup, fmt.Sprintf("setup of %s failed", s.cfg.Algorithm))
	}

	s.phase.Store(int32(PhaseReady))
	return nil
}

func (s *BenchmarkState) prepare(ctx context.Context) error {
	if s.cfg.Provider == nil {
		return newError(ErrInvalidConfig, ErrCodeInvalidConfig, "state has no provider factory")
	}
	p, err := s.cfg.Provider()
	if err != nil {
		return wrapError(ErrSetup, err, ErrCodeProviderInit, "failed to build provider")
	}

	// Everything that can be checked without side effects is checked before install.
	if !SupportsAlgorithm(p, s.cfg.Algorithm) {
		return newError(ErrUnsupportedAlgorithm, ErrCodeUnsupportedAlg, fmt.Sprintf("provider %q does not support %q", p.Name(), s.cfg.Algorithm))
	}
	if !HasCapability(p, s.cfg.Capability) {
		return newError(ErrCapabilityMissing, ErrCodeCapability, fmt.Sprintf("provider %q lacks capability %q", p.Name(), s.cfg.Capability))
	}
	switch s.cfg.Capability {
	case CapabilityAEAD:
		if _, ok := p.(AEADProvider); !ok {
			return newError(ErrCapabilityMissing, ErrCodeCapability, fmt.Sprintf("provider %q cannot build AEAD primitives", p.Name()))
		}
	case CapabilitySign, CapabilityVerify:
		if _, ok := p.(TokenProvider); !ok {
			return newError(ErrCapabilityMissing, ErrCodeCapability, fmt.Sprintf("provider %q cannot build token primitives", p.Name()))
		}
	default:
		return newError(ErrInvalidConfig, ErrCodeInvalidConfig, fmt.Sprintf("unknown capability %q", s.cfg.Capability))
	}
	if err := s.cfg.Sizes.Validate(); err != nil {
		return err
	}

	handle, err := s.registry.Install(ctx, p)
	if err != nil {
		return err
	}
	s.provider, s.handle = p, handle

	factory := NewKeysetFactory(s.registry, p.Name())
	if s.keyset, err = factory.Generate(s.cfg.Algorithm, s.cfg.KeyCount, s.cfg.PrimaryIndex); err != nil {
		return err
	}
	s.logger.Debug("keyset generated",
		slog.String("provider", p.Name()),
		slog.Any("keyset", s.keyset),
	)

	gen, err := NewFixtureGenerator()
	if err != nil {
		return err
	}

	if s.cfg.Capability == CapabilityAEAD {
		return s.prepareAEAD(p.(AEADProvider), gen)
	}
	return s.prepareTokens(p.(TokenProvider), factory, gen)
}

func (s *BenchmarkState) prepareAEAD(p AEADProvider, gen *FixtureGenerator) error {
	aead, err := p.NewAEAD(s.keyset)
	if err != nil {
		return wrapError(ErrSetup, err, ErrCodeSetup, "failed to build AEAD primitive")
	}
	fixture, err := gen.GenerateAEAD(s.cfg.Sizes, aead)
	if err != nil {
		return err
	}
	s.aead, s.aeadFixture = aead, fixture
	s.digest = fixture.Digest()
	return nil
}

func (s *BenchmarkState) prepareTokens(p TokenProvider, factory *KeysetFactory, gen *FixtureGenerator) error {
	var err error
	if s.public, err = s.keyset.Public(); err != nil {
		return wrapError(ErrSetup, err, ErrCodeSetup, "failed to derive public keyset")
	}
	s.logger.Debug("public keyset", slog.Any("keyset", s.public))

	if s.verifier, err = p.NewVerifier(s.public); err != nil {
		return wrapError(ErrSetup, err, ErrCodeSetup, "failed to build verifier")
	}

	claims := NewClaims(timecache.CachedTime())
	fixture, err := gen.GenerateTokens(s.keyset, p.NewSigner, claims)
	if err != nil {
		return err
	}

	if s.cfg.UnrelatedToken {
		entry, err := factory.GenerateEntry(s.cfg.Algorithm, AsPrimary())
		if err != nil {
			return err
		}
		if s.unrelated, err = NewKeyset(entry); err != nil {
			entry.Material.Destroy()
			return wrapError(ErrSetup, err, ErrCodeSetup, "failed to build unrelated keyset")
		}
		unrelated, err := gen.GenerateTokens(s.unrelated, p.NewSigner, claims)
		if err != nil {
			return err
		}
		fixture.Tokens = append(fixture.Tokens, unrelated.Tokens...)
	}

	s.tokenFixture = fixture
	s.digest = fixture.Digest()
	return nil
}

// Teardown uninstalls the provider and releases the keysets. It runs the
// release exactly once across all exit paths; later calls return nil. A
// returned error wraps ErrTeardown and is meant to be logged, not to fail a run.
func (s *BenchmarkState) Teardown() error {
	for {
		switch phase := s.Phase(); phase {
		case PhaseClosed:
			return nil
		case PhaseUninitialized, PhaseReady:
			if !s.phase.CompareAndSwap(int32(phase), int32(PhaseTeardown)) {
				continue
			}
			err := s.registry.Transition(func() error {
				s.release()
				return s.releaseErr
			})
			s.phase.Store(int32(PhaseClosed))
			return err
		default:
			return newError(ErrInvalidPhase, ErrCodeInvalidPhase, fmt.Sprintf("cannot tear down a state in %s", phase))
		}
	}
}

// release frees whatever setup acquired. Callers hold the registry transition lock.
func (s *BenchmarkState) release() {
	s.releaseOnce.Do(func() {
		s.teardowns.Add(1)
		var errs []error
		if s.unrelated != nil {
			s.unrelated.Release()
		}
		if s.public != nil {
			s.public.Release()
		}
		if s.keyset != nil {
			s.keyset.Release()
		}
		if s.handle != nil {
			if err := s.registry.Uninstall(s.handle); err != nil {
				errs = append(errs, err)
			}
		}
		if len(errs) > 0 {
			s.releaseErr = wrapError(ErrTeardown, errors.Join(errs...), ErrCodeTeardown, "teardown incomplete")
		}
	})
}

// Teardowns returns how many times release ran (0 or 1).
func (s *BenchmarkState) Teardowns() int { return int(s.teardowns.Load()) }

func (s *BenchmarkState) ready() error {
	if p := s.Phase(); p != PhaseReady {
		return newError(ErrStateNotReady, ErrCodeInvalidPhase, fmt.Sprintf("state is %s", p))
	}
	return nil
}

// Handle returns the installed provider handle.
func (s *BenchmarkState) Handle() (*ProviderHandle, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.handle, nil
}

// Keyset returns the generated keyset.
func (s *BenchmarkState) Keyset() (*Keyset, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.keyset, nil
}

// PublicKeyset returns the public view of a signing keyset.
func (s *BenchmarkState) PublicKeyset() (*Keyset, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if s.public == nil {
		return nil, newError(ErrCapabilityMissing, ErrCodeCapability, "state has no public keyset")
	}
	return s.public, nil
}

// AEAD returns the primitive built from the keyset.
func (s *BenchmarkState) AEAD() (AEAD, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if s.aead == nil {
		return nil, newError(ErrCapabilityMissing, ErrCodeCapability, "state has no AEAD primitive")
	}
	return s.aead, nil
}

// Verifier returns the verifier built from the public keyset.
func (s *BenchmarkState) Verifier() (Verifier, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if s.verifier == nil {
		return nil, newError(ErrCapabilityMissing, ErrCodeCapability, "state has no verifier")
	}
	return s.verifier, nil
}

// AEADFixture returns the shared AEAD inputs.
func (s *BenchmarkState) AEADFixture() (*AEADFixture, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if s.aeadFixture == nil {
		return nil, newError(ErrCapabilityMissing, ErrCodeCapability, "state has no AEAD fixture")
	}
	return s.aeadFixture, nil
}

// TokenFixture returns the shared tokens. When UnrelatedToken is set the last
// token is signed by a key outside the keyset.
func (s *BenchmarkState) TokenFixture() (*TokenFixture, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if s.tokenFixture == nil {
		return nil, newError(ErrCapabilityMissing, ErrCodeCapability, "state has no token fixture")
	}
	return s.tokenFixture, nil
}

// Policy returns the configured validation policy.
func (s *BenchmarkState) Policy() ValidationPolicy { return s.cfg.Policy }

// ConcurrentSafe reports whether the installed provider declares its
// primitives safe for concurrent use.
func (s *BenchmarkState) ConcurrentSafe() bool {
	if r, ok := s.provider.(ConcurrencyReporter); ok {
		return r.ConcurrentSafe()
	}
	return true
}

// FixturesIntact reports whether the fixtures still hash to their digest at READY.
func (s *BenchmarkState) FixturesIntact() bool {
	switch {
	case s.aeadFixture != nil:
		return s.aeadFixture.Digest() == s.digest
	case s.tokenFixture != nil:
		return s.tokenFixture.Digest() == s.digest
	default:
		return true
	}
}
