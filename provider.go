// provider.go: Pluggable cryptographic backends and the process-wide provider registry.
//
// Providers are installed into a registry for the lifetime of one benchmark state
// and removed on teardown. The registry is process-wide mutable state, so every
// setup and teardown runs inside Transition, which serializes them.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package cryptobench

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/go-timecache"
)

// Capability represents an operation family a provider can perform
type Capability string

const (
	CapabilityAEAD   Capability = "aead"   // Authenticated encryption and decryption
	CapabilitySign   Capability = "sign"   // Token signing
	CapabilityVerify Capability = "verify" // Token verification
)

// Provider is a named cryptographic backend.
//
// A provider generates key material for the algorithms it lists. The primitives
// themselves come from the optional AEADProvider and TokenProvider interfaces.
type Provider interface {
	Name() string               // Provider name (e.g., "tink", "stdlib")
	Capabilities() []Capability // Supported capabilities
	Algorithms() []string       // Supported algorithm identifiers

	// GenerateKey creates fresh key material for algorithm.
	GenerateKey(algorithm string) (KeyMaterial, error)
}

// AEADProvider builds AEAD primitives from keysets it generated.
type AEADProvider interface {
	Provider
	NewAEAD(ks *Keyset) (AEAD, error)
}

// TokenProvider builds signers and verifiers from keysets it generated.
// NewVerifier expects a public keyset view.
type TokenProvider interface {
	Provider
	NewSigner(ks *Keyset) (Signer, error)
	NewVerifier(ks *Keyset) (Verifier, error)
}

// Initializer is implemented by providers that need to acquire resources when installed.
type Initializer interface {
	Initialize(ctx context.Context) error
}

// ConcurrencyReporter is implemented by providers that know whether their
// primitives tolerate concurrent calls. Providers that do not implement it are
// assumed safe, and the runner still checks at runtime.
type ConcurrencyReporter interface {
	ConcurrentSafe() bool
}

// SupportsAlgorithm reports whether p lists algorithm.
func SupportsAlgorithm(p Provider, algorithm string) bool {
	return slices.Contains(p.Algorithms(), algorithm)
}

// HasCapability reports whether p declares c.
func HasCapability(p Provider, c Capability) bool {
	return slices.Contains(p.Capabilities(), c)
}

// ProviderHandle identifies one installed provider. It is owned by the registry
// for its registration lifetime.
type ProviderHandle struct {
	id           uint64
	name         string
	capabilities []Capability
	provider     Provider
	installedAt  time.Time
}

// Name returns the installed provider's name.
func (h *ProviderHandle) Name() string { return h.name }

// Capabilities returns the capability set captured at install time.
func (h *ProviderHandle) Capabilities() []Capability { return slices.Clone(h.capabilities) }

// Provider returns the installed backend.
func (h *ProviderHandle) Provider() Provider { return h.provider }

// InstalledAt returns the (cached-clock) install time.
func (h *ProviderHandle) InstalledAt() time.Time { return h.installedAt }

// ProviderRegistry tracks installed providers by name.
type ProviderRegistry struct {
	mu           sync.RWMutex
	transitionMu sync.Mutex
	providers    map[string]*ProviderHandle
	order        []string
	nextID       atomic.Uint64
}

var defaultRegistry = NewProviderRegistry()

// DefaultRegistry returns the process-wide registry used when a runner is not
// given one explicitly.
func DefaultRegistry() *ProviderRegistry {
	return defaultRegistry
}

// NewProviderRegistry creates an empty registry
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		providers: make(map[string]*ProviderHandle),
	}
}

// Transition runs fn while holding the registry's lifecycle lock. Benchmark
// states run their setup and teardown through it so installs and uninstalls of
// different states never interleave.
func (r *ProviderRegistry) Transition(fn func() error) error {
	r.transitionMu.Lock()
	defer r.transitionMu.Unlock()
	return fn()
}

// Install registers p and returns its handle. It fails with ErrAlreadyInstalled
// if a provider of the same name is registered. Providers implementing
// Initializer are initialized before they become visible.
func (r *ProviderRegistry) Install(ctx context.Context, p Provider) (*ProviderHandle, error) {
	if p == nil {
		return nil, newError(ErrInvalidConfig, ErrCodeInvalidConfig, "provider cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if _, exists := r.providers[name]; exists {
		return nil, newError(ErrAlreadyInstalled, ErrCodeAlreadyInstalled, fmt.Sprintf("provider %q is already installed", name))
	}

	if init, ok := p.(Initializer); ok {
		if err := init.Initialize(ctx); err != nil {
			return nil, wrapError(ErrSetup, err, ErrCodeProviderInit, fmt.Sprintf("failed to initialize provider %q", name))
		}
	}

	handle := &ProviderHandle{
		id:           r.nextID.Add(1),
		name:         name,
		capabilities: slices.Clone(p.Capabilities()),
		provider:     p,
		installedAt:  timecache.CachedTime().UTC(),
	}
	r.providers[name] = handle
	r.order = append(r.order, name)

	return handle, nil
}

// Uninstall removes the provider behind h. It fails with ErrNotInstalled if h was
// already removed. Providers implementing io.Closer are closed after removal; a
// close failure is reported but the provider stays uninstalled.
func (r *ProviderRegistry) Uninstall(h *ProviderHandle) error {
	if h == nil {
		return newError(ErrNotInstalled, ErrCodeNotInstalled, "nil provider handle")
	}

	r.mu.Lock()
	current, exists := r.providers[h.name]
	if !exists || current.id != h.id {
		r.mu.Unlock()
		return newError(ErrNotInstalled, ErrCodeNotInstalled, fmt.Sprintf("provider %q is not installed", h.name))
	}
	delete(r.providers, h.name)
	r.order = slices.DeleteFunc(r.order, func(n string) bool { return n == h.name })
	r.mu.Unlock()

	if closer, ok := h.provider.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			return wrapError(ErrTeardown, err, ErrCodeProviderClose, fmt.Sprintf("failed to close provider %q", h.name))
		}
	}
	return nil
}

// Lookup returns the handle of the installed provider called name.
func (r *ProviderRegistry) Lookup(name string) (*ProviderHandle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, exists := r.providers[name]
	if !exists {
		return nil, newError(ErrNotInstalled, ErrCodeNotInstalled, fmt.Sprintf("provider %q is not installed", name))
	}
	return h, nil
}

// Resolve returns the first installed provider, in install order, that supports
// algorithm. A non-empty name restricts the search to that provider.
func (r *ProviderRegistry) Resolve(algorithm, name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, n := range r.order {
		if name != "" && n != name {
			continue
		}
		if p := r.providers[n].provider; SupportsAlgorithm(p, algorithm) {
			return p, nil
		}
	}
	return nil, newError(ErrUnsupportedAlgorithm, ErrCodeUnsupportedAlg, fmt.Sprintf("no installed provider supports %q", algorithm))
}

// Installed returns the sorted names of all installed providers.
func (r *ProviderRegistry) Installed() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
