// keyset.go: Immutable keysets and the factory that generates them from installed providers.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package cryptobench

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/agilira/go-timecache"
)

// KeyMaterial is provider-owned key material. Only the provider that created it
// can turn it into a primitive.
type KeyMaterial interface {
	// Algorithm returns the algorithm identifier the material was generated for.
	Algorithm() string

	// Public returns the public part of asymmetric material. Symmetric material
	// fails with ErrNoPublicKey.
	Public() (KeyMaterial, error)

	// Fingerprint returns a short non-secret identifier of the material.
	Fingerprint() string

	// Destroy releases the material. It must be safe to call more than once.
	Destroy()
}

// KeyEntry is one key of a keyset.
type KeyEntry struct {
	ID       uint32      // Unique within the keyset, never zero
	Primary  bool        // Used for new encrypt and sign operations
	Material KeyMaterial // Provider-owned material
}

// Algorithm returns the entry's algorithm identifier.
func (e KeyEntry) Algorithm() string {
	if e.Material == nil {
		return ""
	}
	return e.Material.Algorithm()
}

// KeyInfo is the non-secret description of one keyset entry.
type KeyInfo struct {
	ID          uint32 `json:"id"`
	Algorithm   string `json:"algorithm"`
	Primary     bool   `json:"primary"`
	Fingerprint string `json:"fingerprint"`
}

// Keyset is an ordered, immutable sequence of key entries with exactly one
// primary. Insertion order is significant: per-key views are selected by index.
type Keyset struct {
	entries   []KeyEntry
	primary   int
	createdAt time.Time

	// owned is false for views sharing material with another keyset; Release on
	// a view does not destroy anything.
	owned       bool
	releaseOnce sync.Once
}

// NewKeyset validates entries and builds an owning keyset from them. It fails
// with ErrInvalidCount for an empty list, ErrInvalidPrimary unless exactly one
// entry is primary, ErrDuplicateKeyID for repeated or zero ids and
// ErrKeyMaterial for missing material or mixed algorithms.
func NewKeyset(entries ...KeyEntry) (*Keyset, error) {
	ks, err := buildKeyset(entries)
	if err != nil {
		return nil, err
	}
	ks.owned = true
	return ks, nil
}

func buildKeyset(entries []KeyEntry) (*Keyset, error) {
	if len(entries) == 0 {
		return nil, newError(ErrInvalidCount, ErrCodeInvalidCount, "keyset must contain at least one entry")
	}

	seen := make(map[uint32]struct{}, len(entries))
	primary := -1
	algorithm := ""
	for i, e := range entries {
		if e.Material == nil {
			return nil, newError(ErrKeyMaterial, ErrCodeKeyMaterial, fmt.Sprintf("entry %d has no key material", i))
		}
		if e.ID == 0 {
			return nil, newError(ErrDuplicateKeyID, ErrCodeDuplicateKeyID, fmt.Sprintf("entry %d has reserved id 0", i))
		}
		if _, dup := seen[e.ID]; dup {
			return nil, newError(ErrDuplicateKeyID, ErrCodeDuplicateKeyID, fmt.Sprintf("id %s appears more than once", FormatKeyID(e.ID)))
		}
		seen[e.ID] = struct{}{}

		if i == 0 {
			algorithm = e.Algorithm()
		} else if e.Algorithm() != algorithm {
			return nil, newError(ErrKeyMaterial, ErrCodeKeyMaterial, fmt.Sprintf("entry %d is %s, keyset is %s", i, e.Algorithm(), algorithm))
		}

		if e.Primary {
			if primary >= 0 {
				return nil, newError(ErrInvalidPrimary, ErrCodeInvalidPrimary, "keyset has more than one primary entry")
			}
			primary = i
		}
	}
	if primary < 0 {
		return nil, newError(ErrInvalidPrimary, ErrCodeInvalidPrimary, "keyset has no primary entry")
	}

	return &Keyset{
		entries:   slices.Clone(entries),
		primary:   primary,
		createdAt: timecache.CachedTime().UTC(),
	}, nil
}

// Len returns the number of entries.
func (ks *Keyset) Len() int { return len(ks.entries) }

// Algorithm returns the algorithm shared by all entries.
func (ks *Keyset) Algorithm() string { return ks.entries[0].Algorithm() }

// Entry returns the entry at index i. It panics if i is out of range.
func (ks *Keyset) Entry(i int) KeyEntry { return ks.entries[i] }

// Entries returns a copy of all entries in insertion order.
func (ks *Keyset) Entries() []KeyEntry { return slices.Clone(ks.entries) }

// Primary returns the primary entry.
func (ks *Keyset) Primary() KeyEntry { return ks.entries[ks.primary] }

// PrimaryIndex returns the position of the primary entry.
func (ks *Keyset) PrimaryIndex() int { return ks.primary }

// CreatedAt returns when the keyset was assembled.
func (ks *Keyset) CreatedAt() time.Time { return ks.createdAt }

// Lookup returns the entry with the given id.
func (ks *Keyset) Lookup(id uint32) (KeyEntry, bool) {
	for _, e := range ks.entries {
		if e.ID == id {
			return e, true
		}
	}
	return KeyEntry{}, false
}

// Standalone returns a one-entry view of the entry at index i, made primary and
// keeping its original id. The view shares material with ks.
func (ks *Keyset) Standalone(i int) (*Keyset, error) {
	if i < 0 || i >= len(ks.entries) {
		return nil, newError(ErrInvalidPrimary, ErrCodeInvalidPrimary, fmt.Sprintf("index %d out of range for keyset of %d entries", i, len(ks.entries)))
	}
	e := ks.entries[i]
	e.Primary = true
	return buildKeyset([]KeyEntry{e})
}

// Public returns the public view of ks: same ids, order and primary, with every
// entry replaced by its public material. Symmetric keysets fail with ErrNoPublicKey.
func (ks *Keyset) Public() (*Keyset, error) {
	public := make([]KeyEntry, len(ks.entries))
	for i, e := range ks.entries {
		pub, err := e.Material.Public()
		if err != nil {
			return nil, err
		}
		public[i] = KeyEntry{ID: e.ID, Primary: e.Primary, Material: pub}
	}
	view, err := buildKeyset(public)
	if err != nil {
		return nil, err
	}
	view.owned = true
	return view, nil
}

// Info describes every entry without exposing key material.
func (ks *Keyset) Info() []KeyInfo {
	info := make([]KeyInfo, len(ks.entries))
	for i, e := range ks.entries {
		info[i] = KeyInfo{
			ID:          e.ID,
			Algorithm:   e.Algorithm(),
			Primary:     e.Primary,
			Fingerprint: e.Material.Fingerprint(),
		}
	}
	return info
}

// LogValue implements slog.LogValuer.
func (ks *Keyset) LogValue() slog.Value {
	keys := make([]any, 0, len(ks.entries))
	for _, ki := range ks.Info() {
		keys = append(keys, slog.Group(FormatKeyID(ki.ID),
			slog.String("algorithm", ki.Algorithm),
			slog.Bool("primary", ki.Primary),
			slog.String("fingerprint", ki.Fingerprint),
		))
	}
	return slog.GroupValue(
		slog.Int("size", len(ks.entries)),
		slog.Group("keys", keys...),
	)
}

// Release destroys the key material of an owning keyset. It is a no-op for
// views and on every call after the first.
func (ks *Keyset) Release() {
	if !ks.owned {
		return
	}
	ks.releaseOnce.Do(func() {
		for _, e := range ks.entries {
			e.Material.Destroy()
		}
	})
}

// EntryOption configures GenerateEntry.
type EntryOption func(*entryOptions)

type entryOptions struct {
	id      uint32
	primary bool
}

// WithFixedID requests a specific key id instead of a random one.
func WithFixedID(id uint32) EntryOption {
	return func(o *entryOptions) { o.id = id }
}

// AsPrimary marks the generated entry as primary.
func AsPrimary() EntryOption {
	return func(o *entryOptions) { o.primary = true }
}

// KeysetFactory generates keysets from the providers installed in a registry.
type KeysetFactory struct {
	registry *ProviderRegistry
	provider string
}

// NewKeysetFactory returns a factory resolving algorithms through registry. A
// non-empty provider restricts generation to that installed provider.
func NewKeysetFactory(registry *ProviderRegistry, provider string) *KeysetFactory {
	return &KeysetFactory{registry: registry, provider: provider}
}

// Generate creates a keyset of count fresh keys for algorithm with the entry at
// primaryIndex marked primary. Every entry receives a random id unique within
// the keyset.
func (f *KeysetFactory) Generate(algorithm string, count, primaryIndex int) (*Keyset, error) {
	if count < 1 {
		return nil, newError(ErrInvalidCount, ErrCodeInvalidCount, fmt.Sprintf("key count must be at least 1, got %d", count))
	}
	p, err := f.registry.Resolve(algorithm, f.provider)
	if err != nil {
		return nil, err
	}
	if primaryIndex < 0 || primaryIndex >= count {
		return nil, newError(ErrInvalidPrimary, ErrCodeInvalidPrimary, fmt.Sprintf("primary index %d out of range for %d keys", primaryIndex, count))
	}

	entries := make([]KeyEntry, 0, count)
	used := make(map[uint32]struct{}, count)
	release := func() {
		for _, e := range entries {
			e.Material.Destroy()
		}
	}

	for i := 0; i < count; i++ {
		id, err := newKeyID()
		for err == nil {
			if _, dup := used[id]; !dup {
				break
			}
			id, err = newKeyID()
		}
		if err != nil {
			release()
			return nil, wrapError(ErrSetup, err, ErrCodeKeyGeneration, "failed to allocate key id")
		}
		used[id] = struct{}{}

		entry, err := generateEntry(p, algorithm, entryOptions{id: id, primary: i == primaryIndex})
		if err != nil {
			release()
			return nil, err
		}
		entries = append(entries, entry)
	}

	ks, err := NewKeyset(entries...)
	if err != nil {
		release()
		return nil, err
	}
	return ks, nil
}

// GenerateEntry creates a single key entry for algorithm. Without WithFixedID
// the entry receives a random id.
func (f *KeysetFactory) GenerateEntry(algorithm string, opts ...EntryOption) (KeyEntry, error) {
	p, err := f.registry.Resolve(algorithm, f.provider)
	if err != nil {
		return KeyEntry{}, err
	}
	var o entryOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.id == 0 {
		if o.id, err = newKeyID(); err != nil {
			return KeyEntry{}, wrapError(ErrSetup, err, ErrCodeKeyGeneration, "failed to allocate key id")
		}
	}
	return generateEntry(p, algorithm, o)
}

func generateEntry(p Provider, algorithm string, o entryOptions) (KeyEntry, error) {
	material, err := p.GenerateKey(algorithm)
	if err != nil {
		return KeyEntry{}, wrapError(ErrSetup, err, ErrCodeKeyGeneration, fmt.Sprintf("provider %q failed to generate %s key", p.Name(), algorithm))
	}
	return KeyEntry{ID: o.id, Primary: o.primary, Material: material}, nil
}
