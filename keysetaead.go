// keysetaead.go: Keyset-aware AEAD over raw symmetric keys, shared by the stdlib and x/crypto providers.
//
// Ciphertexts carry a 5-byte header (version byte, big-endian key id) followed by
// the nonce and the sealed payload, so any key of the keyset can open what it sealed.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package cryptobench

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"

	goerrors "github.com/agilira/go-errors"
)

const (
	ciphertextVersion = 0x01
	headerSize        = 5
)

// symmetricKey is raw key material owned by one provider.
type symmetricKey struct {
	provider  string
	algorithm string
	key       []byte
}

func newSymmetricKey(provider, algorithm string, size int) (*symmetricKey, error) {
	key, err := GenerateSymmetricKey(size)
	if err != nil {
		return nil, err
	}
	return &symmetricKey{provider: provider, algorithm: algorithm, key: key}, nil
}

func (k *symmetricKey) Algorithm() string { return k.algorithm }

func (k *symmetricKey) Public() (KeyMaterial, error) {
	return nil, newError(ErrNoPublicKey, ErrCodeKeyMaterial, fmt.Sprintf("%s keys are symmetric", k.algorithm))
}

func (k *symmetricKey) Fingerprint() string { return Fingerprint(k.key) }

func (k *symmetricKey) Destroy() { Zeroize(k.key) }

// cipherBuilder creates the AEAD for one raw key.
type cipherBuilder func(algorithm string, key []byte) (cipher.AEAD, error)

// keysetAEAD seals with the primary key and opens with whichever key the
// ciphertext header names. The per-key ciphers are built once at construction.
type keysetAEAD struct {
	primaryID uint32
	primary   cipher.AEAD
	ciphers   map[uint32]cipher.AEAD
}

func newKeysetAEAD(provider string, ks *Keyset, build cipherBuilder) (*keysetAEAD, error) {
	a := &keysetAEAD{
		primaryID: ks.Primary().ID,
		ciphers:   make(map[uint32]cipher.AEAD, ks.Len()),
	}
	for _, e := range ks.Entries() {
		k, ok := e.Material.(*symmetricKey)
		if !ok || k.provider != provider {
			return nil, newError(ErrKeyMaterial, ErrCodeKeyMaterial, fmt.Sprintf("key %s was not generated by %q", FormatKeyID(e.ID), provider))
		}
		c, err := build(k.algorithm, k.key)
		if err != nil {
			return nil, goerrors.Wrap(err, ErrCodeKeyMaterial, fmt.Sprintf("failed to initialize cipher for key %s", FormatKeyID(e.ID)))
		}
		a.ciphers[e.ID] = c
	}
	a.primary = a.ciphers[a.primaryID]
	return a, nil
}

func (a *keysetAEAD) Encrypt(plaintext, associatedData []byte) ([]byte, error) {
	nonceSize := a.primary.NonceSize()
	out := make([]byte, headerSize+nonceSize, headerSize+nonceSize+len(plaintext)+a.primary.Overhead())
	out[0] = ciphertextVersion
	binary.BigEndian.PutUint32(out[1:headerSize], a.primaryID)

	nonce := out[headerSize:]
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, goerrors.Wrap(err, ErrCodeOperation, "failed to generate nonce")
	}
	return a.primary.Seal(out, nonce, plaintext, associatedData), nil // #nosec G407 -- nonce is generated from crypto/rand
}

func (a *keysetAEAD) Decrypt(ciphertext, associatedData []byte) ([]byte, error) {
	if len(ciphertext) < headerSize || ciphertext[0] != ciphertextVersion {
		return nil, newError(ErrAuthentication, ErrCodeAuthentication, "ciphertext has no valid key header")
	}
	id := binary.BigEndian.Uint32(ciphertext[1:headerSize])
	c, ok := a.ciphers[id]
	if !ok {
		return nil, newError(ErrAuthentication, ErrCodeAuthentication, fmt.Sprintf("no key with id %s", FormatKeyID(id)))
	}

	body := ciphertext[headerSize:]
	if len(body) < c.NonceSize()+c.Overhead() {
		return nil, newError(ErrAuthentication, ErrCodeAuthentication, "ciphertext too short")
	}
	nonce, sealed := body[:c.NonceSize()], body[c.NonceSize():]

	plaintext, err := c.Open(nil, nonce, sealed, associatedData)
	if err != nil {
		return nil, wrapError(ErrAuthentication, err, ErrCodeAuthentication, "decryption failed (wrong key, tampered data, or associated data mismatch)")
	}
	return plaintext, nil
}
