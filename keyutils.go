// keyutils.go: Key utilities for random ids, symmetric key generation, zeroization, and fingerprinting.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package cryptobench

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"

	goerrors "github.com/agilira/go-errors"
)

// KeySize is the symmetric key size in bytes used by the 256-bit AEAD backends.
const KeySize = 32

// Zeroize wipes a byte slice in place.
//
// Key material handed to Destroy is zeroized so a released keyset does not keep
// secrets reachable for the rest of the process.
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Fingerprint returns a short identifier for key material (first 8 bytes of its
// SHA-256, hex encoded). It returns an empty string for empty input.
//
// Fingerprints are used in keyset info dumps so keys can be told apart in logs
// without exposing them.
func Fingerprint(material []byte) string {
	if len(material) == 0 {
		return ""
	}
	hash := sha256.Sum256(material)
	return fmt.Sprintf("%016x", hash[:8])
}

// GenerateSymmetricKey generates a cryptographically secure random key of size bytes.
func GenerateSymmetricKey(size int) ([]byte, error) {
	if size <= 0 {
		return nil, goerrors.New(ErrCodeKeyGeneration, "key size must be positive")
	}
	key := make([]byte, size)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, goerrors.Wrap(err, ErrCodeKeyGeneration, "failed to generate key")
	}
	return key, nil
}

// newKeyID draws a random nonzero key id. Zero is reserved so an unset id can
// never collide with a generated one.
func newKeyID() (uint32, error) {
	var buf [4]byte
	for {
		if _, err := io.ReadFull(rand.Reader, buf[:]); err != nil {
			return 0, goerrors.Wrap(err, ErrCodeKeyGeneration, "failed to generate key id")
		}
		if id := binary.BigEndian.Uint32(buf[:]); id != 0 {
			return id, nil
		}
	}
}

// FormatKeyID renders a key id the way token headers carry it (8 hex digits).
func FormatKeyID(id uint32) string {
	return fmt.Sprintf("%08x", id)
}

// ParseKeyID is the inverse of FormatKeyID.
func ParseKeyID(s string) (uint32, error) {
	if len(s) != 8 {
		return 0, goerrors.New(ErrCodeTokenEncoding, fmt.Sprintf("malformed key id %q", s))
	}
	id, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, goerrors.Wrap(err, ErrCodeTokenEncoding, fmt.Sprintf("malformed key id %q", s))
	}
	return uint32(id), nil
}
