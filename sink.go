// sink.go: Result sink that keeps benchmarked results observable.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package cryptobench

import (
	"fmt"
	"sync/atomic"
)

// sinkEscape receives every flushed checksum. Writing to a package-level atomic
// makes the fold observable outside the worker, so the compiler cannot prove
// the consumed values dead.
var sinkEscape atomic.Uint64

// Blackhole consumes operation results. Each worker owns one; it is not safe
// for concurrent use.
//
// Every consumed value is folded into a running checksum with an FNV-1a step on
// its length and boundary bytes, which costs a few instructions regardless of
// the value's size.
type Blackhole struct {
	count    uint64
	checksum uint64
}

const (
	fnvOffset = 14695981039346656037
	fnvPrime  = 1099511628211
)

// NewBlackhole returns an empty sink.
func NewBlackhole() *Blackhole {
	return &Blackhole{checksum: fnvOffset}
}

func (bh *Blackhole) mix(v uint64) {
	bh.checksum ^= v
	bh.checksum *= fnvPrime
}

// ConsumeBytes records b.
func (bh *Blackhole) ConsumeBytes(b []byte) {
	bh.count++
	bh.mix(uint64(len(b)))
	if n := len(b); n > 0 {
		bh.mix(uint64(b[0]))
		bh.mix(uint64(b[n/2]))
		bh.mix(uint64(b[n-1]))
	}
}

// ConsumeString records s.
func (bh *Blackhole) ConsumeString(s string) {
	bh.count++
	bh.mix(uint64(len(s)))
	if n := len(s); n > 0 {
		bh.mix(uint64(s[0]))
		bh.mix(uint64(s[n/2]))
		bh.mix(uint64(s[n-1]))
	}
}

// ConsumeClaims records verified claims.
func (bh *Blackhole) ConsumeClaims(c Claims) {
	bh.count++
	bh.mix(uint64(c.IssuedAt.Unix()))
	bh.mix(uint64(c.ExpiresAt.Unix()))
	bh.mix(uint64(len(c.Issuer) + len(c.Subject) + len(c.TypeHeader)))
}

// ConsumeError records an expected failure. Rejection-path benchmarks consume
// the error instead of a value.
func (bh *Blackhole) ConsumeError(err error) {
	bh.count++
	if err != nil {
		bh.mix(uint64(len(err.Error())))
	}
}

// Consume records any other value.
func (bh *Blackhole) Consume(v any) {
	switch x := v.(type) {
	case []byte:
		bh.ConsumeBytes(x)
	case string:
		bh.ConsumeString(x)
	case Claims:
		bh.ConsumeClaims(x)
	case error:
		bh.ConsumeError(x)
	default:
		bh.ConsumeString(fmt.Sprint(x))
	}
}

// Count returns the number of consumed values.
func (bh *Blackhole) Count() uint64 { return bh.count }

// Checksum returns the running fold of consumed values.
func (bh *Blackhole) Checksum() uint64 { return bh.checksum }

// Reset clears the sink. Workers reset their sink between warm-up and measurement.
func (bh *Blackhole) Reset() {
	bh.count = 0
	bh.checksum = fnvOffset
}

// Flush publishes the checksum.
func (bh *Blackhole) Flush() {
	sinkEscape.Add(bh.checksum)
}
