// sink_test.go: Tests for the result sink.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package cryptobench

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBlackhole_CountsAndFolds(t *testing.T) {
	bh := NewBlackhole()
	initial := bh.Checksum()

	bh.ConsumeBytes([]byte("hello"))
	bh.ConsumeString("world")
	bh.ConsumeClaims(NewClaims(time.Unix(1700000000, 0)))
	bh.ConsumeError(errInjected)
	bh.ConsumeError(nil)

	assert.EqualValues(t, 5, bh.Count())
	assert.NotEqual(t, initial, bh.Checksum())
}

func TestBlackhole_DistinguishesValues(t *testing.T) {
	a, b := NewBlackhole(), NewBlackhole()
	a.ConsumeBytes([]byte("abc"))
	b.ConsumeBytes([]byte("abd"))
	assert.NotEqual(t, a.Checksum(), b.Checksum())

	c, d := NewBlackhole(), NewBlackhole()
	c.ConsumeBytes(make([]byte, 10))
	d.ConsumeBytes(make([]byte, 11))
	assert.NotEqual(t, c.Checksum(), d.Checksum(), "length is part of the fold")
}

func TestBlackhole_EmptyValues(t *testing.T) {
	bh := NewBlackhole()
	bh.ConsumeBytes(nil)
	bh.ConsumeString("")
	assert.EqualValues(t, 2, bh.Count())
}

func TestBlackhole_Consume(t *testing.T) {
	typed, generic := NewBlackhole(), NewBlackhole()
	claims := NewClaims(time.Unix(1700000000, 0))

	typed.ConsumeBytes([]byte{1, 2})
	typed.ConsumeString("s")
	typed.ConsumeClaims(claims)
	typed.ConsumeError(errInjected)

	generic.Consume([]byte{1, 2})
	generic.Consume("s")
	generic.Consume(claims)
	generic.Consume(errInjected)

	assert.Equal(t, typed.Count(), generic.Count())
	assert.Equal(t, typed.Checksum(), generic.Checksum())

	generic.Consume(42)
	assert.EqualValues(t, 5, generic.Count())
}

func TestBlackhole_ResetAndFlush(t *testing.T) {
	bh := NewBlackhole()
	initial := bh.Checksum()
	bh.ConsumeString("x")

	before := sinkEscape.Load()
	bh.Flush()
	assert.Equal(t, before+bh.Checksum(), sinkEscape.Load())

	bh.Reset()
	assert.Zero(t, bh.Count())
	assert.Equal(t, initial, bh.Checksum())
}
