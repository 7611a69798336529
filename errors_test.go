// errors_test.go: Tests for coded sentinel errors.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package cryptobench

import (
	"errors"
	"testing"

	goerrors "github.com/agilira/go-errors"
	"github.com/stretchr/testify/assert"
)

// errorCode returns the code of the first rich error in err's tree.
func errorCode(err error) goerrors.ErrorCode {
	var rich *goerrors.Error
	if errors.As(err, &rich) {
		return rich.ErrorCode()
	}
	return ""
}

func TestNewError_CarriesCodeAndSentinel(t *testing.T) {
	err := newError(ErrUnsupportedAlgorithm, ErrCodeUnsupportedAlg, "no such algorithm")

	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)
	assert.Equal(t, goerrors.ErrorCode(ErrCodeUnsupportedAlg), errorCode(err))
	assert.Contains(t, err.Error(), "[BENCH_UNSUPPORTED_ALGORITHM]: no such algorithm")
}

func TestWrapError_KeepsCause(t *testing.T) {
	err := wrapError(ErrSetup, errInjected, ErrCodeSetup, "setup failed")

	assert.ErrorIs(t, err, ErrSetup)
	assert.ErrorIs(t, err, errInjected)
	assert.Equal(t, goerrors.ErrorCode(ErrCodeSetup), errorCode(err))
}

func TestNewError_CodeChosenAtRuntime(t *testing.T) {
	for _, threads := range []int{1, 4} {
		sentinel, code := ErrOperation, goerrors.ErrorCode(ErrCodeOperation)
		if threads > 1 {
			sentinel, code = ErrConcurrencyUnsafe, ErrCodeConcurrency
		}
		err := newError(sentinel, code, "shared fixtures changed")
		assert.ErrorIs(t, err, sentinel)
		assert.Equal(t, code, errorCode(err))
	}
}
