// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Holding Console Contributors

package errutil

import (
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertErrorCode fails the test unless err carries the oops code.
func AssertErrorCode(t testing.TB, err error, code string) {
	t.Helper()
	require.Error(t, err)
	_, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T: %v", err, err)
	assert.Equal(t, code, Code(err), "unexpected code on %v", err)
}

// AssertErrorContext fails the test unless err carries key=value in its
// oops context.
func AssertErrorContext(t testing.TB, err error, key string, value any) {
	t.Helper()
	require.Error(t, err)
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T: %v", err, err)
	errCtx := oopsErr.Context()
	if assert.Contains(t, errCtx, key) {
		assert.Equal(t, value, errCtx[key])
	}
}
