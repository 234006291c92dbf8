// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package randid

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpaqueLengthAndUniqueness(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		s, err := Opaque(32)
		require.NoError(t, err)
		assert.False(t, seen[s], "collision at iteration %d", i)
		seen[s] = true
		assert.False(t, strings.ContainsAny(s, "=+/"))
	}
}

func TestUserCodeAlphabet(t *testing.T) {
	t.Parallel()

	for i := 0; i < 200; i++ {
		code, err := UserCode(8, DefaultUserCodeAlphabet)
		require.NoError(t, err)
		assert.Len(t, code, 8)
		for _, r := range code {
			assert.Contains(t, DefaultUserCodeAlphabet, string(r))
		}
	}
}

func TestFormattedUserCode(t *testing.T) {
	t.Parallel()

	code, err := FormattedUserCode()
	require.NoError(t, err)
	assert.Len(t, code, 9)
	assert.Equal(t, "-", string(code[4]))
}

func TestUserCodeEmptyAlphabet(t *testing.T) {
	t.Parallel()

	_, err := UserCode(4, "")
	assert.Error(t, err)
}
