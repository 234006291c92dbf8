// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package oidcerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorString(t *testing.T) {
	t.Parallel()

	e := Validate(InvalidRequest, "missing redirect_uri")
	assert.Equal(t, "invalid_request: missing redirect_uri", e.Error())
	assert.Equal(t, 400, e.HTTPStatus())

	e2 := Fetch(InvalidClient, "")
	assert.Equal(t, "invalid_client", e2.Error())
	assert.Equal(t, 401, e2.HTTPStatus())
}

func TestInternalNeverLeaksCause(t *testing.T) {
	t.Parallel()

	e := Internal(errors.New("db connection refused with password=hunter2"))
	assert.Equal(t, ServerError, e.Code)
	assert.Equal(t, "an internal error occurred", e.Description)
}

func TestAs(t *testing.T) {
	t.Parallel()

	var err error = Validate(InvalidScope, "unknown scope")
	e, ok := As(err)
	assert.True(t, ok)
	assert.Equal(t, InvalidScope, e.Code)

	_, ok = As(errors.New("plain"))
	assert.False(t, ok)
}
