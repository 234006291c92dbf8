// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package httpclient

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsBlockedIP(t *testing.T) {
	t.Parallel()

	blocked := []string{"127.0.0.1", "10.0.0.5", "192.168.1.1", "169.254.1.1", "::1", "224.0.0.1"}
	for _, ip := range blocked {
		assert.True(t, isBlockedIP(net.ParseIP(ip)), "%s should be blocked", ip)
	}

	allowed := []string{"8.8.8.8", "1.1.1.1"}
	for _, ip := range allowed {
		assert.False(t, isBlockedIP(net.ParseIP(ip)), "%s should be allowed", ip)
	}
}

func TestCheckScheme(t *testing.T) {
	t.Parallel()

	assert.NoError(t, checkScheme("https", false))
	assert.Error(t, checkScheme("http", false))
	assert.NoError(t, checkScheme("http", true))
	assert.Error(t, checkScheme("ftp", true))
}
