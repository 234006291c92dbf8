// SPDX-FileCopyrightText: Copyright 2025 NexAuth, Inc.
// SPDX-License-Identifier: Apache-2.0

package obslog

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func setSingletonForTest(t *testing.T, l *slog.Logger) {
	t.Helper()
	prev := singleton.Load()
	singleton.Store(l)
	t.Cleanup(func() { singleton.Store(prev) })
}

func TestLogLevels(t *testing.T) { //nolint:paralleltest // mutates singleton
	tests := []struct {
		name     string
		logFn    func()
		contains string
	}{
		{"Debug", func() { Debug("debug msg") }, "debug msg"},
		{"Debugf", func() { Debugf("debug %s", "formatted") }, "debug formatted"},
		{"Debugw", func() { Debugw("debug kv", "key", "val") }, "debug kv"},
		{"Info", func() { Info("info msg") }, "info msg"},
		{"Infow", func() { Infow("info kv", "key", "val") }, "info kv"},
		{"Warn", func() { Warn("warn msg") }, "warn msg"},
		{"Error", func() { Error("error msg") }, "error msg"},
	}

	for _, tt := range tests {
		buf := &bytes.Buffer{}
		l := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
		setSingletonForTest(t, l)

		tt.logFn()

		assert.True(t, strings.Contains(buf.String(), tt.contains), "log output %q missing %q", buf.String(), tt.contains)
	}
}

func TestUnstructuredLogsDefault(t *testing.T) {
	t.Setenv("UNSTRUCTURED_LOGS", "")
	assert.True(t, unstructuredLogs())

	t.Setenv("UNSTRUCTURED_LOGS", "false")
	assert.False(t, unstructuredLogs())

	t.Setenv("UNSTRUCTURED_LOGS", "not-a-bool")
	assert.True(t, unstructuredLogs())
}
