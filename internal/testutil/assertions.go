// Package testutil provides common test utilities and assertions for picohost tests.
package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wasmpico/picohost/wireformat"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// ObservedLogger returns a debug-level logger and the entries it records.
func ObservedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

// RequireLogged asserts exactly one entry with msg was logged and returns its fields.
func RequireLogged(t *testing.T, logs *observer.ObservedLogs, msg string) map[string]interface{} {
	t.Helper()
	entries := logs.FilterMessage(msg).All()
	require.Len(t, entries, 1, "log entries with message %q", msg)
	return entries[0].ContextMap()
}

// DecodeCBOR decodes a wire payload into a new T.
func DecodeCBOR[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, wireformat.Unmarshal(data, &v))
	return v
}

// EncodeCBOR encodes v for the wire.
func EncodeCBOR(t *testing.T, v any) []byte {
	t.Helper()
	data, err := wireformat.Marshal(v)
	require.NoError(t, err)
	return data
}

// AssertDurationWithin asserts that a duration is within a tolerance of an expected value
func AssertDurationWithin(t *testing.T, expected, actual, tolerance time.Duration, msgAndArgs ...interface{}) {
	t.Helper()

	diff := expected - actual
	if diff < 0 {
		diff = -diff
	}

	assert.LessOrEqual(t, diff, tolerance, msgAndArgs...)
}
