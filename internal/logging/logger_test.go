package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOrNop(t *testing.T) {
	require.NotNil(t, OrNop(nil))
	var l Logger
	require.NotNil(t, OrNop(l))

	var fl *fileLogger
	require.Equal(t, Nop(), OrNop(fl))

	real := Nop()
	require.Equal(t, real, OrNop(real))
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, LevelDebug, ParseLevel("debug"))
	require.Equal(t, LevelWarn, ParseLevel("WARNING"))
	require.Equal(t, LevelError, ParseLevel(" error "))
	require.Equal(t, LevelInfo, ParseLevel(""))
	require.Equal(t, LevelInfo, ParseLevel("bogus"))
}

func TestSanitizeMasksCredentials(t *testing.T) {
	in := `request with Authorization: Bearer sk-abc123 and api_key="topsecret"`
	out := sanitize(in)
	require.NotContains(t, out, "sk-abc123")
	require.NotContains(t, out, "topsecret")
	require.Contains(t, out, "[REDACTED]")
}

func TestSanitizeMasksBareKeyMaterial(t *testing.T) {
	out := sanitize("gateway rejected key sk-proj-1234567890abcdef (status 401)")
	require.NotContains(t, out, "sk-proj-1234567890abcdef")
	require.Contains(t, out, "[REDACTED]")
	require.Contains(t, out, "status 401", "non-secret text must survive")
}
