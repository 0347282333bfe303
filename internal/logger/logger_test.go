package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"":        LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	require.Error(t, err)
}

func TestLogger_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New()
	l.SetOutput(&buf)
	l.SetLevel(LevelWarn)

	l.Info("hidden %d", 1)
	l.Warn("shown %d", 2)

	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "[WARN] shown 2")
}

func TestLogger_ConfigureFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridges.log")
	l := New()
	require.NoError(t, l.Configure("debug", path))

	l.Debug("search issued term=%q", "ja")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `[DEBUG] search issued term="ja"`)
}

func TestLogger_ConfigureRejectsBadLevel(t *testing.T) {
	l := New()
	require.Error(t, l.Configure("verbose", ""))
}
