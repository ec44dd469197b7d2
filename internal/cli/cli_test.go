package cli

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name     string
		args     []string
		env      map[string]string
		wantExit bool
		wantCode int
		check    func(t *testing.T, out string)
	}{
		{name: "help", args: []string{"-h"}, wantExit: true},
		{name: "unknown flag", args: []string{"--nope"}, wantCode: 2},
		{name: "bad log format", args: []string{"-log-format", "xml"}, wantCode: 2},
		{name: "bad log level", args: []string{"-log-level", "loud"}, wantCode: 2},
		{name: "call without url", args: []string{"-call", "echo"}, wantCode: 2},
		{name: "two client operations", args: []string{"-discover", "-watch", "-url", "http://x"}, wantCode: 2},
		{name: "bad env", env: map[string]string{"ZERO_REQUEST_TIMEOUT": "soon"}, wantCode: 2},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			out := &bytes.Buffer{}

			cfg, exit, err := Parse(tc.args, out)

			assert.Nil(t, cfg)
			assert.Equal(t, tc.wantExit, exit)
			if tc.wantCode == 0 {
				require.NoError(t, err)
				assert.Contains(t, out.String(), "Usage:")
				return
			}
			var exitErr *ExitError
			require.True(t, errors.As(err, &exitErr))
			assert.Equal(t, tc.wantCode, exitErr.Code)
		})
	}
}

func TestParse_FlagsOverrideEnv(t *testing.T) {
	// --- Arrange ---
	t.Setenv("ZERO_ADDR", ":4000")
	t.Setenv("ZERO_LOG_LEVEL", "warn")
	t.Setenv("ZERO_REQUEST_TIMEOUT", "2s")

	// --- Act ---
	cfg, exit, err := Parse([]string{"-addr", ":5000", "-log-format", "TEXT", "descriptors/"}, &bytes.Buffer{})

	// --- Assert ---
	require.NoError(t, err)
	assert.False(t, exit)
	assert.Equal(t, ":5000", cfg.Addr)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 2*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "descriptors/", cfg.DescriptorPath)
	assert.False(t, cfg.CallMode())
}

func TestParse_CallMode(t *testing.T) {
	cfg, _, err := Parse([]string{"-call", "echo", "-url", "http://localhost:3000", "-data", `{"v":1}`, "-d", "x.hcl"}, &bytes.Buffer{})

	require.NoError(t, err)
	assert.True(t, cfg.CallMode())
	assert.Equal(t, "http://localhost:3000", cfg.Call.URL)
	assert.Equal(t, `{"v":1}`, cfg.Call.Data)
	assert.Equal(t, "x.hcl", cfg.DescriptorPath)
}

func TestParse_ClientOperations(t *testing.T) {
	cfg, _, err := Parse([]string{"-capability", "service.print", "-action", "echo", "-data", `["hi"]`, "-url", "http://x"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.True(t, cfg.CallMode())
	assert.Equal(t, "service.print", cfg.Call.Capability)
	assert.Equal(t, "echo", cfg.Call.Action)

	cfg, _, err = Parse([]string{"-watch", "-url", "http://x"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.True(t, cfg.Call.Watch)

	cfg, _, err = Parse([]string{"-snapshot", "out.hcl", "descriptors/"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.False(t, cfg.CallMode())
	assert.Equal(t, "out.hcl", cfg.Snapshot)
}
