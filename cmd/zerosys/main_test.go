package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRun_PanicRecovery(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// A descriptor with a syntax error makes app.NewApp panic while
	// collecting.
	invalidHCL := `
		component "service" "A" {
			attributes = {
		// Missing closing brace here
	`
	tempDir := t.TempDir()
	filePath := filepath.Join(tempDir, "main.hcl")
	err := os.WriteFile(filePath, []byte(invalidHCL), 0600)
	require.NoError(t, err, "failed to set up test file")

	args := []string{"-log-level", "error", filePath}
	out := &bytes.Buffer{}

	// --- Act ---
	runErr := run(context.Background(), out, args)

	// --- Assert ---
	require.Error(t, runErr, "run() should have returned an error after recovering from a panic")

	errStr := runErr.Error()
	require.True(t, strings.Contains(errStr, "application startup panicked"), "The error message should indicate that a panic was recovered.")
	require.True(t, strings.Contains(errStr, "failed to parse"), "The error message should contain the underlying reason for the panic.")
}

func TestRun_ShouldExit(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// The "-h" (help) flag should cause cli.Parse to return `shouldExit=true`.
	args := []string{"-h"}
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(context.Background(), out, args)

	// --- Assert ---
	require.NoError(t, err, "run() should return a nil error when shouldExit is true")
	require.Contains(t, out.String(), "Usage:", "Expected help text to be printed to the output buffer")
}

func TestRun_ParseError(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// Providing an unknown flag will cause cli.Parse to return an error.
	args := []string{"--this-is-not-a-valid-flag"}
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(context.Background(), out, args)

	// --- Assert ---
	require.Error(t, err, "run() should return an error when argument parsing fails")
	require.Contains(t, err.Error(), "flag provided but not defined: -this-is-not-a-valid-flag")
}

func TestRun_Snapshot(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	dir := t.TempDir()
	descriptorPath := filepath.Join(dir, "main.hcl")
	require.NoError(t, os.WriteFile(descriptorPath, []byte(`
component "service" "env" {
  attributes = { prefix = "ZERO_" }
}
`), 0600))
	snapshotPath := filepath.Join(dir, "out", "snapshot.hcl")
	require.NoError(t, os.MkdirAll(filepath.Dir(snapshotPath), 0o755))

	// --- Act ---
	err := run(context.Background(), &bytes.Buffer{}, []string{"-log-level", "error", "-snapshot", snapshotPath, descriptorPath})

	// --- Assert ---
	require.NoError(t, err)
	raw, err := os.ReadFile(snapshotPath)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"ZERO_"`)
}
