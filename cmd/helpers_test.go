package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/medicalexcom/avidiatech-match/internal/config"
)

// testConfig loads defaults from an empty temp dir and points the store at
// memory. It sets the package-level cfg.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origDir) })

	c, err := config.Load()
	require.NoError(t, err)
	c.Store.Driver = "memory"
	c.Store.DatabaseURL = ""
	cfg = c
	return c
}
