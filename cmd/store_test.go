package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medicalexcom/avidiatech-match/internal/store"
)

func TestInitStore_Memory(t *testing.T) {
	testConfig(t)

	st, err := initStore(context.Background())
	require.NoError(t, err)
	_, ok := st.(*store.MemoryStore)
	assert.True(t, ok)
}

func TestInitStore_SQLite(t *testing.T) {
	c := testConfig(t)
	c.Store.Driver = "sqlite"
	c.Store.DatabaseURL = filepath.Join(t.TempDir(), "test.db")

	st, err := initStore(context.Background())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
}

func TestInitStore_UnsupportedDriver(t *testing.T) {
	c := testConfig(t)
	c.Store.Driver = "mongo"

	_, err := initStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}

func TestInitSuppliers(t *testing.T) {
	c := testConfig(t)

	c.Suppliers.Path = filepath.Join(t.TempDir(), "missing.yaml")
	tbl, err := initSuppliers()
	require.NoError(t, err)
	assert.Empty(t, tbl.Keys())

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("suppliers:\n  a:\n    strategy: telepathy\n"), 0o600))
	c.Suppliers.Path = bad
	_, err = initSuppliers()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown strategy")
}

func TestInitResolver_InvalidConfig(t *testing.T) {
	c := testConfig(t)
	c.Resolve.VerifyConcurrency = 0

	_, err := initResolver(context.Background(), "resolve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "verify_concurrency")
}
