package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"churchledger/internal/config"
)

func TestNewLogger(t *testing.T) {
	logger := NewLogger("api", &config.Config{LogLevel: "debug", LogFormat: "json"})
	require.NotNil(t, logger)
	assert.Equal(t, "api", logger.Component())
}

func TestLoadCatalogDefault(t *testing.T) {
	cat := LoadCatalog(NewLogger("test", &config.Config{LogLevel: "error"}), &config.Config{})
	assert.NotEmpty(t, cat.Denominations)
	assert.Equal(t, "₦", cat.Currency)
}

func TestInitBackendMemory(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "data"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data", "seed_branches.txt"), []byte("Lekki\nAbuja\n"), 0o644))

	logger := NewLogger("test", &config.Config{LogLevel: "error"})
	res := InitBackend(context.Background(), logger, &config.Config{DataBackend: "memory"}, false)
	t.Cleanup(func() { _ = res.Cleanup() })

	branches, err := res.Store.ListBranches(context.Background())
	require.NoError(t, err)
	assert.Len(t, branches, 2)
}
