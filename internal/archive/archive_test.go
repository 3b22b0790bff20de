package archive

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirSave(t *testing.T) {
	root := t.TempDir()
	a, err := Open(context.Background(), "dir://"+root, nil)
	require.NoError(t, err)
	defer a.Close()

	uri, err := a.Save(context.Background(), "br-1/Service Details 2024-03-03.pdf", "application/pdf", []byte("%PDF-1.3"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "file://"))
	assert.True(t, strings.HasSuffix(uri, "Service Details 2024-03-03.pdf"))

	data, err := os.ReadFile(filepath.Join(root, "br-1", "Service Details 2024-03-03.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.3", string(data))

	// Saving again replaces the file.
	_, err = a.Save(context.Background(), "br-1/Service Details 2024-03-03.pdf", "application/pdf", []byte("v2"))
	require.NoError(t, err)
	data, err = os.ReadFile(filepath.Join(root, "br-1", "Service Details 2024-03-03.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}

func TestDirSaveRejectsEscapingNames(t *testing.T) {
	a, err := NewDir(t.TempDir())
	require.NoError(t, err)
	for _, name := range []string{"", ".", "..", "../x.pdf", "/etc/x.pdf"} {
		_, err := a.Save(context.Background(), name, "", nil)
		assert.Error(t, err, name)
	}
}

func TestOpen(t *testing.T) {
	_, err := Open(context.Background(), "", nil)
	assert.True(t, errors.Is(err, ErrNotConfigured))

	_, err = Open(context.Background(), "s3://bucket", nil)
	assert.Error(t, err)

	_, err = Open(context.Background(), "gs://", nil)
	assert.Error(t, err)
}

func TestDirSaveHonoursCancellation(t *testing.T) {
	a, err := NewDir(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.Save(ctx, "x.pdf", "", []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
}
