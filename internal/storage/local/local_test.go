package local

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruitsalade/filemanager/internal/storage"
	"github.com/fruitsalade/filemanager/internal/storage/storagetest"
)

func TestLocalDiskContract(t *testing.T) {
	storagetest.RunDiskTests(t, func(t *testing.T) storage.Disk {
		d, err := New(Config{RootPath: t.TempDir()})
		require.NoError(t, err)
		return d
	})
}

func TestNewCreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "root")

	_, err := New(Config{RootPath: root})
	assert.Error(t, err, "missing root without create_dirs")

	d, err := New(Config{RootPath: root, CreateDirs: true})
	require.NoError(t, err)
	assert.Equal(t, root, d.Root())
}

func TestNewRejectsFileRoot(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(f, []byte("x"), 0o644))

	_, err := New(Config{RootPath: f})
	assert.Error(t, err)

	_, err = New(Config{})
	assert.Error(t, err)
}

func TestNewFromJSON(t *testing.T) {
	root := filepath.Join(t.TempDir(), "disk")
	raw, err := json.Marshal(map[string]any{"root_path": root, "create_dirs": true})
	require.NoError(t, err)

	d, err := NewFromJSON(raw)
	require.NoError(t, err)
	assert.Equal(t, "local", d.Type())

	_, err = NewFromJSON(json.RawMessage(`{`))
	assert.Error(t, err)
}

func TestKeysStayInsideRoot(t *testing.T) {
	root := t.TempDir()
	d, err := New(Config{RootPath: root})
	require.NoError(t, err)

	_, err = d.PutFileAs(context.Background(), "../../escape", strings.NewReader("x"), 1, "a.txt")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(root, "escape", "a.txt"))
	assert.NoError(t, err, "parent segments are clamped to the root")
}

func TestTempFilesHidden(t *testing.T) {
	root := t.TempDir()
	d, err := New(Config{RootPath: root})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, ".filemanager-123.tmp"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "real.txt"), []byte("x"), 0o600))

	files, err := d.Files(context.Background(), "", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"real.txt"}, files)
}

func TestVisibilityMapsPermissions(t *testing.T) {
	root := t.TempDir()
	d, err := New(Config{RootPath: root})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = d.PutFileAs(ctx, "", strings.NewReader("x"), 1, "f.txt")
	require.NoError(t, err)
	require.NoError(t, d.SetVisibility(ctx, "f.txt", storage.VisibilityPublic))

	info, err := os.Stat(filepath.Join(root, "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}
