package factory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruitsalade/filemanager/internal/metrics"
	"github.com/fruitsalade/filemanager/internal/storage"
)

func TestNewDiskFromConfig(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "files")

	d, err := NewDiskFromConfig(ctx, "local", json.RawMessage(`{"root_path":"`+root+`","create_dirs":true}`))
	require.NoError(t, err)
	assert.Equal(t, "local", d.Type())

	d, err = NewDiskFromConfig(ctx, "smb", json.RawMessage(`{"server":"//nas/share","mount_path":"`+root+`"}`))
	require.NoError(t, err)
	assert.Equal(t, "smb", d.Type())

	d, err = NewDiskFromConfig(ctx, "memory", nil)
	require.NoError(t, err)
	assert.Equal(t, "memory", d.Type())

	_, err = NewDiskFromConfig(ctx, "ftp", nil)
	assert.Error(t, err)

	_, err = NewDiskFromConfig(ctx, "local", json.RawMessage(`{}`))
	assert.Error(t, err, "root_path is required")
}

func TestDisksRecordStorageMetrics(t *testing.T) {
	ctx := context.Background()
	d, err := NewDiskFromConfig(ctx, "memory", nil)
	require.NoError(t, err)

	_, err = d.PutFileAs(ctx, "docs", strings.NewReader("hi"), 2, "a.txt")
	require.NoError(t, err)
	_, err = d.Stat(ctx, "docs/missing.txt")
	assert.ErrorIs(t, err, storage.ErrNotExist, "errors pass through unchanged")

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `filemanager_storage_operations_total{disk_type="memory",operation="put",status="success"}`)
	assert.Contains(t, body, `filemanager_storage_operations_total{disk_type="memory",operation="stat",status="error"}`)
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	disks := storage.NewDisks("scratch")

	err := Load(ctx, disks, map[string]Definition{
		"scratch": {Type: "memory"},
		"files":   {Type: "local", Config: json.RawMessage(`{"root_path":"` + t.TempDir() + `"}`)},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"files", "scratch"}, disks.Names())

	d, name, err := disks.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "scratch", name)
	assert.Equal(t, "memory", d.Type())
}

func TestLoadRequiresDefault(t *testing.T) {
	disks := storage.NewDisks("missing")
	err := Load(context.Background(), disks, map[string]Definition{"scratch": {Type: "memory"}})
	assert.ErrorIs(t, err, storage.ErrUnknownDisk)
}

func TestLoadReportsDiskName(t *testing.T) {
	disks := storage.NewDisks("bad")
	err := Load(context.Background(), disks, map[string]Definition{"bad": {Type: "nope"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk bad")
}
