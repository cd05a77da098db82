package smb

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresMountPath(t *testing.T) {
	_, err := New(Config{Server: "//nas/share"})
	assert.Error(t, err)
}

func TestNewFromJSON(t *testing.T) {
	mount := t.TempDir()
	raw, err := json.Marshal(Config{Server: "//nas/share", Username: "svc", MountPath: mount})
	require.NoError(t, err)

	d, err := NewFromJSON(raw)
	require.NoError(t, err)
	assert.Equal(t, "smb", d.Type())
	assert.Equal(t, "//nas/share", d.Server())
	assert.Equal(t, mount, d.Root())
}
