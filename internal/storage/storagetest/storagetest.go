// Package storagetest checks storage.Disk implementations against the
// behaviour the file manager relies on.
package storagetest

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruitsalade/filemanager/internal/storage"
)

// RunDiskTests runs the contract suite. newDisk must return an empty disk.
func RunDiskTests(t *testing.T, newDisk func(t *testing.T) storage.Disk) {
	t.Run("PutAndRead", func(t *testing.T) { testPutAndRead(t, newDisk(t)) })
	t.Run("Listing", func(t *testing.T) { testListing(t, newDisk(t)) })
	t.Run("CopyAndMove", func(t *testing.T) { testCopyAndMove(t, newDisk(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newDisk(t)) })
	t.Run("DeleteDirectory", func(t *testing.T) { testDeleteDirectory(t, newDisk(t)) })
	t.Run("Visibility", func(t *testing.T) { testVisibility(t, newDisk(t)) })
	t.Run("Missing", func(t *testing.T) { testMissing(t, newDisk(t)) })
}

func put(t *testing.T, d storage.Disk, key, body string) {
	t.Helper()
	got, err := d.PutFileAs(context.Background(), storage.Parent(key), strings.NewReader(body), int64(len(body)), key[strings.LastIndex(key, "/")+1:])
	require.NoError(t, err)
	require.Equal(t, key, got)
}

func read(t *testing.T, d storage.Disk, key string) string {
	t.Helper()
	rc, err := d.Download(context.Background(), key)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func testPutAndRead(t *testing.T, d storage.Disk) {
	ctx := context.Background()
	put(t, d, "docs/readme.txt", "hello")

	ok, err := d.FileExists(ctx, "docs/readme.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.DirectoryExists(ctx, "docs")
	require.NoError(t, err)
	assert.True(t, ok, "PutFileAs creates the parent directory")

	ok, err = d.FileExists(ctx, "docs")
	require.NoError(t, err)
	assert.False(t, ok)

	e, err := d.Stat(ctx, "docs/readme.txt")
	require.NoError(t, err)
	assert.Equal(t, "docs/readme.txt", e.Path)
	assert.Equal(t, int64(5), e.Size)
	assert.False(t, e.IsDir)

	e, err = d.Stat(ctx, "docs")
	require.NoError(t, err)
	assert.True(t, e.IsDir)

	assert.Equal(t, "hello", read(t, d, "docs/readme.txt"))
}

func testListing(t *testing.T, d storage.Disk) {
	ctx := context.Background()
	require.NoError(t, d.MakeDirectory(ctx, "a/b/c"))
	put(t, d, "top.txt", "t")
	put(t, d, "a/one.txt", "1")
	put(t, d, "a/b/two.txt", "2")

	dirs, err := d.Directories(ctx, "", false)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a"}, dirs)

	dirs, err = d.Directories(ctx, "a", true)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a/b", "a/b/c"}, dirs)

	files, err := d.Files(ctx, "", false)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"top.txt"}, files)

	files, err = d.Files(ctx, "a", true)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a/one.txt", "a/b/two.txt"}, files)

	files, err = d.Files(ctx, "a/b/c", false)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func testCopyAndMove(t *testing.T, d storage.Disk) {
	ctx := context.Background()
	put(t, d, "src/a.txt", "data")

	require.NoError(t, d.Copy(ctx, "src/a.txt", "dst/nested/a.txt"))
	assert.Equal(t, "data", read(t, d, "src/a.txt"))
	assert.Equal(t, "data", read(t, d, "dst/nested/a.txt"))

	require.NoError(t, d.Move(ctx, "src/a.txt", "moved/b.txt"))
	ok, err := d.FileExists(ctx, "src/a.txt")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "data", read(t, d, "moved/b.txt"))

	put(t, d, "over.txt", "old")
	require.NoError(t, d.Copy(ctx, "moved/b.txt", "over.txt"))
	assert.Equal(t, "data", read(t, d, "over.txt"), "copy overwrites the destination")
}

func testDelete(t *testing.T, d storage.Disk) {
	ctx := context.Background()
	put(t, d, "gone.txt", "x")

	require.NoError(t, d.Delete(ctx, "gone.txt"))
	ok, err := d.Exists(ctx, "gone.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, d.Delete(ctx, "gone.txt"), storage.ErrNotExist)
}

func testDeleteDirectory(t *testing.T, d storage.Disk) {
	ctx := context.Background()
	put(t, d, "tree/a.txt", "a")
	put(t, d, "tree/sub/b.txt", "b")
	put(t, d, "treehouse/keep.txt", "k")

	require.NoError(t, d.DeleteDirectory(ctx, "tree"))

	ok, err := d.Exists(ctx, "tree")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = d.FileExists(ctx, "treehouse/keep.txt")
	require.NoError(t, err)
	assert.True(t, ok, "siblings sharing a prefix survive")

	assert.ErrorIs(t, d.DeleteDirectory(ctx, "tree"), storage.ErrNotExist)
	assert.Error(t, d.DeleteDirectory(ctx, ""), "the disk root cannot be removed")
}

func testVisibility(t *testing.T, d storage.Disk) {
	ctx := context.Background()
	put(t, d, "v.txt", "v")

	require.NoError(t, d.SetVisibility(ctx, "v.txt", storage.VisibilityPublic))
	v, err := d.Visibility(ctx, "v.txt")
	require.NoError(t, err)
	assert.Equal(t, storage.VisibilityPublic, v)

	require.NoError(t, d.SetVisibility(ctx, "v.txt", storage.VisibilityPrivate))
	v, err = d.Visibility(ctx, "v.txt")
	require.NoError(t, err)
	assert.Equal(t, storage.VisibilityPrivate, v)
}

func testMissing(t *testing.T, d storage.Disk) {
	ctx := context.Background()

	ok, err := d.Exists(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = d.Stat(ctx, "nope")
	assert.ErrorIs(t, err, storage.ErrNotExist)

	_, err = d.Download(ctx, "nope")
	assert.ErrorIs(t, err, storage.ErrNotExist)

	assert.ErrorIs(t, d.Copy(ctx, "nope", "other"), storage.ErrNotExist)
	assert.ErrorIs(t, d.Move(ctx, "nope", "other"), storage.ErrNotExist)
	assert.ErrorIs(t, d.SetVisibility(ctx, "nope", storage.VisibilityPublic), storage.ErrNotExist)
}
