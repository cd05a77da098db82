package filemanager

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruitsalade/filemanager/internal/storage/memory"
)

func seedTree(t *testing.T) *memory.MemoryDisk {
	t.Helper()
	disk := memory.New()
	disk.WriteFile("photos/1.jpg", []byte("one"))
	disk.WriteFile("photos/2.jpg", []byte("two"))
	disk.WriteFile("photos/2024/3.jpg", []byte("three"))
	require.NoError(t, disk.MakeDirectory(context.Background(), "photos/empty"))
	return disk
}

func TestCopySubtree(t *testing.T) {
	ctx := context.Background()
	disk := seedTree(t)

	res, err := CopySubtree(ctx, disk, "/photos", "/backup")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 3, res.Copied)
	assert.True(t, res.Complete())

	for src, dst := range map[string]string{
		"photos/1.jpg":      "backup/1.jpg",
		"photos/2.jpg":      "backup/2.jpg",
		"photos/2024/3.jpg": "backup/2024/3.jpg",
	} {
		want, _ := disk.ReadFile(src)
		got, ok := disk.ReadFile(dst)
		require.True(t, ok, dst)
		assert.Equal(t, want, got)
	}
	ok, err := disk.DirectoryExists(ctx, "backup/empty")
	require.NoError(t, err)
	assert.True(t, ok)

	// source untouched
	ok, _ = disk.FileExists(ctx, "photos/1.jpg")
	assert.True(t, ok)
}

func TestRenameSubtree(t *testing.T) {
	ctx := context.Background()
	disk := seedTree(t)
	before, _ := disk.Files(ctx, "photos", true)

	res, err := RenameSubtree(ctx, disk, "/photos", "pictures")
	require.NoError(t, err)
	assert.Equal(t, "/pictures", res.Destination)

	ok, err := disk.DirectoryExists(ctx, "photos")
	require.NoError(t, err)
	assert.False(t, ok, "source should be removed")

	after, err := disk.Files(ctx, "pictures", true)
	require.NoError(t, err)
	assert.Len(t, after, len(before))

	got, _ := disk.ReadFile("pictures/2024/3.jpg")
	assert.Equal(t, []byte("three"), got)
}

func TestRenameSubtreePartialFailureKeepsSource(t *testing.T) {
	ctx := context.Background()
	disk := seedTree(t)
	disk.SetFault(func(op, path string) error {
		if op == memory.OpCopy && path == "photos/2.jpg" {
			return errors.New("injected")
		}
		return nil
	})

	res, err := RenameSubtree(ctx, disk, "/photos", "pictures")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPartialFailure)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 2, res.Copied)
	assert.Equal(t, []string{"/photos/2.jpg"}, res.Failed)

	for _, f := range []string{"photos/1.jpg", "photos/2.jpg", "photos/2024/3.jpg"} {
		ok, err := disk.FileExists(ctx, f)
		require.NoError(t, err)
		assert.True(t, ok, "%s must survive a partial copy", f)
	}
	ok, _ := disk.FileExists(ctx, "pictures/1.jpg")
	assert.True(t, ok, "destination is left partially populated")
}

func TestRenameSubtreeDeleteDirectoryFault(t *testing.T) {
	ctx := context.Background()
	disk := seedTree(t)
	disk.SetFault(func(op, path string) error {
		if op == memory.OpDeleteDirectory {
			return errors.New("injected")
		}
		return nil
	})

	_, err := RenameSubtree(ctx, disk, "/photos", "pictures")
	assert.ErrorIs(t, err, ErrBackendFailure)

	ok, _ := disk.FileExists(ctx, "pictures/2024/3.jpg")
	assert.True(t, ok)
	ok, _ = disk.FileExists(ctx, "photos/2024/3.jpg")
	assert.True(t, ok)
}

func TestRenameSubtreeDestinationExists(t *testing.T) {
	ctx := context.Background()
	disk := seedTree(t)
	disk.WriteFile("pictures/keep.txt", []byte("keep"))

	_, err := RenameSubtree(ctx, disk, "/photos", "pictures")
	assert.ErrorIs(t, err, ErrAlreadyExists)

	files, _ := disk.Files(ctx, "pictures", true)
	assert.Equal(t, []string{"pictures/keep.txt"}, files)
}

func TestRenameSubtreeMissingSource(t *testing.T) {
	_, err := RenameSubtree(context.Background(), memory.New(), "/nope", "other")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRenameSubtreeRejectsBadNames(t *testing.T) {
	disk := seedTree(t)
	_, err := RenameSubtree(context.Background(), disk, "/photos", "..")
	assert.ErrorIs(t, err, ErrInvalidPath)
	_, err = RenameSubtree(context.Background(), disk, "/", "x")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestMoveSubtree(t *testing.T) {
	ctx := context.Background()
	disk := seedTree(t)
	require.NoError(t, disk.MakeDirectory(ctx, "archive"))

	res, err := MoveSubtree(ctx, disk, "/photos", "/archive/photos")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Copied)

	ok, _ := disk.FileExists(ctx, "archive/photos/2024/3.jpg")
	assert.True(t, ok)
	ok, _ = disk.DirectoryExists(ctx, "photos")
	assert.False(t, ok)
}

func TestMoveSubtreeIntoItself(t *testing.T) {
	disk := seedTree(t)
	_, err := MoveSubtree(context.Background(), disk, "/photos", "/photos/2024/photos")
	assert.ErrorIs(t, err, ErrInvalidPath)

	ok, _ := disk.FileExists(context.Background(), "photos/1.jpg")
	assert.True(t, ok)
}

func TestDuplicateFile(t *testing.T) {
	ctx := context.Background()
	disk := memory.New()
	disk.WriteFile("image.png", []byte("png"))

	first, err := DuplicateFile(ctx, disk, "/image.png")
	require.NoError(t, err)
	assert.Equal(t, "/image(1).png", first)

	second, err := DuplicateFile(ctx, disk, "/image.png")
	require.NoError(t, err)
	assert.Equal(t, "/image(2).png", second)

	got, _ := disk.ReadFile("image(2).png")
	assert.Equal(t, []byte("png"), got)
}

func TestDuplicateFileContinuesNumericSuffix(t *testing.T) {
	ctx := context.Background()
	disk := memory.New()
	disk.WriteFile("docs/scan(3).jpg", []byte("x"))
	disk.WriteFile("docs/scan(4).jpg", []byte("y"))

	dst, err := DuplicateFile(ctx, disk, "/docs/scan(3).jpg")
	require.NoError(t, err)
	assert.Equal(t, "/docs/scan(5).jpg", dst)
}

func TestDuplicateFileLiteralParentheses(t *testing.T) {
	ctx := context.Background()
	disk := memory.New()
	disk.WriteFile("report (final).pdf", []byte("x"))

	dst, err := DuplicateFile(ctx, disk, "/report (final).pdf")
	require.NoError(t, err)
	assert.Equal(t, "/report (final)(1).pdf", dst)
}

func TestDuplicateFileRejectsDirectories(t *testing.T) {
	disk := seedTree(t)
	_, err := DuplicateFile(context.Background(), disk, "/photos")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDuplicateFileMissing(t *testing.T) {
	_, err := DuplicateFile(context.Background(), memory.New(), "/nope.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDuplicateParts(t *testing.T) {
	tests := []struct {
		name   string
		stem   string
		offset int
		ext    string
	}{
		{"image.png", "image", 0, ".png"},
		{"image(1).png", "image", 1, ".png"},
		{"notes(12)", "notes", 12, ""},
		{"a(1)(2).txt", "a(1)", 2, ".txt"},
		{"report (final).pdf", "report (final)", 0, ".pdf"},
		{"photo (2).jpg", "photo ", 2, ".jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stem, offset, ext := duplicateParts(tt.name)
			assert.Equal(t, tt.stem, stem)
			assert.Equal(t, tt.offset, offset)
			assert.Equal(t, tt.ext, ext)
		})
	}
}
