package filemanager

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruitsalade/filemanager/internal/storage"
	"github.com/fruitsalade/filemanager/internal/storage/memory"
)

func TestClassifyExtension(t *testing.T) {
	tests := map[string]MimeClass{
		"jpg":  ClassImage,
		"webp": ClassImage,
		"mkv":  ClassVideo,
		"flac": ClassAudio,
		"pdf":  ClassDocument,
		"zst":  ClassArchive,
		"bin":  ClassOther,
		"":     ClassOther,
	}
	for ext, want := range tests {
		assert.Equal(t, want, ClassifyExtension(ext), ext)
	}
}

func TestDescribeFile(t *testing.T) {
	ctx := context.Background()
	disk := memory.New()
	disk.WriteFile("docs/Report.PDF", []byte("%PDF-1.7"))
	require.NoError(t, disk.SetVisibility(ctx, "docs/Report.PDF", storage.VisibilityPublic))

	d, err := Describe(ctx, disk, "/docs/Report.PDF", false)
	require.NoError(t, err)
	assert.Equal(t, "Report.PDF", d.Name)
	assert.Equal(t, "/docs/Report.PDF", d.Path)
	assert.Equal(t, "pdf", d.Extension)
	assert.Equal(t, int64(8), d.Size)
	assert.Equal(t, ClassDocument, d.MimeClass)
	assert.Equal(t, "application/pdf", d.MimeType)
	assert.Equal(t, storage.VisibilityPublic, d.Visibility)
	assert.False(t, d.LastModified.IsZero())
	assert.Nil(t, d.Extras)
}

func TestDescribeDirectory(t *testing.T) {
	ctx := context.Background()
	disk := memory.New()
	require.NoError(t, disk.MakeDirectory(ctx, "photos"))

	d, err := Describe(ctx, disk, "/photos", true)
	require.NoError(t, err)
	assert.True(t, d.IsDirectory)
	assert.Equal(t, ClassDirectory, d.MimeClass)
	assert.Empty(t, d.Extension)
	assert.Nil(t, d.Extras, "directories carry no extras")
}

func TestImageExtras(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 6, 3))))

	x, err := ImageExtras(buf.Bytes(), "png")
	require.NoError(t, err)
	assert.Equal(t, 6, x.Width)
	assert.Equal(t, 3, x.Height)
	assert.Equal(t, "PNG", x.Format)
	assert.Empty(t, x.CameraMake)

	_, err = ImageExtras([]byte("not an image"), "png")
	assert.Error(t, err)
}
