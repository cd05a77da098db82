package filemanager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruitsalade/filemanager/internal/storage/memory"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"", "/"},
		{"/", "/"},
		{"///", "/"},
		{"docs", "/docs"},
		{"/docs/", "/docs"},
		{"a//b///c/", "/a/b/c"},
		{`a\b\c`, "/a/b/c"},
		{"./a/./b", "/a/b"},
		{"/report (final).pdf", "/report (final).pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := Normalize(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeRejectsTraversal(t *testing.T) {
	for _, raw := range []string{
		"..",
		"../etc/passwd",
		"/docs/../../secret",
		`docs\..\..\secret`,
		"a/..",
		"nul\x00byte",
	} {
		t.Run(raw, func(t *testing.T) {
			_, err := Normalize(raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidPath)
		})
	}
}

func TestFixFilename(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"report.pdf", "report.pdf", false},
		{`re:port?.pdf`, "report.pdf", false},
		{"  spaced.txt  ", "spaced.txt", false},
		{"a/b\\c.txt", "abc.txt", false},
		{"tab\there.txt", "tabhere.txt", false},
		{"../evil.txt", "..evil.txt", false},
		{"", "", true},
		{"..", "", true},
		{".", "", true},
		{`/\`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := FixFilename(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPath)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFolderExists(t *testing.T) {
	ctx := context.Background()
	disk := memory.New()
	require.NoError(t, disk.MakeDirectory(ctx, "docs/sub"))
	disk.WriteFile("docs/readme.txt", []byte("hi"))

	tests := []struct {
		path string
		want bool
	}{
		{"/docs", true},
		{"/docs/sub", true},
		{"/docs/readme.txt", false},
		{"/missing", false},
		{"/", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := FolderExists(ctx, disk, tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFolderExistsMissingParent(t *testing.T) {
	_, err := FolderExists(context.Background(), memory.New(), "/nope/child")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBreadcrumbs(t *testing.T) {
	assert.Equal(t, []Breadcrumb{{Name: "", Path: "/"}}, breadcrumbs("/"))
	assert.Equal(t, []Breadcrumb{
		{Name: "", Path: "/"},
		{Name: "a", Path: "/a"},
		{Name: "b", Path: "/a/b"},
	}, breadcrumbs("/a/b"))
}
