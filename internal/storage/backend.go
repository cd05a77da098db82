// Package storage defines the Disk interface for file storage backends
// and a registry of named disks.
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"
)

var (
	// ErrNotExist is returned when a path is absent from a disk.
	ErrNotExist = errors.New("storage: path does not exist")

	// ErrExist is returned when a path is already present on a disk.
	ErrExist = errors.New("storage: path already exists")
)

// Visibility is the access flag a disk attaches to a stored path.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// ParseVisibility maps a user-supplied value to a Visibility.
// Anything other than "public" is treated as private.
func ParseVisibility(s string) Visibility {
	if strings.EqualFold(strings.TrimSpace(s), string(VisibilityPublic)) {
		return VisibilityPublic
	}
	return VisibilityPrivate
}

// Entry describes a single stored path.
type Entry struct {
	Path    string
	Size    int64
	ModTime time.Time
	IsDir   bool
}

// Disk is the interface for storage backends.
//
// Paths are disk-relative, slash-separated and carry no leading slash;
// the root is "". Implementations handle raw I/O (local filesystem, S3,
// SMB mounts, memory) and never interpret user input.
type Disk interface {
	// Exists reports whether a file or directory exists at path.
	Exists(ctx context.Context, path string) (bool, error)

	// DirectoryExists reports whether a directory exists at path.
	DirectoryExists(ctx context.Context, path string) (bool, error)

	// FileExists reports whether a regular file exists at path.
	FileExists(ctx context.Context, path string) (bool, error)

	// Files lists file paths under dir, descending into sub-directories
	// when recursive is set.
	Files(ctx context.Context, dir string, recursive bool) ([]string, error)

	// Directories lists directory paths under dir, excluding dir itself.
	Directories(ctx context.Context, dir string, recursive bool) ([]string, error)

	// MakeDirectory creates path and any missing parents.
	MakeDirectory(ctx context.Context, path string) error

	// DeleteDirectory removes path and everything beneath it.
	DeleteDirectory(ctx context.Context, path string) error

	// Delete removes a single file.
	Delete(ctx context.Context, path string) error

	// Copy copies a single file from src to dst, overwriting dst.
	Copy(ctx context.Context, src, dst string) error

	// Move moves a single file from src to dst, overwriting dst.
	Move(ctx context.Context, src, dst string) error

	// PutFileAs writes body to dir/name and returns the stored path.
	PutFileAs(ctx context.Context, dir string, body io.Reader, size int64, name string) (string, error)

	// SetVisibility changes the visibility of path.
	SetVisibility(ctx context.Context, path string, v Visibility) error

	// Visibility returns the visibility of path.
	Visibility(ctx context.Context, path string) (Visibility, error)

	// Stat returns size, modification time and type of path.
	Stat(ctx context.Context, path string) (Entry, error)

	// Download opens the content of a file for reading.
	Download(ctx context.Context, path string) (io.ReadCloser, error)

	// Type returns the backend type identifier ("local", "s3", "smb", "memory").
	Type() string

	// Close releases any resources held by the backend.
	Close() error
}

// Clean converts a path into the disk-relative form used by Disk
// implementations: no leading or trailing slash, root is "".
func Clean(p string) string {
	p = strings.Trim(path.Clean("/"+p), "/")
	return p
}

// Join joins disk-relative path elements.
func Join(elem ...string) string {
	return Clean(path.Join(elem...))
}

// Parent returns the disk-relative parent of p ("" for top-level entries).
func Parent(p string) string {
	dir := path.Dir("/" + Clean(p))
	return Clean(dir)
}

// IsWithin reports whether p equals dir or lies beneath it.
func IsWithin(p, dir string) bool {
	p, dir = Clean(p), Clean(dir)
	if dir == "" {
		return true
	}
	return p == dir || strings.HasPrefix(p, dir+"/")
}
