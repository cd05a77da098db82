// Package local provides a local filesystem storage disk.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fruitsalade/filemanager/internal/storage"
)

const tempPattern = ".filemanager-*.tmp"

// Config holds local filesystem disk settings.
type Config struct {
	RootPath   string `json:"root_path"`
	CreateDirs bool   `json:"create_dirs"`
}

// LocalDisk implements storage.Disk using the local filesystem.
type LocalDisk struct {
	rootPath string
}

// New creates a new local filesystem disk.
func New(cfg Config) (*LocalDisk, error) {
	if cfg.RootPath == "" {
		return nil, fmt.Errorf("root_path is required")
	}

	root, err := filepath.Abs(cfg.RootPath)
	if err != nil {
		return nil, fmt.Errorf("resolve root path %s: %w", cfg.RootPath, err)
	}

	// Ensure root exists
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) && cfg.CreateDirs {
			if mkErr := os.MkdirAll(root, 0755); mkErr != nil {
				return nil, fmt.Errorf("create root path %s: %w", root, mkErr)
			}
		} else {
			return nil, fmt.Errorf("stat root path %s: %w", root, err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("root path %s is not a directory", root)
	}

	return &LocalDisk{rootPath: root}, nil
}

// NewFromJSON creates a LocalDisk from raw JSON config.
func NewFromJSON(raw json.RawMessage) (*LocalDisk, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse local config: %w", err)
	}
	return New(cfg)
}

// Root returns the absolute directory the disk is rooted at.
func (d *LocalDisk) Root() string { return d.rootPath }

func (d *LocalDisk) fullPath(key string) string {
	return filepath.Join(d.rootPath, filepath.FromSlash(storage.Clean(key)))
}

func (d *LocalDisk) key(full string) string {
	rel, err := filepath.Rel(d.rootPath, full)
	if err != nil {
		return ""
	}
	return storage.Clean(filepath.ToSlash(rel))
}

func notExist(op, key string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s %s: %w", op, key, storage.ErrNotExist)
	}
	return fmt.Errorf("%s %s: %w", op, key, err)
}

// Exists checks if a file or directory exists.
func (d *LocalDisk) Exists(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(d.fullPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", key, err)
	}
	return true, nil
}

// DirectoryExists checks if a directory exists.
func (d *LocalDisk) DirectoryExists(_ context.Context, key string) (bool, error) {
	info, err := os.Stat(d.fullPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", key, err)
	}
	return info.IsDir(), nil
}

// FileExists checks if a regular file exists.
func (d *LocalDisk) FileExists(_ context.Context, key string) (bool, error) {
	info, err := os.Stat(d.fullPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", key, err)
	}
	return info.Mode().IsRegular(), nil
}

// Files lists files under dir.
func (d *LocalDisk) Files(ctx context.Context, dir string, recursive bool) ([]string, error) {
	return d.list(ctx, dir, recursive, false)
}

// Directories lists directories under dir.
func (d *LocalDisk) Directories(ctx context.Context, dir string, recursive bool) ([]string, error) {
	return d.list(ctx, dir, recursive, true)
}

func (d *LocalDisk) list(ctx context.Context, dir string, recursive, dirs bool) ([]string, error) {
	base := d.fullPath(dir)
	var out []string

	if !recursive {
		entries, err := os.ReadDir(base)
		if err != nil {
			return nil, notExist("list", dir, err)
		}
		for _, e := range entries {
			if isTemp(e.Name()) || e.IsDir() != dirs {
				continue
			}
			out = append(out, storage.Join(dir, e.Name()))
		}
		return out, nil
	}

	err := filepath.WalkDir(base, func(p string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if p == base || isTemp(e.Name()) || e.IsDir() != dirs {
			return nil
		}
		out = append(out, d.key(p))
		return nil
	})
	if err != nil {
		return nil, notExist("walk", dir, err)
	}
	sort.Strings(out)
	return out, nil
}

func isTemp(name string) bool {
	return strings.HasPrefix(name, ".filemanager-") && strings.HasSuffix(name, ".tmp")
}

// MakeDirectory creates a directory and its parents.
func (d *LocalDisk) MakeDirectory(_ context.Context, key string) error {
	if err := os.MkdirAll(d.fullPath(key), 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", key, err)
	}
	return nil
}

// DeleteDirectory removes a directory recursively.
func (d *LocalDisk) DeleteDirectory(_ context.Context, key string) error {
	if storage.Clean(key) == "" {
		return fmt.Errorf("delete directory: refusing to remove disk root")
	}
	path := d.fullPath(key)
	info, err := os.Stat(path)
	if err != nil {
		return notExist("delete directory", key, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("delete directory %s: not a directory", key)
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("delete directory %s: %w", key, err)
	}
	return nil
}

// Delete removes a file from the local filesystem.
func (d *LocalDisk) Delete(_ context.Context, key string) error {
	if err := os.Remove(d.fullPath(key)); err != nil {
		return notExist("delete", key, err)
	}
	return nil
}

// Copy copies a file on the local filesystem.
func (d *LocalDisk) Copy(_ context.Context, srcKey, dstKey string) error {
	src, err := os.Open(d.fullPath(srcKey))
	if err != nil {
		return notExist("open src", srcKey, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("stat src %s: %w", srcKey, err)
	}

	if err := d.writeAtomic(dstKey, src); err != nil {
		return fmt.Errorf("copy %s -> %s: %w", srcKey, dstKey, err)
	}
	return os.Chmod(d.fullPath(dstKey), info.Mode().Perm())
}

// Move renames a file, creating the destination's parent directories.
func (d *LocalDisk) Move(_ context.Context, srcKey, dstKey string) error {
	dst := d.fullPath(dstKey)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("create dirs for %s: %w", dstKey, err)
	}
	if err := os.Rename(d.fullPath(srcKey), dst); err != nil {
		return notExist("move", srcKey, err)
	}
	return nil
}

// PutFileAs writes content to dir/name atomically.
func (d *LocalDisk) PutFileAs(_ context.Context, dir string, body io.Reader, _ int64, name string) (string, error) {
	key := storage.Join(dir, name)
	if err := d.writeAtomic(key, body); err != nil {
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	return key, nil
}

// writeAtomic writes to a temp file then renames it into place.
func (d *LocalDisk) writeAtomic(key string, body io.Reader) error {
	path := d.fullPath(key)
	dir := filepath.Dir(path)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create dirs for %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", key, err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp for %s: %w", key, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp to %s: %w", key, err)
	}
	return nil
}

// SetVisibility maps visibility to file permissions.
func (d *LocalDisk) SetVisibility(_ context.Context, key string, v storage.Visibility) error {
	path := d.fullPath(key)
	info, err := os.Stat(path)
	if err != nil {
		return notExist("set visibility", key, err)
	}

	var mode os.FileMode = 0600
	switch {
	case info.IsDir() && v == storage.VisibilityPublic:
		mode = 0755
	case info.IsDir():
		mode = 0700
	case v == storage.VisibilityPublic:
		mode = 0644
	}
	if err := os.Chmod(path, mode); err != nil {
		return fmt.Errorf("chmod %s: %w", key, err)
	}
	return nil
}

// Visibility reports public when the path is world-readable.
func (d *LocalDisk) Visibility(_ context.Context, key string) (storage.Visibility, error) {
	info, err := os.Stat(d.fullPath(key))
	if err != nil {
		return "", notExist("stat", key, err)
	}
	if info.Mode().Perm()&0004 != 0 {
		return storage.VisibilityPublic, nil
	}
	return storage.VisibilityPrivate, nil
}

// Stat returns the entry for a path.
func (d *LocalDisk) Stat(_ context.Context, key string) (storage.Entry, error) {
	info, err := os.Stat(d.fullPath(key))
	if err != nil {
		return storage.Entry{}, notExist("stat", key, err)
	}
	e := storage.Entry{
		Path:    storage.Clean(key),
		ModTime: info.ModTime(),
		IsDir:   info.IsDir(),
	}
	if !e.IsDir {
		e.Size = info.Size()
	}
	return e, nil
}

// Download opens a file for reading.
func (d *LocalDisk) Download(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(d.fullPath(key))
	if err != nil {
		return nil, notExist("open", key, err)
	}
	return f, nil
}

// Type returns "local".
func (d *LocalDisk) Type() string { return "local" }

// Close is a no-op for local disks.
func (d *LocalDisk) Close() error { return nil }
