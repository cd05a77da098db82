// Package memory provides an in-memory storage disk.
//
// Besides the "memory" disk type it backs the test suites of the packages
// built on storage.Disk: a Fault hook lets callers fail chosen operations.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fruitsalade/filemanager/internal/storage"
)

// Operation names passed to a Fault hook.
const (
	OpCopy            = "copy"
	OpMove            = "move"
	OpDelete          = "delete"
	OpDeleteDirectory = "delete_directory"
	OpMakeDirectory   = "make_directory"
	OpPut             = "put"
	OpSetVisibility   = "set_visibility"
	OpDownload        = "download"
)

// Fault decides whether an operation on path should fail.
// A nil return lets the operation proceed.
type Fault func(op, path string) error

type object struct {
	data       []byte
	modTime    time.Time
	visibility storage.Visibility
}

// MemoryDisk implements storage.Disk in process memory.
type MemoryDisk struct {
	mu    sync.RWMutex
	files map[string]*object
	dirs  map[string]storage.Visibility
	fault Fault
	now   func() time.Time
}

// New creates an empty memory disk.
func New() *MemoryDisk {
	return &MemoryDisk{
		files: make(map[string]*object),
		dirs:  make(map[string]storage.Visibility),
		now:   time.Now,
	}
}

// SetFault installs a hook consulted before every mutating operation.
func (d *MemoryDisk) SetFault(f Fault) {
	d.mu.Lock()
	d.fault = f
	d.mu.Unlock()
}

// WriteFile stores data at key, creating parent directories.
func (d *MemoryDisk) WriteFile(key string, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key = storage.Clean(key)
	d.mkdirLocked(storage.Parent(key))
	d.files[key] = &object{data: append([]byte(nil), data...), modTime: d.now(), visibility: storage.VisibilityPrivate}
}

// ReadFile returns a copy of the content stored at key.
func (d *MemoryDisk) ReadFile(key string) ([]byte, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	obj, ok := d.files[storage.Clean(key)]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), obj.data...), true
}

func (d *MemoryDisk) check(op, key string) error {
	if d.fault == nil {
		return nil
	}
	if err := d.fault(op, key); err != nil {
		return fmt.Errorf("%s %s: %w", op, key, err)
	}
	return nil
}

func (d *MemoryDisk) isDirLocked(key string) bool {
	if key == "" {
		return true
	}
	_, ok := d.dirs[key]
	return ok
}

func (d *MemoryDisk) mkdirLocked(key string) {
	for key != "" {
		if _, ok := d.dirs[key]; ok {
			return
		}
		d.dirs[key] = storage.VisibilityPublic
		key = storage.Parent(key)
	}
}

// Exists checks if a file or directory exists.
func (d *MemoryDisk) Exists(_ context.Context, key string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	key = storage.Clean(key)
	_, isFile := d.files[key]
	return isFile || d.isDirLocked(key), nil
}

// DirectoryExists checks if a directory exists.
func (d *MemoryDisk) DirectoryExists(_ context.Context, key string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.isDirLocked(storage.Clean(key)), nil
}

// FileExists checks if a file exists.
func (d *MemoryDisk) FileExists(_ context.Context, key string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.files[storage.Clean(key)]
	return ok, nil
}

// Files lists files under dir.
func (d *MemoryDisk) Files(_ context.Context, dir string, recursive bool) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	dir = storage.Clean(dir)
	if !d.isDirLocked(dir) {
		return nil, fmt.Errorf("list %s: %w", dir, storage.ErrNotExist)
	}
	var out []string
	for key := range d.files {
		if matches(key, dir, recursive) {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Directories lists directories under dir.
func (d *MemoryDisk) Directories(_ context.Context, dir string, recursive bool) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	dir = storage.Clean(dir)
	if !d.isDirLocked(dir) {
		return nil, fmt.Errorf("list %s: %w", dir, storage.ErrNotExist)
	}
	var out []string
	for key := range d.dirs {
		if key != dir && matches(key, dir, recursive) {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out, nil
}

func matches(key, dir string, recursive bool) bool {
	if !storage.IsWithin(key, dir) || key == dir {
		return false
	}
	if recursive {
		return true
	}
	return storage.Parent(key) == dir
}

// MakeDirectory creates a directory and its parents.
func (d *MemoryDisk) MakeDirectory(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	key = storage.Clean(key)
	if err := d.check(OpMakeDirectory, key); err != nil {
		return err
	}
	if _, isFile := d.files[key]; isFile {
		return fmt.Errorf("mkdir %s: %w", key, storage.ErrExist)
	}
	d.mkdirLocked(key)
	return nil
}

// DeleteDirectory removes a directory and everything beneath it.
func (d *MemoryDisk) DeleteDirectory(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	key = storage.Clean(key)
	if err := d.check(OpDeleteDirectory, key); err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("delete directory: refusing to remove disk root")
	}
	if !d.isDirLocked(key) {
		return fmt.Errorf("delete directory %s: %w", key, storage.ErrNotExist)
	}
	for k := range d.files {
		if storage.IsWithin(k, key) {
			delete(d.files, k)
		}
	}
	for k := range d.dirs {
		if storage.IsWithin(k, key) {
			delete(d.dirs, k)
		}
	}
	return nil
}

// Delete removes a single file.
func (d *MemoryDisk) Delete(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	key = storage.Clean(key)
	if err := d.check(OpDelete, key); err != nil {
		return err
	}
	if _, ok := d.files[key]; !ok {
		return fmt.Errorf("delete %s: %w", key, storage.ErrNotExist)
	}
	delete(d.files, key)
	return nil
}

// Copy duplicates a file.
func (d *MemoryDisk) Copy(_ context.Context, src, dst string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	src, dst = storage.Clean(src), storage.Clean(dst)
	if err := d.check(OpCopy, src); err != nil {
		return err
	}
	obj, ok := d.files[src]
	if !ok {
		return fmt.Errorf("copy %s: %w", src, storage.ErrNotExist)
	}
	d.mkdirLocked(storage.Parent(dst))
	d.files[dst] = &object{
		data:       append([]byte(nil), obj.data...),
		modTime:    d.now(),
		visibility: obj.visibility,
	}
	return nil
}

// Move renames a file.
func (d *MemoryDisk) Move(_ context.Context, src, dst string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	src, dst = storage.Clean(src), storage.Clean(dst)
	if err := d.check(OpMove, src); err != nil {
		return err
	}
	obj, ok := d.files[src]
	if !ok {
		return fmt.Errorf("move %s: %w", src, storage.ErrNotExist)
	}
	d.mkdirLocked(storage.Parent(dst))
	delete(d.files, src)
	d.files[dst] = obj
	return nil
}

// PutFileAs stores body at dir/name.
func (d *MemoryDisk) PutFileAs(_ context.Context, dir string, body io.Reader, _ int64, name string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	key := storage.Join(dir, name)
	if err := d.check(OpPut, key); err != nil {
		return "", err
	}
	if d.isDirLocked(key) {
		return "", fmt.Errorf("put %s: %w", key, storage.ErrExist)
	}
	d.mkdirLocked(storage.Clean(dir))
	d.files[key] = &object{data: data, modTime: d.now(), visibility: storage.VisibilityPrivate}
	return key, nil
}

// SetVisibility changes the visibility flag of a path.
func (d *MemoryDisk) SetVisibility(_ context.Context, key string, v storage.Visibility) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	key = storage.Clean(key)
	if err := d.check(OpSetVisibility, key); err != nil {
		return err
	}
	if obj, ok := d.files[key]; ok {
		obj.visibility = v
		return nil
	}
	if key != "" && d.isDirLocked(key) {
		d.dirs[key] = v
		return nil
	}
	return fmt.Errorf("set visibility %s: %w", key, storage.ErrNotExist)
}

// Visibility returns the visibility flag of a path.
func (d *MemoryDisk) Visibility(_ context.Context, key string) (storage.Visibility, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	key = storage.Clean(key)
	if obj, ok := d.files[key]; ok {
		return obj.visibility, nil
	}
	if key == "" {
		return storage.VisibilityPublic, nil
	}
	if v, ok := d.dirs[key]; ok {
		return v, nil
	}
	return "", fmt.Errorf("visibility %s: %w", key, storage.ErrNotExist)
}

// Stat returns the entry for a path.
func (d *MemoryDisk) Stat(_ context.Context, key string) (storage.Entry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	key = storage.Clean(key)
	if obj, ok := d.files[key]; ok {
		return storage.Entry{Path: key, Size: int64(len(obj.data)), ModTime: obj.modTime}, nil
	}
	if d.isDirLocked(key) {
		return storage.Entry{Path: key, IsDir: true}, nil
	}
	return storage.Entry{}, fmt.Errorf("stat %s: %w", key, storage.ErrNotExist)
}

// Download opens a file for reading.
func (d *MemoryDisk) Download(_ context.Context, key string) (io.ReadCloser, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	key = storage.Clean(key)
	if err := d.check(OpDownload, key); err != nil {
		return nil, err
	}
	obj, ok := d.files[key]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", key, storage.ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(append([]byte(nil), obj.data...))), nil
}

// Type returns "memory".
func (d *MemoryDisk) Type() string { return "memory" }

// Close is a no-op for memory disks.
func (d *MemoryDisk) Close() error { return nil }

// String lists stored paths, directories suffixed with "/".
func (d *MemoryDisk) String() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var keys []string
	for k := range d.files {
		keys = append(keys, k)
	}
	for k := range d.dirs {
		keys = append(keys, k+"/")
	}
	sort.Strings(keys)
	return strings.Join(keys, "\n")
}
