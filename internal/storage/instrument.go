package storage

import (
	"context"
	"io"
	"time"

	"github.com/fruitsalade/filemanager/internal/metrics"
)

// Instrument wraps d so every call is recorded in the storage operation
// metrics under d.Type(). Backends that record their own calls (S3)
// should not be wrapped.
func Instrument(d Disk) Disk {
	return &instrumentedDisk{Disk: d}
}

type instrumentedDisk struct {
	Disk
}

func (d *instrumentedDisk) record(op string, start time.Time, err error) {
	metrics.RecordStorageOperation(d.Disk.Type(), op, time.Since(start), err == nil)
}

func (d *instrumentedDisk) Exists(ctx context.Context, p string) (bool, error) {
	start := time.Now()
	ok, err := d.Disk.Exists(ctx, p)
	d.record("exists", start, err)
	return ok, err
}

func (d *instrumentedDisk) DirectoryExists(ctx context.Context, p string) (bool, error) {
	start := time.Now()
	ok, err := d.Disk.DirectoryExists(ctx, p)
	d.record("directory_exists", start, err)
	return ok, err
}

func (d *instrumentedDisk) FileExists(ctx context.Context, p string) (bool, error) {
	start := time.Now()
	ok, err := d.Disk.FileExists(ctx, p)
	d.record("file_exists", start, err)
	return ok, err
}

func (d *instrumentedDisk) Files(ctx context.Context, dir string, recursive bool) ([]string, error) {
	start := time.Now()
	out, err := d.Disk.Files(ctx, dir, recursive)
	d.record("list_files", start, err)
	return out, err
}

func (d *instrumentedDisk) Directories(ctx context.Context, dir string, recursive bool) ([]string, error) {
	start := time.Now()
	out, err := d.Disk.Directories(ctx, dir, recursive)
	d.record("list_directories", start, err)
	return out, err
}

func (d *instrumentedDisk) MakeDirectory(ctx context.Context, p string) error {
	start := time.Now()
	err := d.Disk.MakeDirectory(ctx, p)
	d.record("make_directory", start, err)
	return err
}

func (d *instrumentedDisk) DeleteDirectory(ctx context.Context, p string) error {
	start := time.Now()
	err := d.Disk.DeleteDirectory(ctx, p)
	d.record("delete_directory", start, err)
	return err
}

func (d *instrumentedDisk) Delete(ctx context.Context, p string) error {
	start := time.Now()
	err := d.Disk.Delete(ctx, p)
	d.record("delete", start, err)
	return err
}

func (d *instrumentedDisk) Copy(ctx context.Context, src, dst string) error {
	start := time.Now()
	err := d.Disk.Copy(ctx, src, dst)
	d.record("copy", start, err)
	return err
}

func (d *instrumentedDisk) Move(ctx context.Context, src, dst string) error {
	start := time.Now()
	err := d.Disk.Move(ctx, src, dst)
	d.record("move", start, err)
	return err
}

func (d *instrumentedDisk) PutFileAs(ctx context.Context, dir string, body io.Reader, size int64, name string) (string, error) {
	start := time.Now()
	key, err := d.Disk.PutFileAs(ctx, dir, body, size, name)
	d.record("put", start, err)
	return key, err
}

func (d *instrumentedDisk) SetVisibility(ctx context.Context, p string, v Visibility) error {
	start := time.Now()
	err := d.Disk.SetVisibility(ctx, p, v)
	d.record("set_visibility", start, err)
	return err
}

func (d *instrumentedDisk) Visibility(ctx context.Context, p string) (Visibility, error) {
	start := time.Now()
	v, err := d.Disk.Visibility(ctx, p)
	d.record("visibility", start, err)
	return v, err
}

func (d *instrumentedDisk) Stat(ctx context.Context, p string) (Entry, error) {
	start := time.Now()
	e, err := d.Disk.Stat(ctx, p)
	d.record("stat", start, err)
	return e, err
}

func (d *instrumentedDisk) Download(ctx context.Context, p string) (io.ReadCloser, error) {
	start := time.Now()
	rc, err := d.Disk.Download(ctx, p)
	d.record("download", start, err)
	return rc, err
}
