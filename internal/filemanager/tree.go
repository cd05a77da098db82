package filemanager

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/fruitsalade/filemanager/internal/logging"
	"github.com/fruitsalade/filemanager/internal/metrics"
	"github.com/fruitsalade/filemanager/internal/storage"
)

// maxDuplicateIndex bounds the search for a free "name(N).ext".
const maxDuplicateIndex = 10000

// duplicatePattern splits "name(3).ext" into name, 3 and ".ext".
var duplicatePattern = regexp.MustCompile(`^(.*)\((\d+)\)(\.[^.]+)?$`)

// CopyResult reports what a subtree copy did.
type CopyResult struct {
	Source      string   `json:"source"`
	Destination string   `json:"destination"`
	Total       int      `json:"total"`
	Copied      int      `json:"copied"`
	Failed      []string `json:"failed,omitempty"`
	FailedDirs  []string `json:"failed_dirs,omitempty"`
}

// Complete reports whether every file and directory was replicated.
func (r CopyResult) Complete() bool {
	return r.Copied == r.Total && len(r.FailedDirs) == 0
}

// CopySubtree replicates src, every directory beneath it and every file
// beneath it under dst. It does not stop at the first failed copy: all
// failures are collected, and an incomplete copy returns ErrPartialFailure
// together with the result. Nothing under src is modified.
func CopySubtree(ctx context.Context, disk storage.Disk, src, dst string) (CopyResult, error) {
	res := CopyResult{Source: src, Destination: dst}
	srcKey, dstKey := key(src), key(dst)

	dirs, err := disk.Directories(ctx, srcKey, true)
	if err != nil {
		return res, backendErr("copy subtree", src, err)
	}
	files, err := disk.Files(ctx, srcKey, true)
	if err != nil {
		return res, backendErr("copy subtree", src, err)
	}
	res.Total = len(files)

	if err := disk.MakeDirectory(ctx, dstKey); err != nil {
		return res, backendErr("copy subtree", dst, err)
	}

	log := logging.WithContext(ctx)
	for _, d := range dirs {
		target := rebase(d, srcKey, dstKey)
		if err := disk.MakeDirectory(ctx, target); err != nil {
			log.Warn("subtree directory copy failed",
				zap.String("source", d), zap.String("destination", target), zap.Error(err))
			res.FailedDirs = append(res.FailedDirs, fromKey(d))
		}
	}

	for _, f := range files {
		target := rebase(f, srcKey, dstKey)
		if err := ctx.Err(); err != nil {
			res.Failed = append(res.Failed, fromKey(f))
			continue
		}
		if err := disk.Copy(ctx, f, target); err != nil {
			log.Warn("subtree file copy failed",
				zap.String("source", f), zap.String("destination", target), zap.Error(err))
			res.Failed = append(res.Failed, fromKey(f))
			continue
		}
		res.Copied++
	}

	metrics.RecordSubtreeCopy(res.Copied, len(res.Failed))

	if !res.Complete() {
		return res, opErr("copy subtree", src, ErrPartialFailure,
			fmt.Errorf("copied %d of %d files, %d directories failed", res.Copied, res.Total, len(res.FailedDirs)))
	}
	return res, nil
}

// RenameSubtree renames the directory src to newName within its parent.
// The destination must not exist. The source is removed only after every
// file was copied; on ErrPartialFailure both trees remain.
func RenameSubtree(ctx context.Context, disk storage.Disk, src, newName string) (CopyResult, error) {
	if src == Root {
		return CopyResult{}, opErr("rename subtree", src, ErrInvalidPath, nil)
	}
	name, err := FixDirname(newName)
	if err != nil {
		return CopyResult{}, err
	}
	return relocate(ctx, disk, "rename subtree", src, joinPath(parentOf(src), name))
}

// MoveSubtree moves the directory src to dst, which must not exist and
// must not lie inside src.
func MoveSubtree(ctx context.Context, disk storage.Disk, src, dst string) (CopyResult, error) {
	if src == Root || dst == Root {
		return CopyResult{}, opErr("move subtree", src, ErrInvalidPath, nil)
	}
	if isWithin(dst, src) {
		return CopyResult{}, opErr("move subtree", dst, ErrInvalidPath,
			fmt.Errorf("destination is inside %s", src))
	}
	return relocate(ctx, disk, "move subtree", src, dst)
}

func relocate(ctx context.Context, disk storage.Disk, op, src, dst string) (CopyResult, error) {
	ok, err := disk.DirectoryExists(ctx, key(src))
	if err != nil {
		return CopyResult{}, backendErr(op, src, err)
	}
	if !ok {
		return CopyResult{}, opErr(op, src, ErrNotFound, nil)
	}
	taken, err := disk.Exists(ctx, key(dst))
	if err != nil {
		return CopyResult{}, backendErr(op, dst, err)
	}
	if taken {
		return CopyResult{}, opErr(op, dst, ErrAlreadyExists, nil)
	}

	res, err := CopySubtree(ctx, disk, src, dst)
	if err != nil {
		return res, err
	}
	if err := disk.DeleteDirectory(ctx, key(src)); err != nil {
		return res, backendErr(op, src, err)
	}
	return res, nil
}

// DuplicateFile copies the file p to "stem(N).ext" in the same folder,
// where N is one more than an existing "(N)" suffix and increments until a
// free name is found. Directories are not duplicated.
func DuplicateFile(ctx context.Context, disk storage.Disk, p string) (string, error) {
	entry, err := disk.Stat(ctx, key(p))
	if err != nil {
		return "", backendErr("duplicate", p, err)
	}
	if entry.IsDir {
		return "", opErr("duplicate", p, ErrValidation, fmt.Errorf("directories cannot be duplicated"))
	}

	stem, offset, ext := duplicateParts(baseOf(p))
	folder := parentOf(p)

	for n := offset + 1; n <= offset+maxDuplicateIndex; n++ {
		dst := joinPath(folder, fmt.Sprintf("%s(%d)%s", stem, n, ext))
		taken, err := disk.Exists(ctx, key(dst))
		if err != nil {
			return "", backendErr("duplicate", dst, err)
		}
		if taken {
			continue
		}
		if err := disk.Copy(ctx, key(p), key(dst)); err != nil {
			return "", backendErr("duplicate", p, err)
		}
		return dst, nil
	}
	return "", opErr("duplicate", p, ErrAlreadyExists, fmt.Errorf("no free duplicate name"))
}

// duplicateParts splits a basename into stem, numeric "(N)" suffix and
// extension. Names without a numeric suffix get offset 0, so literal
// parentheses such as "report (final).pdf" are kept in the stem.
func duplicateParts(name string) (string, int, string) {
	if m := duplicatePattern.FindStringSubmatch(name); m != nil {
		if n, err := strconv.Atoi(m[2]); err == nil {
			return m[1], n, m[3]
		}
	}
	stem, ext := splitExt(name)
	return stem, 0, ext
}

// rebase substitutes the srcKey prefix of k with dstKey.
func rebase(k, srcKey, dstKey string) string {
	rel := strings.TrimPrefix(strings.TrimPrefix(k, srcKey), "/")
	return storage.Join(dstKey, rel)
}
