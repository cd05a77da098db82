package filemanager

import (
	"context"
	"path"
	"strings"
	"unicode"

	"github.com/fruitsalade/filemanager/internal/storage"
)

// Root is the normalized path of a disk's top-level folder.
const Root = "/"

// illegalNameChars are rejected by at least one supported backend.
const illegalNameChars = `\/:*?"<>|`

// Normalize canonicalizes a user-supplied path: backslashes become
// slashes, repeated and trailing slashes collapse, "." segments drop out
// and a single leading slash is enforced. Paths with ".." segments or NUL
// bytes are rejected with ErrInvalidPath rather than resolved.
func Normalize(raw string) (string, error) {
	if strings.ContainsRune(raw, 0) {
		return "", opErr("normalize", raw, ErrInvalidPath, nil)
	}
	raw = strings.ReplaceAll(raw, `\`, "/")

	segs := strings.Split(raw, "/")
	out := make([]string, 0, len(segs))
	for _, s := range segs {
		switch s {
		case "", ".":
			continue
		case "..":
			return "", opErr("normalize", raw, ErrInvalidPath, nil)
		}
		out = append(out, s)
	}
	return "/" + strings.Join(out, "/"), nil
}

// FixFilename strips characters illegal in file names and rejects names
// that would address something other than a single entry.
func FixFilename(name string) (string, error) {
	return fixName("fix filename", name)
}

// FixDirname is FixFilename for directory names.
func FixDirname(name string) (string, error) {
	return fixName("fix dirname", name)
}

func fixName(op, name string) (string, error) {
	fixed := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || strings.ContainsRune(illegalNameChars, r) {
			return -1
		}
		return r
	}, name)
	fixed = strings.TrimSpace(fixed)

	switch fixed {
	case "", ".", "..":
		return "", opErr(op, name, ErrInvalidPath, nil)
	}
	return fixed, nil
}

// FolderExists reports whether p is listed among its parent's
// directories. The root has no parent and is reported as absent.
func FolderExists(ctx context.Context, disk storage.Disk, p string) (bool, error) {
	if p == Root {
		return false, nil
	}
	dirs, err := disk.Directories(ctx, key(parentOf(p)), false)
	if err != nil {
		return false, backendErr("folder exists", p, err)
	}
	name := baseOf(p)
	for _, d := range dirs {
		if path.Base(d) == name {
			return true, nil
		}
	}
	return false, nil
}

// key converts a normalized path into a disk-relative key.
func key(p string) string {
	return strings.TrimPrefix(p, "/")
}

// fromKey converts a disk-relative key into a normalized path.
func fromKey(k string) string {
	return "/" + storage.Clean(k)
}

// splitSegments returns the segments of a normalized path; none for root.
func splitSegments(p string) []string {
	if p == Root {
		return nil
	}
	return strings.Split(strings.TrimPrefix(p, "/"), "/")
}

func joinPath(dir, name string) string {
	if dir == Root {
		return "/" + name
	}
	return dir + "/" + name
}

func parentOf(p string) string {
	return path.Dir(p)
}

func baseOf(p string) string {
	if p == Root {
		return ""
	}
	return path.Base(p)
}

// isWithin reports whether p equals dir or lies beneath it.
func isWithin(p, dir string) bool {
	return storage.IsWithin(key(p), key(dir))
}
