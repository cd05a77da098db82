package filemanager

import (
	"context"
	"errors"
	"mime"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/filemanager/internal/logging"
	"github.com/fruitsalade/filemanager/internal/storage"
)

// MimeClass is a coarse file category derived from the extension.
type MimeClass string

const (
	ClassDirectory MimeClass = "directory"
	ClassImage     MimeClass = "image"
	ClassVideo     MimeClass = "video"
	ClassAudio     MimeClass = "audio"
	ClassDocument  MimeClass = "document"
	ClassArchive   MimeClass = "archive"
	ClassOther     MimeClass = "other"
)

var extensionClasses = map[string]MimeClass{}

func init() {
	for class, exts := range map[MimeClass][]string{
		ClassImage:    {"jpg", "jpeg", "png", "gif", "webp", "bmp", "tif", "tiff", "svg", "ico", "heic", "heif", "avif"},
		ClassVideo:    {"mp4", "m4v", "mov", "avi", "mkv", "webm", "wmv", "flv", "mpeg", "mpg", "3gp"},
		ClassAudio:    {"mp3", "wav", "ogg", "oga", "flac", "aac", "m4a", "wma", "opus"},
		ClassDocument: {"pdf", "doc", "docx", "xls", "xlsx", "ppt", "pptx", "odt", "ods", "odp", "txt", "rtf", "csv", "md", "json", "xml", "html", "htm"},
		ClassArchive:  {"zip", "rar", "7z", "tar", "gz", "tgz", "bz2", "xz", "zst"},
	} {
		for _, ext := range exts {
			extensionClasses[ext] = class
		}
	}
}

// ClassifyExtension maps a lowercase extension without dot to its class.
func ClassifyExtension(ext string) MimeClass {
	if c, ok := extensionClasses[ext]; ok {
		return c
	}
	return ClassOther
}

// FileDescriptor is a uniform description of a file or directory. It is
// rebuilt from the disk on every read.
type FileDescriptor struct {
	Name         string             `json:"name"`
	Path         string             `json:"path"`
	Extension    string             `json:"extension"`
	IsDirectory  bool               `json:"is_directory"`
	Size         int64              `json:"size"`
	MimeClass    MimeClass          `json:"mime_class"`
	MimeType     string             `json:"mime_type,omitempty"`
	LastModified time.Time          `json:"last_modified"`
	Visibility   storage.Visibility `json:"visibility"`
	Extras       *Extras            `json:"extras,omitempty"`
}

// Describe builds the descriptor for p. Extras are read only when
// withExtras is set, and a failure to read them only leaves them out.
func Describe(ctx context.Context, disk storage.Disk, p string, withExtras bool) (FileDescriptor, error) {
	entry, err := disk.Stat(ctx, key(p))
	if err != nil {
		return FileDescriptor{}, backendErr("describe", p, err)
	}
	d := descriptorFromEntry(ctx, disk, p, entry)

	if withExtras && !d.IsDirectory {
		extras, err := readExtras(ctx, disk, d)
		if err != nil && !errors.Is(err, errNoExtras) {
			logging.WithContext(ctx).Debug("extras unavailable",
				zap.String("path", p), zap.Error(err))
		}
		d.Extras = extras
	}
	return d, nil
}

func descriptorFromEntry(ctx context.Context, disk storage.Disk, p string, e storage.Entry) FileDescriptor {
	d := FileDescriptor{
		Name:         baseOf(p),
		Path:         p,
		IsDirectory:  e.IsDir,
		LastModified: e.ModTime,
	}
	if e.IsDir {
		d.MimeClass = ClassDirectory
	} else {
		d.Size = e.Size
		d.Extension = strings.ToLower(strings.TrimPrefix(path.Ext(d.Name), "."))
		d.MimeClass = ClassifyExtension(d.Extension)
		if d.Extension != "" {
			d.MimeType = mime.TypeByExtension("." + d.Extension)
		}
	}

	v, err := disk.Visibility(ctx, key(p))
	if err != nil {
		v = storage.VisibilityPrivate
	}
	d.Visibility = v
	return d
}
