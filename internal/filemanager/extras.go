package filemanager

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/fruitsalade/filemanager/internal/storage"
)

// maxExtrasRead caps how much of a file is buffered to read extras.
const maxExtrasRead = 32 << 20

var errNoExtras = errors.New("no extras for this file type")

// Extras holds metadata that needs the file's content.
type Extras struct {
	Width       int        `json:"width,omitempty"`
	Height      int        `json:"height,omitempty"`
	Format      string     `json:"format,omitempty"`
	Orientation int        `json:"orientation,omitempty"`
	CameraMake  string     `json:"camera_make,omitempty"`
	CameraModel string     `json:"camera_model,omitempty"`
	DateTaken   *time.Time `json:"date_taken,omitempty"`
}

func readExtras(ctx context.Context, disk storage.Disk, d FileDescriptor) (*Extras, error) {
	if d.MimeClass != ClassImage {
		return nil, errNoExtras
	}
	if d.Size > maxExtrasRead {
		return nil, fmt.Errorf("%s: %d bytes exceeds extras limit", d.Path, d.Size)
	}

	rc, err := disk.Download(ctx, key(d.Path))
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxExtrasRead))
	if err != nil {
		return nil, err
	}
	return ImageExtras(data, d.Extension)
}

// ImageExtras decodes dimensions and EXIF tags from image bytes. Width and
// height are reported as displayed, after EXIF orientation is applied.
func ImageExtras(data []byte, ext string) (*Extras, error) {
	x := &Extras{Orientation: 1}

	format, ferr := imaging.FormatFromExtension(ext)
	if ferr == nil && (format == imaging.JPEG || format == imaging.TIFF) {
		readExif(bytes.NewReader(data), x)
	}

	cfg, name, err := image.DecodeConfig(bytes.NewReader(data))
	if err == nil {
		x.Format = strings.ToUpper(name)
		x.Width, x.Height = cfg.Width, cfg.Height
		if x.Orientation >= 5 {
			x.Width, x.Height = x.Height, x.Width
		}
		return x, nil
	}

	img, derr := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if derr != nil {
		return nil, fmt.Errorf("decode image: %w", errors.Join(err, derr))
	}
	b := img.Bounds()
	x.Width, x.Height = b.Dx(), b.Dy()
	if ferr == nil {
		x.Format = format.String()
	}
	return x, nil
}

func readExif(r io.Reader, x *Extras) {
	ex, err := exif.Decode(r)
	if err != nil {
		return
	}
	x.CameraMake = exifString(ex, exif.Make)
	x.CameraModel = exifString(ex, exif.Model)
	if dt, err := ex.DateTime(); err == nil {
		x.DateTaken = &dt
	}
	if tag, err := ex.Get(exif.Orientation); err == nil {
		if v, err := tag.Int(0); err == nil && v >= 1 && v <= 8 {
			x.Orientation = v
		}
	}
}

func exifString(x *exif.Exif, f exif.FieldName) string {
	tag, err := x.Get(f)
	if err != nil {
		return ""
	}
	if tag.Format() == tiff.StringVal {
		s, _ := tag.StringVal()
		return s
	}
	return tag.String()
}
