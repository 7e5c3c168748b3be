package storage

import (
	"image"
	// Decoders for the accepted upload formats.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const thumbnailDir = "thumbnails"

// Info describes a stored image file.
type Info struct {
	Width  int
	Height int
	Size   int64
}

// Storage keeps uploaded image files and their thumbnails on an afero
// filesystem. Paths are slash separated and relative to the filesystem root.
type Storage struct {
	fs        afero.Fs
	thumbSize int
}

// New creates a Storage on fs. Thumbnails fit in a thumbSize square.
func New(fs afero.Fs, thumbSize int) *Storage {
	return &Storage{fs: fs, thumbSize: thumbSize}
}

// NewDisk roots a Storage at dir on the local disk.
func NewDisk(dir string, thumbSize int) (*Storage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create storage dir %s", dir)
	}
	return New(afero.NewBasePathFs(afero.NewOsFs(), dir), thumbSize), nil
}

func (s *Storage) Fs() afero.Fs {
	return s.fs
}

// Save writes data under name, creating parent directories
func (s *Storage) Save(data []byte, name string) error {
	if err := s.fs.MkdirAll(path.Dir(name), 0o755); err != nil {
		return errors.Wrapf(err, "create directory for %s", name)
	}
	return errors.Wrapf(afero.WriteFile(s.fs, name, data, 0o644), "write %s", name)
}

// ReadInfo decodes only the image header, so large files are not loaded.
func (s *Storage) ReadInfo(name string) (Info, error) {
	f, err := s.fs.Open(name)
	if err != nil {
		return Info{}, errors.Wrapf(err, "open %s", name)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return Info{}, errors.Wrapf(err, "stat %s", name)
	}

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return Info{}, errors.Wrapf(err, "decode %s", name)
	}

	return Info{Width: cfg.Width, Height: cfg.Height, Size: stat.Size()}, nil
}

// Thumbnail writes a JPEG that fits in a thumbSize square and returns its path.
func (s *Storage) Thumbnail(name string) (string, error) {
	f, err := s.fs.Open(name)
	if err != nil {
		return "", errors.Wrapf(err, "open %s", name)
	}
	defer f.Close()

	img, err := imaging.Decode(f, imaging.AutoOrientation(true))
	if err != nil {
		return "", errors.Wrapf(err, "decode %s", name)
	}

	thumb := imaging.Fit(img, s.thumbSize, s.thumbSize, imaging.Lanczos)
	target := ThumbnailPath(name)

	if err := s.fs.MkdirAll(path.Dir(target), 0o755); err != nil {
		return "", errors.Wrapf(err, "create directory for %s", target)
	}
	out, err := s.fs.Create(target)
	if err != nil {
		return "", errors.Wrapf(err, "create %s", target)
	}
	if err := imaging.Encode(out, thumb, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		out.Close()
		_ = s.fs.Remove(target)
		return "", errors.Wrapf(err, "encode %s", target)
	}
	if err := out.Close(); err != nil {
		return "", errors.Wrapf(err, "close %s", target)
	}
	return target, nil
}

// Delete removes a file. A file that is already gone is not an error.
func (s *Storage) Delete(name string) error {
	err := s.fs.Remove(name)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Wrapf(err, "remove %s", name)
	}
	return nil
}

func (s *Storage) Exists(name string) bool {
	ok, err := afero.Exists(s.fs, name)
	return err == nil && ok
}

func (s *Storage) Open(name string) (afero.File, error) {
	f, err := s.fs.Open(name)
	return f, errors.Wrapf(err, "open %s", name)
}

// ThumbnailPath maps an image path to the path of its thumbnail.
func ThumbnailPath(name string) string {
	ext := path.Ext(name)
	return path.Join(thumbnailDir, strings.TrimSuffix(name, ext)+".jpg")
}
