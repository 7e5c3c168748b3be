package export

import (
	"archive/zip"
	"context"
	"io"
	"io/fs"
	"path"

	"github.com/mholt/archives"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// ImageFile is an original image to bundle under images/.
type ImageFile struct {
	Source string
	Name   string
}

// WriteZip writes the encoded entries, and optionally the original images
// read from images, as one zip archive. Entries are staged on an in-memory
// filesystem so they go through the same path as files on disk.
func WriteZip(ctx context.Context, w io.Writer, entries []Entry, images afero.Fs, files []ImageFile) error {
	stage := afero.NewMemMapFs()

	infos := make([]archives.FileInfo, 0, len(entries)+len(files))
	for _, entry := range entries {
		if err := stage.MkdirAll(path.Dir(entry.Name), 0o755); err != nil {
			return errors.Wrapf(err, "stage %s", entry.Name)
		}
		if err := afero.WriteFile(stage, entry.Name, entry.Data, 0o644); err != nil {
			return errors.Wrapf(err, "stage %s", entry.Name)
		}
		info, err := fileInfo(stage, entry.Name, entry.Name)
		if err != nil {
			return err
		}
		infos = append(infos, info)
	}

	for _, file := range files {
		info, err := fileInfo(images, file.Source, path.Join("images", file.Name))
		if err != nil {
			return err
		}
		infos = append(infos, info)
	}

	zipper := archives.Zip{Compression: zip.Deflate, SelectiveCompression: true}
	return errors.Wrap(zipper.Archive(ctx, w, infos), "write zip archive")
}

func fileInfo(fsys afero.Fs, name, nameInArchive string) (archives.FileInfo, error) {
	stat, err := fsys.Stat(name)
	if err != nil {
		return archives.FileInfo{}, errors.Wrapf(err, "stat %s", name)
	}
	return archives.FileInfo{
		FileInfo:      stat,
		NameInArchive: nameInArchive,
		Open: func() (fs.File, error) {
			return fsys.Open(name)
		},
	}, nil
}
