package archive

import (
	"archive/zip"
	"context"
	"fmt"

	"github.com/cgourdon/MangaToEpub/internal/natsort"
	"github.com/cgourdon/MangaToEpub/internal/source"
)

// zipReader filters entries while iterating and only extracts images.
type zipReader struct{}

func (zipReader) Extract(ctx context.Context, archivePath, dir string) ([]string, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open ZIP %s: %w", archivePath, err)
	}
	defer zr.Close()

	var files []string
	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if f.FileInfo().IsDir() || !source.IsImage(f.Name) {
			continue
		}
		target, err := safeJoin(dir, f.Name)
		if err != nil {
			return nil, err
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open entry %s: %w", f.Name, err)
		}
		err = writeEntry(target, rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		files = append(files, target)
	}

	natsort.Sort(files)
	return files, nil
}
