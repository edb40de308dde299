package archive

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ulikunitz/xz"

	"github.com/cgourdon/MangaToEpub/internal/source"
)

// tarReader handles plain, gzip and xz compressed tarballs. Like RAR, the
// whole tree is extracted before images are collected.
type tarReader struct{}

func (tarReader) Extract(ctx context.Context, archivePath, dir string) ([]string, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open TAR %s: %w", archivePath, err)
	}
	defer f.Close()

	var reader io.Reader = f
	switch source.ArchiveSuffix(archivePath) {
	case ".tar.gz", ".tgz":
		gzr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("gzip decompress %s: %w", archivePath, err)
		}
		defer gzr.Close()
		reader = gzr
	case ".tar.xz", ".txz":
		xzr, err := xz.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("xz decompress %s: %w", archivePath, err)
		}
		reader = xzr
	}

	tr := tar.NewReader(reader)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read TAR %s: %w", archivePath, err)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			target, err := safeJoin(dir, header.Name)
			if err != nil {
				return nil, err
			}
			if err := os.MkdirAll(target, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create %s: %w", target, err)
			}
		case tar.TypeReg:
			target, err := safeJoin(dir, header.Name)
			if err != nil {
				return nil, err
			}
			if err := writeEntry(target, tr); err != nil {
				return nil, err
			}
		}
		// Links and special files are never pages.
	}

	return source.CollectImages(dir)
}
