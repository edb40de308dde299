package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/nwaples/rardecode/v2"

	"github.com/cgourdon/MangaToEpub/internal/source"
)

// rarReader extracts every entry, then walks the result for images.
type rarReader struct{}

func (rarReader) Extract(ctx context.Context, archivePath, dir string) ([]string, error) {
	r, err := rardecode.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open RAR %s: %w", archivePath, err)
	}
	defer r.Close()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		header, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read RAR %s: %w", archivePath, err)
		}

		target, err := safeJoin(dir, header.Name)
		if err != nil {
			return nil, err
		}
		if header.IsDir {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create %s: %w", target, err)
			}
			continue
		}
		if err := writeEntry(target, r); err != nil {
			return nil, err
		}
	}

	return source.CollectImages(dir)
}
