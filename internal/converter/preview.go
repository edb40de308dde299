package converter

import (
	"context"
	"errors"
	"fmt"

	"github.com/cgourdon/MangaToEpub/internal/archive"
	"github.com/cgourdon/MangaToEpub/internal/epub"
	"github.com/cgourdon/MangaToEpub/internal/pageproc"
	"github.com/cgourdon/MangaToEpub/internal/source"
)

var ErrPageOutOfRange = errors.New("page index out of range")

// PreviewResult is one source page rendered exactly as Convert would render it.
type PreviewResult struct {
	Source string
	Total  int // number of source pages after archive expansion
	Pages  []pageproc.Page
}

// Preview renders the source page at index (zero-based, counted after
// archive expansion) without writing an EPUB. Archives are extracted into a
// scratch workspace that is removed before returning.
func (p *Pipeline) Preview(ctx context.Context, index int) (*PreviewResult, error) {
	proc, err := pageproc.NewProcessor(p.Options.Settings)
	if err != nil {
		return nil, fmt.Errorf("invalid render settings: %w", err)
	}

	resolution, err := source.Resolve(p.Options.Inputs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve inputs: %w", err)
	}

	ws, err := epub.NewWorkspace(p.Options.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	defer func() {
		if err := ws.Remove(); err != nil {
			p.logger().Warn("failed to remove workspace", "error", err)
		}
	}()

	pages, _, err := archive.NewUnpacker(ws, p.workers()).Expand(ctx, resolution.Pages)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(pages) {
		return nil, fmt.Errorf("%w: %d of %d", ErrPageOutOfRange, index, len(pages))
	}

	path := pages[index].Path
	r := p.renderer()(proc, path)
	if r.err != nil {
		return nil, r.err
	}
	return &PreviewResult{Source: path, Total: len(pages), Pages: r.pages}, nil
}
