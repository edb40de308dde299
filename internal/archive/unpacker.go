package archive

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/cgourdon/MangaToEpub/internal/source"
)

// DirAllocator hands out fresh, empty extraction directories and keeps
// track of them for cleanup.
type DirAllocator interface {
	ExtractDir() (string, error)
}

// Failure records an archive that could not be opened or extracted.
type Failure struct {
	Path string
	Kind Kind
	Err  error
}

// Unpacker replaces archive pages with the images they contain.
type Unpacker struct {
	Dirs    DirAllocator
	Workers int

	// readers overrides ReaderFor; tests only.
	readers map[Kind]Reader
}

// NewUnpacker creates an unpacker that extracts into directories from dirs,
// at most workers archives at a time.
func NewUnpacker(dirs DirAllocator, workers int) *Unpacker {
	if workers < 1 {
		workers = 1
	}
	return &Unpacker{Dirs: dirs, Workers: workers}
}

type expansion struct {
	pages   []source.Page
	failure *Failure
}

// Expand extracts every archive in pages and returns the page list with each
// archive replaced, in place, by its images in natural order. Archives that
// fail to open are dropped from the list and returned as failures. The error
// is non-nil only when ctx is done or an extraction directory could not be
// created.
func (u *Unpacker) Expand(ctx context.Context, pages []source.Page) ([]source.Page, []Failure, error) {
	slots := make([]*expansion, len(pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.Workers)
	for i, p := range pages {
		kind, ok := KindOf(p.Path)
		if !ok || p.FromArchive {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			dir, err := u.Dirs.ExtractDir()
			if err != nil {
				return fmt.Errorf("failed to create extraction directory: %w", err)
			}
			files, err := u.reader(kind).Extract(gctx, p.Path, dir)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				slots[i] = &expansion{failure: &Failure{Path: p.Path, Kind: kind, Err: err}}
				return nil
			}
			exp := &expansion{pages: make([]source.Page, 0, len(files))}
			for _, f := range files {
				exp.pages = append(exp.pages, source.Page{Path: f, FromArchive: true})
			}
			slots[i] = exp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var (
		out      []source.Page
		failures []Failure
	)
	for i, p := range pages {
		exp := slots[i]
		switch {
		case exp == nil:
			out = append(out, p)
		case exp.failure != nil:
			failures = append(failures, *exp.failure)
		default:
			out = append(out, exp.pages...)
		}
	}
	return out, failures, nil
}

func (u *Unpacker) reader(k Kind) Reader {
	if r, ok := u.readers[k]; ok {
		return r
	}
	return ReaderFor(k)
}
