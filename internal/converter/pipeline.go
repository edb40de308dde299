// Package converter runs a whole conversion: input resolution, archive
// expansion, page rendering and EPUB assembly.
package converter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/cgourdon/MangaToEpub/internal/archive"
	"github.com/cgourdon/MangaToEpub/internal/epub"
	"github.com/cgourdon/MangaToEpub/internal/pageproc"
	"github.com/cgourdon/MangaToEpub/internal/source"
)

var (
	ErrNoOutput     = errors.New("output path is required")
	ErrNoPages      = errors.New("no page could be converted")
	ErrOutputLocked = errors.New("another conversion is writing this output")
)

// ConvertOptions holds options for the conversion pipeline.
type ConvertOptions struct {
	Inputs     []string
	OutputPath string
	Title      string
	Author     string
	Language   string
	Settings   pageproc.RenderSettings
	Logger     *slog.Logger

	// Workers bounds concurrent page rendering and archive extraction;
	// zero means runtime.NumCPU().
	Workers int

	// WorkDir is where the workspace is created; empty means the temp dir.
	WorkDir string

	// OnProgress is called from the assembling goroutine after every source
	// page, in order.
	OnProgress func(done, total int)

	// NewID overrides the package identifier generator.
	NewID func() string
}

// Result is the outcome of a conversion. Report is filled even when Convert
// fails with ErrNoPages.
type Result struct {
	Pages  int
	Report Report
}

// Pipeline orchestrates the conversion.
type Pipeline struct {
	Options ConvertOptions

	render func(proc *pageproc.Processor, path string) rendered
}

// NewPipeline creates a new conversion pipeline.
func NewPipeline(opts ConvertOptions) *Pipeline {
	return &Pipeline{Options: opts}
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Options.Logger != nil {
		return p.Options.Logger
	}
	return slog.Default()
}

func (p *Pipeline) workers() int {
	if p.Options.Workers > 0 {
		return p.Options.Workers
	}
	return runtime.NumCPU()
}

func (p *Pipeline) renderer() func(*pageproc.Processor, string) rendered {
	if p.render != nil {
		return p.render
	}
	return renderFile
}

// lookahead bounds how many source pages may be rendered or waiting ahead of
// the page being appended, so finished JPEGs never pile up for a whole batch.
func lookahead(workers int) int {
	return 2 * workers
}

// rendered is what a worker hands back for one source page.
type rendered struct {
	pages []pageproc.Page
	err   error
}

// Convert executes the conversion pipeline and writes the EPUB to
// Options.OutputPath. Per-item problems end up in the returned Result's
// Report; only workspace and output failures, lock contention, an empty
// book and cancellation are returned as errors.
func (p *Pipeline) Convert(ctx context.Context) (*Result, error) {
	log := p.logger()
	res := &Result{}

	if p.Options.OutputPath == "" {
		return res, ErrNoOutput
	}
	proc, err := pageproc.NewProcessor(p.Options.Settings)
	if err != nil {
		return res, fmt.Errorf("invalid render settings: %w", err)
	}

	unlock, err := lockOutput(p.Options.OutputPath)
	if err != nil {
		return res, err
	}
	defer func() {
		if err := unlock(); err != nil {
			log.Warn("failed to release output lock", "error", err)
		}
	}()

	resolution, err := source.Resolve(p.Options.Inputs)
	if err != nil {
		return res, fmt.Errorf("failed to resolve inputs: %w", err)
	}
	for _, missing := range resolution.Missing {
		p.skip(&res.Report, Skip{Path: missing, Category: PathNotFound})
	}

	asm := epub.NewAssembler(p.Options.WorkDir)
	if p.Options.Language != "" {
		asm.Language = p.Options.Language
	}
	asm.NewID = p.Options.NewID
	if err := asm.BeginRun(p.Options.Title, p.Options.Author); err != nil {
		return res, fmt.Errorf("failed to create workspace: %w", err)
	}
	abort := func(cause error) (*Result, error) {
		if err := asm.Abort(); err != nil {
			log.Warn("failed to remove workspace", "error", err)
		}
		return res, cause
	}
	log.Debug("workspace created", "path", asm.Workspace().Root, "id", asm.Identifier())

	pages, failures, err := archive.NewUnpacker(asm.Workspace(), p.workers()).Expand(ctx, resolution.Pages)
	if err != nil {
		return abort(err)
	}
	for _, f := range failures {
		p.skip(&res.Report, Skip{Path: f.Path, Category: ArchiveOpenFailed, Kind: f.Kind, Err: f.Err})
	}

	if err := p.assemble(ctx, asm, proc, pages, &res.Report); err != nil {
		return abort(err)
	}

	res.Pages = asm.Pages()
	if res.Pages == 0 {
		return abort(ErrNoPages)
	}
	if err := asm.Finalize(p.Options.OutputPath); err != nil {
		return res, fmt.Errorf("failed to write EPUB: %w", err)
	}
	log.Info("EPUB written", "path", p.Options.OutputPath, "pages", res.Pages, "skipped", res.Report.Len())
	return res, nil
}

// assemble renders pages on a bounded worker pool and appends the results
// in source order from the calling goroutine.
func (p *Pipeline) assemble(ctx context.Context, asm *epub.Assembler, proc *pageproc.Processor, pages []source.Page, report *Report) error {
	log := p.logger()

	render := p.renderer()
	slots := make([]chan rendered, len(pages))
	for i := range slots {
		slots[i] = make(chan rendered, 1)
	}
	// A token is taken before a page is scheduled and given back once the
	// page has been appended.
	ahead := make(chan struct{}, lookahead(p.workers()))

	pctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(pctx)
	g.SetLimit(p.workers())
	scheduled := make(chan struct{})
	go func() {
		defer close(scheduled)
		for i, pg := range pages {
			select {
			case ahead <- struct{}{}:
			case <-gctx.Done():
				return
			}
			g.Go(func() error {
				slots[i] <- render(proc, pg.Path)
				return nil
			})
		}
	}()
	defer func() {
		cancel()
		<-scheduled
		g.Wait()
	}()

	for i, pg := range pages {
		var r rendered
		select {
		case r = <-slots[i]:
		case <-ctx.Done():
			return ctx.Err()
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if r.err != nil {
			p.skip(report, Skip{Path: pg.Path, Category: ImageDecodeFailed, Err: r.err})
		}
		rejected := false
		for _, page := range r.pages {
			if page.Err != nil {
				rejected = true
				continue
			}
			seq, err := asm.AppendPage(page.JPEG)
			if err != nil {
				return err
			}
			log.Debug("page appended", "seq", seq, "path", pg.Path)
		}
		if rejected {
			p.skip(report, Skip{Path: pg.Path, Category: AspectRatioRejected, Err: pageproc.ErrAspectRatio})
		}

		<-ahead

		if p.Options.OnProgress != nil {
			p.Options.OnProgress(i+1, len(pages))
		}
	}
	return nil
}

func renderFile(proc *pageproc.Processor, path string) rendered {
	img, err := pageproc.Decode(path)
	if err != nil {
		return rendered{err: err}
	}
	pages, err := proc.Render(img)
	if err != nil {
		return rendered{err: fmt.Errorf("failed to render %s: %w", path, err)}
	}
	return rendered{pages: pages}
}

func (p *Pipeline) skip(report *Report, s Skip) {
	report.add(s)
	attrs := []any{"path", s.Path, "category", s.Category.String()}
	if s.Category == ArchiveOpenFailed {
		attrs = append(attrs, "kind", s.Kind.String())
	}
	if s.Err != nil {
		attrs = append(attrs, "error", s.Err)
	}
	p.logger().Warn("input skipped", attrs...)
}

// lockOutput takes an exclusive lock next to outputPath so two runs never
// write the same book. The returned func releases it.
func lockOutput(outputPath string) (func() error, error) {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	lock := flock.New(outputPath + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire output lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrOutputLocked, outputPath)
	}
	return func() error {
		defer os.Remove(lock.Path())
		return lock.Unlock()
	}, nil
}
