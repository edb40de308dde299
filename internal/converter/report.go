package converter

import (
	"fmt"
	"strings"

	"github.com/cgourdon/MangaToEpub/internal/archive"
)

// Category classifies a skipped input.
type Category int

const (
	PathNotFound Category = iota + 1
	ArchiveOpenFailed
	ImageDecodeFailed
	AspectRatioRejected
)

var categoryNames = map[Category]string{
	PathNotFound:        "path-not-found",
	ArchiveOpenFailed:   "archive-open-failed",
	ImageDecodeFailed:   "image-decode-failed",
	AspectRatioRejected: "aspect-ratio-rejected",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// Skip is one input dropped from the run. Kind is only set for
// ArchiveOpenFailed.
type Skip struct {
	Path     string
	Category Category
	Kind     archive.Kind
	Err      error
}

// Report lists every skipped input in the order it was met. A run that
// produced an EPUB may still carry skips.
type Report struct {
	Skips []Skip
}

func (r *Report) add(s Skip) {
	r.Skips = append(r.Skips, s)
}

// Empty reports whether nothing was skipped.
func (r *Report) Empty() bool {
	return len(r.Skips) == 0
}

// Len returns the number of skips.
func (r *Report) Len() int {
	return len(r.Skips)
}

// Paths returns the paths skipped for category c.
func (r *Report) Paths(c Category) []string {
	var paths []string
	for _, s := range r.Skips {
		if s.Category == c {
			paths = append(paths, s.Path)
		}
	}
	return paths
}

// ArchivePaths returns the archives of kind k that could not be opened.
func (r *Report) ArchivePaths(k archive.Kind) []string {
	var paths []string
	for _, s := range r.Skips {
		if s.Category == ArchiveOpenFailed && s.Kind == k {
			paths = append(paths, s.Path)
		}
	}
	return paths
}

type summarySection struct {
	header string
	paths  []string
}

// Summary renders the skips as one block per category, each a header line
// followed by the paths and a blank line. It returns "" for an empty report.
func (r *Report) Summary() string {
	sections := []summarySection{
		{"The following files have been ignored because they do not exist:", r.Paths(PathNotFound)},
		{"The following archives have been ignored because they could not be opened as RAR archives:", r.ArchivePaths(archive.RAR)},
		{"The following archives have been ignored because they could not be opened as TAR archives:", r.ArchivePaths(archive.TAR)},
		{"The following archives have been ignored because they could not be opened as ZIP archives:", r.ArchivePaths(archive.ZIP)},
		{"The following files have been ignored because they could not be opened as images:", r.Paths(ImageDecodeFailed)},
		{"The following images have been ignored because of their width / height ratio above 0.75:", r.Paths(AspectRatioRejected)},
	}

	var b strings.Builder
	for _, s := range sections {
		if len(s.paths) == 0 {
			continue
		}
		b.WriteString(s.header)
		b.WriteByte('\n')
		for _, p := range s.paths {
			b.WriteString(p)
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	return b.String()
}
