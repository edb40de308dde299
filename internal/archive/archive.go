// Package archive unpacks RAR, TAR and ZIP page archives into scratch
// directories and splices the extracted images into a page list.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cgourdon/MangaToEpub/internal/source"
)

// Kind is an archive family. Open failures are reported per kind.
type Kind int

const (
	RAR Kind = iota + 1
	TAR
	ZIP
)

var kindLabels = map[Kind]string{
	RAR: "RAR",
	TAR: "TAR",
	ZIP: "ZIP",
}

func (k Kind) String() string {
	if s, ok := kindLabels[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

var suffixKinds = map[string]Kind{
	".rar":    RAR,
	".cbr":    RAR,
	".tar":    TAR,
	".cbt":    TAR,
	".tar.gz": TAR,
	".tgz":    TAR,
	".tar.xz": TAR,
	".txz":    TAR,
	".zip":    ZIP,
	".cbz":    ZIP,
}

// KindOf returns the archive family of name, judged by its suffix.
func KindOf(name string) (Kind, bool) {
	k, ok := suffixKinds[source.ArchiveSuffix(name)]
	return k, ok
}

// Reader extracts the images of one archive into dir and returns their
// paths in natural order. dir is owned by the caller and exists already.
type Reader interface {
	Extract(ctx context.Context, archivePath, dir string) ([]string, error)
}

// ReaderFor returns the Reader variant for k.
func ReaderFor(k Kind) Reader {
	switch k {
	case RAR:
		return rarReader{}
	case TAR:
		return tarReader{}
	case ZIP:
		return zipReader{}
	default:
		return nil
	}
}

// ErrUnsafePath is returned for entries that would land outside the
// extraction directory.
var ErrUnsafePath = errors.New("archive entry escapes extraction directory")

// safeJoin joins an archive entry name onto dir, rejecting absolute names and
// names that climb out of dir.
func safeJoin(dir, name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	if name == "" || strings.HasPrefix(name, "/") || filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	target := filepath.Join(dir, filepath.FromSlash(name))
	rel, err := filepath.Rel(dir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	return target, nil
}

// writeEntry copies r into a new file at path, creating parent directories.
func writeEntry(path string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
