// Package source models the pages a conversion starts from and resolves the
// user's input list (files, folders) into an ordered page list.
package source

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	// Decoders for every extension in imageExtensions.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/cgourdon/MangaToEpub/internal/natsort"
)

// Page is a single source image on disk. Pages are never mutated once built.
type Page struct {
	Path        string
	FromArchive bool
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".jpe":  true,
	".jfif": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".dib":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// archiveSuffixes lists every archive name suffix accepted as input.
// Multi-part suffixes come first so ".tar.gz" wins over ".gz".
var archiveSuffixes = []string{
	".tar.gz", ".tar.xz",
	".rar", ".cbr",
	".tar", ".cbt", ".tgz", ".txz",
	".zip", ".cbz",
}

// IsImage reports whether name carries a decodable image extension.
func IsImage(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

// ArchiveSuffix returns the archive suffix name ends with, or "".
func ArchiveSuffix(name string) string {
	lower := strings.ToLower(name)
	for _, s := range archiveSuffixes {
		if strings.HasSuffix(lower, s) {
			return s
		}
	}
	return ""
}

// IsArchive reports whether name looks like a supported archive.
func IsArchive(name string) bool {
	return ArchiveSuffix(name) != ""
}

// Resolution is the outcome of Resolve: the ordered pages plus the inputs
// that did not exist.
type Resolution struct {
	Pages   []Page
	Missing []string
}

// Resolve turns the user's inputs into pages, in the order given. Folders are
// walked recursively; their image and archive files are naturally sorted by
// full path and take the folder's place. Paths that do not exist are
// collected in Missing and dropped. Any other I/O error is returned.
func Resolve(inputs []string) (Resolution, error) {
	var res Resolution
	for _, in := range inputs {
		abs, err := filepath.Abs(in)
		if err != nil {
			return res, fmt.Errorf("failed to resolve %s: %w", in, err)
		}

		info, err := os.Stat(abs)
		if errors.Is(err, fs.ErrNotExist) {
			res.Missing = append(res.Missing, abs)
			continue
		}
		if err != nil {
			return res, fmt.Errorf("failed to stat %s: %w", abs, err)
		}

		if !info.IsDir() {
			res.Pages = append(res.Pages, Page{Path: abs})
			continue
		}

		files, err := walkFolder(abs)
		if err != nil {
			return res, err
		}
		for _, f := range files {
			res.Pages = append(res.Pages, Page{Path: f})
		}
	}
	return res, nil
}

// CollectImages walks root and returns every image file in natural order.
func CollectImages(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && IsImage(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	natsort.Sort(files)
	return files, nil
}

func walkFolder(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if IsImage(d.Name()) || IsArchive(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	natsort.Sort(files)
	return files, nil
}
