package epub

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// ErrInvalidPackage is returned by Verify when the package is readable but
// internally inconsistent.
var ErrInvalidPackage = errors.New("invalid EPUB package")

// Summary describes a verified book.
type Summary struct {
	Title      string
	Author     string
	Language   string
	Identifier string
	Pages      int
}

// Verify opens the EPUB at name and checks that it is a consistent
// page-per-image book: container pointing to an existing OPF, every manifest
// entry present, spine, navigation map and page documents in agreement with
// contiguous play order, and every page image a JPEG.
func Verify(name string) (Summary, error) {
	r, err := Open(name)
	if err != nil {
		return Summary{}, err
	}
	defer r.Close()

	opf, err := r.LoadOPF()
	if err != nil {
		return Summary{}, fmt.Errorf("failed to load OPF: %w", err)
	}

	summary := Summary{
		Title:      opf.Metadata.Title,
		Author:     opf.Metadata.Author(),
		Language:   opf.Metadata.Language,
		Identifier: opf.Metadata.Identifier,
		Pages:      len(opf.Spine),
	}

	var problems []string
	report := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	for id, item := range opf.Manifest {
		if !r.Has(item.Href) {
			report("manifest item %s references missing %s", id, item.Href)
		}
	}

	ncx, err := LoadNCX(r, opf)
	if err != nil {
		report("navigation: %v", err)
		ncx = &NCX{}
	} else if ncx.UID != opf.Metadata.Identifier {
		report("NCX uid %q does not match package identifier %q", ncx.UID, opf.Metadata.Identifier)
	}

	spine := opf.SpineHrefs()
	nav := ncx.Flatten()
	if len(nav) != len(spine) {
		report("navMap has %d entries, spine has %d", len(nav), len(spine))
	}
	for i, np := range nav {
		if np.PlayOrder != i+1 {
			report("navPoint %s has playOrder %d, want %d", np.ID, np.PlayOrder, i+1)
		}
		if i < len(spine) && np.ContentPath != spine[i] {
			report("navPoint %s points to %s, spine has %s", np.ID, np.ContentPath, spine[i])
		}
	}

	for i, href := range spine {
		if href == "" {
			report("spine entry %d references unknown item %s", i+1, opf.Spine[i].IDRef)
			continue
		}
		if err := verifyChapter(r, href); err != nil {
			report("%v", err)
		}
	}

	if len(problems) > 0 {
		return summary, fmt.Errorf("%w: %s", ErrInvalidPackage, strings.Join(problems, "; "))
	}
	return summary, nil
}

func verifyChapter(r *Reader, href string) error {
	content, err := r.ReadFile(href)
	if err != nil {
		return err
	}
	ch, err := LoadChapter(href, content)
	if err != nil {
		return err
	}
	for _, css := range ch.Stylesheets {
		if !r.Has(css) {
			return fmt.Errorf("%s links missing stylesheet %s", href, css)
		}
	}
	if len(ch.Images) != 1 {
		return fmt.Errorf("%s has %d images, want 1", href, len(ch.Images))
	}
	data, err := r.ReadFile(ch.Images[0])
	if err != nil {
		return fmt.Errorf("%s: %w", href, err)
	}
	if mt := mimetype.Detect(data); !mt.Is("image/jpeg") {
		return fmt.Errorf("%s is %s, want image/jpeg", ch.Images[0], mt.String())
	}
	return nil
}
