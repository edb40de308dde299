package epub

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// Reader gives read access to a packaged EPUB.
type Reader struct {
	zipReader *zip.ReadCloser
	files     map[string]*zip.File
	order     []string
	opfPath   string
}

// container.xml structure
type container struct {
	Rootfiles struct {
		Rootfile []struct {
			FullPath  string `xml:"full-path,attr"`
			MediaType string `xml:"media-type,attr"`
		} `xml:"rootfile"`
	} `xml:"rootfiles"`
}

var (
	ErrInvalidMimetype    = errors.New("invalid mimetype: must be 'application/epub+zip'")
	ErrMimetypeCompressed = errors.New("mimetype must not be compressed")
	ErrMimetypeNotFound   = errors.New("mimetype file not found")
	ErrMimetypeNotFirst   = errors.New("mimetype must be the first archive entry")
	ErrContainerNotFound  = errors.New("META-INF/container.xml not found")
	ErrOPFPathNotFound    = errors.New("OPF path not found in container.xml")
	ErrFileNotFound       = errors.New("file not found in EPUB")
)

// Open opens an EPUB file and validates its container structure.
func Open(name string) (*Reader, error) {
	zr, err := zip.OpenReader(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open EPUB: %w", err)
	}

	reader := &Reader{
		zipReader: zr,
		files:     make(map[string]*zip.File),
	}
	for _, f := range zr.File {
		n := normalizePath(f.Name)
		reader.files[n] = f
		reader.order = append(reader.order, n)
	}

	if err := reader.validateMimetype(); err != nil {
		zr.Close()
		return nil, err
	}
	if err := reader.parseContainer(); err != nil {
		zr.Close()
		return nil, err
	}
	return reader, nil
}

// Close closes the underlying archive.
func (r *Reader) Close() error {
	return r.zipReader.Close()
}

// OPFPath returns the path of the package document.
func (r *Reader) OPFPath() string {
	return r.opfPath
}

// Names returns the entry names in archive order.
func (r *Reader) Names() []string {
	return append([]string(nil), r.order...)
}

// Has reports whether the archive holds a file at name.
func (r *Reader) Has(name string) bool {
	_, ok := r.files[normalizePath(name)]
	return ok
}

// ReadFile reads the contents of a file from the EPUB.
func (r *Reader) ReadFile(name string) ([]byte, error) {
	name = normalizePath(name)
	f, ok := r.files[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", name, err)
	}
	defer rc.Close()

	return io.ReadAll(rc)
}

// LoadOPF reads and parses the package document.
func (r *Reader) LoadOPF() (*OPF, error) {
	content, err := r.ReadFile(r.opfPath)
	if err != nil {
		return nil, err
	}
	return ParseOPF(content, path.Dir(r.opfPath))
}

func (r *Reader) validateMimetype() error {
	f, ok := r.files["mimetype"]
	if !ok {
		return ErrMimetypeNotFound
	}
	if r.order[0] != "mimetype" {
		return ErrMimetypeNotFirst
	}
	if f.Method != zip.Store {
		return ErrMimetypeCompressed
	}

	content, err := r.ReadFile("mimetype")
	if err != nil {
		return fmt.Errorf("failed to read mimetype: %w", err)
	}
	if string(content) != mimetypeContent {
		return ErrInvalidMimetype
	}
	return nil
}

func (r *Reader) parseContainer() error {
	content, err := r.ReadFile("META-INF/container.xml")
	if err != nil {
		return ErrContainerNotFound
	}

	var c container
	if err := xml.Unmarshal(content, &c); err != nil {
		return fmt.Errorf("failed to parse container.xml: %w", err)
	}

	for _, rf := range c.Rootfiles.Rootfile {
		if rf.MediaType == "application/oebps-package+xml" || rf.MediaType == "" {
			r.opfPath = normalizePath(rf.FullPath)
			return nil
		}
	}
	if len(c.Rootfiles.Rootfile) > 0 {
		r.opfPath = normalizePath(c.Rootfiles.Rootfile[0].FullPath)
		return nil
	}
	return ErrOPFPathNotFound
}

// normalizePath removes a leading ./ from archive paths.
func normalizePath(p string) string {
	return strings.TrimPrefix(p, "./")
}
