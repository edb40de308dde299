package epub

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// NCX represents a parsed navigation control document.
type NCX struct {
	UID       string
	Depth     int
	DocTitle  string
	DocAuthor string
	NavPoints []NavPoint
}

// NavPoint represents a single navigation point in the table of contents.
type NavPoint struct {
	ID          string
	PlayOrder   int
	Label       string
	ContentPath string // fragment-free archive path
	Fragment    string // fragment identifier (without #)
	Children    []NavPoint
}

type ncxDocument struct {
	XMLName xml.Name `xml:"ncx"`
	Head    struct {
		Meta []struct {
			Name    string `xml:"name,attr"`
			Content string `xml:"content,attr"`
		} `xml:"meta"`
	} `xml:"head"`
	DocTitle  ncxText     `xml:"docTitle"`
	DocAuthor ncxText     `xml:"docAuthor"`
	NavMap    []ncxNavPnt `xml:"navMap>navPoint"`
}

type ncxText struct {
	Text string `xml:"text"`
}

type ncxNavPnt struct {
	ID        string      `xml:"id,attr"`
	PlayOrder string      `xml:"playOrder,attr"`
	Label     ncxText     `xml:"navLabel"`
	Content   ncxContent  `xml:"content"`
	Children  []ncxNavPnt `xml:"navPoint"`
}

type ncxContent struct {
	Src string `xml:"src,attr"`
}

// ParseNCX parses an NCX document. ncxDir is the archive directory holding
// it; content sources are resolved against it.
func ParseNCX(content []byte, ncxDir string) (*NCX, error) {
	var doc ncxDocument
	if err := xml.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse NCX XML: %w", err)
	}

	ncx := &NCX{
		DocTitle:  strings.TrimSpace(doc.DocTitle.Text),
		DocAuthor: strings.TrimSpace(doc.DocAuthor.Text),
	}
	for _, m := range doc.Head.Meta {
		switch m.Name {
		case "dtb:uid":
			ncx.UID = m.Content
		case "dtb:depth":
			ncx.Depth, _ = strconv.Atoi(m.Content)
		}
	}
	ncx.NavPoints = convertNavPoints(doc.NavMap, ncxDir)
	return ncx, nil
}

func convertNavPoints(in []ncxNavPnt, dir string) []NavPoint {
	if len(in) == 0 {
		return nil
	}
	out := make([]NavPoint, 0, len(in))
	for _, np := range in {
		p, frag := splitFragment(np.Content.Src)
		order, _ := strconv.Atoi(np.PlayOrder)
		out = append(out, NavPoint{
			ID:          np.ID,
			PlayOrder:   order,
			Label:       strings.TrimSpace(np.Label.Text),
			ContentPath: joinPath(dir, p),
			Fragment:    frag,
			Children:    convertNavPoints(np.Children, dir),
		})
	}
	return out
}

// Flatten returns every navigation point in document order.
func (n *NCX) Flatten() []NavPoint {
	var out []NavPoint
	var walk func([]NavPoint)
	walk = func(points []NavPoint) {
		for _, p := range points {
			out = append(out, p)
			walk(p.Children)
		}
	}
	walk(n.NavPoints)
	return out
}

// LoadNCX reads the NCX document the spine points to.
func LoadNCX(r *Reader, opf *OPF) (*NCX, error) {
	if opf.NCXPath == "" {
		return nil, fmt.Errorf("%w: spine has no toc", ErrFileNotFound)
	}
	content, err := r.ReadFile(opf.NCXPath)
	if err != nil {
		return nil, err
	}
	return ParseNCX(content, parentDir(opf.NCXPath))
}

// splitFragment splits a source path into the path and fragment identifier.
func splitFragment(src string) (path, fragment string) {
	if src == "" {
		return "", ""
	}
	parts := strings.SplitN(src, "#", 2)
	path = parts[0]
	if len(parts) == 2 {
		fragment = parts[1]
	}
	return path, fragment
}

func parentDir(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[:i]
	}
	return ""
}
