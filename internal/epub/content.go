package epub

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Chapter is a parsed page document.
type Chapter struct {
	Path        string   // archive path of the document
	Title       string   // <title> text
	Stylesheets []string // resolved stylesheet paths
	Images      []string // resolved <img src> paths
}

// LoadChapter parses an XHTML page document found at docPath.
func LoadChapter(docPath string, content []byte) (*Chapter, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse XHTML %s: %w", docPath, err)
	}

	c := &Chapter{
		Path:        docPath,
		Title:       strings.TrimSpace(doc.Find("title").First().Text()),
		Stylesheets: []string{},
		Images:      []string{},
	}
	baseDir := parentDir(docPath)

	doc.Find("link[rel='stylesheet']").Each(func(i int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			c.Stylesheets = append(c.Stylesheets, resolvePath(baseDir, href))
		}
	})
	doc.Find("img").Each(func(i int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok {
			c.Images = append(c.Images, resolvePath(baseDir, src))
		}
	})

	return c, nil
}

// resolvePath resolves a document-relative reference to an archive path,
// e.g. "OEBPS" + "../Images/I1.jpg" -> "Images/I1.jpg".
func resolvePath(baseDir, rel string) string {
	return strings.TrimPrefix(path.Join(baseDir, rel), "/")
}
