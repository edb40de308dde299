package epub

import (
	"archive/zip"
	"errors"
	"strings"
	"testing"
)

func packageEntries(t *testing.T, opfManifest, navMap, chapterBody string, image []byte) []zipEntry {
	t.Helper()
	opf := `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" unique-identifier="EPB-UUID" version="2.0">
	<metadata xmlns:opf="http://www.idpf.org/2007/opf" xmlns:dc="http://purl.org/dc/elements/1.1/">
		<dc:title>T</dc:title>
		<dc:identifier id="EPB-UUID">ID</dc:identifier>
	</metadata>
	<manifest>
		<item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>
` + opfManifest + `
	</manifest>
	<spine toc="ncx">
		<itemref idref="P1"/>
	</spine>
</package>`
	ncx := `<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
	<head><meta name="dtb:uid" content="ID"/></head>
	<navMap>` + navMap + `</navMap>
</ncx>`
	entries := []zipEntry{
		{name: "mimetype", body: "application/epub+zip", method: zip.Store},
		{name: "META-INF/container.xml", body: testContainer},
		{name: "OEBPS/content.opf", body: opf},
		{name: "OEBPS/toc.ncx", body: ncx},
		{name: "OEBPS/P1.xml", body: "<html><body>" + chapterBody + "</body></html>"},
	}
	if image != nil {
		entries = append(entries, zipEntry{name: "OEBPS/Images/I1.jpg", body: string(image)})
	}
	return entries
}

const (
	goodManifest = `		<item id="P1" href="P1.xml" media-type="application/xhtml+xml"/>
		<item id="I1" href="Images/I1.jpg" media-type="image/jpeg"/>`
	goodNav  = `<navPoint id="N1" playOrder="1"><navLabel><text>P1</text></navLabel><content src="P1.xml"/></navPoint>`
	goodBody = `<img src="Images/I1.jpg"/>`
)

func TestVerify_Valid(t *testing.T) {
	entries := packageEntries(t, goodManifest, goodNav, goodBody, mustEncodeJPEG(t))
	p := writeTestZip(t, t.TempDir(), "ok.epub", entries)

	summary, err := Verify(p)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if summary.Pages != 1 || summary.Identifier != "ID" || summary.Title != "T" {
		t.Errorf("Verify() summary = %+v", summary)
	}
}

func TestVerify_Problems(t *testing.T) {
	jpg := mustEncodeJPEG(t)
	cases := []struct {
		name     string
		manifest string
		nav      string
		body     string
		image    []byte
		want     string
	}{
		{
			name:     "missing manifest file",
			manifest: goodManifest + "\n\t\t<item id=\"css\" href=\"C1.css\" media-type=\"text/css\"/>",
			nav:      goodNav,
			body:     goodBody,
			image:    jpg,
			want:     "references missing OEBPS/C1.css",
		},
		{
			name:     "play order gap",
			manifest: goodManifest,
			nav:      strings.Replace(goodNav, `playOrder="1"`, `playOrder="2"`, 1),
			body:     goodBody,
			image:    jpg,
			want:     "playOrder 2, want 1",
		},
		{
			name:     "nav count mismatch",
			manifest: goodManifest,
			nav:      goodNav + goodNav,
			body:     goodBody,
			image:    jpg,
			want:     "navMap has 2 entries, spine has 1",
		},
		{
			name:     "image not jpeg",
			manifest: goodManifest,
			nav:      goodNav,
			body:     goodBody,
			image:    []byte("GIF89a not really"),
			want:     "want image/jpeg",
		},
		{
			name:     "no image in page",
			manifest: goodManifest,
			nav:      goodNav,
			body:     "<p>empty</p>",
			image:    jpg,
			want:     "has 0 images, want 1",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			entries := packageEntries(t, tc.manifest, tc.nav, tc.body, tc.image)
			p := writeTestZip(t, t.TempDir(), "bad.epub", entries)

			_, err := Verify(p)
			if !errors.Is(err, ErrInvalidPackage) {
				t.Fatalf("Verify() error = %v, want ErrInvalidPackage", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Verify() error = %v, want it to mention %q", err, tc.want)
			}
		})
	}
}

func TestVerify_NotAnEPUB(t *testing.T) {
	p := writeTestZip(t, t.TempDir(), "x.epub", []zipEntry{{name: "readme.txt", body: "hi"}})
	if _, err := Verify(p); !errors.Is(err, ErrMimetypeNotFound) {
		t.Fatalf("Verify() error = %v, want ErrMimetypeNotFound", err)
	}
}
