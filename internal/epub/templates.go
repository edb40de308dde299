package epub

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
)

const (
	mimetypeContent = "application/epub+zip"
	opfName         = "content.opf"
	ncxName         = "toc.ncx"
	cssName         = "C1.css"
	uniqueIDName    = "EPB-UUID"
)

const containerXML = `<?xml version="1.0" encoding="UTF-8"?>
<container xmlns="urn:oasis:names:tc:opendocument:xmlns:container" version="1.0">
	<rootfiles>
		<rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
	</rootfiles>
</container>
`

const stylesheet = `@page {
	margin: 0;
}
body {
	margin: 0;
	padding: 0;
	text-align: center;
}
img {
	margin: 0;
	height: 100%;
}
`

// bookMeta is what every generated document repeats about the book.
type bookMeta struct {
	Title    string
	Author   string
	Language string
	ID       string
}

func escape(s string) string {
	var buf bytes.Buffer
	// EscapeText only fails on writer errors; bytes.Buffer has none.
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

func pageID(seq int) string    { return fmt.Sprintf("P%d", seq) }
func pageHref(seq int) string  { return fmt.Sprintf("P%d.xml", seq) }
func imageID(seq int) string   { return fmt.Sprintf("I%d", seq) }
func imageHref(seq int) string { return fmt.Sprintf("Images/I%d.jpg", seq) }

func opfHead(m bookMeta) string {
	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	fmt.Fprintf(&b, "<package xmlns=\"http://www.idpf.org/2007/opf\" unique-identifier=%q version=\"2.0\">\n", uniqueIDName)
	b.WriteString("\t<metadata xmlns:opf=\"http://www.idpf.org/2007/opf\" xmlns:dc=\"http://purl.org/dc/elements/1.1/\">\n")
	fmt.Fprintf(&b, "\t\t<dc:creator opf:role=\"aut\">%s</dc:creator>\n", escape(m.Author))
	fmt.Fprintf(&b, "\t\t<dc:title>%s</dc:title>\n", escape(m.Title))
	fmt.Fprintf(&b, "\t\t<dc:identifier id=%q>%s</dc:identifier>\n", uniqueIDName, escape(m.ID))
	fmt.Fprintf(&b, "\t\t<dc:language>%s</dc:language>\n", escape(m.Language))
	b.WriteString("\t</metadata>\n")
	b.WriteString("\t<manifest>\n")
	fmt.Fprintf(&b, "\t\t<item id=\"ncx\" href=%q media-type=\"application/x-dtbncx+xml\"/>\n", ncxName)
	fmt.Fprintf(&b, "\t\t<item id=\"css\" href=%q media-type=\"text/css\"/>\n", cssName)
	return b.String()
}

const opfMiddle = "\t</manifest>\n\t<spine toc=\"ncx\">\n"

const opfTail = "\t</spine>\n</package>\n"

func manifestItems(seq int) string {
	return fmt.Sprintf("\t\t<item id=%q href=%q media-type=\"application/xhtml+xml\"/>\n", pageID(seq), pageHref(seq)) +
		fmt.Sprintf("\t\t<item id=%q href=%q media-type=\"image/jpeg\"/>\n", imageID(seq), imageHref(seq))
}

func spineItem(seq int) string {
	return fmt.Sprintf("\t\t<itemref idref=%q linear=\"yes\"/>\n", pageID(seq))
}

func navPoint(seq int) string {
	return fmt.Sprintf("\t\t<navPoint id=\"N%d\" playOrder=\"%d\"><navLabel><text>%s</text></navLabel><content src=%q/></navPoint>\n",
		seq, seq, pageID(seq), pageHref(seq))
}

func ncxHead(m bookMeta) string {
	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	b.WriteString("<ncx xmlns=\"http://www.daisy.org/z3986/2005/ncx/\" version=\"2005-1\">\n")
	b.WriteString("\t<head>\n")
	fmt.Fprintf(&b, "\t\t<meta name=\"dtb:uid\" content=\"%s\"/>\n", escape(m.ID))
	b.WriteString("\t\t<meta name=\"dtb:depth\" content=\"1\"/>\n")
	b.WriteString("\t\t<meta name=\"dtb:totalPageCount\" content=\"0\"/>\n")
	b.WriteString("\t\t<meta name=\"dtb:maxPageNumber\" content=\"0\"/>\n")
	b.WriteString("\t</head>\n")
	fmt.Fprintf(&b, "\t<docTitle>\n\t\t<text>%s</text>\n\t</docTitle>\n", escape(m.Title))
	fmt.Fprintf(&b, "\t<docAuthor>\n\t\t<text>%s</text>\n\t</docAuthor>\n", escape(m.Author))
	b.WriteString("\t<navMap>\n")
	return b.String()
}

const ncxTail = "\t</navMap>\n</ncx>\n"

func chapter(m bookMeta, seq int) string {
	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	fmt.Fprintf(&b, "<html xmlns=\"http://www.w3.org/1999/xhtml\" xml:lang=\"%s\">\n", escape(m.Language))
	b.WriteString("\t<head>\n")
	fmt.Fprintf(&b, "\t\t<title>%s</title>\n", escape(m.Title))
	fmt.Fprintf(&b, "\t\t<link rel=\"stylesheet\" href=%q type=\"text/css\"/>\n", cssName)
	b.WriteString("\t\t<meta http-equiv=\"Content-Type\" content=\"application/xhtml+xml; charset=utf-8\"/>\n")
	fmt.Fprintf(&b, "\t\t<meta name=%q content=\"%s\"/>\n", uniqueIDName, escape(m.ID))
	b.WriteString("\t</head>\n")
	b.WriteString("\t<body>\n")
	fmt.Fprintf(&b, "\t\t<img style=\"margin:0\" src=%q />\n", imageHref(seq))
	b.WriteString("\t</body>\n")
	b.WriteString("</html>\n")
	return b.String()
}
