package epub

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func mustEncodeJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 6, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 6; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 200, G: 200, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		t.Fatalf("jpeg.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func newTestAssembler(t *testing.T) (*Assembler, string) {
	t.Helper()
	work := t.TempDir()
	a := NewAssembler(work)
	a.NewID = func() string { return "TEST-ID" }
	return a, work
}

func readZipFile(t *testing.T, zr *zip.ReadCloser, name string) string {
	t.Helper()
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("Open(%s) error = %v", name, err)
		}
		defer rc.Close()
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(rc); err != nil {
			t.Fatalf("read %s error = %v", name, err)
		}
		return buf.String()
	}
	t.Fatalf("%s not in archive", name)
	return ""
}

func TestAssembler_BeginRunCreatesWorkspace(t *testing.T) {
	a, work := newTestAssembler(t)
	if err := a.BeginRun("Title", "Author"); err != nil {
		t.Fatalf("BeginRun() error = %v", err)
	}
	defer a.Abort()

	ws := a.Workspace()
	if ws == nil || filepath.Dir(ws.Root) != work {
		t.Fatalf("workspace %v not created under %s", ws, work)
	}
	for _, p := range []string{"mimetype", "META-INF/container.xml", "OEBPS/Images"} {
		if _, err := os.Stat(filepath.Join(ws.Root, filepath.FromSlash(p))); err != nil {
			t.Errorf("%s missing: %v", p, err)
		}
	}
	data, err := os.ReadFile(filepath.Join(ws.Root, "mimetype"))
	if err != nil || string(data) != "application/epub+zip" {
		t.Errorf("mimetype = %q, %v", data, err)
	}
	if a.Identifier() != "TEST-ID" {
		t.Errorf("Identifier() = %q, want TEST-ID", a.Identifier())
	}

	if err := a.BeginRun("again", ""); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second BeginRun() error = %v, want ErrAlreadyStarted", err)
	}
}

func TestAssembler_AppendBeforeBegin(t *testing.T) {
	a, _ := newTestAssembler(t)
	if _, err := a.AppendPage([]byte("x")); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("AppendPage() error = %v, want ErrNotStarted", err)
	}
	if err := a.Finalize(filepath.Join(t.TempDir(), "out.epub")); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("Finalize() error = %v, want ErrNotStarted", err)
	}
}

func TestAssembler_SequenceAndFinalize(t *testing.T) {
	a, work := newTestAssembler(t)
	if err := a.BeginRun("Vol <1> & more", "A. Author"); err != nil {
		t.Fatalf("BeginRun() error = %v", err)
	}
	root := a.Workspace().Root

	page := mustEncodeJPEG(t)
	for want := 1; want <= 3; want++ {
		seq, err := a.AppendPage(page)
		if err != nil {
			t.Fatalf("AppendPage() error = %v", err)
		}
		if seq != want {
			t.Fatalf("AppendPage() seq = %d, want %d", seq, want)
		}
	}
	if a.Pages() != 3 {
		t.Fatalf("Pages() = %d, want 3", a.Pages())
	}

	out := filepath.Join(t.TempDir(), "book.epub")
	if err := a.Finalize(out); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if _, err := os.Stat(root); !os.IsNotExist(err) {
		t.Errorf("workspace still exists after Finalize: %v", err)
	}
	if entries, _ := os.ReadDir(work); len(entries) != 0 {
		t.Errorf("work dir not empty after Finalize: %d entries", len(entries))
	}

	zr, err := zip.OpenReader(out)
	if err != nil {
		t.Fatalf("zip.OpenReader() error = %v", err)
	}
	defer zr.Close()

	if zr.File[0].Name != "mimetype" || zr.File[0].Method != zip.Store {
		t.Fatalf("first entry = %s (method %d), want stored mimetype", zr.File[0].Name, zr.File[0].Method)
	}

	opf := readZipFile(t, zr, "OEBPS/content.opf")
	for i := 1; i <= 3; i++ {
		for _, want := range []string{
			fmt.Sprintf(`<item id="P%d" href="P%d.xml" media-type="application/xhtml+xml"/>`, i, i),
			fmt.Sprintf(`<item id="I%d" href="Images/I%d.jpg" media-type="image/jpeg"/>`, i, i),
			fmt.Sprintf(`<itemref idref="P%d" linear="yes"/>`, i),
		} {
			if !strings.Contains(opf, want) {
				t.Errorf("content.opf missing %s", want)
			}
		}
	}
	if strings.Count(opf, "<itemref ") != 3 {
		t.Errorf("content.opf has %d itemrefs, want 3", strings.Count(opf, "<itemref "))
	}
	if !strings.Contains(opf, "<dc:title>Vol &lt;1&gt; &amp; more</dc:title>") {
		t.Error("title is not escaped in content.opf")
	}
	if !strings.Contains(opf, `<dc:identifier id="EPB-UUID">TEST-ID</dc:identifier>`) {
		t.Error("identifier missing from content.opf")
	}

	ncx := readZipFile(t, zr, "OEBPS/toc.ncx")
	if strings.Count(ncx, "<navPoint ") != 3 {
		t.Errorf("toc.ncx has %d navPoints, want 3", strings.Count(ncx, "<navPoint "))
	}
	if !strings.Contains(ncx, `<navPoint id="N3" playOrder="3"><navLabel><text>P3</text></navLabel><content src="P3.xml"/></navPoint>`) {
		t.Error("toc.ncx missing navPoint N3")
	}
	if !strings.Contains(ncx, `<meta name="dtb:uid" content="TEST-ID"/>`) {
		t.Error("toc.ncx missing dtb:uid")
	}

	p2 := readZipFile(t, zr, "OEBPS/P2.xml")
	if !strings.Contains(p2, `<img style="margin:0" src="Images/I2.jpg" />`) {
		t.Errorf("P2.xml does not reference its image:\n%s", p2)
	}
	readZipFile(t, zr, "OEBPS/C1.css")
	readZipFile(t, zr, "OEBPS/Images/I3.jpg")

	summary, err := Verify(out)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if summary.Pages != 3 || summary.Title != "Vol <1> & more" || summary.Author != "A. Author" {
		t.Errorf("Verify() summary = %+v", summary)
	}
}

func TestAssembler_LanguageFollowsSetting(t *testing.T) {
	a, _ := newTestAssembler(t)
	a.Language = "fr"
	if err := a.BeginRun("Tome", "Auteur"); err != nil {
		t.Fatalf("BeginRun() error = %v", err)
	}
	if _, err := a.AppendPage(mustEncodeJPEG(t)); err != nil {
		t.Fatalf("AppendPage() error = %v", err)
	}
	out := filepath.Join(t.TempDir(), "book.epub")
	if err := a.Finalize(out); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	zr, err := zip.OpenReader(out)
	if err != nil {
		t.Fatalf("zip.OpenReader() error = %v", err)
	}
	defer zr.Close()

	if opf := readZipFile(t, zr, "OEBPS/content.opf"); !strings.Contains(opf, "<dc:language>fr</dc:language>") {
		t.Error("content.opf missing dc:language fr")
	}
	if p1 := readZipFile(t, zr, "OEBPS/P1.xml"); !strings.Contains(p1, `xml:lang="fr"`) {
		t.Errorf("P1.xml does not carry the book language:\n%s", p1)
	}
}

func TestAssembler_FinalizeRemovesExtractDirs(t *testing.T) {
	a, _ := newTestAssembler(t)
	if err := a.BeginRun("t", "a"); err != nil {
		t.Fatalf("BeginRun() error = %v", err)
	}
	dir, err := a.Workspace().ExtractDir()
	if err != nil {
		t.Fatalf("ExtractDir() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "p1.jpg"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := a.AppendPage(mustEncodeJPEG(t)); err != nil {
		t.Fatalf("AppendPage() error = %v", err)
	}

	out := filepath.Join(t.TempDir(), "book.epub")
	if err := a.Finalize(out); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	zr, err := zip.OpenReader(out)
	if err != nil {
		t.Fatalf("zip.OpenReader() error = %v", err)
	}
	defer zr.Close()
	for _, f := range zr.File {
		if strings.HasPrefix(f.Name, "extract") {
			t.Errorf("extraction file %s packaged", f.Name)
		}
	}
}

func TestAssembler_Abort(t *testing.T) {
	a, work := newTestAssembler(t)
	if err := a.BeginRun("t", "a"); err != nil {
		t.Fatalf("BeginRun() error = %v", err)
	}
	if _, err := a.Workspace().ExtractDir(); err != nil {
		t.Fatalf("ExtractDir() error = %v", err)
	}
	if _, err := a.AppendPage(mustEncodeJPEG(t)); err != nil {
		t.Fatalf("AppendPage() error = %v", err)
	}

	if err := a.Abort(); err != nil {
		t.Fatalf("Abort() error = %v", err)
	}
	if entries, _ := os.ReadDir(work); len(entries) != 0 {
		t.Fatalf("work dir not empty after Abort: %d entries", len(entries))
	}
	if _, err := a.AppendPage([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Fatalf("AppendPage() after Abort error = %v, want ErrClosed", err)
	}
	if err := a.Abort(); err != nil {
		t.Fatalf("second Abort() error = %v", err)
	}
}

func TestAssembler_ConcurrentAppendsAreGapless(t *testing.T) {
	a, _ := newTestAssembler(t)
	if err := a.BeginRun("t", "a"); err != nil {
		t.Fatalf("BeginRun() error = %v", err)
	}
	defer a.Abort()

	page := mustEncodeJPEG(t)
	const n = 20
	seqs := make(chan int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seq, err := a.AppendPage(page)
			if err != nil {
				t.Errorf("AppendPage() error = %v", err)
				return
			}
			seqs <- seq
		}()
	}
	wg.Wait()
	close(seqs)

	seen := make(map[int]bool)
	for s := range seqs {
		if seen[s] {
			t.Fatalf("sequence %d assigned twice", s)
		}
		seen[s] = true
	}
	for i := 1; i <= n; i++ {
		if !seen[i] {
			t.Fatalf("sequence %d missing", i)
		}
	}
}
