package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/ulikunitz/xz"

	"github.com/cgourdon/MangaToEpub/internal/source"
)

type tempDirs struct {
	mu   sync.Mutex
	root string
	n    int
}

func (d *tempDirs) ExtractDir() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.n++
	dir := filepath.Join(d.root, fmt.Sprintf("x%d", d.n))
	return dir, os.MkdirAll(dir, 0o755)
}

func mustZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("Create(%s) error = %v", name, err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("Write(%s) error = %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip Close() error = %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func tarBytes(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, body := range entries {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("WriteHeader(%s) error = %v", name, err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatalf("Write(%s) error = %v", name, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar Close() error = %v", err)
	}
	return buf.Bytes()
}

func relNames(t *testing.T, dir string, files []string) []string {
	t.Helper()
	var out []string
	for _, f := range files {
		rel, err := filepath.Rel(dir, f)
		if err != nil {
			t.Fatalf("Rel() error = %v", err)
		}
		out = append(out, filepath.ToSlash(rel))
	}
	return out
}

func TestKindOf(t *testing.T) {
	cases := map[string]Kind{
		"a.cbz":    ZIP,
		"a.ZIP":    ZIP,
		"a.cbr":    RAR,
		"a.rar":    RAR,
		"a.cbt":    TAR,
		"a.tar.gz": TAR,
		"a.txz":    TAR,
	}
	for name, want := range cases {
		got, ok := KindOf(name)
		if !ok || got != want {
			t.Fatalf("KindOf(%q) = %v, %v; want %v, true", name, got, ok, want)
		}
	}
	if _, ok := KindOf("a.jpg"); ok {
		t.Fatal("KindOf(a.jpg) ok = true, want false")
	}
}

func TestZipReader_FiltersImagesAndSorts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vol.cbz")
	mustZip(t, path, map[string]string{
		"p10.jpg":       "a",
		"p2.jpg":        "b",
		"notes.txt":     "c",
		"extra/p1.png":  "d",
		"ComicInfo.xml": "e",
	})
	out := filepath.Join(dir, "out")
	if err := os.MkdirAll(out, 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	files, err := zipReader{}.Extract(context.Background(), path, out)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	want := []string{"extra/p1.png", "p2.jpg", "p10.jpg"}
	if got := relNames(t, out, files); !reflect.DeepEqual(got, want) {
		t.Fatalf("Extract() = %v, want %v", got, want)
	}
	if _, err := os.Stat(filepath.Join(out, "notes.txt")); !os.IsNotExist(err) {
		t.Fatalf("notes.txt was extracted, stat error = %v", err)
	}
}

func TestZipReader_RejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "evil.zip")
	mustZip(t, path, map[string]string{"../../escape.jpg": "x"})
	out := filepath.Join(dir, "out")
	if err := os.MkdirAll(out, 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	_, err := zipReader{}.Extract(context.Background(), path, out)
	if !errors.Is(err, ErrUnsafePath) {
		t.Fatalf("Extract() error = %v, want ErrUnsafePath", err)
	}
}

func TestTarReader_Variants(t *testing.T) {
	entries := map[string]string{
		"ch1/p3.jpg":  "a",
		"ch1/p20.jpg": "b",
		"readme.txt":  "c",
	}
	raw := tarBytes(t, entries)

	var gz bytes.Buffer
	gzw := gzip.NewWriter(&gz)
	if _, err := gzw.Write(raw); err != nil {
		t.Fatalf("gzip Write() error = %v", err)
	}
	if err := gzw.Close(); err != nil {
		t.Fatalf("gzip Close() error = %v", err)
	}

	var xzBuf bytes.Buffer
	xzw, err := xz.NewWriter(&xzBuf)
	if err != nil {
		t.Fatalf("xz.NewWriter() error = %v", err)
	}
	if _, err := xzw.Write(raw); err != nil {
		t.Fatalf("xz Write() error = %v", err)
	}
	if err := xzw.Close(); err != nil {
		t.Fatalf("xz Close() error = %v", err)
	}

	variants := map[string][]byte{
		"vol.cbt":    raw,
		"vol.tar.gz": gz.Bytes(),
		"vol.txz":    xzBuf.Bytes(),
	}
	for name, data := range variants {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, name)
			if err := os.WriteFile(path, data, 0o644); err != nil {
				t.Fatalf("WriteFile() error = %v", err)
			}
			out := filepath.Join(dir, "out")
			if err := os.MkdirAll(out, 0o755); err != nil {
				t.Fatalf("MkdirAll() error = %v", err)
			}

			files, err := tarReader{}.Extract(context.Background(), path, out)
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			want := []string{"ch1/p3.jpg", "ch1/p20.jpg"}
			if got := relNames(t, out, files); !reflect.DeepEqual(got, want) {
				t.Fatalf("Extract() = %v, want %v", got, want)
			}
		})
	}
}

func TestRarReader_ExtractsNestedFolders(t *testing.T) {
	out := t.TempDir()
	files, err := rarReader{}.Extract(context.Background(), filepath.Join("testdata", "pages.cbr"), out)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	want := []string{"ch1/p2.jpg", "ch1/p10.jpg", "ch1/sub/p1.png", "ch2/p1.jpg"}
	if got := relNames(t, out, files); !reflect.DeepEqual(got, want) {
		t.Fatalf("Extract() = %v, want %v", got, want)
	}

	data, err := os.ReadFile(filepath.Join(out, "ch1", "p10.jpg"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "ten" {
		t.Fatalf("ch1/p10.jpg = %q, want %q", data, "ten")
	}
	// Non-image entries are extracted but never returned as pages.
	if _, err := os.Stat(filepath.Join(out, "notes.txt")); err != nil {
		t.Fatalf("notes.txt not extracted: %v", err)
	}
}

func TestUnpacker_SplicesRarInPlace(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.jpg")
	last := filepath.Join(dir, "z.jpg")
	cbr := filepath.Join("testdata", "pages.cbr")

	u := NewUnpacker(&tempDirs{root: filepath.Join(dir, "work")}, 2)
	pages, failures, err := u.Expand(context.Background(), []source.Page{
		{Path: first}, {Path: cbr}, {Path: last},
	})
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if len(failures) != 0 {
		t.Fatalf("Expand() failures = %v, want none", failures)
	}

	var got []string
	for _, p := range pages {
		got = append(got, filepath.ToSlash(p.Path))
	}
	if len(pages) != 6 || pages[0].Path != first || pages[5].Path != last {
		t.Fatalf("Expand() pages = %v", got)
	}
	wantSuffixes := []string{"ch1/p2.jpg", "ch1/p10.jpg", "ch1/sub/p1.png", "ch2/p1.jpg"}
	for i, suffix := range wantSuffixes {
		p := pages[i+1]
		if !strings.HasSuffix(filepath.ToSlash(p.Path), "/"+suffix) || !p.FromArchive {
			t.Fatalf("page %d = %+v, want archive page ending in %s", i+1, p, suffix)
		}
	}
}

func TestUnpacker_SplicesInPlace(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.jpg")
	zipPath := filepath.Join(dir, "b.cbz")
	mustZip(t, zipPath, map[string]string{"2.jpg": "x", "1.jpg": "y"})
	last := filepath.Join(dir, "c.jpg")

	u := NewUnpacker(&tempDirs{root: filepath.Join(dir, "work")}, 4)
	pages, failures, err := u.Expand(context.Background(), []source.Page{
		{Path: first}, {Path: zipPath}, {Path: last},
	})
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if len(failures) != 0 {
		t.Fatalf("Expand() failures = %v, want none", failures)
	}
	if len(pages) != 4 {
		t.Fatalf("Expand() returned %d pages, want 4", len(pages))
	}
	if pages[0].Path != first || pages[3].Path != last {
		t.Fatalf("loose pages moved: %v", pages)
	}
	if filepath.Base(pages[1].Path) != "1.jpg" || filepath.Base(pages[2].Path) != "2.jpg" {
		t.Fatalf("archive pages out of order: %v", pages)
	}
	if !pages[1].FromArchive || pages[0].FromArchive {
		t.Fatalf("FromArchive flags wrong: %v", pages)
	}
}

func TestUnpacker_ReportsFailuresByKind(t *testing.T) {
	dir := t.TempDir()
	bad := map[string]Kind{
		"broken.cbz": ZIP,
		"broken.cbr": RAR,
		"broken.tgz": TAR,
	}
	var pages []source.Page
	for name := range bad {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("not an archive"), 0o644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
		pages = append(pages, source.Page{Path: path})
	}
	keep := filepath.Join(dir, "keep.jpg")
	pages = append(pages, source.Page{Path: keep})

	u := NewUnpacker(&tempDirs{root: filepath.Join(dir, "work")}, 2)
	out, failures, err := u.Expand(context.Background(), pages)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if len(out) != 1 || out[0].Path != keep {
		t.Fatalf("Expand() pages = %v, want only %s", out, keep)
	}
	if len(failures) != len(bad) {
		t.Fatalf("Expand() failures = %d, want %d", len(failures), len(bad))
	}
	for _, f := range failures {
		if want := bad[filepath.Base(f.Path)]; f.Kind != want {
			t.Fatalf("failure %s kind = %v, want %v", f.Path, f.Kind, want)
		}
		if f.Err == nil {
			t.Fatalf("failure %s has nil error", f.Path)
		}
	}
}

type failingDirs struct{}

func (failingDirs) ExtractDir() (string, error) {
	return "", errors.New("disk full")
}

func TestUnpacker_DirAllocationIsFatal(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "b.cbz")
	mustZip(t, zipPath, map[string]string{"1.jpg": "y"})

	_, _, err := NewUnpacker(failingDirs{}, 1).Expand(context.Background(), []source.Page{{Path: zipPath}})
	if err == nil {
		t.Fatal("Expand() error = nil, want extraction directory failure")
	}
}

func TestUnpacker_Canceled(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "b.cbz")
	mustZip(t, zipPath, map[string]string{"1.jpg": "y"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := NewUnpacker(&tempDirs{root: dir}, 1).Expand(ctx, []source.Page{{Path: zipPath}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expand() error = %v, want context.Canceled", err)
	}
}
