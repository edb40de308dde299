package epub

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrNotStarted     = errors.New("assembler: BeginRun has not been called")
	ErrAlreadyStarted = errors.New("assembler: run already started")
	ErrClosed         = errors.New("assembler: run already finalized or aborted")
)

// DefaultLanguage is written to dc:language when none is configured.
const DefaultLanguage = "en-gb"

// Assembler builds one EPUB. Pages are numbered 1..N in the order they are
// appended; all methods are safe for concurrent use but appends are
// serialised, so callers control reading order by the order of their calls.
type Assembler struct {
	// WorkDir is the parent of the workspace; empty means the temp dir.
	WorkDir  string
	Language string

	// NewID generates the package identifier; nil means an upper-case UUID.
	NewID func() string

	mu       sync.Mutex
	ws       *Workspace
	meta     bookMeta
	seq      int
	manifest strings.Builder
	spine    strings.Builder
	navMap   strings.Builder
	closed   bool
}

// NewAssembler creates an assembler that places its workspace in workDir.
func NewAssembler(workDir string) *Assembler {
	return &Assembler{WorkDir: workDir, Language: DefaultLanguage}
}

// BeginRun creates the workspace with its fixed files and opens the
// package, navigation and chapter documents for title and author.
func (a *Assembler) BeginRun(title, author string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	if a.ws != nil {
		return ErrAlreadyStarted
	}

	ws, err := NewWorkspace(a.WorkDir)
	if err != nil {
		return err
	}

	newID := a.NewID
	if newID == nil {
		newID = func() string { return strings.ToUpper(uuid.NewString()) }
	}
	lang := a.Language
	if lang == "" {
		lang = DefaultLanguage
	}
	a.meta = bookMeta{Title: title, Author: author, Language: lang, ID: newID()}

	fixed := []struct {
		name    string
		content string
	}{
		{"mimetype", mimetypeContent},
		{filepath.Join("META-INF", "container.xml"), containerXML},
	}
	for _, f := range fixed {
		if err := os.WriteFile(filepath.Join(ws.Root, f.name), []byte(f.content), 0o644); err != nil {
			ws.Remove()
			return fmt.Errorf("failed to write %s: %w", f.name, err)
		}
	}

	a.ws = ws
	a.seq = 0
	a.manifest.Reset()
	a.spine.Reset()
	a.navMap.Reset()
	return nil
}

// Workspace returns the workspace of the current run, or nil before
// BeginRun.
func (a *Assembler) Workspace() *Workspace {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ws
}

// Identifier returns the package identifier of the current run.
func (a *Assembler) Identifier() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.meta.ID
}

// Pages returns the number of pages appended so far.
func (a *Assembler) Pages() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.seq
}

// AppendPage stores one encoded canvas as the next page and returns its
// sequence number.
func (a *Assembler) AppendPage(jpeg []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.usable(); err != nil {
		return 0, err
	}

	seq := a.seq + 1
	imgPath := filepath.Join(a.ws.OEBPS(), filepath.FromSlash(imageHref(seq)))
	if err := os.WriteFile(imgPath, jpeg, 0o644); err != nil {
		return 0, fmt.Errorf("failed to write page image %d: %w", seq, err)
	}
	chapterPath := filepath.Join(a.ws.OEBPS(), pageHref(seq))
	if err := os.WriteFile(chapterPath, []byte(chapter(a.meta, seq)), 0o644); err != nil {
		return 0, fmt.Errorf("failed to write chapter %d: %w", seq, err)
	}

	a.manifest.WriteString(manifestItems(seq))
	a.spine.WriteString(spineItem(seq))
	a.navMap.WriteString(navPoint(seq))
	a.seq = seq
	return seq, nil
}

// Finalize writes the package and navigation documents, removes extraction
// directories, zips the workspace into outputPath and deletes the
// workspace. The output file only appears once the archive is complete.
func (a *Assembler) Finalize(outputPath string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.usable(); err != nil {
		return err
	}
	a.closed = true
	ws := a.ws

	if err := a.writeDocuments(); err != nil {
		ws.Remove()
		return err
	}
	if err := ws.RemoveExtractDirs(); err != nil {
		ws.Remove()
		return err
	}
	if err := pack(ws.Root, outputPath); err != nil {
		ws.Remove()
		return err
	}
	return ws.Remove()
}

// Abort discards the run and its workspace. It is a no-op before BeginRun
// and after Finalize.
func (a *Assembler) Abort() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed || a.ws == nil {
		a.closed = true
		return nil
	}
	a.closed = true
	return a.ws.Remove()
}

func (a *Assembler) usable() error {
	if a.closed {
		return ErrClosed
	}
	if a.ws == nil {
		return ErrNotStarted
	}
	return nil
}

func (a *Assembler) writeDocuments() error {
	oebps := a.ws.OEBPS()

	opf := opfHead(a.meta) + a.manifest.String() + opfMiddle + a.spine.String() + opfTail
	ncx := ncxHead(a.meta) + a.navMap.String() + ncxTail

	docs := []struct {
		name    string
		content string
	}{
		{opfName, opf},
		{ncxName, ncx},
		{cssName, stylesheet},
	}
	for _, d := range docs {
		if err := os.WriteFile(filepath.Join(oebps, d.name), []byte(d.content), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", d.name, err)
		}
	}
	return nil
}
