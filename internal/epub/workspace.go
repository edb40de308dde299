package epub

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

const extractDirName = "extract"

// Workspace is the scratch tree a book is assembled in: META-INF, OEBPS and
// OEBPS/Images, plus the archive extraction directories of the run.
type Workspace struct {
	Root string

	mu          sync.Mutex
	extractDirs []string
}

// NewWorkspace creates a uniquely named workspace under parent, or under the
// system temp directory when parent is empty.
func NewWorkspace(parent string) (*Workspace, error) {
	if parent == "" {
		parent = os.TempDir()
	}
	root := filepath.Join(parent, "manga2epub-"+uuid.NewString())
	for _, dir := range []string{
		filepath.Join(root, "META-INF"),
		filepath.Join(root, "OEBPS", "Images"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			os.RemoveAll(root)
			return nil, fmt.Errorf("failed to create workspace: %w", err)
		}
	}
	return &Workspace{Root: root}, nil
}

// OEBPS returns the content directory.
func (w *Workspace) OEBPS() string {
	return filepath.Join(w.Root, "OEBPS")
}

// Images returns the page image directory.
func (w *Workspace) Images() string {
	return filepath.Join(w.Root, "OEBPS", "Images")
}

// ExtractDir creates and records a fresh directory for one archive.
func (w *Workspace) ExtractDir() (string, error) {
	dir := filepath.Join(w.Root, extractDirName, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create extraction directory: %w", err)
	}
	w.mu.Lock()
	w.extractDirs = append(w.extractDirs, dir)
	w.mu.Unlock()
	return dir, nil
}

// ExtractDirs returns the extraction directories handed out so far.
func (w *Workspace) ExtractDirs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.extractDirs...)
}

// RemoveExtractDirs deletes every extraction directory.
func (w *Workspace) RemoveExtractDirs() error {
	w.mu.Lock()
	w.extractDirs = nil
	w.mu.Unlock()
	if err := os.RemoveAll(filepath.Join(w.Root, extractDirName)); err != nil {
		return fmt.Errorf("failed to remove extraction directories: %w", err)
	}
	return nil
}

// Remove deletes the whole workspace. It is safe to call at any point and
// more than once.
func (w *Workspace) Remove() error {
	if err := os.RemoveAll(w.Root); err != nil {
		return fmt.Errorf("failed to remove workspace: %w", err)
	}
	return nil
}
