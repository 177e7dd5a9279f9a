package output

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mvp-joe/callmap/internal/catalog"
)

// AtomicWriter writes catalog documents using the temp → rename pattern so a
// reader never observes a partially written document.
type AtomicWriter struct {
	outputDir string
	tempDir   string
	validate  bool
}

// NewAtomicWriter creates a writer rooted at outputDir. Stale temp files from an
// interrupted run are removed.
func NewAtomicWriter(outputDir string, validate bool) (*AtomicWriter, error) {
	tempDir := filepath.Join(outputDir, ".tmp")

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	// Clean up stale temp files
	if err := os.RemoveAll(tempDir); err != nil {
		return nil, fmt.Errorf("failed to clean temp directory: %w", err)
	}

	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	return &AtomicWriter{
		outputDir: outputDir,
		tempDir:   tempDir,
		validate:  validate,
	}, nil
}

// Dir returns the output directory.
func (w *AtomicWriter) Dir() string {
	return w.outputDir
}

// WriteCatalog validates (when enabled) and writes c as filename, returning the final path.
// A document that fails validation is never written.
func (w *AtomicWriter) WriteCatalog(filename string, c *catalog.Catalog) (string, error) {
	data, err := Encode(c)
	if err != nil {
		return "", err
	}
	if w.validate {
		if err := ValidateDocument(data); err != nil {
			return "", fmt.Errorf("%s: %w", filename, err)
		}
	}

	tempPath := filepath.Join(w.tempDir, filename)
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}

	finalPath := filepath.Join(w.outputDir, filename)
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("failed to rename temp file: %w", err)
	}

	return finalPath, nil
}

// ReadDocument reads a previously written document. A missing document returns (nil, nil).
func (w *AtomicWriter) ReadDocument(filename string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(w.outputDir, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read catalog document: %w", err)
	}
	return data, nil
}

// Close removes the temp directory.
func (w *AtomicWriter) Close() error {
	return os.RemoveAll(w.tempDir)
}
