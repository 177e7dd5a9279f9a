// Package output renders catalogs as JSON documents and writes them to disk.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/mvp-joe/callmap/internal/catalog"
)

// DocumentSuffix is appended to every catalog file name.
const DocumentSuffix = ".callmap.json"

// Encode renders c as an indented JSON document.
func Encode(c *catalog.Catalog) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("nil catalog")
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal catalog: %w", err)
	}
	return append(data, '\n'), nil
}

// Write encodes c to w, validating it first when validate is set.
func Write(w io.Writer, c *catalog.Catalog, validate bool) error {
	data, err := Encode(c)
	if err != nil {
		return err
	}
	if validate {
		if err := ValidateDocument(data); err != nil {
			return err
		}
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write catalog: %w", err)
	}
	return nil
}

// FileName derives the document file name for an artifact. rel is the artifact path
// relative to the scan root; separators are flattened so nested artifacts with the
// same base name do not collide.
func FileName(rel string) string {
	rel = filepath.ToSlash(filepath.Clean(rel))
	for strings.HasPrefix(rel, "../") {
		rel = rel[3:]
	}
	rel = strings.TrimPrefix(strings.ReplaceAll(rel, ":", ""), "/")
	if rel == "" || rel == "." || rel == ".." {
		rel = "artifact"
	}
	return strings.ReplaceAll(rel, "/", "__") + DocumentSuffix
}
