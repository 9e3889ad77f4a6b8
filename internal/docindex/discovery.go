package docindex

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// TextbookExtensions are the file types picked up when a directory is ingested
var TextbookExtensions = []string{
	".md",
	".markdown",
	".txt",
}

// DefaultMaxDepth limits how far below a given directory discovery descends
const DefaultMaxDepth = 5

// Discoverer expands ingestion arguments into textbook files
type Discoverer struct {
	extensions []string
	maxDepth   int
}

// NewDiscoverer creates a discoverer with the default extensions and depth
func NewDiscoverer() *Discoverer {
	return &Discoverer{
		extensions: TextbookExtensions,
		maxDepth:   DefaultMaxDepth,
	}
}

// WithExtensions sets the extensions matched inside directories
func (d *Discoverer) WithExtensions(exts []string) *Discoverer {
	d.extensions = exts
	return d
}

// WithMaxDepth sets the directory depth limit. 0 means unlimited.
func (d *Discoverer) WithMaxDepth(depth int) *Discoverer {
	d.maxDepth = depth
	return d
}

// Discover returns the files to ingest for paths. A file named directly is
// always kept whatever its extension. A directory is walked for files with
// a textbook extension, skipping hidden directories and files. Results keep
// argument order, are sorted within each directory and hold no duplicates.
func (d *Discoverer) Discover(paths ...string) ([]string, error) {
	var files []string
	seen := make(map[string]bool)
	add := func(path string) {
		clean := filepath.Clean(path)
		if !seen[clean] {
			seen[clean] = true
			files = append(files, clean)
		}
	}

	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("discover %s: %w", root, err)
		}
		if !info.IsDir() {
			add(root)
			continue
		}

		found, err := d.walk(root)
		if err != nil {
			return nil, err
		}
		for _, f := range found {
			add(f)
		}
	}
	return files, nil
}

func (d *Discoverer) walk(root string) ([]string, error) {
	var found []string
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		if isHidden(entry.Name()) {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if entry.IsDir() {
			if d.maxDepth > 0 && depth(root, path) >= d.maxDepth {
				return filepath.SkipDir
			}
			return nil
		}
		if d.isTextbookFile(path) {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return found, nil
}

func (d *Discoverer) isTextbookFile(path string) bool {
	return slices.Contains(d.extensions, strings.ToLower(filepath.Ext(path)))
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// depth counts the directories between root and path
func depth(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}

func isMarkdown(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return true
	}
	return false
}
