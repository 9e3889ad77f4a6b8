package lesson

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/felixgeelhaar/nahw/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed catalog/default.yaml
var defaultCatalog []byte

// CatalogFile represents the YAML structure for a lesson catalog
type CatalogFile struct {
	Lessons []LessonFile `yaml:"lessons"`
}

// LessonFile represents one lesson entry in a catalog
type LessonFile struct {
	ID        string   `yaml:"id"`
	Title     string   `yaml:"title"`
	Content   string   `yaml:"content"`
	KeyPoints []string `yaml:"key_points"`
}

// Loader reads lessons from a YAML catalog. An empty path selects the
// catalog compiled into the binary.
type Loader struct {
	path string
}

// NewLoader creates a new lesson loader
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Path returns the catalog path, or "" for the embedded catalog
func (l *Loader) Path() string {
	return l.path
}

// LoadAll loads and validates every lesson in the catalog
func (l *Loader) LoadAll() ([]*domain.Lesson, error) {
	data := defaultCatalog
	if l.path != "" {
		var err error
		data, err = os.ReadFile(l.path)
		if err != nil {
			return nil, fmt.Errorf("read lesson catalog: %w", err)
		}
	}
	return Parse(data)
}

// Parse decodes and validates a catalog document
func Parse(data []byte) ([]*domain.Lesson, error) {
	var file CatalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse lesson catalog: %w", err)
	}

	seen := make(map[string]bool, len(file.Lessons))
	lessons := make([]*domain.Lesson, 0, len(file.Lessons))

	for i, lf := range file.Lessons {
		id := strings.TrimSpace(lf.ID)
		if id == "" {
			return nil, fmt.Errorf("lesson %d: missing id", i)
		}
		if seen[id] {
			return nil, fmt.Errorf("lesson %s: duplicate id", id)
		}
		seen[id] = true

		if strings.TrimSpace(lf.Title) == "" {
			return nil, fmt.Errorf("lesson %s: missing title", id)
		}

		keyPoints := make([]string, 0, len(lf.KeyPoints))
		for _, kp := range lf.KeyPoints {
			if kp = strings.TrimSpace(kp); kp != "" {
				keyPoints = append(keyPoints, kp)
			}
		}
		if len(keyPoints) == 0 {
			return nil, fmt.Errorf("lesson %s: at least one key point is required", id)
		}

		lessons = append(lessons, &domain.Lesson{
			ID:        id,
			Title:     lf.Title,
			Content:   lf.Content,
			KeyPoints: keyPoints,
		})
	}

	return lessons, nil
}
