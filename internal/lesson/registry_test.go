package lesson_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/felixgeelhaar/nahw/internal/domain"
	"github.com/felixgeelhaar/nahw/internal/lesson"
)

func setupRegistry(t *testing.T) *lesson.Registry {
	t.Helper()

	registry := lesson.NewRegistry(lesson.NewLoader(""))
	if err := registry.Load(); err != nil {
		t.Fatalf("Failed to load lessons: %v", err)
	}
	return registry
}

func TestRegistry_LoadDefaultCatalog(t *testing.T) {
	registry := setupRegistry(t)

	if registry.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", registry.Count())
	}

	l, err := registry.Get("lesson1")
	if err != nil {
		t.Fatalf("Get(lesson1) failed: %v", err)
	}
	if l.Title != "اسم الإشارة" {
		t.Errorf("Title = %q", l.Title)
	}
	if len(l.KeyPoints) == 0 {
		t.Error("lesson1 should have key points")
	}
	for _, word := range []string{"هذا", "هذه", "ذلك", "تلك"} {
		if !strings.Contains(l.Content, word) {
			t.Errorf("lesson1 content missing %s", word)
		}
	}
}

func TestRegistry_ListSorted(t *testing.T) {
	registry := setupRegistry(t)

	lessons := registry.List()
	if len(lessons) != 2 {
		t.Fatalf("List() returned %d lessons", len(lessons))
	}
	if lessons[0].ID != "cases" || lessons[1].ID != "lesson1" {
		t.Errorf("List() order = %s, %s", lessons[0].ID, lessons[1].ID)
	}

	summaries := registry.Summaries()
	if summaries[1].KeyPointCount != len(lessons[1].KeyPoints) {
		t.Errorf("summary key point count = %d", summaries[1].KeyPointCount)
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	registry := setupRegistry(t)

	tests := []struct {
		id         string
		suggestion string
	}{
		{"lesson", "lesson1"},
		{"lesson11", "lesson1"},
		{"case", "cases"},
		{"zzz", ""},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			_, err := registry.Get(tt.id)
			if !errors.Is(err, domain.ErrLessonNotFound) {
				t.Fatalf("expected ErrLessonNotFound, got %v", err)
			}
			if tt.suggestion == "" {
				if strings.Contains(err.Error(), "did you mean") {
					t.Errorf("unexpected suggestion: %v", err)
				}
				return
			}
			if !strings.Contains(err.Error(), tt.suggestion) {
				t.Errorf("error %q should suggest %q", err.Error(), tt.suggestion)
			}
		})
	}
}

func TestRegistry_LoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lessons.yaml")
	catalog := `lessons:
  - id: verbs
    title: الفعل
    content: past and present
    key_points:
      - "الماضي describes completed actions."
`
	if err := os.WriteFile(path, []byte(catalog), 0644); err != nil {
		t.Fatal(err)
	}

	registry := lesson.NewRegistry(lesson.NewLoader(path))
	if err := registry.Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	l, err := registry.Get("verbs")
	if err != nil {
		t.Fatalf("Get(verbs) failed: %v", err)
	}
	if l.KeyPoints[0] != "الماضي describes completed actions." {
		t.Errorf("KeyPoints = %v", l.KeyPoints)
	}
}

func TestRegistry_LoadMissingFile(t *testing.T) {
	registry := lesson.NewRegistry(lesson.NewLoader(filepath.Join(t.TempDir(), "missing.yaml")))
	if err := registry.Load(); err == nil {
		t.Error("expected error for missing catalog")
	}
}

func TestNewRegistryFrom(t *testing.T) {
	registry := lesson.NewRegistryFrom([]*domain.Lesson{
		{ID: "b", Title: "B", KeyPoints: []string{"x"}},
		{ID: "a", Title: "A", KeyPoints: []string{"y"}},
	})

	lessons := registry.List()
	if len(lessons) != 2 || lessons[0].ID != "a" {
		t.Errorf("List() = %+v", lessons)
	}
}
