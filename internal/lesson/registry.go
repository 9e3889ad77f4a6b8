package lesson

import (
	"fmt"
	"sort"
	"sync"

	"github.com/felixgeelhaar/nahw/internal/domain"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/samber/lo"
)

// Registry provides read access to the lesson catalog
type Registry struct {
	loader  *Loader
	mu      sync.RWMutex
	lessons map[string]*domain.Lesson
	ids     []string
}

// NewRegistry creates a new lesson registry
func NewRegistry(loader *Loader) *Registry {
	return &Registry{
		loader:  loader,
		lessons: make(map[string]*domain.Lesson),
	}
}

// NewRegistryFrom builds a loaded registry from lessons already in memory
func NewRegistryFrom(lessons []*domain.Lesson) *Registry {
	r := NewRegistry(nil)
	r.set(lessons)
	return r
}

// Load reads the catalog into memory, replacing anything loaded before
func (r *Registry) Load() error {
	if r.loader == nil {
		return nil
	}

	lessons, err := r.loader.LoadAll()
	if err != nil {
		return fmt.Errorf("load lessons: %w", err)
	}

	r.set(lessons)
	return nil
}

func (r *Registry) set(lessons []*domain.Lesson) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lessons = make(map[string]*domain.Lesson, len(lessons))
	for _, l := range lessons {
		r.lessons[l.ID] = l
	}
	r.ids = lo.Keys(r.lessons)
	sort.Strings(r.ids)
}

// Get returns a lesson by ID. Unknown IDs wrap domain.ErrLessonNotFound and
// suggest the closest known ID when one matches.
func (r *Registry) Get(id string) (*domain.Lesson, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.lessons[id]
	if ok {
		return l, nil
	}

	if suggestion := r.suggest(id); suggestion != "" {
		return nil, fmt.Errorf("%w: %s (did you mean %q?)", domain.ErrLessonNotFound, id, suggestion)
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrLessonNotFound, id)
}

// suggest must be called with the read lock held
func (r *Registry) suggest(id string) string {
	if id == "" {
		return ""
	}
	ranks := fuzzy.RankFindFold(id, r.ids)
	if len(ranks) == 0 {
		// Try the other direction for typos that add characters
		for _, known := range r.ids {
			if fuzzy.MatchFold(known, id) {
				return known
			}
		}
		return ""
	}
	sort.Sort(ranks)
	return ranks[0].Target
}

// List returns all lessons sorted by ID
func (r *Registry) List() []*domain.Lesson {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Map(r.ids, func(id string, _ int) *domain.Lesson {
		return r.lessons[id]
	})
}

// Summaries returns the listing form of every lesson, sorted by ID
func (r *Registry) Summaries() []domain.LessonSummary {
	return lo.Map(r.List(), func(l *domain.Lesson, _ int) domain.LessonSummary {
		return l.Summary()
	})
}

// Count returns the number of loaded lessons
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.lessons)
}
