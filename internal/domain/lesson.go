package domain

// Lesson is a grammar lesson a learner tries to recall. Lessons come from
// a static catalog and are never mutated.
type Lesson struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	KeyPoints []string `json:"key_points"`
}

// Summary returns a copy of the lesson without its content
func (l *Lesson) Summary() LessonSummary {
	return LessonSummary{
		ID:            l.ID,
		Title:         l.Title,
		KeyPointCount: len(l.KeyPoints),
	}
}

// LessonSummary is the listing form of a lesson
type LessonSummary struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	KeyPointCount int    `json:"key_point_count"`
}
