package domain

import (
	"time"

	"github.com/google/uuid"
)

// Score bounds for an evaluation
const (
	MinScore = 0
	MaxScore = 100
)

// Result field names in contract order
const (
	FieldScore             = "score"
	FieldCorrectPoints     = "correct_points"
	FieldIncorrectPoints   = "incorrect_points"
	FieldMissedPoints      = "missed_points"
	FieldGeneratedFeedback = "generated_feedback"
	FieldRewrittenAnswer   = "rewritten_answer"
)

// ResultFields lists every required EvaluationResult field in the order
// the judge is asked to emit them.
var ResultFields = []string{
	FieldScore,
	FieldCorrectPoints,
	FieldIncorrectPoints,
	FieldMissedPoints,
	FieldGeneratedFeedback,
	FieldRewrittenAnswer,
}

// EvaluationResult is the structured critique returned by the judge.
// Field order matches ResultFields.
type EvaluationResult struct {
	Score             int      `json:"score" jsonschema:"description=Overall recall score from 0 to 100"`
	CorrectPoints     []string `json:"correct_points" jsonschema:"description=Points the learner recalled correctly"`
	IncorrectPoints   []string `json:"incorrect_points" jsonschema:"description=Points the learner stated incorrectly"`
	MissedPoints      []string `json:"missed_points" jsonschema:"description=Key points the learner left out"`
	GeneratedFeedback string   `json:"generated_feedback" jsonschema:"description=Short encouraging feedback paragraph"`
	RewrittenAnswer   string   `json:"rewritten_answer" jsonschema:"description=The learner's answer rewritten to be complete and accurate"`
}

// Tier returns the score tier of the result
func (r *EvaluationResult) Tier() ScoreTier {
	return TierForScore(r.Score)
}

// ScoreTier is the coarse level shown to learners
type ScoreTier string

const (
	TierExcellent   ScoreTier = "Excellent"
	TierGood        ScoreTier = "Good"
	TierNeedsReview ScoreTier = "Needs review"
)

// TierForScore maps a score to its tier. 90 and above is Excellent,
// 70 through 89 is Good, anything lower needs review.
func TierForScore(score int) ScoreTier {
	switch {
	case score >= 90:
		return TierExcellent
	case score >= 70:
		return TierGood
	default:
		return TierNeedsReview
	}
}

// GroundingPolicy controls how strictly the judge must stay within the
// retrieved textbook context.
type GroundingPolicy string

const (
	// GroundingStrict forbids outside knowledge
	GroundingStrict GroundingPolicy = "strict"
	// GroundingPreferred allows outside knowledge when the context is silent
	GroundingPreferred GroundingPolicy = "preferred"
)

// Valid reports whether the policy is a known value
func (p GroundingPolicy) Valid() bool {
	return p == GroundingStrict || p == GroundingPreferred
}

// ParseGroundingPolicy converts a configuration string to a policy.
// The empty string selects GroundingStrict.
func ParseGroundingPolicy(s string) (GroundingPolicy, error) {
	if s == "" {
		return GroundingStrict, nil
	}
	p := GroundingPolicy(s)
	if !p.Valid() {
		return "", &ConfigurationError{
			Field:   "evaluation.grounding",
			Message: "must be \"strict\" or \"preferred\", got " + s,
		}
	}
	return p, nil
}

// EvaluationRequest carries the inputs of a single evaluation call once the
// lesson is resolved and the textbook context retrieved
type EvaluationRequest struct {
	LearnerAnswer    string
	LessonKeyPoints  []string
	RetrievedContext string
	Provider         string
	Grounding        GroundingPolicy
}

// LogRecord is one row of the evaluation dataset
type LogRecord struct {
	ID        uuid.UUID `json:"id"`
	LessonID  string    `json:"lesson_id"`
	Provider  string    `json:"provider"`
	Prompt    string    `json:"prompt"`
	Response  string    `json:"response"`
	CreatedAt time.Time `json:"created_at"`
}
