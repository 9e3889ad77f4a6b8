package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestTierForScore(t *testing.T) {
	tests := []struct {
		score int
		want  ScoreTier
	}{
		{100, TierExcellent},
		{90, TierExcellent},
		{89, TierGood},
		{70, TierGood},
		{69, TierNeedsReview},
		{0, TierNeedsReview},
	}

	for _, tt := range tests {
		if got := TierForScore(tt.score); got != tt.want {
			t.Errorf("TierForScore(%d) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestEvaluationResult_Tier(t *testing.T) {
	r := &EvaluationResult{Score: 75}
	if r.Tier() != TierGood {
		t.Errorf("Tier() = %q, want %q", r.Tier(), TierGood)
	}
}

func TestEvaluationResult_JSONFieldOrder(t *testing.T) {
	r := EvaluationResult{
		Score:             80,
		CorrectPoints:     []string{},
		IncorrectPoints:   []string{},
		MissedPoints:      []string{},
		GeneratedFeedback: "f",
		RewrittenAnswer:   "r",
	}

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	want := `{"score":80,"correct_points":[],"incorrect_points":[],"missed_points":[],"generated_feedback":"f","rewritten_answer":"r"}`
	if string(data) != want {
		t.Errorf("json = %s, want %s", data, want)
	}
}

func TestParseGroundingPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    GroundingPolicy
		wantErr bool
	}{
		{"", GroundingStrict, false},
		{"strict", GroundingStrict, false},
		{"preferred", GroundingPreferred, false},
		{"loose", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseGroundingPolicy(tt.in)
			if tt.wantErr {
				var cfgErr *ConfigurationError
				if !errors.As(err, &cfgErr) {
					t.Fatalf("expected ConfigurationError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseGroundingPolicy(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestLesson_Summary(t *testing.T) {
	l := &Lesson{ID: "lesson1", Title: "اسم الإشارة", KeyPoints: []string{"a", "b"}}
	s := l.Summary()
	if s.ID != "lesson1" || s.KeyPointCount != 2 {
		t.Errorf("Summary() = %+v", s)
	}
}
