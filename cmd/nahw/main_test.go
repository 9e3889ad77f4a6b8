package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/nahw/internal/config"
	"github.com/felixgeelhaar/nahw/internal/daemon"
	"github.com/felixgeelhaar/nahw/internal/domain"
	"github.com/felixgeelhaar/nahw/internal/evallog"
	"github.com/felixgeelhaar/nahw/internal/evaluation"
	"github.com/felixgeelhaar/nahw/internal/queue"
)

func TestReadAnswer(t *testing.T) {
	got, err := readAnswer([]string{"هذا", "للمذكر"}, strings.NewReader("ignored"))
	if err != nil || got != "هذا للمذكر" {
		t.Errorf("readAnswer(args) = %q, %v", got, err)
	}

	got, err = readAnswer(nil, strings.NewReader("  تلك للمؤنث البعيد\n"))
	if err != nil || got != "تلك للمؤنث البعيد" {
		t.Errorf("readAnswer(stdin) = %q, %v", got, err)
	}

	got, err = readAnswer([]string{"-"}, strings.NewReader("from stdin"))
	if err != nil || got != "from stdin" {
		t.Errorf("readAnswer(-) = %q, %v", got, err)
	}

	if _, err := readAnswer(nil, strings.NewReader(" \n")); !errors.Is(err, domain.ErrEmptyAnswer) {
		t.Errorf("blank stdin error = %v", err)
	}
}

func TestRenderScoreBar(t *testing.T) {
	tests := []struct {
		score int
		want  string
	}{
		{0, "[░░░░░░░░░░]"},
		{50, "[█████░░░░░]"},
		{100, "[██████████]"},
		{130, "[██████████]"},
		{-5, "[░░░░░░░░░░]"},
	}
	for _, tt := range tests {
		if got := renderScoreBar(tt.score, 10); got != tt.want {
			t.Errorf("renderScoreBar(%d) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestPreview(t *testing.T) {
	if got := preview("a\n  b\tc", 10); got != "a b c" {
		t.Errorf("preview() = %q", got)
	}
	if got := preview("ابتثجحخ", 3); got != "ابت…" {
		t.Errorf("preview() = %q", got)
	}
}

func TestDaemonAddrFor(t *testing.T) {
	cfg := config.DefaultLocalConfig()
	if got := daemonAddrFor(cfg); got != "http://127.0.0.1:7433" {
		t.Errorf("daemonAddrFor() = %q", got)
	}
	cfg.Daemon.Bind = "0.0.0.0"
	cfg.Daemon.Port = 9000
	if got := daemonAddrFor(cfg); got != "http://127.0.0.1:9000" {
		t.Errorf("daemonAddrFor(any) = %q", got)
	}
}

func TestEvaluateRemote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/evaluations" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var req evaluation.Request
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.LessonID == "missing" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"lesson not found","status":404,"kind":"lesson_not_found","details":"lesson not found: \"missing\""}`))
			return
		}
		_ = json.NewEncoder(w).Encode(daemon.EvaluationResponse{
			LessonID: req.LessonID,
			Provider: "openai",
			Tier:     domain.TierGood,
			Result:   &domain.EvaluationResult{Score: 80, GeneratedFeedback: "Good."},
		})
	}))
	defer srv.Close()

	resp, err := evaluateRemote(context.Background(), srv.URL, evaluation.Request{LearnerAnswer: "x", LessonID: "lesson1"})
	if err != nil {
		t.Fatalf("evaluateRemote() error = %v", err)
	}
	if resp.Result.Score != 80 || resp.Tier != domain.TierGood {
		t.Errorf("resp = %+v", resp)
	}

	_, err = evaluateRemote(context.Background(), srv.URL, evaluation.Request{LearnerAnswer: "x", LessonID: "missing"})
	if err == nil || !strings.Contains(err.Error(), "lesson_not_found") {
		t.Errorf("error = %v", err)
	}
}

func TestPrintEvaluation(t *testing.T) {
	var buf bytes.Buffer
	printEvaluation(&buf, &daemon.EvaluationResponse{
		LessonID: "lesson1",
		Provider: "gemini",
		Tier:     domain.TierExcellent,
		Result: &domain.EvaluationResult{
			Score:             95,
			CorrectPoints:     []string{"hadha"},
			MissedPoints:      []string{"tilka"},
			GeneratedFeedback: "Excellent work.",
			RewrittenAnswer:   "hadha, hadhihi, dhalika, tilka",
		},
		Warnings: []string{"log sink csv: disk full"},
	})

	out := buf.String()
	for _, want := range []string{"95/100", "Excellent", "✓ hadha", "· tilka", "Excellent work.", "disk full"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Incorrect") {
		t.Error("empty sections should be omitted")
	}
}

func TestResponseFromResult(t *testing.T) {
	done := &queue.EvaluationResult{
		JobID:      uuid.New(),
		Status:     queue.StatusCompleted,
		LessonID:   "cases",
		Provider:   "openai",
		Result:     &domain.EvaluationResult{Score: 72},
		Tier:       domain.TierForScore(72),
		Warnings:   []string{"csv: disk full"},
		DurationMS: 900,
	}
	resp, err := responseFromResult(done)
	if err != nil {
		t.Fatalf("responseFromResult() error = %v", err)
	}
	if resp.LessonID != "cases" || resp.Result.Score != 72 || resp.DurationMS != 900 || len(resp.Warnings) != 1 {
		t.Errorf("response = %+v", resp)
	}

	failed := &queue.EvaluationResult{
		JobID:     uuid.New(),
		Status:    queue.StatusFailed,
		ErrorKind: domain.KindLessonNotFound,
		Error:     "lesson not found",
	}
	_, err = responseFromResult(failed)
	if err == nil || !strings.Contains(err.Error(), domain.KindLessonNotFound) {
		t.Errorf("error = %v, want failure naming the kind", err)
	}
}

func TestReadSQLiteLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "evaluations.db")

	if _, err := readSQLiteLog(path, 0); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("missing db error = %v, want ErrNotExist", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("readSQLiteLog should not create the database")
	}

	sink, err := evallog.NewSQLiteSink(path)
	if err != nil {
		t.Fatal(err)
	}
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	for i, lesson := range []string{"lesson1", "cases", "lesson1"} {
		err := sink.Append(context.Background(), domain.LogRecord{
			ID:        uuid.New(),
			LessonID:  lesson,
			Provider:  "openai",
			Prompt:    "prompt",
			Response:  `{"score": 80}`,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	sink.Close()

	records, err := readSQLiteLog(path, 2)
	if err != nil {
		t.Fatalf("readSQLiteLog() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if records[0].LessonID != "cases" || !records[1].CreatedAt.After(records[0].CreatedAt) {
		t.Errorf("records should be the newest two, oldest first: %+v", records)
	}

	var buf bytes.Buffer
	if err := printRecords(&buf, path, records, false); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "2 records") || !strings.Contains(buf.String(), "cases") {
		t.Errorf("printRecords() = %q", buf.String())
	}
}
