package queue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/nahw/internal/domain"
)

// Producer publishes evaluation jobs and results
type Producer struct {
	pub    Publisher
	logger *slog.Logger
}

// NewProducer creates a producer over pub
func NewProducer(pub Publisher, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{pub: pub, logger: logger}
}

// NewEvaluationJob builds a job with a fresh ID
func NewEvaluationJob(lessonID, answer, provider, grounding string) *EvaluationJob {
	return &EvaluationJob{
		ID:            uuid.New(),
		LessonID:      lessonID,
		LearnerAnswer: answer,
		Provider:      provider,
		Grounding:     grounding,
		CreatedAt:     time.Now().UTC(),
	}
}

// PublishEvaluationJob validates and enqueues job, filling in ID and
// CreatedAt when unset
func (p *Producer) PublishEvaluationJob(ctx context.Context, job *EvaluationJob) error {
	if strings.TrimSpace(job.LearnerAnswer) == "" {
		return domain.ErrEmptyAnswer
	}
	if job.LessonID == "" {
		return fmt.Errorf("%w: lesson id is empty", domain.ErrLessonNotFound)
	}
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	if err := p.pub.PublishJSON(ctx, EvaluationQueueName, job); err != nil {
		return fmt.Errorf("publish evaluation job: %w", err)
	}

	p.logger.Info("published evaluation job",
		"job_id", job.ID,
		"lesson_id", job.LessonID,
		"provider", job.Provider,
	)
	return nil
}

// PublishResult publishes a finished job
func (p *Producer) PublishResult(ctx context.Context, result *EvaluationResult) error {
	if result.CompletedAt.IsZero() {
		result.CompletedAt = time.Now().UTC()
	}

	if err := p.pub.PublishJSON(ctx, ResultQueueName, result); err != nil {
		return fmt.Errorf("publish evaluation result: %w", err)
	}

	p.logger.Info("published evaluation result",
		"job_id", result.JobID,
		"status", result.Status,
		"duration_ms", result.DurationMS,
	)
	return nil
}
