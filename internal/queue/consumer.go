package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/felixgeelhaar/nahw/internal/domain"
	"github.com/felixgeelhaar/nahw/internal/evaluation"
)

// JobHandler processes one evaluation job
type JobHandler func(ctx context.Context, job *EvaluationJob) (*EvaluationResult, error)

// Evaluator is the part of the evaluation service a worker needs
type Evaluator interface {
	EvaluateRequest(ctx context.Context, req evaluation.Request) (*evaluation.Evaluation, error)
}

// NewEvaluationHandler adapts an Evaluator to a JobHandler
func NewEvaluationHandler(ev Evaluator) JobHandler {
	return func(ctx context.Context, job *EvaluationJob) (*EvaluationResult, error) {
		eval, err := ev.EvaluateRequest(ctx, evaluation.Request{
			LearnerAnswer: job.LearnerAnswer,
			LessonID:      job.LessonID,
			Provider:      job.Provider,
			Grounding:     job.Grounding,
		})
		if err != nil {
			return nil, err
		}
		return &EvaluationResult{
			Status:       StatusCompleted,
			EvaluationID: eval.ID,
			LessonID:     eval.LessonID,
			Provider:     eval.Provider,
			Result:       eval.Result,
			Tier:         eval.Tier,
			Warnings:     eval.WarningMessages(),
		}, nil
	}
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	Workers    int           // concurrent workers
	Prefetch   int           // unacked deliveries per channel
	JobTimeout time.Duration // per-job deadline
	Logger     *slog.Logger
}

// DefaultConsumerConfig returns the defaults
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Workers:    2,
		Prefetch:   1,
		JobTimeout: time.Minute,
	}
}

// Consumer runs evaluation jobs from the queue on a pool of workers
type Consumer struct {
	conn       *Connection
	handler    JobHandler
	results    *Producer
	cfg        ConsumerConfig
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// NewConsumer creates a consumer. Results are published through conn.
func NewConsumer(conn *Connection, handler JobHandler, cfg ConsumerConfig) *Consumer {
	defaults := DefaultConsumerConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = defaults.Prefetch
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = defaults.JobTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Consumer{
		conn:    conn,
		handler: handler,
		cfg:     cfg,
		logger:  logger,
	}
	if conn != nil {
		c.results = NewProducer(conn, logger)
	}
	return c
}

// Start begins consuming jobs
func (c *Consumer) Start(ctx context.Context) error {
	ctx, c.cancelFunc = context.WithCancel(ctx)

	ch := c.conn.Channel()
	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		EvaluationQueueName,
		"",    // consumer tag
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	c.logger.Info("starting evaluation consumer", "workers", c.cfg.Workers, "prefetch", c.cfg.Prefetch)

	for i := 0; i < c.cfg.Workers; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i, msgs)
	}
	return nil
}

func (c *Consumer) worker(ctx context.Context, id int, msgs <-chan amqp.Delivery) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("worker stopping", "worker_id", id)
			return
		case msg, ok := <-msgs:
			if !ok {
				c.logger.Info("delivery channel closed", "worker_id", id)
				return
			}
			c.processMessage(ctx, id, msg)
		}
	}
}

// processMessage runs one delivery. Malformed bodies are rejected without
// requeue; every other outcome publishes a result and acks.
func (c *Consumer) processMessage(ctx context.Context, workerID int, msg amqp.Delivery) {
	start := time.Now()

	var job EvaluationJob
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		c.logger.Error("malformed evaluation job", "worker_id", workerID, "error", err)
		_ = msg.Reject(false)
		return
	}

	c.logger.Info("processing evaluation job",
		"worker_id", workerID,
		"job_id", job.ID,
		"lesson_id", job.LessonID,
	)

	jobCtx, cancel := context.WithTimeout(ctx, c.cfg.JobTimeout)
	defer cancel()

	result, err := c.handler(jobCtx, &job)
	if err != nil {
		result = &EvaluationResult{
			Status:    StatusFailed,
			LessonID:  job.LessonID,
			Provider:  job.Provider,
			ErrorKind: domain.ErrorKind(err),
			Error:     err.Error(),
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(jobCtx.Err(), context.DeadlineExceeded) {
			result.Status = StatusTimeout
		}
		c.logger.Error("evaluation job failed",
			"worker_id", workerID,
			"job_id", job.ID,
			"kind", result.ErrorKind,
			"error", err,
		)
	} else if result.Status == "" {
		result.Status = StatusCompleted
	}

	result.JobID = job.ID
	result.DurationMS = time.Since(start).Milliseconds()
	result.CompletedAt = time.Now().UTC()

	if c.results != nil {
		if err := c.results.PublishResult(context.WithoutCancel(ctx), result); err != nil {
			c.logger.Error("failed to publish result", "job_id", job.ID, "error", err)
		}
	}

	if err := msg.Ack(false); err != nil {
		c.logger.Error("failed to ack job", "job_id", job.ID, "error", err)
	}
}

// Stop cancels the workers and waits for in-flight jobs
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
	c.wg.Wait()
	c.logger.Info("evaluation consumer stopped")
}

// ResultHandler receives the result of one job
type ResultHandler func(result *EvaluationResult)

// ResultConsumer dispatches results to per-job subscribers
type ResultConsumer struct {
	conn       *Connection
	handlers   map[string]ResultHandler
	handlersMu sync.RWMutex
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// NewResultConsumer creates a result consumer
func NewResultConsumer(conn *Connection, logger *slog.Logger) *ResultConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResultConsumer{
		conn:     conn,
		handlers: make(map[string]ResultHandler),
		logger:   logger,
	}
}

// Subscribe registers handler for the result of jobID
func (rc *ResultConsumer) Subscribe(jobID string, handler ResultHandler) {
	rc.handlersMu.Lock()
	defer rc.handlersMu.Unlock()
	rc.handlers[jobID] = handler
}

// Unsubscribe removes the handler for jobID
func (rc *ResultConsumer) Unsubscribe(jobID string) {
	rc.handlersMu.Lock()
	defer rc.handlersMu.Unlock()
	delete(rc.handlers, jobID)
}

// Await subscribes to jobID, runs publish and blocks until the job's
// result arrives or ctx ends
func (rc *ResultConsumer) Await(ctx context.Context, jobID string, publish func(context.Context) error) (*EvaluationResult, error) {
	done := make(chan *EvaluationResult, 1)
	rc.Subscribe(jobID, func(r *EvaluationResult) {
		select {
		case done <- r:
		default:
		}
	})
	defer rc.Unsubscribe(jobID)

	if err := publish(ctx); err != nil {
		return nil, err
	}

	select {
	case r := <-done:
		return r, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for job %s: %w", jobID, ctx.Err())
	}
}

// Start begins consuming results
func (rc *ResultConsumer) Start(ctx context.Context) error {
	ctx, rc.cancelFunc = context.WithCancel(ctx)

	msgs, err := rc.conn.Channel().Consume(
		ResultQueueName,
		"",    // consumer tag
		true,  // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("start result consumer: %w", err)
	}

	rc.wg.Add(1)
	go rc.consume(ctx, msgs)
	return nil
}

func (rc *ResultConsumer) consume(ctx context.Context, msgs <-chan amqp.Delivery) {
	defer rc.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			rc.dispatch(msg.Body)
		}
	}
}

// dispatch decodes a result and hands it to its subscriber, if any
func (rc *ResultConsumer) dispatch(body []byte) bool {
	var result EvaluationResult
	if err := json.Unmarshal(body, &result); err != nil {
		rc.logger.Error("malformed evaluation result", "error", err)
		return false
	}

	rc.handlersMu.RLock()
	handler, ok := rc.handlers[result.JobID.String()]
	rc.handlersMu.RUnlock()

	if ok {
		handler(&result)
	}
	return ok
}

// Stop stops the result consumer
func (rc *ResultConsumer) Stop() {
	if rc.cancelFunc != nil {
		rc.cancelFunc()
	}
	rc.wg.Wait()
}
