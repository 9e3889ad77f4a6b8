package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/felixgeelhaar/nahw/internal/domain"
)

// Queue names
const (
	EvaluationQueueName = "nahw.evaluations"
	ResultQueueName     = "nahw.evaluation_results"
)

// Job statuses
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusTimeout   = "timeout"
)

// EvaluationJob asks a worker to evaluate one learner answer
type EvaluationJob struct {
	ID            uuid.UUID `json:"id"`
	LessonID      string    `json:"lesson_id"`
	LearnerAnswer string    `json:"learner_answer"`
	Provider      string    `json:"provider,omitempty"`
	Grounding     string    `json:"grounding,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// EvaluationResult is published once a job finishes, successfully or not
type EvaluationResult struct {
	JobID        uuid.UUID                `json:"job_id"`
	Status       string                   `json:"status"`
	EvaluationID uuid.UUID                `json:"evaluation_id,omitempty"`
	LessonID     string                   `json:"lesson_id"`
	Provider     string                   `json:"provider,omitempty"`
	Result       *domain.EvaluationResult `json:"result,omitempty"`
	Tier         domain.ScoreTier         `json:"tier,omitempty"`
	Warnings     []string                 `json:"warnings,omitempty"`
	ErrorKind    string                   `json:"error_kind,omitempty"`
	Error        string                   `json:"error,omitempty"`
	DurationMS   int64                    `json:"duration_ms"`
	CompletedAt  time.Time                `json:"completed_at"`
}

// Publisher sends JSON messages to a named queue
type Publisher interface {
	PublishJSON(ctx context.Context, queue string, data any) error
}

// Connection manages the RabbitMQ connection with automatic reconnection
type Connection struct {
	url        string
	conn       *amqp.Connection
	channel    *amqp.Channel
	logger     *slog.Logger
	mu         sync.RWMutex
	closed     bool
	reconnects int
}

// NewConnection dials url and declares the evaluation queues
func NewConnection(url string, logger *slog.Logger) (*Connection, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Connection{
		url:    url,
		logger: logger,
	}

	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Connection) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := declareQueues(channel); err != nil {
		channel.Close()
		conn.Close()
		return err
	}

	c.conn = conn
	c.channel = channel
	go c.handleReconnect(conn)

	c.logger.Info("connected to RabbitMQ", "url", sanitizeURL(c.url))
	return nil
}

// queueSpec describes a durable queue and its message TTL
type queueSpec struct {
	name string
	ttl  time.Duration
}

var queueSpecs = []queueSpec{
	{EvaluationQueueName, 5 * time.Minute},
	{ResultQueueName, 10 * time.Minute},
}

func declareQueues(ch *amqp.Channel) error {
	for _, q := range queueSpecs {
		_, err := ch.QueueDeclare(
			q.name,
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			amqp.Table{"x-message-ttl": int32(q.ttl.Milliseconds())},
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}
	return nil
}

// handleReconnect waits for conn to close and redials with backoff
func (c *Connection) handleReconnect(conn *amqp.Connection) {
	amqpErr, ok := <-conn.NotifyClose(make(chan *amqp.Error, 1))
	if !ok || amqpErr == nil {
		return
	}

	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return
	}

	c.logger.Warn("RabbitMQ connection closed, reconnecting", "error", amqpErr, "reconnects", c.reconnects)

	for attempt := 0; attempt < 10; attempt++ {
		c.reconnects++
		time.Sleep(reconnectBackoff(attempt))

		if err := c.connect(); err != nil {
			c.logger.Error("reconnection failed", "error", err, "attempt", attempt+1)
			continue
		}
		c.logger.Info("reconnected to RabbitMQ", "attempts", attempt+1)
		return
	}

	c.logger.Error("failed to reconnect to RabbitMQ after 10 attempts")
}

// reconnectBackoff doubles from 1s and caps at 30s
func reconnectBackoff(attempt int) time.Duration {
	if attempt >= 5 {
		return 30 * time.Second
	}
	return min(time.Duration(1<<attempt)*time.Second, 30*time.Second)
}

// Channel returns the current channel
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// Close closes the channel and connection
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// IsConnected reports whether the connection is open
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && !c.conn.IsClosed()
}

// PublishJSON publishes data as a persistent JSON message
func (c *Connection) PublishJSON(ctx context.Context, queue string, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ch := c.Channel()
	if ch == nil {
		return fmt.Errorf("publish to %s: channel not open", queue)
	}

	return ch.PublishWithContext(
		ctx,
		"",    // exchange
		queue, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

// sanitizeURL hides the password of an AMQP URL for logging
func sanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "invalid-url"
	}
	return u.Redacted()
}
